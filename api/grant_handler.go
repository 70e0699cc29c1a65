package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/grant"
	"github.com/xraph/bastion/id"
)

func (a *API) registerGrantRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("grants"))

	if err := g.POST("/roles/:roleId/grants", a.grantPermission,
		forge.WithSummary("Grant permission to role"),
		forge.WithDescription("Grants or explicitly denies a permission on a role. The effective grant with the same scope is superseded."),
		forge.WithOperationID("grantPermission"),
		forge.WithRequestSchema(GrantPermissionRequest{}),
		forge.WithCreatedResponse(&grant.Grant{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/roles/:roleId/grants", a.listRoleGrants,
		forge.WithSummary("List role grants"),
		forge.WithOperationID("listRoleGrants"),
		forge.WithRequestSchema(ListGrantsRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Grant list", []*grant.Grant{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.DELETE("/grants/:grantId", a.revokeGrant,
		forge.WithSummary("Revoke grant"),
		forge.WithOperationID("revokeGrant"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	)
}

func (a *API) grantPermission(ctx forge.Context, req *GrantPermissionRequest) (*grant.Grant, error) {
	if err := a.requireAdmin(ctx.Context()); err != nil {
		return nil, err
	}
	roleID, err := id.ParseRoleID(ctx.Param("roleId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid role ID: %v", err))
	}
	permID, err := id.ParsePermissionID(req.PermissionID)
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid permission_id: %v", err))
	}
	expires, err := parseExpiry(req.ExpiresAt)
	if err != nil {
		return nil, err
	}

	g, err := a.eng.GrantPermissionToRole(requestContext(ctx.Context()), bastion.GrantInput{
		RoleID:       roleID,
		PermissionID: permID,
		Scope:        grant.Scope(req.Scope),
		Conditions:   req.Conditions,
		IsGranted:    !req.Deny,
		ExpiresAt:    expires,
	})
	if err != nil {
		return nil, mapError(err)
	}
	return g, ctx.JSON(http.StatusCreated, g)
}

func (a *API) listRoleGrants(ctx forge.Context, req *ListGrantsRequest) ([]*grant.Grant, error) {
	if err := a.requireAdmin(ctx.Context()); err != nil {
		return nil, err
	}
	roleID, err := id.ParseRoleID(ctx.Param("roleId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid role ID: %v", err))
	}

	grants, err := a.eng.ListRoleGrants(ctx.Context(), roleID, req.IncludeExpired)
	if err != nil {
		return nil, mapError(err)
	}
	return grants, ctx.JSON(http.StatusOK, grants)
}

func (a *API) revokeGrant(ctx forge.Context, _ *struct{}) (*struct{}, error) {
	if err := a.requireAdmin(ctx.Context()); err != nil {
		return nil, err
	}
	grantID, err := id.ParseGrantID(ctx.Param("grantId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid grant ID: %v", err))
	}

	if err := a.eng.RevokeGrant(requestContext(ctx.Context()), grantID); err != nil {
		return nil, mapError(err)
	}
	return nil, ctx.NoContent(http.StatusNoContent)
}
