package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/permission"
)

func (a *API) registerAssignmentRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("assignments"))

	if err := g.POST("/assignments", a.assignRole,
		forge.WithSummary("Assign role"),
		forge.WithDescription("Assigns an active role to a user, optionally until an expiry."),
		forge.WithOperationID("assignRole"),
		forge.WithRequestSchema(AssignRoleRequest{}),
		forge.WithCreatedResponse(&assignment.Assignment{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.DELETE("/users/:userId/roles/:roleId", a.revokeRole,
		forge.WithSummary("Revoke role"),
		forge.WithDescription("Deactivates the user's effective assignments of the role."),
		forge.WithOperationID("revokeRole"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/users/:userId/roles", a.listUserRoles,
		forge.WithSummary("List user roles"),
		forge.WithDescription("Returns the user's effective role assignments."),
		forge.WithOperationID("listUserRoles"),
		forge.WithResponseSchema(http.StatusOK, "Assignments", []*assignment.Assignment{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.GET("/users/:userId/permissions", a.listUserPermissions,
		forge.WithSummary("List user effective permissions"),
		forge.WithOperationID("listUserPermissions"),
		forge.WithRequestSchema(EffectivePermissionsRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Effective permissions", []*bastion.PermissionSummary{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) assignRole(ctx forge.Context, req *AssignRoleRequest) (*assignment.Assignment, error) {
	if err := a.requireAdmin(ctx.Context()); err != nil {
		return nil, err
	}
	if req.UserID == "" || req.RoleID == "" {
		return nil, forge.BadRequest("user_id and role_id are required")
	}
	roleID, err := id.ParseRoleID(req.RoleID)
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid role_id: %v", err))
	}
	expires, err := parseExpiry(req.ExpiresAt)
	if err != nil {
		return nil, err
	}

	ass, err := a.eng.AssignRole(requestContext(ctx.Context()), bastion.AssignRoleInput{
		UserID:    req.UserID,
		RoleID:    roleID,
		Reason:    req.Reason,
		ExpiresAt: expires,
	})
	if err != nil {
		return nil, mapError(err)
	}
	return ass, ctx.JSON(http.StatusCreated, ass)
}

func (a *API) revokeRole(ctx forge.Context, _ *RevokeRoleRequest) (*struct{}, error) {
	if err := a.requireAdmin(ctx.Context()); err != nil {
		return nil, err
	}
	roleID, err := id.ParseRoleID(ctx.Param("roleId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid role ID: %v", err))
	}

	if err := a.eng.RevokeRole(requestContext(ctx.Context()), ctx.Param("userId"), roleID); err != nil {
		return nil, mapError(err)
	}
	return nil, ctx.NoContent(http.StatusNoContent)
}

func (a *API) listUserRoles(ctx forge.Context, _ *UserRolesRequest) ([]*assignment.Assignment, error) {
	if err := a.requireAdmin(ctx.Context()); err != nil {
		return nil, err
	}
	assignments, err := a.eng.ListUserRoles(ctx.Context(), ctx.Param("userId"))
	if err != nil {
		return nil, mapError(err)
	}
	return assignments, ctx.JSON(http.StatusOK, assignments)
}

func (a *API) listUserPermissions(ctx forge.Context, req *EffectivePermissionsRequest) ([]*bastion.PermissionSummary, error) {
	if err := a.requireAdmin(ctx.Context()); err != nil {
		return nil, err
	}
	perms, err := a.eng.ListEffectivePermissions(ctx.Context(), ctx.Param("userId"), permission.ResourceType(req.ResourceType))
	if err != nil {
		return nil, mapError(err)
	}
	return perms, ctx.JSON(http.StatusOK, perms)
}
