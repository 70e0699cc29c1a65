package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/permission"
)

func (a *API) registerPermissionRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("permissions"))

	if err := g.POST("/permissions", a.createPermission,
		forge.WithSummary("Create permission"),
		forge.WithDescription("Adds a resource type and action pair to the catalog."),
		forge.WithOperationID("createPermission"),
		forge.WithRequestSchema(CreatePermissionRequest{}),
		forge.WithCreatedResponse(&permission.Permission{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/permissions/:permissionId", a.getPermission,
		forge.WithSummary("Get permission"),
		forge.WithOperationID("getPermission"),
		forge.WithResponseSchema(http.StatusOK, "Permission details", &permission.Permission{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.DELETE("/permissions/:permissionId", a.deletePermission,
		forge.WithSummary("Delete permission"),
		forge.WithDescription("Deletes an unreferenced, non-system permission."),
		forge.WithOperationID("deletePermission"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.GET("/permissions", a.listPermissions,
		forge.WithSummary("List permissions"),
		forge.WithOperationID("listPermissions"),
		forge.WithRequestSchema(ListPermissionsRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Permission list", ListResponse[*permission.Permission]{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) createPermission(ctx forge.Context, req *CreatePermissionRequest) (*permission.Permission, error) {
	if err := a.requireAdmin(ctx.Context()); err != nil {
		return nil, err
	}
	if req.ResourceType == "" || req.Action == "" {
		return nil, forge.BadRequest("resource_type and action are required")
	}

	p, err := a.eng.CreatePermission(requestContext(ctx.Context()), bastion.PermissionInput{
		Name:         req.Name,
		Description:  req.Description,
		ResourceType: permission.ResourceType(req.ResourceType),
		Action:       permission.Action(req.Action),
		Category:     req.Category,
		Metadata:     req.Metadata,
	})
	if err != nil {
		return nil, mapError(err)
	}
	return p, ctx.JSON(http.StatusCreated, p)
}

func (a *API) getPermission(ctx forge.Context, _ *GetPermissionRequest) (*permission.Permission, error) {
	if err := a.requireAdmin(ctx.Context()); err != nil {
		return nil, err
	}
	permID, err := id.ParsePermissionID(ctx.Param("permissionId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid permission ID: %v", err))
	}

	p, err := a.eng.GetPermission(ctx.Context(), permID)
	if err != nil {
		return nil, mapError(err)
	}
	return p, ctx.JSON(http.StatusOK, p)
}

func (a *API) deletePermission(ctx forge.Context, _ *GetPermissionRequest) (*struct{}, error) {
	if err := a.requireAdmin(ctx.Context()); err != nil {
		return nil, err
	}
	permID, err := id.ParsePermissionID(ctx.Param("permissionId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid permission ID: %v", err))
	}

	if err := a.eng.DeletePermission(requestContext(ctx.Context()), permID); err != nil {
		return nil, mapError(err)
	}
	return nil, ctx.NoContent(http.StatusNoContent)
}

func (a *API) listPermissions(ctx forge.Context, req *ListPermissionsRequest) (*ListResponse[*permission.Permission], error) {
	if err := a.requireAdmin(ctx.Context()); err != nil {
		return nil, err
	}
	filter := &permission.ListFilter{
		ResourceType: permission.ResourceType(req.ResourceType),
		Action:       permission.Action(req.Action),
		Category:     req.Category,
		Search:       req.Search,
		Limit:        defaultLimit(req.Limit),
		Offset:       req.Offset,
	}

	perms, total, err := a.eng.ListPermissions(ctx.Context(), filter)
	if err != nil {
		return nil, mapError(err)
	}

	resp := &ListResponse[*permission.Permission]{Items: perms, Total: total, Limit: filter.Limit, Offset: filter.Offset}
	return resp, ctx.JSON(http.StatusOK, resp)
}
