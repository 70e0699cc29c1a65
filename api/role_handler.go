package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/role"
)

func (a *API) registerRoleRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("roles"))

	if err := g.POST("/roles", a.createRole,
		forge.WithSummary("Create role"),
		forge.WithDescription("Creates a new active role, optionally under a parent."),
		forge.WithOperationID("createRole"),
		forge.WithRequestSchema(CreateRoleRequest{}),
		forge.WithCreatedResponse(&role.Role{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/roles/:roleId", a.getRole,
		forge.WithSummary("Get role"),
		forge.WithDescription("Returns details of a specific role."),
		forge.WithOperationID("getRole"),
		forge.WithResponseSchema(http.StatusOK, "Role details", &role.Role{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.PUT("/roles/:roleId", a.updateRole,
		forge.WithSummary("Update role"),
		forge.WithDescription("Updates descriptive fields of a role."),
		forge.WithOperationID("updateRole"),
		forge.WithRequestSchema(UpdateRoleRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Updated role", &role.Role{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.PUT("/roles/:roleId/parent", a.reparentRole,
		forge.WithSummary("Reparent role"),
		forge.WithDescription("Moves a role in the hierarchy. Cycles and over-deep chains are rejected."),
		forge.WithOperationID("reparentRole"),
		forge.WithRequestSchema(ReparentRoleRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Updated role", &role.Role{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/roles/:roleId/activate", a.activateRole,
		forge.WithSummary("Activate role"),
		forge.WithOperationID("activateRole"),
		forge.WithResponseSchema(http.StatusOK, "Updated role", &role.Role{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/roles/:roleId/deactivate", a.deactivateRole,
		forge.WithSummary("Deactivate role"),
		forge.WithDescription("Stops the role and its ancestors' grants from reaching its holders."),
		forge.WithOperationID("deactivateRole"),
		forge.WithResponseSchema(http.StatusOK, "Updated role", &role.Role{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.DELETE("/roles/:roleId", a.deleteRole,
		forge.WithSummary("Delete role"),
		forge.WithDescription("Deletes an unreferenced, non-system role."),
		forge.WithOperationID("deleteRole"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.GET("/roles", a.listRoles,
		forge.WithSummary("List roles"),
		forge.WithDescription("Lists roles with optional filters."),
		forge.WithOperationID("listRoles"),
		forge.WithRequestSchema(ListRolesRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Role list", ListResponse[*role.Role]{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) createRole(ctx forge.Context, req *CreateRoleRequest) (*role.Role, error) {
	if err := a.requireAdmin(ctx.Context()); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, forge.BadRequest("name is required")
	}

	in := bastion.RoleInput{
		Name:           req.Name,
		DisplayName:    req.DisplayName,
		Description:    req.Description,
		Type:           role.Type(req.RoleType),
		OrganizationID: req.OrganizationID,
		Metadata:       req.Metadata,
	}
	if req.ParentID != "" {
		pid, err := id.ParseRoleID(req.ParentID)
		if err != nil {
			return nil, forge.BadRequest(fmt.Sprintf("invalid parent_id: %v", err))
		}
		in.ParentID = &pid
	}

	r, err := a.eng.CreateRole(requestContext(ctx.Context()), in)
	if err != nil {
		return nil, mapError(err)
	}
	return r, ctx.JSON(http.StatusCreated, r)
}

func (a *API) getRole(ctx forge.Context, _ *GetRoleRequest) (*role.Role, error) {
	if err := a.requireAdmin(ctx.Context()); err != nil {
		return nil, err
	}
	roleID, err := id.ParseRoleID(ctx.Param("roleId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid role ID: %v", err))
	}

	r, err := a.eng.GetRole(ctx.Context(), roleID)
	if err != nil {
		return nil, mapError(err)
	}
	return r, ctx.JSON(http.StatusOK, r)
}

func (a *API) updateRole(ctx forge.Context, req *UpdateRoleRequest) (*role.Role, error) {
	if err := a.requireAdmin(ctx.Context()); err != nil {
		return nil, err
	}
	roleID, err := id.ParseRoleID(ctx.Param("roleId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid role ID: %v", err))
	}

	r, err := a.eng.UpdateRole(requestContext(ctx.Context()), roleID, bastion.RoleUpdate{
		DisplayName: req.DisplayName,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, mapError(err)
	}
	return r, ctx.JSON(http.StatusOK, r)
}

func (a *API) reparentRole(ctx forge.Context, req *ReparentRoleRequest) (*role.Role, error) {
	if err := a.requireAdmin(ctx.Context()); err != nil {
		return nil, err
	}
	roleID, err := id.ParseRoleID(ctx.Param("roleId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid role ID: %v", err))
	}

	var parentID *id.RoleID
	if req.ParentID != "" {
		pid, err := id.ParseRoleID(req.ParentID)
		if err != nil {
			return nil, forge.BadRequest(fmt.Sprintf("invalid parent_id: %v", err))
		}
		parentID = &pid
	}

	r, err := a.eng.ReparentRole(requestContext(ctx.Context()), roleID, parentID)
	if err != nil {
		return nil, mapError(err)
	}
	return r, ctx.JSON(http.StatusOK, r)
}

func (a *API) activateRole(ctx forge.Context, _ *GetRoleRequest) (*role.Role, error) {
	return a.setRoleActive(ctx, true)
}

func (a *API) deactivateRole(ctx forge.Context, _ *GetRoleRequest) (*role.Role, error) {
	return a.setRoleActive(ctx, false)
}

func (a *API) setRoleActive(ctx forge.Context, active bool) (*role.Role, error) {
	if err := a.requireAdmin(ctx.Context()); err != nil {
		return nil, err
	}
	roleID, err := id.ParseRoleID(ctx.Param("roleId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid role ID: %v", err))
	}

	var r *role.Role
	if active {
		r, err = a.eng.ActivateRole(requestContext(ctx.Context()), roleID)
	} else {
		r, err = a.eng.DeactivateRole(requestContext(ctx.Context()), roleID)
	}
	if err != nil {
		return nil, mapError(err)
	}
	return r, ctx.JSON(http.StatusOK, r)
}

func (a *API) deleteRole(ctx forge.Context, _ *GetRoleRequest) (*struct{}, error) {
	if err := a.requireAdmin(ctx.Context()); err != nil {
		return nil, err
	}
	roleID, err := id.ParseRoleID(ctx.Param("roleId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid role ID: %v", err))
	}

	if err := a.eng.DeleteRole(requestContext(ctx.Context()), roleID); err != nil {
		return nil, mapError(err)
	}
	return nil, ctx.NoContent(http.StatusNoContent)
}

func (a *API) listRoles(ctx forge.Context, req *ListRolesRequest) (*ListResponse[*role.Role], error) {
	if err := a.requireAdmin(ctx.Context()); err != nil {
		return nil, err
	}
	active, err := parseOptionalBool("active", req.Active)
	if err != nil {
		return nil, err
	}
	filter := &role.ListFilter{
		Type:     role.Type(req.RoleType),
		IsActive: active,
		Search:   req.Search,
		Limit:    defaultLimit(req.Limit),
		Offset:   req.Offset,
	}

	roles, total, err := a.eng.ListRoles(ctx.Context(), filter)
	if err != nil {
		return nil, mapError(err)
	}

	resp := &ListResponse[*role.Role]{Items: roles, Total: total, Limit: filter.Limit, Offset: filter.Offset}
	return resp, ctx.JSON(http.StatusOK, resp)
}
