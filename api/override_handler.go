package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/override"
	"github.com/xraph/bastion/permission"
)

func (a *API) registerOverrideRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("overrides"))

	if err := g.PUT("/overrides", a.setOverride,
		forge.WithSummary("Set resource override"),
		forge.WithDescription("Creates or replaces the override for one resource instance, action and subject. Overrides win over role grants."),
		forge.WithOperationID("setOverride"),
		forge.WithRequestSchema(SetOverrideRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Override", &override.Override{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/overrides", a.listOverrides,
		forge.WithSummary("List resource overrides"),
		forge.WithOperationID("listOverrides"),
		forge.WithRequestSchema(ListOverridesRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Override list", ListResponse[*override.Override]{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.DELETE("/overrides/:overrideId", a.removeOverride,
		forge.WithSummary("Remove resource override"),
		forge.WithOperationID("removeOverride"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	)
}

func (a *API) setOverride(ctx forge.Context, req *SetOverrideRequest) (*override.Override, error) {
	if err := a.requireAdmin(ctx.Context()); err != nil {
		return nil, err
	}
	expires, err := parseExpiry(req.ExpiresAt)
	if err != nil {
		return nil, err
	}

	o, err := a.eng.SetResourceOverride(requestContext(ctx.Context()), bastion.OverrideInput{
		ResourceType: permission.ResourceType(req.ResourceType),
		ResourceID:   req.ResourceID,
		Action:       permission.Action(req.Action),
		SubjectType:  override.SubjectType(req.SubjectType),
		SubjectID:    req.SubjectID,
		IsGranted:    !req.Deny,
		Conditions:   req.Conditions,
		ExpiresAt:    expires,
	})
	if err != nil {
		return nil, mapError(err)
	}
	return o, ctx.JSON(http.StatusOK, o)
}

func (a *API) listOverrides(ctx forge.Context, req *ListOverridesRequest) (*ListResponse[*override.Override], error) {
	if err := a.requireAdmin(ctx.Context()); err != nil {
		return nil, err
	}
	filter := &override.ListFilter{
		ResourceType: permission.ResourceType(req.ResourceType),
		ResourceID:   req.ResourceID,
		SubjectType:  override.SubjectType(req.SubjectType),
		SubjectID:    req.SubjectID,
		Limit:        defaultLimit(req.Limit),
		Offset:       req.Offset,
	}

	ovrs, total, err := a.eng.ListResourceOverrides(ctx.Context(), filter)
	if err != nil {
		return nil, mapError(err)
	}

	resp := &ListResponse[*override.Override]{Items: ovrs, Total: total, Limit: filter.Limit, Offset: filter.Offset}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) removeOverride(ctx forge.Context, _ *GetOverrideRequest) (*struct{}, error) {
	if err := a.requireAdmin(ctx.Context()); err != nil {
		return nil, err
	}
	ovrID, err := id.ParseOverrideID(ctx.Param("overrideId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid override ID: %v", err))
	}

	if err := a.eng.RemoveResourceOverride(requestContext(ctx.Context()), ovrID); err != nil {
		return nil, mapError(err)
	}
	return nil, ctx.NoContent(http.StatusNoContent)
}
