package api

import (
	"context"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/permission"
)

func (a *API) registerCheckRoutes(router forge.Router) error {
	g := router.Group("/v1/authz", forge.WithGroupTags("authorization"))

	if err := g.POST("/check", a.check,
		forge.WithSummary("Authorization check"),
		forge.WithDescription("Evaluates whether the subject can perform the action on the resource. Checking another subject requires system.manage."),
		forge.WithOperationID("authzCheck"),
		forge.WithRequestSchema(CheckRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Check result", CheckResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/enforce", a.enforce,
		forge.WithSummary("Enforce authorization"),
		forge.WithDescription("Returns 200 if allowed, 403 if denied."),
		forge.WithOperationID("authzEnforce"),
		forge.WithRequestSchema(CheckRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Allowed", CheckResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/batch-check", a.batchCheck,
		forge.WithSummary("Batch authorization check"),
		forge.WithDescription("Evaluates multiple authorization checks in one request."),
		forge.WithOperationID("authzBatchCheck"),
		forge.WithRequestSchema(BatchCheckRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Batch results", BatchCheckResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.GET("/me/permissions", a.myPermissions,
		forge.WithSummary("List my effective permissions"),
		forge.WithDescription("Lists the grants the caller reaches through its roles. Informational only."),
		forge.WithOperationID("authzMyPermissions"),
		forge.WithRequestSchema(EffectivePermissionsRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Effective permissions", []*bastion.PermissionSummary{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) check(ctx forge.Context, req *CheckRequest) (*CheckResponse, error) {
	resp, err := a.evaluate(ctx.Context(), req)
	if err != nil {
		return nil, err
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) enforce(ctx forge.Context, req *CheckRequest) (*CheckResponse, error) {
	resp, err := a.evaluate(ctx.Context(), req)
	if err != nil {
		return nil, err
	}
	if !resp.Allowed {
		return resp, ctx.JSON(http.StatusForbidden, resp)
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) batchCheck(ctx forge.Context, req *BatchCheckRequest) (*BatchCheckResponse, error) {
	if len(req.Checks) == 0 {
		return nil, forge.BadRequest("checks cannot be empty")
	}

	results := make([]CheckResponse, len(req.Checks))
	for i := range req.Checks {
		resp, err := a.evaluate(ctx.Context(), &req.Checks[i])
		if err != nil {
			return nil, err
		}
		results[i] = *resp
	}

	resp := &BatchCheckResponse{Results: results}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) myPermissions(ctx forge.Context, req *EffectivePermissionsRequest) ([]*bastion.PermissionSummary, error) {
	user := caller(ctx.Context())
	if user == "" {
		return nil, forge.Forbidden("authentication required")
	}
	perms, err := a.eng.ListEffectivePermissions(ctx.Context(), user, permission.ResourceType(req.ResourceType))
	if err != nil {
		return nil, mapError(err)
	}
	return perms, ctx.JSON(http.StatusOK, perms)
}

// evaluate runs one check. Callers see the public view of their own
// decisions; administrators checking on behalf of another subject get the
// full trace.
func (a *API) evaluate(ctx context.Context, req *CheckRequest) (*CheckResponse, error) {
	user := caller(ctx)
	subject := req.SubjectID
	if subject == "" {
		subject = user
	}
	if subject == "" {
		return nil, forge.BadRequest("subject_id is required")
	}
	explain := false
	if subject != user {
		if err := a.requireAdmin(ctx); err != nil {
			return nil, err
		}
		explain = true
	}

	dec, err := a.eng.CheckPermission(requestContext(ctx), toCheckRequest(subject, req))
	if err != nil {
		return nil, mapError(err)
	}
	if !explain {
		dec = dec.Public()
	}
	return &CheckResponse{
		Allowed:    dec.Allowed,
		Decision:   string(dec.Code),
		Reason:     dec.Reason,
		Trace:      dec.Trace,
		Cached:     dec.Cached,
		EvalTimeNs: dec.EvalTimeNs,
	}, nil
}

func toCheckRequest(subject string, r *CheckRequest) *bastion.CheckRequest {
	out := &bastion.CheckRequest{
		SubjectID:    subject,
		ResourceType: permission.ResourceType(r.ResourceType),
		Action:       permission.Action(r.Action),
		ResourceID:   r.ResourceID,
	}
	if r.Context != nil {
		out.Context = &bastion.RequestContext{
			SubjectOrgID:    r.Context.SubjectOrgID,
			ResourceOwnerID: r.Context.ResourceOwnerID,
			ResourceOrgID:   r.Context.ResourceOrgID,
			Attributes:      r.Context.Attributes,
		}
	}
	return out
}
