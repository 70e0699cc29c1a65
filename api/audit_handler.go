package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/xraph/forge"

	"github.com/xraph/bastion/audit"
)

func (a *API) registerAuditRoutes(router forge.Router) error {
	g := router.Group("/v1", forge.WithGroupTags("audit"))

	return g.GET("/audit", a.listAudit,
		forge.WithSummary("Query audit trail"),
		forge.WithDescription("Returns decisions and administrative changes, newest first."),
		forge.WithOperationID("listAudit"),
		forge.WithRequestSchema(ListAuditRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Audit entries", ListResponse[*audit.Entry]{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) listAudit(ctx forge.Context, req *ListAuditRequest) (*ListResponse[*audit.Entry], error) {
	if err := a.requireAdmin(ctx.Context()); err != nil {
		return nil, err
	}
	success, err := parseOptionalBool("success", req.Success)
	if err != nil {
		return nil, err
	}
	filter := &audit.QueryFilter{
		Action:       req.Action,
		SubjectID:    req.SubjectID,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Success:      success,
		Limit:        defaultLimit(req.Limit),
		Offset:       req.Offset,
	}
	if req.After != "" {
		t, err := time.Parse(time.RFC3339, req.After)
		if err != nil {
			return nil, forge.BadRequest(fmt.Sprintf("invalid after: %v", err))
		}
		filter.After = &t
	}
	if req.Before != "" {
		t, err := time.Parse(time.RFC3339, req.Before)
		if err != nil {
			return nil, forge.BadRequest(fmt.Sprintf("invalid before: %v", err))
		}
		filter.Before = &t
	}

	entries, total, err := a.eng.QueryAudit(ctx.Context(), filter)
	if err != nil {
		return nil, mapError(err)
	}

	resp := &ListResponse[*audit.Entry]{Items: entries, Total: total, Limit: filter.Limit, Offset: filter.Offset}
	return resp, ctx.JSON(http.StatusOK, resp)
}
