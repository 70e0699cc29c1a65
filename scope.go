package bastion

import (
	"context"

	"github.com/xraph/forge"
)

// orgFromContext returns the organization of the forge scope, or "" when
// the engine runs standalone.
func orgFromContext(ctx context.Context) string {
	s, ok := forge.ScopeFrom(ctx)
	if !ok {
		return ""
	}
	return s.OrgID()
}

// withScopeDefaults fills SubjectOrgID from the forge scope when the caller
// left it empty. The request is not mutated.
func withScopeDefaults(ctx context.Context, rc *RequestContext) *RequestContext {
	org := orgFromContext(ctx)
	if org == "" {
		return rc
	}
	if rc == nil {
		return &RequestContext{SubjectOrgID: org}
	}
	if rc.SubjectOrgID != "" {
		return rc
	}
	c := *rc
	c.SubjectOrgID = org
	return &c
}
