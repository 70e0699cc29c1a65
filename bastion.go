// Package bastion is a role-based permission engine with role inheritance,
// time-bounded grants, explicit denies, resource-specific overrides and an
// audit trail.
//
// A decision answers "may subject S perform action A on resource R of type
// T". Resource-specific overrides win over role grants; within each tier an
// applicable deny wins over an applicable allow; anything else is denied.
//
//	eng, err := bastion.NewEngine(
//	    bastion.WithStore(memory.New()),
//	    bastion.WithCache(cache.NewMemory(cache.WithTTL(5*time.Minute))),
//	)
//	dec, err := eng.CheckPermission(ctx, &bastion.CheckRequest{
//	    SubjectID:    "user_123",
//	    ResourceType: permission.ResourceProject,
//	    Action:       permission.ActionRead,
//	    ResourceID:   "proj_456",
//	    Context:      &bastion.RequestContext{ResourceOwnerID: "user_123"},
//	})
package bastion

import (
	"github.com/xraph/bastion/grant"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/permission"
)

// CheckRequest is the input to an authorization check. SubjectID is the
// authenticated user; ResourceID is optional.
type CheckRequest struct {
	SubjectID    string                  `json:"subject_id"`
	ResourceType permission.ResourceType `json:"resource_type"`
	Action       permission.Action       `json:"action"`
	ResourceID   string                  `json:"resource_id,omitempty"`
	Context      *RequestContext         `json:"context,omitempty"`
}

// RequestContext carries the facts scope predicates and conditions are
// evaluated against.
type RequestContext struct {
	SubjectOrgID    string         `json:"subject_org_id,omitempty"`
	ResourceOwnerID string         `json:"resource_owner_id,omitempty"`
	ResourceOrgID   string         `json:"resource_org_id,omitempty"`
	Attributes      map[string]any `json:"attributes,omitempty"`
}

// DecisionCode says which step of resolution produced a decision.
type DecisionCode string

const (
	// AllowOverride means a resource-specific override allowed the request.
	AllowOverride DecisionCode = "allow_override"

	// AllowGrant means a role grant allowed the request.
	AllowGrant DecisionCode = "allow_grant"

	// DenyOverride means a resource-specific override denied the request.
	DenyOverride DecisionCode = "deny_override"

	// DenyGrant means a role grant explicitly denied the request.
	DenyGrant DecisionCode = "deny_grant"

	// DenyDefault means no applicable allow was found.
	DenyDefault DecisionCode = "deny_default"

	// DenyUnknownPermission means the resource type and action have no
	// catalog entry.
	DenyUnknownPermission DecisionCode = "deny_unknown_permission"

	// DenyError means resolution failed and the engine failed closed.
	DenyError DecisionCode = "deny_error"

	// DenyInvalidRequest means the request was missing required fields.
	DenyInvalidRequest DecisionCode = "deny_invalid_request"

	// Deny is the uniform code shown to callers by Decision.Public.
	Deny DecisionCode = "deny"
)

// Allowed reports whether the code is an allow.
func (c DecisionCode) Allowed() bool {
	return c == AllowOverride || c == AllowGrant
}

// Decision is the outcome of CheckPermission.
type Decision struct {
	Allowed    bool         `json:"allowed"`
	Code       DecisionCode `json:"code"`
	Reason     string       `json:"reason,omitempty"`
	Trace      []TraceEntry `json:"trace,omitempty"`
	Cached     bool         `json:"cached,omitempty"`
	EvalTimeNs int64        `json:"eval_time_ns"`
}

// Public returns the caller-facing view of d: denies collapse to a single
// code and the trace is dropped so policy and failure denials look the same.
func (d *Decision) Public() *Decision {
	if d.Allowed {
		return &Decision{Allowed: true, Code: d.Code, EvalTimeNs: d.EvalTimeNs}
	}
	return &Decision{Code: Deny, EvalTimeNs: d.EvalTimeNs}
}

// Trace phases.
const (
	PhaseRequest    = "request"
	PhasePermission = "permission"
	PhaseRoles      = "roles"
	PhaseOverride   = "override"
	PhaseGrant      = "grant"
	PhaseDefault    = "default"
	PhaseError      = "error"
)

// TraceEntry records one rule or step that shaped a decision.
type TraceEntry struct {
	Phase        string          `json:"phase"`
	RuleID       string          `json:"rule_id,omitempty"`
	RoleID       id.RoleID       `json:"role_id,omitzero"`
	PermissionID id.PermissionID `json:"permission_id,omitzero"`
	Detail       string          `json:"detail,omitempty"`
}

// PermissionSummary is one row of ListEffectivePermissions: a grant the
// subject reaches through its expanded role set.
type PermissionSummary struct {
	PermissionID   id.PermissionID         `json:"permission_id"`
	PermissionName string                  `json:"permission_name"`
	ResourceType   permission.ResourceType `json:"resource_type"`
	Action         permission.Action       `json:"action"`
	RoleID         id.RoleID               `json:"role_id"`
	RoleName       string                  `json:"role_name"`
	Scope          grant.Scope             `json:"scope"`
	IsGranted      bool                    `json:"is_granted"`
	Conditions     map[string]any          `json:"conditions,omitempty"`
	GrantID        id.GrantID              `json:"grant_id"`
}
