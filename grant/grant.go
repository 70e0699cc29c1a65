// Package grant defines the RolePermissionGrant entity. A grant links a
// role to a permission with a scope, optional conditions and a polarity:
// IsGranted=false is an explicit deny.
package grant

import (
	"time"

	"github.com/xraph/bastion/id"
)

// Scope narrows where a grant applies.
type Scope string

// Grant scopes.
const (
	ScopeOwn          Scope = "own"
	ScopeOrganization Scope = "organization"
	ScopeAll          Scope = "all"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopeOwn || s == ScopeOrganization || s == ScopeAll
}

// Grant is a role permission rule. Several grants for the same role and
// permission may exist over time but only one per scope is effective at
// any instant.
type Grant struct {
	ID           id.GrantID      `json:"id" db:"id"`
	RoleID       id.RoleID       `json:"role_id" db:"role_id"`
	PermissionID id.PermissionID `json:"permission_id" db:"permission_id"`
	Scope        Scope           `json:"scope" db:"scope"`
	Conditions   map[string]any  `json:"conditions,omitempty" db:"conditions"`
	IsGranted    bool            `json:"is_granted" db:"is_granted"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty" db:"expires_at"`
	GrantedBy    string          `json:"granted_by,omitempty" db:"granted_by"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// EffectiveAt reports whether the grant participates in resolution at t.
func (g *Grant) EffectiveAt(t time.Time) bool {
	return g.ExpiresAt == nil || g.ExpiresAt.After(t)
}

// ListFilter contains filters for listing grants.
type ListFilter struct {
	RoleID       *id.RoleID       `json:"role_id,omitempty"`
	PermissionID *id.PermissionID `json:"permission_id,omitempty"`
	Scope        Scope            `json:"scope,omitempty"`
	ActiveAt     *time.Time       `json:"active_at,omitempty"`
	Limit        int              `json:"limit,omitempty"`
	Offset       int              `json:"offset,omitempty"`
}
