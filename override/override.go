// Package override defines the ResourcePermissionOverride entity: a rule
// bound to one concrete resource instance for one user or role. Overrides
// take precedence over role grants.
package override

import (
	"time"

	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/permission"
)

// SubjectType says whether an override targets a user or a role.
type SubjectType string

// Override subject types.
const (
	SubjectUser SubjectType = "user"
	SubjectRole SubjectType = "role"
)

// Valid reports whether st is a known subject type.
func (st SubjectType) Valid() bool {
	return st == SubjectUser || st == SubjectRole
}

// Override is a resource-specific allow or deny.
type Override struct {
	ID           id.OverrideID           `json:"id" db:"id"`
	ResourceType permission.ResourceType `json:"resource_type" db:"resource_type"`
	ResourceID   string                  `json:"resource_id" db:"resource_id"`
	PermissionID id.PermissionID         `json:"permission_id" db:"permission_id"`
	SubjectType  SubjectType             `json:"subject_type" db:"subject_type"`
	SubjectID    string                  `json:"subject_id" db:"subject_id"`
	IsGranted    bool                    `json:"is_granted" db:"is_granted"`
	Conditions   map[string]any          `json:"conditions,omitempty" db:"conditions"`
	ExpiresAt    *time.Time              `json:"expires_at,omitempty" db:"expires_at"`
	CreatedBy    string                  `json:"created_by,omitempty" db:"created_by"`
	CreatedAt    time.Time               `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at" db:"updated_at"`
}

// EffectiveAt reports whether the override participates in resolution at t.
func (o *Override) EffectiveAt(t time.Time) bool {
	return o.ExpiresAt == nil || o.ExpiresAt.After(t)
}

// ListFilter contains filters for listing overrides.
type ListFilter struct {
	ResourceType permission.ResourceType `json:"resource_type,omitempty"`
	ResourceID   string                  `json:"resource_id,omitempty"`
	PermissionID *id.PermissionID        `json:"permission_id,omitempty"`
	SubjectType  SubjectType             `json:"subject_type,omitempty"`
	SubjectID    string                  `json:"subject_id,omitempty"`
	ActiveAt     *time.Time              `json:"active_at,omitempty"`
	Limit        int                     `json:"limit,omitempty"`
	Offset       int                     `json:"offset,omitempty"`
}
