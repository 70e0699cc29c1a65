// Package assignment defines the user role Assignment entity.
package assignment

import (
	"time"

	"github.com/xraph/bastion/id"
)

// Assignment links a user to a role. It is effective only while IsActive
// is set and ExpiresAt is unset or in the future. Expiry is evaluated at
// read time; no sweep is required.
type Assignment struct {
	ID         id.AssignmentID `json:"id" db:"id"`
	UserID     string          `json:"user_id" db:"user_id"`
	RoleID     id.RoleID       `json:"role_id" db:"role_id"`
	AssignedBy string          `json:"assigned_by,omitempty" db:"assigned_by"`
	Reason     string          `json:"reason,omitempty" db:"reason"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty" db:"expires_at"`
	IsActive   bool            `json:"is_active" db:"is_active"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// EffectiveAt reports whether the assignment participates in resolution
// at time t.
func (a *Assignment) EffectiveAt(t time.Time) bool {
	return a.IsActive && (a.ExpiresAt == nil || a.ExpiresAt.After(t))
}

// ListFilter contains filters for listing assignments.
type ListFilter struct {
	UserID string     `json:"user_id,omitempty"`
	RoleID *id.RoleID `json:"role_id,omitempty"`
	// ActiveAt keeps only assignments effective at the given instant.
	ActiveAt *time.Time `json:"active_at,omitempty"`
	Limit    int        `json:"limit,omitempty"`
	Offset   int        `json:"offset,omitempty"`
}
