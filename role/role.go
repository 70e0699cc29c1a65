// Package role defines the Role entity and its store interface. Roles form
// a forest through single parent pointers.
package role

import (
	"time"

	"github.com/xraph/bastion/id"
)

// Type classifies a role.
type Type string

// Role types.
const (
	TypeSystem       Type = "system"
	TypeCustom       Type = "custom"
	TypeOrganization Type = "organization"
)

// Valid reports whether t is a known role type.
func (t Type) Valid() bool {
	return t == TypeSystem || t == TypeCustom || t == TypeOrganization
}

// Role is a named bundle of grants that can be assigned to users.
// Level is the cached depth in the hierarchy (0 for roots) and is
// recomputed whenever the role or an ancestor is reparented.
type Role struct {
	ID             id.RoleID      `json:"id" db:"id"`
	Name           string         `json:"name" db:"name"`
	DisplayName    string         `json:"display_name,omitempty" db:"display_name"`
	Description    string         `json:"description,omitempty" db:"description"`
	Type           Type           `json:"role_type" db:"role_type"`
	ParentID       *id.RoleID     `json:"parent_id,omitempty" db:"parent_id"`
	Level          int            `json:"level" db:"level"`
	OrganizationID string         `json:"organization_id,omitempty" db:"organization_id"`
	IsActive       bool           `json:"is_active" db:"is_active"`
	IsSystem       bool           `json:"is_system" db:"is_system"`
	Metadata       map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// ListFilter contains filters for listing roles.
type ListFilter struct {
	Type           Type       `json:"role_type,omitempty"`
	OrganizationID string     `json:"organization_id,omitempty"`
	IsSystem       *bool      `json:"is_system,omitempty"`
	IsActive       *bool      `json:"is_active,omitempty"`
	ParentID       *id.RoleID `json:"parent_id,omitempty"`
	Search         string     `json:"search,omitempty"`
	Limit          int        `json:"limit,omitempty"`
	Offset         int        `json:"offset,omitempty"`
}
