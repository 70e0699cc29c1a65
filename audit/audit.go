// Package audit defines the append-only AuditLogEntry entity.
package audit

import (
	"time"

	"github.com/xraph/bastion/id"
)

// Check is the action recorded for authorization decisions.
const Check = "check"

// Entry is one immutable audit record. For checks, Success reports whether
// resolution completed without an internal error; Allowed carries the
// decision itself.
type Entry struct {
	ID           id.AuditID      `json:"id" db:"id"`
	Action       string          `json:"action" db:"action"`
	ResourceType string          `json:"resource_type,omitempty" db:"resource_type"`
	ResourceID   string          `json:"resource_id,omitempty" db:"resource_id"`
	SubjectType  string          `json:"subject_type,omitempty" db:"subject_type"`
	SubjectID    string          `json:"subject_id,omitempty" db:"subject_id"`
	PermissionID id.PermissionID `json:"permission_id,omitempty" db:"permission_id"`
	RoleID       id.RoleID       `json:"role_id,omitempty" db:"role_id"`
	PerformedBy  string          `json:"performed_by,omitempty" db:"performed_by"`
	IPAddress    string          `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent    string          `json:"user_agent,omitempty" db:"user_agent"`
	Success      bool            `json:"success" db:"success"`
	Allowed      bool            `json:"allowed" db:"allowed"`
	Decision     string          `json:"decision,omitempty" db:"decision"`
	Details      map[string]any  `json:"details,omitempty" db:"details"`
	ErrorMessage string          `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// QueryFilter contains filters for querying audit entries.
type QueryFilter struct {
	Action       string     `json:"action,omitempty"`
	SubjectType  string     `json:"subject_type,omitempty"`
	SubjectID    string     `json:"subject_id,omitempty"`
	ResourceType string     `json:"resource_type,omitempty"`
	ResourceID   string     `json:"resource_id,omitempty"`
	Success      *bool      `json:"success,omitempty"`
	After        *time.Time `json:"after,omitempty"`
	Before       *time.Time `json:"before,omitempty"`
	Limit        int        `json:"limit,omitempty"`
	Offset       int        `json:"offset,omitempty"`
}
