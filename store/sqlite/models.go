package sqlite

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/grant"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/override"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/role"
)

// ──────────────────────────────────────────────────
// Role model
// ──────────────────────────────────────────────────

type roleModel struct {
	grove.BaseModel `grove:"table:bastion_roles"`
	ID              string    `grove:"id,pk"`
	Name            string    `grove:"name,notnull"`
	DisplayName     string    `grove:"display_name"`
	Description     string    `grove:"description"`
	RoleType        string    `grove:"role_type,notnull"`
	ParentID        *string   `grove:"parent_id"`
	Level           int       `grove:"level,notnull"`
	OrganizationID  string    `grove:"organization_id"`
	IsActive        bool      `grove:"is_active,notnull"`
	IsSystem        bool      `grove:"is_system,notnull"`
	Metadata        jsonMap   `grove:"metadata"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
}

func roleToModel(r *role.Role) *roleModel {
	m := &roleModel{
		ID:             r.ID.String(),
		Name:           r.Name,
		DisplayName:    r.DisplayName,
		Description:    r.Description,
		RoleType:       string(r.Type),
		Level:          r.Level,
		OrganizationID: r.OrganizationID,
		IsActive:       r.IsActive,
		IsSystem:       r.IsSystem,
		Metadata:       r.Metadata,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.ParentID != nil {
		s := r.ParentID.String()
		m.ParentID = &s
	}
	return m
}

func roleFromModel(m *roleModel) *role.Role {
	rid, _ := id.ParseRoleID(m.ID) //nolint:errcheck // stored IDs are always valid
	r := &role.Role{
		ID:             rid,
		Name:           m.Name,
		DisplayName:    m.DisplayName,
		Description:    m.Description,
		Type:           role.Type(m.RoleType),
		Level:          m.Level,
		OrganizationID: m.OrganizationID,
		IsActive:       m.IsActive,
		IsSystem:       m.IsSystem,
		Metadata:       m.Metadata,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.ParentID != nil {
		pid, err := id.ParseRoleID(*m.ParentID)
		if err == nil {
			r.ParentID = &pid
		}
	}
	return r
}

// ──────────────────────────────────────────────────
// Permission model
// ──────────────────────────────────────────────────

type permissionModel struct {
	grove.BaseModel `grove:"table:bastion_permissions"`
	ID              string    `grove:"id,pk"`
	Name            string    `grove:"name,notnull"`
	Description     string    `grove:"description"`
	ResourceType    string    `grove:"resource_type,notnull"`
	Action          string    `grove:"action,notnull"`
	Category        string    `grove:"category"`
	IsSystem        bool      `grove:"is_system,notnull"`
	Metadata        jsonMap   `grove:"metadata"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
}

func permissionToModel(p *permission.Permission) *permissionModel {
	return &permissionModel{
		ID:           p.ID.String(),
		Name:         p.Name,
		Description:  p.Description,
		ResourceType: string(p.ResourceType),
		Action:       string(p.Action),
		Category:     p.Category,
		IsSystem:     p.IsSystem,
		Metadata:     p.Metadata,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func permissionFromModel(m *permissionModel) *permission.Permission {
	pid, _ := id.ParsePermissionID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &permission.Permission{
		ID:           pid,
		Name:         m.Name,
		Description:  m.Description,
		ResourceType: permission.ResourceType(m.ResourceType),
		Action:       permission.Action(m.Action),
		Category:     m.Category,
		IsSystem:     m.IsSystem,
		Metadata:     m.Metadata,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Assignment model
// ──────────────────────────────────────────────────

type assignmentModel struct {
	grove.BaseModel `grove:"table:bastion_user_roles"`
	ID              string     `grove:"id,pk"`
	UserID          string     `grove:"user_id,notnull"`
	RoleID          string     `grove:"role_id,notnull"`
	AssignedBy      string     `grove:"assigned_by"`
	Reason          string     `grove:"reason"`
	ExpiresAt       *time.Time `grove:"expires_at"`
	IsActive        bool       `grove:"is_active,notnull"`
	CreatedAt       time.Time  `grove:"created_at,notnull"`
	UpdatedAt       time.Time  `grove:"updated_at,notnull"`
}

func assignmentToModel(a *assignment.Assignment) *assignmentModel {
	return &assignmentModel{
		ID:         a.ID.String(),
		UserID:     a.UserID,
		RoleID:     a.RoleID.String(),
		AssignedBy: a.AssignedBy,
		Reason:     a.Reason,
		ExpiresAt:  a.ExpiresAt,
		IsActive:   a.IsActive,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

func assignmentFromModel(m *assignmentModel) *assignment.Assignment {
	aid, _ := id.ParseAssignmentID(m.ID) //nolint:errcheck // stored IDs are always valid
	rid, _ := id.ParseRoleID(m.RoleID)   //nolint:errcheck // stored IDs are always valid
	return &assignment.Assignment{
		ID:         aid,
		UserID:     m.UserID,
		RoleID:     rid,
		AssignedBy: m.AssignedBy,
		Reason:     m.Reason,
		ExpiresAt:  m.ExpiresAt,
		IsActive:   m.IsActive,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Grant model
// ──────────────────────────────────────────────────

type grantModel struct {
	grove.BaseModel `grove:"table:bastion_role_permissions"`
	ID              string     `grove:"id,pk"`
	RoleID          string     `grove:"role_id,notnull"`
	PermissionID    string     `grove:"permission_id,notnull"`
	Scope           string     `grove:"scope,notnull"`
	Conditions      jsonMap    `grove:"conditions"`
	IsGranted       bool       `grove:"is_granted,notnull"`
	ExpiresAt       *time.Time `grove:"expires_at"`
	GrantedBy       string     `grove:"granted_by"`
	CreatedAt       time.Time  `grove:"created_at,notnull"`
	UpdatedAt       time.Time  `grove:"updated_at,notnull"`
}

func grantToModel(g *grant.Grant) *grantModel {
	return &grantModel{
		ID:           g.ID.String(),
		RoleID:       g.RoleID.String(),
		PermissionID: g.PermissionID.String(),
		Scope:        string(g.Scope),
		Conditions:   g.Conditions,
		IsGranted:    g.IsGranted,
		ExpiresAt:    g.ExpiresAt,
		GrantedBy:    g.GrantedBy,
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
	}
}

func grantFromModel(m *grantModel) *grant.Grant {
	gid, _ := id.ParseGrantID(m.ID)                //nolint:errcheck // stored IDs are always valid
	rid, _ := id.ParseRoleID(m.RoleID)             //nolint:errcheck // stored IDs are always valid
	pid, _ := id.ParsePermissionID(m.PermissionID) //nolint:errcheck // stored IDs are always valid
	return &grant.Grant{
		ID:           gid,
		RoleID:       rid,
		PermissionID: pid,
		Scope:        grant.Scope(m.Scope),
		Conditions:   m.Conditions,
		IsGranted:    m.IsGranted,
		ExpiresAt:    m.ExpiresAt,
		GrantedBy:    m.GrantedBy,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Override model
// ──────────────────────────────────────────────────

type overrideModel struct {
	grove.BaseModel `grove:"table:bastion_resource_overrides"`
	ID              string     `grove:"id,pk"`
	ResourceType    string     `grove:"resource_type,notnull"`
	ResourceID      string     `grove:"resource_id,notnull"`
	PermissionID    string     `grove:"permission_id,notnull"`
	SubjectType     string     `grove:"subject_type,notnull"`
	SubjectID       string     `grove:"subject_id,notnull"`
	IsGranted       bool       `grove:"is_granted,notnull"`
	Conditions      jsonMap    `grove:"conditions"`
	ExpiresAt       *time.Time `grove:"expires_at"`
	CreatedBy       string     `grove:"created_by"`
	CreatedAt       time.Time  `grove:"created_at,notnull"`
	UpdatedAt       time.Time  `grove:"updated_at,notnull"`
}

func overrideToModel(o *override.Override) *overrideModel {
	return &overrideModel{
		ID:           o.ID.String(),
		ResourceType: string(o.ResourceType),
		ResourceID:   o.ResourceID,
		PermissionID: o.PermissionID.String(),
		SubjectType:  string(o.SubjectType),
		SubjectID:    o.SubjectID,
		IsGranted:    o.IsGranted,
		Conditions:   o.Conditions,
		ExpiresAt:    o.ExpiresAt,
		CreatedBy:    o.CreatedBy,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

func overrideFromModel(m *overrideModel) *override.Override {
	oid, _ := id.ParseOverrideID(m.ID)             //nolint:errcheck // stored IDs are always valid
	pid, _ := id.ParsePermissionID(m.PermissionID) //nolint:errcheck // stored IDs are always valid
	return &override.Override{
		ID:           oid,
		ResourceType: permission.ResourceType(m.ResourceType),
		ResourceID:   m.ResourceID,
		PermissionID: pid,
		SubjectType:  override.SubjectType(m.SubjectType),
		SubjectID:    m.SubjectID,
		IsGranted:    m.IsGranted,
		Conditions:   m.Conditions,
		ExpiresAt:    m.ExpiresAt,
		CreatedBy:    m.CreatedBy,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Audit model
// ──────────────────────────────────────────────────

type auditModel struct {
	grove.BaseModel `grove:"table:bastion_audit_log"`
	ID              string    `grove:"id,pk"`
	Action          string    `grove:"action,notnull"`
	ResourceType    string    `grove:"resource_type"`
	ResourceID      string    `grove:"resource_id"`
	SubjectType     string    `grove:"subject_type"`
	SubjectID       string    `grove:"subject_id"`
	PermissionID    *string   `grove:"permission_id"`
	RoleID          *string   `grove:"role_id"`
	PerformedBy     string    `grove:"performed_by"`
	IPAddress       string    `grove:"ip_address"`
	UserAgent       string    `grove:"user_agent"`
	Success         bool      `grove:"success,notnull"`
	Allowed         bool      `grove:"allowed,notnull"`
	Decision        string    `grove:"decision"`
	Details         jsonMap   `grove:"details"`
	ErrorMessage    string    `grove:"error_message"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
}

func auditToModel(e *audit.Entry) *auditModel {
	return &auditModel{
		ID:           e.ID.String(),
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		SubjectType:  e.SubjectType,
		SubjectID:    e.SubjectID,
		PermissionID: optionalID(e.PermissionID),
		RoleID:       optionalID(e.RoleID),
		PerformedBy:  e.PerformedBy,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		Success:      e.Success,
		Allowed:      e.Allowed,
		Decision:     e.Decision,
		Details:      e.Details,
		ErrorMessage: e.ErrorMessage,
		CreatedAt:    e.CreatedAt,
	}
}

func auditFromModel(m *auditModel) *audit.Entry {
	eid, _ := id.ParseAuditID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &audit.Entry{
		ID:           eid,
		Action:       m.Action,
		ResourceType: m.ResourceType,
		ResourceID:   m.ResourceID,
		SubjectType:  m.SubjectType,
		SubjectID:    m.SubjectID,
		PermissionID: parseOptionalID(m.PermissionID),
		RoleID:       parseOptionalID(m.RoleID),
		PerformedBy:  m.PerformedBy,
		IPAddress:    m.IPAddress,
		UserAgent:    m.UserAgent,
		Success:      m.Success,
		Allowed:      m.Allowed,
		Decision:     m.Decision,
		Details:      m.Details,
		ErrorMessage: m.ErrorMessage,
		CreatedAt:    m.CreatedAt,
	}
}

func optionalID(i id.ID) *string {
	if i.IsNil() {
		return nil
	}
	s := i.String()
	return &s
}

func parseOptionalID(s *string) id.ID {
	if s == nil {
		return id.Nil
	}
	parsed, err := id.Parse(*s)
	if err != nil {
		return id.Nil
	}
	return parsed
}

// jsonMap stores a map as JSON text. A nil map is written as "{}".
type jsonMap map[string]any

// Value implements driver.Valuer.
func (m jsonMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, fmt.Errorf("marshal json column: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *jsonMap) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into json column", src)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("unmarshal json column: %w", err)
	}
	if len(out) == 0 {
		out = nil
	}
	*m = out
	return nil
}
