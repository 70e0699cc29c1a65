package mongo

import (
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
	ID              string         `grove:"id,pk"           bson:"_id"`
	Name            string         `grove:"name"            bson:"name"`
	DisplayName     string         `grove:"display_name"    bson:"display_name"`
	Description     string         `grove:"description"     bson:"description"`
	RoleType        string         `grove:"role_type"       bson:"role_type"`
	ParentID        *string        `grove:"parent_id"       bson:"parent_id,omitempty"`
	Level           int            `grove:"level"           bson:"level"`
	OrganizationID  string         `grove:"organization_id" bson:"organization_id"`
	IsActive        bool           `grove:"is_active"       bson:"is_active"`
	IsSystem        bool           `grove:"is_system"       bson:"is_system"`
	Metadata        map[string]any `grove:"metadata"        bson:"metadata,omitempty"`
	CreatedAt       time.Time      `grove:"created_at"      bson:"created_at"`
	UpdatedAt       time.Time      `grove:"updated_at"      bson:"updated_at"`
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
	ID              string         `grove:"id,pk"         bson:"_id"`
	Name            string         `grove:"name"          bson:"name"`
	Description     string         `grove:"description"   bson:"description"`
	ResourceType    string         `grove:"resource_type" bson:"resource_type"`
	Action          string         `grove:"action"        bson:"action"`
	Category        string         `grove:"category"      bson:"category"`
	IsSystem        bool           `grove:"is_system"     bson:"is_system"`
	Metadata        map[string]any `grove:"metadata"      bson:"metadata,omitempty"`
	CreatedAt       time.Time      `grove:"created_at"    bson:"created_at"`
	UpdatedAt       time.Time      `grove:"updated_at"    bson:"updated_at"`
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
	ID              string     `grove:"id,pk"       bson:"_id"`
	UserID          string     `grove:"user_id"     bson:"user_id"`
	RoleID          string     `grove:"role_id"     bson:"role_id"`
	AssignedBy      string     `grove:"assigned_by" bson:"assigned_by"`
	Reason          string     `grove:"reason"      bson:"reason"`
	ExpiresAt       *time.Time `grove:"expires_at"  bson:"expires_at"`
	IsActive        bool       `grove:"is_active"   bson:"is_active"`
	CreatedAt       time.Time  `grove:"created_at"  bson:"created_at"`
	UpdatedAt       time.Time  `grove:"updated_at"  bson:"updated_at"`
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
	ID              string         `grove:"id,pk"         bson:"_id"`
	RoleID          string         `grove:"role_id"       bson:"role_id"`
	PermissionID    string         `grove:"permission_id" bson:"permission_id"`
	Scope           string         `grove:"scope"         bson:"scope"`
	Conditions      map[string]any `grove:"conditions"    bson:"conditions,omitempty"`
	IsGranted       bool           `grove:"is_granted"    bson:"is_granted"`
	ExpiresAt       *time.Time     `grove:"expires_at"    bson:"expires_at"`
	GrantedBy       string         `grove:"granted_by"    bson:"granted_by"`
	CreatedAt       time.Time      `grove:"created_at"    bson:"created_at"`
	UpdatedAt       time.Time      `grove:"updated_at"    bson:"updated_at"`
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
	ID              string         `grove:"id,pk"         bson:"_id"`
	ResourceType    string         `grove:"resource_type" bson:"resource_type"`
	ResourceID      string         `grove:"resource_id"   bson:"resource_id"`
	PermissionID    string         `grove:"permission_id" bson:"permission_id"`
	SubjectType     string         `grove:"subject_type"  bson:"subject_type"`
	SubjectID       string         `grove:"subject_id"    bson:"subject_id"`
	IsGranted       bool           `grove:"is_granted"    bson:"is_granted"`
	Conditions      map[string]any `grove:"conditions"    bson:"conditions,omitempty"`
	ExpiresAt       *time.Time     `grove:"expires_at"    bson:"expires_at"`
	CreatedBy       string         `grove:"created_by"    bson:"created_by"`
	CreatedAt       time.Time      `grove:"created_at"    bson:"created_at"`
	UpdatedAt       time.Time      `grove:"updated_at"    bson:"updated_at"`
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
	ID              string         `grove:"id,pk"         bson:"_id"`
	Action          string         `grove:"action"        bson:"action"`
	ResourceType    string         `grove:"resource_type" bson:"resource_type"`
	ResourceID      string         `grove:"resource_id"   bson:"resource_id"`
	SubjectType     string         `grove:"subject_type"  bson:"subject_type"`
	SubjectID       string         `grove:"subject_id"    bson:"subject_id"`
	PermissionID    *string        `grove:"permission_id" bson:"permission_id"`
	RoleID          *string        `grove:"role_id"       bson:"role_id"`
	PerformedBy     string         `grove:"performed_by"  bson:"performed_by"`
	IPAddress       string         `grove:"ip_address"    bson:"ip_address"`
	UserAgent       string         `grove:"user_agent"    bson:"user_agent"`
	Success         bool           `grove:"success"       bson:"success"`
	Allowed         bool           `grove:"allowed"       bson:"allowed"`
	Decision        string         `grove:"decision"      bson:"decision"`
	Details         map[string]any `grove:"details"       bson:"details,omitempty"`
	ErrorMessage    string         `grove:"error_message" bson:"error_message"`
	CreatedAt       time.Time      `grove:"created_at"    bson:"created_at"`
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
