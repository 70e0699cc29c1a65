package api

// ──────────────────────────────────────────────────
// Check requests
// ──────────────────────────────────────────────────

// CheckRequest is the request body for an authorization check.
type CheckRequest struct {
	SubjectID    string         `json:"subject_id,omitempty" description:"User to check; defaults to the caller"`
	ResourceType string         `json:"resource_type" description:"Resource type (project, asset, ...)"`
	Action       string         `json:"action" description:"Action (read, update, ...)"`
	ResourceID   string         `json:"resource_id,omitempty" description:"Resource instance identifier"`
	Context      *CheckContext  `json:"context,omitempty" description:"Facts for scopes and conditions"`
}

// CheckContext carries the facts scope and condition evaluation uses.
type CheckContext struct {
	SubjectOrgID    string         `json:"subject_org_id,omitempty" description:"Organization of the subject"`
	ResourceOwnerID string         `json:"resource_owner_id,omitempty" description:"Owner of the resource"`
	ResourceOrgID   string         `json:"resource_org_id,omitempty" description:"Organization of the resource"`
	Attributes      map[string]any `json:"attributes,omitempty" description:"Additional scalar attributes"`
}

// BatchCheckRequest contains multiple checks.
type BatchCheckRequest struct {
	Checks []CheckRequest `json:"checks" description:"List of authorization checks"`
}

// EffectivePermissionsRequest holds query parameters for listing a
// subject's effective permissions.
type EffectivePermissionsRequest struct {
	ResourceType string `query:"resource_type" description:"Filter by resource type"`
}

// ──────────────────────────────────────────────────
// Role requests
// ──────────────────────────────────────────────────

// CreateRoleRequest is the body for creating a role.
type CreateRoleRequest struct {
	Name           string         `json:"name" description:"Unique role name"`
	DisplayName    string         `json:"display_name,omitempty" description:"Human-readable name"`
	Description    string         `json:"description,omitempty" description:"Human-readable description"`
	RoleType       string         `json:"role_type,omitempty" description:"system, custom or organization"`
	ParentID       string         `json:"parent_id,omitempty" description:"Parent role ID for inheritance"`
	OrganizationID string         `json:"organization_id,omitempty" description:"Owning organization"`
	Metadata       map[string]any `json:"metadata,omitempty" description:"Custom metadata"`
}

// UpdateRoleRequest is the body for updating a role.
type UpdateRoleRequest struct {
	DisplayName *string        `json:"display_name,omitempty" description:"Human-readable name"`
	Description *string        `json:"description,omitempty" description:"Human-readable description"`
	Metadata    map[string]any `json:"metadata,omitempty" description:"Custom metadata"`
}

// ReparentRoleRequest moves a role in the hierarchy.
type ReparentRoleRequest struct {
	ParentID string `json:"parent_id" description:"New parent role ID; empty makes the role a root"`
}

// GetRoleRequest is the path parameter for getting a role.
type GetRoleRequest struct {
	RoleID string `path:"roleId" description:"Role ID"`
}

// ListRolesRequest holds query parameters for listing roles.
type ListRolesRequest struct {
	RoleType string `query:"role_type" description:"Filter by role type"`
	Active   string `query:"active" description:"Filter by active status (true/false)"`
	Search   string `query:"search" description:"Search by name"`
	Limit    int    `query:"limit" description:"Maximum results (default: 50)"`
	Offset   int    `query:"offset" description:"Results to skip"`
}

// ──────────────────────────────────────────────────
// Grant requests
// ──────────────────────────────────────────────────

// GrantPermissionRequest is the body for granting a permission to a role.
type GrantPermissionRequest struct {
	PermissionID string         `json:"permission_id" description:"Permission ID"`
	Scope        string         `json:"scope,omitempty" description:"own, organization or all (default)"`
	Conditions   map[string]any `json:"conditions,omitempty" description:"Exact-match scalar conditions"`
	Deny         bool           `json:"deny,omitempty" description:"Record an explicit deny"`
	ExpiresAt    string         `json:"expires_at,omitempty" description:"Expiration time (RFC3339)"`
}

// ListGrantsRequest holds query parameters for listing a role's grants.
type ListGrantsRequest struct {
	IncludeExpired bool `query:"include_expired" description:"Include superseded and expired grants"`
}

// ──────────────────────────────────────────────────
// Permission requests
// ──────────────────────────────────────────────────

// CreatePermissionRequest is the body for creating a permission.
type CreatePermissionRequest struct {
	Name         string         `json:"name,omitempty" description:"Permission name (default: resource_type.action)"`
	ResourceType string         `json:"resource_type" description:"Resource type"`
	Action       string         `json:"action" description:"Action"`
	Description  string         `json:"description,omitempty" description:"Human-readable description"`
	Category     string         `json:"category,omitempty" description:"Grouping for administration"`
	Metadata     map[string]any `json:"metadata,omitempty" description:"Custom metadata"`
}

// GetPermissionRequest is the path parameter for getting a permission.
type GetPermissionRequest struct {
	PermissionID string `path:"permissionId" description:"Permission ID"`
}

// ListPermissionsRequest holds query parameters.
type ListPermissionsRequest struct {
	ResourceType string `query:"resource_type" description:"Filter by resource type"`
	Action       string `query:"action" description:"Filter by action"`
	Category     string `query:"category" description:"Filter by category"`
	Search       string `query:"search" description:"Search by name"`
	Limit        int    `query:"limit" description:"Maximum results"`
	Offset       int    `query:"offset" description:"Results to skip"`
}

// ──────────────────────────────────────────────────
// Assignment requests
// ──────────────────────────────────────────────────

// AssignRoleRequest is the body for assigning a role to a user.
type AssignRoleRequest struct {
	UserID    string `json:"user_id" description:"User identifier"`
	RoleID    string `json:"role_id" description:"Role ID to assign"`
	Reason    string `json:"reason,omitempty" description:"Why the role was assigned"`
	ExpiresAt string `json:"expires_at,omitempty" description:"Expiration time (RFC3339)"`
}

// UserRolesRequest is the path parameter for a user's roles.
type UserRolesRequest struct {
	UserID string `path:"userId" description:"User identifier"`
}

// RevokeRoleRequest is the path parameters for revoking a role.
type RevokeRoleRequest struct {
	UserID string `path:"userId" description:"User identifier"`
	RoleID string `path:"roleId" description:"Role ID"`
}

// ──────────────────────────────────────────────────
// Override requests
// ──────────────────────────────────────────────────

// SetOverrideRequest is the body for setting a resource override.
type SetOverrideRequest struct {
	ResourceType string         `json:"resource_type" description:"Resource type"`
	ResourceID   string         `json:"resource_id" description:"Resource instance identifier"`
	Action       string         `json:"action" description:"Action"`
	SubjectType  string         `json:"subject_type" description:"user or role"`
	SubjectID    string         `json:"subject_id" description:"User ID or role ID"`
	Deny         bool           `json:"deny,omitempty" description:"Deny instead of allow"`
	Conditions   map[string]any `json:"conditions,omitempty" description:"Exact-match scalar conditions"`
	ExpiresAt    string         `json:"expires_at,omitempty" description:"Expiration time (RFC3339)"`
}

// ListOverridesRequest holds query parameters.
type ListOverridesRequest struct {
	ResourceType string `query:"resource_type" description:"Filter by resource type"`
	ResourceID   string `query:"resource_id" description:"Filter by resource ID"`
	SubjectType  string `query:"subject_type" description:"Filter by subject type"`
	SubjectID    string `query:"subject_id" description:"Filter by subject ID"`
	Limit        int    `query:"limit" description:"Maximum results"`
	Offset       int    `query:"offset" description:"Results to skip"`
}

// GetOverrideRequest is the path parameter for an override.
type GetOverrideRequest struct {
	OverrideID string `path:"overrideId" description:"Override ID"`
}

// ──────────────────────────────────────────────────
// Audit requests
// ──────────────────────────────────────────────────

// ListAuditRequest holds query parameters for querying the audit trail.
type ListAuditRequest struct {
	Action       string `query:"action" description:"Filter by action (check, role.assign, ...)"`
	SubjectID    string `query:"subject_id" description:"Filter by subject ID"`
	ResourceType string `query:"resource_type" description:"Filter by resource type"`
	ResourceID   string `query:"resource_id" description:"Filter by resource ID"`
	Success      string `query:"success" description:"Filter by success (true/false)"`
	After        string `query:"after" description:"After timestamp (RFC3339)"`
	Before       string `query:"before" description:"Before timestamp (RFC3339)"`
	Limit        int    `query:"limit" description:"Maximum results"`
	Offset       int    `query:"offset" description:"Results to skip"`
}
