// Package plugin defines the plugin system for Bastion.
// Plugins are notified of lifecycle events (check performed, role created,
// grant set, override removed, etc.) and can react with logging, metrics
// or tracing.
//
// Each lifecycle hook is a separate interface so plugins opt in only
// to the events they care about.
package plugin

import (
	"context"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/grant"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/override"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/role"
)

// Plugin is the base interface all plugins must implement.
type Plugin interface {
	// Name returns a unique human-readable name for the plugin.
	Name() string
}

// ──────────────────────────────────────────────────
// Check lifecycle hooks
// ──────────────────────────────────────────────────

// BeforeCheck is called before a fresh resolution. Cache hits skip it.
// The req parameter is *bastion.CheckRequest (passed as any to avoid an
// import cycle).
type BeforeCheck interface {
	OnBeforeCheck(ctx context.Context, req any) error
}

// AfterCheck is called after a fresh resolution.
// The req parameter is *bastion.CheckRequest; decision is *bastion.Decision.
type AfterCheck interface {
	OnAfterCheck(ctx context.Context, req, decision any) error
}

// ──────────────────────────────────────────────────
// Role lifecycle hooks
// ──────────────────────────────────────────────────

// RoleCreated is called after a role is created.
type RoleCreated interface {
	OnRoleCreated(ctx context.Context, r *role.Role) error
}

// RoleUpdated is called after a role is updated, reparented, activated or
// deactivated.
type RoleUpdated interface {
	OnRoleUpdated(ctx context.Context, r *role.Role) error
}

// RoleDeleted is called after a role is deleted.
type RoleDeleted interface {
	OnRoleDeleted(ctx context.Context, roleID id.RoleID) error
}

// ──────────────────────────────────────────────────
// Catalog lifecycle hooks
// ──────────────────────────────────────────────────

// PermissionCreated is called after a permission is created.
type PermissionCreated interface {
	OnPermissionCreated(ctx context.Context, p *permission.Permission) error
}

// PermissionDeleted is called after a permission is deleted.
type PermissionDeleted interface {
	OnPermissionDeleted(ctx context.Context, permID id.PermissionID) error
}

// ──────────────────────────────────────────────────
// Assignment lifecycle hooks
// ──────────────────────────────────────────────────

// RoleAssigned is called after a role is assigned to a user.
type RoleAssigned interface {
	OnRoleAssigned(ctx context.Context, a *assignment.Assignment) error
}

// RoleRevoked is called for each assignment deactivated by a revocation.
type RoleRevoked interface {
	OnRoleRevoked(ctx context.Context, a *assignment.Assignment) error
}

// ──────────────────────────────────────────────────
// Grant and override lifecycle hooks
// ──────────────────────────────────────────────────

// GrantSet is called after a grant or explicit deny is recorded on a role.
type GrantSet interface {
	OnGrantSet(ctx context.Context, g *grant.Grant) error
}

// GrantRevoked is called after a grant is deleted.
type GrantRevoked interface {
	OnGrantRevoked(ctx context.Context, grantID id.GrantID) error
}

// OverrideSet is called after a resource override is created or replaced.
type OverrideSet interface {
	OnOverrideSet(ctx context.Context, o *override.Override) error
}

// OverrideRemoved is called after a resource override is deleted.
type OverrideRemoved interface {
	OnOverrideRemoved(ctx context.Context, ovrID id.OverrideID) error
}

// ──────────────────────────────────────────────────
// Shutdown hook
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
