package plugin

import (
	"context"
	"log/slog"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/grant"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/override"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/role"
)

// entry pairs a hook with the plugin name for logging.
type entry[H any] struct {
	name string
	hook H
}

// Registry holds registered plugins and dispatches lifecycle events.
// It type-caches plugins at registration time so emit calls iterate
// only over plugins implementing the relevant hook.
type Registry struct {
	plugins []Plugin
	logger  *slog.Logger

	beforeCheck       []entry[BeforeCheck]
	afterCheck        []entry[AfterCheck]
	roleCreated       []entry[RoleCreated]
	roleUpdated       []entry[RoleUpdated]
	roleDeleted       []entry[RoleDeleted]
	permissionCreated []entry[PermissionCreated]
	permissionDeleted []entry[PermissionDeleted]
	roleAssigned      []entry[RoleAssigned]
	roleRevoked       []entry[RoleRevoked]
	grantSet          []entry[GrantSet]
	grantRevoked      []entry[GrantRevoked]
	overrideSet       []entry[OverrideSet]
	overrideRemoved   []entry[OverrideRemoved]
	shutdown          []entry[Shutdown]
}

// NewRegistry creates a plugin registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// SetLogger replaces the logger used for hook errors.
func (r *Registry) SetLogger(logger *slog.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Register adds a plugin and type-asserts it into all applicable
// hook caches. Plugins are notified in registration order.
func (r *Registry) Register(p Plugin) {
	r.plugins = append(r.plugins, p)
	name := p.Name()

	cacheHook(&r.beforeCheck, name, p)
	cacheHook(&r.afterCheck, name, p)
	cacheHook(&r.roleCreated, name, p)
	cacheHook(&r.roleUpdated, name, p)
	cacheHook(&r.roleDeleted, name, p)
	cacheHook(&r.permissionCreated, name, p)
	cacheHook(&r.permissionDeleted, name, p)
	cacheHook(&r.roleAssigned, name, p)
	cacheHook(&r.roleRevoked, name, p)
	cacheHook(&r.grantSet, name, p)
	cacheHook(&r.grantRevoked, name, p)
	cacheHook(&r.overrideSet, name, p)
	cacheHook(&r.overrideRemoved, name, p)
	cacheHook(&r.shutdown, name, p)
}

func cacheHook[H any](list *[]entry[H], name string, p Plugin) {
	if h, ok := p.(H); ok {
		*list = append(*list, entry[H]{name, h})
	}
}

// Plugins returns all registered plugins.
func (r *Registry) Plugins() []Plugin { return r.plugins }

// emit calls fn for every cached hook and logs failures.
func emit[H any](r *Registry, hookName string, list []entry[H], fn func(H) error) {
	for _, e := range list {
		if err := fn(e.hook); err != nil {
			r.logHookError(hookName, e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Check event emitters
// ──────────────────────────────────────────────────

// EmitBeforeCheck notifies all plugins that implement BeforeCheck.
func (r *Registry) EmitBeforeCheck(ctx context.Context, req any) {
	emit(r, "OnBeforeCheck", r.beforeCheck, func(h BeforeCheck) error { return h.OnBeforeCheck(ctx, req) })
}

// EmitAfterCheck notifies all plugins that implement AfterCheck.
func (r *Registry) EmitAfterCheck(ctx context.Context, req, decision any) {
	emit(r, "OnAfterCheck", r.afterCheck, func(h AfterCheck) error { return h.OnAfterCheck(ctx, req, decision) })
}

// ──────────────────────────────────────────────────
// Role event emitters
// ──────────────────────────────────────────────────

// EmitRoleCreated notifies all plugins that implement RoleCreated.
func (r *Registry) EmitRoleCreated(ctx context.Context, rl *role.Role) {
	emit(r, "OnRoleCreated", r.roleCreated, func(h RoleCreated) error { return h.OnRoleCreated(ctx, rl) })
}

// EmitRoleUpdated notifies all plugins that implement RoleUpdated.
func (r *Registry) EmitRoleUpdated(ctx context.Context, rl *role.Role) {
	emit(r, "OnRoleUpdated", r.roleUpdated, func(h RoleUpdated) error { return h.OnRoleUpdated(ctx, rl) })
}

// EmitRoleDeleted notifies all plugins that implement RoleDeleted.
func (r *Registry) EmitRoleDeleted(ctx context.Context, roleID id.RoleID) {
	emit(r, "OnRoleDeleted", r.roleDeleted, func(h RoleDeleted) error { return h.OnRoleDeleted(ctx, roleID) })
}

// ──────────────────────────────────────────────────
// Catalog event emitters
// ──────────────────────────────────────────────────

// EmitPermissionCreated notifies all plugins that implement PermissionCreated.
func (r *Registry) EmitPermissionCreated(ctx context.Context, p *permission.Permission) {
	emit(r, "OnPermissionCreated", r.permissionCreated, func(h PermissionCreated) error { return h.OnPermissionCreated(ctx, p) })
}

// EmitPermissionDeleted notifies all plugins that implement PermissionDeleted.
func (r *Registry) EmitPermissionDeleted(ctx context.Context, permID id.PermissionID) {
	emit(r, "OnPermissionDeleted", r.permissionDeleted, func(h PermissionDeleted) error { return h.OnPermissionDeleted(ctx, permID) })
}

// ──────────────────────────────────────────────────
// Assignment event emitters
// ──────────────────────────────────────────────────

// EmitRoleAssigned notifies all plugins that implement RoleAssigned.
func (r *Registry) EmitRoleAssigned(ctx context.Context, a *assignment.Assignment) {
	emit(r, "OnRoleAssigned", r.roleAssigned, func(h RoleAssigned) error { return h.OnRoleAssigned(ctx, a) })
}

// EmitRoleRevoked notifies all plugins that implement RoleRevoked.
func (r *Registry) EmitRoleRevoked(ctx context.Context, a *assignment.Assignment) {
	emit(r, "OnRoleRevoked", r.roleRevoked, func(h RoleRevoked) error { return h.OnRoleRevoked(ctx, a) })
}

// ──────────────────────────────────────────────────
// Grant and override event emitters
// ──────────────────────────────────────────────────

// EmitGrantSet notifies all plugins that implement GrantSet.
func (r *Registry) EmitGrantSet(ctx context.Context, g *grant.Grant) {
	emit(r, "OnGrantSet", r.grantSet, func(h GrantSet) error { return h.OnGrantSet(ctx, g) })
}

// EmitGrantRevoked notifies all plugins that implement GrantRevoked.
func (r *Registry) EmitGrantRevoked(ctx context.Context, grantID id.GrantID) {
	emit(r, "OnGrantRevoked", r.grantRevoked, func(h GrantRevoked) error { return h.OnGrantRevoked(ctx, grantID) })
}

// EmitOverrideSet notifies all plugins that implement OverrideSet.
func (r *Registry) EmitOverrideSet(ctx context.Context, o *override.Override) {
	emit(r, "OnOverrideSet", r.overrideSet, func(h OverrideSet) error { return h.OnOverrideSet(ctx, o) })
}

// EmitOverrideRemoved notifies all plugins that implement OverrideRemoved.
func (r *Registry) EmitOverrideRemoved(ctx context.Context, ovrID id.OverrideID) {
	emit(r, "OnOverrideRemoved", r.overrideRemoved, func(h OverrideRemoved) error { return h.OnOverrideRemoved(ctx, ovrID) })
}

// ──────────────────────────────────────────────────
// Shutdown emitter
// ──────────────────────────────────────────────────

// EmitShutdown notifies all plugins that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(r, "OnShutdown", r.shutdown, func(h Shutdown) error { return h.OnShutdown(ctx) })
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Hook errors are never propagated.
func (r *Registry) logHookError(hook, pluginName string, err error) {
	r.logger.Warn("plugin hook error",
		slog.String("hook", hook),
		slog.String("plugin", pluginName),
		slog.String("error", err.Error()),
	)
}
