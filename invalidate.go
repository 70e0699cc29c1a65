package bastion

import (
	"context"
	"log/slog"

	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/permission"
)

// Invalidation runs after a committed write. Its failures are logged and
// never turn a committed write into an error.

func (e *Engine) invalidateSubject(ctx context.Context, subjectID string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.InvalidateSubject(ctx, subjectID); err != nil {
		e.logger.Error("bastion: invalidate subject failed",
			slog.String("subject_id", subjectID),
			slog.String("error", err.Error()),
		)
		e.invalidateAll(ctx)
	}
}

func (e *Engine) invalidateResource(ctx context.Context, rt permission.ResourceType, resourceID string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.InvalidateResource(ctx, rt, resourceID); err != nil {
		e.logger.Error("bastion: invalidate resource failed",
			slog.String("resource_type", string(rt)),
			slog.String("resource_id", resourceID),
			slog.String("error", err.Error()),
		)
		e.invalidateAll(ctx)
	}
}

func (e *Engine) invalidateAll(ctx context.Context) {
	if e.cache == nil {
		return
	}
	if err := e.cache.InvalidateAll(ctx); err != nil {
		e.logger.Error("bastion: invalidate all failed", slog.String("error", err.Error()))
	}
}

// invalidateRoleHolders drops cached decisions of every user assigned the
// role or one of its descendants, since those users inherit from it. When
// the holders cannot be listed the whole cache is dropped.
func (e *Engine) invalidateRoleHolders(ctx context.Context, roleID id.RoleID) {
	if e.cache == nil {
		return
	}
	roles, err := e.descendantRoles(ctx, roleID)
	if err != nil {
		e.logger.Warn("bastion: list descendant roles failed, dropping cache",
			slog.String("role_id", roleID.String()),
			slog.String("error", err.Error()),
		)
		e.invalidateAll(ctx)
		return
	}
	assignments, err := e.store.ListAssignmentsByRoles(ctx, roles)
	if err != nil {
		e.logger.Warn("bastion: list role holders failed, dropping cache",
			slog.String("role_id", roleID.String()),
			slog.String("error", err.Error()),
		)
		e.invalidateAll(ctx)
		return
	}
	seen := make(map[string]struct{}, len(assignments))
	for _, a := range assignments {
		if _, ok := seen[a.UserID]; ok {
			continue
		}
		seen[a.UserID] = struct{}{}
		e.invalidateSubject(ctx, a.UserID)
	}
}
