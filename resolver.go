package bastion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/store"
)

// subjectRoles returns the expanded role set of a subject: every role it
// holds through an effective assignment plus their active ancestors.
func (e *Engine) subjectRoles(ctx context.Context, subjectID string, now time.Time) ([]*role.Role, error) {
	assignments, err := e.store.ListActiveAssignments(ctx, subjectID, now)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	direct := make([]id.RoleID, 0, len(assignments))
	for _, a := range assignments {
		if a.EffectiveAt(now) {
			direct = append(direct, a.RoleID)
		}
	}
	return e.expandRoles(ctx, direct)
}

// expandRoles walks the parent chain of each directly held role and
// returns the deduplicated closure of active roles.
//
// A directly held role that is inactive or missing contributes nothing,
// not even its ancestors. An inactive ancestor is skipped but the walk
// continues above it. Each chain is cut after MaxRoleDepth steps so
// malformed data cannot loop.
func (e *Engine) expandRoles(ctx context.Context, direct []id.RoleID) ([]*role.Role, error) {
	seen := make(map[string]struct{}, len(direct)*2)
	result := make([]*role.Role, 0, len(direct)*2)

	for _, start := range direct {
		cur := start
		for depth := 0; ; depth++ {
			if depth > e.config.MaxRoleDepth {
				e.logger.Warn("bastion: role chain exceeds max depth",
					slog.String("role_id", start.String()),
					slog.Int("max_depth", e.config.MaxRoleDepth),
				)
				break
			}
			key := cur.String()
			if _, ok := seen[key]; ok {
				break
			}
			seen[key] = struct{}{}

			r, err := e.store.GetRole(ctx, cur)
			if errors.Is(err, store.ErrNotFound) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("get role %s: %w", cur, err)
			}
			if !r.IsActive && depth == 0 {
				break
			}
			if r.IsActive {
				result = append(result, r)
			}
			if r.ParentID == nil || r.ParentID.IsNil() {
				break
			}
			cur = *r.ParentID
		}
	}
	return result, nil
}

// descendantRoles returns roleID and every role below it, breadth first.
func (e *Engine) descendantRoles(ctx context.Context, roleID id.RoleID) ([]id.RoleID, error) {
	seen := map[string]struct{}{roleID.String(): {}}
	result := []id.RoleID{roleID}
	queue := []id.RoleID{roleID}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		children, err := e.store.ListChildRoles(ctx, cur)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			key := c.ID.String()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			result = append(result, c.ID)
			queue = append(queue, c.ID)
		}
	}
	return result, nil
}

// ancestorChain returns the ids on the parent chain of roleID, nearest
// first, bounded by MaxRoleDepth+1 steps. A revisited id reports a cycle.
func (e *Engine) ancestorChain(ctx context.Context, roleID id.RoleID) ([]id.RoleID, error) {
	var chain []id.RoleID
	seen := make(map[string]struct{})
	cur := roleID
	for range e.config.MaxRoleDepth + 1 {
		key := cur.String()
		if _, ok := seen[key]; ok {
			return nil, ErrCyclicRoleHierarchy
		}
		seen[key] = struct{}{}
		chain = append(chain, cur)

		r, err := e.store.GetRole(ctx, cur)
		if err != nil {
			return nil, err
		}
		if r.ParentID == nil || r.ParentID.IsNil() {
			return chain, nil
		}
		cur = *r.ParentID
	}
	return nil, ErrRoleDepthExceeded
}
