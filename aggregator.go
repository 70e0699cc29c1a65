package bastion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/bastion/grant"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/override"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/store"
)

// evaluation is the outcome of one fresh resolution, with the facts the
// audit entry needs.
type evaluation struct {
	decision     *Decision
	permissionID id.PermissionID
	roleID       id.RoleID
	err          error
}

func (ev *evaluation) trace(phase, ruleID, detail string) {
	ev.decision.Trace = append(ev.decision.Trace, TraceEntry{
		Phase:        phase,
		RuleID:       ruleID,
		PermissionID: ev.permissionID,
		Detail:       detail,
	})
}

func (ev *evaluation) finish(code DecisionCode, reason string) *evaluation {
	ev.decision.Code = code
	ev.decision.Allowed = code.Allowed()
	ev.decision.Reason = reason
	return ev
}

func (ev *evaluation) fail(err error) *evaluation {
	ev.err = err
	ev.trace(PhaseError, "", err.Error())
	return ev.finish(DenyError, "resolution failed")
}

// evaluate resolves a validated request against the store. It never
// returns nil; failures become deny_error with an error trace entry.
func (e *Engine) evaluate(ctx context.Context, req *CheckRequest, rc *RequestContext) *evaluation {
	ev := &evaluation{decision: &Decision{}}

	ctx, cancel := context.WithTimeout(ctx, e.config.StoreTimeout)
	defer cancel()
	now := e.clock.Now()

	perm, err := e.store.GetPermissionFor(ctx, req.ResourceType, req.Action)
	if errors.Is(err, store.ErrNotFound) {
		e.logger.Warn("bastion: no permission for resource type and action",
			slog.String("resource_type", string(req.ResourceType)),
			slog.String("action", string(req.Action)),
		)
		ev.trace(PhasePermission, "", fmt.Sprintf("no permission %s.%s", req.ResourceType, req.Action))
		return ev.finish(DenyUnknownPermission, "unknown permission")
	}
	if err != nil {
		return ev.fail(fmt.Errorf("%s: %w", PhasePermission, err))
	}
	ev.permissionID = perm.ID

	var (
		roles     []*role.Role
		overrides []*override.Override
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		roles, err = e.subjectRoles(gctx, req.SubjectID, now)
		if err != nil {
			return fmt.Errorf("%s: %w", PhaseRoles, err)
		}
		return nil
	})
	if req.ResourceID != "" {
		g.Go(func() error {
			var err error
			overrides, err = e.store.ListActiveOverrides(gctx, req.ResourceType, req.ResourceID, perm.ID, now)
			if err != nil {
				return fmt.Errorf("%s: %w", PhaseOverride, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ev.fail(err)
	}

	roleSet := make(map[string]*role.Role, len(roles))
	roleIDs := make([]id.RoleID, 0, len(roles))
	for _, r := range roles {
		roleSet[r.ID.String()] = r
		roleIDs = append(roleIDs, r.ID)
	}

	// Resource-specific tier.
	if len(overrides) > 0 {
		if done := e.applyOverrides(ev, req, rc, overrides, roleSet, now); done {
			return ev
		}
	}

	// Role-grant tier.
	if len(roleIDs) == 0 {
		ev.trace(PhaseRoles, "", "subject has no active roles")
		return ev.finish(DenyDefault, "no matching allow rule")
	}
	grants, err := e.store.ListActiveGrants(ctx, roleIDs, perm.ID, now)
	if err != nil {
		return ev.fail(fmt.Errorf("%s: %w", PhaseGrant, err))
	}
	if done := e.applyGrants(ev, req, rc, grants, roleSet, now); done {
		return ev
	}

	ev.trace(PhaseDefault, "", "no applicable allow")
	return ev.finish(DenyDefault, "no matching allow rule")
}

// applyOverrides runs deny-overrides over the overrides that target the
// subject directly or one of its roles. It reports whether a terminal
// decision was reached.
func (e *Engine) applyOverrides(ev *evaluation, req *CheckRequest, rc *RequestContext, overrides []*override.Override, roleSet map[string]*role.Role, now time.Time) bool {
	matching := make([]*override.Override, 0, len(overrides))
	for _, o := range overrides {
		if !o.EffectiveAt(now) {
			continue
		}
		switch o.SubjectType {
		case override.SubjectUser:
			if o.SubjectID != req.SubjectID {
				continue
			}
		case override.SubjectRole:
			if _, ok := roleSet[o.SubjectID]; !ok {
				continue
			}
		default:
			continue
		}
		matching = append(matching, o)
	}

	// Overrides carry conditions but no scope; they bind one instance.
	for _, o := range matching {
		if o.IsGranted || !e.denyApplies(grant.ScopeAll, o.Conditions, req, rc) {
			continue
		}
		ev.roleID = overrideRole(o)
		ev.trace(PhaseOverride, o.ID.String(), fmt.Sprintf("deny override for %s %s", o.SubjectType, o.SubjectID))
		ev.finish(DenyOverride, "denied by resource override")
		return true
	}
	for _, o := range matching {
		if !o.IsGranted || !e.allowApplies(grant.ScopeAll, o.Conditions, req, rc) {
			continue
		}
		ev.roleID = overrideRole(o)
		ev.trace(PhaseOverride, o.ID.String(), fmt.Sprintf("allow override for %s %s", o.SubjectType, o.SubjectID))
		ev.finish(AllowOverride, "allowed by resource override")
		return true
	}
	return false
}

// applyGrants runs deny-overrides over the grants of the expanded role set.
func (e *Engine) applyGrants(ev *evaluation, req *CheckRequest, rc *RequestContext, grants []*grant.Grant, roleSet map[string]*role.Role, now time.Time) bool {
	matching := make([]*grant.Grant, 0, len(grants))
	for _, g := range grants {
		if !g.EffectiveAt(now) {
			continue
		}
		if _, ok := roleSet[g.RoleID.String()]; !ok {
			continue
		}
		matching = append(matching, g)
	}

	for _, g := range matching {
		if g.IsGranted || !e.denyApplies(g.Scope, g.Conditions, req, rc) {
			continue
		}
		ev.roleID = g.RoleID
		ev.traceGrant(g, roleSet, "deny")
		ev.finish(DenyGrant, "denied by role grant")
		return true
	}
	for _, g := range matching {
		if !g.IsGranted || !e.allowApplies(g.Scope, g.Conditions, req, rc) {
			continue
		}
		ev.roleID = g.RoleID
		ev.traceGrant(g, roleSet, "allow")
		ev.finish(AllowGrant, "allowed by role grant")
		return true
	}
	return false
}

func (ev *evaluation) traceGrant(g *grant.Grant, roleSet map[string]*role.Role, verb string) {
	name := g.RoleID.String()
	if r, ok := roleSet[g.RoleID.String()]; ok {
		name = r.Name
	}
	ev.decision.Trace = append(ev.decision.Trace, TraceEntry{
		Phase:        PhaseGrant,
		RuleID:       g.ID.String(),
		RoleID:       g.RoleID,
		PermissionID: ev.permissionID,
		Detail:       fmt.Sprintf("%s grant via role %s (scope %s)", verb, name, g.Scope),
	})
}

// allowApplies evaluates an allow rule. A malformed rule never allows.
func (e *Engine) allowApplies(scope grant.Scope, conditions map[string]any, req *CheckRequest, rc *RequestContext) bool {
	ok, err := e.evaluator.Evaluate(scope, conditions, req.SubjectID, rc)
	if err != nil {
		e.logger.Warn("bastion: malformed allow rule ignored", slog.String("error", err.Error()))
		return false
	}
	return ok
}

// denyApplies evaluates a deny rule. A malformed rule always denies.
func (e *Engine) denyApplies(scope grant.Scope, conditions map[string]any, req *CheckRequest, rc *RequestContext) bool {
	ok, err := e.evaluator.Evaluate(scope, conditions, req.SubjectID, rc)
	if err != nil {
		e.logger.Warn("bastion: malformed deny rule applied", slog.String("error", err.Error()))
		return true
	}
	return ok
}

func overrideRole(o *override.Override) id.RoleID {
	if o.SubjectType != override.SubjectRole {
		return id.Nil
	}
	rid, err := id.ParseRoleID(o.SubjectID)
	if err != nil {
		return id.Nil
	}
	return rid
}

// validateRequest returns a reason when req cannot be evaluated.
func validateRequest(req *CheckRequest) string {
	switch {
	case req.SubjectID == "":
		return "subject id is required"
	case !req.ResourceType.Valid():
		return fmt.Sprintf("unknown resource type %q", req.ResourceType)
	case !req.Action.Valid():
		return fmt.Sprintf("unknown action %q", req.Action)
	}
	return ""
}

// permissionFor is the permission lookup used by mutations.
func (e *Engine) permissionFor(ctx context.Context, rt permission.ResourceType, action permission.Action) (*permission.Permission, error) {
	p, err := e.store.GetPermissionFor(ctx, rt, action)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownPermission, rt, action)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return p, nil
}
