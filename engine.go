package bastion

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/plugin"
	"github.com/xraph/bastion/store"
)

// Engine is the permission service. It resolves decisions against the
// store, fronts them with an optional cache, audits every fresh
// resolution and invalidates the cache on every mutation.
type Engine struct {
	store     store.Store
	cache     Cache
	evaluator Evaluator
	clock     Clock
	plugins   *plugin.Registry
	logger    *slog.Logger
	config    Config
	audit     *auditRecorder
}

// NewEngine creates a new Bastion engine with the given options.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		evaluator: DefaultEvaluator(),
		clock:     SystemClock(),
		logger:    slog.Default(),
		config:    DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, errors.New("bastion: store is required")
	}
	if e.evaluator == nil {
		e.evaluator = DefaultEvaluator()
	}
	if e.clock == nil {
		e.clock = SystemClock()
	}
	if e.plugins != nil {
		e.plugins.SetLogger(e.logger)
	}
	e.config = e.config.withDefaults()
	e.audit = newAuditRecorder(e.store, e.logger, e.config)
	return e, nil
}

// Store returns the underlying composite store.
func (e *Engine) Store() store.Store { return e.store }

// Cache returns the decision cache (may be nil).
func (e *Engine) Cache() Cache { return e.cache }

// Plugins returns the plugin registry (may be nil).
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.config }

// Start launches the background audit writer when async audit is enabled.
func (e *Engine) Start(_ context.Context) error {
	e.audit.start()
	return nil
}

// Stop flushes queued audit entries and notifies plugins.
func (e *Engine) Stop(ctx context.Context) error {
	err := e.audit.stop(ctx)
	if e.plugins != nil {
		e.plugins.EmitShutdown(ctx)
	}
	if err != nil {
		return fmt.Errorf("bastion: flush audit: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Decisions
// ──────────────────────────────────────────────────

// CheckPermission decides whether req.SubjectID may perform req.Action on
// the resource. Not-found cases and store failures are denials, not
// errors; the only error is a nil request.
func (e *Engine) CheckPermission(ctx context.Context, req *CheckRequest) (*Decision, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}
	start := time.Now()

	if reason := validateRequest(req); reason != "" {
		ev := &evaluation{decision: &Decision{}}
		ev.trace(PhaseRequest, "", reason)
		ev.finish(DenyInvalidRequest, reason)
		ev.decision.EvalTimeNs = time.Since(start).Nanoseconds()
		e.audit.record(ctx, e.checkEntry(ctx, req, ev))
		return ev.decision, nil
	}

	rc := withScopeDefaults(ctx, req.Context)
	key, cacheable := cacheKeyFor(req, rc)

	// 1. Cache hit? Hits are not audited.
	if e.cache != nil && cacheable {
		cached, ok, err := e.cache.Get(ctx, key)
		if err != nil {
			e.logger.Warn("bastion: cache get failed", slog.String("key", key.String()), slog.String("error", err.Error()))
		} else if ok {
			cached.Cached = true
			cached.EvalTimeNs = time.Since(start).Nanoseconds()
			return cached, nil
		}
	}

	if e.plugins != nil {
		e.plugins.EmitBeforeCheck(ctx, req)
	}

	// 2. Resolve.
	ev := e.evaluate(ctx, req, rc)
	dec := ev.decision
	dec.EvalTimeNs = time.Since(start).Nanoseconds()

	// 3. Audit the fresh resolution.
	e.audit.record(ctx, e.checkEntry(ctx, req, ev))

	// 4. Cache. Failure denials are retried on the next call.
	if e.cache != nil && cacheable && ev.err == nil {
		if err := e.cache.Set(ctx, key, dec); err != nil {
			e.logger.Warn("bastion: cache set failed", slog.String("key", key.String()), slog.String("error", err.Error()))
		}
	}

	if e.plugins != nil {
		e.plugins.EmitAfterCheck(ctx, req, dec)
	}
	return dec, nil
}

// Enforce returns ErrAccessDenied when the check denies.
func (e *Engine) Enforce(ctx context.Context, req *CheckRequest) error {
	dec, err := e.CheckPermission(ctx, req)
	if err != nil {
		return err
	}
	if !dec.Allowed {
		return fmt.Errorf("%w: %s", ErrAccessDenied, dec.Code)
	}
	return nil
}

// Can is a shorthand for a check without request context.
func (e *Engine) Can(ctx context.Context, subjectID string, rt permission.ResourceType, action permission.Action, resourceID string) bool {
	dec, err := e.CheckPermission(ctx, &CheckRequest{
		SubjectID:    subjectID,
		ResourceType: rt,
		Action:       action,
		ResourceID:   resourceID,
	})
	return err == nil && dec.Allowed
}

// ListEffectivePermissions enumerates the grants reachable through the
// subject's expanded role set, optionally limited to one resource type.
// It is informational; decisions must go through CheckPermission.
func (e *Engine) ListEffectivePermissions(ctx context.Context, subjectID string, resourceType permission.ResourceType) ([]*PermissionSummary, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("%w: subject id is required", ErrInvalidRequest)
	}
	if resourceType != "" && !resourceType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidResourceType, resourceType)
	}
	ctx, cancel := context.WithTimeout(ctx, e.config.StoreTimeout)
	defer cancel()
	now := e.clock.Now()

	roles, err := e.subjectRoles(ctx, subjectID, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if len(roles) == 0 {
		return []*PermissionSummary{}, nil
	}
	roleIDs := make([]id.RoleID, 0, len(roles))
	roleNames := make(map[string]string, len(roles))
	for _, r := range roles {
		roleIDs = append(roleIDs, r.ID)
		roleNames[r.ID.String()] = r.Name
	}

	grants, err := e.store.ListActiveGrants(ctx, roleIDs, id.Nil, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	perms := make(map[string]*permission.Permission)
	out := make([]*PermissionSummary, 0, len(grants))
	for _, g := range grants {
		key := g.PermissionID.String()
		p, ok := perms[key]
		if !ok {
			p, err = e.store.GetPermission(ctx, g.PermissionID)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
			}
			perms[key] = p
		}
		if resourceType != "" && p.ResourceType != resourceType {
			continue
		}
		out = append(out, &PermissionSummary{
			PermissionID:   p.ID,
			PermissionName: p.Name,
			ResourceType:   p.ResourceType,
			Action:         p.Action,
			RoleID:         g.RoleID,
			RoleName:       roleNames[g.RoleID.String()],
			Scope:          g.Scope,
			IsGranted:      g.IsGranted,
			Conditions:     g.Conditions,
			GrantID:        g.ID,
		})
	}
	slices.SortFunc(out, func(a, b *PermissionSummary) int {
		return cmp.Or(
			cmp.Compare(a.PermissionName, b.PermissionName),
			cmp.Compare(a.RoleName, b.RoleName),
			cmp.Compare(a.GrantID.String(), b.GrantID.String()),
		)
	})
	return out, nil
}

// ──────────────────────────────────────────────────
// Audit and maintenance
// ──────────────────────────────────────────────────

// QueryAudit returns audit entries matching the filter, newest first, and
// the total count ignoring pagination.
func (e *Engine) QueryAudit(ctx context.Context, filter *audit.QueryFilter) ([]*audit.Entry, int64, error) {
	entries, err := e.store.ListAuditEntries(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("bastion: query audit: %w", err)
	}
	total, err := e.store.CountAuditEntries(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("bastion: count audit: %w", err)
	}
	return entries, total, nil
}

// PurgeAudit removes audit entries created before the given time.
func (e *Engine) PurgeAudit(ctx context.Context, before time.Time) (int64, error) {
	n, err := e.store.PurgeAuditEntries(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("bastion: purge audit: %w", err)
	}
	return n, nil
}

// PurgeExpiredAssignments removes assignments that have expired. Expired
// assignments never participate in decisions, so this only reclaims
// storage.
func (e *Engine) PurgeExpiredAssignments(ctx context.Context) (int64, error) {
	n, err := e.store.DeleteExpiredAssignments(ctx, e.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("bastion: purge assignments: %w", err)
	}
	return n, nil
}
