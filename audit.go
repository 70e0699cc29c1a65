package bastion

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/id"
)

// auditRecorder appends audit entries on a best-effort basis. Write
// failures are logged and never reach the caller.
type auditRecorder struct {
	store   audit.Store
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.RWMutex
	queue   chan *audit.Entry
	closed  bool
	done    chan struct{}
	started bool
}

func newAuditRecorder(s audit.Store, logger *slog.Logger, cfg Config) *auditRecorder {
	r := &auditRecorder{store: s, logger: logger, timeout: cfg.AuditTimeout}
	if cfg.AuditAsync {
		r.queue = make(chan *audit.Entry, cfg.AuditBuffer)
		r.done = make(chan struct{})
	}
	return r
}

// start launches the background writer in async mode.
func (r *auditRecorder) start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.queue == nil || r.started || r.closed {
		return
	}
	r.started = true
	go r.drain()
}

func (r *auditRecorder) drain() {
	defer close(r.done)
	for e := range r.queue {
		r.write(context.Background(), e)
	}
}

// stop closes the queue and waits for queued entries to be written or
// for ctx to end.
func (r *auditRecorder) stop(ctx context.Context) error {
	r.mu.Lock()
	if r.queue == nil || r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	started := r.started
	r.mu.Unlock()

	if !started {
		for e := range r.queue {
			r.write(ctx, e)
		}
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// record stores e inline, or enqueues it in async mode. A full queue drops
// the entry.
func (r *auditRecorder) record(ctx context.Context, e *audit.Entry) {
	if e.ID.IsNil() {
		e.ID = id.NewAuditID()
	}

	r.mu.RLock()
	if r.queue != nil && !r.closed {
		select {
		case r.queue <- e:
			r.mu.RUnlock()
			return
		default:
			r.mu.RUnlock()
			r.logDropped(e, "audit queue full")
			return
		}
	}
	r.mu.RUnlock()
	r.write(ctx, e)
}

func (r *auditRecorder) write(ctx context.Context, e *audit.Entry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.store.CreateAuditEntry(ctx, e); err != nil {
		r.logDropped(e, err.Error())
	}
}

func (r *auditRecorder) logDropped(e *audit.Entry, reason string) {
	r.logger.Error("bastion: audit write failed",
		slog.String("reason", reason),
		slog.String("action", e.Action),
		slog.String("subject_id", e.SubjectID),
		slog.String("resource_type", e.ResourceType),
		slog.String("resource_id", e.ResourceID),
		slog.String("decision", e.Decision),
		slog.Bool("allowed", e.Allowed),
	)
}

// checkEntry builds the audit entry for a fresh check.
func (e *Engine) checkEntry(ctx context.Context, req *CheckRequest, ev *evaluation) *audit.Entry {
	meta := RequestMetaFrom(ctx)
	performedBy := meta.PerformedBy
	if performedBy == "" {
		performedBy = req.SubjectID
	}
	entry := &audit.Entry{
		ID:           id.NewAuditID(),
		Action:       audit.Check,
		ResourceType: string(req.ResourceType),
		ResourceID:   req.ResourceID,
		SubjectType:  "user",
		SubjectID:    req.SubjectID,
		PermissionID: ev.permissionID,
		RoleID:       ev.roleID,
		PerformedBy:  performedBy,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		Success:      ev.err == nil,
		Allowed:      ev.decision.Allowed,
		Decision:     string(ev.decision.Code),
		Details: map[string]any{
			"request_action": string(req.Action),
			"reason":         ev.decision.Reason,
			"trace":          traceDetails(ev.decision.Trace),
		},
		CreatedAt: e.clock.Now(),
	}
	if ev.err != nil {
		entry.ErrorMessage = ev.err.Error()
	}
	return entry
}

// mutationEntry builds the audit entry for an administrative write.
func (e *Engine) mutationEntry(ctx context.Context, action string, details map[string]any) *audit.Entry {
	meta := RequestMetaFrom(ctx)
	return &audit.Entry{
		ID:          id.NewAuditID(),
		Action:      action,
		PerformedBy: meta.PerformedBy,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		Success:     true,
		Details:     details,
		CreatedAt:   e.clock.Now(),
	}
}

// traceDetails flattens a trace into plain maps so every backend can
// store it.
func traceDetails(trace []TraceEntry) []any {
	out := make([]any, 0, len(trace))
	for _, t := range trace {
		m := map[string]any{"phase": t.Phase}
		if t.RuleID != "" {
			m["rule_id"] = t.RuleID
		}
		if !t.RoleID.IsNil() {
			m["role_id"] = t.RoleID.String()
		}
		if !t.PermissionID.IsNil() {
			m["permission_id"] = t.PermissionID.String()
		}
		if t.Detail != "" {
			m["detail"] = t.Detail
		}
		out = append(out, m)
	}
	return out
}
