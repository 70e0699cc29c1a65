// Package metrics is a Bastion plugin that exports decision and mutation
// counters to Prometheus.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/grant"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/override"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/plugin"
	"github.com/xraph/bastion/role"
)

// Compile-time hook checks.
var (
	_ plugin.AfterCheck        = (*Plugin)(nil)
	_ plugin.RoleCreated       = (*Plugin)(nil)
	_ plugin.RoleUpdated       = (*Plugin)(nil)
	_ plugin.RoleDeleted       = (*Plugin)(nil)
	_ plugin.PermissionCreated = (*Plugin)(nil)
	_ plugin.PermissionDeleted = (*Plugin)(nil)
	_ plugin.RoleAssigned      = (*Plugin)(nil)
	_ plugin.RoleRevoked       = (*Plugin)(nil)
	_ plugin.GrantSet          = (*Plugin)(nil)
	_ plugin.GrantRevoked      = (*Plugin)(nil)
	_ plugin.OverrideSet       = (*Plugin)(nil)
	_ plugin.OverrideRemoved   = (*Plugin)(nil)
)

// Plugin records Prometheus metrics for fresh decisions and mutations.
type Plugin struct {
	decisions *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	mutations *prometheus.CounterVec
}

// New registers the collectors against reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) (*Plugin, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Plugin{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bastion",
			Name:      "decisions_total",
			Help:      "Fresh authorization decisions by resource type, action and code.",
		}, []string{"resource_type", "action", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bastion",
			Name:      "decision_duration_seconds",
			Help:      "Time spent resolving fresh authorization decisions.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"resource_type"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bastion",
			Name:      "mutations_total",
			Help:      "Administrative writes by kind.",
		}, []string{"kind"}),
	}
	for _, c := range []prometheus.Collector{p.decisions, p.duration, p.mutations} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Name implements plugin.Plugin.
func (p *Plugin) Name() string { return "prometheus-metrics" }

// OnAfterCheck counts the decision and observes its latency.
func (p *Plugin) OnAfterCheck(_ context.Context, req, decision any) error {
	r, ok := req.(*bastion.CheckRequest)
	if !ok {
		return nil
	}
	d, ok := decision.(*bastion.Decision)
	if !ok {
		return nil
	}
	p.decisions.WithLabelValues(string(r.ResourceType), string(r.Action), string(d.Code)).Inc()
	p.duration.WithLabelValues(string(r.ResourceType)).Observe(time.Duration(d.EvalTimeNs).Seconds())
	return nil
}

func (p *Plugin) count(kind string) error {
	p.mutations.WithLabelValues(kind).Inc()
	return nil
}

// OnRoleCreated implements plugin.RoleCreated.
func (p *Plugin) OnRoleCreated(context.Context, *role.Role) error { return p.count("role_created") }

// OnRoleUpdated implements plugin.RoleUpdated.
func (p *Plugin) OnRoleUpdated(context.Context, *role.Role) error { return p.count("role_updated") }

// OnRoleDeleted implements plugin.RoleDeleted.
func (p *Plugin) OnRoleDeleted(context.Context, id.RoleID) error { return p.count("role_deleted") }

// OnPermissionCreated implements plugin.PermissionCreated.
func (p *Plugin) OnPermissionCreated(context.Context, *permission.Permission) error {
	return p.count("permission_created")
}

// OnPermissionDeleted implements plugin.PermissionDeleted.
func (p *Plugin) OnPermissionDeleted(context.Context, id.PermissionID) error {
	return p.count("permission_deleted")
}

// OnRoleAssigned implements plugin.RoleAssigned.
func (p *Plugin) OnRoleAssigned(context.Context, *assignment.Assignment) error {
	return p.count("role_assigned")
}

// OnRoleRevoked implements plugin.RoleRevoked.
func (p *Plugin) OnRoleRevoked(context.Context, *assignment.Assignment) error {
	return p.count("role_revoked")
}

// OnGrantSet implements plugin.GrantSet.
func (p *Plugin) OnGrantSet(context.Context, *grant.Grant) error { return p.count("grant_set") }

// OnGrantRevoked implements plugin.GrantRevoked.
func (p *Plugin) OnGrantRevoked(context.Context, id.GrantID) error { return p.count("grant_revoked") }

// OnOverrideSet implements plugin.OverrideSet.
func (p *Plugin) OnOverrideSet(context.Context, *override.Override) error {
	return p.count("override_set")
}

// OnOverrideRemoved implements plugin.OverrideRemoved.
func (p *Plugin) OnOverrideRemoved(context.Context, id.OverrideID) error {
	return p.count("override_removed")
}
