package bastion

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/xraph/bastion/grant"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/override"
	"github.com/xraph/bastion/permission"
)

// GrantInput describes a role grant. Scope defaults to all. IsGranted
// false records an explicit deny.
type GrantInput struct {
	RoleID       id.RoleID       `json:"role_id"`
	PermissionID id.PermissionID `json:"permission_id"`
	Scope        grant.Scope     `json:"scope,omitempty"`
	Conditions   map[string]any  `json:"conditions,omitempty"`
	IsGranted    bool            `json:"is_granted"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
}

// OverrideInput describes a resource-specific override.
type OverrideInput struct {
	ResourceType permission.ResourceType `json:"resource_type"`
	ResourceID   string                  `json:"resource_id"`
	Action       permission.Action       `json:"action"`
	SubjectType  override.SubjectType    `json:"subject_type"`
	SubjectID    string                  `json:"subject_id"`
	IsGranted    bool                    `json:"is_granted"`
	Conditions   map[string]any          `json:"conditions,omitempty"`
	ExpiresAt    *time.Time              `json:"expires_at,omitempty"`
}

// ──────────────────────────────────────────────────
// Role grants
// ──────────────────────────────────────────────────

// GrantPermissionToRole records a grant or explicit deny of a permission
// on a role. The currently effective grant with the same scope is
// superseded by expiring it now, so at most one is effective per scope.
// An identical effective grant is rejected.
func (e *Engine) GrantPermissionToRole(ctx context.Context, in GrantInput) (*grant.Grant, error) {
	if in.Scope == "" {
		in.Scope = grant.ScopeAll
	}
	if err := ValidateScope(in.Scope); err != nil {
		return nil, fmt.Errorf("bastion: grant permission: %w", err)
	}
	if err := ValidateConditions(in.Conditions); err != nil {
		return nil, fmt.Errorf("bastion: grant permission: %w", err)
	}
	now := e.clock.Now()
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return nil, fmt.Errorf("bastion: grant permission: %w: expiry is in the past", ErrInvalidRequest)
	}

	r, err := e.store.GetRole(ctx, in.RoleID)
	if err != nil {
		return nil, fmt.Errorf("bastion: grant permission: %w", storeErr(err, ErrRoleNotFound))
	}
	p, err := e.store.GetPermission(ctx, in.PermissionID)
	if err != nil {
		return nil, fmt.Errorf("bastion: grant permission: %w", storeErr(err, ErrPermissionNotFound))
	}

	current, err := e.store.ListActiveGrants(ctx, []id.RoleID{r.ID}, p.ID, now)
	if err != nil {
		return nil, fmt.Errorf("bastion: grant permission: %w: %w", ErrPersistence, err)
	}
	var superseded []*grant.Grant
	for _, g := range current {
		if g.Scope != in.Scope {
			continue
		}
		if g.IsGranted == in.IsGranted && conditionsEqual(g.Conditions, in.Conditions) && timesEqual(g.ExpiresAt, in.ExpiresAt) {
			return nil, fmt.Errorf("bastion: grant permission: %w: %s on %s", ErrDuplicateGrant, p.Name, r.Name)
		}
		superseded = append(superseded, g)
	}

	grantedBy := RequestMetaFrom(ctx).PerformedBy
	g := &grant.Grant{
		ID:           id.NewGrantID(),
		RoleID:       r.ID,
		PermissionID: p.ID,
		Scope:        in.Scope,
		Conditions:   maps.Clone(in.Conditions),
		IsGranted:    in.IsGranted,
		ExpiresAt:    copyTime(in.ExpiresAt),
		GrantedBy:    grantedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	for _, old := range superseded {
		expired := now
		old.ExpiresAt = &expired
		old.UpdatedAt = now
		if err := e.store.UpdateGrant(ctx, old); err != nil {
			e.invalidateRoleHolders(ctx, r.ID)
			return nil, fmt.Errorf("bastion: grant permission: supersede: %w", storeErr(err, ErrGrantNotFound))
		}
	}
	if err := e.store.CreateGrant(ctx, g); err != nil {
		if len(superseded) > 0 {
			e.invalidateRoleHolders(ctx, r.ID)
		}
		return nil, fmt.Errorf("bastion: grant permission: %w: %w", ErrPersistence, err)
	}

	e.invalidateRoleHolders(ctx, r.ID)
	details := map[string]any{
		"grant_id":   g.ID.String(),
		"permission": p.Name,
		"role_name":  r.Name,
		"scope":      string(g.Scope),
		"is_granted": g.IsGranted,
		"superseded": len(superseded),
	}
	entry := e.mutationEntry(ctx, "grant.set", details)
	entry.ResourceType = string(p.ResourceType)
	entry.PermissionID = p.ID
	entry.RoleID = r.ID
	e.audit.record(ctx, entry)
	if e.plugins != nil {
		e.plugins.EmitGrantSet(ctx, g)
	}
	return g, nil
}

// RevokeGrant deletes a grant.
func (e *Engine) RevokeGrant(ctx context.Context, grantID id.GrantID) error {
	g, err := e.store.GetGrant(ctx, grantID)
	if err != nil {
		return fmt.Errorf("bastion: revoke grant: %w", storeErr(err, ErrGrantNotFound))
	}
	if err := e.store.DeleteGrant(ctx, grantID); err != nil {
		return fmt.Errorf("bastion: revoke grant: %w", storeErr(err, ErrGrantNotFound))
	}

	e.invalidateRoleHolders(ctx, g.RoleID)
	entry := e.mutationEntry(ctx, "grant.revoke", map[string]any{"grant_id": g.ID.String()})
	entry.PermissionID = g.PermissionID
	entry.RoleID = g.RoleID
	e.audit.record(ctx, entry)
	if e.plugins != nil {
		e.plugins.EmitGrantRevoked(ctx, grantID)
	}
	return nil
}

// ListRoleGrants returns a role's grants. Unless includeExpired is set
// only grants effective now are returned.
func (e *Engine) ListRoleGrants(ctx context.Context, roleID id.RoleID, includeExpired bool) ([]*grant.Grant, error) {
	if _, err := e.store.GetRole(ctx, roleID); err != nil {
		return nil, fmt.Errorf("bastion: list grants: %w", storeErr(err, ErrRoleNotFound))
	}
	rid := roleID
	filter := &grant.ListFilter{RoleID: &rid}
	if !includeExpired {
		now := e.clock.Now()
		filter.ActiveAt = &now
	}
	gs, err := e.store.ListGrants(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("bastion: list grants: %w: %w", ErrPersistence, err)
	}
	return gs, nil
}

// ──────────────────────────────────────────────────
// Resource overrides
// ──────────────────────────────────────────────────

// SetResourceOverride creates or replaces the effective override for one
// resource instance, permission and subject.
func (e *Engine) SetResourceOverride(ctx context.Context, in OverrideInput) (*override.Override, error) {
	switch {
	case !in.ResourceType.Valid():
		return nil, fmt.Errorf("bastion: set override: %w: %q", ErrInvalidResourceType, in.ResourceType)
	case !in.Action.Valid():
		return nil, fmt.Errorf("bastion: set override: %w: %q", ErrInvalidAction, in.Action)
	case strings.TrimSpace(in.ResourceID) == "":
		return nil, fmt.Errorf("bastion: set override: %w: resource id is required", ErrInvalidRequest)
	case !in.SubjectType.Valid():
		return nil, fmt.Errorf("bastion: set override: %w: unknown subject type %q", ErrInvalidRequest, in.SubjectType)
	case strings.TrimSpace(in.SubjectID) == "":
		return nil, fmt.Errorf("bastion: set override: %w: subject id is required", ErrInvalidRequest)
	}
	if err := ValidateConditions(in.Conditions); err != nil {
		return nil, fmt.Errorf("bastion: set override: %w", err)
	}
	now := e.clock.Now()
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return nil, fmt.Errorf("bastion: set override: %w: expiry is in the past", ErrInvalidRequest)
	}
	if in.SubjectType == override.SubjectRole {
		rid, err := id.ParseRoleID(in.SubjectID)
		if err != nil {
			return nil, fmt.Errorf("bastion: set override: %w: %w", ErrInvalidRequest, err)
		}
		if _, err := e.store.GetRole(ctx, rid); err != nil {
			return nil, fmt.Errorf("bastion: set override: %w", storeErr(err, ErrRoleNotFound))
		}
	}

	p, err := e.permissionFor(ctx, in.ResourceType, in.Action)
	if err != nil {
		return nil, fmt.Errorf("bastion: set override: %w", err)
	}

	pid := p.ID
	existing, err := e.store.ListOverrides(ctx, &override.ListFilter{
		ResourceType: in.ResourceType,
		ResourceID:   in.ResourceID,
		PermissionID: &pid,
		SubjectType:  in.SubjectType,
		SubjectID:    in.SubjectID,
		ActiveAt:     &now,
	})
	if err != nil {
		return nil, fmt.Errorf("bastion: set override: %w: %w", ErrPersistence, err)
	}

	var o *override.Override
	if len(existing) > 0 {
		o = existing[0]
		o.IsGranted = in.IsGranted
		o.Conditions = maps.Clone(in.Conditions)
		o.ExpiresAt = copyTime(in.ExpiresAt)
		o.UpdatedAt = now
		if err := e.store.UpdateOverride(ctx, o); err != nil {
			return nil, fmt.Errorf("bastion: set override: %w", storeErr(err, ErrOverrideNotFound))
		}
	} else {
		o = &override.Override{
			ID:           id.NewOverrideID(),
			ResourceType: in.ResourceType,
			ResourceID:   in.ResourceID,
			PermissionID: p.ID,
			SubjectType:  in.SubjectType,
			SubjectID:    in.SubjectID,
			IsGranted:    in.IsGranted,
			Conditions:   maps.Clone(in.Conditions),
			ExpiresAt:    copyTime(in.ExpiresAt),
			CreatedBy:    RequestMetaFrom(ctx).PerformedBy,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := e.store.CreateOverride(ctx, o); err != nil {
			return nil, fmt.Errorf("bastion: set override: %w: %w", ErrPersistence, err)
		}
	}

	e.invalidateResource(ctx, o.ResourceType, o.ResourceID)
	e.recordOverride(ctx, "override.set", o)
	if e.plugins != nil {
		e.plugins.EmitOverrideSet(ctx, o)
	}
	return o, nil
}

// RemoveResourceOverride deletes an override.
func (e *Engine) RemoveResourceOverride(ctx context.Context, ovrID id.OverrideID) error {
	o, err := e.store.GetOverride(ctx, ovrID)
	if err != nil {
		return fmt.Errorf("bastion: remove override: %w", storeErr(err, ErrOverrideNotFound))
	}
	if err := e.store.DeleteOverride(ctx, ovrID); err != nil {
		return fmt.Errorf("bastion: remove override: %w", storeErr(err, ErrOverrideNotFound))
	}

	e.invalidateResource(ctx, o.ResourceType, o.ResourceID)
	e.recordOverride(ctx, "override.remove", o)
	if e.plugins != nil {
		e.plugins.EmitOverrideRemoved(ctx, ovrID)
	}
	return nil
}

// ListResourceOverrides returns overrides matching the filter and the
// unpaginated total.
func (e *Engine) ListResourceOverrides(ctx context.Context, filter *override.ListFilter) ([]*override.Override, int64, error) {
	ovrs, err := e.store.ListOverrides(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("bastion: list overrides: %w: %w", ErrPersistence, err)
	}
	total, err := e.store.CountOverrides(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("bastion: count overrides: %w: %w", ErrPersistence, err)
	}
	return ovrs, total, nil
}

func (e *Engine) recordOverride(ctx context.Context, action string, o *override.Override) {
	entry := e.mutationEntry(ctx, action, map[string]any{
		"override_id": o.ID.String(),
		"is_granted":  o.IsGranted,
	})
	entry.ResourceType = string(o.ResourceType)
	entry.ResourceID = o.ResourceID
	entry.SubjectType = string(o.SubjectType)
	entry.SubjectID = o.SubjectID
	entry.PermissionID = o.PermissionID
	entry.RoleID = overrideRole(o)
	e.audit.record(ctx, entry)
}

// conditionsEqual compares condition maps with numbers normalized.
func conditionsEqual(a, b map[string]any) bool {
	return maps.EqualFunc(a, b, func(x, y any) bool {
		nx, okx := normalizeScalar(x)
		ny, oky := normalizeScalar(y)
		return okx && oky && nx == ny
	})
}

func timesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
