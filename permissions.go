package bastion

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/xraph/bastion/grant"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/override"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/store"
)

// PermissionInput describes a catalog entry. Name defaults to
// "resource.action".
type PermissionInput struct {
	Name         string                  `json:"name,omitempty"`
	Description  string                  `json:"description,omitempty"`
	ResourceType permission.ResourceType `json:"resource_type"`
	Action       permission.Action       `json:"action"`
	Category     string                  `json:"category,omitempty"`
	IsSystem     bool                    `json:"is_system,omitempty"`
	Metadata     map[string]any          `json:"metadata,omitempty"`
}

// CreatePermission adds a catalog entry. Both the name and the resource
// type and action pair must be unique.
func (e *Engine) CreatePermission(ctx context.Context, in PermissionInput) (*permission.Permission, error) {
	if !in.ResourceType.Valid() {
		return nil, fmt.Errorf("bastion: create permission: %w: %q", ErrInvalidResourceType, in.ResourceType)
	}
	if !in.Action.Valid() {
		return nil, fmt.Errorf("bastion: create permission: %w: %q", ErrInvalidAction, in.Action)
	}
	now := e.clock.Now()
	p := &permission.Permission{
		ID:           id.NewPermissionID(),
		Name:         in.Name,
		Description:  in.Description,
		ResourceType: in.ResourceType,
		Action:       in.Action,
		Category:     in.Category,
		IsSystem:     in.IsSystem,
		Metadata:     maps.Clone(in.Metadata),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if p.Name == "" {
		p.Name = p.Key()
	}
	if err := e.store.CreatePermission(ctx, p); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("bastion: create permission: %w: %s", ErrDuplicatePermission, p.Name)
		}
		return nil, fmt.Errorf("bastion: create permission: %w: %w", ErrPersistence, err)
	}

	// Cached unknown-permission denials for this pair are now stale.
	e.invalidateAll(ctx)
	e.recordPermission(ctx, "permission.create", p)
	if e.plugins != nil {
		e.plugins.EmitPermissionCreated(ctx, p)
	}
	return p, nil
}

// GetPermission returns a permission by ID.
func (e *Engine) GetPermission(ctx context.Context, permID id.PermissionID) (*permission.Permission, error) {
	p, err := e.store.GetPermission(ctx, permID)
	if err != nil {
		return nil, fmt.Errorf("bastion: get permission: %w", storeErr(err, ErrPermissionNotFound))
	}
	return p, nil
}

// ListPermissions returns permissions matching the filter and the
// unpaginated total.
func (e *Engine) ListPermissions(ctx context.Context, filter *permission.ListFilter) ([]*permission.Permission, int64, error) {
	perms, err := e.store.ListPermissions(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("bastion: list permissions: %w: %w", ErrPersistence, err)
	}
	total, err := e.store.CountPermissions(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("bastion: count permissions: %w: %w", ErrPersistence, err)
	}
	return perms, total, nil
}

// DeletePermission removes a catalog entry. System permissions and
// permissions referenced by grants or overrides are rejected.
func (e *Engine) DeletePermission(ctx context.Context, permID id.PermissionID) error {
	p, err := e.store.GetPermission(ctx, permID)
	if err != nil {
		return fmt.Errorf("bastion: delete permission: %w", storeErr(err, ErrPermissionNotFound))
	}
	if p.IsSystem {
		return fmt.Errorf("bastion: delete permission: %w: %s", ErrSystemPermissionImmutable, p.Name)
	}

	pid := permID
	nGrant, err := e.store.CountGrants(ctx, &grant.ListFilter{PermissionID: &pid})
	if err != nil {
		return fmt.Errorf("bastion: delete permission: %w: %w", ErrPersistence, err)
	}
	nOverride, err := e.store.CountOverrides(ctx, &override.ListFilter{PermissionID: &pid})
	if err != nil {
		return fmt.Errorf("bastion: delete permission: %w: %w", ErrPersistence, err)
	}
	if nGrant > 0 || nOverride > 0 {
		return fmt.Errorf("bastion: delete permission: %w: %d grants, %d overrides", ErrPermissionInUse, nGrant, nOverride)
	}

	if err := e.store.DeletePermission(ctx, permID); err != nil {
		return fmt.Errorf("bastion: delete permission: %w", storeErr(err, ErrPermissionNotFound))
	}

	e.invalidateAll(ctx)
	e.recordPermission(ctx, "permission.delete", p)
	if e.plugins != nil {
		e.plugins.EmitPermissionDeleted(ctx, permID)
	}
	return nil
}

func (e *Engine) recordPermission(ctx context.Context, action string, p *permission.Permission) {
	entry := e.mutationEntry(ctx, action, map[string]any{"permission_name": p.Name})
	entry.ResourceType = string(p.ResourceType)
	entry.PermissionID = p.ID
	e.audit.record(ctx, entry)
}
