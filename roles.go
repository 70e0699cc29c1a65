package bastion

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/grant"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/store"
)

// RoleInput describes a new role. New roles are active.
type RoleInput struct {
	Name           string         `json:"name"`
	DisplayName    string         `json:"display_name,omitempty"`
	Description    string         `json:"description,omitempty"`
	Type           role.Type      `json:"role_type,omitempty"`
	ParentID       *id.RoleID     `json:"parent_id,omitempty"`
	OrganizationID string         `json:"organization_id,omitempty"`
	IsSystem       bool           `json:"is_system,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// RoleUpdate changes descriptive fields of a role. Nil fields are kept.
type RoleUpdate struct {
	DisplayName *string        `json:"display_name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// CreateRole creates an active role. A parent must exist and be active,
// and the new role's level must stay below MaxRoleDepth.
func (e *Engine) CreateRole(ctx context.Context, in RoleInput) (*role.Role, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidRequest)
	}
	if in.Type == "" {
		in.Type = role.TypeCustom
	}
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown role type %q", ErrInvalidRequest, in.Type)
	}

	level := 0
	if in.ParentID != nil && !in.ParentID.IsNil() {
		parent, err := e.store.GetRole(ctx, *in.ParentID)
		if err != nil {
			return nil, fmt.Errorf("bastion: create role: parent: %w", storeErr(err, ErrRoleNotFound))
		}
		if !parent.IsActive {
			return nil, fmt.Errorf("bastion: create role: %w: parent %s", ErrRoleInactive, parent.Name)
		}
		chain, err := e.ancestorChain(ctx, parent.ID)
		if err != nil {
			return nil, fmt.Errorf("bastion: create role: %w", hierarchyErr(err))
		}
		level = len(chain)
		pid := parent.ID
		in.ParentID = &pid
	} else {
		in.ParentID = nil
	}
	if level >= e.config.MaxRoleDepth {
		return nil, fmt.Errorf("bastion: create role: %w: level %d", ErrRoleDepthExceeded, level)
	}

	now := e.clock.Now()
	r := &role.Role{
		ID:             id.NewRoleID(),
		Name:           name,
		DisplayName:    in.DisplayName,
		Description:    in.Description,
		Type:           in.Type,
		ParentID:       in.ParentID,
		Level:          level,
		OrganizationID: in.OrganizationID,
		IsActive:       true,
		IsSystem:       in.IsSystem,
		Metadata:       maps.Clone(in.Metadata),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.store.CreateRole(ctx, r); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("bastion: create role: %w: %s", ErrDuplicateRole, name)
		}
		return nil, fmt.Errorf("bastion: create role: %w: %w", ErrPersistence, err)
	}

	e.recordRole(ctx, "role.create", r, nil)
	if e.plugins != nil {
		e.plugins.EmitRoleCreated(ctx, r)
	}
	return r, nil
}

// GetRole returns a role by ID.
func (e *Engine) GetRole(ctx context.Context, roleID id.RoleID) (*role.Role, error) {
	r, err := e.store.GetRole(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("bastion: get role: %w", storeErr(err, ErrRoleNotFound))
	}
	return r, nil
}

// GetRoleByName returns a role by its unique name.
func (e *Engine) GetRoleByName(ctx context.Context, name string) (*role.Role, error) {
	r, err := e.store.GetRoleByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("bastion: get role: %w", storeErr(err, ErrRoleNotFound))
	}
	return r, nil
}

// ListRoles returns roles matching the filter and the unpaginated total.
func (e *Engine) ListRoles(ctx context.Context, filter *role.ListFilter) ([]*role.Role, int64, error) {
	roles, err := e.store.ListRoles(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("bastion: list roles: %w: %w", ErrPersistence, err)
	}
	total, err := e.store.CountRoles(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("bastion: count roles: %w: %w", ErrPersistence, err)
	}
	return roles, total, nil
}

// UpdateRole changes descriptive fields. It does not affect decisions.
func (e *Engine) UpdateRole(ctx context.Context, roleID id.RoleID, upd RoleUpdate) (*role.Role, error) {
	r, err := e.store.GetRole(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("bastion: update role: %w", storeErr(err, ErrRoleNotFound))
	}
	if upd.DisplayName != nil {
		r.DisplayName = *upd.DisplayName
	}
	if upd.Description != nil {
		r.Description = *upd.Description
	}
	if upd.Metadata != nil {
		r.Metadata = maps.Clone(upd.Metadata)
	}
	r.UpdatedAt = e.clock.Now()
	if err := e.store.UpdateRole(ctx, r); err != nil {
		return nil, fmt.Errorf("bastion: update role: %w", storeErr(err, ErrRoleNotFound))
	}

	e.recordRole(ctx, "role.update", r, nil)
	if e.plugins != nil {
		e.plugins.EmitRoleUpdated(ctx, r)
	}
	return r, nil
}

// ReparentRole moves a role under parentID, or makes it a root when
// parentID is nil. Cycles and chains deeper than MaxRoleDepth are
// rejected before anything is written. Levels of the role and its whole
// subtree are recomputed.
func (e *Engine) ReparentRole(ctx context.Context, roleID id.RoleID, parentID *id.RoleID) (*role.Role, error) {
	r, err := e.store.GetRole(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("bastion: reparent role: %w", storeErr(err, ErrRoleNotFound))
	}

	level := 0
	if parentID != nil && !parentID.IsNil() {
		if parentID.String() == roleID.String() {
			return nil, fmt.Errorf("bastion: reparent role: %w: %s cannot be its own parent", ErrCyclicRoleHierarchy, r.Name)
		}
		parent, err := e.store.GetRole(ctx, *parentID)
		if err != nil {
			return nil, fmt.Errorf("bastion: reparent role: parent: %w", storeErr(err, ErrRoleNotFound))
		}
		if !parent.IsActive {
			return nil, fmt.Errorf("bastion: reparent role: %w: parent %s", ErrRoleInactive, parent.Name)
		}
		chain, err := e.ancestorChain(ctx, parent.ID)
		if err != nil {
			return nil, fmt.Errorf("bastion: reparent role: %w", hierarchyErr(err))
		}
		for _, anc := range chain {
			if anc.String() == roleID.String() {
				return nil, fmt.Errorf("bastion: reparent role: %w: %s is an ancestor of %s", ErrCyclicRoleHierarchy, r.Name, parent.Name)
			}
		}
		level = len(chain)
		pid := parent.ID
		parentID = &pid
	} else {
		parentID = nil
	}

	height, err := e.subtreeHeight(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("bastion: reparent role: %w: %w", ErrPersistence, err)
	}
	if level+height >= e.config.MaxRoleDepth {
		return nil, fmt.Errorf("bastion: reparent role: %w: subtree would reach level %d", ErrRoleDepthExceeded, level+height)
	}

	r.ParentID = parentID
	r.Level = level
	r.UpdatedAt = e.clock.Now()
	if err := e.store.UpdateRole(ctx, r); err != nil {
		return nil, fmt.Errorf("bastion: reparent role: %w", storeErr(err, ErrRoleNotFound))
	}
	if err := e.relevel(ctx, r); err != nil {
		// The new parent is committed; holders must not keep the old hierarchy.
		e.invalidateRoleHolders(ctx, roleID)
		return nil, fmt.Errorf("bastion: reparent role: relevel: %w: %w", ErrPersistence, err)
	}

	e.invalidateRoleHolders(ctx, roleID)
	details := map[string]any{}
	if parentID != nil {
		details["parent_id"] = parentID.String()
	}
	e.recordRole(ctx, "role.reparent", r, details)
	if e.plugins != nil {
		e.plugins.EmitRoleUpdated(ctx, r)
	}
	return r, nil
}

// ActivateRole marks a role active.
func (e *Engine) ActivateRole(ctx context.Context, roleID id.RoleID) (*role.Role, error) {
	return e.setRoleActive(ctx, roleID, true)
}

// DeactivateRole marks a role inactive. It stops contributing grants to
// every holder and to holders of its descendants.
func (e *Engine) DeactivateRole(ctx context.Context, roleID id.RoleID) (*role.Role, error) {
	return e.setRoleActive(ctx, roleID, false)
}

func (e *Engine) setRoleActive(ctx context.Context, roleID id.RoleID, active bool) (*role.Role, error) {
	action := "role.deactivate"
	if active {
		action = "role.activate"
	}
	r, err := e.store.GetRole(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("bastion: %s: %w", action, storeErr(err, ErrRoleNotFound))
	}
	if r.IsActive == active {
		return r, nil
	}
	r.IsActive = active
	r.UpdatedAt = e.clock.Now()
	if err := e.store.UpdateRole(ctx, r); err != nil {
		return nil, fmt.Errorf("bastion: %s: %w", action, storeErr(err, ErrRoleNotFound))
	}

	e.invalidateRoleHolders(ctx, roleID)
	e.recordRole(ctx, action, r, nil)
	if e.plugins != nil {
		e.plugins.EmitRoleUpdated(ctx, r)
	}
	return r, nil
}

// DeleteRole removes a role that nothing references. System roles and
// roles with assignments, grants or children are rejected; deactivate
// those instead.
func (e *Engine) DeleteRole(ctx context.Context, roleID id.RoleID) error {
	r, err := e.store.GetRole(ctx, roleID)
	if err != nil {
		return fmt.Errorf("bastion: delete role: %w", storeErr(err, ErrRoleNotFound))
	}
	if r.IsSystem {
		return fmt.Errorf("bastion: delete role: %w: %s", ErrSystemRoleImmutable, r.Name)
	}

	rid := roleID
	nAssign, err := e.store.CountAssignments(ctx, &assignment.ListFilter{RoleID: &rid})
	if err != nil {
		return fmt.Errorf("bastion: delete role: %w: %w", ErrPersistence, err)
	}
	nGrant, err := e.store.CountGrants(ctx, &grant.ListFilter{RoleID: &rid})
	if err != nil {
		return fmt.Errorf("bastion: delete role: %w: %w", ErrPersistence, err)
	}
	children, err := e.store.ListChildRoles(ctx, roleID)
	if err != nil {
		return fmt.Errorf("bastion: delete role: %w: %w", ErrPersistence, err)
	}
	if nAssign > 0 || nGrant > 0 || len(children) > 0 {
		return fmt.Errorf("bastion: delete role: %w: %d assignments, %d grants, %d children",
			ErrRoleInUse, nAssign, nGrant, len(children))
	}

	if err := e.store.DeleteRole(ctx, roleID); err != nil {
		return fmt.Errorf("bastion: delete role: %w", storeErr(err, ErrRoleNotFound))
	}

	e.recordRole(ctx, "role.delete", r, nil)
	if e.plugins != nil {
		e.plugins.EmitRoleDeleted(ctx, roleID)
	}
	return nil
}

// subtreeHeight returns the number of levels below roleID.
func (e *Engine) subtreeHeight(ctx context.Context, roleID id.RoleID) (int, error) {
	height := 0
	frontier := []id.RoleID{roleID}
	seen := map[string]struct{}{roleID.String(): {}}
	for len(frontier) > 0 {
		var next []id.RoleID
		for _, cur := range frontier {
			children, err := e.store.ListChildRoles(ctx, cur)
			if err != nil {
				return 0, err
			}
			for _, c := range children {
				if _, ok := seen[c.ID.String()]; ok {
					continue
				}
				seen[c.ID.String()] = struct{}{}
				next = append(next, c.ID)
			}
		}
		if len(next) == 0 {
			break
		}
		height++
		if height > e.config.MaxRoleDepth {
			return height, nil
		}
		frontier = next
	}
	return height, nil
}

// relevel rewrites the cached level of every role below r.
func (e *Engine) relevel(ctx context.Context, r *role.Role) error {
	queue := []*role.Role{r}
	seen := map[string]struct{}{r.ID.String(): {}}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		children, err := e.store.ListChildRoles(ctx, parent.ID)
		if err != nil {
			return err
		}
		for _, c := range children {
			if _, ok := seen[c.ID.String()]; ok {
				continue
			}
			seen[c.ID.String()] = struct{}{}
			if c.Level != parent.Level+1 {
				c.Level = parent.Level + 1
				c.UpdatedAt = e.clock.Now()
				if err := e.store.UpdateRole(ctx, c); err != nil {
					return err
				}
			}
			queue = append(queue, c)
		}
	}
	return nil
}

// hierarchyErr keeps hierarchy sentinels and maps store failures.
func hierarchyErr(err error) error {
	if errors.Is(err, ErrCyclicRoleHierarchy) || errors.Is(err, ErrRoleDepthExceeded) {
		return err
	}
	return storeErr(err, ErrRoleNotFound)
}

func (e *Engine) recordRole(ctx context.Context, action string, r *role.Role, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	details["role_name"] = r.Name
	entry := e.mutationEntry(ctx, action, details)
	entry.ResourceType = "role"
	entry.ResourceID = r.ID.String()
	entry.RoleID = r.ID
	e.audit.record(ctx, entry)
}
