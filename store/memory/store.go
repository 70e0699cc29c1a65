// Package memory provides an in-memory implementation of the Bastion
// composite store. It is intended for testing and development.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/grant"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/override"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/store"
)

// Compile-time interface checks.
var _ store.Store = (*Store)(nil)

// Store is a thread-safe in-memory store for all Bastion entities.
type Store struct {
	mu sync.RWMutex

	roles       map[string]*role.Role
	permissions map[string]*permission.Permission
	assignments map[string]*assignment.Assignment
	grants      map[string]*grant.Grant
	overrides   map[string]*override.Override
	auditLog    map[string]*audit.Entry
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		roles:       make(map[string]*role.Role),
		permissions: make(map[string]*permission.Permission),
		assignments: make(map[string]*assignment.Assignment),
		grants:      make(map[string]*grant.Grant),
		overrides:   make(map[string]*override.Override),
		auditLog:    make(map[string]*audit.Entry),
	}
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Role Store
// ──────────────────────────────────────────────────

func (s *Store) CreateRole(_ context.Context, r *role.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roles {
		if existing.Name == r.Name {
			return fmt.Errorf("role name %q: %w", r.Name, store.ErrConflict)
		}
	}
	s.roles[r.ID.String()] = copyRole(r)
	return nil
}

func (s *Store) GetRole(_ context.Context, roleID id.RoleID) (*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[roleID.String()]
	if !ok {
		return nil, fmt.Errorf("role %s: %w", roleID, store.ErrNotFound)
	}
	return copyRole(r), nil
}

func (s *Store) GetRoleByName(_ context.Context, name string) (*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.Name == name {
			return copyRole(r), nil
		}
	}
	return nil, fmt.Errorf("role name %q: %w", name, store.ErrNotFound)
}

func (s *Store) UpdateRole(_ context.Context, r *role.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := r.ID.String()
	if _, ok := s.roles[key]; !ok {
		return fmt.Errorf("role %s: %w", r.ID, store.ErrNotFound)
	}
	for k, existing := range s.roles {
		if k != key && existing.Name == r.Name {
			return fmt.Errorf("role name %q: %w", r.Name, store.ErrConflict)
		}
	}
	s.roles[key] = copyRole(r)
	return nil
}

func (s *Store) DeleteRole(_ context.Context, roleID id.RoleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := roleID.String()
	if _, ok := s.roles[key]; !ok {
		return fmt.Errorf("role %s: %w", roleID, store.ErrNotFound)
	}
	delete(s.roles, key)
	for k, g := range s.grants {
		if g.RoleID == roleID {
			delete(s.grants, k)
		}
	}
	for k, a := range s.assignments {
		if a.RoleID == roleID {
			delete(s.assignments, k)
		}
	}
	return nil
}

func (s *Store) ListRoles(_ context.Context, filter *role.ListFilter) ([]*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*role.Role, 0, len(s.roles))
	for _, r := range s.roles {
		if filter != nil {
			if filter.Type != "" && r.Type != filter.Type {
				continue
			}
			if filter.OrganizationID != "" && r.OrganizationID != filter.OrganizationID {
				continue
			}
			if filter.IsSystem != nil && r.IsSystem != *filter.IsSystem {
				continue
			}
			if filter.IsActive != nil && r.IsActive != *filter.IsActive {
				continue
			}
			if filter.ParentID != nil && (r.ParentID == nil || *r.ParentID != *filter.ParentID) {
				continue
			}
			if filter.Search != "" && !containsFold(r.Name, filter.Search) && !containsFold(r.DisplayName, filter.Search) {
				continue
			}
		}
		result = append(result, copyRole(r))
	}
	sortRoles(result)
	var p pagOpts
	if filter != nil {
		p = pagOpts{limit: filter.Limit, offset: filter.Offset}
	}
	return applyPagination(result, p), nil
}

func (s *Store) CountRoles(ctx context.Context, filter *role.ListFilter) (int64, error) {
	f := role.ListFilter{}
	if filter != nil {
		f = *filter
	}
	f.Limit, f.Offset = 0, 0
	list, err := s.ListRoles(ctx, &f)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) ListChildRoles(_ context.Context, parentID id.RoleID) ([]*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*role.Role
	for _, r := range s.roles {
		if r.ParentID != nil && *r.ParentID == parentID {
			result = append(result, copyRole(r))
		}
	}
	sortRoles(result)
	return result, nil
}

// ──────────────────────────────────────────────────
// Permission Store
// ──────────────────────────────────────────────────

func (s *Store) CreatePermission(_ context.Context, p *permission.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.permissions {
		if existing.Name == p.Name {
			return fmt.Errorf("permission name %q: %w", p.Name, store.ErrConflict)
		}
		if existing.ResourceType == p.ResourceType && existing.Action == p.Action {
			return fmt.Errorf("permission %s: %w", p.Key(), store.ErrConflict)
		}
	}
	s.permissions[p.ID.String()] = copyPermission(p)
	return nil
}

func (s *Store) GetPermission(_ context.Context, permID id.PermissionID) (*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.permissions[permID.String()]
	if !ok {
		return nil, fmt.Errorf("permission %s: %w", permID, store.ErrNotFound)
	}
	return copyPermission(p), nil
}

func (s *Store) GetPermissionByName(_ context.Context, name string) (*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.permissions {
		if p.Name == name {
			return copyPermission(p), nil
		}
	}
	return nil, fmt.Errorf("permission %q: %w", name, store.ErrNotFound)
}

func (s *Store) GetPermissionFor(_ context.Context, resourceType permission.ResourceType, action permission.Action) (*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.permissions {
		if p.ResourceType == resourceType && p.Action == action {
			return copyPermission(p), nil
		}
	}
	return nil, fmt.Errorf("permission %s.%s: %w", resourceType, action, store.ErrNotFound)
}

func (s *Store) UpdatePermission(_ context.Context, p *permission.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.permissions[p.ID.String()]; !ok {
		return fmt.Errorf("permission %s: %w", p.ID, store.ErrNotFound)
	}
	s.permissions[p.ID.String()] = copyPermission(p)
	return nil
}

func (s *Store) DeletePermission(_ context.Context, permID id.PermissionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := permID.String()
	if _, ok := s.permissions[key]; !ok {
		return fmt.Errorf("permission %s: %w", permID, store.ErrNotFound)
	}
	delete(s.permissions, key)
	return nil
}

func (s *Store) ListPermissions(_ context.Context, filter *permission.ListFilter) ([]*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*permission.Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		if filter != nil {
			if filter.ResourceType != "" && p.ResourceType != filter.ResourceType {
				continue
			}
			if filter.Action != "" && p.Action != filter.Action {
				continue
			}
			if filter.Category != "" && p.Category != filter.Category {
				continue
			}
			if filter.IsSystem != nil && p.IsSystem != *filter.IsSystem {
				continue
			}
			if filter.Search != "" && !containsFold(p.Name, filter.Search) {
				continue
			}
		}
		result = append(result, copyPermission(p))
	}
	slices.SortFunc(result, func(a, b *permission.Permission) int {
		return cmp.Compare(a.Name, b.Name)
	})
	var p pagOpts
	if filter != nil {
		p = pagOpts{limit: filter.Limit, offset: filter.Offset}
	}
	return applyPagination(result, p), nil
}

func (s *Store) CountPermissions(ctx context.Context, filter *permission.ListFilter) (int64, error) {
	f := permission.ListFilter{}
	if filter != nil {
		f = *filter
	}
	f.Limit, f.Offset = 0, 0
	list, err := s.ListPermissions(ctx, &f)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

// ──────────────────────────────────────────────────
// Assignment Store
// ──────────────────────────────────────────────────

func (s *Store) CreateAssignment(_ context.Context, a *assignment.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[a.ID.String()] = copyAssignment(a)
	return nil
}

func (s *Store) GetAssignment(_ context.Context, assID id.AssignmentID) (*assignment.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[assID.String()]
	if !ok {
		return nil, fmt.Errorf("assignment %s: %w", assID, store.ErrNotFound)
	}
	return copyAssignment(a), nil
}

func (s *Store) UpdateAssignment(_ context.Context, a *assignment.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[a.ID.String()]; !ok {
		return fmt.Errorf("assignment %s: %w", a.ID, store.ErrNotFound)
	}
	s.assignments[a.ID.String()] = copyAssignment(a)
	return nil
}

func (s *Store) DeleteAssignment(_ context.Context, assID id.AssignmentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[assID.String()]; !ok {
		return fmt.Errorf("assignment %s: %w", assID, store.ErrNotFound)
	}
	delete(s.assignments, assID.String())
	return nil
}

func (s *Store) ListAssignments(_ context.Context, filter *assignment.ListFilter) ([]*assignment.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*assignment.Assignment, 0)
	for _, a := range s.assignments {
		if filter != nil {
			if filter.UserID != "" && a.UserID != filter.UserID {
				continue
			}
			if filter.RoleID != nil && a.RoleID != *filter.RoleID {
				continue
			}
			if filter.ActiveAt != nil && !a.EffectiveAt(*filter.ActiveAt) {
				continue
			}
		}
		result = append(result, copyAssignment(a))
	}
	sortAssignments(result)
	var p pagOpts
	if filter != nil {
		p = pagOpts{limit: filter.Limit, offset: filter.Offset}
	}
	return applyPagination(result, p), nil
}

func (s *Store) CountAssignments(ctx context.Context, filter *assignment.ListFilter) (int64, error) {
	f := assignment.ListFilter{}
	if filter != nil {
		f = *filter
	}
	f.Limit, f.Offset = 0, 0
	list, err := s.ListAssignments(ctx, &f)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) ListActiveAssignments(ctx context.Context, userID string, asOf time.Time) ([]*assignment.Assignment, error) {
	return s.ListAssignments(ctx, &assignment.ListFilter{UserID: userID, ActiveAt: &asOf})
}

func (s *Store) ListAssignmentsByRoles(_ context.Context, roleIDs []id.RoleID) ([]*assignment.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*assignment.Assignment
	for _, a := range s.assignments {
		if slices.Contains(roleIDs, a.RoleID) {
			result = append(result, copyAssignment(a))
		}
	}
	sortAssignments(result)
	return result, nil
}

func (s *Store) DeleteExpiredAssignments(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, a := range s.assignments {
		if a.ExpiresAt != nil && !a.ExpiresAt.After(now) {
			delete(s.assignments, k)
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Grant Store
// ──────────────────────────────────────────────────

func (s *Store) CreateGrant(_ context.Context, g *grant.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[g.ID.String()] = copyGrant(g)
	return nil
}

func (s *Store) GetGrant(_ context.Context, grantID id.GrantID) (*grant.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[grantID.String()]
	if !ok {
		return nil, fmt.Errorf("grant %s: %w", grantID, store.ErrNotFound)
	}
	return copyGrant(g), nil
}

func (s *Store) UpdateGrant(_ context.Context, g *grant.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[g.ID.String()]; !ok {
		return fmt.Errorf("grant %s: %w", g.ID, store.ErrNotFound)
	}
	s.grants[g.ID.String()] = copyGrant(g)
	return nil
}

func (s *Store) DeleteGrant(_ context.Context, grantID id.GrantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[grantID.String()]; !ok {
		return fmt.Errorf("grant %s: %w", grantID, store.ErrNotFound)
	}
	delete(s.grants, grantID.String())
	return nil
}

func (s *Store) ListGrants(_ context.Context, filter *grant.ListFilter) ([]*grant.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*grant.Grant, 0)
	for _, g := range s.grants {
		if filter != nil {
			if filter.RoleID != nil && g.RoleID != *filter.RoleID {
				continue
			}
			if filter.PermissionID != nil && g.PermissionID != *filter.PermissionID {
				continue
			}
			if filter.Scope != "" && g.Scope != filter.Scope {
				continue
			}
			if filter.ActiveAt != nil && !g.EffectiveAt(*filter.ActiveAt) {
				continue
			}
		}
		result = append(result, copyGrant(g))
	}
	sortGrants(result)
	var p pagOpts
	if filter != nil {
		p = pagOpts{limit: filter.Limit, offset: filter.Offset}
	}
	return applyPagination(result, p), nil
}

func (s *Store) CountGrants(ctx context.Context, filter *grant.ListFilter) (int64, error) {
	f := grant.ListFilter{}
	if filter != nil {
		f = *filter
	}
	f.Limit, f.Offset = 0, 0
	list, err := s.ListGrants(ctx, &f)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) ListActiveGrants(_ context.Context, roleIDs []id.RoleID, permID id.PermissionID, asOf time.Time) ([]*grant.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*grant.Grant
	for _, g := range s.grants {
		if !slices.Contains(roleIDs, g.RoleID) {
			continue
		}
		if !permID.IsNil() && g.PermissionID != permID {
			continue
		}
		if !g.EffectiveAt(asOf) {
			continue
		}
		result = append(result, copyGrant(g))
	}
	sortGrants(result)
	return result, nil
}

// ──────────────────────────────────────────────────
// Override Store
// ──────────────────────────────────────────────────

func (s *Store) CreateOverride(_ context.Context, o *override.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[o.ID.String()] = copyOverride(o)
	return nil
}

func (s *Store) GetOverride(_ context.Context, ovrID id.OverrideID) (*override.Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.overrides[ovrID.String()]
	if !ok {
		return nil, fmt.Errorf("override %s: %w", ovrID, store.ErrNotFound)
	}
	return copyOverride(o), nil
}

func (s *Store) UpdateOverride(_ context.Context, o *override.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.overrides[o.ID.String()]; !ok {
		return fmt.Errorf("override %s: %w", o.ID, store.ErrNotFound)
	}
	s.overrides[o.ID.String()] = copyOverride(o)
	return nil
}

func (s *Store) DeleteOverride(_ context.Context, ovrID id.OverrideID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.overrides[ovrID.String()]; !ok {
		return fmt.Errorf("override %s: %w", ovrID, store.ErrNotFound)
	}
	delete(s.overrides, ovrID.String())
	return nil
}

func (s *Store) ListOverrides(_ context.Context, filter *override.ListFilter) ([]*override.Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*override.Override, 0)
	for _, o := range s.overrides {
		if filter != nil && !matchOverride(o, filter) {
			continue
		}
		result = append(result, copyOverride(o))
	}
	sortOverrides(result)
	var p pagOpts
	if filter != nil {
		p = pagOpts{limit: filter.Limit, offset: filter.Offset}
	}
	return applyPagination(result, p), nil
}

func (s *Store) CountOverrides(ctx context.Context, filter *override.ListFilter) (int64, error) {
	f := override.ListFilter{}
	if filter != nil {
		f = *filter
	}
	f.Limit, f.Offset = 0, 0
	list, err := s.ListOverrides(ctx, &f)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) ListActiveOverrides(ctx context.Context, resourceType permission.ResourceType, resourceID string, permID id.PermissionID, asOf time.Time) ([]*override.Override, error) {
	return s.ListOverrides(ctx, &override.ListFilter{
		ResourceType: resourceType,
		ResourceID:   resourceID,
		PermissionID: &permID,
		ActiveAt:     &asOf,
	})
}

func matchOverride(o *override.Override, f *override.ListFilter) bool {
	switch {
	case f.ResourceType != "" && o.ResourceType != f.ResourceType:
		return false
	case f.ResourceID != "" && o.ResourceID != f.ResourceID:
		return false
	case f.PermissionID != nil && o.PermissionID != *f.PermissionID:
		return false
	case f.SubjectType != "" && o.SubjectType != f.SubjectType:
		return false
	case f.SubjectID != "" && o.SubjectID != f.SubjectID:
		return false
	case f.ActiveAt != nil && !o.EffectiveAt(*f.ActiveAt):
		return false
	}
	return true
}

// ──────────────────────────────────────────────────
// Audit Store
// ──────────────────────────────────────────────────

func (s *Store) CreateAuditEntry(_ context.Context, e *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLog[e.ID.String()] = copyAuditEntry(e)
	return nil
}

func (s *Store) GetAuditEntry(_ context.Context, entryID id.AuditID) (*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.auditLog[entryID.String()]
	if !ok {
		return nil, fmt.Errorf("audit entry %s: %w", entryID, store.ErrNotFound)
	}
	return copyAuditEntry(e), nil
}

func (s *Store) ListAuditEntries(_ context.Context, filter *audit.QueryFilter) ([]*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*audit.Entry, 0)
	for _, e := range s.auditLog {
		if filter != nil && !matchAuditEntry(e, filter) {
			continue
		}
		result = append(result, copyAuditEntry(e))
	}
	// Newest first.
	slices.SortFunc(result, func(a, b *audit.Entry) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID.String(), a.ID.String())
	})
	var p pagOpts
	if filter != nil {
		p = pagOpts{limit: filter.Limit, offset: filter.Offset}
	}
	return applyPagination(result, p), nil
}

func (s *Store) CountAuditEntries(ctx context.Context, filter *audit.QueryFilter) (int64, error) {
	f := audit.QueryFilter{}
	if filter != nil {
		f = *filter
	}
	f.Limit, f.Offset = 0, 0
	list, err := s.ListAuditEntries(ctx, &f)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) PurgeAuditEntries(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, e := range s.auditLog {
		if e.CreatedAt.Before(before) {
			delete(s.auditLog, k)
			n++
		}
	}
	return n, nil
}

func matchAuditEntry(e *audit.Entry, f *audit.QueryFilter) bool {
	switch {
	case f.Action != "" && e.Action != f.Action:
		return false
	case f.SubjectType != "" && e.SubjectType != f.SubjectType:
		return false
	case f.SubjectID != "" && e.SubjectID != f.SubjectID:
		return false
	case f.ResourceType != "" && e.ResourceType != f.ResourceType:
		return false
	case f.ResourceID != "" && e.ResourceID != f.ResourceID:
		return false
	case f.Success != nil && e.Success != *f.Success:
		return false
	case f.After != nil && !e.CreatedAt.After(*f.After):
		return false
	case f.Before != nil && !e.CreatedAt.Before(*f.Before):
		return false
	}
	return true
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func copyRole(r *role.Role) *role.Role {
	c := *r
	if r.ParentID != nil {
		pid := *r.ParentID
		c.ParentID = &pid
	}
	c.Metadata = maps.Clone(r.Metadata)
	return &c
}

func copyPermission(p *permission.Permission) *permission.Permission {
	c := *p
	c.Metadata = maps.Clone(p.Metadata)
	return &c
}

func copyAssignment(a *assignment.Assignment) *assignment.Assignment {
	c := *a
	c.ExpiresAt = copyTime(a.ExpiresAt)
	return &c
}

func copyGrant(g *grant.Grant) *grant.Grant {
	c := *g
	c.Conditions = maps.Clone(g.Conditions)
	c.ExpiresAt = copyTime(g.ExpiresAt)
	return &c
}

func copyOverride(o *override.Override) *override.Override {
	c := *o
	c.Conditions = maps.Clone(o.Conditions)
	c.ExpiresAt = copyTime(o.ExpiresAt)
	return &c
}

func copyAuditEntry(e *audit.Entry) *audit.Entry {
	c := *e
	c.Details = maps.Clone(e.Details)
	return &c
}

// Map iteration is random; list results are ordered by creation time and
// then ID so pagination is stable.

func sortRoles(items []*role.Role) {
	slices.SortFunc(items, func(a, b *role.Role) int {
		return byCreated(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
}

func sortAssignments(items []*assignment.Assignment) {
	slices.SortFunc(items, func(a, b *assignment.Assignment) int {
		return byCreated(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
}

func sortGrants(items []*grant.Grant) {
	slices.SortFunc(items, func(a, b *grant.Grant) int {
		return byCreated(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
}

func sortOverrides(items []*override.Override) {
	slices.SortFunc(items, func(a, b *override.Override) int {
		return byCreated(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
}

func byCreated(at, bt time.Time, aid, bid id.ID) int {
	if c := at.Compare(bt); c != 0 {
		return c
	}
	return cmp.Compare(aid.String(), bid.String())
}

type pagOpts struct{ limit, offset int }

func applyPagination[T any](items []*T, p pagOpts) []*T {
	if p.offset > 0 && p.offset < len(items) {
		items = items[p.offset:]
	} else if p.offset >= len(items) && p.offset > 0 {
		return nil
	}
	if p.limit > 0 && p.limit < len(items) {
		items = items[:p.limit]
	}
	return items
}
