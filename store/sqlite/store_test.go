package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/grant"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/override"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/store"
)

// base is whole-second UTC so stored and bound times compare as text.
var base = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	sdb := sqlitedriver.New()
	dsn := "file:" + filepath.Join(t.TempDir(), "bastion.sqlite")
	// One connection keeps the foreign_keys pragma in effect for every query.
	if err := sdb.Open(ctx, dsn, driver.WithPoolSize(1)); err != nil {
		t.Fatal(err)
	}
	db, err := grove.Open(sdb)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	return s
}

func seedRole(t *testing.T, s *Store, name string) id.RoleID {
	t.Helper()
	r := &role.Role{ID: id.NewRoleID(), Name: name, Type: role.TypeCustom, IsActive: true, CreatedAt: base, UpdatedAt: base}
	if err := s.CreateRole(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	return r.ID
}

func seedPermission(t *testing.T, s *Store, rt permission.ResourceType, action permission.Action) id.PermissionID {
	t.Helper()
	p := &permission.Permission{
		ID:           id.NewPermissionID(),
		Name:         string(rt) + "." + string(action),
		ResourceType: rt,
		Action:       action,
		CreatedAt:    base,
		UpdatedAt:    base,
	}
	if err := s.CreatePermission(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return p.ID
}

func TestRoleCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r := &role.Role{
		ID:        id.NewRoleID(),
		Name:      "admin",
		Type:      role.TypeSystem,
		IsActive:  true,
		IsSystem:  true,
		Metadata:  map[string]any{"tier": "ops"},
		CreatedAt: base,
		UpdatedAt: base,
	}
	if err := s.CreateRole(ctx, r); err != nil {
		t.Fatal(err)
	}

	dup := &role.Role{ID: id.NewRoleID(), Name: "admin", Type: role.TypeCustom, CreatedAt: base, UpdatedAt: base}
	if err := s.CreateRole(ctx, dup); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, err := s.GetRoleByName(ctx, "admin")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != r.ID || !got.IsSystem || got.Metadata["tier"] != "ops" {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	parentID := r.ID
	child := &role.Role{ID: id.NewRoleID(), Name: "editor", Type: role.TypeCustom, ParentID: &parentID, Level: 1, IsActive: true, CreatedAt: base, UpdatedAt: base}
	if err := s.CreateRole(ctx, child); err != nil {
		t.Fatal(err)
	}
	children, err := s.ListChildRoles(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 1 || children[0].ID != child.ID || children[0].ParentID == nil || *children[0].ParentID != r.ID {
		t.Fatalf("expected editor as only child, got %d", len(children))
	}

	child.ParentID = nil
	child.Level = 0
	if err := s.UpdateRole(ctx, child); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetRole(ctx, child.ID)
	if got.ParentID != nil || got.Level != 0 {
		t.Fatal("expected parent to be cleared")
	}

	if err := s.DeleteRole(ctx, child.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetRole(ctx, child.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteRole(ctx, child.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestPermissionUniqueness(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	permID := seedPermission(t, s, permission.ResourceProject, permission.ActionRead)

	sameKey := &permission.Permission{
		ID:           id.NewPermissionID(),
		Name:         "project.view",
		ResourceType: permission.ResourceProject,
		Action:       permission.ActionRead,
		CreatedAt:    base,
		UpdatedAt:    base,
	}
	if err := s.CreatePermission(ctx, sameKey); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate resource/action, got %v", err)
	}

	got, err := s.GetPermissionFor(ctx, permission.ResourceProject, permission.ActionRead)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != permID {
		t.Fatal("resource/action lookup mismatch")
	}
	if _, err := s.GetPermissionFor(ctx, permission.ResourceAsset, permission.ActionRead); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestActiveAssignments(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	past := base.Add(-time.Hour)
	future := base.Add(time.Hour)

	r1 := seedRole(t, s, "r1")
	r2 := seedRole(t, s, "r2")
	r3 := seedRole(t, s, "r3")

	live := &assignment.Assignment{ID: id.NewAssignmentID(), UserID: "u1", RoleID: r1, IsActive: true, ExpiresAt: &future, CreatedAt: base, UpdatedAt: base}
	expired := &assignment.Assignment{ID: id.NewAssignmentID(), UserID: "u1", RoleID: r2, IsActive: true, ExpiresAt: &past, CreatedAt: base, UpdatedAt: base}
	revoked := &assignment.Assignment{ID: id.NewAssignmentID(), UserID: "u1", RoleID: r3, IsActive: false, CreatedAt: base, UpdatedAt: base}
	other := &assignment.Assignment{ID: id.NewAssignmentID(), UserID: "u2", RoleID: r1, IsActive: true, CreatedAt: base, UpdatedAt: base}
	for _, a := range []*assignment.Assignment{live, expired, revoked, other} {
		if err := s.CreateAssignment(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	active, err := s.ListActiveAssignments(ctx, "u1", base)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].ID != live.ID {
		t.Fatalf("expected only the live assignment, got %d", len(active))
	}

	byRole, err := s.ListAssignmentsByRoles(ctx, []id.RoleID{r1})
	if err != nil {
		t.Fatal(err)
	}
	if len(byRole) != 2 {
		t.Fatalf("expected 2 assignments for r1, got %d", len(byRole))
	}

	byRoles, err := s.ListAssignmentsByRoles(ctx, []id.RoleID{r1, r2, r3})
	if err != nil {
		t.Fatal(err)
	}
	if len(byRoles) != 4 {
		t.Fatalf("expected 4 assignments across roles, got %d", len(byRoles))
	}

	n, err := s.DeleteExpiredAssignments(ctx, base)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired assignment purged, got %d", n)
	}
}

func TestActiveGrants(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	past := base.Add(-time.Minute)

	r1 := seedRole(t, s, "r1")
	r2 := seedRole(t, s, "r2")
	p1 := seedPermission(t, s, permission.ResourceProject, permission.ActionRead)
	p2 := seedPermission(t, s, permission.ResourceProject, permission.ActionUpdate)

	grants := []*grant.Grant{
		{ID: id.NewGrantID(), RoleID: r1, PermissionID: p1, Scope: grant.ScopeAll, IsGranted: true, CreatedAt: base, UpdatedAt: base},
		{ID: id.NewGrantID(), RoleID: r2, PermissionID: p1, Scope: grant.ScopeOwn, IsGranted: false, Conditions: map[string]any{"status": "draft"}, CreatedAt: base, UpdatedAt: base},
		{ID: id.NewGrantID(), RoleID: r1, PermissionID: p2, Scope: grant.ScopeAll, IsGranted: true, CreatedAt: base, UpdatedAt: base},
		{ID: id.NewGrantID(), RoleID: r1, PermissionID: p1, Scope: grant.ScopeOwn, IsGranted: true, ExpiresAt: &past, CreatedAt: base, UpdatedAt: base},
	}
	for _, g := range grants {
		if err := s.CreateGrant(ctx, g); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListActiveGrants(ctx, []id.RoleID{r1}, p1, base)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != grants[0].ID {
		t.Fatalf("expected one effective grant for r1/p1, got %d", len(got))
	}

	all, err := s.ListActiveGrants(ctx, []id.RoleID{r1, r2}, id.Nil, base)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 effective grants for any permission, got %d", len(all))
	}

	deny, err := s.ListActiveGrants(ctx, []id.RoleID{r2}, p1, base)
	if err != nil {
		t.Fatal(err)
	}
	if len(deny) != 1 || deny[0].IsGranted || deny[0].Scope != grant.ScopeOwn || deny[0].Conditions["status"] != "draft" {
		t.Fatalf("expected the conditional deny to round trip, got %+v", deny)
	}

	// Deleting a role cascades to its grants.
	if err := s.DeleteRole(ctx, r1); err != nil {
		t.Fatal(err)
	}
	left, err := s.CountGrants(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if left != 1 {
		t.Fatalf("expected 1 grant left after role delete, got %d", left)
	}
}

func TestActiveOverrides(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	past := base.Add(-time.Second)
	permID := seedPermission(t, s, permission.ResourceProject, permission.ActionRead)

	live := &override.Override{
		ID: id.NewOverrideID(), ResourceType: permission.ResourceProject, ResourceID: "p1",
		PermissionID: permID, SubjectType: override.SubjectUser, SubjectID: "u1",
		IsGranted: true, CreatedAt: base, UpdatedAt: base,
	}
	stale := &override.Override{
		ID: id.NewOverrideID(), ResourceType: permission.ResourceProject, ResourceID: "p1",
		PermissionID: permID, SubjectType: override.SubjectUser, SubjectID: "u2",
		ExpiresAt: &past, CreatedAt: base, UpdatedAt: base,
	}
	other := &override.Override{
		ID: id.NewOverrideID(), ResourceType: permission.ResourceProject, ResourceID: "p2",
		PermissionID: permID, SubjectType: override.SubjectUser, SubjectID: "u1",
		CreatedAt: base, UpdatedAt: base,
	}
	for _, o := range []*override.Override{live, stale, other} {
		if err := s.CreateOverride(ctx, o); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListActiveOverrides(ctx, permission.ResourceProject, "p1", permID, base)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != live.ID || !got[0].IsGranted {
		t.Fatalf("expected only the live override on p1, got %d", len(got))
	}

	if err := s.DeleteOverride(ctx, live.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetOverride(ctx, live.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAuditQueryAndPurge(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := range 5 {
		e := &audit.Entry{
			ID:        id.NewAuditID(),
			Action:    audit.Check,
			SubjectID: "u1",
			Success:   i%2 == 0,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := s.CreateAuditEntry(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.ListAuditEntries(ctx, &audit.QueryFilter{SubjectID: "u1", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(list))
	}
	if !list[0].CreatedAt.After(list[1].CreatedAt) {
		t.Fatal("expected newest first")
	}

	ok := true
	n, err := s.CountAuditEntries(ctx, &audit.QueryFilter{Success: &ok})
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected 3 successful entries, got %d", n)
	}

	purged, err := s.PurgeAuditEntries(ctx, base.Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if purged != 2 {
		t.Fatalf("expected 2 purged, got %d", purged)
	}
}
