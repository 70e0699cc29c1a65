package bastion

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/bastion/grant"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/role"
)

func TestCreateRole_Levels(t *testing.T) {
	f := newFixture(t)
	a := f.role("a", nil)
	b := f.role("b", a)
	c := f.role("c", b)

	if a.Level != 0 || b.Level != 1 || c.Level != 2 {
		t.Fatalf("unexpected levels %d %d %d", a.Level, b.Level, c.Level)
	}
	if c.ParentID == nil || *c.ParentID != b.ID {
		t.Fatalf("expected parent %s, got %v", b.ID, c.ParentID)
	}
	if c.Type != role.TypeCustom || !c.IsActive {
		t.Fatalf("expected an active custom role, got %+v", c)
	}
}

func TestCreateRole_Validation(t *testing.T) {
	f := newFixture(t)
	f.role("dup", nil)

	if _, err := f.eng.CreateRole(f.ctx, RoleInput{Name: "  "}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := f.eng.CreateRole(f.ctx, RoleInput{Name: "dup"}); !errors.Is(err, ErrDuplicateRole) {
		t.Fatalf("expected ErrDuplicateRole, got %v", err)
	}
	missing := id.NewRoleID()
	if _, err := f.eng.CreateRole(f.ctx, RoleInput{Name: "orphan", ParentID: &missing}); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}

	parent := f.role("parent", nil)
	if _, err := f.eng.DeactivateRole(f.ctx, parent.ID); err != nil {
		t.Fatal(err)
	}
	pid := parent.ID
	if _, err := f.eng.CreateRole(f.ctx, RoleInput{Name: "child", ParentID: &pid}); !errors.Is(err, ErrRoleInactive) {
		t.Fatalf("expected ErrRoleInactive, got %v", err)
	}
}

func TestCreateRole_DepthLimit(t *testing.T) {
	f := newFixture(t, WithConfig(Config{MaxRoleDepth: 3}))
	a := f.role("a", nil)
	b := f.role("b", a)
	c := f.role("c", b)

	pid := c.ID
	if _, err := f.eng.CreateRole(f.ctx, RoleInput{Name: "d", ParentID: &pid}); !errors.Is(err, ErrRoleDepthExceeded) {
		t.Fatalf("expected ErrRoleDepthExceeded, got %v", err)
	}
}

func TestReparentRole_RejectsCycles(t *testing.T) {
	f := newFixture(t)
	a := f.role("a", nil)
	b := f.role("b", a)
	c := f.role("c", b)

	cid := c.ID
	if _, err := f.eng.ReparentRole(f.ctx, a.ID, &cid); !errors.Is(err, ErrCyclicRoleHierarchy) {
		t.Fatalf("expected ErrCyclicRoleHierarchy, got %v", err)
	}
	aid := a.ID
	if _, err := f.eng.ReparentRole(f.ctx, a.ID, &aid); !errors.Is(err, ErrCyclicRoleHierarchy) {
		t.Fatalf("expected ErrCyclicRoleHierarchy for self parent, got %v", err)
	}

	got, err := f.eng.GetRole(f.ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ParentID != nil {
		t.Fatalf("expected a to remain a root, got parent %v", got.ParentID)
	}
}

func TestReparentRole_RelevelsSubtree(t *testing.T) {
	f := newFixture(t)
	read := f.permission(permission.ResourceProject, permission.ActionRead)
	root1 := f.role("root1", nil)
	root2 := f.role("root2", nil)
	mid := f.role("mid", root2)
	a := f.role("a", nil)
	b := f.role("b", a)
	f.grant(root1, read, grant.ScopeAll, true, nil)
	f.assign("u1", b)

	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "", nil), DenyDefault)

	// a moves under root2/mid; the read grant is on root1, still not reachable.
	mid2 := mid.ID
	moved, err := f.eng.ReparentRole(f.ctx, a.ID, &mid2)
	if err != nil {
		t.Fatal(err)
	}
	if moved.Level != 2 {
		t.Fatalf("expected level 2, got %d", moved.Level)
	}
	child, err := f.eng.GetRole(f.ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if child.Level != 3 {
		t.Fatalf("expected descendant level 3, got %d", child.Level)
	}

	r1 := root1.ID
	if _, err := f.eng.ReparentRole(f.ctx, mid.ID, &r1); err != nil {
		t.Fatal(err)
	}
	d := f.check("u1", permission.ResourceProject, permission.ActionRead, "", nil)
	expectCode(t, d, AllowGrant)
	if d.Cached {
		t.Fatal("expected reparent to invalidate holders of descendant roles")
	}

	if _, err := f.eng.ReparentRole(f.ctx, a.ID, nil); err != nil {
		t.Fatal(err)
	}
	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "", nil), DenyDefault)
}

func TestReparentRole_PartialFailureInvalidatesHolders(t *testing.T) {
	f := newFixture(t)
	read := f.permission(permission.ResourceProject, permission.ActionRead)
	a := f.role("a", nil)
	b := f.role("b", a)
	f.role("c", b)
	f.grant(a, read, grant.ScopeAll, true, nil)
	f.assign("u1", b)

	f.check("u1", permission.ResourceProject, permission.ActionRead, "", nil)
	if d := f.check("u1", permission.ResourceProject, permission.ActionRead, "", nil); !d.Cached || d.Code != AllowGrant {
		t.Fatalf("expected a cached allow, got %+v", d)
	}

	// b's new parent is written, then releveling c fails.
	f.fs.set(func(s *failingStore) {
		s.failRoleUpdates = true
		s.roleUpdatesOK = 1
	})
	if _, err := f.eng.ReparentRole(f.ctx, b.ID, nil); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	f.fs.set(func(s *failingStore) { s.failRoleUpdates = false })

	stored, err := f.eng.GetRole(f.ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.ParentID != nil {
		t.Fatalf("expected the committed parent change, got %v", stored.ParentID)
	}

	d := f.check("u1", permission.ResourceProject, permission.ActionRead, "", nil)
	expectCode(t, d, DenyDefault)
	if d.Cached {
		t.Fatal("expected holders to be invalidated after a committed reparent")
	}
}

func TestReparentRole_DepthLimit(t *testing.T) {
	f := newFixture(t, WithConfig(Config{MaxRoleDepth: 3}))
	a := f.role("a", nil)
	b := f.role("b", a)
	x := f.role("x", nil)
	f.role("y", x)

	bid := b.ID
	if _, err := f.eng.ReparentRole(f.ctx, x.ID, &bid); !errors.Is(err, ErrRoleDepthExceeded) {
		t.Fatalf("expected ErrRoleDepthExceeded, got %v", err)
	}
}

func TestDeleteRole(t *testing.T) {
	f := newFixture(t)
	read := f.permission(permission.ResourceProject, permission.ActionRead)

	held := f.role("held", nil)
	f.assign("u1", held)
	if err := f.eng.DeleteRole(f.ctx, held.ID); !errors.Is(err, ErrRoleInUse) {
		t.Fatalf("expected ErrRoleInUse for assigned role, got %v", err)
	}

	granted := f.role("granted", nil)
	f.grant(granted, read, grant.ScopeAll, true, nil)
	if err := f.eng.DeleteRole(f.ctx, granted.ID); !errors.Is(err, ErrRoleInUse) {
		t.Fatalf("expected ErrRoleInUse for role with grants, got %v", err)
	}

	parent := f.role("parent", nil)
	f.role("child", parent)
	if err := f.eng.DeleteRole(f.ctx, parent.ID); !errors.Is(err, ErrRoleInUse) {
		t.Fatalf("expected ErrRoleInUse for role with children, got %v", err)
	}

	sys, err := f.eng.CreateRole(f.ctx, RoleInput{Name: "sys", Type: role.TypeSystem, IsSystem: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.eng.DeleteRole(f.ctx, sys.ID); !errors.Is(err, ErrSystemRoleImmutable) {
		t.Fatalf("expected ErrSystemRoleImmutable, got %v", err)
	}

	free := f.role("free", nil)
	if err := f.eng.DeleteRole(f.ctx, free.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.eng.GetRole(f.ctx, free.ID); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound after delete, got %v", err)
	}
}

func TestUpdateRole(t *testing.T) {
	f := newFixture(t)
	r := f.role("editor", nil)

	display := "Editor"
	f.clock.Advance(time.Minute)
	got, err := f.eng.UpdateRole(f.ctx, r.ID, RoleUpdate{DisplayName: &display})
	if err != nil {
		t.Fatal(err)
	}
	if got.DisplayName != "Editor" || !got.UpdatedAt.After(r.CreatedAt) {
		t.Fatalf("unexpected update result %+v", got)
	}
	byName, err := f.eng.GetRoleByName(f.ctx, "editor")
	if err != nil {
		t.Fatal(err)
	}
	if byName.DisplayName != "Editor" {
		t.Fatalf("expected stored display name, got %q", byName.DisplayName)
	}
}

func TestAssignRole_Validation(t *testing.T) {
	f := newFixture(t)
	r := f.role("member", nil)
	f.assign("u1", r)

	if _, err := f.eng.AssignRole(f.ctx, AssignRoleInput{UserID: "u1", RoleID: r.ID}); !errors.Is(err, ErrDuplicateAssignment) {
		t.Fatalf("expected ErrDuplicateAssignment, got %v", err)
	}
	if _, err := f.eng.AssignRole(f.ctx, AssignRoleInput{UserID: "", RoleID: r.ID}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	past := f.clock.Now().Add(-time.Second)
	if _, err := f.eng.AssignRole(f.ctx, AssignRoleInput{UserID: "u2", RoleID: r.ID, ExpiresAt: &past}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for past expiry, got %v", err)
	}
	if _, err := f.eng.AssignRole(f.ctx, AssignRoleInput{UserID: "u2", RoleID: id.NewRoleID()}); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
	if err := f.eng.RevokeRole(f.ctx, "u2", r.ID); !errors.Is(err, ErrAssignmentNotFound) {
		t.Fatalf("expected ErrAssignmentNotFound, got %v", err)
	}

	// Revoked assignments can be re-granted.
	if err := f.eng.RevokeRole(f.ctx, "u1", r.ID); err != nil {
		t.Fatal(err)
	}
	f.assign("u1", r)
	list, err := f.eng.ListUserRoles(f.ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	var active int
	for _, a := range list {
		if a.IsActive {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("expected one active assignment, got %d of %d", active, len(list))
	}
}

func TestPurgeExpiredAssignments(t *testing.T) {
	f := newFixture(t)
	r := f.role("temp", nil)
	exp := f.clock.Now().Add(time.Hour)
	if _, err := f.eng.AssignRole(f.ctx, AssignRoleInput{UserID: "u1", RoleID: r.ID, ExpiresAt: &exp}); err != nil {
		t.Fatal(err)
	}
	f.assign("u2", r)

	f.clock.Advance(2 * time.Hour)
	n, err := f.eng.PurgeExpiredAssignments(f.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged assignment, got %d", n)
	}
}
