package bastion

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/bastion/grant"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/override"
	"github.com/xraph/bastion/permission"
)

func TestGrantPermissionToRole_Supersedes(t *testing.T) {
	f := newFixture(t)
	read := f.permission(permission.ResourceProject, permission.ActionRead)
	r := f.role("member", nil)

	first := f.grant(r, read, grant.ScopeAll, true, nil)
	f.clock.Advance(time.Minute)
	second := f.grant(r, read, grant.ScopeAll, true, map[string]any{"stage": "final"})

	active, err := f.eng.ListRoleGrants(f.ctx, r.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].ID != second.ID {
		t.Fatalf("expected only the newest grant to be effective, got %+v", active)
	}

	all, err := f.eng.ListRoleGrants(f.ctx, r.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected history to be kept, got %d grants", len(all))
	}
	for _, g := range all {
		if g.ID == first.ID && (g.ExpiresAt == nil || !g.ExpiresAt.Equal(f.clock.Now())) {
			t.Fatalf("expected superseded grant to expire now, got %v", g.ExpiresAt)
		}
	}

	// Another scope is independent.
	f.grant(r, read, grant.ScopeOwn, false, nil)
	active, err = f.eng.ListRoleGrants(f.ctx, r.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 {
		t.Fatalf("expected one grant per scope, got %d", len(active))
	}
}

func TestGrantPermissionToRole_Validation(t *testing.T) {
	f := newFixture(t)
	read := f.permission(permission.ResourceProject, permission.ActionRead)
	r := f.role("member", nil)
	f.grant(r, read, grant.ScopeAll, true, map[string]any{"n": 3})

	cases := []struct {
		name string
		in   GrantInput
		want error
	}{
		{"duplicate", GrantInput{RoleID: r.ID, PermissionID: read.ID, IsGranted: true, Conditions: map[string]any{"n": 3.0}}, ErrDuplicateGrant},
		{"scope", GrantInput{RoleID: r.ID, PermissionID: read.ID, Scope: "team", IsGranted: true}, ErrInvalidScope},
		{"condition", GrantInput{RoleID: r.ID, PermissionID: read.ID, IsGranted: true, Conditions: map[string]any{"tags": []string{"x"}}}, ErrInvalidCondition},
		{"empty key", GrantInput{RoleID: r.ID, PermissionID: read.ID, IsGranted: true, Conditions: map[string]any{"": "x"}}, ErrInvalidCondition},
		{"role", GrantInput{RoleID: id.NewRoleID(), PermissionID: read.ID, IsGranted: true}, ErrRoleNotFound},
		{"permission", GrantInput{RoleID: r.ID, PermissionID: id.NewPermissionID(), IsGranted: true}, ErrPermissionNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.eng.GrantPermissionToRole(f.ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRevokeGrant(t *testing.T) {
	f := newFixture(t)
	read := f.permission(permission.ResourceProject, permission.ActionRead)
	r := f.role("member", nil)
	g := f.grant(r, read, grant.ScopeAll, true, nil)
	f.assign("u1", r)

	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "", nil), AllowGrant)
	if err := f.eng.RevokeGrant(f.ctx, g.ID); err != nil {
		t.Fatal(err)
	}
	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "", nil), DenyDefault)
	if err := f.eng.RevokeGrant(f.ctx, g.ID); !errors.Is(err, ErrGrantNotFound) {
		t.Fatalf("expected ErrGrantNotFound, got %v", err)
	}
}

func TestSetResourceOverride_ReplacesEffectiveOverride(t *testing.T) {
	f := newFixture(t)
	f.permission(permission.ResourceAsset, permission.ActionUpdate)
	in := OverrideInput{
		ResourceType: permission.ResourceAsset,
		ResourceID:   "a1",
		Action:       permission.ActionUpdate,
		SubjectType:  override.SubjectUser,
		SubjectID:    "u1",
		IsGranted:    true,
	}
	first, err := f.eng.SetResourceOverride(f.ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	in.IsGranted = false
	second, err := f.eng.SetResourceOverride(f.ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the override to be updated in place")
	}

	list, total, err := f.eng.ListResourceOverrides(f.ctx, &override.ListFilter{ResourceType: permission.ResourceAsset, ResourceID: "a1"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(list) != 1 || list[0].IsGranted {
		t.Fatalf("expected a single deny override, got %d %+v", total, list)
	}

	expectCode(t, f.check("u1", permission.ResourceAsset, permission.ActionUpdate, "a1", nil), DenyOverride)
	if err := f.eng.RemoveResourceOverride(f.ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	d := f.check("u1", permission.ResourceAsset, permission.ActionUpdate, "a1", nil)
	expectCode(t, d, DenyDefault)
	if d.Cached {
		t.Fatal("expected override removal to invalidate the resource")
	}
}

func TestSetResourceOverride_Validation(t *testing.T) {
	f := newFixture(t)
	f.permission(permission.ResourceAsset, permission.ActionRead)
	base := OverrideInput{
		ResourceType: permission.ResourceAsset,
		ResourceID:   "a1",
		Action:       permission.ActionRead,
		SubjectType:  override.SubjectUser,
		SubjectID:    "u1",
	}
	past := f.clock.Now().Add(-time.Hour)

	cases := []struct {
		name   string
		mutate func(*OverrideInput)
		want   error
	}{
		{"resource type", func(in *OverrideInput) { in.ResourceType = "spaceship" }, ErrInvalidResourceType},
		{"action", func(in *OverrideInput) { in.Action = "fly" }, ErrInvalidAction},
		{"resource id", func(in *OverrideInput) { in.ResourceID = "" }, ErrInvalidRequest},
		{"subject type", func(in *OverrideInput) { in.SubjectType = "group" }, ErrInvalidRequest},
		{"subject id", func(in *OverrideInput) { in.SubjectID = " " }, ErrInvalidRequest},
		{"expiry", func(in *OverrideInput) { in.ExpiresAt = &past }, ErrInvalidRequest},
		{"condition", func(in *OverrideInput) { in.Conditions = map[string]any{"k": map[string]any{}} }, ErrInvalidCondition},
		{"role subject", func(in *OverrideInput) {
			in.SubjectType = override.SubjectRole
			in.SubjectID = id.NewRoleID().String()
		}, ErrRoleNotFound},
		{"unknown permission", func(in *OverrideInput) { in.Action = permission.ActionDelete }, ErrUnknownPermission},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			if _, err := f.eng.SetResourceOverride(f.ctx, in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestPermissions(t *testing.T) {
	f := newFixture(t)
	p := f.permission(permission.ResourceScript, permission.ActionExport)
	if p.Name != "script.export" {
		t.Fatalf("expected derived name, got %q", p.Name)
	}
	if _, err := f.eng.CreatePermission(f.ctx, PermissionInput{ResourceType: permission.ResourceScript, Action: permission.ActionExport}); !errors.Is(err, ErrDuplicatePermission) {
		t.Fatalf("expected ErrDuplicatePermission, got %v", err)
	}
	if _, err := f.eng.CreatePermission(f.ctx, PermissionInput{ResourceType: "spaceship", Action: permission.ActionRead}); !errors.Is(err, ErrInvalidResourceType) {
		t.Fatalf("expected ErrInvalidResourceType, got %v", err)
	}

	r := f.role("writer", nil)
	f.grant(r, p, grant.ScopeAll, true, nil)
	if err := f.eng.DeletePermission(f.ctx, p.ID); !errors.Is(err, ErrPermissionInUse) {
		t.Fatalf("expected ErrPermissionInUse, got %v", err)
	}

	sys, err := f.eng.CreatePermission(f.ctx, PermissionInput{ResourceType: permission.ResourceSystem, Action: permission.ActionRead, IsSystem: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.eng.DeletePermission(f.ctx, sys.ID); !errors.Is(err, ErrSystemPermissionImmutable) {
		t.Fatalf("expected ErrSystemPermissionImmutable, got %v", err)
	}

	free := f.permission(permission.ResourceVideo, permission.ActionShare)
	if err := f.eng.DeletePermission(f.ctx, free.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.eng.GetPermission(f.ctx, free.ID); !errors.Is(err, ErrPermissionNotFound) {
		t.Fatalf("expected ErrPermissionNotFound, got %v", err)
	}
}

func TestCreatePermission_InvalidatesUnknownDenials(t *testing.T) {
	f := newFixture(t)
	r := f.role("member", nil)
	f.assign("u1", r)

	expectCode(t, f.check("u1", permission.ResourceVideo, permission.ActionPublish, "", nil), DenyUnknownPermission)

	p := f.permission(permission.ResourceVideo, permission.ActionPublish)
	f.grant(r, p, grant.ScopeAll, true, nil)
	expectCode(t, f.check("u1", permission.ResourceVideo, permission.ActionPublish, "", nil), AllowGrant)
}
