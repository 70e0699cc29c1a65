package bastion

import (
	"errors"
	"strings"
	"testing"

	"github.com/xraph/bastion/grant"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/role"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	if !c.System {
		t.Fatal("expected the default catalog to be a system catalog")
	}
	if len(c.Permissions) != 19 {
		t.Fatalf("expected 19 permissions, got %d", len(c.Permissions))
	}
	names := make([]string, 0, len(c.Roles))
	for _, r := range c.Roles {
		names = append(names, r.Name)
	}
	want := "super_admin,admin,project_manager,content_creator,reviewer,client"
	if got := strings.Join(names, ","); got != want {
		t.Fatalf("expected roles %s, got %s", want, got)
	}
}

func TestBootstrap_SeedsAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	if err := f.eng.Bootstrap(f.ctx, nil); err != nil {
		t.Fatal(err)
	}
	perms, total, err := f.eng.ListPermissions(f.ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if total != 19 || len(perms) != 19 {
		t.Fatalf("expected 19 permissions, got %d", total)
	}
	for _, p := range perms {
		if !p.IsSystem {
			t.Fatalf("expected system permission, got %+v", p)
		}
	}

	admin, err := f.eng.GetRoleByName(f.ctx, "super_admin")
	if err != nil {
		t.Fatal(err)
	}
	if admin.Type != role.TypeSystem || !admin.IsSystem {
		t.Fatalf("expected a system role, got %+v", admin)
	}
	grants, err := f.eng.ListRoleGrants(f.ctx, admin.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(grants) != 19 {
		t.Fatalf("expected super_admin to hold every permission, got %d", len(grants))
	}

	if err := f.eng.Bootstrap(f.ctx, nil); err != nil {
		t.Fatalf("expected a second bootstrap to succeed, got %v", err)
	}
	again, err := f.eng.ListRoleGrants(f.ctx, admin.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 19 {
		t.Fatalf("expected no new grants on re-run, got %d", len(again))
	}

	f.assign("u1", admin)
	expectCode(t, f.check("u1", permission.ResourceSystem, permission.ActionManage, "", nil), AllowGrant)
}

func TestBootstrap_CustomCatalog(t *testing.T) {
	const doc = `
permissions:
  - resource_type: system
    action: manage
  - name: project.read
    resource_type: project
    action: read
roles:
  - name: root
    grants:
      - system.manage
  - name: auditor
    parent: root
    grants:
      - permission: project.read
        scope: own
      - permission: system.manage
        deny: true
`
	c, err := ParseCatalog(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	f := newFixture(t)
	// Custom catalogs are not system catalogs, so no super role exists.
	if err := f.eng.Bootstrap(f.ctx, c); !errors.Is(err, ErrNoSuperRole) {
		t.Fatalf("expected ErrNoSuperRole, got %v", err)
	}

	auditor, err := f.eng.GetRoleByName(f.ctx, "auditor")
	if err != nil {
		t.Fatal(err)
	}
	if auditor.Level != 1 {
		t.Fatalf("expected auditor under root, got level %d", auditor.Level)
	}
	grants, err := f.eng.ListRoleGrants(f.ctx, auditor.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	var own, deny bool
	for _, g := range grants {
		if g.Scope == grant.ScopeOwn && g.IsGranted {
			own = true
		}
		if !g.IsGranted {
			deny = true
		}
	}
	if !own || !deny {
		t.Fatalf("expected an own-scope allow and a deny, got %+v", grants)
	}

	f.assign("u1", auditor)
	expectCode(t, f.check("u1", permission.ResourceSystem, permission.ActionManage, "", nil), DenyGrant)
}

func TestParseCatalog_RejectsUnknownFields(t *testing.T) {
	if _, err := ParseCatalog(strings.NewReader("roles:\n  - name: x\n    colour: red\n")); err == nil {
		t.Fatal("expected an error for an unknown field")
	}
}

func TestVerifySuperRole(t *testing.T) {
	f := newFixture(t)
	if err := f.eng.VerifySuperRole(f.ctx); !errors.Is(err, ErrNoSuperRole) {
		t.Fatalf("expected ErrNoSuperRole on an empty store, got %v", err)
	}

	manage := f.permission(permission.ResourceSystem, permission.ActionManage)
	sys, err := f.eng.CreateRole(f.ctx, RoleInput{Name: "root", Type: role.TypeSystem, IsSystem: true})
	if err != nil {
		t.Fatal(err)
	}
	f.grant(sys, manage, grant.ScopeAll, true, map[string]any{"mfa": true})
	if err := f.eng.VerifySuperRole(f.ctx); !errors.Is(err, ErrNoSuperRole) {
		t.Fatalf("expected a conditional grant not to count, got %v", err)
	}

	f.grant(sys, manage, grant.ScopeAll, true, nil)
	if err := f.eng.VerifySuperRole(f.ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := f.eng.DeactivateRole(f.ctx, sys.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.eng.VerifySuperRole(f.ctx); !errors.Is(err, ErrNoSuperRole) {
		t.Fatalf("expected an inactive role not to count, got %v", err)
	}
}
