package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/xraph/forge"
	forgeerrors "github.com/xraph/forge/errors"

	"github.com/xraph/bastion"
	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/grant"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/store/memory"
)

// newTestAPI builds an API over a memory store where "admin" holds
// system.manage and "u1" may read projects.
func newTestAPI(t *testing.T, opts ...Option) (*API, *memory.Store) {
	t.Helper()
	ctx := context.Background()
	mem := memory.New()
	eng, err := bastion.NewEngine(
		bastion.WithStore(mem),
		bastion.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatal(err)
	}

	grantTo := func(roleName, user string, rt permission.ResourceType, action permission.Action) {
		t.Helper()
		p, err := eng.CreatePermission(ctx, bastion.PermissionInput{ResourceType: rt, Action: action})
		if err != nil {
			t.Fatal(err)
		}
		r, err := eng.CreateRole(ctx, bastion.RoleInput{Name: roleName})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := eng.GrantPermissionToRole(ctx, bastion.GrantInput{
			RoleID: r.ID, PermissionID: p.ID, Scope: grant.ScopeAll, IsGranted: true,
		}); err != nil {
			t.Fatal(err)
		}
		if _, err := eng.AssignRole(ctx, bastion.AssignRoleInput{UserID: user, RoleID: r.ID}); err != nil {
			t.Fatal(err)
		}
	}
	grantTo("operator", "admin", permission.ResourceSystem, permission.ActionManage)
	grantTo("reader", "u1", permission.ResourceProject, permission.ActionRead)
	if _, err := eng.CreatePermission(ctx, bastion.PermissionInput{
		ResourceType: permission.ResourceProject, Action: permission.ActionUpdate,
	}); err != nil {
		t.Fatal(err)
	}

	return New(eng, nil, opts...), mem
}

func as(user string) context.Context {
	return forge.WithUserID(context.Background(), user)
}

func TestEvaluate_SelfCheckIsPublic(t *testing.T) {
	a, mem := newTestAPI(t)

	resp, err := a.evaluate(as("u1"), &CheckRequest{ResourceType: "project", Action: "read", ResourceID: "p1"})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Allowed || resp.Decision != string(bastion.AllowGrant) || len(resp.Trace) != 0 {
		t.Fatalf("expected a public allow, got %+v", resp)
	}

	resp, err = a.evaluate(as("u1"), &CheckRequest{SubjectID: "u1", ResourceType: "project", Action: "update"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Allowed || resp.Decision != string(bastion.Deny) || resp.Reason != "" || len(resp.Trace) != 0 {
		t.Fatalf("expected a bare deny, got %+v", resp)
	}

	entries, err := mem.ListAuditEntries(context.Background(), &audit.QueryFilter{Action: audit.Check, SubjectID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].PerformedBy != "u1" {
		t.Fatalf("expected 2 checks performed by u1, got %d", len(entries))
	}
}

func TestEvaluate_OtherSubjectRequiresAdmin(t *testing.T) {
	a, _ := newTestAPI(t)
	req := &CheckRequest{SubjectID: "u1", ResourceType: "project", Action: "update"}

	_, err := a.evaluate(as("u2"), req)
	if code := forgeerrors.GetHTTPStatusCode(err); code != http.StatusForbidden {
		t.Fatalf("expected 403 for a non-admin caller, got %d (%v)", code, err)
	}

	resp, err := a.evaluate(as("admin"), req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Allowed || resp.Decision != string(bastion.DenyDefault) || len(resp.Trace) == 0 {
		t.Fatalf("expected the full deny with trace for an admin, got %+v", resp)
	}
}

func TestEvaluate_WithoutAdminGuard(t *testing.T) {
	a, _ := newTestAPI(t, WithoutAdminGuard())

	resp, err := a.evaluate(as("u2"), &CheckRequest{SubjectID: "u1", ResourceType: "project", Action: "read"})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Allowed || len(resp.Trace) == 0 {
		t.Fatalf("expected an explained allow, got %+v", resp)
	}
}

func TestEvaluate_RequiresSubject(t *testing.T) {
	a, _ := newTestAPI(t)

	_, err := a.evaluate(context.Background(), &CheckRequest{ResourceType: "project", Action: "read"})
	if code := forgeerrors.GetHTTPStatusCode(err); code != http.StatusBadRequest {
		t.Fatalf("expected 400 without caller or subject, got %d (%v)", code, err)
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{bastion.ErrRoleNotFound, http.StatusNotFound},
		{bastion.ErrAccessDenied, http.StatusForbidden},
		{bastion.ErrCyclicRoleHierarchy, http.StatusBadRequest},
		{bastion.ErrDuplicateGrant, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if got := forgeerrors.GetHTTPStatusCode(mapError(tt.err)); got != tt.want {
			t.Errorf("mapError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
	if mapError(nil) != nil {
		t.Fatal("expected nil for nil")
	}
}
