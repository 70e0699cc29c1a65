package plugin

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/xraph/bastion/grant"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/role"
)

// testPlugin implements Plugin + RoleCreated + AfterCheck + GrantSet.
type testPlugin struct {
	roleCreatedCalled bool
	afterCheckCalled  bool
	grants            int
}

func (t *testPlugin) Name() string { return "test-plugin" }

func (t *testPlugin) OnRoleCreated(_ context.Context, _ *role.Role) error {
	t.roleCreatedCalled = true
	return nil
}

func (t *testPlugin) OnAfterCheck(_ context.Context, _, _ any) error {
	t.afterCheckCalled = true
	return nil
}

func (t *testPlugin) OnGrantSet(_ context.Context, _ *grant.Grant) error {
	t.grants++
	return nil
}

// minimalPlugin only implements Plugin (no hooks).
type minimalPlugin struct{}

func (m *minimalPlugin) Name() string { return "minimal" }

// failingPlugin returns an error from its only hook.
type failingPlugin struct{}

func (f *failingPlugin) Name() string { return "failing" }

func (f *failingPlugin) OnShutdown(context.Context) error { return errors.New("boom") }

func TestRegistryDispatch(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(slog.Default())

	tp := &testPlugin{}
	reg.Register(tp)
	reg.Register(&minimalPlugin{})

	if len(reg.Plugins()) != 2 {
		t.Fatalf("expected 2 plugins, got %d", len(reg.Plugins()))
	}

	reg.EmitRoleCreated(ctx, &role.Role{ID: id.NewRoleID(), Name: "admin"})
	if !tp.roleCreatedCalled {
		t.Fatal("OnRoleCreated was not called")
	}

	reg.EmitAfterCheck(ctx, nil, nil)
	if !tp.afterCheckCalled {
		t.Fatal("OnAfterCheck was not called")
	}

	reg.EmitGrantSet(ctx, &grant.Grant{ID: id.NewGrantID()})
	reg.EmitGrantSet(ctx, &grant.Grant{ID: id.NewGrantID()})
	if tp.grants != 2 {
		t.Fatalf("expected 2 grant events, got %d", tp.grants)
	}

	// Should not panic on hooks with no listeners.
	reg.EmitBeforeCheck(ctx, nil)
	reg.EmitRoleDeleted(ctx, id.NewRoleID())
	reg.EmitOverrideRemoved(ctx, id.NewOverrideID())
	reg.EmitShutdown(ctx)
}

func TestRegistryLogsHookErrors(t *testing.T) {
	var buf bytes.Buffer
	reg := NewRegistry(slog.New(slog.NewTextHandler(&buf, nil)))
	reg.Register(&failingPlugin{})

	reg.EmitShutdown(context.Background())

	out := buf.String()
	if !strings.Contains(out, "plugin hook error") || !strings.Contains(out, "failing") {
		t.Fatalf("expected hook error to be logged, got %q", out)
	}
}
