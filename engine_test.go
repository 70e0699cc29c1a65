package bastion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/grant"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/override"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/store"
	"github.com/xraph/bastion/store/memory"
)

// ──────────────────────────────────────────────────
// Fixtures
// ──────────────────────────────────────────────────

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// mapCache is a Cache with switchable failures.
type mapCache struct {
	mu             sync.Mutex
	entries        map[CacheKey]*Decision
	failGet        bool
	failSet        bool
	failInvalidate bool
}

func newMapCache() *mapCache { return &mapCache{entries: make(map[CacheKey]*Decision)} }

var errCacheDown = errors.New("cache down")

func (c *mapCache) Get(_ context.Context, key CacheKey) (*Decision, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, false, errCacheDown
	}
	d, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	cp := *d
	return &cp, true, nil
}

func (c *mapCache) Set(_ context.Context, key CacheKey, d *Decision) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSet {
		return errCacheDown
	}
	cp := *d
	c.entries[key] = &cp
	return nil
}

func (c *mapCache) InvalidateSubject(_ context.Context, subjectID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failInvalidate {
		return errCacheDown
	}
	maps.DeleteFunc(c.entries, func(k CacheKey, _ *Decision) bool { return k.SubjectID == subjectID })
	return nil
}

func (c *mapCache) InvalidateResource(_ context.Context, rt permission.ResourceType, resourceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failInvalidate {
		return errCacheDown
	}
	maps.DeleteFunc(c.entries, func(k CacheKey, _ *Decision) bool {
		return k.ResourceType == rt && k.ResourceID == resourceID
	})
	return nil
}

func (c *mapCache) InvalidateAll(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failInvalidate {
		return errCacheDown
	}
	clear(c.entries)
	return nil
}

func (c *mapCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// failingStore fails selected reads and writes.
type failingStore struct {
	store.Store
	mu          sync.Mutex
	grants      bool
	assignments bool
	audit       bool

	// When failRoleUpdates is set, roleUpdatesOK more UpdateRole calls
	// succeed and the rest fail.
	failRoleUpdates bool
	roleUpdatesOK   int
}

var errStoreDown = errors.New("store down")

func (s *failingStore) set(fn func(*failingStore)) {
	s.mu.Lock()
	fn(s)
	s.mu.Unlock()
}

func (s *failingStore) ListActiveGrants(ctx context.Context, roleIDs []id.RoleID, permID id.PermissionID, asOf time.Time) ([]*grant.Grant, error) {
	s.mu.Lock()
	fail := s.grants
	s.mu.Unlock()
	if fail {
		return nil, errStoreDown
	}
	return s.Store.ListActiveGrants(ctx, roleIDs, permID, asOf)
}

func (s *failingStore) ListActiveAssignments(ctx context.Context, userID string, asOf time.Time) ([]*assignment.Assignment, error) {
	s.mu.Lock()
	fail := s.assignments
	s.mu.Unlock()
	if fail {
		return nil, errStoreDown
	}
	return s.Store.ListActiveAssignments(ctx, userID, asOf)
}

func (s *failingStore) UpdateRole(ctx context.Context, r *role.Role) error {
	s.mu.Lock()
	fail := s.failRoleUpdates && s.roleUpdatesOK <= 0
	if s.failRoleUpdates && s.roleUpdatesOK > 0 {
		s.roleUpdatesOK--
	}
	s.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return s.Store.UpdateRole(ctx, r)
}

func (s *failingStore) CreateAuditEntry(ctx context.Context, e *audit.Entry) error {
	s.mu.Lock()
	fail := s.audit
	s.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return s.Store.CreateAuditEntry(ctx, e)
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	eng   *Engine
	mem   *memory.Store
	fs    *failingStore
	clock *fakeClock
	cache *mapCache
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	mem := memory.New()
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		mem:   mem,
		fs:    &failingStore{Store: mem},
		clock: &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)},
		cache: newMapCache(),
	}
	base := []Option{
		WithStore(f.fs),
		WithClock(f.clock),
		WithCache(f.cache),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	eng, err := NewEngine(append(base, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	f.eng = eng
	return f
}

func (f *fixture) permission(rt permission.ResourceType, action permission.Action) *permission.Permission {
	f.t.Helper()
	p, err := f.eng.CreatePermission(f.ctx, PermissionInput{ResourceType: rt, Action: action})
	if err != nil {
		f.t.Fatal(err)
	}
	return p
}

func (f *fixture) role(name string, parent *role.Role) *role.Role {
	f.t.Helper()
	in := RoleInput{Name: name}
	if parent != nil {
		pid := parent.ID
		in.ParentID = &pid
	}
	r, err := f.eng.CreateRole(f.ctx, in)
	if err != nil {
		f.t.Fatal(err)
	}
	return r
}

func (f *fixture) grant(r *role.Role, p *permission.Permission, scope grant.Scope, granted bool, conds map[string]any) *grant.Grant {
	f.t.Helper()
	g, err := f.eng.GrantPermissionToRole(f.ctx, GrantInput{
		RoleID:       r.ID,
		PermissionID: p.ID,
		Scope:        scope,
		Conditions:   conds,
		IsGranted:    granted,
	})
	if err != nil {
		f.t.Fatal(err)
	}
	return g
}

func (f *fixture) assign(userID string, r *role.Role) *assignment.Assignment {
	f.t.Helper()
	a, err := f.eng.AssignRole(f.ctx, AssignRoleInput{UserID: userID, RoleID: r.ID})
	if err != nil {
		f.t.Fatal(err)
	}
	return a
}

func (f *fixture) check(userID string, rt permission.ResourceType, action permission.Action, resourceID string, rc *RequestContext) *Decision {
	f.t.Helper()
	d, err := f.eng.CheckPermission(f.ctx, &CheckRequest{
		SubjectID:    userID,
		ResourceType: rt,
		Action:       action,
		ResourceID:   resourceID,
		Context:      rc,
	})
	if err != nil {
		f.t.Fatal(err)
	}
	return d
}

func (f *fixture) checkAudits() []*audit.Entry {
	f.t.Helper()
	entries, err := f.mem.ListAuditEntries(f.ctx, &audit.QueryFilter{Action: audit.Check})
	if err != nil {
		f.t.Fatal(err)
	}
	return entries
}

func expectCode(t *testing.T, d *Decision, want DecisionCode) {
	t.Helper()
	if d.Code != want {
		t.Fatalf("expected %s, got %s (%s) trace=%+v", want, d.Code, d.Reason, d.Trace)
	}
	if d.Allowed != want.Allowed() {
		t.Fatalf("Allowed=%v does not match code %s", d.Allowed, d.Code)
	}
}

// ──────────────────────────────────────────────────
// Engine construction
// ──────────────────────────────────────────────────

func TestNewEngine_RequiresStore(t *testing.T) {
	_, err := NewEngine()
	if err == nil {
		t.Fatal("expected error when store is nil")
	}
}

func TestNewEngine_FillsConfigDefaults(t *testing.T) {
	eng, err := NewEngine(WithStore(memory.New()), WithConfig(Config{CacheTTL: time.Second}))
	if err != nil {
		t.Fatal(err)
	}
	cfg := eng.Config()
	if cfg.CacheTTL != time.Second {
		t.Fatalf("expected explicit CacheTTL to be kept, got %s", cfg.CacheTTL)
	}
	if cfg.MaxRoleDepth != 10 || cfg.StoreTimeout != 2*time.Second {
		t.Fatalf("expected defaults for zero fields, got %+v", cfg)
	}
}

// ──────────────────────────────────────────────────
// Resolution
// ──────────────────────────────────────────────────

func TestCheck_NoRolesDeniesEverything(t *testing.T) {
	f := newFixture(t)
	admin := f.role("admin", nil)
	for _, rt := range []permission.ResourceType{permission.ResourceProject, permission.ResourceAsset, permission.ResourceSystem} {
		for _, action := range []permission.Action{permission.ActionRead, permission.ActionManage} {
			f.grant(admin, f.permission(rt, action), grant.ScopeAll, true, nil)
		}
	}

	for _, rt := range []permission.ResourceType{permission.ResourceProject, permission.ResourceAsset, permission.ResourceSystem} {
		for _, action := range []permission.Action{permission.ActionRead, permission.ActionManage} {
			d := f.check("nobody", rt, action, "r1", nil)
			expectCode(t, d, DenyDefault)
		}
	}
}

func TestCheck_ExampleScenario(t *testing.T) {
	f := newFixture(t)
	read := f.permission(permission.ResourceProject, permission.ActionRead)
	creator := f.role("content_creator", nil)
	f.grant(creator, read, grant.ScopeOwn, true, nil)
	f.assign("U1", creator)

	d := f.check("U1", permission.ResourceProject, permission.ActionRead, "P1", &RequestContext{ResourceOwnerID: "U1"})
	expectCode(t, d, AllowGrant)

	d = f.check("U1", permission.ResourceProject, permission.ActionRead, "P2", &RequestContext{ResourceOwnerID: "U2"})
	expectCode(t, d, DenyDefault)

	if _, err := f.eng.SetResourceOverride(f.ctx, OverrideInput{
		ResourceType: permission.ResourceProject,
		ResourceID:   "P2",
		Action:       permission.ActionRead,
		SubjectType:  override.SubjectUser,
		SubjectID:    "U1",
		IsGranted:    true,
	}); err != nil {
		t.Fatal(err)
	}

	d = f.check("U1", permission.ResourceProject, permission.ActionRead, "P2", &RequestContext{ResourceOwnerID: "U2"})
	expectCode(t, d, AllowOverride)
	if d.Cached {
		t.Fatal("expected a fresh decision after the override")
	}
}

func TestCheck_DenyWinsWithinRoleGrants(t *testing.T) {
	f := newFixture(t)
	read := f.permission(permission.ResourceProject, permission.ActionRead)
	viewers := f.role("viewers", nil)
	blocked := f.role("blocked", nil)
	f.grant(viewers, read, grant.ScopeAll, true, nil)
	f.grant(blocked, read, grant.ScopeAll, false, nil)
	f.assign("u1", viewers)
	f.assign("u1", blocked)

	d := f.check("u1", permission.ResourceProject, permission.ActionRead, "", nil)
	expectCode(t, d, DenyGrant)
}

func TestCheck_DenyWinsAcrossScopesOfOneRole(t *testing.T) {
	f := newFixture(t)
	update := f.permission(permission.ResourceProject, permission.ActionUpdate)
	editor := f.role("editor", nil)
	f.grant(editor, update, grant.ScopeAll, true, nil)
	f.grant(editor, update, grant.ScopeOwn, false, nil)
	f.assign("u1", editor)

	// The deny only applies to the subject's own projects.
	d := f.check("u1", permission.ResourceProject, permission.ActionUpdate, "p1", &RequestContext{ResourceOwnerID: "u1"})
	expectCode(t, d, DenyGrant)

	d = f.check("u1", permission.ResourceProject, permission.ActionUpdate, "p2", &RequestContext{ResourceOwnerID: "u2"})
	expectCode(t, d, AllowGrant)
}

func TestCheck_OverrideBeatsRoleGrants(t *testing.T) {
	f := newFixture(t)
	read := f.permission(permission.ResourceProject, permission.ActionRead)
	update := f.permission(permission.ResourceProject, permission.ActionUpdate)
	member := f.role("member", nil)
	f.grant(member, read, grant.ScopeAll, true, nil)
	f.grant(member, update, grant.ScopeAll, false, nil)
	f.assign("u1", member)

	set := func(action permission.Action, granted bool) {
		t.Helper()
		if _, err := f.eng.SetResourceOverride(f.ctx, OverrideInput{
			ResourceType: permission.ResourceProject,
			ResourceID:   "p1",
			Action:       action,
			SubjectType:  override.SubjectUser,
			SubjectID:    "u1",
			IsGranted:    granted,
		}); err != nil {
			t.Fatal(err)
		}
	}
	set(permission.ActionRead, false)
	set(permission.ActionUpdate, true)

	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "p1", nil), DenyOverride)
	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "p2", nil), AllowGrant)
	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionUpdate, "p1", nil), AllowOverride)
	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionUpdate, "p2", nil), DenyGrant)
}

func TestCheck_RoleOverrideAppliesToHolders(t *testing.T) {
	f := newFixture(t)
	read := f.permission(permission.ResourceAsset, permission.ActionRead)
	staff := f.role("staff", nil)
	contractor := f.role("contractor", staff)
	f.grant(staff, read, grant.ScopeAll, true, nil)
	f.assign("u1", contractor)
	f.assign("u2", staff)

	if _, err := f.eng.SetResourceOverride(f.ctx, OverrideInput{
		ResourceType: permission.ResourceAsset,
		ResourceID:   "a1",
		Action:       permission.ActionRead,
		SubjectType:  override.SubjectRole,
		SubjectID:    contractor.ID.String(),
		IsGranted:    false,
	}); err != nil {
		t.Fatal(err)
	}

	expectCode(t, f.check("u1", permission.ResourceAsset, permission.ActionRead, "a1", nil), DenyOverride)
	expectCode(t, f.check("u2", permission.ResourceAsset, permission.ActionRead, "a1", nil), AllowGrant)
}

func TestCheck_OverrideWithUnmetConditionsFallsThrough(t *testing.T) {
	f := newFixture(t)
	read := f.permission(permission.ResourceProject, permission.ActionRead)
	member := f.role("member", nil)
	f.grant(member, read, grant.ScopeAll, true, nil)
	f.assign("u1", member)

	if _, err := f.eng.SetResourceOverride(f.ctx, OverrideInput{
		ResourceType: permission.ResourceProject,
		ResourceID:   "p1",
		Action:       permission.ActionRead,
		SubjectType:  override.SubjectUser,
		SubjectID:    "u1",
		Conditions:   map[string]any{"stage": "draft"},
		IsGranted:    false,
	}); err != nil {
		t.Fatal(err)
	}

	rc := &RequestContext{Attributes: map[string]any{"stage": "final"}}
	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "p1", rc), AllowGrant)

	rc = &RequestContext{Attributes: map[string]any{"stage": "draft"}}
	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "p1", rc), DenyOverride)
}

func TestCheck_AssignmentExpiry(t *testing.T) {
	f := newFixture(t, WithCache(nil))
	read := f.permission(permission.ResourceProject, permission.ActionRead)
	member := f.role("member", nil)
	f.grant(member, read, grant.ScopeAll, true, nil)

	expires := f.clock.Now().Add(time.Hour)
	if _, err := f.eng.AssignRole(f.ctx, AssignRoleInput{UserID: "u1", RoleID: member.ID, ExpiresAt: &expires}); err != nil {
		t.Fatal(err)
	}
	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "", nil), AllowGrant)

	f.clock.Advance(2 * time.Hour)
	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "", nil), DenyDefault)

	// An assignment written with a past expiry never contributes.
	past := f.clock.Now().Add(-time.Minute)
	if err := f.mem.CreateAssignment(f.ctx, &assignment.Assignment{
		ID: id.NewAssignmentID(), UserID: "u2", RoleID: member.ID, ExpiresAt: &past, IsActive: true,
	}); err != nil {
		t.Fatal(err)
	}
	expectCode(t, f.check("u2", permission.ResourceProject, permission.ActionRead, "", nil), DenyDefault)
}

func TestCheck_GrantAndOverrideExpiry(t *testing.T) {
	f := newFixture(t, WithCache(nil))
	read := f.permission(permission.ResourceProject, permission.ActionRead)
	member := f.role("member", nil)
	f.assign("u1", member)

	expires := f.clock.Now().Add(time.Hour)
	if _, err := f.eng.GrantPermissionToRole(f.ctx, GrantInput{
		RoleID: member.ID, PermissionID: read.ID, IsGranted: true, ExpiresAt: &expires,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.eng.SetResourceOverride(f.ctx, OverrideInput{
		ResourceType: permission.ResourceProject, ResourceID: "p1", Action: permission.ActionRead,
		SubjectType: override.SubjectUser, SubjectID: "u1", IsGranted: false, ExpiresAt: &expires,
	}); err != nil {
		t.Fatal(err)
	}

	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "p1", nil), DenyOverride)
	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "p2", nil), AllowGrant)

	f.clock.Advance(time.Hour)
	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "p1", nil), DenyDefault)
}

func TestCheck_HierarchyInheritance(t *testing.T) {
	f := newFixture(t)
	update := f.permission(permission.ResourceAsset, permission.ActionUpdate)
	editor := f.role("editor", nil)
	junior := f.role("junior_editor", editor)
	f.grant(editor, update, grant.ScopeAll, true, nil)
	f.assign("u1", junior)

	d := f.check("u1", permission.ResourceAsset, permission.ActionUpdate, "a1", nil)
	expectCode(t, d, AllowGrant)
	if d.Trace[len(d.Trace)-1].RoleID != editor.ID {
		t.Fatalf("expected the allow to come from the ancestor, got %+v", d.Trace)
	}

	if _, err := f.eng.DeactivateRole(f.ctx, editor.ID); err != nil {
		t.Fatal(err)
	}
	d = f.check("u1", permission.ResourceAsset, permission.ActionUpdate, "a1", nil)
	expectCode(t, d, DenyDefault)
	if d.Cached {
		t.Fatal("expected deactivation to invalidate the inherited decision")
	}

	if _, err := f.eng.ActivateRole(f.ctx, editor.ID); err != nil {
		t.Fatal(err)
	}
	expectCode(t, f.check("u1", permission.ResourceAsset, permission.ActionUpdate, "a1", nil), AllowGrant)
}

func TestCheck_InactiveAncestorIsSkipped(t *testing.T) {
	f := newFixture(t)
	read := f.permission(permission.ResourceProject, permission.ActionRead)
	update := f.permission(permission.ResourceProject, permission.ActionUpdate)
	top := f.role("top", nil)
	middle := f.role("middle", top)
	leaf := f.role("leaf", middle)
	f.grant(top, read, grant.ScopeAll, true, nil)
	f.grant(middle, update, grant.ScopeAll, true, nil)
	f.assign("u1", leaf)

	if _, err := f.eng.DeactivateRole(f.ctx, middle.ID); err != nil {
		t.Fatal(err)
	}
	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionUpdate, "", nil), DenyDefault)
	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "", nil), AllowGrant)

	// A directly held inactive role contributes nothing.
	if _, err := f.eng.DeactivateRole(f.ctx, leaf.ID); err != nil {
		t.Fatal(err)
	}
	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "", nil), DenyDefault)
}

func TestCheck_MalformedConditionsFailClosed(t *testing.T) {
	f := newFixture(t)
	read := f.permission(permission.ResourceProject, permission.ActionRead)
	member := f.role("member", nil)
	f.assign("u1", member)

	// Written past validation, as an older writer could have.
	bad := &grant.Grant{
		ID: id.NewGrantID(), RoleID: member.ID, PermissionID: read.ID, Scope: grant.ScopeAll,
		Conditions: map[string]any{"tags": []any{"a"}}, IsGranted: true,
	}
	if err := f.mem.CreateGrant(f.ctx, bad); err != nil {
		t.Fatal(err)
	}
	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "", nil), DenyDefault)

	f.grant(member, read, grant.ScopeOwn, true, nil)
	badDeny := &grant.Grant{
		ID: id.NewGrantID(), RoleID: member.ID, PermissionID: read.ID, Scope: "everyone", IsGranted: false,
	}
	if err := f.mem.CreateGrant(f.ctx, badDeny); err != nil {
		t.Fatal(err)
	}
	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "", &RequestContext{ResourceOwnerID: "u1"}), DenyGrant)
}

func TestCheck_UnknownPermission(t *testing.T) {
	f := newFixture(t)
	member := f.role("member", nil)
	f.assign("u1", member)

	d := f.check("u1", permission.ResourceVideo, permission.ActionPublish, "v1", nil)
	expectCode(t, d, DenyUnknownPermission)

	entries := f.checkAudits()
	if len(entries) != 1 || !entries[0].Success {
		t.Fatalf("expected one successful audit entry, got %+v", entries)
	}
}

func TestCheck_InvalidRequest(t *testing.T) {
	f := newFixture(t)

	if _, err := f.eng.CheckPermission(f.ctx, nil); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for nil request, got %v", err)
	}
	expectCode(t, f.check("", permission.ResourceProject, permission.ActionRead, "", nil), DenyInvalidRequest)
	expectCode(t, f.check("u1", "spaceship", permission.ActionRead, "", nil), DenyInvalidRequest)
	expectCode(t, f.check("u1", permission.ResourceProject, "fly", "", nil), DenyInvalidRequest)
}

func TestCheck_StoreFailureFailsClosed(t *testing.T) {
	f := newFixture(t)
	read := f.permission(permission.ResourceProject, permission.ActionRead)
	member := f.role("member", nil)
	f.grant(member, read, grant.ScopeAll, true, nil)
	f.assign("u1", member)

	f.fs.set(func(s *failingStore) { s.grants = true })
	d := f.check("u1", permission.ResourceProject, permission.ActionRead, "", nil)
	expectCode(t, d, DenyError)
	if last := d.Trace[len(d.Trace)-1]; last.Phase != PhaseError {
		t.Fatalf("expected an error trace entry, got %+v", d.Trace)
	}
	if pub := d.Public(); pub.Code != Deny || pub.Trace != nil {
		t.Fatalf("expected a uniform public deny, got %+v", pub)
	}
	if f.cache.Len() != 0 {
		t.Fatal("failure denials must not be cached")
	}

	f.fs.set(func(s *failingStore) { s.grants = false; s.assignments = true })
	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "p1", nil), DenyError)

	f.fs.set(func(s *failingStore) { s.assignments = false })
	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "", nil), AllowGrant)

	entries := f.checkAudits()
	if len(entries) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(entries))
	}
	var failed int
	for _, e := range entries {
		if !e.Success {
			failed++
			if e.ErrorMessage == "" || e.Decision != string(DenyError) {
				t.Fatalf("failed entry is missing details: %+v", e)
			}
		}
	}
	if failed != 2 {
		t.Fatalf("expected 2 unsuccessful entries, got %d", failed)
	}
}

// ──────────────────────────────────────────────────
// Cache discipline
// ──────────────────────────────────────────────────

func TestCache_GrantChangeIsVisibleImmediately(t *testing.T) {
	f := newFixture(t)
	read := f.permission(permission.ResourceProject, permission.ActionRead)
	member := f.role("member", nil)
	f.grant(member, read, grant.ScopeAll, true, nil)
	f.assign("u1", member)

	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "p1", nil), AllowGrant)
	if d := f.check("u1", permission.ResourceProject, permission.ActionRead, "p1", nil); !d.Cached {
		t.Fatal("expected the second check to be served from cache")
	}

	f.grant(member, read, grant.ScopeAll, false, nil)

	d := f.check("u1", permission.ResourceProject, permission.ActionRead, "p1", nil)
	expectCode(t, d, DenyGrant)
	if d.Cached {
		t.Fatal("expected a fresh decision after the grant changed")
	}
}

func TestCache_InheritedGrantChangeInvalidatesDescendantHolders(t *testing.T) {
	f := newFixture(t)
	read := f.permission(permission.ResourceProject, permission.ActionRead)
	parent := f.role("parent", nil)
	child := f.role("child", parent)
	f.assign("u1", child)

	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "", nil), DenyDefault)
	f.grant(parent, read, grant.ScopeAll, true, nil)
	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "", nil), AllowGrant)
}

func TestCache_AssignAndRevokeInvalidate(t *testing.T) {
	f := newFixture(t)
	read := f.permission(permission.ResourceProject, permission.ActionRead)
	member := f.role("member", nil)
	f.grant(member, read, grant.ScopeAll, true, nil)

	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "", nil), DenyDefault)
	f.assign("u1", member)
	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "", nil), AllowGrant)

	if err := f.eng.RevokeRole(f.ctx, "u1", member.ID); err != nil {
		t.Fatal(err)
	}
	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "", nil), DenyDefault)
}

func TestCache_ContextIsPartOfTheKey(t *testing.T) {
	f := newFixture(t)
	read := f.permission(permission.ResourceProject, permission.ActionRead)
	member := f.role("member", nil)
	f.grant(member, read, grant.ScopeOwn, true, nil)
	f.assign("u1", member)

	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "p1", &RequestContext{ResourceOwnerID: "u1"}), AllowGrant)
	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "p1", &RequestContext{ResourceOwnerID: "u2"}), DenyDefault)
}

func TestCache_FailuresDegradeToUncached(t *testing.T) {
	f := newFixture(t)
	read := f.permission(permission.ResourceProject, permission.ActionRead)
	member := f.role("member", nil)
	f.grant(member, read, grant.ScopeAll, true, nil)
	f.assign("u1", member)

	f.cache.failGet = true
	f.cache.failSet = true
	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "", nil), AllowGrant)

	// A failed invalidation does not fail the committed write.
	f.cache.failInvalidate = true
	if err := f.eng.RevokeRole(f.ctx, "u1", member.ID); err != nil {
		t.Fatalf("expected revoke to succeed despite cache failure, got %v", err)
	}
	f.cache.failGet = false
	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "", nil), DenyDefault)
}

// ──────────────────────────────────────────────────
// Audit
// ──────────────────────────────────────────────────

func TestAudit_OneEntryPerFreshCheck(t *testing.T) {
	f := newFixture(t)
	read := f.permission(permission.ResourceProject, permission.ActionRead)
	member := f.role("member", nil)
	g := f.grant(member, read, grant.ScopeAll, true, nil)
	f.assign("u1", member)

	ctx := WithRequestMeta(f.ctx, RequestMeta{PerformedBy: "gateway", IPAddress: "10.0.0.1", UserAgent: "test"})
	for range 3 {
		if _, err := f.eng.CheckPermission(ctx, &CheckRequest{
			SubjectID: "u1", ResourceType: permission.ResourceProject, Action: permission.ActionRead, ResourceID: "p1",
		}); err != nil {
			t.Fatal(err)
		}
	}
	f.check("u2", permission.ResourceProject, permission.ActionRead, "p1", nil)

	entries := f.checkAudits()
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries (cache hits are not audited), got %d", len(entries))
	}
	var allowed *audit.Entry
	for _, e := range entries {
		if e.SubjectID == "u1" {
			allowed = e
		}
	}
	if allowed == nil {
		t.Fatal("missing audit entry for u1")
	}
	if !allowed.Success || !allowed.Allowed || allowed.Decision != string(AllowGrant) {
		t.Fatalf("unexpected entry %+v", allowed)
	}
	if allowed.RoleID != member.ID || allowed.PermissionID != read.ID {
		t.Fatalf("expected matched role and permission ids, got %+v", allowed)
	}
	if allowed.PerformedBy != "gateway" || allowed.IPAddress != "10.0.0.1" || allowed.UserAgent != "test" {
		t.Fatalf("expected request metadata on entry, got %+v", allowed)
	}
	trace, ok := allowed.Details["trace"].([]any)
	if !ok || len(trace) == 0 {
		t.Fatalf("expected a trace in details, got %+v", allowed.Details)
	}
	last, _ := trace[len(trace)-1].(map[string]any)
	if last["rule_id"] != g.ID.String() {
		t.Fatalf("expected matched grant id in trace, got %+v", last)
	}
}

func TestAudit_WriteFailureDoesNotChangeDecision(t *testing.T) {
	f := newFixture(t)
	read := f.permission(permission.ResourceProject, permission.ActionRead)
	member := f.role("member", nil)
	f.grant(member, read, grant.ScopeAll, true, nil)
	f.assign("u1", member)

	f.fs.set(func(s *failingStore) { s.audit = true })
	expectCode(t, f.check("u1", permission.ResourceProject, permission.ActionRead, "", nil), AllowGrant)
	if err := f.eng.RevokeRole(f.ctx, "u1", member.ID); err != nil {
		t.Fatalf("expected revoke to succeed despite audit failure, got %v", err)
	}
}

func TestAudit_AsyncFlushOnStop(t *testing.T) {
	f := newFixture(t, WithConfig(Config{AuditAsync: true, AuditBuffer: 16}))
	if err := f.eng.Start(f.ctx); err != nil {
		t.Fatal(err)
	}
	f.permission(permission.ResourceProject, permission.ActionRead)
	for i := range 5 {
		f.check("u"+string(rune('0'+i)), permission.ResourceProject, permission.ActionRead, "", nil)
	}

	ctx, cancel := context.WithTimeout(f.ctx, 5*time.Second)
	defer cancel()
	if err := f.eng.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(f.checkAudits()); n != 5 {
		t.Fatalf("expected 5 flushed entries, got %d", n)
	}

	// Writes after Stop go inline.
	f.check("late", permission.ResourceProject, permission.ActionRead, "", nil)
	if n := len(f.checkAudits()); n != 6 {
		t.Fatalf("expected 6 entries, got %d", n)
	}
}

func TestAudit_QueryAndPurge(t *testing.T) {
	f := newFixture(t)
	f.permission(permission.ResourceProject, permission.ActionRead)
	f.check("u1", permission.ResourceProject, permission.ActionRead, "", nil)
	f.clock.Advance(48 * time.Hour)
	f.check("u2", permission.ResourceProject, permission.ActionRead, "", nil)

	entries, total, err := f.eng.QueryAudit(f.ctx, &audit.QueryFilter{Action: audit.Check, Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(entries) != 1 || entries[0].SubjectID != "u2" {
		t.Fatalf("expected newest entry first with total 2, got %d %+v", total, entries)
	}

	n, err := f.eng.PurgeAudit(f.ctx, f.clock.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n < 1 {
		t.Fatalf("expected old entries to be purged, got %d", n)
	}
	if left := f.checkAudits(); len(left) != 1 || left[0].SubjectID != "u2" {
		t.Fatalf("expected only the recent check entry to remain, got %+v", left)
	}
}

// ──────────────────────────────────────────────────
// Effective permissions
// ──────────────────────────────────────────────────

func TestListEffectivePermissions(t *testing.T) {
	f := newFixture(t)
	pRead := f.permission(permission.ResourceProject, permission.ActionRead)
	pUpdate := f.permission(permission.ResourceProject, permission.ActionUpdate)
	aRead := f.permission(permission.ResourceAsset, permission.ActionRead)
	base := f.role("base", nil)
	editor := f.role("editor", base)
	f.grant(base, pRead, grant.ScopeAll, true, nil)
	f.grant(base, aRead, grant.ScopeAll, true, nil)
	f.grant(editor, pUpdate, grant.ScopeOwn, true, nil)
	f.assign("u1", editor)

	all, err := f.eng.ListEffectivePermissions(f.ctx, "u1", "")
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(all))
	for _, s := range all {
		names = append(names, s.PermissionName)
	}
	want := []string{"asset.read", "project.read", "project.update"}
	if !slices.Equal(names, want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for _, s := range all {
		if s.PermissionName == "project.update" && (s.RoleName != "editor" || s.Scope != grant.ScopeOwn) {
			t.Fatalf("expected origin annotations, got %+v", s)
		}
		if s.PermissionName == "project.read" && s.RoleName != "base" {
			t.Fatalf("expected inherited grant to name its role, got %+v", s)
		}
	}

	projects, err := f.eng.ListEffectivePermissions(f.ctx, "u1", permission.ResourceProject)
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 2 {
		t.Fatalf("expected 2 project permissions, got %d", len(projects))
	}

	none, err := f.eng.ListEffectivePermissions(f.ctx, "nobody", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no permissions, got %d", len(none))
	}

	if _, err := f.eng.ListEffectivePermissions(f.ctx, "u1", "spaceship"); !errors.Is(err, ErrInvalidResourceType) {
		t.Fatalf("expected ErrInvalidResourceType, got %v", err)
	}
}

func TestEnforce(t *testing.T) {
	f := newFixture(t)
	read := f.permission(permission.ResourceProject, permission.ActionRead)
	member := f.role("member", nil)
	f.grant(member, read, grant.ScopeAll, true, nil)
	f.assign("u1", member)

	req := &CheckRequest{SubjectID: "u1", ResourceType: permission.ResourceProject, Action: permission.ActionRead}
	if err := f.eng.Enforce(f.ctx, req); err != nil {
		t.Fatal(err)
	}
	req.SubjectID = "u2"
	if err := f.eng.Enforce(f.ctx, req); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if !f.eng.Can(f.ctx, "u1", permission.ResourceProject, permission.ActionRead, "") {
		t.Fatal("expected Can to allow")
	}
}
