package fabric

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/xraph/fabric/group"
	"github.com/xraph/fabric/id"
	"github.com/xraph/fabric/permission"
	"github.com/xraph/fabric/role"
)

func mustPermission(t *testing.T, eng *Engine, grainName, item, name string) *permission.Permission {
	t.Helper()
	p, err := eng.CreatePermission(context.Background(), &CreatePermissionInput{
		Grain: grainName, SecurableItem: item, Name: name,
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func mustRole(t *testing.T, eng *Engine, input *CreateRoleInput) *role.Role {
	t.Helper()
	r, err := eng.CreateRole(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func mustAssign(t *testing.T, eng *Engine, ref UserRef, roleIDs ...id.RoleID) {
	t.Helper()
	if err := eng.AddRolesToUser(context.Background(), ref, roleIDs); err != nil {
		t.Fatal(err)
	}
}

func containsPermission(perms []string, want string) bool {
	for _, p := range perms {
		if p == want {
			return true
		}
	}
	return false
}

var alice = UserRef{SubjectID: "alice", IdentityProvider: "okta"}

func TestResolveDirectRole(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedGrain(t, eng, "document", false)

	read := mustPermission(t, eng, "document", "doc", "read")
	viewer := mustRole(t, eng, &CreateRoleInput{
		Grain: "document", SecurableItem: "doc", Name: "viewer",
		PermissionIDs: []id.PermissionID{read.ID},
	})
	mustAssign(t, eng, alice, viewer.ID)

	result, err := eng.Resolve(ctx, &ResolveRequest{
		SubjectID: "alice", IdentityProvider: "okta", Grain: "document",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !containsPermission(result.AllowedPermissions, "document/doc.read") {
		t.Fatalf("expected document/doc.read allowed, got %v", result.AllowedPermissions)
	}
	if len(result.DeniedPermissions) != 0 {
		t.Fatalf("expected no denials, got %v", result.DeniedPermissions)
	}
}

func TestResolveRoleInheritance(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedGrain(t, eng, "document", false)

	read := mustPermission(t, eng, "document", "doc", "read")
	write := mustPermission(t, eng, "document", "doc", "write")

	viewer := mustRole(t, eng, &CreateRoleInput{
		Grain: "document", SecurableItem: "doc", Name: "viewer",
		PermissionIDs: []id.PermissionID{read.ID},
	})
	// Editor adopts viewer as a child; viewer holders inherit editor's
	// grants through the parent chain.
	mustRole(t, eng, &CreateRoleInput{
		Grain: "document", SecurableItem: "doc", Name: "editor",
		PermissionIDs: []id.PermissionID{write.ID},
		ChildRoleIDs:  []id.RoleID{viewer.ID},
	})
	mustAssign(t, eng, alice, viewer.ID)

	result, err := eng.Resolve(ctx, &ResolveRequest{
		SubjectID: "alice", IdentityProvider: "okta", Grain: "document",
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"document/doc.read", "document/doc.write"} {
		if !containsPermission(result.AllowedPermissions, want) {
			t.Fatalf("expected %s allowed, got %v", want, result.AllowedPermissions)
		}
	}
}

func TestResolveDenyOverridesAllow(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedGrain(t, eng, "document", false)

	del := mustPermission(t, eng, "document", "doc", "delete")
	admin := mustRole(t, eng, &CreateRoleInput{
		Grain: "document", SecurableItem: "doc", Name: "admin",
		PermissionIDs: []id.PermissionID{del.ID},
	})
	restricted := mustRole(t, eng, &CreateRoleInput{
		Grain: "document", SecurableItem: "doc", Name: "restricted",
		DeniedPermissionIDs: []id.PermissionID{del.ID},
	})
	mustAssign(t, eng, alice, admin.ID, restricted.ID)

	result, err := eng.Resolve(ctx, &ResolveRequest{
		SubjectID: "alice", IdentityProvider: "okta", Grain: "document",
	})
	if err != nil {
		t.Fatal(err)
	}
	if containsPermission(result.AllowedPermissions, "document/doc.delete") {
		t.Fatal("deny must override allow")
	}
	if !containsPermission(result.DeniedPermissions, "document/doc.delete") {
		t.Fatalf("expected document/doc.delete denied, got %v", result.DeniedPermissions)
	}
}

func TestResolveGranularOverrides(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedGrain(t, eng, "document", false)

	read := mustPermission(t, eng, "document", "doc", "read")
	export := mustPermission(t, eng, "document", "doc", "export")
	viewer := mustRole(t, eng, &CreateRoleInput{
		Grain: "document", SecurableItem: "doc", Name: "viewer",
		PermissionIDs: []id.PermissionID{read.ID},
	})
	mustAssign(t, eng, alice, viewer.ID)

	// Grant export and revoke read, independent of any role.
	err := eng.SetGranularPermission(ctx, alice,
		[]id.PermissionID{export.ID}, []id.PermissionID{read.ID})
	if err != nil {
		t.Fatal(err)
	}

	result, err := eng.Resolve(ctx, &ResolveRequest{
		SubjectID: "alice", IdentityProvider: "okta", Grain: "document",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !containsPermission(result.AllowedPermissions, "document/doc.export") {
		t.Fatalf("expected granular addition, got %v", result.AllowedPermissions)
	}
	if containsPermission(result.AllowedPermissions, "document/doc.read") {
		t.Fatal("granular deny must remove role-granted allow")
	}
	if !containsPermission(result.DeniedPermissions, "document/doc.read") {
		t.Fatalf("expected document/doc.read denied, got %v", result.DeniedPermissions)
	}
}

func TestResolveNoRolesEmptyResult(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedGrain(t, eng, "document", false)

	result, err := eng.Resolve(ctx, &ResolveRequest{
		SubjectID: "nobody", IdentityProvider: "okta", Grain: "document",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.AllowedPermissions) != 0 || len(result.DeniedPermissions) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestResolveUnknownGrain(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	_, err := eng.Resolve(ctx, &ResolveRequest{
		SubjectID: "alice", IdentityProvider: "okta", Grain: "nope",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResolveBadRequest(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	_, err := eng.Resolve(ctx, &ResolveRequest{SubjectID: "alice"})
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestResolveSharedGrainMode(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedGrain(t, eng, "document", false)
	seedGrain(t, eng, "hosts", true)

	docRead := mustPermission(t, eng, "document", "doc", "read")
	hostBoot := mustPermission(t, eng, "hosts", "", "boot")
	docRole := mustRole(t, eng, &CreateRoleInput{
		Grain: "document", SecurableItem: "doc", Name: "viewer",
		PermissionIDs: []id.PermissionID{docRead.ID},
	})
	hostRole := mustRole(t, eng, &CreateRoleInput{
		Grain: "hosts", Name: "operator",
		PermissionIDs: []id.PermissionID{hostBoot.ID},
	})
	mustAssign(t, eng, alice, docRole.ID, hostRole.ID)

	// Empty grain: only roles in shared grains contribute.
	result, err := eng.Resolve(ctx, &ResolveRequest{
		SubjectID: "alice", IdentityProvider: "okta",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !containsPermission(result.AllowedPermissions, "hosts/.boot") {
		t.Fatalf("expected shared-grain permission, got %v", result.AllowedPermissions)
	}
	if containsPermission(result.AllowedPermissions, "document/doc.read") {
		t.Fatal("non-shared grain must not contribute in shared mode")
	}
}

func TestResolveSecurableItemScope(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedGrain(t, eng, "document", false)

	_, top, err := eng.RegisterClient(ctx, &CreateClientInput{
		Name: "svc", Grain: "document", TopItemName: "archive",
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"invoices", "reports"} {
		if _, err := eng.AddChildItem(ctx, top.ID, &CreateItemInput{Name: name}); err != nil {
			t.Fatal(err)
		}
	}

	invoiceRead := mustPermission(t, eng, "document", "invoices", "read")
	reportRead := mustPermission(t, eng, "document", "reports", "read")
	invoiceViewer := mustRole(t, eng, &CreateRoleInput{
		Grain: "document", SecurableItem: "invoices", Name: "invoice-viewer",
		PermissionIDs: []id.PermissionID{invoiceRead.ID},
	})
	reportViewer := mustRole(t, eng, &CreateRoleInput{
		Grain: "document", SecurableItem: "reports", Name: "report-viewer",
		PermissionIDs: []id.PermissionID{reportRead.ID},
	})
	mustAssign(t, eng, alice, invoiceViewer.ID, reportViewer.ID)

	result, err := eng.Resolve(ctx, &ResolveRequest{
		SubjectID: "alice", IdentityProvider: "okta",
		Grain: "document", SecurableItem: "invoices",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !containsPermission(result.AllowedPermissions, "document/invoices.read") {
		t.Fatalf("expected invoice read, got %v", result.AllowedPermissions)
	}
	if containsPermission(result.AllowedPermissions, "document/reports.read") {
		t.Fatal("out-of-scope item must not contribute")
	}

	// A securable item no client registered is not a valid scope.
	_, err = eng.Resolve(ctx, &ResolveRequest{
		SubjectID: "alice", IdentityProvider: "okta",
		Grain: "document", SecurableItem: "nope",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResolveParentRoleGrantsInherited(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedGrain(t, eng, "app", false)

	read := mustPermission(t, eng, "app", "widgets", "read")
	write := mustPermission(t, eng, "app", "widgets", "write")

	reader := mustRole(t, eng, &CreateRoleInput{
		Grain: "app", SecurableItem: "widgets", Name: "widget-reader",
		PermissionIDs: []id.PermissionID{read.ID},
	})
	writer := mustRole(t, eng, &CreateRoleInput{
		Grain: "app", SecurableItem: "widgets", Name: "widget-writer",
		ParentID:      &reader.ID,
		PermissionIDs: []id.PermissionID{write.ID},
	})
	mustAssign(t, eng, alice, writer.ID)

	result, err := eng.Resolve(ctx, &ResolveRequest{
		SubjectID: "alice", IdentityProvider: "okta", Grain: "app",
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"app/widgets.read", "app/widgets.write"} {
		if !containsPermission(result.AllowedPermissions, want) {
			t.Fatalf("expected %s allowed, got %v", want, result.AllowedPermissions)
		}
	}
}

func TestResolveGroupRolesOneLevelOnly(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedGrain(t, eng, "document", false)

	read := mustPermission(t, eng, "document", "doc", "read")
	audit := mustPermission(t, eng, "document", "doc", "audit")
	viewer := mustRole(t, eng, &CreateRoleInput{
		Grain: "document", SecurableItem: "doc", Name: "viewer",
		PermissionIDs: []id.PermissionID{read.ID},
	})
	auditor := mustRole(t, eng, &CreateRoleInput{
		Grain: "document", SecurableItem: "doc", Name: "auditor",
		PermissionIDs: []id.PermissionID{audit.ID},
	})

	if _, err := eng.CreateGroup(ctx, &CreateGroupInput{Name: "parent", Source: group.SourceCustom}); err != nil {
		t.Fatal(err)
	}
	if err := eng.AddChildGroups(ctx, "parent", []CreateGroupInput{
		{Name: "child", Source: group.SourceDirectory},
	}); err != nil {
		t.Fatal(err)
	}
	child, err := eng.GetGroup(ctx, "child")
	if err != nil {
		t.Fatal(err)
	}
	grandchild, err := eng.CreateGroup(ctx, &CreateGroupInput{Name: "grandchild", Source: group.SourceDirectory})
	if err != nil {
		t.Fatal(err)
	}
	// Nesting deeper than one level cannot be built through the engine;
	// link at the store level to pin the flattening depth.
	if err := eng.Store().AttachChildGroup(ctx, child.ID, grandchild.ID); err != nil {
		t.Fatal(err)
	}
	if err := eng.AddRolesToGroup(ctx, "child", []id.RoleID{viewer.ID}); err != nil {
		t.Fatal(err)
	}
	if err := eng.AddRolesToGroup(ctx, "grandchild", []id.RoleID{auditor.ID}); err != nil {
		t.Fatal(err)
	}
	if err := eng.AddUsersToGroup(ctx, "parent", []UserRef{alice}); err != nil {
		t.Fatal(err)
	}

	result, err := eng.Resolve(ctx, &ResolveRequest{
		SubjectID: "alice", IdentityProvider: "okta", Grain: "document",
	})
	if err != nil {
		t.Fatal(err)
	}
	// Direct children flatten into the parent; grandchildren do not.
	if !containsPermission(result.AllowedPermissions, "document/doc.read") {
		t.Fatalf("expected child-group role to apply, got %v", result.AllowedPermissions)
	}
	if containsPermission(result.AllowedPermissions, "document/doc.audit") {
		t.Fatal("grandchild-group role must not flatten through two levels")
	}
}

func TestResolveCallerGroupsLenient(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedGrain(t, eng, "document", false)

	read := mustPermission(t, eng, "document", "doc", "read")
	viewer := mustRole(t, eng, &CreateRoleInput{
		Grain: "document", SecurableItem: "doc", Name: "viewer",
		PermissionIDs: []id.PermissionID{read.ID},
	})
	if _, err := eng.CreateGroup(ctx, &CreateGroupInput{Name: "readers", Source: group.SourceDirectory}); err != nil {
		t.Fatal(err)
	}
	if err := eng.AddRolesToGroup(ctx, "readers", []id.RoleID{viewer.ID}); err != nil {
		t.Fatal(err)
	}

	// Alice is not a stored member; the caller vouches for membership.
	// An unknown group name alongside is skipped, not an error.
	result, err := eng.Resolve(ctx, &ResolveRequest{
		SubjectID: "alice", IdentityProvider: "okta", Grain: "document",
		UserGroups: []string{"Readers", "no-such-group"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !containsPermission(result.AllowedPermissions, "document/doc.read") {
		t.Fatalf("expected caller-group role to apply, got %v", result.AllowedPermissions)
	}
}

func TestResolveSuperAdminBypassesScope(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, WithConfig(Config{
		SuperAdminRoles: []string{"root"},
		MaxRoleDepth:    20,
	}))
	seedGrain(t, eng, "document", false)
	seedGrain(t, eng, "hosts", false)

	boot := mustPermission(t, eng, "hosts", "", "boot")
	root := mustRole(t, eng, &CreateRoleInput{
		Grain: "hosts", Name: "root",
		PermissionIDs: []id.PermissionID{boot.ID},
	})
	mustAssign(t, eng, alice, root.ID)

	result, err := eng.Resolve(ctx, &ResolveRequest{
		SubjectID: "alice", IdentityProvider: "okta", Grain: "document",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !containsPermission(result.AllowedPermissions, "hosts/.boot") {
		t.Fatalf("super-admin role must bypass scope filtering, got %v", result.AllowedPermissions)
	}
}

func TestResolveDeletedRoleExcluded(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedGrain(t, eng, "document", false)

	read := mustPermission(t, eng, "document", "doc", "read")
	viewer := mustRole(t, eng, &CreateRoleInput{
		Grain: "document", SecurableItem: "doc", Name: "viewer",
		PermissionIDs: []id.PermissionID{read.ID},
	})
	mustAssign(t, eng, alice, viewer.ID)

	if err := eng.DeleteRole(ctx, viewer.ID); err != nil {
		t.Fatal(err)
	}

	result, err := eng.Resolve(ctx, &ResolveRequest{
		SubjectID: "alice", IdentityProvider: "okta", Grain: "document",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.AllowedPermissions) != 0 {
		t.Fatalf("deleted role must not contribute, got %v", result.AllowedPermissions)
	}
}

func TestResolveDeletedPermissionExcluded(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedGrain(t, eng, "document", false)

	read := mustPermission(t, eng, "document", "doc", "read")
	viewer := mustRole(t, eng, &CreateRoleInput{
		Grain: "document", SecurableItem: "doc", Name: "viewer",
		PermissionIDs: []id.PermissionID{read.ID},
	})
	mustAssign(t, eng, alice, viewer.ID)

	if err := eng.DeletePermission(ctx, read.ID); err != nil {
		t.Fatal(err)
	}

	result, err := eng.Resolve(ctx, &ResolveRequest{
		SubjectID: "alice", IdentityProvider: "okta", Grain: "document",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.AllowedPermissions) != 0 {
		t.Fatalf("deleted permission must not appear, got %v", result.AllowedPermissions)
	}
}

// stubCache records Set/Get traffic for cache wiring tests.
type stubCache struct {
	mu      sync.Mutex
	entries map[string]*ResolveResult
	hits    int
}

func newStubCache() *stubCache {
	return &stubCache{entries: make(map[string]*ResolveResult)}
}

func (c *stubCache) key(req *ResolveRequest) string {
	return req.SubjectID + "|" + req.IdentityProvider + "|" + req.Grain + "|" + req.SecurableItem
}

func (c *stubCache) Get(_ context.Context, req *ResolveRequest) (*ResolveResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[c.key(req)]
	if ok {
		c.hits++
	}
	return r, ok
}

func (c *stubCache) Set(_ context.Context, req *ResolveRequest, result *ResolveResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.key(req)] = result
}

func (c *stubCache) InvalidateSubject(_ context.Context, subjectID, _ string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if len(k) >= len(subjectID) && k[:len(subjectID)] == subjectID {
			delete(c.entries, k)
		}
	}
}

func (c *stubCache) InvalidateAll(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*ResolveResult)
}

func TestResolveUsesCache(t *testing.T) {
	ctx := context.Background()
	cache := newStubCache()
	eng := newTestEngine(t, WithCache(cache))
	seedGrain(t, eng, "document", false)

	read := mustPermission(t, eng, "document", "doc", "read")
	viewer := mustRole(t, eng, &CreateRoleInput{
		Grain: "document", SecurableItem: "doc", Name: "viewer",
		PermissionIDs: []id.PermissionID{read.ID},
	})
	mustAssign(t, eng, alice, viewer.ID)

	req := &ResolveRequest{SubjectID: "alice", IdentityProvider: "okta", Grain: "document"}
	if _, err := eng.Resolve(ctx, req); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Resolve(ctx, req); err != nil {
		t.Fatal(err)
	}
	if cache.hits != 1 {
		t.Fatalf("expected 1 cache hit, got %d", cache.hits)
	}

	// Mutating the user's assignments drops their cached entries.
	if err := eng.DeleteRolesFromUser(ctx, alice, []id.RoleID{viewer.ID}); err != nil {
		t.Fatal(err)
	}
	result, err := eng.Resolve(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.AllowedPermissions) != 0 {
		t.Fatalf("expected fresh empty result after invalidation, got %v", result.AllowedPermissions)
	}
}
