package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/fabric/decisionlog"
	"github.com/xraph/fabric/granular"
	"github.com/xraph/fabric/group"
	"github.com/xraph/fabric/id"
	"github.com/xraph/fabric/permission"
	"github.com/xraph/fabric/role"
	"github.com/xraph/fabric/store"
	"github.com/xraph/fabric/user"
)

func TestRoleLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	r := &role.Role{
		ID:        id.NewRoleID(),
		Grain:     "document",
		Name:      "editor",
		CreatedAt: time.Now(),
	}
	if err := s.CreateRole(ctx, r); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}

	got, err := s.GetRole(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRole: %v", err)
	}
	if got.Name != "editor" {
		t.Errorf("expected name editor, got %s", got.Name)
	}

	if err := s.DeleteRole(ctx, r.ID); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
	if _, err := s.GetRole(ctx, r.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRoleGrantsCarryEffect(t *testing.T) {
	ctx := context.Background()
	s := New()

	r := &role.Role{ID: id.NewRoleID(), Grain: "document", Name: "reviewer"}
	if err := s.CreateRole(ctx, r); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}

	allow := id.NewPermissionID()
	deny := id.NewPermissionID()
	if err := s.AttachPermission(ctx, r.ID, allow, permission.EffectAllow); err != nil {
		t.Fatalf("AttachPermission allow: %v", err)
	}
	if err := s.AttachPermission(ctx, r.ID, deny, permission.EffectDeny); err != nil {
		t.Fatalf("AttachPermission deny: %v", err)
	}

	grants, err := s.ListRoleGrants(ctx, r.ID)
	if err != nil {
		t.Fatalf("ListRoleGrants: %v", err)
	}
	if len(grants) != 2 {
		t.Fatalf("expected 2 grants, got %d", len(grants))
	}
	effects := map[string]permission.Effect{}
	for _, g := range grants {
		effects[g.PermissionID.String()] = g.Effect
	}
	if effects[allow.String()] != permission.EffectAllow {
		t.Errorf("expected allow effect for %s", allow)
	}
	if effects[deny.String()] != permission.EffectDeny {
		t.Errorf("expected deny effect for %s", deny)
	}

	if err := s.DetachPermission(ctx, r.ID, allow); err != nil {
		t.Fatalf("DetachPermission: %v", err)
	}
	grants, _ = s.ListRoleGrants(ctx, r.ID)
	if len(grants) != 1 {
		t.Errorf("expected 1 grant after detach, got %d", len(grants))
	}
}

func TestDetachPermissionFromRolesScoped(t *testing.T) {
	ctx := context.Background()
	s := New()

	docRole := &role.Role{ID: id.NewRoleID(), Grain: "document", SecurableItem: "reports", Name: "editor"}
	hostRole := &role.Role{ID: id.NewRoleID(), Grain: "hosts", SecurableItem: "fleet", Name: "editor"}
	for _, r := range []*role.Role{docRole, hostRole} {
		if err := s.CreateRole(ctx, r); err != nil {
			t.Fatalf("CreateRole: %v", err)
		}
	}

	permID := id.NewPermissionID()
	_ = s.AttachPermission(ctx, docRole.ID, permID, permission.EffectAllow)
	_ = s.AttachPermission(ctx, hostRole.ID, permID, permission.EffectAllow)

	// Scoped to the document grain only; the hosts role keeps its grant.
	if err := s.DetachPermissionFromRoles(ctx, permID, "document", "reports"); err != nil {
		t.Fatalf("DetachPermissionFromRoles: %v", err)
	}

	docGrants, _ := s.ListRoleGrants(ctx, docRole.ID)
	if len(docGrants) != 0 {
		t.Errorf("expected document role grants removed, got %d", len(docGrants))
	}
	hostGrants, _ := s.ListRoleGrants(ctx, hostRole.ID)
	if len(hostGrants) != 1 {
		t.Errorf("expected hosts role grant kept, got %d", len(hostGrants))
	}
}

func TestGroupNameLookupCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	s := New()

	g := &group.Group{
		ID:        id.NewGroupID(),
		Name:      "Platform-Admins",
		Source:    group.SourceCustom,
		CreatedAt: time.Now(),
	}
	if err := s.CreateGroup(ctx, g); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	got, err := s.GetGroup(ctx, "platform-admins")
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if got.ID.String() != g.ID.String() {
		t.Errorf("expected group %s, got %s", g.ID, got.ID)
	}
}

func TestGetGroupPrefersOldestDuplicate(t *testing.T) {
	ctx := context.Background()
	s := New()

	base := time.Now()
	older := &group.Group{ID: id.NewGroupID(), Name: "ops", Source: group.SourceCustom, CreatedAt: base.Add(-time.Hour)}
	newer := &group.Group{ID: id.NewGroupID(), Name: "Ops", Source: group.SourceCustom, CreatedAt: base}
	_ = s.CreateGroup(ctx, newer)
	_ = s.CreateGroup(ctx, older)

	got, err := s.GetGroup(ctx, "OPS")
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if got.ID.String() != older.ID.String() {
		t.Errorf("expected oldest duplicate %s, got %s", older.ID, got.ID)
	}
}

func TestGetGroupsByNamesReportsMissing(t *testing.T) {
	ctx := context.Background()
	s := New()

	g := &group.Group{ID: id.NewGroupID(), Name: "engineering", Source: group.SourceDirectory}
	_ = s.CreateGroup(ctx, g)

	found, missing, err := s.GetGroupsByNames(ctx, []string{"Engineering", "ghosts"})
	if err != nil {
		t.Fatalf("GetGroupsByNames: %v", err)
	}
	if len(found) != 1 || found[0].ID.String() != g.ID.String() {
		t.Fatalf("expected 1 found group, got %d", len(found))
	}
	if len(missing) != 1 || missing[0] != "ghosts" {
		t.Errorf("expected missing [ghosts], got %v", missing)
	}
}

func TestDeleteGroupRemovesJunctions(t *testing.T) {
	ctx := context.Background()
	s := New()

	parent := &group.Group{ID: id.NewGroupID(), Name: "parent", Source: group.SourceCustom}
	child := &group.Group{ID: id.NewGroupID(), Name: "child", Source: group.SourceCustom}
	_ = s.CreateGroup(ctx, parent)
	_ = s.CreateGroup(ctx, child)

	roleID := id.NewRoleID()
	userKey := user.Key("alice", "AzureAD")
	_ = s.AttachRoleToGroup(ctx, child.ID, roleID)
	_ = s.AttachUserToGroup(ctx, child.ID, userKey)
	_ = s.AttachChildGroup(ctx, parent.ID, child.ID)

	if err := s.DeleteGroup(ctx, child.ID); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}

	if _, err := s.GetGroup(ctx, "child"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected deleted group to be unresolvable, got %v", err)
	}
	if roles, _ := s.ListGroupRoleIDs(ctx, child.ID); len(roles) != 0 {
		t.Errorf("expected role junctions removed, got %d", len(roles))
	}
	if keys, _ := s.ListGroupUserKeys(ctx, child.ID); len(keys) != 0 {
		t.Errorf("expected user junctions removed, got %d", len(keys))
	}
	if children, _ := s.ListChildGroups(ctx, parent.ID); len(children) != 0 {
		t.Errorf("expected parent link removed, got %d children", len(children))
	}
}

func TestListGroupsForUser(t *testing.T) {
	ctx := context.Background()
	s := New()

	g1 := &group.Group{ID: id.NewGroupID(), Name: "readers", Source: group.SourceCustom}
	g2 := &group.Group{ID: id.NewGroupID(), Name: "writers", Source: group.SourceCustom}
	_ = s.CreateGroup(ctx, g1)
	_ = s.CreateGroup(ctx, g2)

	key := user.Key("bob", "okta")
	_ = s.AttachUserToGroup(ctx, g1.ID, key)
	_ = s.AttachUserToGroup(ctx, g2.ID, key)
	_ = s.AttachUserToGroup(ctx, g2.ID, user.Key("carol", "okta"))

	groups, err := s.ListGroupsForUser(ctx, key)
	if err != nil {
		t.Fatalf("ListGroupsForUser: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
}

func TestUserRoles(t *testing.T) {
	ctx := context.Background()
	s := New()

	u := &user.User{SubjectID: "alice", IdentityProvider: "AzureAD"}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	// Lookup key lowercases the provider.
	got, err := s.GetUser(ctx, user.Key("alice", "azuread"))
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.SubjectID != "alice" {
		t.Errorf("expected subject alice, got %s", got.SubjectID)
	}

	r1 := id.NewRoleID()
	r2 := id.NewRoleID()
	_ = s.AttachRoleToUser(ctx, u.Key(), r1)
	_ = s.AttachRoleToUser(ctx, u.Key(), r2)
	_ = s.AttachRoleToUser(ctx, u.Key(), r1) // duplicate attach is a no-op

	roles, err := s.ListUserRoleIDs(ctx, u.Key())
	if err != nil {
		t.Fatalf("ListUserRoleIDs: %v", err)
	}
	if len(roles) != 2 {
		t.Fatalf("expected 2 roles, got %d", len(roles))
	}

	_ = s.DetachRoleFromUser(ctx, u.Key(), r1)
	roles, _ = s.ListUserRoleIDs(ctx, u.Key())
	if len(roles) != 1 || roles[0].String() != r2.String() {
		t.Errorf("expected only %s after detach, got %v", r2, roles)
	}
}

func TestGranularUpsert(t *testing.T) {
	ctx := context.Background()
	s := New()

	key := user.Key("dave", "okta")
	if _, err := s.GetGranular(ctx, key); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing record, got %v", err)
	}

	first := &granular.GranularPermission{
		UserKey:                 key,
		AdditionalPermissionIDs: []id.PermissionID{id.NewPermissionID()},
	}
	if err := s.SetGranular(ctx, first); err != nil {
		t.Fatalf("SetGranular: %v", err)
	}

	second := &granular.GranularPermission{
		UserKey:             key,
		DeniedPermissionIDs: []id.PermissionID{id.NewPermissionID()},
	}
	if err := s.SetGranular(ctx, second); err != nil {
		t.Fatalf("SetGranular replace: %v", err)
	}

	got, err := s.GetGranular(ctx, key)
	if err != nil {
		t.Fatalf("GetGranular: %v", err)
	}
	if len(got.AdditionalPermissionIDs) != 0 {
		t.Errorf("expected replace to drop additional IDs, got %d", len(got.AdditionalPermissionIDs))
	}
	if len(got.DeniedPermissionIDs) != 1 {
		t.Errorf("expected 1 denied ID, got %d", len(got.DeniedPermissionIDs))
	}
}

func TestDecisionLogFilterAndPurge(t *testing.T) {
	ctx := context.Background()
	s := New()

	now := time.Now()
	for i, subject := range []string{"alice", "bob", "alice"} {
		e := &decisionlog.Entry{
			ID:               id.NewDecisionLogID(),
			SubjectID:        subject,
			IdentityProvider: "okta",
			Grain:            "document",
			CreatedAt:        now.Add(time.Duration(i-2) * time.Hour),
		}
		if err := s.CreateEntry(ctx, e); err != nil {
			t.Fatalf("CreateEntry: %v", err)
		}
	}

	entries, err := s.ListEntries(ctx, &decisionlog.QueryFilter{SubjectID: "alice"})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 alice entries, got %d", len(entries))
	}
	if entries[0].CreatedAt.Before(entries[1].CreatedAt) {
		t.Errorf("expected newest-first ordering")
	}

	purged, err := s.PurgeEntries(ctx, now.Add(-90*time.Minute))
	if err != nil {
		t.Fatalf("PurgeEntries: %v", err)
	}
	if purged != 1 {
		t.Errorf("expected 1 purged entry, got %d", purged)
	}
}
