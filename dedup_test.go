package fabric

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/fabric/group"
	"github.com/xraph/fabric/id"
)

// seedDuplicateGroup bypasses the engine's uniqueness check to recreate
// the pre-dedup state migrations exist to clean up.
func seedDuplicateGroup(t *testing.T, eng *Engine, name string, createdAt time.Time) *group.Group {
	t.Helper()
	g := &group.Group{
		ID:        id.NewGroupID(),
		Name:      name,
		Source:    group.SourceCustom,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	if err := eng.Store().CreateGroup(context.Background(), g); err != nil {
		t.Fatal(err)
	}
	return g
}

func TestMigrateDuplicateGroupsMergesOntoOldest(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedGrain(t, eng, "document", false)

	read := mustPermission(t, eng, "document", "doc", "read")
	write := mustPermission(t, eng, "document", "doc", "write")
	viewer := mustRole(t, eng, &CreateRoleInput{
		Grain: "document", SecurableItem: "doc", Name: "viewer",
		PermissionIDs: []id.PermissionID{read.ID},
	})
	editor := mustRole(t, eng, &CreateRoleInput{
		Grain: "document", SecurableItem: "doc", Name: "editor",
		PermissionIDs: []id.PermissionID{write.ID},
	})

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	older := seedDuplicateGroup(t, eng, "ops", base)
	newer := seedDuplicateGroup(t, eng, "Ops", base.Add(time.Hour))

	if err := eng.Store().AttachRoleToGroup(ctx, older.ID, viewer.ID); err != nil {
		t.Fatal(err)
	}
	if err := eng.Store().AttachRoleToGroup(ctx, newer.ID, editor.ID); err != nil {
		t.Fatal(err)
	}
	if err := eng.AddUsersToGroup(ctx, "ops", []UserRef{alice}); err != nil {
		t.Fatal(err)
	}

	result := eng.MigrateDuplicateGroups(ctx)
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if result.DuplicateSets != 1 || result.GroupsMerged != 1 {
		t.Fatalf("expected 1 set / 1 merge, got %+v", result)
	}

	// The older group survives and absorbs the newer one's roles.
	survivor, err := eng.GetGroup(ctx, "ops")
	if err != nil {
		t.Fatal(err)
	}
	if survivor.ID != older.ID {
		t.Fatalf("expected oldest group to survive, got %s", survivor.ID)
	}
	roleIDs, err := eng.Store().ListGroupRoleIDs(ctx, survivor.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(roleIDs) != 2 {
		t.Fatalf("expected merged role mappings, got %d", len(roleIDs))
	}

	// Membership keeps resolving after the merge.
	res, err := eng.Resolve(ctx, &ResolveRequest{
		SubjectID: "alice", IdentityProvider: "okta", Grain: "document",
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"document/doc.read", "document/doc.write"} {
		if !containsPermission(res.AllowedPermissions, want) {
			t.Fatalf("expected %s after merge, got %v", want, res.AllowedPermissions)
		}
	}
}

func TestMigrateDuplicateGroupsIdempotent(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	seedDuplicateGroup(t, eng, "ops", base)
	seedDuplicateGroup(t, eng, "OPS", base.Add(time.Minute))
	seedDuplicateGroup(t, eng, "Ops", base.Add(2*time.Minute))

	first := eng.MigrateDuplicateGroups(ctx)
	if first.GroupsMerged != 2 {
		t.Fatalf("expected 2 merges, got %d", first.GroupsMerged)
	}

	second := eng.MigrateDuplicateGroups(ctx)
	if second.DuplicateSets != 0 || second.GroupsMerged != 0 {
		t.Fatalf("second run must be a no-op, got %+v", second)
	}
}

func TestMigrateDuplicateGroupsTransfersLinks(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	older := seedDuplicateGroup(t, eng, "ops", base)
	newer := seedDuplicateGroup(t, eng, "Ops", base.Add(time.Hour))

	other, err := eng.CreateGroup(ctx, &CreateGroupInput{Name: "platform", Source: group.SourceCustom})
	if err != nil {
		t.Fatal(err)
	}
	// The duplicate sits under platform; the survivor must take its place.
	if err := eng.Store().AttachChildGroup(ctx, other.ID, newer.ID); err != nil {
		t.Fatal(err)
	}

	result := eng.MigrateDuplicateGroups(ctx)
	if result.GroupsMerged != 1 {
		t.Fatalf("expected 1 merge, got %+v", result)
	}

	children, err := eng.Store().ListChildGroups(ctx, other.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 1 || children[0].ID != older.ID {
		t.Fatalf("expected survivor linked under platform, got %v", children)
	}
}

func TestMigrateDuplicateGroupsNoDuplicates(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	if _, err := eng.CreateGroup(ctx, &CreateGroupInput{Name: "ops", Source: group.SourceCustom}); err != nil {
		t.Fatal(err)
	}

	result := eng.MigrateDuplicateGroups(ctx)
	if result.DuplicateSets != 0 || result.GroupsMerged != 0 || len(result.Errors) != 0 {
		t.Fatalf("expected clean no-op, got %+v", result)
	}
}
