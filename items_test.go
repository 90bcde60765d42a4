package fabric

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterClient(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedGrain(t, eng, "document", false)

	c, top, err := eng.RegisterClient(ctx, &CreateClientInput{
		Name: "billing-service", Grain: "document", TopItemName: "billing",
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.TopItemID != top.ID {
		t.Fatal("client must point at its top item")
	}
	if top.ParentID != nil {
		t.Fatal("top item must be a root")
	}
	if top.Grain != "document" || top.ClientOwner != c.ID {
		t.Fatalf("unexpected top item: %+v", top)
	}
}

func TestRegisterClientUnknownGrain(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	_, _, err := eng.RegisterClient(ctx, &CreateClientInput{
		Name: "svc", Grain: "nope", TopItemName: "root",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRegisterClientDuplicateTopItem(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedGrain(t, eng, "document", false)

	if _, _, err := eng.RegisterClient(ctx, &CreateClientInput{
		Name: "svc-a", Grain: "document", TopItemName: "billing",
	}); err != nil {
		t.Fatal(err)
	}
	_, _, err := eng.RegisterClient(ctx, &CreateClientInput{
		Name: "svc-b", Grain: "document", TopItemName: "billing",
	})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
}

func TestAddChildItemInheritsScope(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedGrain(t, eng, "document", false)

	c, top, err := eng.RegisterClient(ctx, &CreateClientInput{
		Name: "svc", Grain: "document", TopItemName: "billing",
	})
	if err != nil {
		t.Fatal(err)
	}

	child, err := eng.AddChildItem(ctx, top.ID, &CreateItemInput{Name: "invoices"})
	if err != nil {
		t.Fatal(err)
	}
	if child.Grain != "document" || child.ClientOwner != c.ID {
		t.Fatalf("child must inherit grain and owner, got %+v", child)
	}
	if child.ParentID == nil || *child.ParentID != top.ID {
		t.Fatal("child must reference its parent")
	}

	// An explicit grain is allowed only when it matches the parent's.
	if _, err := eng.AddChildItem(ctx, top.ID, &CreateItemInput{Name: "drafts", Grain: "document"}); err != nil {
		t.Fatal(err)
	}
	_, err = eng.AddChildItem(ctx, top.ID, &CreateItemInput{Name: "other", Grain: "hosts"})
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestAddChildItemNameCollisions(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedGrain(t, eng, "document", false)

	_, top, err := eng.RegisterClient(ctx, &CreateClientInput{
		Name: "svc", Grain: "document", TopItemName: "billing",
	})
	if err != nil {
		t.Fatal(err)
	}
	child, err := eng.AddChildItem(ctx, top.ID, &CreateItemInput{Name: "invoices"})
	if err != nil {
		t.Fatal(err)
	}

	// Sibling names are unique.
	_, err = eng.AddChildItem(ctx, top.ID, &CreateItemInput{Name: "invoices"})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
	// A child may not reuse its parent's own name either.
	_, err = eng.AddChildItem(ctx, child.ID, &CreateItemInput{Name: "invoices"})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
	// The same name is fine elsewhere in the tree.
	if _, err := eng.AddChildItem(ctx, child.ID, &CreateItemInput{Name: "billing"}); err != nil {
		t.Fatal(err)
	}
}

func TestFindItemByID(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedGrain(t, eng, "document", false)

	cA, topA, err := eng.RegisterClient(ctx, &CreateClientInput{
		Name: "svc-a", Grain: "document", TopItemName: "a-root",
	})
	if err != nil {
		t.Fatal(err)
	}
	_, topB, err := eng.RegisterClient(ctx, &CreateClientInput{
		Name: "svc-b", Grain: "document", TopItemName: "b-root",
	})
	if err != nil {
		t.Fatal(err)
	}
	mid, err := eng.AddChildItem(ctx, topA.ID, &CreateItemInput{Name: "mid"})
	if err != nil {
		t.Fatal(err)
	}
	leaf, err := eng.AddChildItem(ctx, mid.ID, &CreateItemInput{Name: "leaf"})
	if err != nil {
		t.Fatal(err)
	}

	found, err := eng.FindItemByID(ctx, cA.ID, leaf.ID)
	if err != nil {
		t.Fatal(err)
	}
	if found.ID != leaf.ID {
		t.Fatalf("expected %s, got %s", leaf.ID, found.ID)
	}

	// An item outside the client's subtree is not found even though it
	// exists.
	_, err = eng.FindItemByID(ctx, cA.ID, topB.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOwnsTopLevelGrain(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedGrain(t, eng, "document", false)

	c, _, err := eng.RegisterClient(ctx, &CreateClientInput{
		Name: "svc", Grain: "document", TopItemName: "billing",
	})
	if err != nil {
		t.Fatal(err)
	}

	// A registered grain paired with the client's own top item name is
	// owned without walking the tree.
	ok, err := eng.Owns(ctx, c.ID, "document", "billing")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("client must own its top-level scope")
	}

	ok, err = eng.Owns(ctx, c.ID, "document", "someone-elses-root")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("must not own a foreign top item name")
	}
}

func TestOwnsWalksTree(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedGrain(t, eng, "document", false)

	c, top, err := eng.RegisterClient(ctx, &CreateClientInput{
		Name: "svc", Grain: "document", TopItemName: "billing",
	})
	if err != nil {
		t.Fatal(err)
	}
	// Nested scope: an item named like a grain with the securable item
	// as its child.
	scope, err := eng.AddChildItem(ctx, top.ID, &CreateItemInput{Name: "reports"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AddChildItem(ctx, scope.ID, &CreateItemInput{Name: "quarterly"}); err != nil {
		t.Fatal(err)
	}

	ok, err := eng.Owns(ctx, c.ID, "reports", "quarterly")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected ownership of nested scope")
	}

	ok, err = eng.Owns(ctx, c.ID, "reports", "annual")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("must not own an absent child")
	}
}

func TestDeleteItemHidesSubtree(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	seedGrain(t, eng, "document", false)

	c, top, err := eng.RegisterClient(ctx, &CreateClientInput{
		Name: "svc", Grain: "document", TopItemName: "root",
	})
	if err != nil {
		t.Fatal(err)
	}
	mid, err := eng.AddChildItem(ctx, top.ID, &CreateItemInput{Name: "mid"})
	if err != nil {
		t.Fatal(err)
	}
	leaf, err := eng.AddChildItem(ctx, mid.ID, &CreateItemInput{Name: "leaf"})
	if err != nil {
		t.Fatal(err)
	}

	if err := eng.DeleteItem(ctx, mid.ID); err != nil {
		t.Fatal(err)
	}

	// The leaf is orphaned from the subtree walk.
	_, err = eng.FindItemByID(ctx, c.ID, leaf.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("items under a deleted node must not be reachable, got %v", err)
	}
}
