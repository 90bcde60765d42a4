package fabric

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/fabric/client"
	"github.com/xraph/fabric/grain"
	"github.com/xraph/fabric/id"
	"github.com/xraph/fabric/securableitem"
	"github.com/xraph/fabric/store"
)

// CreateGrain registers a new top-level scope.
func (e *Engine) CreateGrain(ctx context.Context, name string, shared bool) (*grain.Grain, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: grain name is required", ErrBadRequest)
	}
	if _, err := e.store.GetGrain(ctx, name); err == nil {
		return nil, &AlreadyExistsError{Kind: "grain", ID: name}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("fabric: create grain: %w", err)
	}
	now := time.Now().UTC()
	g := &grain.Grain{Name: name, IsShared: shared, CreatedAt: now, UpdatedAt: now}
	if err := e.store.CreateGrain(ctx, g); err != nil {
		return nil, fmt.Errorf("fabric: create grain: %w", err)
	}
	return g, nil
}

// ListGrains returns all registered grains.
func (e *Engine) ListGrains(ctx context.Context) ([]*grain.Grain, error) {
	grains, err := e.store.ListGrains(ctx)
	if err != nil {
		return nil, fmt.Errorf("fabric: list grains: %w", err)
	}
	return grains, nil
}

// RegisterClient registers a consumer application together with the
// top-level securable item it owns. The item roots the client's
// resource tree within the given grain.
func (e *Engine) RegisterClient(ctx context.Context, input *CreateClientInput) (*client.Client, *securableitem.Item, error) {
	if input == nil || input.Name == "" || input.Grain == "" || input.TopItemName == "" {
		return nil, nil, fmt.Errorf("%w: client name, grain, and top item name are required", ErrBadRequest)
	}
	if _, err := e.store.GetGrain(ctx, input.Grain); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, &NotFoundError{Kind: "grain", IDs: []string{input.Grain}}
		}
		return nil, nil, fmt.Errorf("fabric: register client: %w", err)
	}

	existing, err := e.store.ListItems(ctx, &securableitem.ListFilter{Grain: input.Grain, Name: input.TopItemName})
	if err != nil {
		return nil, nil, fmt.Errorf("fabric: register client: %w", err)
	}
	for _, it := range existing {
		if it.ParentID == nil {
			return nil, nil, &AlreadyExistsError{Kind: "securable item", ID: input.TopItemName}
		}
	}

	now := time.Now().UTC()
	c := &client.Client{ID: id.NewClientID(), Name: input.Name, CreatedAt: now, UpdatedAt: now}
	top := &securableitem.Item{
		ID:          id.NewSecurableItemID(),
		Name:        input.TopItemName,
		Grain:       input.Grain,
		ClientOwner: c.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	c.TopItemID = top.ID

	if err := e.store.CreateClient(ctx, c); err != nil {
		return nil, nil, fmt.Errorf("fabric: register client: %w", err)
	}
	if err := e.store.CreateItem(ctx, top); err != nil {
		return nil, nil, fmt.Errorf("fabric: register client: %w", err)
	}
	return c, top, nil
}

// AddChildItem creates a securable item beneath an existing one. The
// child inherits the parent's grain and owning client; an explicit
// grain that differs from the parent's is rejected. The name must
// differ from the parent's own name and from every sibling name.
func (e *Engine) AddChildItem(ctx context.Context, parentID id.SecurableItemID, input *CreateItemInput) (*securableitem.Item, error) {
	if input == nil || input.Name == "" {
		return nil, fmt.Errorf("%w: item name is required", ErrBadRequest)
	}
	parent, err := e.store.GetItem(ctx, parentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Kind: "securable item", IDs: []string{parentID.String()}}
		}
		return nil, fmt.Errorf("fabric: add child item: %w", err)
	}
	if input.Grain != "" && input.Grain != parent.Grain {
		return nil, fmt.Errorf("%w: item grain %q does not match parent grain %q", ErrBadRequest, input.Grain, parent.Grain)
	}
	if input.Name == parent.Name {
		return nil, &AlreadyExistsError{Kind: "securable item", ID: input.Name}
	}
	siblings, err := e.store.ListChildren(ctx, parent.ID)
	if err != nil {
		return nil, fmt.Errorf("fabric: add child item: %w", err)
	}
	for _, s := range siblings {
		if s.Name == input.Name {
			return nil, &AlreadyExistsError{Kind: "securable item", ID: input.Name}
		}
	}
	now := time.Now().UTC()
	pid := parent.ID
	it := &securableitem.Item{
		ID:          id.NewSecurableItemID(),
		Name:        input.Name,
		Grain:       parent.Grain,
		ClientOwner: parent.ClientOwner,
		ParentID:    &pid,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.store.CreateItem(ctx, it); err != nil {
		return nil, fmt.Errorf("fabric: add child item: %w", err)
	}
	return it, nil
}

// GetItem retrieves an active securable item by ID.
func (e *Engine) GetItem(ctx context.Context, itemID id.SecurableItemID) (*securableitem.Item, error) {
	it, err := e.store.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Kind: "securable item", IDs: []string{itemID.String()}}
		}
		return nil, fmt.Errorf("fabric: get item: %w", err)
	}
	return it, nil
}

// FindItemByID searches the client's subtree for an item. The search
// covers the whole tree rooted at the client's top-level item; an ID
// outside the subtree is NotFound even if the item exists elsewhere.
func (e *Engine) FindItemByID(ctx context.Context, clientID id.ClientID, itemID id.SecurableItemID) (*securableitem.Item, error) {
	c, err := e.getClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	var found *securableitem.Item
	err = e.walkItems(ctx, c.TopItemID, func(it *securableitem.Item) bool {
		if it.ID == itemID {
			found = it
			return true
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, &NotFoundError{Kind: "securable item", IDs: []string{itemID.String()}}
	}
	return found, nil
}

// DeleteItem soft-deletes a securable item. Descendants become
// unreachable through child listings but are not themselves marked.
func (e *Engine) DeleteItem(ctx context.Context, itemID id.SecurableItemID) error {
	if _, err := e.GetItem(ctx, itemID); err != nil {
		return err
	}
	if err := e.store.DeleteItem(ctx, itemID); err != nil {
		return fmt.Errorf("fabric: delete item: %w", err)
	}
	return nil
}

// Owns reports whether a client's tree covers the (grain, securable
// item) pair. A grain that is itself a registered top-level grain
// short-circuits on the client's top item name; otherwise the walk
// looks for an item named after the grain with a child named after the
// securable item.
func (e *Engine) Owns(ctx context.Context, clientID id.ClientID, grainName, itemName string) (bool, error) {
	c, err := e.getClient(ctx, clientID)
	if err != nil {
		return false, err
	}
	top, err := e.store.GetItem(ctx, c.TopItemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("fabric: owns: %w", err)
	}

	// Common case: the client asks about its own top-level scope.
	if _, err := e.store.GetGrain(ctx, grainName); err == nil {
		if itemName == top.Name {
			return true, nil
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("fabric: owns: %w", err)
	}

	owned := false
	err = e.walkItems(ctx, top.ID, func(it *securableitem.Item) bool {
		if it.Name != grainName {
			return false
		}
		children, cerr := e.store.ListChildren(ctx, it.ID)
		if cerr != nil {
			return false
		}
		for _, child := range children {
			if child.Name == itemName {
				owned = true
				return true
			}
		}
		return false
	})
	if err != nil {
		return false, err
	}
	return owned, nil
}

func (e *Engine) getClient(ctx context.Context, clientID id.ClientID) (*client.Client, error) {
	c, err := e.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Kind: "client", IDs: []string{clientID.String()}}
		}
		return nil, fmt.Errorf("fabric: get client: %w", err)
	}
	return c, nil
}

// walkItems runs a depth-first traversal from root, stopping early when
// visit returns true.
func (e *Engine) walkItems(ctx context.Context, rootID id.SecurableItemID, visit func(*securableitem.Item) bool) error {
	root, err := e.store.GetItem(ctx, rootID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("fabric: walk items: %w", err)
	}
	frontier := []*securableitem.Item{root}
	for len(frontier) > 0 {
		current := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		if visit(current) {
			return nil
		}
		children, err := e.store.ListChildren(ctx, current.ID)
		if err != nil {
			return fmt.Errorf("fabric: walk items: %w", err)
		}
		frontier = append(frontier, children...)
	}
	return nil
}
