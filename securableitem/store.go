package securableitem

import (
	"context"

	"github.com/xraph/fabric/id"
)

// Store defines persistence operations for securable items.
// Deletes are soft: deleted items are excluded from reads and child listings.
type Store interface {
	// CreateItem persists a new securable item.
	CreateItem(ctx context.Context, it *Item) error

	// GetItem retrieves an active item by ID.
	GetItem(ctx context.Context, itemID id.SecurableItemID) (*Item, error)

	// ListChildren returns the active direct children of an item.
	ListChildren(ctx context.Context, parentID id.SecurableItemID) ([]*Item, error)

	// ListItems returns active items matching the filter.
	ListItems(ctx context.Context, filter *ListFilter) ([]*Item, error)

	// UpdateItem persists changes to an item.
	UpdateItem(ctx context.Context, it *Item) error

	// DeleteItem soft-deletes an item.
	DeleteItem(ctx context.Context, itemID id.SecurableItemID) error
}
