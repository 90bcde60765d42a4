// Package client defines the Client entity and its store interface.
// A client is a registered consumer application; it owns exactly one
// top-level securable item and, transitively, everything beneath it.
package client

import (
	"time"

	"github.com/xraph/fabric/id"
)

// Client represents a registered consumer of the authorization service.
type Client struct {
	ID        id.ClientID         `json:"id" db:"id"`
	Name      string              `json:"name" db:"name"`
	TopItemID id.SecurableItemID  `json:"top_item_id" db:"top_item_id"`
	IsDeleted bool                `json:"is_deleted" db:"is_deleted"`
	CreatedAt time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt time.Time           `json:"updated_at" db:"updated_at"`
}
