// Package securableitem defines the securable item entity and its store
// interface. Securable items form per-grain resource trees that roles and
// permissions are scoped against.
package securableitem

import (
	"time"

	"github.com/xraph/fabric/id"
)

// Item is a node in a securable item tree. The tree is stored as an arena:
// each item carries its parent ID and owning client, and children are
// discovered by store query. An item with a nil ParentID is the top-level
// item of its owning client.
type Item struct {
	ID          id.SecurableItemID  `json:"id" db:"id"`
	Name        string              `json:"name" db:"name"`
	Grain       string              `json:"grain" db:"grain"`
	ClientOwner id.ClientID         `json:"client_owner" db:"client_owner"`
	ParentID    *id.SecurableItemID `json:"parent_id,omitempty" db:"parent_id"`
	IsDeleted   bool                `json:"is_deleted" db:"is_deleted"`
	CreatedAt   time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at" db:"updated_at"`
}

// ListFilter contains filters for listing securable items.
type ListFilter struct {
	Grain       string       `json:"grain,omitempty"`
	Name        string       `json:"name,omitempty"`
	ClientOwner *id.ClientID `json:"client_owner,omitempty"`
}
