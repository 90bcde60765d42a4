// Package role defines the Role entity and its store interface.
package role

import (
	"time"

	"github.com/xraph/fabric/id"
	"github.com/xraph/fabric/permission"
)

// Role is a named, scoped bundle of permission grants. A role has at most
// one parent; parent and child must share the same (grain, securableItem)
// pair, so the hierarchy is a forest of linear-ancestry trees.
type Role struct {
	ID            id.RoleID  `json:"id" db:"id"`
	Grain         string     `json:"grain" db:"grain"`
	SecurableItem string     `json:"securable_item" db:"securable_item"`
	Name          string     `json:"name" db:"name"`
	ParentID      *id.RoleID `json:"parent_id,omitempty" db:"parent_id"`
	IsDeleted     bool       `json:"is_deleted" db:"is_deleted"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// Grant is a role-to-permission association. The effect (allow or deny)
// is a property of the association, not of the permission.
type Grant struct {
	PermissionID id.PermissionID   `json:"permission_id" db:"permission_id"`
	Effect       permission.Effect `json:"effect" db:"effect"`
}

// ListFilter contains filters for listing roles.
type ListFilter struct {
	Grain         string     `json:"grain,omitempty"`
	SecurableItem string     `json:"securable_item,omitempty"`
	Name          string     `json:"name,omitempty"`
	ParentID      *id.RoleID `json:"parent_id,omitempty"`
}
