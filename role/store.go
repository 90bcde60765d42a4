package role

import (
	"context"

	"github.com/xraph/fabric/id"
	"github.com/xraph/fabric/permission"
)

// Store defines persistence operations for roles.
// Deletes are soft: deleted roles are excluded from reads, hierarchy walks,
// and child listings.
type Store interface {
	// CreateRole persists a new role.
	CreateRole(ctx context.Context, r *Role) error

	// GetRole retrieves an active role by ID.
	GetRole(ctx context.Context, roleID id.RoleID) (*Role, error)

	// ListRoles returns active roles matching the filter.
	ListRoles(ctx context.Context, filter *ListFilter) ([]*Role, error)

	// UpdateRole persists changes to a role.
	UpdateRole(ctx context.Context, r *Role) error

	// DeleteRole soft-deletes a role.
	DeleteRole(ctx context.Context, roleID id.RoleID) error

	// ListRoleGrants returns the permission associations of a role.
	ListRoleGrants(ctx context.Context, roleID id.RoleID) ([]*Grant, error)

	// AttachPermission links a permission to a role with the given effect.
	AttachPermission(ctx context.Context, roleID id.RoleID, permID id.PermissionID, effect permission.Effect) error

	// DetachPermission removes a permission association from a role.
	DetachPermission(ctx context.Context, roleID id.RoleID, permID id.PermissionID) error

	// ListChildRoles returns the active direct children of a role.
	ListChildRoles(ctx context.Context, parentID id.RoleID) ([]*Role, error)
}
