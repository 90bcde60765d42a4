package permission

import (
	"context"

	"github.com/xraph/fabric/id"
)

// Store defines persistence operations for permissions.
// Deletes are soft: deleted permissions are excluded from reads and from
// batch lookups.
type Store interface {
	// CreatePermission persists a new permission.
	CreatePermission(ctx context.Context, p *Permission) error

	// GetPermission retrieves an active permission by ID.
	GetPermission(ctx context.Context, permID id.PermissionID) (*Permission, error)

	// GetPermissionsByIDs retrieves the active permissions among the given
	// IDs. Missing or soft-deleted IDs are skipped, not errors.
	GetPermissionsByIDs(ctx context.Context, permIDs []id.PermissionID) ([]*Permission, error)

	// ListPermissions returns active permissions matching the filter.
	ListPermissions(ctx context.Context, filter *ListFilter) ([]*Permission, error)

	// DeletePermission soft-deletes a permission.
	DeletePermission(ctx context.Context, permID id.PermissionID) error

	// DetachPermissionFromRoles removes every role association of the
	// permission within the given grain (and securable item, when non-empty).
	DetachPermissionFromRoles(ctx context.Context, permID id.PermissionID, grain, securableItem string) error
}
