package user

import (
	"context"

	"github.com/xraph/fabric/id"
)

// Store defines persistence operations for users and their direct role
// assignments.
type Store interface {
	// CreateUser persists a new user.
	CreateUser(ctx context.Context, u *User) error

	// GetUser retrieves a user by composite key.
	GetUser(ctx context.Context, userKey string) (*User, error)

	// ListUserRoleIDs returns the IDs of roles directly assigned to a user.
	ListUserRoleIDs(ctx context.Context, userKey string) ([]id.RoleID, error)

	// AttachRoleToUser assigns a role directly to a user.
	AttachRoleToUser(ctx context.Context, userKey string, roleID id.RoleID) error

	// DetachRoleFromUser removes a direct role assignment.
	DetachRoleFromUser(ctx context.Context, userKey string, roleID id.RoleID) error
}
