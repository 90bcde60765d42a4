package group

import (
	"context"

	"github.com/xraph/fabric/id"
)

// Store defines persistence operations for groups and their role, user,
// and parent/child associations.
//
// Group deletes are soft; the junction rows of a deleted group are removed
// outright so nothing resolves through it. Name lookups match active groups
// case-insensitively.
type Store interface {
	// CreateGroup persists a new group.
	CreateGroup(ctx context.Context, g *Group) error

	// GetGroup retrieves an active group by name (case-insensitive).
	GetGroup(ctx context.Context, name string) (*Group, error)

	// GetGroupsByNames retrieves active groups by name. Names that do not
	// resolve are returned in missing; callers decide whether a partial
	// miss is an error.
	GetGroupsByNames(ctx context.Context, names []string) (found []*Group, missing []string, err error)

	// ListGroups returns active groups matching the filter.
	ListGroups(ctx context.Context, filter *ListFilter) ([]*Group, error)

	// UpdateGroup persists changes to a group.
	UpdateGroup(ctx context.Context, g *Group) error

	// DeleteGroup soft-deletes a group and removes its junction rows.
	DeleteGroup(ctx context.Context, groupID id.GroupID) error

	// ListGroupRoleIDs returns the IDs of roles directly mapped to a group.
	ListGroupRoleIDs(ctx context.Context, groupID id.GroupID) ([]id.RoleID, error)

	// AttachRoleToGroup maps a role to a group.
	AttachRoleToGroup(ctx context.Context, groupID id.GroupID, roleID id.RoleID) error

	// DetachRoleFromGroup removes a role mapping from a group.
	DetachRoleFromGroup(ctx context.Context, groupID id.GroupID, roleID id.RoleID) error

	// ListGroupUserKeys returns the user keys ("subjectID:identityProvider")
	// of a group's members.
	ListGroupUserKeys(ctx context.Context, groupID id.GroupID) ([]string, error)

	// AttachUserToGroup adds a user to a group.
	AttachUserToGroup(ctx context.Context, groupID id.GroupID, userKey string) error

	// DetachUserFromGroup removes a user from a group.
	DetachUserFromGroup(ctx context.Context, groupID id.GroupID, userKey string) error

	// ListChildGroups returns the active direct children of a group.
	ListChildGroups(ctx context.Context, groupID id.GroupID) ([]*Group, error)

	// ListParentGroups returns the active direct parents of a group.
	ListParentGroups(ctx context.Context, groupID id.GroupID) ([]*Group, error)

	// AttachChildGroup links a child group under a parent.
	AttachChildGroup(ctx context.Context, parentID, childID id.GroupID) error

	// DetachChildGroup removes a parent/child link.
	DetachChildGroup(ctx context.Context, parentID, childID id.GroupID) error

	// ListGroupsForUser returns the active groups a user belongs to.
	ListGroupsForUser(ctx context.Context, userKey string) ([]*Group, error)
}
