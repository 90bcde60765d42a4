// Package fabric is a centralized authorization engine. It manages a
// forest of client-owned securable item trees partitioned into grains,
// a role hierarchy with permission grants, user groups with role
// mappings, and per-user granular overrides, and resolves the effective
// permission set of a user within a scope.
//
// The entry point is the Engine, constructed with functional options:
//
//	eng, err := fabric.NewEngine(
//		fabric.WithStore(memory.New()),
//		fabric.WithCache(cache.NewMemory()),
//	)
//
// Resolution is deny-over-allow: a permission denied by any role on the
// user's path, or by a granular override, is withheld even when another
// role allows it.
package fabric

import (
	"github.com/xraph/fabric/group"
	"github.com/xraph/fabric/id"
)

// ResolveRequest identifies the user and scope for a permission
// resolution.
type ResolveRequest struct {
	// SubjectID is the user identifier within its identity provider.
	SubjectID string `json:"subject_id"`

	// IdentityProvider qualifies SubjectID. Matched case-insensitively.
	IdentityProvider string `json:"identity_provider"`

	// Grain scopes the resolution. Empty means shared-grain mode: all
	// grains flagged shared contribute.
	Grain string `json:"grain,omitempty"`

	// SecurableItem further scopes the resolution within the grain.
	SecurableItem string `json:"securable_item,omitempty"`

	// UserGroups are caller-supplied group names (typically from the
	// caller's identity token). Names that do not resolve to known
	// groups are skipped.
	UserGroups []string `json:"user_groups,omitempty"`
}

// ResolveResult is the outcome of a permission resolution. Permissions
// are reported in canonical "grain/securableItem.name" form, sorted.
type ResolveResult struct {
	AllowedPermissions []string `json:"allowed_permissions"`
	DeniedPermissions  []string `json:"denied_permissions"`
	EvalTimeNs         int64    `json:"eval_time_ns"`
}

// UserRef identifies a user by its composite key parts.
type UserRef struct {
	SubjectID        string `json:"subject_id"`
	IdentityProvider string `json:"identity_provider"`
}

// CreateClientInput carries the fields for registering a client. The
// top-level securable item is created together with the client.
type CreateClientInput struct {
	Name        string `json:"name"`
	Grain       string `json:"grain"`
	TopItemName string `json:"top_item_name"`
}

// CreateItemInput carries the fields for creating a securable item
// under an existing parent. An empty Grain inherits the parent's; a
// non-empty Grain must match it.
type CreateItemInput struct {
	Name  string `json:"name"`
	Grain string `json:"grain,omitempty"`
}

// CreateRoleInput carries the fields for creating a role with its
// initial permission grants, parent, and child roles in one operation.
type CreateRoleInput struct {
	Grain         string `json:"grain"`
	SecurableItem string `json:"securable_item"`
	Name          string `json:"name"`

	// ParentID links the new role under an existing role sharing its
	// scope.
	ParentID *id.RoleID `json:"parent_id,omitempty"`

	// PermissionIDs are attached with the allow effect.
	PermissionIDs []id.PermissionID `json:"permission_ids,omitempty"`

	// DeniedPermissionIDs are attached with the deny effect.
	DeniedPermissionIDs []id.PermissionID `json:"denied_permission_ids,omitempty"`

	// ChildRoleIDs are reparented under the new role. Each child must
	// share the new role's scope and must not already have a parent.
	ChildRoleIDs []id.RoleID `json:"child_role_ids,omitempty"`
}

// CreatePermissionInput carries the fields for creating a permission.
type CreatePermissionInput struct {
	Grain         string `json:"grain"`
	SecurableItem string `json:"securable_item"`
	Name          string `json:"name"`
}

// CreateGroupInput carries the fields for creating a group.
type CreateGroupInput struct {
	Name   string       `json:"name"`
	Source group.Source `json:"source"`
}
