// Package plugin defines the plugin system for Fabric.
// Plugins are notified of lifecycle events (permissions resolved, role
// created, groups migrated, etc.) and can react with logging, metrics,
// tracing, and so on.
//
// Each lifecycle hook is a separate interface so plugins opt in only
// to the events they care about.
package plugin

import (
	"context"

	"github.com/xraph/fabric/group"
	"github.com/xraph/fabric/id"
	"github.com/xraph/fabric/permission"
	"github.com/xraph/fabric/role"
)

// Plugin is the base interface all plugins must implement.
type Plugin interface {
	// Name returns a unique human-readable name for the plugin.
	Name() string
}

// ──────────────────────────────────────────────────
// Resolution lifecycle hooks
// ──────────────────────────────────────────────────

// BeforeResolve is called before a permission resolution is evaluated.
// The req parameter is *fabric.ResolveRequest (passed as any to avoid
// an import cycle).
type BeforeResolve interface {
	OnBeforeResolve(ctx context.Context, req any) error
}

// AfterResolve is called after a permission resolution completes.
// The req parameter is *fabric.ResolveRequest; result is
// *fabric.ResolveResult.
type AfterResolve interface {
	OnAfterResolve(ctx context.Context, req, result any) error
}

// ──────────────────────────────────────────────────
// Role lifecycle hooks
// ──────────────────────────────────────────────────

// RoleCreated is called after a role is created.
type RoleCreated interface {
	OnRoleCreated(ctx context.Context, r *role.Role) error
}

// RoleDeleted is called after a role is deleted.
type RoleDeleted interface {
	OnRoleDeleted(ctx context.Context, roleID id.RoleID) error
}

// ──────────────────────────────────────────────────
// Permission lifecycle hooks
// ──────────────────────────────────────────────────

// PermissionCreated is called after a permission is created.
type PermissionCreated interface {
	OnPermissionCreated(ctx context.Context, p *permission.Permission) error
}

// PermissionDeleted is called after a permission is deleted.
type PermissionDeleted interface {
	OnPermissionDeleted(ctx context.Context, permID id.PermissionID) error
}

// PermissionAttached is called after a permission is attached to a role.
type PermissionAttached interface {
	OnPermissionAttached(ctx context.Context, roleID id.RoleID, permID id.PermissionID, effect permission.Effect) error
}

// PermissionDetached is called after a permission is detached from a role.
type PermissionDetached interface {
	OnPermissionDetached(ctx context.Context, roleID id.RoleID, permID id.PermissionID) error
}

// ──────────────────────────────────────────────────
// Group lifecycle hooks
// ──────────────────────────────────────────────────

// GroupCreated is called after a group is created.
type GroupCreated interface {
	OnGroupCreated(ctx context.Context, g *group.Group) error
}

// GroupDeleted is called after a group is deleted.
type GroupDeleted interface {
	OnGroupDeleted(ctx context.Context, groupID id.GroupID) error
}

// GroupsMigrated is called after a duplicate-group migration run
// completes. The report parameter is *fabric.MigrationResult.
type GroupsMigrated interface {
	OnGroupsMigrated(ctx context.Context, report any) error
}

// ──────────────────────────────────────────────────
// Assignment lifecycle hooks
// ──────────────────────────────────────────────────

// RoleAssigned is called after a role is assigned to a user or group.
type RoleAssigned interface {
	OnRoleAssigned(ctx context.Context, subject string, roleID id.RoleID) error
}

// RoleUnassigned is called after a role is removed from a user or group.
type RoleUnassigned interface {
	OnRoleUnassigned(ctx context.Context, subject string, roleID id.RoleID) error
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Shutdown is called when the engine is stopping.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
