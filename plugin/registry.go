package plugin

import (
	"context"
	"log/slog"

	"github.com/xraph/fabric/group"
	"github.com/xraph/fabric/id"
	"github.com/xraph/fabric/permission"
	"github.com/xraph/fabric/role"
)

// Named entry types pair a hook with the plugin name for logging.

type beforeResolveEntry struct {
	name string
	hook BeforeResolve
}
type afterResolveEntry struct {
	name string
	hook AfterResolve
}
type roleCreatedEntry struct {
	name string
	hook RoleCreated
}
type roleDeletedEntry struct {
	name string
	hook RoleDeleted
}
type permissionCreatedEntry struct {
	name string
	hook PermissionCreated
}
type permissionDeletedEntry struct {
	name string
	hook PermissionDeleted
}
type permissionAttachedEntry struct {
	name string
	hook PermissionAttached
}
type permissionDetachedEntry struct {
	name string
	hook PermissionDetached
}
type groupCreatedEntry struct {
	name string
	hook GroupCreated
}
type groupDeletedEntry struct {
	name string
	hook GroupDeleted
}
type groupsMigratedEntry struct {
	name string
	hook GroupsMigrated
}
type roleAssignedEntry struct {
	name string
	hook RoleAssigned
}
type roleUnassignedEntry struct {
	name string
	hook RoleUnassigned
}
type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered plugins and dispatches lifecycle events.
// It type-caches plugins at registration time so emit calls iterate
// only over plugins implementing the relevant hook.
type Registry struct {
	plugins []Plugin
	logger  *slog.Logger

	beforeResolve      []beforeResolveEntry
	afterResolve       []afterResolveEntry
	roleCreated        []roleCreatedEntry
	roleDeleted        []roleDeletedEntry
	permissionCreated  []permissionCreatedEntry
	permissionDeleted  []permissionDeletedEntry
	permissionAttached []permissionAttachedEntry
	permissionDetached []permissionDetachedEntry
	groupCreated       []groupCreatedEntry
	groupDeleted       []groupDeletedEntry
	groupsMigrated     []groupsMigratedEntry
	roleAssigned       []roleAssignedEntry
	roleUnassigned     []roleUnassignedEntry
	shutdown           []shutdownEntry
}

// NewRegistry creates a plugin registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds a plugin and type-asserts it into all applicable
// hook caches. Plugins are notified in registration order.
func (r *Registry) Register(p Plugin) {
	r.plugins = append(r.plugins, p)
	name := p.Name()

	if h, ok := p.(BeforeResolve); ok {
		r.beforeResolve = append(r.beforeResolve, beforeResolveEntry{name, h})
	}
	if h, ok := p.(AfterResolve); ok {
		r.afterResolve = append(r.afterResolve, afterResolveEntry{name, h})
	}
	if h, ok := p.(RoleCreated); ok {
		r.roleCreated = append(r.roleCreated, roleCreatedEntry{name, h})
	}
	if h, ok := p.(RoleDeleted); ok {
		r.roleDeleted = append(r.roleDeleted, roleDeletedEntry{name, h})
	}
	if h, ok := p.(PermissionCreated); ok {
		r.permissionCreated = append(r.permissionCreated, permissionCreatedEntry{name, h})
	}
	if h, ok := p.(PermissionDeleted); ok {
		r.permissionDeleted = append(r.permissionDeleted, permissionDeletedEntry{name, h})
	}
	if h, ok := p.(PermissionAttached); ok {
		r.permissionAttached = append(r.permissionAttached, permissionAttachedEntry{name, h})
	}
	if h, ok := p.(PermissionDetached); ok {
		r.permissionDetached = append(r.permissionDetached, permissionDetachedEntry{name, h})
	}
	if h, ok := p.(GroupCreated); ok {
		r.groupCreated = append(r.groupCreated, groupCreatedEntry{name, h})
	}
	if h, ok := p.(GroupDeleted); ok {
		r.groupDeleted = append(r.groupDeleted, groupDeletedEntry{name, h})
	}
	if h, ok := p.(GroupsMigrated); ok {
		r.groupsMigrated = append(r.groupsMigrated, groupsMigratedEntry{name, h})
	}
	if h, ok := p.(RoleAssigned); ok {
		r.roleAssigned = append(r.roleAssigned, roleAssignedEntry{name, h})
	}
	if h, ok := p.(RoleUnassigned); ok {
		r.roleUnassigned = append(r.roleUnassigned, roleUnassignedEntry{name, h})
	}
	if h, ok := p.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Plugins returns all registered plugins.
func (r *Registry) Plugins() []Plugin { return r.plugins }

// ──────────────────────────────────────────────────
// Resolution event emitters
// ──────────────────────────────────────────────────

// EmitBeforeResolve notifies all plugins that implement BeforeResolve.
func (r *Registry) EmitBeforeResolve(ctx context.Context, req any) {
	for _, e := range r.beforeResolve {
		if err := e.hook.OnBeforeResolve(ctx, req); err != nil {
			r.logHookError("OnBeforeResolve", e.name, err)
		}
	}
}

// EmitAfterResolve notifies all plugins that implement AfterResolve.
func (r *Registry) EmitAfterResolve(ctx context.Context, req, result any) {
	for _, e := range r.afterResolve {
		if err := e.hook.OnAfterResolve(ctx, req, result); err != nil {
			r.logHookError("OnAfterResolve", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Role event emitters
// ──────────────────────────────────────────────────

// EmitRoleCreated notifies all plugins that implement RoleCreated.
func (r *Registry) EmitRoleCreated(ctx context.Context, rl *role.Role) {
	for _, e := range r.roleCreated {
		if err := e.hook.OnRoleCreated(ctx, rl); err != nil {
			r.logHookError("OnRoleCreated", e.name, err)
		}
	}
}

// EmitRoleDeleted notifies all plugins that implement RoleDeleted.
func (r *Registry) EmitRoleDeleted(ctx context.Context, roleID id.RoleID) {
	for _, e := range r.roleDeleted {
		if err := e.hook.OnRoleDeleted(ctx, roleID); err != nil {
			r.logHookError("OnRoleDeleted", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Permission event emitters
// ──────────────────────────────────────────────────

// EmitPermissionCreated notifies all plugins that implement PermissionCreated.
func (r *Registry) EmitPermissionCreated(ctx context.Context, p *permission.Permission) {
	for _, e := range r.permissionCreated {
		if err := e.hook.OnPermissionCreated(ctx, p); err != nil {
			r.logHookError("OnPermissionCreated", e.name, err)
		}
	}
}

// EmitPermissionDeleted notifies all plugins that implement PermissionDeleted.
func (r *Registry) EmitPermissionDeleted(ctx context.Context, permID id.PermissionID) {
	for _, e := range r.permissionDeleted {
		if err := e.hook.OnPermissionDeleted(ctx, permID); err != nil {
			r.logHookError("OnPermissionDeleted", e.name, err)
		}
	}
}

// EmitPermissionAttached notifies all plugins that implement PermissionAttached.
func (r *Registry) EmitPermissionAttached(ctx context.Context, roleID id.RoleID, permID id.PermissionID, effect permission.Effect) {
	for _, e := range r.permissionAttached {
		if err := e.hook.OnPermissionAttached(ctx, roleID, permID, effect); err != nil {
			r.logHookError("OnPermissionAttached", e.name, err)
		}
	}
}

// EmitPermissionDetached notifies all plugins that implement PermissionDetached.
func (r *Registry) EmitPermissionDetached(ctx context.Context, roleID id.RoleID, permID id.PermissionID) {
	for _, e := range r.permissionDetached {
		if err := e.hook.OnPermissionDetached(ctx, roleID, permID); err != nil {
			r.logHookError("OnPermissionDetached", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Group event emitters
// ──────────────────────────────────────────────────

// EmitGroupCreated notifies all plugins that implement GroupCreated.
func (r *Registry) EmitGroupCreated(ctx context.Context, g *group.Group) {
	for _, e := range r.groupCreated {
		if err := e.hook.OnGroupCreated(ctx, g); err != nil {
			r.logHookError("OnGroupCreated", e.name, err)
		}
	}
}

// EmitGroupDeleted notifies all plugins that implement GroupDeleted.
func (r *Registry) EmitGroupDeleted(ctx context.Context, groupID id.GroupID) {
	for _, e := range r.groupDeleted {
		if err := e.hook.OnGroupDeleted(ctx, groupID); err != nil {
			r.logHookError("OnGroupDeleted", e.name, err)
		}
	}
}

// EmitGroupsMigrated notifies all plugins that implement GroupsMigrated.
func (r *Registry) EmitGroupsMigrated(ctx context.Context, report any) {
	for _, e := range r.groupsMigrated {
		if err := e.hook.OnGroupsMigrated(ctx, report); err != nil {
			r.logHookError("OnGroupsMigrated", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Assignment event emitters
// ──────────────────────────────────────────────────

// EmitRoleAssigned notifies all plugins that implement RoleAssigned.
func (r *Registry) EmitRoleAssigned(ctx context.Context, subject string, roleID id.RoleID) {
	for _, e := range r.roleAssigned {
		if err := e.hook.OnRoleAssigned(ctx, subject, roleID); err != nil {
			r.logHookError("OnRoleAssigned", e.name, err)
		}
	}
}

// EmitRoleUnassigned notifies all plugins that implement RoleUnassigned.
func (r *Registry) EmitRoleUnassigned(ctx context.Context, subject string, roleID id.RoleID) {
	for _, e := range r.roleUnassigned {
		if err := e.hook.OnRoleUnassigned(ctx, subject, roleID); err != nil {
			r.logHookError("OnRoleUnassigned", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Lifecycle emitters
// ──────────────────────────────────────────────────

// EmitShutdown notifies all plugins that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a plugin hook failure. Hook errors never propagate
// to callers; a misbehaving plugin must not break the engine.
func (r *Registry) logHookError(hook, plugin string, err error) {
	if r.logger == nil {
		return
	}
	r.logger.Warn("plugin hook failed",
		slog.String("hook", hook),
		slog.String("plugin", plugin),
		slog.String("error", err.Error()),
	)
}
