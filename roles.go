package fabric

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/fabric/id"
	"github.com/xraph/fabric/permission"
	"github.com/xraph/fabric/role"
	"github.com/xraph/fabric/store"
)

// CreateRole creates a role with its initial permission grants, parent,
// and child roles. Permissions must share the role's scope; the parent
// and each child must share the scope, and a child must not already
// have a parent. Violations are collected across the whole input and
// returned together, with nothing written.
func (e *Engine) CreateRole(ctx context.Context, input *CreateRoleInput) (*role.Role, error) {
	if input == nil || input.Name == "" || input.Grain == "" {
		return nil, fmt.Errorf("%w: role name and grain are required", ErrBadRequest)
	}
	if _, err := e.store.GetGrain(ctx, input.Grain); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Kind: "grain", IDs: []string{input.Grain}}
		}
		return nil, fmt.Errorf("fabric: create role: %w", err)
	}

	existing, err := e.store.ListRoles(ctx, &role.ListFilter{
		Grain: input.Grain,
		Name:  input.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("fabric: create role: %w", err)
	}
	for _, ex := range existing {
		if ex.SecurableItem == input.SecurableItem {
			return nil, &AlreadyExistsError{Kind: "role", ID: input.Name}
		}
	}

	now := time.Now().UTC()
	r := &role.Role{
		ID:            id.NewRoleID(),
		Grain:         input.Grain,
		SecurableItem: input.SecurableItem,
		Name:          input.Name,
		ParentID:      input.ParentID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// Validate everything before any write; independent violations are
	// collected, not fail-fast.
	var violations []error

	allowPerms, missing, err := e.loadPermissions(ctx, input.PermissionIDs)
	if err != nil {
		return nil, err
	}
	denyPerms, missingDeny, err := e.loadPermissions(ctx, input.DeniedPermissionIDs)
	if err != nil {
		return nil, err
	}
	missing = append(missing, missingDeny...)
	if len(missing) > 0 {
		violations = append(violations, &NotFoundError{Kind: "permission", IDs: missing})
	}
	for _, p := range append(allowPerms, denyPerms...) {
		if err := checkPermissionScope(r, p); err != nil {
			violations = append(violations, err)
		}
	}

	if input.ParentID != nil {
		parent, err := e.store.GetRole(ctx, *input.ParentID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			violations = append(violations, &NotFoundError{Kind: "role", IDs: []string{input.ParentID.String()}})
		case err != nil:
			return nil, fmt.Errorf("fabric: create role: %w", err)
		case parent.Grain != r.Grain || parent.SecurableItem != r.SecurableItem:
			violations = append(violations, &IncompatibleRoleError{
				ParentID: input.ParentID.String(), ChildID: r.ID.String(), Detail: "scope mismatch",
			})
		}
	}

	var children []*role.Role
	for _, cid := range input.ChildRoleIDs {
		child, err := e.store.GetRole(ctx, cid)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				violations = append(violations, &NotFoundError{Kind: "role", IDs: []string{cid.String()}})
				continue
			}
			return nil, fmt.Errorf("fabric: create role: %w", err)
		}
		if child.Grain != r.Grain || child.SecurableItem != r.SecurableItem {
			violations = append(violations, &IncompatibleRoleError{
				ParentID: r.ID.String(), ChildID: cid.String(), Detail: "scope mismatch",
			})
			continue
		}
		if child.ParentID != nil {
			violations = append(violations, &IncompatibleRoleError{
				ParentID: r.ID.String(), ChildID: cid.String(), Detail: "already has a parent",
			})
			continue
		}
		children = append(children, child)
	}

	if len(violations) > 0 {
		return nil, errors.Join(violations...)
	}

	if err := e.store.CreateRole(ctx, r); err != nil {
		return nil, fmt.Errorf("fabric: create role: %w", err)
	}
	for _, p := range allowPerms {
		if err := e.store.AttachPermission(ctx, r.ID, p.ID, permission.EffectAllow); err != nil {
			return nil, fmt.Errorf("fabric: create role: %w", err)
		}
	}
	for _, p := range denyPerms {
		if err := e.store.AttachPermission(ctx, r.ID, p.ID, permission.EffectDeny); err != nil {
			return nil, fmt.Errorf("fabric: create role: %w", err)
		}
	}
	for _, child := range children {
		pid := r.ID
		child.ParentID = &pid
		child.UpdatedAt = time.Now().UTC()
		if err := e.store.UpdateRole(ctx, child); err != nil {
			return nil, fmt.Errorf("fabric: create role: %w", err)
		}
	}

	e.invalidateAll(ctx)
	if e.plugins != nil {
		e.plugins.EmitRoleCreated(ctx, r)
	}
	return r, nil
}

// GetRole retrieves an active role by ID.
func (e *Engine) GetRole(ctx context.Context, roleID id.RoleID) (*role.Role, error) {
	r, err := e.store.GetRole(ctx, roleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Kind: "role", IDs: []string{roleID.String()}}
		}
		return nil, fmt.Errorf("fabric: get role: %w", err)
	}
	return r, nil
}

// AddPermissionsToRole attaches permissions to a role with the given
// effect. A permission already attached is rejected rather than
// silently re-applied. All failures across the batch are collected and
// nothing is written on error.
func (e *Engine) AddPermissionsToRole(ctx context.Context, roleID id.RoleID, permIDs []id.PermissionID, effect permission.Effect) error {
	r, err := e.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	attached, err := e.attachedPermissionSet(ctx, r.ID)
	if err != nil {
		return err
	}

	var violations []error
	perms, missing, err := e.loadPermissions(ctx, permIDs)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		violations = append(violations, &NotFoundError{Kind: "permission", IDs: missing})
	}
	for _, p := range perms {
		if err := checkPermissionScope(r, p); err != nil {
			violations = append(violations, err)
			continue
		}
		if _, ok := attached[p.ID.String()]; ok {
			violations = append(violations, &AlreadyExistsError{Kind: "permission", ID: p.ID.String()})
		}
	}
	if len(violations) > 0 {
		return errors.Join(violations...)
	}

	for _, p := range perms {
		if err := e.store.AttachPermission(ctx, r.ID, p.ID, effect); err != nil {
			return fmt.Errorf("fabric: add permissions to role: %w", err)
		}
		if e.plugins != nil {
			e.plugins.EmitPermissionAttached(ctx, r.ID, p.ID, effect)
		}
	}
	e.invalidateAll(ctx)
	return nil
}

// RemovePermissionsFromRole detaches permissions from a role. A
// permission that is not attached is a NotFound; failures across the
// batch are collected and nothing is detached on error.
func (e *Engine) RemovePermissionsFromRole(ctx context.Context, roleID id.RoleID, permIDs []id.PermissionID) error {
	r, err := e.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	attached, err := e.attachedPermissionSet(ctx, r.ID)
	if err != nil {
		return err
	}
	var missing []string
	for _, pid := range permIDs {
		if _, ok := attached[pid.String()]; !ok {
			missing = append(missing, pid.String())
		}
	}
	if len(missing) > 0 {
		return &NotFoundError{Kind: "permission", IDs: missing}
	}

	for _, pid := range permIDs {
		if err := e.store.DetachPermission(ctx, r.ID, pid); err != nil {
			return fmt.Errorf("fabric: remove permissions from role: %w", err)
		}
		if e.plugins != nil {
			e.plugins.EmitPermissionDetached(ctx, r.ID, pid)
		}
	}
	e.invalidateAll(ctx)
	return nil
}

// DeleteRole soft-deletes a role. Child roles keep their parent
// reference; deleted roles simply stop contributing to hierarchy walks
// and resolutions.
func (e *Engine) DeleteRole(ctx context.Context, roleID id.RoleID) error {
	if _, err := e.GetRole(ctx, roleID); err != nil {
		return err
	}
	if err := e.store.DeleteRole(ctx, roleID); err != nil {
		return fmt.Errorf("fabric: delete role: %w", err)
	}
	e.invalidateAll(ctx)
	if e.plugins != nil {
		e.plugins.EmitRoleDeleted(ctx, roleID)
	}
	return nil
}

// RoleHierarchy returns the role's ancestor chain, nearest first. The
// walk stops at a missing or soft-deleted parent, a repeat, or
// MaxRoleDepth.
func (e *Engine) RoleHierarchy(ctx context.Context, roleID id.RoleID) ([]*role.Role, error) {
	r, err := e.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if r.ParentID == nil {
		return nil, nil
	}
	seen := map[string]struct{}{r.ID.String(): {}}
	var chain []*role.Role
	e.walkRoleAncestors(ctx, *r.ParentID, seen, &chain, 0)
	return chain, nil
}

// CreatePermission creates a permission. The (grain, securableItem,
// name) triple must be unique among active permissions.
func (e *Engine) CreatePermission(ctx context.Context, input *CreatePermissionInput) (*permission.Permission, error) {
	if input == nil || input.Name == "" || input.Grain == "" {
		return nil, fmt.Errorf("%w: permission name and grain are required", ErrBadRequest)
	}
	if _, err := e.store.GetGrain(ctx, input.Grain); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Kind: "grain", IDs: []string{input.Grain}}
		}
		return nil, fmt.Errorf("fabric: create permission: %w", err)
	}
	existing, err := e.store.ListPermissions(ctx, &permission.ListFilter{
		Grain: input.Grain,
		Name:  input.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("fabric: create permission: %w", err)
	}
	for _, ex := range existing {
		if ex.SecurableItem == input.SecurableItem {
			return nil, &AlreadyExistsError{Kind: "permission", ID: input.Name}
		}
	}

	now := time.Now().UTC()
	p := &permission.Permission{
		ID:            id.NewPermissionID(),
		Grain:         input.Grain,
		SecurableItem: input.SecurableItem,
		Name:          input.Name,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.store.CreatePermission(ctx, p); err != nil {
		return nil, fmt.Errorf("fabric: create permission: %w", err)
	}
	if e.plugins != nil {
		e.plugins.EmitPermissionCreated(ctx, p)
	}
	return p, nil
}

// DeletePermission soft-deletes a permission and removes its role
// associations within its own scope.
func (e *Engine) DeletePermission(ctx context.Context, permID id.PermissionID) error {
	p, err := e.store.GetPermission(ctx, permID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &NotFoundError{Kind: "permission", IDs: []string{permID.String()}}
		}
		return fmt.Errorf("fabric: delete permission: %w", err)
	}
	if err := e.store.DeletePermission(ctx, permID); err != nil {
		return fmt.Errorf("fabric: delete permission: %w", err)
	}
	if err := e.store.DetachPermissionFromRoles(ctx, permID, p.Grain, p.SecurableItem); err != nil {
		return fmt.Errorf("fabric: delete permission: %w", err)
	}
	e.invalidateAll(ctx)
	if e.plugins != nil {
		e.plugins.EmitPermissionDeleted(ctx, permID)
	}
	return nil
}

// loadPermissions resolves permission IDs, reporting the ones that do
// not resolve without failing the lookup.
func (e *Engine) loadPermissions(ctx context.Context, permIDs []id.PermissionID) ([]*permission.Permission, []string, error) {
	if len(permIDs) == 0 {
		return nil, nil, nil
	}
	perms, err := e.store.GetPermissionsByIDs(ctx, permIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("fabric: load permissions: %w", err)
	}
	found := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		found[p.ID.String()] = struct{}{}
	}
	var missing []string
	for _, pid := range permIDs {
		if _, ok := found[pid.String()]; !ok {
			missing = append(missing, pid.String())
		}
	}
	return perms, missing, nil
}

// requirePermissions loads all referenced permissions, failing with a
// single NotFoundError naming every missing ID.
func (e *Engine) requirePermissions(ctx context.Context, permIDs []id.PermissionID) ([]*permission.Permission, error) {
	perms, missing, err := e.loadPermissions(ctx, permIDs)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, &NotFoundError{Kind: "permission", IDs: missing}
	}
	return perms, nil
}

func (e *Engine) attachedPermissionSet(ctx context.Context, roleID id.RoleID) (map[string]struct{}, error) {
	grants, err := e.store.ListRoleGrants(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("fabric: list role grants: %w", err)
	}
	set := make(map[string]struct{}, len(grants))
	for _, g := range grants {
		set[g.PermissionID.String()] = struct{}{}
	}
	return set, nil
}

// checkPermissionScope verifies a permission can be granted by a role:
// same grain, and same securable item unless the permission is
// item-less (grain-wide).
func checkPermissionScope(r *role.Role, p *permission.Permission) error {
	if p.Grain != r.Grain {
		return &IncompatiblePermissionError{RoleID: r.ID.String(), PermissionID: p.ID.String(), Detail: "grain mismatch"}
	}
	if p.SecurableItem != "" && p.SecurableItem != r.SecurableItem {
		return &IncompatiblePermissionError{RoleID: r.ID.String(), PermissionID: p.ID.String(), Detail: "securable item mismatch"}
	}
	return nil
}

// invalidateAll drops every cached resolution. Role and permission
// mutations can affect any user.
func (e *Engine) invalidateAll(ctx context.Context) {
	if e.cache != nil {
		e.cache.InvalidateAll(ctx)
	}
}
