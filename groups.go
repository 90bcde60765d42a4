package fabric

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/fabric/granular"
	"github.com/xraph/fabric/group"
	"github.com/xraph/fabric/id"
	"github.com/xraph/fabric/store"
	"github.com/xraph/fabric/user"
)

// CreateGroup creates a group. Names are unique case-insensitively
// among active groups; a deleted group's name may be reused.
func (e *Engine) CreateGroup(ctx context.Context, input *CreateGroupInput) (*group.Group, error) {
	if input == nil || input.Name == "" {
		return nil, fmt.Errorf("%w: group name is required", ErrBadRequest)
	}
	source := group.SourceCustom
	if input.Source != "" {
		parsed, ok := group.ParseSource(string(input.Source))
		if !ok {
			return nil, fmt.Errorf("%w: unknown group source %q", ErrBadRequest, input.Source)
		}
		source = parsed
	}

	if _, err := e.store.GetGroup(ctx, input.Name); err == nil {
		return nil, &AlreadyExistsError{Kind: "group", ID: input.Name}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("fabric: create group: %w", err)
	}

	now := time.Now().UTC()
	g := &group.Group{
		ID:        id.NewGroupID(),
		Name:      input.Name,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateGroup(ctx, g); err != nil {
		return nil, fmt.Errorf("fabric: create group: %w", err)
	}
	if e.plugins != nil {
		e.plugins.EmitGroupCreated(ctx, g)
	}
	return g, nil
}

// GetGroup retrieves an active group by name, case-insensitively. When
// duplicates exist the oldest wins.
func (e *Engine) GetGroup(ctx context.Context, name string) (*group.Group, error) {
	g, err := e.store.GetGroup(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Kind: "group", IDs: []string{name}}
		}
		return nil, fmt.Errorf("fabric: get group: %w", err)
	}
	return g, nil
}

// DeleteGroup soft-deletes a group and detaches its users, roles, and
// group links.
func (e *Engine) DeleteGroup(ctx context.Context, name string) error {
	g, err := e.GetGroup(ctx, name)
	if err != nil {
		return err
	}
	if err := e.store.DeleteGroup(ctx, g.ID); err != nil {
		return fmt.Errorf("fabric: delete group: %w", err)
	}
	e.invalidateAll(ctx)
	if e.plugins != nil {
		e.plugins.EmitGroupDeleted(ctx, g.ID)
	}
	return nil
}

// AddUsersToGroup adds users to a custom group, creating any that do
// not exist yet. Directory groups own their membership externally and
// reject this call. Users already in the group are rejected rather
// than silently re-added; failures across the batch are collected and
// nothing is written on error.
func (e *Engine) AddUsersToGroup(ctx context.Context, groupName string, users []UserRef) error {
	g, err := e.GetGroup(ctx, groupName)
	if err != nil {
		return err
	}
	if g.Source != group.SourceCustom {
		return fmt.Errorf("%w: group %q is %s-sourced, membership is managed externally", ErrBadRequest, g.Name, g.Source)
	}
	members, err := e.groupMemberSet(ctx, g.ID)
	if err != nil {
		return err
	}

	var violations []error
	for _, ref := range users {
		if ref.SubjectID == "" || ref.IdentityProvider == "" {
			violations = append(violations, fmt.Errorf("%w: subject id and identity provider are required", ErrBadRequest))
			continue
		}
		if _, ok := members[user.Key(ref.SubjectID, ref.IdentityProvider)]; ok {
			violations = append(violations, &AlreadyExistsError{Kind: "group member", ID: user.Key(ref.SubjectID, ref.IdentityProvider)})
		}
	}
	if len(violations) > 0 {
		return errors.Join(violations...)
	}

	for _, ref := range users {
		u := newUser(ref)
		if err := e.store.CreateUser(ctx, u); err != nil {
			return fmt.Errorf("fabric: add users to group: %w", err)
		}
		if err := e.store.AttachUserToGroup(ctx, g.ID, u.Key()); err != nil {
			return fmt.Errorf("fabric: add users to group: %w", err)
		}
		e.invalidateSubject(ctx, ref.SubjectID, ref.IdentityProvider)
	}
	return nil
}

// DeleteUserFromGroup removes a user from a custom group. A user that
// is not a member is a NotFound.
func (e *Engine) DeleteUserFromGroup(ctx context.Context, groupName string, ref UserRef) error {
	g, err := e.GetGroup(ctx, groupName)
	if err != nil {
		return err
	}
	if g.Source != group.SourceCustom {
		return fmt.Errorf("%w: group %q is %s-sourced, membership is managed externally", ErrBadRequest, g.Name, g.Source)
	}
	userKey := user.Key(ref.SubjectID, ref.IdentityProvider)
	members, err := e.groupMemberSet(ctx, g.ID)
	if err != nil {
		return err
	}
	if _, ok := members[userKey]; !ok {
		return &NotFoundError{Kind: "group member", IDs: []string{userKey}}
	}
	if err := e.store.DetachUserFromGroup(ctx, g.ID, userKey); err != nil {
		return fmt.Errorf("fabric: delete user from group: %w", err)
	}
	e.invalidateSubject(ctx, ref.SubjectID, ref.IdentityProvider)
	return nil
}

// AddRolesToGroup maps roles onto a group. Unknown role IDs are
// collected into one NotFound; roles already mapped are rejected as
// AlreadyExists. Nothing is attached on error.
func (e *Engine) AddRolesToGroup(ctx context.Context, groupName string, roleIDs []id.RoleID) error {
	g, err := e.GetGroup(ctx, groupName)
	if err != nil {
		return err
	}
	mapped, err := e.groupRoleSet(ctx, g.ID)
	if err != nil {
		return err
	}

	var violations []error
	var missing []string
	for _, rid := range roleIDs {
		if _, err := e.store.GetRole(ctx, rid); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				missing = append(missing, rid.String())
				continue
			}
			return fmt.Errorf("fabric: add roles to group: %w", err)
		}
		if _, ok := mapped[rid.String()]; ok {
			violations = append(violations, &AlreadyExistsError{Kind: "group role", ID: rid.String()})
		}
	}
	if len(missing) > 0 {
		violations = append(violations, &NotFoundError{Kind: "role", IDs: missing})
	}
	if len(violations) > 0 {
		return errors.Join(violations...)
	}

	for _, rid := range roleIDs {
		if err := e.store.AttachRoleToGroup(ctx, g.ID, rid); err != nil {
			return fmt.Errorf("fabric: add roles to group: %w", err)
		}
	}
	e.invalidateAll(ctx)
	return nil
}

// DeleteRolesFromGroup removes role mappings from a group. Roles not
// mapped to the group are collected into one NotFound and nothing is
// removed.
func (e *Engine) DeleteRolesFromGroup(ctx context.Context, groupName string, roleIDs []id.RoleID) error {
	g, err := e.GetGroup(ctx, groupName)
	if err != nil {
		return err
	}
	mapped, err := e.groupRoleSet(ctx, g.ID)
	if err != nil {
		return err
	}
	var missing []string
	for _, rid := range roleIDs {
		if _, ok := mapped[rid.String()]; !ok {
			missing = append(missing, rid.String())
		}
	}
	if len(missing) > 0 {
		return &NotFoundError{Kind: "group role", IDs: missing}
	}

	for _, rid := range roleIDs {
		if err := e.store.DetachRoleFromGroup(ctx, g.ID, rid); err != nil {
			return fmt.Errorf("fabric: delete roles from group: %w", err)
		}
	}
	e.invalidateAll(ctx)
	return nil
}

// AddChildGroups links child groups under a parent. The parent must be
// custom-sourced and a child must not be: directory groups hang under
// custom umbrella groups, never the other way around. A named child
// that does not exist yet is created on the fly when its descriptor
// carries a non-custom source. Existing links are rejected as
// AlreadyExists. Failures across the batch are collected and nothing
// is linked on error.
func (e *Engine) AddChildGroups(ctx context.Context, parentName string, children []CreateGroupInput) error {
	parent, err := e.GetGroup(ctx, parentName)
	if err != nil {
		return err
	}
	if parent.Source != group.SourceCustom {
		return fmt.Errorf("%w: group %q is %s-sourced and cannot hold child groups", ErrBadRequest, parent.Name, parent.Source)
	}
	linked, err := e.childGroupSet(ctx, parent.ID)
	if err != nil {
		return err
	}

	type resolvedChild struct {
		existing *group.Group
		create   *CreateGroupInput
	}
	var resolved []resolvedChild
	var violations []error
	for i := range children {
		desc := &children[i]
		if desc.Name == "" {
			violations = append(violations, fmt.Errorf("%w: child group name is required", ErrBadRequest))
			continue
		}
		child, err := e.store.GetGroup(ctx, desc.Name)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("fabric: add child groups: %w", err)
		}
		if err != nil {
			// Auto-create only externally-sourced children.
			parsed, ok := group.ParseSource(string(desc.Source))
			if desc.Source != "" && !ok {
				violations = append(violations, fmt.Errorf("%w: unknown group source %q", ErrBadRequest, desc.Source))
				continue
			}
			if desc.Source == "" || parsed == group.SourceCustom {
				violations = append(violations, fmt.Errorf("%w: child group %q does not exist and only non-custom groups are auto-created", ErrBadRequest, desc.Name))
				continue
			}
			resolved = append(resolved, resolvedChild{create: desc})
			continue
		}
		if child.Source == group.SourceCustom {
			violations = append(violations, fmt.Errorf("%w: group %q is custom-sourced and cannot be a child", ErrBadRequest, child.Name))
			continue
		}
		if _, ok := linked[child.ID.String()]; ok {
			violations = append(violations, &AlreadyExistsError{Kind: "child group", ID: child.Name})
			continue
		}
		cyclic, err := e.reachableFromParents(ctx, parent.ID, child.ID)
		if err != nil {
			return err
		}
		if cyclic {
			violations = append(violations, fmt.Errorf("%w: linking %q under %q", ErrCyclicGroupNesting, child.Name, parent.Name))
			continue
		}
		resolved = append(resolved, resolvedChild{existing: child})
	}
	if len(violations) > 0 {
		return errors.Join(violations...)
	}

	for _, rc := range resolved {
		child := rc.existing
		if child == nil {
			child, err = e.CreateGroup(ctx, rc.create)
			if err != nil {
				return err
			}
		}
		if err := e.store.AttachChildGroup(ctx, parent.ID, child.ID); err != nil {
			return fmt.Errorf("fabric: add child groups: %w", err)
		}
	}
	e.invalidateAll(ctx)
	return nil
}

// RemoveChildGroups removes parent/child links. Names that are not
// linked children are collected into one NotFound and nothing is
// removed.
func (e *Engine) RemoveChildGroups(ctx context.Context, parentName string, childNames []string) error {
	parent, err := e.GetGroup(ctx, parentName)
	if err != nil {
		return err
	}
	children, missingNames, err := e.store.GetGroupsByNames(ctx, childNames)
	if err != nil {
		return fmt.Errorf("fabric: remove child groups: %w", err)
	}
	linked, err := e.childGroupSet(ctx, parent.ID)
	if err != nil {
		return err
	}
	missing := missingNames
	for _, child := range children {
		if _, ok := linked[child.ID.String()]; !ok {
			missing = append(missing, child.Name)
		}
	}
	if len(missing) > 0 {
		return &NotFoundError{Kind: "child group", IDs: missing}
	}

	for _, child := range children {
		if err := e.store.DetachChildGroup(ctx, parent.ID, child.ID); err != nil {
			return fmt.Errorf("fabric: remove child groups: %w", err)
		}
	}
	e.invalidateAll(ctx)
	return nil
}

// reachableFromParents reports whether target is reachable by walking
// upward from start through parent links. Used as a guard when linking
// groups: the source rules make cycles impossible through this API,
// but store-level writes (and merges of mixed-source duplicates) can
// produce links the rules would have rejected.
func (e *Engine) reachableFromParents(ctx context.Context, start, target id.GroupID) (bool, error) {
	seen := map[string]struct{}{start.String(): {}}
	frontier := []id.GroupID{start}
	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]
		parents, err := e.store.ListParentGroups(ctx, current)
		if err != nil {
			return false, fmt.Errorf("fabric: walk group parents: %w", err)
		}
		for _, p := range parents {
			if p.ID == target {
				return true, nil
			}
			if _, ok := seen[p.ID.String()]; ok {
				continue
			}
			seen[p.ID.String()] = struct{}{}
			frontier = append(frontier, p.ID)
		}
	}
	return false, nil
}

// GetGroupsForUser returns the groups a user belongs to directly.
// With flattenChildGroups set, each direct group's immediate children
// are unioned in as well, one level only, matching the resolver's
// flattening contract.
func (e *Engine) GetGroupsForUser(ctx context.Context, ref UserRef, flattenChildGroups bool) ([]*group.Group, error) {
	userKey := user.Key(ref.SubjectID, ref.IdentityProvider)
	direct, err := e.store.ListGroupsForUser(ctx, userKey)
	if err != nil {
		return nil, fmt.Errorf("fabric: groups for user: %w", err)
	}
	if !flattenChildGroups {
		return direct, nil
	}
	seen := make(map[string]struct{}, len(direct))
	result := make([]*group.Group, 0, len(direct))
	for _, g := range direct {
		seen[g.ID.String()] = struct{}{}
		result = append(result, g)
	}
	for _, g := range direct {
		children, err := e.store.ListChildGroups(ctx, g.ID)
		if err != nil {
			return nil, fmt.Errorf("fabric: groups for user: %w", err)
		}
		for _, child := range children {
			if _, ok := seen[child.ID.String()]; ok {
				continue
			}
			seen[child.ID.String()] = struct{}{}
			result = append(result, child)
		}
	}
	return result, nil
}

// AddRolesToUser assigns roles directly to a user, creating the user
// record if needed. Unknown role IDs are collected into one NotFound
// and nothing is attached.
func (e *Engine) AddRolesToUser(ctx context.Context, ref UserRef, roleIDs []id.RoleID) error {
	if ref.SubjectID == "" || ref.IdentityProvider == "" {
		return fmt.Errorf("%w: subject id and identity provider are required", ErrBadRequest)
	}
	var missing []string
	for _, rid := range roleIDs {
		if _, err := e.store.GetRole(ctx, rid); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				missing = append(missing, rid.String())
				continue
			}
			return fmt.Errorf("fabric: add roles to user: %w", err)
		}
	}
	if len(missing) > 0 {
		return &NotFoundError{Kind: "role", IDs: missing}
	}
	u := newUser(ref)
	if err := e.store.CreateUser(ctx, u); err != nil {
		return fmt.Errorf("fabric: add roles to user: %w", err)
	}
	userKey := u.Key()
	for _, rid := range roleIDs {
		if err := e.store.AttachRoleToUser(ctx, userKey, rid); err != nil {
			return fmt.Errorf("fabric: add roles to user: %w", err)
		}
		if e.plugins != nil {
			e.plugins.EmitRoleAssigned(ctx, userKey, rid)
		}
	}
	e.invalidateSubject(ctx, ref.SubjectID, ref.IdentityProvider)
	return nil
}

// DeleteRolesFromUser removes direct role assignments from a user.
func (e *Engine) DeleteRolesFromUser(ctx context.Context, ref UserRef, roleIDs []id.RoleID) error {
	userKey := user.Key(ref.SubjectID, ref.IdentityProvider)
	for _, rid := range roleIDs {
		if err := e.store.DetachRoleFromUser(ctx, userKey, rid); err != nil {
			return fmt.Errorf("fabric: delete roles from user: %w", err)
		}
		if e.plugins != nil {
			e.plugins.EmitRoleUnassigned(ctx, userKey, rid)
		}
	}
	e.invalidateSubject(ctx, ref.SubjectID, ref.IdentityProvider)
	return nil
}

// SetGranularPermission replaces a user's granular override record.
// Every referenced permission must exist. Empty lists clear the
// corresponding side of the override.
func (e *Engine) SetGranularPermission(ctx context.Context, ref UserRef, additional, denied []id.PermissionID) error {
	if ref.SubjectID == "" || ref.IdentityProvider == "" {
		return fmt.Errorf("%w: subject id and identity provider are required", ErrBadRequest)
	}
	if _, err := e.requirePermissions(ctx, additional); err != nil {
		return err
	}
	if _, err := e.requirePermissions(ctx, denied); err != nil {
		return err
	}
	u := newUser(ref)
	if err := e.store.CreateUser(ctx, u); err != nil {
		return fmt.Errorf("fabric: set granular permission: %w", err)
	}
	now := time.Now().UTC()
	rec := &granular.GranularPermission{
		UserKey:                 u.Key(),
		AdditionalPermissionIDs: additional,
		DeniedPermissionIDs:     denied,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := e.store.SetGranular(ctx, rec); err != nil {
		return fmt.Errorf("fabric: set granular permission: %w", err)
	}
	e.invalidateSubject(ctx, ref.SubjectID, ref.IdentityProvider)
	return nil
}

func (e *Engine) groupMemberSet(ctx context.Context, groupID id.GroupID) (map[string]struct{}, error) {
	keys, err := e.store.ListGroupUserKeys(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("fabric: list group members: %w", err)
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set, nil
}

func (e *Engine) groupRoleSet(ctx context.Context, groupID id.GroupID) (map[string]struct{}, error) {
	roleIDs, err := e.store.ListGroupRoleIDs(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("fabric: list group roles: %w", err)
	}
	set := make(map[string]struct{}, len(roleIDs))
	for _, rid := range roleIDs {
		set[rid.String()] = struct{}{}
	}
	return set, nil
}

func (e *Engine) childGroupSet(ctx context.Context, groupID id.GroupID) (map[string]struct{}, error) {
	children, err := e.store.ListChildGroups(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("fabric: list child groups: %w", err)
	}
	set := make(map[string]struct{}, len(children))
	for _, child := range children {
		set[child.ID.String()] = struct{}{}
	}
	return set, nil
}

func newUser(ref UserRef) *user.User {
	now := time.Now().UTC()
	return &user.User{
		SubjectID:        ref.SubjectID,
		IdentityProvider: ref.IdentityProvider,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// invalidateSubject drops cached resolutions for one subject.
func (e *Engine) invalidateSubject(ctx context.Context, subjectID, identityProvider string) {
	if e.cache != nil {
		e.cache.InvalidateSubject(ctx, subjectID, identityProvider)
	}
}
