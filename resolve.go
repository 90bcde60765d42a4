package fabric

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xraph/fabric/decisionlog"
	"github.com/xraph/fabric/group"
	"github.com/xraph/fabric/id"
	"github.com/xraph/fabric/permission"
	"github.com/xraph/fabric/role"
	"github.com/xraph/fabric/securableitem"
	"github.com/xraph/fabric/store"
	"github.com/xraph/fabric/user"
)

// flattenDepth is how many levels of child groups contribute their role
// mappings to a parent group's members. Exactly one level: children of
// children do not resolve through the grandparent.
const flattenDepth = 1

// Resolve computes the effective permission set of a user within a
// scope. This is the hot path.
//
// A user with no roles resolves to an empty result, not an error. An
// unknown grain is an error; an empty grain switches to shared-grain
// mode, where every grain flagged shared contributes.
func (e *Engine) Resolve(ctx context.Context, req *ResolveRequest) (*ResolveResult, error) {
	start := time.Now()

	if req == nil || req.SubjectID == "" || req.IdentityProvider == "" {
		return nil, fmt.Errorf("%w: subject id and identity provider are required", ErrBadRequest)
	}

	// Scope validation. Empty grain means shared mode.
	sharedMode := req.Grain == ""
	if !sharedMode {
		if _, err := e.store.GetGrain(ctx, req.Grain); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, &NotFoundError{Kind: "grain", IDs: []string{req.Grain}}
			}
			return nil, fmt.Errorf("fabric: resolve: %w", err)
		}
		if req.SecurableItem != "" {
			items, err := e.store.ListItems(ctx, &securableitem.ListFilter{Grain: req.Grain, Name: req.SecurableItem})
			if err != nil {
				return nil, fmt.Errorf("fabric: resolve: %w", err)
			}
			if len(items) == 0 {
				return nil, &NotFoundError{Kind: "securable item", IDs: []string{req.SecurableItem}}
			}
		}
	}

	if e.cache != nil {
		if cached, ok := e.cache.Get(ctx, req); ok {
			e.metrics.observeCacheHit()
			cached.EvalTimeNs = time.Since(start).Nanoseconds()
			return cached, nil
		}
	}

	if e.plugins != nil {
		e.plugins.EmitBeforeResolve(ctx, req)
	}

	result, err := e.evaluate(ctx, req, sharedMode)
	if err != nil {
		e.metrics.observeResolve("error", time.Since(start).Seconds())
		return nil, err
	}
	result.EvalTimeNs = time.Since(start).Nanoseconds()

	if e.cache != nil {
		e.cache.Set(ctx, req, result)
	}
	e.metrics.observeResolve("ok", time.Since(start).Seconds())

	if e.config.LogDecisions {
		entry := &decisionlog.Entry{
			ID:               id.NewDecisionLogID(),
			SubjectID:        req.SubjectID,
			IdentityProvider: req.IdentityProvider,
			Grain:            req.Grain,
			SecurableItem:    req.SecurableItem,
			AllowedCount:     len(result.AllowedPermissions),
			DeniedCount:      len(result.DeniedPermissions),
			EvalTimeNs:       result.EvalTimeNs,
			CreatedAt:        time.Now().UTC(),
		}
		if err := e.store.CreateEntry(ctx, entry); err != nil {
			e.logger.Warn("decision log write failed", slog.String("error", err.Error()))
		}
	}

	if e.plugins != nil {
		e.plugins.EmitAfterResolve(ctx, req, result)
	}

	return result, nil
}

// evaluate runs the resolution pipeline: collect roles, expand
// ancestors, filter by scope, union grants, overlay granular
// overrides, and apply deny-over-allow.
func (e *Engine) evaluate(ctx context.Context, req *ResolveRequest, sharedMode bool) (*ResolveResult, error) {
	userKey := user.Key(req.SubjectID, req.IdentityProvider)

	roleIDs, err := e.collectRoleIDs(ctx, userKey, req.UserGroups)
	if err != nil {
		return nil, err
	}

	roles := e.expandAncestors(ctx, roleIDs)
	roles, err = e.filterScope(ctx, roles, req, sharedMode)
	if err != nil {
		return nil, err
	}

	allowIDs := make(map[string]id.PermissionID)
	denyIDs := make(map[string]id.PermissionID)
	for _, r := range roles {
		grants, err := e.store.ListRoleGrants(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("fabric: resolve grants: %w", err)
		}
		for _, g := range grants {
			switch g.Effect {
			case permission.EffectDeny:
				denyIDs[g.PermissionID.String()] = g.PermissionID
			default:
				allowIDs[g.PermissionID.String()] = g.PermissionID
			}
		}
	}

	// Granular overlay: per-user additions and denials, independent of
	// any role or group membership.
	granularRec, err := e.store.GetGranular(ctx, userKey)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("fabric: resolve granular: %w", err)
	}
	if granularRec != nil {
		for _, pid := range granularRec.AdditionalPermissionIDs {
			allowIDs[pid.String()] = pid
		}
		for _, pid := range granularRec.DeniedPermissionIDs {
			denyIDs[pid.String()] = pid
		}
	}

	canonical, err := e.canonicalNames(ctx, allowIDs, denyIDs)
	if err != nil {
		return nil, err
	}

	denied := make(map[string]struct{}, len(denyIDs))
	var deniedList []string
	for key := range denyIDs {
		name, ok := canonical[key]
		if !ok {
			continue // soft-deleted permission
		}
		if _, seen := denied[name]; !seen {
			denied[name] = struct{}{}
			deniedList = append(deniedList, name)
		}
	}

	var allowedList []string
	seen := make(map[string]struct{}, len(allowIDs))
	for key := range allowIDs {
		name, ok := canonical[key]
		if !ok {
			continue
		}
		if _, isDenied := denied[name]; isDenied {
			continue // deny overrides allow
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		allowedList = append(allowedList, name)
	}

	sort.Strings(allowedList)
	sort.Strings(deniedList)

	return &ResolveResult{
		AllowedPermissions: allowedList,
		DeniedPermissions:  deniedList,
	}, nil
}

// collectRoleIDs gathers the user's direct roles plus the roles mapped
// to its groups, including one level of child groups per group.
func (e *Engine) collectRoleIDs(ctx context.Context, userKey string, callerGroups []string) ([]id.RoleID, error) {
	var result []id.RoleID
	seen := make(map[string]struct{})
	add := func(rid id.RoleID) {
		if _, ok := seen[rid.String()]; ok {
			return
		}
		seen[rid.String()] = struct{}{}
		result = append(result, rid)
	}

	direct, err := e.store.ListUserRoleIDs(ctx, userKey)
	if err != nil {
		return nil, fmt.Errorf("fabric: resolve user roles: %w", err)
	}
	for _, rid := range direct {
		add(rid)
	}

	groups, err := e.resolveUserGroups(ctx, userKey, callerGroups)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if err := e.addGroupRoles(ctx, g, add, flattenDepth); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// resolveUserGroups merges stored group memberships with caller-supplied
// group names. Unknown caller-supplied names are skipped: the resolver is
// lenient where the mutation surface is strict.
func (e *Engine) resolveUserGroups(ctx context.Context, userKey string, callerGroups []string) ([]*group.Group, error) {
	stored, err := e.store.ListGroupsForUser(ctx, userKey)
	if err != nil {
		return nil, fmt.Errorf("fabric: resolve groups: %w", err)
	}
	result := stored
	seen := make(map[string]struct{}, len(stored))
	for _, g := range stored {
		seen[g.ID.String()] = struct{}{}
	}
	if len(callerGroups) > 0 {
		found, missing, err := e.store.GetGroupsByNames(ctx, callerGroups)
		if err != nil {
			return nil, fmt.Errorf("fabric: resolve groups: %w", err)
		}
		if len(missing) > 0 {
			e.logger.Debug("skipping unknown caller groups", slog.Any("groups", missing))
		}
		for _, g := range found {
			if _, ok := seen[g.ID.String()]; ok {
				continue
			}
			seen[g.ID.String()] = struct{}{}
			result = append(result, g)
		}
	}
	return result, nil
}

// addGroupRoles adds a group's role mappings and recurses into child
// groups up to depth levels.
func (e *Engine) addGroupRoles(ctx context.Context, g *group.Group, add func(id.RoleID), depth int) error {
	roleIDs, err := e.store.ListGroupRoleIDs(ctx, g.ID)
	if err != nil {
		return fmt.Errorf("fabric: resolve group roles: %w", err)
	}
	for _, rid := range roleIDs {
		add(rid)
	}
	if depth <= 0 {
		return nil
	}
	children, err := e.store.ListChildGroups(ctx, g.ID)
	if err != nil {
		return fmt.Errorf("fabric: resolve child groups: %w", err)
	}
	for _, child := range children {
		if err := e.addGroupRoles(ctx, child, add, depth-1); err != nil {
			return err
		}
	}
	return nil
}

// expandAncestors loads each role and walks its parent chain, deduped
// by a visited set and capped at MaxRoleDepth. Missing or deleted
// roles are skipped.
func (e *Engine) expandAncestors(ctx context.Context, roleIDs []id.RoleID) []*role.Role {
	seen := make(map[string]struct{}, len(roleIDs))
	result := make([]*role.Role, 0, len(roleIDs)*2)
	for _, rid := range roleIDs {
		e.walkRoleAncestors(ctx, rid, seen, &result, 0)
	}
	return result
}

func (e *Engine) walkRoleAncestors(ctx context.Context, roleID id.RoleID, seen map[string]struct{}, result *[]*role.Role, depth int) {
	key := roleID.String()
	if _, ok := seen[key]; ok {
		return
	}
	if depth > e.config.MaxRoleDepth {
		return
	}
	seen[key] = struct{}{}

	r, err := e.store.GetRole(ctx, roleID)
	if err != nil || r == nil {
		return
	}
	*result = append(*result, r)
	if r.ParentID == nil {
		return
	}
	e.walkRoleAncestors(ctx, *r.ParentID, seen, result, depth+1)
}

// filterScope keeps roles matching the requested scope. Super-admin
// roles bypass the filter entirely. In shared mode, roles of any grain
// flagged shared qualify.
func (e *Engine) filterScope(ctx context.Context, roles []*role.Role, req *ResolveRequest, sharedMode bool) ([]*role.Role, error) {
	var sharedGrains map[string]struct{}
	if sharedMode {
		shared, err := e.store.ListSharedGrains(ctx)
		if err != nil {
			return nil, fmt.Errorf("fabric: resolve shared grains: %w", err)
		}
		sharedGrains = make(map[string]struct{}, len(shared))
		for _, g := range shared {
			sharedGrains[g.Name] = struct{}{}
		}
	}

	kept := make([]*role.Role, 0, len(roles))
	for _, r := range roles {
		if e.config.isSuperAdminRole(r.Name) {
			kept = append(kept, r)
			continue
		}
		if sharedMode {
			if _, ok := sharedGrains[r.Grain]; ok {
				kept = append(kept, r)
			}
			continue
		}
		if r.Grain != req.Grain {
			continue
		}
		if req.SecurableItem != "" && r.SecurableItem != req.SecurableItem {
			continue
		}
		kept = append(kept, r)
	}
	return kept, nil
}

// canonicalNames resolves permission IDs to canonical names in one
// batch. Soft-deleted permissions drop out of the map.
func (e *Engine) canonicalNames(ctx context.Context, sets ...map[string]id.PermissionID) (map[string]string, error) {
	var all []id.PermissionID
	seen := make(map[string]struct{})
	for _, set := range sets {
		for key, pid := range set {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			all = append(all, pid)
		}
	}
	if len(all) == 0 {
		return map[string]string{}, nil
	}
	perms, err := e.store.GetPermissionsByIDs(ctx, all)
	if err != nil {
		return nil, fmt.Errorf("fabric: resolve permissions: %w", err)
	}
	canonical := make(map[string]string, len(perms))
	for _, p := range perms {
		canonical[p.ID.String()] = p.Canonical()
	}
	return canonical, nil
}
