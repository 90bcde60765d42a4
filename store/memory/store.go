// Package memory provides an in-memory implementation of the Fabric
// composite store. It is intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xraph/fabric/client"
	"github.com/xraph/fabric/decisionlog"
	"github.com/xraph/fabric/grain"
	"github.com/xraph/fabric/granular"
	"github.com/xraph/fabric/group"
	"github.com/xraph/fabric/id"
	"github.com/xraph/fabric/permission"
	"github.com/xraph/fabric/role"
	"github.com/xraph/fabric/securableitem"
	"github.com/xraph/fabric/store"
	"github.com/xraph/fabric/user"
)

// Compile-time interface checks.
var (
	_ grain.Store         = (*Store)(nil)
	_ client.Store        = (*Store)(nil)
	_ securableitem.Store = (*Store)(nil)
	_ permission.Store    = (*Store)(nil)
	_ role.Store          = (*Store)(nil)
	_ group.Store         = (*Store)(nil)
	_ user.Store          = (*Store)(nil)
	_ granular.Store      = (*Store)(nil)
	_ decisionlog.Store   = (*Store)(nil)
	_ store.Store         = (*Store)(nil)
)

// Store is a thread-safe in-memory store for all Fabric entities.
type Store struct {
	mu sync.RWMutex

	grains      map[string]*grain.Grain
	clients     map[string]*client.Client
	items       map[string]*securableitem.Item
	permissions map[string]*permission.Permission
	roles       map[string]*role.Role
	groups      map[string]*group.Group
	users       map[string]*user.User
	granulars   map[string]*granular.GranularPermission
	logs        map[string]*decisionlog.Entry

	roleGrants    map[string]map[string]permission.Effect // roleID -> permID -> effect
	groupRoles    map[string]map[string]struct{}          // groupID -> roleID set
	groupUsers    map[string]map[string]struct{}          // groupID -> user key set
	groupChildren map[string]map[string]struct{}          // parent groupID -> child groupID set
	userRoles     map[string]map[string]struct{}          // user key -> roleID set
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		grains:        make(map[string]*grain.Grain),
		clients:       make(map[string]*client.Client),
		items:         make(map[string]*securableitem.Item),
		permissions:   make(map[string]*permission.Permission),
		roles:         make(map[string]*role.Role),
		groups:        make(map[string]*group.Group),
		users:         make(map[string]*user.User),
		granulars:     make(map[string]*granular.GranularPermission),
		logs:          make(map[string]*decisionlog.Entry),
		roleGrants:    make(map[string]map[string]permission.Effect),
		groupRoles:    make(map[string]map[string]struct{}),
		groupUsers:    make(map[string]map[string]struct{}),
		groupChildren: make(map[string]map[string]struct{}),
		userRoles:     make(map[string]map[string]struct{}),
	}
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Grain store
// ──────────────────────────────────────────────────

func (s *Store) CreateGrain(_ context.Context, g *grain.Grain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *g
	s.grains[g.Name] = &c
	return nil
}

func (s *Store) GetGrain(_ context.Context, name string) (*grain.Grain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grains[name]
	if !ok {
		return nil, fmt.Errorf("grain %q: %w", name, store.ErrNotFound)
	}
	c := *g
	return &c, nil
}

func (s *Store) ListGrains(_ context.Context) ([]*grain.Grain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*grain.Grain, 0, len(s.grains))
	for _, g := range s.grains {
		c := *g
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *Store) ListSharedGrains(_ context.Context) ([]*grain.Grain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*grain.Grain
	for _, g := range s.grains {
		if g.IsShared {
			c := *g
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// ──────────────────────────────────────────────────
// Client store
// ──────────────────────────────────────────────────

func (s *Store) CreateClient(_ context.Context, c *client.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.clients[c.ID.String()] = &cp
	return nil
}

func (s *Store) GetClient(_ context.Context, clientID id.ClientID) (*client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[clientID.String()]
	if !ok || c.IsDeleted {
		return nil, fmt.Errorf("client %s: %w", clientID, store.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListClients(_ context.Context) ([]*client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*client.Client
	for _, c := range s.clients {
		if c.IsDeleted {
			continue
		}
		cp := *c
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	return result, nil
}

func (s *Store) UpdateClient(_ context.Context, c *client.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.ID.String()]; !ok {
		return fmt.Errorf("client %s: %w", c.ID, store.ErrNotFound)
	}
	cp := *c
	s.clients[c.ID.String()] = &cp
	return nil
}

func (s *Store) DeleteClient(_ context.Context, clientID id.ClientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[clientID.String()]
	if !ok {
		return fmt.Errorf("client %s: %w", clientID, store.ErrNotFound)
	}
	c.IsDeleted = true
	return nil
}

// ──────────────────────────────────────────────────
// Securable item store
// ──────────────────────────────────────────────────

func (s *Store) CreateItem(_ context.Context, it *securableitem.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *it
	s.items[it.ID.String()] = &cp
	return nil
}

func (s *Store) GetItem(_ context.Context, itemID id.SecurableItemID) (*securableitem.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[itemID.String()]
	if !ok || it.IsDeleted {
		return nil, fmt.Errorf("securable item %s: %w", itemID, store.ErrNotFound)
	}
	cp := *it
	return &cp, nil
}

func (s *Store) ListChildren(_ context.Context, parentID id.SecurableItemID) ([]*securableitem.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pid := parentID.String()
	var result []*securableitem.Item
	for _, it := range s.items {
		if it.IsDeleted || it.ParentID == nil || it.ParentID.String() != pid {
			continue
		}
		cp := *it
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *Store) ListItems(_ context.Context, filter *securableitem.ListFilter) ([]*securableitem.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*securableitem.Item
	for _, it := range s.items {
		if it.IsDeleted {
			continue
		}
		if filter != nil {
			if filter.Grain != "" && it.Grain != filter.Grain {
				continue
			}
			if filter.Name != "" && it.Name != filter.Name {
				continue
			}
			if filter.ClientOwner != nil && it.ClientOwner.String() != filter.ClientOwner.String() {
				continue
			}
		}
		cp := *it
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	return result, nil
}

func (s *Store) UpdateItem(_ context.Context, it *securableitem.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[it.ID.String()]; !ok {
		return fmt.Errorf("securable item %s: %w", it.ID, store.ErrNotFound)
	}
	cp := *it
	s.items[it.ID.String()] = &cp
	return nil
}

func (s *Store) DeleteItem(_ context.Context, itemID id.SecurableItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID.String()]
	if !ok {
		return fmt.Errorf("securable item %s: %w", itemID, store.ErrNotFound)
	}
	it.IsDeleted = true
	return nil
}

// ──────────────────────────────────────────────────
// Permission store
// ──────────────────────────────────────────────────

func (s *Store) CreatePermission(_ context.Context, p *permission.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.permissions[p.ID.String()] = &cp
	return nil
}

func (s *Store) GetPermission(_ context.Context, permID id.PermissionID) (*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.permissions[permID.String()]
	if !ok || p.IsDeleted {
		return nil, fmt.Errorf("permission %s: %w", permID, store.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *Store) GetPermissionsByIDs(_ context.Context, permIDs []id.PermissionID) ([]*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*permission.Permission, 0, len(permIDs))
	for _, pid := range permIDs {
		p, ok := s.permissions[pid.String()]
		if !ok || p.IsDeleted {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	return result, nil
}

func (s *Store) ListPermissions(_ context.Context, filter *permission.ListFilter) ([]*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*permission.Permission
	for _, p := range s.permissions {
		if p.IsDeleted {
			continue
		}
		if filter != nil {
			if filter.Grain != "" && p.Grain != filter.Grain {
				continue
			}
			if filter.SecurableItem != "" && p.SecurableItem != filter.SecurableItem {
				continue
			}
			if filter.Name != "" && p.Name != filter.Name {
				continue
			}
		}
		cp := *p
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	return result, nil
}

func (s *Store) DeletePermission(_ context.Context, permID id.PermissionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.permissions[permID.String()]
	if !ok {
		return fmt.Errorf("permission %s: %w", permID, store.ErrNotFound)
	}
	p.IsDeleted = true
	return nil
}

func (s *Store) DetachPermissionFromRoles(_ context.Context, permID id.PermissionID, grainName, securableItem string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pk := permID.String()
	for rid, grants := range s.roleGrants {
		r, ok := s.roles[rid]
		if !ok || r.Grain != grainName {
			continue
		}
		if securableItem != "" && r.SecurableItem != securableItem {
			continue
		}
		delete(grants, pk)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Role store
// ──────────────────────────────────────────────────

func (s *Store) CreateRole(_ context.Context, r *role.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.roles[r.ID.String()] = &cp
	return nil
}

func (s *Store) GetRole(_ context.Context, roleID id.RoleID) (*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[roleID.String()]
	if !ok || r.IsDeleted {
		return nil, fmt.Errorf("role %s: %w", roleID, store.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *Store) ListRoles(_ context.Context, filter *role.ListFilter) ([]*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*role.Role
	for _, r := range s.roles {
		if r.IsDeleted {
			continue
		}
		if filter != nil {
			if filter.Grain != "" && r.Grain != filter.Grain {
				continue
			}
			if filter.SecurableItem != "" && r.SecurableItem != filter.SecurableItem {
				continue
			}
			if filter.Name != "" && r.Name != filter.Name {
				continue
			}
			if filter.ParentID != nil && (r.ParentID == nil || r.ParentID.String() != filter.ParentID.String()) {
				continue
			}
		}
		cp := *r
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	return result, nil
}

func (s *Store) UpdateRole(_ context.Context, r *role.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[r.ID.String()]; !ok {
		return fmt.Errorf("role %s: %w", r.ID, store.ErrNotFound)
	}
	cp := *r
	s.roles[r.ID.String()] = &cp
	return nil
}

func (s *Store) DeleteRole(_ context.Context, roleID id.RoleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[roleID.String()]
	if !ok {
		return fmt.Errorf("role %s: %w", roleID, store.ErrNotFound)
	}
	r.IsDeleted = true
	return nil
}

func (s *Store) ListRoleGrants(_ context.Context, roleID id.RoleID) ([]*role.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	grants, ok := s.roleGrants[roleID.String()]
	if !ok {
		return nil, nil
	}
	result := make([]*role.Grant, 0, len(grants))
	for pid, effect := range grants {
		parsed, err := id.ParsePermissionID(pid)
		if err != nil {
			continue
		}
		result = append(result, &role.Grant{PermissionID: parsed, Effect: effect})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PermissionID.String() < result[j].PermissionID.String()
	})
	return result, nil
}

func (s *Store) AttachPermission(_ context.Context, roleID id.RoleID, permID id.PermissionID, effect permission.Effect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rk := roleID.String()
	if s.roleGrants[rk] == nil {
		s.roleGrants[rk] = make(map[string]permission.Effect)
	}
	s.roleGrants[rk][permID.String()] = effect
	return nil
}

func (s *Store) DetachPermission(_ context.Context, roleID id.RoleID, permID id.PermissionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if grants, ok := s.roleGrants[roleID.String()]; ok {
		delete(grants, permID.String())
	}
	return nil
}

func (s *Store) ListChildRoles(_ context.Context, parentID id.RoleID) ([]*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pid := parentID.String()
	var result []*role.Role
	for _, r := range s.roles {
		if r.IsDeleted || r.ParentID == nil || r.ParentID.String() != pid {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	return result, nil
}

// ──────────────────────────────────────────────────
// Group store
// ──────────────────────────────────────────────────

func (s *Store) CreateGroup(_ context.Context, g *group.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *g
	s.groups[g.ID.String()] = &cp
	return nil
}

// activeGroupByName returns the active group matching name
// case-insensitively. When duplicates exist (pre-dedup state) the oldest
// wins so repeated lookups are deterministic. Must hold read lock.
func (s *Store) activeGroupByName(name string) *group.Group {
	var best *group.Group
	for _, g := range s.groups {
		if g.IsDeleted || !strings.EqualFold(g.Name, name) {
			continue
		}
		if best == nil || olderGroup(g, best) {
			best = g
		}
	}
	return best
}

func olderGroup(a, b *group.Group) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

func (s *Store) GetGroup(_ context.Context, name string) (*group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g := s.activeGroupByName(name)
	if g == nil {
		return nil, fmt.Errorf("group %q: %w", name, store.ErrNotFound)
	}
	cp := *g
	return &cp, nil
}

func (s *Store) GetGroupsByNames(_ context.Context, names []string) ([]*group.Group, []string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := make([]*group.Group, 0, len(names))
	var missing []string
	for _, name := range names {
		g := s.activeGroupByName(name)
		if g == nil {
			missing = append(missing, name)
			continue
		}
		cp := *g
		found = append(found, &cp)
	}
	return found, missing, nil
}

func (s *Store) ListGroups(_ context.Context, filter *group.ListFilter) ([]*group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*group.Group
	for _, g := range s.groups {
		if g.IsDeleted {
			continue
		}
		if filter != nil {
			if filter.NamePrefix != "" && !strings.HasPrefix(strings.ToLower(g.Name), strings.ToLower(filter.NamePrefix)) {
				continue
			}
			if filter.Source != "" && g.Source != filter.Source {
				continue
			}
		}
		cp := *g
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return olderGroup(result[i], result[j]) })
	return result, nil
}

func (s *Store) UpdateGroup(_ context.Context, g *group.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[g.ID.String()]; !ok {
		return fmt.Errorf("group %s: %w", g.ID, store.ErrNotFound)
	}
	cp := *g
	s.groups[g.ID.String()] = &cp
	return nil
}

func (s *Store) DeleteGroup(_ context.Context, groupID id.GroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gk := groupID.String()
	g, ok := s.groups[gk]
	if !ok {
		return fmt.Errorf("group %s: %w", groupID, store.ErrNotFound)
	}
	g.IsDeleted = true
	delete(s.groupRoles, gk)
	delete(s.groupUsers, gk)
	delete(s.groupChildren, gk)
	for _, children := range s.groupChildren {
		delete(children, gk)
	}
	return nil
}

func (s *Store) ListGroupRoleIDs(_ context.Context, groupID id.GroupID) ([]id.RoleID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roleSet, ok := s.groupRoles[groupID.String()]
	if !ok {
		return nil, nil
	}
	result := make([]id.RoleID, 0, len(roleSet))
	for rid := range roleSet {
		parsed, err := id.ParseRoleID(rid)
		if err != nil {
			continue
		}
		result = append(result, parsed)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].String() < result[j].String() })
	return result, nil
}

func (s *Store) AttachRoleToGroup(_ context.Context, groupID id.GroupID, roleID id.RoleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gk := groupID.String()
	if s.groupRoles[gk] == nil {
		s.groupRoles[gk] = make(map[string]struct{})
	}
	s.groupRoles[gk][roleID.String()] = struct{}{}
	return nil
}

func (s *Store) DetachRoleFromGroup(_ context.Context, groupID id.GroupID, roleID id.RoleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if roleSet, ok := s.groupRoles[groupID.String()]; ok {
		delete(roleSet, roleID.String())
	}
	return nil
}

func (s *Store) ListGroupUserKeys(_ context.Context, groupID id.GroupID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userSet, ok := s.groupUsers[groupID.String()]
	if !ok {
		return nil, nil
	}
	result := make([]string, 0, len(userSet))
	for key := range userSet {
		result = append(result, key)
	}
	sort.Strings(result)
	return result, nil
}

func (s *Store) AttachUserToGroup(_ context.Context, groupID id.GroupID, userKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gk := groupID.String()
	if s.groupUsers[gk] == nil {
		s.groupUsers[gk] = make(map[string]struct{})
	}
	s.groupUsers[gk][userKey] = struct{}{}
	return nil
}

func (s *Store) DetachUserFromGroup(_ context.Context, groupID id.GroupID, userKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if userSet, ok := s.groupUsers[groupID.String()]; ok {
		delete(userSet, userKey)
	}
	return nil
}

func (s *Store) ListChildGroups(_ context.Context, groupID id.GroupID) ([]*group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	children, ok := s.groupChildren[groupID.String()]
	if !ok {
		return nil, nil
	}
	var result []*group.Group
	for cid := range children {
		g, ok := s.groups[cid]
		if !ok || g.IsDeleted {
			continue
		}
		cp := *g
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return olderGroup(result[i], result[j]) })
	return result, nil
}

func (s *Store) ListParentGroups(_ context.Context, groupID id.GroupID) ([]*group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	gk := groupID.String()
	var result []*group.Group
	for pid, children := range s.groupChildren {
		if _, ok := children[gk]; !ok {
			continue
		}
		g, ok := s.groups[pid]
		if !ok || g.IsDeleted {
			continue
		}
		cp := *g
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return olderGroup(result[i], result[j]) })
	return result, nil
}

func (s *Store) AttachChildGroup(_ context.Context, parentID, childID id.GroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pk := parentID.String()
	if s.groupChildren[pk] == nil {
		s.groupChildren[pk] = make(map[string]struct{})
	}
	s.groupChildren[pk][childID.String()] = struct{}{}
	return nil
}

func (s *Store) DetachChildGroup(_ context.Context, parentID, childID id.GroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if children, ok := s.groupChildren[parentID.String()]; ok {
		delete(children, childID.String())
	}
	return nil
}

func (s *Store) ListGroupsForUser(_ context.Context, userKey string) ([]*group.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*group.Group
	for gid, userSet := range s.groupUsers {
		if _, ok := userSet[userKey]; !ok {
			continue
		}
		g, ok := s.groups[gid]
		if !ok || g.IsDeleted {
			continue
		}
		cp := *g
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return olderGroup(result[i], result[j]) })
	return result, nil
}

// ──────────────────────────────────────────────────
// User store
// ──────────────────────────────────────────────────

func (s *Store) CreateUser(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Idempotent: an existing user keeps its record.
	if _, ok := s.users[u.Key()]; ok {
		return nil
	}
	cp := *u
	s.users[u.Key()] = &cp
	return nil
}

func (s *Store) GetUser(_ context.Context, userKey string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userKey]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", userKey, store.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s *Store) ListUserRoleIDs(_ context.Context, userKey string) ([]id.RoleID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roleSet, ok := s.userRoles[userKey]
	if !ok {
		return nil, nil
	}
	result := make([]id.RoleID, 0, len(roleSet))
	for rid := range roleSet {
		parsed, err := id.ParseRoleID(rid)
		if err != nil {
			continue
		}
		result = append(result, parsed)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].String() < result[j].String() })
	return result, nil
}

func (s *Store) AttachRoleToUser(_ context.Context, userKey string, roleID id.RoleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userRoles[userKey] == nil {
		s.userRoles[userKey] = make(map[string]struct{})
	}
	s.userRoles[userKey][roleID.String()] = struct{}{}
	return nil
}

func (s *Store) DetachRoleFromUser(_ context.Context, userKey string, roleID id.RoleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if roleSet, ok := s.userRoles[userKey]; ok {
		delete(roleSet, roleID.String())
	}
	return nil
}

// ──────────────────────────────────────────────────
// Granular permission store
// ──────────────────────────────────────────────────

func (s *Store) GetGranular(_ context.Context, userKey string) (*granular.GranularPermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.granulars[userKey]
	if !ok {
		return nil, fmt.Errorf("granular permission %q: %w", userKey, store.ErrNotFound)
	}
	cp := *g
	cp.AdditionalPermissionIDs = append([]id.PermissionID(nil), g.AdditionalPermissionIDs...)
	cp.DeniedPermissionIDs = append([]id.PermissionID(nil), g.DeniedPermissionIDs...)
	return &cp, nil
}

func (s *Store) SetGranular(_ context.Context, g *granular.GranularPermission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *g
	cp.AdditionalPermissionIDs = append([]id.PermissionID(nil), g.AdditionalPermissionIDs...)
	cp.DeniedPermissionIDs = append([]id.PermissionID(nil), g.DeniedPermissionIDs...)
	s.granulars[g.UserKey] = &cp
	return nil
}

// ──────────────────────────────────────────────────
// Decision log store
// ──────────────────────────────────────────────────

func (s *Store) CreateEntry(_ context.Context, e *decisionlog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.logs[e.ID.String()] = &cp
	return nil
}

func (s *Store) ListEntries(_ context.Context, filter *decisionlog.QueryFilter) ([]*decisionlog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*decisionlog.Entry
	for _, e := range s.logs {
		if filter != nil {
			if filter.SubjectID != "" && e.SubjectID != filter.SubjectID {
				continue
			}
			if filter.IdentityProvider != "" && !strings.EqualFold(e.IdentityProvider, filter.IdentityProvider) {
				continue
			}
			if filter.Grain != "" && e.Grain != filter.Grain {
				continue
			}
			if filter.SecurableItem != "" && e.SecurableItem != filter.SecurableItem {
				continue
			}
			if filter.After != nil && e.CreatedAt.Before(*filter.After) {
				continue
			}
			if filter.Before != nil && e.CreatedAt.After(*filter.Before) {
				continue
			}
		}
		cp := *e
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if filter != nil {
		if filter.Offset > 0 {
			if filter.Offset >= len(result) {
				return nil, nil
			}
			result = result[filter.Offset:]
		}
		if filter.Limit > 0 && filter.Limit < len(result) {
			result = result[:filter.Limit]
		}
	}
	return result, nil
}

func (s *Store) PurgeEntries(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for k, e := range s.logs {
		if e.CreatedAt.Before(before) {
			delete(s.logs, k)
			count++
		}
	}
	return count, nil
}
