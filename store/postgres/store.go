// Package postgres provides a PostgreSQL implementation of the Fabric
// composite store using grove ORM with Go-based migrations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

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

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a PostgreSQL implementation of the composite Fabric store.
type Store struct {
	db   *grove.DB
	pgdb *pgdriver.PgDB
}

// New creates a new PostgreSQL store.
func New(db *grove.DB) *Store {
	return &Store{
		db:   db,
		pgdb: pgdriver.Unwrap(db),
	}
}

// Migrate runs programmatic migrations via the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pgdb)
	if err != nil {
		return fmt.Errorf("fabric/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("fabric/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// ──────────────────────────────────────────────────
// Grain operations
// ──────────────────────────────────────────────────

func (s *Store) CreateGrain(ctx context.Context, g *grain.Grain) error {
	now := time.Now().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now
	if _, err := s.pgdb.NewInsert(grainToModel(g)).Exec(ctx); err != nil {
		return fmt.Errorf("fabric: create grain: %w", err)
	}
	return nil
}

func (s *Store) GetGrain(ctx context.Context, name string) (*grain.Grain, error) {
	m := new(grainModel)
	err := s.pgdb.NewSelect(m).Where("name = ?", name).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("grain %q: %w", name, store.ErrNotFound)
		}
		return nil, fmt.Errorf("fabric: get grain: %w", err)
	}
	return grainFromModel(m), nil
}

func (s *Store) ListGrains(ctx context.Context) ([]*grain.Grain, error) {
	var models []grainModel
	err := s.pgdb.NewSelect(&models).OrderExpr("name ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("fabric: list grains: %w", err)
	}
	result := make([]*grain.Grain, len(models))
	for i := range models {
		result[i] = grainFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) ListSharedGrains(ctx context.Context) ([]*grain.Grain, error) {
	var models []grainModel
	err := s.pgdb.NewSelect(&models).
		Where("is_shared = ?", true).
		OrderExpr("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("fabric: list shared grains: %w", err)
	}
	result := make([]*grain.Grain, len(models))
	for i := range models {
		result[i] = grainFromModel(&models[i])
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Client operations
// ──────────────────────────────────────────────────

func (s *Store) CreateClient(ctx context.Context, c *client.Client) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	if _, err := s.pgdb.NewInsert(clientToModel(c)).Exec(ctx); err != nil {
		return fmt.Errorf("fabric: create client: %w", err)
	}
	return nil
}

func (s *Store) GetClient(ctx context.Context, clientID id.ClientID) (*client.Client, error) {
	m := new(clientModel)
	err := s.pgdb.NewSelect(m).
		Where("id = ?", clientID.String()).
		Where("is_deleted = ?", false).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("client %s: %w", clientID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("fabric: get client: %w", err)
	}
	return clientFromModel(m), nil
}

func (s *Store) ListClients(ctx context.Context) ([]*client.Client, error) {
	var models []clientModel
	err := s.pgdb.NewSelect(&models).
		Where("is_deleted = ?", false).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("fabric: list clients: %w", err)
	}
	result := make([]*client.Client, len(models))
	for i := range models {
		result[i] = clientFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) UpdateClient(ctx context.Context, c *client.Client) error {
	c.UpdatedAt = time.Now().UTC()
	if _, err := s.pgdb.NewUpdate(clientToModel(c)).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("fabric: update client: %w", err)
	}
	return nil
}

func (s *Store) DeleteClient(ctx context.Context, clientID id.ClientID) error {
	c, err := s.GetClient(ctx, clientID)
	if err != nil {
		return err
	}
	c.IsDeleted = true
	return s.UpdateClient(ctx, c)
}

// ──────────────────────────────────────────────────
// Securable item operations
// ──────────────────────────────────────────────────

func (s *Store) CreateItem(ctx context.Context, it *securableitem.Item) error {
	now := time.Now().UTC()
	it.CreatedAt = now
	it.UpdatedAt = now
	if _, err := s.pgdb.NewInsert(itemToModel(it)).Exec(ctx); err != nil {
		return fmt.Errorf("fabric: create item: %w", err)
	}
	return nil
}

func (s *Store) GetItem(ctx context.Context, itemID id.SecurableItemID) (*securableitem.Item, error) {
	m := new(itemModel)
	err := s.pgdb.NewSelect(m).
		Where("id = ?", itemID.String()).
		Where("is_deleted = ?", false).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("securable item %s: %w", itemID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("fabric: get item: %w", err)
	}
	return itemFromModel(m), nil
}

func (s *Store) ListChildren(ctx context.Context, parentID id.SecurableItemID) ([]*securableitem.Item, error) {
	var models []itemModel
	err := s.pgdb.NewSelect(&models).
		Where("parent_id = ?", parentID.String()).
		Where("is_deleted = ?", false).
		OrderExpr("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("fabric: list children: %w", err)
	}
	result := make([]*securableitem.Item, len(models))
	for i := range models {
		result[i] = itemFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) ListItems(ctx context.Context, filter *securableitem.ListFilter) ([]*securableitem.Item, error) {
	var models []itemModel
	q := s.pgdb.NewSelect(&models).
		Where("is_deleted = ?", false).
		OrderExpr("created_at ASC")
	if filter != nil {
		if filter.Grain != "" {
			q = q.Where("grain = ?", filter.Grain)
		}
		if filter.Name != "" {
			q = q.Where("name = ?", filter.Name)
		}
		if filter.ClientOwner != nil {
			q = q.Where("client_owner = ?", filter.ClientOwner.String())
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("fabric: list items: %w", err)
	}
	result := make([]*securableitem.Item, len(models))
	for i := range models {
		result[i] = itemFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) UpdateItem(ctx context.Context, it *securableitem.Item) error {
	it.UpdatedAt = time.Now().UTC()
	if _, err := s.pgdb.NewUpdate(itemToModel(it)).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("fabric: update item: %w", err)
	}
	return nil
}

func (s *Store) DeleteItem(ctx context.Context, itemID id.SecurableItemID) error {
	it, err := s.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	it.IsDeleted = true
	return s.UpdateItem(ctx, it)
}

// ──────────────────────────────────────────────────
// Permission operations
// ──────────────────────────────────────────────────

func (s *Store) CreatePermission(ctx context.Context, p *permission.Permission) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if _, err := s.pgdb.NewInsert(permissionToModel(p)).Exec(ctx); err != nil {
		return fmt.Errorf("fabric: create permission: %w", err)
	}
	return nil
}

func (s *Store) GetPermission(ctx context.Context, permID id.PermissionID) (*permission.Permission, error) {
	m := new(permissionModel)
	err := s.pgdb.NewSelect(m).
		Where("id = ?", permID.String()).
		Where("is_deleted = ?", false).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("permission %s: %w", permID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("fabric: get permission: %w", err)
	}
	return permissionFromModel(m), nil
}

func (s *Store) GetPermissionsByIDs(ctx context.Context, permIDs []id.PermissionID) ([]*permission.Permission, error) {
	if len(permIDs) == 0 {
		return nil, nil
	}
	strs := make([]string, len(permIDs))
	for i, pid := range permIDs {
		strs[i] = pid.String()
	}
	var models []permissionModel
	err := s.pgdb.NewSelect(&models).
		Where("id IN (?)", strs).
		Where("is_deleted = ?", false).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("fabric: get permissions by ids: %w", err)
	}
	result := make([]*permission.Permission, len(models))
	for i := range models {
		result[i] = permissionFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) ListPermissions(ctx context.Context, filter *permission.ListFilter) ([]*permission.Permission, error) {
	var models []permissionModel
	q := s.pgdb.NewSelect(&models).
		Where("is_deleted = ?", false).
		OrderExpr("created_at ASC")
	if filter != nil {
		if filter.Grain != "" {
			q = q.Where("grain = ?", filter.Grain)
		}
		if filter.SecurableItem != "" {
			q = q.Where("securable_item = ?", filter.SecurableItem)
		}
		if filter.Name != "" {
			q = q.Where("name = ?", filter.Name)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("fabric: list permissions: %w", err)
	}
	result := make([]*permission.Permission, len(models))
	for i := range models {
		result[i] = permissionFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) DeletePermission(ctx context.Context, permID id.PermissionID) error {
	p, err := s.GetPermission(ctx, permID)
	if err != nil {
		return err
	}
	p.IsDeleted = true
	p.UpdatedAt = time.Now().UTC()
	if _, err := s.pgdb.NewUpdate(permissionToModel(p)).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("fabric: delete permission: %w", err)
	}
	return nil
}

func (s *Store) DetachPermissionFromRoles(ctx context.Context, permID id.PermissionID, grainName, securableItem string) error {
	var roleModels []roleModel
	q := s.pgdb.NewSelect(&roleModels).Where("grain = ?", grainName)
	if securableItem != "" {
		q = q.Where("securable_item = ?", securableItem)
	}
	if err := q.Scan(ctx); err != nil {
		return fmt.Errorf("fabric: detach permission from roles: %w", err)
	}
	if len(roleModels) == 0 {
		return nil
	}
	roleIDs := make([]string, len(roleModels))
	for i, m := range roleModels {
		roleIDs[i] = m.ID
	}
	_, err := s.pgdb.NewDelete((*rolePermissionModel)(nil)).
		Where("permission_id = ?", permID.String()).
		Where("role_id IN (?)", roleIDs).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fabric: detach permission from roles: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Role operations
// ──────────────────────────────────────────────────

func (s *Store) CreateRole(ctx context.Context, r *role.Role) error {
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	if _, err := s.pgdb.NewInsert(roleToModel(r)).Exec(ctx); err != nil {
		return fmt.Errorf("fabric: create role: %w", err)
	}
	return nil
}

func (s *Store) GetRole(ctx context.Context, roleID id.RoleID) (*role.Role, error) {
	m := new(roleModel)
	err := s.pgdb.NewSelect(m).
		Where("id = ?", roleID.String()).
		Where("is_deleted = ?", false).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("role %s: %w", roleID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("fabric: get role: %w", err)
	}
	return roleFromModel(m), nil
}

func (s *Store) ListRoles(ctx context.Context, filter *role.ListFilter) ([]*role.Role, error) {
	var models []roleModel
	q := s.pgdb.NewSelect(&models).
		Where("is_deleted = ?", false).
		OrderExpr("created_at ASC")
	if filter != nil {
		if filter.Grain != "" {
			q = q.Where("grain = ?", filter.Grain)
		}
		if filter.SecurableItem != "" {
			q = q.Where("securable_item = ?", filter.SecurableItem)
		}
		if filter.Name != "" {
			q = q.Where("name = ?", filter.Name)
		}
		if filter.ParentID != nil {
			q = q.Where("parent_id = ?", filter.ParentID.String())
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("fabric: list roles: %w", err)
	}
	result := make([]*role.Role, len(models))
	for i := range models {
		result[i] = roleFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) UpdateRole(ctx context.Context, r *role.Role) error {
	r.UpdatedAt = time.Now().UTC()
	if _, err := s.pgdb.NewUpdate(roleToModel(r)).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("fabric: update role: %w", err)
	}
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, roleID id.RoleID) error {
	r, err := s.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	r.IsDeleted = true
	return s.UpdateRole(ctx, r)
}

func (s *Store) ListRoleGrants(ctx context.Context, roleID id.RoleID) ([]*role.Grant, error) {
	var models []rolePermissionModel
	err := s.pgdb.NewSelect(&models).
		Where("role_id = ?", roleID.String()).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("fabric: list role grants: %w", err)
	}
	result := make([]*role.Grant, 0, len(models))
	for _, m := range models {
		pid, err := id.ParsePermissionID(m.PermissionID)
		if err != nil {
			continue
		}
		result = append(result, &role.Grant{
			PermissionID: pid,
			Effect:       permission.Effect(m.Effect),
		})
	}
	return result, nil
}

func (s *Store) AttachPermission(ctx context.Context, roleID id.RoleID, permID id.PermissionID, effect permission.Effect) error {
	m := &rolePermissionModel{
		RoleID:       roleID.String(),
		PermissionID: permID.String(),
		Effect:       string(effect),
	}
	_, err := s.pgdb.NewInsert(m).
		OnConflict("(role_id, permission_id) DO UPDATE SET effect = excluded.effect").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fabric: attach permission: %w", err)
	}
	return nil
}

func (s *Store) DetachPermission(ctx context.Context, roleID id.RoleID, permID id.PermissionID) error {
	_, err := s.pgdb.NewDelete((*rolePermissionModel)(nil)).
		Where("role_id = ?", roleID.String()).
		Where("permission_id = ?", permID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fabric: detach permission: %w", err)
	}
	return nil
}

func (s *Store) ListChildRoles(ctx context.Context, parentID id.RoleID) ([]*role.Role, error) {
	var models []roleModel
	err := s.pgdb.NewSelect(&models).
		Where("parent_id = ?", parentID.String()).
		Where("is_deleted = ?", false).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("fabric: list child roles: %w", err)
	}
	result := make([]*role.Role, len(models))
	for i := range models {
		result[i] = roleFromModel(&models[i])
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Group operations
// ──────────────────────────────────────────────────

func (s *Store) CreateGroup(ctx context.Context, g *group.Group) error {
	now := time.Now().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now
	if _, err := s.pgdb.NewInsert(groupToModel(g)).Exec(ctx); err != nil {
		return fmt.Errorf("fabric: create group: %w", err)
	}
	return nil
}

// getGroupByName returns the active group matching name case-insensitively.
// When duplicates exist (pre-dedup state) the oldest wins.
func (s *Store) getGroupByName(ctx context.Context, name string) (*group.Group, error) {
	var models []groupModel
	err := s.pgdb.NewSelect(&models).
		Where("LOWER(name) = LOWER(?)", name).
		Where("is_deleted = ?", false).
		OrderExpr("created_at ASC, id ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("fabric: get group: %w", err)
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("group %q: %w", name, store.ErrNotFound)
	}
	return groupFromModel(&models[0]), nil
}

func (s *Store) GetGroup(ctx context.Context, name string) (*group.Group, error) {
	return s.getGroupByName(ctx, name)
}

func (s *Store) GetGroupsByNames(ctx context.Context, names []string) ([]*group.Group, []string, error) {
	found := make([]*group.Group, 0, len(names))
	var missing []string
	for _, name := range names {
		g, err := s.getGroupByName(ctx, name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				missing = append(missing, name)
				continue
			}
			return nil, nil, err
		}
		found = append(found, g)
	}
	return found, missing, nil
}

func (s *Store) ListGroups(ctx context.Context, filter *group.ListFilter) ([]*group.Group, error) {
	var models []groupModel
	q := s.pgdb.NewSelect(&models).
		Where("is_deleted = ?", false).
		OrderExpr("created_at ASC, id ASC")
	if filter != nil {
		if filter.NamePrefix != "" {
			q = q.Where("LOWER(name) LIKE LOWER(?)", filter.NamePrefix+"%")
		}
		if filter.Source != "" {
			q = q.Where("source = ?", string(filter.Source))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("fabric: list groups: %w", err)
	}
	result := make([]*group.Group, len(models))
	for i := range models {
		result[i] = groupFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) UpdateGroup(ctx context.Context, g *group.Group) error {
	g.UpdatedAt = time.Now().UTC()
	if _, err := s.pgdb.NewUpdate(groupToModel(g)).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("fabric: update group: %w", err)
	}
	return nil
}

func (s *Store) DeleteGroup(ctx context.Context, groupID id.GroupID) error {
	tx, err := s.pgdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("fabric: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	gk := groupID.String()
	m := new(groupModel)
	if err := tx.NewSelect(m).Where("id = ?", gk).Scan(ctx); err != nil {
		if isNoRows(err) {
			return fmt.Errorf("group %s: %w", groupID, store.ErrNotFound)
		}
		return fmt.Errorf("fabric: delete group: %w", err)
	}
	m.IsDeleted = true
	m.UpdatedAt = time.Now().UTC()
	if _, err := tx.NewUpdate(m).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("fabric: delete group: %w", err)
	}

	// Junction rows go with the group so nothing resolves through it.
	if _, err := tx.NewDelete((*groupRoleModel)(nil)).Where("group_id = ?", gk).Exec(ctx); err != nil {
		return fmt.Errorf("fabric: delete group roles: %w", err)
	}
	if _, err := tx.NewDelete((*groupUserModel)(nil)).Where("group_id = ?", gk).Exec(ctx); err != nil {
		return fmt.Errorf("fabric: delete group users: %w", err)
	}
	if _, err := tx.NewDelete((*groupLinkModel)(nil)).Where("parent_id = ?", gk).Exec(ctx); err != nil {
		return fmt.Errorf("fabric: delete group links: %w", err)
	}
	if _, err := tx.NewDelete((*groupLinkModel)(nil)).Where("child_id = ?", gk).Exec(ctx); err != nil {
		return fmt.Errorf("fabric: delete group links: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("fabric: commit tx: %w", err)
	}
	return nil
}

func (s *Store) ListGroupRoleIDs(ctx context.Context, groupID id.GroupID) ([]id.RoleID, error) {
	var models []groupRoleModel
	err := s.pgdb.NewSelect(&models).
		Where("group_id = ?", groupID.String()).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("fabric: list group role ids: %w", err)
	}
	result := make([]id.RoleID, 0, len(models))
	for _, m := range models {
		rid, err := id.ParseRoleID(m.RoleID)
		if err == nil {
			result = append(result, rid)
		}
	}
	return result, nil
}

func (s *Store) AttachRoleToGroup(ctx context.Context, groupID id.GroupID, roleID id.RoleID) error {
	m := &groupRoleModel{
		GroupID: groupID.String(),
		RoleID:  roleID.String(),
	}
	_, err := s.pgdb.NewInsert(m).
		OnConflict("(group_id, role_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fabric: attach role to group: %w", err)
	}
	return nil
}

func (s *Store) DetachRoleFromGroup(ctx context.Context, groupID id.GroupID, roleID id.RoleID) error {
	_, err := s.pgdb.NewDelete((*groupRoleModel)(nil)).
		Where("group_id = ?", groupID.String()).
		Where("role_id = ?", roleID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fabric: detach role from group: %w", err)
	}
	return nil
}

func (s *Store) ListGroupUserKeys(ctx context.Context, groupID id.GroupID) ([]string, error) {
	var models []groupUserModel
	err := s.pgdb.NewSelect(&models).
		Where("group_id = ?", groupID.String()).
		OrderExpr("user_key ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("fabric: list group user keys: %w", err)
	}
	result := make([]string, len(models))
	for i, m := range models {
		result[i] = m.UserKey
	}
	return result, nil
}

func (s *Store) AttachUserToGroup(ctx context.Context, groupID id.GroupID, userKey string) error {
	m := &groupUserModel{
		GroupID: groupID.String(),
		UserKey: userKey,
	}
	_, err := s.pgdb.NewInsert(m).
		OnConflict("(group_id, user_key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fabric: attach user to group: %w", err)
	}
	return nil
}

func (s *Store) DetachUserFromGroup(ctx context.Context, groupID id.GroupID, userKey string) error {
	_, err := s.pgdb.NewDelete((*groupUserModel)(nil)).
		Where("group_id = ?", groupID.String()).
		Where("user_key = ?", userKey).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fabric: detach user from group: %w", err)
	}
	return nil
}

func (s *Store) ListChildGroups(ctx context.Context, groupID id.GroupID) ([]*group.Group, error) {
	return s.listLinkedGroups(ctx, "parent_id", "child_id", groupID)
}

func (s *Store) ListParentGroups(ctx context.Context, groupID id.GroupID) ([]*group.Group, error) {
	return s.listLinkedGroups(ctx, "child_id", "parent_id", groupID)
}

// listLinkedGroups loads the groups on the far side of group links anchored
// at the given group.
func (s *Store) listLinkedGroups(ctx context.Context, nearCol, farCol string, groupID id.GroupID) ([]*group.Group, error) {
	var links []groupLinkModel
	err := s.pgdb.NewSelect(&links).
		Where(nearCol+" = ?", groupID.String()).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("fabric: list linked groups: %w", err)
	}
	if len(links) == 0 {
		return nil, nil
	}
	farIDs := make([]string, len(links))
	for i, l := range links {
		if farCol == "child_id" {
			farIDs[i] = l.ChildID
		} else {
			farIDs[i] = l.ParentID
		}
	}
	var models []groupModel
	err = s.pgdb.NewSelect(&models).
		Where("id IN (?)", farIDs).
		Where("is_deleted = ?", false).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("fabric: list linked groups: %w", err)
	}
	result := make([]*group.Group, len(models))
	for i := range models {
		result[i] = groupFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) AttachChildGroup(ctx context.Context, parentID, childID id.GroupID) error {
	m := &groupLinkModel{
		ParentID: parentID.String(),
		ChildID:  childID.String(),
	}
	_, err := s.pgdb.NewInsert(m).
		OnConflict("(parent_id, child_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fabric: attach child group: %w", err)
	}
	return nil
}

func (s *Store) DetachChildGroup(ctx context.Context, parentID, childID id.GroupID) error {
	_, err := s.pgdb.NewDelete((*groupLinkModel)(nil)).
		Where("parent_id = ?", parentID.String()).
		Where("child_id = ?", childID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fabric: detach child group: %w", err)
	}
	return nil
}

func (s *Store) ListGroupsForUser(ctx context.Context, userKey string) ([]*group.Group, error) {
	var memberships []groupUserModel
	err := s.pgdb.NewSelect(&memberships).
		Where("user_key = ?", userKey).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("fabric: list groups for user: %w", err)
	}
	if len(memberships) == 0 {
		return nil, nil
	}
	groupIDs := make([]string, len(memberships))
	for i, m := range memberships {
		groupIDs[i] = m.GroupID
	}
	var models []groupModel
	err = s.pgdb.NewSelect(&models).
		Where("id IN (?)", groupIDs).
		Where("is_deleted = ?", false).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("fabric: list groups for user: %w", err)
	}
	result := make([]*group.Group, len(models))
	for i := range models {
		result[i] = groupFromModel(&models[i])
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// User operations
// ──────────────────────────────────────────────────

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	m := &userModel{
		UserKey:          u.Key(),
		SubjectID:        u.SubjectID,
		IdentityProvider: u.IdentityProvider,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
	_, err := s.pgdb.NewInsert(m).
		OnConflict("(user_key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fabric: create user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userKey string) (*user.User, error) {
	m := new(userModel)
	err := s.pgdb.NewSelect(m).Where("user_key = ?", userKey).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("user %q: %w", userKey, store.ErrNotFound)
		}
		return nil, fmt.Errorf("fabric: get user: %w", err)
	}
	return &user.User{
		SubjectID:        m.SubjectID,
		IdentityProvider: m.IdentityProvider,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}, nil
}

func (s *Store) ListUserRoleIDs(ctx context.Context, userKey string) ([]id.RoleID, error) {
	var models []userRoleModel
	err := s.pgdb.NewSelect(&models).
		Where("user_key = ?", userKey).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("fabric: list user role ids: %w", err)
	}
	result := make([]id.RoleID, 0, len(models))
	for _, m := range models {
		rid, err := id.ParseRoleID(m.RoleID)
		if err == nil {
			result = append(result, rid)
		}
	}
	return result, nil
}

func (s *Store) AttachRoleToUser(ctx context.Context, userKey string, roleID id.RoleID) error {
	m := &userRoleModel{
		UserKey: userKey,
		RoleID:  roleID.String(),
	}
	_, err := s.pgdb.NewInsert(m).
		OnConflict("(user_key, role_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fabric: attach role to user: %w", err)
	}
	return nil
}

func (s *Store) DetachRoleFromUser(ctx context.Context, userKey string, roleID id.RoleID) error {
	_, err := s.pgdb.NewDelete((*userRoleModel)(nil)).
		Where("user_key = ?", userKey).
		Where("role_id = ?", roleID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fabric: detach role from user: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Granular permission operations
// ──────────────────────────────────────────────────

func (s *Store) GetGranular(ctx context.Context, userKey string) (*granular.GranularPermission, error) {
	m := new(granularModel)
	err := s.pgdb.NewSelect(m).Where("user_key = ?", userKey).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("granular permission %q: %w", userKey, store.ErrNotFound)
		}
		return nil, fmt.Errorf("fabric: get granular: %w", err)
	}
	return granularFromModel(m), nil
}

func (s *Store) SetGranular(ctx context.Context, g *granular.GranularPermission) error {
	now := time.Now().UTC()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now
	m := granularToModel(g)
	_, err := s.pgdb.NewInsert(m).
		OnConflict("(user_key) DO UPDATE SET additional_ids = excluded.additional_ids, denied_ids = excluded.denied_ids, updated_at = excluded.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fabric: set granular: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Decision log operations
// ──────────────────────────────────────────────────

func (s *Store) CreateEntry(ctx context.Context, e *decisionlog.Entry) error {
	e.CreatedAt = time.Now().UTC()
	if _, err := s.pgdb.NewInsert(decisionLogToModel(e)).Exec(ctx); err != nil {
		return fmt.Errorf("fabric: create decision log: %w", err)
	}
	return nil
}

func (s *Store) ListEntries(ctx context.Context, filter *decisionlog.QueryFilter) ([]*decisionlog.Entry, error) {
	var models []decisionLogModel
	q := s.pgdb.NewSelect(&models).OrderExpr("created_at DESC")
	if filter != nil {
		if filter.SubjectID != "" {
			q = q.Where("subject_id = ?", filter.SubjectID)
		}
		if filter.IdentityProvider != "" {
			q = q.Where("LOWER(identity_provider) = LOWER(?)", filter.IdentityProvider)
		}
		if filter.Grain != "" {
			q = q.Where("grain = ?", filter.Grain)
		}
		if filter.SecurableItem != "" {
			q = q.Where("securable_item = ?", filter.SecurableItem)
		}
		if filter.After != nil {
			q = q.Where("created_at >= ?", *filter.After)
		}
		if filter.Before != nil {
			q = q.Where("created_at <= ?", *filter.Before)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("fabric: list decision logs: %w", err)
	}
	result := make([]*decisionlog.Entry, len(models))
	for i := range models {
		result[i] = decisionLogFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) PurgeEntries(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.pgdb.NewDelete((*decisionLogModel)(nil)).
		Where("created_at < ?", before).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("fabric: purge decision logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("fabric: purge decision logs rows: %w", err)
	}
	return n, nil
}
