package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/fabric/client"
	"github.com/xraph/fabric/decisionlog"
	"github.com/xraph/fabric/grain"
	"github.com/xraph/fabric/granular"
	"github.com/xraph/fabric/group"
	"github.com/xraph/fabric/id"
	"github.com/xraph/fabric/permission"
	"github.com/xraph/fabric/role"
	"github.com/xraph/fabric/securableitem"
)

// ──────────────────────────────────────────────────
// Grain model
// ──────────────────────────────────────────────────

type grainModel struct {
	grove.BaseModel `grove:"table:fabric_grains"`
	Name            string    `grove:"name,pk"`
	IsShared        bool      `grove:"is_shared,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
}

func grainToModel(g *grain.Grain) *grainModel {
	return &grainModel{
		Name:      g.Name,
		IsShared:  g.IsShared,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}

func grainFromModel(m *grainModel) *grain.Grain {
	return &grain.Grain{
		Name:      m.Name,
		IsShared:  m.IsShared,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Client model
// ──────────────────────────────────────────────────

type clientModel struct {
	grove.BaseModel `grove:"table:fabric_clients"`
	ID              string    `grove:"id,pk"`
	Name            string    `grove:"name,notnull"`
	TopItemID       string    `grove:"top_item_id,notnull"`
	IsDeleted       bool      `grove:"is_deleted,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
}

func clientToModel(c *client.Client) *clientModel {
	return &clientModel{
		ID:        c.ID.String(),
		Name:      c.Name,
		TopItemID: c.TopItemID.String(),
		IsDeleted: c.IsDeleted,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func clientFromModel(m *clientModel) *client.Client {
	cid, _ := id.ParseClientID(m.ID)               //nolint:errcheck // stored IDs are always valid
	tid, _ := id.ParseSecurableItemID(m.TopItemID) //nolint:errcheck
	return &client.Client{
		ID:        cid,
		Name:      m.Name,
		TopItemID: tid,
		IsDeleted: m.IsDeleted,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Securable item model
// ──────────────────────────────────────────────────

type itemModel struct {
	grove.BaseModel `grove:"table:fabric_items"`
	ID              string    `grove:"id,pk"`
	Name            string    `grove:"name,notnull"`
	Grain           string    `grove:"grain,notnull"`
	ClientOwner     string    `grove:"client_owner,notnull"`
	ParentID        *string   `grove:"parent_id"`
	IsDeleted       bool      `grove:"is_deleted,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
}

func itemToModel(it *securableitem.Item) *itemModel {
	m := &itemModel{
		ID:          it.ID.String(),
		Name:        it.Name,
		Grain:       it.Grain,
		ClientOwner: it.ClientOwner.String(),
		IsDeleted:   it.IsDeleted,
		CreatedAt:   it.CreatedAt,
		UpdatedAt:   it.UpdatedAt,
	}
	if it.ParentID != nil {
		s := it.ParentID.String()
		m.ParentID = &s
	}
	return m
}

func itemFromModel(m *itemModel) *securableitem.Item {
	iid, _ := id.ParseSecurableItemID(m.ID)   //nolint:errcheck // stored IDs are always valid
	cid, _ := id.ParseClientID(m.ClientOwner) //nolint:errcheck
	it := &securableitem.Item{
		ID:          iid,
		Name:        m.Name,
		Grain:       m.Grain,
		ClientOwner: cid,
		IsDeleted:   m.IsDeleted,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.ParentID != nil {
		pid, err := id.ParseSecurableItemID(*m.ParentID)
		if err == nil {
			it.ParentID = &pid
		}
	}
	return it
}

// ──────────────────────────────────────────────────
// Permission model
// ──────────────────────────────────────────────────

type permissionModel struct {
	grove.BaseModel `grove:"table:fabric_permissions"`
	ID              string    `grove:"id,pk"`
	Grain           string    `grove:"grain,notnull"`
	SecurableItem   string    `grove:"securable_item,notnull"`
	Name            string    `grove:"name,notnull"`
	IsDeleted       bool      `grove:"is_deleted,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
}

func permissionToModel(p *permission.Permission) *permissionModel {
	return &permissionModel{
		ID:            p.ID.String(),
		Grain:         p.Grain,
		SecurableItem: p.SecurableItem,
		Name:          p.Name,
		IsDeleted:     p.IsDeleted,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func permissionFromModel(m *permissionModel) *permission.Permission {
	pid, _ := id.ParsePermissionID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &permission.Permission{
		ID:            pid,
		Grain:         m.Grain,
		SecurableItem: m.SecurableItem,
		Name:          m.Name,
		IsDeleted:     m.IsDeleted,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Role model
// ──────────────────────────────────────────────────

type roleModel struct {
	grove.BaseModel `grove:"table:fabric_roles"`
	ID              string    `grove:"id,pk"`
	Grain           string    `grove:"grain,notnull"`
	SecurableItem   string    `grove:"securable_item,notnull"`
	Name            string    `grove:"name,notnull"`
	ParentID        *string   `grove:"parent_id"`
	IsDeleted       bool      `grove:"is_deleted,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
}

func roleToModel(r *role.Role) *roleModel {
	m := &roleModel{
		ID:            r.ID.String(),
		Grain:         r.Grain,
		SecurableItem: r.SecurableItem,
		Name:          r.Name,
		IsDeleted:     r.IsDeleted,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.ParentID != nil {
		s := r.ParentID.String()
		m.ParentID = &s
	}
	return m
}

func roleFromModel(m *roleModel) *role.Role {
	rid, _ := id.ParseRoleID(m.ID) //nolint:errcheck // stored IDs are always valid
	r := &role.Role{
		ID:            rid,
		Grain:         m.Grain,
		SecurableItem: m.SecurableItem,
		Name:          m.Name,
		IsDeleted:     m.IsDeleted,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.ParentID != nil {
		pid, err := id.ParseRoleID(*m.ParentID)
		if err == nil {
			r.ParentID = &pid
		}
	}
	return r
}

// ──────────────────────────────────────────────────
// Junction models
// ──────────────────────────────────────────────────

type rolePermissionModel struct {
	grove.BaseModel `grove:"table:fabric_role_permissions"`
	RoleID          string `grove:"role_id,pk"`
	PermissionID    string `grove:"permission_id,pk"`
	Effect          string `grove:"effect,notnull"`
}

type groupRoleModel struct {
	grove.BaseModel `grove:"table:fabric_group_roles"`
	GroupID         string `grove:"group_id,pk"`
	RoleID          string `grove:"role_id,pk"`
}

type groupUserModel struct {
	grove.BaseModel `grove:"table:fabric_group_users"`
	GroupID         string `grove:"group_id,pk"`
	UserKey         string `grove:"user_key,pk"`
}

type groupLinkModel struct {
	grove.BaseModel `grove:"table:fabric_group_links"`
	ParentID        string `grove:"parent_id,pk"`
	ChildID         string `grove:"child_id,pk"`
}

type userRoleModel struct {
	grove.BaseModel `grove:"table:fabric_user_roles"`
	UserKey         string `grove:"user_key,pk"`
	RoleID          string `grove:"role_id,pk"`
}

// ──────────────────────────────────────────────────
// Group model
// ──────────────────────────────────────────────────

type groupModel struct {
	grove.BaseModel `grove:"table:fabric_groups"`
	ID              string    `grove:"id,pk"`
	Name            string    `grove:"name,notnull"`
	Source          string    `grove:"source,notnull"`
	IsDeleted       bool      `grove:"is_deleted,notnull"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
}

func groupToModel(g *group.Group) *groupModel {
	return &groupModel{
		ID:        g.ID.String(),
		Name:      g.Name,
		Source:    string(g.Source),
		IsDeleted: g.IsDeleted,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}

func groupFromModel(m *groupModel) *group.Group {
	gid, _ := id.ParseGroupID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &group.Group{
		ID:        gid,
		Name:      m.Name,
		Source:    group.Source(m.Source),
		IsDeleted: m.IsDeleted,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// User model
// ──────────────────────────────────────────────────

type userModel struct {
	grove.BaseModel  `grove:"table:fabric_users"`
	UserKey          string    `grove:"user_key,pk"`
	SubjectID        string    `grove:"subject_id,notnull"`
	IdentityProvider string    `grove:"identity_provider,notnull"`
	CreatedAt        time.Time `grove:"created_at,notnull"`
	UpdatedAt        time.Time `grove:"updated_at,notnull"`
}

// ──────────────────────────────────────────────────
// Granular permission model
// ──────────────────────────────────────────────────

type granularModel struct {
	grove.BaseModel `grove:"table:fabric_granular_permissions"`
	UserKey         string    `grove:"user_key,pk"`
	AdditionalIDs   []string  `grove:"additional_ids,type:jsonb"`
	DeniedIDs       []string  `grove:"denied_ids,type:jsonb"`
	CreatedAt       time.Time `grove:"created_at,notnull"`
	UpdatedAt       time.Time `grove:"updated_at,notnull"`
}

func granularToModel(g *granular.GranularPermission) *granularModel {
	return &granularModel{
		UserKey:       g.UserKey,
		AdditionalIDs: permissionIDStrings(g.AdditionalPermissionIDs),
		DeniedIDs:     permissionIDStrings(g.DeniedPermissionIDs),
		CreatedAt:     g.CreatedAt,
		UpdatedAt:     g.UpdatedAt,
	}
}

func granularFromModel(m *granularModel) *granular.GranularPermission {
	return &granular.GranularPermission{
		UserKey:                 m.UserKey,
		AdditionalPermissionIDs: parsePermissionIDs(m.AdditionalIDs),
		DeniedPermissionIDs:     parsePermissionIDs(m.DeniedIDs),
		CreatedAt:               m.CreatedAt,
		UpdatedAt:               m.UpdatedAt,
	}
}

func permissionIDStrings(ids []id.PermissionID) []string {
	strs := make([]string, len(ids))
	for i, pid := range ids {
		strs[i] = pid.String()
	}
	return strs
}

func parsePermissionIDs(strs []string) []id.PermissionID {
	ids := make([]id.PermissionID, 0, len(strs))
	for _, s := range strs {
		pid, err := id.ParsePermissionID(s)
		if err != nil {
			continue
		}
		ids = append(ids, pid)
	}
	return ids
}

// ──────────────────────────────────────────────────
// Decision log model
// ──────────────────────────────────────────────────

type decisionLogModel struct {
	grove.BaseModel  `grove:"table:fabric_decision_logs"`
	ID               string    `grove:"id,pk"`
	SubjectID        string    `grove:"subject_id,notnull"`
	IdentityProvider string    `grove:"identity_provider,notnull"`
	Grain            string    `grove:"grain"`
	SecurableItem    string    `grove:"securable_item"`
	AllowedCount     int       `grove:"allowed_count,notnull"`
	DeniedCount      int       `grove:"denied_count,notnull"`
	EvalTimeNs       int64     `grove:"eval_time_ns,notnull"`
	CreatedAt        time.Time `grove:"created_at,notnull"`
}

func decisionLogToModel(e *decisionlog.Entry) *decisionLogModel {
	return &decisionLogModel{
		ID:               e.ID.String(),
		SubjectID:        e.SubjectID,
		IdentityProvider: e.IdentityProvider,
		Grain:            e.Grain,
		SecurableItem:    e.SecurableItem,
		AllowedCount:     e.AllowedCount,
		DeniedCount:      e.DeniedCount,
		EvalTimeNs:       e.EvalTimeNs,
		CreatedAt:        e.CreatedAt,
	}
}

func decisionLogFromModel(m *decisionLogModel) *decisionlog.Entry {
	lid, _ := id.ParseDecisionLogID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &decisionlog.Entry{
		ID:               lid,
		SubjectID:        m.SubjectID,
		IdentityProvider: m.IdentityProvider,
		Grain:            m.Grain,
		SecurableItem:    m.SecurableItem,
		AllowedCount:     m.AllowedCount,
		DeniedCount:      m.DeniedCount,
		EvalTimeNs:       m.EvalTimeNs,
		CreatedAt:        m.CreatedAt,
	}
}
