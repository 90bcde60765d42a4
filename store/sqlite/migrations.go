package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Fabric store (SQLite).
var Migrations = migrate.NewGroup("fabric")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_grains",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS fabric_grains (
    name            TEXT PRIMARY KEY,
    is_shared       INTEGER NOT NULL DEFAULT 0,
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS fabric_grains`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_clients",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS fabric_clients (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    top_item_id     TEXT NOT NULL,
    is_deleted      INTEGER NOT NULL DEFAULT 0,
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_fabric_clients_name ON fabric_clients (name);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS fabric_clients`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_items",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS fabric_items (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    grain           TEXT NOT NULL REFERENCES fabric_grains(name),
    client_owner    TEXT NOT NULL REFERENCES fabric_clients(id),
    parent_id       TEXT,
    is_deleted      INTEGER NOT NULL DEFAULT 0,
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_fabric_items_parent ON fabric_items (parent_id);
CREATE INDEX IF NOT EXISTS idx_fabric_items_grain ON fabric_items (grain, name);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS fabric_items`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_permissions",
			Version: "20250101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS fabric_permissions (
    id              TEXT PRIMARY KEY,
    grain           TEXT NOT NULL,
    securable_item  TEXT NOT NULL,
    name            TEXT NOT NULL,
    is_deleted      INTEGER NOT NULL DEFAULT 0,
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_fabric_permissions_scope ON fabric_permissions (grain, securable_item, name);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS fabric_permissions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_roles",
			Version: "20250101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS fabric_roles (
    id              TEXT PRIMARY KEY,
    grain           TEXT NOT NULL,
    securable_item  TEXT NOT NULL,
    name            TEXT NOT NULL,
    parent_id       TEXT,
    is_deleted      INTEGER NOT NULL DEFAULT 0,
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_fabric_roles_scope ON fabric_roles (grain, securable_item, name);
CREATE INDEX IF NOT EXISTS idx_fabric_roles_parent ON fabric_roles (parent_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS fabric_roles`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_role_permissions",
			Version: "20250101000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS fabric_role_permissions (
    role_id         TEXT NOT NULL REFERENCES fabric_roles(id) ON DELETE CASCADE,
    permission_id   TEXT NOT NULL REFERENCES fabric_permissions(id) ON DELETE CASCADE,
    effect          TEXT NOT NULL DEFAULT 'allow',

    PRIMARY KEY (role_id, permission_id)
);

CREATE INDEX IF NOT EXISTS idx_fabric_role_perms_perm ON fabric_role_permissions (permission_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS fabric_role_permissions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_groups",
			Version: "20250101000007",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS fabric_groups (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    source          TEXT NOT NULL,
    is_deleted      INTEGER NOT NULL DEFAULT 0,
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_fabric_groups_name ON fabric_groups (name COLLATE NOCASE);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS fabric_groups`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_group_junctions",
			Version: "20250101000008",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS fabric_group_roles (
    group_id        TEXT NOT NULL REFERENCES fabric_groups(id) ON DELETE CASCADE,
    role_id         TEXT NOT NULL REFERENCES fabric_roles(id) ON DELETE CASCADE,

    PRIMARY KEY (group_id, role_id)
);

CREATE TABLE IF NOT EXISTS fabric_group_users (
    group_id        TEXT NOT NULL REFERENCES fabric_groups(id) ON DELETE CASCADE,
    user_key        TEXT NOT NULL,

    PRIMARY KEY (group_id, user_key)
);

CREATE INDEX IF NOT EXISTS idx_fabric_group_users_user ON fabric_group_users (user_key);

CREATE TABLE IF NOT EXISTS fabric_group_links (
    parent_id       TEXT NOT NULL REFERENCES fabric_groups(id) ON DELETE CASCADE,
    child_id        TEXT NOT NULL REFERENCES fabric_groups(id) ON DELETE CASCADE,

    PRIMARY KEY (parent_id, child_id)
);

CREATE INDEX IF NOT EXISTS idx_fabric_group_links_child ON fabric_group_links (child_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS fabric_group_links;
DROP TABLE IF EXISTS fabric_group_users;
DROP TABLE IF EXISTS fabric_group_roles;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_users",
			Version: "20250101000009",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS fabric_users (
    user_key            TEXT PRIMARY KEY,
    subject_id          TEXT NOT NULL,
    identity_provider   TEXT NOT NULL,
    created_at          TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at          TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS fabric_user_roles (
    user_key        TEXT NOT NULL REFERENCES fabric_users(user_key) ON DELETE CASCADE,
    role_id         TEXT NOT NULL REFERENCES fabric_roles(id) ON DELETE CASCADE,

    PRIMARY KEY (user_key, role_id)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS fabric_user_roles;
DROP TABLE IF EXISTS fabric_users;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_granular_permissions",
			Version: "20250101000010",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS fabric_granular_permissions (
    user_key        TEXT PRIMARY KEY,
    additional_ids  TEXT NOT NULL DEFAULT '[]',
    denied_ids      TEXT NOT NULL DEFAULT '[]',
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS fabric_granular_permissions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_decision_logs",
			Version: "20250101000011",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS fabric_decision_logs (
    id                  TEXT PRIMARY KEY,
    subject_id          TEXT NOT NULL,
    identity_provider   TEXT NOT NULL,
    grain               TEXT NOT NULL DEFAULT '',
    securable_item      TEXT NOT NULL DEFAULT '',
    allowed_count       INTEGER NOT NULL DEFAULT 0,
    denied_count        INTEGER NOT NULL DEFAULT 0,
    eval_time_ns        INTEGER NOT NULL DEFAULT 0,
    created_at          TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_fabric_decision_logs_subject ON fabric_decision_logs (subject_id, identity_provider);
CREATE INDEX IF NOT EXISTS idx_fabric_decision_logs_created ON fabric_decision_logs (created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS fabric_decision_logs`)
				return err
			},
		},
	)
}
