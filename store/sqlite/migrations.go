package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Bastion store (SQLite).
var Migrations = migrate.NewGroup("bastion")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_roles",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bastion_roles (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL UNIQUE,
    display_name    TEXT NOT NULL DEFAULT '',
    description     TEXT NOT NULL DEFAULT '',
    role_type       TEXT NOT NULL DEFAULT 'custom',
    parent_id       TEXT REFERENCES bastion_roles (id),
    level           INTEGER NOT NULL DEFAULT 0,
    organization_id TEXT NOT NULL DEFAULT '',
    is_active       INTEGER NOT NULL DEFAULT 1,
    is_system       INTEGER NOT NULL DEFAULT 0,
    metadata        TEXT NOT NULL DEFAULT '{}',
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_bastion_roles_parent ON bastion_roles (parent_id);
CREATE INDEX IF NOT EXISTS idx_bastion_roles_org ON bastion_roles (organization_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bastion_roles`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_permissions",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bastion_permissions (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL UNIQUE,
    description     TEXT NOT NULL DEFAULT '',
    resource_type   TEXT NOT NULL,
    action          TEXT NOT NULL,
    category        TEXT NOT NULL DEFAULT '',
    is_system       INTEGER NOT NULL DEFAULT 0,
    metadata        TEXT NOT NULL DEFAULT '{}',
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now')),

    UNIQUE (resource_type, action)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bastion_permissions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_user_roles",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bastion_user_roles (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL,
    role_id         TEXT NOT NULL REFERENCES bastion_roles (id) ON DELETE CASCADE,
    assigned_by     TEXT NOT NULL DEFAULT '',
    reason          TEXT NOT NULL DEFAULT '',
    expires_at      TEXT,
    is_active       INTEGER NOT NULL DEFAULT 1,
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_bastion_user_roles_user ON bastion_user_roles (user_id, is_active);
CREATE INDEX IF NOT EXISTS idx_bastion_user_roles_role ON bastion_user_roles (role_id);
CREATE INDEX IF NOT EXISTS idx_bastion_user_roles_expires ON bastion_user_roles (expires_at) WHERE expires_at IS NOT NULL;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bastion_user_roles`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_role_permissions",
			Version: "20250101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bastion_role_permissions (
    id              TEXT PRIMARY KEY,
    role_id         TEXT NOT NULL REFERENCES bastion_roles (id) ON DELETE CASCADE,
    permission_id   TEXT NOT NULL REFERENCES bastion_permissions (id),
    scope           TEXT NOT NULL DEFAULT 'all',
    conditions      TEXT NOT NULL DEFAULT '{}',
    is_granted      INTEGER NOT NULL DEFAULT 1,
    expires_at      TEXT,
    granted_by      TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_bastion_role_permissions_lookup ON bastion_role_permissions (role_id, permission_id);
CREATE INDEX IF NOT EXISTS idx_bastion_role_permissions_perm ON bastion_role_permissions (permission_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bastion_role_permissions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_resource_overrides",
			Version: "20250101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bastion_resource_overrides (
    id              TEXT PRIMARY KEY,
    resource_type   TEXT NOT NULL,
    resource_id     TEXT NOT NULL,
    permission_id   TEXT NOT NULL REFERENCES bastion_permissions (id),
    subject_type    TEXT NOT NULL,
    subject_id      TEXT NOT NULL,
    is_granted      INTEGER NOT NULL,
    conditions      TEXT NOT NULL DEFAULT '{}',
    expires_at      TEXT,
    created_by      TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_bastion_overrides_resource ON bastion_resource_overrides (resource_type, resource_id, permission_id);
CREATE INDEX IF NOT EXISTS idx_bastion_overrides_subject ON bastion_resource_overrides (subject_type, subject_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bastion_resource_overrides`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_audit_log",
			Version: "20250101000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bastion_audit_log (
    id              TEXT PRIMARY KEY,
    action          TEXT NOT NULL,
    resource_type   TEXT NOT NULL DEFAULT '',
    resource_id     TEXT NOT NULL DEFAULT '',
    subject_type    TEXT NOT NULL DEFAULT '',
    subject_id      TEXT NOT NULL DEFAULT '',
    permission_id   TEXT,
    role_id         TEXT,
    performed_by    TEXT NOT NULL DEFAULT '',
    ip_address      TEXT NOT NULL DEFAULT '',
    user_agent      TEXT NOT NULL DEFAULT '',
    success         INTEGER NOT NULL,
    allowed         INTEGER NOT NULL DEFAULT 0,
    decision        TEXT NOT NULL DEFAULT '',
    details         TEXT NOT NULL DEFAULT '{}',
    error_message   TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_bastion_audit_created ON bastion_audit_log (created_at);
CREATE INDEX IF NOT EXISTS idx_bastion_audit_subject ON bastion_audit_log (subject_type, subject_id);
CREATE INDEX IF NOT EXISTS idx_bastion_audit_action ON bastion_audit_log (action);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bastion_audit_log`)
				return err
			},
		},
	)
}
