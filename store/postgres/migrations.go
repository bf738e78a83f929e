package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the call relay store (PostgreSQL).
var Migrations = migrate.NewGroup("callrelay")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_callrelay_tenants",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS callrelay_tenants (
    tenant_id     TEXT PRIMARY KEY,
    subscriptions JSONB NOT NULL DEFAULT '[]',
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS callrelay_tenants`)
				return err
			},
		},
	)
}
