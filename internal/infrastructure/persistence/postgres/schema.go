package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied on startup; every statement is idempotent
var schema = []string{
	`CREATE TABLE IF NOT EXISTS sla_snapshots (
		id           UUID PRIMARY KEY,
		tenant_id    TEXT NOT NULL,
		seq          BIGINT NOT NULL,
		generated_at TIMESTAMPTZ NOT NULL,
		document     JSONB NOT NULL,
		UNIQUE (tenant_id, seq)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sla_snapshots_tenant_seq ON sla_snapshots (tenant_id, seq DESC)`,
	`CREATE TABLE IF NOT EXISTS tenant_policies (
		tenant_id  TEXT PRIMARY KEY,
		targets    JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

// EnsureSchema создает таблицы истории и политик, если их нет
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
