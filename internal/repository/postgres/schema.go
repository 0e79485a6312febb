package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SchemaStatements returns the DDL for the message table and its indexes.
// Every statement is idempotent so Migrate can run on every deploy.
func SchemaStatements(tables *TableNames) []string {
	t := tables.Messages
	p := tables.Prefix

	return []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id                     TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
			thread_id              TEXT NOT NULL,
			role                   TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
			content                TEXT NOT NULL DEFAULT '',
			status                 TEXT NOT NULL DEFAULT 'complete'
			                       CHECK (status IN ('pending', 'complete', 'error')),
			error                  TEXT,
			parent_message_id      TEXT REFERENCES %s(id) ON DELETE CASCADE,
			variant_of_id          TEXT REFERENCES %s(id) ON DELETE CASCADE,
			variant_sequence       INTEGER CHECK (variant_sequence >= 1),
			branch_id              TEXT,
			conversation_branch_id TEXT NOT NULL DEFAULT 'main',
			branch_point           TEXT,
			created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
			completed_at           TIMESTAMPTZ,
			CONSTRAINT %smessages_variant_shape
				CHECK ((variant_of_id IS NULL) = (variant_sequence IS NULL))
		)`, t, t, t, p),

		// Backstop for the conditional insert: two variants can never share a sequence
		fmt.Sprintf(`
		CREATE UNIQUE INDEX IF NOT EXISTS %smessages_variant_sequence_uq
			ON %s (variant_of_id, variant_sequence)
			WHERE variant_of_id IS NOT NULL`, p, t),

		fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %smessages_branch_idx
			ON %s (conversation_branch_id, created_at, id)`, p, t),

		fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %smessages_thread_idx
			ON %s (thread_id, created_at)`, p, t),

		fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %smessages_parent_idx
			ON %s (parent_message_id)`, p, t),
	}
}

// Migrate applies the schema inside a single transaction
func Migrate(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	for i, stmt := range SchemaStatements(tables) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

// DropSchema removes the message table (used by tests and the drop script)
func DropSchema(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	if _, err := pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s CASCADE`, tables.Messages)); err != nil {
		return fmt.Errorf("drop %s: %w", tables.Messages, err)
	}
	return nil
}
