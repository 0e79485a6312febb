package postgres

import (
	"strings"
	"testing"
)

func TestNewTableNames(t *testing.T) {
	tables := NewTableNames("test_")
	if tables.Messages != "test_messages" || tables.Prefix != "test_" {
		t.Errorf("NewTableNames = %+v", tables)
	}
}

func TestSchemaStatements(t *testing.T) {
	stmts := SchemaStatements(NewTableNames("dev_"))
	all := strings.Join(stmts, "\n")

	mustContain := []string{
		"CREATE TABLE IF NOT EXISTS dev_messages",
		"conversation_branch_id TEXT NOT NULL DEFAULT 'main'",
		"CHECK (variant_sequence >= 1)",
		"(variant_of_id IS NULL) = (variant_sequence IS NULL)",
		"CREATE UNIQUE INDEX IF NOT EXISTS dev_messages_variant_sequence_uq",
		"ON dev_messages (variant_of_id, variant_sequence)",
		"ON dev_messages (conversation_branch_id, created_at, id)",
	}
	for _, s := range mustContain {
		if !strings.Contains(all, s) {
			t.Errorf("schema missing %q", s)
		}
	}

	for i, stmt := range stmts {
		if !strings.Contains(stmt, "IF NOT EXISTS") {
			t.Errorf("statement %d is not idempotent: %s", i+1, stmt)
		}
	}

	// Prefixes keep environments apart
	if other := strings.Join(SchemaStatements(NewTableNames("prod_")), "\n"); strings.Contains(other, "dev_") {
		t.Error("prod schema references dev tables")
	}
}
