package db

import (
	"context"
	"path/filepath"
	"testing"
)

func TestNewSQLite_AppliesAllMigrations(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "core.db")

	database, err := NewSQLite(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	defer database.Close()

	pending, err := database.PendingMigrations(ctx)
	if err != nil {
		t.Fatalf("PendingMigrations failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %v, want none", pending)
	}

	var count int
	if err := database.Conn().GetContext(ctx, &count, "SELECT COUNT(*) FROM organizations"); err != nil {
		t.Errorf("organizations table missing after migration: %v", err)
	}
}

func TestNewSQLite_ReopenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "core.db")

	first, err := NewSQLite(ctx, path)
	if err != nil {
		t.Fatalf("first open failed: %v", err)
	}

	query := first.Conn().Rebind(`
		INSERT INTO organizations (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`)
	if _, err := first.Conn().ExecContext(ctx, query, int64(1), "acme", int64(0), int64(0)); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// Without fixtures the file is preserved and migrations are skipped.
	second, err := NewSQLite(ctx, path)
	if err != nil {
		t.Fatalf("second open failed: %v", err)
	}
	defer second.Close()

	var name string
	getQuery := second.Conn().Rebind("SELECT name FROM organizations WHERE id = ?")
	if err := second.Conn().GetContext(ctx, &name, getQuery, int64(1)); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if name != "acme" {
		t.Errorf("name = %q, want acme", name)
	}
}

func TestNewSQLite_WithFixturesWipesAndSeeds(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "core.db")

	fixtures := []Fixture{{
		Table: "organizations",
		Rows: []map[string]any{
			{"id": int64(10), "name": "acme", "has_governance": true, "created_at": int64(0), "updated_at": int64(0)},
			{"id": int64(11), "name": "globex", "created_at": int64(0), "updated_at": int64(0)},
		},
	}}

	database, err := NewSQLite(ctx, path, WithFixtures(fixtures))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	defer database.Close()

	var count int
	if err := database.Conn().GetContext(ctx, &count, "SELECT COUNT(*) FROM organizations"); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	var hasGovernance bool
	query := database.Conn().Rebind("SELECT has_governance FROM organizations WHERE id = ?")
	if err := database.Conn().GetContext(ctx, &hasGovernance, query, int64(10)); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !hasGovernance {
		t.Error("has_governance = false, want true")
	}
}

func TestNewSQLite_RequiresPath(t *testing.T) {
	_, err := NewSQLite(context.Background(), "  ")
	if err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSplitStatements(t *testing.T) {
	content := `
-- leading comment
CREATE TABLE a (id BIGINT);

CREATE INDEX idx_a ON a(id);
`
	stmts := splitStatements(content)
	if len(stmts) != 2 {
		t.Fatalf("got %d statements, want 2: %v", len(stmts), stmts)
	}
}

func TestDialectCapabilities(t *testing.T) {
	if Postgres.RowLock() != " FOR UPDATE" {
		t.Errorf("postgres row lock = %q", Postgres.RowLock())
	}
	if SQLite.RowLock() != "" {
		t.Errorf("sqlite row lock = %q", SQLite.RowLock())
	}
	if SQLite.analytics {
		t.Error("sqlite must not advertise analytics support")
	}
}
