package db

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"answergrid.ai/core/core/db/migrations"
)

const migrationTable = "schema_migrations"

const createMigrationTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    name TEXT PRIMARY KEY,
    applied_at BIGINT NOT NULL
);
`

// ApplyMigrations applies every embedded migration not yet recorded in the
// ledger, in file-name order, recording each as applied. Safe to call
// repeatedly; already-applied entries are skipped.
func (db *DB) ApplyMigrations(ctx context.Context) error {
	files, err := migrationFiles()
	if err != nil {
		return err
	}

	if _, err := db.conn.ExecContext(ctx, createMigrationTable); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, file := range files {
		if applied[file] {
			continue
		}

		content, err := fs.ReadFile(migrations.FS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}

		err = db.WithTx(ctx, func(tx *sqlx.Tx) error {
			// One statement per Exec: the pgx extended protocol rejects
			// multi-statement strings.
			for _, stmt := range splitStatements(string(content)) {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("exec migration %s: %w", file, err)
				}
			}
			_, err := tx.ExecContext(ctx,
				tx.Rebind("INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)"),
				file, time.Now().UTC().UnixMilli())
			if err != nil {
				return fmt.Errorf("record migration %s: %w", file, err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		slog.InfoContext(ctx, "applied migration", "name", file, "backend", db.dialect.Name())
	}

	return nil
}

// PendingMigrations returns the names of embedded migrations that have not
// been applied, without applying them.
func (db *DB) PendingMigrations(ctx context.Context) ([]string, error) {
	files, err := migrationFiles()
	if err != nil {
		return nil, err
	}

	if _, err := db.conn.ExecContext(ctx, createMigrationTable); err != nil {
		return nil, fmt.Errorf("ensure migration table: %w", err)
	}

	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	var pending []string
	for _, file := range files {
		if !applied[file] {
			pending = append(pending, file)
		}
	}
	return pending, nil
}

func (db *DB) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	var names []string
	if err := db.conn.SelectContext(ctx, &names, "SELECT name FROM schema_migrations"); err != nil {
		return nil, fmt.Errorf("read migration ledger: %w", err)
	}
	applied := make(map[string]bool, len(names))
	for _, n := range names {
		applied[n] = true
	}
	return applied, nil
}

func migrationFiles() ([]string, error) {
	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// splitStatements splits a migration file into individual statements. The
// schema files contain no string literals with semicolons, so a plain split
// is sufficient.
func splitStatements(content string) []string {
	var stmts []string
	for _, part := range strings.Split(content, ";") {
		stmt := strings.TrimSpace(part)
		if stmt == "" || commentOnly(stmt) {
			continue
		}
		stmts = append(stmts, stmt)
	}
	return stmts
}

func commentOnly(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}
