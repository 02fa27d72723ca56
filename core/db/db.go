// Package db provides the storage engine handle shared by both backing
// engines: a pooled Postgres engine for production and an embedded SQLite
// engine for local development and tests. Business logic lives above this
// package and is written once; the per-backend differences are confined to
// the Dialect.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"answergrid.ai/core/core/config"
)

var (
	// ErrBackendUnavailable covers pool exhaustion, auth-token refresh
	// failure and connectivity loss. Callers treat it as retryable.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrConfiguration covers fatal misconfiguration: schema behind without
	// auto-initialize, ciphertext without a wrapped key on file.
	ErrConfiguration = errors.New("storage configuration error")
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know a bind
	// type for out of the box.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// DB wraps an sqlx handle plus the dialect of the engine behind it.
type DB struct {
	conn    *sqlx.DB
	dialect Dialect
}

func (db *DB) Conn() *sqlx.DB {
	return db.conn
}

func (db *DB) Dialect() Dialect {
	return db.dialect
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// SupportsAnalytics reports whether the engine serves the analytics read
// path. The embedded engine does not.
func (db *DB) SupportsAnalytics() bool {
	return db.dialect.analytics
}

// TokenProvider returns short-lived credentials for a new physical
// connection. It is invoked on every connection establishment and its result
// is never cached across checkouts.
type TokenProvider func(ctx context.Context) (string, error)

type postgresOptions struct {
	tokenProvider TokenProvider
}

type PostgresOption func(*postgresOptions)

// WithTokenProvider switches the pooled engine from static credentials to
// per-checkout generated tokens.
func WithTokenProvider(tp TokenProvider) PostgresOption {
	return func(o *postgresOptions) {
		o.tokenProvider = tp
	}
}

// NewPostgres opens the pooled engine. Construction verifies schema currency:
// with cfg.VerifyOnly set, pending migrations fail construction; otherwise
// they are applied.
func NewPostgres(ctx context.Context, cfg config.DBConfig, opts ...PostgresOption) (*DB, error) {
	var o postgresOptions
	for _, opt := range opts {
		opt(&o)
	}

	connCfg, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	var openOpts []stdlib.OptionOpenDB
	if o.tokenProvider != nil {
		openOpts = append(openOpts, stdlib.OptionBeforeConnect(func(ctx context.Context, cc *pgx.ConnConfig) error {
			token, err := o.tokenProvider(ctx)
			if err != nil {
				return fmt.Errorf("%w: refreshing auth token: %v", ErrBackendUnavailable, err)
			}
			cc.Password = token
			return nil
		}))
	}

	sqlDB := stdlib.OpenDB(*connCfg, openOpts...)

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 10 // sensible default for a PgBouncer setup
	}
	minConns := cfg.MinConns
	if minConns < 0 {
		minConns = 0
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(minConns)
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: pinging database: %v", ErrBackendUnavailable, err)
	}

	db := &DB{
		conn:    sqlx.NewDb(sqlDB, "pgx"),
		dialect: Postgres,
	}

	if err := db.ensureSchema(ctx, cfg.VerifyOnly); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Fixture is a structured row dump seeded into one named table by the
// embedded engine.
type Fixture struct {
	Table string
	Rows  []map[string]any
}

type sqliteOptions struct {
	fixtures []Fixture
}

type SQLiteOption func(*sqliteOptions)

// WithFixtures wipes any pre-existing file and seeds the given row dumps
// after migration. Intended for tests and local sandboxes.
func WithFixtures(fixtures []Fixture) SQLiteOption {
	return func(o *sqliteOptions) {
		o.fixtures = fixtures
	}
}

// NewSQLite opens the embedded engine over a private file-backed store.
// Migrations always run; the embedded engine has no verify-only mode. The
// engine is limited to a single connection, so all writers serialize on one
// global lock. Intended for single-process use only.
func NewSQLite(ctx context.Context, path string, opts ...SQLiteOption) (*DB, error) {
	var o sqliteOptions
	for _, opt := range opts {
		opt(&o)
	}

	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", ErrConfiguration)
	}

	if o.fixtures != nil {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("wiping sqlite file: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxIdleTime(time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: pinging sqlite db: %v", ErrBackendUnavailable, err)
	}

	db := &DB{
		conn:    sqlx.NewDb(sqlDB, "sqlite"),
		dialect: SQLite,
	}

	if err := db.ensureSchema(ctx, false); err != nil {
		_ = db.Close()
		return nil, err
	}

	if len(o.fixtures) > 0 {
		if err := db.seed(ctx, o.fixtures); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return db, nil
}

func (db *DB) ensureSchema(ctx context.Context, verifyOnly bool) error {
	if verifyOnly {
		pending, err := db.PendingMigrations(ctx)
		if err != nil {
			return err
		}
		if len(pending) > 0 {
			return fmt.Errorf("%w: schema is behind, pending migrations: %s; re-run with DB_VERIFY_ONLY=false or `migrate` to initialize",
				ErrConfiguration, strings.Join(pending, ", "))
		}
		return nil
	}
	return db.ApplyMigrations(ctx)
}

// WithTx executes the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", ErrBackendUnavailable, err)
	}

	// Always attempt rollback on defer - it's a no-op if already committed
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (db *DB) seed(ctx context.Context, fixtures []Fixture) error {
	return db.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, f := range fixtures {
			for _, row := range f.Rows {
				cols := make([]string, 0, len(row))
				for col := range row {
					cols = append(cols, col)
				}
				// Deterministic column order keeps failures reproducible.
				sort.Strings(cols)

				placeholders := make([]string, len(cols))
				for i, col := range cols {
					placeholders[i] = ":" + col
				}
				query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
					f.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
				if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
					return fmt.Errorf("seeding %s: %w", f.Table, err)
				}
			}
		}
		return nil
	})
}
