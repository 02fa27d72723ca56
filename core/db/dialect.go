package db

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Dialect captures the narrow set of per-engine differences. Queries are
// written once with `?` placeholders and rebound via sqlx; everything else
// the two engines disagree on lives here.
type Dialect struct {
	name      string
	rowLock   string
	analytics bool
}

var (
	Postgres = Dialect{name: "postgres", rowLock: " FOR UPDATE", analytics: true}
	SQLite   = Dialect{name: "sqlite", rowLock: "", analytics: false}
)

func (d Dialect) Name() string {
	return d.name
}

// RowLock returns the clause appended to a SELECT that must hold its rows
// exclusively for the rest of the transaction. SQLite has a single global
// writer, so the clause is empty there.
func (d Dialect) RowLock() string {
	return d.rowLock
}

// AcquireKeyLock serializes read-modify-write sequences on a logical key for
// the duration of the transaction. On Postgres this takes a transaction-level
// advisory lock so two writers racing on a not-yet-existing row still
// serialize; on SQLite the single writer connection already guarantees it.
func (d Dialect) AcquireKeyLock(ctx context.Context, tx *sqlx.Tx, key string) error {
	if d.name != "postgres" {
		return nil
	}
	_, err := tx.ExecContext(ctx, tx.Rebind("SELECT pg_advisory_xact_lock(hashtext(?))"), key)
	return err
}
