package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"answergrid.ai/core/internal/model"
)

// KV is the per-bot-instance expiring key-value facet of the store. Entries
// are scoped by (instance, family, key). Deletes are soft and expiry is
// evaluated at read time; physically expired or tombstoned rows are invisible
// to every read path.
type KV struct {
	store         *Store
	botInstanceID int64
}

func (s *Store) KV(botInstanceID int64) *KV {
	return &KV{store: s, botInstanceID: botInstanceID}
}

type kvRow struct {
	BotInstanceID int64  `db:"bot_instance_id"`
	Family        string `db:"family"`
	Key           string `db:"k"`
	Value         string `db:"v"`
	ExpiresAt     int64  `db:"expires_at"`
	DeletedAt     int64  `db:"deleted_at"`
	CreatedAt     int64  `db:"created_at"`
	UpdatedAt     int64  `db:"updated_at"`
}

func (r kvRow) toModel() model.KVEntry {
	entry := model.KVEntry{
		BotInstanceID: r.BotInstanceID,
		Family:        r.Family,
		Key:           r.Key,
		Value:         r.Value,
		CreatedAt:     fromMillis(r.CreatedAt),
		UpdatedAt:     fromMillis(r.UpdatedAt),
	}
	if r.ExpiresAt != 0 {
		t := fromMillis(r.ExpiresAt)
		entry.ExpiresAt = &t
	}
	if r.DeletedAt != 0 {
		t := fromMillis(r.DeletedAt)
		entry.DeletedAt = &t
	}
	return entry
}

// live rows: not tombstoned, and either never-expiring (sentinel 0) or
// expiring in the future.
const kvLiveClause = " AND deleted_at = 0 AND (expires_at = 0 OR expires_at > ?)"

// Get returns the live value for a key, or ErrNotFound when the key is
// absent, expired or soft-deleted.
func (kv *KV) Get(ctx context.Context, family, key string) (string, error) {
	var value string
	query := kv.store.db.Conn().Rebind(
		"SELECT v FROM kv WHERE bot_instance_id = ? AND family = ? AND k = ?" + kvLiveClause)
	err := kv.store.db.Conn().GetContext(ctx, &value, query,
		kv.botInstanceID, family, key, kv.store.nowMillis())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

func (kv *KV) Exists(ctx context.Context, family, key string) (bool, error) {
	_, err := kv.Get(ctx, family, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Set writes a value with a time-to-live in seconds. A non-positive TTL
// means the entry never expires. Writing over a tombstoned or expired row
// revives it: the tombstone is cleared and the expiry reset.
func (kv *KV) Set(ctx context.Context, family, key, value string, ttlSeconds int64) error {
	now := kv.store.nowMillis()
	var expiresAt int64
	if ttlSeconds > 0 {
		expiresAt = now + ttlSeconds*1000
	}

	query := kv.store.db.Conn().Rebind(`
		INSERT INTO kv (bot_instance_id, family, k, v, expires_at, deleted_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT (bot_instance_id, family, k) DO UPDATE SET
			v = excluded.v,
			expires_at = excluded.expires_at,
			deleted_at = 0,
			updated_at = excluded.updated_at`)
	if _, err := kv.store.db.Conn().ExecContext(ctx, query,
		kv.botInstanceID, family, key, value, expiresAt, now, now); err != nil {
		return fmt.Errorf("setting kv %s/%s: %w", family, key, err)
	}
	return nil
}

// Delete tombstones a key. The row is retained; every read treats it as
// absent. Deleting an unknown key is a no-op.
func (kv *KV) Delete(ctx context.Context, family, key string) error {
	query := kv.store.db.Conn().Rebind(`
		UPDATE kv SET deleted_at = ?, updated_at = ?
		WHERE bot_instance_id = ? AND family = ? AND k = ? AND deleted_at = 0`)
	now := kv.store.nowMillis()
	_, err := kv.store.db.Conn().ExecContext(ctx, query, now, now, kv.botInstanceID, family, key)
	return err
}

// List returns the live entries of a family in lexicographic key order.
func (kv *KV) List(ctx context.Context, family string) ([]model.KVEntry, error) {
	query := kv.store.db.Conn().Rebind(
		"SELECT * FROM kv WHERE bot_instance_id = ? AND family = ?" + kvLiveClause + " ORDER BY k")
	var rows []kvRow
	err := kv.store.db.Conn().SelectContext(ctx, &rows, query,
		kv.botInstanceID, family, kv.store.nowMillis())
	if err != nil {
		return nil, err
	}
	entries := make([]model.KVEntry, len(rows))
	for i, row := range rows {
		entries[i] = row.toModel()
	}
	return entries, nil
}

// GetAndSet atomically transforms the value under a key. fn receives the
// current live value (nil when absent) and returns the replacement: a string
// to store under the given TTL, or nil to tombstone the key. A factory error
// aborts the transaction and leaves the row untouched.
//
// Two concurrent calls on the same key serialize: each factory observes the
// value the previous commit left behind, so lost updates cannot occur.
func (kv *KV) GetAndSet(ctx context.Context, family, key string, fn func(current *string) (*string, error), ttlSeconds int64) error {
	lockKey := fmt.Sprintf("kv:%d:%s:%s", kv.botInstanceID, family, key)

	return kv.store.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		// The advisory lock serializes writers even when no row exists yet
		// for the row lock to latch onto.
		if err := kv.store.db.Dialect().AcquireKeyLock(ctx, tx, lockKey); err != nil {
			return err
		}

		now := kv.store.nowMillis()

		var row kvRow
		var current *string
		query := tx.Rebind(
			"SELECT * FROM kv WHERE bot_instance_id = ? AND family = ? AND k = ?" +
				kv.store.db.Dialect().RowLock())
		err := tx.GetContext(ctx, &row, query, kv.botInstanceID, family, key)
		switch {
		case err == nil:
			if row.DeletedAt == 0 && (row.ExpiresAt == 0 || row.ExpiresAt > now) {
				v := row.Value
				current = &v
			}
		case errors.Is(err, sql.ErrNoRows):
		default:
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		if next == nil {
			update := tx.Rebind(`
				UPDATE kv SET deleted_at = ?, updated_at = ?
				WHERE bot_instance_id = ? AND family = ? AND k = ? AND deleted_at = 0`)
			_, err := tx.ExecContext(ctx, update, now, now, kv.botInstanceID, family, key)
			return err
		}

		var expiresAt int64
		if ttlSeconds > 0 {
			expiresAt = now + ttlSeconds*1000
		}
		upsert := tx.Rebind(`
			INSERT INTO kv (bot_instance_id, family, k, v, expires_at, deleted_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 0, ?, ?)
			ON CONFLICT (bot_instance_id, family, k) DO UPDATE SET
				v = excluded.v,
				expires_at = excluded.expires_at,
				deleted_at = 0,
				updated_at = excluded.updated_at`)
		if _, err := tx.ExecContext(ctx, upsert,
			kv.botInstanceID, family, key, *next, expiresAt, now, now); err != nil {
			return fmt.Errorf("setting kv %s/%s: %w", family, key, err)
		}
		return nil
	})
}
