package secrets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
)

// ErrNoDEK is returned when encrypted data references an organization that
// has no wrapped DEK on file. That is a sequencing bug, not a runtime
// condition to recover from; callers surface it as a configuration error.
var ErrNoDEK = errors.New("no wrapped dek on file")

// maxDEKCacheEntries bounds the in-process DEK cache. Unwrap is a pure
// function of stored ciphertext and KEK, so resetting the cache is always
// safe.
const maxDEKCacheEntries = 1024

// Keyring resolves per-organization DEKs against the org_deks table, caching
// raw DEKs in memory for the lifetime of one storage engine instance.
type Keyring struct {
	kek KEKProvider

	mu    sync.Mutex
	cache map[int64][]byte
}

func NewKeyring(kek KEKProvider) *Keyring {
	return &Keyring{
		kek:   kek,
		cache: make(map[int64][]byte),
	}
}

// OrgDEK returns the organization's DEK, generating, wrapping and persisting
// a fresh one if none exists. A concurrent first use races benignly: the
// insert is conflict-tolerant and the stored row is re-read as the
// authority, so a DEK is never regenerated in place.
func (k *Keyring) OrgDEK(ctx context.Context, q sqlx.ExtContext, orgID int64, nowMillis int64) ([]byte, error) {
	if dek, ok := k.cached(orgID); ok {
		return dek, nil
	}

	dek, err := k.lookup(ctx, q, orgID)
	if err == nil {
		return dek, nil
	}
	if !errors.Is(err, ErrNoDEK) {
		return nil, err
	}

	fresh, err := NewDEK()
	if err != nil {
		return nil, err
	}
	wrapped, err := k.kek.Wrap(fresh)
	if err != nil {
		return nil, fmt.Errorf("wrapping dek: %w", err)
	}

	insert := q.Rebind(`
		INSERT INTO org_deks (organization_id, wrapped_dek, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (organization_id) DO NOTHING`)
	if _, err := q.ExecContext(ctx, insert, orgID, wrapped, nowMillis); err != nil {
		return nil, fmt.Errorf("persisting wrapped dek: %w", err)
	}

	// Re-read: if another writer won the race, their DEK is authoritative.
	return k.lookup(ctx, q, orgID)
}

// ExistingOrgDEK returns the organization's DEK without creating one,
// reporting ErrNoDEK when absent. Decryption paths use this so ciphertext
// with no key on file fails loudly instead of minting a key that cannot
// decrypt it.
func (k *Keyring) ExistingOrgDEK(ctx context.Context, q sqlx.ExtContext, orgID int64) ([]byte, error) {
	if dek, ok := k.cached(orgID); ok {
		return dek, nil
	}
	return k.lookup(ctx, q, orgID)
}

// Invalidate drops the cached DEK for one organization. Reserved for future
// key-rotation support; nothing calls it on the hot path today.
func (k *Keyring) Invalidate(orgID int64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.cache, orgID)
}

func (k *Keyring) lookup(ctx context.Context, q sqlx.ExtContext, orgID int64) ([]byte, error) {
	var wrapped string
	query := q.Rebind("SELECT wrapped_dek FROM org_deks WHERE organization_id = ?")
	if err := sqlx.GetContext(ctx, q, &wrapped, query, orgID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: organization %d", ErrNoDEK, orgID)
		}
		return nil, fmt.Errorf("reading wrapped dek: %w", err)
	}

	dek, err := k.kek.Unwrap(wrapped)
	if err != nil {
		return nil, fmt.Errorf("unwrapping dek for organization %d: %w", orgID, err)
	}

	k.store(orgID, dek)
	return dek, nil
}

func (k *Keyring) cached(orgID int64) ([]byte, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	dek, ok := k.cache[orgID]
	return dek, ok
}

func (k *Keyring) store(orgID int64, dek []byte) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.cache) >= maxDEKCacheEntries {
		k.cache = make(map[int64][]byte)
	}
	k.cache[orgID] = dek
}
