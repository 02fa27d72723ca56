// Package store implements the persistence operations of the platform over
// either backing engine. Business logic is written once; the engines differ
// only through the db.Dialect.
package store

import (
	"errors"
	"strings"
	"time"

	"answergrid.ai/core/common/clock"
	"answergrid.ai/core/common/template"
	"answergrid.ai/core/core/db"
	"answergrid.ai/core/internal/secrets"
)

var (
	// ErrNotFound is returned when a mutation targets a business key the
	// caller asserted to exist.
	ErrNotFound = errors.New("not found")

	ErrConfiguration      = db.ErrConfiguration
	ErrBackendUnavailable = db.ErrBackendUnavailable
)

const defaultPlanCacheTTL = time.Hour

// Store is the storage engine: all organization, bot, connection, token,
// billing, onboarding and key-value operations over one backing engine.
type Store struct {
	db           *db.DB
	keyring      *secrets.Keyring
	clock        clock.Clock
	renderer     template.Renderer
	planCacheTTL time.Duration
}

type Options struct {
	Clock        clock.Clock
	Renderer     template.Renderer
	PlanCacheTTL time.Duration
}

func New(database *db.DB, keyring *secrets.Keyring, opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Renderer == nil {
		opts.Renderer = template.MapRenderer{}
	}
	if opts.PlanCacheTTL <= 0 {
		opts.PlanCacheTTL = defaultPlanCacheTTL
	}
	return &Store{
		db:           database,
		keyring:      keyring,
		clock:        opts.Clock,
		renderer:     opts.Renderer,
		planCacheTTL: opts.PlanCacheTTL,
	}
}

// SupportsAnalytics reports whether the backing engine serves the analytics
// read path.
func (s *Store) SupportsAnalytics() bool {
	return s.db.SupportsAnalytics()
}

// Keyring exposes the DEK cache invalidation hook for future key rotation.
func (s *Store) Keyring() *secrets.Keyring {
	return s.keyring
}

func (s *Store) now() time.Time {
	return s.clock.Now()
}

func (s *Store) nowMillis() int64 {
	return toMillis(s.clock.Now())
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func millisPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := toMillis(*t)
	return &ms
}

func timePtr(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := fromMillis(*ms)
	return &t
}

// normalizeChannel strips the legacy "#" prefix and lowercases a Slack
// channel name.
func normalizeChannel(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "#"))
}
