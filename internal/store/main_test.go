package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"answergrid.ai/core/common/clock"
	"answergrid.ai/core/common/id"
	"answergrid.ai/core/core/db"
	"answergrid.ai/core/internal/secrets"
	"answergrid.ai/core/internal/store"
)

const testMasterKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	if err := id.Init(1); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// newTestStore opens a private embedded engine and a manually advanced
// clock. The raw engine handle is returned for direct seeding of tables
// owned by other subsystems.
func newTestStore(t *testing.T) (*store.Store, *clock.Fake, *db.DB) {
	t.Helper()
	ctx := context.Background()

	database, err := db.NewSQLite(ctx, filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("opening test engine: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	kek, err := secrets.NewLocalKEK(testMasterKey)
	if err != nil {
		t.Fatalf("building kek: %v", err)
	}

	fake := clock.NewFake(testStart)
	s := store.New(database, secrets.NewKeyring(kek), store.Options{Clock: fake})
	return s, fake, database
}

func createTestOrg(t *testing.T, s *store.Store, name string) int64 {
	t.Helper()
	orgID, err := s.CreateOrganization(context.Background(), name)
	if err != nil {
		t.Fatalf("creating organization %q: %v", name, err)
	}
	return orgID
}

func createTestInstance(t *testing.T, s *store.Store, orgID int64, teamID, channel string) int64 {
	t.Helper()
	instanceID, err := s.CreateBotInstance(context.Background(), store.CreateBotInstanceParams{
		OrganizationID: orgID,
		ChannelName:    channel,
		ContactEmail:   "ops@example.com",
		TeamID:         teamID,
	})
	if err != nil {
		t.Fatalf("creating bot instance: %v", err)
	}
	return instanceID
}
