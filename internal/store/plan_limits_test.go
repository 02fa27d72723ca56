package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"answergrid.ai/core/internal/model"
	"answergrid.ai/core/internal/store"
)

func TestPlanLimits_FreshnessWindow(t *testing.T) {
	s, fake, _ := newTestStore(t)
	ctx := context.Background()
	orgID := createTestOrg(t, s, "acme")

	if _, err := s.GetPlanLimits(ctx, orgID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetPlanLimits before set = %v, want ErrNotFound", err)
	}

	limits := model.PlanLimits{
		OrganizationID:     orgID,
		AnswerQuota:        500,
		AllowOverage:       true,
		ChannelQuota:       3,
		AllowExtraChannels: false,
	}
	if err := s.SetPlanLimits(ctx, limits); err != nil {
		t.Fatalf("SetPlanLimits failed: %v", err)
	}

	got, err := s.GetPlanLimits(ctx, orgID)
	if err != nil {
		t.Fatalf("GetPlanLimits failed: %v", err)
	}
	if got.AnswerQuota != 500 || !got.AllowOverage || got.ChannelQuota != 3 {
		t.Errorf("limits = %+v", got)
	}

	// Inside the window the snapshot is still trusted.
	fake.Advance(30 * time.Minute)
	if _, err := s.GetPlanLimits(ctx, orgID); err != nil {
		t.Fatalf("GetPlanLimits within window = %v", err)
	}

	// Beyond it the row is treated as absent so the caller re-fetches.
	fake.Advance(31 * time.Minute)
	if _, err := s.GetPlanLimits(ctx, orgID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetPlanLimits past window = %v, want ErrNotFound", err)
	}

	// A rewrite resets the window.
	limits.AnswerQuota = 1000
	if err := s.SetPlanLimits(ctx, limits); err != nil {
		t.Fatalf("SetPlanLimits failed: %v", err)
	}
	got, err = s.GetPlanLimits(ctx, orgID)
	if err != nil {
		t.Fatalf("GetPlanLimits after refresh = %v", err)
	}
	if got.AnswerQuota != 1000 {
		t.Errorf("quota = %d, want 1000", got.AnswerQuota)
	}
}
