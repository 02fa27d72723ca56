package store_test

import (
	"context"
	"errors"
	"testing"

	"answergrid.ai/core/internal/model"
	"answergrid.ai/core/internal/store"
)

func TestOnboardingStateLifecycle(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	stateID, err := s.CreateOnboardingState(ctx, model.OnboardingState{
		Email:            "founder@acme.com",
		OrganizationName: "acme",
		Background:       map[string]any{"source": "landing-page"},
	})
	if err != nil {
		t.Fatalf("CreateOnboardingState failed: %v", err)
	}

	got, err := s.GetOnboardingState(ctx, stateID)
	if err != nil {
		t.Fatalf("GetOnboardingState failed: %v", err)
	}
	if got.Email != "founder@acme.com" || got.Background["source"] != "landing-page" {
		t.Errorf("state = %+v", got)
	}
	if got.OrganizationID != nil {
		t.Errorf("fresh state already linked to org %d", *got.OrganizationID)
	}

	orgID := createTestOrg(t, s, "acme")
	got.OrganizationID = &orgID
	got.Background["industry"] = "fintech"
	if err := s.UpdateOnboardingState(ctx, *got); err != nil {
		t.Fatalf("UpdateOnboardingState failed: %v", err)
	}

	byOrg, err := s.GetOnboardingStateByOrgID(ctx, orgID)
	if err != nil {
		t.Fatalf("GetOnboardingStateByOrgID failed: %v", err)
	}
	if byOrg.ID != stateID || byOrg.Background["industry"] != "fintech" {
		t.Errorf("state by org = %+v", byOrg)
	}
}

func TestOnboardingState_MostRecentAttemptWins(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateOnboardingState(ctx, model.OnboardingState{
		Email:            "founder@acme.com",
		OrganizationName: "acme",
		Background:       map[string]any{"attempt": "first"},
	}); err != nil {
		t.Fatalf("CreateOnboardingState failed: %v", err)
	}
	secondID, err := s.CreateOnboardingState(ctx, model.OnboardingState{
		Email:            "founder@acme.com",
		OrganizationName: "acme",
		Background:       map[string]any{"attempt": "second"},
	})
	if err != nil {
		t.Fatalf("CreateOnboardingState failed: %v", err)
	}

	got, err := s.GetOnboardingStateByEmailOrg(ctx, "founder@acme.com", "acme")
	if err != nil {
		t.Fatalf("GetOnboardingStateByEmailOrg failed: %v", err)
	}
	if got.ID != secondID {
		t.Errorf("lookup returned state %d, want latest %d", got.ID, secondID)
	}
}

func TestUpdateOnboardingState_NotFound(t *testing.T) {
	s, _, _ := newTestStore(t)

	err := s.UpdateOnboardingState(context.Background(), model.OnboardingState{
		ID:    999,
		Email: "ghost@example.com",
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateOnboardingState = %v, want ErrNotFound", err)
	}
}

func TestListOnboardingStates_Cursor(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	for _, name := range []string{"acme", "globex", "initech"} {
		stateID, err := s.CreateOnboardingState(ctx, model.OnboardingState{
			Email:            "founder@" + name + ".com",
			OrganizationName: name,
		})
		if err != nil {
			t.Fatalf("CreateOnboardingState failed: %v", err)
		}
		ids = append(ids, stateID)
	}

	page, err := s.ListOnboardingStates(ctx, 0, 2)
	if err != nil {
		t.Fatalf("ListOnboardingStates failed: %v", err)
	}
	if len(page) != 2 || page[0].ID != ids[2] {
		t.Fatalf("first page = %+v, want newest first", page)
	}

	rest, err := s.ListOnboardingStates(ctx, page[1].ID, 2)
	if err != nil {
		t.Fatalf("ListOnboardingStates failed: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != ids[0] {
		t.Errorf("second page = %+v, want the oldest state", rest)
	}
}
