package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"answergrid.ai/core/internal/store"
)

func TestValidateToken(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	// Unknown tokens validate as invalid without an error.
	validation, err := s.ValidateToken(ctx, "nope")
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if validation.IsValid {
		t.Error("unknown token reported valid")
	}

	err = s.CreateInviteToken(ctx, store.CreateInviteTokenParams{
		Token:        "welcome-2026",
		IsSingleUse:  true,
		BonusAnswers: 50,
	})
	if err != nil {
		t.Fatalf("CreateInviteToken failed: %v", err)
	}

	validation, err = s.ValidateToken(ctx, "welcome-2026")
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if !validation.IsValid || validation.HasBeenConsumed || !validation.IsSingleUse {
		t.Errorf("validation = %+v, want valid, unconsumed, single-use", validation)
	}
}

func TestMarkTokenConsumed_FirstConsumerAndDedup(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	orgA := createTestOrg(t, s, "acme")
	orgB := createTestOrg(t, s, "globex")
	instanceA := createTestInstance(t, s, orgA, "T1", "general")
	instanceA2 := createTestInstance(t, s, orgA, "T1", "revenue")
	instanceB := createTestInstance(t, s, orgB, "T2", "general")

	if err := s.CreateInviteToken(ctx, store.CreateInviteTokenParams{Token: "ref-1"}); err != nil {
		t.Fatalf("CreateInviteToken failed: %v", err)
	}

	consumedAt := time.Date(2026, 2, 14, 8, 0, 0, 0, time.UTC)
	if err := s.MarkTokenConsumed(ctx, "ref-1", instanceA, &consumedAt); err != nil {
		t.Fatalf("MarkTokenConsumed failed: %v", err)
	}

	tok, err := s.GetInviteToken(ctx, "ref-1")
	if err != nil {
		t.Fatalf("GetInviteToken failed: %v", err)
	}
	if tok.FirstConsumerInstanceID == nil || *tok.FirstConsumerInstanceID != instanceA {
		t.Fatalf("first consumer = %v, want %d", tok.FirstConsumerInstanceID, instanceA)
	}
	if tok.FirstConsumedAt == nil || !tok.FirstConsumedAt.Equal(consumedAt) {
		t.Errorf("first consumed at = %v, want %v", tok.FirstConsumedAt, consumedAt)
	}

	// A different instance of the same org: the consumed set must not grow.
	if err := s.MarkTokenConsumed(ctx, "ref-1", instanceA2, nil); err != nil {
		t.Fatalf("MarkTokenConsumed failed: %v", err)
	}
	// A second org appends; first-consumer fields stay put.
	if err := s.MarkTokenConsumed(ctx, "ref-1", instanceB, nil); err != nil {
		t.Fatalf("MarkTokenConsumed failed: %v", err)
	}

	tok, err = s.GetInviteToken(ctx, "ref-1")
	if err != nil {
		t.Fatalf("GetInviteToken failed: %v", err)
	}
	if len(tok.ConsumedOrgIDs) != 2 {
		t.Errorf("consumed orgs = %v, want exactly [%d %d]", tok.ConsumedOrgIDs, orgA, orgB)
	}
	if !tok.ConsumedBy(orgA) || !tok.ConsumedBy(orgB) {
		t.Errorf("consumed orgs = %v, missing an expected org", tok.ConsumedOrgIDs)
	}
	if *tok.FirstConsumerInstanceID != instanceA {
		t.Errorf("first consumer moved to %d", *tok.FirstConsumerInstanceID)
	}
	if !tok.FirstConsumedAt.Equal(consumedAt) {
		t.Errorf("first consumed at moved to %v", tok.FirstConsumedAt)
	}

	validation, err := s.ValidateToken(ctx, "ref-1")
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if !validation.HasBeenConsumed {
		t.Error("consumed token not reported as consumed")
	}
}

func TestMarkTokenConsumed_UnknownEntitiesAreNoOps(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	orgID := createTestOrg(t, s, "acme")
	instanceID := createTestInstance(t, s, orgID, "T1", "general")

	// Unknown token: swallowed.
	if err := s.MarkTokenConsumed(ctx, "ghost", instanceID, nil); err != nil {
		t.Fatalf("MarkTokenConsumed unknown token = %v, want nil", err)
	}

	// Unknown instance: token left untouched.
	if err := s.CreateInviteToken(ctx, store.CreateInviteTokenParams{Token: "ref-2"}); err != nil {
		t.Fatalf("CreateInviteToken failed: %v", err)
	}
	if err := s.MarkTokenConsumed(ctx, "ref-2", 424242, nil); err != nil {
		t.Fatalf("MarkTokenConsumed unknown instance = %v, want nil", err)
	}
	tok, err := s.GetInviteToken(ctx, "ref-2")
	if err != nil {
		t.Fatalf("GetInviteToken failed: %v", err)
	}
	if tok.Consumed() {
		t.Errorf("token consumed by unknown instance: %+v", tok)
	}
}

func TestTokenConsumer(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	orgID := createTestOrg(t, s, "acme")
	instanceID := createTestInstance(t, s, orgID, "T1", "revenue")

	if err := s.CreateInviteToken(ctx, store.CreateInviteTokenParams{Token: "ref-3"}); err != nil {
		t.Fatalf("CreateInviteToken failed: %v", err)
	}

	if _, err := s.TokenConsumer(ctx, "ref-3"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("TokenConsumer before consumption = %v, want ErrNotFound", err)
	}

	if err := s.MarkTokenConsumed(ctx, "ref-3", instanceID, nil); err != nil {
		t.Fatalf("MarkTokenConsumed failed: %v", err)
	}

	consumer, err := s.TokenConsumer(ctx, "ref-3")
	if err != nil {
		t.Fatalf("TokenConsumer failed: %v", err)
	}
	if consumer.InstanceID != instanceID || consumer.OrganizationID != orgID {
		t.Errorf("consumer = %+v", consumer)
	}
	if consumer.TeamID != "T1" || consumer.ChannelName != "revenue" {
		t.Errorf("consumer location = %s/%s, want T1/revenue", consumer.TeamID, consumer.ChannelName)
	}
}

func TestListInviteTokens(t *testing.T) {
	s, fake, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateInviteToken(ctx, store.CreateInviteTokenParams{Token: "older"}); err != nil {
		t.Fatalf("CreateInviteToken failed: %v", err)
	}
	fake.Advance(time.Minute)
	if err := s.CreateInviteToken(ctx, store.CreateInviteTokenParams{Token: "newer"}); err != nil {
		t.Fatalf("CreateInviteToken failed: %v", err)
	}

	tokens, err := s.ListInviteTokens(ctx)
	if err != nil {
		t.Fatalf("ListInviteTokens failed: %v", err)
	}
	if len(tokens) != 2 || tokens[0].Token != "newer" {
		t.Errorf("tokens = %+v, want newest first", tokens)
	}
}
