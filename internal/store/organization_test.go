package store_test

import (
	"context"
	"errors"
	"testing"

	"answergrid.ai/core/internal/model"
	"answergrid.ai/core/internal/store"
)

func TestOrganizationLifecycle(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	orgID := createTestOrg(t, s, "acme")

	org, err := s.GetOrganization(ctx, orgID)
	if err != nil {
		t.Fatalf("GetOrganization failed: %v", err)
	}
	if org.Name != "acme" || org.HasGovernance {
		t.Errorf("org = %+v, want fresh acme without governance", org)
	}

	if err := s.UpdateOrganizationIndustry(ctx, orgID, "fintech"); err != nil {
		t.Fatalf("UpdateOrganizationIndustry failed: %v", err)
	}
	if err := s.SetOrganizationGovernance(ctx, orgID, true); err != nil {
		t.Fatalf("SetOrganizationGovernance failed: %v", err)
	}
	if err := s.UpdateOrganizationBilling(ctx, orgID, "cus_123", "sub_456"); err != nil {
		t.Fatalf("UpdateOrganizationBilling failed: %v", err)
	}
	if err := s.LinkOrganizationDocsRepo(ctx, orgID, "git@example.com:acme/docs.git"); err != nil {
		t.Fatalf("LinkOrganizationDocsRepo failed: %v", err)
	}

	org, err = s.GetOrganization(ctx, orgID)
	if err != nil {
		t.Fatalf("GetOrganization failed: %v", err)
	}
	if org.Industry == nil || *org.Industry != "fintech" {
		t.Errorf("industry = %v, want fintech", org.Industry)
	}
	if !org.HasGovernance {
		t.Error("governance flag not set")
	}
	if org.StripeCustomerID == nil || *org.StripeCustomerID != "cus_123" {
		t.Errorf("stripe customer = %v", org.StripeCustomerID)
	}
	if org.DocsRepo == nil || *org.DocsRepo != "git@example.com:acme/docs.git" {
		t.Errorf("docs repo = %v", org.DocsRepo)
	}
}

func TestOrganizationMutations_NotFound(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetOrganization(ctx, 999); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetOrganization = %v, want ErrNotFound", err)
	}
	if err := s.UpdateOrganizationIndustry(ctx, 999, "fintech"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateOrganizationIndustry = %v, want ErrNotFound", err)
	}
	if err := s.SetOrganizationGovernance(ctx, 999, true); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("SetOrganizationGovernance = %v, want ErrNotFound", err)
	}
}

func TestListOrganizationsWithUsage(t *testing.T) {
	s, _, database := newTestStore(t)
	ctx := context.Background()

	acme := createTestOrg(t, s, "acme")
	globex := createTestOrg(t, s, "globex")

	createTestInstance(t, s, acme, "T1", "general")
	createTestInstance(t, s, acme, "T1", "revenue")
	createTestInstance(t, s, globex, "T2", "general")

	// answer_usage is written by the usage-tracking subsystem; seed directly.
	seed := database.Conn().Rebind(`
		INSERT INTO answer_usage (organization_id, month, year, answers_used, bonus_answers_used)
		VALUES (?, ?, ?, ?, ?)`)
	if _, err := database.Conn().ExecContext(ctx, seed, globex, 3, 2026, 120, 10); err != nil {
		t.Fatalf("seeding usage: %v", err)
	}

	rows, err := s.ListOrganizationsWithUsage(ctx, 3, 2026, model.UsageSortUsage, 10, 0)
	if err != nil {
		t.Fatalf("ListOrganizationsWithUsage failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Organization.Name != "globex" || rows[0].AnswersUsed != 120 || rows[0].BonusAnswersUsed != 10 {
		t.Errorf("top row = %+v, want globex with usage 120/10", rows[0])
	}
	if rows[1].AnswersUsed != 0 {
		t.Errorf("acme usage = %d, want 0 for missing month row", rows[1].AnswersUsed)
	}

	byBots, err := s.ListOrganizationsWithUsage(ctx, 3, 2026, model.UsageSortBotCount, 10, 0)
	if err != nil {
		t.Fatalf("ListOrganizationsWithUsage failed: %v", err)
	}
	if byBots[0].Organization.Name != "acme" || byBots[0].BotCount != 2 {
		t.Errorf("top row = %+v, want acme with 2 bots", byBots[0])
	}

	// An unknown sort key falls back to id order instead of erroring.
	fallback, err := s.ListOrganizationsWithUsage(ctx, 3, 2026, model.UsageSortKey("drop table"), 10, 0)
	if err != nil {
		t.Fatalf("ListOrganizationsWithUsage failed: %v", err)
	}
	if len(fallback) != 2 {
		t.Errorf("got %d rows, want 2", len(fallback))
	}
}
