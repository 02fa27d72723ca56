package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestOrgAnalytics_MatchesInstanceAndOnboardingIdentifiers(t *testing.T) {
	s, fake, _ := newTestStore(t)
	ctx := context.Background()

	orgID := createTestOrg(t, s, "Acme Corp")
	instanceID := createTestInstance(t, s, orgID, "T1", "general")
	otherOrg := createTestOrg(t, s, "globex")
	otherInstance := createTestInstance(t, s, otherOrg, "T2", "general")

	events := []struct {
		bot       string
		eventType string
	}{
		{fmt.Sprintf("%d", instanceID), "answer"},
		{fmt.Sprintf("%d", instanceID), "feedback"},
		{fmt.Sprintf("onboarding-%d", orgID), "signup"},
		{"onboarding-acme-corp", "signup"},
		{fmt.Sprintf("%d", otherInstance), "answer"},
	}
	for _, e := range events {
		if _, err := s.RecordAnalyticsEvent(ctx, e.bot, e.eventType, `{"ok":true}`); err != nil {
			t.Fatalf("RecordAnalyticsEvent failed: %v", err)
		}
		fake.Advance(time.Second)
	}

	page, err := s.OrgAnalytics(ctx, orgID, nil, 10, 0)
	if err != nil {
		t.Fatalf("OrgAnalytics failed: %v", err)
	}
	if page.TotalCount != 4 {
		t.Errorf("total = %d, want 4 (instance + both onboarding identifiers)", page.TotalCount)
	}
	if page.OrgName != "Acme Corp" {
		t.Errorf("org name = %q", page.OrgName)
	}
	for _, event := range page.Events {
		if event.BotIdentifier == fmt.Sprintf("%d", otherInstance) {
			t.Errorf("event from another org leaked: %+v", event)
		}
	}
	if len(page.Events) >= 2 && page.Events[0].CreatedAt.Before(page.Events[1].CreatedAt) {
		t.Error("events not newest-first")
	}
}

func TestOrgAnalytics_EventTypeFilterAndPaging(t *testing.T) {
	s, fake, _ := newTestStore(t)
	ctx := context.Background()

	orgID := createTestOrg(t, s, "acme")
	instanceID := createTestInstance(t, s, orgID, "T1", "general")
	bot := fmt.Sprintf("%d", instanceID)

	for i := 0; i < 5; i++ {
		if _, err := s.RecordAnalyticsEvent(ctx, bot, "answer", "{}"); err != nil {
			t.Fatalf("RecordAnalyticsEvent failed: %v", err)
		}
		fake.Advance(time.Second)
	}
	if _, err := s.RecordAnalyticsEvent(ctx, bot, "feedback", "{}"); err != nil {
		t.Fatalf("RecordAnalyticsEvent failed: %v", err)
	}

	answerType := "answer"
	page, err := s.OrgAnalytics(ctx, orgID, &answerType, 2, 0)
	if err != nil {
		t.Fatalf("OrgAnalytics failed: %v", err)
	}
	if page.TotalCount != 5 {
		t.Errorf("total = %d, want 5", page.TotalCount)
	}
	if len(page.Events) != 2 {
		t.Errorf("page size = %d, want 2", len(page.Events))
	}

	second, err := s.OrgAnalytics(ctx, orgID, &answerType, 2, 4)
	if err != nil {
		t.Fatalf("OrgAnalytics failed: %v", err)
	}
	if len(second.Events) != 1 {
		t.Errorf("last page size = %d, want 1", len(second.Events))
	}
	for _, event := range append(page.Events, second.Events...) {
		if event.EventType != "answer" {
			t.Errorf("filter leaked event type %q", event.EventType)
		}
	}
}
