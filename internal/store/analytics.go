package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"answergrid.ai/core/common/id"
	"answergrid.ai/core/internal/model"
)

type analyticsEventRow struct {
	ID            int64  `db:"id"`
	BotIdentifier string `db:"bot_identifier"`
	EventType     string `db:"event_type"`
	Payload       string `db:"payload"`
	CreatedAt     int64  `db:"created_at"`
}

func (r analyticsEventRow) toModel() model.AnalyticsEvent {
	return model.AnalyticsEvent{
		ID:            r.ID,
		BotIdentifier: r.BotIdentifier,
		EventType:     r.EventType,
		Payload:       []byte(r.Payload),
		CreatedAt:     fromMillis(r.CreatedAt),
	}
}

// OrgAnalytics pages the analytics events of an organization newest-first.
// Events are written by the bot runtime keyed by free-form bot identifiers,
// so the match set is assembled here: the string forms of the org's bot
// instance ids plus the two legacy onboarding identifiers, one derived from
// the org id and one from the sanitized org name.
func (s *Store) OrgAnalytics(ctx context.Context, orgID int64, eventType *string, limit, offset int) (*model.AnalyticsPage, error) {
	org, err := s.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	var instanceIDs []int64
	idQuery := s.db.Conn().Rebind("SELECT id FROM bot_instances WHERE organization_id = ?")
	if err := s.db.Conn().SelectContext(ctx, &instanceIDs, idQuery, orgID); err != nil {
		return nil, err
	}

	identifiers := make([]string, 0, len(instanceIDs)+2)
	for _, instanceID := range instanceIDs {
		identifiers = append(identifiers, fmt.Sprintf("%d", instanceID))
	}
	identifiers = append(identifiers,
		fmt.Sprintf("onboarding-%d", orgID),
		"onboarding-"+sanitizeIdentifier(org.Name))

	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	where := "WHERE LOWER(bot_identifier) IN (?)"
	args := []any{lowered(identifiers)}
	if eventType != nil && *eventType != "" {
		where += " AND event_type = ?"
		args = append(args, *eventType)
	}

	countQuery, countArgs, err := sqlx.In("SELECT COUNT(*) FROM analytics_events "+where, args...)
	if err != nil {
		return nil, err
	}
	var total int64
	if err := s.db.Conn().GetContext(ctx, &total, s.db.Conn().Rebind(countQuery), countArgs...); err != nil {
		return nil, err
	}

	pageQuery, pageArgs, err := sqlx.In(
		"SELECT * FROM analytics_events "+where+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...)
	if err != nil {
		return nil, err
	}
	var rows []analyticsEventRow
	if err := s.db.Conn().SelectContext(ctx, &rows, s.db.Conn().Rebind(pageQuery), pageArgs...); err != nil {
		return nil, err
	}

	events := make([]model.AnalyticsEvent, len(rows))
	for i, row := range rows {
		events[i] = row.toModel()
	}
	return &model.AnalyticsPage{
		Events:     events,
		TotalCount: total,
		OrgName:    org.Name,
	}, nil
}

// RecordAnalyticsEvent appends one event. The write path exists for tests
// and backfills; production events arrive from the bot runtime.
func (s *Store) RecordAnalyticsEvent(ctx context.Context, botIdentifier, eventType, payload string) (int64, error) {
	if payload == "" {
		payload = "{}"
	}
	eventID, err := s.insertAnalyticsEvent(ctx, botIdentifier, eventType, payload)
	if err != nil {
		return 0, fmt.Errorf("recording analytics event: %w", err)
	}
	return eventID, nil
}

func (s *Store) insertAnalyticsEvent(ctx context.Context, botIdentifier, eventType, payload string) (int64, error) {
	if botIdentifier == "" || eventType == "" {
		return 0, errors.New("bot identifier and event type are required")
	}
	eventID := id.New()
	query := s.db.Conn().Rebind(`
		INSERT INTO analytics_events (id, bot_identifier, event_type, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if _, err := s.db.Conn().ExecContext(ctx, query,
		eventID, botIdentifier, eventType, payload, s.nowMillis()); err != nil {
		return 0, err
	}
	return eventID, nil
}

// sanitizeIdentifier mirrors the identifier form the bot runtime derives from
// an organization name: lowercase, every non-alphanumeric run collapsed to a
// single dash.
func sanitizeIdentifier(name string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func lowered(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}
