package model

import (
	"encoding/json"
	"time"
)

// AnalyticsEvent is a read-only event row owned by the bot runtime.
type AnalyticsEvent struct {
	ID            int64           `json:"id"`
	BotIdentifier string          `json:"bot_identifier"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
}

// AnalyticsPage is one page of an organization's events.
type AnalyticsPage struct {
	Events     []AnalyticsEvent `json:"events"`
	TotalCount int64            `json:"total_count"`
	OrgName    string           `json:"org_name"`
}
