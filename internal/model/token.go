package model

import (
	"slices"
	"time"
)

// InviteToken is a referral/invite token. The first consumer is recorded at
// most once; the consumed-organization set is append-only and deduplicated.
type InviteToken struct {
	Token                   string     `json:"token"`
	IsSingleUse             bool       `json:"is_single_use"`
	BonusAnswers            int64      `json:"bonus_answers"`
	IssuingOrgID            *int64     `json:"issuing_org_id,omitempty"`
	FirstConsumerInstanceID *int64     `json:"first_consumer_instance_id,omitempty"`
	FirstConsumedAt         *time.Time `json:"first_consumed_at,omitempty"`
	ConsumedOrgIDs          []int64    `json:"consumed_org_ids"`
	CreatedAt               time.Time  `json:"created_at"`
}

func (t *InviteToken) Consumed() bool {
	return t.FirstConsumerInstanceID != nil || len(t.ConsumedOrgIDs) > 0
}

func (t *InviteToken) ConsumedBy(orgID int64) bool {
	return slices.Contains(t.ConsumedOrgIDs, orgID)
}

// TokenValidation is the result of validating a token string.
type TokenValidation struct {
	IsValid         bool `json:"is_valid"`
	HasBeenConsumed bool `json:"has_been_consumed"`
	IsSingleUse     bool `json:"is_single_use"`
}

// TokenConsumer summarizes the bot instance that first consumed a token.
type TokenConsumer struct {
	InstanceID     int64  `json:"instance_id" db:"instance_id"`
	OrganizationID int64  `json:"organization_id" db:"organization_id"`
	TeamID         string `json:"team_id" db:"team_id"`
	ChannelName    string `json:"channel_name" db:"channel_name"`
}
