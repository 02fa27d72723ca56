package model

import "time"

// PlanLimits is the cached snapshot of an organization's billing plan
// limits. Reads are subject to a freshness window; a stale row is treated as
// absent so callers re-fetch from the billing system.
type PlanLimits struct {
	OrganizationID     int64     `json:"organization_id"`
	AnswerQuota        int64     `json:"answer_quota"`
	AllowOverage       bool      `json:"allow_overage"`
	ChannelQuota       int64     `json:"channel_quota"`
	AllowExtraChannels bool      `json:"allow_extra_channels"`
	UpdatedAt          time.Time `json:"updated_at"`
}
