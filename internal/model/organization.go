package model

import "time"

type Organization struct {
	ID                   int64      `json:"id"`
	Name                 string     `json:"name"`
	Industry             *string    `json:"industry,omitempty"`
	StripeCustomerID     *string    `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string    `json:"stripe_subscription_id,omitempty"`
	HasGovernance        bool       `json:"has_governance"`
	DocsRepo             *string    `json:"docs_repo,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// OrganizationUsage is an organization joined with its bot count and one
// month's answer usage.
type OrganizationUsage struct {
	Organization
	BotCount         int64 `json:"bot_count"`
	AnswersUsed      int64 `json:"answers_used"`
	BonusAnswersUsed int64 `json:"bonus_answers_used"`
}

// UsageSortKey selects the ordering of the usage listing.
type UsageSortKey string

const (
	UsageSortID       UsageSortKey = "id"
	UsageSortName     UsageSortKey = "name"
	UsageSortUsage    UsageSortKey = "usage"
	UsageSortBotCount UsageSortKey = "bot_count"
)
