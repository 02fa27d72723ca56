package model

import "time"

type OnboardingState struct {
	ID               int64          `json:"id"`
	Email            string         `json:"email"`
	OrganizationName string         `json:"organization_name"`
	OrganizationID   *int64         `json:"organization_id,omitempty"`
	Background       map[string]any `json:"background"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}
