package model

import "time"

type OrgUser struct {
	ID             int64     `json:"id"`
	SlackUserID    string    `json:"slack_user_id"`
	Email          *string   `json:"email,omitempty"`
	OrganizationID int64     `json:"organization_id"`
	IsAdmin        bool      `json:"is_admin"`
	DisplayName    *string   `json:"display_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
