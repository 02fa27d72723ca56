package model

import "time"

type InstanceType string

const (
	InstanceTypeStandard    InstanceType = "standard"
	InstanceTypeSpecialized InstanceType = "specialized"
)

type BotInstance struct {
	ID                int64        `json:"id"`
	OrganizationID    int64        `json:"organization_id"`
	ChannelName       string       `json:"channel_name"`
	GovernanceChannel string       `json:"governance_channel"`
	ContactEmail      string       `json:"contact_email"`
	TeamID            string       `json:"team_id"`
	InstanceType      InstanceType `json:"instance_type"`
	DocsRepo          *string      `json:"docs_repo,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// ICPProfile is the optional ideal-customer-profile side record of a
// specialized bot instance.
type ICPProfile struct {
	BotInstanceID int64     `json:"bot_instance_id"`
	ICP           string    `json:"icp"`
	DataTypes     []string  `json:"data_types"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// InstanceKey addresses one bot instance within a workspace.
type InstanceKey struct {
	TeamID  string `json:"team_id"`
	Channel string `json:"channel"`
}
