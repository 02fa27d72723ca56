package model

import (
	"errors"
	"time"
)

// SecretURL is the tagged representation of a connection's URL: exactly one
// of the legacy plaintext template or the envelope-encrypted ciphertext is
// set.
type SecretURL struct {
	Template   string `json:"template,omitempty"`
	Ciphertext string `json:"-"`
}

func (u SecretURL) Encrypted() bool {
	return u.Ciphertext != ""
}

func (u SecretURL) Validate() error {
	if (u.Template == "") == (u.Ciphertext == "") {
		return errors.New("connection url must set exactly one of template or ciphertext")
	}
	return nil
}

type Connection struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	URL            SecretURL `json:"url"`
	Dialect        *string   `json:"dialect,omitempty"`
	DocsRepo       *string   `json:"docs_repo,omitempty"`
	InitCommands   []string  `json:"init_commands,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ConnectionSummary is a connection listed with the channels of its linked
// bot instances and the dialect derived from the URL when no override is set.
type ConnectionSummary struct {
	Name     string   `json:"name"`
	Dialect  string   `json:"dialect"`
	DocsRepo *string  `json:"docs_repo,omitempty"`
	Channels []string `json:"channels"`
}

// ConnectionProfile is a fully resolved connection handed to the bot
// runtime: decrypted/rendered URL, rendered init commands and dialect.
type ConnectionProfile struct {
	URL          string   `json:"url"`
	InitCommands []string `json:"init_commands,omitempty"`
	Dialect      string   `json:"dialect"`
}

// BotConfig is the per-instance configuration assembled at bot load time.
type BotConfig struct {
	BotInstanceID     int64                        `json:"bot_instance_id"`
	OrganizationID    int64                        `json:"organization_id"`
	OrganizationName  string                       `json:"organization_name"`
	TeamID            string                       `json:"team_id"`
	Channel           string                       `json:"channel"`
	GovernanceChannel string                       `json:"governance_channel"`
	ContactEmail      string                       `json:"contact_email"`
	InstanceType      InstanceType                 `json:"instance_type"`
	HasGovernance     bool                         `json:"has_governance"`
	ICP               *ICPProfile                  `json:"icp,omitempty"`
	Connections       map[string]ConnectionProfile `json:"connections"`
}
