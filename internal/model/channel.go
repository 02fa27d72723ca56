package model

import "time"

// ChannelMapping caches the Slack (team, channel name) <-> channel id
// relation in both directions.
type ChannelMapping struct {
	TeamID      string    `json:"team_id"`
	ChannelName string    `json:"channel_name"`
	ChannelID   string    `json:"channel_id"`
	UpdatedAt   time.Time `json:"updated_at"`
}
