package model

import "time"

// KVEntry is one row of the per-bot-instance expiring key-value store.
// A nil ExpiresAt means the entry never expires; a non-nil DeletedAt marks a
// soft-deleted row that is retained but treated as absent.
type KVEntry struct {
	BotInstanceID int64      `json:"bot_instance_id"`
	Family        string     `json:"family"`
	Key           string     `json:"key"`
	Value         string     `json:"value"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
