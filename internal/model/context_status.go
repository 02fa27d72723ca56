package model

import "time"

// ContextStatus tracks an external change (PR, doc edit, schema change)
// keyed by its unique URL. Upserts preserve the original CreatedAt.
type ContextStatus struct {
	URL             string     `json:"url"`
	OrganizationID  int64      `json:"organization_id"`
	ChangeType      string     `json:"change_type"`
	Status          string     `json:"status"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	SourceUpdatedAt *time.Time `json:"source_updated_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
