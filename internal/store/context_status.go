package store

import (
	"context"

	"answergrid.ai/core/internal/model"
)

type contextStatusRow struct {
	URL             string `db:"url"`
	OrganizationID  int64  `db:"organization_id"`
	ChangeType      string `db:"change_type"`
	Status          string `db:"status"`
	Title           string `db:"title"`
	Description     string `db:"description"`
	SourceUpdatedAt *int64 `db:"source_updated_at"`
	CreatedAt       int64  `db:"created_at"`
	UpdatedAt       int64  `db:"updated_at"`
}

func (r contextStatusRow) toModel() *model.ContextStatus {
	return &model.ContextStatus{
		URL:             r.URL,
		OrganizationID:  r.OrganizationID,
		ChangeType:      r.ChangeType,
		Status:          r.Status,
		Title:           r.Title,
		Description:     r.Description,
		SourceUpdatedAt: timePtr(r.SourceUpdatedAt),
		CreatedAt:       fromMillis(r.CreatedAt),
		UpdatedAt:       fromMillis(r.UpdatedAt),
	}
}

// UpsertContextStatus records or refreshes a tracked external change keyed by
// its URL. CreatedAt of an existing row is preserved.
func (s *Store) UpsertContextStatus(ctx context.Context, status model.ContextStatus) error {
	now := s.nowMillis()
	query := s.db.Conn().Rebind(`
		INSERT INTO context_status (url, organization_id, change_type, status, title, description, source_updated_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (url) DO UPDATE SET
			organization_id = excluded.organization_id,
			change_type = excluded.change_type,
			status = excluded.status,
			title = excluded.title,
			description = excluded.description,
			source_updated_at = excluded.source_updated_at,
			updated_at = excluded.updated_at`)
	_, err := s.db.Conn().ExecContext(ctx, query,
		status.URL, status.OrganizationID, status.ChangeType, status.Status,
		status.Title, status.Description, millisPtr(status.SourceUpdatedAt), now, now)
	return err
}

type ContextStatusFilter struct {
	ChangeType string
	Status     string
	Limit      int
	Offset     int
}

// ListContextStatuses returns an organization's tracked changes newest-first,
// optionally narrowed by change type and status.
func (s *Store) ListContextStatuses(ctx context.Context, orgID int64, filter ContextStatusFilter) ([]model.ContextStatus, error) {
	query := "SELECT * FROM context_status WHERE organization_id = ?"
	args := []any{orgID}
	if filter.ChangeType != "" {
		query += " AND change_type = ?"
		args = append(args, filter.ChangeType)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += " ORDER BY updated_at DESC, url LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []contextStatusRow
	if err := s.db.Conn().SelectContext(ctx, &rows, s.db.Conn().Rebind(query), args...); err != nil {
		return nil, err
	}

	statuses := make([]model.ContextStatus, len(rows))
	for i, row := range rows {
		statuses[i] = *row.toModel()
	}
	return statuses, nil
}
