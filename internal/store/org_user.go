package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"answergrid.ai/core/common/id"
	"answergrid.ai/core/internal/model"
)

type orgUserRow struct {
	ID             int64   `db:"id"`
	SlackUserID    string  `db:"slack_user_id"`
	Email          *string `db:"email"`
	OrganizationID int64   `db:"organization_id"`
	IsAdmin        bool    `db:"is_admin"`
	DisplayName    *string `db:"display_name"`
	CreatedAt      int64   `db:"created_at"`
	UpdatedAt      int64   `db:"updated_at"`
}

func (r orgUserRow) toModel() *model.OrgUser {
	return &model.OrgUser{
		ID:             r.ID,
		SlackUserID:    r.SlackUserID,
		Email:          r.Email,
		OrganizationID: r.OrganizationID,
		IsAdmin:        r.IsAdmin,
		DisplayName:    r.DisplayName,
		CreatedAt:      fromMillis(r.CreatedAt),
		UpdatedAt:      fromMillis(r.UpdatedAt),
	}
}

type AddOrgUserParams struct {
	SlackUserID    string
	OrganizationID int64
	Email          *string
	IsAdmin        bool
	DisplayName    *string
}

// AddOrgUser registers a Slack user within an organization. Adding a user
// that already exists returns the existing row unchanged; the membership key
// is (slack user, organization).
func (s *Store) AddOrgUser(ctx context.Context, params AddOrgUserParams) (*model.OrgUser, error) {
	if existing, err := s.GetOrgUser(ctx, params.SlackUserID, params.OrganizationID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := s.nowMillis()
	insert := s.db.Conn().Rebind(`
		INSERT INTO org_users (id, slack_user_id, email, organization_id, is_admin, display_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (slack_user_id, organization_id) DO NOTHING`)
	if _, err := s.db.Conn().ExecContext(ctx, insert,
		id.New(), params.SlackUserID, params.Email, params.OrganizationID,
		params.IsAdmin, params.DisplayName, now, now); err != nil {
		return nil, fmt.Errorf("adding org user: %w", err)
	}

	// The conflict-tolerant insert makes the stored row authoritative even
	// when a concurrent add won the race.
	return s.GetOrgUser(ctx, params.SlackUserID, params.OrganizationID)
}

// SetOrgUserAdmin flips the admin flag; ErrNotFound for unknown membership.
func (s *Store) SetOrgUserAdmin(ctx context.Context, slackUserID string, orgID int64, isAdmin bool) error {
	query := s.db.Conn().Rebind(`
		UPDATE org_users SET is_admin = ?, updated_at = ?
		WHERE slack_user_id = ? AND organization_id = ?`)
	return s.execExpectingRow(ctx, query, isAdmin, s.nowMillis(), slackUserID, orgID)
}

func (s *Store) GetOrgUser(ctx context.Context, slackUserID string, orgID int64) (*model.OrgUser, error) {
	return s.orgUserQuery(ctx,
		"SELECT * FROM org_users WHERE slack_user_id = ? AND organization_id = ?",
		slackUserID, orgID)
}

func (s *Store) GetOrgUserByID(ctx context.Context, userID int64) (*model.OrgUser, error) {
	return s.orgUserQuery(ctx, "SELECT * FROM org_users WHERE id = ?", userID)
}

// GetOrgUserByEmail returns the most recently updated membership carrying the
// email within the organization.
func (s *Store) GetOrgUserByEmail(ctx context.Context, email string, orgID int64) (*model.OrgUser, error) {
	return s.orgUserQuery(ctx,
		"SELECT * FROM org_users WHERE email = ? AND organization_id = ? ORDER BY updated_at DESC, id DESC LIMIT 1",
		email, orgID)
}

func (s *Store) orgUserQuery(ctx context.Context, query string, args ...any) (*model.OrgUser, error) {
	var row orgUserRow
	if err := s.db.Conn().GetContext(ctx, &row, s.db.Conn().Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toModel(), nil
}

// ListOrgUsers pages an organization's members newest-first by id. A zero
// cursor starts from the top.
func (s *Store) ListOrgUsers(ctx context.Context, orgID int64, cursor int64, limit int) ([]model.OrgUser, error) {
	if limit <= 0 {
		limit = 100
	}

	query := "SELECT * FROM org_users WHERE organization_id = ?"
	args := []any{orgID}
	if cursor > 0 {
		query += " AND id < ?"
		args = append(args, cursor)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	var rows []orgUserRow
	if err := s.db.Conn().SelectContext(ctx, &rows, s.db.Conn().Rebind(query), args...); err != nil {
		return nil, err
	}

	users := make([]model.OrgUser, len(rows))
	for i, row := range rows {
		users[i] = *row.toModel()
	}
	return users, nil
}
