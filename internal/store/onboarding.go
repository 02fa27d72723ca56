package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"answergrid.ai/core/common/id"
	"answergrid.ai/core/internal/model"
)

type onboardingRow struct {
	ID               int64  `db:"id"`
	Email            string `db:"email"`
	OrganizationName string `db:"organization_name"`
	OrganizationID   *int64 `db:"organization_id"`
	Background       string `db:"background"`
	CreatedAt        int64  `db:"created_at"`
	UpdatedAt        int64  `db:"updated_at"`
}

func (r onboardingRow) toModel() (*model.OnboardingState, error) {
	background := map[string]any{}
	if err := json.Unmarshal([]byte(r.Background), &background); err != nil {
		return nil, fmt.Errorf("decoding onboarding background %d: %w", r.ID, err)
	}
	return &model.OnboardingState{
		ID:               r.ID,
		Email:            r.Email,
		OrganizationName: r.OrganizationName,
		OrganizationID:   r.OrganizationID,
		Background:       background,
		CreatedAt:        fromMillis(r.CreatedAt),
		UpdatedAt:        fromMillis(r.UpdatedAt),
	}, nil
}

// CreateOnboardingState records a new onboarding attempt and returns its id.
// Repeated attempts by the same email are separate rows; lookups return the
// most recent.
func (s *Store) CreateOnboardingState(ctx context.Context, state model.OnboardingState) (int64, error) {
	stateID := id.New()
	now := s.nowMillis()

	background := state.Background
	if background == nil {
		background = map[string]any{}
	}
	encoded, err := json.Marshal(background)
	if err != nil {
		return 0, fmt.Errorf("encoding onboarding background: %w", err)
	}

	query := s.db.Conn().Rebind(`
		INSERT INTO onboarding_state (id, email, organization_name, organization_id, background, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.Conn().ExecContext(ctx, query,
		stateID, state.Email, state.OrganizationName, state.OrganizationID,
		string(encoded), now, now); err != nil {
		return 0, fmt.Errorf("creating onboarding state: %w", err)
	}
	return stateID, nil
}

// UpdateOnboardingState rewrites an existing row addressed by state.ID.
// ErrNotFound when the row does not exist.
func (s *Store) UpdateOnboardingState(ctx context.Context, state model.OnboardingState) error {
	background := state.Background
	if background == nil {
		background = map[string]any{}
	}
	encoded, err := json.Marshal(background)
	if err != nil {
		return fmt.Errorf("encoding onboarding background: %w", err)
	}

	query := s.db.Conn().Rebind(`
		UPDATE onboarding_state
		SET email = ?, organization_name = ?, organization_id = ?, background = ?, updated_at = ?
		WHERE id = ?`)
	return s.execExpectingRow(ctx, query,
		state.Email, state.OrganizationName, state.OrganizationID,
		string(encoded), s.nowMillis(), state.ID)
}

func (s *Store) GetOnboardingState(ctx context.Context, stateID int64) (*model.OnboardingState, error) {
	return s.onboardingQuery(ctx, "SELECT * FROM onboarding_state WHERE id = ?", stateID)
}

// GetOnboardingStateByEmailOrg returns the most recent attempt for an
// (email, organization name) pair.
func (s *Store) GetOnboardingStateByEmailOrg(ctx context.Context, email, orgName string) (*model.OnboardingState, error) {
	return s.onboardingQuery(ctx,
		"SELECT * FROM onboarding_state WHERE email = ? AND organization_name = ? ORDER BY id DESC LIMIT 1",
		email, orgName)
}

// GetOnboardingStateByOrgID returns the most recent attempt linked to a
// created organization.
func (s *Store) GetOnboardingStateByOrgID(ctx context.Context, orgID int64) (*model.OnboardingState, error) {
	return s.onboardingQuery(ctx,
		"SELECT * FROM onboarding_state WHERE organization_id = ? ORDER BY id DESC LIMIT 1",
		orgID)
}

func (s *Store) onboardingQuery(ctx context.Context, query string, args ...any) (*model.OnboardingState, error) {
	var row onboardingRow
	if err := s.db.Conn().GetContext(ctx, &row, s.db.Conn().Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toModel()
}

// ListOnboardingStates pages through attempts newest-first. A zero cursor
// starts from the top; pass the last returned id to continue.
func (s *Store) ListOnboardingStates(ctx context.Context, cursor int64, limit int) ([]model.OnboardingState, error) {
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT * FROM onboarding_state"
	args := []any{}
	if cursor > 0 {
		query += " WHERE id < ?"
		args = append(args, cursor)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	var rows []onboardingRow
	if err := s.db.Conn().SelectContext(ctx, &rows, s.db.Conn().Rebind(query), args...); err != nil {
		return nil, err
	}

	states := make([]model.OnboardingState, len(rows))
	for i, row := range rows {
		state, err := row.toModel()
		if err != nil {
			return nil, err
		}
		states[i] = *state
	}
	return states, nil
}
