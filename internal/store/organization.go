package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"answergrid.ai/core/common/id"
	"answergrid.ai/core/internal/model"
)

type organizationRow struct {
	ID                   int64   `db:"id"`
	Name                 string  `db:"name"`
	Industry             *string `db:"industry"`
	StripeCustomerID     *string `db:"stripe_customer_id"`
	StripeSubscriptionID *string `db:"stripe_subscription_id"`
	HasGovernance        bool    `db:"has_governance"`
	DocsRepo             *string `db:"docs_repo"`
	CreatedAt            int64   `db:"created_at"`
	UpdatedAt            int64   `db:"updated_at"`
}

func (r organizationRow) toModel() *model.Organization {
	return &model.Organization{
		ID:                   r.ID,
		Name:                 r.Name,
		Industry:             r.Industry,
		StripeCustomerID:     r.StripeCustomerID,
		StripeSubscriptionID: r.StripeSubscriptionID,
		HasGovernance:        r.HasGovernance,
		DocsRepo:             r.DocsRepo,
		CreatedAt:            fromMillis(r.CreatedAt),
		UpdatedAt:            fromMillis(r.UpdatedAt),
	}
}

// CreateOrganization inserts a new organization and returns its id.
// Organizations are never physically deleted by this layer.
func (s *Store) CreateOrganization(ctx context.Context, name string) (int64, error) {
	orgID := id.New()
	now := s.nowMillis()

	query := s.db.Conn().Rebind(`
		INSERT INTO organizations (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)`)
	if _, err := s.db.Conn().ExecContext(ctx, query, orgID, name, now, now); err != nil {
		return 0, fmt.Errorf("creating organization: %w", err)
	}
	return orgID, nil
}

func (s *Store) GetOrganization(ctx context.Context, orgID int64) (*model.Organization, error) {
	var row organizationRow
	query := s.db.Conn().Rebind("SELECT * FROM organizations WHERE id = ?")
	if err := s.db.Conn().GetContext(ctx, &row, query, orgID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toModel(), nil
}

func (s *Store) ListOrganizations(ctx context.Context) ([]model.Organization, error) {
	var rows []organizationRow
	if err := s.db.Conn().SelectContext(ctx, &rows, "SELECT * FROM organizations ORDER BY name"); err != nil {
		return nil, err
	}
	orgs := make([]model.Organization, len(rows))
	for i, row := range rows {
		orgs[i] = *row.toModel()
	}
	return orgs, nil
}

type organizationUsageRow struct {
	organizationRow
	BotCount         int64 `db:"bot_count"`
	AnswersUsed      int64 `db:"answers_used"`
	BonusAnswersUsed int64 `db:"bonus_answers_used"`
}

// ListOrganizationsWithUsage joins each organization with its bot count and
// the given month's answer usage.
func (s *Store) ListOrganizationsWithUsage(ctx context.Context, month, year int, sortBy model.UsageSortKey, limit, offset int) ([]model.OrganizationUsage, error) {
	orderBy, ok := usageSortClauses[sortBy]
	if !ok {
		orderBy = usageSortClauses[model.UsageSortID]
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := s.db.Conn().Rebind(`
		SELECT o.*,
		       COALESCE(b.bot_count, 0) AS bot_count,
		       COALESCE(u.answers_used, 0) AS answers_used,
		       COALESCE(u.bonus_answers_used, 0) AS bonus_answers_used
		FROM organizations o
		LEFT JOIN (
			SELECT organization_id, COUNT(*) AS bot_count
			FROM bot_instances
			GROUP BY organization_id
		) b ON b.organization_id = o.id
		LEFT JOIN answer_usage u
			ON u.organization_id = o.id AND u.month = ? AND u.year = ?
		ORDER BY ` + orderBy + `
		LIMIT ? OFFSET ?`)

	var rows []organizationUsageRow
	if err := s.db.Conn().SelectContext(ctx, &rows, query, month, year, limit, offset); err != nil {
		return nil, err
	}

	result := make([]model.OrganizationUsage, len(rows))
	for i, row := range rows {
		result[i] = model.OrganizationUsage{
			Organization:     *row.organizationRow.toModel(),
			BotCount:         row.BotCount,
			AnswersUsed:      row.AnswersUsed,
			BonusAnswersUsed: row.BonusAnswersUsed,
		}
	}
	return result, nil
}

// Sort keys are mapped through a fixed whitelist; nothing caller-supplied
// reaches the query text.
var usageSortClauses = map[model.UsageSortKey]string{
	model.UsageSortID:       "o.id",
	model.UsageSortName:     "o.name",
	model.UsageSortUsage:    "answers_used DESC, o.id",
	model.UsageSortBotCount: "bot_count DESC, o.id",
}

// UpdateOrganizationIndustry fails with ErrNotFound if the organization does
// not exist.
func (s *Store) UpdateOrganizationIndustry(ctx context.Context, orgID int64, industry string) error {
	query := s.db.Conn().Rebind("UPDATE organizations SET industry = ?, updated_at = ? WHERE id = ?")
	return s.execExpectingRow(ctx, query, industry, s.nowMillis(), orgID)
}

// UpdateOrganizationBilling records the Stripe customer and subscription ids.
func (s *Store) UpdateOrganizationBilling(ctx context.Context, orgID int64, customerID, subscriptionID string) error {
	query := s.db.Conn().Rebind(`
		UPDATE organizations
		SET stripe_customer_id = ?, stripe_subscription_id = ?, updated_at = ?
		WHERE id = ?`)
	return s.execExpectingRow(ctx, query, customerID, subscriptionID, s.nowMillis(), orgID)
}

func (s *Store) SetOrganizationGovernance(ctx context.Context, orgID int64, enabled bool) error {
	query := s.db.Conn().Rebind("UPDATE organizations SET has_governance = ?, updated_at = ? WHERE id = ?")
	return s.execExpectingRow(ctx, query, enabled, s.nowMillis(), orgID)
}

func (s *Store) LinkOrganizationDocsRepo(ctx context.Context, orgID int64, repo string) error {
	query := s.db.Conn().Rebind("UPDATE organizations SET docs_repo = ?, updated_at = ? WHERE id = ?")
	return s.execExpectingRow(ctx, query, repo, s.nowMillis(), orgID)
}

func (s *Store) execExpectingRow(ctx context.Context, query string, args ...any) error {
	res, err := s.db.Conn().ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
