package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"answergrid.ai/core/internal/model"
)

type planLimitsRow struct {
	OrganizationID     int64 `db:"organization_id"`
	AnswerQuota        int64 `db:"answer_quota"`
	AllowOverage       bool  `db:"allow_overage"`
	ChannelQuota       int64 `db:"channel_quota"`
	AllowExtraChannels bool  `db:"allow_extra_channels"`
	UpdatedAt          int64 `db:"updated_at"`
}

func (r planLimitsRow) toModel() *model.PlanLimits {
	return &model.PlanLimits{
		OrganizationID:     r.OrganizationID,
		AnswerQuota:        r.AnswerQuota,
		AllowOverage:       r.AllowOverage,
		ChannelQuota:       r.ChannelQuota,
		AllowExtraChannels: r.AllowExtraChannels,
		UpdatedAt:          fromMillis(r.UpdatedAt),
	}
}

// GetPlanLimits returns the cached plan limits of an organization. A row
// older than the configured freshness window is treated as absent, so the
// caller re-fetches from the billing system and writes the row back.
func (s *Store) GetPlanLimits(ctx context.Context, orgID int64) (*model.PlanLimits, error) {
	var row planLimitsRow
	query := s.db.Conn().Rebind("SELECT * FROM plan_limits WHERE organization_id = ?")
	if err := s.db.Conn().GetContext(ctx, &row, query, orgID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if s.now().Sub(fromMillis(row.UpdatedAt)) > s.planCacheTTL {
		return nil, ErrNotFound
	}
	return row.toModel(), nil
}

// SetPlanLimits writes the plan-limits snapshot, resetting its freshness
// window.
func (s *Store) SetPlanLimits(ctx context.Context, limits model.PlanLimits) error {
	query := s.db.Conn().Rebind(`
		INSERT INTO plan_limits (organization_id, answer_quota, allow_overage, channel_quota, allow_extra_channels, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (organization_id) DO UPDATE SET
			answer_quota = excluded.answer_quota,
			allow_overage = excluded.allow_overage,
			channel_quota = excluded.channel_quota,
			allow_extra_channels = excluded.allow_extra_channels,
			updated_at = excluded.updated_at`)
	_, err := s.db.Conn().ExecContext(ctx, query,
		limits.OrganizationID, limits.AnswerQuota, limits.AllowOverage,
		limits.ChannelQuota, limits.AllowExtraChannels, s.nowMillis())
	if err != nil {
		return fmt.Errorf("caching plan limits: %w", err)
	}
	return nil
}
