package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"

	"answergrid.ai/core/internal/model"
)

type inviteTokenRow struct {
	Token                   string `db:"token"`
	IsSingleUse             bool   `db:"is_single_use"`
	BonusAnswers            int64  `db:"bonus_answers"`
	IssuingOrganizationID   *int64 `db:"issuing_organization_id"`
	FirstConsumerInstanceID *int64 `db:"first_consumer_instance_id"`
	FirstConsumedAt         *int64 `db:"first_consumed_at"`
	ConsumedOrgIDs          string `db:"consumed_org_ids"`
	CreatedAt               int64  `db:"created_at"`
}

func (r inviteTokenRow) toModel() (*model.InviteToken, error) {
	var consumed []int64
	if err := json.Unmarshal([]byte(r.ConsumedOrgIDs), &consumed); err != nil {
		return nil, fmt.Errorf("decoding consumed org ids for token %q: %w", r.Token, err)
	}
	return &model.InviteToken{
		Token:                   r.Token,
		IsSingleUse:             r.IsSingleUse,
		BonusAnswers:            r.BonusAnswers,
		IssuingOrgID:            r.IssuingOrganizationID,
		FirstConsumerInstanceID: r.FirstConsumerInstanceID,
		FirstConsumedAt:         timePtr(r.FirstConsumedAt),
		ConsumedOrgIDs:          consumed,
		CreatedAt:               fromMillis(r.CreatedAt),
	}, nil
}

type CreateInviteTokenParams struct {
	Token        string
	IsSingleUse  bool
	BonusAnswers int64
	IssuingOrgID *int64
}

func (s *Store) CreateInviteToken(ctx context.Context, params CreateInviteTokenParams) error {
	if params.Token == "" {
		return fmt.Errorf("token string is required")
	}
	query := s.db.Conn().Rebind(`
		INSERT INTO invite_tokens (token, is_single_use, bonus_answers, issuing_organization_id, consumed_org_ids, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := s.db.Conn().ExecContext(ctx, query,
		params.Token, params.IsSingleUse, params.BonusAnswers,
		params.IssuingOrgID, "[]", s.nowMillis())
	if err != nil {
		return fmt.Errorf("creating invite token: %w", err)
	}
	return nil
}

// ValidateToken reports whether a token string is known, consumed and
// single-use. An unknown token is not an error: it validates as
// {IsValid: false}.
func (s *Store) ValidateToken(ctx context.Context, token string) (model.TokenValidation, error) {
	var row inviteTokenRow
	query := s.db.Conn().Rebind("SELECT * FROM invite_tokens WHERE token = ?")
	if err := s.db.Conn().GetContext(ctx, &row, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.TokenValidation{}, nil
		}
		return model.TokenValidation{}, err
	}
	tok, err := row.toModel()
	if err != nil {
		return model.TokenValidation{}, err
	}
	return model.TokenValidation{
		IsValid:         true,
		HasBeenConsumed: tok.Consumed(),
		IsSingleUse:     tok.IsSingleUse,
	}, nil
}

// MarkTokenConsumed records that the bot instance's organization consumed a
// token. The first consumer is set at most once; the consumed-organization
// set is append-only and deduplicated. Unknown tokens and unknown instances
// are silent no-ops, by contract with the Slack-side caller that fires this
// after the fact. consumedAt overrides the first-consumption timestamp when
// non-nil; later consumers never move it.
func (s *Store) MarkTokenConsumed(ctx context.Context, token string, botInstanceID int64, consumedAt *time.Time) error {
	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.db.Dialect().AcquireKeyLock(ctx, tx, "invite_token:"+token); err != nil {
			return err
		}

		var row inviteTokenRow
		query := tx.Rebind("SELECT * FROM invite_tokens WHERE token = ?" + s.db.Dialect().RowLock())
		if err := tx.GetContext(ctx, &row, query, token); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				slog.WarnContext(ctx, "ignoring consumption of unknown token", "bot_instance_id", botInstanceID)
				return nil
			}
			return err
		}
		tok, err := row.toModel()
		if err != nil {
			return err
		}

		var orgID int64
		orgQuery := tx.Rebind("SELECT organization_id FROM bot_instances WHERE id = ?")
		if err := tx.GetContext(ctx, &orgID, orgQuery, botInstanceID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				slog.WarnContext(ctx, "ignoring token consumption by unknown instance",
					"token", token, "bot_instance_id", botInstanceID)
				return nil
			}
			return err
		}

		firstConsumer := tok.FirstConsumerInstanceID
		firstConsumedAt := millisPtr(tok.FirstConsumedAt)
		if firstConsumer == nil {
			firstConsumer = &botInstanceID
			if consumedAt != nil {
				firstConsumedAt = millisPtr(consumedAt)
			} else {
				now := s.nowMillis()
				firstConsumedAt = &now
			}
		}

		consumed := tok.ConsumedOrgIDs
		if !slices.Contains(consumed, orgID) {
			consumed = append(consumed, orgID)
		}
		encoded, err := json.Marshal(consumed)
		if err != nil {
			return fmt.Errorf("encoding consumed org ids: %w", err)
		}

		update := tx.Rebind(`
			UPDATE invite_tokens
			SET first_consumer_instance_id = ?, first_consumed_at = ?, consumed_org_ids = ?
			WHERE token = ?`)
		if _, err := tx.ExecContext(ctx, update, firstConsumer, firstConsumedAt, string(encoded), token); err != nil {
			return fmt.Errorf("marking token consumed: %w", err)
		}
		return nil
	})
}

// TokenConsumer returns the bot instance that first consumed a token, or
// ErrNotFound when the token is unknown or unconsumed.
func (s *Store) TokenConsumer(ctx context.Context, token string) (*model.TokenConsumer, error) {
	var consumer model.TokenConsumer
	query := s.db.Conn().Rebind(`
		SELECT b.id AS instance_id,
		       b.organization_id AS organization_id,
		       b.team_id AS team_id,
		       b.channel_name AS channel_name
		FROM invite_tokens t
		JOIN bot_instances b ON b.id = t.first_consumer_instance_id
		WHERE t.token = ?`)
	if err := s.db.Conn().GetContext(ctx, &consumer, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &consumer, nil
}

func (s *Store) GetInviteToken(ctx context.Context, token string) (*model.InviteToken, error) {
	var row inviteTokenRow
	query := s.db.Conn().Rebind("SELECT * FROM invite_tokens WHERE token = ?")
	if err := s.db.Conn().GetContext(ctx, &row, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toModel()
}

func (s *Store) ListInviteTokens(ctx context.Context) ([]model.InviteToken, error) {
	var rows []inviteTokenRow
	if err := s.db.Conn().SelectContext(ctx, &rows, "SELECT * FROM invite_tokens ORDER BY created_at DESC, token"); err != nil {
		return nil, err
	}
	tokens := make([]model.InviteToken, len(rows))
	for i, row := range rows {
		tok, err := row.toModel()
		if err != nil {
			return nil, err
		}
		tokens[i] = *tok
	}
	return tokens, nil
}
