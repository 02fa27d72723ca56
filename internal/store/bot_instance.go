package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"answergrid.ai/core/common/id"
	"answergrid.ai/core/common/logger"
	"answergrid.ai/core/internal/model"
)

type botInstanceRow struct {
	ID                int64   `db:"id"`
	OrganizationID    int64   `db:"organization_id"`
	ChannelName       string  `db:"channel_name"`
	GovernanceChannel string  `db:"governance_channel"`
	ContactEmail      string  `db:"contact_email"`
	TeamID            string  `db:"team_id"`
	InstanceType      string  `db:"instance_type"`
	DocsRepo          *string `db:"docs_repo"`
	CreatedAt         int64   `db:"created_at"`
	UpdatedAt         int64   `db:"updated_at"`
}

func (r botInstanceRow) toModel() *model.BotInstance {
	return &model.BotInstance{
		ID:                r.ID,
		OrganizationID:    r.OrganizationID,
		ChannelName:       r.ChannelName,
		GovernanceChannel: r.GovernanceChannel,
		ContactEmail:      r.ContactEmail,
		TeamID:            r.TeamID,
		InstanceType:      model.InstanceType(r.InstanceType),
		DocsRepo:          r.DocsRepo,
		CreatedAt:         fromMillis(r.CreatedAt),
		UpdatedAt:         fromMillis(r.UpdatedAt),
	}
}

type CreateBotInstanceParams struct {
	OrganizationID    int64
	ChannelName       string
	GovernanceChannel string
	ContactEmail      string
	TeamID            string
	InstanceType      model.InstanceType
	DocsRepo          *string

	// ICP and ICPDataTypes populate the side record; it is only inserted
	// when ICP text is supplied.
	ICP          string
	ICPDataTypes []string
}

// CreateBotInstance inserts a bot instance and, when ICP data is supplied,
// its ICP side record, atomically.
func (s *Store) CreateBotInstance(ctx context.Context, params CreateBotInstanceParams) (int64, error) {
	instanceID := id.New()
	now := s.nowMillis()
	instanceType := params.InstanceType
	if instanceType == "" {
		instanceType = model.InstanceTypeStandard
	}

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		insert := tx.Rebind(`
			INSERT INTO bot_instances
				(id, organization_id, channel_name, governance_channel, contact_email, team_id, instance_type, docs_repo, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		_, err := tx.ExecContext(ctx, insert,
			instanceID, params.OrganizationID, normalizeChannel(params.ChannelName),
			normalizeChannel(params.GovernanceChannel), params.ContactEmail, params.TeamID,
			string(instanceType), params.DocsRepo, now, now)
		if err != nil {
			return fmt.Errorf("creating bot instance: %w", err)
		}

		if params.ICP == "" {
			return nil
		}
		return upsertICP(ctx, tx, instanceID, params.ICP, params.ICPDataTypes, now)
	})
	if err != nil {
		return 0, err
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		OrgID:         logger.Ptr(params.OrganizationID),
		BotInstanceID: logger.Ptr(instanceID),
		TeamID:        logger.Ptr(params.TeamID),
		Channel:       logger.Ptr(normalizeChannel(params.ChannelName)),
		Component:     "core.store.instances",
	})
	slog.InfoContext(ctx, "bot instance created")
	return instanceID, nil
}

// DeleteBotInstance removes the instance addressed by (org, team, channel).
// The channel match tolerates the legacy "#"-prefixed spelling on either
// side. Deleting an unknown instance is a no-op.
func (s *Store) DeleteBotInstance(ctx context.Context, orgID int64, teamID, channel string) error {
	norm := normalizeChannel(channel)
	query := s.db.Conn().Rebind(`
		DELETE FROM bot_instances
		WHERE organization_id = ? AND team_id = ? AND channel_name IN (?, ?)`)
	_, err := s.db.Conn().ExecContext(ctx, query, orgID, teamID, norm, "#"+norm)
	return err
}

// UpdateICP upserts the ICP side record of a bot instance.
func (s *Store) UpdateICP(ctx context.Context, botInstanceID int64, icp string, dataTypes []string) error {
	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		return upsertICP(ctx, tx, botInstanceID, icp, dataTypes, s.nowMillis())
	})
}

func upsertICP(ctx context.Context, tx *sqlx.Tx, botInstanceID int64, icp string, dataTypes []string, nowMillis int64) error {
	if dataTypes == nil {
		dataTypes = []string{}
	}
	encoded, err := json.Marshal(dataTypes)
	if err != nil {
		return fmt.Errorf("encoding icp data types: %w", err)
	}

	query := tx.Rebind(`
		INSERT INTO bot_instance_icp (bot_instance_id, icp, data_types, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (bot_instance_id) DO UPDATE SET
			icp = excluded.icp,
			data_types = excluded.data_types,
			updated_at = excluded.updated_at`)
	if _, err := tx.ExecContext(ctx, query, botInstanceID, icp, string(encoded), nowMillis); err != nil {
		return fmt.Errorf("upserting icp: %w", err)
	}
	return nil
}

// GetBotInstance fetches one instance by id.
func (s *Store) GetBotInstance(ctx context.Context, instanceID int64) (*model.BotInstance, error) {
	var row botInstanceRow
	query := s.db.Conn().Rebind("SELECT * FROM bot_instances WHERE id = ?")
	if err := s.db.Conn().GetContext(ctx, &row, query, instanceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toModel(), nil
}
