package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"answergrid.ai/core/common/id"
	"answergrid.ai/core/common/logger"
	"answergrid.ai/core/internal/model"
	"answergrid.ai/core/internal/secrets"
)

type connectionRow struct {
	ID             int64   `db:"id"`
	OrganizationID int64   `db:"organization_id"`
	Name           string  `db:"name"`
	URLTemplate    *string `db:"url_template"`
	URLCiphertext  *string `db:"url_ciphertext"`
	Dialect        *string `db:"dialect"`
	DocsRepo       *string `db:"docs_repo"`
	InitCommands   string  `db:"init_commands"`
	CreatedAt      int64   `db:"created_at"`
	UpdatedAt      int64   `db:"updated_at"`
}

func (r connectionRow) toModel() (*model.Connection, error) {
	var initCommands []string
	if err := json.Unmarshal([]byte(r.InitCommands), &initCommands); err != nil {
		return nil, fmt.Errorf("decoding init commands for connection %d: %w", r.ID, err)
	}

	conn := &model.Connection{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		Name:           r.Name,
		Dialect:        r.Dialect,
		DocsRepo:       r.DocsRepo,
		InitCommands:   initCommands,
		CreatedAt:      fromMillis(r.CreatedAt),
		UpdatedAt:      fromMillis(r.UpdatedAt),
	}
	if r.URLTemplate != nil {
		conn.URL.Template = *r.URLTemplate
	}
	if r.URLCiphertext != nil {
		conn.URL.Ciphertext = *r.URLCiphertext
	}
	return conn, nil
}

type UpsertConnectionParams struct {
	OrganizationID int64
	Name           string

	// URLTemplate is the legacy plaintext template, rendered at load time.
	// PlaintextSecret, when set, is encrypted under the organization's DEK
	// before storage and wins over URLTemplate. The URL is never stored in
	// clear when supplied as a secret.
	URLTemplate     string
	PlaintextSecret string

	Dialect      *string
	DocsRepo     *string
	InitCommands []string
}

// UpsertConnection adds or replaces the connection keyed by (org, name).
func (s *Store) UpsertConnection(ctx context.Context, params UpsertConnectionParams) error {
	if params.Name == "" {
		return fmt.Errorf("connection name is required")
	}
	if params.URLTemplate == "" && params.PlaintextSecret == "" {
		return fmt.Errorf("connection %q: url is required", params.Name)
	}

	initCommands := params.InitCommands
	if initCommands == nil {
		initCommands = []string{}
	}
	encodedInit, err := json.Marshal(initCommands)
	if err != nil {
		return fmt.Errorf("encoding init commands: %w", err)
	}

	now := s.nowMillis()

	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var urlTemplate, urlCiphertext *string
		if params.PlaintextSecret != "" {
			dek, err := s.keyring.OrgDEK(ctx, tx, params.OrganizationID, now)
			if err != nil {
				return err
			}
			ciphertext, err := secrets.EncryptSecret(params.PlaintextSecret, dek)
			if err != nil {
				return fmt.Errorf("encrypting connection url: %w", err)
			}
			urlCiphertext = &ciphertext
		} else {
			urlTemplate = &params.URLTemplate
		}

		query := tx.Rebind(`
			INSERT INTO connections
				(id, organization_id, name, url_template, url_ciphertext, dialect, docs_repo, init_commands, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (organization_id, name) DO UPDATE SET
				url_template = excluded.url_template,
				url_ciphertext = excluded.url_ciphertext,
				dialect = excluded.dialect,
				docs_repo = excluded.docs_repo,
				init_commands = excluded.init_commands,
				updated_at = excluded.updated_at`)
		_, err := tx.ExecContext(ctx, query,
			id.New(), params.OrganizationID, params.Name,
			urlTemplate, urlCiphertext, params.Dialect, params.DocsRepo,
			string(encodedInit), now, now)
		if err != nil {
			return fmt.Errorf("upserting connection %q: %w", params.Name, err)
		}
		return nil
	})
}

// AddBotConnection links a bot instance to the named connection of its
// organization. Linking twice is a no-op.
func (s *Store) AddBotConnection(ctx context.Context, botInstanceID, orgID int64, connectionName string) error {
	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		return addBotConnection(ctx, tx, botInstanceID, orgID, connectionName, s.nowMillis())
	})
}

// RemoveBotConnection unlinks a bot instance from the named connection.
func (s *Store) RemoveBotConnection(ctx context.Context, botInstanceID, orgID int64, connectionName string) error {
	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		return removeBotConnection(ctx, tx, botInstanceID, orgID, connectionName)
	})
}

// ReconcileBotConnections makes the bot's connection set equal to the
// desired name set: links desired-minus-current, unlinks
// current-minus-desired. Idempotent; a second call with the same set is a
// no-op.
func (s *Store) ReconcileBotConnections(ctx context.Context, orgID, botInstanceID int64, desired []string) error {
	desiredSet := make(map[string]bool, len(desired))
	for _, name := range desired {
		desiredSet[name] = true
	}

	now := s.nowMillis()
	var added, removed []string

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		added, removed = nil, nil

		current, err := botConnectionNames(ctx, tx, botInstanceID)
		if err != nil {
			return err
		}
		currentSet := make(map[string]bool, len(current))
		for _, name := range current {
			currentSet[name] = true
		}

		for name := range desiredSet {
			if !currentSet[name] {
				if err := addBotConnection(ctx, tx, botInstanceID, orgID, name, now); err != nil {
					return err
				}
				added = append(added, name)
			}
		}
		for name := range currentSet {
			if !desiredSet[name] {
				if err := removeBotConnection(ctx, tx, botInstanceID, orgID, name); err != nil {
					return err
				}
				removed = append(removed, name)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(added) > 0 || len(removed) > 0 {
		ctx = logger.WithLogFields(ctx, logger.LogFields{
			OrgID:         logger.Ptr(orgID),
			BotInstanceID: logger.Ptr(botInstanceID),
			Component:     "core.store.connections",
		})
		slog.InfoContext(ctx, "reconciled bot connections", "added", added, "removed", removed)
	}
	return nil
}

// ListBotConnectionNames returns the names of the connections linked to a
// bot instance, sorted.
func (s *Store) ListBotConnectionNames(ctx context.Context, botInstanceID int64) ([]string, error) {
	var names []string
	query := s.db.Conn().Rebind(`
		SELECT c.name
		FROM bot_connections bc
		JOIN connections c ON c.id = bc.connection_id
		WHERE bc.bot_instance_id = ?
		ORDER BY c.name`)
	if err := s.db.Conn().SelectContext(ctx, &names, query, botInstanceID); err != nil {
		return nil, err
	}
	return names, nil
}

// ListOrgConnections lists an organization's connections with their derived
// dialect and the channel names of linked bot instances.
func (s *Store) ListOrgConnections(ctx context.Context, orgID int64) ([]model.ConnectionSummary, error) {
	var rows []connectionRow
	query := s.db.Conn().Rebind("SELECT * FROM connections WHERE organization_id = ? ORDER BY name")
	if err := s.db.Conn().SelectContext(ctx, &rows, query, orgID); err != nil {
		return nil, err
	}

	summaries := make([]model.ConnectionSummary, 0, len(rows))
	for _, row := range rows {
		conn, err := row.toModel()
		if err != nil {
			return nil, err
		}

		var channels []string
		channelQuery := s.db.Conn().Rebind(`
			SELECT b.channel_name
			FROM bot_connections bc
			JOIN bot_instances b ON b.id = bc.bot_instance_id
			WHERE bc.connection_id = ?
			ORDER BY b.channel_name`)
		if err := s.db.Conn().SelectContext(ctx, &channels, channelQuery, row.ID); err != nil {
			return nil, err
		}

		summaries = append(summaries, model.ConnectionSummary{
			Name:     conn.Name,
			Dialect:  deriveDialect(conn),
			DocsRepo: conn.DocsRepo,
			Channels: channels,
		})
	}
	return summaries, nil
}

func addBotConnection(ctx context.Context, tx *sqlx.Tx, botInstanceID, orgID int64, connectionName string, nowMillis int64) error {
	connID, err := connectionIDByName(ctx, tx, orgID, connectionName)
	if err != nil {
		return err
	}
	query := tx.Rebind(`
		INSERT INTO bot_connections (bot_instance_id, connection_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (bot_instance_id, connection_id) DO NOTHING`)
	if _, err := tx.ExecContext(ctx, query, botInstanceID, connID, nowMillis); err != nil {
		return fmt.Errorf("linking connection %q: %w", connectionName, err)
	}
	return nil
}

func removeBotConnection(ctx context.Context, tx *sqlx.Tx, botInstanceID, orgID int64, connectionName string) error {
	query := tx.Rebind(`
		DELETE FROM bot_connections
		WHERE bot_instance_id = ?
		  AND connection_id IN (SELECT id FROM connections WHERE organization_id = ? AND name = ?)`)
	if _, err := tx.ExecContext(ctx, query, botInstanceID, orgID, connectionName); err != nil {
		return fmt.Errorf("unlinking connection %q: %w", connectionName, err)
	}
	return nil
}

func connectionIDByName(ctx context.Context, tx *sqlx.Tx, orgID int64, name string) (int64, error) {
	var connID int64
	query := tx.Rebind("SELECT id FROM connections WHERE organization_id = ? AND name = ?")
	if err := tx.GetContext(ctx, &connID, query, orgID, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("connection %q: %w", name, ErrNotFound)
		}
		return 0, err
	}
	return connID, nil
}

func botConnectionNames(ctx context.Context, tx *sqlx.Tx, botInstanceID int64) ([]string, error) {
	var names []string
	query := tx.Rebind(`
		SELECT c.name
		FROM bot_connections bc
		JOIN connections c ON c.id = bc.connection_id
		WHERE bc.bot_instance_id = ?`)
	if err := tx.SelectContext(ctx, &names, query, botInstanceID); err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// deriveDialect resolves a connection's warehouse dialect: the explicit
// override wins, then the scheme of a plaintext URL template. Encrypted URLs
// without an override stay unknown; listings never decrypt.
func deriveDialect(conn *model.Connection) string {
	if conn.Dialect != nil && *conn.Dialect != "" {
		return *conn.Dialect
	}
	if conn.URL.Template != "" {
		if i := strings.Index(conn.URL.Template, "://"); i > 0 {
			scheme := strings.ToLower(conn.URL.Template[:i])
			if scheme == "postgresql" {
				return "postgres"
			}
			return scheme
		}
	}
	return ""
}
