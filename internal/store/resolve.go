package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"answergrid.ai/core/internal/model"
	"answergrid.ai/core/internal/secrets"
)

type resolvedInstanceRow struct {
	botInstanceRow
	OrgName       string  `db:"org_name"`
	HasGovernance bool    `db:"has_governance"`
	OrgDocsRepo   *string `db:"org_docs_repo"`
	ICP           *string `db:"icp"`
	ICPDataTypes  *string `db:"icp_data_types"`
}

// LoadBotInstances assembles the runtime configuration of bot instances:
// organization attributes, the ICP side record, and every linked connection
// with its URL decrypted or rendered. An empty filter loads all instances.
// Template variables are keyed by organization id and substituted into
// plaintext URL templates and init commands.
//
// The second return value is the deduplicated list of docs repositories
// linked to the loaded instances and their organizations.
func (s *Store) LoadBotInstances(ctx context.Context, filter []model.InstanceKey, vars map[int64]map[string]string) (map[model.InstanceKey]model.BotConfig, []string, error) {
	rows, err := s.resolvedInstanceRows(ctx, filter)
	if err != nil {
		return nil, nil, err
	}

	configs := make(map[model.InstanceKey]model.BotConfig, len(rows))
	docsRepoSet := make(map[string]bool)

	for _, row := range rows {
		connections, err := s.resolveConnections(ctx, row.ID, row.OrganizationID, vars[row.OrganizationID])
		if err != nil {
			return nil, nil, fmt.Errorf("bot instance %d: %w", row.ID, err)
		}

		cfg := model.BotConfig{
			BotInstanceID:     row.ID,
			OrganizationID:    row.OrganizationID,
			OrganizationName:  row.OrgName,
			TeamID:            row.TeamID,
			Channel:           normalizeChannel(row.ChannelName),
			GovernanceChannel: row.GovernanceChannel,
			ContactEmail:      row.ContactEmail,
			InstanceType:      model.InstanceType(row.InstanceType),
			HasGovernance:     row.HasGovernance,
			Connections:       connections,
		}
		if row.ICP != nil {
			profile := &model.ICPProfile{BotInstanceID: row.ID, ICP: *row.ICP}
			if row.ICPDataTypes != nil {
				if err := json.Unmarshal([]byte(*row.ICPDataTypes), &profile.DataTypes); err != nil {
					return nil, nil, fmt.Errorf("decoding icp data types for instance %d: %w", row.ID, err)
				}
			}
			cfg.ICP = profile
		}

		key := model.InstanceKey{TeamID: row.TeamID, Channel: cfg.Channel}
		configs[key] = cfg

		if row.DocsRepo != nil && *row.DocsRepo != "" {
			docsRepoSet[*row.DocsRepo] = true
		}
		if row.OrgDocsRepo != nil && *row.OrgDocsRepo != "" {
			docsRepoSet[*row.OrgDocsRepo] = true
		}
	}

	docsRepos := make([]string, 0, len(docsRepoSet))
	for repo := range docsRepoSet {
		docsRepos = append(docsRepos, repo)
	}
	sort.Strings(docsRepos)

	slog.InfoContext(ctx, "loaded bot instances", "count", len(configs), "docs_repos", len(docsRepos))
	return configs, docsRepos, nil
}

func (s *Store) resolvedInstanceRows(ctx context.Context, filter []model.InstanceKey) ([]resolvedInstanceRow, error) {
	base := `
		SELECT b.*,
		       o.name AS org_name,
		       o.has_governance AS has_governance,
		       o.docs_repo AS org_docs_repo,
		       icp.icp AS icp,
		       icp.data_types AS icp_data_types
		FROM bot_instances b
		JOIN organizations o ON o.id = b.organization_id
		LEFT JOIN bot_instance_icp icp ON icp.bot_instance_id = b.id`

	var (
		query string
		args  []any
	)
	if len(filter) == 0 {
		query = base + " ORDER BY b.id"
	} else {
		clauses := ""
		for i, key := range filter {
			if i > 0 {
				clauses += " OR "
			}
			// The stored channel may carry the legacy "#" prefix.
			clauses += "(b.team_id = ? AND b.channel_name IN (?, ?))"
			norm := normalizeChannel(key.Channel)
			args = append(args, key.TeamID, norm, "#"+norm)
		}
		query = base + " WHERE " + clauses + " ORDER BY b.id"
	}

	var rows []resolvedInstanceRow
	if err := s.db.Conn().SelectContext(ctx, &rows, s.db.Conn().Rebind(query), args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// resolveConnections loads and materializes every connection linked to an
// instance. Encrypted URLs require the organization's DEK to already exist;
// its absence is reported as ErrConfiguration rather than skipped, so a
// misconfigured instance fails loudly at load time.
func (s *Store) resolveConnections(ctx context.Context, botInstanceID, orgID int64, vars map[string]string) (map[string]model.ConnectionProfile, error) {
	var rows []connectionRow
	query := s.db.Conn().Rebind(`
		SELECT c.*
		FROM bot_connections bc
		JOIN connections c ON c.id = bc.connection_id
		WHERE bc.bot_instance_id = ?
		ORDER BY c.name`)
	if err := s.db.Conn().SelectContext(ctx, &rows, query, botInstanceID); err != nil {
		return nil, err
	}

	profiles := make(map[string]model.ConnectionProfile, len(rows))
	for _, row := range rows {
		conn, err := row.toModel()
		if err != nil {
			return nil, err
		}

		var url string
		switch {
		case conn.URL.Encrypted():
			dek, err := s.keyring.ExistingOrgDEK(ctx, s.db.Conn(), orgID)
			if err != nil {
				if errors.Is(err, secrets.ErrNoDEK) {
					return nil, fmt.Errorf("%w: connection %q is encrypted but organization %d has no key", ErrConfiguration, conn.Name, orgID)
				}
				return nil, err
			}
			url, err = secrets.DecryptSecret(conn.URL.Ciphertext, dek)
			if err != nil {
				return nil, fmt.Errorf("decrypting connection %q: %w", conn.Name, err)
			}
		default:
			url = s.renderer.Render(conn.URL.Template, vars)
		}

		initCommands := make([]string, len(conn.InitCommands))
		for i, cmd := range conn.InitCommands {
			initCommands[i] = s.renderer.Render(cmd, vars)
		}

		profiles[conn.Name] = model.ConnectionProfile{
			URL:          url,
			InitCommands: initCommands,
			Dialect:      deriveDialect(conn),
		}
	}
	return profiles, nil
}
