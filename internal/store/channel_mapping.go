package store

import (
	"context"
	"database/sql"
	"errors"
)

// SetChannelMapping caches the Slack channel id for a (team, channel name)
// pair, replacing any previous value.
func (s *Store) SetChannelMapping(ctx context.Context, teamID, channelName, channelID string) error {
	query := s.db.Conn().Rebind(`
		INSERT INTO channel_mapping (team_id, channel_name, channel_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (team_id, channel_name) DO UPDATE SET
			channel_id = excluded.channel_id,
			updated_at = excluded.updated_at`)
	_, err := s.db.Conn().ExecContext(ctx, query,
		teamID, normalizeChannel(channelName), channelID, s.nowMillis())
	return err
}

// GetChannelID resolves a channel name to its Slack channel id.
func (s *Store) GetChannelID(ctx context.Context, teamID, channelName string) (string, error) {
	var channelID string
	query := s.db.Conn().Rebind(
		"SELECT channel_id FROM channel_mapping WHERE team_id = ? AND channel_name = ?")
	if err := s.db.Conn().GetContext(ctx, &channelID, query, teamID, normalizeChannel(channelName)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return channelID, nil
}

// GetChannelName resolves a Slack channel id back to its name.
func (s *Store) GetChannelName(ctx context.Context, teamID, channelID string) (string, error) {
	var channelName string
	query := s.db.Conn().Rebind(
		"SELECT channel_name FROM channel_mapping WHERE team_id = ? AND channel_id = ?")
	if err := s.db.Conn().GetContext(ctx, &channelName, query, teamID, channelID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return channelName, nil
}

// DeleteChannelMapping drops the cached entry; unknown pairs are a no-op.
func (s *Store) DeleteChannelMapping(ctx context.Context, teamID, channelName string) error {
	query := s.db.Conn().Rebind(
		"DELETE FROM channel_mapping WHERE team_id = ? AND channel_name = ?")
	_, err := s.db.Conn().ExecContext(ctx, query, teamID, normalizeChannel(channelName))
	return err
}
