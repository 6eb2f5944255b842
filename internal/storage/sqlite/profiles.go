package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/pkg/types"
)

// ProfileStore implements storage.ProfileStore over the agent_profiles
// table.
type ProfileStore struct {
	db *sql.DB
}

// GetProfile retrieves an agent's rolling profile, or storage.ErrNotFound if
// the agent has never written a memory.
func (s *ProfileStore) GetProfile(ctx context.Context, agent string) (*types.AgentProfile, error) {
	exec := execerFromContext(ctx, s.db)
	var p types.AgentProfile
	var lastWriteAt sql.NullTime
	err := exec.QueryRowContext(ctx, `
		SELECT agent_id, total_memories, average_importance, average_content_len,
		       last_write_at, writes_last_minute, writes_last_hour, updated_at
		FROM agent_profiles WHERE agent_id = ?
	`, agent).Scan(
		&p.Agent, &p.TotalMemories, &p.AverageImportance, &p.AverageContentLen,
		&lastWriteAt, &p.WritesLastMinute, &p.WritesLastHour, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get agent profile: %w", err)
	}
	if lastWriteAt.Valid {
		p.LastWriteAt = lastWriteAt.Time
	}
	return &p, nil
}

// Save upserts an agent's rolling profile.
func (s *ProfileStore) Save(ctx context.Context, p *types.AgentProfile) error {
	if p == nil || p.Agent == "" {
		return storage.ErrInvalidInput
	}
	exec := execerFromContext(ctx, s.db)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO agent_profiles (
			agent_id, total_memories, average_importance, average_content_len,
			last_write_at, writes_last_minute, writes_last_hour, updated_at
		) VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(agent_id) DO UPDATE SET
			total_memories = excluded.total_memories,
			average_importance = excluded.average_importance,
			average_content_len = excluded.average_content_len,
			last_write_at = excluded.last_write_at,
			writes_last_minute = excluded.writes_last_minute,
			writes_last_hour = excluded.writes_last_hour,
			updated_at = excluded.updated_at
	`,
		p.Agent, p.TotalMemories, p.AverageImportance, p.AverageContentLen,
		nullableTime(&p.LastWriteAt), p.WritesLastMinute, p.WritesLastHour, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to save agent profile: %w", err)
	}
	return nil
}
