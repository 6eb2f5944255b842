package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/pkg/types"
)

// MemoryStore implements storage.MemoryStore over the memories table.
type MemoryStore struct {
	db *sql.DB
}

const memoryColumns = `
	id, agent_id, org_id, thread_id, branch_name, content, embedding, memory_type, scope,
	importance, tags, metadata, created_at, last_accessed, access_count,
	expires_at, decay_rate, consolidation_state,
	provenance_created_by, provenance_source_type, provenance_source_id,
	version, prev_version_id, content_hash, prev_hash,
	quarantined, quarantine_reason, deleted_at
`

func scanMemory(row interface{ Scan(...any) error }) (*types.MemoryRecord, error) {
	var m types.MemoryRecord
	var tagsJSON, metaJSON string
	var embedding []byte
	var expiresAt, deletedAt sql.NullTime
	var decayRate sql.NullFloat64
	var quarantined int

	err := row.Scan(
		&m.ID, &m.Agent, &m.Org, &m.Thread, &m.Branch, &m.Content, &embedding, &m.MemoryType, &m.Scope,
		&m.Importance, &tagsJSON, &metaJSON, &m.CreatedAt, &m.LastAccessed, &m.AccessCount,
		&expiresAt, &decayRate, &m.ConsolidationState,
		&m.Provenance.CreatedBy, &m.Provenance.SourceType, &m.Provenance.SourceID,
		&m.Version, &m.PrevVersionID, &m.ContentHash, &m.PrevHash,
		&quarantined, &m.QuarantineReason, &deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	unmarshalJSON(tagsJSON, &m.Tags)
	unmarshalJSON(metaJSON, &m.Metadata)
	m.Embedding = decodeEmbedding(embedding)
	m.ExpiresAt = timePtr(expiresAt)
	m.DeletedAt = timePtr(deletedAt)
	if decayRate.Valid {
		dr := decayRate.Float64
		m.DecayRate = &dr
	}
	m.Quarantined = quarantined != 0
	return &m, nil
}

// Store upserts a memory row keyed by id.
func (s *MemoryStore) Store(ctx context.Context, m *types.MemoryRecord) error {
	if m == nil || m.ID == "" {
		return storage.ErrInvalidInput
	}
	if m.Content == "" {
		return fmt.Errorf("%w: content is required", storage.ErrInvalidInput)
	}
	branch := m.Branch
	if branch == "" {
		branch = types.DefaultBranch
	}

	exec := execerFromContext(ctx, s.db)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO memories (`+memoryColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			embedding = excluded.embedding,
			memory_type = excluded.memory_type,
			scope = excluded.scope,
			importance = excluded.importance,
			tags = excluded.tags,
			metadata = excluded.metadata,
			last_accessed = excluded.last_accessed,
			access_count = excluded.access_count,
			expires_at = excluded.expires_at,
			decay_rate = excluded.decay_rate,
			consolidation_state = excluded.consolidation_state,
			version = excluded.version,
			prev_version_id = excluded.prev_version_id,
			content_hash = excluded.content_hash,
			prev_hash = excluded.prev_hash,
			quarantined = excluded.quarantined,
			quarantine_reason = excluded.quarantine_reason,
			deleted_at = excluded.deleted_at
	`,
		m.ID, m.Agent, m.Org, m.Thread, branch, m.Content, encodeEmbedding(m.Embedding), string(m.MemoryType), string(m.Scope),
		m.Importance, marshalJSON(m.Tags), marshalJSON(m.Metadata), m.CreatedAt, m.LastAccessed, m.AccessCount,
		nullableTime(m.ExpiresAt), nullFloat(m.DecayRate), string(m.ConsolidationState),
		m.Provenance.CreatedBy, m.Provenance.SourceType, m.Provenance.SourceID,
		m.Version, m.PrevVersionID, m.ContentHash, m.PrevHash,
		boolInt(m.Quarantined), m.QuarantineReason, nullableTime(m.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to store memory: %w", err)
	}
	return nil
}

// Get retrieves a live (non-hard-deleted) memory by id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*types.MemoryRecord, error) {
	exec := execerFromContext(ctx, s.db)
	row := exec.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: failed to get memory: %w", err)
	}
	return m, nil
}

// List applies filters and pagination over the memories table.
func (s *MemoryStore) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.MemoryRecord], error) {
	opts.Normalize()

	var conditions []string
	var args []any

	if opts.Agent != "" {
		conditions = append(conditions, "agent_id = ?")
		args = append(args, opts.Agent)
	}
	if opts.Org != "" {
		conditions = append(conditions, "org_id = ?")
		args = append(args, opts.Org)
	}
	if opts.Thread != "" {
		conditions = append(conditions, "thread_id = ?")
		args = append(args, opts.Thread)
	}
	if opts.Branch != "" {
		conditions = append(conditions, "branch_name = ?")
		args = append(args, opts.Branch)
	}
	if opts.MemoryType != "" {
		conditions = append(conditions, "memory_type = ?")
		args = append(args, opts.MemoryType)
	}
	if opts.Scope != "" {
		conditions = append(conditions, "scope = ?")
		args = append(args, string(opts.Scope))
	}
	if opts.State != "" {
		conditions = append(conditions, "consolidation_state = ?")
		args = append(args, string(opts.State))
	}
	if !opts.CreatedAfter.IsZero() {
		conditions = append(conditions, "created_at > ?")
		args = append(args, opts.CreatedAfter)
	}
	if !opts.CreatedBefore.IsZero() {
		conditions = append(conditions, "created_at < ?")
		args = append(args, opts.CreatedBefore)
	}
	if opts.MinImportance > 0 {
		conditions = append(conditions, "importance >= ?")
		args = append(args, opts.MinImportance)
	}
	if opts.Quarantined != nil {
		conditions = append(conditions, "quarantined = ?")
		args = append(args, boolInt(*opts.Quarantined))
	}
	if !opts.IncludeDeleted {
		conditions = append(conditions, "deleted_at IS NULL")
	}
	if opts.OnlyDeleted {
		conditions = append(conditions, "deleted_at IS NOT NULL")
	}

	var where string
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	sortCol := map[string]string{
		"created_at":    "created_at",
		"last_accessed": "last_accessed",
		"importance":    "importance",
		"access_count":  "access_count",
	}[opts.SortBy]

	query := fmt.Sprintf(`SELECT %s FROM memories%s ORDER BY %s %s LIMIT ? OFFSET ?`,
		memoryColumns, where, sortCol, strings.ToUpper(opts.SortOrder))
	queryArgs := append(append([]any{}, args...), opts.Limit, opts.Offset())

	exec := execerFromContext(ctx, s.db)
	rows, err := exec.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list memories: %w", err)
	}
	defer rows.Close()

	var items []types.MemoryRecord
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan memory: %w", err)
		}
		items = append(items, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: row iteration failed: %w", err)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM memories" + where
	if err := exec.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("sqlite: failed to count memories: %w", err)
	}

	return &storage.PaginatedResult[types.MemoryRecord]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(items) < total,
	}, nil
}

// Update applies optimistic concurrency control: it writes m's fields only
// if the row's stored version still matches m.Version as read by the
// caller, atomically bumping version on success. A mismatch means another
// writer updated the row first; Update returns storage.ErrConflict rather
// than overwriting, and the caller must re-read and retry.
func (s *MemoryStore) Update(ctx context.Context, m *types.MemoryRecord) error {
	if m == nil || m.ID == "" {
		return storage.ErrInvalidInput
	}

	exec := execerFromContext(ctx, s.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE memories SET
			content = ?, embedding = ?, memory_type = ?, scope = ?, importance = ?,
			tags = ?, metadata = ?, last_accessed = ?, access_count = ?,
			expires_at = ?, decay_rate = ?, consolidation_state = ?,
			version = version + 1, prev_version_id = ?, content_hash = ?, prev_hash = ?,
			quarantined = ?, quarantine_reason = ?, deleted_at = ?
		WHERE id = ? AND version = ?
	`,
		m.Content, encodeEmbedding(m.Embedding), string(m.MemoryType), string(m.Scope), m.Importance,
		marshalJSON(m.Tags), marshalJSON(m.Metadata), m.LastAccessed, m.AccessCount,
		nullableTime(m.ExpiresAt), nullFloat(m.DecayRate), string(m.ConsolidationState),
		m.PrevVersionID, m.ContentHash, m.PrevHash,
		boolInt(m.Quarantined), m.QuarantineReason, nullableTime(m.DeletedAt),
		m.ID, m.Version,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if n == 0 {
		if _, getErr := s.Get(ctx, m.ID); getErr == storage.ErrNotFound {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}
	m.Version++
	return nil
}

// SoftDelete transitions a memory to the forgotten state without erasing it.
func (s *MemoryStore) SoftDelete(ctx context.Context, id string, now time.Time) error {
	exec := execerFromContext(ctx, s.db)
	res, err := exec.ExecContext(ctx,
		`UPDATE memories SET consolidation_state = ?, deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		string(types.ConsolidationForgotten), now, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to soft-delete memory: %w", err)
	}
	return requireRowsAffected(res)
}

// HardDelete permanently erases a memory row.
func (s *MemoryStore) HardDelete(ctx context.Context, id string) error {
	exec := execerFromContext(ctx, s.db)
	res, err := exec.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to hard-delete memory: %w", err)
	}
	return requireRowsAffected(res)
}

// EvolutionChain walks PrevVersionID backward from memoryID, returning the
// full version history oldest-first, capped at 50 hops.
func (s *MemoryStore) EvolutionChain(ctx context.Context, memoryID string) ([]*types.MemoryRecord, error) {
	const maxChain = 50

	current, err := s.fetchAny(ctx, memoryID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: EvolutionChain: %w", err)
	}

	chain := []*types.MemoryRecord{current}
	visited := map[string]bool{current.ID: true}
	node := current
	for len(chain) < maxChain && node.PrevVersionID != "" && !visited[node.PrevVersionID] {
		parent, err := s.fetchAny(ctx, node.PrevVersionID)
		if err != nil {
			break
		}
		visited[parent.ID] = true
		chain = append([]*types.MemoryRecord{parent}, chain...)
		node = parent
	}
	return chain, nil
}

// fetchAny fetches a memory regardless of soft-delete state, used for
// version-chain walks where superseded rows are expected to be forgotten.
func (s *MemoryStore) fetchAny(ctx context.Context, id string) (*types.MemoryRecord, error) {
	exec := execerFromContext(ctx, s.db)
	row := exec.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	return scanMemory(row)
}

// IncrementAccess atomically bumps access_count and last_accessed.
func (s *MemoryStore) IncrementAccess(ctx context.Context, id string, now time.Time) error {
	exec := execerFromContext(ctx, s.db)
	res, err := exec.ExecContext(ctx,
		`UPDATE memories SET access_count = access_count + 1, last_accessed = ? WHERE id = ? AND deleted_at IS NULL`,
		now, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to increment access: %w", err)
	}
	return requireRowsAffected(res)
}

// UpdateConsolidationState transitions a memory's lifecycle state. Callers
// must validate the transition themselves before calling.
func (s *MemoryStore) UpdateConsolidationState(ctx context.Context, id string, state types.ConsolidationState) error {
	exec := execerFromContext(ctx, s.db)
	res, err := exec.ExecContext(ctx,
		`UPDATE memories SET consolidation_state = ? WHERE id = ?`, string(state), id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update consolidation state: %w", err)
	}
	return requireRowsAffected(res)
}

// Quarantine flags a memory as anomalous, hiding it from recall.
func (s *MemoryStore) Quarantine(ctx context.Context, id string, reason string) error {
	exec := execerFromContext(ctx, s.db)
	res, err := exec.ExecContext(ctx,
		`UPDATE memories SET quarantined = 1, quarantine_reason = ? WHERE id = ?`, reason, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to quarantine memory: %w", err)
	}
	return requireRowsAffected(res)
}

// ClearQuarantine lifts a quarantine flag.
func (s *MemoryStore) ClearQuarantine(ctx context.Context, id string) error {
	exec := execerFromContext(ctx, s.db)
	res, err := exec.ExecContext(ctx,
		`UPDATE memories SET quarantined = 0, quarantine_reason = '' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to clear quarantine: %w", err)
	}
	return requireRowsAffected(res)
}

// ForRecall returns the candidate set a recall strategy may score, already
// narrowed by filter. Authorization (AllowedIDs) is applied as a SQL IN
// clause so unauthorized rows never leave the database layer.
func (s *MemoryStore) ForRecall(ctx context.Context, filter storage.RecallFilter, limit int) ([]*types.MemoryRecord, error) {
	var conditions []string
	var args []any

	if filter.Agent != "" {
		conditions = append(conditions, "agent_id = ?")
		args = append(args, filter.Agent)
	}
	if filter.Org != "" {
		conditions = append(conditions, "org_id = ?")
		args = append(args, filter.Org)
	}
	if filter.Thread != "" {
		conditions = append(conditions, "thread_id = ?")
		args = append(args, filter.Thread)
	}
	if filter.Branch != "" {
		conditions = append(conditions, "branch_name = ?")
		args = append(args, filter.Branch)
	}
	if len(filter.MemoryTypes) > 0 {
		placeholders := make([]string, len(filter.MemoryTypes))
		for i, t := range filter.MemoryTypes {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		conditions = append(conditions, "memory_type IN ("+strings.Join(placeholders, ",")+")")
	}
	if filter.AllowedIDs != nil {
		if len(filter.AllowedIDs) == 0 {
			return nil, nil
		}
		placeholders := make([]string, len(filter.AllowedIDs))
		for i, id := range filter.AllowedIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		conditions = append(conditions, "id IN ("+strings.Join(placeholders, ",")+")")
	}
	if filter.ExcludeForgot {
		conditions = append(conditions, "consolidation_state != ?")
		args = append(args, string(types.ConsolidationForgotten))
	}
	if !filter.CreatedAfter.IsZero() {
		conditions = append(conditions, "created_at > ?")
		args = append(args, filter.CreatedAfter)
	}
	if !filter.CreatedBefore.IsZero() {
		conditions = append(conditions, "created_at < ?")
		args = append(args, filter.CreatedBefore)
	}
	conditions = append(conditions, "deleted_at IS NULL", "quarantined = 0")
	if !filter.Now.IsZero() {
		conditions = append(conditions, "(expires_at IS NULL OR expires_at > ?)")
		args = append(args, filter.Now)
	}

	where := " WHERE " + strings.Join(conditions, " AND ")
	query := fmt.Sprintf(`SELECT %s FROM memories%s LIMIT ?`, memoryColumns, where)
	args = append(args, limit)

	exec := execerFromContext(ctx, s.db)
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query recall candidates: %w", err)
	}
	defer rows.Close()

	var out []*types.MemoryRecord
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan recall candidate: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LatestForAgent returns the most recently created live memory for agent,
// used to read prev_mem_hash when linking a new write into the chain.
func (s *MemoryStore) LatestForAgent(ctx context.Context, agent string) (*types.MemoryRecord, error) {
	exec := execerFromContext(ctx, s.db)
	row := exec.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE agent_id = ? AND deleted_at IS NULL ORDER BY created_at DESC, version DESC LIMIT 1`, agent)
	m, err := scanMemory(row)
	if err == storage.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get latest memory for agent: %w", err)
	}
	return m, nil
}

// ForDecay returns active/pending memories eligible for a decay pass,
// ordered by last_accessed ascending so the staleest rows are visited first.
func (s *MemoryStore) ForDecay(ctx context.Context, limit int) ([]*types.MemoryRecord, error) {
	exec := execerFromContext(ctx, s.db)
	query := fmt.Sprintf(`SELECT %s FROM memories WHERE deleted_at IS NULL AND consolidation_state IN (?, ?) ORDER BY last_accessed ASC LIMIT ?`, memoryColumns)
	rows, err := exec.QueryContext(ctx, query, string(types.ConsolidationActive), string(types.ConsolidationPending), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query decay candidates: %w", err)
	}
	defer rows.Close()

	var out []*types.MemoryRecord
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan decay candidate: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ForExpired returns live memories whose TTL has elapsed as of now, for the
// lifecycle engine's cleanup_expired pass.
func (s *MemoryStore) ForExpired(ctx context.Context, now time.Time, limit int) ([]*types.MemoryRecord, error) {
	exec := execerFromContext(ctx, s.db)
	query := fmt.Sprintf(`SELECT %s FROM memories WHERE deleted_at IS NULL AND expires_at IS NOT NULL AND expires_at <= ? LIMIT ?`, memoryColumns)
	rows, err := exec.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query expired memories: %w", err)
	}
	defer rows.Close()

	var out []*types.MemoryRecord
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan expired memory: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountByAgent returns the live memory count for an agent.
func (s *MemoryStore) CountByAgent(ctx context.Context, agent string) (int64, error) {
	exec := execerFromContext(ctx, s.db)
	var n int64
	err := exec.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE agent_id = ? AND deleted_at IS NULL`, agent).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to count memories for agent: %w", err)
	}
	return n, nil
}

func requireRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
