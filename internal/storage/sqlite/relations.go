package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/pkg/types"
)

// RelationStore implements storage.RelationStore over the relations table.
type RelationStore struct {
	db *sql.DB
}

const relationColumns = `id, source_id, target_id, relation_type, weight, metadata, created_at`

func scanRelation(row interface{ Scan(...any) error }) (*types.Relation, error) {
	var r types.Relation
	var metaJSON string
	err := row.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.RelationType, &r.Weight, &metaJSON, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	unmarshalJSON(metaJSON, &r.Metadata)
	return &r, nil
}

// Create inserts a new relation edge.
func (s *RelationStore) Create(ctx context.Context, r *types.Relation) error {
	if r == nil || r.ID == "" || r.SourceID == "" || r.TargetID == "" {
		return storage.ErrInvalidInput
	}
	exec := execerFromContext(ctx, s.db)
	_, err := exec.ExecContext(ctx,
		`INSERT INTO relations (`+relationColumns+`) VALUES (?,?,?,?,?,?,?)`,
		r.ID, r.SourceID, r.TargetID, r.RelationType, r.Weight, marshalJSON(r.Metadata), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create relation: %w", err)
	}
	return nil
}

// Delete removes a relation by id.
func (s *RelationStore) Delete(ctx context.Context, id string) error {
	exec := execerFromContext(ctx, s.db)
	res, err := exec.ExecContext(ctx, `DELETE FROM relations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete relation: %w", err)
	}
	return requireRowsAffected(res)
}

// ForSource returns relations originating at sourceID.
func (s *RelationStore) ForSource(ctx context.Context, sourceID string) ([]*types.Relation, error) {
	return s.listWhere(ctx, "source_id = ?", sourceID)
}

// ForTarget returns relations terminating at targetID.
func (s *RelationStore) ForTarget(ctx context.Context, targetID string) ([]*types.Relation, error) {
	return s.listWhere(ctx, "target_id = ?", targetID)
}

func (s *RelationStore) listWhere(ctx context.Context, clause string, arg string) ([]*types.Relation, error) {
	exec := execerFromContext(ctx, s.db)
	rows, err := exec.QueryContext(ctx, `SELECT `+relationColumns+` FROM relations WHERE `+clause, arg)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query relations: %w", err)
	}
	defer rows.Close()

	var out []*types.Relation
	for rows.Next() {
		r, err := scanRelation(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan relation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Neighbors returns distinct memory IDs one hop away from id in either
// direction, optionally restricted to relationTypes.
func (s *RelationStore) Neighbors(ctx context.Context, id string, relationTypes []string) ([]string, error) {
	exec := execerFromContext(ctx, s.db)

	var query string
	var args []any

	if len(relationTypes) == 0 {
		query = `
			SELECT target_id AS neighbor FROM relations WHERE source_id = ?
			UNION
			SELECT source_id AS neighbor FROM relations WHERE target_id = ?
		`
		args = []any{id, id}
	} else {
		placeholders := ""
		for i, t := range relationTypes {
			if i > 0 {
				placeholders += ","
			}
			placeholders += "?"
			_ = t
		}
		query = `
			SELECT target_id AS neighbor FROM relations WHERE source_id = ? AND relation_type IN (` + placeholders + `)
			UNION
			SELECT source_id AS neighbor FROM relations WHERE target_id = ? AND relation_type IN (` + placeholders + `)
		`
		args = append(args, id)
		args = append(args, toAny(relationTypes)...)
		args = append(args, id)
		args = append(args, toAny(relationTypes)...)
	}

	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query neighbors: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var neighbor string
		if err := rows.Scan(&neighbor); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan neighbor: %w", err)
		}
		if neighbor != id {
			out = append(out, neighbor)
		}
	}
	return out, rows.Err()
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
