package sqlite

import (
	"context"
	"fmt"

	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/pkg/hashchain"
)

// VerifyMemoryChain walks an agent's memories ordered by creation time and
// confirms each row's prev_hash equals H(content_hash ‖ predecessor's
// content_hash), reporting the first broken link.
func (d *Driver) VerifyMemoryChain(ctx context.Context, agent string) (*storage.ChainVerification, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, content_hash, prev_hash FROM memories WHERE agent_id = ? ORDER BY created_at ASC, version ASC`,
		agent)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query memory chain: %w", err)
	}
	defer rows.Close()

	result := &storage.ChainVerification{Valid: true}
	prevContentHash := hashchain.Zero

	for rows.Next() {
		var id, contentHash, prevHash string
		if err := rows.Scan(&id, &contentHash, &prevHash); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan memory chain row: %w", err)
		}
		result.RecordsSeen++

		parsedContentHash, err := hashchain.Parse(contentHash)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to parse content_hash for %s: %w", id, err)
		}
		expectedPrev := hashchain.Hex(hashchain.Link(parsedContentHash, prevContentHash))

		if !hashchain.EqualHex(prevHash, expectedPrev) {
			result.Valid = false
			result.BrokenAt = id
			result.Reason = fmt.Sprintf("expected prev_hash %s, found %s", expectedPrev, prevHash)
			result.ExpectedPrevHash = expectedPrev
			result.FoundPrevHash = prevHash
			result.BrokenContentHash = contentHash
			return result, rows.Err()
		}
		prevContentHash = parsedContentHash
	}
	return result, rows.Err()
}

// VerifyEventChain walks an agent's event log ordered by logical clock and
// confirms the hash chain is unbroken.
func (d *Driver) VerifyEventChain(ctx context.Context, agent string) (*storage.ChainVerification, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, content_hash, prev_hash FROM agent_events WHERE agent_id = ? ORDER BY logical_clock ASC`,
		agent)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query event chain: %w", err)
	}
	defer rows.Close()

	result := &storage.ChainVerification{Valid: true}
	prevContentHash := hashchain.Zero

	for rows.Next() {
		var id, contentHash, prevHash string
		if err := rows.Scan(&id, &contentHash, &prevHash); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan event chain row: %w", err)
		}
		result.RecordsSeen++

		parsedContentHash, err := hashchain.Parse(contentHash)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to parse content_hash for %s: %w", id, err)
		}
		expectedPrev := hashchain.Hex(hashchain.Link(parsedContentHash, prevContentHash))

		if !hashchain.EqualHex(prevHash, expectedPrev) {
			result.Valid = false
			result.BrokenAt = id
			result.Reason = fmt.Sprintf("expected prev_hash %s, found %s", expectedPrev, prevHash)
			result.ExpectedPrevHash = expectedPrev
			result.FoundPrevHash = prevHash
			result.BrokenContentHash = contentHash
			return result, rows.Err()
		}
		prevContentHash = parsedContentHash
	}
	return result, rows.Err()
}
