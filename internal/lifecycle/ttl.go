package lifecycle

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/pkg/merr"
)

// CleanupExpiredStats summarizes one CleanupExpired call.
type CleanupExpiredStats struct {
	Deleted int
}

// CleanupExpired hard-deletes up to batchSize memories whose TTL has
// elapsed as of now, paced by limiter. This is the background counterpart
// to the read-time TTL filter every recall strategy already applies via
// RecallFilter.Now — a memory past its expiry is invisible to recall well
// before this pass ever reaches it.
func CleanupExpired(ctx context.Context, store storage.MemoryStore, now time.Time, batchSize int, limiter *rate.Limiter) (CleanupExpiredStats, error) {
	var stats CleanupExpiredStats

	expired, err := store.ForExpired(ctx, now, batchSize)
	if err != nil {
		return stats, merr.Wrap(merr.Storage, "failed to fetch expired memories", err)
	}

	for _, m := range expired {
		if err := limiter.Wait(ctx); err != nil {
			return stats, merr.Wrap(merr.Cancelled, "ttl cleanup interrupted", err)
		}
		if err := store.HardDelete(ctx, m.ID); err != nil {
			return stats, merr.Wrap(merr.Storage, "failed to hard-delete expired memory "+m.ID, err)
		}
		stats.Deleted++
	}

	return stats, nil
}
