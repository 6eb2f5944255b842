package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/pkg/merr"
	"github.com/scrypster/mnemo/pkg/types"
)

// LoadOrNewProfile fetches agent's running profile, returning a fresh zero
// profile rather than an error when the agent has never written before.
func LoadOrNewProfile(ctx context.Context, profiles storage.ProfileStore, agent string) (*types.AgentProfile, error) {
	p, err := profiles.GetProfile(ctx, agent)
	if err == nil {
		return p, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return &types.AgentProfile{Agent: agent}, nil
	}
	return nil, merr.Wrap(merr.Storage, "failed to load agent profile", err)
}

// ObserveWrite folds one memory write into the agent's profile and persists
// the result. Called once per successful remember.
func ObserveWrite(ctx context.Context, profiles storage.ProfileStore, profile *types.AgentProfile, importance float64, contentLen int, now time.Time) error {
	profile.Observe(importance, contentLen, now)
	if err := profiles.Save(ctx, profile); err != nil {
		return merr.Wrap(merr.Storage, "failed to persist agent profile", err)
	}
	return nil
}
