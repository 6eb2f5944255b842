package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scrypster/mnemo/internal/authz"
	"github.com/scrypster/mnemo/internal/embedding"
	"github.com/scrypster/mnemo/internal/storage/sqlite"
)

// newTestCoordinator wires a Coordinator over an in-memory SQLite driver, a
// deterministic embedder, no cipher, and a permissive config suitable for
// exercising every operation without external services.
func newTestCoordinator(t *testing.T) (*Coordinator, *sqlite.Driver) {
	t.Helper()
	d, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	az := authz.New(d, d, d)
	cfg := DefaultConfig()
	cfg.AnomalyQuarantineEnabled = false

	c, err := New(d, embedding.NewDeterministicProvider(16), nil, az, cfg, nil)
	require.NoError(t, err)
	return c, d
}
