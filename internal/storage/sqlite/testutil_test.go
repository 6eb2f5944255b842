package sqlite

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	d, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}
