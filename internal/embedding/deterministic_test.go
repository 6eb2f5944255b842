package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicProviderDimension(t *testing.T) {
	p := NewDeterministicProvider(16)
	assert.Equal(t, 16, p.Dimension())

	def := NewDeterministicProvider(0)
	assert.Equal(t, 32, def.Dimension())
}

func TestDeterministicProviderSameInputSameVector(t *testing.T) {
	p := NewDeterministicProvider(8)
	v1, err := p.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	v2, err := p.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestDeterministicProviderDifferentInputDifferentVector(t *testing.T) {
	p := NewDeterministicProvider(8)
	v1, err := p.Embed(context.Background(), "hello")
	require.NoError(t, err)
	v2, err := p.Embed(context.Background(), "goodbye")
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)
}

func TestDeterministicProviderIsNormalized(t *testing.T) {
	p := NewDeterministicProvider(16)
	v, err := p.Embed(context.Background(), "normalize me")
	require.NoError(t, err)

	var mag float64
	for _, f := range v {
		mag += float64(f) * float64(f)
	}
	assert.InDelta(t, 1.0, mag, 1e-6)
}

func TestDeterministicProviderRespectsContext(t *testing.T) {
	p := NewDeterministicProvider(8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Embed(ctx, "too late")
	assert.ErrorIs(t, err, context.Canceled)
}
