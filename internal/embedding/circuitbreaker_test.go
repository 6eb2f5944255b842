package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/mnemo/pkg/merr"
)

type stubProvider struct {
	dimension int
	err       error
	calls     int
}

func (s *stubProvider) Dimension() int { return s.dimension }

func (s *stubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []float32{1, 2, 3}, nil
}

func TestCircuitBreakerProviderPassesThroughSuccess(t *testing.T) {
	inner := &stubProvider{dimension: 3}
	p := NewCircuitBreakerProvider(inner, DefaultBreakerConfig())

	v, err := p.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, v)
	assert.Equal(t, "closed", p.State())
}

func TestCircuitBreakerProviderOpensAfterFailures(t *testing.T) {
	inner := &stubProvider{dimension: 3, err: errors.New("backend down")}
	cfg := BreakerConfig{MaxFailures: 2, Timeout: time.Minute, HalfOpenMaxSuccesses: 1}
	p := NewCircuitBreakerProvider(inner, cfg)

	for i := 0; i < 2; i++ {
		_, err := p.Embed(context.Background(), "x")
		assert.Error(t, err)
	}

	assert.Equal(t, "open", p.State())

	_, err := p.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, merr.Is(err, merr.Embedding))
}

func TestCircuitBreakerProviderDimension(t *testing.T) {
	inner := &stubProvider{dimension: 7}
	p := NewCircuitBreakerProvider(inner, DefaultBreakerConfig())
	assert.Equal(t, 7, p.Dimension())
}
