package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/scrypster/mnemo/pkg/merr"
)

// BreakerConfig tunes the circuit protecting a Provider from cascading
// failures when the backing embedding model is unavailable.
type BreakerConfig struct {
	MaxFailures          uint32
	Timeout              time.Duration
	HalfOpenMaxSuccesses uint32
}

// DefaultBreakerConfig mirrors the defaults used elsewhere in the stack for
// outbound dependency calls: trip after 3 consecutive failures, stay open
// 30 seconds, and require 2 consecutive successes to close again.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{MaxFailures: 3, Timeout: 30 * time.Second, HalfOpenMaxSuccesses: 2}
}

// CircuitBreakerProvider wraps a Provider so that a struggling embedding
// backend fails fast instead of blocking every remember() call behind a
// timeout once it starts erroring.
type CircuitBreakerProvider struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreakerProvider wraps inner with a circuit breaker using cfg.
func NewCircuitBreakerProvider(inner Provider, cfg BreakerConfig) *CircuitBreakerProvider {
	settings := gobreaker.Settings{
		Name:        "embedding-provider",
		MaxRequests: cfg.HalfOpenMaxSuccesses,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
	}
	return &CircuitBreakerProvider{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (p *CircuitBreakerProvider) Dimension() int { return p.inner.Dimension() }

// Embed runs inner.Embed through the breaker, translating an open circuit
// into a merr.Embedding error so callers can distinguish "temporarily
// unavailable" from "bad input".
func (p *CircuitBreakerProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := p.breaker.Execute(func() (any, error) {
		return p.inner.Embed(ctx, text)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, merr.Wrap(merr.Embedding, "embedding provider circuit is open", err)
		}
		return nil, merr.Wrap(merr.Embedding, "embedding provider failed", err)
	}
	return result.([]float32), nil
}

// State reports the breaker's current state: "closed", "open", or
// "half-open".
func (p *CircuitBreakerProvider) State() string {
	switch p.breaker.State() {
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}
