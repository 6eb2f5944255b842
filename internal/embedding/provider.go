// Package embedding defines the contract the memory engine uses to turn
// text into vectors for semantic recall. Real embedding providers (model
// hosting, API calls) are out of scope; this package supplies the
// interface plus a deterministic local implementation exercised by tests
// and by default configuration.
package embedding

import "context"

// Provider converts text into a fixed-dimension vector.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}
