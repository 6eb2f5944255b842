package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// DeterministicProvider derives a vector from the SHA-256 hash of its
// input, expanded to the target dimension by re-hashing with an
// incrementing counter. It has no semantic meaning — identical content
// always maps to the same vector, and that is the only property it
// guarantees — but it lets the recall pipeline, RRF fusion, and tests
// exercise the vector-search code path without a network-backed model.
type DeterministicProvider struct {
	dimension int
}

// NewDeterministicProvider returns a DeterministicProvider producing
// vectors of the given dimension.
func NewDeterministicProvider(dimension int) *DeterministicProvider {
	if dimension <= 0 {
		dimension = 32
	}
	return &DeterministicProvider{dimension: dimension}
}

func (p *DeterministicProvider) Dimension() int { return p.dimension }

// Embed hashes text into p.dimension float32 components in [-1, 1] and
// L2-normalizes the result.
func (p *DeterministicProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	out := make([]float32, p.dimension)
	block := 0
	var buf [32]byte
	var offset int

	for i := range out {
		if offset == 0 {
			h := sha256.Sum256(append([]byte(text), byte(block)))
			buf = h
			block++
		}
		bits := binary.LittleEndian.Uint32(buf[offset : offset+4])
		out[i] = (float32(bits)/float32(math.MaxUint32))*2 - 1
		offset += 4
		if offset >= len(buf) {
			offset = 0
		}
	}

	var mag float64
	for _, v := range out {
		mag += float64(v) * float64(v)
	}
	mag = math.Sqrt(mag)
	if mag > 0 {
		for i := range out {
			out[i] = float32(float64(out[i]) / mag)
		}
	}
	return out, nil
}
