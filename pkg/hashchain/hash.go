// Package hashchain computes and verifies the content and chain hashes that
// back the memory and event hash chains.
//
// All hashes are 32-byte SHA-256 digests, presented to callers as lowercase
// hex strings.
package hashchain

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"
)

// Zero is the sentinel prev_hash for the first record in a chain.
var Zero = [32]byte{}

// ZeroHex is the hex-encoded sentinel.
var ZeroHex = hex.EncodeToString(Zero[:])

// ContentHash computes H(content ‖ agent_id ‖ creation_ts).
// The timestamp is formatted as RFC3339Nano so the hash is reproducible
// given the same inputs, regardless of monotonic clock reading.
func ContentHash(content, agentID string, createdAt time.Time) [32]byte {
	buf := make([]byte, 0, len(content)+len(agentID)+32)
	buf = append(buf, content...)
	buf = append(buf, agentID...)
	buf = append(buf, createdAt.UTC().Format(time.RFC3339Nano)...)
	return sha256.Sum256(buf)
}

// Link computes prev_hash = H(currentContentHash ‖ previousHash), linking a
// record to its predecessor in a per-agent chain. previous should be Zero
// for the first record in the chain.
func Link(currentContentHash, previous [32]byte) [32]byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, currentContentHash[:]...)
	buf = append(buf, previous[:]...)
	return sha256.Sum256(buf)
}

// Hex encodes a 32-byte digest as a lowercase hex string.
func Hex(h [32]byte) string {
	return hex.EncodeToString(h[:])
}

// Parse decodes a hex-encoded digest. It returns an error if the input is
// not exactly 32 bytes when decoded.
func Parse(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("hashchain: invalid hex: %w", err)
	}
	if len(b) != 32 {
		return out, fmt.Errorf("hashchain: expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// Equal performs a constant-time comparison of two digests, used for every
// hash comparison on a verification path.
func Equal(a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// EqualHex is the constant-time comparison for hex-encoded digests of equal
// length; digests of differing length are never equal and are compared in
// non-constant time only to detect the length mismatch itself (the length
// of a hex-encoded SHA-256 digest is never secret).
func EqualHex(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
