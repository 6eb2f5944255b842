package hashchain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHashDeterministic(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h1 := ContentHash("hello", "agent-1", ts)
	h2 := ContentHash("hello", "agent-1", ts)
	assert.Equal(t, h1, h2)

	h3 := ContentHash("hello", "agent-2", ts)
	assert.NotEqual(t, h1, h3)
}

func TestLinkChains(t *testing.T) {
	ts := time.Now()
	c1 := ContentHash("a", "agent-1", ts)
	c2 := ContentHash("b", "agent-1", ts.Add(time.Second))

	p1 := Link(c1, Zero)
	assert.NotEqual(t, Zero, p1)

	p2 := Link(c2, c1)
	assert.NotEqual(t, p1, p2)
}

func TestHexRoundTrip(t *testing.T) {
	ts := time.Now()
	h := ContentHash("round-trip", "agent-1", ts)
	s := Hex(h)
	parsed, err := Parse(s)
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse("not-hex")
	assert.Error(t, err)

	_, err = Parse("ab")
	assert.Error(t, err)
}

func TestEqualConstantTime(t *testing.T) {
	ts := time.Now()
	h := ContentHash("x", "agent-1", ts)
	assert.True(t, Equal(h, h))
	assert.False(t, Equal(h, Zero))
}

func TestEqualHex(t *testing.T) {
	assert.True(t, EqualHex(ZeroHex, ZeroHex))
	assert.False(t, EqualHex(ZeroHex, "ab"))
}
