package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidIdentifier(t *testing.T) {
	assert.True(t, ValidIdentifier("agent-1"))
	assert.True(t, ValidIdentifier("org.team_a"))
	assert.False(t, ValidIdentifier(""))
	assert.False(t, ValidIdentifier("has space"))
	assert.False(t, ValidIdentifier("has/slash"))
	assert.False(t, ValidIdentifier(strings.Repeat("a", 257)))
	assert.True(t, ValidIdentifier(strings.Repeat("a", 256)))
}

func TestClampImportance(t *testing.T) {
	assert.Equal(t, 0.0, ClampImportance(-1))
	assert.Equal(t, 1.0, ClampImportance(2))
	assert.Equal(t, 0.5, ClampImportance(0.5))
}

func TestValidRelationType(t *testing.T) {
	assert.True(t, ValidRelationType(RelationRelatedTo))
	assert.True(t, ValidRelationType("custom_relation"))
	assert.False(t, ValidRelationType(""))
}
