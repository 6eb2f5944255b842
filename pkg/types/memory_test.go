package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsValidMemoryType(t *testing.T) {
	assert.True(t, IsValidMemoryType(MemoryTypeWorking))
	assert.True(t, IsValidMemoryType(MemoryTypeEpisodic))
	assert.True(t, IsValidMemoryType(MemoryTypeSemantic))
	assert.True(t, IsValidMemoryType(MemoryTypeProcedural))
	assert.False(t, IsValidMemoryType(MemoryType("strategic")))
	assert.False(t, IsValidMemoryType(MemoryType("")))
}

func TestIsValidConsolidationTransition(t *testing.T) {
	assert.True(t, IsValidConsolidationTransition(ConsolidationRaw, ConsolidationActive))
	assert.True(t, IsValidConsolidationTransition(ConsolidationActive, ConsolidationPending))
	assert.True(t, IsValidConsolidationTransition(ConsolidationPending, ConsolidationActive))
	assert.True(t, IsValidConsolidationTransition(ConsolidationForgotten, ConsolidationForgotten))
	assert.False(t, IsValidConsolidationTransition(ConsolidationForgotten, ConsolidationActive))
	assert.False(t, IsValidConsolidationTransition(ConsolidationArchived, ConsolidationRaw))
}

func TestMemoryRecordIsExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := &MemoryRecord{}
	assert.False(t, m.IsExpired(now))

	past := now.Add(-time.Hour)
	m.ExpiresAt = &past
	assert.True(t, m.IsExpired(now))

	future := now.Add(time.Hour)
	m.ExpiresAt = &future
	assert.False(t, m.IsExpired(now))
}

func TestMemoryRecordRetrievable(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	m := &MemoryRecord{ConsolidationState: ConsolidationActive}
	assert.True(t, m.Retrievable(now))

	forgotten := &MemoryRecord{ConsolidationState: ConsolidationForgotten}
	assert.False(t, forgotten.Retrievable(now))

	quarantined := &MemoryRecord{ConsolidationState: ConsolidationActive, Quarantined: true}
	assert.False(t, quarantined.Retrievable(now))

	deletedAt := now.Add(-time.Minute)
	deleted := &MemoryRecord{ConsolidationState: ConsolidationActive, DeletedAt: &deletedAt}
	assert.False(t, deleted.Retrievable(now))

	expiredAt := now.Add(-time.Minute)
	expired := &MemoryRecord{ConsolidationState: ConsolidationActive, ExpiresAt: &expiredAt}
	assert.False(t, expired.Retrievable(now))
}

func TestDefaultDecayRate(t *testing.T) {
	assert.Equal(t, 0.05, DefaultDecayRate(MemoryTypeWorking))
	assert.Equal(t, 0.01, DefaultDecayRate(MemoryTypeEpisodic))
	assert.Equal(t, 0.001, DefaultDecayRate(MemoryTypeSemantic))
	assert.Equal(t, 0.002, DefaultDecayRate(MemoryTypeProcedural))
	assert.Equal(t, 0.01, DefaultDecayRate(MemoryType("unknown")))
}

func TestMemoryRecordEffectiveDecayRate(t *testing.T) {
	m := &MemoryRecord{MemoryType: MemoryTypeSemantic}
	assert.Equal(t, 0.001, m.EffectiveDecayRate())

	custom := 0.5
	m.DecayRate = &custom
	assert.Equal(t, 0.5, m.EffectiveDecayRate())
}
