package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAgentProfileObserveRunningAverages(t *testing.T) {
	p := &AgentProfile{Agent: "agent-1"}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	p.Observe(1.0, 100, now)
	assert.Equal(t, int64(1), p.TotalMemories)
	assert.Equal(t, 1.0, p.AverageImportance)
	assert.Equal(t, 100.0, p.AverageContentLen)

	p.Observe(0.0, 200, now.Add(time.Second))
	assert.Equal(t, int64(2), p.TotalMemories)
	assert.Equal(t, 0.5, p.AverageImportance)
	assert.Equal(t, 150.0, p.AverageContentLen)
}

func TestAgentProfileObserveBurstWindowsReset(t *testing.T) {
	p := &AgentProfile{}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	p.Observe(0.5, 10, base)
	assert.Equal(t, 1, p.WritesLastMinute)
	assert.Equal(t, 1, p.WritesLastHour)

	p.Observe(0.5, 10, base.Add(30*time.Second))
	assert.Equal(t, 2, p.WritesLastMinute)
	assert.Equal(t, 2, p.WritesLastHour)

	p.Observe(0.5, 10, base.Add(2*time.Minute))
	assert.Equal(t, 1, p.WritesLastMinute, "minute window should reset after gap")
	assert.Equal(t, 3, p.WritesLastHour, "hour window should keep incrementing")

	p.Observe(0.5, 10, base.Add(2*time.Hour))
	assert.Equal(t, 1, p.WritesLastMinute)
	assert.Equal(t, 1, p.WritesLastHour, "hour window should reset after gap")
}
