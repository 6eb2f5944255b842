package types

import "time"

// AgentProfile is a rolling behavioral summary for one agent, consulted by
// the anomaly detector and the lifecycle engine's quarantine heuristics.
type AgentProfile struct {
	Agent              string    `json:"agent_id"`
	TotalMemories      int64     `json:"total_memories"`
	AverageImportance  float64   `json:"average_importance"`
	AverageContentLen  float64   `json:"average_content_length"`
	LastWriteAt        time.Time `json:"last_write_at"`
	WritesLastMinute   int       `json:"writes_last_minute"`
	WritesLastHour     int       `json:"writes_last_hour"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Observe folds one new memory write into the running profile, updating
// incremental averages and the write-burst counters. now must be
// monotonically non-decreasing across calls for burst windows to mean
// anything.
func (p *AgentProfile) Observe(importance float64, contentLen int, now time.Time) {
	n := float64(p.TotalMemories)
	p.AverageImportance = (p.AverageImportance*n + importance) / (n + 1)
	p.AverageContentLen = (p.AverageContentLen*n + float64(contentLen)) / (n + 1)
	p.TotalMemories++

	if !p.LastWriteAt.IsZero() && now.Sub(p.LastWriteAt) < time.Minute {
		p.WritesLastMinute++
	} else {
		p.WritesLastMinute = 1
	}
	if !p.LastWriteAt.IsZero() && now.Sub(p.LastWriteAt) < time.Hour {
		p.WritesLastHour++
	} else {
		p.WritesLastHour = 1
	}

	p.LastWriteAt = now
	p.UpdatedAt = now
}
