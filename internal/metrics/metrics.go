package metrics

import "time"

type DeviceMetrics struct {
	Device      string `json:"device"`
	Steps       int    `json:"steps"`
	Invocations int    `json:"invocations"`
	Errors      int    `json:"errors"`
}

type PassMetrics struct {
	Pass       int             `json:"pass"`
	Start      time.Time       `json:"start"`
	End        time.Time       `json:"end"`
	DurationMs int64           `json:"duration_ms"`
	Devices    []DeviceMetrics `json:"devices"`
}

type SessionMetrics struct {
	SessionID  string        `json:"session_id"`
	Start      time.Time     `json:"start"`
	End        time.Time     `json:"end"`
	DurationMs int64         `json:"duration_ms"`
	Achieved   bool          `json:"achieved"`
	Passes     []PassMetrics `json:"passes"`
}

// Compute derived fields for a pass.
func (p *PassMetrics) Finalize() {
	p.DurationMs = p.End.Sub(p.Start).Milliseconds()
}

// Compute derived fields for the session.
func (m *SessionMetrics) Finalize() {
	m.End = time.Now()
	m.DurationMs = m.End.Sub(m.Start).Milliseconds()
}
