package domain

import (
	"fmt"
	"time"
)

type SessionState string

const (
	StateIdle   SessionState = "idle"
	StateActive SessionState = "active"
	StateEnded  SessionState = "ended"
)

// Session is a bounded recording interval for one device. At most one session
// per device may be active at a time. EndTime, once set, is immutable.
type Session struct {
	ID        SessionID    `json:"id"`
	DeviceID  DeviceID     `json:"device_id"`
	Scenario  string       `json:"scenario"`
	State     SessionState `json:"state"`
	StartTime time.Time    `json:"start_time"`
	EndTime   *time.Time   `json:"end_time,omitempty"`
	Completed bool         `json:"completed"`
	Rollup    *Rollup      `json:"rollup,omitempty"`
}

func (s *Session) IsActive() bool {
	return s.State == StateActive
}

// Rollup holds the aggregate summary computed once a session ends. A session
// that ended with zero samples carries no rollup at all.
type Rollup struct {
	DurationMinutes   int64    `json:"duration_minutes"`
	AvgDischargeRate  float64  `json:"avg_discharge_rate"` // percent per hour
	PeakDischargeRate float64  `json:"peak_discharge_rate"`
	AvgTemperature    float64  `json:"avg_temperature"`
	MinTemperature    float64  `json:"min_temperature"`
	MaxTemperature    float64  `json:"max_temperature"`
	AvgFPS            float64  `json:"avg_fps"`
	MinFPS            float64  `json:"min_fps"`
	MaxFPS            float64  `json:"max_fps"`
	JankCount         int      `json:"jank_count"`
	JankRate          float64  `json:"jank_rate"` // percent
	HealthScore       int      `json:"health_score"`
	HealthNotes       []string `json:"health_notes"`
	SampleCount       int      `json:"sample_count"`
	DroppedSamples    int64    `json:"dropped_samples,omitempty"`
}

// DurationText renders the rollup duration in human-readable form.
func (r *Rollup) DurationText() string {
	hours := r.DurationMinutes / 60
	mins := r.DurationMinutes % 60
	if hours > 0 {
		return fmt.Sprintf("%dh%dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

// DischargeRateText renders the average discharge rate in human-readable form.
func (r *Rollup) DischargeRateText() string {
	return fmt.Sprintf("%.1f%%/h", r.AvgDischargeRate)
}
