package domain

import "time"

type DeviceID string
type SessionID string

// SampleSource tags where a sample entered the system.
type SampleSource string

const (
	SourceBatch SampleSource = "sample_batch"
	SourceLive  SampleSource = "live_metric"
)

// Sample is one timestamped measurement belonging to a session. Samples are
// immutable after insertion; a sample with the same device and timestamp
// replaces the previous one instead of being duplicated.
type Sample struct {
	Timestamp   time.Time    `json:"timestamp"`
	SessionID   SessionID    `json:"session_id"`
	DeviceID    DeviceID     `json:"device_id"`
	Level       int          `json:"level"`       // battery level, percent
	Temperature float64      `json:"temperature"` // degrees C
	Voltage     int          `json:"voltage"`     // mV
	Current     int          `json:"current"`     // mA
	FPS         float64      `json:"fps"`
	FrameTime   float64      `json:"frame_time"` // ms
	Source      SampleSource `json:"source"`
}

// TimeRange bounds a sample query. Zero values mean unbounded on that side.
type TimeRange struct {
	From time.Time
	To   time.Time
}

func (r TimeRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}
