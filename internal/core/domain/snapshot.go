package domain

import "time"

// ThermalStatus is an ordered thermal band name.
type ThermalStatus string

const (
	ThermalCold     ThermalStatus = "COLD"
	ThermalNormal   ThermalStatus = "NORMAL"
	ThermalWarm     ThermalStatus = "WARM"
	ThermalHot      ThermalStatus = "HOT"
	ThermalOverheat ThermalStatus = "OVERHEAT"
)

// AggregateSnapshot is the live derived view of an active session. It is
// rebuilt from the aggregation window on every accepted sample and never
// persisted as a source of truth.
type AggregateSnapshot struct {
	SessionID         SessionID     `json:"session_id"`
	Timestamp         time.Time     `json:"timestamp"`
	SampleCount       int           `json:"sample_count"`
	DischargeRate     float64       `json:"discharge_rate"` // percent per hour
	PeakDischargeRate float64       `json:"peak_discharge_rate"`
	AvgTemperature    float64       `json:"avg_temperature"`
	MinTemperature    float64       `json:"min_temperature"`
	MaxTemperature    float64       `json:"max_temperature"`
	ThermalStatus     ThermalStatus `json:"thermal_status"`
	AvgFPS            float64       `json:"avg_fps"`
	MinFPS            float64       `json:"min_fps"`
	MaxFPS            float64       `json:"max_fps"`
	JankCount         int           `json:"jank_count"`
	JankRate          float64       `json:"jank_rate"` // percent
	HealthScore       int           `json:"health_score"`
	HealthNotes       []string      `json:"health_notes"`
	// DroppedSamples counts samples shed under the buffer's capacity cap.
	// Nonzero means the session is running in degraded mode.
	DroppedSamples int64 `json:"dropped_samples"`
}
