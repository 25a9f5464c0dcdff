package domain

import "time"

// DeviceInfo is what a device announces about itself during handshake.
type DeviceInfo struct {
	Serial             string `json:"serial"`
	Label              string `json:"label"`
	Model              string `json:"model"`
	ReportsTemperature bool   `json:"reports_temperature"`
	ReportsGPU         bool   `json:"reports_gpu"`
}

// Device is a known device link. Created on first handshake, refreshed on
// every inbound message, pruned once it stays silent well past the
// liveness window.
type Device struct {
	ID                 DeviceID  `json:"id"`
	Serial             string    `json:"serial,omitempty"`
	Label              string    `json:"label"`
	Model              string    `json:"model"`
	ReportsTemperature bool      `json:"reports_temperature"`
	ReportsGPU         bool      `json:"reports_gpu"`
	ConnectedAt        time.Time `json:"connected_at"`
	LastSeen           time.Time `json:"last_seen"`
}

// StaleSince reports whether the device has been silent longer than window.
func (d *Device) StaleSince(now time.Time, window time.Duration) bool {
	return now.Sub(d.LastSeen) > window
}
