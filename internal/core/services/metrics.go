package services

import (
	"time"

	"soctel/internal/core/domain"
)

// Pure window computations. Every function here depends only on the sample
// slice and fixed configuration, so results are exactly reproducible from
// stored samples.

// DischargeRate returns the battery level drop in percent per hour over the
// given samples. Returns 0 for fewer than 2 samples or zero elapsed time.
func DischargeRate(samples []domain.Sample) float64 {
	if len(samples) < 2 {
		return 0
	}
	first := samples[0]
	last := samples[len(samples)-1]
	hours := last.Timestamp.Sub(first.Timestamp).Hours()
	if hours <= 0 {
		return 0
	}
	return float64(first.Level-last.Level) / hours
}

// PeakDischargeRate scans every start point for the sub-window of at most
// the given duration that maximizes the discharge rate. The end pointer only
// moves forward, so the scan is linear. Ties keep the earliest start.
func PeakDischargeRate(samples []domain.Sample, window time.Duration) float64 {
	if len(samples) < 2 {
		return 0
	}

	var maxRate float64
	j := 0
	for i := range samples {
		if j < i {
			j = i
		}
		limit := samples[i].Timestamp.Add(window)
		for j+1 < len(samples) && !samples[j+1].Timestamp.After(limit) {
			j++
		}
		if j == i {
			continue
		}
		hours := samples[j].Timestamp.Sub(samples[i].Timestamp).Hours()
		if hours <= 0 {
			continue
		}
		rate := float64(samples[i].Level-samples[j].Level) / hours
		if rate > maxRate {
			maxRate = rate
		}
	}

	return maxRate
}

// JankStats counts frame-bearing samples and those whose frame time exceeds
// the threshold. Rate is a percentage in [0,100]; 0 when no frames were seen.
func JankStats(samples []domain.Sample, thresholdMs float64) (jankCount int, jankRate float64) {
	total := 0
	for _, s := range samples {
		if s.FrameTime <= 0 {
			continue
		}
		total++
		if s.FrameTime > thresholdMs {
			jankCount++
		}
	}
	if total == 0 {
		return 0, 0
	}
	return jankCount, float64(jankCount) / float64(total) * 100
}

// TemperatureStats returns avg/min/max temperature over the samples.
// All zeros for an empty slice.
func TemperatureStats(samples []domain.Sample) (avg, min, max float64) {
	if len(samples) == 0 {
		return 0, 0, 0
	}
	min = samples[0].Temperature
	max = samples[0].Temperature
	sum := 0.0
	for _, s := range samples {
		sum += s.Temperature
		if s.Temperature < min {
			min = s.Temperature
		}
		if s.Temperature > max {
			max = s.Temperature
		}
	}
	return sum / float64(len(samples)), min, max
}

// FPSStats returns avg/min/max FPS over the frame-bearing samples.
func FPSStats(samples []domain.Sample) (avg, min, max float64) {
	count := 0
	sum := 0.0
	for _, s := range samples {
		if s.FPS <= 0 {
			continue
		}
		if count == 0 {
			min = s.FPS
			max = s.FPS
		}
		if s.FPS < min {
			min = s.FPS
		}
		if s.FPS > max {
			max = s.FPS
		}
		sum += s.FPS
		count++
	}
	if count == 0 {
		return 0, 0, 0
	}
	return sum / float64(count), min, max
}
