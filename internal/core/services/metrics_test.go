package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"soctel/internal/core/domain"
)

func batterySample(at time.Time, level int) domain.Sample {
	return domain.Sample{Timestamp: at, Level: level}
}

func TestDischargeRate(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	samples := []domain.Sample{
		batterySample(t0, 100),
		batterySample(t0.Add(15*time.Minute), 95),
		batterySample(t0.Add(30*time.Minute), 90),
	}

	// 10% over half an hour is 20% per hour.
	assert.InDelta(t, 20.0, DischargeRate(samples), 1e-9)
}

func TestDischargeRate_Degenerate(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Zero(t, DischargeRate(nil))
	assert.Zero(t, DischargeRate([]domain.Sample{batterySample(t0, 80)}))

	// Identical timestamps yield no elapsed time.
	same := []domain.Sample{batterySample(t0, 80), batterySample(t0, 70)}
	assert.Zero(t, DischargeRate(same))
}

func TestDischargeRate_ChargingIsNegative(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	samples := []domain.Sample{
		batterySample(t0, 50),
		batterySample(t0.Add(time.Hour), 60),
	}
	assert.InDelta(t, -10.0, DischargeRate(samples), 1e-9)
}

func TestPeakDischargeRate_FindsSteepSubWindow(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// 5% in the first 10 minutes (30%/h), then nearly flat.
	samples := []domain.Sample{
		batterySample(t0, 100),
		batterySample(t0.Add(10*time.Minute), 95),
		batterySample(t0.Add(20*time.Minute), 94),
		batterySample(t0.Add(30*time.Minute), 94),
	}

	whole := DischargeRate(samples)
	peak := PeakDischargeRate(samples, 10*time.Minute)

	assert.InDelta(t, 30.0, peak, 1e-9)
	assert.Greater(t, peak, whole)
}

func TestPeakDischargeRate_NeverBelowWholeWindow(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	samples := []domain.Sample{
		batterySample(t0, 100),
		batterySample(t0.Add(5*time.Minute), 98),
		batterySample(t0.Add(10*time.Minute), 96),
	}

	// A peak window covering the whole span must report at least the
	// whole-span rate.
	peak := PeakDischargeRate(samples, time.Hour)
	assert.GreaterOrEqual(t, peak, DischargeRate(samples))
}

func TestPeakDischargeRate_TooFewSamples(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Zero(t, PeakDischargeRate(nil, 10*time.Minute))
	assert.Zero(t, PeakDischargeRate([]domain.Sample{batterySample(t0, 90)}, 10*time.Minute))
}

func TestJankStats(t *testing.T) {
	samples := []domain.Sample{
		{FrameTime: 16.7},
		{FrameTime: 40.0},
		{FrameTime: 33.5},
		{FrameTime: 10.0},
		{FrameTime: 0}, // battery-only sample, not frame-bearing
	}

	count, rate := JankStats(samples, 33.4)
	assert.Equal(t, 2, count)
	assert.InDelta(t, 50.0, rate, 1e-9)
}

func TestJankStats_NoFrames(t *testing.T) {
	count, rate := JankStats([]domain.Sample{{Level: 90}}, 33.4)
	assert.Zero(t, count)
	assert.Zero(t, rate)
}

func TestTemperatureStats(t *testing.T) {
	samples := []domain.Sample{
		{Temperature: 30},
		{Temperature: 40},
		{Temperature: 35},
	}
	avg, min, max := TemperatureStats(samples)
	assert.InDelta(t, 35.0, avg, 1e-9)
	assert.Equal(t, 30.0, min)
	assert.Equal(t, 40.0, max)
}

func TestFPSStats_SkipsNonFrameSamples(t *testing.T) {
	samples := []domain.Sample{
		{FPS: 60},
		{FPS: 0},
		{FPS: 30},
	}
	avg, min, max := FPSStats(samples)
	assert.InDelta(t, 45.0, avg, 1e-9)
	assert.Equal(t, 30.0, min)
	assert.Equal(t, 60.0, max)
}
