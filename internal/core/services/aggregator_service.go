package services

import (
	"sync"
	"time"

	"soctel/internal/core/domain"
)

type AggregatorConfig struct {
	Window        time.Duration
	PeakWindow    time.Duration
	JankThreshold float64 // ms
}

func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		Window:        10 * time.Minute,
		PeakWindow:    10 * time.Minute,
		JankThreshold: 33.4,
	}
}

// Aggregator maintains a time-bounded window of recent samples per active
// session and rebuilds the session's AggregateSnapshot on every update. The
// window itself is the only state; every derived number is a pure function
// of the window plus fixed config.
type Aggregator struct {
	mu  sync.RWMutex
	cfg AggregatorConfig

	windows map[domain.SessionID]*sessionWindow
}

func NewAggregator(cfg AggregatorConfig) *Aggregator {
	return &Aggregator{
		cfg:     cfg,
		windows: make(map[domain.SessionID]*sessionWindow),
	}
}

// sessionWindow holds the window samples plus incremental trackers so that
// extremes survive eviction without full rescans.
type sessionWindow struct {
	samples []domain.Sample
	seq     int // sequence number of samples[0]

	sumTemp    float64
	minTemp    *extremeTracker
	maxTemp    *extremeTracker
	jankCount  int
	frameCount int
	sumFPS     float64
	fpsSamples int
}

func newSessionWindow() *sessionWindow {
	return &sessionWindow{
		minTemp: newExtremeTracker(func(a, b float64) bool { return a <= b }),
		maxTemp: newExtremeTracker(func(a, b float64) bool { return a >= b }),
	}
}

// extremeTracker is a monotonic deque keyed by sample sequence number. Push
// and evict are O(1) amortized; Current is O(1).
type extremeTracker struct {
	seqs   []int
	values []float64
	better func(a, b float64) bool
}

func newExtremeTracker(better func(a, b float64) bool) *extremeTracker {
	return &extremeTracker{better: better}
}

func (t *extremeTracker) Push(seq int, v float64) {
	for len(t.values) > 0 && t.better(v, t.values[len(t.values)-1]) {
		t.values = t.values[:len(t.values)-1]
		t.seqs = t.seqs[:len(t.seqs)-1]
	}
	t.seqs = append(t.seqs, seq)
	t.values = append(t.values, v)
}

// Evict drops tracked entries older than minSeq.
func (t *extremeTracker) Evict(minSeq int) {
	for len(t.seqs) > 0 && t.seqs[0] < minSeq {
		t.seqs = t.seqs[1:]
		t.values = t.values[1:]
	}
}

func (t *extremeTracker) Current() (float64, bool) {
	if len(t.values) == 0 {
		return 0, false
	}
	return t.values[0], true
}

// Track starts a window for a newly started session.
func (a *Aggregator) Track(sessionID domain.SessionID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.windows[sessionID]; !exists {
		a.windows[sessionID] = newSessionWindow()
	}
}

// Drop tears down a session's window. Called at session end.
func (a *Aggregator) Drop(sessionID domain.SessionID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.windows, sessionID)
}

// Update appends a sample to the session's window, evicts anything older
// than the window bound relative to the newest sample, and returns the
// rebuilt snapshot. Returns nil for untracked sessions.
func (a *Aggregator) Update(sample domain.Sample) *domain.AggregateSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	w, exists := a.windows[sample.SessionID]
	if !exists {
		return nil
	}

	seq := w.seq + len(w.samples)
	w.samples = append(w.samples, sample)
	w.sumTemp += sample.Temperature
	w.minTemp.Push(seq, sample.Temperature)
	w.maxTemp.Push(seq, sample.Temperature)
	if sample.FrameTime > 0 {
		w.frameCount++
		if sample.FrameTime > a.cfg.JankThreshold {
			w.jankCount++
		}
	}
	if sample.FPS > 0 {
		w.fpsSamples++
		w.sumFPS += sample.FPS
	}

	a.evict(w, sample.Timestamp)

	return a.buildSnapshot(sample.SessionID, w)
}

// evict removes samples that fell out of the window, updating the
// incremental trackers instead of rescanning.
func (a *Aggregator) evict(w *sessionWindow, newest time.Time) {
	cutoff := newest.Add(-a.cfg.Window)
	for len(w.samples) > 0 && w.samples[0].Timestamp.Before(cutoff) {
		old := w.samples[0]
		w.samples = w.samples[1:]
		w.seq++
		w.sumTemp -= old.Temperature
		if old.FrameTime > 0 {
			w.frameCount--
			if old.FrameTime > a.cfg.JankThreshold {
				w.jankCount--
			}
		}
		if old.FPS > 0 {
			w.fpsSamples--
			w.sumFPS -= old.FPS
		}
	}
	w.minTemp.Evict(w.seq)
	w.maxTemp.Evict(w.seq)
}

// Snapshot returns the current snapshot for an active session.
func (a *Aggregator) Snapshot(sessionID domain.SessionID) (*domain.AggregateSnapshot, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	w, exists := a.windows[sessionID]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}
	return a.buildSnapshot(sessionID, w), nil
}

func (a *Aggregator) buildSnapshot(sessionID domain.SessionID, w *sessionWindow) *domain.AggregateSnapshot {
	snap := &domain.AggregateSnapshot{
		SessionID:   sessionID,
		Timestamp:   time.Now(),
		SampleCount: len(w.samples),
	}
	if len(w.samples) == 0 {
		snap.ThermalStatus = ClassifyThermal(DefaultThermalBands, 0)
		snap.HealthScore, snap.HealthNotes = HealthScore(HealthInputs{})
		return snap
	}

	snap.DischargeRate = DischargeRate(w.samples)
	snap.PeakDischargeRate = PeakDischargeRate(w.samples, a.cfg.PeakWindow)

	snap.AvgTemperature = w.sumTemp / float64(len(w.samples))
	if v, ok := w.minTemp.Current(); ok {
		snap.MinTemperature = v
	}
	if v, ok := w.maxTemp.Current(); ok {
		snap.MaxTemperature = v
	}
	snap.ThermalStatus = ClassifyThermal(DefaultThermalBands, snap.MaxTemperature)

	snap.JankCount = w.jankCount
	if w.frameCount > 0 {
		snap.JankRate = float64(w.jankCount) / float64(w.frameCount) * 100
	}
	if w.fpsSamples > 0 {
		snap.AvgFPS = w.sumFPS / float64(w.fpsSamples)
		_, snap.MinFPS, snap.MaxFPS = FPSStats(w.samples)
	}

	snap.HealthScore, snap.HealthNotes = HealthScore(HealthInputs{
		AvgTemperature: snap.AvgTemperature,
		MaxTemperature: snap.MaxTemperature,
		JankRate:       snap.JankRate,
	})

	return snap
}

// BuildRollup computes the end-of-session summary from the full stored
// sample list. Returns nil for an empty session: rollups are absent, never
// zeroed.
func BuildRollup(session *domain.Session, samples []domain.Sample, cfg AggregatorConfig) *domain.Rollup {
	if len(samples) == 0 {
		return nil
	}

	first := samples[0]
	last := samples[len(samples)-1]

	rollup := &domain.Rollup{
		DurationMinutes:   int64(last.Timestamp.Sub(first.Timestamp) / time.Minute),
		AvgDischargeRate:  DischargeRate(samples),
		PeakDischargeRate: PeakDischargeRate(samples, cfg.PeakWindow),
		SampleCount:       len(samples),
	}
	rollup.AvgTemperature, rollup.MinTemperature, rollup.MaxTemperature = TemperatureStats(samples)
	rollup.AvgFPS, rollup.MinFPS, rollup.MaxFPS = FPSStats(samples)
	rollup.JankCount, rollup.JankRate = JankStats(samples, cfg.JankThreshold)
	rollup.HealthScore, rollup.HealthNotes = HealthScore(HealthInputs{
		AvgTemperature: rollup.AvgTemperature,
		MaxTemperature: rollup.MaxTemperature,
		JankRate:       rollup.JankRate,
	})

	return rollup
}
