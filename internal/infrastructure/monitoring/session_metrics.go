package monitoring

import (
	"context"

	"soctel/internal/core/domain"
	"soctel/internal/core/ports"
)

// SessionMetricsWrapper decorates a SessionService so session lifecycle
// transitions move the Prometheus gauges.
type SessionMetricsWrapper struct {
	ports.SessionService
	collector *PrometheusCollector
}

func NewSessionMetricsWrapper(service ports.SessionService, collector *PrometheusCollector) *SessionMetricsWrapper {
	return &SessionMetricsWrapper{
		SessionService: service,
		collector:      collector,
	}
}

func (w *SessionMetricsWrapper) Start(ctx context.Context, deviceID domain.DeviceID, scenario string) (*domain.Session, error) {
	session, err := w.SessionService.Start(ctx, deviceID, scenario)
	if err != nil {
		return nil, err
	}
	w.collector.RecordSessionStarted()
	return session, nil
}

// InstrumentedPublisher mirrors every published snapshot into the per-session
// gauges before handing it to the real publisher. Session-end accounting
// happens on CloseSession, which fires exactly once per ended session, so
// idempotent End calls cannot drift the gauges.
type InstrumentedPublisher struct {
	inner     ports.SnapshotPublisher
	collector *PrometheusCollector
}

func NewInstrumentedPublisher(inner ports.SnapshotPublisher, collector *PrometheusCollector) *InstrumentedPublisher {
	return &InstrumentedPublisher{inner: inner, collector: collector}
}

func (p *InstrumentedPublisher) Publish(snapshot *domain.AggregateSnapshot) {
	p.collector.UpdateSessionMetrics(snapshot)
	p.inner.Publish(snapshot)
}

func (p *InstrumentedPublisher) CloseSession(sessionID domain.SessionID) {
	p.collector.RecordSessionEnded(sessionID)
	p.inner.CloseSession(sessionID)
}
