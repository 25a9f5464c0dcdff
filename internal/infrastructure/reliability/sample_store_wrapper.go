package reliability

import (
	"context"
	"time"

	"go.uber.org/zap"

	"soctel/internal/core/domain"
	"soctel/internal/core/ports"
	"soctel/pkg/circuitbreaker"
)

// SampleStoreWrapper wraps a SampleRepository with a circuit breaker so a
// failing storage backend degrades fast instead of stalling every flush.
// Retrying is the caller's concern; the breaker only decides whether a call
// is worth attempting at all.
type SampleStoreWrapper struct {
	store    ports.SampleRepository
	breaker  *circuitbreaker.CircuitBreaker
	observer FlushObserver
	logger   *zap.SugaredLogger
}

// FlushObserver receives timing for every successful batch write.
type FlushObserver interface {
	RecordFlush(duration time.Duration, batchSize int)
}

// NewSampleStoreWrapper creates a wrapper around the given sample store
func NewSampleStoreWrapper(
	store ports.SampleRepository,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *SampleStoreWrapper {
	wrapper := &SampleStoreWrapper{
		store:   store,
		breaker: circuitbreaker.New(cbConfig),
		logger:  logger,
	}

	wrapper.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("sample store circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})

	return wrapper
}

// SetFlushObserver attaches a metrics sink for batch writes.
func (w *SampleStoreWrapper) SetFlushObserver(observer FlushObserver) {
	w.observer = observer
}

func (w *SampleStoreWrapper) Append(ctx context.Context, sessionID domain.SessionID, samples []domain.Sample) error {
	start := time.Now()
	err := w.breaker.Execute(ctx, func() error {
		return w.store.Append(ctx, sessionID, samples)
	})
	if err == nil && w.observer != nil {
		w.observer.RecordFlush(time.Since(start), len(samples))
	}
	return err
}

func (w *SampleStoreWrapper) Get(ctx context.Context, sessionID domain.SessionID, tr domain.TimeRange) ([]domain.Sample, error) {
	var samples []domain.Sample
	err := w.breaker.Execute(ctx, func() error {
		var innerErr error
		samples, innerErr = w.store.Get(ctx, sessionID, tr)
		return innerErr
	})
	return samples, err
}

func (w *SampleStoreWrapper) PurgeOlderThan(ctx context.Context, cutoff time.Time) error {
	return w.breaker.Execute(ctx, func() error {
		return w.store.PurgeOlderThan(ctx, cutoff)
	})
}

// Stats exposes the breaker state for health reporting
func (w *SampleStoreWrapper) Stats() circuitbreaker.Stats {
	return w.breaker.GetStats()
}
