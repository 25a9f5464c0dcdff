package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"soctel/internal/core/domain"
	"soctel/internal/infrastructure/repositories/memory"
	"soctel/pkg/circuitbreaker"
)

type failingStore struct {
	err   error
	calls int
}

func (f *failingStore) Append(ctx context.Context, sessionID domain.SessionID, samples []domain.Sample) error {
	f.calls++
	return f.err
}

func (f *failingStore) Get(ctx context.Context, sessionID domain.SessionID, tr domain.TimeRange) ([]domain.Sample, error) {
	f.calls++
	return nil, f.err
}

func (f *failingStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) error {
	f.calls++
	return f.err
}

func TestSampleStoreWrapper_PassThrough(t *testing.T) {
	wrapper := NewSampleStoreWrapper(
		memory.NewMemorySampleRepository(),
		circuitbreaker.DefaultConfig(),
		zap.NewNop().Sugar(),
	)
	ctx := context.Background()

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := wrapper.Append(ctx, "sess_1", []domain.Sample{
		{Timestamp: t0, DeviceID: "dev_1", Level: 100},
	})
	require.NoError(t, err)

	got, err := wrapper.Get(ctx, "sess_1", domain.TimeRange{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSampleStoreWrapper_OpensAfterRepeatedFailures(t *testing.T) {
	cfg := circuitbreaker.DefaultConfig()
	cfg.FailureThreshold = 3

	store := &failingStore{err: errors.New("store down")}
	wrapper := NewSampleStoreWrapper(store, cfg, zap.NewNop().Sugar())
	ctx := context.Background()

	for i := 0; i < cfg.FailureThreshold; i++ {
		err := wrapper.Append(ctx, "sess_1", nil)
		require.Error(t, err)
	}

	callsBefore := store.calls
	err := wrapper.Append(ctx, "sess_1", nil)
	require.Error(t, err)

	// The open breaker rejects without touching the store.
	assert.Equal(t, callsBefore, store.calls)
	assert.Equal(t, circuitbreaker.StateOpen, wrapper.Stats().State)
}
