package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"soctel/internal/core/domain"
	"soctel/internal/core/ports"
)

// MemorySampleRepository stores samples per session in arrival order. A
// sample carrying the same device and timestamp as a stored one replaces
// it, so a retried batch never double-counts.
type MemorySampleRepository struct {
	samples map[domain.SessionID][]domain.Sample
	mu      sync.RWMutex
}

func NewMemorySampleRepository() ports.SampleRepository {
	return &MemorySampleRepository{
		samples: make(map[domain.SessionID][]domain.Sample),
	}
}

func (r *MemorySampleRepository) Append(ctx context.Context, sessionID domain.SessionID, samples []domain.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := r.samples[sessionID]
	for _, sample := range samples {
		replaced := false
		for i := range stored {
			if stored[i].DeviceID == sample.DeviceID && stored[i].Timestamp.Equal(sample.Timestamp) {
				stored[i] = sample
				replaced = true
				break
			}
		}
		if !replaced {
			stored = append(stored, sample)
		}
	}
	r.samples[sessionID] = stored
	return nil
}

func (r *MemorySampleRepository) Get(ctx context.Context, sessionID domain.SessionID, tr domain.TimeRange) ([]domain.Sample, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.samples[sessionID]
	out := make([]domain.Sample, 0, len(stored))
	for _, sample := range stored {
		if tr.Contains(sample.Timestamp) {
			out = append(out, sample)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (r *MemorySampleRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for sessionID, stored := range r.samples {
		kept := stored[:0]
		for _, sample := range stored {
			if !sample.Timestamp.Before(cutoff) {
				kept = append(kept, sample)
			}
		}
		if len(kept) == 0 {
			delete(r.samples, sessionID)
		} else {
			r.samples[sessionID] = kept
		}
	}
	return nil
}
