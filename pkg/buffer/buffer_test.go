package buffer

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]int
}

func (r *recorder) flush(ctx context.Context, batch []int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]int, len(batch))
	copy(cp, batch)
	r.batches = append(r.batches, cp)
	return nil
}

func (r *recorder) all() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}

func TestBuffer_SizeTriggerFlush(t *testing.T) {
	rec := &recorder{}
	b := New[int](3, time.Hour, 100, rec.flush, nil)
	defer b.Stop()

	for i := 1; i <= 3; i++ {
		b.Offer(i)
	}

	// Size trigger is async via the flush channel.
	deadline := time.After(time.Second)
	for {
		rec.mu.Lock()
		flushed := len(rec.batches) > 0
		rec.mu.Unlock()
		if flushed {
			break
		}
		select {
		case <-deadline:
			t.Fatal("size-triggered flush never happened")
		case <-time.After(5 * time.Millisecond):
		}
	}

	got := rec.all()
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("flushed batch = %v, want [1 2 3]", got)
	}
}

func TestBuffer_IntervalTriggerFlush(t *testing.T) {
	rec := &recorder{}
	b := New[int](100, 20*time.Millisecond, 1000, rec.flush, nil)
	defer b.Stop()

	b.Offer(7)

	time.Sleep(80 * time.Millisecond)
	got := rec.all()
	if len(got) != 1 || got[0] != 7 {
		t.Errorf("interval flush produced %v, want [7]", got)
	}
}

func TestBuffer_CapacityDropsOldestKeepsNewest(t *testing.T) {
	rec := &recorder{}
	b := New[int](100, time.Hour, 3, rec.flush, nil)
	defer b.Stop()

	dropped := false
	for i := 1; i <= 5; i++ {
		if b.Offer(i) {
			dropped = true
		}
	}

	if !dropped {
		t.Error("expected Offer to report a drop once capacity was hit")
	}
	if b.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", b.Dropped())
	}

	if err := b.Drain(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := rec.all()
	if len(got) != 3 || got[0] != 3 || got[2] != 5 {
		t.Errorf("drained batch = %v, want [3 4 5] (oldest dropped, newest kept)", got)
	}
}

func TestBuffer_ForwardSeesEveryAcceptedItem(t *testing.T) {
	rec := &recorder{}
	var mu sync.Mutex
	var forwarded []int
	b := New[int](100, time.Hour, 100, rec.flush, func(v int) {
		mu.Lock()
		forwarded = append(forwarded, v)
		mu.Unlock()
	})
	defer b.Stop()

	for i := 1; i <= 4; i++ {
		b.Offer(i)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(forwarded) != 4 {
		t.Errorf("forwarded %d items, want 4 (unbatched, one per offer)", len(forwarded))
	}
}

func TestBuffer_DrainBeforeStopIncludesLastOffer(t *testing.T) {
	rec := &recorder{}
	b := New[int](100, time.Hour, 100, rec.flush, nil)

	b.Offer(1)
	b.Offer(2)

	if err := b.Drain(context.Background()); err != nil {
		t.Fatal(err)
	}
	b.Stop()

	got := rec.all()
	if len(got) != 2 {
		t.Errorf("drain flushed %v, want both buffered items", got)
	}

	if b.PendingCount() != 0 {
		t.Errorf("pending after drain = %d, want 0", b.PendingCount())
	}
}
