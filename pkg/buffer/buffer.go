package buffer

import (
	"context"
	"sync"
	"time"
)

// FlushFunc receives a drained batch in arrival order.
type FlushFunc[T any] func(ctx context.Context, batch []T) error

// ForwardFunc receives each accepted item immediately, before any batching.
type ForwardFunc[T any] func(item T)

// Buffer batches bursty inbound items and flushes them either when the batch
// size threshold is reached or when the flush interval elapses, whichever
// comes first. Offers never block: once the hard capacity is reached the
// oldest pending item is dropped and counted, newest preserved.
type Buffer[T any] struct {
	flushSize     int
	flushInterval time.Duration
	capacity      int

	mu      sync.Mutex
	pending []T
	dropped int64

	// flushMu serializes flush processing so a timer flush and a forced
	// final flush can never interleave out of order.
	flushMu sync.Mutex

	flushChan chan struct{}
	stopChan  chan struct{}
	stopOnce  sync.Once

	flush   FlushFunc[T]
	forward ForwardFunc[T]
}

// New creates a buffer and starts its flush loop. forward may be nil.
func New[T any](flushSize int, flushInterval time.Duration, capacity int, flush FlushFunc[T], forward ForwardFunc[T]) *Buffer[T] {
	b := &Buffer[T]{
		flushSize:     flushSize,
		flushInterval: flushInterval,
		capacity:      capacity,
		pending:       make([]T, 0, flushSize),
		flushChan:     make(chan struct{}, 1),
		stopChan:      make(chan struct{}),
		flush:         flush,
		forward:       forward,
	}

	go b.run()

	return b
}

// Offer adds an item to the buffer. It never blocks and never fails; the
// returned flag reports whether an older pending item had to be dropped to
// make room.
func (b *Buffer[T]) Offer(item T) bool {
	b.mu.Lock()
	var droppedOldest bool
	if b.capacity > 0 && len(b.pending) >= b.capacity {
		copy(b.pending, b.pending[1:])
		b.pending = b.pending[:len(b.pending)-1]
		b.dropped++
		droppedOldest = true
	}
	b.pending = append(b.pending, item)
	shouldFlush := len(b.pending) >= b.flushSize
	b.mu.Unlock()

	if b.forward != nil {
		b.forward(item)
	}

	if shouldFlush {
		select {
		case b.flushChan <- struct{}{}:
		default:
		}
	}

	return droppedOldest
}

// Flush drains and processes all pending items. Concurrent calls are
// serialized and each batch is processed in arrival order.
func (b *Buffer[T]) Flush(ctx context.Context) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return nil
	}

	batch := make([]T, len(b.pending))
	copy(batch, b.pending)
	b.pending = b.pending[:0]
	b.mu.Unlock()

	return b.flush(ctx, batch)
}

// run processes batches periodically
func (b *Buffer[T]) run() {
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = b.Flush(context.Background())
		case <-b.flushChan:
			_ = b.Flush(context.Background())
		case <-b.stopChan:
			// Final flush on stop
			_ = b.Flush(context.Background())
			return
		}
	}
}

// Stop stops the flush loop after a final drain. Safe to call more than once.
func (b *Buffer[T]) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopChan)
	})
}

// Drain synchronously flushes whatever is pending. Used at session end so
// rollups are never short of the last buffered samples.
func (b *Buffer[T]) Drain(ctx context.Context) error {
	return b.Flush(ctx)
}

// Dropped returns the number of items discarded under the capacity cap.
func (b *Buffer[T]) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// PendingCount returns the number of pending items
func (b *Buffer[T]) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
