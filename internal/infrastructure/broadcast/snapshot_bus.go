package broadcast

import (
	"sync"

	"go.uber.org/zap"

	"soctel/internal/core/domain"
)

// SnapshotBus fans live snapshots out to in-process subscribers, one channel
// per subscriber per session. Delivery is latest-wins: if a subscriber is
// slow its stale snapshot is replaced rather than blocking the ingest path.
type SnapshotBus struct {
	logger *zap.SugaredLogger

	mu   sync.RWMutex
	subs map[domain.SessionID]map[*Subscription]struct{}
}

type Subscription struct {
	C         chan *domain.AggregateSnapshot
	sessionID domain.SessionID
}

func NewSnapshotBus(logger *zap.SugaredLogger) *SnapshotBus {
	return &SnapshotBus{
		logger: logger,
		subs:   make(map[domain.SessionID]map[*Subscription]struct{}),
	}
}

func (b *SnapshotBus) Subscribe(sessionID domain.SessionID) *Subscription {
	sub := &Subscription{
		C:         make(chan *domain.AggregateSnapshot, 1),
		sessionID: sessionID,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[*Subscription]struct{})
	}
	b.subs[sessionID][sub] = struct{}{}
	return sub
}

func (b *SnapshotBus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[sub.sessionID]; ok {
		if _, present := set[sub]; present {
			delete(set, sub)
			close(sub.C)
			if len(set) == 0 {
				delete(b.subs, sub.sessionID)
			}
		}
	}
}

// Publish delivers a snapshot to every subscriber of its session. Never
// blocks: a full subscriber channel has its pending snapshot replaced.
func (b *SnapshotBus) Publish(snapshot *domain.AggregateSnapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[snapshot.SessionID] {
		select {
		case sub.C <- snapshot:
		default:
			select {
			case <-sub.C:
			default:
			}
			select {
			case sub.C <- snapshot:
			default:
			}
		}
	}
}

// CloseSession drops every subscriber of an ended session.
func (b *SnapshotBus) CloseSession(sessionID domain.SessionID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subs[sessionID]
	if !ok {
		return
	}
	for sub := range set {
		close(sub.C)
	}
	delete(b.subs, sessionID)
	b.logger.Debugw("snapshot subscribers closed", "session_id", sessionID)
}
