package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"soctel/internal/core/domain"
)

func snap(sessionID domain.SessionID, count int) *domain.AggregateSnapshot {
	return &domain.AggregateSnapshot{
		SessionID:   sessionID,
		Timestamp:   time.Now(),
		SampleCount: count,
	}
}

func TestSnapshotBus_DeliversToSubscriber(t *testing.T) {
	bus := NewSnapshotBus(zap.NewNop().Sugar())

	sub := bus.Subscribe("sess_1")
	defer bus.Unsubscribe(sub)

	bus.Publish(snap("sess_1", 1))

	select {
	case got := <-sub.C:
		assert.Equal(t, 1, got.SampleCount)
	case <-time.After(time.Second):
		t.Fatal("snapshot never delivered")
	}
}

func TestSnapshotBus_LatestWins(t *testing.T) {
	bus := NewSnapshotBus(zap.NewNop().Sugar())

	sub := bus.Subscribe("sess_1")
	defer bus.Unsubscribe(sub)

	// Nobody is reading; the second publish replaces the first.
	bus.Publish(snap("sess_1", 1))
	bus.Publish(snap("sess_1", 2))

	got := <-sub.C
	assert.Equal(t, 2, got.SampleCount)
}

func TestSnapshotBus_SessionIsolation(t *testing.T) {
	bus := NewSnapshotBus(zap.NewNop().Sugar())

	sub := bus.Subscribe("sess_1")
	defer bus.Unsubscribe(sub)

	bus.Publish(snap("sess_other", 7))

	select {
	case <-sub.C:
		t.Fatal("received snapshot from another session")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSnapshotBus_CloseSessionClosesChannels(t *testing.T) {
	bus := NewSnapshotBus(zap.NewNop().Sugar())

	a := bus.Subscribe("sess_1")
	b := bus.Subscribe("sess_1")

	bus.CloseSession("sess_1")

	_, open := <-a.C
	assert.False(t, open)
	_, open = <-b.C
	assert.False(t, open)

	// Publishing to a closed session is a no-op.
	bus.Publish(snap("sess_1", 1))

	// Unsubscribe after close must not double-close.
	bus.Unsubscribe(a)
}

func TestSnapshotBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewSnapshotBus(zap.NewNop().Sugar())

	sub := bus.Subscribe("sess_1")
	bus.Unsubscribe(sub)

	_, open := <-sub.C
	require.False(t, open)

	bus.Publish(snap("sess_1", 1))
}
