package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/tecu23/match-server/pkg/events"
	"github.com/tecu23/match-server/pkg/messages"
)

func TestCounterMutations(t *testing.T) {
	tr := NewTracker(events.NewPublisher(), zap.NewNop())

	tr.ConnectionOpened()
	tr.ConnectionOpened()
	tr.PlayerQueued()
	tr.PlayerQueued()
	assert.Equal(t, messages.StatsPayload{Online: 2, Queued: 2}, tr.Snapshot())

	tr.PlayersPaired()
	assert.Equal(t, messages.StatsPayload{Online: 2, Queued: 0, Active: 1}, tr.Snapshot())

	tr.ConnectionClosed()
	assert.Equal(t, messages.StatsPayload{Online: 1, Queued: 0, Active: 1}, tr.Snapshot())
}

func TestCountersNeverGoNegative(t *testing.T) {
	tr := NewTracker(events.NewPublisher(), zap.NewNop())

	tr.ConnectionClosed()
	tr.PlayersPaired()
	snap := tr.Snapshot()
	assert.Equal(t, uint(0), snap.Online)
	assert.Equal(t, uint(0), snap.Queued)
	assert.Equal(t, uint(1), snap.Active)
}

func TestSessionEndedEventDecrementsActive(t *testing.T) {
	publisher := events.NewPublisher()
	tr := NewTracker(publisher, zap.NewNop())

	tr.PlayerQueued()
	tr.PlayerQueued()
	tr.PlayersPaired()

	publisher.Publish(events.Event{Type: events.EventSessionEnded})

	assert.Eventually(t, func() bool {
		return tr.Snapshot().Active == 0
	}, time.Second, 10*time.Millisecond)
}

func TestMutationBroadcastsSnapshot(t *testing.T) {
	publisher := events.NewPublisher()
	got := make(chan messages.StatsPayload, 8)
	publisher.Subscribe(events.EventStatsChanged, func(e events.Event) {
		if snap, ok := e.Payload.(messages.StatsPayload); ok {
			got <- snap
		}
	})

	tr := NewTracker(publisher, zap.NewNop())
	tr.ConnectionOpened()

	select {
	case snap := <-got:
		assert.Equal(t, uint(1), snap.Online)
	case <-time.After(time.Second):
		t.Fatal("no stats broadcast received")
	}
}
