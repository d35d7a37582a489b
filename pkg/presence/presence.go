// Package presence keeps the derived online/queued/active counters and
// broadcasts a fresh snapshot after every mutation. The counters are a
// projection over hub and worker activity, never a source of truth.
package presence

import (
	"sync"

	"go.uber.org/zap"

	"github.com/tecu23/match-server/pkg/events"
	"github.com/tecu23/match-server/pkg/messages"
)

// Tracker owns the counters. All mutation goes through its methods.
type Tracker struct {
	mu     sync.Mutex
	online uint
	queued uint
	active uint

	publisher *events.Publisher
	logger    *zap.Logger
}

// NewTracker creates a tracker and subscribes it to session lifecycle
// events so active-session accounting stays correct without the sessions
// knowing about this package.
func NewTracker(publisher *events.Publisher, logger *zap.Logger) *Tracker {
	t := &Tracker{
		publisher: publisher,
		logger:    logger,
	}

	publisher.Subscribe(events.EventSessionEnded, func(events.Event) {
		t.sessionEnded()
	})

	return t
}

// ConnectionOpened records a new transport connection.
func (t *Tracker) ConnectionOpened() {
	t.mu.Lock()
	t.online++
	t.mu.Unlock()
	t.broadcast()
}

// ConnectionClosed records a dropped transport connection.
func (t *Tracker) ConnectionClosed() {
	t.mu.Lock()
	if t.online > 0 {
		t.online--
	}
	t.mu.Unlock()
	t.broadcast()
}

// PlayerQueued records a successful join-queue request.
func (t *Tracker) PlayerQueued() {
	t.mu.Lock()
	t.queued++
	t.mu.Unlock()
	t.broadcast()
}

// PlayersPaired records a successful pairing: two players leave the
// queue, one session becomes active.
func (t *Tracker) PlayersPaired() {
	t.mu.Lock()
	for i := 0; i < 2 && t.queued > 0; i++ {
		t.queued--
	}
	t.active++
	t.mu.Unlock()
	t.broadcast()
}

func (t *Tracker) sessionEnded() {
	t.mu.Lock()
	if t.active > 0 {
		t.active--
	}
	t.mu.Unlock()
	t.broadcast()
}

// Snapshot returns the current counters.
func (t *Tracker) Snapshot() messages.StatsPayload {
	t.mu.Lock()
	defer t.mu.Unlock()
	return messages.StatsPayload{
		Online: t.online,
		Queued: t.queued,
		Active: t.active,
	}
}

func (t *Tracker) broadcast() {
	snap := t.Snapshot()
	t.logger.Debug("stats changed",
		zap.Uint("online", snap.Online),
		zap.Uint("queued", snap.Queued),
		zap.Uint("active", snap.Active))

	t.publisher.Publish(events.Event{
		Type:    events.EventStatsChanged,
		Payload: snap,
	})
}
