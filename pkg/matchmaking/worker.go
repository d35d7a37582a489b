// Package matchmaking runs the pairing worker: the single serialized
// consumer that turns queued player intents into sessions.
package matchmaking

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tecu23/match-server/pkg/events"
	"github.com/tecu23/match-server/pkg/game"
	"github.com/tecu23/match-server/pkg/presence"
	"github.com/tecu23/match-server/pkg/queue"
	"github.com/tecu23/match-server/pkg/repository"
)

// Options are the worker tunables. Zero values fall back to the
// defaults of the original deployment.
type Options struct {
	// RequeueDelay is the backoff before an unmatched player is looked
	// at again.
	RequeueDelay time.Duration

	// PollInterval bounds how long a due entry can sit unnoticed when
	// no enqueue notification arrives.
	PollInterval time.Duration

	// InitialClock is each player's starting budget in seconds.
	InitialClock int64

	// DrawTTL is handed to new sessions; see game.NewSession.
	DrawTTL time.Duration
}

func (o *Options) applyDefaults() {
	if o.RequeueDelay <= 0 {
		o.RequeueDelay = 3 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 250 * time.Millisecond
	}
	if o.InitialClock <= 0 {
		o.InitialClock = 600
	}
}

// Worker drains the pairing queue and forms sessions. Exactly one
// invocation is ever in flight: Run owns the loop and everything else
// only signals it. That single-consumer property is what keeps two
// invocations from double-spending the same queue entry.
type Worker struct {
	queue     *queue.Queue
	registry  *repository.InMemorySessionRepository
	presence  *presence.Tracker
	publisher *events.Publisher
	logger    *zap.Logger

	opts Options
	wake chan struct{}
}

// NewWorker wires a worker. Call Run exactly once.
func NewWorker(
	q *queue.Queue,
	registry *repository.InMemorySessionRepository,
	tracker *presence.Tracker,
	publisher *events.Publisher,
	opts Options,
	logger *zap.Logger,
) *Worker {
	opts.applyDefaults()
	return &Worker{
		queue:     q,
		registry:  registry,
		presence:  tracker,
		publisher: publisher,
		logger:    logger,
		opts:      opts,
		wake:      make(chan struct{}, 1),
	}
}

// Notify wakes the loop after an enqueue. Non-blocking; a pending wakeup
// already covers any number of new entries.
func (w *Worker) Notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run consumes the queue until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		w.drain(ctx)

		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		case <-ticker.C:
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for {
		entry, err := w.queue.Dequeue(ctx)
		if err != nil {
			w.logger.Warn("queue dequeue failed", zap.Error(err))
			return
		}
		if entry == nil {
			return
		}
		w.process(ctx, *entry)
	}
}

// process handles one queue item: find the oldest other waiting player
// and pair with them, or back off and keep looking.
func (w *Worker) process(ctx context.Context, current queue.Entry) {
	candidate, err := w.queue.PeekOldest(ctx)
	if err != nil {
		w.logger.Warn("queue peek failed, requeueing", zap.Error(err))
		w.requeue(ctx, current)
		return
	}

	// No partner yet, or the only candidate is the same player showing
	// up twice. Not an error: back off and keep looking. The self-match
	// check is deliberately redundant with enqueue-time dedup.
	if candidate == nil || candidate.PlayerID == current.PlayerID {
		w.requeue(ctx, current)
		return
	}

	if err := w.queue.Remove(ctx, *candidate); err != nil {
		w.logger.Warn("queue remove failed, requeueing", zap.Error(err))
		w.requeue(ctx, current)
		return
	}
	if err := w.queue.Release(ctx, current.PlayerID); err != nil {
		w.logger.Warn("queue release failed", zap.Error(err))
	}

	// The earlier-enqueued player takes white.
	white, black := *candidate, current
	if current.EnqueuedAt < candidate.EnqueuedAt {
		white, black = current, *candidate
	}

	session := game.NewSession(
		white.PlayerID,
		black.PlayerID,
		w.opts.InitialClock,
		w.opts.DrawTTL,
		w.publisher,
		w.logger,
	)
	w.registry.Create(session)

	w.logger.Info("players paired",
		zap.String("session_id", session.ID.String()),
		zap.String("white", white.PlayerID),
		zap.String("black", black.PlayerID))

	// The hub resolves connections; players without one simply miss the
	// notification and can still join later.
	w.publisher.Publish(events.Event{
		Type:      events.EventPlayersPaired,
		SessionID: session.ID.String(),
		Payload: events.PairedNotice{
			SessionID: session.ID.String(),
			WhiteID:   white.PlayerID,
			BlackID:   black.PlayerID,
		},
	})

	w.presence.PlayersPaired()
}

func (w *Worker) requeue(ctx context.Context, entry queue.Entry) {
	if err := w.queue.EnqueueDelayed(ctx, entry, w.opts.RequeueDelay); err != nil {
		w.logger.Error("requeue failed, entry dropped",
			zap.String("player_id", entry.PlayerID),
			zap.Error(err))
	}
}
