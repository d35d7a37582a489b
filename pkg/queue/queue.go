// Package queue adapts the Redis-backed pairing queue: a FIFO of waiting
// players plus a delayed set for requeued ones. The backend is treated as
// unreliable; every operation can fail and callers must not assume a write
// is visible to the very next read.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyWaiting = "mm:waiting"
	keyDelayed = "mm:delayed"
	keyPlayers = "mm:players"
	keyPaused  = "mm:paused"
)

// Sentinel errors for callers to branch on.
var (
	// ErrUnavailable wraps any backend failure. Surfaced to the enqueue
	// requester only; never fatal.
	ErrUnavailable = errors.New("queue unavailable")

	// ErrAlreadyQueued means the player has a waiting or delayed entry
	// and the duplicate join was suppressed.
	ErrAlreadyQueued = errors.New("player already queued")
)

// Entry is one queued pairing intent.
type Entry struct {
	PlayerID   string `json:"player_id"`
	EnqueuedAt int64  `json:"enqueued_at"` // unix milliseconds
}

// Queue is the adapter over the Redis lists backing matchmaking.
type Queue struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewQueue wraps an existing Redis client.
func NewQueue(rdb *redis.Client, logger *zap.Logger) *Queue {
	return &Queue{rdb: rdb, logger: logger}
}

func wrap(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Enqueue appends a new waiting entry for the player. A player with an
// entry anywhere in the queue is rejected with ErrAlreadyQueued.
func (q *Queue) Enqueue(ctx context.Context, playerID string) error {
	added, err := q.rdb.SAdd(ctx, keyPlayers, playerID).Result()
	if err != nil {
		return wrap(err)
	}
	if added == 0 {
		return ErrAlreadyQueued
	}

	entry := Entry{PlayerID: playerID, EnqueuedAt: time.Now().UnixMilli()}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	if err := q.rdb.RPush(ctx, keyWaiting, raw).Err(); err != nil {
		// Roll the membership guard back so a retry is possible.
		_ = q.rdb.SRem(ctx, keyPlayers, playerID).Err()
		return wrap(err)
	}

	q.logger.Debug("player enqueued", zap.String("player_id", playerID))
	return nil
}

// EnqueueDelayed puts an already-known player into the delayed set,
// becoming eligible again after the given delay. The membership guard is
// left in place so duplicate joins stay suppressed while the player waits.
func (q *Queue) EnqueueDelayed(ctx context.Context, entry Entry, delay time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	readyAt := time.Now().Add(delay).UnixMilli()
	member := redis.Z{Score: float64(readyAt), Member: raw}
	if err := q.rdb.ZAdd(ctx, keyDelayed, member).Err(); err != nil {
		return wrap(err)
	}
	if err := q.rdb.SAdd(ctx, keyPlayers, entry.PlayerID).Err(); err != nil {
		return wrap(err)
	}

	q.logger.Debug("player requeued",
		zap.String("player_id", entry.PlayerID),
		zap.Duration("delay", delay))
	return nil
}

// Dequeue pops the oldest entry that is due: the head of the waiting
// list, or the earliest delayed entry whose delay has elapsed. Returns
// nil when nothing is due or the queue is paused.
func (q *Queue) Dequeue(ctx context.Context) (*Entry, error) {
	paused, err := q.IsPaused(ctx)
	if err != nil {
		return nil, err
	}
	if paused {
		return nil, nil
	}

	raw, err := q.rdb.LPop(ctx, keyWaiting).Bytes()
	if err == nil {
		return decode(raw)
	}
	if !errors.Is(err, redis.Nil) {
		return nil, wrap(err)
	}

	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := q.rdb.ZRangeByScore(ctx, keyDelayed, &redis.ZRangeBy{
		Min: "-inf", Max: now, Offset: 0, Count: 1,
	}).Result()
	if err != nil {
		return nil, wrap(err)
	}
	if len(due) == 0 {
		return nil, nil
	}

	removed, err := q.rdb.ZRem(ctx, keyDelayed, due[0]).Result()
	if err != nil {
		return nil, wrap(err)
	}
	if removed == 0 {
		// Somebody else claimed it between the read and the remove.
		return nil, nil
	}

	return decode([]byte(due[0]))
}

// PeekOldest returns the oldest entry without removing it, preferring the
// waiting list over the delayed set. A delayed entry is visible here even
// before its delay elapses, matching how the worker matches against
// players who are merely backing off.
func (q *Queue) PeekOldest(ctx context.Context) (*Entry, error) {
	raw, err := q.rdb.LIndex(ctx, keyWaiting, 0).Bytes()
	if err == nil {
		return decode(raw)
	}
	if !errors.Is(err, redis.Nil) {
		return nil, wrap(err)
	}

	delayed, err := q.rdb.ZRange(ctx, keyDelayed, 0, 0).Result()
	if err != nil {
		return nil, wrap(err)
	}
	if len(delayed) == 0 {
		return nil, nil
	}

	return decode([]byte(delayed[0]))
}

// Remove deletes the given entry wherever it sits and releases the
// player's membership guard.
func (q *Queue) Remove(ctx context.Context, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	removed, err := q.rdb.LRem(ctx, keyWaiting, 1, raw).Result()
	if err != nil {
		return wrap(err)
	}
	if removed == 0 {
		if err := q.rdb.ZRem(ctx, keyDelayed, raw).Err(); err != nil {
			return wrap(err)
		}
	}

	return q.Release(ctx, entry.PlayerID)
}

// Release drops the membership guard for a player whose entry has already
// been consumed, letting them join the queue again later.
func (q *Queue) Release(ctx context.Context, playerID string) error {
	if err := q.rdb.SRem(ctx, keyPlayers, playerID).Err(); err != nil {
		return wrap(err)
	}
	return nil
}

// Pause stops Dequeue from handing out entries until Resume is called.
func (q *Queue) Pause(ctx context.Context) error {
	if err := q.rdb.Set(ctx, keyPaused, "1", 0).Err(); err != nil {
		return wrap(err)
	}
	return nil
}

// Resume lifts a pause.
func (q *Queue) Resume(ctx context.Context) error {
	if err := q.rdb.Del(ctx, keyPaused).Err(); err != nil {
		return wrap(err)
	}
	return nil
}

// IsPaused reports whether the queue is currently paused.
func (q *Queue) IsPaused(ctx context.Context) (bool, error) {
	n, err := q.rdb.Exists(ctx, keyPaused).Result()
	if err != nil {
		return false, wrap(err)
	}
	return n > 0, nil
}

func decode(raw []byte) (*Entry, error) {
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("corrupt queue entry: %w", err)
	}
	return &entry, nil
}
