// Package repository stores active and finished sessions in memory.
package repository

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tecu23/match-server/pkg/game"
)

// ErrNotFound is returned for lookups against an unknown session id. It
// is reported to the caller and never fatal.
var ErrNotFound = errors.New("session not found")

// InMemorySessionRepository is an in-memory implementation of the session
// registry. Sessions are never removed implicitly: a finished session
// stays queryable for replay until Remove is called.
type InMemorySessionRepository struct {
	sessions map[uuid.UUID]*game.Session
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository(logger *zap.Logger) *InMemorySessionRepository {
	return &InMemorySessionRepository{
		sessions: make(map[uuid.UUID]*game.Session),
		logger:   logger,
	}
}

// Create registers a session under its id.
func (r *InMemorySessionRepository) Create(session *game.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[session.ID] = session
	r.logger.Info("session registered", zap.String("session_id", session.ID.String()))
}

// Find retrieves a session by id.
func (r *InMemorySessionRepository) Find(id uuid.UUID) (*game.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return session, nil
}

// FindByConnection scans seats for the session holding the given
// connection. Used for disconnect handling.
func (r *InMemorySessionRepository) FindByConnection(connID uuid.UUID) (*game.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sessions {
		if s.HasConnection(connID) {
			return s, nil
		}
	}
	return nil, ErrNotFound
}

// Remove deletes a session. Only explicit cleanup goes through here.
func (r *InMemorySessionRepository) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	r.logger.Info("session removed", zap.String("session_id", id.String()))
}

// SweepAbandoned ends waiting sessions older than maxAge. Ended sessions
// are kept for replay; only their lifecycle state changes. Returns how
// many sessions were aborted.
func (r *InMemorySessionRepository) SweepAbandoned(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}

	r.mu.RLock()
	var stale []*game.Session
	for _, s := range r.sessions {
		if s.Status() == game.StatusWaiting && time.Since(s.CreatedAt) > maxAge {
			stale = append(stale, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range stale {
		s.Abort()
		r.logger.Info("waiting session aborted", zap.String("session_id", s.ID.String()))
	}
	return len(stale)
}
