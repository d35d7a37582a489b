package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tecu23/match-server/pkg/events"
	"github.com/tecu23/match-server/pkg/game"
)

func newSession(t *testing.T) *game.Session {
	t.Helper()
	return game.NewSession("alice", "bob", 600, 0, events.NewPublisher(), zap.NewNop())
}

func TestCreateAndFind(t *testing.T) {
	repo := NewInMemoryRepository(zap.NewNop())
	s := newSession(t)

	repo.Create(s)

	got, err := repo.Find(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = repo.Find(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindByConnection(t *testing.T) {
	repo := NewInMemoryRepository(zap.NewNop())
	s := newSession(t)
	repo.Create(s)

	connID := uuid.New()
	_, err := s.Join(connID, "alice")
	require.NoError(t, err)

	got, err := repo.FindByConnection(connID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = repo.FindByConnection(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEndedSessionStaysQueryable(t *testing.T) {
	repo := NewInMemoryRepository(zap.NewNop())
	s := newSession(t)
	repo.Create(s)

	whiteConn, blackConn := uuid.New(), uuid.New()
	_, err := s.Join(whiteConn, "alice")
	require.NoError(t, err)
	_, err = s.Join(blackConn, "bob")
	require.NoError(t, err)
	s.Disconnect(whiteConn)
	s.Disconnect(blackConn)

	got, err := repo.Find(s.ID)
	require.NoError(t, err)
	assert.Equal(t, game.StatusEnded, got.Status())

	repo.Remove(s.ID)
	_, err = repo.Find(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSweepAbandoned(t *testing.T) {
	repo := NewInMemoryRepository(zap.NewNop())

	waiting := newSession(t)
	repo.Create(waiting)

	active := newSession(t)
	_, err := active.Join(uuid.New(), "alice")
	require.NoError(t, err)
	repo.Create(active)

	// Nothing is old enough yet.
	assert.Equal(t, 0, repo.SweepAbandoned(time.Hour))

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, repo.SweepAbandoned(time.Millisecond))
	assert.Equal(t, game.StatusEnded, waiting.Status())
	assert.Equal(t, game.StatusActive, active.Status())

	// Aborted sessions are still registered for replay.
	_, err = repo.Find(waiting.ID)
	assert.NoError(t, err)
}
