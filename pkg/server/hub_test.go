package server

import (
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tecu23/match-server/pkg/events"
	"github.com/tecu23/match-server/pkg/game"
	"github.com/tecu23/match-server/pkg/messages"
	"github.com/tecu23/match-server/pkg/presence"
	"github.com/tecu23/match-server/pkg/queue"
	"github.com/tecu23/match-server/pkg/repository"
)

type countingNotifier struct {
	calls atomic.Int64
}

func (n *countingNotifier) Notify() { n.calls.Add(1) }

type hubFixture struct {
	hub      *Hub
	registry *repository.InMemorySessionRepository
	notifier *countingNotifier
	publish  *events.Publisher
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := zap.NewNop()
	publisher := events.NewPublisher()
	registry := repository.NewInMemoryRepository(logger)
	tracker := presence.NewTracker(publisher, logger)
	notifier := &countingNotifier{}

	h := NewHub(registry, queue.NewQueue(rdb, logger), notifier, tracker, publisher, logger)
	return &hubFixture{hub: h, registry: registry, notifier: notifier, publish: publisher}
}

func (f *hubFixture) newConn() *Connection {
	c := &Connection{
		ID:     uuid.New(),
		hub:    f.hub,
		send:   make(chan []byte, 64),
		logger: zap.NewNop(),
	}
	f.hub.registerConnection(c)
	return c
}

func inbound(t *testing.T, c *Connection, msgType string, payload any) InboundHubMessage {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return InboundHubMessage{
		Conn:    c,
		Message: messages.InboundMessage{Type: msgType, Payload: raw},
	}
}

// readEvent waits for a specific outbound event on the connection,
// discarding everything else (stats broadcasts in particular).
func readEvent(t *testing.T, c *Connection, event string) map[string]any {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case raw := <-c.send:
			var env struct {
				Event   string          `json:"event"`
				Payload json.RawMessage `json:"payload"`
			}
			require.NoError(t, json.Unmarshal(raw, &env))
			if env.Event != event {
				continue
			}
			var payload map[string]any
			if len(env.Payload) > 0 {
				require.NoError(t, json.Unmarshal(env.Payload, &payload))
			}
			return payload
		case <-deadline:
			t.Fatalf("no %q message received", event)
		}
	}
}

func assertNoEvent(t *testing.T, c *Connection, event string) {
	t.Helper()
	timeout := time.After(100 * time.Millisecond)
	for {
		select {
		case raw := <-c.send:
			var env struct {
				Event string `json:"event"`
			}
			require.NoError(t, json.Unmarshal(raw, &env))
			assert.NotEqual(t, event, env.Event)
		case <-timeout:
			return
		}
	}
}

func TestRegisterConnectionAcknowledges(t *testing.T) {
	f := newHubFixture(t)
	c := f.newConn()

	payload := readEvent(t, c, messages.EventConnected)
	assert.Equal(t, c.ID.String(), payload["connection_id"])
}

func TestJoinQueueSuppressesDuplicates(t *testing.T) {
	f := newHubFixture(t)
	c := f.newConn()

	f.hub.handleInbound(inbound(t, c, messages.TypeJoinQueue,
		messages.JoinQueuePayload{PlayerID: "alice"}))
	f.hub.handleInbound(inbound(t, c, messages.TypeJoinQueue,
		messages.JoinQueuePayload{PlayerID: "alice"}))

	assert.Equal(t, int64(1), f.notifier.calls.Load(),
		"duplicate join-queue must be a no-op")
	assertNoEvent(t, c, messages.EventError)
}

func TestJoinQueueWithoutIdentityOrPlayerIDFails(t *testing.T) {
	f := newHubFixture(t)
	c := f.newConn()

	f.hub.handleInbound(inbound(t, c, messages.TypeJoinQueue, messages.JoinQueuePayload{}))
	readEvent(t, c, messages.EventError)
}

func TestPairedNotificationReachesRegisteredPlayers(t *testing.T) {
	f := newHubFixture(t)
	alice := f.newConn()
	bob := f.newConn()

	f.hub.handleInbound(inbound(t, alice, messages.TypeRegisterIdentity,
		messages.RegisterIdentityPayload{PlayerID: "alice"}))
	f.hub.handleInbound(inbound(t, bob, messages.TypeRegisterIdentity,
		messages.RegisterIdentityPayload{PlayerID: "bob"}))

	f.publish.Publish(events.Event{
		Type: events.EventPlayersPaired,
		Payload: events.PairedNotice{
			SessionID: uuid.NewString(),
			WhiteID:   "alice",
			BlackID:   "carol", // offline; dropped silently
		},
	})

	payload := readEvent(t, alice, messages.EventPaired)
	assert.Equal(t, "carol", payload["opponent_id"])
	assertNoEvent(t, bob, messages.EventPaired)
}

func TestSessionFlowOverHub(t *testing.T) {
	f := newHubFixture(t)
	alice := f.newConn()
	bob := f.newConn()

	f.hub.handleInbound(inbound(t, alice, messages.TypeRegisterIdentity,
		messages.RegisterIdentityPayload{PlayerID: "alice"}))
	f.hub.handleInbound(inbound(t, bob, messages.TypeRegisterIdentity,
		messages.RegisterIdentityPayload{PlayerID: "bob"}))

	session := game.NewSession("alice", "bob", 600, 0, f.publish, zap.NewNop())
	f.registry.Create(session)
	sessionID := session.ID.String()

	f.hub.handleInbound(inbound(t, alice, messages.TypeJoinSession,
		messages.JoinSessionPayload{SessionID: sessionID}))
	payload := readEvent(t, alice, messages.EventHandshake)
	assert.Equal(t, "w", payload["color"])
	assert.NotEmpty(t, payload["position"])

	f.hub.handleInbound(inbound(t, bob, messages.TypeJoinSession,
		messages.JoinSessionPayload{SessionID: sessionID}))
	readEvent(t, bob, messages.EventHandshake)

	// Black tries to move first: rejected to sender only.
	f.hub.handleInbound(inbound(t, bob, messages.TypeSubmitMove, messages.SubmitMovePayload{
		SessionID: sessionID, From: "e7", To: "e5", Color: "b", ClientClock: 598,
	}))
	readEvent(t, bob, messages.EventMoveRejected)
	assertNoEvent(t, alice, messages.EventMoveRejected)

	// White's legal move is broadcast to both seats.
	f.hub.handleInbound(inbound(t, alice, messages.TypeSubmitMove, messages.SubmitMovePayload{
		SessionID: sessionID, From: "e2", To: "e4", Color: "w", ClientClock: 595,
	}))
	for _, c := range []*Connection{alice, bob} {
		payload := readEvent(t, c, messages.EventPositionUpdated)
		clocks, ok := payload["clocks"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, float64(595), clocks["white"])
		assert.Equal(t, float64(600), clocks["black"])
	}
}

func TestSubmitMoveUnknownSession(t *testing.T) {
	f := newHubFixture(t)
	c := f.newConn()

	f.hub.handleInbound(inbound(t, c, messages.TypeSubmitMove, messages.SubmitMovePayload{
		SessionID: uuid.NewString(), From: "e2", To: "e4", Color: "w",
	}))
	readEvent(t, c, messages.EventError)
}

func TestUnregisterRemovesSeat(t *testing.T) {
	f := newHubFixture(t)
	alice := f.newConn()
	bob := f.newConn()

	f.hub.handleInbound(inbound(t, alice, messages.TypeRegisterIdentity,
		messages.RegisterIdentityPayload{PlayerID: "alice"}))
	f.hub.handleInbound(inbound(t, bob, messages.TypeRegisterIdentity,
		messages.RegisterIdentityPayload{PlayerID: "bob"}))

	session := game.NewSession("alice", "bob", 600, 0, f.publish, zap.NewNop())
	f.registry.Create(session)

	f.hub.handleInbound(inbound(t, alice, messages.TypeJoinSession,
		messages.JoinSessionPayload{SessionID: session.ID.String()}))
	f.hub.handleInbound(inbound(t, bob, messages.TypeJoinSession,
		messages.JoinSessionPayload{SessionID: session.ID.String()}))

	f.hub.unregisterConnection(alice)
	assert.Equal(t, game.StatusActive, session.Status())
	assert.Len(t, session.Seats(), 1)

	f.hub.unregisterConnection(bob)
	assert.Equal(t, game.StatusEnded, session.Status())
}
