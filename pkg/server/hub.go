// Package server holds the websocket hub and per-connection pumps: the
// transport side of the move relay protocol.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tecu23/match-server/pkg/events"
	"github.com/tecu23/match-server/pkg/game"
	"github.com/tecu23/match-server/pkg/messages"
	"github.com/tecu23/match-server/pkg/presence"
	"github.com/tecu23/match-server/pkg/queue"
	"github.com/tecu23/match-server/pkg/repository"
)

// Notifier wakes the pairing worker after an enqueue.
type Notifier interface {
	Notify()
}

// InboundHubMessage are the messages that the hub receives
type InboundHubMessage struct {
	Conn    *Connection             // who sent it
	Message messages.InboundMessage // decoded envelope
}

// Hub keeps track of all active connections and the weak player-to-
// connection association, registers/unregisters connections, and routes
// protocol messages to the right session or queue operation.
type Hub struct {
	mu          sync.RWMutex              // Protects the three maps below.
	connections map[uuid.UUID]*Connection // Registered connections by id
	players     map[string]uuid.UUID      // Player identity -> current connection
	identities  map[uuid.UUID]string      // Connection -> registered identity

	register   chan *Connection       // Incoming registration
	unregister chan *Connection       // Incoming unregistration
	inbound    chan InboundHubMessage // Inbound messages routed to sessions or queue

	registry  *repository.InMemorySessionRepository
	queue     *queue.Queue
	worker    Notifier
	presence  *presence.Tracker
	publisher *events.Publisher
	logger    *zap.Logger
}

// NewHub creates a new hub and subscribes it to the events it relays to
// clients.
func NewHub(
	registry *repository.InMemorySessionRepository,
	q *queue.Queue,
	worker Notifier,
	tracker *presence.Tracker,
	publisher *events.Publisher,
	logger *zap.Logger,
) *Hub {
	h := &Hub{
		connections: make(map[uuid.UUID]*Connection),
		players:     make(map[string]uuid.UUID),
		identities:  make(map[uuid.UUID]string),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		inbound:     make(chan InboundHubMessage),
		registry:    registry,
		queue:       q,
		worker:      worker,
		presence:    tracker,
		publisher:   publisher,
		logger:      logger,
	}

	h.setupEventHandlers()
	return h
}

// setupEventHandlers relays worker and session events to connections.
func (h *Hub) setupEventHandlers() {
	h.publisher.Subscribe(events.EventPlayersPaired, func(event events.Event) {
		notice, ok := event.Payload.(events.PairedNotice)
		if !ok {
			h.logger.Error("invalid paired notice payload type")
			return
		}
		h.notifyPaired(notice)
	})

	h.publisher.Subscribe(events.EventSessionMessage, func(event events.Event) {
		msg, ok := event.Payload.(messages.OutboundMessage)
		if !ok {
			h.logger.Error("invalid session message payload type")
			return
		}
		h.deliver(event.Recipients, msg)
	})

	h.publisher.Subscribe(events.EventStatsChanged, func(event events.Event) {
		snap, ok := event.Payload.(messages.StatsPayload)
		if !ok {
			h.logger.Error("invalid stats payload type")
			return
		}
		h.deliver(nil, messages.OutboundMessage{
			Event:   messages.EventStatsUpdate,
			Payload: snap,
		})
	})
}

// Run is the main execution of the hub
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.registerConnection(conn)

		case conn := <-h.unregister:
			h.unregisterConnection(conn)

		case msg := <-h.inbound:
			h.handleInbound(msg)
		}
	}
}

// Register queues a connection for registration.
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister queues a connection for removal.
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

func (h *Hub) registerConnection(conn *Connection) {
	h.mu.Lock()
	h.connections[conn.ID] = conn
	total := len(h.connections)
	h.mu.Unlock()

	h.logger.Info("connection registered",
		zap.String("connection_id", conn.ID.String()),
		zap.Int("total", total))

	conn.SendJSON(messages.OutboundMessage{
		Event:   messages.EventConnected,
		Payload: messages.ConnectedPayload{ConnectionID: conn.ID.String()},
	})

	h.presence.ConnectionOpened()
}

func (h *Hub) unregisterConnection(conn *Connection) {
	h.mu.Lock()
	if _, ok := h.connections[conn.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.connections, conn.ID)
	if playerID, ok := h.identities[conn.ID]; ok {
		delete(h.identities, conn.ID)
		// Only drop the player mapping if it still points at this
		// connection; a reconnect may have overwritten it already.
		if h.players[playerID] == conn.ID {
			delete(h.players, playerID)
		}
	}
	h.mu.Unlock()

	close(conn.send)
	h.presence.ConnectionClosed()

	// Seat removal: the other participant plays on, the session ends
	// only when its last seat leaves.
	if session, err := h.registry.FindByConnection(conn.ID); err == nil {
		session.Disconnect(conn.ID)
	}

	h.logger.Info("connection unregistered", zap.String("connection_id", conn.ID.String()))
}

// handleInbound decodes and routes a message from a client.
func (h *Hub) handleInbound(msg InboundHubMessage) {
	switch msg.Message.Type {
	case messages.TypeRegisterIdentity:
		h.handleRegisterIdentity(msg)
	case messages.TypeJoinQueue:
		h.handleJoinQueue(msg)
	case messages.TypeJoinSession:
		h.handleJoinSession(msg)
	case messages.TypeSubmitMove:
		h.handleSubmitMove(msg)
	case messages.TypeResign:
		h.handleResign(msg)
	case messages.TypeRequestDraw:
		h.handleRequestDraw(msg)
	case messages.TypeDrawResponse:
		h.handleDrawResponse(msg)
	default:
		h.sendError(msg.Conn, "unknown message type")
	}
}

func (h *Hub) handleRegisterIdentity(msg InboundHubMessage) {
	var payload messages.RegisterIdentityPayload
	if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil || payload.PlayerID == "" {
		h.sendError(msg.Conn, "invalid register-identity payload")
		return
	}

	h.mu.Lock()
	// A reconnect simply overwrites the previous association.
	h.players[payload.PlayerID] = msg.Conn.ID
	h.identities[msg.Conn.ID] = payload.PlayerID
	h.mu.Unlock()

	h.logger.Info("identity registered",
		zap.String("player_id", payload.PlayerID),
		zap.String("connection_id", msg.Conn.ID.String()))

	h.deliver(nil, messages.OutboundMessage{
		Event:   messages.EventStatsUpdate,
		Payload: h.presence.Snapshot(),
	})
}

func (h *Hub) handleJoinQueue(msg InboundHubMessage) {
	var payload messages.JoinQueuePayload
	if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
		h.sendError(msg.Conn, "invalid join-queue payload")
		return
	}

	playerID := payload.PlayerID
	if playerID == "" {
		h.mu.RLock()
		playerID = h.identities[msg.Conn.ID]
		h.mu.RUnlock()
	}
	if playerID == "" {
		h.sendError(msg.Conn, "no player identity registered")
		return
	}

	if err := h.enqueue(context.Background(), playerID); err != nil {
		h.sendError(msg.Conn, "matchmaking temporarily unavailable, try again")
		return
	}
}

// enqueue is the shared join-queue path for the websocket event and the
// find-match HTTP endpoint. A duplicate request is a no-op.
func (h *Hub) enqueue(ctx context.Context, playerID string) error {
	err := h.queue.Enqueue(ctx, playerID)
	if errors.Is(err, queue.ErrAlreadyQueued) {
		h.logger.Debug("duplicate join-queue suppressed", zap.String("player_id", playerID))
		return nil
	}
	if err != nil {
		h.logger.Error("enqueue failed", zap.Error(err))
		return err
	}

	if paused, perr := h.queue.IsPaused(ctx); perr == nil && paused {
		if rerr := h.queue.Resume(ctx); rerr != nil {
			h.logger.Warn("queue resume failed", zap.Error(rerr))
		}
	}

	h.presence.PlayerQueued()
	h.worker.Notify()
	return nil
}

// Enqueue exposes the join-queue path to the HTTP layer.
func (h *Hub) Enqueue(ctx context.Context, playerID string) error {
	return h.enqueue(ctx, playerID)
}

func (h *Hub) handleJoinSession(msg InboundHubMessage) {
	var payload messages.JoinSessionPayload
	if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
		h.sendError(msg.Conn, "invalid join-session payload")
		return
	}

	session, err := h.findSession(payload.SessionID)
	if err != nil {
		h.sendError(msg.Conn, err.Error())
		return
	}

	h.mu.RLock()
	playerID := h.identities[msg.Conn.ID]
	h.mu.RUnlock()
	if playerID == "" {
		h.sendError(msg.Conn, "no player identity registered")
		return
	}

	handshake, err := session.Join(msg.Conn.ID, playerID)
	if err != nil {
		h.sendError(msg.Conn, err.Error())
		return
	}

	msg.Conn.SendJSON(messages.OutboundMessage{
		Event:   messages.EventHandshake,
		Payload: handshake,
	})
}

func (h *Hub) handleSubmitMove(msg InboundHubMessage) {
	var payload messages.SubmitMovePayload
	if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
		h.sendError(msg.Conn, "invalid submit-move payload")
		return
	}

	session, err := h.findSession(payload.SessionID)
	if err != nil {
		h.sendError(msg.Conn, err.Error())
		return
	}

	err = session.AttemptMove(
		msg.Conn.ID,
		payload.From,
		payload.To,
		payload.Color,
		payload.ClientClock,
	)
	switch {
	case err == nil:
		// Accepted moves broadcast their own result.
	case errors.Is(err, game.ErrIllegalMove),
		errors.Is(err, game.ErrOutOfTurn),
		errors.Is(err, game.ErrSessionOver):
		// Rejections go to the submitting connection only; the other
		// participant never hears about them.
		msg.Conn.SendJSON(messages.OutboundMessage{
			Event:   messages.EventMoveRejected,
			Payload: messages.MoveRejectedPayload{Reason: err.Error()},
		})
	default:
		h.sendError(msg.Conn, err.Error())
	}
}

func (h *Hub) handleResign(msg InboundHubMessage) {
	var payload messages.SessionActionPayload
	if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
		h.sendError(msg.Conn, "invalid resign payload")
		return
	}

	session, err := h.findSession(payload.SessionID)
	if err != nil {
		h.sendError(msg.Conn, err.Error())
		return
	}

	if err := session.Resign(msg.Conn.ID); err != nil {
		h.sendError(msg.Conn, err.Error())
	}
}

func (h *Hub) handleRequestDraw(msg InboundHubMessage) {
	var payload messages.SessionActionPayload
	if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
		h.sendError(msg.Conn, "invalid request-draw payload")
		return
	}

	session, err := h.findSession(payload.SessionID)
	if err != nil {
		h.sendError(msg.Conn, err.Error())
		return
	}

	if err := session.RequestDraw(msg.Conn.ID); err != nil {
		h.sendError(msg.Conn, err.Error())
	}
}

func (h *Hub) handleDrawResponse(msg InboundHubMessage) {
	var payload messages.DrawResponsePayload
	if err := json.Unmarshal(msg.Message.Payload, &payload); err != nil {
		h.sendError(msg.Conn, "invalid draw-response payload")
		return
	}

	session, err := h.findSession(payload.SessionID)
	if err != nil {
		h.sendError(msg.Conn, err.Error())
		return
	}

	if err := session.DrawResponse(msg.Conn.ID, payload.Accept); err != nil {
		h.sendError(msg.Conn, err.Error())
	}
}

func (h *Hub) findSession(id string) (*game.Session, error) {
	sessionID, err := uuid.Parse(id)
	if err != nil {
		return nil, errors.New("invalid session id")
	}
	return h.registry.Find(sessionID)
}

// notifyPaired tells both players where to meet. A player without a live
// connection misses the notification silently; the session still exists
// and can be joined later.
func (h *Hub) notifyPaired(notice events.PairedNotice) {
	pairs := []struct{ player, opponent string }{
		{notice.WhiteID, notice.BlackID},
		{notice.BlackID, notice.WhiteID},
	}

	for _, p := range pairs {
		h.mu.RLock()
		conn, ok := h.connections[h.players[p.player]]
		h.mu.RUnlock()
		if !ok {
			h.logger.Debug("paired player has no live connection",
				zap.String("player_id", p.player))
			continue
		}

		conn.SendJSON(messages.OutboundMessage{
			Event: messages.EventPaired,
			Payload: messages.PairedPayload{
				SessionID:  notice.SessionID,
				OpponentID: p.opponent,
			},
		})
	}
}

// deliver sends a message to the given connections, or to every
// registered connection when recipients is empty.
func (h *Hub) deliver(recipients []uuid.UUID, msg messages.OutboundMessage) {
	h.mu.RLock()
	var targets []*Connection
	if len(recipients) == 0 {
		targets = make([]*Connection, 0, len(h.connections))
		for _, conn := range h.connections {
			targets = append(targets, conn)
		}
	} else {
		for _, id := range recipients {
			if conn, ok := h.connections[id]; ok {
				targets = append(targets, conn)
			}
		}
	}
	h.mu.RUnlock()

	for _, conn := range targets {
		conn.SendJSON(msg)
	}
}

func (h *Hub) sendError(conn *Connection, msg string) {
	conn.SendJSON(messages.OutboundMessage{
		Event: messages.EventError,
		Payload: messages.ErrorPayload{
			Message: msg,
		},
	})
}
