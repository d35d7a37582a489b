// Package game owns the session state machine: one two-seat contest from
// pairing to termination. All mutation of a session goes through its
// methods, which serialize on a per-session mutex.
package game

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tecu23/match-server/internal/color"
	"github.com/tecu23/match-server/pkg/events"
	"github.com/tecu23/match-server/pkg/messages"
	"github.com/tecu23/match-server/pkg/rules"
)

// Status is the lifecycle state of a session.
type Status string

// Session lifecycle: created by the pairing worker, activated by the
// first join over the transport, ended by a terminal outcome or
// abandonment.
const (
	StatusWaiting Status = "waiting"
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
)

// Rejection reasons returned to callers. None of them mutate the session
// and none are fatal; the hub reports them to the originating connection
// only.
var (
	ErrSessionOver    = errors.New("session has ended")
	ErrOutOfTurn      = errors.New("not this player's turn")
	ErrIllegalMove    = errors.New("illegal move")
	ErrNotParticipant = errors.New("connection is not seated in this session")
	ErrNoPendingDraw  = errors.New("no draw offer pending")
)

// Seat is one side's role within a session. ConnID is uuid.Nil while the
// seat is detached from the transport.
type Seat struct {
	ConnID   uuid.UUID
	PlayerID string
	Color    color.Color
}

// Snapshot is one replay record: the position before a move plus the
// move that was applied to it. Re-applying the moves in order from the
// initial position reconstructs the final board.
type Snapshot struct {
	Position string `json:"position"`
	From     string `json:"from"`
	To       string `json:"to"`
}

type drawOffer struct {
	connID    uuid.UUID
	color     color.Color
	offeredAt time.Time
}

// Session is one paired contest. The seats slice shrinks on disconnect
// but the session itself stays queryable for replay after it ends.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	mu      sync.Mutex
	seats   []Seat
	game    *rules.Game
	moveLog []Snapshot

	whiteClock int64 // seconds, reported by the client that just moved
	blackClock int64

	status  Status
	outcome *rules.Outcome

	pendingDraw *drawOffer
	drawTTL     time.Duration

	publisher *events.Publisher
	logger    *zap.Logger
}

// NewSession creates a session in the waiting state with both seats
// assigned but detached. Only the pairing worker calls this.
func NewSession(
	whiteID, blackID string,
	initialClock int64,
	drawTTL time.Duration,
	publisher *events.Publisher,
	logger *zap.Logger,
) *Session {
	return &Session{
		ID:        uuid.New(),
		CreatedAt: time.Now(),
		seats: []Seat{
			{PlayerID: whiteID, Color: color.White},
			{PlayerID: blackID, Color: color.Black},
		},
		game:       rules.NewGame(),
		whiteClock: initialClock,
		blackClock: initialClock,
		status:     StatusWaiting,
		drawTTL:    drawTTL,
		publisher:  publisher,
		logger:     logger,
	}
}

// Join attaches or refreshes the seat belonging to the given player and
// returns the handshake data. Re-entrant: a reconnecting player simply
// gets its connection ref updated.
func (s *Session) Join(connID uuid.UUID, playerID string) (messages.HandshakePayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusEnded {
		return messages.HandshakePayload{}, ErrSessionOver
	}

	seat := s.seatByPlayerLocked(playerID)
	if seat == nil {
		return messages.HandshakePayload{}, ErrNotParticipant
	}

	seat.ConnID = connID
	if s.status == StatusWaiting {
		s.status = StatusActive
	}

	s.logger.Info("seat joined",
		zap.String("session_id", s.ID.String()),
		zap.String("player_id", playerID),
		zap.String("color", string(seat.Color)))

	return messages.HandshakePayload{
		Color:    seat.Color,
		Position: s.game.FEN(),
	}, nil
}

// AttemptMove proposes a move for the seat behind connID. A rejection
// leaves position, turn and both clocks untouched. On acceptance the
// pre-move position is logged for replay, the mover's clock takes the
// client-reported value and the result is broadcast to every seat.
func (s *Session) AttemptMove(connID uuid.UUID, from, to string, clr color.Color, clientClock int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusEnded {
		return ErrSessionOver
	}

	seat := s.seatByConnLocked(connID)
	if seat == nil {
		return ErrNotParticipant
	}
	if clr != seat.Color || seat.Color != s.game.Turn() {
		return ErrOutOfTurn
	}

	before := s.game.FEN()
	if !s.game.ApplyMove(from, to) {
		return ErrIllegalMove
	}

	s.moveLog = append(s.moveLog, Snapshot{Position: before, From: from, To: to})
	if seat.Color == color.White {
		s.whiteClock = clientClock
	} else {
		s.blackClock = clientClock
	}

	s.logger.Info("move accepted",
		zap.String("session_id", s.ID.String()),
		zap.String("move", from+to),
		zap.String("new_turn", string(s.game.Turn())))

	if outcome := s.game.Terminal(); outcome != nil {
		s.endLocked(outcome)
		s.broadcastLocked(messages.OutboundMessage{
			Event: messages.EventGameEnded,
			Payload: messages.GameEndedPayload{
				Outcome:     string(outcome.Kind),
				WinnerColor: outcome.Winner,
			},
		})
		return nil
	}

	s.broadcastLocked(messages.OutboundMessage{
		Event: messages.EventPositionUpdated,
		Payload: messages.PositionUpdatedPayload{
			Position: s.game.FEN(),
			Clocks:   messages.ClocksPayload{White: s.whiteClock, Black: s.blackClock},
			Turn:     s.game.Turn(),
		},
	})
	return nil
}

// Resign ends the session immediately and alerts every seat, carrying
// the resigner's color so the other side knows it won.
func (s *Session) Resign(connID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusEnded {
		return ErrSessionOver
	}

	seat := s.seatByConnLocked(connID)
	if seat == nil {
		return ErrNotParticipant
	}

	s.endLocked(&rules.Outcome{
		Kind:   rules.OutcomeResignation,
		Winner: seat.Color.Opp(),
	})
	s.broadcastLocked(messages.OutboundMessage{
		Event:   messages.EventAlert,
		Payload: messages.AlertPayload{Kind: messages.AlertResign, Color: seat.Color},
	})
	return nil
}

// RequestDraw forwards a draw offer to the other seat only. The answer
// arrives out of band through DrawResponse; an unanswered offer expires
// after the configured TTL.
func (s *Session) RequestDraw(connID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusEnded {
		return ErrSessionOver
	}

	seat := s.seatByConnLocked(connID)
	if seat == nil {
		return ErrNotParticipant
	}

	s.pendingDraw = &drawOffer{
		connID:    connID,
		color:     seat.Color,
		offeredAt: time.Now(),
	}

	other := s.otherSeatLocked(connID)
	if other == nil || other.ConnID == uuid.Nil {
		// Nobody to ask; the offer stays pending until it expires.
		return nil
	}

	s.publisher.Publish(events.Event{
		Type:       events.EventSessionMessage,
		SessionID:  s.ID.String(),
		Recipients: []uuid.UUID{other.ConnID},
		Payload: messages.OutboundMessage{
			Event:   messages.EventAlert,
			Payload: messages.AlertPayload{Kind: messages.AlertDrawOffer, Color: seat.Color},
		},
	})
	return nil
}

// DrawResponse answers the pending offer. The answer is relayed to the
// offerer; acceptance of a live offer ends the session as an agreed
// draw. An expired offer is answered as declined regardless of accept.
func (s *Session) DrawResponse(connID uuid.UUID, accept bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusEnded {
		return ErrSessionOver
	}

	seat := s.seatByConnLocked(connID)
	if seat == nil {
		return ErrNotParticipant
	}

	offer := s.pendingDraw
	if offer == nil || offer.connID == connID {
		return ErrNoPendingDraw
	}
	s.pendingDraw = nil

	if s.drawTTL > 0 && time.Since(offer.offeredAt) > s.drawTTL {
		accept = false
	}

	s.publisher.Publish(events.Event{
		Type:       events.EventSessionMessage,
		SessionID:  s.ID.String(),
		Recipients: []uuid.UUID{offer.connID},
		Payload: messages.OutboundMessage{
			Event:   messages.EventDrawResponse,
			Payload: messages.DrawAnswerPayload{Accept: accept},
		},
	})

	if accept {
		s.endLocked(&rules.Outcome{Kind: rules.OutcomeAgreedDraw})
		s.broadcastLocked(messages.OutboundMessage{
			Event:   messages.EventGameEnded,
			Payload: messages.GameEndedPayload{Outcome: string(rules.OutcomeAgreedDraw)},
		})
	}
	return nil
}

// Disconnect removes the seat attached to connID and reports whether the
// connection was seated here. When the last seat leaves the session is
// marked ended but kept for replay.
func (s *Session) Disconnect(connID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.seats {
		if s.seats[i].ConnID == connID && connID != uuid.Nil {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	s.logger.Info("seat disconnected",
		zap.String("session_id", s.ID.String()),
		zap.String("player_id", s.seats[idx].PlayerID))

	s.seats = append(s.seats[:idx], s.seats[idx+1:]...)

	if len(s.seats) == 0 && s.status != StatusEnded {
		s.endLocked(&rules.Outcome{Kind: rules.OutcomeAbandoned})
	}
	return true
}

// Abort ends a session that never became active. Used by the waiting
// session sweep; no-op once the session is active or ended.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusWaiting {
		return
	}
	s.endLocked(&rules.Outcome{Kind: rules.OutcomeAbandoned})
}

// HasConnection reports whether connID is attached to one of the seats.
func (s *Session) HasConnection(connID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if connID == uuid.Nil {
		return false
	}
	for i := range s.seats {
		if s.seats[i].ConnID == connID {
			return true
		}
	}
	return false
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Outcome returns how the session ended, or nil while it is live.
func (s *Session) Outcome() *rules.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// FEN returns the current position.
func (s *Session) FEN() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game.FEN()
}

// Turn returns the color whose move is legal next.
func (s *Session) Turn() color.Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game.Turn()
}

// Clocks returns both remaining time budgets in seconds.
func (s *Session) Clocks() (white, black int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.whiteClock, s.blackClock
}

// MoveLog returns a copy of the replay records.
func (s *Session) MoveLog() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Snapshot, len(s.moveLog))
	copy(out, s.moveLog)
	return out
}

// Seats returns a copy of the currently attached seats.
func (s *Session) Seats() []Seat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Seat, len(s.seats))
	copy(out, s.seats)
	return out
}

func (s *Session) endLocked(outcome *rules.Outcome) {
	s.status = StatusEnded
	s.outcome = outcome
	s.pendingDraw = nil

	s.logger.Info("session ended",
		zap.String("session_id", s.ID.String()),
		zap.String("outcome", string(outcome.Kind)))

	s.publisher.Publish(events.Event{
		Type:      events.EventSessionEnded,
		SessionID: s.ID.String(),
	})
}

// broadcastLocked sends a message to every attached seat.
func (s *Session) broadcastLocked(msg messages.OutboundMessage) {
	var recipients []uuid.UUID
	for i := range s.seats {
		if s.seats[i].ConnID != uuid.Nil {
			recipients = append(recipients, s.seats[i].ConnID)
		}
	}
	if len(recipients) == 0 {
		return
	}

	s.publisher.Publish(events.Event{
		Type:       events.EventSessionMessage,
		SessionID:  s.ID.String(),
		Recipients: recipients,
		Payload:    msg,
	})
}

func (s *Session) seatByPlayerLocked(playerID string) *Seat {
	for i := range s.seats {
		if s.seats[i].PlayerID == playerID {
			return &s.seats[i]
		}
	}
	return nil
}

func (s *Session) seatByConnLocked(connID uuid.UUID) *Seat {
	if connID == uuid.Nil {
		return nil
	}
	for i := range s.seats {
		if s.seats[i].ConnID == connID {
			return &s.seats[i]
		}
	}
	return nil
}

func (s *Session) otherSeatLocked(connID uuid.UUID) *Seat {
	for i := range s.seats {
		if s.seats[i].ConnID != connID {
			return &s.seats[i]
		}
	}
	return nil
}
