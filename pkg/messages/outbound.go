package messages

import "github.com/tecu23/match-server/internal/color"

// OutboundMessage is how we wrap responses before sending
// them to the client
type OutboundMessage struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// Outbound event names.
const (
	EventConnected       = "connected"
	EventPaired          = "paired"
	EventHandshake       = "handshake"
	EventMoveRejected    = "move-rejected"
	EventPositionUpdated = "position-updated"
	EventGameEnded       = "game-ended"
	EventAlert           = "alert"
	EventDrawResponse    = "draw-response"
	EventStatsUpdate     = "stats-update"
	EventError           = "error"
)

// ConnectedPayload acknowledges a freshly registered connection
type ConnectedPayload struct {
	ConnectionID string `json:"connection_id"`
}

// PairedPayload notifies a player that a partner was found
type PairedPayload struct {
	SessionID  string `json:"session_id"`
	OpponentID string `json:"opponent_id"`
}

// HandshakePayload carries the seat assignment and the current position
// after a join-session request
type HandshakePayload struct {
	Color    color.Color `json:"color"`
	Position string      `json:"position"`
}

// ClocksPayload holds both remaining time budgets in seconds
type ClocksPayload struct {
	White int64 `json:"white"`
	Black int64 `json:"black"`
}

// PositionUpdatedPayload is broadcast after an accepted, non-terminal move
type PositionUpdatedPayload struct {
	Position string        `json:"position"`
	Clocks   ClocksPayload `json:"clocks"`
	Turn     color.Color   `json:"turn"`
}

// MoveRejectedPayload tells the submitting connection why nothing changed
type MoveRejectedPayload struct {
	Reason string `json:"reason"`
}

// GameEndedPayload is broadcast on a terminal outcome. WinnerColor is
// empty for drawn outcomes.
type GameEndedPayload struct {
	Outcome     string      `json:"outcome"`
	WinnerColor color.Color `json:"winner_color,omitempty"`
}

// AlertPayload notifies a seat about an opponent action
type AlertPayload struct {
	Kind  string      `json:"kind"`
	Color color.Color `json:"color,omitempty"`
}

// Alert kinds.
const (
	AlertResign    = "resign"
	AlertDrawOffer = "draw-offer"
)

// DrawAnswerPayload relays the opponent's answer back to the offerer
type DrawAnswerPayload struct {
	Accept bool `json:"accept"`
}

// StatsPayload is the presence snapshot broadcast to every connection
type StatsPayload struct {
	Online uint `json:"online"`
	Queued uint `json:"queued"`
	Active uint `json:"active"`
}

// ErrorPayload reports a request-scoped failure to the sender only
type ErrorPayload struct {
	Message string `json:"message"`
}
