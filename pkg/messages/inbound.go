package messages

import (
	"encoding/json"

	"github.com/tecu23/match-server/internal/color"
)

// InboundMessage is the generic wrapper for messages coming from the client.
// The "type" field tells us the action; "payload" is the data we parse further.
type InboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Inbound message types understood by the hub.
const (
	TypeRegisterIdentity = "register-identity"
	TypeJoinQueue        = "join-queue"
	TypeJoinSession      = "join-session"
	TypeSubmitMove       = "submit-move"
	TypeResign           = "resign"
	TypeRequestDraw      = "request-draw"
	TypeDrawResponse     = "draw-response"
)

// RegisterIdentityPayload binds the connection to a stable player identity.
// Profile is opaque to the server and kept only for the lifetime of the
// connection.
type RegisterIdentityPayload struct {
	PlayerID string          `json:"player_id"`
	Profile  json.RawMessage `json:"profile,omitempty"`
}

// JoinQueuePayload asks for the player to be enqueued for pairing
type JoinQueuePayload struct {
	PlayerID string `json:"player_id"`
}

// JoinSessionPayload attaches the connection to an existing session
type JoinSessionPayload struct {
	SessionID string `json:"session_id"`
}

// SubmitMovePayload proposes a move during a session
type SubmitMovePayload struct {
	SessionID   string      `json:"session_id"`
	From        string      `json:"from"`
	To          string      `json:"to"`
	Color       color.Color `json:"color"`
	ClientClock int64       `json:"client_clock"`
}

// SessionActionPayload covers resign and request-draw, which only need
// the session id
type SessionActionPayload struct {
	SessionID string `json:"session_id"`
}

// DrawResponsePayload answers a pending draw offer
type DrawResponsePayload struct {
	SessionID string `json:"session_id"`
	Accept    bool   `json:"accept"`
}
