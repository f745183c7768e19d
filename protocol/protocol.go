// Package protocol defines the textual message envelope exchanged between
// server and client, the payload shapes for every message type, and the
// boundary validation that turns raw frames into typed messages.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/asciiarena/asciiarena/game"
)

// Message type tags. Type is the discriminant of the envelope; unknown
// tags are rejected at the boundary with an UNKNOWN_TYPE error.
const (
	TypeConnect       = "CONNECT"
	TypeSetPlayerName = "SET_PLAYER_NAME"
	TypeMove          = "MOVE"
	TypeStateUpdate   = "STATE_UPDATE"
	TypePlayerJoined  = "PLAYER_JOINED"
	TypePlayerLeft    = "PLAYER_LEFT"
	TypeError         = "ERROR"
	TypePing          = "PING"
	TypePong          = "PONG"
)

// Error codes carried by ERROR payloads.
const (
	CodeInvalidMove = "INVALID_MOVE"
	CodeUnknownType = "UNKNOWN_TYPE"
	CodeInternal    = "INTERNAL"
)

// ErrMissingType reports an envelope without a type tag.
var ErrMissingType = errors.New("message missing type")

// Message is the wire envelope. Timestamp is milliseconds; ClientID is
// the opaque server-issued connection token.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp uint64          `json:"timestamp"`
	ClientID  string          `json:"clientId,omitempty"`
}

// Now returns the current wall clock in the envelope's millisecond unit.
func Now() uint64 {
	return uint64(time.Now().UnixMilli())
}

// New builds a stamped envelope around a payload. A nil payload produces
// an empty-payload message (PING, PONG).
func New(msgType string, payload any) (Message, error) {
	msg := Message{Type: msgType, Timestamp: Now()}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encoding %s payload: %w", msgType, err)
	}
	msg.Payload = raw
	return msg, nil
}

// MustNew is New for payloads that cannot fail to marshal.
func MustNew(msgType string, payload any) Message {
	msg, err := New(msgType, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// Validate checks the envelope invariants that hold for every type.
func (m *Message) Validate() error {
	if m.Type == "" {
		return ErrMissingType
	}
	return nil
}

// DecodePayload unmarshals the payload into v.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s payload is empty", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", m.Type, err)
	}
	return nil
}

// ConnectPayload is the server-to-client CONNECT shape. On accept it
// carries clientId and the current state; once a spawn is assigned it also
// carries playerId; a deferred join carries waitMessage instead.
type ConnectPayload struct {
	ClientID    string         `json:"clientId,omitempty"`
	PlayerID    string         `json:"playerId,omitempty"`
	GameState   *game.Snapshot `json:"gameState,omitempty"`
	WaitMessage string         `json:"waitMessage,omitempty"`
}

// ConnectRequest is the client-to-server CONNECT shape. PlayerID is set
// when resuming a previous session.
type ConnectRequest struct {
	PlayerID   string `json:"playerId,omitempty"`
	PlayerName string `json:"playerName,omitempty"`
}

// SetPlayerNamePayload carries a rename (or the initial name of a join).
type SetPlayerNamePayload struct {
	Name string `json:"name"`
}

// MovePayload is a single-step movement intent.
type MovePayload struct {
	Dx int `json:"dx"`
	Dy int `json:"dy"`
}

// Validate rejects steps outside the allowed set.
func (p MovePayload) Validate(allowDiagonal bool) error {
	if !game.ValidStep(p.Dx, p.Dy, allowDiagonal) {
		return fmt.Errorf("invalid move step (%d, %d)", p.Dx, p.Dy)
	}
	return nil
}

// PlayerJoinedPayload announces a newly placed player.
type PlayerJoinedPayload struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
}

// PlayerLeftPayload announces a removed player.
type PlayerLeftPayload struct {
	PlayerID string `json:"playerId"`
}

// ErrorContext describes the failing action in machine-readable form.
type ErrorContext struct {
	Action            string      `json:"action,omitempty"`
	Reason            string      `json:"reason,omitempty"`
	AttemptedPosition *game.Point `json:"attemptedPosition,omitempty"`
	CurrentPosition   *game.Point `json:"currentPosition,omitempty"`
}

// ErrorPayload is the ERROR shape.
type ErrorPayload struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Context ErrorContext `json:"context,omitempty"`
}

// NewError builds a stamped ERROR message.
func NewError(code, message string, ctx ErrorContext) Message {
	return MustNew(TypeError, ErrorPayload{Code: code, Message: message, Context: ctx})
}
