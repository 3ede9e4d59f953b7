package app

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Pairwise/internal/domain"
	"github.com/go-playground/validator/v10"
)

// Inbound message types.
const (
	msgStrokeStart = "stroke_start"
	msgStrokeMove  = "stroke_move"
	msgStrokeEnd   = "stroke_end"
	msgJoin        = "join"
	msgPing        = "ping"

	msgWebRTCOffer        = "webrtc_offer"
	msgWebRTCAnswer       = "webrtc_answer"
	msgWebRTCIceCandidate = "webrtc_ice_candidate"
)

// Outbound message types.
const (
	msgJoined          = "joined"
	msgFullState       = "full_state"
	msgUserJoined      = "user_joined"
	msgUserLeft        = "user_left"
	msgRoomFull        = "room_full"
	msgStrokeUpdate    = "stroke_update"
	msgStrokeBroadcast = "stroke_broadcast"
	msgPong            = "pong"
)

// isRelayKind reports whether t is forwarded verbatim without inspection.
func isRelayKind(t string) bool {
	switch t {
	case msgWebRTCOffer, msgWebRTCAnswer, msgWebRTCIceCandidate:
		return true
	}
	return false
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type envelope struct {
	Type string `json:"type"`
}

type strokeStartMsg struct {
	StrokeID string   `json:"strokeId" validate:"required,max=128"`
	Tool     string   `json:"tool" validate:"required,oneof=pen eraser"`
	Color    string   `json:"color" validate:"required,max=64"`
	X        *float64 `json:"x" validate:"required"`
	Y        *float64 `json:"y" validate:"required"`
}

type strokeMoveMsg struct {
	StrokeID string   `json:"strokeId" validate:"required,max=128"`
	X        *float64 `json:"x" validate:"required"`
	Y        *float64 `json:"y" validate:"required"`
}

type strokeEndMsg struct {
	StrokeID string `json:"strokeId" validate:"required,max=128"`
}

// decodeInto unmarshals and validates one inbound message body.
func decodeInto(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	return nil
}

type joinedMsg struct {
	Type      string      `json:"type"`
	UserCount int         `json:"userCount"`
	YourRole  domain.Role `json:"yourRole,omitempty"`
}

type fullStateMsg struct {
	Type    string          `json:"type"`
	Strokes []domain.Stroke `json:"strokes"`
}

type userCountMsg struct {
	Type      string `json:"type"`
	UserCount int    `json:"userCount"`
}

type typeOnlyMsg struct {
	Type string `json:"type"`
}

type strokeUpdateMsg struct {
	Type     string         `json:"type"`
	StrokeID string         `json:"strokeId"`
	Tool     domain.Tool    `json:"tool"`
	Color    string         `json:"color"`
	Points   []domain.Point `json:"points"`
}

type strokeBroadcastMsg struct {
	Type   string        `json:"type"`
	Stroke domain.Stroke `json:"stroke"`
}
