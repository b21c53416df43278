package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"lanehud/internal/event"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a server-originated message with the current timestamp.
func NewMessage(msgType string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// FromEvent converts a bus event into a wire message, keeping the event's
// own timestamp.
func FromEvent(ev event.Event) (*Message, error) {
	var payload interface{}
	switch ev.Type {
	case event.TypeLaneGuidance:
		payload = ev.LaneGuidance
	case event.TypeState:
		payload = ev.State
	default:
		return nil, fmt.Errorf("unknown event type: %s", ev.Type)
	}
	msg, err := NewMessage(string(ev.Type), payload)
	if err != nil {
		return nil, err
	}
	if !ev.Timestamp.IsZero() {
		msg.Timestamp = ev.Timestamp
	}
	return msg, nil
}

// Server → Client message types.
const (
	TypeLaneGuidance    = string(event.TypeLaneGuidance)
	TypeNavigationState = string(event.TypeState)
	TypeError           = "error"
)

// Client → Server message types.
const (
	TypeNavigationInitialize = "navigation.initialize"
	TypeNavigationStart      = "navigation.start"
	TypeLocationUpdate       = "location.update"
	TypeNavigationStop       = "navigation.stop"
)

// Error codes.
const (
	ErrNotInitialized = "NOT_INITIALIZED"
	ErrSDKInit        = "SDK_INIT_ERROR"
	ErrRouting        = "ROUTING_ERROR"
	ErrRequestPending = "REQUEST_PENDING"
	ErrInvalidMessage = "INVALID_MESSAGE"
)

// Server → Client payloads. Lane guidance and state payloads are the bus
// event bodies (event.LaneGuidanceEvent, event.StateEvent).

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	// Token correlates a ROUTING_ERROR with the start request that caused it.
	Token string `json:"token,omitempty"`
}

// Client → Server payloads.

type InitializePayload struct {
	AccessKeyID     string `json:"accessKeyId"`
	AccessKeySecret string `json:"accessKeySecret"`
}

type Coordinate struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

type StartPayload struct {
	Origin      Coordinate `json:"origin"`
	Destination Coordinate `json:"destination"`
}

type LocationPayload struct {
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
	Speed   float64  `json:"speed"`
	Bearing float64  `json:"bearing"`
}
