// Package event carries normalized navigation events from the session core
// to the host presentation layer.
package event

import "time"

// Type names an event on the bus and on the wire.
type Type string

const (
	// TypeLaneGuidance is the "lane guidance updated" event.
	TypeLaneGuidance Type = "lane.guidance"
	// TypeState reports a session lifecycle transition.
	TypeState Type = "navigation.state"
)

// LaneInfo is one lane of a normalized guidance event.
type LaneInfo struct {
	Directions  []string `json:"directions"`
	Recommended bool     `json:"recommended"`
}

// LaneGuidanceEvent is the normalized lane-assistance payload.
type LaneGuidanceEvent struct {
	Lanes                    []LaneInfo `json:"lanes"`
	DistanceToManeuverMeters int        `json:"distanceToManeuverMeters"`
}

// StateEvent reports the session state after a transition.
type StateEvent struct {
	State   string `json:"state"`
	RouteID string `json:"routeId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Event is the bus envelope. Exactly one payload field is set, matching Type.
type Event struct {
	Type         Type
	LaneGuidance *LaneGuidanceEvent
	State        *StateEvent
	Timestamp    time.Time
}

// NewLaneGuidance wraps a guidance payload in an envelope.
func NewLaneGuidance(ev LaneGuidanceEvent) Event {
	return Event{
		Type:         TypeLaneGuidance,
		LaneGuidance: &ev,
		Timestamp:    time.Now().UTC(),
	}
}

// NewState wraps a state payload in an envelope.
func NewState(ev StateEvent) Event {
	return Event{
		Type:      TypeState,
		State:     &ev,
		Timestamp: time.Now().UTC(),
	}
}
