package navigation

import "lanehud/internal/engine"

// State is the lifecycle state of a navigation session.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateInitialized   State = "initialized"
	StateNavigating    State = "navigating"
)

// hasHandles reports whether engine handles exist in this state.
func (s State) hasHandles() bool {
	return s == StateInitialized || s == StateNavigating
}

// Session holds the engine handles and the current route. It is owned by a
// Coordinator and only touched under the coordinator's mutex.
type Session struct {
	State State

	engine       engine.Engine
	routing      engine.RoutingEngine
	navigator    engine.Navigator
	currentRoute engine.Route
	pending      *PendingRoute
}

// Snapshot is a point-in-time copy of the observable session state.
type Snapshot struct {
	State        State  `json:"state"`
	RouteID      string `json:"routeId,omitempty"`
	PendingToken string `json:"pendingToken,omitempty"`
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{State: s.State}
	if s.currentRoute != nil {
		snap.RouteID = s.currentRoute.ID()
	}
	if s.pending != nil {
		snap.PendingToken = s.pending.token
	}
	return snap
}
