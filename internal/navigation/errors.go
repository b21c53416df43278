package navigation

import (
	"errors"
	"fmt"
)

// UnknownRoutingError is the description used when the engine reports a
// failure without one, or returns no routes.
const UnknownRoutingError = "Unknown error"

var (
	// ErrNotInitialized is returned when an operation needs engine handles
	// that do not exist yet.
	ErrNotInitialized = errors.New("navigation: session not initialized")

	// ErrRequestPending is returned under the reject overlap policy when a
	// route request is already outstanding.
	ErrRequestPending = errors.New("navigation: a route request is already pending")
)

// Initialization stages.
const (
	StageEngine    = "engine"
	StageRouting   = "routing"
	StageNavigator = "navigator"
)

// InitializationError reports which handle failed to construct.
type InitializationError struct {
	Stage string
	Err   error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("initialize %s: %v", e.Stage, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// RoutingError is delivered through a PendingRoute when route calculation
// fails or yields nothing usable. Error returns Description verbatim.
type RoutingError struct {
	// Code is the engine error code, empty when the engine gave none.
	Code        string
	Description string
	Err         error
}

func (e *RoutingError) Error() string { return e.Description }

func (e *RoutingError) Unwrap() error { return e.Err }
