// Package engine describes the capability surface lanehud needs from a
// turn-by-turn navigation engine. Route computation, map matching and lane
// assistance live behind these interfaces; lanehud only drives them.
package engine

import "fmt"

// Credential is the key pair an engine instance is created from.
type Credential struct {
	AccessKeyID     string `json:"accessKeyId" yaml:"access_key_id"`
	AccessKeySecret string `json:"accessKeySecret" yaml:"access_key_secret"`
}

// Waypoint is an immutable geographic coordinate (WGS 84).
type Waypoint struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

func (w Waypoint) String() string {
	return fmt.Sprintf("%.6f,%.6f", w.Latitude, w.Longitude)
}

// VehicleProfile biases route computation. Engines treat it as opaque.
type VehicleProfile struct {
	Mode string `json:"mode"`
}

// DefaultVehicleProfile is the profile used for every navigation request.
func DefaultVehicleProfile() VehicleProfile {
	return VehicleProfile{Mode: "car"}
}

// RouteRequest is built per StartNavigation call and discarded once resolved.
type RouteRequest struct {
	Origin      Waypoint
	Destination Waypoint
	Profile     VehicleProfile
}

// Waypoints returns the ordered waypoint list submitted to CalculateRoute.
func (r RouteRequest) Waypoints() []Waypoint {
	return []Waypoint{r.Origin, r.Destination}
}

// Route is an opaque handle to a computed route.
type Route interface {
	ID() string
}

// Location is a single position sample fed to a navigator.
type Location struct {
	Latitude             float64 `json:"lat"`
	Longitude            float64 `json:"lng"`
	SpeedMetersPerSecond float64 `json:"speed"`
	BearingDegrees       float64 `json:"bearing"`
	TimestampMillis      int64   `json:"timestamp"`
}

// LaneDirection is an engine direction identifier, e.g. "LEFT".
type LaneDirection string

const (
	LaneLeft        LaneDirection = "LEFT"
	LaneSlightLeft  LaneDirection = "SLIGHT_LEFT"
	LaneSharpLeft   LaneDirection = "SHARP_LEFT"
	LaneStraight    LaneDirection = "STRAIGHT"
	LaneSlightRight LaneDirection = "SLIGHT_RIGHT"
	LaneRight       LaneDirection = "RIGHT"
	LaneSharpRight  LaneDirection = "SHARP_RIGHT"
	LaneUTurn       LaneDirection = "U_TURN"
)

// LaneRecommendationState says whether a lane suits the next maneuver.
type LaneRecommendationState int

const (
	LaneNotRecommended LaneRecommendationState = iota
	LaneRecommended
)

func (s LaneRecommendationState) String() string {
	switch s {
	case LaneRecommended:
		return "RECOMMENDED"
	case LaneNotRecommended:
		return "NOT_RECOMMENDED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// LaneRecommendation is the engine's judgment for one lane.
type LaneRecommendation struct {
	Directions []LaneDirection
	State      LaneRecommendationState
}

// LaneAssistance is the payload of a lane-assistance callback.
type LaneAssistance struct {
	Lanes                    []LaneRecommendation
	DistanceToManeuverMeters int
}

// RoutingError is the error code an engine reports to a route callback.
type RoutingError struct {
	Code        string
	Description string
}

func (e *RoutingError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

// CalculateRouteCallback fires exactly once per CalculateRoute call, on a
// goroutine owned by the engine.
type CalculateRouteCallback func(err *RoutingError, routes []Route)

// LaneAssistanceListener receives lane-assistance updates. A navigator holds
// at most one listener.
type LaneAssistanceListener interface {
	OnLaneAssistanceUpdated(la *LaneAssistance)
}

// LaneAssistanceListenerFunc adapts a function to LaneAssistanceListener.
type LaneAssistanceListenerFunc func(la *LaneAssistance)

func (f LaneAssistanceListenerFunc) OnLaneAssistanceUpdated(la *LaneAssistance) { f(la) }

// Provider creates engine instances from credentials.
type Provider interface {
	NewEngine(cred Credential) (Engine, error)
}

// Engine is a live engine instance.
type Engine interface {
	NewRoutingEngine() (RoutingEngine, error)
	NewNavigator() (Navigator, error)
	Close() error
}

// RoutingEngine computes routes asynchronously.
type RoutingEngine interface {
	CalculateRoute(waypoints []Waypoint, profile VehicleProfile, cb CalculateRouteCallback)
}

// Navigator tracks progress along a route and reports lane assistance.
type Navigator interface {
	// SetLaneAssistanceListener replaces the registered listener; nil detaches it.
	SetLaneAssistanceListener(l LaneAssistanceListener)
	// SetRoute starts guidance along route; nil stops guidance.
	SetRoute(route Route)
	// OnLocationUpdated must not block the caller.
	OnLocationUpdated(loc Location)
	Close() error
}
