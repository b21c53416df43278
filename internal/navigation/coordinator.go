// Package navigation owns a turn-by-turn navigation session: it creates the
// engine handles, correlates asynchronous route requests, forwards position
// samples and republishes lane assistance as normalized events.
package navigation

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"lanehud/internal/engine"
	"lanehud/internal/event"
	"lanehud/internal/logging"
)

// OverlapPolicy decides what happens to a second StartNavigation call made
// while a route request is still outstanding.
type OverlapPolicy string

const (
	// RejectNew fails the new call with ErrRequestPending.
	RejectNew OverlapPolicy = "reject"
	// SupersedeOld rejects the outstanding request and submits the new one.
	SupersedeOld OverlapPolicy = "supersede"
)

// ParseOverlapPolicy validates a policy name.
func ParseOverlapPolicy(s string) (OverlapPolicy, error) {
	switch OverlapPolicy(s) {
	case RejectNew, SupersedeOld:
		return OverlapPolicy(s), nil
	}
	return "", fmt.Errorf("unknown overlap policy %q (want %q or %q)", s, RejectNew, SupersedeOld)
}

const (
	supersededDescription    = "superseded by a newer route request"
	reinitializedDescription = "session re-initialized"
	shutdownDescription      = "session shut down"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithOverlapPolicy sets the overlap policy. The default is RejectNew.
func WithOverlapPolicy(p OverlapPolicy) Option {
	return func(c *Coordinator) { c.policy = p }
}

// WithClock replaces the wall clock used to stamp location samples.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Coordinator) { c.log = l.WithComponent("navigation") }
}

// navigatorRef is published atomically for the location feed.
type navigatorRef struct {
	nav engine.Navigator
}

// Coordinator drives one navigation session. All lifecycle transitions and
// the pending-request slot are guarded by mu; engine callbacks take the same
// lock. UpdateLocation never takes it.
type Coordinator struct {
	provider engine.Provider
	bus      *event.Bus
	policy   OverlapPolicy
	now      func() time.Time
	log      *logging.Logger

	mu      sync.Mutex
	session Session

	// feed is non-nil only while navigating.
	feed atomic.Pointer[navigatorRef]
	// generation increments on every initialize so stale listeners go quiet.
	generation atomic.Uint64
}

// NewCoordinator creates a coordinator in the uninitialized state. A nil bus
// gets a default one.
func NewCoordinator(provider engine.Provider, bus *event.Bus, opts ...Option) *Coordinator {
	if bus == nil {
		bus = event.NewBus(event.DefaultSubscriberBuffer, event.DefaultHistorySize)
	}
	c := &Coordinator{
		provider: provider,
		bus:      bus,
		policy:   RejectNew,
		now:      time.Now,
		session:  Session{State: StateUninitialized},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Initialize constructs the engine, routing and navigator handles and
// registers the lane-assistance listener before reporting success. Calling
// it again discards the previous handles, route and pending request.
func (c *Coordinator) Initialize(cred engine.Credential) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.State != StateUninitialized {
		c.log.Info("re-initializing session", "previous_state", string(c.session.State))
	}
	c.teardownLocked(reinitializedDescription)
	gen := c.generation.Add(1)
	c.session.State = StateInitializing

	eng, err := c.provider.NewEngine(cred)
	if err != nil {
		return c.failInitLocked(&InitializationError{Stage: StageEngine, Err: err})
	}

	routing, err := eng.NewRoutingEngine()
	if err != nil {
		eng.Close()
		return c.failInitLocked(&InitializationError{Stage: StageRouting, Err: err})
	}

	nav, err := eng.NewNavigator()
	if err != nil {
		eng.Close()
		return c.failInitLocked(&InitializationError{Stage: StageNavigator, Err: err})
	}
	nav.SetLaneAssistanceListener(&laneListener{c: c, gen: gen})

	c.session = Session{
		State:     StateInitialized,
		engine:    eng,
		routing:   routing,
		navigator: nav,
	}
	c.log.Info("session initialized")
	c.bus.PublishState(event.StateEvent{State: string(StateInitialized)})
	return nil
}

func (c *Coordinator) failInitLocked(err *InitializationError) error {
	c.session = Session{State: StateUninitialized}
	c.log.Error("initialization failed", "stage", err.Stage, "error", err.Err)
	c.bus.PublishState(event.StateEvent{State: string(StateUninitialized), Error: err.Error()})
	return err
}

// teardownLocked releases every handle and rejects the pending request.
func (c *Coordinator) teardownLocked(reason string) {
	c.feed.Store(nil)

	if p := c.session.pending; p != nil {
		p.finish(nil, &RoutingError{Description: reason})
	}
	if nav := c.session.navigator; nav != nil {
		nav.SetLaneAssistanceListener(nil)
		nav.SetRoute(nil)
		if err := nav.Close(); err != nil {
			c.log.Warn("close navigator", "error", err)
		}
	}
	if eng := c.session.engine; eng != nil {
		if err := eng.Close(); err != nil {
			c.log.Warn("close engine", "error", err)
		}
	}
	c.session = Session{State: StateUninitialized}
}

// StartNavigation submits a route request from origin to destination using
// the default vehicle profile. It fails synchronously with ErrNotInitialized
// before initialization and, under RejectNew, with ErrRequestPending while
// another request is outstanding. The returned PendingRoute completes when
// the engine answers.
func (c *Coordinator) StartNavigation(origin, destination engine.Waypoint) (*PendingRoute, error) {
	c.mu.Lock()

	if !c.session.State.hasHandles() || c.session.routing == nil {
		c.mu.Unlock()
		return nil, ErrNotInitialized
	}

	if old := c.session.pending; old != nil {
		if c.policy != SupersedeOld {
			c.mu.Unlock()
			return nil, ErrRequestPending
		}
		c.log.Info("superseding pending route request", "token", old.token)
		old.finish(nil, &RoutingError{Description: supersededDescription})
		c.session.pending = nil
	}

	req := engine.RouteRequest{
		Origin:      origin,
		Destination: destination,
		Profile:     engine.DefaultVehicleProfile(),
	}
	p := newPendingRoute(c, uuid.New().String(), req)
	c.session.pending = p
	routing := c.session.routing
	c.mu.Unlock()

	c.log.Debug("route request submitted", "token", p.token, "origin", origin.String(), "destination", destination.String())

	// Submitted outside the lock: engines may invoke the callback inline.
	routing.CalculateRoute(req.Waypoints(), req.Profile, func(rerr *engine.RoutingError, routes []engine.Route) {
		c.completeRoute(p, rerr, routes)
	})
	return p, nil
}

// completeRoute handles the engine callback for p. Callbacks whose request
// no longer owns the pending slot are ignored.
func (c *Coordinator) completeRoute(p *PendingRoute, rerr *engine.RoutingError, routes []engine.Route) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.pending != p {
		c.log.Debug("ignoring stale route callback", "token", p.token)
		return
	}
	c.session.pending = nil

	if rerr != nil || len(routes) == 0 {
		err := newRoutingError(rerr)
		c.log.Warn("route calculation failed", "token", p.token, "error", err.Description)
		c.bus.PublishState(event.StateEvent{
			State:   string(c.session.State),
			RouteID: c.session.snapshot().RouteID,
			Error:   err.Description,
		})
		p.finish(nil, err)
		return
	}

	// First route is preferred when the engine returns alternatives.
	route := routes[0]
	c.session.currentRoute = route
	c.session.navigator.SetRoute(route)
	c.session.State = StateNavigating
	c.feed.Store(&navigatorRef{nav: c.session.navigator})

	c.log.Info("navigation started", "token", p.token, "route_id", route.ID(), "candidates", len(routes))
	c.bus.PublishState(event.StateEvent{State: string(StateNavigating), RouteID: route.ID()})
	p.finish(route, nil)
}

func newRoutingError(rerr *engine.RoutingError) *RoutingError {
	if rerr == nil {
		return &RoutingError{Description: UnknownRoutingError}
	}
	desc := rerr.Error()
	if desc == "" {
		desc = UnknownRoutingError
	}
	return &RoutingError{Code: rerr.Code, Description: desc, Err: rerr}
}

// abandon releases p's slot after its waiter gave up.
func (c *Coordinator) abandon(p *PendingRoute, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.pending == p {
		c.session.pending = nil
	}
	if p.finish(nil, &RoutingError{
		Description: fmt.Sprintf("route request abandoned: %v", cause),
		Err:         cause,
	}) {
		c.log.Warn("route request abandoned", "token", p.token, "cause", cause)
	}
}

// UpdateLocation forwards a position sample stamped with the current time.
// Outside of navigation it does nothing. It never blocks on the session lock.
func (c *Coordinator) UpdateLocation(lat, lng, speed, bearing float64) {
	ref := c.feed.Load()
	if ref == nil {
		return
	}
	ref.nav.OnLocationUpdated(engine.Location{
		Latitude:             lat,
		Longitude:            lng,
		SpeedMetersPerSecond: speed,
		BearingDegrees:       bearing,
		TimestampMillis:      c.now().UnixMilli(),
	})
}

// StopNavigation clears the active route. It is safe in any state and
// returns the session to initialized if it was navigating.
func (c *Coordinator) StopNavigation() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.feed.Store(nil)
	if nav := c.session.navigator; nav != nil {
		nav.SetRoute(nil)
	}
	c.session.currentRoute = nil

	if c.session.State == StateNavigating {
		c.session.State = StateInitialized
		c.log.Info("navigation stopped")
		c.bus.PublishState(event.StateEvent{State: string(StateInitialized)})
	}
}

// Snapshot returns the current observable state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.snapshot()
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.State
}

// CurrentRoute returns the active route, nil unless navigating.
func (c *Coordinator) CurrentRoute() engine.Route {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.currentRoute
}

// Shutdown releases the engine handles on process exit.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation.Add(1)
	c.teardownLocked(shutdownDescription)
}
