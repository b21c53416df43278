// Package enginetest provides a scriptable in-memory engine. Route callbacks
// fire only when a test resolves them, which lets tests drive the async
// correlation paths deterministically.
package enginetest

import (
	"errors"
	"sync"

	"lanehud/internal/engine"
)

// Route is a named route handle.
type Route struct {
	Name string
}

func (r *Route) ID() string { return r.Name }

// Provider records every engine it creates. Set the error fields to make the
// corresponding construction step fail.
type Provider struct {
	mu           sync.Mutex
	EngineErr    error
	RoutingErr   error
	NavigatorErr error
	engines      []*Engine
}

// NewProvider returns a provider that always succeeds.
func NewProvider() *Provider {
	return &Provider{}
}

func (p *Provider) NewEngine(cred engine.Credential) (engine.Engine, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.EngineErr != nil {
		return nil, p.EngineErr
	}
	if cred.AccessKeyID == "" {
		return nil, errors.New("invalid credential")
	}
	e := &Engine{
		Credential:   cred,
		routingErr:   p.RoutingErr,
		navigatorErr: p.NavigatorErr,
	}
	p.engines = append(p.engines, e)
	return e, nil
}

// Engines returns all engines created so far.
func (p *Provider) Engines() []*Engine {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Engine, len(p.engines))
	copy(out, p.engines)
	return out
}

// Last returns the most recently created engine, or nil.
func (p *Provider) Last() *Engine {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.engines) == 0 {
		return nil
	}
	return p.engines[len(p.engines)-1]
}

// Engine is a fake engine instance.
type Engine struct {
	Credential engine.Credential

	mu           sync.Mutex
	routingErr   error
	navigatorErr error
	routing      *RoutingEngine
	navigator    *Navigator
	closed       bool
}

func (e *Engine) NewRoutingEngine() (engine.RoutingEngine, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.routingErr != nil {
		return nil, e.routingErr
	}
	e.routing = &RoutingEngine{}
	return e.routing, nil
}

func (e *Engine) NewNavigator() (engine.Navigator, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.navigatorErr != nil {
		return nil, e.navigatorErr
	}
	e.navigator = &Navigator{}
	return e.navigator, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Routing returns the routing engine created by NewRoutingEngine.
func (e *Engine) Routing() *RoutingEngine {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.routing
}

// Navigator returns the navigator created by NewNavigator.
func (e *Engine) Navigator() *Navigator {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.navigator
}

// RoutingEngine queues route calls until a test completes them.
type RoutingEngine struct {
	mu    sync.Mutex
	calls []*RouteCall
}

func (r *RoutingEngine) CalculateRoute(waypoints []engine.Waypoint, profile engine.VehicleProfile, cb engine.CalculateRouteCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, &RouteCall{
		Waypoints: append([]engine.Waypoint(nil), waypoints...),
		Profile:   profile,
		cb:        cb,
	})
}

// Calls returns all route calls received so far.
func (r *RoutingEngine) Calls() []*RouteCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*RouteCall, len(r.calls))
	copy(out, r.calls)
	return out
}

// Last returns the most recent route call, or nil.
func (r *RoutingEngine) Last() *RouteCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

// RouteCall is one pending CalculateRoute invocation.
type RouteCall struct {
	Waypoints []engine.Waypoint
	Profile   engine.VehicleProfile

	once sync.Once
	cb   engine.CalculateRouteCallback
}

// Complete fires the callback once; later calls are ignored.
func (c *RouteCall) Complete(err *engine.RoutingError, routes []engine.Route) {
	c.once.Do(func() { c.cb(err, routes) })
}

// Resolve completes the call successfully with routes.
func (c *RouteCall) Resolve(routes ...engine.Route) {
	c.Complete(nil, routes)
}

// Reject completes the call with an engine error.
func (c *RouteCall) Reject(code, description string) {
	c.Complete(&engine.RoutingError{Code: code, Description: description}, nil)
}

// Navigator records routes and samples and lets tests emit lane assistance.
type Navigator struct {
	mu        sync.Mutex
	listener  engine.LaneAssistanceListener
	route     engine.Route
	routes    []engine.Route
	locations []engine.Location
	closed    bool
}

func (n *Navigator) SetLaneAssistanceListener(l engine.LaneAssistanceListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listener = l
}

func (n *Navigator) SetRoute(route engine.Route) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.route = route
	n.routes = append(n.routes, route)
}

func (n *Navigator) OnLocationUpdated(loc engine.Location) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.locations = append(n.locations, loc)
}

func (n *Navigator) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	return nil
}

// Emit invokes the registered listener, if any, on the caller's goroutine.
func (n *Navigator) Emit(la *engine.LaneAssistance) {
	n.mu.Lock()
	l := n.listener
	n.mu.Unlock()
	if l != nil {
		l.OnLaneAssistanceUpdated(la)
	}
}

// HasListener reports whether a listener is registered.
func (n *Navigator) HasListener() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.listener != nil
}

// Route returns the active route.
func (n *Navigator) Route() engine.Route {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.route
}

// SetRouteCalls returns every value passed to SetRoute, in order.
func (n *Navigator) SetRouteCalls() []engine.Route {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]engine.Route, len(n.routes))
	copy(out, n.routes)
	return out
}

// Locations returns every forwarded sample.
func (n *Navigator) Locations() []engine.Location {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]engine.Location, len(n.locations))
	copy(out, n.locations)
	return out
}

// Closed reports whether Close was called.
func (n *Navigator) Closed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}
