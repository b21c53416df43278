package routecache

import (
	"lanehud/internal/engine"
	"lanehud/internal/logging"
)

// Router wraps another routing engine with a cache-aside layer. A hit
// invokes the callback inline on the caller's goroutine; a miss delegates to
// the inner engine and stores successful non-empty results.
type Router struct {
	inner engine.RoutingEngine
	cache *Cache
	log   *logging.Logger
}

// NewRouter wraps inner with cache.
func NewRouter(inner engine.RoutingEngine, cache *Cache, log *logging.Logger) *Router {
	return &Router{inner: inner, cache: cache, log: log}
}

// CalculateRoute implements engine.RoutingEngine.
func (r *Router) CalculateRoute(waypoints []engine.Waypoint, profile engine.VehicleProfile, cb engine.CalculateRouteCallback) {
	key := r.cache.Key(waypoints, profile)
	if routes, ok := r.cache.Get(key); ok {
		r.log.Debug("route cache hit", "key", key)
		cb(nil, routes)
		return
	}

	r.inner.CalculateRoute(waypoints, profile, func(rerr *engine.RoutingError, routes []engine.Route) {
		if rerr == nil && len(routes) > 0 {
			r.cache.Set(key, routes)
		}
		cb(rerr, routes)
	})
}

// WrapProvider returns a provider whose routing engines are wrapped in a
// Router sharing cache. The cache outlives engine instances, so results
// survive re-initialization.
func WrapProvider(inner engine.Provider, cache *Cache, log *logging.Logger) engine.Provider {
	return &provider{inner: inner, cache: cache, log: log.WithComponent("routecache")}
}

type provider struct {
	inner engine.Provider
	cache *Cache
	log   *logging.Logger
}

func (p *provider) NewEngine(cred engine.Credential) (engine.Engine, error) {
	e, err := p.inner.NewEngine(cred)
	if err != nil {
		return nil, err
	}
	return &cachedEngine{Engine: e, cache: p.cache, log: p.log}, nil
}

type cachedEngine struct {
	engine.Engine
	cache *Cache
	log   *logging.Logger
}

func (e *cachedEngine) NewRoutingEngine() (engine.RoutingEngine, error) {
	re, err := e.Engine.NewRoutingEngine()
	if err != nil {
		return nil, err
	}
	return NewRouter(re, e.cache, e.log), nil
}
