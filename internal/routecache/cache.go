// Package routecache wraps a routing engine with an in-memory, TTL-bounded
// cache of route results keyed by the geohash cells of the waypoints.
package routecache

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mmcloughlin/geohash"

	"lanehud/internal/engine"
)

const (
	// DefaultTTL is how long a cached route list remains valid.
	DefaultTTL = 120 * time.Second

	// DefaultPrecision controls the spatial resolution of the waypoint hash.
	// Precision 7 is roughly a 150 m cell, small enough that two requests
	// sharing a key start on the same street segment.
	DefaultPrecision = 7

	// sweepThreshold is the entry count above which Set also drops expired
	// entries.
	sweepThreshold = 256
)

type entry struct {
	routes    []engine.Route
	expiresAt time.Time
}

// Cache stores route lists. It is safe for concurrent use.
type Cache struct {
	ttl       time.Duration
	precision uint
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]entry

	hits   atomic.Uint64
	misses atomic.Uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces the clock used for expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a Cache. Non-positive arguments take their defaults.
func New(ttl time.Duration, precision int, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if precision <= 0 || precision > 12 {
		precision = DefaultPrecision
	}
	c := &Cache{
		ttl:       ttl,
		precision: uint(precision),
		now:       time.Now,
		entries:   make(map[string]entry),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Key identifies a request by the geohash cell of every waypoint plus the
// vehicle profile.
func (c *Cache) Key(waypoints []engine.Waypoint, profile engine.VehicleProfile) string {
	parts := make([]string, 0, len(waypoints)+1)
	for _, w := range waypoints {
		parts = append(parts, geohash.EncodeWithPrecision(w.Latitude, w.Longitude, c.precision))
	}
	parts = append(parts, profile.Mode)
	return strings.Join(parts, "|")
}

// Get returns the cached routes for key, or false on a miss or expiry.
func (c *Cache) Get(key string) ([]engine.Route, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return append([]engine.Route(nil), e.routes...), true
}

// Set stores routes under key for the cache TTL.
func (c *Cache) Set(key string, routes []engine.Route) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if len(c.entries) >= sweepThreshold {
		for k, e := range c.entries {
			if !now.Before(e.expiresAt) {
				delete(c.entries, k)
			}
		}
	}
	c.entries[key] = entry{
		routes:    append([]engine.Route(nil), routes...),
		expiresAt: now.Add(c.ttl),
	}
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the hit and miss counters.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}
