// Package osrm implements the engine surface on top of an OSRM routing
// server. Routes come from the OSRM route service; lane assistance is derived
// locally by matching position samples against the route's maneuver steps.
package osrm

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"lanehud/internal/engine"
	"lanehud/internal/logging"
)

const (
	// DefaultBaseURL is where a locally hosted OSRM server listens.
	DefaultBaseURL = "http://localhost:5000"

	// DefaultProfile is the OSRM routing profile.
	DefaultProfile = "car"

	// DefaultTimeout bounds each route service call.
	DefaultTimeout = 5 * time.Second

	// Lane guidance is shown only within this distance window before a maneuver.
	DefaultShowDistanceMin = 80.0
	DefaultShowDistanceMax = 300.0

	// httpMaxIdleConns is the maximum number of idle (keep-alive) connections
	// kept in the transport pool.
	httpMaxIdleConns = 10

	// httpIdleConnTimeout is how long an idle connection stays pooled.
	httpIdleConnTimeout = 30 * time.Second
)

// Error codes reported through engine.RoutingError in addition to the codes
// the OSRM server returns.
const (
	CodeNetwork      = "NETWORK"
	CodeBadResponse  = "BAD_RESPONSE"
	CodeEngineClosed = "ENGINE_CLOSED"
)

var (
	// ErrInvalidCredential is returned by NewEngine for an empty key id.
	ErrInvalidCredential = errors.New("osrm: credential has no access key id")
	// ErrNoBaseURL is returned by NewRoutingEngine when no server is configured.
	ErrNoBaseURL = errors.New("osrm: base url is not configured")
	// ErrClosed is returned when constructing handles on a closed engine.
	ErrClosed = errors.New("osrm: engine closed")
)

// Config describes the OSRM server and the lane guidance window.
type Config struct {
	BaseURL         string
	Profile         string
	Timeout         time.Duration
	ShowDistanceMin float64
	ShowDistanceMax float64
}

// DefaultConfig returns the configuration for a local OSRM server.
func DefaultConfig() Config {
	return Config{
		BaseURL:         DefaultBaseURL,
		Profile:         DefaultProfile,
		Timeout:         DefaultTimeout,
		ShowDistanceMin: DefaultShowDistanceMin,
		ShowDistanceMax: DefaultShowDistanceMax,
	}
}

// Provider creates OSRM engine instances.
type Provider struct {
	cfg        Config
	httpClient *http.Client
	log        *logging.Logger
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithHTTPClient replaces the HTTP client used for route calls.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) { p.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ProviderOption {
	return func(p *Provider) { p.log = l.WithComponent("osrm") }
}

// NewProvider creates a Provider. Zero fields in cfg take their defaults.
func NewProvider(cfg Config, opts ...ProviderOption) *Provider {
	def := DefaultConfig()
	if cfg.Profile == "" {
		cfg.Profile = def.Profile
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.ShowDistanceMax <= 0 {
		cfg.ShowDistanceMin, cfg.ShowDistanceMax = def.ShowDistanceMin, def.ShowDistanceMax
	}

	transport := &http.Transport{
		MaxIdleConns:        httpMaxIdleConns,
		MaxIdleConnsPerHost: httpMaxIdleConns,
		IdleConnTimeout:     httpIdleConnTimeout,
	}
	p := &Provider{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// NewEngine implements engine.Provider.
func (p *Provider) NewEngine(cred engine.Credential) (engine.Engine, error) {
	if cred.AccessKeyID == "" {
		return nil, ErrInvalidCredential
	}
	p.log.Debug("engine created", "base_url", p.cfg.BaseURL, "profile", p.cfg.Profile)
	return &Engine{
		cfg:        p.cfg,
		httpClient: p.httpClient,
		log:        p.log,
		done:       make(chan struct{}),
	}, nil
}

// Engine is one OSRM engine instance. Closing it stops every navigator it
// created and fails later route calls with CodeEngineClosed.
type Engine struct {
	cfg        Config
	httpClient *http.Client
	log        *logging.Logger

	mu         sync.Mutex
	navigators []*Navigator
	closed     bool
	done       chan struct{}
}

// NewRoutingEngine implements engine.Engine.
func (e *Engine) NewRoutingEngine() (engine.RoutingEngine, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if e.cfg.BaseURL == "" {
		return nil, ErrNoBaseURL
	}
	return &RoutingEngine{
		baseURL:    e.cfg.BaseURL,
		profile:    e.cfg.Profile,
		timeout:    e.cfg.Timeout,
		httpClient: e.httpClient,
		log:        e.log,
		done:       e.done,
	}, nil
}

// NewNavigator implements engine.Engine.
func (e *Engine) NewNavigator() (engine.Navigator, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	n := newNavigator(e.cfg.ShowDistanceMin, e.cfg.ShowDistanceMax, e.log)
	e.navigators = append(e.navigators, n)
	return n, nil
}

// Close implements engine.Engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.done)
	navs := e.navigators
	e.navigators = nil
	e.mu.Unlock()

	var errs []error
	for _, n := range navs {
		if err := n.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
