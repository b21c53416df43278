// Package config loads lanehud configuration through viper. Values come
// from defaults, an optional YAML file and LANEHUD_* environment variables,
// in increasing order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"lanehud/internal/engine"
	"lanehud/internal/engine/osrm"
	"lanehud/internal/event"
	"lanehud/internal/logging"
	"lanehud/internal/navigation"
	"lanehud/internal/routecache"
)

// EnvPrefix prefixes every environment override, e.g. LANEHUD_SERVER_PORT.
const EnvPrefix = "LANEHUD"

// Config is the complete lanehud configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	OSRM         OSRMConfig         `mapstructure:"osrm"`
	LaneGuidance LaneGuidanceConfig `mapstructure:"lane_guidance"`
	Navigation   NavigationConfig   `mapstructure:"navigation"`
	Events       EventsConfig       `mapstructure:"events"`
	Credentials  CredentialsConfig  `mapstructure:"credentials"`
	RouteCache   RouteCacheConfig   `mapstructure:"route_cache"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig controls the host-facing HTTP/WebSocket listener.
type ServerConfig struct {
	Port int `mapstructure:"port"`
	// StaticDir, when set, is served at / for a browser-based HUD.
	StaticDir string `mapstructure:"static_dir"`
}

// OSRMConfig points at the routing server.
type OSRMConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Profile string        `mapstructure:"profile"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LaneGuidanceConfig is the distance window, in meters before a maneuver,
// in which lane assistance is reported.
type LaneGuidanceConfig struct {
	ShowDistanceMin float64 `mapstructure:"show_distance_min"`
	ShowDistanceMax float64 `mapstructure:"show_distance_max"`
}

// NavigationConfig controls the session coordinator.
type NavigationConfig struct {
	// OverlapPolicy is "reject" or "supersede".
	OverlapPolicy string `mapstructure:"overlap_policy"`
	// RouteTimeout bounds how long transports wait for a route result.
	RouteTimeout time.Duration `mapstructure:"route_timeout"`
}

// EventsConfig sizes the event bus.
type EventsConfig struct {
	SubscriberBuffer int `mapstructure:"subscriber_buffer"`
	HistorySize      int `mapstructure:"history_size"`
}

// CredentialsConfig supplies the engine credential either inline or from a
// watched YAML file. The file wins when both are set.
type CredentialsConfig struct {
	File            string `mapstructure:"file"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
}

// RouteCacheConfig controls the in-memory route cache. A zero TTL disables it.
type RouteCacheConfig struct {
	TTL       time.Duration `mapstructure:"ttl"`
	Precision int           `mapstructure:"precision"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8420},
		OSRM: OSRMConfig{
			BaseURL: osrm.DefaultBaseURL,
			Profile: osrm.DefaultProfile,
			Timeout: osrm.DefaultTimeout,
		},
		LaneGuidance: LaneGuidanceConfig{
			ShowDistanceMin: osrm.DefaultShowDistanceMin,
			ShowDistanceMax: osrm.DefaultShowDistanceMax,
		},
		Navigation: NavigationConfig{
			OverlapPolicy: string(navigation.RejectNew),
			RouteTimeout:  15 * time.Second,
		},
		Events: EventsConfig{
			SubscriberBuffer: event.DefaultSubscriberBuffer,
			HistorySize:      event.DefaultHistorySize,
		},
		RouteCache: RouteCacheConfig{
			TTL:       routecache.DefaultTTL,
			Precision: routecache.DefaultPrecision,
		},
		Logging: LoggingConfig{
			Level:  logging.LevelInfo,
			Format: logging.FormatJSON,
		},
	}
}

// SetDefaults registers default values with v
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.static_dir", d.Server.StaticDir)

	v.SetDefault("osrm.base_url", d.OSRM.BaseURL)
	v.SetDefault("osrm.profile", d.OSRM.Profile)
	v.SetDefault("osrm.timeout", d.OSRM.Timeout)

	v.SetDefault("lane_guidance.show_distance_min", d.LaneGuidance.ShowDistanceMin)
	v.SetDefault("lane_guidance.show_distance_max", d.LaneGuidance.ShowDistanceMax)

	v.SetDefault("navigation.overlap_policy", d.Navigation.OverlapPolicy)
	v.SetDefault("navigation.route_timeout", d.Navigation.RouteTimeout)

	v.SetDefault("events.subscriber_buffer", d.Events.SubscriberBuffer)
	v.SetDefault("events.history_size", d.Events.HistorySize)

	// Registered empty so AutomaticEnv can resolve them during Unmarshal.
	v.SetDefault("credentials.file", "")
	v.SetDefault("credentials.access_key_id", "")
	v.SetDefault("credentials.access_key_secret", "")

	v.SetDefault("route_cache.ttl", d.RouteCache.TTL)
	v.SetDefault("route_cache.precision", d.RouteCache.Precision)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// BindEnv makes LANEHUD_* variables override keys, e.g.
// LANEHUD_OSRM_BASE_URL for osrm.base_url.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// New returns a viper instance with defaults and environment binding. When
// file is non-empty it is read and must exist.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	}
	return v, nil
}

// Load reads the configuration from v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Credential returns the inline credential.
func (c *CredentialsConfig) Credential() engine.Credential {
	return engine.Credential{
		AccessKeyID:     c.AccessKeyID,
		AccessKeySecret: c.AccessKeySecret,
	}
}

// HasInline reports whether an inline credential is configured.
func (c *CredentialsConfig) HasInline() bool {
	return c.AccessKeyID != ""
}

// Addr returns the listen address for the server.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Policy returns the parsed overlap policy. Validate guarantees it parses.
func (c *NavigationConfig) Policy() navigation.OverlapPolicy {
	p, err := navigation.ParseOverlapPolicy(c.OverlapPolicy)
	if err != nil {
		return navigation.RejectNew
	}
	return p
}

// OSRMProviderConfig converts the OSRM and lane guidance sections into the
// engine's configuration.
func (c *Config) OSRMProviderConfig() osrm.Config {
	return osrm.Config{
		BaseURL:         c.OSRM.BaseURL,
		Profile:         c.OSRM.Profile,
		Timeout:         c.OSRM.Timeout,
		ShowDistanceMin: c.LaneGuidance.ShowDistanceMin,
		ShowDistanceMax: c.LaneGuidance.ShowDistanceMax,
	}
}
