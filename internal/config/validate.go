package config

import (
	"errors"
	"fmt"
	"net/url"

	"lanehud/internal/logging"
	"lanehud/internal/navigation"
)

// ConfigError describes a single invalid configuration field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Validate checks every section and returns all failures joined, or nil.
func (c *Config) Validate() error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &ConfigError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		add("server.port", "must be between 0 and 65535 (got %d)", c.Server.Port)
	}

	if u, err := url.Parse(c.OSRM.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("osrm.base_url", "must be an absolute URL (got %q)", c.OSRM.BaseURL)
	}
	if c.OSRM.Profile == "" {
		add("osrm.profile", "is required")
	}
	if c.OSRM.Timeout <= 0 {
		add("osrm.timeout", "must be positive (got %s)", c.OSRM.Timeout)
	}

	if c.LaneGuidance.ShowDistanceMin < 0 {
		add("lane_guidance.show_distance_min", "must not be negative (got %g)", c.LaneGuidance.ShowDistanceMin)
	}
	if c.LaneGuidance.ShowDistanceMax <= c.LaneGuidance.ShowDistanceMin {
		add("lane_guidance.show_distance_max", "must be greater than show_distance_min (got %g <= %g)",
			c.LaneGuidance.ShowDistanceMax, c.LaneGuidance.ShowDistanceMin)
	}

	if _, err := navigation.ParseOverlapPolicy(c.Navigation.OverlapPolicy); err != nil {
		add("navigation.overlap_policy", "%v", err)
	}
	if c.Navigation.RouteTimeout <= 0 {
		add("navigation.route_timeout", "must be positive (got %s)", c.Navigation.RouteTimeout)
	}

	if c.Events.SubscriberBuffer <= 0 {
		add("events.subscriber_buffer", "must be positive (got %d)", c.Events.SubscriberBuffer)
	}
	if c.Events.HistorySize < 0 {
		add("events.history_size", "must not be negative (got %d)", c.Events.HistorySize)
	}

	if c.Credentials.AccessKeySecret != "" && c.Credentials.AccessKeyID == "" {
		add("credentials.access_key_id", "is required when access_key_secret is set")
	}

	if c.RouteCache.TTL < 0 {
		add("route_cache.ttl", "must not be negative (got %s)", c.RouteCache.TTL)
	}
	if c.RouteCache.Precision < 1 || c.RouteCache.Precision > 12 {
		add("route_cache.precision", "must be between 1 and 12 (got %d)", c.RouteCache.Precision)
	}

	if !logging.ValidLevel(c.Logging.Level) {
		add("logging.level", "must be one of DEBUG, INFO, WARN, ERROR (got %q)", c.Logging.Level)
	}
	if c.Logging.Format != logging.FormatJSON && c.Logging.Format != logging.FormatText {
		add("logging.format", "must be %q or %q (got %q)", logging.FormatJSON, logging.FormatText, c.Logging.Format)
	}

	return errors.Join(errs...)
}
