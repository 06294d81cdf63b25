package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Stream    StreamConfig    `mapstructure:"stream"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Health    HealthConfig    `mapstructure:"health"`
	Debug     DebugConfig     `mapstructure:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// BackendConfig locates the search/compute engine the gateway fronts.
type BackendConfig struct {
	// BaseURL serves search and auth requests.
	BaseURL string `mapstructure:"base_url"`

	// StreamURL is the SSE endpoint. Empty means streaming is unavailable
	// and the stream route answers 503.
	StreamURL string `mapstructure:"stream_url"`

	// Timeout bounds non-streaming backend calls.
	Timeout time.Duration `mapstructure:"timeout"`
}

// StreamConfig tunes the relay.
type StreamConfig struct {
	// IdleTimeout is the longest the upstream may stay silent before the
	// stream is classified as timed out.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// RateLimitPolicy is one guarded operation's budget.
type RateLimitPolicy struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// RateLimitConfig contains the per-operation policies. Operations are
// configuration, not code: adding a policy here and wiring it to a route is
// the whole job.
type RateLimitConfig struct {
	Policies      map[string]RateLimitPolicy `mapstructure:"policies"`
	SweepInterval time.Duration              `mapstructure:"sweep_interval"`
}

// Policy returns the named policy and whether it exists.
func (c RateLimitConfig) Policy(name string) (RateLimitPolicy, bool) {
	policy, ok := c.Policies[name]
	return policy, ok
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED, ENTERPRISE
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Validate rejects configurations the gateway cannot run with. A missing
// backend URL is deliberately not an error here: the affected routes answer
// 503 at request time instead of blocking startup.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}

	if err := validateBackendURL("backend.base_url", c.Backend.BaseURL); err != nil {
		return err
	}
	if err := validateBackendURL("backend.stream_url", c.Backend.StreamURL); err != nil {
		return err
	}

	if c.Stream.IdleTimeout <= 0 {
		return fmt.Errorf("stream.idle_timeout must be positive, got %s", c.Stream.IdleTimeout)
	}

	if c.RateLimit.SweepInterval <= 0 {
		return fmt.Errorf("rate_limit.sweep_interval must be positive, got %s", c.RateLimit.SweepInterval)
	}

	for name, policy := range c.RateLimit.Policies {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("rate_limit policy with empty name")
		}
		if policy.Limit <= 0 {
			return fmt.Errorf("rate_limit.policies.%s.limit must be positive, got %d", name, policy.Limit)
		}
		if policy.Window <= 0 {
			return fmt.Errorf("rate_limit.policies.%s.window must be positive, got %s", name, policy.Window)
		}
	}

	return nil
}

// validateBackendURL accepts an empty value (the route degrades at request
// time) but rejects a configured target that could never be dialed.
func validateBackendURL(key, value string) error {
	if value == "" {
		return nil
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %v", key, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", key, value)
	}
	return nil
}
