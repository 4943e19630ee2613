package config

import (
	"time"
)

// Config represents the complete application configuration. Defaults are
// applied by the loader; the struct is validated once at load time and
// passed explicitly at composition time — there is no implicit
// process-wide configuration state.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Store       StoreConfig       `mapstructure:"store"`
	Market      MarketConfig      `mapstructure:"market"`
	Execution   ExecutionConfig   `mapstructure:"execution"`
	Acquisition AcquisitionConfig `mapstructure:"acquisition"`
	Alerts      AlertsConfig      `mapstructure:"alerts"`
	RateLimits  RateLimitConfig   `mapstructure:"rate_limits"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// MarketConfig configures the market-data client.
type MarketConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ExecutionConfig configures the wallet execution client.
type ExecutionConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AcquisitionConfig tunes the auto-buy engine.
type AcquisitionConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	ListingsTTL   time.Duration `mapstructure:"listings_ttl"`
	SubmitTimeout time.Duration `mapstructure:"submit_timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	InitialDelay  time.Duration `mapstructure:"initial_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	Multiplier    float64       `mapstructure:"multiplier"`
}

// AlertsConfig tunes the alert engine.
type AlertsConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	ListingsTTL time.Duration `mapstructure:"listings_ttl"`
}

// RateLimitConfig contains the default admission window plus per-service
// overrides.
type RateLimitConfig struct {
	MaxRequests int                     `mapstructure:"max_requests"`
	Window      time.Duration           `mapstructure:"window"`
	Services    map[string]ServiceLimit `mapstructure:"services"`
}

// ServiceLimit overrides the admission window for one service.
type ServiceLimit struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

// LoggingConfig contains logging configuration.
// Valid levels: trace, debug, info, warn, error.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}
