// Package config provides centralized configuration management for
// FloorLens. Configuration is layered: built-in defaults, an optional YAML
// file, then FLOORLENS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Load reads configuration from the optional file path (empty means search
// the standard locations) and the environment, validates it, and returns
// the resulting Config.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("floorlens")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/floorlens")
	}

	v.SetEnvPrefix("FLOORLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; defaults and env still apply. An explicit
		// file that cannot be read is not.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the engines cannot run with.
func (c *Config) Validate() error {
	if c.Acquisition.Interval <= 0 {
		return fmt.Errorf("acquisition.interval must be positive, got %s", c.Acquisition.Interval)
	}
	if c.Alerts.Interval <= 0 {
		return fmt.Errorf("alerts.interval must be positive, got %s", c.Alerts.Interval)
	}
	if c.RateLimits.MaxRequests < 1 {
		return fmt.Errorf("rate_limits.max_requests must be at least 1, got %d", c.RateLimits.MaxRequests)
	}
	if c.RateLimits.Window <= 0 {
		return fmt.Errorf("rate_limits.window must be positive, got %s", c.RateLimits.Window)
	}
	for service, limit := range c.RateLimits.Services {
		if limit.MaxRequests < 1 || limit.Window <= 0 {
			return fmt.Errorf("rate_limits.services.%s is invalid", service)
		}
	}
	if c.Acquisition.Multiplier < 1 {
		return fmt.Errorf("acquisition.multiplier must be at least 1, got %v", c.Acquisition.Multiplier)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", "floorlens.db")

	v.SetDefault("market.base_url", "https://api.floorlens.dev/market")
	v.SetDefault("market.timeout", 10*time.Second)

	v.SetDefault("execution.base_url", "https://api.floorlens.dev/wallet")
	v.SetDefault("execution.timeout", 30*time.Second)

	v.SetDefault("acquisition.interval", 5*time.Second)
	v.SetDefault("acquisition.listings_ttl", 30*time.Second)
	v.SetDefault("acquisition.submit_timeout", 30*time.Second)
	v.SetDefault("acquisition.max_retries", 3)
	v.SetDefault("acquisition.initial_delay", time.Second)
	v.SetDefault("acquisition.max_delay", 30*time.Second)
	v.SetDefault("acquisition.multiplier", 2.0)

	v.SetDefault("alerts.interval", time.Minute)
	v.SetDefault("alerts.listings_ttl", 30*time.Second)

	v.SetDefault("rate_limits.max_requests", 60)
	v.SetDefault("rate_limits.window", time.Minute)

	v.SetDefault("logging.level", "info")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
}
