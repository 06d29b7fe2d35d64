package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any
// errors. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Variables follow the naming convention
// COSTWISE_SECTION_FIELD (e.g. COSTWISE_ENFORCEMENT_CACHE_TTL) and always
// take precedence over file-based configuration.
//
// The loading sequence is:
//  1. Load YAML from file
//  2. Apply default values
//  3. Apply environment variable overrides
//  4. Validate the final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides overrides configuration fields from COSTWISE_* variables.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("COSTWISE_LOGGING_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("COSTWISE_LOGGING_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
	if val := os.Getenv("COSTWISE_METRICS_LISTEN_ADDRESS"); val != "" {
		cfg.Metrics.ListenAddress = val
	}
	if val := os.Getenv("COSTWISE_STORAGE_BACKEND"); val != "" {
		cfg.Storage.Backend = val
	}
	if val := os.Getenv("COSTWISE_STORAGE_PATH"); val != "" {
		cfg.Storage.Path = val
	}
	if val := os.Getenv("COSTWISE_PRICING_FEED_PATH"); val != "" {
		cfg.Pricing.FeedPath = val
	}
	if val := os.Getenv("COSTWISE_PRICING_CURRENCY"); val != "" {
		cfg.Pricing.Currency = val
	}
	if val := os.Getenv("COSTWISE_ENFORCEMENT_CACHE_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Enforcement.CacheTTL = d
		}
	}
	if val := os.Getenv("COSTWISE_ENFORCEMENT_CHECK_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Enforcement.CheckTimeout = d
		}
	}
	if val := os.Getenv("COSTWISE_ENFORCEMENT_FAIL_CLOSED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Enforcement.FailClosed = b
		}
	}
	if val := os.Getenv("COSTWISE_ALERTS_RENOTIFY_COOLDOWN"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Alerts.RenotifyCooldown = d
		}
	}
	if val := os.Getenv("COSTWISE_ANALYTICS_PATH"); val != "" {
		cfg.Analytics.Path = val
	}
	if val := os.Getenv("COSTWISE_ROLLOVER_SCHEDULE"); val != "" {
		cfg.Rollover.Schedule = val
	}
}
