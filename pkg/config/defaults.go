package config

import "time"

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with sensible defaults.
// Explicitly configured values are never overwritten.
func ApplyDefaults(cfg *Config) {
	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	// Metrics defaults
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "costwise"
	}
	if cfg.Metrics.ListenAddress == "" {
		cfg.Metrics.ListenAddress = "127.0.0.1:9464"
	}

	// Storage defaults
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "data/ledger.db"
	}
	if cfg.Storage.BusyTimeout == 0 {
		cfg.Storage.BusyTimeout = 5 * time.Second
	}
	if cfg.Storage.CheckpointInterval == 0 {
		cfg.Storage.CheckpointInterval = 5 * time.Minute
	}

	// Pricing defaults
	if cfg.Pricing.Currency == "" {
		cfg.Pricing.Currency = "USD"
	}
	if cfg.Pricing.Fallback.InputRate == 0 {
		cfg.Pricing.Fallback.InputRate = 0.01
	}
	if cfg.Pricing.Fallback.OutputRate == 0 {
		cfg.Pricing.Fallback.OutputRate = 0.03
	}

	// Enforcement defaults
	if cfg.Enforcement.CacheTTL == 0 {
		cfg.Enforcement.CacheTTL = 5 * time.Second
	}
	if cfg.Enforcement.CheckTimeout == 0 {
		cfg.Enforcement.CheckTimeout = 50 * time.Millisecond
	}
	if cfg.Enforcement.EstimateMultiplier == 0 {
		cfg.Enforcement.EstimateMultiplier = 2.0
	}
	if cfg.Enforcement.MinOutputUnits == 0 {
		cfg.Enforcement.MinOutputUnits = 1024
	}

	// Alert defaults
	if cfg.Alerts.WarningThreshold == 0 {
		cfg.Alerts.WarningThreshold = 0.75
	}
	if cfg.Alerts.CriticalThreshold == 0 {
		cfg.Alerts.CriticalThreshold = 0.90
	}
	if cfg.Alerts.RenotifyCooldown == 0 {
		cfg.Alerts.RenotifyCooldown = time.Hour
	}

	// Event bus defaults
	if cfg.Events.Shards == 0 {
		cfg.Events.Shards = 8
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.Events.MaxAttempts == 0 {
		cfg.Events.MaxAttempts = 3
	}
	if cfg.Events.RetryBackoff == 0 {
		cfg.Events.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.Events.EnqueueTimeout == 0 {
		cfg.Events.EnqueueTimeout = time.Second
	}

	// Analytics defaults
	if cfg.Analytics.Path == "" {
		cfg.Analytics.Path = "data/analytics.db"
	}

	// Rollover defaults
	if cfg.Rollover.Schedule == "" {
		cfg.Rollover.Schedule = "5 0 * * *"
	}
	if cfg.Rollover.RetainDays == 0 {
		cfg.Rollover.RetainDays = 90
	}
}
