package config

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

var validWindows = map[string]bool{
	"per_request": true,
	"daily":       true,
	"monthly":     true,
}

// Validate checks the configuration for consistency. It is called by the
// load functions after defaults are applied, so only genuinely invalid
// values (not merely absent ones) are reported.
func Validate(cfg *Config) error {
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format: unknown format %q", cfg.Logging.Format)
	}

	switch cfg.Storage.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("storage.backend: unknown backend %q", cfg.Storage.Backend)
	}
	if cfg.Storage.Backend == "sqlite" && cfg.Storage.Path == "" {
		return fmt.Errorf("storage.path: required for the sqlite backend")
	}

	// The universal fallback entry is what makes price resolution total.
	// Refusing to start without one turns a silent runtime gap into a
	// configuration error.
	if cfg.Pricing.Fallback.InputRate <= 0 || cfg.Pricing.Fallback.OutputRate <= 0 {
		return fmt.Errorf("pricing.fallback: universal fallback rates must be > 0")
	}
	if cfg.Pricing.Currency == "" {
		return fmt.Errorf("pricing.currency: required")
	}

	if cfg.Enforcement.CacheTTL <= 0 {
		return fmt.Errorf("enforcement.cache_ttl: must be > 0")
	}
	if cfg.Enforcement.CheckTimeout <= 0 {
		return fmt.Errorf("enforcement.check_timeout: must be > 0")
	}
	if cfg.Enforcement.EstimateMultiplier < 1 {
		return fmt.Errorf("enforcement.estimate_multiplier: must be >= 1 (must not underestimate)")
	}

	for i, b := range cfg.Budgets {
		if !b.Scope.Kind.Valid() {
			return fmt.Errorf("budgets[%d]: unknown scope kind %q", i, b.Scope.Kind)
		}
		if b.Scope.ID == "" {
			return fmt.Errorf("budgets[%d]: scope id is empty", i)
		}
		if !validWindows[b.Window] {
			return fmt.Errorf("budgets[%d]: unknown window %q", i, b.Window)
		}
		if b.Amount <= 0 {
			return fmt.Errorf("budgets[%d]: amount must be > 0, got %v", i, b.Amount)
		}
		if b.Currency != "" && b.Currency != cfg.Pricing.Currency {
			return fmt.Errorf("budgets[%d]: currency %q does not match deployment currency %q",
				i, b.Currency, cfg.Pricing.Currency)
		}
	}

	if cfg.Alerts.WarningThreshold <= 0 || cfg.Alerts.WarningThreshold >= 1 {
		return fmt.Errorf("alerts.warning_threshold: must be in (0, 1)")
	}
	if cfg.Alerts.CriticalThreshold <= cfg.Alerts.WarningThreshold || cfg.Alerts.CriticalThreshold >= 1 {
		return fmt.Errorf("alerts.critical_threshold: must be in (warning_threshold, 1)")
	}
	for i, o := range cfg.Alerts.Overrides {
		if !o.Scope.Kind.Valid() || o.Scope.ID == "" {
			return fmt.Errorf("alerts.overrides[%d]: invalid scope", i)
		}
		if o.WarningThreshold <= 0 || o.CriticalThreshold <= o.WarningThreshold || o.CriticalThreshold >= 1 {
			return fmt.Errorf("alerts.overrides[%d]: thresholds must satisfy 0 < warning < critical < 1", i)
		}
	}

	if cfg.Events.Shards <= 0 {
		return fmt.Errorf("events.shards: must be > 0")
	}
	if cfg.Events.BufferSize <= 0 {
		return fmt.Errorf("events.buffer_size: must be > 0")
	}
	if cfg.Events.MaxAttempts <= 0 {
		return fmt.Errorf("events.max_attempts: must be > 0")
	}

	if cfg.Analytics.Enabled && cfg.Analytics.Path == "" {
		return fmt.Errorf("analytics.path: required when analytics is enabled")
	}

	if cfg.Rollover.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Rollover.Schedule); err != nil {
			return fmt.Errorf("rollover.schedule: invalid cron expression %q: %w", cfg.Rollover.Schedule, err)
		}
	}
	if cfg.Rollover.RetainDays < 1 {
		return fmt.Errorf("rollover.retain_days: must be >= 1")
	}

	return nil
}
