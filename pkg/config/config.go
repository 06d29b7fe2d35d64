package config

import (
	"time"

	"costwise-hq/costwise/pkg/scope"
)

// Config is the root configuration for the costwise pipeline.
type Config struct {
	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures Prometheus metrics.
	Metrics MetricsConfig `yaml:"metrics"`

	// Storage configures the budget ledger backend.
	Storage StorageConfig `yaml:"storage"`

	// Pricing configures price resolution and the dynamic pricing feed.
	Pricing PricingConfig `yaml:"pricing"`

	// Enforcement configures the pre-flight admission gate.
	Enforcement EnforcementConfig `yaml:"enforcement"`

	// Budgets lists budget limits per scope and window.
	Budgets []BudgetConfig `yaml:"budgets"`

	// Alerts configures threshold alerting.
	Alerts AlertsConfig `yaml:"alerts"`

	// Events configures the in-process event bus.
	Events EventsConfig `yaml:"events"`

	// Analytics configures usage rollups.
	Analytics AnalyticsConfig `yaml:"analytics"`

	// Rollover configures the window rollover sweeper.
	Rollover RolloverConfig `yaml:"rollover"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the output format ("json", "text").
	Format string `yaml:"format"`

	// AddSource includes file:line in log records.
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig configures Prometheus metrics exposure.
type MetricsConfig struct {
	// Enabled turns metric collection on or off.
	Enabled bool `yaml:"enabled"`

	// Namespace is the metric name prefix. Default: "costwise".
	Namespace string `yaml:"namespace"`

	// ListenAddress is where the /metrics endpoint is served.
	ListenAddress string `yaml:"listen_address"`
}

// StorageConfig configures the ledger storage backend.
type StorageConfig struct {
	// Backend selects the implementation ("memory" or "sqlite").
	Backend string `yaml:"backend"`

	// Path is the SQLite database file path (sqlite backend only).
	Path string `yaml:"path"`

	// BusyTimeout is how long SQLite waits for locks before failing.
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// CheckpointInterval is how often the WAL is checkpointed.
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

// PricingConfig configures the pricing resolver.
type PricingConfig struct {
	// FeedPath is the dynamic pricing YAML file. Empty disables the
	// dynamic tier; resolution starts at the static defaults.
	FeedPath string `yaml:"feed_path"`

	// Watch enables hot reload of the pricing feed on file changes.
	Watch bool `yaml:"watch"`

	// Currency is the deployment currency code. All budgets and pricing
	// entries must use this currency.
	Currency string `yaml:"currency"`

	// Fallback is the universal fallback price, used when neither the
	// dynamic store nor the static defaults know a (provider, model).
	// Rates are per 1000 units. A zero fallback is a configuration error.
	Fallback FallbackPricing `yaml:"fallback"`
}

// FallbackPricing is the universal last-resort price entry.
type FallbackPricing struct {
	InputRate  float64 `yaml:"input_rate"`
	OutputRate float64 `yaml:"output_rate"`
}

// EnforcementConfig configures the admission gate.
type EnforcementConfig struct {
	// CacheTTL bounds the staleness of cached spend reads.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// CheckTimeout bounds the latency of a single admission check,
	// independent of any provider timeout.
	CheckTimeout time.Duration `yaml:"check_timeout"`

	// FailClosed rejects requests when spend data is unreachable.
	// Default is fail-open: admit with a warning.
	FailClosed bool `yaml:"fail_closed"`

	// EstimateMultiplier scales the running-average output estimate when
	// the caller gives no upper bound. Must be >= 1.
	EstimateMultiplier float64 `yaml:"estimate_multiplier"`

	// MinOutputUnits floors the output estimate so a cold running
	// average cannot underestimate.
	MinOutputUnits int64 `yaml:"min_output_units"`
}

// BudgetConfig is one budget limit for a scope and window.
type BudgetConfig struct {
	// Scope the limit applies to.
	Scope scope.Scope `yaml:"scope"`

	// Window is "per_request", "daily", or "monthly".
	Window string `yaml:"window"`

	// Amount is the limit in the deployment currency. Must be > 0.
	Amount float64 `yaml:"amount"`

	// Currency must match pricing.currency when set.
	Currency string `yaml:"currency"`
}

// AlertsConfig configures threshold alerting.
type AlertsConfig struct {
	// WarningThreshold is the warning tier as a fraction (default 0.75).
	WarningThreshold float64 `yaml:"warning_threshold"`

	// CriticalThreshold is the critical tier as a fraction (default 0.90).
	CriticalThreshold float64 `yaml:"critical_threshold"`

	// RenotifyCooldown is the minimum interval between repeated
	// exceeded-tier notifications for the same scope and window.
	RenotifyCooldown time.Duration `yaml:"renotify_cooldown"`

	// Overrides replaces the default thresholds for specific scopes.
	Overrides []AlertOverride `yaml:"overrides"`
}

// AlertOverride sets per-scope alert thresholds.
type AlertOverride struct {
	Scope             scope.Scope `yaml:"scope"`
	WarningThreshold  float64     `yaml:"warning_threshold"`
	CriticalThreshold float64     `yaml:"critical_threshold"`
}

// EventsConfig configures the in-process event bus.
type EventsConfig struct {
	// Shards is the number of ordered delivery lanes. Events with the
	// same key always land on the same shard.
	Shards int `yaml:"shards"`

	// BufferSize is the per-shard channel capacity.
	BufferSize int `yaml:"buffer_size"`

	// MaxAttempts is the delivery attempt limit per (consumer, event)
	// before dead-lettering.
	MaxAttempts int `yaml:"max_attempts"`

	// RetryBackoff is the base backoff between delivery attempts.
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// EnqueueTimeout bounds how long Publish may wait on a full shard.
	EnqueueTimeout time.Duration `yaml:"enqueue_timeout"`
}

// AnalyticsConfig configures usage rollups.
type AnalyticsConfig struct {
	// Enabled turns the aggregator on or off.
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite database file for summaries.
	Path string `yaml:"path"`
}

// RolloverConfig configures the window rollover sweeper.
type RolloverConfig struct {
	// Schedule is a cron expression; default "5 0 * * *" (daily, 00:05 UTC).
	Schedule string `yaml:"schedule"`

	// RetainDays is how many closed daily buckets stay active before
	// being retired. Retired buckets are kept, not deleted.
	RetainDays int `yaml:"retain_days"`
}
