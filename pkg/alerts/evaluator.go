package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"costwise-hq/costwise/pkg/config"
	"costwise-hq/costwise/pkg/events"
	"costwise-hq/costwise/pkg/ledger"
	"costwise-hq/costwise/pkg/ledger/storage"
	"costwise-hq/costwise/pkg/recorder"
	"costwise-hq/costwise/pkg/scope"
	"costwise-hq/costwise/pkg/telemetry/metrics"
)

// casRetries bounds optimistic-concurrency retries when multiple
// instances evaluate the same scope at once.
const casRetries = 3

// ThresholdAlert is the payload of budget.threshold_reached events.
type ThresholdAlert struct {
	Scope     scope.Scope   `json:"scope"`
	Window    ledger.Window `json:"window"`
	Bucket    string        `json:"bucket"`
	Severity  string        `json:"severity"`
	Usage     float64       `json:"usage"`
	Spend     float64       `json:"spend"`
	Limit     float64       `json:"limit"`
	Timestamp time.Time     `json:"timestamp"`
}

// Evaluator watches merged spend totals and raises threshold alerts.
//
// Each (scope, window) pair carries a persisted severity state shared by
// all instances through the ledger backend. Transitions to a higher tier
// notify exactly once across the fleet; transitions to a lower tier
// update the state silently, so oscillation around a threshold cannot
// produce an alert storm. Repeated exceeded-tier notifications are rate
// limited by a cooldown.
type Evaluator struct {
	ledger  *ledger.Ledger
	bus     *events.Bus
	cfg     config.AlertsConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewEvaluator creates a threshold evaluator.
func NewEvaluator(l *ledger.Ledger, bus *events.Bus, cfg config.AlertsConfig) *Evaluator {
	return &Evaluator{
		ledger: l,
		bus:    bus,
		cfg:    cfg,
		logger: slog.Default().With("component", "alerts"),
		now:    time.Now,
	}
}

// SetMetrics attaches metrics collectors. Must be called before the
// evaluator is subscribed to the bus.
func (e *Evaluator) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// Register subscribes the evaluator to the event bus.
func (e *Evaluator) Register() {
	e.bus.Subscribe(events.TypeCostCalculated, "threshold-evaluator", e.HandleCost)
}

// HandleCost evaluates every (scope, window) total a merge produced.
func (e *Evaluator) HandleCost(ctx context.Context, env events.Envelope) error {
	calc, ok := env.Payload.(*recorder.CostCalculated)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", env.Payload)
	}

	var firstErr error
	for _, applied := range calc.Applied {
		if err := e.evaluate(ctx, applied, calc.Timestamp); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Evaluator) thresholds(s scope.Scope) (warning, critical float64) {
	for _, o := range e.cfg.Overrides {
		if o.Scope == s {
			return o.WarningThreshold, o.CriticalThreshold
		}
	}
	return e.cfg.WarningThreshold, e.cfg.CriticalThreshold
}

func (e *Evaluator) evaluate(ctx context.Context, applied ledger.Applied, at time.Time) error {
	limit, ok := e.ledger.Limit(applied.Scope, applied.Window)
	if !ok || limit <= 0 {
		return nil
	}

	usage := applied.Total / limit
	if e.metrics != nil {
		e.metrics.UpdateSpendUsage(applied.Scope.Key(), string(applied.Window), usage*100)
	}

	warning, critical := e.thresholds(applied.Scope)
	severity := severityFor(usage, warning, critical)

	backend := e.ledger.Backend()
	for attempt := 0; attempt < casRetries; attempt++ {
		state, err := backend.GetAlertState(ctx, applied.Scope.Key(), string(applied.Window))
		if err != nil {
			return fmt.Errorf("reading alert state for %s/%s: %w", applied.Scope.Key(), applied.Window, err)
		}
		if state == nil {
			state = &storage.AlertState{}
		}

		previous := parseSeverity(state.LastSeverity)
		if state.Bucket != applied.Bucket {
			// New bucket: the window rolled over, severity starts clean.
			previous = SeverityNone
		}

		notify := severity > previous
		renotify := severity == previous &&
			severity == SeverityExceeded &&
			e.cfg.RenotifyCooldown > 0 &&
			at.Sub(state.LastNotified) >= e.cfg.RenotifyCooldown
		if !notify && !renotify && state.Bucket == applied.Bucket {
			// Either nothing changed, or usage dropped below the last
			// notified tier. Stored severity is never lowered within a
			// bucket, so oscillation around a threshold cannot re-alert.
			return nil
		}

		next := storage.AlertState{
			Bucket:       applied.Bucket,
			LastSeverity: severity.String(),
			LastNotified: state.LastNotified,
			Version:      state.Version,
		}
		if notify || renotify {
			next.LastNotified = at
		}

		err = backend.SetAlertState(ctx, applied.Scope.Key(), string(applied.Window), next)
		if errors.Is(err, storage.ErrVersionConflict) {
			// Another instance won the race. Re-read and let its result
			// stand unless this total still escalates past it.
			continue
		}
		if err != nil {
			return fmt.Errorf("writing alert state for %s/%s: %w", applied.Scope.Key(), applied.Window, err)
		}

		if notify || renotify {
			e.publish(ctx, applied, severity, usage, limit, at)
		}
		return nil
	}

	e.logger.Warn("alert state contention, giving up",
		"scope", applied.Scope.Key(),
		"window", applied.Window)
	return nil
}

func (e *Evaluator) publish(ctx context.Context, applied ledger.Applied, severity Severity, usage, limit float64, at time.Time) {
	e.logger.Warn("budget threshold reached",
		"scope", applied.Scope.Key(),
		"window", applied.Window,
		"severity", severity.String(),
		"usage_pct", usage*100,
		"spend", applied.Total,
		"limit", limit)

	if e.metrics != nil {
		e.metrics.RecordAlert(severity.String())
	}

	alert := &ThresholdAlert{
		Scope:     applied.Scope,
		Window:    applied.Window,
		Bucket:    applied.Bucket,
		Severity:  severity.String(),
		Usage:     usage,
		Spend:     applied.Total,
		Limit:     limit,
		Timestamp: at,
	}
	key := applied.Scope.Key() + "|" + string(applied.Window)
	if err := e.bus.Publish(ctx, events.TypeThresholdReached, key, alert); err != nil {
		e.logger.Error("publishing threshold alert failed",
			"scope", applied.Scope.Key(),
			"window", applied.Window,
			"error", err)
	}
}
