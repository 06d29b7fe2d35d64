// Package pipeline wires the cost accounting components into one
// runnable unit: pricing resolution, the budget ledger, the admission
// gate, the event bus and its consumers, and the rollover sweeper.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"costwise-hq/costwise/pkg/alerts"
	"costwise-hq/costwise/pkg/analytics"
	"costwise-hq/costwise/pkg/config"
	"costwise-hq/costwise/pkg/enforcement"
	"costwise-hq/costwise/pkg/events"
	"costwise-hq/costwise/pkg/ledger"
	"costwise-hq/costwise/pkg/ledger/storage"
	"costwise-hq/costwise/pkg/pricing"
	"costwise-hq/costwise/pkg/recorder"
	"costwise-hq/costwise/pkg/rollover"
	"costwise-hq/costwise/pkg/telemetry/metrics"
)

// Pipeline is the composition root for the cost accounting service.
//
// The request path touches only Check (synchronous, bounded latency) and
// Record (a bus publish). Everything downstream of Record runs
// asynchronously on the bus: recording, threshold evaluation, analytics.
type Pipeline struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	backend   storage.Backend
	ledger    *ledger.Ledger
	store     *pricing.Store
	resolver  *pricing.Resolver
	watcher   *pricing.Watcher
	gate      *enforcement.Gate
	bus       *events.Bus
	recorder  *recorder.Recorder
	evaluator *alerts.Evaluator
	summaries *analytics.Store
	sweeper   *rollover.Sweeper
}

// New builds a pipeline from configuration. Nothing is started yet;
// call Start for the pricing watcher and the rollover sweeper.
func New(cfg *config.Config) (*Pipeline, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	p := &Pipeline{
		cfg:    cfg,
		logger: slog.Default().With("component", "pipeline"),
	}

	if cfg.Metrics.Enabled {
		p.registry = prometheus.NewRegistry()
		p.metrics = metrics.New(cfg.Metrics.Namespace, p.registry)
	}

	backend, err := newBackend(cfg.Storage)
	if err != nil {
		return nil, err
	}
	p.backend = backend

	limits := make([]ledger.Limit, 0, len(cfg.Budgets))
	for _, b := range cfg.Budgets {
		limits = append(limits, ledger.Limit{
			Scope:  b.Scope,
			Window: ledger.Window(b.Window),
			Amount: b.Amount,
		})
	}
	p.ledger = ledger.New(backend, ledger.Config{
		CacheTTL: cfg.Enforcement.CacheTTL,
		Limits:   limits,
	})

	p.store = pricing.NewStore()
	p.resolver, err = pricing.NewResolver(p.store, pricing.Entry{
		Unit:       pricing.UnitPer1K,
		InputRate:  cfg.Pricing.Fallback.InputRate,
		OutputRate: cfg.Pricing.Fallback.OutputRate,
		Currency:   cfg.Pricing.Currency,
	})
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("building pricing resolver: %w", err)
	}

	if cfg.Pricing.FeedPath != "" {
		entries, err := pricing.LoadFeed(cfg.Pricing.FeedPath)
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("loading pricing feed: %w", err)
		}
		p.store.Replace(entries)

		if cfg.Pricing.Watch {
			p.watcher, err = pricing.NewWatcher(cfg.Pricing.FeedPath, p.store)
			if err != nil {
				backend.Close()
				return nil, fmt.Errorf("building pricing watcher: %w", err)
			}
		}
	}

	estimator := enforcement.NewEstimator(cfg.Enforcement.EstimateMultiplier, cfg.Enforcement.MinOutputUnits)
	p.gate = enforcement.NewGate(p.ledger, p.resolver, estimator, enforcement.Config{
		CheckTimeout: cfg.Enforcement.CheckTimeout,
		FailClosed:   cfg.Enforcement.FailClosed,
	})

	p.bus = events.NewBus(events.Config{
		Shards:         cfg.Events.Shards,
		BufferSize:     cfg.Events.BufferSize,
		MaxAttempts:    cfg.Events.MaxAttempts,
		RetryBackoff:   cfg.Events.RetryBackoff,
		EnqueueTimeout: cfg.Events.EnqueueTimeout,
	})

	p.recorder = recorder.New(p.ledger, p.resolver, p.bus, estimator)
	p.evaluator = alerts.NewEvaluator(p.ledger, p.bus, cfg.Alerts)

	if p.metrics != nil {
		p.bus.SetObserver(p.metrics)
		p.gate.SetMetrics(p.metrics)
		p.recorder.SetMetrics(p.metrics)
		p.evaluator.SetMetrics(p.metrics)
	}

	p.recorder.Register()
	p.evaluator.Register()

	if cfg.Analytics.Enabled {
		p.summaries, err = analytics.NewStore(analytics.StoreConfig{Path: cfg.Analytics.Path})
		if err != nil {
			p.bus.Close()
			backend.Close()
			return nil, fmt.Errorf("opening analytics store: %w", err)
		}
		analytics.NewAggregator(p.summaries, p.bus).Register()
	}

	p.sweeper = rollover.NewSweeper(backend, cfg.Rollover)

	return p, nil
}

func newBackend(cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case "", "memory":
		return storage.NewMemoryBackend(), nil
	case "sqlite":
		return storage.NewSQLiteBackendWithConfig(storage.SQLiteBackendConfig{
			DBPath:             cfg.Path,
			BusyTimeout:        cfg.BusyTimeout,
			CheckpointInterval: cfg.CheckpointInterval,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Start launches the background pieces: pricing hot reload and the
// rollover sweeper. The bus workers are already running.
func (p *Pipeline) Start(ctx context.Context) error {
	if p.watcher != nil {
		if err := p.watcher.Start(); err != nil {
			return fmt.Errorf("starting pricing watcher: %w", err)
		}
	}
	if err := p.sweeper.Start(ctx); err != nil {
		return fmt.Errorf("starting rollover sweeper: %w", err)
	}
	p.logger.Info("pipeline started",
		"storage", p.cfg.Storage.Backend,
		"budgets", len(p.cfg.Budgets),
	)
	return nil
}

// Check runs the pre-flight admission check for a request.
func (p *Pipeline) Check(ctx context.Context, req enforcement.CheckRequest) enforcement.Decision {
	return p.gate.Check(ctx, req)
}

// RecordDispatch publishes the message.dispatched lifecycle event for an
// admitted request.
func (p *Pipeline) RecordDispatch(ctx context.Context, req recorder.DispatchedRequest) error {
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}
	return p.bus.Publish(ctx, events.TypeMessageDispatched, req.RequestID, &req)
}

// Record publishes a completed request for asynchronous cost recording.
// The provider response has already been returned to the caller; this
// never blocks on storage.
func (p *Pipeline) Record(ctx context.Context, req recorder.CompletedRequest) error {
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}
	return p.bus.Publish(ctx, events.TypeResponseReceived, req.RequestID, &req)
}

// Ledger exposes the budget ledger for direct reads.
func (p *Pipeline) Ledger() *ledger.Ledger {
	return p.ledger
}

// Summaries returns analytics rollups for a scope and window. Returns
// nil when analytics is disabled.
func (p *Pipeline) Summaries(ctx context.Context, scopeKey, window string) ([]analytics.Summary, error) {
	if p.summaries == nil {
		return nil, nil
	}
	return p.summaries.Summaries(ctx, scopeKey, window)
}

// DeadLetters returns a snapshot of events that exhausted delivery.
func (p *Pipeline) DeadLetters() []events.DeadLetter {
	return p.bus.DeadLetters()
}

// Registry returns the Prometheus registry, or nil when metrics are
// disabled.
func (p *Pipeline) Registry() *prometheus.Registry {
	return p.registry
}

// Close shuts the pipeline down. The bus is drained first so in-flight
// usage events reach the ledger before storage closes.
func (p *Pipeline) Close() error {
	var firstErr error

	if p.watcher != nil {
		if err := p.watcher.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.sweeper.Stop()

	if err := p.bus.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	if p.summaries != nil {
		if err := p.summaries.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := p.backend.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	p.logger.Info("pipeline stopped")
	return firstErr
}
