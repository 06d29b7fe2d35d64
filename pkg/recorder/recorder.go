package recorder

import (
	"context"
	"fmt"
	"log/slog"

	"costwise-hq/costwise/pkg/events"
	"costwise-hq/costwise/pkg/ledger"
	"costwise-hq/costwise/pkg/pricing"
	"costwise-hq/costwise/pkg/telemetry/metrics"
)

// UsageObserver receives real output counts so pre-flight estimates can
// track observed behavior per provider/model pair.
type UsageObserver interface {
	Observe(provider, model string, outputUnits int64)
}

// Recorder turns completed requests into ledger spend. It consumes
// response.received envelopes, prices the real usage counts, merges the
// resulting usage event into the ledger and publishes cost.calculated
// with the per-scope totals the merge produced.
//
// Recording is idempotent per request id: the ledger deduplicates
// replays, and replays skip re-publishing downstream events.
type Recorder struct {
	ledger   *ledger.Ledger
	resolver *pricing.Resolver
	bus      *events.Bus
	observer UsageObserver
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New creates a Recorder. The observer may be nil.
func New(l *ledger.Ledger, resolver *pricing.Resolver, bus *events.Bus, observer UsageObserver) *Recorder {
	return &Recorder{
		ledger:   l,
		resolver: resolver,
		bus:      bus,
		observer: observer,
		logger:   slog.Default().With("component", "recorder"),
	}
}

// SetMetrics attaches metrics collectors. Must be called before the
// recorder is subscribed to the bus.
func (r *Recorder) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
}

// Register subscribes the recorder to the event bus.
func (r *Recorder) Register() {
	r.bus.Subscribe(events.TypeResponseReceived, "recorder", r.HandleResponse)
}

// HandleResponse processes a single response.received envelope.
// Returning an error makes the bus retry the envelope; the ledger's
// request-id dedupe keeps partial retries from double-counting.
func (r *Recorder) HandleResponse(ctx context.Context, env events.Envelope) error {
	req, ok := env.Payload.(*CompletedRequest)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", env.Payload)
	}

	entry, tier := r.resolver.Resolve(req.Provider, req.Model)

	cost := pricing.Cost(entry, req.InputUnits, req.OutputUnits)
	if cost < 0 {
		// An anomalous price must not drop the usage record: re-price at
		// the universal fallback and flag for reconciliation.
		r.publishTrackingFailed(ctx, req, fmt.Sprintf("negative cost %.6f from %s rates", cost, tier))
		entry = r.resolver.Fallback()
		tier = pricing.TierFallback
		cost = pricing.Cost(entry, req.InputUnits, req.OutputUnits)
	}

	event := ledger.UsageEvent{
		RequestID:   req.RequestID,
		Chain:       req.Chain,
		Provider:    req.Provider,
		Model:       req.Model,
		InputUnits:  req.InputUnits,
		OutputUnits: req.OutputUnits,
		Cost:        cost,
		Tier:        tier,
		Timestamp:   req.Timestamp,
	}

	applied, err := r.ledger.MergeUsage(ctx, event)
	if err != nil {
		r.publishTrackingFailed(ctx, req, fmt.Sprintf("ledger merge failed: %v", err))
		return fmt.Errorf("merging usage for request %s: %w", req.RequestID, err)
	}
	if applied == nil {
		// Replay of an already-recorded request. The first delivery
		// already published cost.calculated, so stop here.
		r.logger.Debug("duplicate usage event ignored",
			"request_id", req.RequestID)
		return nil
	}

	if r.observer != nil {
		r.observer.Observe(req.Provider, req.Model, req.OutputUnits)
	}
	if r.metrics != nil {
		r.metrics.RecordCost(req.Provider, req.Model, cost)
	}
	if tier == pricing.TierFallback {
		r.logger.Warn("usage recorded at fallback rates",
			"request_id", req.RequestID,
			"provider", req.Provider,
			"model", req.Model)
	}

	calc := &CostCalculated{
		RequestID:   req.RequestID,
		Chain:       req.Chain,
		Provider:    req.Provider,
		Model:       req.Model,
		InputUnits:  req.InputUnits,
		OutputUnits: req.OutputUnits,
		Cost:        cost,
		Tier:        tier,
		Applied:     applied,
		Timestamp:   req.Timestamp,
	}
	if err := r.bus.Publish(ctx, events.TypeCostCalculated, env.Key, calc); err != nil {
		// The spend is durably recorded; downstream consumers catch up
		// from storage, so a publish failure is logged, not retried.
		r.logger.Error("publishing cost.calculated failed",
			"request_id", req.RequestID,
			"error", err)
	}
	return nil
}

func (r *Recorder) publishTrackingFailed(ctx context.Context, req *CompletedRequest, reason string) {
	r.logger.Error("cost tracking failed",
		"request_id", req.RequestID,
		"reason", reason)
	payload := &CostTrackingFailed{
		RequestID: req.RequestID,
		Reason:    reason,
		Context:   fmt.Sprintf("%s/%s status=%s", req.Provider, req.Model, req.Status),
		Timestamp: req.Timestamp,
	}
	if err := r.bus.Publish(ctx, events.TypeCostTrackingFailed, req.RequestID, payload); err != nil {
		r.logger.Error("publishing cost.tracking_failed failed",
			"request_id", req.RequestID,
			"error", err)
	}
}
