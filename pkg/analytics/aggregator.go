package analytics

import (
	"context"
	"fmt"
	"log/slog"

	"costwise-hq/costwise/pkg/events"
	"costwise-hq/costwise/pkg/recorder"
)

// Aggregator consumes cost.calculated events and folds them into the
// summary store. It is an independent bus consumer: recording spend
// never waits on analytics, and an aggregator failure is retried by the
// bus without affecting the ledger.
type Aggregator struct {
	store  *Store
	bus    *events.Bus
	logger *slog.Logger
}

// NewAggregator creates an analytics aggregator over the given store.
func NewAggregator(store *Store, bus *events.Bus) *Aggregator {
	return &Aggregator{
		store:  store,
		bus:    bus,
		logger: slog.Default().With("component", "analytics"),
	}
}

// Register subscribes the aggregator to the event bus.
func (a *Aggregator) Register() {
	a.bus.Subscribe(events.TypeCostCalculated, "analytics-aggregator", a.HandleCost)
}

// HandleCost merges one cost.calculated event into the summaries.
func (a *Aggregator) HandleCost(ctx context.Context, env events.Envelope) error {
	calc, ok := env.Payload.(*recorder.CostCalculated)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", env.Payload)
	}

	rows := make([]Summary, 0, len(calc.Applied))
	for _, applied := range calc.Applied {
		rows = append(rows, Summary{
			ScopeKey:    applied.Scope.Key(),
			Window:      string(applied.Window),
			Bucket:      applied.Bucket,
			Provider:    calc.Provider,
			Model:       calc.Model,
			InputUnits:  calc.InputUnits,
			OutputUnits: calc.OutputUnits,
			Cost:        calc.Cost,
		})
	}

	if err := a.store.Merge(ctx, calc.RequestID, rows); err != nil {
		return fmt.Errorf("merging summaries for request %s: %w", calc.RequestID, err)
	}
	return nil
}
