package pricing

import (
	"fmt"
	"log/slog"
	"time"
)

// Resolver resolves unit prices for (provider, model) pairs through a
// three-tier fallback: the dynamic store, the compiled static defaults,
// and finally the universal fallback entry.
//
// Resolution never fails. A resolver cannot be constructed without a
// valid universal fallback, so "no price found" is a configuration error
// caught at startup, not a runtime condition handled per call.
//
// The resolver is read-only and safe for concurrent use.
type Resolver struct {
	store    *Store
	fallback Entry
	currency string
	logger   *slog.Logger
	now      func() time.Time
}

// NewResolver creates a resolver over the given dynamic store.
// The fallback entry must carry positive rates.
func NewResolver(store *Store, fallback Entry) (*Resolver, error) {
	if store == nil {
		store = NewStore()
	}
	if fallback.InputRate <= 0 || fallback.OutputRate <= 0 {
		return nil, fmt.Errorf("universal fallback entry must have positive rates (input=%v, output=%v)",
			fallback.InputRate, fallback.OutputRate)
	}
	if fallback.Unit == "" {
		fallback.Unit = UnitPer1K
	}
	if fallback.Currency == "" {
		fallback.Currency = "USD"
	}
	fallback.Tier = TierFallback

	return &Resolver{
		store:    store,
		fallback: fallback,
		currency: fallback.Currency,
		logger:   slog.Default().With("component", "pricing.resolver"),
		now:      time.Now,
	}, nil
}

// Resolve returns the active price for (provider, model) and the tier it
// came from. Tiers are tried in order: dynamic store, static defaults,
// universal fallback.
func (r *Resolver) Resolve(provider, model string) (Entry, Tier) {
	if entry, ok := r.store.Lookup(provider, model, r.now()); ok {
		entry.Tier = TierDynamic
		return entry, TierDynamic
	}

	if rate, ok := lookupStatic(provider, model); ok {
		return Entry{
			Provider:   provider,
			Model:      model,
			Unit:       UnitPer1K,
			InputRate:  rate.input,
			OutputRate: rate.output,
			Currency:   r.currency,
			Tier:       TierStatic,
		}, TierStatic
	}

	r.logger.Warn("no price for model, using universal fallback",
		"provider", provider,
		"model", model,
	)

	entry := r.fallback
	entry.Provider = provider
	entry.Model = model
	return entry, TierFallback
}

// Fallback returns the universal fallback entry.
func (r *Resolver) Fallback() Entry {
	return r.fallback
}

// Currency returns the deployment currency the resolver prices in.
func (r *Resolver) Currency() string {
	return r.currency
}
