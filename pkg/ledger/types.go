package ledger

import (
	"errors"
	"time"

	"costwise-hq/costwise/pkg/pricing"
	"costwise-hq/costwise/pkg/scope"
)

// UsageEvent is the record of one completed request's real usage.
//
// It is created exactly once per completed request and is the
// idempotency anchor for the whole accounting pipeline: application is
// keyed by RequestID, so replaying the same event any number of times
// changes nothing after the first merge.
type UsageEvent struct {
	// RequestID uniquely identifies the request.
	RequestID string

	// Chain is a snapshot of the request's scope chain, narrowest first.
	Chain scope.Chain

	// Provider and Model identify what was called.
	Provider string
	Model    string

	// InputUnits and OutputUnits are the real unit counts from the
	// provider response, not estimates.
	InputUnits  int64
	OutputUnits int64

	// Cost is the computed cost in the deployment currency.
	Cost float64

	// Tier is the pricing tier the cost was resolved from.
	Tier pricing.Tier

	// Timestamp is when the request completed. It selects the window
	// buckets the cost accrues into.
	Timestamp time.Time
}

// Applied reports one (scope, window) increment performed by MergeUsage.
type Applied struct {
	Scope  scope.Scope
	Window Window
	Bucket string

	// Amount is the increment applied (the event cost).
	Amount float64

	// Total is the bucket's running total after the increment.
	Total float64
}

// Errors returned by the ledger.
var (
	// ErrInvalidEvent means a usage event failed validation.
	ErrInvalidEvent = errors.New("invalid usage event")

	// ErrSpendUnavailable means cached spend could not be read and no
	// stale value was available. The enforcement gate maps this through
	// its fail-open/fail-closed policy.
	ErrSpendUnavailable = errors.New("spend data unavailable")
)
