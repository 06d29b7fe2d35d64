package storage

import (
	"context"
	"errors"
	"time"
)

// Backend is the durable store behind the budget ledger.
//
// Implementations must make IncrementSpend atomic: concurrent writers
// incrementing the same (scope, window, bucket) must never lose updates,
// and no implementation may realize the increment as a read-modify-write.
//
// ApplyUsage is the idempotency anchor: it records a request id and
// applies the event's increments as one unit, so a merge that fails
// partway leaves no durable mark and can be retried from scratch.
type Backend interface {
	// IncrementSpend atomically adds amount to the running total of
	// (scopeKey, window, bucket) and returns the new total. The record
	// is created on first use.
	IncrementSpend(ctx context.Context, scopeKey, window, bucket string, amount float64) (float64, error)

	// GetSpend returns the running total for (scopeKey, window, bucket).
	// A bucket that has never seen spend reads as zero.
	GetSpend(ctx context.Context, scopeKey, window, bucket string) (float64, error)

	// ApplyUsage durably records the request id and applies every
	// increment, returning the new totals in increment order. A request
	// id seen before changes nothing and reports first == false. The
	// mark and the increments become durable together or not at all.
	ApplyUsage(ctx context.Context, requestID string, incs []Increment) (totals []float64, first bool, err error)

	// GetAlertState returns the alert state for (scopeKey, window), or
	// nil if none exists yet.
	GetAlertState(ctx context.Context, scopeKey, window string) (*AlertState, error)

	// SetAlertState persists an alert state using optimistic
	// concurrency: the write succeeds only if the stored version equals
	// state.Version, and the stored version is then incremented.
	// A losing writer gets ErrVersionConflict.
	SetAlertState(ctx context.Context, scopeKey, window string, state AlertState) error

	// RetireBuckets marks spend records of the given window with bucket
	// ids lexicographically before the cutoff as retired. Retired
	// records are kept for audit, not deleted. Returns the number of
	// records retired.
	RetireBuckets(ctx context.Context, window, before string) (int, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Increment is one spend increment within a usage merge.
type Increment struct {
	ScopeKey string
	Window   string
	Bucket   string
	Amount   float64
}

// AlertState is the durable per-(scope, window) alerting state.
//
// It lives in the ledger backend rather than in evaluator memory so the
// no-repeated-alert guarantee survives restarts and holds across
// concurrent evaluator instances.
type AlertState struct {
	// Bucket is the window bucket the state belongs to. A bucket change
	// (rollover) resets the severity to none.
	Bucket string

	// LastSeverity is the highest severity already notified ("none",
	// "warning", "critical", "exceeded").
	LastSeverity string

	// LastNotified is when the last notification was emitted.
	LastNotified time.Time

	// Version is the optimistic concurrency token. Zero means the state
	// has never been stored.
	Version int64
}

// Errors returned by backends.
var (
	// ErrVersionConflict means a SetAlertState lost a concurrent race;
	// another writer already advanced the state.
	ErrVersionConflict = errors.New("alert state version conflict")

	// ErrClosed means the backend has been closed.
	ErrClosed = errors.New("storage backend closed")
)
