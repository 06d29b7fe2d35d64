package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"costwise-hq/costwise/pkg/ledger/storage"
	"costwise-hq/costwise/pkg/scope"
)

// Ledger is the budget ledger: the single durable view of spend totals,
// budget limits, and the idempotent merge path that keeps them honest.
//
// Reads used by enforcement go through a TTL cache (CachedSpend); writes
// from cost recording go through MergeUsage, which applies atomic
// per-(scope, window, bucket) increments keyed by request id. The
// invariant this preserves: a bucket's running total always equals the
// sum of costs of the distinct-by-request-id usage events that fall in
// it, regardless of ordering, duplication, or replay.
type Ledger struct {
	backend storage.Backend
	limits  map[string]float64
	cache   *spendCache
	logger  *slog.Logger
	now     func() time.Time
}

// Config contains ledger configuration.
type Config struct {
	// CacheTTL bounds the staleness of CachedSpend reads.
	CacheTTL time.Duration

	// Limits maps (scope, window) to budget amounts.
	Limits []Limit
}

// Limit is one configured budget limit.
type Limit struct {
	Scope  scope.Scope
	Window Window
	Amount float64
}

// New creates a ledger over the given backend.
func New(backend storage.Backend, cfg Config) *Ledger {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Second
	}

	limits := make(map[string]float64, len(cfg.Limits))
	for _, l := range cfg.Limits {
		limits[limitKey(l.Scope, l.Window)] = l.Amount
	}

	return &Ledger{
		backend: backend,
		limits:  limits,
		cache:   newSpendCache(cfg.CacheTTL),
		logger:  slog.Default().With("component", "ledger"),
		now:     time.Now,
	}
}

func limitKey(s scope.Scope, w Window) string {
	return s.Key() + "|" + string(w)
}

// Limit returns the configured budget amount for (scope, window).
func (l *Ledger) Limit(s scope.Scope, w Window) (float64, bool) {
	amount, ok := l.limits[limitKey(s, w)]
	return amount, ok
}

// CachedSpend returns the current-bucket spend total for (scope, window),
// stale by at most the cache TTL.
//
// On a cache miss the backend is consulted once and the result cached.
// If the backend is unreachable, a stale cached value is returned when
// one exists; otherwise ErrSpendUnavailable wraps the cause so the gate
// can apply its fail-open/fail-closed policy.
func (l *Ledger) CachedSpend(ctx context.Context, s scope.Scope, w Window) (float64, error) {
	bucket := w.Bucket(l.now())
	key := s.Key() + "|" + string(w) + "|" + bucket

	total, fresh, present := l.cache.get(key)
	if fresh {
		return total, nil
	}

	backendTotal, err := l.backend.GetSpend(ctx, s.Key(), string(w), bucket)
	if err != nil {
		if present {
			l.logger.Warn("spend read failed, serving stale cache",
				"scope", s.Key(),
				"window", w,
				"error", err,
			)
			return total, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrSpendUnavailable, err)
	}

	l.cache.put(key, backendTotal)
	return backendTotal, nil
}

// MergeUsage applies a usage event to every scope in its chain across
// all accrual windows, plus the per-request bucket. It is idempotent on
// the event's request id: re-merging a request id already applied is a
// no-op returning no increments.
//
// The dedupe mark and the increments are one atomic backend operation,
// so a merge that fails on a transient storage error leaves no mark
// behind and the bus redelivery re-runs it in full.
func (l *Ledger) MergeUsage(ctx context.Context, ev UsageEvent) ([]Applied, error) {
	if err := l.validateEvent(ev); err != nil {
		return nil, err
	}

	incs := make([]storage.Increment, 0, len(ev.Chain)*len(AccrualWindows)+1)
	for _, s := range ev.Chain {
		for _, w := range AccrualWindows {
			incs = append(incs, storage.Increment{
				ScopeKey: s.Key(),
				Window:   string(w),
				Bucket:   w.Bucket(ev.Timestamp),
				Amount:   ev.Cost,
			})
		}
	}
	// Per-request record, kept for audit under the request id bucket.
	incs = append(incs, storage.Increment{
		ScopeKey: ev.Chain[0].Key(),
		Window:   string(WindowPerRequest),
		Bucket:   ev.RequestID,
		Amount:   ev.Cost,
	})

	totals, first, err := l.backend.ApplyUsage(ctx, ev.RequestID, incs)
	if err != nil {
		return nil, fmt.Errorf("failed to merge usage for request %s: %w", ev.RequestID, err)
	}
	if !first {
		l.logger.Debug("usage event already applied, skipping",
			"request_id", ev.RequestID,
		)
		return nil, nil
	}

	applied := make([]Applied, 0, len(incs)-1)
	i := 0
	for _, s := range ev.Chain {
		for _, w := range AccrualWindows {
			inc := incs[i]
			l.cache.put(inc.ScopeKey+"|"+inc.Window+"|"+inc.Bucket, totals[i])

			applied = append(applied, Applied{
				Scope:  s,
				Window: w,
				Bucket: inc.Bucket,
				Amount: inc.Amount,
				Total:  totals[i],
			})
			i++
		}
	}

	return applied, nil
}

func (l *Ledger) validateEvent(ev UsageEvent) error {
	if ev.RequestID == "" {
		return fmt.Errorf("%w: missing request id", ErrInvalidEvent)
	}
	if err := ev.Chain.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if ev.Cost < 0 {
		return fmt.Errorf("%w: negative cost %v", ErrInvalidEvent, ev.Cost)
	}
	if ev.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidEvent)
	}
	return nil
}

// Backend exposes the underlying storage backend for collaborators that
// share it (alert state, rollover).
func (l *Ledger) Backend() storage.Backend {
	return l.backend
}
