package ledger

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"costwise-hq/costwise/pkg/ledger/storage"
	"costwise-hq/costwise/pkg/scope"
)

var testChain = scope.Chain{
	{Kind: scope.KindRequestOwner, ID: "key-1"},
	{Kind: scope.KindProject, ID: "checkout"},
	{Kind: scope.KindOrganization, ID: "acme"},
}

func testEvent(requestID string, cost float64) UsageEvent {
	return UsageEvent{
		RequestID:   requestID,
		Chain:       testChain,
		Provider:    "openai",
		Model:       "gpt-4o",
		InputUnits:  1000,
		OutputUnits: 500,
		Cost:        cost,
		Timestamp:   time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
	}
}

// ============================================================================
// Window Bucket Tests
// ============================================================================

func TestWindow_Bucket(t *testing.T) {
	// Buckets are UTC calendar buckets regardless of input zone.
	loc := time.FixedZone("UTC+9", 9*3600)
	at := time.Date(2026, 8, 30, 2, 0, 0, 0, loc) // 2026-08-29 17:00 UTC

	if got := WindowDaily.Bucket(at); got != "2026-08-29" {
		t.Errorf("Expected daily bucket 2026-08-29, got %q", got)
	}
	if got := WindowMonthly.Bucket(at); got != "2026-08" {
		t.Errorf("Expected monthly bucket 2026-08, got %q", got)
	}
}

// ============================================================================
// MergeUsage Tests
// ============================================================================

func TestLedger_MergeUsage_AppliesChainAcrossWindows(t *testing.T) {
	l := New(storage.NewMemoryBackend(), Config{})

	applied, err := l.MergeUsage(context.Background(), testEvent("req-1", 2.5))
	if err != nil {
		t.Fatalf("MergeUsage failed: %v", err)
	}

	// 3 scopes x 2 accrual windows.
	if len(applied) != 6 {
		t.Fatalf("Expected 6 increments, got %d", len(applied))
	}
	for _, a := range applied {
		if a.Amount != 2.5 || a.Total != 2.5 {
			t.Errorf("Expected amount and total 2.5 for %s/%s, got %+v", a.Scope.Key(), a.Window, a)
		}
	}

	// Narrowest scope first, windows narrowest first within it.
	if applied[0].Scope.Kind != scope.KindRequestOwner || applied[0].Window != WindowDaily {
		t.Errorf("Expected request_owner/daily first, got %s/%s", applied[0].Scope.Key(), applied[0].Window)
	}
	if applied[5].Scope.Kind != scope.KindOrganization || applied[5].Window != WindowMonthly {
		t.Errorf("Expected organization/monthly last, got %s/%s", applied[5].Scope.Key(), applied[5].Window)
	}
}

func TestLedger_MergeUsage_Replay(t *testing.T) {
	backend := storage.NewMemoryBackend()
	l := New(backend, Config{})
	ctx := context.Background()

	if _, err := l.MergeUsage(ctx, testEvent("req-1", 2.5)); err != nil {
		t.Fatalf("MergeUsage failed: %v", err)
	}

	// Same request id again, even with a different cost, is a no-op.
	applied, err := l.MergeUsage(ctx, testEvent("req-1", 99.0))
	if err != nil {
		t.Fatalf("MergeUsage replay failed: %v", err)
	}
	if applied != nil {
		t.Errorf("Expected replay to apply nothing, got %d increments", len(applied))
	}

	total, err := backend.GetSpend(ctx, "project:checkout", "daily", "2026-08-29")
	if err != nil {
		t.Fatalf("GetSpend failed: %v", err)
	}
	if math.Abs(total-2.5) > 1e-9 {
		t.Errorf("Expected total 2.5 after replay, got %v", total)
	}
}

// oneShotFailBackend fails the first merge attempt, simulating a
// transient storage error.
type oneShotFailBackend struct {
	*storage.MemoryBackend
	failed bool
}

func (f *oneShotFailBackend) ApplyUsage(ctx context.Context, requestID string, incs []storage.Increment) ([]float64, bool, error) {
	if !f.failed {
		f.failed = true
		return nil, false, errors.New("disk I/O error")
	}
	return f.MemoryBackend.ApplyUsage(ctx, requestID, incs)
}

func TestLedger_MergeUsage_RetryAfterTransientFailure(t *testing.T) {
	backend := &oneShotFailBackend{MemoryBackend: storage.NewMemoryBackend()}
	l := New(backend, Config{})
	ctx := context.Background()

	if _, err := l.MergeUsage(ctx, testEvent("req-1", 3.0)); err == nil {
		t.Fatal("Expected the first merge to fail")
	}

	// The failed merge left no dedupe mark, so the redelivered event
	// applies in full rather than hitting the replay no-op path.
	applied, err := l.MergeUsage(ctx, testEvent("req-1", 3.0))
	if err != nil {
		t.Fatalf("MergeUsage retry failed: %v", err)
	}
	if len(applied) != 6 {
		t.Fatalf("Expected 6 increments on retry, got %d", len(applied))
	}

	total, err := backend.GetSpend(ctx, "project:checkout", "daily", "2026-08-29")
	if err != nil {
		t.Fatalf("GetSpend failed: %v", err)
	}
	if math.Abs(total-3.0) > 1e-9 {
		t.Errorf("Expected daily total 3.0 after retry, got %v", total)
	}
}

func TestLedger_MergeUsage_AccumulatesDistinctRequests(t *testing.T) {
	backend := storage.NewMemoryBackend()
	l := New(backend, Config{})
	ctx := context.Background()

	for i, id := range []string{"req-1", "req-2", "req-3"} {
		if _, err := l.MergeUsage(ctx, testEvent(id, float64(i+1))); err != nil {
			t.Fatalf("MergeUsage failed: %v", err)
		}
	}

	total, err := backend.GetSpend(ctx, "organization:acme", "monthly", "2026-08")
	if err != nil {
		t.Fatalf("GetSpend failed: %v", err)
	}
	if math.Abs(total-6.0) > 1e-9 {
		t.Errorf("Expected total 6.0, got %v", total)
	}
}

func TestLedger_MergeUsage_PerRequestRecord(t *testing.T) {
	backend := storage.NewMemoryBackend()
	l := New(backend, Config{})
	ctx := context.Background()

	if _, err := l.MergeUsage(ctx, testEvent("req-1", 2.5)); err != nil {
		t.Fatalf("MergeUsage failed: %v", err)
	}

	// The per-request record lives under the request id bucket.
	total, err := backend.GetSpend(ctx, "request_owner:key-1", "per_request", "req-1")
	if err != nil {
		t.Fatalf("GetSpend failed: %v", err)
	}
	if total != 2.5 {
		t.Errorf("Expected per-request record 2.5, got %v", total)
	}
}

func TestLedger_MergeUsage_Validation(t *testing.T) {
	l := New(storage.NewMemoryBackend(), Config{})
	ctx := context.Background()

	cases := []struct {
		name  string
		mutat func(*UsageEvent)
	}{
		{"missing request id", func(e *UsageEvent) { e.RequestID = "" }},
		{"empty chain", func(e *UsageEvent) { e.Chain = nil }},
		{"negative cost", func(e *UsageEvent) { e.Cost = -1 }},
		{"zero timestamp", func(e *UsageEvent) { e.Timestamp = time.Time{} }},
	}
	for _, tc := range cases {
		ev := testEvent("req-x", 1.0)
		tc.mutat(&ev)
		if _, err := l.MergeUsage(ctx, ev); !errors.Is(err, ErrInvalidEvent) {
			t.Errorf("%s: expected ErrInvalidEvent, got %v", tc.name, err)
		}
	}
}

// ============================================================================
// CachedSpend Tests
// ============================================================================

// failingBackend wraps the memory backend and fails reads on demand.
type failingBackend struct {
	*storage.MemoryBackend
	failReads bool
}

func (f *failingBackend) GetSpend(ctx context.Context, scopeKey, window, bucket string) (float64, error) {
	if f.failReads {
		return 0, errors.New("backend down")
	}
	return f.MemoryBackend.GetSpend(ctx, scopeKey, window, bucket)
}

func TestLedger_CachedSpend_WriteThrough(t *testing.T) {
	backend := &failingBackend{MemoryBackend: storage.NewMemoryBackend()}
	l := New(backend, Config{CacheTTL: time.Minute})
	ctx := context.Background()

	if _, err := l.MergeUsage(ctx, testEvent("req-1", 2.5)); err != nil {
		t.Fatalf("MergeUsage failed: %v", err)
	}

	// MergeUsage wrote through the cache, so a read works even with the
	// backend unreachable.
	backend.failReads = true
	l.now = func() time.Time { return time.Date(2026, 8, 29, 12, 0, 1, 0, time.UTC) }

	spend, err := l.CachedSpend(ctx, scope.Scope{Kind: scope.KindProject, ID: "checkout"}, WindowDaily)
	if err != nil {
		t.Fatalf("CachedSpend failed: %v", err)
	}
	if spend != 2.5 {
		t.Errorf("Expected cached spend 2.5, got %v", spend)
	}
}

func TestLedger_CachedSpend_StaleFallback(t *testing.T) {
	backend := &failingBackend{MemoryBackend: storage.NewMemoryBackend()}
	l := New(backend, Config{CacheTTL: time.Nanosecond})
	ctx := context.Background()
	s := scope.Scope{Kind: scope.KindProject, ID: "checkout"}

	if _, err := l.MergeUsage(ctx, testEvent("req-1", 2.5)); err != nil {
		t.Fatalf("MergeUsage failed: %v", err)
	}
	l.now = func() time.Time { return time.Date(2026, 8, 29, 12, 0, 1, 0, time.UTC) }

	// Entry is stale (TTL 1ns) and the backend is down: the stale value
	// is served rather than an error.
	backend.failReads = true
	spend, err := l.CachedSpend(ctx, s, WindowDaily)
	if err != nil {
		t.Fatalf("Expected stale fallback, got error: %v", err)
	}
	if spend != 2.5 {
		t.Errorf("Expected stale spend 2.5, got %v", spend)
	}
}

func TestLedger_CachedSpend_Unavailable(t *testing.T) {
	backend := &failingBackend{MemoryBackend: storage.NewMemoryBackend(), failReads: true}
	l := New(backend, Config{CacheTTL: time.Minute})

	// Nothing cached and the backend is down.
	_, err := l.CachedSpend(context.Background(), scope.Scope{Kind: scope.KindProject, ID: "x"}, WindowDaily)
	if !errors.Is(err, ErrSpendUnavailable) {
		t.Errorf("Expected ErrSpendUnavailable, got %v", err)
	}
}

func TestLedger_Limit(t *testing.T) {
	l := New(storage.NewMemoryBackend(), Config{
		Limits: []Limit{
			{Scope: scope.Scope{Kind: scope.KindProject, ID: "checkout"}, Window: WindowDaily, Amount: 100},
		},
	})

	amount, ok := l.Limit(scope.Scope{Kind: scope.KindProject, ID: "checkout"}, WindowDaily)
	if !ok || amount != 100 {
		t.Errorf("Expected limit 100, got %v (ok=%v)", amount, ok)
	}
	if _, ok := l.Limit(scope.Scope{Kind: scope.KindProject, ID: "other"}, WindowDaily); ok {
		t.Error("Expected no limit for unconfigured scope")
	}
}
