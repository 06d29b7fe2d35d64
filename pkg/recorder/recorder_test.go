package recorder

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"costwise-hq/costwise/pkg/events"
	"costwise-hq/costwise/pkg/ledger"
	"costwise-hq/costwise/pkg/ledger/storage"
	"costwise-hq/costwise/pkg/pricing"
	"costwise-hq/costwise/pkg/scope"
)

var testChain = scope.Chain{
	{Kind: scope.KindRequestOwner, ID: "key-1"},
	{Kind: scope.KindProject, ID: "checkout"},
}

type observed struct {
	mu    sync.Mutex
	calls []int64
}

func (o *observed) Observe(provider, model string, outputUnits int64) {
	o.mu.Lock()
	o.calls = append(o.calls, outputUnits)
	o.mu.Unlock()
}

func testSetup(t *testing.T) (*Recorder, *ledger.Ledger, *events.Bus, *observed) {
	t.Helper()

	store := pricing.NewStore()
	store.Replace([]pricing.Entry{{
		Provider:    "test",
		Model:       "model-a",
		Unit:        pricing.UnitPer1K,
		InputRate:   0.01,
		OutputRate:  0.02,
		EffectiveAt: time.Now().Add(-time.Hour),
	}})
	resolver, err := pricing.NewResolver(store, pricing.Entry{InputRate: 0.01, OutputRate: 0.03})
	if err != nil {
		t.Fatalf("Failed to create resolver: %v", err)
	}

	l := ledger.New(storage.NewMemoryBackend(), ledger.Config{})
	bus := events.NewBus(events.Config{RetryBackoff: time.Millisecond})
	t.Cleanup(func() { bus.Close() })

	obs := &observed{}
	return New(l, resolver, bus, obs), l, bus, obs
}

func completed(requestID string) *CompletedRequest {
	return &CompletedRequest{
		RequestID:   requestID,
		Chain:       testChain,
		Provider:    "test",
		Model:       "model-a",
		InputUnits:  1000,
		OutputUnits: 500,
		Timestamp:   time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
		Status:      "success",
	}
}

func envelope(req *CompletedRequest) events.Envelope {
	return events.Envelope{
		ID:      "env-1",
		Type:    events.TypeResponseReceived,
		Key:     req.RequestID,
		Attempt: 1,
		Payload: req,
	}
}

// ============================================================================
// Recording Tests
// ============================================================================

func TestRecorder_RecordsSpend(t *testing.T) {
	r, l, _, obs := testSetup(t)

	if err := r.HandleResponse(context.Background(), envelope(completed("req-1"))); err != nil {
		t.Fatalf("HandleResponse failed: %v", err)
	}

	// 1000 in at 0.01/1k + 500 out at 0.02/1k = 0.02.
	total, err := l.Backend().GetSpend(context.Background(), "project:checkout", "daily", "2026-08-29")
	if err != nil {
		t.Fatalf("GetSpend failed: %v", err)
	}
	if math.Abs(total-0.02) > 1e-9 {
		t.Errorf("Expected recorded spend 0.02, got %v", total)
	}

	// The estimator observer saw the real output count.
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.calls) != 1 || obs.calls[0] != 500 {
		t.Errorf("Expected one observation of 500 output units, got %v", obs.calls)
	}
}

func TestRecorder_PublishesCostCalculated(t *testing.T) {
	r, _, bus, _ := testSetup(t)

	received := make(chan events.Envelope, 1)
	bus.Subscribe(events.TypeCostCalculated, "test", func(ctx context.Context, env events.Envelope) error {
		received <- env
		return nil
	})

	if err := r.HandleResponse(context.Background(), envelope(completed("req-1"))); err != nil {
		t.Fatalf("HandleResponse failed: %v", err)
	}

	select {
	case env := <-received:
		calc, ok := env.Payload.(*CostCalculated)
		if !ok {
			t.Fatalf("Expected *CostCalculated payload, got %T", env.Payload)
		}
		if calc.RequestID != "req-1" {
			t.Errorf("Unexpected request id %q", calc.RequestID)
		}
		if calc.Tier != pricing.TierDynamic {
			t.Errorf("Expected dynamic tier, got %s", calc.Tier)
		}
		// 2 scopes x 2 accrual windows.
		if len(calc.Applied) != 4 {
			t.Errorf("Expected 4 applied increments, got %d", len(calc.Applied))
		}
		// The lifecycle key is preserved so downstream consumers stay
		// ordered per request.
		if env.Key != "req-1" {
			t.Errorf("Expected key req-1, got %q", env.Key)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for cost.calculated")
	}
}

func TestRecorder_ReplayIsNoop(t *testing.T) {
	r, l, bus, obs := testSetup(t)

	var mu sync.Mutex
	published := 0
	bus.Subscribe(events.TypeCostCalculated, "counter", func(ctx context.Context, env events.Envelope) error {
		mu.Lock()
		published++
		mu.Unlock()
		return nil
	})

	for i := 0; i < 3; i++ {
		if err := r.HandleResponse(context.Background(), envelope(completed("req-1"))); err != nil {
			t.Fatalf("HandleResponse failed on delivery %d: %v", i+1, err)
		}
	}
	time.Sleep(200 * time.Millisecond)

	total, err := l.Backend().GetSpend(context.Background(), "project:checkout", "daily", "2026-08-29")
	if err != nil {
		t.Fatalf("GetSpend failed: %v", err)
	}
	if math.Abs(total-0.02) > 1e-9 {
		t.Errorf("Expected spend recorded once (0.02), got %v", total)
	}

	mu.Lock()
	gotPublished := published
	mu.Unlock()
	if gotPublished != 1 {
		t.Errorf("Expected cost.calculated published once, got %d", gotPublished)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.calls) != 1 {
		t.Errorf("Expected estimator fed once, got %d observations", len(obs.calls))
	}
}

func TestRecorder_FallbackTierStillRecords(t *testing.T) {
	r, l, _, _ := testSetup(t)

	req := completed("req-1")
	req.Provider = "unknown"
	req.Model = "mystery-model"

	if err := r.HandleResponse(context.Background(), envelope(req)); err != nil {
		t.Fatalf("HandleResponse failed: %v", err)
	}

	// 1000 at 0.01 + 500 at 0.03 = 0.025 from the universal fallback.
	total, err := l.Backend().GetSpend(context.Background(), "project:checkout", "daily", "2026-08-29")
	if err != nil {
		t.Fatalf("GetSpend failed: %v", err)
	}
	if math.Abs(total-0.025) > 1e-9 {
		t.Errorf("Expected fallback-priced spend 0.025, got %v", total)
	}
}

func TestRecorder_AnomalousRateRecordsAtFallback(t *testing.T) {
	store := pricing.NewStore()
	// A corrupt dynamic entry that prices usage below zero.
	store.Replace([]pricing.Entry{{
		Provider:    "test",
		Model:       "model-a",
		Unit:        pricing.UnitPer1K,
		InputRate:   -0.05,
		OutputRate:  0.02,
		EffectiveAt: time.Now().Add(-time.Hour),
	}})
	resolver, err := pricing.NewResolver(store, pricing.Entry{InputRate: 0.01, OutputRate: 0.03})
	if err != nil {
		t.Fatalf("Failed to create resolver: %v", err)
	}

	l := ledger.New(storage.NewMemoryBackend(), ledger.Config{})
	bus := events.NewBus(events.Config{RetryBackoff: time.Millisecond})
	t.Cleanup(func() { bus.Close() })
	r := New(l, resolver, bus, nil)

	failed := make(chan events.Envelope, 1)
	bus.Subscribe(events.TypeCostTrackingFailed, "test", func(ctx context.Context, env events.Envelope) error {
		failed <- env
		return nil
	})

	if err := r.HandleResponse(context.Background(), envelope(completed("req-1"))); err != nil {
		t.Fatalf("HandleResponse failed: %v", err)
	}

	// The usage record is not dropped: it lands at the universal
	// fallback rates, 1000 at 0.01 + 500 at 0.03 = 0.025.
	total, err := l.Backend().GetSpend(context.Background(), "project:checkout", "daily", "2026-08-29")
	if err != nil {
		t.Fatalf("GetSpend failed: %v", err)
	}
	if math.Abs(total-0.025) > 1e-9 {
		t.Errorf("Expected fallback-priced spend 0.025, got %v", total)
	}

	select {
	case env := <-failed:
		payload, ok := env.Payload.(*CostTrackingFailed)
		if !ok {
			t.Fatalf("Expected *CostTrackingFailed payload, got %T", env.Payload)
		}
		if payload.RequestID != "req-1" || payload.Reason == "" {
			t.Errorf("Unexpected payload: %+v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for cost.tracking_failed")
	}
}

func TestRecorder_InvalidEventPublishesTrackingFailed(t *testing.T) {
	r, _, bus, _ := testSetup(t)

	failed := make(chan events.Envelope, 1)
	bus.Subscribe(events.TypeCostTrackingFailed, "test", func(ctx context.Context, env events.Envelope) error {
		failed <- env
		return nil
	})

	req := completed("req-1")
	req.Chain = nil // merge will reject this

	if err := r.HandleResponse(context.Background(), envelope(req)); err == nil {
		t.Error("Expected an error for an invalid event")
	}

	select {
	case env := <-failed:
		payload, ok := env.Payload.(*CostTrackingFailed)
		if !ok {
			t.Fatalf("Expected *CostTrackingFailed payload, got %T", env.Payload)
		}
		if payload.RequestID != "req-1" || payload.Reason == "" {
			t.Errorf("Unexpected payload: %+v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for cost.tracking_failed")
	}
}
