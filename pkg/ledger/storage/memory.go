package storage

import (
	"context"
	"strings"
	"sync"
)

// MemoryBackend implements Backend with in-process maps.
//
// It is intended for tests and single-process deployments that can
// tolerate losing spend totals on restart. All operations are guarded by
// a single mutex; increments happen under the lock and are therefore
// atomic with respect to concurrent writers.
type MemoryBackend struct {
	mu      sync.Mutex
	spend   map[string]*spendRecord
	applied map[string]struct{}
	alerts  map[string]AlertState
	closed  bool
}

type spendRecord struct {
	total   float64
	retired bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		spend:   make(map[string]*spendRecord),
		applied: make(map[string]struct{}),
		alerts:  make(map[string]AlertState),
	}
}

func spendKey(scopeKey, window, bucket string) string {
	return scopeKey + "|" + window + "|" + bucket
}

func alertKey(scopeKey, window string) string {
	return scopeKey + "|" + window
}

// IncrementSpend atomically adds amount to the bucket total.
func (m *MemoryBackend) IncrementSpend(ctx context.Context, scopeKey, window, bucket string, amount float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	key := spendKey(scopeKey, window, bucket)
	rec, ok := m.spend[key]
	if !ok {
		rec = &spendRecord{}
		m.spend[key] = rec
	}
	rec.total += amount
	return rec.total, nil
}

// GetSpend returns the bucket total, zero if the bucket has never been used.
func (m *MemoryBackend) GetSpend(ctx context.Context, scopeKey, window, bucket string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	rec, ok := m.spend[spendKey(scopeKey, window, bucket)]
	if !ok {
		return 0, nil
	}
	return rec.total, nil
}

// ApplyUsage records the request id and applies all increments under
// one lock acquisition, so the mark and the totals change together.
func (m *MemoryBackend) ApplyUsage(ctx context.Context, requestID string, incs []Increment) ([]float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, false, ErrClosed
	}

	if _, ok := m.applied[requestID]; ok {
		return nil, false, nil
	}

	totals := make([]float64, len(incs))
	for i, inc := range incs {
		key := spendKey(inc.ScopeKey, inc.Window, inc.Bucket)
		rec, ok := m.spend[key]
		if !ok {
			rec = &spendRecord{}
			m.spend[key] = rec
		}
		rec.total += inc.Amount
		totals[i] = rec.total
	}

	m.applied[requestID] = struct{}{}
	return totals, true, nil
}

// GetAlertState returns the stored alert state or nil.
func (m *MemoryBackend) GetAlertState(ctx context.Context, scopeKey, window string) (*AlertState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	state, ok := m.alerts[alertKey(scopeKey, window)]
	if !ok {
		return nil, nil
	}
	copied := state
	return &copied, nil
}

// SetAlertState stores the alert state with an optimistic version check.
func (m *MemoryBackend) SetAlertState(ctx context.Context, scopeKey, window string, state AlertState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	key := alertKey(scopeKey, window)
	current, exists := m.alerts[key]

	if exists && current.Version != state.Version {
		return ErrVersionConflict
	}
	if !exists && state.Version != 0 {
		return ErrVersionConflict
	}

	state.Version++
	m.alerts[key] = state
	return nil
}

// RetireBuckets marks buckets before the cutoff as retired.
func (m *MemoryBackend) RetireBuckets(ctx context.Context, window, before string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	marker := "|" + window + "|"
	retired := 0
	for key, rec := range m.spend {
		idx := strings.Index(key, marker)
		if idx < 0 || rec.retired {
			continue
		}
		bucket := key[idx+len(marker):]
		if bucket < before {
			rec.retired = true
			retired++
		}
	}
	return retired, nil
}

// Close marks the backend closed. Further operations return ErrClosed.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
