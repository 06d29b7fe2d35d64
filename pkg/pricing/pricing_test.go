package pricing

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testResolver(t *testing.T, store *Store) *Resolver {
	t.Helper()
	r, err := NewResolver(store, Entry{
		Unit:       UnitPer1K,
		InputRate:  0.01,
		OutputRate: 0.03,
		Currency:   "USD",
	})
	if err != nil {
		t.Fatalf("Failed to create resolver: %v", err)
	}
	return r
}

// ============================================================================
// Resolver Tier Tests
// ============================================================================

func TestResolver_DynamicTier(t *testing.T) {
	store := NewStore()
	store.Replace([]Entry{{
		Provider:    "openai",
		Model:       "gpt-4o",
		Unit:        UnitPer1K,
		InputRate:   0.002,
		OutputRate:  0.008,
		Currency:    "USD",
		EffectiveAt: time.Now().Add(-time.Hour),
	}})

	r := testResolver(t, store)
	entry, tier := r.Resolve("openai", "gpt-4o")

	if tier != TierDynamic {
		t.Errorf("Expected dynamic tier, got %s", tier)
	}
	if entry.InputRate != 0.002 {
		t.Errorf("Expected dynamic input rate 0.002, got %v", entry.InputRate)
	}
}

func TestResolver_StaticTier(t *testing.T) {
	r := testResolver(t, NewStore())
	entry, tier := r.Resolve("openai", "gpt-4o")

	if tier != TierStatic {
		t.Errorf("Expected static tier, got %s", tier)
	}
	if entry.InputRate != 0.0025 {
		t.Errorf("Expected static input rate 0.0025, got %v", entry.InputRate)
	}
}

func TestResolver_FallbackTier(t *testing.T) {
	r := testResolver(t, NewStore())
	entry, tier := r.Resolve("unknown-provider", "unknown-model")

	if tier != TierFallback {
		t.Errorf("Expected fallback tier, got %s", tier)
	}
	if entry.InputRate != 0.01 || entry.OutputRate != 0.03 {
		t.Errorf("Expected fallback rates, got input=%v output=%v", entry.InputRate, entry.OutputRate)
	}
	if entry.Provider != "unknown-provider" {
		t.Errorf("Expected fallback entry stamped with provider, got %q", entry.Provider)
	}
}

func TestResolver_DynamicBeatsStatic(t *testing.T) {
	store := NewStore()
	store.Replace([]Entry{{
		Provider:    "anthropic",
		Model:       "claude-3-opus",
		Unit:        UnitPer1K,
		InputRate:   0.010,
		OutputRate:  0.050,
		EffectiveAt: time.Now().Add(-time.Hour),
	}})

	r := testResolver(t, store)
	_, tier := r.Resolve("anthropic", "claude-3-opus")
	if tier != TierDynamic {
		t.Errorf("Expected dynamic tier to win over static, got %s", tier)
	}
}

func TestResolver_RequiresFallback(t *testing.T) {
	_, err := NewResolver(NewStore(), Entry{InputRate: 0, OutputRate: 0.03})
	if err == nil {
		t.Error("Expected error for zero fallback input rate")
	}
	_, err = NewResolver(NewStore(), Entry{InputRate: 0.01, OutputRate: -1})
	if err == nil {
		t.Error("Expected error for negative fallback output rate")
	}
}

// ============================================================================
// Store Tests
// ============================================================================

func TestStore_EffectiveAtSupersedes(t *testing.T) {
	now := time.Now()
	store := NewStore()
	store.Replace([]Entry{
		{
			Provider:    "openai",
			Model:       "gpt-4o",
			InputRate:   0.005,
			EffectiveAt: now.Add(-48 * time.Hour),
		},
		{
			Provider:    "openai",
			Model:       "gpt-4o",
			InputRate:   0.002,
			EffectiveAt: now.Add(-time.Hour),
		},
		{
			// Scheduled future change, not yet effective.
			Provider:    "openai",
			Model:       "gpt-4o",
			InputRate:   0.001,
			EffectiveAt: now.Add(24 * time.Hour),
		},
	})

	entry, ok := store.Lookup("openai", "gpt-4o", now)
	if !ok {
		t.Fatal("Expected a lookup hit")
	}
	if entry.InputRate != 0.002 {
		t.Errorf("Expected newest effective entry (0.002), got %v", entry.InputRate)
	}
}

func TestStore_PrefixMatch(t *testing.T) {
	store := NewStore()
	store.Replace([]Entry{{
		Provider:    "openai",
		Model:       "gpt-4o",
		InputRate:   0.002,
		EffectiveAt: time.Now().Add(-time.Hour),
	}})

	// Dated snapshot resolves through the family prefix.
	if _, ok := store.Lookup("openai", "gpt-4o-2024-08-06", time.Now()); !ok {
		t.Error("Expected prefix match for dated model snapshot")
	}
	if _, ok := store.Lookup("openai", "gpt-3.5-turbo", time.Now()); ok {
		t.Error("Expected miss for unrelated model")
	}
}

func TestLookupStatic_LongestPrefixWins(t *testing.T) {
	// "gpt-4o-mini-2024" must match gpt-4o-mini, not gpt-4o.
	rate, ok := lookupStatic("openai", "gpt-4o-mini-2024")
	if !ok {
		t.Fatal("Expected static hit")
	}
	if rate.input != 0.00015 {
		t.Errorf("Expected gpt-4o-mini rate, got %v", rate.input)
	}
}

// ============================================================================
// Normalization and Cost Tests
// ============================================================================

func TestNormalize_CostInvariant(t *testing.T) {
	entry := Entry{
		Unit:       UnitPer1M,
		InputRate:  2.5,
		OutputRate: 10.0,
	}

	normalized := Normalize(entry, UnitPer1K)
	if normalized.Unit != UnitPer1K {
		t.Fatalf("Expected per_1k after normalization, got %s", normalized.Unit)
	}
	if normalized.InputRate != 0.0025 {
		t.Errorf("Expected input rate 0.0025, got %v", normalized.InputRate)
	}

	// Cost computed from either representation must agree.
	before := Cost(entry, 123_456, 7_890)
	after := Cost(normalized, 123_456, 7_890)
	if math.Abs(before-after) > 1e-9 {
		t.Errorf("Normalization changed cost: %v vs %v", before, after)
	}
}

func TestNormalize_SameUnitNoop(t *testing.T) {
	entry := Entry{Unit: UnitPer1K, InputRate: 0.01}
	if got := Normalize(entry, UnitPer1K); got != entry {
		t.Errorf("Expected unchanged entry, got %+v", got)
	}
}

func TestCost(t *testing.T) {
	entry := Entry{Unit: UnitPer1K, InputRate: 0.01, OutputRate: 0.03}

	cost := Cost(entry, 2000, 1000)
	expected := 0.02 + 0.03
	if math.Abs(cost-expected) > 1e-9 {
		t.Errorf("Expected cost %v, got %v", expected, cost)
	}

	if got := Cost(entry, 0, 0); got != 0 {
		t.Errorf("Expected zero cost for zero units, got %v", got)
	}
}

// ============================================================================
// Feed Tests
// ============================================================================

func TestLoadFeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	feed := `entries:
  - provider: openai
    model: gpt-4o
    unit: per_1k
    input_rate: 0.0025
    output_rate: 0.01
    currency: USD
    effective_at: 2026-01-01T00:00:00Z
  - provider: anthropic
    model: claude-3-5-sonnet
    input_rate: 0.003
    output_rate: 0.015
`
	if err := os.WriteFile(path, []byte(feed), 0o644); err != nil {
		t.Fatalf("Failed to write feed: %v", err)
	}

	entries, err := LoadFeed(path)
	if err != nil {
		t.Fatalf("Failed to load feed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[1].Unit != UnitPer1K {
		t.Errorf("Expected default unit per_1k, got %s", entries[1].Unit)
	}
}

func TestLoadFeed_RejectsNegativeRates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	feed := `entries:
  - provider: openai
    model: gpt-4o
    input_rate: -1
`
	if err := os.WriteFile(path, []byte(feed), 0o644); err != nil {
		t.Fatalf("Failed to write feed: %v", err)
	}

	if _, err := LoadFeed(path); err == nil {
		t.Error("Expected error for negative rate")
	}
}

func TestLoadFeed_RejectsMissingModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	if err := os.WriteFile(path, []byte("entries:\n  - provider: openai\n"), 0o644); err != nil {
		t.Fatalf("Failed to write feed: %v", err)
	}

	if _, err := LoadFeed(path); err == nil {
		t.Error("Expected error for missing model")
	}
}
