package pricing

import "time"

// Unit is the denomination a rate is quoted in.
type Unit string

const (
	// UnitPer1K quotes rates per 1,000 units.
	UnitPer1K Unit = "per_1k"

	// UnitPer1M quotes rates per 1,000,000 units.
	UnitPer1M Unit = "per_1m"
)

// unitsPerRate returns the number of units one rate covers.
func (u Unit) unitsPerRate() float64 {
	switch u {
	case UnitPer1M:
		return 1_000_000
	default:
		return 1_000
	}
}

// Valid reports whether u is a known pricing unit.
func (u Unit) Valid() bool {
	return u == UnitPer1K || u == UnitPer1M
}

// Tier identifies where a resolved price came from.
type Tier string

const (
	// TierDynamic means the price came from the dynamic store (the feed).
	TierDynamic Tier = "dynamic"

	// TierStatic means the price came from the compiled static defaults.
	TierStatic Tier = "static"

	// TierFallback means the universal fallback entry was used.
	TierFallback Tier = "fallback"
)

// Entry is a single price for a (provider, model) pair.
//
// Entries are immutable once effective. A price change is a new entry
// with a later EffectiveAt; entries are never edited in place.
type Entry struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`

	// Unit is the denomination InputRate and OutputRate are quoted in.
	Unit Unit `yaml:"unit"`

	// InputRate is the price per Unit of input (prompt) units.
	InputRate float64 `yaml:"input_rate"`

	// OutputRate is the price per Unit of output (completion) units.
	OutputRate float64 `yaml:"output_rate"`

	Currency string `yaml:"currency"`

	// EffectiveAt is when this entry becomes active. The newest entry
	// with EffectiveAt <= now wins.
	EffectiveAt time.Time `yaml:"effective_at"`

	// Tier records the source tier the entry was resolved from.
	Tier Tier `yaml:"-"`
}

// Normalize converts an entry's rates to the target unit. Rates scale
// linearly with the unit denomination, so costs computed from the
// normalized entry are identical within floating-point tolerance.
func Normalize(entry Entry, target Unit) Entry {
	if entry.Unit == target || !target.Valid() {
		return entry
	}

	factor := target.unitsPerRate() / entry.Unit.unitsPerRate()
	entry.InputRate *= factor
	entry.OutputRate *= factor
	entry.Unit = target
	return entry
}

// Cost computes the cost of a request priced by entry.
func Cost(entry Entry, inputUnits, outputUnits int64) float64 {
	per := entry.Unit.unitsPerRate()
	var cost float64
	if inputUnits > 0 {
		cost += float64(inputUnits) / per * entry.InputRate
	}
	if outputUnits > 0 {
		cost += float64(outputUnits) / per * entry.OutputRate
	}
	return cost
}
