package recorder

import (
	"time"

	"costwise-hq/costwise/pkg/ledger"
	"costwise-hq/costwise/pkg/pricing"
	"costwise-hq/costwise/pkg/scope"
)

// DispatchedRequest is the record published when a request is handed to
// a provider, before any response exists. It carries no usage counts.
type DispatchedRequest struct {
	RequestID string      `json:"request_id"`
	Chain     scope.Chain `json:"scope_chain"`
	Provider  string      `json:"provider"`
	Model     string      `json:"model"`
	Timestamp time.Time   `json:"timestamp"`
}

// CompletedRequest is the record the provider-dispatch layer supplies
// once a response (success or failure) is known. A request that fails
// or is cancelled before any response never produces one, so no cost is
// ever recorded for it and no refund path is needed.
type CompletedRequest struct {
	RequestID string      `json:"request_id"`
	Chain     scope.Chain `json:"scope_chain"`
	Provider  string      `json:"provider"`
	Model     string      `json:"model"`

	// InputUnits and OutputUnits are real counts from the provider.
	InputUnits  int64 `json:"input_units"`
	OutputUnits int64 `json:"output_units"`

	Timestamp time.Time `json:"timestamp"`

	// Status is the terminal request status ("success", "error").
	Status string `json:"status"`
}

// CostCalculated is published after a usage event is merged into the
// ledger. It carries the per-scope totals the merge produced, which is
// what the threshold evaluator and analytics consume.
type CostCalculated struct {
	RequestID string      `json:"request_id"`
	Chain     scope.Chain `json:"scope_chain"`
	Provider  string      `json:"provider"`
	Model     string      `json:"model"`

	InputUnits  int64 `json:"input_units"`
	OutputUnits int64 `json:"output_units"`

	Cost      float64          `json:"cost"`
	Tier      pricing.Tier     `json:"pricing_tier"`
	Applied   []ledger.Applied `json:"applied"`
	Timestamp time.Time        `json:"timestamp"`
}

// CostTrackingFailed is the diagnostic event for usage that could not
// be priced or recorded normally. The usage itself is still recorded
// with a best-effort estimate; this event flags it for manual
// reconciliation.
type CostTrackingFailed struct {
	RequestID string    `json:"request_id"`
	Reason    string    `json:"reason"`
	Context   string    `json:"context"`
	Timestamp time.Time `json:"timestamp"`
}
