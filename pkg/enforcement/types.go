package enforcement

import (
	"errors"
	"fmt"

	"costwise-hq/costwise/pkg/ledger"
	"costwise-hq/costwise/pkg/scope"
)

// CheckRequest describes a request awaiting admission.
type CheckRequest struct {
	// Chain is the request's scope chain, narrowest first.
	Chain scope.Chain

	// Provider and Model select the price used for the estimate.
	Provider string
	Model    string

	// PromptUnits is the caller's input-size estimate.
	PromptUnits int64

	// MaxOutputUnits is the caller's output upper bound. Zero means the
	// caller gave none and the estimator's conservative heuristic is
	// used instead.
	MaxOutputUnits int64
}

// Decision is the outcome of an admission check. A denial is an
// expected business result, not an error.
type Decision struct {
	// Allowed reports whether the request may be dispatched.
	Allowed bool

	// Scope and Window identify the first violated limit (denials only).
	Scope  scope.Scope
	Window ledger.Window

	// Reason explains a denial.
	Reason string

	// EstimatedCost is the conservative pre-flight cost estimate.
	EstimatedCost float64

	// CurrentSpend and Limit are the figures behind a denial.
	CurrentSpend float64
	Limit        float64

	// FailedOpen reports that spend data was unreachable for at least
	// one limit and the fail-open policy admitted the request anyway.
	FailedOpen bool
}

// ErrBudgetExceeded is the sentinel for denial, for callers that prefer
// errors over inspecting the Decision.
var ErrBudgetExceeded = errors.New("budget exceeded")

// DenyError is Decision's error form, carrying the violated limit.
type DenyError struct {
	Scope         scope.Scope
	Window        ledger.Window
	EstimatedCost float64
	CurrentSpend  float64
	Limit         float64
}

// Error implements the error interface.
func (e *DenyError) Error() string {
	return fmt.Sprintf("budget exceeded for %s (%s window): spend %.4f + estimate %.4f > limit %.4f",
		e.Scope.Key(), e.Window, e.CurrentSpend, e.EstimatedCost, e.Limit)
}

// Unwrap returns ErrBudgetExceeded for errors.Is matching.
func (e *DenyError) Unwrap() error {
	return ErrBudgetExceeded
}

// Err converts a denial Decision into a *DenyError, or nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DenyError{
		Scope:         d.Scope,
		Window:        d.Window,
		EstimatedCost: d.EstimatedCost,
		CurrentSpend:  d.CurrentSpend,
		Limit:         d.Limit,
	}
}
