package ledger

import "time"

// Window is a time window a budget limit applies over.
type Window string

const (
	// WindowPerRequest limits the cost of a single request.
	WindowPerRequest Window = "per_request"

	// WindowDaily limits spend per calendar day (UTC).
	WindowDaily Window = "daily"

	// WindowMonthly limits spend per calendar month (UTC).
	WindowMonthly Window = "monthly"
)

// Windows lists all windows narrowest first. Enforcement walks this
// order so the narrowest violated window is always the one reported.
var Windows = []Window{WindowPerRequest, WindowDaily, WindowMonthly}

// AccrualWindows lists the windows spend accrues in. The per-request
// window is excluded: it is checked against a single request's cost and
// recorded under the request id bucket, never accumulated.
var AccrualWindows = []Window{WindowDaily, WindowMonthly}

// Valid reports whether w is a known window.
func (w Window) Valid() bool {
	switch w {
	case WindowPerRequest, WindowDaily, WindowMonthly:
		return true
	}
	return false
}

// Bucket returns the bucket id for a point in time. Daily buckets are
// "2006-01-02", monthly buckets "2006-01", both UTC. Per-request buckets
// are the request id itself and are produced by the caller.
func (w Window) Bucket(t time.Time) string {
	t = t.UTC()
	switch w {
	case WindowDaily:
		return t.Format("2006-01-02")
	case WindowMonthly:
		return t.Format("2006-01")
	default:
		return ""
	}
}
