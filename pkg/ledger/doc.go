// Package ledger maintains durable spend totals against budget limits.
//
// # Overview
//
// The ledger is the convergence point of the two halves of the pipeline:
// the synchronous admission path reads spend through a bounded-staleness
// TTL cache, and the asynchronous recording path merges real costs with
// atomic, idempotent increments. Both paths see the same (scope, window,
// bucket) records.
//
// # Windows
//
// Budgets apply per calendar day, per calendar month (both UTC), or per
// request. Calendar buckets, unlike rolling windows, give every consumer
// (enforcement, alerting, analytics, rollover) the same bucket identity
// for a given instant, which is what makes idempotent replay possible.
//
// # Idempotency
//
// MergeUsage marks the event's request id and applies its increments as
// one atomic storage operation. Duplicate deliveries, replays, and
// out-of-order arrivals all collapse to a single application per request
// id, and a merge that fails partway leaves no mark, so a redelivery
// applies the event in full.
package ledger
