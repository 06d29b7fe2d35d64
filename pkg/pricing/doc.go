// Package pricing resolves unit prices for AI requests.
//
// # Overview
//
// Price resolution walks a three-tier fallback:
//
//  1. Dynamic store: entries loaded from an external pricing feed,
//     hot-reloaded on file changes.
//  2. Static defaults: a compiled per-provider table for well-known
//     model families.
//  3. Universal fallback: a single configured entry that backstops
//     everything else.
//
// Given a populated universal fallback, Resolve never fails. A missing
// fallback is rejected when the resolver is constructed, so it is a
// startup configuration error rather than a per-call condition.
//
// # Units
//
// Rates are quoted per 1K or per 1M units. Normalize converts entries
// between units so costs across providers are comparable, and Cost
// computes a request cost from an entry regardless of its unit.
//
// # Immutability
//
// Price entries are immutable. A price change is a new entry with a
// later effective date; the newest entry effective at resolution time
// wins. The resolver has no side effects.
package pricing
