// Package enforcement provides the synchronous pre-flight admission
// gate for AI requests.
//
// The gate compares a conservative cost estimate against every budget
// limit in the request's scope chain, reading spend through the
// ledger's TTL cache so a check never waits on storage. Denial is an
// expected business outcome carried in the Decision value; the only
// configured failure behavior is what to do when spend data itself is
// unreachable (fail-open by default, fail-closed optionally).
package enforcement
