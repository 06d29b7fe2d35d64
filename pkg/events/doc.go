// Package events provides the in-process event bus connecting the
// request path to the accounting consumers.
//
// # Guarantees
//
//   - At-least-once delivery per (consumer, event): handler errors are
//     retried with exponential backoff, then dead-lettered.
//   - Per-key ordering: envelopes with the same key land on the same
//     shard and are delivered in publish order, so one request's
//     lifecycle sequence (dispatched, response, cost, alert) is seen in
//     order. No ordering holds across keys.
//   - Publishing is asynchronous relative to the request path: Publish
//     returns at enqueue and never waits for delivery.
//
// Consumers must be idempotent; the same envelope can arrive more than
// once under redelivery.
package events
