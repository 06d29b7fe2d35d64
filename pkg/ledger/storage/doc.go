// Package storage provides durable backends for the budget ledger.
//
// # Backends
//
//   - MemoryBackend: in-process maps, for tests and ephemeral deployments.
//   - SQLiteBackend: WAL-mode SQLite with prepared statements and
//     periodic checkpointing, for single-instance durable deployments.
//
// # Atomicity
//
// IncrementSpend is required to be atomic under concurrent writers. The
// SQLite backend expresses the increment as UPSERT arithmetic inside the
// database; the memory backend increments under its mutex. Neither path
// is a read-modify-write in application code.
//
// # Idempotency
//
// ApplyUsage inserts a request id under a unique key and applies the
// event's spend increments in the same atomic unit (a transaction in
// SQLite, one lock acquisition in memory). A replayed request id is a
// no-op, and a failed merge leaves no mark behind, so redelivery always
// either applies the event in full or not at all.
package storage
