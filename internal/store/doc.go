// Package store provides SQLite-backed durable storage for the Mechanism Bank.
//
// The store holds three tables:
//   - mechanisms: the authoritative record per id (never deleted, only retired)
//   - changelog: append-only ledger of version transitions
//   - quarantine: records whose changelog replay no longer matches
//
// # Critical Patterns
//
// Atomic commit-and-log: a record write and its changelog entry are one
// transaction (Commit). A crash can never leave a version that the
// changelog does not account for.
//
// Optimistic version check: updates carry the version they were derived
// from and fail with ConflictError if the stored version moved.
//
// Deterministic ordering: the changelog is ordered by seq (ledger order),
// records by insertion order.
//
// Append-only enforcement: triggers reject UPDATE/DELETE on changelog and
// DELETE on mechanisms.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
