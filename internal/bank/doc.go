// Package bank is the mutation surface of the Mechanism Bank.
//
// Every write goes through the same pipeline:
//
//	lock id → load → merge patch → validate + check citation → classify
//	→ (no-op short-circuit) → stamp version and date → commit record and
//	changelog entry in one transaction → unlock
//
// Mutations of the same id are serialized by a per-id lock; different ids
// proceed in parallel. Reads never take the lock.
//
// A record whose changelog no longer replays to its stored version is
// quarantined: it stays readable but every update is rejected with the
// stored *mechanism.ConsistencyError until Reconcile finds it consistent.
package bank
