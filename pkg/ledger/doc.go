// Package ledger implements the per-replica append-only DAG of asset
// events.
//
// Each event registers an asset or transfers it between users, references
// up to two prior events drawn from the tip set, and carries a canonical
// SHA-256 hash over its fields. The DAG linkage is content-addressable
// bookkeeping only; it plays no part in ordering or consensus. Ownership is
// derived by linearizing an asset's events by timestamp (ties broken by
// event id) and reading the chain of register/transfer entries.
//
// Invariants maintained after every successful append:
//
//  1. every reference resolves to a stored event
//  2. the tip set is exactly the events referenced by nobody
//  3. at most one register event per asset
//  4. the register event carries the asset's smallest timestamp
//  5. every transfer is initiated by the owner at that point in the chain
//  6. no event carries more than two references
//  7. every stored hash recomputes to the same value
//
// VerifyIntegrity re-checks all of the above on demand. A tip-set mismatch
// is repaired in place and persisted; every other violation is reported
// without repair.
//
// Persistence is write-through: AddEvent saves the full snapshot after each
// append. A failed save keeps the in-memory mutation, a documented
// inconsistency the fabric accepts in exchange for availability.
package ledger
