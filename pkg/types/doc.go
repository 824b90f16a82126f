// Package types defines the core data structures shared across the InLock
// fabric: ledger events, ownership history entries, ledger snapshots and the
// HTTP payloads of the replica and orchestrator APIs.
//
// JSON field names in this package are load-bearing. The storage file and
// the HTTP surface are consumed by deployed clients, so the serialized names
// (including the historical "node_id" for event identifiers) must not
// change.
package types
