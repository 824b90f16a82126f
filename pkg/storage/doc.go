// Package storage persists ledger snapshots to disk.
//
// The Store interface decouples the ledger from its persistence; FileStore
// is the production implementation, keeping the whole ledger in one JSON
// document:
//
//	{ "nodes": { "<event_id>": { ... } }, "tips": ["<event_id>", ...] }
//
// Durability model: a save is durable once the tmp file has been renamed
// over the primary path. A crash between an in-memory mutation and the
// rename leaves the previous snapshot on disk; the in-flight event is lost
// on restart, which the fabric accepts. The .bak companion holds the most
// recent prior snapshot and is written best-effort, so it may be absent or
// stale.
package storage
