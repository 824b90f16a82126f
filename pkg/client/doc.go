// Package client provides a typed HTTP client for the replica API.
//
// The orchestrator uses one Client per replica. Reads and health probes use a
// short timeout so a hung replica cannot stall quorum operations; writes get a
// longer one because they persist the ledger to disk.
package client
