// Package metrics exposes Prometheus collectors for the fabric: ledger
// appends and save failures, integrity repairs, quorum operation outcomes,
// active-replica counts and API request totals. Both servers mount Handler
// at /metrics.
package metrics
