// Package orchestrator coordinates quorum operations across the replica
// fleet. Writes fan out to a quorum-sized sample of healthy replicas, reads
// require quorum agreement (except user asset listings, which union), and
// under-replicated assets are re-replicated before a transfer proceeds.
//
// The orchestrator is stateless: the replicas hold the only durable state,
// so a restarted orchestrator resumes coordination with nothing to recover.
package orchestrator
