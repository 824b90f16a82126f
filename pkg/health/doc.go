// Package health provides liveness probing for fabric replicas.
//
// The orchestrator probes every configured replica's /health endpoint with a
// short timeout before each quorum operation; the subset that answers
// becomes the active snapshot for that operation. Checker is kept as an
// interface so tests can substitute scripted probes.
package health
