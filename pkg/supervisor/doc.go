// Package supervisor runs a complete local fabric: it launches one replica
// process per configured port and the orchestrator, restreams their output,
// skips ports that are already taken, and tears everything down on SIGINT or
// SIGTERM with a bounded grace period.
package supervisor
