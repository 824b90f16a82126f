package storage

import "github.com/inlock/fabric/pkg/types"

// Store persists ledger snapshots. Implementations must make Save atomic
// with respect to crashes: a reader never observes a partially written
// snapshot.
type Store interface {
	// Save writes the snapshot durably.
	Save(snap *types.Snapshot) error

	// Load reads the most recent durable snapshot.
	Load() (*types.Snapshot, error)

	// Exists reports whether a snapshot has been written before.
	Exists() bool

	// Path returns the primary storage location, for logging.
	Path() string
}
