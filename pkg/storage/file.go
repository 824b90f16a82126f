package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/inlock/fabric/pkg/log"
	"github.com/inlock/fabric/pkg/types"
	"github.com/rs/zerolog"
)

// FileStore implements Store on a single JSON file.
//
// The write protocol is fixed for compatibility with existing deployments:
// the current file is first copied to <path>.bak (best effort), the new
// snapshot is serialized to <path>.tmp as 2-space-indented JSON, and the tmp
// file is renamed over the final path. Load falls back to the .bak copy when
// the primary file fails to parse.
type FileStore struct {
	path   string
	logger zerolog.Logger

	// saving drops reentrant saves with a warning instead of queueing
	// them. Callers serialize writes anyway; this is a best-effort guard.
	saving atomic.Bool
}

// NewFileStore creates a file-backed store at path, creating the parent
// directory if needed.
func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	return &FileStore{
		path:   path,
		logger: log.WithComponent("storage"),
	}, nil
}

// Path returns the primary storage location.
func (s *FileStore) Path() string {
	return s.path
}

// Exists reports whether the storage file is present.
func (s *FileStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Save writes the snapshot using the bak/tmp/rename protocol.
func (s *FileStore) Save(snap *types.Snapshot) error {
	if !s.saving.CompareAndSwap(false, true) {
		s.logger.Warn().
			Str("path", s.path).
			Msg("save attempted while another save was in progress")
		return nil
	}
	defer s.saving.Store(false)

	if s.Exists() {
		if err := copyFile(s.path, s.path+".bak"); err != nil {
			s.logger.Error().Err(err).
				Str("path", s.path).
				Msg("failed to create backup")
		}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}

	return nil
}

// Load reads the snapshot, restoring from the backup copy when the primary
// file is corrupt.
func (s *FileStore) Load() (*types.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	snap, parseErr := decodeSnapshot(data)
	if parseErr == nil {
		return snap, nil
	}

	bakPath := s.path + ".bak"
	bakData, bakErr := os.ReadFile(bakPath)
	if bakErr != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, parseErr)
	}

	s.logger.Warn().
		Str("path", s.path).
		Str("backup", bakPath).
		Msg("storage file corrupt, restoring from backup")

	snap, bakParseErr := decodeSnapshot(bakData)
	if bakParseErr != nil {
		return nil, fmt.Errorf("failed to parse backup %s: %w", bakPath, bakParseErr)
	}
	return snap, nil
}

func decodeSnapshot(data []byte) (*types.Snapshot, error) {
	var snap types.Snapshot
	// Decode data-map numbers as json.Number so event hashes recompute
	// over the literal text that was hashed at creation.
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&snap); err != nil {
		return nil, err
	}
	if snap.Nodes == nil {
		snap.Nodes = make(map[string]*types.Event)
	}
	return &snap, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
