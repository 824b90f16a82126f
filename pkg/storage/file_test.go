package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/inlock/fabric/pkg/log"
	"github.com/inlock/fabric/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() *types.Snapshot {
	return &types.Snapshot{
		Nodes: map[string]*types.Event{
			"e1": {
				EventID:    "e1",
				AssetID:    "asset-1",
				Action:     types.ActionRegister,
				UserID:     "alice",
				Timestamp:  1724650000.5,
				References: []string{},
				Signature:  "sig",
				Hash:       "hash",
				Data:       map[string]any{"name": "crate"},
			},
		},
		Tips: []string{"e1"},
	}
}

func TestFileStoreCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "ledger.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	assert.False(t, store.Exists())
	require.NoError(t, store.Save(testSnapshot()))
	assert.True(t, store.Exists())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "ledger.json"))
	require.NoError(t, err)

	snap := testSnapshot()
	require.NoError(t, store.Save(snap))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, snap.Tips, loaded.Tips)
	require.Contains(t, loaded.Nodes, "e1")
	assert.Equal(t, "asset-1", loaded.Nodes["e1"].AssetID)
	assert.Equal(t, types.ActionRegister, loaded.Nodes["e1"].Action)
}

func TestSaveKeepsBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Save(testSnapshot()))
	second := testSnapshot()
	second.Tips = []string{"e1", "e2"}
	require.NoError(t, store.Save(second))

	_, err = os.Stat(path + ".bak")
	assert.NoError(t, err, "second save should leave a backup of the first")
}

func TestLoadFallsBackToBackup(t *testing.T) {
	var logs bytes.Buffer
	log.Init(log.Config{Level: log.WarnLevel, JSONOutput: true, Output: &logs})
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	path := filepath.Join(t.TempDir(), "ledger.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Save(testSnapshot()))
	require.NoError(t, store.Save(testSnapshot()))

	// Corrupt the primary file; the backup from the second save still holds
	// the previous state.
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Contains(t, loaded.Nodes, "e1")
	assert.Contains(t, logs.String(), "restoring from backup")
}

func TestLoadErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = store.Load()
	assert.Error(t, err, "loading a missing file fails")

	// Corrupt primary with no backup at all.
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	_, err = store.Load()
	assert.Error(t, err)
}

func TestLoadNormalizesEmptySnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"tips": []}`), 0644))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.NotNil(t, loaded.Nodes)
}
