package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 3, cfg.MinConsensus)
	assert.Equal(t, Duration(2*time.Second), cfg.ReadTimeout)
	assert.Equal(t, Duration(5*time.Second), cfg.WriteTimeout)
	assert.Equal(t, ":6000", cfg.OrchestratorAddr)
	require.Len(t, cfg.Replicas, 7)
	assert.Equal(t, "http://localhost:5001", cfg.Replicas[0])
	assert.Equal(t, "http://localhost:5007", cfg.Replicas[6])
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fabric.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
min_consensus: 2
read_timeout: 1s
replicas:
  - http://10.0.0.1:5001
  - http://10.0.0.2:5001
orchestrator_addr: ":7000"
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.MinConsensus)
	assert.Equal(t, Duration(time.Second), cfg.ReadTimeout)
	assert.Equal(t, Duration(5*time.Second), cfg.WriteTimeout, "unset fields keep defaults")
	assert.Equal(t, ":7000", cfg.OrchestratorAddr)
	assert.Equal(t, []string{"http://10.0.0.1:5001", "http://10.0.0.2:5001"}, cfg.Replicas)
}

func TestLoadDerivesReplicasFromPorts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fabric.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
base_port: 6001
replica_count: 3
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"http://localhost:6001",
		"http://localhost:6002",
		"http://localhost:6003",
	}, cfg.Replicas)
}

func TestSetReplicaCount(t *testing.T) {
	cfg := Default()
	cfg.SetReplicaCount(2)

	assert.Equal(t, 2, cfg.ReplicaCount)
	assert.Equal(t, []string{"http://localhost:5001", "http://localhost:5002"}, cfg.Replicas)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "zero consensus", yaml: "min_consensus: 0"},
		{name: "negative timeout", yaml: "read_timeout: -1s"},
		{name: "malformed yaml", yaml: "replicas: ["},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "fabric.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0644))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
