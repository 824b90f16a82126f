package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "2s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Duration converts to the standard library type.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config describes a fabric deployment: the replica fleet, the quorum size
// and the timeouts the orchestrator applies when talking to replicas.
type Config struct {
	// Replicas are the base URLs of the replica APIs. Empty means derive
	// from BasePort and ReplicaCount.
	Replicas []string `yaml:"replicas"`

	// MinConsensus is the number of replicas a write must land on and a
	// read must agree across.
	MinConsensus int `yaml:"min_consensus"`

	// ReadTimeout bounds health probes and read fan-out.
	ReadTimeout Duration `yaml:"read_timeout"`

	// WriteTimeout bounds register and transfer fan-out.
	WriteTimeout Duration `yaml:"write_timeout"`

	// OrchestratorAddr is the listen address of the orchestrator API.
	OrchestratorAddr string `yaml:"orchestrator_addr"`

	// DataDir is the root directory for per-replica storage.
	DataDir string `yaml:"data_dir"`

	// BasePort is the port of the first replica; replica i listens on
	// BasePort+i-1.
	BasePort int `yaml:"base_port"`

	// ReplicaCount is the number of replicas the supervisor launches.
	ReplicaCount int `yaml:"replica_count"`
}

// Default returns the configuration of a local seven-replica fabric.
func Default() *Config {
	c := &Config{
		MinConsensus:     3,
		ReadTimeout:      Duration(2 * time.Second),
		WriteTimeout:     Duration(5 * time.Second),
		OrchestratorAddr: ":6000",
		DataDir:          "blockchain_data",
		BasePort:         5001,
		ReplicaCount:     7,
	}
	c.Replicas = deriveReplicas(c.BasePort, c.ReplicaCount)
	return c
}

// Load reads a YAML config, layering it over the defaults. A missing file
// (or an empty path) yields the defaults unchanged.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	// Clear the derived fleet so a file that only sets base_port or
	// replica_count rederives from its values instead of keeping the
	// default URLs.
	c.Replicas = nil
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if len(c.Replicas) == 0 {
		c.Replicas = deriveReplicas(c.BasePort, c.ReplicaCount)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the invariants the orchestrator depends on.
func (c *Config) Validate() error {
	if c.MinConsensus < 1 {
		return fmt.Errorf("min_consensus must be at least 1, got %d", c.MinConsensus)
	}
	if len(c.Replicas) == 0 {
		return fmt.Errorf("at least one replica is required")
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

// SetReplicaCount resizes the fleet, rederiving the replica URLs from
// BasePort.
func (c *Config) SetReplicaCount(n int) {
	c.ReplicaCount = n
	c.Replicas = deriveReplicas(c.BasePort, n)
}

func deriveReplicas(basePort, count int) []string {
	urls := make([]string, 0, count)
	for i := 0; i < count; i++ {
		urls = append(urls, fmt.Sprintf("http://localhost:%d", basePort+i))
	}
	return urls
}
