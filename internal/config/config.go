package config

import (
	"errors"
	"time"
)

// Config represents the reconfiguration service configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Ring    RingConfig    `mapstructure:"ring"`
	Commit  CommitConfig  `mapstructure:"commit"`
	Gossip  GossipConfig  `mapstructure:"gossip"`
	Seeds   []SeedNode    `mapstructure:"seeds"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig identifies this node and its local HTTP endpoints
type ServerConfig struct {
	NodeID          string        `mapstructure:"node_id"`
	HealthPort      int           `mapstructure:"health_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RingConfig represents consistent hashing configuration
type RingConfig struct {
	ReplicationFactor   int  `mapstructure:"replication_factor"`
	ReplicateAllWorkers bool `mapstructure:"replicate_all_workers"`
}

// CommitConfig represents commit-retry engine configuration
type CommitConfig struct {
	RetryPeriod time.Duration `mapstructure:"retry_period"`
	ExecutedTTL time.Duration `mapstructure:"executed_ttl"`
	ExecutedMax int           `mapstructure:"executed_max"`
}

// GossipConfig represents memberlist-based worker discovery
type GossipConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BindPort       int           `mapstructure:"bind_port"`
	SeedNodes      []string      `mapstructure:"seed_nodes"`
	GossipInterval time.Duration `mapstructure:"gossip_interval"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	ProbeInterval  time.Duration `mapstructure:"probe_interval"`
}

// SeedNode statically registers a node in the directory at startup
type SeedNode struct {
	ID   string `mapstructure:"id"`
	Role string `mapstructure:"role"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.NodeID == "" {
		return errors.New("server.node_id is required")
	}
	if c.Ring.ReplicationFactor <= 0 {
		return errors.New("ring.replication_factor must be positive")
	}
	if c.Commit.RetryPeriod <= 0 {
		return errors.New("commit.retry_period must be positive")
	}
	if c.Commit.ExecutedTTL <= 0 {
		return errors.New("commit.executed_ttl must be positive")
	}
	if c.Commit.ExecutedMax <= 0 {
		return errors.New("commit.executed_max must be positive")
	}
	if c.Gossip.Enabled && (c.Gossip.BindPort <= 0 || c.Gossip.BindPort > 65535) {
		return errors.New("gossip.bind_port must be between 1 and 65535")
	}
	for _, seed := range c.Seeds {
		if seed.ID == "" {
			return errors.New("seeds[].id is required")
		}
		if seed.Role != "COORDINATOR" && seed.Role != "WORKER" {
			return errors.New("seeds[].role must be COORDINATOR or WORKER")
		}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			NodeID:          "reconfig-1",
			HealthPort:      8080,
			ShutdownTimeout: 30 * time.Second,
		},
		Ring: RingConfig{
			ReplicationFactor:   3,
			ReplicateAllWorkers: false,
		},
		Commit: CommitConfig{
			RetryPeriod: 5 * time.Second,
			ExecutedTTL: 1 * time.Hour,
			ExecutedMax: 4096,
		},
		Gossip: GossipConfig{
			Enabled:        false,
			BindPort:       7946,
			GossipInterval: 200 * time.Millisecond,
			ProbeTimeout:   500 * time.Millisecond,
			ProbeInterval:  1 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
