package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Set defaults
	cfg := DefaultConfig()

	// Set up viper
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// Read config file (optional - if file doesn't exist, continue with defaults)
	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional if environment variables are set
		fmt.Printf("Warning: Could not read config file %s: %v. Using defaults and environment variables.\n", configPath, err)
	} else {
		// Unmarshal file contents
		if err := viper.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	// Override with environment variables (these take precedence)
	applyEnvironmentOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides to config
func applyEnvironmentOverrides(cfg *Config) {
	// Server configuration
	if nodeID := os.Getenv("RECONFIG_NODE_ID"); nodeID != "" {
		cfg.Server.NodeID = nodeID
	}
	if port := os.Getenv("HEALTH_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.HealthPort = p
		}
	}

	// Ring configuration
	if rf := os.Getenv("RING_REPLICATION_FACTOR"); rf != "" {
		if n, err := strconv.Atoi(rf); err == nil {
			cfg.Ring.ReplicationFactor = n
		}
	}
	if all := os.Getenv("RING_REPLICATE_ALL_WORKERS"); all != "" {
		cfg.Ring.ReplicateAllWorkers = all == "true" || all == "1"
	}

	// Commit configuration
	if period := os.Getenv("COMMIT_RETRY_PERIOD"); period != "" {
		if d, err := time.ParseDuration(period); err == nil {
			cfg.Commit.RetryPeriod = d
		}
	}

	// Gossip configuration
	if enabled := os.Getenv("GOSSIP_ENABLED"); enabled != "" {
		cfg.Gossip.Enabled = enabled == "true" || enabled == "1"
	}
	if port := os.Getenv("GOSSIP_BIND_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Gossip.BindPort = p
		}
	}
	if seeds := os.Getenv("GOSSIP_SEED_NODES"); seeds != "" {
		cfg.Gossip.SeedNodes = strings.Split(seeds, ",")
	}

	// Logging configuration
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}
}
