package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/helixdb/reconfig/internal/config"
	"github.com/helixdb/reconfig/internal/directory"
	"github.com/helixdb/reconfig/internal/health"
	"github.com/helixdb/reconfig/internal/metrics"
	"github.com/helixdb/reconfig/internal/model"
	"github.com/helixdb/reconfig/internal/service"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting HelixDB reconfiguration service")

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.String("node_id", cfg.Server.NodeID),
		zap.Int("replication_factor", cfg.Ring.ReplicationFactor),
		zap.Duration("retry_period", cfg.Commit.RetryPeriod),
		zap.Bool("gossip_enabled", cfg.Gossip.Enabled))

	// Initialize metrics
	m := metrics.NewMetrics()
	logger.Info("Metrics initialized")

	// Initialize the node directory, seeded from configuration
	memDir := directory.NewMemoryDirectory()
	for _, seed := range cfg.Seeds {
		memDir.AddNode(model.NodeRole(seed.Role), model.NodeID(seed.ID),
			model.NodeAddress{Host: seed.Host, Port: seed.Port})
	}
	logger.Info("Directory seeded", zap.Int("nodes", len(cfg.Seeds)))

	var dir directory.Directory = memDir
	var gossipDir *directory.GossipDirectory
	if cfg.Gossip.Enabled {
		gossipDir, err = directory.NewGossipDirectory(&directory.GossipConfig{
			Enabled:        cfg.Gossip.Enabled,
			BindPort:       cfg.Gossip.BindPort,
			SeedNodes:      cfg.Gossip.SeedNodes,
			GossipInterval: cfg.Gossip.GossipInterval,
			ProbeTimeout:   cfg.Gossip.ProbeTimeout,
			ProbeInterval:  cfg.Gossip.ProbeInterval,
		}, model.NodeID(cfg.Server.NodeID), memDir, logger)
		if err != nil {
			logger.Fatal("Failed to initialize gossip directory", zap.Error(err))
		}
		dir = gossipDir
		logger.Info("Gossip directory initialized",
			zap.Int("bind_port", cfg.Gossip.BindPort),
			zap.Strings("seed_nodes", cfg.Gossip.SeedNodes))
	}

	// Initialize services
	membership := service.NewMembershipService(
		dir,
		cfg.Ring.ReplicationFactor,
		cfg.Ring.ReplicateAllWorkers,
		m,
		logger,
	)

	commit := service.NewCommitService(
		&loopbackCoordinator{logger: logger},
		model.NodeID(cfg.Server.NodeID),
		nil,
		nil,
		cfg.Commit.RetryPeriod,
		cfg.Commit.ExecutedTTL,
		cfg.Commit.ExecutedMax,
		m,
		logger,
	)
	commit.Start()

	logger.Info("All services initialized",
		zap.Uint64("directory_version", membership.Version()))

	// Start metrics server
	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle(cfg.Metrics.Path, promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			logger.Info("Starting metrics server", zap.String("address", addr))
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	// Start health check server
	healthChecker := health.NewHealthChecker(dir, logger)
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health/live", healthChecker.LivenessHandler)
		mux.HandleFunc("/health/ready", healthChecker.ReadinessHandler)
		addr := fmt.Sprintf(":%d", cfg.Server.HealthPort)
		logger.Info("Starting health check server", zap.String("address", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("Health check server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal", zap.String("signal", sig.String()))

	// Graceful shutdown
	logger.Info("Shutting down gracefully")

	commit.Close()
	if gossipDir != nil {
		if err := gossipDir.Shutdown(); err != nil {
			logger.Error("Gossip shutdown failed", zap.Error(err))
		}
	}

	logger.Info("Reconfiguration service stopped")
}

// loopbackCoordinator stands in for the replicated log when reconfigd
// runs without an embedding platform (local bring-up, smoke tests). It
// accepts every submission and logs it; no executed notifications are
// produced, so records stay pending and visible in metrics.
type loopbackCoordinator struct {
	logger *zap.Logger
}

func (c *loopbackCoordinator) Coordinate(record *model.ReconfigRecord) (bool, error) {
	c.logger.Info("Loopback coordinate",
		zap.String("record", record.Summary()))
	return true, nil
}
