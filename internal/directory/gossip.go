package directory

import (
	"fmt"
	"time"

	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"

	"github.com/helixdb/reconfig/internal/model"
)

// GossipConfig holds gossip membership configuration
type GossipConfig struct {
	Enabled        bool
	BindPort       int
	SeedNodes      []string
	GossipInterval time.Duration
	ProbeTimeout   time.Duration
	ProbeInterval  time.Duration
}

// GossipDirectory keeps the worker-role membership of an underlying
// directory in sync with a memberlist gossip cluster. Coordinator-role
// membership is administered explicitly and is not touched by gossip.
type GossipDirectory struct {
	*MemoryDirectory

	memberlist *memberlist.Memberlist
	logger     *zap.Logger
}

// NewGossipDirectory joins the gossip cluster and starts mirroring
// worker membership into the underlying directory
func NewGossipDirectory(cfg *GossipConfig, localID model.NodeID, under *MemoryDirectory, logger *zap.Logger) (*GossipDirectory, error) {
	gd := &GossipDirectory{
		MemoryDirectory: under,
		logger:          logger,
	}

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = string(localID)
	mlConfig.BindPort = cfg.BindPort
	if cfg.GossipInterval > 0 {
		mlConfig.GossipInterval = cfg.GossipInterval
	}
	if cfg.ProbeTimeout > 0 {
		mlConfig.ProbeTimeout = cfg.ProbeTimeout
	}
	if cfg.ProbeInterval > 0 {
		mlConfig.ProbeInterval = cfg.ProbeInterval
	}
	mlConfig.Events = &gossipEventDelegate{directory: gd}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	gd.memberlist = ml

	if len(cfg.SeedNodes) > 0 {
		if _, err := ml.Join(cfg.SeedNodes); err != nil {
			logger.Warn("Failed to join some seed nodes", zap.Error(err))
		}
	}

	return gd, nil
}

// Shutdown leaves the gossip cluster
func (g *GossipDirectory) Shutdown() error {
	return g.memberlist.Shutdown()
}

// gossipEventDelegate translates memberlist events into directory updates
type gossipEventDelegate struct {
	directory *GossipDirectory
}

// NotifyJoin is called when a node joins the gossip cluster
func (d *gossipEventDelegate) NotifyJoin(node *memberlist.Node) {
	addr := model.NodeAddress{Host: node.Addr.String(), Port: int(node.Port)}
	d.directory.AddNode(model.RoleWorker, model.NodeID(node.Name), addr)
	d.directory.logger.Info("Node joined",
		zap.String("node_id", node.Name),
		zap.String("addr", addr.String()))
}

// NotifyLeave is called when a node leaves or is declared dead
func (d *gossipEventDelegate) NotifyLeave(node *memberlist.Node) {
	d.directory.RemoveNode(model.RoleWorker, model.NodeID(node.Name))
	d.directory.logger.Info("Node left",
		zap.String("node_id", node.Name))
}

// NotifyUpdate is called when a node's metadata changes
func (d *gossipEventDelegate) NotifyUpdate(node *memberlist.Node) {
	addr := model.NodeAddress{Host: node.Addr.String(), Port: int(node.Port)}
	d.directory.AddNode(model.RoleWorker, model.NodeID(node.Name), addr)
	d.directory.logger.Debug("Node updated",
		zap.String("node_id", node.Name))
}
