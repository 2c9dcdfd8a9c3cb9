package model

import "fmt"

// NodeID is the stable identity of a node. It is opaque to this layer:
// the node directory decides what identities look like.
type NodeID string

// NodeRole partitions the node population into the two ring classes
type NodeRole string

const (
	// RoleCoordinator nodes administer reconfigurations
	RoleCoordinator NodeRole = "COORDINATOR"
	// RoleWorker nodes serve application traffic
	RoleWorker NodeRole = "WORKER"
)

// Valid reports whether the role is one of the known classes
func (r NodeRole) Valid() bool {
	return r == RoleCoordinator || r == RoleWorker
}

// NodeAddress is a resolvable network endpoint for a node.
// Port is -1 when the directory does not know a port for the node.
type NodeAddress struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// String formats the address as host:port
func (a NodeAddress) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}
