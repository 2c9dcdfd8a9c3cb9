// Package directory provides the node directory consumed by the
// membership layer: a versioned, mutable map from node identity to
// network address, partitioned by role. The directory may be mutated by
// other components at any time; readers treat every read as
// possibly-stale.
package directory

import "github.com/helixdb/reconfig/internal/model"

// UnknownPort is returned by PortOf when no port is known for a node
const UnknownPort = -1

// Directory is the external node-configuration interface
type Directory interface {
	// Members returns a copy of the current membership for a role
	Members(role model.NodeRole) map[model.NodeID]struct{}

	// HostOf returns the public host of a node, or "" if unknown
	HostOf(id model.NodeID) string

	// BindHostOf returns the bindable host of a node (which can differ
	// from HostOf behind NAT), or "" if unknown
	BindHostOf(id model.NodeID) string

	// PortOf returns the node's port, or UnknownPort
	PortOf(id model.NodeID) int

	// AddNode registers a node under a role and returns the node's
	// previous address, or nil if it was not present
	AddNode(role model.NodeRole, id model.NodeID, addr model.NodeAddress) *model.NodeAddress

	// RemoveNode deregisters a node from a role and returns its previous
	// address, or nil if it was not present
	RemoveNode(role model.NodeRole, id model.NodeID) *model.NodeAddress

	// Version returns a counter that increases with every mutation
	Version() uint64
}
