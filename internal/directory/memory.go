package directory

import (
	"sync"

	"github.com/helixdb/reconfig/internal/model"
)

// MemoryDirectory is an in-memory Directory implementation. All methods
// are safe for concurrent use.
type MemoryDirectory struct {
	mu      sync.RWMutex
	entries map[model.NodeID]*nodeEntry
	roles   map[model.NodeRole]map[model.NodeID]struct{}
	version uint64
}

type nodeEntry struct {
	role     model.NodeRole
	host     string
	bindHost string
	port     int
}

// NewMemoryDirectory creates an empty in-memory directory
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		entries: make(map[model.NodeID]*nodeEntry),
		roles: map[model.NodeRole]map[model.NodeID]struct{}{
			model.RoleCoordinator: {},
			model.RoleWorker:      {},
		},
	}
}

// Members returns a copy of the current membership for a role
func (d *MemoryDirectory) Members(role model.NodeRole) map[model.NodeID]struct{} {
	d.mu.RLock()
	defer d.mu.RUnlock()

	members := make(map[model.NodeID]struct{}, len(d.roles[role]))
	for id := range d.roles[role] {
		members[id] = struct{}{}
	}
	return members
}

// HostOf returns the public host of a node, or "" if unknown
func (d *MemoryDirectory) HostOf(id model.NodeID) string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if entry, ok := d.entries[id]; ok {
		return entry.host
	}
	return ""
}

// BindHostOf returns the bindable host of a node. Falls back to the
// public host when no separate bind host was configured.
func (d *MemoryDirectory) BindHostOf(id model.NodeID) string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entry, ok := d.entries[id]
	if !ok {
		return ""
	}
	if entry.bindHost != "" {
		return entry.bindHost
	}
	return entry.host
}

// PortOf returns the node's port, or UnknownPort
func (d *MemoryDirectory) PortOf(id model.NodeID) int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if entry, ok := d.entries[id]; ok {
		return entry.port
	}
	return UnknownPort
}

// AddNode registers a node under a role and returns its previous address
func (d *MemoryDirectory) AddNode(role model.NodeRole, id model.NodeID, addr model.NodeAddress) *model.NodeAddress {
	d.mu.Lock()
	defer d.mu.Unlock()

	var prev *model.NodeAddress
	if entry, ok := d.entries[id]; ok && entry.role == role {
		prev = &model.NodeAddress{Host: entry.host, Port: entry.port}
	}

	d.entries[id] = &nodeEntry{role: role, host: addr.Host, port: addr.Port}
	d.roles[role][id] = struct{}{}
	d.version++
	return prev
}

// SetBindHost records a separate bindable host for a node already in the
// directory, for deployments behind NAT or virtual addressing
func (d *MemoryDirectory) SetBindHost(id model.NodeID, bindHost string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if entry, ok := d.entries[id]; ok {
		entry.bindHost = bindHost
		d.version++
	}
}

// RemoveNode deregisters a node from a role and returns its previous
// address, or nil if it was not present under that role
func (d *MemoryDirectory) RemoveNode(role model.NodeRole, id model.NodeID) *model.NodeAddress {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.entries[id]
	if !ok || entry.role != role {
		return nil
	}

	prev := &model.NodeAddress{Host: entry.host, Port: entry.port}
	delete(d.entries, id)
	delete(d.roles[role], id)
	d.version++
	return prev
}

// Version returns a counter that increases with every mutation
func (d *MemoryDirectory) Version() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}
