package algorithm

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/helixdb/reconfig/internal/model"
)

// ErrEmptyRing is returned by lookups on a ring with no nodes
var ErrEmptyRing = errors.New("hash ring is empty")

// DefaultVirtualNodes is the number of ring positions per physical node
const DefaultVirtualNodes = 150

// HashRing maps names to deterministic subsets of a node set using
// consistent hashing with virtual nodes. It performs no I/O; all state
// changes go through Refresh, which swaps the placement atomically so
// concurrent lookups observe either the old or the new ring, never a
// partial one.
type HashRing struct {
	mu           sync.RWMutex
	ring         []ringEntry // sorted by (hash, vnode) for deterministic ties
	nodes        map[model.NodeID]struct{}
	factor       int
	virtualNodes int
	replicateAll bool
}

type ringEntry struct {
	hash  uint64
	vnode string
	node  model.NodeID
}

// NewHashRing builds a ring over the given node set. factor is the
// replica-set size returned by Replicas; replicateAll makes Replicas
// return the entire node set instead (chosen at construction, used for
// the worker-class ring only).
func NewHashRing(nodes map[model.NodeID]struct{}, factor int, replicateAll bool) *HashRing {
	h := &HashRing{
		factor:       factor,
		virtualNodes: DefaultVirtualNodes,
		replicateAll: replicateAll,
	}
	h.Refresh(nodes)
	return h
}

// Refresh atomically replaces the ring's node placement
func (h *HashRing) Refresh(nodes map[model.NodeID]struct{}) {
	ring := make([]ringEntry, 0, len(nodes)*h.virtualNodes)
	snapshot := make(map[model.NodeID]struct{}, len(nodes))
	for node := range nodes {
		snapshot[node] = struct{}{}
		for i := 0; i < h.virtualNodes; i++ {
			vnode := fmt.Sprintf("%s-vnode-%d", node, i)
			ring = append(ring, ringEntry{hash: hashKey(vnode), vnode: vnode, node: node})
		}
	}
	sort.Slice(ring, func(i, j int) bool {
		if ring[i].hash != ring[j].hash {
			return ring[i].hash < ring[j].hash
		}
		return ring[i].vnode < ring[j].vnode
	})

	h.mu.Lock()
	h.ring = ring
	h.nodes = snapshot
	h.mu.Unlock()
}

// Primary returns the single node the name maps to
func (h *HashRing) Primary(name string) (model.NodeID, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.ring) == 0 {
		return "", ErrEmptyRing
	}
	return h.ring[h.search(name)].node, nil
}

// Replicas returns the deterministic replica set for the name: the
// distinct nodes closest to the name's hash position walking the ring
// clockwise, until the replication factor is satisfied or the ring is
// exhausted. In replicate-all mode it returns the entire node set.
func (h *HashRing) Replicas(name string) map[model.NodeID]struct{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.ring) == 0 {
		return map[model.NodeID]struct{}{}
	}

	if h.replicateAll {
		replicas := make(map[model.NodeID]struct{}, len(h.nodes))
		for node := range h.nodes {
			replicas[node] = struct{}{}
		}
		return replicas
	}

	idx := h.search(name)
	replicas := make(map[model.NodeID]struct{}, h.factor)
	for i := 0; i < len(h.ring) && len(replicas) < h.factor; i++ {
		entry := h.ring[(idx+i)%len(h.ring)]
		replicas[entry.node] = struct{}{}
	}
	return replicas
}

// NodeCount returns the number of physical nodes on the ring
func (h *HashRing) NodeCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.nodes)
}

// search finds the ring index the name's hash lands on, wrapping around.
// Caller holds at least a read lock.
func (h *HashRing) search(name string) int {
	keyHash := hashKey(name)
	idx := sort.Search(len(h.ring), func(i int) bool {
		return h.ring[i].hash >= keyHash
	})
	if idx >= len(h.ring) {
		idx = 0
	}
	return idx
}

// hashKey computes a SHA-256 hash and folds it to a uint64
func hashKey(key string) uint64 {
	sum := sha256.Sum256([]byte(key))
	return binary.BigEndian.Uint64(sum[:8])
}
