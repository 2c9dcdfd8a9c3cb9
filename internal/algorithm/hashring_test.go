package algorithm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixdb/reconfig/internal/model"
)

func nodeSet(ids ...string) map[model.NodeID]struct{} {
	set := make(map[model.NodeID]struct{}, len(ids))
	for _, id := range ids {
		set[model.NodeID(id)] = struct{}{}
	}
	return set
}

func TestHashRing_Primary_EmptyRing(t *testing.T) {
	ring := NewHashRing(nodeSet(), 3, false)

	_, err := ring.Primary("service-a")
	assert.ErrorIs(t, err, ErrEmptyRing)
	assert.Empty(t, ring.Replicas("service-a"))
}

func TestHashRing_Primary_Deterministic(t *testing.T) {
	ring := NewHashRing(nodeSet("node-1", "node-2", "node-3", "node-4"), 3, false)

	first, err := ring.Primary("service-a")
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		again, err := ring.Primary("service-a")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestHashRing_Replicas_Deterministic(t *testing.T) {
	ring := NewHashRing(nodeSet("node-1", "node-2", "node-3", "node-4", "node-5"), 3, false)

	first := ring.Replicas("service-a")
	assert.Len(t, first, 3)

	for i := 0; i < 100; i++ {
		assert.Equal(t, first, ring.Replicas("service-a"))
	}
}

func TestHashRing_Replicas_RingSmallerThanFactor(t *testing.T) {
	ring := NewHashRing(nodeSet("node-1", "node-2"), 3, false)

	replicas := ring.Replicas("service-a")
	assert.Len(t, replicas, 2)
}

func TestHashRing_Replicas_ReplicateAll(t *testing.T) {
	nodes := nodeSet("node-1", "node-2", "node-3", "node-4", "node-5")
	ring := NewHashRing(nodes, 2, true)

	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("service-%d", i)
		assert.Equal(t, nodes, ring.Replicas(name))
	}
}

func TestHashRing_Replicas_ContainsPrimary(t *testing.T) {
	ring := NewHashRing(nodeSet("node-1", "node-2", "node-3", "node-4"), 2, false)

	for i := 0; i < 50; i++ {
		name := fmt.Sprintf("service-%d", i)
		primary, err := ring.Primary(name)
		require.NoError(t, err)
		assert.Contains(t, ring.Replicas(name), primary)
	}
}

func TestHashRing_Refresh_MinimalDisruption(t *testing.T) {
	const nodes = 10
	const names = 2000

	ids := make([]string, 0, nodes)
	for i := 0; i < nodes; i++ {
		ids = append(ids, fmt.Sprintf("node-%d", i))
	}

	ring := NewHashRing(nodeSet(ids...), 3, false)
	before := make(map[string]model.NodeID, names)
	for i := 0; i < names; i++ {
		name := fmt.Sprintf("service-%d", i)
		primary, err := ring.Primary(name)
		require.NoError(t, err)
		before[name] = primary
	}

	// drop one node; roughly 1/N of names should move
	ring.Refresh(nodeSet(ids[1:]...))

	remapped := 0
	for name, old := range before {
		primary, err := ring.Primary(name)
		require.NoError(t, err)
		if primary != old {
			remapped++
			// displaced names must have belonged to the removed node
			assert.Equal(t, model.NodeID(ids[0]), old)
		}
	}

	fraction := float64(remapped) / names
	assert.Greater(t, fraction, 0.0)
	assert.Less(t, fraction, 2.5/nodes, "too many names remapped after removing one node")
}

func TestHashRing_Refresh_RestoresPlacement(t *testing.T) {
	original := nodeSet("node-1", "node-2", "node-3")
	ring := NewHashRing(original, 2, false)

	before := ring.Replicas("service-a")
	ring.Refresh(nodeSet("node-1", "node-2", "node-3", "node-4"))
	ring.Refresh(original)

	assert.Equal(t, before, ring.Replicas("service-a"))
	assert.Equal(t, 3, ring.NodeCount())
}
