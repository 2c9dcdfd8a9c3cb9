package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/helixdb/reconfig/internal/directory"
	"github.com/helixdb/reconfig/internal/model"
)

func newTestDirectory(coordinators, workers int) *directory.MemoryDirectory {
	dir := directory.NewMemoryDirectory()
	for i := 0; i < coordinators; i++ {
		dir.AddNode(model.RoleCoordinator, model.NodeID(fmt.Sprintf("rc-%d", i)),
			model.NodeAddress{Host: fmt.Sprintf("10.0.0.%d", i+1), Port: 3000 + i})
	}
	for i := 0; i < workers; i++ {
		dir.AddNode(model.RoleWorker, model.NodeID(fmt.Sprintf("ar-%d", i)),
			model.NodeAddress{Host: fmt.Sprintf("10.0.1.%d", i+1), Port: 4000 + i})
	}
	return dir
}

func newTestMembership(dir directory.Directory) *MembershipService {
	return NewMembershipService(dir, 3, false, nil, zap.NewNop())
}

func TestMembershipService_ReplicasFor_TracksDirectory(t *testing.T) {
	dir := newTestDirectory(3, 0)
	ms := newTestMembership(dir)

	replicas := ms.ReplicasFor(model.RoleCoordinator, "service-a")
	assert.Len(t, replicas, 3)

	// a node added out-of-band shows up on the next query
	dir.AddNode(model.RoleCoordinator, "rc-new", model.NodeAddress{Host: "10.0.0.9", Port: 3009})

	found := false
	for i := 0; i < 200 && !found; i++ {
		name := fmt.Sprintf("service-%d", i)
		_, found = ms.ReplicasFor(model.RoleCoordinator, name)["rc-new"]
	}
	assert.True(t, found, "new node never appeared in any replica group")
}

func TestMembershipService_SlateForRemoval_ExcludedFromRing(t *testing.T) {
	dir := newTestDirectory(4, 0)
	ms := newTestMembership(dir)

	addr := ms.SlateForRemoval(model.RoleCoordinator, "rc-1")
	require.NotNil(t, addr)

	for i := 0; i < 200; i++ {
		name := fmt.Sprintf("service-%d", i)
		replicas := ms.ReplicasFor(model.RoleCoordinator, name)
		assert.NotContains(t, replicas, model.NodeID("rc-1"))
	}

	// still addressable until purged
	assert.NotNil(t, ms.AddressOf("rc-1"))
}

func TestMembershipService_PurgeSlated_DropsConfirmedOnly(t *testing.T) {
	dir := newTestDirectory(3, 0)
	ms := newTestMembership(dir)

	ms.SlateForRemoval(model.RoleCoordinator, "rc-0")
	assert.True(t, ms.PurgeSlated(model.RoleCoordinator))
	assert.Nil(t, ms.AddressOf("rc-0"))

	// idempotent once empty
	assert.True(t, ms.PurgeSlated(model.RoleCoordinator))
}

// stubbornDirectory refuses node removals, as a directory does when the
// removal has not propagated yet
type stubbornDirectory struct {
	*directory.MemoryDirectory
}

func (d *stubbornDirectory) RemoveNode(role model.NodeRole, id model.NodeID) *model.NodeAddress {
	return nil
}

func TestMembershipService_PurgeSlated_RetriesUnconfirmed(t *testing.T) {
	dir := &stubbornDirectory{MemoryDirectory: newTestDirectory(3, 0)}
	ms := newTestMembership(dir)

	ms.SlateForRemoval(model.RoleCoordinator, "rc-0")
	assert.False(t, ms.PurgeSlated(model.RoleCoordinator))

	// unconfirmed nodes stay slated and stay addressable
	assert.NotNil(t, ms.AddressOf("rc-0"))
	assert.False(t, ms.PurgeSlated(model.RoleCoordinator))
}

func TestMembershipService_AddressOf_UnknownNode(t *testing.T) {
	ms := newTestMembership(newTestDirectory(1, 0))
	assert.Nil(t, ms.AddressOf("no-such-node"))
}

func TestMembershipService_AssignAddressesToIdentities_PrefersPreviousOwners(t *testing.T) {
	dir := directory.NewMemoryDirectory()
	// two identities behind the same visible address
	dir.AddNode(model.RoleWorker, "node-a", model.NodeAddress{Host: "10.1.0.1", Port: 4001})
	dir.AddNode(model.RoleWorker, "node-d", model.NodeAddress{Host: "10.1.0.1", Port: 4004})
	dir.AddNode(model.RoleWorker, "node-b", model.NodeAddress{Host: "10.1.0.2", Port: 4002})
	dir.AddNode(model.RoleWorker, "node-c", model.NodeAddress{Host: "10.1.0.3", Port: 4003})
	ms := newTestMembership(dir)

	prevOwners := map[model.NodeID]struct{}{"node-a": {}, "node-b": {}}
	assigned := ms.AssignAddressesToIdentities([]string{"10.1.0.1", "10.1.0.3"}, prevOwners)

	assert.Contains(t, assigned, model.NodeID("node-a"), "address-stable previous owner must win")
	assert.NotContains(t, assigned, model.NodeID("node-d"))
	assert.Contains(t, assigned, model.NodeID("node-c"))
	assert.NotContains(t, assigned, model.NodeID("node-b"))
	assert.Len(t, assigned, 2)
}

func TestMembershipService_AssignAddressesToIdentities_SkipsSlated(t *testing.T) {
	dir := directory.NewMemoryDirectory()
	dir.AddNode(model.RoleWorker, "node-a", model.NodeAddress{Host: "10.1.0.1", Port: 4001})
	dir.AddNode(model.RoleWorker, "node-b", model.NodeAddress{Host: "10.1.0.1", Port: 4002})
	ms := newTestMembership(dir)

	ms.SlateForRemoval(model.RoleWorker, "node-a")
	assigned := ms.AssignAddressesToIdentities([]string{"10.1.0.1"}, nil)

	assert.Equal(t, map[model.NodeID]struct{}{"node-b": {}}, assigned)
}

func TestMembershipService_SplitByGroup_EmptyGroup(t *testing.T) {
	ms := newTestMembership(newTestDirectory(3, 0))

	_, err := ms.SplitByGroup(map[string]struct{}{"a": {}}, nil)
	assert.ErrorIs(t, err, ErrEmptyGroup)
}

func TestMembershipService_SplitByGroup_PartitionsByPrimary(t *testing.T) {
	ms := newTestMembership(newTestDirectory(3, 0))

	names := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		names[fmt.Sprintf("service-%d", i)] = struct{}{}
	}
	group := map[model.NodeID]struct{}{"rc-0": {}, "rc-1": {}, "rc-2": {}}

	batches, err := ms.SplitByGroup(names, group)
	require.NoError(t, err)

	total := 0
	for _, batch := range batches {
		require.NotEmpty(t, batch)
		total += len(batch)

		same, err := ms.SameGroup(batch)
		require.NoError(t, err)
		assert.True(t, same, "names within a batch must share a primary")
	}
	assert.Equal(t, len(names), total)
}

func TestMembershipService_SameGroup_DifferentPrimaries(t *testing.T) {
	ms := newTestMembership(newTestDirectory(5, 0))

	// probe until two names land on different primaries
	base, err := ms.PrimaryFor(model.RoleCoordinator, "service-0")
	require.NoError(t, err)
	for i := 1; i < 500; i++ {
		name := fmt.Sprintf("service-%d", i)
		primary, err := ms.PrimaryFor(model.RoleCoordinator, name)
		require.NoError(t, err)
		if primary != base {
			same, err := ms.SameGroup(map[string]struct{}{"service-0": {}, name: {}})
			require.NoError(t, err)
			assert.False(t, same)
			return
		}
	}
	t.Fatal("all probed names hashed to the same primary")
}

func TestMembershipService_WorkerAddresses_PrefersDistinctPrefixes(t *testing.T) {
	dir := directory.NewMemoryDirectory()
	dir.AddNode(model.RoleWorker, "ar-0", model.NodeAddress{Host: "10.1.0.1", Port: 4000})
	dir.AddNode(model.RoleWorker, "ar-1", model.NodeAddress{Host: "10.1.0.2", Port: 4001})
	dir.AddNode(model.RoleWorker, "ar-2", model.NodeAddress{Host: "10.2.0.1", Port: 4002})
	ms := newTestMembership(dir)

	addrs := ms.WorkerAddresses(2)
	assert.Len(t, addrs, 2)

	prefixes := make(map[string]int)
	for _, addr := range addrs {
		prefixes[addr.Host[:4]]++
	}
	assert.Len(t, prefixes, 2, "expected addresses from distinct /24 prefixes")
}

func TestMembershipService_Version_PassThrough(t *testing.T) {
	dir := newTestDirectory(1, 1)
	ms := newTestMembership(dir)

	before := ms.Version()
	dir.AddNode(model.RoleWorker, "ar-extra", model.NodeAddress{Host: "10.0.1.9", Port: 4009})
	assert.Greater(t, ms.Version(), before)
}
