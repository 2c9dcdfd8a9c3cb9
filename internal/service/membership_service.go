package service

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/helixdb/reconfig/internal/algorithm"
	"github.com/helixdb/reconfig/internal/directory"
	"github.com/helixdb/reconfig/internal/metrics"
	"github.com/helixdb/reconfig/internal/model"
)

// ErrEmptyGroup is returned when an operation requires a nonempty node group
var ErrEmptyGroup = errors.New("a nonempty node group must be specified")

// MembershipService maps logical service names to the nodes responsible
// for them. It owns one consistent hash ring per role, rebuilt lazily
// and only when the directory's live membership (minus nodes slated for
// removal) actually changed since the last query.
//
// Slating a node excludes it from all future ring placements immediately
// while keeping its directory address resolvable, so that in-flight
// deletion traffic can still reach it until PurgeSlated succeeds.
type MembershipService struct {
	dir     directory.Directory
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	rings    map[model.NodeRole]*algorithm.HashRing
	snapshot map[model.NodeRole]map[model.NodeID]struct{}
	slated   map[model.NodeRole]map[model.NodeID]struct{}
}

// NewMembershipService creates a membership service over the directory.
// replicationFactor sizes the replica sets returned by ReplicasFor;
// replicateAllWorkers switches the worker-class ring to replicate-all
// mode, where every worker is responsible for every name.
func NewMembershipService(
	dir directory.Directory,
	replicationFactor int,
	replicateAllWorkers bool,
	m *metrics.Metrics,
	logger *zap.Logger,
) *MembershipService {
	coordinators := dir.Members(model.RoleCoordinator)
	workers := dir.Members(model.RoleWorker)

	return &MembershipService{
		dir:     dir,
		logger:  logger,
		metrics: m,
		rings: map[model.NodeRole]*algorithm.HashRing{
			model.RoleCoordinator: algorithm.NewHashRing(coordinators, replicationFactor, false),
			model.RoleWorker:      algorithm.NewHashRing(workers, replicationFactor, replicateAllWorkers),
		},
		snapshot: map[model.NodeRole]map[model.NodeID]struct{}{
			model.RoleCoordinator: coordinators,
			model.RoleWorker:      workers,
		},
		slated: map[model.NodeRole]map[model.NodeID]struct{}{
			model.RoleCoordinator: {},
			model.RoleWorker:      {},
		},
	}
}

// ReplicasFor returns the replica group a name hashes to on the role's
// ring, rebuilding the ring first if live membership changed
func (s *MembershipService) ReplicasFor(role model.NodeRole, name string) map[model.NodeID]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshLocked(role)
	return s.rings[role].Replicas(name)
}

// PrimaryFor returns the first node a name hashes to on the role's ring
func (s *MembershipService) PrimaryFor(role model.NodeRole, name string) (model.NodeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshLocked(role)
	return s.rings[role].Primary(name)
}

// AddressesFor resolves the replica group for a name to addresses,
// skipping nodes whose address is unknown
func (s *MembershipService) AddressesFor(role model.NodeRole, name string) []model.NodeAddress {
	replicas := s.ReplicasFor(role, name)
	addrs := make([]model.NodeAddress, 0, len(replicas))
	for id := range replicas {
		if addr := s.AddressOf(id); addr != nil {
			addrs = append(addrs, *addr)
		}
	}
	return addrs
}

// AddressOf resolves a node's public address via the directory, or nil
// if the directory knows no host for it. A missing port is logged as a
// warning unless the node is slated for removal, where it is expected.
func (s *MembershipService) AddressOf(id model.NodeID) *model.NodeAddress {
	return s.resolve(id, s.dir.HostOf(id))
}

// BindAddressOf resolves a node's bindable address, which can be a
// private address when the node sits behind a NAT
func (s *MembershipService) BindAddressOf(id model.NodeID) *model.NodeAddress {
	return s.resolve(id, s.dir.BindHostOf(id))
}

func (s *MembershipService) resolve(id model.NodeID, host string) *model.NodeAddress {
	port := s.dir.PortOf(id)
	if port == directory.UnknownPort && !s.isSlated(id) {
		s.logger.Warn("No port found for node", zap.String("node_id", string(id)))
	}
	if host == "" {
		return nil
	}
	return &model.NodeAddress{Host: host, Port: port}
}

// SlateForRemoval marks a node for removal: it disappears from ring
// placements on the next query, but its address stays resolvable until
// PurgeSlated confirms removal. Returns the node's current address.
func (s *MembershipService) SlateForRemoval(role model.NodeRole, id model.NodeID) *model.NodeAddress {
	s.mu.Lock()
	s.slated[role][id] = struct{}{}
	slated := len(s.slated[role])
	s.mu.Unlock()

	s.metrics.RecordSlated(string(role), slated)
	s.logger.Info("Node slated for removal",
		zap.String("role", string(role)),
		zap.String("node_id", string(id)))
	return s.AddressOf(id)
}

// PurgeSlated attempts to remove every slated node of the role from the
// directory. A node leaves the shadow set only when the directory
// confirms removal by returning its previous address. Returns true iff
// no slated nodes remain. Safe to call repeatedly.
func (s *MembershipService) PurgeSlated(role model.NodeRole) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.slated[role] {
		if prev := s.dir.RemoveNode(role, id); prev != nil {
			if host := s.dir.HostOf(id); host != "" {
				s.logger.DPanic("Node still resolvable after confirmed removal",
					zap.String("node_id", string(id)),
					zap.String("host", host))
			}
			delete(s.slated[role], id)
			s.metrics.RecordPurge(string(role), "removed")
			s.logger.Info("Purged slated node",
				zap.String("role", string(role)),
				zap.String("node_id", string(id)),
				zap.String("prev_addr", prev.String()))
		} else {
			s.metrics.RecordPurge(string(role), "pending")
		}
	}

	s.metrics.RecordSlated(string(role), len(s.slated[role]))
	return len(s.slated[role]) == 0
}

// AssignAddressesToIdentities maps a target address set to node
// identities with maximal overlap with prevOwners. A previously owning
// node keeps its assignment whenever its address is still in the target
// set; remaining addresses are filled with any live, non-slated worker
// whose address matches. Nontrivial only because distinct identities can
// share a visible address behind NAT or virtual addressing.
func (s *MembershipService) AssignAddressesToIdentities(hosts []string, prevOwners map[model.NodeID]struct{}) map[model.NodeID]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	assigned := make(map[model.NodeID]struct{})
	unassigned := make([]string, len(hosts))
	copy(unassigned, hosts)

	// previous owners first, in sorted order for determinism
	for _, owner := range sortedIDs(prevOwners) {
		if host := s.dir.HostOf(owner); takeHost(&unassigned, host) {
			assigned[owner] = struct{}{}
		}
	}

	// fill the rest with any live, non-slated worker
	for _, id := range sortedIDs(s.dir.Members(model.RoleWorker)) {
		if _, slated := s.slated[model.RoleWorker][id]; slated {
			continue
		}
		if _, done := assigned[id]; done {
			continue
		}
		if host := s.dir.HostOf(id); takeHost(&unassigned, host) {
			assigned[id] = struct{}{}
		}
	}
	return assigned
}

// SplitByGroup partitions names into batches whose members all hash to
// the same primary under a ring built from groupNodes
func (s *MembershipService) SplitByGroup(names map[string]struct{}, groupNodes map[model.NodeID]struct{}) ([]map[string]struct{}, error) {
	if len(groupNodes) == 0 {
		return nil, fmt.Errorf("cannot split names by group: %w", ErrEmptyGroup)
	}

	ring := algorithm.NewHashRing(groupNodes, 1, false)
	batches := make(map[model.NodeID]map[string]struct{})
	for name := range names {
		primary, err := ring.Primary(name)
		if err != nil {
			return nil, err
		}
		if batches[primary] == nil {
			batches[primary] = make(map[string]struct{})
		}
		batches[primary][name] = struct{}{}
	}

	groups := make([]map[string]struct{}, 0, len(batches))
	for _, batch := range batches {
		groups = append(groups, batch)
	}
	return groups, nil
}

// SameGroup reports whether every name currently hashes to the same
// coordinator primary
func (s *MembershipService) SameGroup(names map[string]struct{}) (bool, error) {
	var first model.NodeID
	for name := range names {
		primary, err := s.PrimaryFor(model.RoleCoordinator, name)
		if err != nil {
			return false, err
		}
		if first == "" {
			first = primary
		} else if first != primary {
			return false, nil
		}
	}
	return true, nil
}

// WorkerAddresses returns up to limit worker addresses, preferring
// distinct /24 prefixes and shuffled so repeated callers spread load
func (s *MembershipService) WorkerAddresses(limit int) []model.NodeAddress {
	var distinct, duplicates []model.NodeAddress
	prefixes := make(map[string]struct{})

	for _, id := range sortedIDs(s.dir.Members(model.RoleWorker)) {
		addr := s.AddressOf(id)
		if addr == nil {
			continue
		}
		prefix := hostPrefix(addr.Host)
		if _, seen := prefixes[prefix]; !seen {
			prefixes[prefix] = struct{}{}
			distinct = append(distinct, *addr)
		} else {
			duplicates = append(duplicates, *addr)
		}
		if len(distinct) >= limit {
			break
		}
	}

	for _, dup := range duplicates {
		if len(distinct) >= limit {
			break
		}
		distinct = append(distinct, dup)
	}

	rand.Shuffle(len(distinct), func(i, j int) {
		distinct[i], distinct[j] = distinct[j], distinct[i]
	})
	if len(distinct) > limit {
		distinct = distinct[:limit]
	}
	return distinct
}

// RandomWorker returns the address of a random worker, or nil when no
// worker address resolves
func (s *MembershipService) RandomWorker() *model.NodeAddress {
	addrs := s.WorkerAddresses(1)
	if len(addrs) == 0 {
		return nil
	}
	return &addrs[0]
}

// Version surfaces the directory version for external consistency checks
func (s *MembershipService) Version() uint64 {
	return s.dir.Version()
}

// refreshLocked rebuilds the role's ring iff live membership minus the
// slated set differs from the cached snapshot. Caller holds s.mu.
func (s *MembershipService) refreshLocked(role model.NodeRole) bool {
	current := s.dir.Members(role)
	for id := range s.slated[role] {
		delete(current, id)
	}
	if setsEqual(current, s.snapshot[role]) {
		return false
	}

	s.snapshot[role] = current
	s.rings[role].Refresh(current)
	s.metrics.RecordRingRebuild(string(role), len(current))
	s.logger.Debug("Ring rebuilt",
		zap.String("role", string(role)),
		zap.Int("nodes", len(current)))
	return true
}

func (s *MembershipService) isSlated(id model.NodeID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, slated := range s.slated {
		if _, ok := slated[id]; ok {
			return true
		}
	}
	return false
}

func setsEqual(a, b map[model.NodeID]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}

func sortedIDs(set map[model.NodeID]struct{}) []model.NodeID {
	ids := make([]model.NodeID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// takeHost removes the first occurrence of host from the slice,
// reporting whether one was found
func takeHost(hosts *[]string, host string) bool {
	if host == "" {
		return false
	}
	for i, h := range *hosts {
		if h == host {
			*hosts = append((*hosts)[:i], (*hosts)[i+1:]...)
			return true
		}
	}
	return false
}

// hostPrefix groups IPv4 hosts by /24 prefix; non-IP hosts group by
// themselves
func hostPrefix(host string) string {
	ip := net.ParseIP(host)
	if v4 := ip.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d", v4[0], v4[1], v4[2])
	}
	return host
}
