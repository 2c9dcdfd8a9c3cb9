package model

import (
	"fmt"
	"time"
)

// RecordKind discriminates the reconfiguration state transitions a
// record can describe
type RecordKind string

const (
	// KindStartEpoch records the intent to start a new epoch for a name
	KindStartEpoch RecordKind = "START_EPOCH"
	// KindReconfigComplete records that an epoch transition finished
	KindReconfigComplete RecordKind = "RECONFIGURATION_COMPLETE"
	// KindMerge records the merge of one replica group into another
	KindMerge RecordKind = "RECONFIGURATION_MERGE"
	// KindPrevDropComplete records best-effort cleanup of the previous
	// epoch's state
	KindPrevDropComplete RecordKind = "PREV_DROP_COMPLETE"
)

// IsTerminal reports whether the kind closes out a reconfiguration.
// Terminal records are only issued after their preconditions are locally
// confirmed, which is what makes the early-notification exception in the
// commit engine safe.
func (k RecordKind) IsTerminal() bool {
	return k == KindReconfigComplete || k == KindPrevDropComplete
}

// IsMerge reports whether the kind is a merge. Merges are idempotent and
// may legitimately be reported executed more than once.
func (k RecordKind) IsMerge() bool {
	return k == KindMerge
}

// ReconfigRecord is an intended ownership transition for one logical
// service name, the unit of work the commit engine drives into the
// replicated log.
//
// Identity is (Name, Epoch, Kind) only; see Key. Members is payload:
// two records describing the same logical transition with different
// membership details are the same commit target.
type ReconfigRecord struct {
	Name      string     `json:"name"`
	Epoch     int        `json:"epoch"`
	Kind      RecordKind `json:"kind"`
	Initiator NodeID     `json:"initiator"`
	Members   []NodeID   `json:"members,omitempty"`
	CreatedAt time.Time  `json:"created_at,omitempty"`
}

// RecordKey is the equality key of a ReconfigRecord, usable as a map key
type RecordKey struct {
	Name  string
	Epoch int
	Kind  RecordKind
}

// Key returns the record's equality key
func (r *ReconfigRecord) Key() RecordKey {
	return RecordKey{Name: r.Name, Epoch: r.Epoch, Kind: r.Kind}
}

// Summary returns a compact human-readable form for log fields
func (r *ReconfigRecord) Summary() string {
	return fmt.Sprintf("%s:%d:%s", r.Name, r.Epoch, r.Kind)
}

// DominanceFunc reports whether a is strictly dominated by b, i.e. b
// represents a later or equal state transition for the same service so
// that a need never be committed once b is known committed. Callers only
// ever compare records with the same service name; implementations are
// not required to be meaningful across names.
type DominanceFunc func(a, b *ReconfigRecord) bool

// EpochDominance is the default comparator: a record is dominated by any
// record for a strictly later epoch of the same name, and a start-epoch
// intent is dominated by a terminal record for the same epoch.
func EpochDominance(a, b *ReconfigRecord) bool {
	if a.Name != b.Name {
		return false
	}
	if b.Epoch > a.Epoch {
		return true
	}
	return b.Epoch == a.Epoch && a.Kind == KindStartEpoch && b.Kind.IsTerminal()
}
