package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReconfigRecord_Key_IgnoresPayload(t *testing.T) {
	a := &ReconfigRecord{Name: "svc", Epoch: 3, Kind: KindStartEpoch, Initiator: "rc-1", Members: []NodeID{"ar-1"}}
	b := &ReconfigRecord{Name: "svc", Epoch: 3, Kind: KindStartEpoch, Initiator: "rc-2", Members: []NodeID{"ar-2", "ar-3"}}

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), (&ReconfigRecord{Name: "svc", Epoch: 4, Kind: KindStartEpoch}).Key())
	assert.NotEqual(t, a.Key(), (&ReconfigRecord{Name: "svc", Epoch: 3, Kind: KindReconfigComplete}).Key())
}

func TestRecordKind_Classification(t *testing.T) {
	assert.True(t, KindReconfigComplete.IsTerminal())
	assert.True(t, KindPrevDropComplete.IsTerminal())
	assert.False(t, KindStartEpoch.IsTerminal())
	assert.False(t, KindMerge.IsTerminal())

	assert.True(t, KindMerge.IsMerge())
	assert.False(t, KindReconfigComplete.IsMerge())
}

func TestEpochDominance(t *testing.T) {
	start3 := &ReconfigRecord{Name: "svc", Epoch: 3, Kind: KindStartEpoch}
	complete3 := &ReconfigRecord{Name: "svc", Epoch: 3, Kind: KindReconfigComplete}
	start5 := &ReconfigRecord{Name: "svc", Epoch: 5, Kind: KindStartEpoch}
	otherName := &ReconfigRecord{Name: "other", Epoch: 9, Kind: KindReconfigComplete}

	// later epoch dominates regardless of kind
	assert.True(t, EpochDominance(start3, start5))
	assert.True(t, EpochDominance(complete3, start5))
	assert.False(t, EpochDominance(start5, start3))

	// same epoch: terminal closes out the start intent, not the reverse
	assert.True(t, EpochDominance(start3, complete3))
	assert.False(t, EpochDominance(complete3, start3))

	// never across names, even with a later epoch
	assert.False(t, EpochDominance(start3, otherName))

	// a record does not dominate itself
	assert.False(t, EpochDominance(start3, start3))
}
