package shamap

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireInvariantError(t *testing.T, sm *SHAMap, contains string) {
	t.Helper()
	err := sm.Invariants()
	require.Error(t, err)
	var inv *InvariantError
	require.True(t, errors.As(err, &inv))
	assert.Contains(t, inv.Description, contains)
}

func firstBranch(n *InnerNode) int {
	for b := 0; b < BranchFactor; b++ {
		if n.HasBranch(b) {
			return b
		}
	}
	return -1
}

func TestInvariantsDetectHashMismatch(t *testing.T) {
	sm := buildStateMap(t, randomKeys(90, 200))
	require.NoError(t, sm.Invariants())

	inner, ok := sm.root.Child(2).(*InnerNode)
	require.True(t, ok)
	for b := 0; b < BranchFactor; b++ {
		if inner.HasBranch(b) {
			inner.hashes[b][0] ^= 0xFF
			break
		}
	}
	requireInvariantError(t, sm, "does not match content")
}

func TestInvariantsDetectLoneLeaf(t *testing.T) {
	sm := newTestMap(TypeState)
	leaf := newLeafNode(NodeTypeAccountState, itemFor(hexKey("12"), "x"), sm.cowID)
	mid := newInnerNode(sm.cowID)
	mid.setChild(2, leaf)
	root := newInnerNode(sm.cowID)
	root.setChild(1, mid)
	sm.root = root

	requireInvariantError(t, sm, "lone leaf")
}

func TestInvariantsDetectMisplacedLeaf(t *testing.T) {
	sm := newTestMap(TypeState)
	root := newInnerNode(sm.cowID)
	root.setChild(3, newLeafNode(NodeTypeAccountState, itemFor(hexKey("12"), "x"), sm.cowID))
	sm.root = root

	requireInvariantError(t, sm, "outside its position")
}

func TestInvariantsDetectDirtyBelowClean(t *testing.T) {
	family := NewMemoryFamily()
	sm := buildStateMap(t, randomKeys(91, 50), WithFamily(family))
	_, err := sm.FlushDirty(0)
	require.NoError(t, err)
	require.NoError(t, sm.Invariants())

	sm.root.Child(firstBranch(sm.root)).header().dirty.Store(true)
	requireInvariantError(t, sm, "dirty child")
}

func TestInvariantsReportMissingNodes(t *testing.T) {
	family := NewMemoryFamily()
	sm := buildStateMap(t, randomKeys(92, 50), WithFamily(family))
	_, err := sm.FlushDirty(0)
	require.NoError(t, err)
	sm.DropCache()
	lost := firstBranch(sm.root)
	family.Delete(sm.root.ChildHash(lost))

	err = sm.Invariants()
	assert.ErrorIs(t, err, ErrMissingNode)
	requireInvariantError(t, sm, fmt.Sprintf("cannot load branch %d", lost))
}
