package shamap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeJamon/goshamap/internal/log"
)

// recordingFilter counts the nodes a syncing map reports as accepted.
type recordingFilter struct {
	got       map[[32]byte]bool
	fromCache int
}

func newRecordingFilter() *recordingFilter {
	return &recordingFilter{got: make(map[[32]byte]bool)}
}

func (f *recordingFilter) GetNode([32]byte) ([]byte, bool) { return nil, false }

func (f *recordingFilter) GotNode(fromFilter bool, hash [32]byte, _ uint32, _ []byte, _ NodeType) {
	if fromFilter {
		f.fromCache++
	}
	f.got[hash] = true
}

// syncFrom drives dst to completion using src as the peer and returns the
// number of request rounds.
func syncFrom(t *testing.T, src, dst *SHAMap, fatLeaves bool, depth, batch int, filter SyncFilter) int {
	t.Helper()

	res, err := dst.AddRootNode(src.Hash(), src.SerializeRoot(), filter)
	require.NoError(t, err)
	require.Equal(t, AddNodeUseful, res.Status())

	rounds := 0
	for {
		missing, err := dst.GetMissingNodes(batch, filter)
		require.NoError(t, err)
		if len(missing) == 0 {
			return rounds
		}
		rounds++
		require.Less(t, rounds, 10000, "sync does not converge")

		for _, m := range missing {
			nodes, err := src.GetNodeFat(m.NodeID, fatLeaves, depth)
			require.NoError(t, err)
			for _, nd := range nodes {
				res, err := dst.AddKnownNode(nd.NodeID, nd.Data, filter)
				require.NoError(t, err)
				require.False(t, res.IsInvalid(), "node %s rejected", nd.NodeID)
			}
		}
	}
}

func assertSameItems(t *testing.T, want, got *SHAMap) {
	t.Helper()
	var wantItems, gotItems []*Item
	require.NoError(t, want.ForEach(func(i *Item) bool { wantItems = append(wantItems, i); return true }))
	require.NoError(t, got.ForEach(func(i *Item) bool { gotItems = append(gotItems, i); return true }))
	require.Equal(t, len(wantItems), len(gotItems))
	for i := range wantItems {
		assert.True(t, wantItems[i].Equal(gotItems[i]), "item %d differs", i)
	}
}

func TestSyncConverges(t *testing.T) {
	src := buildStateMap(t, randomKeys(20, 2000))
	require.NoError(t, src.SetImmutable())

	cases := []struct {
		name      string
		fatLeaves bool
		depth     int
		batch     int
	}{
		{"thin", false, 0, 64},
		{"fat", true, 2, 128},
		{"unbounded", true, 1, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dst := NewSyncing(TypeState, WithLogger(log.Discard()))
			filter := newRecordingFilter()

			rounds := syncFrom(t, src, dst, tc.fatLeaves, tc.depth, tc.batch, filter)
			assert.Positive(t, rounds)

			assert.Equal(t, StateModifying, dst.State())
			assert.Equal(t, src.Hash(), dst.Hash())
			assert.NoError(t, dst.Invariants())
			assertSameItems(t, src, dst)

			complete, err := dst.IsComplete()
			require.NoError(t, err)
			assert.True(t, complete)

			present, missing, err := dst.SyncProgress()
			require.NoError(t, err)
			assert.Zero(t, missing)
			assert.Equal(t, present, len(filter.got))
			assert.Zero(t, filter.fromCache)
		})
	}
}

func TestSyncDeterministicOrder(t *testing.T) {
	src := buildStateMap(t, randomKeys(21, 500))

	first := NewSyncing(TypeState, WithLogger(log.Discard()))
	second := NewSyncing(TypeState, WithLogger(log.Discard()))
	for _, dst := range []*SHAMap{first, second} {
		_, err := dst.AddRootNode(src.Hash(), src.SerializeRoot(), nil)
		require.NoError(t, err)
	}

	a, err := first.GetMissingNodes(0, nil)
	require.NoError(t, err)
	b, err := second.GetMissingNodes(0, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, StateSynching, first.State())

	limited, err := first.GetMissingNodes(3, nil)
	require.NoError(t, err)
	assert.Equal(t, a[:3], limited)
}

func TestSyncRejectsBadNodes(t *testing.T) {
	keys := [][32]byte{}
	for _, p := range []string{"1", "2", "3"} {
		for _, k := range randomKeys(int64(len(p)+len(keys)), 40) {
			k[0] = k[0]&0x0F | hexKey(p)[0]
			keys = append(keys, k)
		}
	}
	src := buildStateMap(t, keys)
	dst := NewSyncing(TypeState, WithLogger(log.Discard()))

	t.Run("root", func(t *testing.T) {
		res, err := dst.AddRootNode(src.Hash(), []byte{1, 2, 3}, nil)
		require.NoError(t, err)
		assert.Equal(t, AddNodeInvalid, res.Status())

		res, err = dst.AddRootNode(hexKey("ff"), src.SerializeRoot(), nil)
		require.NoError(t, err)
		assert.Equal(t, AddNodeInvalid, res.Status())

		res, err = dst.AddRootNode(src.Hash(), src.SerializeRoot(), nil)
		require.NoError(t, err)
		assert.Equal(t, AddNodeUseful, res.Status())

		res, err = dst.AddRootNode(src.Hash(), src.SerializeRoot(), nil)
		require.NoError(t, err)
		assert.Equal(t, AddNodeDuplicate, res.Status())

		res, err = dst.AddRootNode(hexKey("ff"), src.SerializeRoot(), nil)
		require.NoError(t, err)
		assert.Equal(t, AddNodeInvalid, res.Status())

		res, err = dst.AddKnownNode(RootNodeID(), src.SerializeRoot(), nil)
		require.NoError(t, err)
		assert.Equal(t, AddNodeDuplicate, res.Status())
	})

	missing, err := dst.GetMissingNodes(1, nil)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	want := missing[0]
	fat, err := src.GetNodeFat(want.NodeID, false, 0)
	require.NoError(t, err)
	good := fat[0].Data

	t.Run("tampered", func(t *testing.T) {
		before, err := dst.GetMissingNodes(0, nil)
		require.NoError(t, err)

		bad := append([]byte(nil), good...)
		bad[0] ^= 0xFF
		res, err := dst.AddKnownNode(want.NodeID, bad, nil)
		require.NoError(t, err)
		assert.True(t, res.IsInvalid())

		res, err = dst.AddKnownNode(want.NodeID, []byte{}, nil)
		require.NoError(t, err)
		assert.True(t, res.IsInvalid())

		after, err := dst.GetMissingNodes(0, nil)
		require.NoError(t, err)
		assert.Equal(t, before, after)
		assert.Equal(t, StateSynching, dst.State())
	})

	t.Run("empty branch", func(t *testing.T) {
		res, err := dst.AddKnownNode(RootNodeID().ChildNodeID(9), good, nil)
		require.NoError(t, err)
		assert.True(t, res.IsInvalid())
	})

	t.Run("not yet requested", func(t *testing.T) {
		deeper := want.NodeID.ChildNodeID(0)
		res, err := dst.AddKnownNode(deeper, good, nil)
		require.NoError(t, err)
		assert.True(t, res.IsInvalid())
	})

	t.Run("accepted once", func(t *testing.T) {
		res, err := dst.AddKnownNode(want.NodeID, good, nil)
		require.NoError(t, err)
		assert.Equal(t, AddNodeUseful, res.Status())

		res, err = dst.AddKnownNode(want.NodeID, good, nil)
		require.NoError(t, err)
		assert.Equal(t, AddNodeDuplicate, res.Status())
	})

	var total AddNodeResult
	total.Combine(AddNodeResult{Good: 2})
	total.Combine(AddNodeResult{Duplicate: 1})
	assert.Equal(t, AddNodeUseful, total.Status())
	total.Combine(AddNodeResult{Bad: 1})
	assert.Equal(t, AddNodeInvalid, total.Status())
	assert.Equal(t, "invalid(good=2, bad=1, dup=1)", total.String())

	// the bad submissions left the map able to finish
	syncRest(t, src, dst)
	assert.Equal(t, src.Hash(), dst.Hash())
}

func syncRest(t *testing.T, src, dst *SHAMap) {
	t.Helper()
	for {
		missing, err := dst.GetMissingNodes(0, nil)
		require.NoError(t, err)
		if len(missing) == 0 {
			return
		}
		for _, m := range missing {
			nodes, err := src.GetNodeFat(m.NodeID, true, 1)
			require.NoError(t, err)
			for _, nd := range nodes {
				_, err := dst.AddKnownNode(nd.NodeID, nd.Data, nil)
				require.NoError(t, err)
			}
		}
	}
}

func TestSyncProgress(t *testing.T) {
	src := buildStateMap(t, randomKeys(22, 300))
	dst := NewSyncing(TypeState, WithLogger(log.Discard()))
	_, err := dst.AddRootNode(src.Hash(), src.SerializeRoot(), nil)
	require.NoError(t, err)

	complete, err := dst.IsComplete()
	require.NoError(t, err)
	assert.False(t, complete)

	present, missing, err := dst.SyncProgress()
	require.NoError(t, err)
	assert.Equal(t, 1, present)
	assert.Equal(t, BranchFactor, missing)
	assert.Equal(t, StateSynching, dst.State(), "progress queries do not end the sync")
}

func TestBackedSyncPersistsNodes(t *testing.T) {
	src := buildStateMap(t, randomKeys(23, 800))
	srcPresent, _, err := src.SyncProgress()
	require.NoError(t, err)

	family := NewMemoryFamily()
	fullBelow := NewFullBelowCache(0)
	dst := NewSyncing(TypeState,
		WithFamily(family),
		WithFullBelowCache(fullBelow),
		WithLogger(log.Discard()),
	)
	syncFrom(t, src, dst, false, 1, 256, nil)

	assert.Equal(t, src.Hash(), dst.Hash())
	assert.Equal(t, srcPresent, family.Len())
	assert.Positive(t, fullBelow.Size())

	// A second map over the same store finds everything locally.
	again := NewSyncing(TypeState,
		WithFamily(family),
		WithFullBelowCache(fullBelow),
		WithLogger(log.Discard()),
	)
	ok, err := again.FetchRoot(src.Hash(), nil)
	require.NoError(t, err)
	require.True(t, ok)

	missing, err := again.GetMissingNodes(0, nil)
	require.NoError(t, err)
	assert.Empty(t, missing)
	assert.Equal(t, StateModifying, again.State())

	// Without the full-below cache the walk loads the store instead.
	fullBelow.Clear()
	third := NewSyncing(TypeState, WithFamily(family), WithLogger(log.Discard()))
	ok, err = third.FetchRoot(src.Hash(), nil)
	require.NoError(t, err)
	require.True(t, ok)
	missing, err = third.GetMissingNodes(0, nil)
	require.NoError(t, err)
	assert.Empty(t, missing)
	assertSameItems(t, src, third)
}

func TestFetchRoot(t *testing.T) {
	sm := NewSyncing(TypeState, WithLogger(log.Discard()))

	ok, err := sm.FetchRoot([32]byte{}, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = sm.FetchRoot(hexKey("abcd"), nil)
	require.NoError(t, err)
	assert.False(t, ok, "unbacked map without filter cannot find a root")
}

func fatTestMap(t *testing.T) *SHAMap {
	t.Helper()
	sm := newTestMap(TypeState)
	for _, p := range []string{"1", "21", "22", "31", "3211", "3212"} {
		_, err := sm.Insert(NodeTypeAccountState, itemFor(hexKey(p), p))
		require.NoError(t, err)
	}
	return sm
}

func TestGetNodeFat(t *testing.T) {
	sm := fatTestMap(t)
	root := RootNodeID()

	cases := []struct {
		name      string
		id        NodeID
		fatLeaves bool
		depth     int
		want      int
	}{
		{"root only", root, false, 0, 1},
		{"root and inner children", root, false, 1, 3},
		{"root and all children", root, true, 1, 4},
		{"two levels", root, true, 2, 8},
		{"single child chain", root.ChildNodeID(3).ChildNodeID(2), false, 0, 2},
		{"leaf", root.ChildNodeID(1), false, 3, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			nodes, err := sm.GetNodeFat(tc.id, tc.fatLeaves, tc.depth)
			require.NoError(t, err)
			assert.Len(t, nodes, tc.want)
			assert.True(t, nodes[0].NodeID.Equal(tc.id))
			for _, nd := range nodes {
				node, err := DeserializeNodeFromWire(nd.Data)
				require.NoError(t, err)
				if leaf, ok := node.(*LeafNode); ok {
					assert.True(t, nd.NodeID.Contains(leaf.Key()))
				}
			}
		})
	}

	_, err := sm.GetNodeFat(root.ChildNodeID(9), false, 0)
	assert.ErrorIs(t, err, ErrNodeNotInMap)
	assert.True(t, errors.Is(err, ErrMissingNode))

	_, err = sm.GetNodeFat(root.ChildNodeID(1).ChildNodeID(5), false, 0)
	assert.ErrorIs(t, err, ErrNodeNotInMap)

	empty := newTestMap(TypeState)
	_, err = empty.GetNodeFat(root, false, 0)
	assert.ErrorIs(t, err, ErrNodeNotInMap)
}
