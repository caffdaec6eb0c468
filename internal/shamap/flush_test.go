package shamap

import (
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeJamon/goshamap/internal/crypto/common"
	"github.com/LeJamon/goshamap/internal/log"
)

func TestFlushUnbacked(t *testing.T) {
	sm := buildStateMap(t, randomKeys(40, 10))
	_, err := sm.FlushDirty(0)
	assert.ErrorIs(t, err, ErrNotBacked)
	assert.Zero(t, sm.DropCache())
}

func TestFlushAndReload(t *testing.T) {
	family := NewMemoryFamily()
	keys := randomKeys(41, 500)
	sm := buildStateMap(t, keys, WithFamily(family))
	hash := sm.Hash()

	dirty := sm.DirtyCount()
	require.Positive(t, dirty)

	written, err := sm.FlushDirty(0)
	require.NoError(t, err)
	assert.Equal(t, dirty, written)
	assert.Zero(t, sm.DirtyCount())
	assert.Equal(t, written, family.Len())

	// every stored node verifies against its key
	for _, k := range keys[:20] {
		item, _, err := sm.Peek(k)
		require.NoError(t, err)
		leaf := newLeafNode(NodeTypeAccountState, item, 0)
		data, err := family.Fetch(RootNodeID(), leaf.Hash())
		require.NoError(t, err)
		assert.Equal(t, leaf.Hash(), common.Sha512Half(data))
	}

	again, err := sm.FlushDirty(0)
	require.NoError(t, err)
	assert.Zero(t, again)

	dropped := sm.DropCache()
	assert.Equal(t, BranchFactor, dropped)
	assert.Equal(t, hash, sm.Hash())

	before := family.Fetches()
	for _, k := range keys {
		has, err := sm.Has(k)
		require.NoError(t, err)
		require.True(t, has)
	}
	assert.Greater(t, family.Fetches(), before)
	assert.NoError(t, sm.Invariants())

	// a fresh map over the same store sees the same content
	reloaded := newTestMap(TypeState, WithFamily(family))
	ok, err := reloaded.FetchRoot(hash, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, hash, reloaded.Hash())
	assertSameItems(t, sm, reloaded)

	// and can keep editing it
	_, err = reloaded.Remove(keys[0])
	require.NoError(t, err)
	assert.NotEqual(t, hash, reloaded.Hash())
	assert.Equal(t, hash, sm.Hash())
}

func TestPartialFlush(t *testing.T) {
	family := NewMemoryFamily()
	sm := buildStateMap(t, randomKeys(42, 200), WithFamily(family))
	total := sm.DirtyCount()

	written, err := sm.FlushDirty(7)
	require.NoError(t, err)
	assert.Equal(t, 7, written)
	assert.Equal(t, total-7, sm.DirtyCount())
	require.NoError(t, sm.Invariants())

	for sm.DirtyCount() > 0 {
		_, err := sm.FlushDirty(50)
		require.NoError(t, err)
		require.NoError(t, sm.Invariants())
	}
	assert.Equal(t, total, family.Len())
}

func TestFlushAfterSnapshotEdits(t *testing.T) {
	family := NewMemoryFamily()
	sm := buildStateMap(t, randomKeys(43, 100), WithFamily(family))
	_, err := sm.FlushDirty(0)
	require.NoError(t, err)
	stored := family.Len()

	next, err := sm.Snapshot(true)
	require.NoError(t, err)
	_, err = next.Insert(NodeTypeAccountState, itemFor(hexKey("5a5a"), "new"))
	require.NoError(t, err)
	assert.Zero(t, sm.DirtyCount())

	written, err := next.FlushDirty(0)
	require.NoError(t, err)
	assert.Zero(t, next.DirtyCount())
	assert.Equal(t, stored+written, family.Len())
	assert.NotEqual(t, sm.Hash(), next.Hash())
}

func TestFlushStoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	family := NewMockFamily(ctrl)
	failure := errors.New("disk full")
	family.EXPECT().StoreBatch(gomock.Any()).Return(failure).Times(1)

	sm := buildStateMap(t, randomKeys(44, 30), WithFamily(family))
	dirty := sm.DirtyCount()

	_, err := sm.FlushDirty(0)
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, dirty, sm.DirtyCount(), "a failed flush leaves nodes dirty")
}

func TestFlushWritesOneBatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	family := NewMockFamily(ctrl)

	sm := buildStateMap(t, randomKeys(45, 30), WithFamily(family), WithLedgerSeq(9))
	dirty := sm.DirtyCount()

	family.EXPECT().StoreBatch(gomock.Any()).DoAndReturn(func(entries []FlushEntry) error {
		assert.Len(t, entries, dirty)
		root := entries[len(entries)-1]
		assert.True(t, root.NodeID.IsRoot(), "root is written last")
		for _, e := range entries {
			assert.Equal(t, e.Hash, common.Sha512Half(e.Data))
			assert.Equal(t, uint32(9), e.LedgerSeq)
			assert.Equal(t, TypeState, e.MapType)
		}
		return nil
	}).Times(1)

	written, err := sm.FlushDirty(0)
	require.NoError(t, err)
	assert.Equal(t, dirty, written)
}

func TestCorruptStoreInvalidatesMap(t *testing.T) {
	mem := NewMemoryFamily()
	keys := randomKeys(46, 100)
	src := buildStateMap(t, keys, WithFamily(mem))
	_, err := src.FlushDirty(0)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	family := NewMockFamily(ctrl)
	family.EXPECT().Fetch(gomock.Any(), gomock.Any()).DoAndReturn(func(id NodeID, hash [32]byte) ([]byte, error) {
		if id.IsRoot() {
			return mem.Fetch(id, hash)
		}
		return []byte("garbage that hashes to nothing"), nil
	}).AnyTimes()

	sm := newTestMap(TypeState, WithFamily(family))
	ok, err := sm.FetchRoot(src.Hash(), nil)
	require.NoError(t, err)
	require.True(t, ok)

	_, _, err = sm.Peek(keys[0])
	require.ErrorIs(t, err, ErrCorruptNode)
	var corrupt *CorruptNodeError
	require.True(t, errors.As(err, &corrupt))
	assert.Equal(t, uint8(1), corrupt.NodeID.Depth)
	assert.Equal(t, StateInvalid, sm.State())

	_, err = sm.Insert(NodeTypeAccountState, itemFor(hexKey("01"), "x"))
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = sm.Snapshot(true)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestMissingNodeInStore(t *testing.T) {
	family := NewMemoryFamily()
	keys := randomKeys(47, 100)
	sm := buildStateMap(t, keys, WithFamily(family))
	_, err := sm.FlushDirty(0)
	require.NoError(t, err)
	sm.DropCache()

	branch := RootNodeID().SelectBranch(keys[0])
	lost := sm.root.ChildHash(branch)
	family.Delete(lost)

	_, _, err = sm.Peek(keys[0])
	require.ErrorIs(t, err, ErrMissingNode)
	var missing *MissingNodeError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, lost, missing.Hash)
	assert.True(t, missing.NodeID.Equal(RootNodeID().ChildNodeID(branch)))

	// a failed removal leaves the map untouched
	hash := sm.Hash()
	_, err = sm.Remove(keys[0])
	assert.ErrorIs(t, err, ErrMissingNode)
	assert.Equal(t, hash, sm.Hash())
	assert.Equal(t, StateModifying, sm.State())
}

func TestFetchErrorPropagates(t *testing.T) {
	mem := NewMemoryFamily()
	src := buildStateMap(t, randomKeys(48, 20), WithFamily(mem))
	_, err := src.FlushDirty(0)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	family := NewMockFamily(ctrl)
	ioErr := errors.New("read timeout")
	family.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(nil, ioErr).Times(1)

	sm := newTestMap(TypeState, WithFamily(family))
	ok, err := sm.FetchRoot(src.Hash(), nil)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ioErr)
}

func TestTreeNodeCacheSharing(t *testing.T) {
	family := NewMemoryFamily()
	src := buildStateMap(t, randomKeys(49, 100), WithFamily(family))
	_, err := src.FlushDirty(0)
	require.NoError(t, err)

	cache, err := NewTreeNodeCache(1024)
	require.NoError(t, err)

	a := newTestMap(TypeState, WithFamily(family), WithTreeNodeCache(cache))
	b := newTestMap(TypeState, WithFamily(family), WithTreeNodeCache(cache))
	for _, m := range []*SHAMap{a, b} {
		ok, err := m.FetchRoot(src.Hash(), nil)
		require.NoError(t, err)
		require.True(t, ok)
		assertSameItems(t, src, m)
	}

	assert.Same(t, a.root, b.root)
	assert.Same(t, a.root.Child(3), b.root.Child(3))
	assert.Positive(t, cache.Len())

	// edits on one map do not leak into the shared nodes
	_, err = a.Insert(NodeTypeAccountState, itemFor(hexKey("3"), "x"))
	require.NoError(t, err)
	assert.Equal(t, src.Hash(), b.Hash())
	assertSameItems(t, src, b)

	node, ok := cache.Get(src.Hash())
	require.True(t, ok)
	assert.Equal(t, src.Hash(), node.Hash())

	cache.Purge()
	assert.Zero(t, cache.Len())
}

func TestFullBelowCache(t *testing.T) {
	c := NewFullBelowCache(0)
	gen := c.Generation()
	assert.NotZero(t, gen)

	h := hexKey("ab")
	assert.False(t, c.TouchIfExists(h))
	c.Insert(h)
	assert.True(t, c.TouchIfExists(h))
	assert.Equal(t, 1, c.Size())
	assert.Equal(t, 1, c.Sweep())

	c.Clear()
	assert.False(t, c.TouchIfExists(h))
	assert.Equal(t, gen+1, c.Generation())
	assert.Zero(t, c.Size())
}

func TestNodeStoreFamily(t *testing.T) {
	family, err := NewMemoryNodeStoreFamily()
	require.NoError(t, err)
	defer family.Close()

	keys := randomKeys(50, 300)
	sm := buildStateMap(t, keys, WithFamily(family))
	written, err := sm.FlushDirty(0)
	require.NoError(t, err)

	stats := family.Stats()
	assert.Equal(t, uint64(written), stats.Writes)

	reloaded := New(TypeState, WithFamily(family), WithLogger(log.Discard()))
	ok, err := reloaded.FetchRoot(sm.Hash(), nil)
	require.NoError(t, err)
	require.True(t, ok)
	assertSameItems(t, sm, reloaded)
	assert.NoError(t, family.Sweep())

	missing, err := family.Fetch(RootNodeID(), hexKey("ffff"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}
