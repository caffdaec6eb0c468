package shamap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareIdentical(t *testing.T) {
	sm := buildStateMap(t, randomKeys(60, 100))
	snap, err := sm.Snapshot(false)
	require.NoError(t, err)

	delta, ok, err := sm.Compare(snap, 10)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, delta)

	delta, ok, err = sm.Compare(sm, 10)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, delta)
}

func TestCompareClassifies(t *testing.T) {
	keys := randomKeys(61, 300)
	base := buildStateMap(t, keys)
	other, err := base.Snapshot(true)
	require.NoError(t, err)

	added := hexKey("0badc0de")
	_, err = other.Insert(NodeTypeAccountState, itemFor(added, "added"))
	require.NoError(t, err)
	_, err = other.Remove(keys[0])
	require.NoError(t, err)
	_, err = other.Update(NodeTypeAccountState, itemFor(keys[1], "modified"))
	require.NoError(t, err)

	delta, ok, err := base.Compare(other, 100)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, delta, 3)

	assert.Equal(t, DiffAdded, delta[added].Type())
	assert.Nil(t, delta[added].First)
	assert.Equal(t, []byte("added"), delta[added].Second.Data())

	assert.Equal(t, DiffRemoved, delta[keys[0]].Type())
	assert.Nil(t, delta[keys[0]].Second)

	assert.Equal(t, DiffModified, delta[keys[1]].Type())
	assert.Equal(t, []byte("modified"), delta[keys[1]].Second.Data())

	// the reverse comparison mirrors every entry
	reverse, ok, err := other.Compare(base, 100)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, reverse, len(delta))
	for key, d := range delta {
		r, found := reverse[key]
		require.True(t, found)
		assert.Equal(t, d.First, r.Second)
		assert.Equal(t, d.Second, r.First)
	}
	assert.Equal(t, DiffRemoved, reverse[added].Type())
	assert.Equal(t, DiffAdded, reverse[keys[0]].Type())
}

func TestCompareLeafAgainstSubtree(t *testing.T) {
	build := func(entries map[string]string) *SHAMap {
		sm := newTestMap(TypeState)
		for k, v := range entries {
			_, err := sm.Insert(NodeTypeAccountState, itemFor(hexKey(k), v))
			require.NoError(t, err)
		}
		return sm
	}

	t.Run("matching key inside", func(t *testing.T) {
		a := build(map[string]string{"51": "old", "a1": "same"})
		b := build(map[string]string{"51": "new", "52": "extra", "a1": "same"})

		delta, ok, err := a.Compare(b, 10)
		require.NoError(t, err)
		require.True(t, ok)
		require.Len(t, delta, 2)
		assert.Equal(t, DiffModified, delta[hexKey("51")].Type())
		assert.Equal(t, DiffAdded, delta[hexKey("52")].Type())

		reverse, _, err := b.Compare(a, 10)
		require.NoError(t, err)
		assert.Equal(t, DiffModified, reverse[hexKey("51")].Type())
		assert.Equal(t, DiffRemoved, reverse[hexKey("52")].Type())
	})

	t.Run("key absent inside", func(t *testing.T) {
		a := build(map[string]string{"53": "alone"})
		b := build(map[string]string{"51": "x", "52": "y"})

		delta, ok, err := a.Compare(b, 10)
		require.NoError(t, err)
		require.True(t, ok)
		require.Len(t, delta, 3)
		assert.Equal(t, DiffRemoved, delta[hexKey("53")].Type())
		assert.Equal(t, DiffAdded, delta[hexKey("51")].Type())
		assert.Equal(t, DiffAdded, delta[hexKey("52")].Type())
	})

	t.Run("two different leaves", func(t *testing.T) {
		a := build(map[string]string{"61": "a"})
		b := build(map[string]string{"62": "b"})

		delta, ok, err := a.Compare(b, 10)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, DiffRemoved, delta[hexKey("61")].Type())
		assert.Equal(t, DiffAdded, delta[hexKey("62")].Type())
	})
}

func TestCompareTooDifferent(t *testing.T) {
	full := buildStateMap(t, randomKeys(62, 100))
	empty := newTestMap(TypeState)

	_, ok, err := full.Compare(empty, 10)
	require.NoError(t, err)
	assert.False(t, ok)

	delta, ok, err := empty.Compare(full, 1000)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, delta, 100)
	for _, d := range delta {
		assert.Equal(t, DiffAdded, d.Type())
	}

	assert.Equal(t, "modified", DiffModified.String())
}
