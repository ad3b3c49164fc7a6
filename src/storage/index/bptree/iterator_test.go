package bptree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIterator_EmptyTree(t *testing.T) {
	tree, _ := setupTree(t, 10, 4, 4)

	it, err := tree.Begin()
	require.NoError(t, err)
	assert.True(t, it.IsEnd())

	it, err = tree.BeginAt(5)
	require.NoError(t, err)
	assert.True(t, it.IsEnd())
}

func TestIterator_WalksAcrossLeaves(t *testing.T) {
	tree, _ := setupTree(t, 20, 4, 4)

	mustInsert(t, tree, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)

	it, err := tree.Begin()
	require.NoError(t, err)

	var got []int64
	for !it.IsEnd() {
		got = append(got, it.Key())
		assert.Equal(t, rid(it.Key()), it.Value())
		require.NoError(t, it.Next())
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, got)

	// advancing the end sentinel is harmless
	require.NoError(t, it.Next())
	assert.True(t, it.IsEnd())
}

func TestIterator_BeginAtExactAndBetween(t *testing.T) {
	tree, _ := setupTree(t, 20, 4, 4)

	mustInsert(t, tree, 10, 20, 30, 40, 50)

	it, err := tree.BeginAt(30)
	require.NoError(t, err)
	require.False(t, it.IsEnd())
	assert.Equal(t, int64(30), it.Key())
	it.Close()

	// between keys: positions on the first key >= the bound
	it, err = tree.BeginAt(15)
	require.NoError(t, err)
	require.False(t, it.IsEnd())
	assert.Equal(t, int64(20), it.Key())
	it.Close()

	// a bound past every key of the leaf it lands on yields the sentinel
	it, err = tree.BeginAt(25)
	require.NoError(t, err)
	assert.True(t, it.IsEnd())

	it, err = tree.BeginAt(-5)
	require.NoError(t, err)
	require.False(t, it.IsEnd())
	assert.Equal(t, int64(10), it.Key())
	it.Close()
}

// BeginAt lands on one leaf only: a bound greater than every key on that
// leaf yields the end sentinel.
func TestIterator_BeginAtPastLastKey(t *testing.T) {
	tree, _ := setupTree(t, 20, 4, 4)

	mustInsert(t, tree, 1, 2, 3, 4, 5)

	it, err := tree.BeginAt(100)
	require.NoError(t, err)
	assert.True(t, it.IsEnd())
}

func TestIterator_CloseReleasesTheLease(t *testing.T) {
	tree, pool := setupTree(t, 20, 4, 4)

	mustInsert(t, tree, 1, 2, 3)

	it, err := tree.Begin()
	require.NoError(t, err)
	require.False(t, it.IsEnd())

	leafID := it.pageID
	it.Close()
	assert.True(t, it.IsEnd())
	it.Close()

	// the leaf must be write-latchable again
	guard, err := pool.FetchPageWrite(leafID)
	require.NoError(t, err)
	guard.Drop()
}

func TestIterator_HoldsSingleLeaseOnly(t *testing.T) {
	tree, pool := setupTree(t, 20, 4, 4)

	mustInsert(t, tree, 1, 2, 3, 4, 5, 6, 7, 8)

	it, err := tree.Begin()
	require.NoError(t, err)
	firstLeaf := it.pageID

	// advance into the second leaf
	for !it.IsEnd() && it.pageID == firstLeaf {
		require.NoError(t, it.Next())
	}
	require.False(t, it.IsEnd())

	// the first leaf's lease is gone, only the current one is held
	guard, err := pool.FetchPageWrite(firstLeaf)
	require.NoError(t, err)
	guard.Drop()

	it.Close()
}

func TestIterator_SeesCommittedMutationsAhead(t *testing.T) {
	tree, _ := setupTree(t, 20, 4, 4)

	mustInsert(t, tree, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)

	it, err := tree.Begin()
	require.NoError(t, err)
	require.Equal(t, int64(1), it.Key())

	// mutate a leaf the iterator has not reached yet
	require.NoError(t, tree.Remove(10))

	var got []int64
	for !it.IsEnd() {
		got = append(got, it.Key())
		require.NoError(t, it.Next())
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}
