package bufferpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/storage/disk"
)

func newTestPool(t *testing.T, poolSize, k uint64) (*Manager, *disk.InMemoryManager) {
	t.Helper()
	dm := disk.NewInMemoryManager()
	return New(poolSize, k, dm), dm
}

func TestNewPage_AssignsIncreasingIDs(t *testing.T) {
	pool, _ := newTestPool(t, 3, 2)

	a, err := pool.NewPage()
	require.NoError(t, err)
	b, err := pool.NewPage()
	require.NoError(t, err)

	assert.Equal(t, common.PageID(0), a.ID())
	assert.Equal(t, common.PageID(1), b.ID())
	assert.Equal(t, int32(1), a.PinCount())
	assert.False(t, a.IsDirty())
}

// pool_size=3, K=2: after unpinning a and b, allocating a fourth page must
// evict a (the oldest infinite-distance access).
func TestEviction_OldestInfiniteDistanceGoesFirst(t *testing.T) {
	pool, _ := newTestPool(t, 3, 2)

	a, err := pool.NewPage()
	require.NoError(t, err)
	b, err := pool.NewPage()
	require.NoError(t, err)
	c, err := pool.NewPage()
	require.NoError(t, err)

	require.True(t, pool.UnpinPage(a.ID(), false))
	require.True(t, pool.UnpinPage(b.ID(), false))

	d, err := pool.NewPage()
	require.NoError(t, err)

	pool.mu.Lock()
	_, aResident := pool.pageTable[common.PageID(0)]
	_, bResident := pool.pageTable[common.PageID(1)]
	pool.mu.Unlock()

	assert.False(t, aResident, "page a should have been evicted")
	assert.True(t, bResident)

	require.True(t, pool.UnpinPage(c.ID(), false))
	require.True(t, pool.UnpinPage(d.ID(), false))
}

// pool_size=1: with the only page pinned, allocating another one fails.
func TestNewPage_PoolExhausted(t *testing.T) {
	pool, _ := newTestPool(t, 1, 2)

	a, err := pool.NewPage()
	require.NoError(t, err)

	_, err = pool.NewPage()
	assert.ErrorIs(t, err, ErrNoSpaceLeft)

	require.True(t, pool.UnpinPage(a.ID(), false))
	_, err = pool.NewPage()
	assert.NoError(t, err)
}

func TestFetchPage_RoundTripsThroughDisk(t *testing.T) {
	pool, _ := newTestPool(t, 1, 2)

	a, err := pool.NewPage()
	require.NoError(t, err)
	pageID := a.ID()
	copy(a.Data(), []byte("persisted payload"))
	a.SetDirty(true)
	require.True(t, pool.UnpinPage(pageID, true))

	// force a out through eviction
	b, err := pool.NewPage()
	require.NoError(t, err)
	require.True(t, pool.UnpinPage(b.ID(), false))

	got, err := pool.FetchPage(pageID)
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted payload"), got.Data()[:len("persisted payload")])
	require.True(t, pool.UnpinPage(pageID, false))
}

func TestFetchPage_NotOnDisk(t *testing.T) {
	pool, _ := newTestPool(t, 2, 2)

	_, err := pool.FetchPage(42)
	assert.ErrorIs(t, err, disk.ErrNoSuchPage)

	// the frame reserved for the failed fetch must be reusable
	a, err := pool.NewPage()
	require.NoError(t, err)
	b, err := pool.NewPage()
	require.NoError(t, err)
	require.True(t, pool.UnpinPage(a.ID(), false))
	require.True(t, pool.UnpinPage(b.ID(), false))
}

func TestFetchPage_PinZeroToOneFlipsEvictability(t *testing.T) {
	pool, _ := newTestPool(t, 2, 2)

	a, err := pool.NewPage()
	require.NoError(t, err)
	require.True(t, pool.UnpinPage(a.ID(), false))
	require.Equal(t, uint64(1), pool.replacer.Size())

	_, err = pool.FetchPage(a.ID())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), pool.replacer.Size())

	require.True(t, pool.UnpinPage(a.ID(), false))
	assert.Equal(t, uint64(1), pool.replacer.Size())
}

func TestUnpinPage_Semantics(t *testing.T) {
	pool, _ := newTestPool(t, 2, 2)

	assert.False(t, pool.UnpinPage(7, false), "not resident")

	a, err := pool.NewPage()
	require.NoError(t, err)

	require.True(t, pool.UnpinPage(a.ID(), false))
	assert.False(t, pool.UnpinPage(a.ID(), false), "already at pin zero")
}

func TestUnpinPage_DirtyHintIsSticky(t *testing.T) {
	pool, _ := newTestPool(t, 2, 2)

	a, err := pool.NewPage()
	require.NoError(t, err)
	pageID := a.ID()

	_, err = pool.FetchPage(pageID)
	require.NoError(t, err)

	require.True(t, pool.UnpinPage(pageID, true))
	// a clean unpin must not wash out the earlier dirty hint
	require.True(t, pool.UnpinPage(pageID, false))

	pool.mu.Lock()
	frame := pool.frames[pool.pageTable[pageID]]
	pool.mu.Unlock()
	assert.True(t, frame.IsDirty())
}

func TestFlushPage_WritesUnconditionally(t *testing.T) {
	pool, dm := newTestPool(t, 2, 2)

	a, err := pool.NewPage()
	require.NoError(t, err)
	pageID := a.ID()

	ok, err := pool.FlushPage(pageID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, dm.WriteCount(), "clean pages are written too")

	ok, err = pool.FlushPage(99)
	require.NoError(t, err)
	assert.False(t, ok, "not resident")

	require.True(t, pool.UnpinPage(pageID, false))
}

func TestFlushAllPages_ClearsEveryDirtyFlag(t *testing.T) {
	pool, _ := newTestPool(t, 4, 2)

	ids := make([]common.PageID, 0, 3)
	for range 3 {
		p, err := pool.NewPage()
		require.NoError(t, err)
		ids = append(ids, p.ID())
		require.True(t, pool.UnpinPage(p.ID(), true))
	}

	require.NoError(t, pool.FlushAllPages())

	pool.mu.Lock()
	defer pool.mu.Unlock()
	for _, id := range ids {
		frame := pool.frames[pool.pageTable[id]]
		assert.False(t, frame.IsDirty(), "page %d still dirty after FlushAllPages", id)
	}
}

func TestDeletePage_Semantics(t *testing.T) {
	pool, _ := newTestPool(t, 2, 2)

	ok, err := pool.DeletePage(5)
	require.NoError(t, err)
	assert.True(t, ok, "deleting a non-resident page is a no-op")

	a, err := pool.NewPage()
	require.NoError(t, err)
	pageID := a.ID()

	ok, err = pool.DeletePage(pageID)
	require.NoError(t, err)
	assert.False(t, ok, "pinned pages cannot be deleted")

	require.True(t, pool.UnpinPage(pageID, true))
	ok, err = pool.DeletePage(pageID)
	require.NoError(t, err)
	assert.True(t, ok)

	pool.mu.Lock()
	_, resident := pool.pageTable[pageID]
	freeFrames := len(pool.freeList)
	pool.mu.Unlock()
	assert.False(t, resident)
	assert.Equal(t, 2, freeFrames)
}

// Σ pinned frames + free frames + evictable frames must cover the pool.
func TestPoolAccountingInvariant(t *testing.T) {
	pool, _ := newTestPool(t, 4, 2)

	check := func() {
		t.Helper()
		pool.mu.Lock()
		defer pool.mu.Unlock()

		pinned := 0
		for _, frameID := range pool.pageTable {
			if pool.frames[frameID].PinCount() > 0 {
				pinned++
			}
		}
		total := pinned + len(pool.freeList) + int(pool.replacer.Size())
		assert.Equal(t, 4, total)
	}

	check()
	a, err := pool.NewPage()
	require.NoError(t, err)
	check()
	b, err := pool.NewPage()
	require.NoError(t, err)
	check()
	require.True(t, pool.UnpinPage(a.ID(), false))
	check()
	_, err = pool.FetchPage(a.ID())
	require.NoError(t, err)
	check()
	require.True(t, pool.UnpinPage(a.ID(), false))
	require.True(t, pool.UnpinPage(b.ID(), false))
	check()
}

func TestEviction_WritesBackDirtyVictimOnce(t *testing.T) {
	dm := disk.NewInMemoryManager()
	pool := New(1, 2, dm)

	a, err := pool.NewPage()
	require.NoError(t, err)
	pageID := a.ID()
	copy(a.Data(), []byte("dirty"))
	require.True(t, pool.UnpinPage(pageID, true))

	// guard drops never flush; only this eviction writes the page
	b, err := pool.NewPage()
	require.NoError(t, err)
	assert.Equal(t, 1, dm.WriteCount())
	require.True(t, pool.UnpinPage(b.ID(), false))
}

func TestEviction_SkipsCleanWriteBack(t *testing.T) {
	dm := disk.NewInMemoryManager()
	pool := New(1, 2, dm)

	a, err := pool.NewPage()
	require.NoError(t, err)
	require.True(t, pool.UnpinPage(a.ID(), false))

	_, err = pool.NewPage()
	require.NoError(t, err)
	assert.Equal(t, 0, dm.WriteCount(), "clean victims are dropped, not written")
}

type countingLogManager struct {
	mu     sync.Mutex
	writes []common.PageID
}

func (c *countingLogManager) OnPageWrite(pageID common.PageID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, pageID)
}

func TestLogManager_ObservesWriteBacks(t *testing.T) {
	dm := disk.NewInMemoryManager()
	lm := &countingLogManager{}
	pool := New(1, 2, dm, WithLogManager(lm))

	a, err := pool.NewPage()
	require.NoError(t, err)
	pageID := a.ID()
	require.True(t, pool.UnpinPage(pageID, true))

	// eviction writes the dirty victim back and notifies the observer
	b, err := pool.NewPage()
	require.NoError(t, err)
	assert.Equal(t, []common.PageID{pageID}, lm.writes)
	require.True(t, pool.UnpinPage(b.ID(), false))
}

func TestFetchPage_UsesReplacerContract(t *testing.T) {
	mockDisk := new(MockDiskManager)
	mockReplacer := new(MockReplacer)

	pool := New(2, 2, mockDisk, WithReplacer(mockReplacer))

	mockReplacer.On("RecordAccess", common.FrameID(1)).Return()
	mockReplacer.On("SetEvictable", common.FrameID(1), false).Return()
	mockDisk.On("ReadPage", common.PageID(9), mock.Anything).Return(nil)

	_, err := pool.FetchPage(9)
	require.NoError(t, err)

	mockDisk.AssertExpectations(t)
	mockReplacer.AssertExpectations(t)
	mockReplacer.AssertNotCalled(t, "Evict")
}
