package bptree

import (
	"fmt"

	"github.com/Blackdeer1524/RelDB/src/bufferpool"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/storage/page"
)

// Iterator walks the leaf chain in ascending key order. It holds at most
// one read lease at any time: the lease on the leaf it currently points
// into. Callers must Close it (or drain it to the end) to release that
// lease.
//
// Iteration is not a snapshot. Leaves already visited may change behind
// the iterator; leaves not yet reached are seen in whatever state they
// are in when their lease is acquired.
type Iterator struct {
	pool bufferpool.BufferPool

	guard  bufferpool.ReadGuard
	pageID common.PageID
	pos    int
}

// endIterator returns the sentinel iterator.
func endIterator(pool bufferpool.BufferPool) *Iterator {
	return &Iterator{pool: pool, pageID: common.InvalidPageID, pos: -1}
}

// End returns the sentinel every exhausted iterator compares to.
func (t *BPlusTree) End() *Iterator { return endIterator(t.pool) }

// Begin positions an iterator on the first entry of the leftmost leaf.
func (t *BPlusTree) Begin() (*Iterator, error) {
	headerGuard, err := t.pool.FetchPageRead(t.headerPageID)
	if err != nil {
		return nil, fmt.Errorf("failed to read tree header: %w", err)
	}

	rootID := page.AsHeaderNode(headerGuard.Data()).RootPageID()
	if rootID == common.InvalidPageID {
		headerGuard.Drop()
		return t.End(), nil
	}

	cur, err := t.pool.FetchPageRead(rootID)
	headerGuard.Drop()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch root page %d: %w", rootID, err)
	}

	for {
		if page.AsBTreeNode(cur.Data()).IsLeaf() {
			break
		}
		childID := page.AsInternalNode(cur.Data()).ChildAt(0)
		next, err := t.pool.FetchPageRead(childID)
		if err != nil {
			cur.Drop()
			return nil, fmt.Errorf("failed to fetch page %d: %w", childID, err)
		}
		cur.Drop()
		cur = next
	}

	leafID := cur.PageID()
	return &Iterator{
		pool:   t.pool,
		guard:  cur.Move(),
		pageID: leafID,
		pos:    0,
	}, nil
}

// BeginAt positions an iterator on the first entry whose key is >= key.
// When no such entry exists on the leaf the descent lands on, the end
// sentinel is returned.
func (t *BPlusTree) BeginAt(key int64) (*Iterator, error) {
	headerGuard, err := t.pool.FetchPageRead(t.headerPageID)
	if err != nil {
		return nil, fmt.Errorf("failed to read tree header: %w", err)
	}

	rootID := page.AsHeaderNode(headerGuard.Data()).RootPageID()
	if rootID == common.InvalidPageID {
		headerGuard.Drop()
		return t.End(), nil
	}

	cur, err := t.pool.FetchPageRead(rootID)
	headerGuard.Drop()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch root page %d: %w", rootID, err)
	}

	for {
		if page.AsBTreeNode(cur.Data()).IsLeaf() {
			break
		}
		internal := page.AsInternalNode(cur.Data())
		childID := internal.ChildAt(lookupChild(internal, key))
		next, err := t.pool.FetchPageRead(childID)
		if err != nil {
			cur.Drop()
			return nil, fmt.Errorf("failed to fetch page %d: %w", childID, err)
		}
		cur.Drop()
		cur = next
	}

	leaf := page.AsLeafNode(cur.Data())
	for i := 0; i < leaf.Size(); i++ {
		if leaf.KeyAt(i) >= key {
			leafID := cur.PageID()
			return &Iterator{
				pool:   t.pool,
				guard:  cur.Move(),
				pageID: leafID,
				pos:    i,
			}, nil
		}
	}

	cur.Drop()
	return t.End(), nil
}

// IsEnd reports whether the iterator is the end sentinel.
func (it *Iterator) IsEnd() bool {
	return it.pageID == common.InvalidPageID && it.pos == -1
}

// Key returns the key under the cursor. Calling it on the end sentinel is
// a bug in the caller.
func (it *Iterator) Key() int64 {
	return page.AsLeafNode(it.guard.Data()).KeyAt(it.pos)
}

// Value returns the RID under the cursor.
func (it *Iterator) Value() common.RID {
	return page.AsLeafNode(it.guard.Data()).ValueAt(it.pos)
}

// Next advances the cursor, hopping to the next leaf through the chain
// pointer when the current one runs out. The current lease is released
// before the next leaf's lease is taken.
func (it *Iterator) Next() error {
	if it.IsEnd() {
		return nil
	}

	it.pos++
	leaf := page.AsLeafNode(it.guard.Data())
	if it.pos < leaf.Size() {
		return nil
	}

	nextID := leaf.NextPageID()
	it.guard.Drop()

	if nextID == common.InvalidPageID {
		it.pageID = common.InvalidPageID
		it.pos = -1
		return nil
	}

	guard, err := it.pool.FetchPageRead(nextID)
	if err != nil {
		it.pageID = common.InvalidPageID
		it.pos = -1
		return fmt.Errorf("failed to fetch leaf page %d: %w", nextID, err)
	}

	it.guard = guard.Move()
	it.pageID = nextID
	it.pos = 0
	return nil
}

// Close releases the lease early. Closing an exhausted or already-closed
// iterator is a no-op.
func (it *Iterator) Close() {
	it.guard.Drop()
	it.pageID = common.InvalidPageID
	it.pos = -1
}
