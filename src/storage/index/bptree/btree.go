package bptree

import (
	"fmt"

	"github.com/Blackdeer1524/RelDB/src"
	"github.com/Blackdeer1524/RelDB/src/bufferpool"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/storage/page"
)

// BPlusTree is a concurrent ordered map from int64 keys to RIDs, stored
// in fixed-size pages leased from the buffer pool. Concurrent access is
// coordinated by latch crabbing: readers hold at most two read leases at
// a time, writers keep a chain of write leases down to the nearest safe
// ancestor.
type BPlusTree struct {
	pool bufferpool.BufferPool

	headerPageID    common.PageID
	leafMaxSize     int
	internalMaxSize int

	log src.Logger
}

type Option func(*BPlusTree)

func WithLogger(log src.Logger) Option {
	return func(t *BPlusTree) { t.log = log }
}

func newTree(
	pool bufferpool.BufferPool,
	headerPageID common.PageID,
	leafMaxSize, internalMaxSize int,
	opts ...Option,
) *BPlusTree {
	if leafMaxSize == 0 {
		leafMaxSize = page.LeafCapacity()
	}
	if internalMaxSize == 0 {
		internalMaxSize = page.InternalCapacity()
	}

	t := &BPlusTree{
		pool:            pool,
		headerPageID:    headerPageID,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		log:             src.NoopLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// New formats the header page as an empty tree and returns the index.
// The header page must already be allocated in the pool.
func New(
	pool bufferpool.BufferPool,
	headerPageID common.PageID,
	leafMaxSize, internalMaxSize int,
	opts ...Option,
) (*BPlusTree, error) {
	t := newTree(pool, headerPageID, leafMaxSize, internalMaxSize, opts...)

	guard, err := pool.FetchPageWrite(headerPageID)
	if err != nil {
		return nil, fmt.Errorf("failed to init tree header page %d: %w", headerPageID, err)
	}
	defer guard.Drop()

	page.AsHeaderNode(guard.DataMut()).SetRootPageID(common.InvalidPageID)
	return t, nil
}

// Open attaches to an already-formatted header page.
func Open(
	pool bufferpool.BufferPool,
	headerPageID common.PageID,
	leafMaxSize, internalMaxSize int,
	opts ...Option,
) *BPlusTree {
	return newTree(pool, headerPageID, leafMaxSize, internalMaxSize, opts...)
}

// RootPageID reads the current root id from the header page.
func (t *BPlusTree) RootPageID() (common.PageID, error) {
	guard, err := t.pool.FetchPageRead(t.headerPageID)
	if err != nil {
		return common.InvalidPageID, fmt.Errorf("failed to read tree header: %w", err)
	}
	defer guard.Drop()

	return page.AsHeaderNode(guard.Data()).RootPageID(), nil
}

func (t *BPlusTree) IsEmpty() (bool, error) {
	root, err := t.RootPageID()
	if err != nil {
		return false, err
	}
	return root == common.InvalidPageID, nil
}

// lookupChild returns the slot of the child to descend into for key:
// the child left of the smallest separator greater than key, or the last
// child when no separator is greater.
func lookupChild(node page.InternalNode, key int64) int {
	for i := 1; i < node.Size(); i++ {
		if key < node.KeyAt(i) {
			return i - 1
		}
	}
	return node.Size() - 1
}

// GetValue performs a point query. The bool reports whether the key was
// found.
func (t *BPlusTree) GetValue(key int64) (common.RID, bool, error) {
	headerGuard, err := t.pool.FetchPageRead(t.headerPageID)
	if err != nil {
		return common.RID{}, false, fmt.Errorf("failed to read tree header: %w", err)
	}

	rootID := page.AsHeaderNode(headerGuard.Data()).RootPageID()
	if rootID == common.InvalidPageID {
		headerGuard.Drop()
		return common.RID{}, false, nil
	}

	cur, err := t.pool.FetchPageRead(rootID)
	headerGuard.Drop()
	if err != nil {
		return common.RID{}, false, fmt.Errorf("failed to fetch root page %d: %w", rootID, err)
	}

	// read crabbing: take the child lease, then let the parent go
	for {
		node := page.AsBTreeNode(cur.Data())
		if node.IsLeaf() {
			break
		}

		childID := page.AsInternalNode(cur.Data()).ChildAt(
			lookupChild(page.AsInternalNode(cur.Data()), key),
		)
		next, err := t.pool.FetchPageRead(childID)
		if err != nil {
			cur.Drop()
			return common.RID{}, false, fmt.Errorf("failed to fetch page %d: %w", childID, err)
		}
		cur.Drop()
		cur = next
	}
	defer cur.Drop()

	leaf := page.AsLeafNode(cur.Data())
	for i := 0; i < leaf.Size(); i++ {
		if leaf.KeyAt(i) == key {
			return leaf.ValueAt(i), true, nil
		}
	}
	return common.RID{}, false, nil
}
