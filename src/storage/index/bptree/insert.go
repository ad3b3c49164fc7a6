package bptree

import (
	"fmt"

	"github.com/Blackdeer1524/RelDB/src/pkg/assert"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/storage/page"
)

type leafEntry struct {
	key int64
	rid common.RID
}

type internalEntry struct {
	key   int64
	child common.PageID
}

// findChild returns the slot whose child pointer equals childID.
func findChild(node page.InternalNode, childID common.PageID) int {
	for i := 0; i < node.Size(); i++ {
		if node.ChildAt(i) == childID {
			return i
		}
	}
	assert.Assert(false, "child %d not found in internal page", childID)
	return -1
}

// Insert puts (key, rid) into the tree. It reports false when the key is
// already present; the tree is left unchanged in that case.
func (t *BPlusTree) Insert(key int64, rid common.RID) (bool, error) {
	ctx := &opContext{}
	defer ctx.dropAll()

	headerGuard, err := t.pool.FetchPageWrite(t.headerPageID)
	if err != nil {
		return false, fmt.Errorf("failed to latch tree header: %w", err)
	}
	ctx.header = headerGuard.Move()
	ctx.hasHeader = true

	rootID := page.AsHeaderNode(ctx.header.Data()).RootPageID()
	if rootID == common.InvalidPageID {
		if err := t.startNewTree(ctx, key, rid); err != nil {
			return false, err
		}
		return true, nil
	}
	ctx.rootPageID = rootID

	rootGuard, err := t.pool.FetchPageWrite(rootID)
	if err != nil {
		return false, fmt.Errorf("failed to latch root page %d: %w", rootID, err)
	}
	ctx.push(rootGuard.Move())

	if err := t.descendForWrite(ctx, key, insertSafe); err != nil {
		return false, err
	}

	guard := ctx.top()
	leaf := page.AsLeafNode(guard.Data())

	pos := 0
	for ; pos < leaf.Size(); pos++ {
		at := leaf.KeyAt(pos)
		if at == key {
			return false, nil
		}
		if key < at {
			break
		}
	}

	if leaf.Size() < leaf.MaxSize() {
		mut := page.AsLeafNode(guard.DataMut())
		for i := mut.Size() - 1; i >= pos; i-- {
			mut.SetKeyAt(i+1, mut.KeyAt(i))
			mut.SetValueAt(i+1, mut.ValueAt(i))
		}
		mut.SetKeyAt(pos, key)
		mut.SetValueAt(pos, rid)
		mut.SetSize(mut.Size() + 1)
		return true, nil
	}

	sep, oldID, newID, err := t.splitLeaf(ctx, key, rid, pos)
	if err != nil {
		return false, err
	}
	if err := t.insertParent(ctx, sep, oldID, newID); err != nil {
		return false, err
	}
	return true, nil
}

// startNewTree installs a fresh single-entry leaf as the root. The caller
// holds the header write lease.
func (t *BPlusTree) startNewTree(ctx *opContext, key int64, rid common.RID) error {
	rootGuard, err := t.pool.NewPageWriteGuarded()
	if err != nil {
		return fmt.Errorf("failed to allocate root leaf: %w", err)
	}
	defer rootGuard.Drop()

	leaf := page.InitLeafNode(rootGuard.DataMut(), t.leafMaxSize)
	leaf.SetKeyAt(0, key)
	leaf.SetValueAt(0, rid)
	leaf.SetSize(1)

	page.AsHeaderNode(ctx.header.DataMut()).SetRootPageID(rootGuard.PageID())
	t.log.Debugf("started new tree with root leaf %d", rootGuard.PageID())
	return nil
}

type safetyCheck func(node page.BTreeNode) bool

func insertSafe(node page.BTreeNode) bool { return node.Size() < node.MaxSize() }

func removeSafe(node page.BTreeNode) bool { return node.Size() > node.MinSize() }

// descendForWrite walks from the latched root down to the leaf for key,
// pushing write leases. Whenever the freshly latched child passes the
// safety check, every ancestor lease (header included) is released.
func (t *BPlusTree) descendForWrite(ctx *opContext, key int64, safe safetyCheck) error {
	for {
		cur := ctx.top()
		if page.AsBTreeNode(cur.Data()).IsLeaf() {
			return nil
		}

		internal := page.AsInternalNode(cur.Data())
		childID := internal.ChildAt(lookupChild(internal, key))

		childGuard, err := t.pool.FetchPageWrite(childID)
		if err != nil {
			return fmt.Errorf("failed to latch page %d: %w", childID, err)
		}

		isSafe := safe(page.AsBTreeNode(childGuard.Data()))
		ctx.push(childGuard.Move())
		if isSafe {
			ctx.releaseAncestors()
		}
	}
}

// splitLeaf splits the full leaf on top of the write set, inserting
// (key, rid) at pos in the combined order. It returns the separator to
// push into the parent together with both page ids. The leaf lease is
// released before returning.
func (t *BPlusTree) splitLeaf(
	ctx *opContext,
	key int64,
	rid common.RID,
	pos int,
) (int64, common.PageID, common.PageID, error) {
	guard := ctx.top()
	oldID := guard.PageID()

	newGuard, err := t.pool.NewPageWriteGuarded()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to allocate leaf for split: %w", err)
	}
	defer newGuard.Drop()
	newID := newGuard.PageID()

	old := page.AsLeafNode(guard.DataMut())
	fresh := page.InitLeafNode(newGuard.DataMut(), t.leafMaxSize)

	n := old.Size()
	entries := make([]leafEntry, 0, n+1)
	for i := 0; i < pos; i++ {
		entries = append(entries, leafEntry{old.KeyAt(i), old.ValueAt(i)})
	}
	entries = append(entries, leafEntry{key, rid})
	for i := pos; i < n; i++ {
		entries = append(entries, leafEntry{old.KeyAt(i), old.ValueAt(i)})
	}

	keep := old.MinSize()
	for i := 0; i < keep; i++ {
		old.SetKeyAt(i, entries[i].key)
		old.SetValueAt(i, entries[i].rid)
	}
	for i := keep; i < n+1; i++ {
		fresh.SetKeyAt(i-keep, entries[i].key)
		fresh.SetValueAt(i-keep, entries[i].rid)
	}
	old.SetSize(keep)
	fresh.SetSize(n + 1 - keep)

	fresh.SetNextPageID(old.NextPageID())
	old.SetNextPageID(newID)

	sep := fresh.KeyAt(0)
	ctx.popAndDrop()

	t.log.Debugf("split leaf %d, new leaf %d, separator %d", oldID, newID, sep)
	return sep, oldID, newID, nil
}

// insertParent pushes the separator produced by a split into the parent,
// splitting upward as long as parents are full. When the write set runs
// out, the root itself split and a new root is installed via the header
// lease.
func (t *BPlusTree) insertParent(
	ctx *opContext,
	key int64,
	oldID, newID common.PageID,
) error {
	for {
		if ctx.depth() == 0 {
			assert.Assert(ctx.hasHeader, "root split without the header lease")

			rootGuard, err := t.pool.NewPageWriteGuarded()
			if err != nil {
				return fmt.Errorf("failed to allocate new root: %w", err)
			}

			root := page.InitInternalNode(rootGuard.DataMut(), t.internalMaxSize)
			root.SetChildAt(0, oldID)
			root.SetKeyAt(1, key)
			root.SetChildAt(1, newID)
			root.SetSize(2)

			page.AsHeaderNode(ctx.header.DataMut()).SetRootPageID(rootGuard.PageID())
			t.log.Debugf("new root %d (%d | %d -> %d)", rootGuard.PageID(), oldID, key, newID)
			rootGuard.Drop()
			return nil
		}

		guard := ctx.top()
		parent := page.AsInternalNode(guard.Data())
		pos := findChild(parent, oldID)

		if parent.Size() < parent.MaxSize() {
			mut := page.AsInternalNode(guard.DataMut())
			for i := mut.Size() - 1; i > pos; i-- {
				mut.SetKeyAt(i+1, mut.KeyAt(i))
				mut.SetChildAt(i+1, mut.ChildAt(i))
			}
			mut.SetKeyAt(pos+1, key)
			mut.SetChildAt(pos+1, newID)
			mut.SetSize(mut.Size() + 1)
			return nil
		}

		var err error
		key, oldID, newID, err = t.splitInternal(ctx, key, newID, pos)
		if err != nil {
			return err
		}
	}
}

// splitInternal splits the full internal node on top of the write set.
// The separator at the split boundary is promoted: it ends up in neither
// half, and its child pointer becomes the new node's leftmost child.
func (t *BPlusTree) splitInternal(
	ctx *opContext,
	sepKey int64,
	newChildID common.PageID,
	pos int,
) (int64, common.PageID, common.PageID, error) {
	guard := ctx.top()
	oldID := guard.PageID()

	newGuard, err := t.pool.NewPageWriteGuarded()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to allocate internal page for split: %w", err)
	}
	defer newGuard.Drop()
	newID := newGuard.PageID()

	old := page.AsInternalNode(guard.DataMut())
	fresh := page.InitInternalNode(newGuard.DataMut(), t.internalMaxSize)

	n := old.Size()
	entries := make([]internalEntry, 0, n+1)
	for i := 0; i <= pos; i++ {
		entries = append(entries, internalEntry{old.KeyAt(i), old.ChildAt(i)})
	}
	entries = append(entries, internalEntry{sepKey, newChildID})
	for i := pos + 1; i < n; i++ {
		entries = append(entries, internalEntry{old.KeyAt(i), old.ChildAt(i)})
	}

	keep := old.MinSize()
	for i := 0; i < keep; i++ {
		old.SetKeyAt(i, entries[i].key)
		old.SetChildAt(i, entries[i].child)
	}

	promoted := entries[keep].key
	fresh.SetChildAt(0, entries[keep].child)
	for i := keep + 1; i < n+1; i++ {
		fresh.SetKeyAt(i-keep, entries[i].key)
		fresh.SetChildAt(i-keep, entries[i].child)
	}

	old.SetSize(keep)
	fresh.SetSize(n + 1 - keep)

	ctx.popAndDrop()

	t.log.Debugf("split internal %d, new internal %d, promoted %d", oldID, newID, promoted)
	return promoted, oldID, newID, nil
}
