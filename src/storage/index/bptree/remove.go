package bptree

import (
	"fmt"

	"github.com/Blackdeer1524/RelDB/src/pkg/assert"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/storage/page"
)

// Remove deletes key from the tree. Removing an absent key is a no-op.
func (t *BPlusTree) Remove(key int64) error {
	ctx := &opContext{}
	defer ctx.dropAll()

	headerGuard, err := t.pool.FetchPageWrite(t.headerPageID)
	if err != nil {
		return fmt.Errorf("failed to latch tree header: %w", err)
	}
	ctx.header = headerGuard.Move()
	ctx.hasHeader = true

	rootID := page.AsHeaderNode(ctx.header.Data()).RootPageID()
	if rootID == common.InvalidPageID {
		return nil
	}
	ctx.rootPageID = rootID

	rootGuard, err := t.pool.FetchPageWrite(rootID)
	if err != nil {
		return fmt.Errorf("failed to latch root page %d: %w", rootID, err)
	}
	ctx.push(rootGuard.Move())

	if err := t.descendForWrite(ctx, key, removeSafe); err != nil {
		return err
	}

	if !t.removeFromLeaf(ctx.top(), key) {
		return nil
	}
	return t.rebalance(ctx)
}

// removeFromLeaf deletes key from the latched leaf, reporting whether the
// key was present.
func (t *BPlusTree) removeFromLeaf(guard *bufferGuard, key int64) bool {
	leaf := page.AsLeafNode(guard.Data())

	pos := -1
	for i := 0; i < leaf.Size(); i++ {
		at := leaf.KeyAt(i)
		if at == key {
			pos = i
			break
		}
		if key < at {
			return false
		}
	}
	if pos < 0 {
		return false
	}

	mut := page.AsLeafNode(guard.DataMut())
	for i := pos + 1; i < mut.Size(); i++ {
		mut.SetKeyAt(i-1, mut.KeyAt(i))
		mut.SetValueAt(i-1, mut.ValueAt(i))
	}
	mut.SetSize(mut.Size() - 1)
	return true
}

// rebalance restores the size invariants bottom-up after a deletion. The
// node on top of the write set just shrank; everything above it in the
// write set is an unsafe ancestor, so merges can propagate along the
// retained chain only.
func (t *BPlusTree) rebalance(ctx *opContext) error {
	for {
		guard := ctx.top()
		node := page.AsBTreeNode(guard.Data())

		if guard.PageID() == ctx.rootPageID {
			t.collapseRoot(ctx, node)
			return nil
		}

		if node.Size() >= node.MinSize() {
			return nil
		}

		assert.Assert(ctx.depth() >= 2, "underflow on page %d with no parent lease", guard.PageID())
		parentGuard := &ctx.writeSet[ctx.depth()-2]
		parent := page.AsInternalNode(parentGuard.Data())

		pos := findChild(parent, guard.PageID())

		// prefer the left sibling; fall back to the right one
		var (
			siblingID common.PageID
			sepIdx    int
			leftIsSib bool
		)
		if pos > 0 {
			siblingID = parent.ChildAt(pos - 1)
			sepIdx = pos
			leftIsSib = true
		} else {
			siblingID = parent.ChildAt(pos + 1)
			sepIdx = pos + 1
		}

		siblingGuard, err := t.pool.FetchPageWrite(siblingID)
		if err != nil {
			return fmt.Errorf("failed to latch sibling page %d: %w", siblingID, err)
		}

		sibling := page.AsBTreeNode(siblingGuard.Data())
		sepKey := parent.KeyAt(sepIdx)

		if node.Size()+sibling.Size() <= node.MaxSize() {
			// merge the right neighbor into the left one, then delete the
			// separator from the parent and keep rebalancing up there
			if leftIsSib {
				t.mergeNodes(&siblingGuard, guard, sepKey)
			} else {
				t.mergeNodes(guard, &siblingGuard, sepKey)
			}
			siblingGuard.Drop()
			ctx.popAndDrop()

			mut := page.AsInternalNode(parentGuard.DataMut())
			for i := sepIdx + 1; i < mut.Size(); i++ {
				mut.SetKeyAt(i-1, mut.KeyAt(i))
				mut.SetChildAt(i-1, mut.ChildAt(i))
			}
			mut.SetSize(mut.Size() - 1)
			continue
		}

		if leftIsSib {
			t.borrowFromLeft(guard, &siblingGuard, parentGuard, sepIdx, sepKey)
		} else {
			t.borrowFromRight(guard, &siblingGuard, parentGuard, sepIdx, sepKey)
		}
		siblingGuard.Drop()
		return nil
	}
}

// collapseRoot applies the root exceptions: an empty leaf root empties
// the tree, an internal root with a single child hands the root over to
// that child.
func (t *BPlusTree) collapseRoot(ctx *opContext, node page.BTreeNode) {
	assert.Assert(ctx.hasHeader, "root shrank without the header lease")
	header := page.AsHeaderNode(ctx.header.DataMut())

	guard := ctx.top()
	if node.IsLeaf() {
		if node.Size() == 0 {
			header.SetRootPageID(common.InvalidPageID)
			t.log.Debugf("tree emptied, root leaf %d released", guard.PageID())
		}
		return
	}

	if node.Size() == 1 {
		child := page.AsInternalNode(guard.Data()).ChildAt(0)
		header.SetRootPageID(child)
		t.log.Debugf("root %d collapsed into child %d", guard.PageID(), child)
	}
}

// mergeNodes moves every entry of right into left. For internals the
// separator key comes down between them; for leaves the chain pointer is
// spliced.
func (t *BPlusTree) mergeNodes(left, right *bufferGuard, sepKey int64) {
	if page.AsBTreeNode(left.Data()).IsLeaf() {
		dst := page.AsLeafNode(left.DataMut())
		srcRO := page.AsLeafNode(right.Data())

		base := dst.Size()
		for i := 0; i < srcRO.Size(); i++ {
			dst.SetKeyAt(base+i, srcRO.KeyAt(i))
			dst.SetValueAt(base+i, srcRO.ValueAt(i))
		}
		dst.SetSize(base + srcRO.Size())
		dst.SetNextPageID(srcRO.NextPageID())
		return
	}

	dst := page.AsInternalNode(left.DataMut())
	srcRO := page.AsInternalNode(right.Data())

	base := dst.Size()
	dst.SetKeyAt(base, sepKey)
	dst.SetChildAt(base, srcRO.ChildAt(0))
	for i := 1; i < srcRO.Size(); i++ {
		dst.SetKeyAt(base+i, srcRO.KeyAt(i))
		dst.SetChildAt(base+i, srcRO.ChildAt(i))
	}
	dst.SetSize(base + srcRO.Size())
}

// borrowFromLeft shifts the left sibling's rightmost entry across the
// boundary and refreshes the separator in the parent.
func (t *BPlusTree) borrowFromLeft(
	nodeGuard, siblingGuard, parentGuard *bufferGuard,
	sepIdx int,
	sepKey int64,
) {
	parent := page.AsInternalNode(parentGuard.DataMut())

	if page.AsBTreeNode(nodeGuard.Data()).IsLeaf() {
		node := page.AsLeafNode(nodeGuard.DataMut())
		sib := page.AsLeafNode(siblingGuard.DataMut())

		for i := node.Size() - 1; i >= 0; i-- {
			node.SetKeyAt(i+1, node.KeyAt(i))
			node.SetValueAt(i+1, node.ValueAt(i))
		}
		last := sib.Size() - 1
		node.SetKeyAt(0, sib.KeyAt(last))
		node.SetValueAt(0, sib.ValueAt(last))
		node.SetSize(node.Size() + 1)
		sib.SetSize(last)

		parent.SetKeyAt(sepIdx, node.KeyAt(0))
		return
	}

	node := page.AsInternalNode(nodeGuard.DataMut())
	sib := page.AsInternalNode(siblingGuard.DataMut())

	for i := node.Size() - 1; i >= 0; i-- {
		node.SetKeyAt(i+1, node.KeyAt(i))
		node.SetChildAt(i+1, node.ChildAt(i))
	}
	last := sib.Size() - 1
	// the old separator moves down, the crossing key moves up
	node.SetKeyAt(1, sepKey)
	node.SetChildAt(0, sib.ChildAt(last))
	node.SetSize(node.Size() + 1)

	parent.SetKeyAt(sepIdx, sib.KeyAt(last))
	sib.SetSize(last)
}

// borrowFromRight shifts the right sibling's leftmost entry across the
// boundary and refreshes the separator in the parent.
func (t *BPlusTree) borrowFromRight(
	nodeGuard, siblingGuard, parentGuard *bufferGuard,
	sepIdx int,
	sepKey int64,
) {
	parent := page.AsInternalNode(parentGuard.DataMut())

	if page.AsBTreeNode(nodeGuard.Data()).IsLeaf() {
		node := page.AsLeafNode(nodeGuard.DataMut())
		sib := page.AsLeafNode(siblingGuard.DataMut())

		node.SetKeyAt(node.Size(), sib.KeyAt(0))
		node.SetValueAt(node.Size(), sib.ValueAt(0))
		node.SetSize(node.Size() + 1)

		for i := 1; i < sib.Size(); i++ {
			sib.SetKeyAt(i-1, sib.KeyAt(i))
			sib.SetValueAt(i-1, sib.ValueAt(i))
		}
		sib.SetSize(sib.Size() - 1)

		parent.SetKeyAt(sepIdx, sib.KeyAt(0))
		return
	}

	node := page.AsInternalNode(nodeGuard.DataMut())
	sib := page.AsInternalNode(siblingGuard.DataMut())

	// the old separator moves down, the right sibling's first key moves up
	node.SetKeyAt(node.Size(), sepKey)
	node.SetChildAt(node.Size(), sib.ChildAt(0))
	node.SetSize(node.Size() + 1)

	newSep := sib.KeyAt(1)
	sib.SetChildAt(0, sib.ChildAt(1))
	for i := 1; i < sib.Size()-1; i++ {
		sib.SetKeyAt(i, sib.KeyAt(i+1))
		sib.SetChildAt(i, sib.ChildAt(i+1))
	}
	sib.SetSize(sib.Size() - 1)

	parent.SetKeyAt(sepIdx, newSep)
}
