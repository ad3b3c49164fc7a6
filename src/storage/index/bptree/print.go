package bptree

import (
	"fmt"
	"strings"

	"github.com/Blackdeer1524/RelDB/src/pkg/common"
	"github.com/Blackdeer1524/RelDB/src/storage/page"
)

// String renders the tree structure for debugging and the inspect CLI.
// It takes basic leases only, so it must not run concurrently with
// writers.
func (t *BPlusTree) String() string {
	rootID, err := t.RootPageID()
	if err != nil {
		return fmt.Sprintf("<unreadable tree: %v>", err)
	}
	if rootID == common.InvalidPageID {
		return "()"
	}

	var b strings.Builder
	if err := t.printSubtree(&b, rootID, 0); err != nil {
		fmt.Fprintf(&b, "<truncated: %v>", err)
	}
	return b.String()
}

func (t *BPlusTree) printSubtree(b *strings.Builder, pageID common.PageID, depth int) error {
	guard, err := t.pool.FetchPageBasic(pageID)
	if err != nil {
		return err
	}
	defer guard.Drop()

	indent := strings.Repeat("  ", depth)
	node := page.AsBTreeNode(guard.Data())

	if node.IsLeaf() {
		leaf := page.AsLeafNode(guard.Data())
		keys := make([]string, 0, leaf.Size())
		for i := 0; i < leaf.Size(); i++ {
			keys = append(keys, fmt.Sprintf("%d", leaf.KeyAt(i)))
		}
		fmt.Fprintf(b, "%sleaf %d [%s] next=%d\n",
			indent, pageID, strings.Join(keys, " "), leaf.NextPageID())
		return nil
	}

	internal := page.AsInternalNode(guard.Data())
	seps := make([]string, 0, internal.Size()-1)
	for i := 1; i < internal.Size(); i++ {
		seps = append(seps, fmt.Sprintf("%d", internal.KeyAt(i)))
	}
	fmt.Fprintf(b, "%sinternal %d <%s>\n", indent, pageID, strings.Join(seps, " "))

	for i := 0; i < internal.Size(); i++ {
		if err := t.printSubtree(b, internal.ChildAt(i), depth+1); err != nil {
			return err
		}
	}
	return nil
}
