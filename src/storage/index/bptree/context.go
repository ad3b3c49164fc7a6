package bptree

import (
	"github.com/Blackdeer1524/RelDB/src/bufferpool"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
)

// bufferGuard keeps the write-lease type readable at the call sites that
// juggle node, sibling and parent leases at once.
type bufferGuard = bufferpool.WriteGuard

// opContext carries the chain of write leases a mutating operation holds
// while crabbing down the tree. The header lease sits above the chain;
// releasing it is the point after which the root can no longer change
// under this operation.
type opContext struct {
	header     bufferpool.WriteGuard
	hasHeader  bool
	rootPageID common.PageID

	writeSet []bufferpool.WriteGuard
}

func (c *opContext) push(g bufferpool.WriteGuard) {
	c.writeSet = append(c.writeSet, g)
}

func (c *opContext) top() *bufferpool.WriteGuard {
	return &c.writeSet[len(c.writeSet)-1]
}

func (c *opContext) popAndDrop() {
	c.writeSet[len(c.writeSet)-1].Drop()
	c.writeSet = c.writeSet[:len(c.writeSet)-1]
}

func (c *opContext) depth() int { return len(c.writeSet) }

func (c *opContext) dropHeader() {
	if c.hasHeader {
		c.header.Drop()
		c.hasHeader = false
	}
}

// releaseAncestors drops every lease above the most recently acquired
// one, the header included. Called when the newly latched child is safe.
func (c *opContext) releaseAncestors() {
	last := len(c.writeSet) - 1
	for i := range last {
		c.writeSet[i].Drop()
	}
	if last > 0 {
		kept := c.writeSet[last].Move()
		c.writeSet = c.writeSet[:0]
		c.writeSet = append(c.writeSet, kept)
	}
	c.dropHeader()
}

// dropAll releases everything still held, bottom-up.
func (c *opContext) dropAll() {
	for i := len(c.writeSet) - 1; i >= 0; i-- {
		c.writeSet[i].Drop()
	}
	c.writeSet = c.writeSet[:0]
	c.dropHeader()
}
