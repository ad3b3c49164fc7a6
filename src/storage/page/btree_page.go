package page

import (
	"encoding/binary"

	"github.com/Blackdeer1524/RelDB/src/pkg/assert"
	"github.com/Blackdeer1524/RelDB/src/pkg/common"
)

// B+-tree pages share a common header:
//
//	offset 0: u32 page type (1 = internal, 2 = leaf)
//	offset 4: i32 size
//	offset 8: i32 max size
//
// A leaf adds `i32 next page id` at offset 12 and a sorted (key, RID) array
// at offset 16. An internal page puts its (key, child page id) array right
// at offset 12; pair 0's key is unused (leftmost-child pointer).
// All fields are little-endian.

type NodeType uint32

const (
	NodeInternal NodeType = 1
	NodeLeaf     NodeType = 2
)

const (
	offPageType = 0
	offSize     = 4
	offMaxSize  = 8

	offLeafNext     = 12
	leafHeaderSize  = 16
	leafPairSize    = 16 // key i64 + RID (page id i32, slot u32)
	internalHeader  = 12
	internalPair    = 12 // key i64 + child page id i32
	headerRootIDOff = 0
)

// LeafCapacity is the largest max_size a leaf page can be configured with.
func LeafCapacity() int { return (common.PageSize - leafHeaderSize) / leafPairSize }

// InternalCapacity is the largest max_size an internal page can hold.
func InternalCapacity() int { return (common.PageSize - internalHeader) / internalPair }

// BTreeNode is a typed view of the common header. It does not own the
// bytes; the caller's guard does.
type BTreeNode struct {
	data []byte
}

func AsBTreeNode(data []byte) BTreeNode {
	assert.Assert(len(data) == common.PageSize, "b+tree node view over %d bytes", len(data))
	return BTreeNode{data: data}
}

func (n BTreeNode) PageType() NodeType {
	return NodeType(binary.LittleEndian.Uint32(n.data[offPageType:]))
}

func (n BTreeNode) setPageType(t NodeType) {
	binary.LittleEndian.PutUint32(n.data[offPageType:], uint32(t))
}

func (n BTreeNode) IsLeaf() bool { return n.PageType() == NodeLeaf }

func (n BTreeNode) Size() int {
	return int(int32(binary.LittleEndian.Uint32(n.data[offSize:])))
}

func (n BTreeNode) SetSize(size int) {
	binary.LittleEndian.PutUint32(n.data[offSize:], uint32(int32(size)))
}

func (n BTreeNode) MaxSize() int {
	return int(int32(binary.LittleEndian.Uint32(n.data[offMaxSize:])))
}

func (n BTreeNode) setMaxSize(max int) {
	binary.LittleEndian.PutUint32(n.data[offMaxSize:], uint32(int32(max)))
}

// MinSize is the underflow threshold for non-root nodes.
func (n BTreeNode) MinSize() int { return (n.MaxSize() + 1) / 2 }

// LeafNode views a leaf page.
type LeafNode struct {
	BTreeNode
}

func AsLeafNode(data []byte) LeafNode {
	n := AsBTreeNode(data)
	assert.Assert(n.PageType() == NodeLeaf, "expected a leaf page, got type %d", n.PageType())
	return LeafNode{BTreeNode: n}
}

// InitLeafNode formats the given page bytes as an empty leaf.
func InitLeafNode(data []byte, maxSize int) LeafNode {
	assert.Assert(maxSize > 0 && maxSize <= LeafCapacity(),
		"leaf max size %d out of range (1..%d)", maxSize, LeafCapacity())

	n := AsBTreeNode(data)
	n.setPageType(NodeLeaf)
	n.SetSize(0)
	n.setMaxSize(maxSize)
	leaf := LeafNode{BTreeNode: n}
	leaf.SetNextPageID(common.InvalidPageID)
	return leaf
}

func (l LeafNode) NextPageID() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(l.data[offLeafNext:])))
}

func (l LeafNode) SetNextPageID(id common.PageID) {
	binary.LittleEndian.PutUint32(l.data[offLeafNext:], uint32(int32(id)))
}

func (l LeafNode) pairOff(i int) int { return leafHeaderSize + i*leafPairSize }

func (l LeafNode) KeyAt(i int) int64 {
	return int64(binary.LittleEndian.Uint64(l.data[l.pairOff(i):]))
}

func (l LeafNode) SetKeyAt(i int, key int64) {
	binary.LittleEndian.PutUint64(l.data[l.pairOff(i):], uint64(key))
}

func (l LeafNode) ValueAt(i int) common.RID {
	off := l.pairOff(i) + 8
	return common.RID{
		PageID:  common.PageID(int32(binary.LittleEndian.Uint32(l.data[off:]))),
		SlotNum: binary.LittleEndian.Uint32(l.data[off+4:]),
	}
}

func (l LeafNode) SetValueAt(i int, rid common.RID) {
	off := l.pairOff(i) + 8
	binary.LittleEndian.PutUint32(l.data[off:], uint32(int32(rid.PageID)))
	binary.LittleEndian.PutUint32(l.data[off+4:], rid.SlotNum)
}

// InternalNode views an internal page. Size counts children, i.e. the
// number of separator keys plus one.
type InternalNode struct {
	BTreeNode
}

func AsInternalNode(data []byte) InternalNode {
	n := AsBTreeNode(data)
	assert.Assert(n.PageType() == NodeInternal, "expected an internal page, got type %d", n.PageType())
	return InternalNode{BTreeNode: n}
}

// InitInternalNode formats the given page bytes as an empty internal node.
func InitInternalNode(data []byte, maxSize int) InternalNode {
	assert.Assert(maxSize > 1 && maxSize <= InternalCapacity(),
		"internal max size %d out of range (2..%d)", maxSize, InternalCapacity())

	n := AsBTreeNode(data)
	n.setPageType(NodeInternal)
	n.SetSize(0)
	n.setMaxSize(maxSize)
	return InternalNode{BTreeNode: n}
}

func (n InternalNode) pairOff(i int) int { return internalHeader + i*internalPair }

// KeyAt returns the separator at slot i. Slot 0's key is meaningless.
func (n InternalNode) KeyAt(i int) int64 {
	return int64(binary.LittleEndian.Uint64(n.data[n.pairOff(i):]))
}

func (n InternalNode) SetKeyAt(i int, key int64) {
	binary.LittleEndian.PutUint64(n.data[n.pairOff(i):], uint64(key))
}

func (n InternalNode) ChildAt(i int) common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(n.data[n.pairOff(i)+8:])))
}

func (n InternalNode) SetChildAt(i int, id common.PageID) {
	binary.LittleEndian.PutUint32(n.data[n.pairOff(i)+8:], uint32(int32(id)))
}

// HeaderNode views the tree's header page: `i32 root page id` at offset 0.
type HeaderNode struct {
	data []byte
}

func AsHeaderNode(data []byte) HeaderNode {
	assert.Assert(len(data) == common.PageSize, "header node view over %d bytes", len(data))
	return HeaderNode{data: data}
}

func (h HeaderNode) RootPageID() common.PageID {
	return common.PageID(int32(binary.LittleEndian.Uint32(h.data[headerRootIDOff:])))
}

func (h HeaderNode) SetRootPageID(id common.PageID) {
	binary.LittleEndian.PutUint32(h.data[headerRootIDOff:], uint32(int32(id)))
}
