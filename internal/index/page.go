package index

import (
	"encoding/binary"

	"github.com/quill-run/minidb/internal/disk"
	"github.com/quill-run/minidb/internal/record"
)

// Node page layout (fixed-stride, independent of the variable-length
// slotted format the table heap uses — keys are fixed-size, so every entry
// in a given tree occupies the same number of bytes):
//
//	[0:1]   isLeaf        (1 = leaf, 0 = internal)
//	[4:8]   pageID        (int32 LE)
//	[8:12]  parentID      (int32 LE, -1 for root)
//	[12:16] size          (int32 LE) — live entry count
//	[16:20] maxSize       (int32 LE) — configured capacity for this tree
//	[20:24] nextLeafID    (int32 LE) — leaves only, -1 if none
//	[24:]   entries, stride = keyLen + 8:
//	        [0:keyLen] key
//	        internal:  [keyLen:keyLen+4] child page id (int32 LE)
//	        leaf:      [keyLen:keyLen+4] row id page (int32 LE)
//	                   [keyLen+4:keyLen+8] row id slot (uint32 LE)

const headerSize = 24
const valueSize = 8

// Node wraps a pinned page buffer as a B+tree node for one tree's fixed
// keyLen.
type Node struct {
	buf    []byte
	keyLen int
}

// Wrap views an existing page buffer with the given key width.
func Wrap(buf []byte, keyLen int) *Node { return &Node{buf: buf, keyLen: keyLen} }

// InitLeaf formats buf as an empty leaf node.
func InitLeaf(buf []byte, keyLen int, pageID, parentID disk.PageID, maxSize int) *Node {
	n := &Node{buf: buf, keyLen: keyLen}
	n.buf[0] = 1
	n.setPageID(pageID)
	n.setParentID(parentID)
	n.setSize(0)
	n.setMaxSize(maxSize)
	n.setNextLeafID(disk.InvalidPageID)
	return n
}

// InitInternal formats buf as an empty internal node.
func InitInternal(buf []byte, keyLen int, pageID, parentID disk.PageID, maxSize int) *Node {
	n := &Node{buf: buf, keyLen: keyLen}
	n.buf[0] = 0
	n.setPageID(pageID)
	n.setParentID(parentID)
	n.setSize(0)
	n.setMaxSize(maxSize)
	return n
}

func (n *Node) IsLeaf() bool { return n.buf[0] == 1 }

func (n *Node) PageID() disk.PageID {
	return disk.PageID(int32(binary.LittleEndian.Uint32(n.buf[4:])))
}
func (n *Node) setPageID(id disk.PageID) { binary.LittleEndian.PutUint32(n.buf[4:], uint32(int32(id))) }

func (n *Node) ParentID() disk.PageID {
	return disk.PageID(int32(binary.LittleEndian.Uint32(n.buf[8:])))
}
func (n *Node) setParentID(id disk.PageID) { binary.LittleEndian.PutUint32(n.buf[8:], uint32(int32(id))) }

// SetParentID updates the parent-pointer, called after a split/merge moves
// a child under a different internal node.
func (n *Node) SetParentID(id disk.PageID) { n.setParentID(id) }

func (n *Node) Size() int { return int(int32(binary.LittleEndian.Uint32(n.buf[12:]))) }
func (n *Node) setSize(v int) { binary.LittleEndian.PutUint32(n.buf[12:], uint32(int32(v))) }

func (n *Node) MaxSize() int { return int(int32(binary.LittleEndian.Uint32(n.buf[16:]))) }
func (n *Node) setMaxSize(v int) { binary.LittleEndian.PutUint32(n.buf[16:], uint32(int32(v))) }

// MinSize is the occupancy floor for a non-root node of this tree.
func (n *Node) MinSize() int { return (n.MaxSize() + 1) / 2 }

func (n *Node) NextLeafID() disk.PageID {
	return disk.PageID(int32(binary.LittleEndian.Uint32(n.buf[20:])))
}
func (n *Node) setNextLeafID(id disk.PageID) {
	binary.LittleEndian.PutUint32(n.buf[20:], uint32(int32(id)))
}

// SetNextLeafID relinks this leaf's right sibling pointer.
func (n *Node) SetNextLeafID(id disk.PageID) { n.setNextLeafID(id) }

func (n *Node) stride() int { return n.keyLen + valueSize }
func (n *Node) entryOff(i int) int { return headerSize + i*n.stride() }

// KeyAt returns entry i's key.
func (n *Node) KeyAt(i int) Key {
	off := n.entryOff(i)
	return Key(n.buf[off : off+n.keyLen])
}

func (n *Node) setKeyAt(i int, k Key) {
	off := n.entryOff(i)
	copy(n.buf[off:off+n.keyLen], k)
}

// ChildAt returns entry i's child page id (internal nodes only).
func (n *Node) ChildAt(i int) disk.PageID {
	off := n.entryOff(i) + n.keyLen
	return disk.PageID(int32(binary.LittleEndian.Uint32(n.buf[off:])))
}

func (n *Node) setChildAt(i int, id disk.PageID) {
	off := n.entryOff(i) + n.keyLen
	binary.LittleEndian.PutUint32(n.buf[off:], uint32(int32(id)))
}

// ValueAt returns entry i's row id (leaf nodes only).
func (n *Node) ValueAt(i int) record.RowID {
	off := n.entryOff(i) + n.keyLen
	return record.RowID{
		PageID: int32(binary.LittleEndian.Uint32(n.buf[off:])),
		Slot:   binary.LittleEndian.Uint32(n.buf[off+4:]),
	}
}

func (n *Node) setValueAt(i int, rid record.RowID) {
	off := n.entryOff(i) + n.keyLen
	binary.LittleEndian.PutUint32(n.buf[off:], uint32(rid.PageID))
	binary.LittleEndian.PutUint32(n.buf[off+4:], rid.Slot)
}

// MinKey returns the smallest key on this node (entry 0), used to propagate
// a separator update up to the parent after a delete/merge changes it.
func (n *Node) MinKey() Key { return n.KeyAt(0) }

// insertAt shifts entries [i:size) right by one and opens a slot at i.
func (n *Node) insertAt(i int) {
	size := n.Size()
	stride := n.stride()
	srcStart := headerSize + i*stride
	srcEnd := headerSize + size*stride
	copy(n.buf[srcStart+stride:srcEnd+stride], n.buf[srcStart:srcEnd])
	n.setSize(size + 1)
}

// removeAt shifts entries (i:size) left by one, dropping entry i.
func (n *Node) removeAt(i int) {
	size := n.Size()
	stride := n.stride()
	srcStart := headerSize + (i+1)*stride
	srcEnd := headerSize + size*stride
	copy(n.buf[headerSize+i*stride:], n.buf[srcStart:srcEnd])
	n.setSize(size - 1)
}

// InsertLeafEntry inserts (key, rid) in sorted order at position i.
func (n *Node) InsertLeafEntry(i int, key Key, rid record.RowID) {
	n.insertAt(i)
	n.setKeyAt(i, key)
	n.setValueAt(i, rid)
}

// InsertInternalEntry inserts (key, child) in sorted order at position i.
func (n *Node) InsertInternalEntry(i int, key Key, child disk.PageID) {
	n.insertAt(i)
	n.setKeyAt(i, key)
	n.setChildAt(i, child)
}

// RemoveAt deletes entry i.
func (n *Node) RemoveAt(i int) { n.removeAt(i) }

// LowerBound returns the first index i with KeyAt(i) >= key (binary search).
func (n *Node) LowerBound(key Key, cmp Comparator) int {
	lo, hi := 0, n.Size()
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(n.KeyAt(mid), key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// ChildIndexFor returns the index of the child whose subtree contains key:
// the last i with KeyAt(i) <= key (internal nodes only).
func (n *Node) ChildIndexFor(key Key, cmp Comparator) int {
	i := n.LowerBound(key, cmp)
	if i == n.Size() || cmp(n.KeyAt(i), key) != 0 {
		i--
	}
	if i < 0 {
		i = 0
	}
	return i
}

// MaxEntries reports how many entries fit in a page of this width, purely
// informational (trees are configured with an explicit maxSize <= this).
func MaxEntries(pageSize, keyLen int) int {
	return (pageSize - headerSize) / (keyLen + valueSize)
}
