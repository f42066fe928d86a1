package index

import (
	"github.com/quill-run/minidb/internal/disk"
	"github.com/quill-run/minidb/internal/record"
)

// Iterator is a forward cursor over a tree's leaves in ascending key order,
// keeping at most one leaf pinned at a time.
type Iterator struct {
	tree   *BTree
	pageID disk.PageID
	idx    int
}

// Begin descends leftmost to the first leaf, positioned at its first entry.
func (t *BTree) Begin() (*Iterator, error) {
	if t.IsEmpty() {
		return t.End(), nil
	}
	cur := t.root
	for {
		f, n, err := t.fetchNode(cur)
		if err != nil {
			return nil, err
		}
		_ = f
		if n.IsLeaf() {
			t.pool.Unpin(cur, false)
			return &Iterator{tree: t, pageID: cur, idx: 0}, nil
		}
		child := n.ChildAt(0)
		t.pool.Unpin(cur, false)
		cur = child
	}
}

// BeginAt descends to the leaf that would contain key; if key is absent,
// the result is End() if key is absent.
func (t *BTree) BeginAt(key Key) (*Iterator, error) {
	if t.IsEmpty() {
		return t.End(), nil
	}
	_, leafID, err := t.descend(key)
	if err != nil {
		return nil, err
	}
	f, leaf, err := t.fetchNode(leafID)
	if err != nil {
		return nil, err
	}
	_ = f
	idx := leaf.LowerBound(key, t.cmp)
	found := idx < leaf.Size() && Equal(leaf.KeyAt(idx), key)
	t.pool.Unpin(leafID, false)
	if !found {
		return t.End(), nil
	}
	return &Iterator{tree: t, pageID: leafID, idx: idx}, nil
}

// End returns the sentinel end-of-tree iterator.
func (t *BTree) End() *Iterator { return &Iterator{tree: t, pageID: disk.InvalidPageID} }

// Done reports whether the iterator is at the sentinel.
func (it *Iterator) Done() bool { return it.pageID == disk.InvalidPageID }

// Equal compares two iterators by position only.
func (it *Iterator) Equal(o *Iterator) bool {
	if it.Done() || o.Done() {
		return it.Done() == o.Done()
	}
	return it.pageID == o.pageID && it.idx == o.idx
}

// Key returns the current entry's key.
func (it *Iterator) Key() (Key, error) {
	f, n, err := it.tree.fetchNode(it.pageID)
	if err != nil {
		return nil, err
	}
	_ = f
	defer it.tree.pool.Unpin(it.pageID, false)
	return append(Key(nil), n.KeyAt(it.idx)...), nil
}

// Value returns the current entry's row id.
func (it *Iterator) Value() (record.RowID, error) {
	f, n, err := it.tree.fetchNode(it.pageID)
	if err != nil {
		return record.RowID{}, err
	}
	_ = f
	defer it.tree.pool.Unpin(it.pageID, false)
	return n.ValueAt(it.idx), nil
}

// Next advances to the next entry, crossing into the right-linked sibling
// leaf when the current one is exhausted.
func (it *Iterator) Next() error {
	if it.Done() {
		return nil
	}
	f, n, err := it.tree.fetchNode(it.pageID)
	if err != nil {
		return err
	}
	_ = f
	if it.idx+1 < n.Size() {
		it.tree.pool.Unpin(it.pageID, false)
		it.idx++
		return nil
	}
	next := n.NextLeafID()
	it.tree.pool.Unpin(it.pageID, false)
	it.pageID = next
	it.idx = 0
	return nil
}
