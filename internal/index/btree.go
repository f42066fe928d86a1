package index

import (
	"fmt"

	"github.com/quill-run/minidb/internal/buffer"
	"github.com/quill-run/minidb/internal/disk"
	"github.com/quill-run/minidb/internal/record"
	"github.com/quill-run/minidb/internal/storageerr"
)

// BTree is a clustered B+tree index: fixed-size Keys to record.RowID
// values, split/merge propagation through the buffer pool, and a persisted
// root-id entry in the IndexRootsPage.
type BTree struct {
	pool          *buffer.Pool
	roots         *Roots
	indexID       uint32
	cols          []KeyColumn
	keyLen        int
	cmp           Comparator
	leafMaxSize   int
	internalMaxSize int
	root          disk.PageID
}

// Open attaches to (or lazily creates) the tree identified by indexID, using
// its persisted root page id if one exists.
func Open(pool *buffer.Pool, roots *Roots, indexID uint32, cols []KeyColumn, leafMaxSize, internalMaxSize int) (*BTree, error) {
	root, err := roots.GetRootID(indexID)
	if err != nil {
		return nil, err
	}
	return &BTree{
		pool: pool, roots: roots, indexID: indexID, cols: cols, keyLen: KeyLen(cols),
		cmp: NewComparator(cols), leafMaxSize: leafMaxSize, internalMaxSize: internalMaxSize,
		root: root,
	}, nil
}

// Create registers a brand-new, empty tree's IndexRootsPage entry.
func Create(pool *buffer.Pool, roots *Roots, indexID uint32, cols []KeyColumn, leafMaxSize, internalMaxSize int) (*BTree, error) {
	if err := roots.Insert(indexID, disk.InvalidPageID); err != nil {
		return nil, err
	}
	return &BTree{
		pool: pool, roots: roots, indexID: indexID, cols: cols, keyLen: KeyLen(cols),
		cmp: NewComparator(cols), leafMaxSize: leafMaxSize, internalMaxSize: internalMaxSize,
		root: disk.InvalidPageID,
	}, nil
}

// IsEmpty reports whether the tree has no root page: root_page_id ==
// INVALID iff the tree is empty.
func (t *BTree) IsEmpty() bool { return t.root == disk.InvalidPageID }

func (t *BTree) fetchNode(id disk.PageID) (*buffer.Frame, *Node, error) {
	f, err := t.pool.Fetch(id)
	if err != nil {
		return nil, nil, err
	}
	return f, Wrap(f.Data[:], t.keyLen), nil
}

// Search performs a point lookup.
func (t *BTree) Search(key Key) (record.RowID, bool, error) {
	if t.IsEmpty() {
		return record.RowID{}, false, nil
	}
	cur := t.root
	for {
		f, n, err := t.fetchNode(cur)
		if err != nil {
			return record.RowID{}, false, err
		}
		if n.IsLeaf() {
			idx := n.LowerBound(key, t.cmp)
			if idx < n.Size() && t.cmp(n.KeyAt(idx), key) == 0 {
				rid := n.ValueAt(idx)
				t.pool.Unpin(cur, false)
				return rid, true, nil
			}
			t.pool.Unpin(cur, false)
			return record.RowID{}, false, nil
		}
		idx := n.ChildIndexFor(key, t.cmp)
		child := n.ChildAt(idx)
		_ = f
		t.pool.Unpin(cur, false)
		cur = child
	}
}

// descend walks from root to the leaf that should contain key, returning
// the path of ancestor page ids (root first) above that leaf. No page stays
// pinned across the call.
func (t *BTree) descend(key Key) ([]disk.PageID, disk.PageID, error) {
	var path []disk.PageID
	cur := t.root
	for {
		f, n, err := t.fetchNode(cur)
		if err != nil {
			return nil, disk.InvalidPageID, err
		}
		_ = f
		if n.IsLeaf() {
			t.pool.Unpin(cur, false)
			return path, cur, nil
		}
		idx := n.ChildIndexFor(key, t.cmp)
		child := n.ChildAt(idx)
		t.pool.Unpin(cur, false)
		path = append(path, cur)
		cur = child
	}
}

func (t *BTree) setParent(child disk.PageID, parent disk.PageID) error {
	f, n, err := t.fetchNode(child)
	if err != nil {
		return err
	}
	n.SetParentID(parent)
	return t.pool.Unpin(child, true)
}

func (t *BTree) persistRoot(id disk.PageID) error {
	t.root = id
	if _, err := t.roots.GetRootID(t.indexID); err != nil {
		return err
	}
	return t.roots.Update(t.indexID, id)
}

// Insert adds (key, rid); fails with ErrDuplicateKey if key is present.
func (t *BTree) Insert(key Key, rid record.RowID) error {
	if t.IsEmpty() {
		id, f, err := t.pool.NewPage()
		if err != nil {
			return fmt.Errorf("btree insert: %w", err)
		}
		leaf := InitLeaf(f.Data[:], t.keyLen, id, disk.InvalidPageID, t.leafMaxSize)
		leaf.InsertLeafEntry(0, key, rid)
		if err := t.pool.Unpin(id, true); err != nil {
			return err
		}
		return t.persistRoot(id)
	}

	path, leafID, err := t.descend(key)
	if err != nil {
		return err
	}
	f, leaf, err := t.fetchNode(leafID)
	if err != nil {
		return err
	}
	_ = f
	idx := leaf.LowerBound(key, t.cmp)
	if idx < leaf.Size() && Equal(leaf.KeyAt(idx), key) {
		t.pool.Unpin(leafID, false)
		return fmt.Errorf("btree insert: %w", storageerr.ErrDuplicateKey)
	}

	if leaf.Size() < leaf.MaxSize() {
		leaf.InsertLeafEntry(idx, key, rid)
		t.pool.Unpin(leafID, true)
		if idx == 0 {
			return t.propagateMinKey(path, leafID, key)
		}
		return nil
	}

	// Leaf full: collect size+1 entries (old + new, in order) and split.
	n := leaf.Size()
	keys := make([]Key, 0, n+1)
	vals := make([]record.RowID, 0, n+1)
	for i := 0; i < idx; i++ {
		keys = append(keys, append(Key(nil), leaf.KeyAt(i)...))
		vals = append(vals, leaf.ValueAt(i))
	}
	keys = append(keys, key)
	vals = append(vals, rid)
	for i := idx; i < n; i++ {
		keys = append(keys, append(Key(nil), leaf.KeyAt(i)...))
		vals = append(vals, leaf.ValueAt(i))
	}

	rightCount := (len(keys) + 1) / 2
	leftCount := len(keys) - rightCount
	oldNext := leaf.NextLeafID()
	parentID := disk.InvalidPageID
	if len(path) > 0 {
		parentID = path[len(path)-1]
	}

	rightID, rf, err := t.pool.NewPage()
	if err != nil {
		t.pool.Unpin(leafID, false)
		return fmt.Errorf("btree insert split: %w", err)
	}
	rightLeaf := InitLeaf(rf.Data[:], t.keyLen, rightID, parentID, t.leafMaxSize)
	for i := leftCount; i < len(keys); i++ {
		rightLeaf.InsertLeafEntry(i-leftCount, keys[i], vals[i])
	}
	rightLeaf.SetNextLeafID(oldNext)

	// Rewrite left leaf in place with only the retained entries.
	for leaf.Size() > 0 {
		leaf.RemoveAt(leaf.Size() - 1)
	}
	for i := 0; i < leftCount; i++ {
		leaf.InsertLeafEntry(i, keys[i], vals[i])
	}
	leaf.SetNextLeafID(rightID)

	t.pool.Unpin(leafID, true)
	t.pool.Unpin(rightID, true)

	if idx == 0 {
		// The new key became the left leaf's minimum: the parent's existing
		// separator for leafID is now stale and must be rewritten, exactly
		// as the non-split insert path above does.
		if err := t.propagateMinKey(path, leafID, key); err != nil {
			return err
		}
	}

	return t.insertChildIntoParent(path, leafID, rightID, keys[leftCount])
}

// insertChildIntoParent inserts a new (sepKey -> rightID) separator after
// leftID's entry in path's last node, splitting that internal node (and
// recursing) if it is full, or creating a new root if leftID was the root.
func (t *BTree) insertChildIntoParent(path []disk.PageID, leftID, rightID disk.PageID, sepKey Key) error {
	if len(path) == 0 {
		// leftID was the root: create a new root over {leftID, rightID}.
		_, leftNode, err := t.fetchNode(leftID)
		if err != nil {
			return err
		}
		leftMin := append(Key(nil), leftNode.MinKey()...)
		t.pool.Unpin(leftID, false)

		newRootID, f, err := t.pool.NewPage()
		if err != nil {
			return fmt.Errorf("btree new root: %w", err)
		}
		root := InitInternal(f.Data[:], t.keyLen, newRootID, disk.InvalidPageID, t.internalMaxSize)
		root.InsertInternalEntry(0, leftMin, leftID)
		root.InsertInternalEntry(1, sepKey, rightID)
		if err := t.pool.Unpin(newRootID, true); err != nil {
			return err
		}
		if err := t.setParent(leftID, newRootID); err != nil {
			return err
		}
		if err := t.setParent(rightID, newRootID); err != nil {
			return err
		}
		return t.persistRoot(newRootID)
	}

	parentID := path[len(path)-1]
	grandPath := path[:len(path)-1]
	f, parent, err := t.fetchNode(parentID)
	if err != nil {
		return err
	}
	_ = f
	insertIdx := -1
	for i := 0; i < parent.Size(); i++ {
		if parent.ChildAt(i) == leftID {
			insertIdx = i + 1
			break
		}
	}
	if insertIdx < 0 {
		t.pool.Unpin(parentID, false)
		return fmt.Errorf("btree insert: left child not found in parent")
	}

	if parent.Size() < parent.MaxSize() {
		parent.InsertInternalEntry(insertIdx, sepKey, rightID)
		t.pool.Unpin(parentID, true)
		return t.setParent(rightID, parentID)
	}

	// Parent full: split it too.
	n := parent.Size()
	keys := make([]Key, 0, n+1)
	children := make([]disk.PageID, 0, n+1)
	for i := 0; i < insertIdx; i++ {
		keys = append(keys, append(Key(nil), parent.KeyAt(i)...))
		children = append(children, parent.ChildAt(i))
	}
	keys = append(keys, sepKey)
	children = append(children, rightID)
	for i := insertIdx; i < n; i++ {
		keys = append(keys, append(Key(nil), parent.KeyAt(i)...))
		children = append(children, parent.ChildAt(i))
	}

	rightCount := (len(keys) + 1) / 2
	leftCount := len(keys) - rightCount

	newRightID, rf, err := t.pool.NewPage()
	if err != nil {
		t.pool.Unpin(parentID, false)
		return fmt.Errorf("btree insert split internal: %w", err)
	}
	rightInternal := InitInternal(rf.Data[:], t.keyLen, newRightID, disk.InvalidPageID, t.internalMaxSize)
	for i := leftCount; i < len(keys); i++ {
		rightInternal.InsertInternalEntry(i-leftCount, keys[i], children[i])
	}

	for parent.Size() > 0 {
		parent.RemoveAt(parent.Size() - 1)
	}
	for i := 0; i < leftCount; i++ {
		parent.InsertInternalEntry(i, keys[i], children[i])
	}

	t.pool.Unpin(parentID, true)
	t.pool.Unpin(newRightID, true)

	for i := leftCount; i < len(keys); i++ {
		if err := t.setParent(children[i], newRightID); err != nil {
			return err
		}
	}

	return t.insertChildIntoParent(grandPath, parentID, newRightID, keys[leftCount])
}

// propagateMinKey walks path bottom-up, rewriting the separator each
// ancestor holds for childID whenever it no longer matches newMin, stopping
// as soon as an ancestor's own min key (entry 0) is unaffected.
func (t *BTree) propagateMinKey(path []disk.PageID, childID disk.PageID, newMin Key) error {
	cur := childID
	curMin := newMin
	for i := len(path) - 1; i >= 0; i-- {
		parentID := path[i]
		f, parent, err := t.fetchNode(parentID)
		if err != nil {
			return err
		}
		_ = f
		idx := -1
		for j := 0; j < parent.Size(); j++ {
			if parent.ChildAt(j) == cur {
				idx = j
				break
			}
		}
		if idx < 0 {
			t.pool.Unpin(parentID, false)
			return fmt.Errorf("btree propagate: child not found in parent")
		}
		if Equal(parent.KeyAt(idx), curMin) {
			t.pool.Unpin(parentID, false)
			return nil
		}
		parent.setKeyAt(idx, curMin)
		wasFirst := idx == 0
		t.pool.Unpin(parentID, true)
		if !wasFirst {
			return nil
		}
		cur = parentID
		curMin = append(Key(nil), curMin...)
	}
	return nil
}
