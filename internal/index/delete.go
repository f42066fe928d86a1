package index

import (
	"fmt"

	"github.com/quill-run/minidb/internal/disk"
	"github.com/quill-run/minidb/internal/storageerr"
)

// Delete removes key from the tree if present, rebalancing (redistribute or
// merge) any node that drops below its MinSize, unwinding to the root.
// Absent keys return ErrKeyNotFound.
func (t *BTree) Delete(key Key) error {
	if t.IsEmpty() {
		return fmt.Errorf("btree delete: %w", storageerr.ErrKeyNotFound)
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
	if idx >= leaf.Size() || !Equal(leaf.KeyAt(idx), key) {
		t.pool.Unpin(leafID, false)
		return fmt.Errorf("btree delete: %w", storageerr.ErrKeyNotFound)
	}
	leaf.RemoveAt(idx)
	minChanged := idx == 0 && leaf.Size() > 0
	var newMin Key
	if minChanged {
		newMin = append(Key(nil), leaf.MinKey()...)
	}
	t.pool.Unpin(leafID, true)

	if minChanged {
		if err := t.propagateMinKey(path, leafID, newMin); err != nil {
			return err
		}
	}
	return t.rebalance(path, leafID)
}

// rebalance fixes an underflow at nodeID (leaf or internal), whose parent is
// path's last entry, recursing upward through merges.
func (t *BTree) rebalance(path []disk.PageID, nodeID disk.PageID) error {
	f, node, err := t.fetchNode(nodeID)
	if err != nil {
		return err
	}
	_ = f
	size := node.Size()
	isRoot := len(path) == 0

	if isRoot {
		if !node.IsLeaf() && size == 1 {
			onlyChild := node.ChildAt(0)
			t.pool.Unpin(nodeID, false)
			if err := t.setParent(onlyChild, disk.InvalidPageID); err != nil {
				return err
			}
			if err := t.pool.DeletePage(nodeID); err != nil {
				return err
			}
			return t.persistRoot(onlyChild)
		}
		if node.IsLeaf() && size == 0 {
			t.pool.Unpin(nodeID, false)
			if err := t.pool.DeletePage(nodeID); err != nil {
				return err
			}
			return t.persistRoot(disk.InvalidPageID)
		}
		t.pool.Unpin(nodeID, false)
		return nil
	}

	if size >= node.MinSize() {
		t.pool.Unpin(nodeID, false)
		return nil
	}
	maxSize := node.MaxSize()
	isLeaf := node.IsLeaf()
	t.pool.Unpin(nodeID, false)

	parentID := path[len(path)-1]
	grandPath := path[:len(path)-1]
	pf, parent, err := t.fetchNode(parentID)
	if err != nil {
		return err
	}
	_ = pf
	myIdx := -1
	for i := 0; i < parent.Size(); i++ {
		if parent.ChildAt(i) == nodeID {
			myIdx = i
			break
		}
	}
	if myIdx < 0 {
		t.pool.Unpin(parentID, false)
		return fmt.Errorf("btree rebalance: child not found in parent")
	}
	var leftSibID, rightSibID disk.PageID = disk.InvalidPageID, disk.InvalidPageID
	if myIdx > 0 {
		leftSibID = parent.ChildAt(myIdx - 1)
	}
	if myIdx < parent.Size()-1 {
		rightSibID = parent.ChildAt(myIdx + 1)
	}

	leftSize, rightSize := -1, -1
	if leftSibID != disk.InvalidPageID {
		_, ls, err := t.fetchNode(leftSibID)
		if err != nil {
			t.pool.Unpin(parentID, false)
			return err
		}
		leftSize = ls.Size()
		t.pool.Unpin(leftSibID, false)
	}
	if rightSibID != disk.InvalidPageID {
		_, rs, err := t.fetchNode(rightSibID)
		if err != nil {
			t.pool.Unpin(parentID, false)
			return err
		}
		rightSize = rs.Size()
		t.pool.Unpin(rightSibID, false)
	}

	switch {
	case leftSibID != disk.InvalidPageID && leftSize+size <= maxSize:
		t.pool.Unpin(parentID, false)
		if err := t.mergeInto(leftSibID, nodeID, isLeaf); err != nil {
			return err
		}
		if err := t.removeChildEntry(parentID, myIdx); err != nil {
			return err
		}
		return t.rebalance(grandPath, parentID)
	case rightSibID != disk.InvalidPageID && rightSize+size <= maxSize:
		t.pool.Unpin(parentID, false)
		if err := t.mergeInto(nodeID, rightSibID, isLeaf); err != nil {
			return err
		}
		if err := t.removeChildEntry(parentID, myIdx+1); err != nil {
			return err
		}
		return t.rebalance(grandPath, parentID)
	case leftSibID != disk.InvalidPageID:
		t.pool.Unpin(parentID, false)
		return t.redistributeFromLeft(parentID, myIdx, leftSibID, nodeID, isLeaf)
	default:
		t.pool.Unpin(parentID, false)
		return t.redistributeFromRight(parentID, myIdx, nodeID, rightSibID, isLeaf)
	}
}

// mergeInto appends rightID's entries onto leftID, relinking the leaf chain
// if applicable and reparenting any moved children, then frees rightID.
func (t *BTree) mergeInto(leftID, rightID disk.PageID, isLeaf bool) error {
	_, left, err := t.fetchNode(leftID)
	if err != nil {
		return err
	}
	_, right, err := t.fetchNode(rightID)
	if err != nil {
		t.pool.Unpin(leftID, false)
		return err
	}
	base := left.Size()
	rightChildren := make([]disk.PageID, 0, right.Size())
	for i := 0; i < right.Size(); i++ {
		if isLeaf {
			left.InsertLeafEntry(base+i, right.KeyAt(i), right.ValueAt(i))
		} else {
			child := right.ChildAt(i)
			rightChildren = append(rightChildren, child)
			left.InsertInternalEntry(base+i, right.KeyAt(i), child)
		}
	}
	if isLeaf {
		left.SetNextLeafID(right.NextLeafID())
	}
	t.pool.Unpin(leftID, true)
	t.pool.Unpin(rightID, false)

	for _, child := range rightChildren {
		if err := t.setParent(child, leftID); err != nil {
			return err
		}
	}
	return t.pool.DeletePage(rightID)
}

func (t *BTree) removeChildEntry(parentID disk.PageID, idx int) error {
	_, parent, err := t.fetchNode(parentID)
	if err != nil {
		return err
	}
	parent.RemoveAt(idx)
	return t.pool.Unpin(parentID, true)
}

// redistributeFromLeft moves leftID's last entry to the front of nodeID,
// updating the parent separator for nodeID.
func (t *BTree) redistributeFromLeft(parentID disk.PageID, nodeIdx int, leftID, nodeID disk.PageID, isLeaf bool) error {
	_, left, err := t.fetchNode(leftID)
	if err != nil {
		return err
	}
	_, node, err := t.fetchNode(nodeID)
	if err != nil {
		t.pool.Unpin(leftID, false)
		return err
	}
	last := left.Size() - 1
	movedKey := append(Key(nil), left.KeyAt(last)...)
	var movedChildID disk.PageID
	if isLeaf {
		val := left.ValueAt(last)
		left.RemoveAt(last)
		node.InsertLeafEntry(0, movedKey, val)
	} else {
		movedChildID = left.ChildAt(last)
		left.RemoveAt(last)
		node.InsertInternalEntry(0, movedKey, movedChildID)
	}
	t.pool.Unpin(leftID, true)
	t.pool.Unpin(nodeID, true)
	if !isLeaf {
		if err := t.setParent(movedChildID, nodeID); err != nil {
			return err
		}
	}

	_, parent, err := t.fetchNode(parentID)
	if err != nil {
		return err
	}
	parent.setKeyAt(nodeIdx, movedKey)
	return t.pool.Unpin(parentID, true)
}

// redistributeFromRight moves rightID's first entry to the end of nodeID,
// updating the parent separator for rightID.
func (t *BTree) redistributeFromRight(parentID disk.PageID, nodeIdx int, nodeID, rightID disk.PageID, isLeaf bool) error {
	_, node, err := t.fetchNode(nodeID)
	if err != nil {
		return err
	}
	_, right, err := t.fetchNode(rightID)
	if err != nil {
		t.pool.Unpin(nodeID, false)
		return err
	}
	movedKey := append(Key(nil), right.KeyAt(0)...)
	var movedChildID disk.PageID
	if isLeaf {
		val := right.ValueAt(0)
		right.RemoveAt(0)
		node.InsertLeafEntry(node.Size(), movedKey, val)
	} else {
		movedChildID = right.ChildAt(0)
		right.RemoveAt(0)
		node.InsertInternalEntry(node.Size(), movedKey, movedChildID)
	}
	var newRightMin Key
	if right.Size() > 0 {
		newRightMin = append(Key(nil), right.KeyAt(0)...)
	} else {
		newRightMin = movedKey
	}
	t.pool.Unpin(nodeID, true)
	t.pool.Unpin(rightID, true)
	if !isLeaf {
		if err := t.setParent(movedChildID, nodeID); err != nil {
			return err
		}
	}

	_, parent, err := t.fetchNode(parentID)
	if err != nil {
		return err
	}
	parent.setKeyAt(nodeIdx+1, newRightMin)
	return t.pool.Unpin(parentID, true)
}

// Destroy frees every page of the tree and removes its IndexRootsPage
// entry (DropIndex).
func (t *BTree) Destroy() error {
	if !t.IsEmpty() {
		if err := t.destroySubtree(t.root); err != nil {
			return err
		}
	}
	return t.roots.Delete(t.indexID)
}

func (t *BTree) destroySubtree(id disk.PageID) error {
	_, node, err := t.fetchNode(id)
	if err != nil {
		return err
	}
	if node.IsLeaf() {
		t.pool.Unpin(id, false)
		return t.pool.DeletePage(id)
	}
	children := make([]disk.PageID, node.Size())
	for i := range children {
		children[i] = node.ChildAt(i)
	}
	t.pool.Unpin(id, false)
	for _, c := range children {
		if err := t.destroySubtree(c); err != nil {
			return err
		}
	}
	return t.pool.DeletePage(id)
}
