package table

import (
	"github.com/quill-run/minidb/internal/disk"
	"github.com/quill-run/minidb/internal/record"
)

// Iterator is a forward cursor over the live tuples of a Heap. It owns no
// long-lived pin (each Row/Next call pins only as long as it needs the
// page), and equality compares (page_id, slot) alone — never pointer
// identity of the underlying heap or row (see DESIGN.md).
type Iterator struct {
	heap   *Heap
	pageID disk.PageID
	slot   uint32
}

// Done reports whether the iterator has reached the end sentinel.
func (it *Iterator) Done() bool { return it.pageID == disk.InvalidPageID }

// Equal implements the corrected (page_id, slot)-only equality contract.
func (it *Iterator) Equal(o *Iterator) bool {
	if it.Done() || o.Done() {
		return it.Done() == o.Done()
	}
	return it.pageID == o.pageID && it.slot == o.slot
}

// Row decodes and returns the tuple the iterator currently points at.
func (it *Iterator) Row() (*record.Row, error) {
	if it.Done() {
		return nil, nil
	}
	frame, err := it.heap.pool.Fetch(it.pageID)
	if err != nil {
		return nil, err
	}
	defer it.heap.pool.Unpin(it.pageID, false)
	return Wrap(frame.Data[:]).DecodeRow(it.pageID, it.slot, it.heap.schema)
}

// RowID returns the current row's stable address.
func (it *Iterator) RowID() record.RowID {
	return record.RowID{PageID: int32(it.pageID), Slot: it.slot}
}

// Next advances to the next live tuple, walking forward through linked
// pages as needed. It is a no-op once Done.
func (it *Iterator) Next() error {
	if it.Done() {
		return nil
	}
	frame, err := it.heap.pool.Fetch(it.pageID)
	if err != nil {
		return err
	}
	p := Wrap(frame.Data[:])
	if slot, ok := p.GetNextTupleRid(it.slot); ok {
		it.heap.pool.Unpin(it.pageID, false)
		it.slot = slot
		return nil
	}
	next := p.NextPageID()
	it.heap.pool.Unpin(it.pageID, false)

	for next != disk.InvalidPageID {
		frame, err := it.heap.pool.Fetch(next)
		if err != nil {
			return err
		}
		np := Wrap(frame.Data[:])
		if slot, ok := np.GetFirstTupleRid(); ok {
			afterNext := np.NextPageID()
			it.heap.pool.Unpin(next, false)
			it.pageID = next
			it.slot = slot
			_ = afterNext
			return nil
		}
		afterNext := np.NextPageID()
		it.heap.pool.Unpin(next, false)
		next = afterNext
	}
	it.pageID = disk.InvalidPageID
	return nil
}
