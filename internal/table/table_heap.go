package table

import (
	"fmt"

	"github.com/quill-run/minidb/internal/buffer"
	"github.com/quill-run/minidb/internal/disk"
	"github.com/quill-run/minidb/internal/record"
	"github.com/quill-run/minidb/internal/storageerr"
)

// Heap is a singly linked list of TablePages holding every row of one
// table. CreateHeap allocates the first page up front; inserts are not
// lazily given a first page, so a Heap that NewHeap wraps around
// disk.InvalidPageID has no page and its inserts fail.
type Heap struct {
	pool         *buffer.Pool
	schema       *record.Schema
	firstPageID  disk.PageID
	lastPageID   disk.PageID
}

// NewHeap wraps an existing table heap rooted at firstPageID.
func NewHeap(pool *buffer.Pool, schema *record.Schema, firstPageID disk.PageID) *Heap {
	h := &Heap{pool: pool, schema: schema, firstPageID: firstPageID, lastPageID: firstPageID}
	if firstPageID != disk.InvalidPageID {
		h.lastPageID = h.findLastPageID(firstPageID)
	}
	return h
}

// CreateHeap allocates a fresh, empty table heap and returns it.
func CreateHeap(pool *buffer.Pool, schema *record.Schema) (*Heap, error) {
	id, frame, err := pool.NewPage()
	if err != nil {
		return nil, fmt.Errorf("create table heap: %w", err)
	}
	Init(frame.Data[:], disk.InvalidPageID)
	if err := pool.Unpin(id, true); err != nil {
		return nil, err
	}
	return &Heap{pool: pool, schema: schema, firstPageID: id, lastPageID: id}, nil
}

// FirstPageID reports the heap's head page, persisted in TableMetadata.
func (h *Heap) FirstPageID() disk.PageID { return h.firstPageID }

func (h *Heap) findLastPageID(start disk.PageID) disk.PageID {
	cur := start
	for {
		frame, err := h.pool.Fetch(cur)
		if err != nil {
			return cur
		}
		p := Wrap(frame.Data[:])
		next := p.NextPageID()
		h.pool.Unpin(cur, false)
		if next == disk.InvalidPageID {
			return cur
		}
		cur = next
	}
}

// InsertTuple serializes row under the heap's schema and appends it to the
// last page, allocating a new page if the current one is full.
func (h *Heap) InsertTuple(row *record.Row) (record.RowID, error) {
	size := row.SerializedSize(h.schema)
	if size > MaxRowSize(disk.PageSize) {
		return record.InvalidRowID, fmt.Errorf("insert tuple: %w", storageerr.ErrRowTooLarge)
	}
	data := make([]byte, size)
	row.SerializeTo(data)

	frame, err := h.pool.Fetch(h.lastPageID)
	if err != nil {
		return record.InvalidRowID, err
	}
	p := Wrap(frame.Data[:])
	slot, err := p.InsertTuple(data)
	if err == nil {
		h.pool.Unpin(h.lastPageID, true)
		return record.RowID{PageID: int32(h.lastPageID), Slot: slot}, nil
	}
	h.pool.Unpin(h.lastPageID, false)

	// Current page full: allocate and link a new one.
	newID, newFrame, err := h.pool.NewPage()
	if err != nil {
		return record.InvalidRowID, fmt.Errorf("insert tuple: allocate page: %w", err)
	}
	Init(newFrame.Data[:], h.lastPageID)

	oldFrame, err := h.pool.Fetch(h.lastPageID)
	if err != nil {
		return record.InvalidRowID, err
	}
	oldPage := Wrap(oldFrame.Data[:])
	oldPage.SetNextPageID(newID)
	h.pool.Unpin(h.lastPageID, true)

	newPage := Wrap(newFrame.Data[:])
	slot, err = newPage.InsertTuple(data)
	if err != nil {
		h.pool.Unpin(newID, true)
		return record.InvalidRowID, fmt.Errorf("insert tuple: %w", storageerr.ErrRowTooLarge)
	}
	h.pool.Unpin(newID, true)
	h.lastPageID = newID
	return record.RowID{PageID: int32(newID), Slot: slot}, nil
}

// GetTuple fetches and decodes the row addressed by rid.
func (h *Heap) GetTuple(rid record.RowID) (*record.Row, error) {
	pid := disk.PageID(rid.PageID)
	frame, err := h.pool.Fetch(pid)
	if err != nil {
		return nil, err
	}
	defer h.pool.Unpin(pid, false)
	p := Wrap(frame.Data[:])
	return p.DecodeRow(pid, rid.Slot, h.schema)
}

// MarkDelete flags rid for deletion without reclaiming its bytes.
func (h *Heap) MarkDelete(rid record.RowID) error {
	pid := disk.PageID(rid.PageID)
	frame, err := h.pool.Fetch(pid)
	if err != nil {
		return err
	}
	err = Wrap(frame.Data[:]).MarkDelete(rid.Slot)
	h.pool.Unpin(pid, err == nil)
	return err
}

// RollbackDelete undoes a pending MarkDelete.
func (h *Heap) RollbackDelete(rid record.RowID) error {
	pid := disk.PageID(rid.PageID)
	frame, err := h.pool.Fetch(pid)
	if err != nil {
		return err
	}
	err = Wrap(frame.Data[:]).RollbackDelete(rid.Slot)
	h.pool.Unpin(pid, err == nil)
	return err
}

// ApplyDelete finalizes a previously marked deletion.
func (h *Heap) ApplyDelete(rid record.RowID) error {
	pid := disk.PageID(rid.PageID)
	frame, err := h.pool.Fetch(pid)
	if err != nil {
		return err
	}
	err = Wrap(frame.Data[:]).ApplyDelete(rid.Slot)
	h.pool.Unpin(pid, err == nil)
	return err
}

// UpdateTuple attempts an in-place update; if the new row does not fit, it
// deletes the old row (MarkDelete then ApplyDelete) and Inserts the new one
// (see DESIGN.md for the
// tri-valued page-level contract this drives). The caller is responsible
// for updating any indexes when the row_id changes.
func (h *Heap) UpdateTuple(row *record.Row, rid record.RowID) (record.RowID, error) {
	pid := disk.PageID(rid.PageID)
	size := row.SerializedSize(h.schema)
	if size > MaxRowSize(disk.PageSize) {
		return record.InvalidRowID, fmt.Errorf("update tuple: %w", storageerr.ErrRowTooLarge)
	}
	data := make([]byte, size)
	row.SerializeTo(data)

	frame, err := h.pool.Fetch(pid)
	if err != nil {
		return record.InvalidRowID, err
	}
	p := Wrap(frame.Data[:])
	res := p.UpdateTuple(rid.Slot, data)
	switch res {
	case UpdatedInPlace:
		h.pool.Unpin(pid, true)
		return rid, nil
	case UpdateFailed:
		h.pool.Unpin(pid, false)
		return record.InvalidRowID, fmt.Errorf("update tuple: %w", storageerr.ErrSlotNotFound)
	default: // UpdateDoesNotFit
		if err := p.MarkDelete(rid.Slot); err != nil {
			h.pool.Unpin(pid, false)
			return record.InvalidRowID, err
		}
		if err := p.ApplyDelete(rid.Slot); err != nil {
			h.pool.Unpin(pid, true)
			return record.InvalidRowID, err
		}
		h.pool.Unpin(pid, true)
		return h.InsertTuple(row)
	}
}

// FreeHeap deletes every page in the chain via the buffer pool.
func (h *Heap) FreeHeap() error {
	cur := h.firstPageID
	for cur != disk.InvalidPageID {
		frame, err := h.pool.Fetch(cur)
		if err != nil {
			return err
		}
		p := Wrap(frame.Data[:])
		next := p.NextPageID()
		h.pool.Unpin(cur, false)
		if err := h.pool.DeletePage(cur); err != nil {
			return fmt.Errorf("free heap page %d: %w", cur, err)
		}
		cur = next
	}
	return nil
}

// Begin returns an iterator positioned at the first live tuple, or End() if
// the heap is empty.
func (h *Heap) Begin() (*Iterator, error) {
	cur := h.firstPageID
	for cur != disk.InvalidPageID {
		frame, err := h.pool.Fetch(cur)
		if err != nil {
			return nil, err
		}
		p := Wrap(frame.Data[:])
		slot, ok := p.GetFirstTupleRid()
		next := p.NextPageID()
		h.pool.Unpin(cur, false)
		if ok {
			return &Iterator{heap: h, pageID: cur, slot: slot}, nil
		}
		cur = next
	}
	return h.End(), nil
}

// End returns the sentinel end-of-heap iterator.
func (h *Heap) End() *Iterator {
	return &Iterator{heap: h, pageID: disk.InvalidPageID}
}
