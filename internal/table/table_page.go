// Package table implements the slotted TablePage format, the TableHeap
// linked list of pages, and the forward TableIterator — grounded on the
// reference engine's slotted-page layout (internal/storage/pager/slotted_page.go),
// with a tombstone/mark-delete/apply-delete three-phase delete protocol and
// row-id-stable slot semantics.
package table

import (
	"encoding/binary"
	"fmt"

	"github.com/quill-run/minidb/internal/disk"
	"github.com/quill-run/minidb/internal/record"
	"github.com/quill-run/minidb/internal/storageerr"
)

// ───────────────────────────────────────────────────────────────────────────
// Layout
// ───────────────────────────────────────────────────────────────────────────
//
//	[0:4]   PrevPageID  (int32 LE, -1 if none)
//	[4:8]   NextPageID  (int32 LE, -1 if none)
//	[8:12]  FreeSpacePtr (uint32 LE) — byte offset where tuple data begins
//	[12:16] TupleCount   (uint32 LE) — number of slots, including tombstones
//	[16:]   Slot directory, 8 bytes each: [offset uint32][size uint32]
//	        size's high bit (0x8000_0000) marks a MarkDelete-pending tuple;
//	        offset == 0 && size == 0 (high bit clear) marks an ApplyDelete
//	        tombstone whose bytes have been compacted out; InsertTuple
//	        reuses the lowest such slot, so its row-id can be handed out again.

const (
	phPrevOff       = 0
	phNextOff       = 4
	phFreeSpaceOff  = 8
	phTupleCountOff = 12
	phHeaderSize    = 16
	slotSize        = 8
	deletedBit      = uint32(0x8000_0000)
	sizeMask        = uint32(0x7fff_ffff)
)

// UpdateResult mirrors the tri-valued TableHeap::UpdateTuple contract.
type UpdateResult int

const (
	UpdateFailed    UpdateResult = 0
	UpdatedInPlace  UpdateResult = 1
	UpdateDoesNotFit UpdateResult = 2
)

// Page wraps a raw page buffer (from a pinned buffer.Frame) as a TablePage.
type Page struct {
	buf []byte
}

// Wrap views an existing page buffer as a TablePage.
func Wrap(buf []byte) *Page { return &Page{buf: buf} }

// Init formats buf as an empty TablePage.
func Init(buf []byte, prev disk.PageID) *Page {
	p := &Page{buf: buf}
	p.setPrev(prev)
	p.setNext(disk.InvalidPageID)
	p.setFreeSpacePtr(uint32(len(buf)))
	p.setTupleCount(0)
	return p
}

func (p *Page) PrevPageID() disk.PageID {
	return disk.PageID(int32(binary.LittleEndian.Uint32(p.buf[phPrevOff:])))
}
func (p *Page) setPrev(id disk.PageID) {
	binary.LittleEndian.PutUint32(p.buf[phPrevOff:], uint32(int32(id)))
}
func (p *Page) NextPageID() disk.PageID {
	return disk.PageID(int32(binary.LittleEndian.Uint32(p.buf[phNextOff:])))
}
func (p *Page) SetNextPageID(id disk.PageID) {
	binary.LittleEndian.PutUint32(p.buf[phNextOff:], uint32(int32(id)))
}
func (p *Page) freeSpacePtr() uint32 { return binary.LittleEndian.Uint32(p.buf[phFreeSpaceOff:]) }
func (p *Page) setFreeSpacePtr(v uint32) {
	binary.LittleEndian.PutUint32(p.buf[phFreeSpaceOff:], v)
}
func (p *Page) TupleCount() uint32 { return binary.LittleEndian.Uint32(p.buf[phTupleCountOff:]) }
func (p *Page) setTupleCount(v uint32) {
	binary.LittleEndian.PutUint32(p.buf[phTupleCountOff:], v)
}

func (p *Page) slotOff(i uint32) int { return phHeaderSize + int(i)*slotSize }

func (p *Page) getSlot(i uint32) (offset, size uint32, deleted bool) {
	off := p.slotOff(i)
	offset = binary.LittleEndian.Uint32(p.buf[off:])
	raw := binary.LittleEndian.Uint32(p.buf[off+4:])
	deleted = raw&deletedBit != 0
	size = raw & sizeMask
	return
}

func (p *Page) setSlot(i uint32, offset, size uint32, deleted bool) {
	off := p.slotOff(i)
	binary.LittleEndian.PutUint32(p.buf[off:], offset)
	raw := size & sizeMask
	if deleted {
		raw |= deletedBit
	}
	binary.LittleEndian.PutUint32(p.buf[off+4:], raw)
}

func (p *Page) slotDirEnd() int { return phHeaderSize + int(p.TupleCount())*slotSize }

// freeBytes is the space available for one more slot plus its tuple.
func (p *Page) freeBytes() int {
	return int(p.freeSpacePtr()) - p.slotDirEnd() - slotSize
}

// MaxRowSize returns the largest tuple this page could ever hold (an empty
// page, one slot).
func MaxRowSize(pageSize int) int {
	return pageSize - phHeaderSize - slotSize
}

// InsertTuple appends data, reusing a tombstoned slot if one exists so that
// slot numbers (and therefore RowIDs) stay dense. Returns the slot index.
func (p *Page) InsertTuple(data []byte) (uint32, error) {
	if len(data) > MaxRowSize(len(p.buf)) {
		return 0, fmt.Errorf("insert tuple: %w", storageerr.ErrRowTooLarge)
	}
	needed := len(data)
	// Reuse the lowest apply-deleted slot entry: it needs no new directory
	// entry (hence slotSize of extra headroom), and the tuple bytes still go
	// at the free-space pointer. If they do not fit, the insert fails.
	for i := uint32(0); i < p.TupleCount(); i++ {
		offset, size, deleted := p.getSlot(i)
		if offset == 0 && size == 0 && !deleted {
			if p.freeBytes()+slotSize < needed {
				return 0, fmt.Errorf("insert tuple: %w", storageerr.ErrOutOfMemory)
			}
			newOff := p.freeSpacePtr() - uint32(needed)
			copy(p.buf[newOff:], data)
			p.setFreeSpacePtr(newOff)
			p.setSlot(i, newOff, uint32(needed), false)
			return i, nil
		}
	}
	if p.freeBytes() < needed {
		return 0, fmt.Errorf("insert tuple: %w", storageerr.ErrOutOfMemory)
	}
	newOff := p.freeSpacePtr() - uint32(needed)
	copy(p.buf[newOff:], data)
	p.setFreeSpacePtr(newOff)
	idx := p.TupleCount()
	p.setSlot(idx, newOff, uint32(needed), false)
	p.setTupleCount(idx + 1)
	return idx, nil
}

// GetTuple returns the raw bytes at slot, or an error if deleted/out of range.
func (p *Page) GetTuple(slot uint32) ([]byte, error) {
	if slot >= p.TupleCount() {
		return nil, fmt.Errorf("get tuple: %w", storageerr.ErrSlotNotFound)
	}
	offset, size, deleted := p.getSlot(slot)
	if deleted {
		return nil, fmt.Errorf("get tuple: %w", storageerr.ErrTombstoned)
	}
	if offset == 0 && size == 0 {
		return nil, fmt.Errorf("get tuple: %w", storageerr.ErrSlotNotFound)
	}
	return p.buf[offset : offset+size], nil
}

// MarkDelete flags slot as pending deletion without reclaiming its bytes, so
// RollbackDelete can restore it.
func (p *Page) MarkDelete(slot uint32) error {
	if slot >= p.TupleCount() {
		return fmt.Errorf("mark delete: %w", storageerr.ErrSlotNotFound)
	}
	offset, size, deleted := p.getSlot(slot)
	if deleted || (offset == 0 && size == 0) {
		return fmt.Errorf("mark delete: %w", storageerr.ErrTombstoned)
	}
	p.setSlot(slot, offset, size, true)
	return nil
}

// RollbackDelete undoes a pending MarkDelete.
func (p *Page) RollbackDelete(slot uint32) error {
	if slot >= p.TupleCount() {
		return fmt.Errorf("rollback delete: %w", storageerr.ErrSlotNotFound)
	}
	offset, size, deleted := p.getSlot(slot)
	if !deleted {
		return nil
	}
	p.setSlot(slot, offset, size, false)
	return nil
}

// ApplyDelete finalizes a MarkDelete: the tuple's bytes are compacted out of
// the data area (every tuple stored below it shifts up) and the slot becomes
// an empty tombstone, which a later InsertTuple on this page may reuse.
func (p *Page) ApplyDelete(slot uint32) error {
	if slot >= p.TupleCount() {
		return fmt.Errorf("apply delete: %w", storageerr.ErrSlotNotFound)
	}
	offset, size, _ := p.getSlot(slot)
	if size > 0 {
		fsp := p.freeSpacePtr()
		copy(p.buf[fsp+size:offset+size], p.buf[fsp:offset])
		for i := uint32(0); i < p.TupleCount(); i++ {
			o, s, d := p.getSlot(i)
			if i != slot && s > 0 && o < offset {
				p.setSlot(i, o+size, s, d)
			}
		}
		p.setFreeSpacePtr(fsp + size)
	}
	p.setSlot(slot, 0, 0, false)
	return nil
}

// UpdateTuple attempts to replace the tuple at slot in place. It returns
// UpdatedInPlace if data fit in the slot's existing space, UpdateDoesNotFit
// if the caller must MarkDelete + Insert instead, or UpdateFailed if slot is
// invalid or already deleted.
func (p *Page) UpdateTuple(slot uint32, data []byte) UpdateResult {
	if slot >= p.TupleCount() {
		return UpdateFailed
	}
	offset, size, deleted := p.getSlot(slot)
	if deleted || (offset == 0 && size == 0) {
		return UpdateFailed
	}
	if uint32(len(data)) <= size {
		copy(p.buf[offset:], data)
		for i := offset + uint32(len(data)); i < offset+size; i++ {
			p.buf[i] = 0
		}
		p.setSlot(slot, offset, uint32(len(data)), false)
		return UpdatedInPlace
	}
	return UpdateDoesNotFit
}

// IsDeleted reports whether slot is a tombstone or marked-deleted.
func (p *Page) IsDeleted(slot uint32) bool {
	offset, size, deleted := p.getSlot(slot)
	return deleted || (offset == 0 && size == 0)
}

// GetFirstTupleRid returns the slot of the first live tuple, or false if
// none exists on this page.
func (p *Page) GetFirstTupleRid() (uint32, bool) {
	for i := uint32(0); i < p.TupleCount(); i++ {
		if !p.IsDeleted(i) {
			return i, true
		}
	}
	return 0, false
}

// GetNextTupleRid returns the next live slot after cur on this page.
func (p *Page) GetNextTupleRid(cur uint32) (uint32, bool) {
	for i := cur + 1; i < p.TupleCount(); i++ {
		if !p.IsDeleted(i) {
			return i, true
		}
	}
	return 0, false
}

// DecodeRow reads and deserializes the row at slot under schema.
func (p *Page) DecodeRow(pageID disk.PageID, slot uint32, schema *record.Schema) (*record.Row, error) {
	raw, err := p.GetTuple(slot)
	if err != nil {
		return nil, err
	}
	row, _, err := record.DeserializeRow(raw, schema)
	if err != nil {
		return nil, fmt.Errorf("decode row at (%d,%d): %w", pageID, slot, err)
	}
	row.RID = record.RowID{PageID: int32(pageID), Slot: slot}
	return row, nil
}
