package index

import (
	"encoding/binary"
	"fmt"

	"github.com/quill-run/minidb/internal/buffer"
	"github.com/quill-run/minidb/internal/disk"
	"github.com/quill-run/minidb/internal/storageerr"
)

// RootsPageID is the reserved logical page holding the IndexRootsPage
// directory.
const RootsPageID disk.PageID = 1

const rootsMagic uint32 = 0x524f_4f54 // "ROOT"
const rootsEntrySize = 8              // indexID uint32 + rootPageID int32

// entry count fits comfortably in one page: (4096-8)/8 = 511 indexes.
func rootsMaxEntries(pageSize int) int { return (pageSize - 8) / rootsEntrySize }

// Roots is the IndexRootsPage directory mapping index_id -> root_page_id,
// persisted at the reserved logical page 1 and consulted on every tree
// creation, root change, or destroy.
type Roots struct {
	pool *buffer.Pool
}

// OpenRoots ensures the IndexRootsPage exists (formatting it on first use)
// and returns a handle to it.
func OpenRoots(pool *buffer.Pool) (*Roots, error) {
	r := &Roots{pool: pool}
	frame, err := pool.Fetch(RootsPageID)
	if err != nil {
		return nil, fmt.Errorf("open index roots page: %w", err)
	}
	if binary.LittleEndian.Uint32(frame.Data[:4]) != rootsMagic {
		for i := range frame.Data {
			frame.Data[i] = 0
		}
		binary.LittleEndian.PutUint32(frame.Data[:4], rootsMagic)
		pool.Unpin(RootsPageID, true)
	} else {
		pool.Unpin(RootsPageID, false)
	}
	return r, nil
}

func entryOff(i int) int { return 8 + i*rootsEntrySize }

// GetRootID looks up the persisted root page id for indexID, returning
// disk.InvalidPageID if no entry exists (a brand new, empty tree).
func (r *Roots) GetRootID(indexID uint32) (disk.PageID, error) {
	frame, err := r.pool.Fetch(RootsPageID)
	if err != nil {
		return disk.InvalidPageID, err
	}
	defer r.pool.Unpin(RootsPageID, false)
	count := int(binary.LittleEndian.Uint32(frame.Data[4:8]))
	for i := 0; i < count; i++ {
		off := entryOff(i)
		id := binary.LittleEndian.Uint32(frame.Data[off:])
		if id == indexID {
			return disk.PageID(int32(binary.LittleEndian.Uint32(frame.Data[off+4:]))), nil
		}
	}
	return disk.InvalidPageID, nil
}

// Insert adds a new (indexID, rootPageID) entry. Fails if indexID is
// already present (use Update for that).
func (r *Roots) Insert(indexID uint32, rootPageID disk.PageID) error {
	frame, err := r.pool.Fetch(RootsPageID)
	if err != nil {
		return err
	}
	count := int(binary.LittleEndian.Uint32(frame.Data[4:8]))
	for i := 0; i < count; i++ {
		if binary.LittleEndian.Uint32(frame.Data[entryOff(i):]) == indexID {
			r.pool.Unpin(RootsPageID, false)
			return fmt.Errorf("index roots insert %d: %w", indexID, storageerr.ErrIndexAlreadyExist)
		}
	}
	if count >= rootsMaxEntries(len(frame.Data)) {
		r.pool.Unpin(RootsPageID, false)
		return fmt.Errorf("index roots insert: %w", storageerr.ErrOutOfMemory)
	}
	off := entryOff(count)
	binary.LittleEndian.PutUint32(frame.Data[off:], indexID)
	binary.LittleEndian.PutUint32(frame.Data[off+4:], uint32(int32(rootPageID)))
	binary.LittleEndian.PutUint32(frame.Data[4:8], uint32(count+1))
	return r.pool.Unpin(RootsPageID, true)
}

// Update rewrites the root page id for an existing indexID entry (called
// whenever a split/merge changes a tree's root).
func (r *Roots) Update(indexID uint32, rootPageID disk.PageID) error {
	frame, err := r.pool.Fetch(RootsPageID)
	if err != nil {
		return err
	}
	count := int(binary.LittleEndian.Uint32(frame.Data[4:8]))
	for i := 0; i < count; i++ {
		off := entryOff(i)
		if binary.LittleEndian.Uint32(frame.Data[off:]) == indexID {
			binary.LittleEndian.PutUint32(frame.Data[off+4:], uint32(int32(rootPageID)))
			return r.pool.Unpin(RootsPageID, true)
		}
	}
	r.pool.Unpin(RootsPageID, false)
	return fmt.Errorf("index roots update %d: %w", indexID, storageerr.ErrIndexNotFound)
}

// Delete removes indexID's entry (called on DropIndex), compacting the
// remaining entries.
func (r *Roots) Delete(indexID uint32) error {
	frame, err := r.pool.Fetch(RootsPageID)
	if err != nil {
		return err
	}
	count := int(binary.LittleEndian.Uint32(frame.Data[4:8]))
	for i := 0; i < count; i++ {
		off := entryOff(i)
		if binary.LittleEndian.Uint32(frame.Data[off:]) == indexID {
			last := entryOff(count - 1)
			copy(frame.Data[off:off+rootsEntrySize], frame.Data[last:last+rootsEntrySize])
			binary.LittleEndian.PutUint32(frame.Data[4:8], uint32(count-1))
			return r.pool.Unpin(RootsPageID, true)
		}
	}
	r.pool.Unpin(RootsPageID, false)
	return fmt.Errorf("index roots delete %d: %w", indexID, storageerr.ErrIndexNotFound)
}
