package buffer

import (
	"fmt"
	"sync"

	"github.com/quill-run/minidb/internal/disk"
	"github.com/quill-run/minidb/internal/logging"
	"github.com/quill-run/minidb/internal/metrics"
	"github.com/quill-run/minidb/internal/storageerr"
)

// Frame is one slot of the buffer pool's fixed frame array.
type Frame struct {
	PageID  disk.PageID
	Data    [disk.PageSize]byte
	dirty   bool
	pinCount int
}

// Policy selects which Replacer a Pool constructs.
type Policy string

const (
	PolicyLRU   Policy = "lru"
	PolicyClock Policy = "clock"
)

// Pool is the Buffer Pool Manager: it caches disk pages in a fixed set of
// frames, serves pinned access to callers, and evicts via the configured
// Replacer when full. Every Fetch/NewPage must be matched by exactly one
// Unpin; callers that forget this discipline will eventually see ALL_PINNED
// errors as the pool fills with frames that can never be evicted.
type Pool struct {
	mu        sync.Mutex
	dm        *disk.Manager
	frames    []*Frame
	pageTable map[disk.PageID]FrameID
	freeList  []FrameID
	replacer  Replacer
	log       *logging.Logger
	metrics   *metrics.Metrics
}

// NewPool creates a buffer pool of the given size backed by dm.
func NewPool(dm *disk.Manager, size int, policy Policy, log *logging.Logger, m *metrics.Metrics) *Pool {
	if size <= 0 {
		size = 128
	}
	p := &Pool{
		dm:        dm,
		frames:    make([]*Frame, size),
		pageTable: make(map[disk.PageID]FrameID, size),
		log:       log,
		metrics:   m,
	}
	for i := range p.frames {
		p.frames[i] = &Frame{PageID: disk.InvalidPageID}
		p.freeList = append(p.freeList, FrameID(i))
	}
	if policy == PolicyClock {
		p.replacer = NewClockReplacer()
	} else {
		p.replacer = NewLRUReplacer()
	}
	return p
}

// findVictimLocked obtains a frame to (re)use: a free-list entry first, then
// the Replacer's pick, writing back the victim if dirty.
func (p *Pool) findVictimLocked() (FrameID, error) {
	if len(p.freeList) > 0 {
		fid := p.freeList[len(p.freeList)-1]
		p.freeList = p.freeList[:len(p.freeList)-1]
		return fid, nil
	}
	fid, ok := p.replacer.Victim()
	if !ok {
		if p.metrics != nil {
			p.metrics.BufferAllPinned.Inc()
		}
		return 0, fmt.Errorf("buffer pool fetch: %w", storageerr.ErrAllPinned)
	}
	victim := p.frames[fid]
	if victim.dirty {
		if err := p.dm.WritePage(victim.PageID, victim.Data[:]); err != nil {
			return 0, fmt.Errorf("evict page %d: %w", victim.PageID, err)
		}
		if p.metrics != nil {
			p.metrics.BufferWriteBacks.Inc()
		}
	}
	delete(p.pageTable, victim.PageID)
	return fid, nil
}

// Fetch returns the pinned frame for id, loading it from disk if not
// already resident. Callers must call Unpin exactly once when done.
func (p *Pool) Fetch(id disk.PageID) (*Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fid, ok := p.pageTable[id]; ok {
		f := p.frames[fid]
		if f.pinCount == 0 {
			p.replacer.Pin(fid)
		}
		f.pinCount++
		if p.metrics != nil {
			p.metrics.BufferHits.Inc()
		}
		return f, nil
	}

	if p.metrics != nil {
		p.metrics.BufferMisses.Inc()
	}
	fid, err := p.findVictimLocked()
	if err != nil {
		return nil, err
	}
	f := p.frames[fid]
	f.PageID = id
	f.dirty = false
	f.pinCount = 1
	if err := p.dm.ReadPage(id, f.Data[:]); err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", id, err)
	}
	p.pageTable[id] = fid
	p.replacer.Pin(fid)
	return f, nil
}

// Unpin decrements the pin count of id, ORing wasDirty into the frame's
// dirty flag. When the pin count reaches zero the frame becomes an eligible
// eviction candidate.
func (p *Pool) Unpin(id disk.PageID, wasDirty bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	fid, ok := p.pageTable[id]
	if !ok {
		return fmt.Errorf("unpin page %d: %w", id, storageerr.ErrPageNotResident)
	}
	f := p.frames[fid]
	if f.pinCount <= 0 {
		return fmt.Errorf("unpin page %d: %w", id, storageerr.ErrDoubleUnpin)
	}
	f.dirty = f.dirty || wasDirty
	f.pinCount--
	if f.pinCount == 0 {
		p.replacer.Unpin(fid)
	}
	return nil
}

// NewPage allocates a fresh logical page on disk, pins its frame, and zeroes
// its contents.
func (p *Pool) NewPage() (disk.PageID, *Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fid, err := p.findVictimLocked()
	if err != nil {
		return disk.InvalidPageID, nil, err
	}
	id, err := p.dm.AllocatePage()
	if err != nil {
		p.freeList = append(p.freeList, fid)
		return disk.InvalidPageID, nil, err
	}
	f := p.frames[fid]
	f.PageID = id
	for i := range f.Data {
		f.Data[i] = 0
	}
	f.dirty = true
	f.pinCount = 1
	p.pageTable[id] = fid
	p.replacer.Pin(fid)
	if p.metrics != nil {
		p.metrics.DiskAllocatedPages.Inc()
	}
	return id, f, nil
}

// DeletePage frees a logical page. Returns an error if it is pinned.
func (p *Pool) DeletePage(id disk.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	fid, ok := p.pageTable[id]
	if !ok {
		if err := p.dm.DeallocatePage(id); err != nil {
			return err
		}
		return nil
	}
	f := p.frames[fid]
	if f.pinCount > 0 {
		return fmt.Errorf("delete page %d: %w", id, storageerr.ErrPagePinned)
	}
	p.replacer.Pin(fid) // remove from eligible set before freeing
	delete(p.pageTable, id)
	f.PageID = disk.InvalidPageID
	f.dirty = false
	p.freeList = append(p.freeList, fid)
	return p.dm.DeallocatePage(id)
}

// Flush writes back page id unconditionally, even if pinned, clearing dirty.
func (p *Pool) Flush(id disk.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	fid, ok := p.pageTable[id]
	if !ok {
		return fmt.Errorf("flush page %d: %w", id, storageerr.ErrPageNotResident)
	}
	f := p.frames[fid]
	if err := p.dm.WritePage(id, f.Data[:]); err != nil {
		return fmt.Errorf("flush page %d: %w", id, err)
	}
	f.dirty = false
	return nil
}

// Checkpoint flushes every dirty resident page; clean pages are not
// rewritten. It is the only entry point the
// background checkpoint scheduler (internal/checkpoint) is allowed to call.
func (p *Pool) Checkpoint() error {
	p.mu.Lock()
	ids := make([]disk.PageID, 0, len(p.pageTable))
	for id, fid := range p.pageTable {
		if p.frames[fid].dirty {
			ids = append(ids, id)
		}
	}
	p.mu.Unlock()

	for _, id := range ids {
		if err := p.Flush(id); err != nil {
			return fmt.Errorf("checkpoint: %w", err)
		}
	}
	if p.log != nil {
		p.log.Debug("checkpoint flushed pages").Int("count", len(ids)).Send()
	}
	return nil
}

// Shutdown flushes every dirty resident page. Equivalent to Checkpoint but named
// for the call site (engine close).
func (p *Pool) Shutdown() error {
	return p.Checkpoint()
}
