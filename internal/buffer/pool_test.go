package buffer

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/quill-run/minidb/internal/disk"
	"github.com/quill-run/minidb/internal/logging"
	"github.com/quill-run/minidb/internal/storageerr"
)

func newTestPool(t *testing.T, size int, policy Policy) *Pool {
	t.Helper()
	dm, err := disk.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { dm.Close() })
	return NewPool(dm, size, policy, logging.Default(), nil)
}

func TestNewPageFetchUnpinRoundTrip(t *testing.T) {
	p := newTestPool(t, 4, PolicyLRU)
	id, frame, err := p.NewPage()
	if err != nil {
		t.Fatal(err)
	}
	frame.Data[0] = 0x42
	if err := p.Unpin(id, true); err != nil {
		t.Fatal(err)
	}

	f2, err := p.Fetch(id)
	if err != nil {
		t.Fatal(err)
	}
	if f2.Data[0] != 0x42 {
		t.Fatalf("fetched byte = %d, want 0x42", f2.Data[0])
	}
	if err := p.Unpin(id, false); err != nil {
		t.Fatal(err)
	}
}

func TestDoubleUnpinFails(t *testing.T) {
	p := newTestPool(t, 4, PolicyLRU)
	id, _, err := p.NewPage()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Unpin(id, false); err != nil {
		t.Fatal(err)
	}
	if err := p.Unpin(id, false); !errors.Is(err, storageerr.ErrDoubleUnpin) {
		t.Fatalf("second unpin: got %v, want ErrDoubleUnpin", err)
	}
}

func TestAllPinnedFails(t *testing.T) {
	p := newTestPool(t, 2, PolicyLRU)
	if _, _, err := p.NewPage(); err != nil {
		t.Fatal(err)
	}
	if _, _, err := p.NewPage(); err != nil {
		t.Fatal(err)
	}
	if _, _, err := p.NewPage(); !errors.Is(err, storageerr.ErrAllPinned) {
		t.Fatalf("third NewPage with 2-frame pool, both pinned: got %v, want ErrAllPinned", err)
	}
}

func TestDeletePinnedPageFails(t *testing.T) {
	p := newTestPool(t, 4, PolicyLRU)
	id, _, err := p.NewPage()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.DeletePage(id); !errors.Is(err, storageerr.ErrPagePinned) {
		t.Fatalf("delete pinned page: got %v, want ErrPagePinned", err)
	}
}

func TestEvictionWritesBackDirtyPage(t *testing.T) {
	p := newTestPool(t, 1, PolicyLRU)
	id1, f1, err := p.NewPage()
	if err != nil {
		t.Fatal(err)
	}
	f1.Data[0] = 0x7
	if err := p.Unpin(id1, true); err != nil {
		t.Fatal(err)
	}

	// Forces eviction of id1's only frame since pool size is 1.
	id2, f2, err := p.NewPage()
	if err != nil {
		t.Fatal(err)
	}
	f2.Data[0] = 0x9
	if err := p.Unpin(id2, true); err != nil {
		t.Fatal(err)
	}

	f1b, err := p.Fetch(id1)
	if err != nil {
		t.Fatal(err)
	}
	if f1b.Data[0] != 0x7 {
		t.Fatalf("evicted page lost its dirty write: got %d, want 7", f1b.Data[0])
	}
	p.Unpin(id1, false)
}

func TestCheckpointFlushesDirtyPages(t *testing.T) {
	p := newTestPool(t, 4, PolicyClock)
	id, frame, err := p.NewPage()
	if err != nil {
		t.Fatal(err)
	}
	frame.Data[1] = 5
	if err := p.Unpin(id, true); err != nil {
		t.Fatal(err)
	}
	if err := p.Checkpoint(); err != nil {
		t.Fatal(err)
	}

	raw := make([]byte, disk.PageSize)
	if err := p.dm.ReadPage(id, raw); err != nil {
		t.Fatal(err)
	}
	if raw[1] != 5 {
		t.Fatalf("checkpoint did not persist dirty byte: got %d, want 5", raw[1])
	}
}

func TestEachPinnedFrameUniquePageID(t *testing.T) {
	p := newTestPool(t, 8, PolicyLRU)
	seen := make(map[disk.PageID]bool)
	var ids []disk.PageID
	for i := 0; i < 8; i++ {
		id, _, err := p.NewPage()
		if err != nil {
			t.Fatalf("NewPage %d: %v", i, err)
		}
		if seen[id] {
			t.Fatalf("page id %d pinned twice simultaneously", id)
		}
		seen[id] = true
		ids = append(ids, id)
	}
	for _, id := range ids {
		p.Unpin(id, false)
	}
}
