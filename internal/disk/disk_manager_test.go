package disk

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/quill-run/minidb/internal/storageerr"
)

func openTemp(t *testing.T) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	m, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestAllocateDeallocateRoundTrip(t *testing.T) {
	m := openTemp(t)

	id, err := m.AllocatePage()
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	before := m.NumAllocatedPages()

	free, err := m.IsPageFree(id)
	if err != nil || free {
		t.Fatalf("IsPageFree after allocate = %v, %v; want false, nil", free, err)
	}

	if err := m.DeallocatePage(id); err != nil {
		t.Fatalf("DeallocatePage: %v", err)
	}
	after := m.NumAllocatedPages()
	if before-after != 1 {
		t.Fatalf("NumAllocatedPages delta = %d, want 1", before-after)
	}

	free, err = m.IsPageFree(id)
	if err != nil || !free {
		t.Fatalf("IsPageFree after deallocate = %v, %v; want true, nil", free, err)
	}
}

func TestAllocatePageReusesFreedSlot(t *testing.T) {
	m := openTemp(t)
	a, err := m.AllocatePage()
	if err != nil {
		t.Fatal(err)
	}
	if err := m.DeallocatePage(a); err != nil {
		t.Fatal(err)
	}
	b, err := m.AllocatePage()
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("expected freed page %d to be reused, got %d", a, b)
	}
}

func TestWriteReadPageRoundTrip(t *testing.T) {
	m := openTemp(t)
	id, err := m.AllocatePage()
	if err != nil {
		t.Fatal(err)
	}
	want := make([]byte, PageSize)
	for i := range want {
		want[i] = byte(i % 251)
	}
	if err := m.WritePage(id, want); err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	got := make([]byte, PageSize)
	if err := m.ReadPage(id, got); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("byte %d: got %d want %d", i, got[i], want[i])
		}
	}
}

func TestReadPageNeverWrittenZeroFills(t *testing.T) {
	m := openTemp(t)
	id, err := m.AllocatePage()
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, PageSize)
	for i := range buf {
		buf[i] = 0xAA
	}
	if err := m.ReadPage(id, buf); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0 (zero-filled)", i, b)
		}
	}
}

func TestDeallocateFreePageFails(t *testing.T) {
	m := openTemp(t)
	id, err := m.AllocatePage()
	if err != nil {
		t.Fatal(err)
	}
	if err := m.DeallocatePage(id); err != nil {
		t.Fatal(err)
	}
	if err := m.DeallocatePage(id); !errors.Is(err, storageerr.ErrPageFree) {
		t.Fatalf("double deallocate: got %v, want ErrPageFree", err)
	}
}

func TestAllocateExactlyFillsExtent(t *testing.T) {
	m := openTemp(t)
	// Open has already claimed the reserved logical pages in extent 0, so
	// only the remainder of the extent is allocated here.
	ids := make([]PageID, BitmapSize-int(m.NumAllocatedPages()))
	for i := range ids {
		id, err := m.AllocatePage()
		if err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
		ids[i] = id
	}
	// The extent is exactly full: the next allocation must cross into a
	// second bitmap page rather than erroring.
	next, err := m.AllocatePage()
	if err != nil {
		t.Fatalf("allocate page past full extent: %v", err)
	}
	for _, id := range ids {
		if id == next {
			t.Fatalf("page %d reused while extent was supposedly full", id)
		}
	}
}

type xorCipher struct{ key byte }

func (c xorCipher) Encrypt(_ PageID, plaintext []byte) ([]byte, error) {
	out := make([]byte, len(plaintext))
	for i, b := range plaintext {
		out[i] = b ^ c.key
	}
	return out, nil
}

func (c xorCipher) Decrypt(_ PageID, ciphertext []byte) ([]byte, error) {
	return c.Encrypt(0, ciphertext)
}

func TestSetCipherTransformsPhysicalBytes(t *testing.T) {
	m := openTemp(t)
	id, err := m.AllocatePage()
	if err != nil {
		t.Fatal(err)
	}
	m.SetCipher(xorCipher{key: 0x5A})

	want := make([]byte, PageSize)
	for i := range want {
		want[i] = byte(i % 256)
	}
	if err := m.WritePage(id, want); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, PageSize)
	if err := m.ReadPage(id, got); err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: got %d want %d after cipher round trip", i, got[i], want[i])
		}
	}

	m.SetCipher(nil)
	raw := make([]byte, PageSize)
	if err := m.ReadPage(id, raw); err != nil {
		t.Fatal(err)
	}
	if raw[0] == want[0] {
		t.Fatal("expected raw on-disk bytes to differ from plaintext once encrypted")
	}
}

func TestReopenPreservesMeta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	m, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	// A fresh file has already claimed logical pages 0 and 1 for the
	// reserved CatalogMeta/IndexRootsPage directories.
	reserved := m.NumAllocatedPages()
	var ids []PageID
	for i := 0; i < 5; i++ {
		id, err := m.AllocatePage()
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}

	m2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer m2.Close()
	if got, want := m2.NumAllocatedPages(), reserved+5; got != want {
		t.Fatalf("NumAllocatedPages after reopen = %d, want %d", got, want)
	}
	for _, id := range ids {
		free, err := m2.IsPageFree(id)
		if err != nil {
			t.Fatal(err)
		}
		if free {
			t.Fatalf("page %d reported free after reopen", id)
		}
	}
}
