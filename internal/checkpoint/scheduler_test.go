package checkpoint

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/quill-run/minidb/internal/buffer"
	"github.com/quill-run/minidb/internal/disk"
	"github.com/quill-run/minidb/internal/logging"
)

func TestNewRejectsInvalidCronSpec(t *testing.T) {
	dm, err := disk.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer dm.Close()
	pool := buffer.NewPool(dm, 4, buffer.PolicyLRU, logging.Default(), nil)
	if _, err := New(pool, "not a cron spec", logging.Default(), nil); err == nil {
		t.Fatal("expected New to reject a malformed cron spec")
	}
}

func TestScheduledCheckpointFlushesDirtyPage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := disk.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer dm.Close()
	pool := buffer.NewPool(dm, 4, buffer.PolicyLRU, logging.Default(), nil)

	id, frame, err := pool.NewPage()
	if err != nil {
		t.Fatal(err)
	}
	frame.Data[0] = 0x11
	if err := pool.Unpin(id, true); err != nil {
		t.Fatal(err)
	}

	sched, err := New(pool, "@every 1s", logging.Default(), nil)
	if err != nil {
		t.Fatal(err)
	}
	sched.Start()
	time.Sleep(1500 * time.Millisecond)
	sched.Stop()

	raw := make([]byte, disk.PageSize)
	if err := dm.ReadPage(id, raw); err != nil {
		t.Fatal(err)
	}
	if raw[0] != 0x11 {
		t.Fatalf("scheduled checkpoint did not flush dirty page: got %d, want 0x11", raw[0])
	}
}
