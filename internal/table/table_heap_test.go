package table

import (
	"path/filepath"
	"testing"

	"github.com/quill-run/minidb/internal/buffer"
	"github.com/quill-run/minidb/internal/disk"
	"github.com/quill-run/minidb/internal/logging"
	"github.com/quill-run/minidb/internal/record"
)

func newTestHeap(t *testing.T, poolSize int) (*Heap, *record.Schema) {
	t.Helper()
	dm, err := disk.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { dm.Close() })
	pool := buffer.NewPool(dm, poolSize, buffer.PolicyLRU, logging.Default(), nil)

	schema := record.NewSchema([]record.Column{
		record.NewFixedColumn("id", record.TypeInt32, 0, false, true),
		record.NewCharColumn("name", 16, 1, true, false),
	})
	heap, err := CreateHeap(pool, schema)
	if err != nil {
		t.Fatal(err)
	}
	return heap, schema
}

func makeRow(id int32, name string) *record.Row {
	return &record.Row{Fields: []record.Field{
		record.NewInt32Field(id),
		record.NewCharField([]byte(name), 16),
	}}
}

func TestInsertGetTuple(t *testing.T) {
	heap, _ := newTestHeap(t, 16)
	rid, err := heap.InsertTuple(makeRow(1, "alice"))
	if err != nil {
		t.Fatal(err)
	}
	row, err := heap.GetTuple(rid)
	if err != nil {
		t.Fatal(err)
	}
	if row.Fields[0].Int32 != 1 {
		t.Fatalf("id = %d, want 1", row.Fields[0].Int32)
	}
}

func TestMarkDeleteThenApplyDeleteRemovesTuple(t *testing.T) {
	heap, _ := newTestHeap(t, 16)
	rid, err := heap.InsertTuple(makeRow(1, "bob"))
	if err != nil {
		t.Fatal(err)
	}
	if err := heap.MarkDelete(rid); err != nil {
		t.Fatal(err)
	}
	if _, err := heap.GetTuple(rid); err == nil {
		t.Fatal("expected GetTuple to fail on a tombstoned row")
	}
	if err := heap.RollbackDelete(rid); err != nil {
		t.Fatal(err)
	}
	if _, err := heap.GetTuple(rid); err != nil {
		t.Fatalf("expected GetTuple to succeed after rollback: %v", err)
	}
	if err := heap.MarkDelete(rid); err != nil {
		t.Fatal(err)
	}
	if err := heap.ApplyDelete(rid); err != nil {
		t.Fatal(err)
	}
	if _, err := heap.GetTuple(rid); err == nil {
		t.Fatal("expected GetTuple to fail after ApplyDelete")
	}
}

func TestUpdateTupleInPlace(t *testing.T) {
	heap, _ := newTestHeap(t, 16)
	rid, err := heap.InsertTuple(makeRow(1, "short"))
	if err != nil {
		t.Fatal(err)
	}
	newRid, err := heap.UpdateTuple(makeRow(1, "other"), rid)
	if err != nil {
		t.Fatal(err)
	}
	if newRid != rid {
		t.Fatalf("in-place update changed row id: got %+v, want %+v", newRid, rid)
	}
	row, err := heap.GetTuple(newRid)
	if err != nil {
		t.Fatal(err)
	}
	got := string(row.Fields[1].Chars[:5])
	if got != "other" {
		t.Fatalf("name = %q, want %q", got, "other")
	}
}

func TestInsertAcrossPageBoundarySpansPages(t *testing.T) {
	heap, _ := newTestHeap(t, 16)
	var rids []record.RowID
	for i := 0; i < 500; i++ {
		rid, err := heap.InsertTuple(makeRow(int32(i), "filler-row-text"))
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		rids = append(rids, rid)
	}
	if heap.FirstPageID() == heap.lastPageID {
		t.Fatalf("expected heap to span more than one page after 500 inserts")
	}
	row, err := heap.GetTuple(rids[len(rids)-1])
	if err != nil {
		t.Fatal(err)
	}
	if row.Fields[0].Int32 != int32(len(rids)-1) {
		t.Fatalf("last row id = %d, want %d", row.Fields[0].Int32, len(rids)-1)
	}
}

func TestIteratorVisitsEveryLiveTuple(t *testing.T) {
	heap, _ := newTestHeap(t, 16)
	const n = 20
	for i := 0; i < n; i++ {
		if _, err := heap.InsertTuple(makeRow(int32(i), "x")); err != nil {
			t.Fatal(err)
		}
	}
	it, err := heap.Begin()
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	seen := make(map[int32]bool)
	for !it.Done() {
		row, err := it.Row()
		if err != nil {
			t.Fatal(err)
		}
		seen[row.Fields[0].Int32] = true
		count++
		if err := it.Next(); err != nil {
			t.Fatal(err)
		}
	}
	if count != n {
		t.Fatalf("iterator visited %d tuples, want %d", count, n)
	}
	for i := 0; i < n; i++ {
		if !seen[int32(i)] {
			t.Fatalf("iterator skipped row %d", i)
		}
	}
}

func TestFreeHeapDeletesAllPages(t *testing.T) {
	heap, _ := newTestHeap(t, 16)
	for i := 0; i < 200; i++ {
		if _, err := heap.InsertTuple(makeRow(int32(i), "filler-row-text")); err != nil {
			t.Fatal(err)
		}
	}
	if err := heap.FreeHeap(); err != nil {
		t.Fatal(err)
	}
}
