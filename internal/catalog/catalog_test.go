package catalog

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/quill-run/minidb/internal/buffer"
	"github.com/quill-run/minidb/internal/disk"
	"github.com/quill-run/minidb/internal/logging"
	"github.com/quill-run/minidb/internal/record"
	"github.com/quill-run/minidb/internal/storageerr"
)

func openTestCatalog(t *testing.T, path string) (*Catalog, *buffer.Pool) {
	t.Helper()
	dm, err := disk.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { dm.Close() })
	pool := buffer.NewPool(dm, 64, buffer.PolicyLRU, logging.Default(), nil)
	cat, err := Open(pool, logging.Default())
	if err != nil {
		t.Fatal(err)
	}
	return cat, pool
}

func testSchema() *record.Schema {
	return record.NewSchema([]record.Column{
		record.NewFixedColumn("id", record.TypeInt32, 0, false, true),
		record.NewCharColumn("name", 16, 1, true, false),
	})
}

func TestCreateTableAttachesImplicitUniqueIndex(t *testing.T) {
	cat, _ := openTestCatalog(t, filepath.Join(t.TempDir(), "cat.db"))
	ti, err := cat.CreateTable("users", testSchema())
	if err != nil {
		t.Fatal(err)
	}
	if ti.TableID != 0 {
		t.Fatalf("first table id = %d, want 0", ti.TableID)
	}
	idxs, err := cat.GetTableIndexes("users")
	if err != nil {
		t.Fatal(err)
	}
	if len(idxs) != 1 {
		t.Fatalf("expected 1 implicit unique index for the unique id column, got %d", len(idxs))
	}
}

func TestCreateTableDuplicateNameFails(t *testing.T) {
	cat, _ := openTestCatalog(t, filepath.Join(t.TempDir(), "cat.db"))
	if _, err := cat.CreateTable("users", testSchema()); err != nil {
		t.Fatal(err)
	}
	if _, err := cat.CreateTable("users", testSchema()); !errors.Is(err, storageerr.ErrTableAlreadyExist) {
		t.Fatalf("duplicate create: got %v, want ErrTableAlreadyExist", err)
	}
}

func TestDropTableRemovesIndexesAndMetadata(t *testing.T) {
	cat, _ := openTestCatalog(t, filepath.Join(t.TempDir(), "cat.db"))
	if _, err := cat.CreateTable("users", testSchema()); err != nil {
		t.Fatal(err)
	}
	if err := cat.DropTable("users"); err != nil {
		t.Fatal(err)
	}
	if _, err := cat.GetTable("users"); !errors.Is(err, storageerr.ErrTableNotExist) {
		t.Fatalf("get dropped table: got %v, want ErrTableNotExist", err)
	}
	if _, err := cat.GetTableIndexes("users"); !errors.Is(err, storageerr.ErrTableNotExist) {
		t.Fatalf("get indexes of dropped table: got %v, want ErrTableNotExist", err)
	}
}

func TestCreateIndexExplicit(t *testing.T) {
	cat, _ := openTestCatalog(t, filepath.Join(t.TempDir(), "cat.db"))
	if _, err := cat.CreateTable("widgets", testSchema()); err != nil {
		t.Fatal(err)
	}
	if _, err := cat.CreateIndex("widgets_name_idx", "widgets", []uint32{1}); err != nil {
		t.Fatal(err)
	}
	idxs, err := cat.GetTableIndexes("widgets")
	if err != nil {
		t.Fatal(err)
	}
	// one implicit (id) + one explicit (name)
	if len(idxs) != 2 {
		t.Fatalf("expected 2 indexes, got %d", len(idxs))
	}
}

func TestCreateIndexDuplicateNameFails(t *testing.T) {
	cat, _ := openTestCatalog(t, filepath.Join(t.TempDir(), "cat.db"))
	if _, err := cat.CreateTable("widgets", testSchema()); err != nil {
		t.Fatal(err)
	}
	if _, err := cat.CreateIndex("dup_idx", "widgets", []uint32{1}); err != nil {
		t.Fatal(err)
	}
	if _, err := cat.CreateIndex("dup_idx", "widgets", []uint32{1}); !errors.Is(err, storageerr.ErrIndexAlreadyExist) {
		t.Fatalf("duplicate index create: got %v, want ErrIndexAlreadyExist", err)
	}
}

func TestDropIndexRemovesFromTableIndexes(t *testing.T) {
	cat, _ := openTestCatalog(t, filepath.Join(t.TempDir(), "cat.db"))
	if _, err := cat.CreateTable("widgets", testSchema()); err != nil {
		t.Fatal(err)
	}
	if _, err := cat.CreateIndex("widgets_name_idx", "widgets", []uint32{1}); err != nil {
		t.Fatal(err)
	}
	if err := cat.DropIndex("widgets", "widgets_name_idx"); err != nil {
		t.Fatal(err)
	}
	idxs, err := cat.GetTableIndexes("widgets")
	if err != nil {
		t.Fatal(err)
	}
	if len(idxs) != 1 {
		t.Fatalf("expected 1 remaining (implicit) index after drop, got %d", len(idxs))
	}
}

func TestReopenReloadsTablesAndIndexes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	dm, err := disk.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	pool := buffer.NewPool(dm, 64, buffer.PolicyLRU, logging.Default(), nil)
	cat, err := Open(pool, logging.Default())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cat.CreateTable("users", testSchema()); err != nil {
		t.Fatal(err)
	}
	row := &record.Row{Fields: []record.Field{
		record.NewInt32Field(1),
		record.NewCharField([]byte("alice"), 16),
	}}
	ti, err := cat.GetTable("users")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ti.Heap.InsertTuple(row); err != nil {
		t.Fatal(err)
	}
	if err := pool.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if err := dm.Close(); err != nil {
		t.Fatal(err)
	}

	dm2, err := disk.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { dm2.Close() })
	pool2 := buffer.NewPool(dm2, 64, buffer.PolicyLRU, logging.Default(), nil)
	cat2, err := Open(pool2, logging.Default())
	if err != nil {
		t.Fatal(err)
	}
	ti2, err := cat2.GetTable("users")
	if err != nil {
		t.Fatal(err)
	}
	if ti2.Schema == nil || len(ti2.Schema.Columns) != 2 {
		t.Fatalf("reloaded schema malformed: %+v", ti2.Schema)
	}
	idxs, err := cat2.GetTableIndexes("users")
	if err != nil {
		t.Fatal(err)
	}
	if len(idxs) != 1 {
		t.Fatalf("expected implicit unique index to survive reload, got %d indexes", len(idxs))
	}
	it, err := ti2.Heap.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if it.Done() {
		t.Fatal("expected reloaded heap to contain the previously inserted row")
	}
}
