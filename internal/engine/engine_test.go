package engine

import (
	"path/filepath"
	"testing"

	"github.com/quill-run/minidb/internal/config"
	"github.com/quill-run/minidb/internal/record"
)

func TestOpenCreateTableCloseReopen(t *testing.T) {
	dataFile := filepath.Join(t.TempDir(), "engine.db")
	cfg := config.Default()
	cfg.Checkpoint.Enabled = false

	e, err := Open(cfg, dataFile)
	if err != nil {
		t.Fatal(err)
	}
	schema := record.NewSchema([]record.Column{
		record.NewFixedColumn("id", record.TypeInt32, 0, false, true),
	})
	if _, err := e.Catalog().CreateTable("widgets", schema); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}

	e2, err := Open(cfg, dataFile)
	if err != nil {
		t.Fatal(err)
	}
	defer e2.Close()
	if _, err := e2.Catalog().GetTable("widgets"); err != nil {
		t.Fatalf("table did not survive engine restart: %v", err)
	}
}

func TestNewTxnIDsAreDistinct(t *testing.T) {
	a := NewTxnID()
	b := NewTxnID()
	if a == b {
		t.Fatal("expected two minted transaction ids to differ")
	}
}

func TestUptimeIsNonNegative(t *testing.T) {
	dataFile := filepath.Join(t.TempDir(), "engine.db")
	cfg := config.Default()
	cfg.Checkpoint.Enabled = false
	e, err := Open(cfg, dataFile)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if e.Uptime() < 0 {
		t.Fatal("expected non-negative uptime")
	}
}
