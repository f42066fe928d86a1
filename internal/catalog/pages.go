// Package catalog persists table and index metadata on dedicated pages
// managed by the buffer pool, the same way the reference engine's
// internal/storage/catalog.go keeps its table/index directories, adapted
// here onto the disk.Manager/buffer.Pool/record.Schema/table.Heap/index.BTree
// stack instead of the reference engine's pager.
package catalog

import (
	"encoding/binary"
	"fmt"

	"github.com/quill-run/minidb/internal/disk"
	"github.com/quill-run/minidb/internal/record"
	"github.com/quill-run/minidb/internal/storageerr"
)

// MetaPageID is the reserved logical page holding the CatalogMeta directory.
const MetaPageID disk.PageID = 0

const metaMagic uint32 = 0x4341_544d  // "CATM"
const tableMetaMagic uint32 = 0x544d_4554 // "TMET"
const indexMetaMagic uint32 = 0x494d_4554 // "IMET"

const dirEntrySize = 8 // id uint32 + page_id int32

// dirMaxEntries is how many (id, page_id) pairs fit after the three 4-byte
// header words (magic, table count, index count) in one page.
func dirMaxEntries(pageSize int) int { return (pageSize - 12) / dirEntrySize }

// readMeta decodes CatalogMeta: [MAGIC | num_tables | (table_id,page_id)* | num_indexes | (index_id,page_id)*].
func readMeta(buf []byte) (tables, indexes map[uint32]disk.PageID, err error) {
	if binary.LittleEndian.Uint32(buf[:4]) != metaMagic {
		return nil, nil, fmt.Errorf("catalog meta: %w", storageerr.ErrCorruptMagic)
	}
	off := 4
	tables = make(map[uint32]disk.PageID)
	numTables := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	for i := 0; i < numTables; i++ {
		id := binary.LittleEndian.Uint32(buf[off:])
		pid := disk.PageID(int32(binary.LittleEndian.Uint32(buf[off+4:])))
		tables[id] = pid
		off += dirEntrySize
	}
	indexes = make(map[uint32]disk.PageID)
	numIndexes := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	for i := 0; i < numIndexes; i++ {
		id := binary.LittleEndian.Uint32(buf[off:])
		pid := disk.PageID(int32(binary.LittleEndian.Uint32(buf[off+4:])))
		indexes[id] = pid
		off += dirEntrySize
	}
	return tables, indexes, nil
}

// writeMeta serializes CatalogMeta back into buf, zeroing it first.
func writeMeta(buf []byte, tables, indexes map[uint32]disk.PageID) error {
	maxEach := dirMaxEntries(len(buf)) / 2
	if len(tables) > maxEach || len(indexes) > maxEach {
		return fmt.Errorf("catalog meta: %w", storageerr.ErrOutOfMemory)
	}
	for i := range buf {
		buf[i] = 0
	}
	binary.LittleEndian.PutUint32(buf[:4], metaMagic)
	off := 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(tables)))
	off += 4
	for id, pid := range tables {
		binary.LittleEndian.PutUint32(buf[off:], id)
		binary.LittleEndian.PutUint32(buf[off+4:], uint32(int32(pid)))
		off += dirEntrySize
	}
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(indexes)))
	off += 4
	for id, pid := range indexes {
		binary.LittleEndian.PutUint32(buf[off:], id)
		binary.LittleEndian.PutUint32(buf[off+4:], uint32(int32(pid)))
		off += dirEntrySize
	}
	return nil
}

// tableMetaRecord is the decoded form of a TableMetadata page:
// [MAGIC | table_id | name_len | name | root_page_id | schema].
type tableMetaRecord struct {
	TableID     uint32
	Name        string
	FirstPageID disk.PageID
	Schema      *record.Schema
}

func readTableMeta(buf []byte) (*tableMetaRecord, error) {
	if binary.LittleEndian.Uint32(buf[:4]) != tableMetaMagic {
		return nil, fmt.Errorf("table metadata: %w", storageerr.ErrCorruptMagic)
	}
	off := 4
	tableID := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	nameLen := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	name := string(buf[off : off+nameLen])
	off += nameLen
	firstPageID := disk.PageID(int32(binary.LittleEndian.Uint32(buf[off:])))
	off += 4
	schema, _, err := record.DeserializeSchema(buf[off:])
	if err != nil {
		return nil, fmt.Errorf("table metadata schema: %w", err)
	}
	return &tableMetaRecord{TableID: tableID, Name: name, FirstPageID: firstPageID, Schema: schema}, nil
}

func writeTableMeta(buf []byte, rec *tableMetaRecord) error {
	need := 4 + 4 + 4 + len(rec.Name) + 4 + rec.Schema.SerializedSize()
	if need > len(buf) {
		return fmt.Errorf("table metadata for %q: %w", rec.Name, storageerr.ErrOutOfMemory)
	}
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], tableMetaMagic)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], rec.TableID)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(rec.Name)))
	off += 4
	off += copy(buf[off:], rec.Name)
	binary.LittleEndian.PutUint32(buf[off:], uint32(int32(rec.FirstPageID)))
	off += 4
	off += rec.Schema.SerializeTo(buf[off:])
	return nil
}

// indexMetaRecord is the decoded form of an IndexMetadata page:
// [MAGIC | index_id | name_len | name | table_id | key_col_count | key_col_indexes*].
type indexMetaRecord struct {
	IndexID   uint32
	Name      string
	TableID   uint32
	KeyCols   []uint32 // ordinal positions into the table's Schema.Columns
}

func readIndexMeta(buf []byte) (*indexMetaRecord, error) {
	if binary.LittleEndian.Uint32(buf[:4]) != indexMetaMagic {
		return nil, fmt.Errorf("index metadata: %w", storageerr.ErrCorruptMagic)
	}
	off := 4
	indexID := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	nameLen := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	name := string(buf[off : off+nameLen])
	off += nameLen
	tableID := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	count := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	cols := make([]uint32, count)
	for i := 0; i < count; i++ {
		cols[i] = binary.LittleEndian.Uint32(buf[off:])
		off += 4
	}
	return &indexMetaRecord{IndexID: indexID, Name: name, TableID: tableID, KeyCols: cols}, nil
}

func writeIndexMeta(buf []byte, rec *indexMetaRecord) error {
	need := 4 + 4 + 4 + len(rec.Name) + 4 + 4 + 4*len(rec.KeyCols)
	if need > len(buf) {
		return fmt.Errorf("index metadata for %q: %w", rec.Name, storageerr.ErrOutOfMemory)
	}
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], indexMetaMagic)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], rec.IndexID)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(rec.Name)))
	off += 4
	off += copy(buf[off:], rec.Name)
	binary.LittleEndian.PutUint32(buf[off:], rec.TableID)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(rec.KeyCols)))
	off += 4
	for _, c := range rec.KeyCols {
		binary.LittleEndian.PutUint32(buf[off:], c)
		off += 4
	}
	return nil
}
