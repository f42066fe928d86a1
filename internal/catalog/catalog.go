package catalog

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/quill-run/minidb/internal/buffer"
	"github.com/quill-run/minidb/internal/disk"
	"github.com/quill-run/minidb/internal/index"
	"github.com/quill-run/minidb/internal/logging"
	"github.com/quill-run/minidb/internal/record"
	"github.com/quill-run/minidb/internal/storageerr"
	"github.com/quill-run/minidb/internal/table"
)

// defaultLeafMaxSize/defaultInternalMaxSize bound every index's node fan-out;
// the fixed-stride Node format means this is constant across a tree
// regardless of key width, unlike the slotted variable-length page it
// replaces.
const (
	defaultLeafMaxSize     = 64
	defaultInternalMaxSize = 64
)

// TableInfo is the in-memory record for one live table: its metadata plus
// the attached Heap rooted at the stored first page id.
type TableInfo struct {
	TableID     uint32
	CorrelationID uuid.UUID
	Name        string
	Schema      *record.Schema
	metaPageID  disk.PageID
	Heap        *table.Heap
}

// IndexInfo is the in-memory record for one live index.
type IndexInfo struct {
	IndexID       uint32
	CorrelationID uuid.UUID
	Name          string
	TableID       uint32
	KeyCols       []uint32
	metaPageID    disk.PageID
	Tree          *index.BTree
}

// Catalog owns table and index metadata persistence. `tables_` is keyed by
// table_id rather than the metadata page id, so a DropTable/CreateTable
// pair never collides with a stale page-id key (see DESIGN.md).
type Catalog struct {
	mu    sync.Mutex
	pool  *buffer.Pool
	roots *index.Roots
	log   *logging.Logger

	nextTableID uint32
	nextIndexID uint32

	tables       map[uint32]*TableInfo // table_id -> info
	tableNameIdx map[string]uint32     // name -> table_id

	indexes      map[uint32]*IndexInfo     // index_id -> info
	tableIndexes map[string]map[string]uint32 // table_name -> index_name -> index_id
}

// Open formats CatalogMeta on first use or reloads every table/index
// recorded there, reattaching a Heap/BTree to each.
func Open(pool *buffer.Pool, log *logging.Logger) (*Catalog, error) {
	roots, err := index.OpenRoots(pool)
	if err != nil {
		return nil, fmt.Errorf("catalog open: %w", err)
	}
	c := &Catalog{
		pool:         pool,
		roots:        roots,
		log:          log.Component("catalog"),
		tables:       make(map[uint32]*TableInfo),
		tableNameIdx: make(map[string]uint32),
		indexes:      make(map[uint32]*IndexInfo),
		tableIndexes: make(map[string]map[string]uint32),
	}

	frame, err := pool.Fetch(MetaPageID)
	if err != nil {
		return nil, fmt.Errorf("catalog open meta: %w", err)
	}
	fresh := len(frame.Data) < 4 || bytesAllZero(frame.Data[:4])
	var tableDir, indexDir map[uint32]disk.PageID
	if fresh {
		tableDir = make(map[uint32]disk.PageID)
		indexDir = make(map[uint32]disk.PageID)
		if err := writeMeta(frame.Data[:], tableDir, indexDir); err != nil {
			pool.Unpin(MetaPageID, false)
			return nil, err
		}
		pool.Unpin(MetaPageID, true)
	} else {
		tableDir, indexDir, err = readMeta(frame.Data[:])
		pool.Unpin(MetaPageID, false)
		if err != nil {
			return nil, err
		}
	}

	for tableID, metaPageID := range tableDir {
		if err := c.loadTable(tableID, metaPageID); err != nil {
			return nil, err
		}
		if tableID >= c.nextTableID {
			c.nextTableID = tableID + 1
		}
	}
	for indexID, metaPageID := range indexDir {
		if err := c.loadIndex(indexID, metaPageID); err != nil {
			return nil, err
		}
		if indexID >= c.nextIndexID {
			c.nextIndexID = indexID + 1
		}
	}
	c.log.Info("catalog opened").Int("tables", len(c.tables)).Int("indexes", len(c.indexes)).Send()
	return c, nil
}

func bytesAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func (c *Catalog) loadTable(tableID uint32, metaPageID disk.PageID) error {
	frame, err := c.pool.Fetch(metaPageID)
	if err != nil {
		return fmt.Errorf("load table %d: %w", tableID, err)
	}
	rec, err := readTableMeta(frame.Data[:])
	c.pool.Unpin(metaPageID, false)
	if err != nil {
		return err
	}
	heap := table.NewHeap(c.pool, rec.Schema, rec.FirstPageID)
	ti := &TableInfo{
		TableID:    tableID,
		Name:       rec.Name,
		Schema:     rec.Schema,
		metaPageID: metaPageID,
		Heap:       heap,
	}
	c.tables[tableID] = ti
	c.tableNameIdx[rec.Name] = tableID
	c.tableIndexes[rec.Name] = make(map[string]uint32)
	return nil
}

func (c *Catalog) loadIndex(indexID uint32, metaPageID disk.PageID) error {
	frame, err := c.pool.Fetch(metaPageID)
	if err != nil {
		return fmt.Errorf("load index %d: %w", indexID, err)
	}
	rec, err := readIndexMeta(frame.Data[:])
	c.pool.Unpin(metaPageID, false)
	if err != nil {
		return err
	}
	owner, ok := c.tableByID(rec.TableID)
	if !ok {
		return fmt.Errorf("load index %d: owning table %d: %w", indexID, rec.TableID, storageerr.ErrTableNotExist)
	}
	cols := keyColumnsFor(owner.Schema, rec.KeyCols)
	tree, err := index.Open(c.pool, c.roots, indexID, cols, defaultLeafMaxSize, defaultInternalMaxSize)
	if err != nil {
		return err
	}
	ii := &IndexInfo{
		IndexID:    indexID,
		Name:       rec.Name,
		TableID:    rec.TableID,
		KeyCols:    rec.KeyCols,
		metaPageID: metaPageID,
		Tree:       tree,
	}
	c.indexes[indexID] = ii
	if c.tableIndexes[owner.Name] == nil {
		c.tableIndexes[owner.Name] = make(map[string]uint32)
	}
	c.tableIndexes[owner.Name][rec.Name] = indexID
	return nil
}

func keyColumnsFor(schema *record.Schema, ordinals []uint32) []index.KeyColumn {
	cols := make([]index.KeyColumn, len(ordinals))
	for i, ord := range ordinals {
		col := schema.Columns[ord]
		cols[i] = index.KeyColumn{Type: col.Type, Len: col.Len}
	}
	return cols
}

func (c *Catalog) tableByID(id uint32) (*TableInfo, bool) {
	ti, ok := c.tables[id]
	return ti, ok
}

func (c *Catalog) persistMeta() error {
	frame, err := c.pool.Fetch(MetaPageID)
	if err != nil {
		return err
	}
	tableDir := make(map[uint32]disk.PageID, len(c.tables))
	for id, ti := range c.tables {
		tableDir[id] = ti.metaPageID
	}
	indexDir := make(map[uint32]disk.PageID, len(c.indexes))
	for id, ii := range c.indexes {
		indexDir[id] = ii.metaPageID
	}
	if err := writeMeta(frame.Data[:], tableDir, indexDir); err != nil {
		c.pool.Unpin(MetaPageID, false)
		return err
	}
	return c.pool.Unpin(MetaPageID, true)
}

// CreateTable allocates a metadata page, a fresh empty heap, assigns a
// table_id, and persists CatalogMeta. Columns marked Unique receive an
// implicit single-column index (see DESIGN.md E2E scenario 4).
func (c *Catalog) CreateTable(name string, schema *record.Schema) (*TableInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tableNameIdx[name]; exists {
		return nil, fmt.Errorf("create table %q: %w", name, storageerr.ErrTableAlreadyExist)
	}

	heap, err := table.CreateHeap(c.pool, schema)
	if err != nil {
		return nil, fmt.Errorf("create table %q: %w", name, err)
	}

	metaPageID, frame, err := c.pool.NewPage()
	if err != nil {
		return nil, fmt.Errorf("create table %q metadata page: %w", name, err)
	}
	tableID := c.nextTableID
	c.nextTableID++
	rec := &tableMetaRecord{TableID: tableID, Name: name, FirstPageID: heap.FirstPageID(), Schema: schema}
	if err := writeTableMeta(frame.Data[:], rec); err != nil {
		c.pool.Unpin(metaPageID, false)
		return nil, err
	}
	if err := c.pool.Unpin(metaPageID, true); err != nil {
		return nil, err
	}

	ti := &TableInfo{
		TableID:       tableID,
		CorrelationID: uuid.New(),
		Name:          name,
		Schema:        schema,
		metaPageID:    metaPageID,
		Heap:          heap,
	}
	c.tables[tableID] = ti
	c.tableNameIdx[name] = tableID
	c.tableIndexes[name] = make(map[string]uint32)

	if err := c.persistMeta(); err != nil {
		return nil, err
	}
	c.log.Info("table created").Str("table", name).Uint32("table_id", tableID).
		Str("correlation_id", ti.CorrelationID.String()).Send()

	for i, col := range schema.Columns {
		if col.Unique {
			idxName := "unique_index_" + name + "_" + col.Name
			if _, err := c.createIndexLocked(idxName, name, []uint32{uint32(i)}); err != nil {
				return nil, fmt.Errorf("create implicit unique index on %s.%s: %w", name, col.Name, err)
			}
		}
	}
	return ti, nil
}

// DropTable frees every page of the table's heap and all of its indexes,
// then removes it from CatalogMeta.
func (c *Catalog) DropTable(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tableID, ok := c.tableNameIdx[name]
	if !ok {
		return fmt.Errorf("drop table %q: %w", name, storageerr.ErrTableNotExist)
	}
	ti := c.tables[tableID]

	for idxName, indexID := range c.tableIndexes[name] {
		if err := c.dropIndexLocked(name, idxName, indexID); err != nil {
			return err
		}
	}
	delete(c.tableIndexes, name)

	if err := ti.Heap.FreeHeap(); err != nil {
		return fmt.Errorf("drop table %q: %w", name, err)
	}
	if err := c.pool.DeletePage(ti.metaPageID); err != nil {
		return fmt.Errorf("drop table %q metadata page: %w", name, err)
	}
	delete(c.tables, tableID)
	delete(c.tableNameIdx, name)

	if err := c.persistMeta(); err != nil {
		return err
	}
	c.log.Info("table dropped").Str("table", name).Uint32("table_id", tableID).Send()
	return nil
}

// CreateIndex builds a new empty BTree over keyCols (ordinal positions into
// the table's schema) and persists its IndexMetadata page.
func (c *Catalog) CreateIndex(name, tableName string, keyCols []uint32) (*IndexInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createIndexLocked(name, tableName, keyCols)
}

func (c *Catalog) createIndexLocked(name, tableName string, keyCols []uint32) (*IndexInfo, error) {
	tableID, ok := c.tableNameIdx[tableName]
	if !ok {
		return nil, fmt.Errorf("create index %q: %w", name, storageerr.ErrTableNotExist)
	}
	if _, exists := c.tableIndexes[tableName][name]; exists {
		return nil, fmt.Errorf("create index %q: %w", name, storageerr.ErrIndexAlreadyExist)
	}
	ti := c.tables[tableID]
	cols := keyColumnsFor(ti.Schema, keyCols)

	indexID := c.nextIndexID
	c.nextIndexID++
	tree, err := index.Create(c.pool, c.roots, indexID, cols, defaultLeafMaxSize, defaultInternalMaxSize)
	if err != nil {
		return nil, fmt.Errorf("create index %q: %w", name, err)
	}

	metaPageID, frame, err := c.pool.NewPage()
	if err != nil {
		return nil, fmt.Errorf("create index %q metadata page: %w", name, err)
	}
	rec := &indexMetaRecord{IndexID: indexID, Name: name, TableID: tableID, KeyCols: keyCols}
	if err := writeIndexMeta(frame.Data[:], rec); err != nil {
		c.pool.Unpin(metaPageID, false)
		return nil, err
	}
	if err := c.pool.Unpin(metaPageID, true); err != nil {
		return nil, err
	}

	ii := &IndexInfo{
		IndexID:       indexID,
		CorrelationID: uuid.New(),
		Name:          name,
		TableID:       tableID,
		KeyCols:       keyCols,
		metaPageID:    metaPageID,
		Tree:          tree,
	}
	c.indexes[indexID] = ii
	c.tableIndexes[tableName][name] = indexID

	if err := c.persistMeta(); err != nil {
		return nil, err
	}
	c.log.Info("index created").Str("index", name).Str("table", tableName).
		Uint32("index_id", indexID).Str("correlation_id", ii.CorrelationID.String()).Send()
	return ii, nil
}

// DropIndex destroys the tree's pages and its IndexRootsPage entry, then
// removes the IndexMetadata page.
func (c *Catalog) DropIndex(tableName, indexName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	indexID, ok := c.tableIndexes[tableName][indexName]
	if !ok {
		return fmt.Errorf("drop index %q: %w", indexName, storageerr.ErrIndexNotFound)
	}
	if err := c.dropIndexLocked(tableName, indexName, indexID); err != nil {
		return err
	}
	return c.persistMeta()
}

func (c *Catalog) dropIndexLocked(tableName, indexName string, indexID uint32) error {
	ii := c.indexes[indexID]
	if err := ii.Tree.Destroy(); err != nil {
		return fmt.Errorf("drop index %q: %w", indexName, err)
	}
	if err := c.pool.DeletePage(ii.metaPageID); err != nil {
		return fmt.Errorf("drop index %q metadata page: %w", indexName, err)
	}
	delete(c.indexes, indexID)
	delete(c.tableIndexes[tableName], indexName)
	c.log.Info("index dropped").Str("index", indexName).Str("table", tableName).Send()
	return nil
}

// GetTable looks up a live table by name.
func (c *Catalog) GetTable(name string) (*TableInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.tableNameIdx[name]
	if !ok {
		return nil, fmt.Errorf("get table %q: %w", name, storageerr.ErrTableNotExist)
	}
	return c.tables[id], nil
}

// GetTableIndexes returns every index attached to a table.
func (c *Catalog) GetTableIndexes(tableName string) ([]*IndexInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byName, ok := c.tableIndexes[tableName]
	if !ok {
		return nil, fmt.Errorf("get indexes for %q: %w", tableName, storageerr.ErrTableNotExist)
	}
	out := make([]*IndexInfo, 0, len(byName))
	for _, id := range byName {
		out = append(out, c.indexes[id])
	}
	return out, nil
}

// ListTables returns every live table's metadata, for the admin/introspection
// surface.
func (c *Catalog) ListTables() []*TableInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*TableInfo, 0, len(c.tables))
	for _, ti := range c.tables {
		out = append(out, ti)
	}
	return out
}
