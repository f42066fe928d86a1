package record

import (
	"encoding/binary"
	"fmt"

	"github.com/quill-run/minidb/internal/storageerr"
)

const schemaMagic uint32 = 0x5343_484d // "SCHM"

// Schema is an ordered list of Columns shared by every Row of a table.
type Schema struct {
	Columns []Column
}

// NewSchema constructs a Schema, assigning dense TableInd positions in slice
// order (overwriting any TableInd the caller set).
func NewSchema(cols []Column) *Schema {
	for i := range cols {
		cols[i].TableInd = uint32(i)
	}
	return &Schema{Columns: cols}
}

// ColumnIndex resolves a column name to its ordinal position.
func (s *Schema) ColumnIndex(name string) (int, error) {
	for i, c := range s.Columns {
		if c.Name == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("column %q: %w", name, storageerr.ErrColumnNameNotExist)
}

// SerializedSize returns the exact byte count SerializeTo will write.
func (s *Schema) SerializedSize() int {
	n := 8
	for _, c := range s.Columns {
		n += c.SerializedSize()
	}
	return n
}

// SerializeTo writes [MAGIC|column_count|col0...colN-1].
func (s *Schema) SerializeTo(buf []byte) int {
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], schemaMagic)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(s.Columns)))
	off += 4
	for _, c := range s.Columns {
		off += c.SerializeTo(buf[off:])
	}
	return off
}

// DeserializeSchema reads a Schema written by SerializeTo, returning the
// number of bytes consumed.
func DeserializeSchema(buf []byte) (*Schema, int, error) {
	if len(buf) < 8 {
		return nil, 0, fmt.Errorf("schema header truncated: %w", storageerr.ErrCorruptMagic)
	}
	off := 0
	if binary.LittleEndian.Uint32(buf[off:]) != schemaMagic {
		return nil, 0, fmt.Errorf("schema: %w", storageerr.ErrCorruptMagic)
	}
	off += 4
	count := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	cols := make([]Column, count)
	for i := 0; i < count; i++ {
		c, n, err := DeserializeColumn(buf[off:])
		if err != nil {
			return nil, 0, fmt.Errorf("schema column %d: %w", i, err)
		}
		cols[i] = c
		off += n
	}
	return &Schema{Columns: cols}, off, nil
}
