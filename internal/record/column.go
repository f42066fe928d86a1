package record

import (
	"encoding/binary"
	"fmt"

	"github.com/quill-run/minidb/internal/storageerr"
)

const columnMagic uint32 = 0x434f_4c4d // "COLM"

// Column describes one field of a Schema.
type Column struct {
	Name     string
	Type     TypeID
	Len      uint32 // byte width: 4 for INT/FLOAT, declared length for CHAR
	TableInd uint32 // 0-based ordinal position within its Schema
	Nullable bool
	Unique   bool
}

// NewFixedColumn constructs a Column for INT or FLOAT (type != CHAR).
func NewFixedColumn(name string, t TypeID, index uint32, nullable, unique bool) Column {
	if t == TypeChar {
		panic("NewFixedColumn: use NewCharColumn for CHAR columns")
	}
	return Column{Name: name, Type: t, Len: 4, TableInd: index, Nullable: nullable, Unique: unique}
}

// NewCharColumn constructs a CHAR(length) Column.
func NewCharColumn(name string, length uint32, index uint32, nullable, unique bool) Column {
	return Column{Name: name, Type: TypeChar, Len: length, TableInd: index, Nullable: nullable, Unique: unique}
}

// SerializedSize returns the exact byte count SerializeTo will write.
func (c Column) SerializedSize() int {
	return 4 + 4 + len(c.Name) + 1 + 4 + 4 + 1 + 1
}

// SerializeTo writes [MAGIC|name_len|name|type_id|byte_len|table_ind|nullable|unique].
func (c Column) SerializeTo(buf []byte) int {
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], columnMagic)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(c.Name)))
	off += 4
	off += copy(buf[off:], c.Name)
	buf[off] = byte(c.Type)
	off++
	binary.LittleEndian.PutUint32(buf[off:], c.Len)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], c.TableInd)
	off += 4
	buf[off] = boolByte(c.Nullable)
	off++
	buf[off] = boolByte(c.Unique)
	off++
	return off
}

// DeserializeColumn reads a Column written by SerializeTo, returning the
// number of bytes consumed.
func DeserializeColumn(buf []byte) (Column, int, error) {
	if len(buf) < 8 {
		return Column{}, 0, fmt.Errorf("column header truncated: %w", storageerr.ErrCorruptMagic)
	}
	off := 0
	if binary.LittleEndian.Uint32(buf[off:]) != columnMagic {
		return Column{}, 0, fmt.Errorf("column: %w", storageerr.ErrCorruptMagic)
	}
	off += 4
	nameLen := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	if len(buf) < off+nameLen+1+4+4+1+1 {
		return Column{}, 0, fmt.Errorf("column body truncated")
	}
	name := string(buf[off : off+nameLen])
	off += nameLen
	typ := TypeID(buf[off])
	off++
	length := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	tableInd := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	nullable := buf[off] != 0
	off++
	unique := buf[off] != 0
	off++
	return Column{
		Name: name, Type: typ, Len: length, TableInd: tableInd, Nullable: nullable, Unique: unique,
	}, off, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
