package record

import (
	"encoding/binary"
	"fmt"
)

// RowID is the stable (page_id, slot) address of a stored tuple.
type RowID struct {
	PageID int32
	Slot   uint32
}

// Invalid reports whether this is the zero-value sentinel row id.
func (r RowID) Invalid() bool { return r.PageID < 0 }

// InvalidRowID is returned by lookups that found nothing.
var InvalidRowID = RowID{PageID: -1}

// Row is one tuple: a RowID plus one Field per Schema column, any of which
// may be null. Serialization matches the reference source's row.cpp: a
// field-count header, a null bitmap (MSB-first per byte, flushed every 8
// fields), then the non-null fields' bytes in column order.
type Row struct {
	RID    RowID
	Fields []Field
}

// SerializedSize returns the exact byte count SerializeTo will write for
// this row under schema.
func (r *Row) SerializedSize(schema *Schema) int {
	n := 4 + 4 + 8 // PageID + Slot + field count
	n += (len(r.Fields) + 7) / 8
	for _, f := range r.Fields {
		if !f.Null {
			n += f.serializedSize()
		}
	}
	return n
}

// SerializeTo writes the row into buf and returns the number of bytes used.
func (r *Row) SerializeTo(buf []byte) int {
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], uint32(r.RID.PageID))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], r.RID.Slot)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], uint64(len(r.Fields)))
	off += 8

	bitmapLen := (len(r.Fields) + 7) / 8
	bitmapOff := off
	for i := range buf[bitmapOff : bitmapOff+bitmapLen] {
		buf[bitmapOff+i] = 0
	}
	off += bitmapLen

	var cur byte
	bitsInCur := 0
	byteIdx := 0
	flush := func() {
		buf[bitmapOff+byteIdx] = cur
		byteIdx++
		cur = 0
		bitsInCur = 0
	}
	for _, f := range r.Fields {
		cur = cur<<1 | boolBit(!f.Null)
		bitsInCur++
		if bitsInCur == 8 {
			flush()
		}
	}
	if bitsInCur > 0 {
		cur <<= uint(8 - bitsInCur)
		flush()
	}

	for _, f := range r.Fields {
		if !f.Null {
			newBuf := f.marshal(buf[:off])
			off = len(newBuf)
		}
	}
	return off
}

// DeserializeRow reads a row written by SerializeTo given its Schema.
func DeserializeRow(buf []byte, schema *Schema) (*Row, int, error) {
	if len(buf) < 16 {
		return nil, 0, fmt.Errorf("row header truncated")
	}
	off := 0
	pid := int32(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	slot := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	n := int(binary.LittleEndian.Uint64(buf[off:]))
	off += 8

	bitmapLen := (n + 7) / 8
	if len(buf) < off+bitmapLen {
		return nil, 0, fmt.Errorf("row null bitmap truncated")
	}
	bitmap := buf[off : off+bitmapLen]
	off += bitmapLen

	fields := make([]Field, n)
	for i := 0; i < n; i++ {
		byteIdx := i / 8
		bitIdx := 7 - (i % 8)
		notNull := bitmap[byteIdx]&(1<<uint(bitIdx)) != 0
		col := schema.Columns[i]
		if !notNull {
			fields[i] = NewNullField(col.Type, col.Len)
			continue
		}
		f, consumed, err := unmarshalField(col.Type, col.Len, buf[off:])
		if err != nil {
			return nil, 0, fmt.Errorf("row field %d: %w", i, err)
		}
		fields[i] = f
		off += consumed
	}
	return &Row{RID: RowID{PageID: pid, Slot: slot}, Fields: fields}, off, nil
}

func boolBit(b bool) byte {
	if b {
		return 1
	}
	return 0
}
