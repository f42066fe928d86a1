// Package record implements the typed field/column/schema/row codec: the
// wire formats are ported directly from the reference C++ source's
// record/{column,row,schema}.cpp (see DESIGN.md), re-expressed with Go's
// encoding/binary the way the reference engine's own row codec
// (internal/storage/pager/row_codec.go) is written.
package record

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// TypeID identifies a column/field's storage type.
type TypeID uint8

const (
	TypeInt32 TypeID = iota
	TypeFloat32
	TypeChar
)

func (t TypeID) String() string {
	switch t {
	case TypeInt32:
		return "INT"
	case TypeFloat32:
		return "FLOAT"
	case TypeChar:
		return "CHAR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// Field is a single typed value, possibly NULL.
type Field struct {
	Type   TypeID
	Null   bool
	Int32  int32
	Float32 float32
	Chars  []byte // raw bytes for TypeChar, length == declared Len on non-null fields
	Len    uint32 // declared Char length, meaningful for TypeChar only
}

// NewNullField constructs a NULL field of the given type.
func NewNullField(t TypeID, charLen uint32) Field {
	return Field{Type: t, Null: true, Len: charLen}
}

// NewInt32Field constructs a non-null INT field.
func NewInt32Field(v int32) Field { return Field{Type: TypeInt32, Int32: v} }

// NewFloat32Field constructs a non-null FLOAT field.
func NewFloat32Field(v float32) Field { return Field{Type: TypeFloat32, Float32: v} }

// NewCharField constructs a non-null CHAR(len) field; v is right-padded with
// zero bytes (or truncated) to exactly len bytes, matching the declared
// column width.
func NewCharField(v []byte, length uint32) Field {
	buf := make([]byte, length)
	copy(buf, v)
	return Field{Type: TypeChar, Chars: buf, Len: length}
}

// MarshalKey appends this field's fixed-width encoding to buf, for use as
// one column's segment of a composite index key: unlike marshal (the row
// codec), CHAR never carries a length prefix — its declared Len is already
// the index's fixed key-column width, so the full padded buffer is written.
func (f Field) MarshalKey(buf []byte) []byte {
	switch f.Type {
	case TypeInt32:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(f.Int32))
		return append(buf, b[:]...)
	case TypeFloat32:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(f.Float32))
		return append(buf, b[:]...)
	case TypeChar:
		return append(buf, f.Chars...)
	default:
		return buf
	}
}

// DecodeKeySegment decodes one column's fixed-width segment of a composite
// index key, the MarshalKey inverse.
func DecodeKeySegment(t TypeID, declaredLen uint32, data []byte) Field {
	switch t {
	case TypeInt32:
		return Field{Type: t, Int32: int32(binary.LittleEndian.Uint32(data[:4]))}
	case TypeFloat32:
		return Field{Type: t, Float32: math.Float32frombits(binary.LittleEndian.Uint32(data[:4]))}
	case TypeChar:
		chars := make([]byte, len(data))
		copy(chars, data)
		return Field{Type: t, Chars: chars, Len: declaredLen}
	default:
		return Field{}
	}
}

// serializedSize returns the number of bytes this field contributes to a
// row's payload when non-null (callers must not call this on a null field).
func (f Field) serializedSize() int {
	switch f.Type {
	case TypeInt32:
		return 4
	case TypeFloat32:
		return 4
	case TypeChar:
		return 4 + len(f.Chars) // u32 length prefix + bytes
	default:
		return 0
	}
}

func (f Field) marshal(buf []byte) []byte {
	switch f.Type {
	case TypeInt32:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(f.Int32))
		return append(buf, b[:]...)
	case TypeFloat32:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(f.Float32))
		return append(buf, b[:]...)
	case TypeChar:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(len(f.Chars)))
		buf = append(buf, b[:]...)
		return append(buf, f.Chars...)
	default:
		return buf
	}
}

func unmarshalField(t TypeID, declaredLen uint32, data []byte) (Field, int, error) {
	switch t {
	case TypeInt32:
		if len(data) < 4 {
			return Field{}, 0, fmt.Errorf("truncated int32 field")
		}
		return Field{Type: t, Int32: int32(binary.LittleEndian.Uint32(data[:4]))}, 4, nil
	case TypeFloat32:
		if len(data) < 4 {
			return Field{}, 0, fmt.Errorf("truncated float32 field")
		}
		return Field{Type: t, Float32: math.Float32frombits(binary.LittleEndian.Uint32(data[:4]))}, 4, nil
	case TypeChar:
		if len(data) < 4 {
			return Field{}, 0, fmt.Errorf("truncated char length")
		}
		n := binary.LittleEndian.Uint32(data[:4])
		if uint32(len(data)-4) < n {
			return Field{}, 0, fmt.Errorf("truncated char payload")
		}
		chars := make([]byte, n)
		copy(chars, data[4:4+n])
		return Field{Type: t, Chars: chars, Len: declaredLen}, int(4 + n), nil
	default:
		return Field{}, 0, fmt.Errorf("unknown field type %d", t)
	}
}

// Equal compares two non-null fields of the same type. CHAR equality
// compares only the first declared Len bytes of each operand (per the
// resolved Open Question: trailing bytes beyond the declared width are not
// significant), INT/FLOAT compare by value.
func (f Field) Equal(o Field) bool {
	if f.Type != o.Type || f.Null || o.Null {
		return false
	}
	switch f.Type {
	case TypeInt32:
		return f.Int32 == o.Int32
	case TypeFloat32:
		return f.Float32 == o.Float32
	case TypeChar:
		n := int(f.Len)
		if n > len(f.Chars) {
			n = len(f.Chars)
		}
		m := int(o.Len)
		if m > len(o.Chars) {
			m = len(o.Chars)
		}
		if n != m {
			return false
		}
		return bytes.Equal(f.Chars[:n], o.Chars[:m])
	default:
		return false
	}
}

// Compare orders two non-null fields of the same type; -1/0/1.
func (f Field) Compare(o Field) int {
	switch f.Type {
	case TypeInt32:
		switch {
		case f.Int32 < o.Int32:
			return -1
		case f.Int32 > o.Int32:
			return 1
		default:
			return 0
		}
	case TypeFloat32:
		switch {
		case f.Float32 < o.Float32:
			return -1
		case f.Float32 > o.Float32:
			return 1
		default:
			return 0
		}
	case TypeChar:
		n := int(f.Len)
		if n > len(f.Chars) {
			n = len(f.Chars)
		}
		m := int(o.Len)
		if m > len(o.Chars) {
			m = len(o.Chars)
		}
		return bytes.Compare(f.Chars[:n], o.Chars[:m])
	default:
		return 0
	}
}
