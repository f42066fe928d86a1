// Package index implements the clustered B+tree: search, insert with split
// propagation, delete with redistribute/merge, a range iterator, and the
// persisted IndexRootsPage directory. Node layout is grounded on the
// reference engine's BTreePage (internal/storage/pager/btree_page.go), but
// reworked from that package's slotted variable-length records into fixed-
// stride entries sized off the key's declared byte width, matching the
// "templated B+tree keyed by fixed-size generic keys" contract.
package index

import (
	"bytes"

	"github.com/quill-run/minidb/internal/record"
)

// Key is a fixed-width byte buffer: the concatenation of an index's key
// columns, each encoded the same way record.Field encodes a non-null value.
type Key []byte

// Comparator orders two Keys of the same declared width; -1/0/1.
type Comparator func(a, b Key) int

// KeyColumn describes one column contributing to a composite index key, the
// minimum needed to decode and compare its encoded segment.
type KeyColumn struct {
	Type record.TypeID
	Len  uint32 // encoded byte width of this column's segment
}

// EncodedLen returns the on-the-wire size of one column's key segment.
func (c KeyColumn) EncodedLen() int {
	if c.Type == record.TypeChar {
		return int(c.Len)
	}
	return 4
}

// BuildKey encodes fields (one per KeyColumn, in order) into a single fixed
// width Key matching cols.
func BuildKey(cols []KeyColumn, fields []record.Field) Key {
	total := 0
	for _, c := range cols {
		total += c.EncodedLen()
	}
	buf := make([]byte, 0, total)
	for i, c := range cols {
		f := fields[i]
		switch c.Type {
		case record.TypeInt32:
			f2 := record.NewInt32Field(f.Int32)
			buf = f2.MarshalKey(buf)
		case record.TypeFloat32:
			f2 := record.NewFloat32Field(f.Float32)
			buf = f2.MarshalKey(buf)
		case record.TypeChar:
			f2 := record.NewCharField(f.Chars, c.Len)
			buf = f2.MarshalKey(buf)
		}
	}
	return Key(buf)
}

// KeyLen returns the total encoded width of a composite key over cols.
func KeyLen(cols []KeyColumn) int {
	n := 0
	for _, c := range cols {
		n += c.EncodedLen()
	}
	return n
}

// NewComparator builds a Comparator that decodes each column's segment per
// cols and compares column-by-column via record.Field.Compare instead of raw
// byte order, so FLOAT/negative-INT keys still order correctly.
func NewComparator(cols []KeyColumn) Comparator {
	return func(a, b Key) int {
		offA, offB := 0, 0
		for _, c := range cols {
			n := c.EncodedLen()
			fa := record.DecodeKeySegment(c.Type, c.Len, a[offA:offA+n])
			fb := record.DecodeKeySegment(c.Type, c.Len, b[offB:offB+n])
			if cmp := fa.Compare(fb); cmp != 0 {
				return cmp
			}
			offA += n
			offB += n
		}
		return 0
	}
}

// Equal reports whether two Keys of the same width are byte-identical; used
// as a fast path before falling back to the injected Comparator.
func Equal(a, b Key) bool { return bytes.Equal(a, b) }
