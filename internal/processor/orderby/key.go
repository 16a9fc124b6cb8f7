// Package orderby implements the memcmp-sortable key encoding, LSD radix
// sort, and parallel key-block merge that back ORDER BY: each sort column
// is encoded into a fixed-width, byte-comparable segment, the segments are
// radix-sorted without ever comparing the original values, and a tie-break
// pass resolves string columns where the encoded prefix alone can't decide
// order.
package orderby

import (
	"encoding/binary"
	"math"
)

// Type identifies a sort column's value type, which determines its
// encoded segment width and encoding rule.
type Type int

const (
	TypeInt64 Type = iota
	TypeFloat64
	TypeString
)

const (
	nullByteWidth  = 1
	int64Width     = 8
	float64Width   = 8
	stringKeyWidth = 12 // truncated, null-padded prefix used for the sortable segment
	tailWidth      = 8  // {table_id uint16, index uint32, reserved uint16}
)

func valueWidth(t Type) int {
	switch t {
	case TypeInt64:
		return int64Width
	case TypeFloat64:
		return float64Width
	case TypeString:
		return stringKeyWidth
	default:
		return 0
	}
}

// ColumnSpec describes one ORDER BY key column.
type ColumnSpec struct {
	Type Type
	// Ascending selects sort direction; descending columns have their
	// entire encoded segment (including the null byte) bitwise inverted.
	Ascending bool
	// SourceColumn is the column index in the source factorized table that
	// holds this sort key's values, used both to encode the key segment and,
	// for string columns, to resolve the real value during tie-break.
	SourceColumn int
}

func (c ColumnSpec) segmentWidth() int { return nullByteWidth + valueWidth(c.Type) }

// Layout computes per-column offsets for a set of sort columns, including
// the total comparable prefix width and the full key width (prefix + tail).
type Layout struct {
	Columns     []ColumnSpec
	offsets     []int
	PrefixWidth int
	KeyWidth    int
}

// NewLayout computes column offsets for cols.
func NewLayout(cols []ColumnSpec) *Layout {
	l := &Layout{Columns: cols, offsets: make([]int, len(cols))}
	off := 0
	for i, c := range cols {
		l.offsets[i] = off
		off += c.segmentWidth()
	}
	l.PrefixWidth = off
	l.KeyWidth = off + tailWidth
	return l
}

func (l *Layout) segmentAt(key []byte, col int) []byte {
	off := l.offsets[col]
	w := l.Columns[col].segmentWidth()
	return key[off : off+w]
}

// TupleRef is the non-inverted tail metadata appended to every encoded key:
// it addresses the originating row via the worker-local tuple-pointer slice
// identified by TableID, at position Index. BlockOffset mirrors the spec's
// three-field tail shape but is unused here: a single Index already
// addresses a worker's flat TuplePtr slice.
type TupleRef struct {
	TableID     uint16
	Index       uint32
	BlockOffset uint16
}

func encodeTupleRef(dst []byte, ref TupleRef) {
	binary.BigEndian.PutUint16(dst[0:2], ref.TableID)
	binary.BigEndian.PutUint32(dst[2:6], ref.Index)
	binary.BigEndian.PutUint16(dst[6:8], ref.BlockOffset)
}

func decodeTupleRef(src []byte) TupleRef {
	return TupleRef{
		TableID:     binary.BigEndian.Uint16(src[0:2]),
		Index:       binary.BigEndian.Uint32(src[2:6]),
		BlockOffset: binary.BigEndian.Uint16(src[6:8]),
	}
}

// encodeInt64 writes a big-endian, sign-flipped representation of v so that
// unsigned memcmp order matches signed numeric order.
func encodeInt64(dst []byte, v int64) {
	u := uint64(v) ^ (1 << 63)
	binary.BigEndian.PutUint64(dst, u)
}

func decodeInt64(src []byte) int64 {
	u := binary.BigEndian.Uint64(src) ^ (1 << 63)
	return int64(u)
}

// encodeFloat64 writes a memcmp-sortable representation: positive values
// get their sign bit set (pushing them above all negatives), negative
// values are fully bit-inverted (reversing their magnitude order under an
// unsigned compare).
func encodeFloat64(dst []byte, v float64) {
	bits := math.Float64bits(v)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	binary.BigEndian.PutUint64(dst, bits)
}

func decodeFloat64(src []byte) float64 {
	bits := binary.BigEndian.Uint64(src)
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits)
}

// encodeStringPrefix writes a fixed-width, null-padded/truncated prefix of
// v into dst (length stringKeyWidth).
func encodeStringPrefix(dst []byte, v []byte) {
	n := copy(dst, v)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// invert flips every bit in b in place, the descending-order transform
// applied to a column's entire segment including its null byte.
func invert(b []byte) {
	for i := range b {
		b[i] = ^b[i]
	}
}
