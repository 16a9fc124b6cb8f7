package orderby

import (
	"encoding/binary"
	"math"

	"github.com/graphflowdb/graphflow/internal/common"
	"github.com/graphflowdb/graphflow/internal/processor/factorizedtable"
)

// Source fixed-width numeric columns are stored little-endian, the same
// convention internal/storage/pager uses for on-page integers.
func decodeInt64LE(b []byte) int64     { return int64(binary.LittleEndian.Uint64(b)) }
func decodeFloat64LE(b []byte) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(b)) }

const (
	notNullByte byte = 0x00
	isNullByte  byte = 0xFF
)

// KeyBlock is a flat array of Count fixed-width encoded keys, one per
// source tuple: each key is Layout.PrefixWidth comparable bytes followed by
// an 8-byte non-inverted TupleRef tail.
type KeyBlock struct {
	Layout *Layout
	Data   []byte
	Count  int
}

// KeyAt returns the full key (prefix + tail) for row i.
func (b *KeyBlock) KeyAt(i int) []byte {
	return b.Data[i*b.Layout.KeyWidth : (i+1)*b.Layout.KeyWidth]
}

// PrefixAt returns the comparable prefix for row i.
func (b *KeyBlock) PrefixAt(i int) []byte {
	return b.KeyAt(i)[:b.Layout.PrefixWidth]
}

// TailAt decodes the tuple reference for row i.
func (b *KeyBlock) TailAt(i int) TupleRef {
	return decodeTupleRef(b.KeyAt(i)[b.Layout.PrefixWidth:])
}

// NewKeyBlock allocates an empty block of the given capacity.
func NewKeyBlock(layout *Layout, capacity int) *KeyBlock {
	return &KeyBlock{Layout: layout, Data: make([]byte, capacity*layout.KeyWidth)}
}

// Encoder builds a KeyBlock from a factorized table's rows, one instance
// used per worker goroutine (it holds no shared mutable state beyond the
// layout).
type Encoder struct {
	layout *Layout
}

// NewEncoder creates an Encoder for the given sort columns.
func NewEncoder(cols []ColumnSpec) *Encoder {
	return &Encoder{layout: NewLayout(cols)}
}

func (e *Encoder) Layout() *Layout { return e.layout }

// Encode reads every row of table and produces a sorted-by-nothing-yet
// KeyBlock plus the TuplePtr each key's tail.Index addresses. tableID tags
// every produced TupleRef so a later merge across multiple workers'
// key blocks can tell their tails apart.
func (e *Encoder) Encode(table *factorizedtable.Table, tableID uint16) (*KeyBlock, []factorizedtable.TuplePtr, error) {
	ptrs := table.AllPointers()
	n := len(ptrs)

	cols := make([]int, len(e.layout.Columns))
	for i, c := range e.layout.Columns {
		cols[i] = c.SourceColumn
	}
	vectors, err := table.Lookup(cols, ptrs)
	if err != nil {
		return nil, nil, common.WrapStorageErrorf(err, "orderby: encode lookup")
	}

	block := NewKeyBlock(e.layout, n)
	block.Count = n
	for i := 0; i < n; i++ {
		key := block.KeyAt(i)
		for ci, spec := range e.layout.Columns {
			e.encodeColumn(key, ci, spec, vectors[ci], i)
		}
		encodeTupleRef(key[e.layout.PrefixWidth:], TupleRef{TableID: tableID, Index: uint32(i)})
	}
	return block, ptrs, nil
}

func (e *Encoder) encodeColumn(key []byte, ci int, spec ColumnSpec, v factorizedtable.Vector, row int) {
	seg := e.layout.segmentAt(key, ci)
	isNull := v.IsNullAt(row)
	if isNull {
		seg[0] = isNullByte
		for i := 1; i < len(seg); i++ {
			seg[i] = 0
		}
	} else {
		seg[0] = notNullByte
		switch spec.Type {
		case TypeInt64:
			encodeInt64(seg[1:], decodeInt64LE(v.FixedAt(row)))
		case TypeFloat64:
			encodeFloat64(seg[1:], decodeFloat64LE(v.FixedAt(row)))
		case TypeString:
			encodeStringPrefix(seg[1:], v.StringAt(row))
		}
	}
	if !spec.Ascending {
		invert(seg)
	}
}
