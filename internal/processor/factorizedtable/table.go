package factorizedtable

import (
	"encoding/binary"

	"github.com/graphflowdb/graphflow/internal/common"
)

// defaultBlockCapacity is the number of tuple rows packed into one tuple
// block before a new block is allocated.
const defaultBlockCapacity = 2048

// noOverflow marks a string descriptor whose value fits entirely in its
// inline prefix.
const noOverflow = 0xFFFFFFFF

// overflowBuffer is an append-only heap for string/list payloads that don't
// fit in a row's inline prefix. It is owned by the tuple block(s) that
// reference it, not by the table, so blocks moved between tables by Merge
// keep resolving their overflow data correctly.
type overflowBuffer struct {
	data []byte
}

func (o *overflowBuffer) append(b []byte) uint32 {
	offset := uint32(len(o.data))
	o.data = append(o.data, b...)
	return offset
}

func (o *overflowBuffer) read(offset, length uint32) []byte {
	return o.data[offset : offset+length]
}

// tupleBlock is one fixed-capacity slab of rows.
type tupleBlock struct {
	schema   *Schema
	overflow *overflowBuffer
	buf      []byte
	count    int
	capacity int
}

func newTupleBlock(schema *Schema, capacity int) *tupleBlock {
	return &tupleBlock{
		schema:   schema,
		overflow: &overflowBuffer{},
		buf:      make([]byte, 0, capacity*schema.rowSize),
		capacity: capacity,
	}
}

func (b *tupleBlock) full() bool { return b.count >= b.capacity }

func (b *tupleBlock) rowBytes(row int) []byte {
	off := row * b.schema.rowSize
	return b.buf[off : off+b.schema.rowSize]
}

// allocRow appends a zeroed row and returns it along with its index.
func (b *tupleBlock) allocRow() ([]byte, int) {
	row := b.count
	b.buf = b.buf[:len(b.buf)+b.schema.rowSize]
	b.count++
	return b.rowBytes(row), row
}

// TuplePtr addresses one row, stable across Merge since it points directly
// at the owning block rather than a table-relative index.
type TuplePtr struct {
	block *tupleBlock
	row   int
}

// Table is a factorized tuple store: Append adds rows from a batch of flat
// and/or unflat vectors, Scan/Lookup materialize columns back out.
type Table struct {
	schema        *Schema
	blocks        []*tupleBlock
	blockCapacity int
	numTuples     uint64
}

// NewTable creates an empty table for the given schema.
func NewTable(schema *Schema) *Table {
	return &Table{schema: schema, blockCapacity: defaultBlockCapacity}
}

// Schema returns the table's row schema.
func (t *Table) Schema() *Schema { return t.schema }

// NumTuples returns the total number of rows appended.
func (t *Table) NumTuples() uint64 { return t.numTuples }

func (t *Table) lastBlock() *tupleBlock {
	if len(t.blocks) == 0 || t.blocks[len(t.blocks)-1].full() {
		b := newTupleBlock(t.schema, t.blockCapacity)
		t.blocks = append(t.blocks, b)
	}
	return t.blocks[len(t.blocks)-1]
}

// Append adds one tuple per logical position across vectors (a single
// tuple if every vector is flat, or selSize tuples if any is unflat) and
// returns a pointer to each appended row in order.
func (t *Table) Append(vectors []Vector) ([]TuplePtr, error) {
	if err := t.schema.validate(vectors); err != nil {
		return nil, err
	}
	n, err := t.schema.unflatSelSize(vectors)
	if err != nil {
		return nil, err
	}

	ptrs := make([]TuplePtr, n)
	for i := 0; i < n; i++ {
		block := t.lastBlock()
		row, rowIdx := block.allocRow()
		for col, v := range vectors {
			t.encodeColumn(block, row, col, v, i)
		}
		ptrs[i] = TuplePtr{block: block, row: rowIdx}
		t.numTuples++
	}
	return ptrs, nil
}

func (t *Table) encodeColumn(block *tupleBlock, row []byte, col int, v Vector, i int) {
	schema := t.schema
	off := schema.ColumnOffset(col)
	isNull := v.isNullAt(i)
	schema.setNullBit(row, col, isNull)
	if isNull {
		return
	}
	if schema.Columns[col].IsString {
		encodeInlineString(row[off:off+inlineStringWidth], block.overflow, v.stringAt(i))
		return
	}
	copy(row[off:off+schema.Columns[col].ByteWidth], v.fixedAt(i))
}

func encodeInlineString(dst []byte, overflow *overflowBuffer, value []byte) {
	binary.LittleEndian.PutUint32(dst[0:4], uint32(len(value)))
	prefixLen := len(value)
	if prefixLen > inlineStringPrefix {
		prefixLen = inlineStringPrefix
	}
	copy(dst[4:4+prefixLen], value[:prefixLen])
	for i := 4 + prefixLen; i < 4+inlineStringPrefix; i++ {
		dst[i] = 0
	}
	if len(value) <= inlineStringPrefix {
		binary.LittleEndian.PutUint32(dst[12:16], noOverflow)
		return
	}
	offset := overflow.append(value)
	binary.LittleEndian.PutUint32(dst[12:16], offset)
}

func decodeInlineString(src []byte, overflow *overflowBuffer) []byte {
	length := binary.LittleEndian.Uint32(src[0:4])
	if length <= inlineStringPrefix {
		out := make([]byte, length)
		copy(out, src[4:4+length])
		return out
	}
	offset := binary.LittleEndian.Uint32(src[12:16])
	return overflow.read(offset, length)
}

func (t *Table) decodeColumn(block *tupleBlock, row []byte, col int) ([]byte, bool) {
	schema := t.schema
	if schema.nullBit(row, col) {
		return nil, true
	}
	off := schema.ColumnOffset(col)
	if schema.Columns[col].IsString {
		return decodeInlineString(row[off:off+inlineStringWidth], block.overflow), false
	}
	width := schema.Columns[col].ByteWidth
	out := make([]byte, width)
	copy(out, row[off:off+width])
	return out, false
}

// Scan materializes columns for tuples [start, start+count) in append
// order, across block boundaries, as unflat vectors.
func (t *Table) Scan(colIndices []int, start, count uint64) ([]Vector, error) {
	if start+count > t.numTuples {
		return nil, common.RuntimeErrorf("factorizedtable: scan range [%d,%d) exceeds %d tuples", start, start+count, t.numTuples)
	}
	ptrs := make([]TuplePtr, 0, count)
	var seen uint64
	for _, block := range t.blocks {
		blockStart := seen
		blockEnd := seen + uint64(block.count)
		seen = blockEnd
		lo := common.Max(start, blockStart)
		hi := common.Min(start+count, blockEnd)
		for r := lo; r < hi; r++ {
			ptrs = append(ptrs, TuplePtr{block: block, row: int(r - blockStart)})
		}
	}
	return t.Lookup(colIndices, ptrs)
}

// Lookup decodes colIndices for an arbitrary set of tuple pointers,
// returning one unflat vector per requested column in ptrs order.
func (t *Table) Lookup(colIndices []int, ptrs []TuplePtr) ([]Vector, error) {
	out := make([]Vector, len(colIndices))
	for vi, col := range colIndices {
		if col < 0 || col >= len(t.schema.Columns) {
			return nil, common.RuntimeErrorf("factorizedtable: lookup column index %d out of range", col)
		}
		isString := t.schema.Columns[col].IsString
		width := t.schema.Columns[col].ByteWidth
		v := Vector{ByteWidth: width, IsString: isString, Nulls: make([]bool, len(ptrs))}
		if isString {
			v.Strings = make([][]byte, len(ptrs))
		} else {
			v.FixedData = make([]byte, 0, len(ptrs)*width)
		}
		for i, ptr := range ptrs {
			row := ptr.block.rowBytes(ptr.row)
			data, isNull := t.decodeColumn(ptr.block, row, col)
			v.Nulls[i] = isNull
			if isString {
				v.Strings[i] = data
			} else if isNull {
				v.FixedData = append(v.FixedData, make([]byte, width)...)
			} else {
				v.FixedData = append(v.FixedData, data...)
			}
		}
		out[vi] = v
	}
	return out, nil
}

// ReadFixedColumn returns the current bytes of a non-string, non-null
// column directly from ptr's row, without going through Lookup's vector
// allocation. Used by components (the aggregate hash table) that mutate
// entries in place rather than re-appending them.
func (t *Table) ReadFixedColumn(ptr TuplePtr, col int) []byte {
	off := t.schema.ColumnOffset(col)
	width := t.schema.Columns[col].ByteWidth
	row := ptr.block.rowBytes(ptr.row)
	return row[off : off+width]
}

// WriteFixedColumn overwrites a non-string column's bytes in place at
// ptr's row. The column must already be non-null (set via Append); this
// never touches the null bitmap.
func (t *Table) WriteFixedColumn(ptr TuplePtr, col int, value []byte) {
	off := t.schema.ColumnOffset(col)
	width := t.schema.Columns[col].ByteWidth
	row := ptr.block.rowBytes(ptr.row)
	copy(row[off:off+width], value)
}

// AllPointers returns a TuplePtr for every row in append order. Callers that
// need a stable handle per row outside the table itself (the order-by key
// encoder's tail metadata, for instance) capture these once up front.
func (t *Table) AllPointers() []TuplePtr {
	ptrs := make([]TuplePtr, 0, t.numTuples)
	for _, block := range t.blocks {
		for r := 0; r < block.count; r++ {
			ptrs = append(ptrs, TuplePtr{block: block, row: r})
		}
	}
	return ptrs
}

// Merge appends other's blocks onto t. Pointers previously returned by
// other's Append/Scan/Lookup remain valid since TuplePtr addresses a block
// directly rather than a table-relative index.
func (t *Table) Merge(other *Table) error {
	if other.schema.RowSize() != t.schema.RowSize() || len(other.schema.Columns) != len(t.schema.Columns) {
		return common.RuntimeErrorf("factorizedtable: merge schema mismatch")
	}
	t.blocks = append(t.blocks, other.blocks...)
	t.numTuples += other.numTuples
	other.blocks = nil
	other.numTuples = 0
	return nil
}

