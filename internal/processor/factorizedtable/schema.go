// Package factorizedtable implements the execution engine's tuple store: a
// factorized table holds both flat columns (one value shared by every
// tuple in a data chunk) and unflat columns (one value per tuple) side by
// side, the representation every pipeline operator that materializes rows
// — hash-aggregate entries, order-by source tuples, scan output — uses.
package factorizedtable

import (
	"fmt"

	"github.com/graphflowdb/graphflow/internal/common"
)

// inlineStringWidth is the row-resident size of a string/list column: a
// 4-byte length, an 8-byte null-padded prefix, and a 4-byte overflow
// offset (valid only when the value doesn't fit in the prefix).
const (
	inlineStringWidth  = 16
	inlineStringPrefix = 8
)

// ColumnSchema describes one column of a factorized table.
type ColumnSchema struct {
	// IsUnflat marks a column whose value varies per tuple within a data
	// chunk; a flat column's single value is implicitly replicated across
	// every tuple appended from vectors sharing its DataChunkID.
	IsUnflat bool
	// DataChunkID groups columns (flat or unflat) that are selected
	// together; Append rejects a batch mixing two unflat columns from
	// different data chunks, since only one such payload can occupy a row.
	DataChunkID int
	// ByteWidth is the fixed on-disk width of non-string columns. Ignored
	// for string columns, which always occupy inlineStringWidth bytes.
	ByteWidth int
	// IsString marks a column holding variable-length string payloads,
	// inlined as {length, prefix, overflow_ptr} with heap-owned overflow
	// for anything longer than the prefix.
	IsString bool
}

func (c ColumnSchema) width() int {
	if c.IsString {
		return inlineStringWidth
	}
	return c.ByteWidth
}

// Schema lays out a factorized table's row format: column values packed
// back-to-back in declaration order, followed by a packed null bitmap (one
// bit per column, ceil(numCols/8) bytes).
type Schema struct {
	Columns          []ColumnSchema
	colOffsets       []int
	rowSize          int
	nullBitmapOffset int
}

// NewSchema computes column offsets and row size for cols.
func NewSchema(cols []ColumnSchema) *Schema {
	s := &Schema{Columns: cols, colOffsets: make([]int, len(cols))}
	off := 0
	for i, c := range cols {
		s.colOffsets[i] = off
		off += c.width()
	}
	s.nullBitmapOffset = off
	s.rowSize = off + nullBitmapBytes(len(cols))
	return s
}

func nullBitmapBytes(numCols int) int { return (numCols + 7) / 8 }

// RowSize returns the fixed byte width of one tuple row.
func (s *Schema) RowSize() int { return s.rowSize }

// ColumnOffset returns col's byte offset within a row.
func (s *Schema) ColumnOffset(col int) int { return s.colOffsets[col] }

func (s *Schema) nullBit(row []byte, col int) bool {
	byteIdx := s.nullBitmapOffset + col/8
	bit := uint(col % 8)
	return row[byteIdx]&(1<<bit) != 0
}

func (s *Schema) setNullBit(row []byte, col int, isNull bool) {
	byteIdx := s.nullBitmapOffset + col/8
	bit := uint(col % 8)
	if isNull {
		row[byteIdx] |= 1 << bit
	} else {
		row[byteIdx] &^= 1 << bit
	}
}

// validate checks vectors against the schema's column count and widths.
func (s *Schema) validate(vectors []Vector) error {
	if len(vectors) != len(s.Columns) {
		return common.RuntimeErrorf("factorizedtable: append got %d vectors, schema has %d columns", len(vectors), len(s.Columns))
	}
	for i, v := range vectors {
		col := s.Columns[i]
		if col.IsString != v.IsString {
			return common.RuntimeErrorf("factorizedtable: column %d string-ness mismatch", i)
		}
		if !col.IsString && v.ByteWidth != col.ByteWidth {
			return common.RuntimeErrorf("factorizedtable: column %d width %d != schema width %d", i, v.ByteWidth, col.ByteWidth)
		}
	}
	return nil
}

// unflatSelSize returns the common selected-size of every unflat vector in
// vectors. All unflat columns of one append must come from a single data
// chunk: it errors if two unflat columns name different data chunks, or if
// two unflat vectors carry different selected sizes.
func (s *Schema) unflatSelSize(vectors []Vector) (int, error) {
	size := -1
	chunkID := -1
	for i, v := range vectors {
		if !s.Columns[i].IsUnflat {
			continue
		}
		if size == -1 {
			size = v.SelSize()
			chunkID = s.Columns[i].DataChunkID
			continue
		}
		if s.Columns[i].DataChunkID != chunkID {
			return 0, common.RuntimeErrorf("factorizedtable: append mixes unflat columns from data chunks %d and %d", chunkID, s.Columns[i].DataChunkID)
		}
		if v.SelSize() != size {
			return 0, common.RuntimeErrorf("factorizedtable: append mixes unflat columns with selected sizes %d and %d", size, v.SelSize())
		}
	}
	if size == -1 {
		return 1, nil
	}
	return size, nil
}

func (c ColumnSchema) String() string {
	kind := "flat"
	if c.IsUnflat {
		kind = "unflat"
	}
	return fmt.Sprintf("{%s chunk=%d width=%d string=%v}", kind, c.DataChunkID, c.ByteWidth, c.IsString)
}
