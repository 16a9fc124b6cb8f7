package factorizedtable

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func u64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func testSchema() *Schema {
	return NewSchema([]ColumnSchema{
		{IsUnflat: true, DataChunkID: 0, ByteWidth: 8},  // group key, int64
		{IsUnflat: true, DataChunkID: 0, IsString: true}, // label
		{IsUnflat: false, DataChunkID: 1, ByteWidth: 8},  // flat broadcast value
	})
}

func TestTable_AppendAndScanRoundTrip(t *testing.T) {
	schema := testSchema()
	tbl := NewTable(schema)

	keys := append(append([]byte{}, u64(1)...), u64(2)...)
	keys = append(keys, u64(3)...)
	labels := [][]byte{[]byte("a"), []byte("this-is-a-long-label-over-8-bytes"), []byte("bb")}

	vecs := []Vector{
		NewUnflatFixed(keys, 8, []bool{false, false, false}),
		NewUnflatString(labels, []bool{false, false, false}),
		NewFlatFixed(u64(42), false),
	}

	ptrs, err := tbl.Append(vecs)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(ptrs) != 3 {
		t.Fatalf("Append returned %d ptrs, want 3", len(ptrs))
	}
	if tbl.NumTuples() != 3 {
		t.Fatalf("NumTuples() = %d, want 3", tbl.NumTuples())
	}

	got, err := tbl.Scan([]int{0, 1, 2}, 0, 3)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	for i := 0; i < 3; i++ {
		if !bytes.Equal(got[0].fixedAt(i), u64(uint64(i+1))) {
			t.Fatalf("row %d key mismatch", i)
		}
		if !bytes.Equal(got[1].stringAt(i), labels[i]) {
			t.Fatalf("row %d label = %q, want %q", i, got[1].stringAt(i), labels[i])
		}
		if !bytes.Equal(got[2].fixedAt(i), u64(42)) {
			t.Fatalf("row %d flat value mismatch", i)
		}
	}
}

func TestTable_NullBitmapRoundTrip(t *testing.T) {
	schema := NewSchema([]ColumnSchema{{IsUnflat: true, ByteWidth: 8}})
	tbl := NewTable(schema)

	vecs := []Vector{NewUnflatFixed(append(u64(0), u64(5)...), 8, []bool{true, false})}
	if _, err := tbl.Append(vecs); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := tbl.Scan([]int{0}, 0, 2)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !got[0].Nulls[0] {
		t.Fatalf("row 0 should be null")
	}
	if got[0].Nulls[1] {
		t.Fatalf("row 1 should not be null")
	}
	if !bytes.Equal(got[0].fixedAt(1), u64(5)) {
		t.Fatalf("row 1 value mismatch")
	}
}

func TestTable_AppendSpansMultipleBlocks(t *testing.T) {
	schema := NewSchema([]ColumnSchema{{IsUnflat: true, ByteWidth: 8}})
	tbl := NewTable(schema)
	tbl.blockCapacity = 4

	n := 10
	data := make([]byte, 0, n*8)
	nulls := make([]bool, n)
	for i := 0; i < n; i++ {
		data = append(data, u64(uint64(i))...)
	}
	if _, err := tbl.Append([]Vector{NewUnflatFixed(data, 8, nulls)}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(tbl.blocks) != 3 {
		t.Fatalf("expected 3 blocks of capacity 4 for 10 rows, got %d", len(tbl.blocks))
	}

	got, err := tbl.Scan([]int{0}, 0, uint64(n))
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	for i := 0; i < n; i++ {
		if !bytes.Equal(got[0].fixedAt(i), u64(uint64(i))) {
			t.Fatalf("row %d = %v, want %d", i, got[0].fixedAt(i), i)
		}
	}
}

func TestTable_MergeKeepsPointersValid(t *testing.T) {
	schema := NewSchema([]ColumnSchema{{IsUnflat: true, ByteWidth: 8}})
	a := NewTable(schema)
	b := NewTable(schema)

	ptrsA, err := a.Append([]Vector{NewUnflatFixed(u64(1), 8, []bool{false})})
	if err != nil {
		t.Fatalf("Append a: %v", err)
	}
	ptrsB, err := b.Append([]Vector{NewUnflatFixed(u64(2), 8, []bool{false})})
	if err != nil {
		t.Fatalf("Append b: %v", err)
	}

	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if a.NumTuples() != 2 {
		t.Fatalf("NumTuples() after merge = %d, want 2", a.NumTuples())
	}

	got, err := a.Lookup([]int{0}, append(ptrsA, ptrsB...))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !bytes.Equal(got[0].fixedAt(0), u64(1)) || !bytes.Equal(got[0].fixedAt(1), u64(2)) {
		t.Fatalf("Lookup after merge returned wrong values")
	}
}

func TestTable_AppendRejectsMismatchedUnflatSizes(t *testing.T) {
	schema := NewSchema([]ColumnSchema{
		{IsUnflat: true, DataChunkID: 0, ByteWidth: 8},
		{IsUnflat: true, DataChunkID: 0, ByteWidth: 8},
	})
	tbl := NewTable(schema)

	vecs := []Vector{
		NewUnflatFixed(append(u64(1), u64(2)...), 8, []bool{false, false}),
		NewUnflatFixed(u64(1), 8, []bool{false}),
	}
	if _, err := tbl.Append(vecs); err == nil {
		t.Fatalf("expected error for mismatched unflat sizes")
	}
}

func TestTable_AppendRejectsWrongColumnCount(t *testing.T) {
	schema := testSchema()
	tbl := NewTable(schema)
	if _, err := tbl.Append([]Vector{NewFlatFixed(u64(1), false)}); err == nil {
		t.Fatalf("expected error for wrong vector count")
	}
}

func TestInlineString_ShortValueAvoidsOverflow(t *testing.T) {
	schema := NewSchema([]ColumnSchema{{IsUnflat: true, IsString: true}})
	tbl := NewTable(schema)

	if _, err := tbl.Append([]Vector{NewUnflatString([][]byte{[]byte("short")}, []bool{false})}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(tbl.blocks[0].overflow.data) != 0 {
		t.Fatalf("short string should not use overflow, used %d bytes", len(tbl.blocks[0].overflow.data))
	}

	got, err := tbl.Scan([]int{0}, 0, 1)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !bytes.Equal(got[0].stringAt(0), []byte("short")) {
		t.Fatalf("got %q, want %q", got[0].stringAt(0), "short")
	}
}

func TestInlineString_LongValueUsesOverflow(t *testing.T) {
	schema := NewSchema([]ColumnSchema{{IsUnflat: true, IsString: true}})
	tbl := NewTable(schema)
	long := []byte("this value is definitely longer than eight bytes")

	if _, err := tbl.Append([]Vector{NewUnflatString([][]byte{long}, []bool{false})}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(tbl.blocks[0].overflow.data) != len(long) {
		t.Fatalf("expected overflow to hold %d bytes, got %d", len(long), len(tbl.blocks[0].overflow.data))
	}

	got, err := tbl.Scan([]int{0}, 0, 1)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !bytes.Equal(got[0].stringAt(0), long) {
		t.Fatalf("got %q, want %q", got[0].stringAt(0), long)
	}
}
