package orderby

import (
	"encoding/binary"
	"testing"

	"github.com/graphflowdb/graphflow/internal/processor/factorizedtable"
)

func leU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func leInt64(v int64) []byte { return leU64(uint64(v)) }

func makeResolver(table *factorizedtable.Table, ptrs []factorizedtable.TuplePtr) Resolver {
	return func(ref TupleRef, sourceColumn int) ([]byte, bool) {
		vecs, err := table.Lookup([]int{sourceColumn}, []factorizedtable.TuplePtr{ptrs[ref.Index]})
		if err != nil {
			panic(err)
		}
		if vecs[0].IsNullAt(0) {
			return nil, false
		}
		if vecs[0].IsString {
			return vecs[0].StringAt(0), true
		}
		return vecs[0].FixedAt(0), true
	}
}

func TestRadixSort_OrdersInt64Ascending(t *testing.T) {
	schema := factorizedtable.NewSchema([]factorizedtable.ColumnSchema{{IsUnflat: true, ByteWidth: 8}})
	table := factorizedtable.NewTable(schema)

	values := []int64{42, -7, 0, 1000, -1000, 5, 5, 3}
	var data []byte
	nulls := make([]bool, len(values))
	for _, v := range values {
		data = append(data, leInt64(v)...)
	}
	if _, err := table.Append([]factorizedtable.Vector{factorizedtable.NewUnflatFixed(data, 8, nulls)}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	enc := NewEncoder([]ColumnSpec{{Type: TypeInt64, Ascending: true, SourceColumn: 0}})
	block, ptrs, err := enc.Encode(table, 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	resolve := makeResolver(table, ptrs)
	Sort(block, resolve)

	want := append([]int64{}, values...)
	insertionSortInt64(want)
	for i, w := range want {
		ref := block.TailAt(i)
		got := decodeInt64LE(mustFixed(t, table, ptrs[ref.Index]))
		if got != w {
			t.Fatalf("sorted[%d] = %d, want %d", i, got, w)
		}
	}
}

func TestRadixSort_DescendingInvertsOrder(t *testing.T) {
	schema := factorizedtable.NewSchema([]factorizedtable.ColumnSchema{{IsUnflat: true, ByteWidth: 8}})
	table := factorizedtable.NewTable(schema)

	values := []int64{1, 2, 3, 4, 5}
	var data []byte
	nulls := make([]bool, len(values))
	for _, v := range values {
		data = append(data, leInt64(v)...)
	}
	if _, err := table.Append([]factorizedtable.Vector{factorizedtable.NewUnflatFixed(data, 8, nulls)}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	enc := NewEncoder([]ColumnSpec{{Type: TypeInt64, Ascending: false, SourceColumn: 0}})
	block, ptrs, err := enc.Encode(table, 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	Sort(block, makeResolver(table, ptrs))

	want := []int64{5, 4, 3, 2, 1}
	for i, w := range want {
		ref := block.TailAt(i)
		got := decodeInt64LE(mustFixed(t, table, ptrs[ref.Index]))
		if got != w {
			t.Fatalf("sorted[%d] = %d, want %d", i, got, w)
		}
	}
}

func TestRadixSort_HomogeneousBytesSkipped(t *testing.T) {
	schema := factorizedtable.NewSchema([]factorizedtable.ColumnSchema{{IsUnflat: true, ByteWidth: 8}})
	table := factorizedtable.NewTable(schema)

	n := 50
	var data []byte
	nulls := make([]bool, n)
	for i := 0; i < n; i++ {
		data = append(data, leInt64(7)...) // identical values: every byte position is homogeneous
	}
	if _, err := table.Append([]factorizedtable.Vector{factorizedtable.NewUnflatFixed(data, 8, nulls)}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	enc := NewEncoder([]ColumnSpec{{Type: TypeInt64, Ascending: true, SourceColumn: 0}})
	block, ptrs, err := enc.Encode(table, 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	Sort(block, makeResolver(table, ptrs))
	if block.Count != n {
		t.Fatalf("Count = %d, want %d", block.Count, n)
	}
	for i := 0; i < n; i++ {
		if decodeInt64LE(mustFixed(t, table, ptrs[block.TailAt(i).Index])) != 7 {
			t.Fatalf("row %d not preserved", i)
		}
	}
}

func TestTieBreak_ResolvesStringsBeyondEncodedPrefix(t *testing.T) {
	schema := factorizedtable.NewSchema([]factorizedtable.ColumnSchema{{IsUnflat: true, IsString: true}})
	table := factorizedtable.NewTable(schema)

	labels := [][]byte{[]byte("aaaaaaaaaaaaZ"), []byte("aaaaaaaaaaaaA"), []byte("aaaaaaaaaaaaM")}
	nulls := make([]bool, len(labels))
	if _, err := table.Append([]factorizedtable.Vector{factorizedtable.NewUnflatString(labels, nulls)}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	enc := NewEncoder([]ColumnSpec{{Type: TypeString, Ascending: true, SourceColumn: 0}})
	block, ptrs, err := enc.Encode(table, 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	Sort(block, makeResolver(table, ptrs))

	want := []string{"aaaaaaaaaaaaA", "aaaaaaaaaaaaM", "aaaaaaaaaaaaZ"}
	for i, w := range want {
		ref := block.TailAt(i)
		vecs, err := table.Lookup([]int{0}, []factorizedtable.TuplePtr{ptrs[ref.Index]})
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if string(vecs[0].StringAt(0)) != w {
			t.Fatalf("sorted[%d] = %q, want %q", i, vecs[0].StringAt(0), w)
		}
	}
}

func mustFixed(t *testing.T, table *factorizedtable.Table, ptr factorizedtable.TuplePtr) []byte {
	t.Helper()
	vecs, err := table.Lookup([]int{0}, []factorizedtable.TuplePtr{ptr})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	return vecs[0].FixedAt(0)
}

func insertionSortInt64(v []int64) {
	for i := 1; i < len(v); i++ {
		x := v[i]
		j := i - 1
		for j >= 0 && v[j] > x {
			v[j+1] = v[j]
			j--
		}
		v[j+1] = x
	}
}
