package orderby

import (
	"testing"

	"github.com/graphflowdb/graphflow/internal/processor/factorizedtable"
	"github.com/graphflowdb/graphflow/internal/processor/morsel"
)

func buildSortedBlock(t *testing.T, values []int64, tableID uint16) (*KeyBlock, *factorizedtable.Table, []factorizedtable.TuplePtr) {
	t.Helper()
	schema := factorizedtable.NewSchema([]factorizedtable.ColumnSchema{{IsUnflat: true, ByteWidth: 8}})
	table := factorizedtable.NewTable(schema)
	var data []byte
	nulls := make([]bool, len(values))
	for _, v := range values {
		data = append(data, leInt64(v)...)
	}
	if _, err := table.Append([]factorizedtable.Vector{factorizedtable.NewUnflatFixed(data, 8, nulls)}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	enc := NewEncoder([]ColumnSpec{{Type: TypeInt64, Ascending: true, SourceColumn: 0}})
	block, ptrs, err := enc.Encode(table, tableID)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	Sort(block, makeResolver(table, ptrs))
	return block, table, ptrs
}

func TestDispatcher_MergesTwoSortedBlocksIntoTotalOrder(t *testing.T) {
	blockA, tableA, ptrsA := buildSortedBlock(t, []int64{1, 3, 5, 7, 9}, 0)
	blockB, tableB, ptrsB := buildSortedBlock(t, []int64{2, 4, 6, 8, 10}, 1)

	tables := map[uint16]*factorizedtable.Table{0: tableA, 1: tableB}
	ptrSets := map[uint16][]factorizedtable.TuplePtr{0: ptrsA, 1: ptrsB}
	resolve := func(ref TupleRef, col int) ([]byte, bool) {
		return makeResolver(tables[ref.TableID], ptrSets[ref.TableID])(ref, col)
	}

	layout := NewLayout([]ColumnSpec{{Type: TypeInt64, Ascending: true, SourceColumn: 0}})
	d := NewDispatcher(layout, resolve, morsel.NewPool(4))
	d.Enqueue(blockA)
	d.Enqueue(blockB)

	merged, err := d.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if merged.Count != 10 {
		t.Fatalf("merged.Count = %d, want 10", merged.Count)
	}

	var prev int64 = -1 << 62
	for i := 0; i < merged.Count; i++ {
		ref := merged.TailAt(i)
		tbl := tables[ref.TableID]
		ptr := ptrSets[ref.TableID][ref.Index]
		got := decodeInt64LE(mustFixed(t, tbl, ptr))
		if got <= prev {
			t.Fatalf("merged[%d] = %d not strictly increasing after %d", i, got, prev)
		}
		prev = got
	}
}

func TestDispatcher_SplitsMergeIntoMorsels(t *testing.T) {
	n := 25000
	valuesA := make([]int64, n)
	valuesB := make([]int64, n)
	for i := 0; i < n; i++ {
		valuesA[i] = int64(2 * i)
		valuesB[i] = int64(2*i + 1)
	}
	blockA, tableA, ptrsA := buildSortedBlock(t, valuesA, 0)
	blockB, tableB, ptrsB := buildSortedBlock(t, valuesB, 1)

	tables := map[uint16]*factorizedtable.Table{0: tableA, 1: tableB}
	ptrSets := map[uint16][]factorizedtable.TuplePtr{0: ptrsA, 1: ptrsB}
	resolve := func(ref TupleRef, col int) ([]byte, bool) {
		return makeResolver(tables[ref.TableID], ptrSets[ref.TableID])(ref, col)
	}

	layout := NewLayout([]ColumnSpec{{Type: TypeInt64, Ascending: true, SourceColumn: 0}})
	d := NewDispatcher(layout, resolve, morsel.NewPool(4))
	d.Enqueue(blockA)
	d.Enqueue(blockB)

	merged, err := d.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if merged.Count != 2*n {
		t.Fatalf("merged.Count = %d, want %d", merged.Count, 2*n)
	}
	for i := 0; i < merged.Count; i++ {
		ref := merged.TailAt(i)
		tbl := tables[ref.TableID]
		ptr := ptrSets[ref.TableID][ref.Index]
		got := decodeInt64LE(mustFixed(t, tbl, ptr))
		if got != int64(i) {
			t.Fatalf("merged[%d] = %d, want %d", i, got, i)
		}
	}
}

func TestDispatcher_SingleBlockPassesThrough(t *testing.T) {
	block, _, _ := buildSortedBlock(t, []int64{1, 2, 3}, 0)
	layout := NewLayout([]ColumnSpec{{Type: TypeInt64, Ascending: true, SourceColumn: 0}})
	d := NewDispatcher(layout, nil, morsel.NewPool(2))
	d.Enqueue(block)

	got, err := d.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != block {
		t.Fatalf("single-block Run should pass the block through unchanged")
	}
}
