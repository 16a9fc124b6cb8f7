package lists

import (
	"bytes"
	"testing"

	"github.com/graphflowdb/graphflow/internal/storage/pager"
)

func TestLargeList_AppendAndGet(t *testing.T) {
	bm := pager.NewBufferManager(testPageSize, 16)
	fh := newTestFileHandle(t, bm, "large.bin", 0)

	const elementWidth = 8
	ll := OpenLargeList(fh, bm, elementWidth, pager.InvalidPageID, 0)

	const n = 500 // spans several private pages at a 1KiB page size
	for i := 0; i < n; i++ {
		if err := ll.Append(elemOf(i)); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}
	if ll.NumElements() != n {
		t.Fatalf("NumElements() = %d, want %d", ll.NumElements(), n)
	}

	reopened := OpenLargeList(fh, bm, elementWidth, ll.Head(), ll.NumElements())
	for i := 0; i < n; i++ {
		got, err := reopened.Get(uint64(i))
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		if !bytes.Equal(got, elemOf(i)) {
			t.Fatalf("Get(%d) = %x, want %x", i, got, elemOf(i))
		}
	}
}

func TestLargeList_GetOutOfRange(t *testing.T) {
	bm := pager.NewBufferManager(testPageSize, 16)
	fh := newTestFileHandle(t, bm, "large2.bin", 0)
	ll := OpenLargeList(fh, bm, 8, pager.InvalidPageID, 0)
	if err := ll.Append(elemOf(1)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := ll.Get(5); err == nil {
		t.Fatalf("expected out-of-range error")
	}
}

func TestLargeList_RejectsWrongWidth(t *testing.T) {
	bm := pager.NewBufferManager(testPageSize, 16)
	fh := newTestFileHandle(t, bm, "large3.bin", 0)
	ll := OpenLargeList(fh, bm, 8, pager.InvalidPageID, 0)
	if err := ll.Append([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected width mismatch error")
	}
}
