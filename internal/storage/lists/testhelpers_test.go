package lists

import (
	"path/filepath"
	"testing"

	"github.com/graphflowdb/graphflow/internal/storage/pager"
)

const testPageSize = 1024

func newTestFileHandle(t *testing.T, bm *pager.BufferManager, name string, sub uint8) *pager.FileHandle {
	t.Helper()
	dir := t.TempDir()
	id := pager.StorageStructureID{Kind: pager.StructureListData, TableID: 1, SubKind: sub}
	fh, err := pager.OpenFileHandle(filepath.Join(dir, name), testPageSize, id, nil, bm)
	if err != nil {
		t.Fatalf("OpenFileHandle(%s): %v", name, err)
	}
	t.Cleanup(func() { fh.Close() })
	return fh
}

func newTestMetadata(t *testing.T, elementWidth, chunkSize int) (*Metadata, *pager.BufferManager) {
	t.Helper()
	bm := pager.NewBufferManager(testPageSize, 32)
	files := Files{
		Headers:        newTestFileHandle(t, bm, "headers.bin", 1),
		ChunkHead:      newTestFileHandle(t, bm, "chunkhead.bin", 2),
		ChunkCount:     newTestFileHandle(t, bm, "chunkcount.bin", 3),
		LargeListEntry: newTestFileHandle(t, bm, "largelist.bin", 4),
		Data:           newTestFileHandle(t, bm, "data.bin", 0),
	}
	return NewMetadata(bm, files, elementWidth, chunkSize), bm
}

func elemOf(n int) []byte {
	buf := make([]byte, 8)
	for i := range buf {
		buf[i] = byte(n + i)
	}
	return buf
}
