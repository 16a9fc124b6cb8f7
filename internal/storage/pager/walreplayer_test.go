package pager

import (
	"path/filepath"
	"testing"
)

// mapFileResolver resolves StorageStructureID by table+property identity,
// the simplest possible FileResolver, sufficient for exercising replay in
// isolation from a real catalog.
type mapFileResolver struct {
	files map[uint64]*FileHandle
}

func (r *mapFileResolver) ResolveFileHandle(id StorageStructureID) (*FileHandle, error) {
	return r.files[id.TableID], nil
}

type recordingDDLHandler struct {
	nodeTablesCreated []uint64
	dropped           []uint64
}

func (h *recordingDDLHandler) OnNodeTableCreated(tableID uint64) {
	h.nodeTablesCreated = append(h.nodeTablesCreated, tableID)
}
func (h *recordingDDLHandler) OnRelTableCreated(uint64)    {}
func (h *recordingDDLHandler) OnCopyNode(uint64)           {}
func (h *recordingDDLHandler) OnCopyRel(uint64)            {}
func (h *recordingDDLHandler) OnTableStatistics(bool)      {}
func (h *recordingDDLHandler) OnCatalogUpdate()            {}
func (h *recordingDDLHandler) OnDropTable(tableID uint64, _ bool) {
	h.dropped = append(h.dropped, tableID)
}

func TestWALReplayer_AppliesOnlyUpToLastCommit(t *testing.T) {
	dir := t.TempDir()
	var instanceID [16]byte
	walPath := filepath.Join(dir, "wal.log")
	wal, err := OpenWAL(walPath, DefaultPageSize, instanceID)
	if err != nil {
		t.Fatalf("OpenWAL: %v", err)
	}

	bm := NewBufferManager(DefaultPageSize, 4)
	fh, err := OpenFileHandle(filepath.Join(dir, "t1.col"), DefaultPageSize, StorageStructureID{Kind: StructureColumn, TableID: 1}, nil, bm)
	if err != nil {
		t.Fatalf("OpenFileHandle: %v", err)
	}
	fh.AddNewPage() // page 1; page 0 is reserved but replay still writes it directly

	image1 := make([]byte, DefaultPageSize)
	copy(image1, "committed-image")
	wal.AppendRecord(&Record{
		Type:            RecordPageUpdateOrInsert,
		Structure:       StorageStructureID{Kind: StructureColumn, TableID: 1},
		PageIdxOriginal: 0,
		IsInsert:        true,
		PageImage:       image1,
	})
	wal.AppendRecord(&Record{Type: RecordNodeTable, TableID: 1})
	wal.AppendRecord(&Record{Type: RecordCommit, TxID: 1})

	// A second, never-committed page update — must NOT be applied.
	image2 := make([]byte, DefaultPageSize)
	copy(image2, "uncommitted-image")
	wal.AppendRecord(&Record{
		Type:            RecordPageUpdateOrInsert,
		Structure:       StorageStructureID{Kind: StructureColumn, TableID: 1},
		PageIdxOriginal: 0,
		PageImage:       image2,
	})
	wal.Close()

	resolver := &mapFileResolver{files: map[uint64]*FileHandle{1: fh}}
	ddl := &recordingDDLHandler{}
	replayer := NewWALReplayer(resolver, ddl, ReplayModeRecovery)

	result, err := replayer.Replay(walPath)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if !result.Committed {
		t.Fatal("expected a committed prefix to be found")
	}
	if result.PagesApplied != 1 {
		t.Fatalf("expected exactly 1 page applied (the uncommitted one must be skipped), got %d", result.PagesApplied)
	}
	if len(ddl.nodeTablesCreated) != 1 || ddl.nodeTablesCreated[0] != 1 {
		t.Fatalf("expected NODE_TABLE record to be delivered to the DDL handler, got %+v", ddl.nodeTablesCreated)
	}

	buf, err := fh.readPhysical(0)
	if err != nil {
		t.Fatalf("readPhysical: %v", err)
	}
	if string(buf[:len("committed-image")]) != "committed-image" {
		t.Fatalf("expected committed image on disk, got %q", buf[:32])
	}
}

func TestWALReplayer_NoCommitAppliesNothing(t *testing.T) {
	dir := t.TempDir()
	var instanceID [16]byte
	walPath := filepath.Join(dir, "wal.log")
	wal, err := OpenWAL(walPath, DefaultPageSize, instanceID)
	if err != nil {
		t.Fatalf("OpenWAL: %v", err)
	}
	wal.AppendRecord(&Record{
		Type:            RecordPageUpdateOrInsert,
		Structure:       StorageStructureID{Kind: StructureColumn, TableID: 1},
		PageIdxOriginal: 0,
		PageImage:       make([]byte, DefaultPageSize),
	})
	wal.Close()

	replayer := NewWALReplayer(&mapFileResolver{files: map[uint64]*FileHandle{}}, nil, ReplayModeRecovery)
	result, err := replayer.Replay(walPath)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if result.Committed || result.PagesApplied != 0 {
		t.Fatalf("expected no-op replay without a COMMIT record, got %+v", result)
	}
}
