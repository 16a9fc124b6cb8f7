package pager

import (
	"path/filepath"
	"testing"
)

func TestWAL_AppendAndReadBack(t *testing.T) {
	dir := t.TempDir()
	var instanceID [16]byte
	wal, err := OpenWAL(filepath.Join(dir, "wal.log"), DefaultPageSize, instanceID)
	if err != nil {
		t.Fatalf("OpenWAL: %v", err)
	}

	structure := StorageStructureID{Kind: StructureColumn, TableID: 7, PropertyID: 2, IsNodeTable: true}
	image := make([]byte, DefaultPageSize)
	copy(image, "hello-page")

	if _, err := wal.AppendRecord(&Record{
		Type:            RecordPageUpdateOrInsert,
		Structure:       structure,
		PageIdxOriginal: 3,
		IsInsert:        true,
		PageImage:       image,
	}); err != nil {
		t.Fatalf("append page record: %v", err)
	}
	if _, err := wal.AppendRecord(&Record{Type: RecordCommit, TxID: 1}); err != nil {
		t.Fatalf("append commit record: %v", err)
	}
	if err := wal.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := wal.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	records, err := ReadAllRecords(filepath.Join(dir, "wal.log"))
	if err != nil {
		t.Fatalf("ReadAllRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Type != RecordPageUpdateOrInsert || records[0].Structure != structure {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
	if string(records[0].PageImage[:10]) != "hello-page" {
		t.Fatalf("page image round trip mismatch")
	}
	if records[1].Type != RecordCommit || records[1].TxID != 1 {
		t.Fatalf("unexpected second record: %+v", records[1])
	}
}

func TestWAL_TruncateResetsToHeader(t *testing.T) {
	dir := t.TempDir()
	var instanceID [16]byte
	path := filepath.Join(dir, "wal.log")
	wal, err := OpenWAL(path, DefaultPageSize, instanceID)
	if err != nil {
		t.Fatalf("OpenWAL: %v", err)
	}
	if _, err := wal.AppendRecord(&Record{Type: RecordCommit, TxID: 1}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := wal.Truncate(); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	wal.Close()

	records, err := ReadAllRecords(path)
	if err != nil {
		t.Fatalf("ReadAllRecords: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty WAL after truncate, got %d records", len(records))
	}
}

func TestWAL_CorruptTailRecordIsIgnored(t *testing.T) {
	dir := t.TempDir()
	var instanceID [16]byte
	path := filepath.Join(dir, "wal.log")
	wal, err := OpenWAL(path, DefaultPageSize, instanceID)
	if err != nil {
		t.Fatalf("OpenWAL: %v", err)
	}
	if _, err := wal.AppendRecord(&Record{Type: RecordCommit, TxID: 1}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := wal.AppendRecord(&Record{Type: RecordCommit, TxID: 2}); err != nil {
		t.Fatalf("append: %v", err)
	}
	wal.Close()

	// Truncate the file mid-way through the last record to simulate a
	// torn write from a crash.
	// Each COMMIT record is walRecHdrSize+8 bytes (8-byte TxID payload).
	if err := truncateFileForTest(path, walFileHdrSize+(walRecHdrSize+8)+walRecHdrSize+5); err != nil {
		t.Fatalf("truncate file: %v", err)
	}

	records, err := ReadAllRecords(path)
	if err != nil {
		t.Fatalf("ReadAllRecords: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly 1 surviving record, got %d", len(records))
	}
}
