package pager

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// ───────────────────────────────────────────────────────────────────────────
// FileHandle
// ───────────────────────────────────────────────────────────────────────────
//
// A FileHandle represents one logical file on disk: a node table's property
// column, a relationship table's list data/headers/metadata file, and so
// on. It owns the physical *os.File and the per-page PageState array; the
// BufferManager owns the actual frame memory and decides what is resident.
//
// Pages past the committed on-disk page count are "allocated but not yet
// flushed" — they read as a zeroed page until a writer fills them and a
// checkpoint flushes them to disk.

type FileHandle struct {
	mu sync.Mutex

	file      *os.File
	path      string
	pageSize  int
	structure StorageStructureID

	pageStates []*PageState
	frameIdx   []int32 // index into BufferManager.frames, or -1 if not resident

	numPagesOnDisk    uint32
	numPagesAllocated uint32

	freePageIDs []PageID

	wal *WAL // optional; nil disables WAL logging for this file
	bm  *BufferManager
}

// OpenFileHandle opens or creates the logical file at path.
func OpenFileHandle(path string, pageSize int, structure StorageStructureID, wal *WAL, bm *BufferManager) (*FileHandle, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open file %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("open file %s: held by another process: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	numPages := uint32(0)
	if info.Size() > 0 {
		numPages = uint32(info.Size() / int64(pageSize))
	}
	// Page 0 is reserved (it is InvalidPageID), so a new, empty file starts
	// with it already allocated and AddNewPage never hands it out.
	numAllocated := numPages
	if numAllocated == 0 {
		numAllocated = 1
	}
	fh := &FileHandle{
		file:              f,
		path:              path,
		pageSize:          pageSize,
		structure:         structure,
		numPagesOnDisk:    numPages,
		numPagesAllocated: numAllocated,
		wal:               wal,
		bm:                bm,
	}
	fh.pageStates = make([]*PageState, numAllocated)
	fh.frameIdx = make([]int32, numAllocated)
	for i := range fh.pageStates {
		fh.pageStates[i] = NewPageState() // starts EVICTED — not yet resident
		fh.frameIdx[i] = -1
	}
	return fh, nil
}

// NumPages returns the number of pages currently allocated (including pages
// not yet flushed to disk).
func (fh *FileHandle) NumPages() uint32 {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	return fh.numPagesAllocated
}

// AddNewPage allocates a new page index, reusing a freed one if available,
// and returns it. The page starts EVICTED; the first Pin against it yields
// a zeroed buffer.
func (fh *FileHandle) AddNewPage() PageID {
	fh.mu.Lock()
	defer fh.mu.Unlock()

	if n := len(fh.freePageIDs); n > 0 {
		pid := fh.freePageIDs[n-1]
		fh.freePageIDs = fh.freePageIDs[:n-1]
		fh.pageStates[pid].ResetToEvicted()
		return pid
	}

	pid := PageID(fh.numPagesAllocated)
	fh.numPagesAllocated++
	fh.pageStates = append(fh.pageStates, NewPageState())
	fh.frameIdx = append(fh.frameIdx, -1)
	return pid
}

// RemovePage returns a page to the free list for reuse. The caller must
// ensure the page is not pinned in any frame.
func (fh *FileHandle) RemovePage(pid PageID) {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	fh.freePageIDs = append(fh.freePageIDs, pid)
}

// pageState returns the PageState for pid, read under the handle's lock;
// pid must already have been allocated.
func (fh *FileHandle) pageState(pid PageID) *PageState {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	return fh.pageStates[pid]
}

// readPhysical reads a page's on-disk content, returning a zeroed buffer if
// the page has never been flushed.
func (fh *FileHandle) readPhysical(pid PageID) ([]byte, error) {
	fh.mu.Lock()
	onDisk := pid < PageID(fh.numPagesOnDisk)
	fh.mu.Unlock()

	buf := make([]byte, fh.pageSize)
	if !onDisk {
		return buf, nil
	}
	fh.hintRandom()
	off := int64(pid) * int64(fh.pageSize)
	if _, err := fh.file.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("read page %d of %s: %w", pid, fh.path, err)
	}
	if err := VerifyPageCRC(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// flushPhysical writes buf to pid's on-disk slot, extending the committed
// page count if necessary.
func (fh *FileHandle) flushPhysical(pid PageID, buf []byte) error {
	SetPageCRC(buf)
	off := int64(pid) * int64(fh.pageSize)
	if _, err := fh.file.WriteAt(buf, off); err != nil {
		return fmt.Errorf("flush page %d of %s: %w", pid, fh.path, err)
	}
	fh.mu.Lock()
	if uint32(pid)+1 > fh.numPagesOnDisk {
		fh.numPagesOnDisk = uint32(pid) + 1
	}
	fh.mu.Unlock()
	return nil
}

// logPageUpdate appends a PAGE_UPDATE_OR_INSERT WAL record for pid if this
// FileHandle has a WAL attached. isInsert distinguishes a brand-new page
// from an update to an existing one, mirroring spec §4.3.
func (fh *FileHandle) logPageUpdate(pid PageID, buf []byte, isInsert bool) (LSN, error) {
	if fh.wal == nil {
		return 0, nil
	}
	rec := &Record{
		Type:            RecordPageUpdateOrInsert,
		Structure:       fh.structure,
		PageIdxOriginal: pid,
		IsInsert:        isInsert,
		PageImage:       append([]byte{}, buf...),
	}
	return fh.wal.AppendRecord(rec)
}

// Sync fsyncs the physical file.
func (fh *FileHandle) Sync() error {
	return fh.file.Sync()
}

// hintSequential advises the kernel this file is about to be read or
// written in page order, used before a checkpoint's bulk flush pass.
func (fh *FileHandle) hintSequential() {
	_ = unix.Fadvise(int(fh.file.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}

// hintRandom advises the kernel this file is accessed via scattered point
// lookups, used before each on-disk page read in readPhysical.
func (fh *FileHandle) hintRandom() {
	_ = unix.Fadvise(int(fh.file.Fd()), 0, 0, unix.FADV_RANDOM)
}

// Close releases the advisory lock taken by OpenFileHandle and closes the
// underlying file descriptor.
func (fh *FileHandle) Close() error {
	_ = unix.Flock(int(fh.file.Fd()), unix.LOCK_UN)
	return fh.file.Close()
}

// Path returns the file's path.
func (fh *FileHandle) Path() string { return fh.path }

// Structure returns the StorageStructureID this file was opened with.
func (fh *FileHandle) Structure() StorageStructureID { return fh.structure }
