package pager

import (
	"encoding/binary"
	"fmt"

	"github.com/graphflowdb/graphflow/internal/common"
)

// ───────────────────────────────────────────────────────────────────────────
// DiskArray
// ───────────────────────────────────────────────────────────────────────────
//
// DiskArray[T] is a transactional, fixed-width, paged array: the substrate
// every node/relationship property column and every lists metadata
// structure is built on. Its index is a chain of Page Index Pages (PIPs),
// each holding a fixed number of element-page pointers plus a pointer to
// the next PIP; elements are packed contiguously into element pages using a
// fixed per-element width.
//
// A DiskArray keeps two headers: the last-checkpointed header (what a
// reader sees) and an in-memory "write" header tracking appends made by
// the current write transaction. Get reads through the checkpointed header,
// so elements appended by the write transaction are not visible to it until
// CheckpointInMemoryIfNecessary; PushBack and Update work through the write
// header.

// pipEntriesOff/pipNextOff describe a Page Index Page's layout:
//
//	[0:32]   common PageHeader (Type=PIP)
//	[32:36]  NextPIP (uint32 LE), InvalidPageID if last
//	[36:40]  NumEntries in this PIP (uint32 LE)
//	[40:40+4*N] element-page PageIDs (uint32 LE each)
const (
	pipNextOff    = PageHeaderSize
	pipCountOff   = pipNextOff + 4
	pipEntriesOff = pipCountOff + 4
)

func pipCapacity(pageSize int) int {
	return (pageSize - pipEntriesOff) / 4
}

// DiskArrayHeader is the transactional header of a DiskArray: the number of
// live elements and the head of its PIP chain.
type DiskArrayHeader struct {
	NumElements  uint64
	FirstPIPPage PageID
}

// Codec marshals/unmarshals a fixed-width element type T.
type Codec[T any] interface {
	Width() int
	Encode(v T, buf []byte)
	Decode(buf []byte) T
}

// DiskArray is a generic transactional paged array of fixed-width elements.
type DiskArray[T any] struct {
	fh    *FileHandle
	bm    *BufferManager
	codec Codec[T]

	pageSize     int
	elemsPerPage int
	pipCap       int
	committedHdr DiskArrayHeader
	writeHdr     DiskArrayHeader
	inWriteTxn   bool
}

// NewDiskArray creates a DiskArray over fh, starting empty.
func NewDiskArray[T any](fh *FileHandle, bm *BufferManager, codec Codec[T]) *DiskArray[T] {
	da := &DiskArray[T]{
		fh:           fh,
		bm:           bm,
		codec:        codec,
		pageSize:     bm.pageSize,
		pipCap:       pipCapacity(bm.pageSize),
		committedHdr: DiskArrayHeader{FirstPIPPage: InvalidPageID},
	}
	da.elemsPerPage = da.pageSize / codec.Width()
	common.Assert(da.elemsPerPage > 0, "element width %d exceeds page size %d", codec.Width(), da.pageSize)
	da.writeHdr = da.committedHdr
	return da
}

// OpenDiskArray reconstructs a DiskArray from a previously persisted header.
func OpenDiskArray[T any](fh *FileHandle, bm *BufferManager, codec Codec[T], hdr DiskArrayHeader) *DiskArray[T] {
	da := NewDiskArray(fh, bm, codec)
	da.committedHdr = hdr
	da.writeHdr = hdr
	return da
}

// Header returns the last-checkpointed header, suitable for persisting
// alongside the owning structure's catalog entry.
func (da *DiskArray[T]) Header() DiskArrayHeader { return da.committedHdr }

// NumElements returns the number of committed elements.
func (da *DiskArray[T]) NumElements() uint64 { return da.committedHdr.NumElements }

// elementLocation maps a logical element index to (element page ordinal,
// offset within page) — it does not resolve the PIP chain itself.
func (da *DiskArray[T]) elementLocation(idx uint64) (pageOrdinal uint64, offset int) {
	pageOrdinal = idx / uint64(da.elemsPerPage)
	offset = int(idx%uint64(da.elemsPerPage)) * da.codec.Width()
	return
}

// resolveElementPage walks the PIP chain from headPIP to find the PageID of
// the element page at pageOrdinal. It allocates nothing: a chain or PIP
// that does not reach pageOrdinal is an error (see ensurePageAllocated).
func (da *DiskArray[T]) resolveElementPage(headPIP PageID, pageOrdinal uint64) (PageID, error) {
	pipIdx := pageOrdinal / uint64(da.pipCap)
	slot := int(pageOrdinal % uint64(da.pipCap))

	pip := headPIP
	for i := uint64(0); i < pipIdx; i++ {
		if pip == InvalidPageID {
			return InvalidPageID, fmt.Errorf("diskarray: PIP chain shorter than required")
		}
		buf, err := da.bm.Pin(da.fh, pip)
		if err != nil {
			return InvalidPageID, err
		}
		next := PageID(binary.LittleEndian.Uint32(buf[pipNextOff:]))
		da.bm.Unpin(da.fh, pip)
		pip = next
	}
	if pip == InvalidPageID {
		return InvalidPageID, fmt.Errorf("diskarray: PIP chain shorter than required")
	}
	buf, err := da.bm.Pin(da.fh, pip)
	if err != nil {
		return InvalidPageID, err
	}
	defer da.bm.Unpin(da.fh, pip)
	count := int(binary.LittleEndian.Uint32(buf[pipCountOff:]))
	if slot >= count {
		return InvalidPageID, fmt.Errorf("diskarray: element page not yet allocated")
	}
	return PageID(binary.LittleEndian.Uint32(buf[pipEntriesOff+4*slot:])), nil
}

// Get reads the committed value at idx.
func (da *DiskArray[T]) Get(idx uint64) (T, error) {
	var zero T
	if idx >= da.committedHdr.NumElements {
		return zero, fmt.Errorf("diskarray: index %d out of range (%d elements)", idx, da.committedHdr.NumElements)
	}
	pageOrdinal, offset := da.elementLocation(idx)
	elemPage, err := da.resolveElementPage(da.committedHdr.FirstPIPPage, pageOrdinal)
	if err != nil {
		return zero, err
	}
	buf, err := da.bm.Pin(da.fh, elemPage)
	if err != nil {
		return zero, err
	}
	defer da.bm.Unpin(da.fh, elemPage)
	return da.codec.Decode(buf[offset : offset+da.codec.Width()]), nil
}

// BeginWriteTransaction snapshots the write header from the committed
// header, so appends made during this transaction are invisible to
// concurrent readers until CheckpointInMemoryIfNecessary.
func (da *DiskArray[T]) BeginWriteTransaction() {
	da.writeHdr = da.committedHdr
	da.inWriteTxn = true
}

// Update overwrites the value at idx within the active write transaction.
// idx must be below the write header's element count: a committed element
// or one appended earlier in this transaction (Update never appends).
func (da *DiskArray[T]) Update(idx uint64, v T) error {
	common.Assert(da.inWriteTxn, "Update called outside a write transaction")
	if idx >= da.writeHdr.NumElements {
		return fmt.Errorf("diskarray: update index %d out of range (%d elements)", idx, da.writeHdr.NumElements)
	}
	pageOrdinal, offset := da.elementLocation(idx)
	elemPage, err := da.resolveElementPage(da.writeHdr.FirstPIPPage, pageOrdinal)
	if err != nil {
		return err
	}
	buf, err := da.bm.Pin(da.fh, elemPage)
	if err != nil {
		return err
	}
	da.codec.Encode(v, buf[offset:offset+da.codec.Width()])
	return da.bm.SetDirtyAndUnpin(da.fh, elemPage, false)
}

// PushBack appends v, growing the PIP chain and allocating a new element
// page if the current last page is full. Must be called within a write
// transaction.
func (da *DiskArray[T]) PushBack(v T) (uint64, error) {
	common.Assert(da.inWriteTxn, "PushBack called outside a write transaction")
	idx := da.writeHdr.NumElements
	pageOrdinal, offset := da.elementLocation(idx)

	if offset == 0 {
		if err := da.ensurePageAllocated(pageOrdinal); err != nil {
			return 0, err
		}
	}
	elemPage, err := da.resolveElementPage(da.writeHdr.FirstPIPPage, pageOrdinal)
	if err != nil {
		return 0, err
	}
	buf, err := da.bm.Pin(da.fh, elemPage)
	if err != nil {
		return 0, err
	}
	da.codec.Encode(v, buf[offset:offset+da.codec.Width()])
	if err := da.bm.SetDirtyAndUnpin(da.fh, elemPage, offset == 0); err != nil {
		return 0, err
	}
	da.writeHdr.NumElements++
	return idx, nil
}

// ensurePageAllocated grows the PIP chain (allocating a new PIP page if
// needed) and allocates a fresh element page for pageOrdinal, which must be
// exactly the next unallocated ordinal.
func (da *DiskArray[T]) ensurePageAllocated(pageOrdinal uint64) error {
	pipIdx := pageOrdinal / uint64(da.pipCap)
	slot := int(pageOrdinal % uint64(da.pipCap))

	// Walk/extend the PIP chain to reach pipIdx, tracking the PageID of the
	// PIP we need to append the new element-page pointer into.
	var prevPIP PageID = InvalidPageID
	pip := da.writeHdr.FirstPIPPage
	for i := uint64(0); i <= pipIdx; i++ {
		if pip == InvalidPageID {
			newPIP := da.fh.AddNewPage()
			buf, err := da.bm.Pin(da.fh, newPIP)
			if err != nil {
				return err
			}
			h := &PageHeader{Type: PageTypePIP, ID: newPIP}
			MarshalHeader(h, buf)
			binary.LittleEndian.PutUint32(buf[pipNextOff:], uint32(InvalidPageID))
			binary.LittleEndian.PutUint32(buf[pipCountOff:], 0)
			if err := da.bm.SetDirtyAndUnpin(da.fh, newPIP, true); err != nil {
				return err
			}
			if prevPIP == InvalidPageID {
				da.writeHdr.FirstPIPPage = newPIP
			} else {
				pbuf, err := da.bm.Pin(da.fh, prevPIP)
				if err != nil {
					return err
				}
				binary.LittleEndian.PutUint32(pbuf[pipNextOff:], uint32(newPIP))
				if err := da.bm.SetDirtyAndUnpin(da.fh, prevPIP, false); err != nil {
					return err
				}
			}
			pip = newPIP
		}
		if i < pipIdx {
			buf, err := da.bm.Pin(da.fh, pip)
			if err != nil {
				return err
			}
			next := PageID(binary.LittleEndian.Uint32(buf[pipNextOff:]))
			da.bm.Unpin(da.fh, pip)
			prevPIP = pip
			pip = next
		}
	}

	elemPage := da.fh.AddNewPage()
	buf, err := da.bm.Pin(da.fh, pip)
	if err != nil {
		return err
	}
	count := int(binary.LittleEndian.Uint32(buf[pipCountOff:]))
	common.Assert(count == slot, "diskarray: PIP slot %d not contiguous (count=%d)", slot, count)
	binary.LittleEndian.PutUint32(buf[pipEntriesOff+4*slot:], uint32(elemPage))
	binary.LittleEndian.PutUint32(buf[pipCountOff:], uint32(count+1))
	return da.bm.SetDirtyAndUnpin(da.fh, pip, false)
}

// CheckpointInMemoryIfNecessary publishes the write transaction's header as
// the new committed header, making its appends/updates visible to readers.
func (da *DiskArray[T]) CheckpointInMemoryIfNecessary() {
	da.committedHdr = da.writeHdr
	da.inWriteTxn = false
}

// RollbackInMemoryIfNecessary discards the write transaction's header,
// reverting to the last committed state. Pages allocated during the rolled
// back transaction are leaked for the current process lifetime; they are
// reclaimed the next time this structure is rebuilt from a checkpoint.
func (da *DiskArray[T]) RollbackInMemoryIfNecessary() {
	da.writeHdr = da.committedHdr
	da.inWriteTxn = false
}
