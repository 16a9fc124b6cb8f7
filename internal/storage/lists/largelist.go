package lists

import (
	"encoding/binary"
	"fmt"

	"github.com/graphflowdb/graphflow/internal/storage/pager"
)

// ───────────────────────────────────────────────────────────────────────────
// Large-list private page chain
// ───────────────────────────────────────────────────────────────────────────
//
// A list that outgrows its chunk's inline CSR capacity is promoted to a
// "large list": instead of sharing page-list groups with its chunk's other
// small lists, it gets a dedicated singly-linked chain of full pages. Each
// page packs elements of fixed elementWidth back-to-back, with a small
// trailer recording how many elements the page holds and the next page in
// the chain.
//
// Layout of a PageTypeListPrivate page:
//
//	[0:32]              common PageHeader
//	[32:36]              NextPage (uint32 LE), InvalidPageID if last
//	[36:40]              Count (uint32 LE) — number of elements on this page
//	[40:40+elementWidth*Count]  packed elements
const (
	largeListNextOff  = pager.PageHeaderSize
	largeListCountOff = largeListNextOff + 4
	largeListDataOff  = largeListCountOff + 4
)

// LargeListCapacity returns how many elementWidth-byte elements fit on one
// private page.
func LargeListCapacity(pageSize, elementWidth int) int {
	return (pageSize - largeListDataOff) / elementWidth
}

// LargeListPage wraps a page buffer as a private large-list page.
type LargeListPage struct {
	buf          []byte
	elementWidth int
}

// WrapLargeListPage wraps an existing private page buffer.
func WrapLargeListPage(buf []byte, elementWidth int) *LargeListPage {
	return &LargeListPage{buf: buf, elementWidth: elementWidth}
}

// InitLargeListPage formats buf as a new, empty private page.
func InitLargeListPage(buf []byte, id pager.PageID, elementWidth int) *LargeListPage {
	h := &pager.PageHeader{Type: pager.PageTypeListPrivate, ID: id}
	pager.MarshalHeader(h, buf)
	binary.LittleEndian.PutUint32(buf[largeListNextOff:], uint32(pager.InvalidPageID))
	binary.LittleEndian.PutUint32(buf[largeListCountOff:], 0)
	return &LargeListPage{buf: buf, elementWidth: elementWidth}
}

func (p *LargeListPage) Next() pager.PageID {
	return pager.PageID(binary.LittleEndian.Uint32(p.buf[largeListNextOff:]))
}

func (p *LargeListPage) SetNext(pid pager.PageID) {
	binary.LittleEndian.PutUint32(p.buf[largeListNextOff:], uint32(pid))
}

func (p *LargeListPage) Count() int {
	return int(binary.LittleEndian.Uint32(p.buf[largeListCountOff:]))
}

// Append writes elem (exactly elementWidth bytes) to the next free slot.
// Returns false if the page is full.
func (p *LargeListPage) Append(elem []byte) bool {
	c := p.Count()
	if c >= LargeListCapacity(len(p.buf), p.elementWidth) {
		return false
	}
	off := largeListDataOff + c*p.elementWidth
	copy(p.buf[off:off+p.elementWidth], elem)
	binary.LittleEndian.PutUint32(p.buf[largeListCountOff:], uint32(c+1))
	return true
}

// Get returns the i-th element's bytes.
func (p *LargeListPage) Get(i int) []byte {
	off := largeListDataOff + i*p.elementWidth
	return p.buf[off : off+p.elementWidth]
}

// Set overwrites the i-th element in place.
func (p *LargeListPage) Set(i int, elem []byte) {
	off := largeListDataOff + i*p.elementWidth
	copy(p.buf[off:off+p.elementWidth], elem)
}

// LargeList is a handle onto one large list's private page chain.
type LargeList struct {
	fh           *pager.FileHandle
	bm           *pager.BufferManager
	elementWidth int
	head         pager.PageID
	numElements  uint64
}

// OpenLargeList reconstructs a LargeList handle from its persisted head and
// element count.
func OpenLargeList(fh *pager.FileHandle, bm *pager.BufferManager, elementWidth int, head pager.PageID, numElements uint64) *LargeList {
	return &LargeList{fh: fh, bm: bm, elementWidth: elementWidth, head: head, numElements: numElements}
}

// Head returns the chain's head page, for persisting in ListsMetadata.
func (l *LargeList) Head() pager.PageID { return l.head }

// NumElements returns the number of elements currently stored.
func (l *LargeList) NumElements() uint64 { return l.numElements }

// Append adds elem to the end of the list, allocating a new private page
// when the current tail is full.
func (l *LargeList) Append(elem []byte) error {
	if len(elem) != l.elementWidth {
		return fmt.Errorf("largelist: element width %d != %d", len(elem), l.elementWidth)
	}

	if l.head == pager.InvalidPageID {
		pid := l.fh.AddNewPage()
		buf, err := l.bm.Pin(l.fh, pid)
		if err != nil {
			return err
		}
		page := InitLargeListPage(buf, pid, l.elementWidth)
		page.Append(elem)
		if err := l.bm.SetDirtyAndUnpin(l.fh, pid, true); err != nil {
			return err
		}
		l.head = pid
		l.numElements++
		return nil
	}

	tail, err := l.lastPage()
	if err != nil {
		return err
	}
	buf, err := l.bm.Pin(l.fh, tail)
	if err != nil {
		return err
	}
	page := WrapLargeListPage(buf, l.elementWidth)
	if page.Append(elem) {
		if err := l.bm.SetDirtyAndUnpin(l.fh, tail, false); err != nil {
			return err
		}
		l.numElements++
		return nil
	}
	l.bm.Unpin(l.fh, tail)

	newPid := l.fh.AddNewPage()
	nbuf, err := l.bm.Pin(l.fh, newPid)
	if err != nil {
		return err
	}
	newPage := InitLargeListPage(nbuf, newPid, l.elementWidth)
	newPage.Append(elem)
	if err := l.bm.SetDirtyAndUnpin(l.fh, newPid, true); err != nil {
		return err
	}

	tbuf, err := l.bm.Pin(l.fh, tail)
	if err != nil {
		return err
	}
	WrapLargeListPage(tbuf, l.elementWidth).SetNext(newPid)
	if err := l.bm.SetDirtyAndUnpin(l.fh, tail, false); err != nil {
		return err
	}
	l.numElements++
	return nil
}

// Get returns the idx-th element's bytes, walking the chain from the head.
func (l *LargeList) Get(idx uint64) ([]byte, error) {
	if idx >= l.numElements {
		return nil, fmt.Errorf("largelist: index %d out of range (%d elements)", idx, l.numElements)
	}
	pid := l.head
	remaining := idx
	for {
		buf, err := l.bm.Pin(l.fh, pid)
		if err != nil {
			return nil, err
		}
		page := WrapLargeListPage(buf, l.elementWidth)
		count := page.Count()
		if remaining < uint64(count) {
			out := append([]byte{}, page.Get(int(remaining))...)
			l.bm.Unpin(l.fh, pid)
			return out, nil
		}
		remaining -= uint64(count)
		next := page.Next()
		l.bm.Unpin(l.fh, pid)
		pid = next
	}
}

func (l *LargeList) lastPage() (pager.PageID, error) {
	pid := l.head
	for {
		buf, err := l.bm.Pin(l.fh, pid)
		if err != nil {
			return 0, err
		}
		next := WrapLargeListPage(buf, l.elementWidth).Next()
		l.bm.Unpin(l.fh, pid)
		if next == pager.InvalidPageID {
			return pid, nil
		}
		pid = next
	}
}
