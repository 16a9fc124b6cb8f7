// Package lists implements GraphFlow's variable-length adjacency/property
// list storage: per-node list headers distinguishing small (CSR-packed)
// from large (privately chained) lists, the page-index pool small lists
// share, the in-memory local update store used while a write transaction
// is open, and the iterator that merges local updates back into the
// persistent CSR layout (promoting a list from small to large when it
// outgrows its chunk's inline capacity).
package lists

import (
	"encoding/binary"

	"github.com/graphflowdb/graphflow/internal/storage/pager"
)

// ───────────────────────────────────────────────────────────────────────────
// Page-list groups
// ───────────────────────────────────────────────────────────────────────────
//
// A node-group's small lists share their CSR data pages; ListsMetadata
// tracks which pages belong to a chunk via a chain of fixed-width "page
// list" groups, each holding up to groupCapacity page indices plus a
// pointer chaining to the next group when a chunk spans more pages than
// one group holds. Groups themselves are drawn from (and returned to) a
// single free-threaded pool shared by every chunk, so a chunk that shrinks
// gives its pages straight back to one that grows. Large lists do not use
// the pool: their private chains take pages from the file handle directly.
//
// Layout of a PageTypeListPageGroup page:
//
//	[0:32]   common PageHeader
//	[32:36]  NextGroup (uint32 LE) — next group in this chain, 0 = end
//	[36:40]  Count (uint32 LE) — number of live page-index slots used
//	[40:40+4*groupCapacity]  page-index slots (uint32 LE each)
const (
	groupCapacity   = 3 // live page-index slots per group (the 4th slot is implicit: the shared NextGroup pointer)
	groupNextOff    = pager.PageHeaderSize
	groupCountOff   = groupNextOff + 4
	groupEntriesOff = groupCountOff + 4
)

// PageListGroup wraps a page buffer holding one link in a page-list chain.
type PageListGroup struct {
	buf []byte
}

// WrapPageListGroup wraps an existing group page buffer.
func WrapPageListGroup(buf []byte) *PageListGroup { return &PageListGroup{buf: buf} }

// InitPageListGroup formats buf as a new, empty group page.
func InitPageListGroup(buf []byte, id pager.PageID) *PageListGroup {
	h := &pager.PageHeader{Type: pager.PageTypeListPageGroup, ID: id}
	pager.MarshalHeader(h, buf)
	binary.LittleEndian.PutUint32(buf[groupNextOff:], uint32(pager.InvalidPageID))
	binary.LittleEndian.PutUint32(buf[groupCountOff:], 0)
	return &PageListGroup{buf: buf}
}

func (g *PageListGroup) Next() pager.PageID {
	return pager.PageID(binary.LittleEndian.Uint32(g.buf[groupNextOff:]))
}

func (g *PageListGroup) SetNext(pid pager.PageID) {
	binary.LittleEndian.PutUint32(g.buf[groupNextOff:], uint32(pid))
}

func (g *PageListGroup) Count() int {
	return int(binary.LittleEndian.Uint32(g.buf[groupCountOff:]))
}

// Append adds a data-page index to this group. Returns false if the group
// is already at groupCapacity.
func (g *PageListGroup) Append(dataPage pager.PageID) bool {
	c := g.Count()
	if c >= groupCapacity {
		return false
	}
	binary.LittleEndian.PutUint32(g.buf[groupEntriesOff+4*c:], uint32(dataPage))
	binary.LittleEndian.PutUint32(g.buf[groupCountOff:], uint32(c+1))
	return true
}

// Get returns the i-th data-page index stored in this group.
func (g *PageListGroup) Get(i int) pager.PageID {
	return pager.PageID(binary.LittleEndian.Uint32(g.buf[groupEntriesOff+4*i:]))
}

// Bytes returns the underlying page buffer.
func (g *PageListGroup) Bytes() []byte { return g.buf }

// ───────────────────────────────────────────────────────────────────────────
// PageListsPool
// ───────────────────────────────────────────────────────────────────────────

// PageListsPool allocates and recycles page-list groups and the data pages
// they index, backing ListsMetadata.page_lists. A single pool is shared by
// every chunk's small-list chain; large lists allocate their private
// chains from the file handle and do not go through it.
type PageListsPool struct {
	fh *pager.FileHandle
	bm *pager.BufferManager

	freeGroups []pager.PageID
	freeData   []pager.PageID
}

// NewPageListsPool creates an empty pool over fh/bm.
func NewPageListsPool(fh *pager.FileHandle, bm *pager.BufferManager) *PageListsPool {
	return &PageListsPool{fh: fh, bm: bm}
}

// AllocGroup returns a fresh, empty group page, reusing a freed one if any
// is available.
func (p *PageListsPool) AllocGroup() (pager.PageID, error) {
	if n := len(p.freeGroups); n > 0 {
		pid := p.freeGroups[n-1]
		p.freeGroups = p.freeGroups[:n-1]
		buf, err := p.bm.Pin(p.fh, pid)
		if err != nil {
			return 0, err
		}
		InitPageListGroup(buf, pid)
		if err := p.bm.SetDirtyAndUnpin(p.fh, pid, false); err != nil {
			return 0, err
		}
		return pid, nil
	}
	pid := p.fh.AddNewPage()
	buf, err := p.bm.Pin(p.fh, pid)
	if err != nil {
		return 0, err
	}
	InitPageListGroup(buf, pid)
	if err := p.bm.SetDirtyAndUnpin(p.fh, pid, true); err != nil {
		return 0, err
	}
	return pid, nil
}

// AllocDataPage returns a data page, reusing a freed one if any is
// available (its old content is left in place); otherwise it returns a new
// page from the file handle, which reads as zeros until written.
func (p *PageListsPool) AllocDataPage() (pager.PageID, error) {
	if n := len(p.freeData); n > 0 {
		pid := p.freeData[n-1]
		p.freeData = p.freeData[:n-1]
		return pid, nil
	}
	return p.fh.AddNewPage(), nil
}

// FreeChain walks the group chain starting at head, releasing every group
// and every data page it references back to the pool.
func (p *PageListsPool) FreeChain(head pager.PageID) error {
	pid := head
	for pid != pager.InvalidPageID {
		buf, err := p.bm.Pin(p.fh, pid)
		if err != nil {
			return err
		}
		g := WrapPageListGroup(buf)
		count := g.Count()
		for i := 0; i < count; i++ {
			p.freeData = append(p.freeData, g.Get(i))
		}
		next := g.Next()
		p.bm.Unpin(p.fh, pid)
		p.freeGroups = append(p.freeGroups, pid)
		pid = next
	}
	return nil
}

// AppendDataPage appends a new data page to the chain rooted at head,
// allocating a new group when the current tail is full, and returns the
// (possibly unchanged) chain head along with the new data page's index.
func (p *PageListsPool) AppendDataPage(head pager.PageID) (newHead pager.PageID, dataPage pager.PageID, err error) {
	dataPage, err = p.AllocDataPage()
	if err != nil {
		return head, 0, err
	}

	if head == pager.InvalidPageID {
		groupID, err := p.AllocGroup()
		if err != nil {
			return head, 0, err
		}
		if err := p.appendToGroup(groupID, dataPage); err != nil {
			return head, 0, err
		}
		return groupID, dataPage, nil
	}

	tail, err := p.lastGroup(head)
	if err != nil {
		return head, 0, err
	}
	buf, err := p.bm.Pin(p.fh, tail)
	if err != nil {
		return head, 0, err
	}
	g := WrapPageListGroup(buf)
	if g.Count() < groupCapacity {
		g.Append(dataPage)
		if err := p.bm.SetDirtyAndUnpin(p.fh, tail, false); err != nil {
			return head, 0, err
		}
		return head, dataPage, nil
	}
	p.bm.Unpin(p.fh, tail)

	newGroup, err := p.AllocGroup()
	if err != nil {
		return head, 0, err
	}
	if err := p.appendToGroup(newGroup, dataPage); err != nil {
		return head, 0, err
	}
	tbuf, err := p.bm.Pin(p.fh, tail)
	if err != nil {
		return head, 0, err
	}
	WrapPageListGroup(tbuf).SetNext(newGroup)
	if err := p.bm.SetDirtyAndUnpin(p.fh, tail, false); err != nil {
		return head, 0, err
	}
	return head, dataPage, nil
}

func (p *PageListsPool) appendToGroup(groupID, dataPage pager.PageID) error {
	buf, err := p.bm.Pin(p.fh, groupID)
	if err != nil {
		return err
	}
	WrapPageListGroup(buf).Append(dataPage)
	return p.bm.SetDirtyAndUnpin(p.fh, groupID, false)
}

func (p *PageListsPool) lastGroup(head pager.PageID) (pager.PageID, error) {
	pid := head
	for {
		buf, err := p.bm.Pin(p.fh, pid)
		if err != nil {
			return 0, err
		}
		next := WrapPageListGroup(buf).Next()
		p.bm.Unpin(p.fh, pid)
		if next == pager.InvalidPageID {
			return pid, nil
		}
		pid = next
	}
}

// DataPages returns every data-page index in the chain rooted at head, in
// append order.
func (p *PageListsPool) DataPages(head pager.PageID) ([]pager.PageID, error) {
	var out []pager.PageID
	pid := head
	for pid != pager.InvalidPageID {
		buf, err := p.bm.Pin(p.fh, pid)
		if err != nil {
			return nil, err
		}
		g := WrapPageListGroup(buf)
		for i := 0; i < g.Count(); i++ {
			out = append(out, g.Get(i))
		}
		next := g.Next()
		p.bm.Unpin(p.fh, pid)
		pid = next
	}
	return out, nil
}
