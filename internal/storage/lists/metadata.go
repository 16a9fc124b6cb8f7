package lists

import (
	"encoding/binary"
	"fmt"

	"github.com/graphflowdb/graphflow/internal/storage/pager"
)

// pageIDCodec marshals a pager.PageID as a little-endian uint32, used for
// the chunk-to-page-list-chain index array below.
type pageIDCodec struct{}

func (pageIDCodec) Width() int { return 4 }
func (pageIDCodec) Encode(v pager.PageID, buf []byte) {
	binary.LittleEndian.PutUint32(buf, uint32(v))
}
func (pageIDCodec) Decode(buf []byte) pager.PageID {
	return pager.PageID(binary.LittleEndian.Uint32(buf))
}

type uint64Codec struct{}

func (uint64Codec) Width() int                  { return 8 }
func (uint64Codec) Encode(v uint64, buf []byte) { binary.LittleEndian.PutUint64(buf, v) }
func (uint64Codec) Decode(buf []byte) uint64    { return binary.LittleEndian.Uint64(buf) }

// largeListEntry is one large list's persisted chain head and element
// count, stored together so a single DiskArray (and thus a single
// FileHandle) can back the whole largeListIdx -> chain mapping.
type largeListEntry struct {
	Head   pager.PageID
	Length uint64
}

type largeListEntryCodec struct{}

func (largeListEntryCodec) Width() int { return 12 }
func (largeListEntryCodec) Encode(v largeListEntry, buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], uint32(v.Head))
	binary.LittleEndian.PutUint64(buf[4:], v.Length)
}
func (largeListEntryCodec) Decode(buf []byte) largeListEntry {
	return largeListEntry{
		Head:   pager.PageID(binary.LittleEndian.Uint32(buf[0:])),
		Length: binary.LittleEndian.Uint64(buf[4:]),
	}
}

// DefaultChunkSize is the number of consecutive node offsets whose small
// lists share one page-list chain (one "chunk" of the CSR layout).
const DefaultChunkSize = 512

// Files bundles the FileHandles a Metadata instance needs. Each DiskArray
// requires its own FileHandle since DiskArray allocates pages directly out
// of the handle's page space; Data is shared by page-list groups, small-list
// data pages, and large-list private chains, none of which are DiskArrays.
type Files struct {
	Headers        *pager.FileHandle
	ChunkHead      *pager.FileHandle
	ChunkCount     *pager.FileHandle
	LargeListEntry *pager.FileHandle
	Data           *pager.FileHandle
}

// Metadata is the ListsMetadata component: per-node headers, the
// chunk-to-page-list-chain index for small lists, and the large-list-index
// array for promoted lists, all backed by a shared PageListsPool.
type Metadata struct {
	headers    *pager.DiskArray[Header]
	chunkHead  *pager.DiskArray[pager.PageID]
	chunkCount *pager.DiskArray[uint64]

	largeListEntries *pager.DiskArray[largeListEntry]

	pool *PageListsPool

	elementWidth int
	chunkSize    int
}

// NewMetadata creates an empty Metadata over the given files.
func NewMetadata(bm *pager.BufferManager, files Files, elementWidth, chunkSize int) *Metadata {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Metadata{
		headers:          pager.NewDiskArray[Header](files.Headers, bm, HeaderCodec()),
		chunkHead:        pager.NewDiskArray[pager.PageID](files.ChunkHead, bm, pageIDCodec{}),
		chunkCount:       pager.NewDiskArray[uint64](files.ChunkCount, bm, uint64Codec{}),
		largeListEntries: pager.NewDiskArray[largeListEntry](files.LargeListEntry, bm, largeListEntryCodec{}),
		pool:             NewPageListsPool(files.Data, bm),
		elementWidth:     elementWidth,
		chunkSize:        chunkSize,
	}
}

func (m *Metadata) chunkOf(nodeOffset uint64) uint64 { return nodeOffset / uint64(m.chunkSize) }

// BeginWriteTransaction opens a write transaction across every DiskArray
// this Metadata owns, so a single commit/rollback keeps them consistent.
func (m *Metadata) BeginWriteTransaction() {
	m.headers.BeginWriteTransaction()
	m.chunkHead.BeginWriteTransaction()
	m.chunkCount.BeginWriteTransaction()
	m.largeListEntries.BeginWriteTransaction()
}

// Checkpoint publishes every DiskArray's write transaction.
func (m *Metadata) Checkpoint() {
	m.headers.CheckpointInMemoryIfNecessary()
	m.chunkHead.CheckpointInMemoryIfNecessary()
	m.chunkCount.CheckpointInMemoryIfNecessary()
	m.largeListEntries.CheckpointInMemoryIfNecessary()
}

// Rollback discards every DiskArray's write transaction.
func (m *Metadata) Rollback() {
	m.headers.RollbackInMemoryIfNecessary()
	m.chunkHead.RollbackInMemoryIfNecessary()
	m.chunkCount.RollbackInMemoryIfNecessary()
	m.largeListEntries.RollbackInMemoryIfNecessary()
}

// HeaderFor returns the packed list header for nodeOffset, or a zero Header
// (an empty small list) if the node has never had a list written.
func (m *Metadata) HeaderFor(nodeOffset uint64) (Header, error) {
	if nodeOffset >= m.headers.NumElements() {
		return Header(0), nil
	}
	return m.headers.Get(nodeOffset)
}

// appendOrUpdate appends to (or updates) the slot idx of da, whose
// indices are assigned in strict node/chunk arrival order, growing the
// array with zero-valued filler entries if idx is ahead of its current
// length. Must run inside that array's write transaction.
func appendOrUpdate[T any](da *pager.DiskArray[T], idx uint64, v T, zero T) error {
	if idx < da.NumElements() {
		return da.Update(idx, v)
	}
	for da.NumElements() < idx {
		if _, err := da.PushBack(zero); err != nil {
			return err
		}
	}
	_, err := da.PushBack(v)
	return err
}

// SetHeader records h as nodeOffset's list header.
func (m *Metadata) SetHeader(nodeOffset uint64, h Header) error {
	return appendOrUpdate(m.headers, nodeOffset, h, Header(0))
}

func (m *Metadata) chunkHeadFor(chunk uint64) (pager.PageID, error) {
	if chunk >= m.chunkHead.NumElements() {
		return pager.InvalidPageID, nil
	}
	return m.chunkHead.Get(chunk)
}

func (m *Metadata) chunkCountFor(chunk uint64) (uint64, error) {
	if chunk >= m.chunkCount.NumElements() {
		return 0, nil
	}
	return m.chunkCount.Get(chunk)
}

func (m *Metadata) setChunkHead(chunk uint64, pid pager.PageID) error {
	return appendOrUpdate(m.chunkHead, chunk, pid, pager.InvalidPageID)
}

func (m *Metadata) setChunkCount(chunk uint64, count uint64) error {
	return appendOrUpdate(m.chunkCount, chunk, count, 0)
}

// AllocateLargeList reserves a fresh large-list slot and returns its index.
func (m *Metadata) AllocateLargeList() (uint32, error) {
	idx, err := m.largeListEntries.PushBack(largeListEntry{Head: pager.InvalidPageID})
	if err != nil {
		return 0, err
	}
	return uint32(idx), nil
}

func (m *Metadata) largeListEntryFor(idx uint32) (largeListEntry, error) {
	return m.largeListEntries.Get(uint64(idx))
}

func (m *Metadata) setLargeListEntry(idx uint32, e largeListEntry) error {
	return m.largeListEntries.Update(uint64(idx), e)
}

// ReadList returns the current persisted contents of nodeOffset's list, as
// a slice of elementWidth-byte element slices in list order.
func (m *Metadata) ReadList(nodeOffset uint64) ([][]byte, error) {
	h, err := m.HeaderFor(nodeOffset)
	if err != nil {
		return nil, err
	}
	if h.IsLarge() {
		return m.readLargeList(h.LargeListIdx())
	}
	return m.readSmallList(nodeOffset, h)
}

func (m *Metadata) readSmallList(nodeOffset uint64, h Header) ([][]byte, error) {
	length := int(h.Length())
	if length == 0 {
		return nil, nil
	}
	chunk := m.chunkOf(nodeOffset)
	head, err := m.chunkHeadFor(chunk)
	if err != nil {
		return nil, err
	}
	if head == pager.InvalidPageID {
		return nil, fmt.Errorf("lists: chunk %d has no page-list chain", chunk)
	}
	pages, err := m.pool.DataPages(head)
	if err != nil {
		return nil, err
	}

	capPerPage := smallListCapacity(m.pool.bm.PageSize(), m.elementWidth)
	out := make([][]byte, 0, length)
	remaining := uint64(h.CSROffset())
	need := length
	for _, pid := range pages {
		if remaining >= uint64(capPerPage) {
			remaining -= uint64(capPerPage)
			continue
		}
		buf, err := m.pool.bm.Pin(m.pool.fh, pid)
		if err != nil {
			return nil, err
		}
		for i := int(remaining); i < capPerPage && need > 0; i++ {
			off := smallListDataOff + i*m.elementWidth
			out = append(out, append([]byte{}, buf[off:off+m.elementWidth]...))
			need--
		}
		m.pool.bm.Unpin(m.pool.fh, pid)
		remaining = 0
		if need == 0 {
			break
		}
	}
	return out, nil
}

func (m *Metadata) readLargeList(idx uint32) ([][]byte, error) {
	e, err := m.largeListEntryFor(idx)
	if err != nil {
		return nil, err
	}
	ll := OpenLargeList(m.pool.fh, m.pool.bm, m.elementWidth, e.Head, e.Length)
	out := make([][]byte, 0, e.Length)
	for i := uint64(0); i < e.Length; i++ {
		v, err := ll.Get(i)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// WriteList persists elements as nodeOffset's complete new list content,
// appending to its chunk's shared CSR chain (small list) or its own
// private chain (large list, promoting from small if necessary). The
// small-list path always appends a fresh copy rather than rewriting in
// place, leaving the old copy as unreachable garbage until the owning
// structure is rebuilt; this keeps concurrent readers of the previous
// header valid without any in-place synchronization.
func (m *Metadata) WriteList(nodeOffset uint64, elements [][]byte) error {
	if len(elements) <= MaxSmallListLength {
		return m.writeSmallList(nodeOffset, elements)
	}
	return m.writeLargeList(nodeOffset, elements)
}

func (m *Metadata) writeSmallList(nodeOffset uint64, elements [][]byte) error {
	chunk := m.chunkOf(nodeOffset)
	startOffset, err := m.appendSmallElements(chunk, elements)
	if err != nil {
		return err
	}
	return m.SetHeader(nodeOffset, NewSmallHeader(startOffset, uint8(len(elements))))
}

func (m *Metadata) writeLargeList(nodeOffset uint64, elements [][]byte) error {
	h, err := m.HeaderFor(nodeOffset)
	if err != nil {
		return err
	}

	var idx uint32
	if h.IsLarge() {
		idx = h.LargeListIdx()
	} else {
		idx, err = m.AllocateLargeList()
		if err != nil {
			return err
		}
	}

	ll := OpenLargeList(m.pool.fh, m.pool.bm, m.elementWidth, pager.InvalidPageID, 0)
	for _, elem := range elements {
		if err := ll.Append(elem); err != nil {
			return err
		}
	}
	if err := m.setLargeListEntry(idx, largeListEntry{Head: ll.Head(), Length: ll.NumElements()}); err != nil {
		return err
	}
	return m.SetHeader(nodeOffset, NewLargeHeader(idx))
}

// appendSmallElements appends elems to the end of chunk's CSR element
// stream (which may include unreachable garbage from earlier rewrites),
// returning the logical offset the first appended element landed at.
func (m *Metadata) appendSmallElements(chunk uint64, elements [][]byte) (uint32, error) {
	head, err := m.chunkHeadFor(chunk)
	if err != nil {
		return 0, err
	}
	total, err := m.chunkCountFor(chunk)
	if err != nil {
		return 0, err
	}
	startOffset := uint32(total)

	capPerPage := smallListCapacity(m.pool.bm.PageSize(), m.elementWidth)
	pages, err := m.pool.DataPages(head)
	if err != nil {
		return 0, err
	}

	for _, elem := range elements {
		pageIdx := total / uint64(capPerPage)
		offsetInPage := int(total % uint64(capPerPage))

		var pid pager.PageID
		if pageIdx < uint64(len(pages)) {
			pid = pages[pageIdx]
		} else {
			newHead, dataPage, err := m.pool.AppendDataPage(head)
			if err != nil {
				return 0, err
			}
			head = newHead
			buf, err := m.pool.bm.Pin(m.pool.fh, dataPage)
			if err != nil {
				return 0, err
			}
			hdr := &pager.PageHeader{Type: pager.PageTypeElement, ID: dataPage}
			pager.MarshalHeader(hdr, buf)
			if err := m.pool.bm.SetDirtyAndUnpin(m.pool.fh, dataPage, false); err != nil {
				return 0, err
			}
			pages = append(pages, dataPage)
			pid = dataPage
		}

		buf, err := m.pool.bm.Pin(m.pool.fh, pid)
		if err != nil {
			return 0, err
		}
		off := smallListDataOff + offsetInPage*m.elementWidth
		copy(buf[off:off+m.elementWidth], elem)
		if err := m.pool.bm.SetDirtyAndUnpin(m.pool.fh, pid, false); err != nil {
			return 0, err
		}
		total++
	}

	if err := m.setChunkHead(chunk, head); err != nil {
		return 0, err
	}
	if err := m.setChunkCount(chunk, total); err != nil {
		return 0, err
	}
	return startOffset, nil
}

// smallListDataOff/smallListCapacity describe the layout small lists use
// within a page-list chain's data pages: unlike a PageListGroup (which
// indexes other pages), a small-list data page just packs elements
// back-to-back after the common header.
const smallListDataOff = pager.PageHeaderSize

func smallListCapacity(pageSize, elementWidth int) int {
	return (pageSize - smallListDataOff) / elementWidth
}
