// Package pager implements GraphFlow's buffer-managed paged storage layer:
// per-page concurrency state (PageState), pin/unpin buffer management with
// clock-sweep eviction (BufferManager/FileHandle), the write-ahead log and
// its replayer (WAL/WALReplayer), and the transactional DiskArray used by
// every fixed-width on-disk structure above it (lists headers/metadata,
// node/relationship property columns).
//
// The storage format follows the teacher's page conventions: a fixed page
// size (default 8 KiB, any power of two between 1 KiB and 64 KiB), a
// CRC32-C checksummed header on every page, and a single append-only WAL
// file shared by every logical file a Database opens.
package pager

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// ───────────────────────────────────────────────────────────────────────────
// Constants
// ───────────────────────────────────────────────────────────────────────────

const (
	// DefaultPageSize is the default page size in bytes (8 KiB).
	DefaultPageSize = 8192

	// MinPageSize is the minimum allowed page size (1 KiB).
	MinPageSize = 1024

	// MaxPageSize is the maximum allowed page size (64 KiB).
	MaxPageSize = 65536

	// PageHeaderSize is the size of the common page header in bytes.
	//
	//	[0]     PageType   (1 byte)
	//	[1]     Flags      (1 byte)
	//	[2:4]   Reserved   (2 bytes)
	//	[4:8]   PageID     (4 bytes, uint32 LE) — logical page index
	//	[8:16]  LSN        (8 bytes, uint64 LE)
	//	[16:20] CRC32      (4 bytes, uint32 LE)
	//	[20:32] Reserved   (12 bytes)
	PageHeaderSize = 32

	// InvalidPageID represents a null/invalid logical page index.
	InvalidPageID PageID = 0
)

// PageType identifies the kind of data stored in a page.
type PageType uint8

const (
	PageTypeSuperblock    PageType = 0x01
	PageTypePIP           PageType = 0x02 // DiskArray Page Index Page
	PageTypeElement       PageType = 0x03 // DiskArray element page
	PageTypeListPageGroup PageType = 0x04 // Lists small-list CSR page group member
	PageTypeListPrivate   PageType = 0x05 // large-list private page
	PageTypeFreeBitmap    PageType = 0x06 // FileHandle free-page bitmap snapshot
)

func (pt PageType) String() string {
	switch pt {
	case PageTypeSuperblock:
		return "Superblock"
	case PageTypePIP:
		return "PIP"
	case PageTypeElement:
		return "Element"
	case PageTypeListPageGroup:
		return "ListPageGroup"
	case PageTypeListPrivate:
		return "ListPrivate"
	case PageTypeFreeBitmap:
		return "FreeBitmap"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", uint8(pt))
	}
}

// PageID is a 32-bit logical page index within a logical file. Index 0 is
// reserved for the file's superblock/header page.
type PageID uint32

// LSN is a monotonically increasing Log Sequence Number.
type LSN uint64

// TxID identifies a transaction.
type TxID uint64

// PageHeader is the common header written at the start of every page.
type PageHeader struct {
	Type     PageType
	Flags    uint8
	Reserved uint16
	ID       PageID
	LSN      LSN
	CRC      uint32
	Pad      [12]byte
}

// MarshalHeader writes h into the first PageHeaderSize bytes of buf.
func MarshalHeader(h *PageHeader, buf []byte) {
	if len(buf) < PageHeaderSize {
		panic("buffer too small for PageHeader")
	}
	buf[0] = byte(h.Type)
	buf[1] = h.Flags
	binary.LittleEndian.PutUint16(buf[2:4], h.Reserved)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.ID))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.LSN))
	binary.LittleEndian.PutUint32(buf[16:20], h.CRC)
	copy(buf[20:32], h.Pad[:])
}

// UnmarshalHeader reads a PageHeader from the first PageHeaderSize bytes of buf.
func UnmarshalHeader(buf []byte) PageHeader {
	var h PageHeader
	h.Type = PageType(buf[0])
	h.Flags = buf[1]
	h.Reserved = binary.LittleEndian.Uint16(buf[2:4])
	h.ID = PageID(binary.LittleEndian.Uint32(buf[4:8]))
	h.LSN = LSN(binary.LittleEndian.Uint64(buf[8:16]))
	h.CRC = binary.LittleEndian.Uint32(buf[16:20])
	copy(h.Pad[:], buf[20:32])
	return h
}

// crcTable is the CRC32-C (Castagnoli) table used for every page and WAL
// record checksum.
var crcTable = crc32.MakeTable(crc32.Castagnoli)

// ComputePageCRC computes the CRC32-C of a full page, treating the CRC
// field (bytes 16:20) as zero during computation.
func ComputePageCRC(page []byte) uint32 {
	h := crc32.New(crcTable)
	h.Write(page[:16])
	h.Write([]byte{0, 0, 0, 0})
	h.Write(page[20:])
	return h.Sum32()
}

// SetPageCRC computes and writes the CRC into the page header.
func SetPageCRC(page []byte) {
	binary.LittleEndian.PutUint32(page[16:20], ComputePageCRC(page))
}

// VerifyPageCRC checks the CRC32-C checksum of a page.
func VerifyPageCRC(page []byte) error {
	stored := binary.LittleEndian.Uint32(page[16:20])
	computed := ComputePageCRC(page)
	if stored != computed {
		id := PageID(binary.LittleEndian.Uint32(page[4:8]))
		return fmt.Errorf("CRC mismatch on page %d: stored=%08x computed=%08x", id, stored, computed)
	}
	return nil
}

// NewPage allocates a zeroed page buffer and writes its header.
func NewPage(pageSize int, pt PageType, id PageID) []byte {
	buf := make([]byte, pageSize)
	h := &PageHeader{Type: pt, ID: id}
	MarshalHeader(h, buf)
	return buf
}
