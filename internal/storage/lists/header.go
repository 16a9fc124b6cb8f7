package lists

import (
	"encoding/binary"

	"github.com/graphflowdb/graphflow/internal/storage/pager"
)

// ───────────────────────────────────────────────────────────────────────────
// List headers
// ───────────────────────────────────────────────────────────────────────────
//
// Every node offset has one 32-bit Header describing where its adjacency
// (or unstructured property) list lives:
//
//   - a small list's elements are packed into its chunk's shared CSR data
//     pages; the header stores the element's starting offset within the
//     chunk's logical element stream and the list's length.
//   - a large list's elements live in a dedicated private page chain
//     (largelist.go); the header stores only the index identifying that
//     chain in ListsMetadata.largeListIdxToPageListHead.
//
// Bit layout (MSB to LSB):
//
//	bit 31       isLarge
//	bits 30..8   csrOffset   (23 bits, small-list case) OR largeListIdx (31 bits, large-list case, bits 30..0)
//	bits 7..0    length      (8 bits, small-list case only)
const (
	headerLargeMask  uint32 = 1 << 31
	headerOffsetMask uint32 = 0x7FFFFF00
	headerOffsetShift       = 8
	headerLengthMask uint32 = 0x000000FF

	headerLargeIdxMask uint32 = 0x7FFFFFFF

	// MaxSmallListLength is the largest length a small list's 8-bit length
	// field can hold before the list must be promoted to a large list.
	MaxSmallListLength = 0xFF
)

// Header is the packed per-node list descriptor.
type Header uint32

// NewSmallHeader builds a header for a small, CSR-packed list.
func NewSmallHeader(csrOffset uint32, length uint8) Header {
	return Header((csrOffset << headerOffsetShift) & headerOffsetMask | uint32(length))
}

// NewLargeHeader builds a header pointing at a large-list private chain.
func NewLargeHeader(largeListIdx uint32) Header {
	return Header(headerLargeMask | (largeListIdx & headerLargeIdxMask))
}

// IsLarge reports whether this header describes a large (privately
// chained) list.
func (h Header) IsLarge() bool { return uint32(h)&headerLargeMask != 0 }

// CSROffset returns the small list's starting offset within its chunk's
// element stream. Only meaningful when !IsLarge().
func (h Header) CSROffset() uint32 { return (uint32(h) & headerOffsetMask) >> headerOffsetShift }

// Length returns the small list's element count. Only meaningful when
// !IsLarge().
func (h Header) Length() uint8 { return uint8(uint32(h) & headerLengthMask) }

// LargeListIdx returns the index of this list's private chain in
// ListsMetadata. Only meaningful when IsLarge().
func (h Header) LargeListIdx() uint32 { return uint32(h) & headerLargeIdxMask }

// headerCodec marshals Header as a little-endian uint32, for use as a
// pager.Codec[Header] backing a ListsHeaders DiskArray.
type headerCodec struct{}

func (headerCodec) Width() int { return 4 }
func (headerCodec) Encode(h Header, buf []byte) {
	binary.LittleEndian.PutUint32(buf, uint32(h))
}
func (headerCodec) Decode(buf []byte) Header {
	return Header(binary.LittleEndian.Uint32(buf))
}

// HeaderCodec returns the Codec[Header] used by ListsHeaders.
func HeaderCodec() pager.Codec[Header] {
	return headerCodec{}
}
