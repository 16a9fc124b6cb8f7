package pager

import (
	"encoding/binary"
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// Superblock – Page 0 of the "original" file
// ───────────────────────────────────────────────────────────────────────────
//
// Layout (fits in one page, default 8 KiB):
//
//  Offset  Size  Field
//  ──────  ────  ───────────────────
//  0       32    Common PageHeader (Type=Superblock, ID=0)
//  32      16    InstanceID       [16]byte (random uuid, stamped per open)
//  48      4     FormatVersion    uint32 LE
//  52      4     PageSize         uint32 LE
//  56      8     PageCount        uint64 LE  (total pages in the original file)
//  64      8     CheckpointLSN    uint64 LE
//  72      8     NextTxID         uint64 LE
//  80      4     NextPageID       uint32 LE  (next logical page index to allocate)
//  84      148   Reserved         [148]byte  (future use — zero-filled)
//
// The CRC in the common header covers the entire page. Catalog persistence
// (table schemas, property definitions) lives outside this layer; the
// superblock only tracks what the buffer-managed storage substrate itself
// needs to recover: page accounting, the checkpoint watermark, and the
// next transaction id.

const (
	// CurrentFormatVersion is the on-disk format version.
	CurrentFormatVersion uint32 = 1

	sbInstanceIDOff    = PageHeaderSize         // 32
	sbFormatVersionOff = sbInstanceIDOff + 16   // 48
	sbPageSizeOff      = sbFormatVersionOff + 4 // 52
	sbPageCountOff     = sbPageSizeOff + 4      // 56
	sbCheckpointLSNOff = sbPageCountOff + 8     // 64
	sbNextTxIDOff      = sbCheckpointLSNOff + 8 // 72
	sbNextPageIDOff    = sbNextTxIDOff + 8      // 80
)

// Superblock holds the parsed contents of page 0 of the original file.
type Superblock struct {
	InstanceID    [16]byte
	FormatVersion uint32
	PageSize      uint32
	PageCount     uint64
	CheckpointLSN LSN
	NextTxID      TxID
	NextPageID    PageID
}

// MarshalSuperblock serializes sb into a full page buffer of pageSize bytes.
func MarshalSuperblock(sb *Superblock, pageSize int) []byte {
	buf := NewPage(pageSize, PageTypeSuperblock, 0)

	copy(buf[sbInstanceIDOff:sbInstanceIDOff+16], sb.InstanceID[:])
	binary.LittleEndian.PutUint32(buf[sbFormatVersionOff:], sb.FormatVersion)
	binary.LittleEndian.PutUint32(buf[sbPageSizeOff:], sb.PageSize)
	binary.LittleEndian.PutUint64(buf[sbPageCountOff:], sb.PageCount)
	binary.LittleEndian.PutUint64(buf[sbCheckpointLSNOff:], uint64(sb.CheckpointLSN))
	binary.LittleEndian.PutUint64(buf[sbNextTxIDOff:], uint64(sb.NextTxID))
	binary.LittleEndian.PutUint32(buf[sbNextPageIDOff:], uint32(sb.NextPageID))

	SetPageCRC(buf)
	return buf
}

// UnmarshalSuperblock decodes page 0 from buf, validating CRC, format
// version, and page size.
func UnmarshalSuperblock(buf []byte) (*Superblock, error) {
	if len(buf) < MinPageSize {
		return nil, fmt.Errorf("superblock too small: %d bytes", len(buf))
	}
	if err := VerifyPageCRC(buf); err != nil {
		return nil, fmt.Errorf("superblock CRC: %w", err)
	}
	sb := &Superblock{
		FormatVersion: binary.LittleEndian.Uint32(buf[sbFormatVersionOff:]),
		PageSize:      binary.LittleEndian.Uint32(buf[sbPageSizeOff:]),
		PageCount:     binary.LittleEndian.Uint64(buf[sbPageCountOff:]),
		CheckpointLSN: LSN(binary.LittleEndian.Uint64(buf[sbCheckpointLSNOff:])),
		NextTxID:      TxID(binary.LittleEndian.Uint64(buf[sbNextTxIDOff:])),
		NextPageID:    PageID(binary.LittleEndian.Uint32(buf[sbNextPageIDOff:])),
	}
	copy(sb.InstanceID[:], buf[sbInstanceIDOff:sbInstanceIDOff+16])

	if sb.FormatVersion != CurrentFormatVersion {
		return nil, fmt.Errorf("unsupported format version %d (this build supports %d)",
			sb.FormatVersion, CurrentFormatVersion)
	}
	if sb.PageSize < MinPageSize || sb.PageSize > MaxPageSize {
		return nil, fmt.Errorf("page size %d out of range [%d..%d]",
			sb.PageSize, MinPageSize, MaxPageSize)
	}
	if sb.PageSize&(sb.PageSize-1) != 0 {
		return nil, fmt.Errorf("page size %d is not a power of two", sb.PageSize)
	}
	return sb, nil
}

// NewSuperblock creates a default Superblock for a newly created file.
func NewSuperblock(pageSize uint32, instanceID [16]byte) *Superblock {
	return &Superblock{
		InstanceID:    instanceID,
		FormatVersion: CurrentFormatVersion,
		PageSize:      pageSize,
		PageCount:     1, // only the superblock so far
		CheckpointLSN: 0,
		NextTxID:      1,
		NextPageID:    1, // page 0 is the superblock
	}
}
