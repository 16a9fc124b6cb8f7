package pager

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
)

// ───────────────────────────────────────────────────────────────────────────
// Write-Ahead Log
// ───────────────────────────────────────────────────────────────────────────
//
// The WAL is a single append-only file shared by every logical file the
// Database opens. Every record's total byte length is recoverable from its
// header, so a reader unfamiliar with a particular RecordType can still
// skip over it.
//
// WAL file header (first 32 bytes):
//
//	[0:8]   Magic       "GFLOWWAL"
//	[8:12]  Version     uint32 LE
//	[12:16] Reserved    4 bytes
//	[16:32] InstanceID  16 bytes
//
// WAL record (variable length, follows header):
//
//	[0]      RecordType (1 byte)
//	[1:9]    LSN        (uint64 LE)
//	[9:13]   PayloadLen (uint32 LE)
//	[13:17]  CRC        (uint32 LE, over the whole record with CRC zeroed)
//	[17:17+PayloadLen]  Payload (kind-specific, see marshalPayload)

const (
	walMagic       = "GFLOWWAL"
	walVersion     = uint32(1)
	walFileHdrSize = 32
	walRecHdrSize  = 17
)

// RecordType identifies the kind of WAL record (spec §4.3 table).
type RecordType uint8

const (
	RecordPageUpdateOrInsert RecordType = iota + 1
	RecordTableStatistics
	RecordCommit
	RecordCatalog
	RecordNodeTable
	RecordRelTable
	RecordCopyNode
	RecordCopyRel
	RecordDropTable
)

func (rt RecordType) String() string {
	switch rt {
	case RecordPageUpdateOrInsert:
		return "PAGE_UPDATE_OR_INSERT"
	case RecordTableStatistics:
		return "TABLE_STATISTICS"
	case RecordCommit:
		return "COMMIT"
	case RecordCatalog:
		return "CATALOG"
	case RecordNodeTable:
		return "NODE_TABLE"
	case RecordRelTable:
		return "REL_TABLE"
	case RecordCopyNode:
		return "COPY_NODE"
	case RecordCopyRel:
		return "COPY_REL"
	case RecordDropTable:
		return "DROP_TABLE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(rt))
	}
}

// Record is an in-memory WAL record. Only the fields relevant to Type are
// populated; the rest are zero.
type Record struct {
	Type RecordType
	LSN  LSN

	// PAGE_UPDATE_OR_INSERT
	Structure       StorageStructureID
	PageIdxOriginal PageID
	PageIdxInWAL    PageID
	IsInsert        bool
	PageImage       []byte // full page content staged in the WAL

	// TABLE_STATISTICS
	IsNodeTable bool

	// COMMIT
	TxID TxID

	// NODE_TABLE / REL_TABLE / COPY_NODE / COPY_REL / DROP_TABLE
	TableID uint64
}

// WAL manages the append-only log file.
type WAL struct {
	mu         sync.Mutex
	f          *os.File
	path       string
	pageSize   int
	nextLSN    LSN
	writePos   int64
	instanceID [16]byte
}

// OpenWAL opens or creates the WAL file at path.
func OpenWAL(path string, pageSize int, instanceID [16]byte) (*WAL, error) {
	exists := true
	if _, err := os.Stat(path); os.IsNotExist(err) {
		exists = false
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open WAL: %w", err)
	}
	w := &WAL{f: f, path: path, pageSize: pageSize, nextLSN: 1, instanceID: instanceID}
	if exists {
		if err := w.validateHeader(); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		if err := w.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
	}
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("seek WAL end: %w", err)
	}
	w.writePos = end
	return w, nil
}

func (w *WAL) writeHeader() error {
	var hdr [walFileHdrSize]byte
	copy(hdr[0:8], walMagic)
	binary.LittleEndian.PutUint32(hdr[8:12], walVersion)
	copy(hdr[16:32], w.instanceID[:])
	if _, err := w.f.WriteAt(hdr[:], 0); err != nil {
		return fmt.Errorf("write WAL header: %w", err)
	}
	return w.f.Sync()
}

func (w *WAL) validateHeader() error {
	var hdr [walFileHdrSize]byte
	n, err := w.f.ReadAt(hdr[:], 0)
	if err != nil && err != io.EOF {
		return fmt.Errorf("read WAL header: %w", err)
	}
	if n < walFileHdrSize {
		return fmt.Errorf("WAL header too short: %d bytes", n)
	}
	if string(hdr[0:8]) != walMagic {
		return fmt.Errorf("bad WAL magic")
	}
	ver := binary.LittleEndian.Uint32(hdr[8:12])
	if ver != walVersion {
		return fmt.Errorf("unsupported WAL version %d", ver)
	}
	copy(w.instanceID[:], hdr[16:32])
	return nil
}

// AppendRecord writes rec, assigns it the next LSN, and returns that LSN.
// AppendRecord does not fsync; callers that need durability (a COMMIT
// record) must call Sync afterwards.
func (w *WAL) AppendRecord(rec *Record) (LSN, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	lsn := w.nextLSN
	w.nextLSN++
	rec.LSN = lsn

	data := marshalRecord(rec)
	n, err := w.f.WriteAt(data, w.writePos)
	if err != nil {
		return 0, fmt.Errorf("WAL append: %w", err)
	}
	w.writePos += int64(n)
	return lsn, nil
}

// Sync fsyncs the WAL file. A caller that needs a commit durable before
// acknowledging it to the client must call Sync after appending the
// COMMIT record (spec §9: the WAL does not fsync per record by default).
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Sync()
}

// Truncate resets the WAL to just its header, after a successful checkpoint.
func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.f.Truncate(walFileHdrSize); err != nil {
		return err
	}
	w.writePos = walFileHdrSize
	return w.f.Sync()
}

// Close closes the WAL file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

// Remove deletes the WAL file from disk entirely — used by rollback, which
// discards the WAL without replaying it.
func (w *WAL) Remove() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.f.Close()
	return os.Remove(w.path)
}

// Path returns the WAL file's path.
func (w *WAL) Path() string { return w.path }

// NextLSN returns the next LSN that will be assigned.
func (w *WAL) NextLSN() LSN {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextLSN
}

// ReadAllRecords reads every well-formed record from the WAL, stopping at
// the first corrupt or partial record (crash truncation at the tail).
func ReadAllRecords(path string) ([]*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, err := f.Seek(walFileHdrSize, io.SeekStart); err != nil {
		return nil, err
	}
	var records []*Record
	for {
		rec, err := unmarshalRecord(f)
		if err != nil {
			break
		}
		records = append(records, rec)
	}
	return records, nil
}

// ───────────────────────────────────────────────────────────────────────────
// Record framing
// ───────────────────────────────────────────────────────────────────────────

// storageStructureIDSize is the fixed on-disk width of a StorageStructureID.
const storageStructureIDSize = 1 + 8 + 8 + 1 + 1 + 1 // 20 bytes

func marshalStorageStructureID(id StorageStructureID, buf []byte) {
	buf[0] = byte(id.Kind)
	binary.LittleEndian.PutUint64(buf[1:9], id.TableID)
	binary.LittleEndian.PutUint64(buf[9:17], id.PropertyID)
	if id.IsNodeTable {
		buf[17] = 1
	}
	buf[18] = byte(id.Direction)
	buf[19] = id.SubKind
}

func unmarshalStorageStructureID(buf []byte) StorageStructureID {
	return StorageStructureID{
		Kind:        StorageStructureKind(buf[0]),
		TableID:     binary.LittleEndian.Uint64(buf[1:9]),
		PropertyID:  binary.LittleEndian.Uint64(buf[9:17]),
		IsNodeTable: buf[17] != 0,
		Direction:   RelDirection(buf[18]),
		SubKind:     buf[19],
	}
}

// marshalPayload produces the kind-specific payload for rec (everything
// after the common 17-byte record header).
func marshalPayload(rec *Record) []byte {
	var buf bytes.Buffer
	switch rec.Type {
	case RecordPageUpdateOrInsert:
		var hdr [storageStructureIDSize + 9]byte
		marshalStorageStructureID(rec.Structure, hdr[:storageStructureIDSize])
		off := storageStructureIDSize
		binary.LittleEndian.PutUint32(hdr[off:], uint32(rec.PageIdxOriginal))
		binary.LittleEndian.PutUint32(hdr[off+4:], uint32(rec.PageIdxInWAL))
		if rec.IsInsert {
			hdr[off+8] = 1
		}
		buf.Write(hdr[:])
		buf.Write(rec.PageImage)
	case RecordTableStatistics:
		b := byte(0)
		if rec.IsNodeTable {
			b = 1
		}
		buf.WriteByte(b)
	case RecordCommit:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(rec.TxID))
		buf.Write(b[:])
	case RecordCatalog:
		// no payload
	case RecordNodeTable, RecordRelTable, RecordCopyNode, RecordCopyRel:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], rec.TableID)
		buf.Write(b[:])
	case RecordDropTable:
		var b [9]byte
		binary.LittleEndian.PutUint64(b[:8], rec.TableID)
		if rec.IsNodeTable {
			b[8] = 1
		}
		buf.Write(b[:])
	}
	return buf.Bytes()
}

func unmarshalPayload(rt RecordType, payload []byte) (*Record, error) {
	rec := &Record{Type: rt}
	switch rt {
	case RecordPageUpdateOrInsert:
		if len(payload) < storageStructureIDSize+9 {
			return nil, fmt.Errorf("short PAGE_UPDATE_OR_INSERT payload")
		}
		rec.Structure = unmarshalStorageStructureID(payload[:storageStructureIDSize])
		off := storageStructureIDSize
		rec.PageIdxOriginal = PageID(binary.LittleEndian.Uint32(payload[off:]))
		rec.PageIdxInWAL = PageID(binary.LittleEndian.Uint32(payload[off+4:]))
		rec.IsInsert = payload[off+8] != 0
		rec.PageImage = append([]byte{}, payload[off+9:]...)
	case RecordTableStatistics:
		if len(payload) < 1 {
			return nil, fmt.Errorf("short TABLE_STATISTICS payload")
		}
		rec.IsNodeTable = payload[0] != 0
	case RecordCommit:
		if len(payload) < 8 {
			return nil, fmt.Errorf("short COMMIT payload")
		}
		rec.TxID = TxID(binary.LittleEndian.Uint64(payload))
	case RecordCatalog:
		// no payload
	case RecordNodeTable, RecordRelTable, RecordCopyNode, RecordCopyRel:
		if len(payload) < 8 {
			return nil, fmt.Errorf("short table-id payload")
		}
		rec.TableID = binary.LittleEndian.Uint64(payload)
	case RecordDropTable:
		if len(payload) < 9 {
			return nil, fmt.Errorf("short DROP_TABLE payload")
		}
		rec.TableID = binary.LittleEndian.Uint64(payload[:8])
		rec.IsNodeTable = payload[8] != 0
	default:
		return nil, fmt.Errorf("unknown record type %d", rt)
	}
	return rec, nil
}

func marshalRecord(rec *Record) []byte {
	payload := marshalPayload(rec)
	buf := make([]byte, walRecHdrSize+len(payload))
	buf[0] = byte(rec.Type)
	binary.LittleEndian.PutUint64(buf[1:9], uint64(rec.LSN))
	binary.LittleEndian.PutUint32(buf[9:13], uint32(len(payload)))
	copy(buf[walRecHdrSize:], payload)

	h := crc32.New(crcTable)
	h.Write(buf[:13])
	h.Write([]byte{0, 0, 0, 0})
	h.Write(payload)
	binary.LittleEndian.PutUint32(buf[13:17], h.Sum32())
	return buf
}

func unmarshalRecord(r io.Reader) (*Record, error) {
	var hdr [walRecHdrSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	rt := RecordType(hdr[0])
	lsn := LSN(binary.LittleEndian.Uint64(hdr[1:9]))
	payloadLen := binary.LittleEndian.Uint32(hdr[9:13])
	storedCRC := binary.LittleEndian.Uint32(hdr[13:17])

	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("WAL record payload: %w", err)
		}
	}

	h := crc32.New(crcTable)
	h.Write(hdr[:13])
	h.Write([]byte{0, 0, 0, 0})
	h.Write(payload)
	if h.Sum32() != storedCRC {
		return nil, fmt.Errorf("WAL record CRC mismatch at LSN %d", lsn)
	}

	rec, err := unmarshalPayload(rt, payload)
	if err != nil {
		return nil, err
	}
	rec.LSN = lsn
	return rec, nil
}
