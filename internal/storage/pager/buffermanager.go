package pager

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

// ───────────────────────────────────────────────────────────────────────────
// BufferManager
// ───────────────────────────────────────────────────────────────────────────
//
// A single BufferManager serves every FileHandle a Database has open. Page
// frames are a fixed-size pool; residency is tracked per page via the
// FileHandle's PageState/frameIdx arrays so that a frame lookup never needs
// a global map keyed by (file, page).
//
// Eviction is a two-handed clock sweep: the mark hand sweeps ahead, giving
// an UNLOCKED frame it passes a second chance by flipping it to MARKED; the
// evict hand trails behind and reclaims any frame it finds already MARKED,
// flushing it first if dirty. A frame touched (pinned) between the two
// hands passing it survives one extra revolution, approximating LRU with
// O(1) bookkeeping and no global lock held across I/O.

type bufferFrame struct {
	mu     sync.Mutex // serializes eviction/fault-in bookkeeping for this frame slot
	buf    []byte
	fh     *FileHandle
	pageID PageID
	valid  bool
}

// BufferManager owns the page-frame pool shared by every open FileHandle.
type BufferManager struct {
	pageSize int
	frames   []*bufferFrame

	handMu    sync.Mutex
	markHand  int
	evictHand int

	log zerolog.Logger
}

// SetLogger attaches a structured logger for eviction and checkpoint
// diagnostics. The zero value logs nothing (zerolog.Logger's default is a
// no-op writer), so this is optional.
func (bm *BufferManager) SetLogger(log zerolog.Logger) { bm.log = log }

// NewBufferManager allocates numFrames page-sized frames.
func NewBufferManager(pageSize, numFrames int) *BufferManager {
	if numFrames < 2 {
		numFrames = 2
	}
	bm := &BufferManager{pageSize: pageSize, frames: make([]*bufferFrame, numFrames), log: zerolog.Nop()}
	// The mark hand starts half a revolution ahead of the evict hand.
	bm.markHand = numFrames / 2
	for i := range bm.frames {
		bm.frames[i] = &bufferFrame{buf: make([]byte, pageSize)}
	}
	return bm
}

// NumFrames returns the size of the frame pool.
func (bm *BufferManager) NumFrames() int { return len(bm.frames) }

// PageSize returns the fixed page size every frame in this pool holds.
func (bm *BufferManager) PageSize() int { return bm.pageSize }

// Pin loads pid into a resident frame (if not already resident) and
// acquires the page's exclusive lock, returning the frame's backing buffer.
// The caller must call Unpin when done. The returned slice is only valid
// while pinned.
func (bm *BufferManager) Pin(fh *FileHandle, pid PageID) ([]byte, error) {
	ps := fh.pageState(pid)

	for {
		observed := ps.StateAndVersion()
		switch extractState(observed) {
		case StateLocked:
			runtime.Gosched()
			continue
		case StateUnlocked, StateMarked:
			if ps.TryLock(observed) {
				fh.mu.Lock()
				fi := fh.frameIdx[pid]
				fh.mu.Unlock()
				if fi < 0 {
					// Someone evicted it between our state read and lock —
					// fall through to the EVICTED fault-in path below.
					ps.Unlock()
					continue
				}
				return bm.frames[fi].buf, nil
			}
		case StateEvicted:
			if ps.TryLock(observed) {
				buf, err := bm.faultIn(fh, pid)
				if err != nil {
					ps.Unlock()
					return nil, err
				}
				return buf, nil
			}
		}
	}
}

// faultIn finds a victim frame, loads pid's content into it, and records
// the new residency. The caller must already hold pid's PageState locked.
func (bm *BufferManager) faultIn(fh *FileHandle, pid PageID) ([]byte, error) {
	frame, frameIdx, err := bm.claimFrame()
	if err != nil {
		return nil, err
	}

	content, err := fh.readPhysical(pid)
	if err != nil {
		frame.mu.Unlock()
		return nil, err
	}

	frame.fh = fh
	frame.pageID = pid
	frame.valid = true
	copy(frame.buf, content)
	frame.mu.Unlock()

	fh.mu.Lock()
	fh.frameIdx[pid] = int32(frameIdx)
	fh.mu.Unlock()

	return frame.buf, nil
}

// claimFrame reclaims a free or evictable frame via the two-handed clock
// sweep, returning it locked.
func (bm *BufferManager) claimFrame() (*bufferFrame, int, error) {
	n := len(bm.frames)
	for attempts := 0; attempts < n*4+16; attempts++ {
		bm.handMu.Lock()
		idx := bm.evictHand
		bm.evictHand = (bm.evictHand + 1) % n
		// Both hands advance one frame per attempt, so the mark hand keeps
		// the half-revolution lead it starts with (see NewBufferManager):
		// a frame it marks is reclaimed only if it is still unpinned when
		// the evict hand reaches it.
		markIdx := bm.markHand
		bm.markHand = (bm.markHand + 1) % n
		bm.handMu.Unlock()

		if f := bm.tryMarkOrEvict(markIdx, idx); f != nil {
			return f, idx, nil
		}
	}
	return nil, 0, fmt.Errorf("buffer manager: no evictable frame found after exhaustive sweep")
}

// tryMarkOrEvict advances the mark hand at markIdx (second-chance marking)
// and attempts to evict the frame at evictIdx. It returns the evicted frame
// locked, or nil if evictIdx was not reclaimable this pass.
func (bm *BufferManager) tryMarkOrEvict(markIdx, evictIdx int) *bufferFrame {
	mf := bm.frames[markIdx]
	mf.mu.Lock()
	if mf.valid {
		ps := mf.fh.pageState(mf.pageID)
		observed := ps.StateAndVersion()
		if extractState(observed) == StateUnlocked {
			ps.TryMark(observed)
		}
	}
	mf.mu.Unlock()

	ef := bm.frames[evictIdx]
	ef.mu.Lock()
	if !ef.valid {
		return ef // free frame, never used
	}
	ps := ef.fh.pageState(ef.pageID)
	observed := ps.StateAndVersion()
	switch extractState(observed) {
	case StateUnlocked:
		// Not marked yet — give it one more sweep before reclaiming.
		ef.mu.Unlock()
		return nil
	case StateMarked:
		if !ps.TryLock(observed) {
			ef.mu.Unlock()
			return nil
		}
		if err := bm.evictFrame(ef); err != nil {
			ps.Unlock()
			ef.mu.Unlock()
			return nil
		}
		return ef
	default:
		ef.mu.Unlock()
		return nil
	}
}

// evictFrame flushes ef if dirty and detaches it from its current owner.
// The caller holds ef.mu and the page's PageState locked (StateLocked).
func (bm *BufferManager) evictFrame(ef *bufferFrame) error {
	ps := ef.fh.pageState(ef.pageID)
	if ps.IsDirty() {
		if err := ef.fh.flushPhysical(ef.pageID, ef.buf); err != nil {
			return err
		}
		ps.ClearDirty()
		bm.log.Debug().Str("file", ef.fh.Path()).Uint32("page", uint32(ef.pageID)).Msg("evicted dirty frame, flushed to disk")
	}
	ef.fh.mu.Lock()
	ef.fh.frameIdx[ef.pageID] = -1
	ef.fh.mu.Unlock()
	ps.ResetToEvicted()
	ef.valid = false
	ef.fh = nil
	return nil
}

// Unpin releases the exclusive lock taken by Pin, without marking the page
// dirty.
func (bm *BufferManager) Unpin(fh *FileHandle, pid PageID) {
	fh.pageState(pid).Unlock()
}

// SetDirtyAndUnpin marks pid dirty, optionally logs its new image to the
// FileHandle's WAL, and releases the lock. isInsert is forwarded to the WAL
// record so replay can distinguish new pages from updates.
func (bm *BufferManager) SetDirtyAndUnpin(fh *FileHandle, pid PageID, isInsert bool) error {
	ps := fh.pageState(pid)
	ps.SetDirty()
	fh.mu.Lock()
	fi := fh.frameIdx[pid]
	fh.mu.Unlock()
	if fi >= 0 {
		if _, err := fh.logPageUpdate(pid, bm.frames[fi].buf, isInsert); err != nil {
			ps.Unlock()
			return err
		}
	}
	ps.Unlock()
	return nil
}

// FlushAllDirtyPages writes every dirty resident page belonging to fh to
// disk. Used by checkpoint.
func (bm *BufferManager) FlushAllDirtyPages(fh *FileHandle) error {
	fh.hintSequential()
	for _, f := range bm.frames {
		f.mu.Lock()
		if !f.valid || f.fh != fh {
			f.mu.Unlock()
			continue
		}
		ps := fh.pageState(f.pageID)
		if ps.IsDirty() {
			if err := fh.flushPhysical(f.pageID, f.buf); err != nil {
				f.mu.Unlock()
				return err
			}
			ps.ClearDirtyWithoutLock()
		}
		f.mu.Unlock()
	}
	bm.log.Debug().Str("file", fh.Path()).Msg("checkpoint flushed all dirty frames")
	return fh.Sync()
}

// RemoveFilePagesFromFrames evicts every frame currently backing a page of
// fh without flushing them, discarding their content. Used when a table is
// dropped and its file handle is about to be deleted.
func (bm *BufferManager) RemoveFilePagesFromFrames(fh *FileHandle) {
	for _, f := range bm.frames {
		f.mu.Lock()
		if f.valid && f.fh == fh {
			ps := fh.pageState(f.pageID)
			ps.ResetToEvicted()
			f.valid = false
			f.fh = nil
		}
		f.mu.Unlock()
	}
}
