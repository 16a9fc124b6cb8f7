// Package pager implements GraphFlow's buffer-managed paged storage layer:
// per-page concurrency state, pin/unpin buffer management with clock-sweep
// eviction, the write-ahead log and its replayer, and the transactional
// DiskArray used by every on-disk fixed-width structure above it.
//
// The storage format follows the teacher's page conventions: a fixed page
// size (default 8 KiB, any power of two between 1 KiB and 64 KiB), a
// CRC32-C checksummed header on every page, and a single append-only WAL
// file shared by all logical files in a Database.
package pager

import (
	"fmt"
	"sync/atomic"

	"github.com/graphflowdb/graphflow/internal/common"
)

// pageWord packs {dirty, state, version} into one 64-bit atomic word so a
// reader can validate "has this page changed since I last looked" with a
// single load, and the evictor can pick victims without first taking a lock.
//
//	bit 63       dirty
//	bits 62-56   state
//	bits 55-0    version
const (
	dirtyMask          uint64 = 0x8000000000000000
	stateMask          uint64 = 0x7F00000000000000
	versionMask        uint64 = 0x00FFFFFFFFFFFFFF
	stateShift                = 56
	maxVersionIncr     uint64 = 1
)

// PageLockState is the concurrency state of a resident page frame.
type PageLockState uint64

const (
	StateUnlocked PageLockState = 0
	StateLocked   PageLockState = 1
	StateMarked   PageLockState = 2
	StateEvicted  PageLockState = 3
)

func (s PageLockState) String() string {
	switch s {
	case StateUnlocked:
		return "UNLOCKED"
	case StateLocked:
		return "LOCKED"
	case StateMarked:
		return "MARKED"
	case StateEvicted:
		return "EVICTED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint64(s))
	}
}

// extractState returns the state bits of a raw stateAndVersion word.
func extractState(word uint64) PageLockState {
	return PageLockState((word & stateMask) >> stateShift)
}

// extractVersion returns the version bits of a raw stateAndVersion word.
func extractVersion(word uint64) uint64 {
	return word & versionMask
}

func withStateSameVersion(word uint64, newState PageLockState) uint64 {
	return (word & (dirtyMask | versionMask)) | (uint64(newState) << stateShift)
}

func withStateIncrementVersion(word uint64, newState PageLockState) uint64 {
	nextVersion := (extractVersion(word) + maxVersionIncr) & versionMask
	return (word & dirtyMask) | nextVersion | (uint64(newState) << stateShift)
}

// PageState is the per-page atomic lock/version/dirty record: the
// primitive the buffer manager builds pin/unpin and eviction on top of.
//
// Invariants:
//   - only the thread that observed UNLOCKED and CAS'd to LOCKED may mutate
//     the page;
//   - a successful Unlock increments the version;
//   - Dirty may be set only while holding LOCKED;
//   - EVICTED implies the frame has no pinned users.
type PageState struct {
	stateAndVersion atomic.Uint64
	// lockContentionCount counts failed TryLock CAS attempts. It is not
	// part of the public contract; tests use it to assert forward
	// progress under contention without depending on timing.
	lockContentionCount atomic.Uint64
}

// NewPageState returns a PageState initialized to EVICTED, mirroring a
// freshly faulted-out frame.
func NewPageState() *PageState {
	ps := &PageState{}
	ps.stateAndVersion.Store(uint64(StateEvicted) << stateShift)
	return ps
}

// StateAndVersion returns the raw word for use as the "observed" value in
// a subsequent TryLock/TryMark/TryClearMark call.
func (ps *PageState) StateAndVersion() uint64 {
	return ps.stateAndVersion.Load()
}

// State returns the current lock state.
func (ps *PageState) State() PageLockState {
	return extractState(ps.stateAndVersion.Load())
}

// Version returns the current version.
func (ps *PageState) Version() uint64 {
	return extractVersion(ps.stateAndVersion.Load())
}

// TryLock attempts to CAS observed -> LOCKED, preserving version.
// Returns whether the CAS succeeded.
func (ps *PageState) TryLock(observed uint64) bool {
	ok := ps.stateAndVersion.CompareAndSwap(observed, withStateSameVersion(observed, StateLocked))
	if !ok {
		ps.lockContentionCount.Add(1)
	}
	return ok
}

// SpinLock repeatedly re-reads and TryLocks until it succeeds.
func (ps *PageState) SpinLock(observed uint64) {
	for {
		if ps.TryLock(observed) {
			return
		}
		observed = ps.stateAndVersion.Load()
	}
}

// Unlock sets state=UNLOCKED and increments version. The caller must hold
// the lock; this is not itself a CAS since only the lock holder may call it.
func (ps *PageState) Unlock() {
	for {
		old := ps.stateAndVersion.Load()
		next := withStateIncrementVersion(old, StateUnlocked)
		if ps.stateAndVersion.CompareAndSwap(old, next) {
			return
		}
	}
}

// TryMark attempts to CAS observed (expected UNLOCKED) -> MARKED; used by
// the buffer manager's clock-sweep evictor to tag candidates.
func (ps *PageState) TryMark(observed uint64) bool {
	return ps.stateAndVersion.CompareAndSwap(observed, withStateSameVersion(observed, StateMarked))
}

// TryClearMark attempts to CAS observed (expected MARKED) -> UNLOCKED,
// giving a page a second chance before eviction.
func (ps *PageState) TryClearMark(observed uint64) bool {
	common.Assert(extractState(observed) == StateMarked, "TryClearMark called on non-MARKED state")
	return ps.stateAndVersion.CompareAndSwap(observed, withStateSameVersion(observed, StateUnlocked))
}

// SetDirty marks the page dirty. Permitted only while holding LOCKED.
func (ps *PageState) SetDirty() {
	common.Assert(ps.State() == StateLocked, "SetDirty called without LOCKED state")
	ps.stateAndVersion.Or(dirtyMask)
}

// ClearDirty clears the dirty bit. Permitted only while holding LOCKED.
func (ps *PageState) ClearDirty() {
	common.Assert(ps.State() == StateLocked, "ClearDirty called without LOCKED state")
	ps.stateAndVersion.And(^dirtyMask)
}

// ClearDirtyWithoutLock clears the dirty bit without requiring LOCKED; for
// single-threaded flush paths (checkpoint) where no concurrent writer can
// be modifying this page's state.
func (ps *PageState) ClearDirtyWithoutLock() {
	ps.stateAndVersion.And(^dirtyMask)
}

// IsDirty reports whether the dirty bit is set.
func (ps *PageState) IsDirty() bool {
	return ps.stateAndVersion.Load()&dirtyMask != 0
}

// ResetToEvicted resets the state to EVICTED with version 0; used for
// freshly faulted-out frames being recycled for a different page.
func (ps *PageState) ResetToEvicted() {
	ps.stateAndVersion.Store(uint64(StateEvicted) << stateShift)
}

// LockContentionCount returns the number of failed TryLock attempts
// observed so far. Test-only visibility into CAS contention.
func (ps *PageState) LockContentionCount() uint64 {
	return ps.lockContentionCount.Load()
}
