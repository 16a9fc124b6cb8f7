package pager

import (
	"sync"
	"testing"
)

func TestPageState_StartsEvicted(t *testing.T) {
	ps := NewPageState()
	if ps.State() != StateEvicted {
		t.Fatalf("expected new PageState to start EVICTED, got %s", ps.State())
	}
}

func TestPageState_LockUnlockIncrementsVersion(t *testing.T) {
	ps := NewPageState()
	ps.ResetToEvicted()
	observed := ps.StateAndVersion()
	if !ps.TryLock(observed) {
		t.Fatal("expected TryLock to succeed on uncontended EVICTED state")
	}
	// TryLock from EVICTED lands on LOCKED, preserving version; Unlock then
	// increments it back to a settled UNLOCKED state.
	v0 := ps.Version()
	ps.Unlock()
	if ps.State() != StateUnlocked {
		t.Fatalf("expected UNLOCKED after Unlock, got %s", ps.State())
	}
	if ps.Version() != v0+1 {
		t.Fatalf("expected version to increment on unlock: %d -> %d", v0, ps.Version())
	}
}

func TestPageState_TryLockFailsUnderContention(t *testing.T) {
	ps := NewPageState()
	ps.ResetToEvicted()
	observed := ps.StateAndVersion()
	if !ps.TryLock(observed) {
		t.Fatal("first TryLock should succeed")
	}
	if ps.TryLock(observed) {
		t.Fatal("second TryLock with the same observed word should fail")
	}
	if ps.LockContentionCount() == 0 {
		t.Fatal("expected lock contention to be recorded")
	}
}

func TestPageState_MarkAndClearMark(t *testing.T) {
	ps := NewPageState()
	ps.ResetToEvicted()
	// Evicted -> Locked -> Unlocked, to reach a markable state.
	ps.SpinLock(ps.StateAndVersion())
	ps.Unlock()

	observed := ps.StateAndVersion()
	if !ps.TryMark(observed) {
		t.Fatal("expected TryMark to succeed from UNLOCKED")
	}
	if ps.State() != StateMarked {
		t.Fatalf("expected MARKED, got %s", ps.State())
	}
	if !ps.TryClearMark(ps.StateAndVersion()) {
		t.Fatal("expected TryClearMark to succeed from MARKED")
	}
	if ps.State() != StateUnlocked {
		t.Fatalf("expected UNLOCKED after clearing mark, got %s", ps.State())
	}
}

func TestPageState_DirtyRequiresLocked(t *testing.T) {
	ps := NewPageState()
	ps.ResetToEvicted()
	ps.SpinLock(ps.StateAndVersion())
	ps.SetDirty()
	if !ps.IsDirty() {
		t.Fatal("expected dirty bit set")
	}
	ps.ClearDirty()
	if ps.IsDirty() {
		t.Fatal("expected dirty bit cleared")
	}
	ps.Unlock()
}

func TestPageState_DirtySurvivesUnlock(t *testing.T) {
	ps := NewPageState()
	ps.ResetToEvicted()
	ps.SpinLock(ps.StateAndVersion())
	ps.SetDirty()
	ps.Unlock()
	if !ps.IsDirty() {
		t.Fatal("expected dirty bit to survive unlock (it is cleared only by a flush)")
	}
}

// TestPageState_ConcurrentSpinLockIsExclusive hammers SpinLock/Unlock from
// many goroutines and checks the shared counter they increment under the
// lock never tears.
func TestPageState_ConcurrentSpinLockIsExclusive(t *testing.T) {
	ps := NewPageState()
	ps.ResetToEvicted()
	ps.SpinLock(ps.StateAndVersion())
	ps.Unlock()

	const goroutines = 16
	const iterations = 200
	counter := 0

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				ps.SpinLock(ps.StateAndVersion())
				counter++
				ps.Unlock()
			}
		}()
	}
	wg.Wait()

	if counter != goroutines*iterations {
		t.Fatalf("expected exclusive access to yield %d increments, got %d", goroutines*iterations, counter)
	}
}
