package pager

import "testing"

func TestNewInstanceID_ReturnsDistinctNonZeroIDs(t *testing.T) {
	a := NewInstanceID()
	b := NewInstanceID()
	var zero [16]byte
	if a == zero {
		t.Fatalf("NewInstanceID returned the zero value")
	}
	if a == b {
		t.Fatalf("two calls to NewInstanceID returned the same id")
	}
}
