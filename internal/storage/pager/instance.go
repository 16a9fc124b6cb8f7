package pager

import "github.com/google/uuid"

// NewInstanceID returns a fresh random id, stamped into a Superblock and
// its WAL's header when a database is created, so a later WAL replay can
// tell whether the log it's reading actually belongs to this data file.
func NewInstanceID() [16]byte {
	var id [16]byte
	u := uuid.New()
	copy(id[:], u[:])
	return id
}
