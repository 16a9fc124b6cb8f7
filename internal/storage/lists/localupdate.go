package lists

import (
	"fmt"
	"sync"
)

// ───────────────────────────────────────────────────────────────────────────
// LocalUpdateStore
// ───────────────────────────────────────────────────────────────────────────
//
// While a write transaction is open, newly inserted or appended list
// elements are buffered here rather than written straight into the shared
// CSR pages — letting concurrent readers keep seeing the last-checkpointed
// Metadata until commit. A ListsUpdateIterator later drains the buffer,
// merging each dirty node's local elements onto its persisted list.
//
// Dirty node offsets are also indexed by chunk, mirroring the persisted
// layout's chunk-sharing so the pending nodes of one chunk can be listed
// together; the merge still writes each node's list separately.
type LocalUpdateStore struct {
	mu           sync.Mutex
	elementWidth int
	chunkSize    int

	buffers     map[uint64][][]byte  // node offset -> pending elements, in append order
	chunkToNode map[uint64]map[uint64]struct{}
}

// NewLocalUpdateStore creates an empty store for elements of the given
// fixed width, using chunkSize to group node offsets the same way Metadata
// does.
func NewLocalUpdateStore(elementWidth, chunkSize int) *LocalUpdateStore {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &LocalUpdateStore{
		elementWidth: elementWidth,
		chunkSize:    chunkSize,
		buffers:      make(map[uint64][][]byte),
		chunkToNode:  make(map[uint64]map[uint64]struct{}),
	}
}

func (s *LocalUpdateStore) chunkOf(nodeOffset uint64) uint64 {
	return nodeOffset / uint64(s.chunkSize)
}

// Append stages elem (exactly elementWidth bytes) as the next local element
// of nodeOffset's list.
func (s *LocalUpdateStore) Append(nodeOffset uint64, elem []byte) error {
	if len(elem) != s.elementWidth {
		return fmt.Errorf("localupdate: element width %d != %d", len(elem), s.elementWidth)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := append([]byte{}, elem...)
	s.buffers[nodeOffset] = append(s.buffers[nodeOffset], cp)

	chunk := s.chunkOf(nodeOffset)
	nodes, ok := s.chunkToNode[chunk]
	if !ok {
		nodes = make(map[uint64]struct{})
		s.chunkToNode[chunk] = nodes
	}
	nodes[nodeOffset] = struct{}{}
	return nil
}

// Get returns nodeOffset's staged elements, or nil if none are pending.
func (s *LocalUpdateStore) Get(nodeOffset uint64) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffers[nodeOffset]
}

// DirtyChunks returns every chunk id with at least one pending node update.
func (s *LocalUpdateStore) DirtyChunks() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, 0, len(s.chunkToNode))
	for chunk := range s.chunkToNode {
		out = append(out, chunk)
	}
	return out
}

// DirtyNodeOffsets returns the node offsets with pending updates in chunk.
func (s *LocalUpdateStore) DirtyNodeOffsets(chunk uint64) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodes := s.chunkToNode[chunk]
	out := make([]uint64, 0, len(nodes))
	for n := range nodes {
		out = append(out, n)
	}
	return out
}

// Clear discards every staged update, for use after a successful merge or a
// rolled-back transaction.
func (s *LocalUpdateStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffers = make(map[uint64][][]byte)
	s.chunkToNode = make(map[uint64]map[uint64]struct{})
}
