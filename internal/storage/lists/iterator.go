package lists

import "github.com/rs/zerolog"

// ───────────────────────────────────────────────────────────────────────────
// ListsUpdateIterator
// ───────────────────────────────────────────────────────────────────────────
//
// Merges a LocalUpdateStore's staged per-node elements onto persisted
// Metadata at commit time. For every dirty node offset it reads the list's
// current persisted contents, appends the staged elements, and writes the
// combined list back out; Metadata.WriteList promotes small lists past
// MaxSmallListLength to a large list's private chain automatically, so
// promotion here is deferred until a commit actually needs it rather than
// happening eagerly on every Append.
type ListsUpdateIterator struct {
	store *LocalUpdateStore
	meta  *Metadata
	log   zerolog.Logger
}

// NewListsUpdateIterator builds an iterator over store's pending updates,
// to be merged onto meta.
func NewListsUpdateIterator(store *LocalUpdateStore, meta *Metadata) *ListsUpdateIterator {
	return &ListsUpdateIterator{store: store, meta: meta, log: zerolog.Nop()}
}

// SetLogger attaches a structured logger for merge diagnostics.
func (it *ListsUpdateIterator) SetLogger(log zerolog.Logger) { it.log = log }

// Merge applies every staged update in store onto meta. Callers are
// responsible for bracketing this with meta.BeginWriteTransaction() and
// meta.Checkpoint()/meta.Rollback(), and for clearing store once the
// transaction outcome is known.
func (it *ListsUpdateIterator) Merge() error {
	merged := 0
	for _, chunk := range it.store.DirtyChunks() {
		for _, nodeOffset := range it.store.DirtyNodeOffsets(chunk) {
			staged := it.store.Get(nodeOffset)
			if len(staged) == 0 {
				continue
			}
			existing, err := it.meta.ReadList(nodeOffset)
			if err != nil {
				return err
			}
			combined := make([][]byte, 0, len(existing)+len(staged))
			combined = append(combined, existing...)
			combined = append(combined, staged...)
			if err := it.meta.WriteList(nodeOffset, combined); err != nil {
				return err
			}
			merged++
		}
	}
	it.log.Debug().Int("nodes_merged", merged).Msg("lists update merge complete")
	return nil
}
