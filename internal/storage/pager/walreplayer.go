package pager

import (
	"fmt"

	"github.com/rs/zerolog"
)

// ───────────────────────────────────────────────────────────────────────────
// WAL Replayer
// ───────────────────────────────────────────────────────────────────────────
//
// The WAL is redo-only: a transaction's records carry no BEGIN marker, and
// an aborted transaction simply never gets a COMMIT record appended. Replay
// therefore only needs to find the last COMMIT record in the file and apply
// everything up to and including it, in strict file order — file order and
// LSN order coincide because the WAL is one global, sequentially-appended
// stream shared by every FileHandle.
//
// Replay runs in two situations that share this same algorithm:
//   - ReplayModeCheckpoint: the WAL for a live Database is folded into the
//     base files as part of an ordinary checkpoint.
//   - ReplayModeRecovery: a fresh Database open finds a non-empty WAL left
//     behind by a process that exited (or crashed) before checkpointing.
//
// Applying a PAGE_UPDATE_OR_INSERT record is an idempotent overwrite of a
// full page image, so replaying the same record twice (e.g. a recovery
// that is itself interrupted and retried) is safe.

// ReplayMode distinguishes why a replay is happening; both modes run the
// identical apply loop.
type ReplayMode int

const (
	ReplayModeCheckpoint ReplayMode = iota
	ReplayModeRecovery
)

func (m ReplayMode) String() string {
	if m == ReplayModeRecovery {
		return "recovery"
	}
	return "checkpoint"
}

// FileResolver maps a StorageStructureID to the open FileHandle responsible
// for it. The catalog/storage-manager layer above pager supplies this;
// pager itself has no notion of tables or properties.
type FileResolver interface {
	ResolveFileHandle(id StorageStructureID) (*FileHandle, error)
}

// DDLHandler receives the non-page-image WAL records — schema and bulk-load
// operations — so the layer that owns the catalog can apply them. A replay
// with a nil DDLHandler silently skips these records, which is sufficient
// for a replay that only cares about page-level durability (e.g. tests of
// the pager subsystem in isolation).
type DDLHandler interface {
	OnNodeTableCreated(tableID uint64)
	OnRelTableCreated(tableID uint64)
	OnCopyNode(tableID uint64)
	OnCopyRel(tableID uint64)
	OnDropTable(tableID uint64, isNodeTable bool)
	OnTableStatistics(isNodeTable bool)
	OnCatalogUpdate()
}

// WALReplayer applies a WAL file's committed prefix to the underlying files.
type WALReplayer struct {
	resolver FileResolver
	ddl      DDLHandler
	mode     ReplayMode
	log      zerolog.Logger
}

// NewWALReplayer constructs a replayer. ddl may be nil.
func NewWALReplayer(resolver FileResolver, ddl DDLHandler, mode ReplayMode) *WALReplayer {
	return &WALReplayer{resolver: resolver, ddl: ddl, mode: mode, log: zerolog.Nop()}
}

// SetLogger attaches a structured logger for replay progress.
func (r *WALReplayer) SetLogger(log zerolog.Logger) { r.log = log }

// ReplayResult summarizes a completed replay.
type ReplayResult struct {
	PagesApplied int
	LastLSN      LSN
	Committed    bool // whether any COMMIT record was found at all
}

// Replay reads walPath, locates the last COMMIT record, and applies every
// record up to and including it.
func (r *WALReplayer) Replay(walPath string) (ReplayResult, error) {
	r.log.Debug().Str("mode", r.mode.String()).Str("wal", walPath).Msg("replay starting")
	records, err := ReadAllRecords(walPath)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("%s replay: read WAL: %w", r.mode, err)
	}

	lastCommitIdx := -1
	for i, rec := range records {
		if rec.Type == RecordCommit {
			lastCommitIdx = i
		}
	}
	if lastCommitIdx == -1 {
		r.log.Debug().Str("mode", r.mode.String()).Msg("replay found no committed prefix")
		return ReplayResult{}, nil
	}

	var result ReplayResult
	result.Committed = true

	for i := 0; i <= lastCommitIdx; i++ {
		rec := records[i]
		switch rec.Type {
		case RecordPageUpdateOrInsert:
			fh, err := r.resolver.ResolveFileHandle(rec.Structure)
			if err != nil {
				return result, fmt.Errorf("%s replay: resolve %s: %w", r.mode, rec.Structure, err)
			}
			if err := fh.flushPhysical(rec.PageIdxOriginal, rec.PageImage); err != nil {
				return result, fmt.Errorf("%s replay: apply page %d of %s: %w",
					r.mode, rec.PageIdxOriginal, rec.Structure, err)
			}
			result.PagesApplied++
		case RecordCommit:
			result.LastLSN = rec.LSN
		case RecordTableStatistics:
			if r.ddl != nil {
				r.ddl.OnTableStatistics(rec.IsNodeTable)
			}
		case RecordCatalog:
			if r.ddl != nil {
				r.ddl.OnCatalogUpdate()
			}
		case RecordNodeTable:
			if r.ddl != nil {
				r.ddl.OnNodeTableCreated(rec.TableID)
			}
		case RecordRelTable:
			if r.ddl != nil {
				r.ddl.OnRelTableCreated(rec.TableID)
			}
		case RecordCopyNode:
			if r.ddl != nil {
				r.ddl.OnCopyNode(rec.TableID)
			}
		case RecordCopyRel:
			if r.ddl != nil {
				r.ddl.OnCopyRel(rec.TableID)
			}
		case RecordDropTable:
			if r.ddl != nil {
				r.ddl.OnDropTable(rec.TableID, rec.IsNodeTable)
			}
		}
	}

	r.log.Debug().Str("mode", r.mode.String()).Int("pages_applied", result.PagesApplied).
		Uint64("last_lsn", uint64(result.LastLSN)).Msg("replay complete")
	return result, nil
}
