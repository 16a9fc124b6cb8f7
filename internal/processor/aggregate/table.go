package aggregate

import (
	"github.com/rs/zerolog"

	"github.com/graphflowdb/graphflow/internal/common"
	"github.com/graphflowdb/graphflow/internal/processor/factorizedtable"
)

const initialCapacity = 16

// hashSlot is one linear-probing bucket: empty unless occupied, in which
// case it caches the group key's hash next to the owning entry's index so
// probing rarely needs to touch the entries table at all.
type hashSlot struct {
	occupied bool
	hash     uint64
	entry    int32
}

// Table is the AggregateHashTable: group keys and per-function running
// state are appended to a factorized table (one row per group); a
// linear-probing hash index over that table's rows finds the matching
// group for each input row in O(1) amortized.
type Table struct {
	groupKeyWidth int
	funcs         []Func
	funcColStart  []int // first state-word column index per function

	entries *factorizedtable.Table
	ptrs    []factorizedtable.TuplePtr
	groups  [][]int64 // group key per entry, index-aligned with ptrs

	slots []hashSlot
	count int

	// distinct[entry][func] tracks values already counted/summed for a
	// DISTINCT aggregate; kept alongside rather than inside the
	// factorized-table payload since a per-group value set has no fixed
	// serialized width.
	distinct []map[int]map[int64]struct{}

	log zerolog.Logger
}

// SetLogger attaches a structured logger for grow/merge diagnostics.
func (t *Table) SetLogger(log zerolog.Logger) { t.log = log }

// NewTable creates an empty aggregation table over groupKeyWidth int64
// group-by columns and the given aggregate functions.
func NewTable(groupKeyWidth int, funcs []Func) *Table {
	// Every entry is appended as a single flat row (one group per Append
	// call), so columns are flat rather than unflat despite each holding a
	// per-group rather than a per-table-wide value.
	cols := make([]factorizedtable.ColumnSchema, 0, groupKeyWidth+len(funcs))
	for i := 0; i < groupKeyWidth; i++ {
		cols = append(cols, factorizedtable.ColumnSchema{ByteWidth: 8})
	}
	funcColStart := make([]int, len(funcs))
	col := groupKeyWidth
	for i, f := range funcs {
		funcColStart[i] = col
		for w := 0; w < f.stateWords(); w++ {
			cols = append(cols, factorizedtable.ColumnSchema{ByteWidth: 8})
			col++
		}
	}

	return &Table{
		groupKeyWidth: groupKeyWidth,
		funcs:         funcs,
		funcColStart:  funcColStart,
		entries:       factorizedtable.NewTable(factorizedtable.NewSchema(cols)),
		slots:         make([]hashSlot, initialCapacity),
		log:           zerolog.Nop(),
	}
}

// NumGroups returns the number of distinct groups seen.
func (t *Table) NumGroups() int { return len(t.ptrs) }

func hashGroupKey(key []int64) uint64 {
	var h uint64 = 1469598103934665603 // FNV-1a offset basis
	for _, k := range key {
		u := uint64(k)
		for i := 0; i < 8; i++ {
			h ^= (u >> (8 * i)) & 0xFF
			h *= 1099511628211
		}
	}
	return h
}

func groupKeyEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// findOrCreate locates the entry for key, inserting a fresh one (with
// every function initialized) if none exists yet. Returns the entry index.
func (t *Table) findOrCreate(key []int64) (int, error) {
	h := hashGroupKey(key)
	mask := uint64(len(t.slots) - 1)
	idx := h & mask
	for {
		s := &t.slots[idx]
		if !s.occupied {
			entryIdx, err := t.createEntry(key)
			if err != nil {
				return 0, err
			}
			s.occupied = true
			s.hash = h
			s.entry = int32(entryIdx)
			t.count++
			if t.count*2 > len(t.slots) {
				t.grow()
			}
			return entryIdx, nil
		}
		if s.hash == h && groupKeyEqual(t.groups[s.entry], key) {
			return int(s.entry), nil
		}
		idx = (idx + 1) & mask
	}
}

func (t *Table) createEntry(key []int64) (int, error) {
	vectors := make([]factorizedtable.Vector, 0, t.groupKeyWidth+1)
	for _, k := range key {
		vectors = append(vectors, factorizedtable.NewFlatFixed(leInt64Bytes(k), false))
	}
	stateWords := t.totalStateWords()
	zero := make([]int64, stateWords)
	var cursor int
	for _, f := range t.funcs {
		words := zero[cursor : cursor+f.stateWords()]
		f.init(words)
		cursor += f.stateWords()
	}
	for _, w := range zero {
		vectors = append(vectors, factorizedtable.NewFlatFixed(leInt64Bytes(w), false))
	}

	ptrs, err := t.entries.Append(vectors)
	if err != nil {
		return 0, common.WrapStorageErrorf(err, "aggregate: append entry")
	}
	t.ptrs = append(t.ptrs, ptrs[0])
	t.groups = append(t.groups, append([]int64{}, key...))
	t.distinct = append(t.distinct, nil)
	return len(t.ptrs) - 1, nil
}

func (t *Table) totalStateWords() int {
	n := 0
	for _, f := range t.funcs {
		n += f.stateWords()
	}
	return n
}

func (t *Table) grow() {
	old := t.slots
	t.slots = make([]hashSlot, len(old)*2)
	t.log.Debug().Int("old_capacity", len(old)).Int("new_capacity", len(t.slots)).Int("groups", t.count).Msg("aggregate hash table grow")
	mask := uint64(len(t.slots) - 1)
	for _, s := range old {
		if !s.occupied {
			continue
		}
		idx := s.hash & mask
		for t.slots[idx].occupied {
			idx = (idx + 1) & mask
		}
		t.slots[idx] = s
	}
}

// Append folds one input row into the group identified by key: values[i]
// is the input to funcs[i] (ignored for CountStar), nulls[i] marks a null
// input.
func (t *Table) Append(key []int64, values []int64, nulls []bool) error {
	entryIdx, err := t.findOrCreate(key)
	if err != nil {
		return err
	}
	ptr := t.ptrs[entryIdx]

	for fi, f := range t.funcs {
		var value int64
		var isNull bool
		if f.Kind != CountStar {
			value, isNull = values[fi], nulls[fi]
		}
		if f.Distinct {
			if isNull {
				continue
			}
			if t.distinct[entryIdx] == nil {
				t.distinct[entryIdx] = make(map[int]map[int64]struct{})
			}
			seen := t.distinct[entryIdx][fi]
			if seen == nil {
				seen = make(map[int64]struct{})
				t.distinct[entryIdx][fi] = seen
			}
			if _, dup := seen[value]; dup {
				continue
			}
			seen[value] = struct{}{}
		}

		start := t.funcColStart[fi]
		words := t.readState(ptr, start, f.stateWords())
		f.update(words, value, isNull)
		t.writeState(ptr, start, words)
	}
	return nil
}

func (t *Table) readState(ptr factorizedtable.TuplePtr, start, n int) []int64 {
	words := make([]int64, n)
	for i := 0; i < n; i++ {
		words[i] = decodeWords(t.entries.ReadFixedColumn(ptr, start+i), 1)[0]
	}
	return words
}

func (t *Table) writeState(ptr factorizedtable.TuplePtr, start int, words []int64) {
	for i, w := range words {
		buf := make([]byte, 8)
		encodeWords(buf, []int64{w})
		t.entries.WriteFixedColumn(ptr, start+i, buf)
	}
}

// Merge folds other's groups into t, combining matching groups' state with
// each function's Combine and unioning DISTINCT value sets.
func (t *Table) Merge(other *Table) error {
	t.log.Debug().Int("other_groups", other.NumGroups()).Int("groups_before", t.NumGroups()).Msg("aggregate hash table merge")
	for _, entryIdx := range other.entriesInSlotOrder() {
		key := other.groups[entryIdx]
		srcPtr := other.ptrs[entryIdx]

		dstIdx, err := t.findOrCreate(key)
		if err != nil {
			return err
		}
		dstPtr := t.ptrs[dstIdx]

		for fi, f := range t.funcs {
			start := t.funcColStart[fi]
			n := f.stateWords()
			src := other.readState(srcPtr, other.funcColStart[fi], n)
			dst := t.readState(dstPtr, start, n)
			f.combine(dst, src)
			t.writeState(dstPtr, start, dst)
		}
		if seen := other.distinct[entryIdx]; seen != nil {
			if t.distinct[dstIdx] == nil {
				t.distinct[dstIdx] = make(map[int]map[int64]struct{})
			}
			for fi, vals := range seen {
				dstSeen := t.distinct[dstIdx][fi]
				if dstSeen == nil {
					dstSeen = make(map[int64]struct{})
					t.distinct[dstIdx][fi] = dstSeen
				}
				for v := range vals {
					dstSeen[v] = struct{}{}
				}
			}
		}
	}
	return nil
}

// entriesInSlotOrder returns entry indices in hash-slot iteration order
// rather than insertion order, matching finalize_all's documented
// iteration order.
func (t *Table) entriesInSlotOrder() []int {
	order := make([]int, 0, len(t.ptrs))
	for _, s := range t.slots {
		if s.occupied {
			order = append(order, int(s.entry))
		}
	}
	return order
}

// GroupResult is one finalized group: its key and one Result per function,
// in function declaration order.
type GroupResult struct {
	Key     []int64
	Results []Result
}

// FinalizeAll materializes every group's finalized aggregate values,
// iterating in hash-slot order rather than insertion order.
func (t *Table) FinalizeAll() []GroupResult {
	out := make([]GroupResult, 0, len(t.ptrs))
	for _, entryIdx := range t.entriesInSlotOrder() {
		ptr := t.ptrs[entryIdx]
		results := make([]Result, len(t.funcs))
		for fi, f := range t.funcs {
			words := t.readState(ptr, t.funcColStart[fi], f.stateWords())
			results[fi] = f.finalize(words)
		}
		out = append(out, GroupResult{Key: t.groups[entryIdx], Results: results})
	}
	return out
}

func leInt64Bytes(v int64) []byte {
	buf := make([]byte, 8)
	encodeWords(buf, []int64{v})
	return buf
}
