package orderby

import "github.com/graphflowdb/graphflow/internal/processor/morsel"

// defaultMergeMorselSize is the number of tuples from the second input
// block each parallel merge morsel covers.
const defaultMergeMorselSize = 10000

// Dispatcher is the KeyBlockMergeTaskDispatcher: a FIFO queue of sorted key
// blocks, repeatedly merging the two oldest into one until a single block
// remains in total sorted order.
type Dispatcher struct {
	queue      []*KeyBlock
	layout     *Layout
	resolve    Resolver
	pool       *morsel.Pool
	morselSize int
}

// NewDispatcher creates a Dispatcher. pool drives the parallel merge
// morsels; resolve breaks string-column ties exactly as TieBreak does.
func NewDispatcher(layout *Layout, resolve Resolver, pool *morsel.Pool) *Dispatcher {
	return &Dispatcher{layout: layout, resolve: resolve, pool: pool, morselSize: defaultMergeMorselSize}
}

// Enqueue adds a sorted block to the merge queue.
func (d *Dispatcher) Enqueue(block *KeyBlock) {
	d.queue = append(d.queue, block)
}

// Run merges the queue down to a single block in total sorted order.
func (d *Dispatcher) Run() (*KeyBlock, error) {
	for len(d.queue) > 1 {
		a := d.queue[0]
		b := d.queue[1]
		d.queue = d.queue[2:]

		merged, err := d.mergeTwo(a, b)
		if err != nil {
			return nil, err
		}
		d.queue = append(d.queue, merged)
	}
	if len(d.queue) == 0 {
		return NewKeyBlock(d.layout, 0), nil
	}
	return d.queue[0], nil
}

type mergeMorsel struct {
	aLo, aHi int
	bLo, bHi int
	outLo    int
}

func (d *Dispatcher) mergeTwo(a, b *KeyBlock) (*KeyBlock, error) {
	width := d.layout.KeyWidth
	merged := NewKeyBlock(d.layout, a.Count+b.Count)
	merged.Count = a.Count + b.Count

	morsels := d.planMorsels(a, b)
	err := morsel.ForEach(d.pool, morsels, func(m mergeMorsel) error {
		d.mergeRange(a, b, merged, m, width)
		return nil
	})
	return merged, err
}

// planMorsels partitions b into chunks of morselSize tuples and, for each
// boundary, binary-searches a for the matching split point (the
// merge-path technique), so each morsel's A/B sub-ranges can be merged
// independently into a disjoint slice of the output.
func (d *Dispatcher) planMorsels(a, b *KeyBlock) []mergeMorsel {
	var morsels []mergeMorsel
	aPrev, bPrev := 0, 0
	for bPrev < b.Count || aPrev < a.Count {
		bEnd := bPrev + d.morselSize
		if bEnd > b.Count {
			bEnd = b.Count
		}
		var aEnd int
		if bEnd == bPrev {
			aEnd = a.Count
		} else {
			v := b.KeyAt(bEnd - 1)
			aEnd = d.countLE(a, v)
		}
		morsels = append(morsels, mergeMorsel{
			aLo: aPrev, aHi: aEnd,
			bLo: bPrev, bHi: bEnd,
			outLo: aPrev + bPrev,
		})
		aPrev, bPrev = aEnd, bEnd
		if bEnd == b.Count && aEnd == a.Count {
			break
		}
	}
	return morsels
}

// countLE returns the number of a's keys that sort at or before v.
func (d *Dispatcher) countLE(a *KeyBlock, v []byte) int {
	lo, hi := 0, a.Count
	for lo < hi {
		mid := (lo + hi) / 2
		if Less(d.layout, v, a.KeyAt(mid), d.resolve) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

func (d *Dispatcher) mergeRange(a, b, merged *KeyBlock, m mergeMorsel, width int) {
	i, j := m.aLo, m.bLo
	out := m.outLo
	for i < m.aHi && j < m.bHi {
		if Less(d.layout, b.KeyAt(j), a.KeyAt(i), d.resolve) {
			copy(merged.KeyAt(out), b.KeyAt(j))
			j++
		} else {
			copy(merged.KeyAt(out), a.KeyAt(i))
			i++
		}
		out++
	}
	for i < m.aHi {
		copy(merged.KeyAt(out), a.KeyAt(i))
		i++
		out++
	}
	for j < m.bHi {
		copy(merged.KeyAt(out), b.KeyAt(j))
		j++
		out++
	}
}
