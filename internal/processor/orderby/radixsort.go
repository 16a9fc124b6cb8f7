package orderby

import "bytes"

// RadixSort performs an LSD (least-significant-byte-first) counting sort
// over block's comparable prefix. A byte position whose value is identical
// across every key is skipped entirely — the common case for short,
// low-cardinality columns such as a boolean or small group key.
func RadixSort(block *KeyBlock) {
	n := block.Count
	if n < 2 {
		return
	}
	width := block.Layout.KeyWidth
	prefixWidth := block.Layout.PrefixWidth

	src := block.Data
	dst := make([]byte, len(src))
	count := make([]int, 256)
	usingTemp := false

	for bytePos := prefixWidth - 1; bytePos >= 0; bytePos-- {
		for i := range count {
			count[i] = 0
		}
		for i := 0; i < n; i++ {
			count[src[i*width+bytePos]]++
		}
		if count[src[bytePos]] == n {
			continue // every key shares this byte; skip the pass
		}

		sum := 0
		for v := 0; v < 256; v++ {
			c := count[v]
			count[v] = sum
			sum += c
		}
		for i := 0; i < n; i++ {
			b := src[i*width+bytePos]
			pos := count[b]
			count[b]++
			copy(dst[pos*width:pos*width+width], src[i*width:i*width+width])
		}
		src, dst = dst, src
		usingTemp = !usingTemp
	}

	if usingTemp {
		copy(block.Data, src)
	}
}

// TieBreak re-orders runs of keys whose encoded prefixes are exactly equal,
// using resolve to compare the real values of any string sort column. Runs
// are typically tiny (truncated-prefix collisions), so a stable insertion
// sort is used rather than a full comparison sort.
func TieBreak(block *KeyBlock, resolve Resolver) {
	if !hasStringColumn(block.Layout) {
		return
	}
	n := block.Count
	width := block.Layout.KeyWidth
	prefixWidth := block.Layout.PrefixWidth

	i := 0
	for i < n {
		j := i + 1
		for j < n && bytes.Equal(block.KeyAt(i)[:prefixWidth], block.KeyAt(j)[:prefixWidth]) {
			j++
		}
		if j-i > 1 {
			insertionSortRun(block, resolve, i, j, width)
		}
		i = j
	}
}

func insertionSortRun(block *KeyBlock, resolve Resolver, lo, hi, width int) {
	tmp := make([]byte, width)
	for i := lo + 1; i < hi; i++ {
		copy(tmp, block.KeyAt(i))
		j := i - 1
		for j >= lo && Less(block.Layout, tmp, block.KeyAt(j), resolve) {
			copy(block.KeyAt(j+1), block.KeyAt(j))
			j--
		}
		copy(block.KeyAt(j+1), tmp)
	}
}

// Sort runs RadixSort followed by TieBreak, producing a fully ordered
// block per layout's column order.
func Sort(block *KeyBlock, resolve Resolver) {
	RadixSort(block)
	TieBreak(block, resolve)
}
