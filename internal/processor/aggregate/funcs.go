// Package aggregate implements the hash-based GROUP BY aggregation table:
// a linear-probing hash index over group keys, with aggregate function
// state for each group kept in a factorized table so entries can be
// scanned, merged across worker-local partial tables, and finalized in
// bulk.
package aggregate

import (
	"encoding/binary"
	"math"
)

// Kind identifies a supported aggregate function.
type Kind int

const (
	CountStar Kind = iota
	Count
	Sum
	Avg
	Min
	Max
)

// Func describes one aggregate function over a (nullable) int64 input
// column, with SQL DISTINCT as a per-function flag rather than a separate
// function variant.
type Func struct {
	Kind Kind
	// SourceColumn indexes the build-side row's value columns; ignored
	// for CountStar.
	SourceColumn int
	Distinct     bool
}

// stateWords returns how many 8-byte words this function's running state
// occupies in an entry's payload.
func (f Func) stateWords() int {
	switch f.Kind {
	case CountStar, Count, Sum, Min, Max:
		return 1
	case Avg:
		return 2 // {sum, count}
	default:
		return 0
	}
}

// minMaxSentinel marks a MIN/MAX state word that has not observed a value
// yet (distinguishing "no rows" from a legitimate stored value).
const minMaxSentinel = math.MinInt64

func (f Func) init(words []int64) {
	switch f.Kind {
	case CountStar, Count, Sum:
		words[0] = 0
	case Avg:
		words[0], words[1] = 0, 0
	case Min:
		words[0] = math.MaxInt64
	case Max:
		words[0] = minMaxSentinel
	}
}

// update folds one input row into words. isNull is ignored for CountStar.
func (f Func) update(words []int64, value int64, isNull bool) {
	switch f.Kind {
	case CountStar:
		words[0]++
	case Count:
		if !isNull {
			words[0]++
		}
	case Sum:
		if !isNull {
			words[0] += value
		}
	case Avg:
		if !isNull {
			words[0] += value
			words[1]++
		}
	case Min:
		if !isNull && value < words[0] {
			words[0] = value
		}
	case Max:
		if !isNull && value > words[0] {
			words[0] = value
		}
	}
}

// combine merges src's state into dst, used when folding one partial
// AggregateHashTable's entry into another during Merge.
func (f Func) combine(dst, src []int64) {
	switch f.Kind {
	case CountStar, Count, Sum:
		dst[0] += src[0]
	case Avg:
		dst[0] += src[0]
		dst[1] += src[1]
	case Min:
		if src[0] < dst[0] {
			dst[0] = src[0]
		}
	case Max:
		if src[0] > dst[0] {
			dst[0] = src[0]
		}
	}
}

// Result is a finalized aggregate value: an int64 for CountStar/Count/
// Sum/Min/Max, a float64 for Avg.
type Result struct {
	Int64   int64
	Float64 float64
	IsFloat bool
}

func (f Func) finalize(words []int64) Result {
	if f.Kind == Avg {
		if words[1] == 0 {
			return Result{IsFloat: true}
		}
		return Result{Float64: float64(words[0]) / float64(words[1]), IsFloat: true}
	}
	if f.Kind == Min && words[0] == math.MaxInt64 {
		return Result{Int64: 0}
	}
	if f.Kind == Max && words[0] == minMaxSentinel {
		return Result{Int64: 0}
	}
	return Result{Int64: words[0]}
}

func encodeWords(dst []byte, words []int64) {
	for i, w := range words {
		binary.LittleEndian.PutUint64(dst[i*8:i*8+8], uint64(w))
	}
}

func decodeWords(src []byte, n int) []int64 {
	words := make([]int64, n)
	for i := range words {
		words[i] = int64(binary.LittleEndian.Uint64(src[i*8 : i*8+8]))
	}
	return words
}
