// Package morsel provides a fixed-size worker pool that parallel pipeline
// operators drive their per-morsel work through, instead of each operator
// hand-rolling its own goroutine fan-out. The order-by merge is its one
// caller (through ForEach); Map has no caller in this repository.
//
// Adapted from the teacher's internal/storage/concurrency.go
// (WorkerPool/ParallelIterator): the same fixed-worker-count,
// channel-fed, WaitGroup-drained shape, generified over the item type
// instead of carrying everything as interface{}, and trimmed to the two
// operations the execution engine actually needs — ForEach for
// embarrassingly-parallel morsel ranges (spec.md §5 "Scan/Extend/Project"),
// Map for worker-local partial results that still need collecting in order
// (spec.md §5 "Aggregate: workers each build a thread-local hash table").
package morsel

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/graphflowdb/graphflow/internal/common"
)

// Pool is a fixed-size goroutine pool. It holds no state about the work
// itself; ForEach/Map create their own channels per call, matching the
// teacher's ParallelIterator rather than a long-lived queue.
type Pool struct {
	workers int
}

// NewPool creates a pool with the given worker count. A non-positive count
// is replaced by runtime.NumCPU(), the same default the teacher's
// NewParallelIterator uses.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{workers: workers}
}

// Workers returns the pool's worker count.
func (p *Pool) Workers() int { return p.workers }

// ForEach applies fn to every item using p.Workers() goroutines, stopping
// at the first error any worker returns (other in-flight workers still run
// to completion for their current item but no further items are started).
func ForEach[T any](p *Pool, items []T, fn func(T) error) error {
	if len(items) == 0 {
		return nil
	}
	workers := common.Min(p.workers, len(items))

	workCh := make(chan T, len(items))
	for _, it := range items {
		workCh <- it
	}
	close(workCh)

	errCh := make(chan error, workers)
	var failed atomic.Bool
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for it := range workCh {
				if failed.Load() {
					return
				}
				if err := fn(it); err != nil {
					failed.Store(true)
					errCh <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

// Map applies fn to every item using p.Workers() goroutines and returns the
// results in input order. The first error encountered is returned; partial
// results are discarded.
func Map[T any, R any](p *Pool, items []T, fn func(T) (R, error)) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}
	workers := common.Min(p.workers, len(items))

	type indexed struct {
		idx  int
		item T
	}
	type outcome struct {
		idx   int
		value R
		err   error
	}

	workCh := make(chan indexed, len(items))
	for i, it := range items {
		workCh <- indexed{idx: i, item: it}
	}
	close(workCh)

	outCh := make(chan outcome, len(items))
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for w := range workCh {
				v, err := fn(w.item)
				outCh <- outcome{idx: w.idx, value: v, err: err}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(outCh)
	}()

	results := make([]R, len(items))
	var firstErr error
	for o := range outCh {
		if o.err != nil && firstErr == nil {
			firstErr = o.err
			continue
		}
		results[o.idx] = o.value
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}
