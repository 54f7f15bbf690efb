// Worker pool for the parallel preimage search. Partitions [0, PowLimit)
// across the configured number of goroutines with golang.org/x/sync/
// errgroup: launch N workers, stop the rest the moment one finds an
// answer, and let the group propagate the first worker error.
package miner

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/minermesh/minermesh/internal/config"
	"github.com/minermesh/minermesh/internal/powhash"
)

// searchResult is the only state workers share: a single "found" flag
// and a single "solution" value, written at most once (first writer
// wins), read by every goroutine after.
type searchResult struct {
	found    int32 // 0 = not yet, 1 = a worker found it
	solution int64
}

func (r *searchResult) claim(i int64) bool {
	if !atomic.CompareAndSwapInt32(&r.found, 0, 1) {
		return false
	}
	atomic.StoreInt64(&r.solution, i)
	return true
}

func (r *searchResult) isFound() bool { return atomic.LoadInt32(&r.found) == 1 }

// search partitions [0, PowLimit) into exactly threads contiguous,
// non-overlapping ranges, the last absorbing any remainder, and returns
// the first preimage of target any worker finds. ctx cancellation
// (VOTE_NOW arriving, or process shutdown) stops the search early with
// found=false.
func search(ctx context.Context, target int64, threads int) (solution int64, found bool) {
	var result searchResult
	result.solution = -1

	g, ctx := errgroup.WithContext(ctx)
	span := int64(config.PowLimit) / int64(threads)

	for worker := 0; worker < threads; worker++ {
		worker := worker
		start := int64(worker) * span
		end := start + span
		if worker == threads-1 {
			end = config.PowLimit
		}
		g.Go(func() error {
			return searchRange(ctx, start, end, target, &result)
		})
	}
	_ = g.Wait()

	if result.isFound() {
		return atomic.LoadInt64(&result.solution), true
	}
	return -1, false
}

func searchRange(ctx context.Context, start, end, target int64, result *searchResult) error {
	for i := start; i < end; i++ {
		// Recheck cancellation and the shared found-flag on every
		// candidate so a worker never outlives the round it serves.
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if result.isFound() {
			return nil
		}
		if powhash.Hash(i) == target {
			result.claim(i)
			return nil
		}
	}
	return nil
}
