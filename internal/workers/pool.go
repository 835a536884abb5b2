// Package workers runs independent tasks on a bounded errgroup pool with a
// per-task deadline.
package workers

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Pool bounds concurrency and per-task time.
type Pool struct {
	Threads int
	// Timeout is the deadline of one task; zero means none. A task past its
	// deadline is abandoned: its result is discarded when it finishes.
	Timeout time.Duration
}

// Result is the outcome of one task.
type Result[T any] struct {
	Value    T
	Err      error
	TimedOut bool
	Elapsed  time.Duration
}

// Run calls task for every index in [0, n) and returns the results in index
// order. Task errors are reported per result, never as Run's error; Run
// fails only when ctx is cancelled. Abandoned tasks are waited for before
// Run returns, so no goroutine outlives the call.
func Run[T any](ctx context.Context, p Pool, n int, task func(ctx context.Context, i int) (T, error)) ([]Result[T], error) {
	results := make([]Result[T], n)
	var abandoned sync.WaitGroup
	defer abandoned.Wait()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(max(1, p.Threads))
	for i := 0; i < n; i++ {
		if egCtx.Err() != nil {
			break
		}
		eg.Go(func() error {
			results[i] = runOne(egCtx, p.Timeout, &abandoned, func(ctx context.Context) (T, error) {
				return task(ctx, i)
			})
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

func runOne[T any](ctx context.Context, timeout time.Duration, abandoned *sync.WaitGroup, fn func(context.Context) (T, error)) Result[T] {
	start := time.Now()
	if timeout <= 0 {
		v, err := fn(ctx)
		return Result[T]{Value: v, Err: err, Elapsed: time.Since(start)}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan Result[T], 1)
	abandoned.Add(1)
	go func() {
		defer abandoned.Done()
		v, err := fn(ctx)
		done <- Result[T]{Value: v, Err: err, Elapsed: time.Since(start)}
	}()

	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		return Result[T]{
			Err:      ctx.Err(),
			TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
			Elapsed:  time.Since(start),
		}
	}
}
