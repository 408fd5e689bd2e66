// Package concurrency runs deferred operations with a cap on how many are in flight.
package concurrency

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Task is a deferred operation. It receives the caller's context unchanged:
// a failing sibling never cancels a task that has already started.
type Task[T any] func(ctx context.Context) (T, error)

// Run executes tasks with at most limit of them running at once and returns
// their results in input order. The first error observed is returned; tasks
// already started run to completion, tasks not yet started are skipped.
func Run[T any](ctx context.Context, tasks []Task[T], limit int) ([]T, error) {
	if limit < 1 {
		return nil, fmt.Errorf("concurrency limit must be >= 1, got %d", limit)
	}

	results := make([]T, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var skipped atomic.Bool
	for i, task := range tasks {
		if gctx.Err() != nil {
			skipped.Store(true)
			break
		}
		g.Go(func() error {
			// g.Go may have waited for a slot while a sibling failed.
			if gctx.Err() != nil {
				skipped.Store(true)
				return nil
			}
			r, err := task(ctx)
			if err != nil {
				return fmt.Errorf("task %d: %w", i, err)
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if skipped.Load() {
		return nil, ctx.Err()
	}
	return results, nil
}
