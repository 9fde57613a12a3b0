// Package pool runs a batch of independent tasks under a concurrency ceiling.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Task processes one item. index is the item's position in the input.
type Task[T, R any] func(ctx context.Context, item T, index int) (R, error)

// Run executes task for every item with at most limit in flight and returns
// the results in input order. A failing item does not stop the others: its
// slot holds the zero value and its error is joined into the returned error.
// Once ctx is done, workers stop claiming new items.
func Run[T, R any](ctx context.Context, items []T, limit int, task Task[T, R]) ([]R, error) {
	if len(items) == 0 {
		return []R{}, nil
	}
	if limit < 1 {
		limit = 1
	}
	limit = min(limit, len(items))

	results := make([]R, len(items))
	errs := make([]error, len(items))
	var cursor atomic.Int64

	// Workers never return an error, so the group never cancels siblings.
	var g errgroup.Group
	for range limit {
		g.Go(func() error {
			for {
				i := int(cursor.Add(1) - 1)
				if i >= len(items) {
					return nil
				}
				if err := ctx.Err(); err != nil {
					errs[i] = err
					continue
				}
				results[i], errs[i] = runOne(ctx, task, items[i], i)
			}
		})
	}
	_ = g.Wait()

	var failed []error
	for i, err := range errs {
		if err != nil {
			failed = append(failed, fmt.Errorf("item %d: %w", i, err))
		}
	}
	return results, errors.Join(failed...)
}

func runOne[T, R any](ctx context.Context, task Task[T, R], item T, index int) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task(ctx, item, index)
}
