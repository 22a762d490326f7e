package jobs

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// BatchConfig controls ProcessBatches.
type BatchConfig[T any] struct {
	// Size is the number of items run concurrently per batch.
	Size int

	// Checkpoint is called before each batch. A non-nil error ends
	// processing and is returned as is.
	Checkpoint func(ctx context.Context) error

	// OnItemError converts a failed or panicking item into an item-level
	// outcome. A non-nil return is fatal: the rest of the batch still runs,
	// then processing ends with the first such error and no progress update.
	// Without OnItemError every item error is fatal.
	OnItemError func(ctx context.Context, item T, err error) error

	// OnProgress is called after each batch with the number of items
	// processed so far and the computed percentage. A non-nil error ends
	// processing.
	OnProgress func(ctx context.Context, processed, percent int) error
}

// ProcessBatches runs fn over items in fixed-size batches. Items within a
// batch run concurrently and the whole batch finishes before the next one
// starts. It returns the number of items processed.
func ProcessBatches[T any](ctx context.Context, items []T, cfg BatchConfig[T], fn func(ctx context.Context, item T) error) (int, error) {
	size := cfg.Size
	if size <= 0 {
		size = 1
	}
	total := len(items)

	processed := 0
	for start := 0; start < total; start += size {
		if cfg.Checkpoint != nil {
			if err := cfg.Checkpoint(ctx); err != nil {
				return processed, err
			}
		}

		end := min(start+size, total)
		var g errgroup.Group
		for _, item := range items[start:end] {
			g.Go(func() error {
				err := runItem(ctx, item, fn)
				if err == nil {
					return nil
				}
				if cfg.OnItemError == nil {
					return err
				}
				return cfg.OnItemError(ctx, item, err)
			})
		}
		processed = end
		if err := g.Wait(); err != nil {
			return processed, err
		}

		if cfg.OnProgress != nil {
			if err := cfg.OnProgress(ctx, processed, Percent(processed, total)); err != nil {
				return processed, err
			}
		}
	}
	return processed, nil
}

// runItem calls fn and turns a panic into an error.
func runItem[T any](ctx context.Context, item T, fn func(ctx context.Context, item T) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("jobs: item panicked: %v", r)
		}
	}()
	return fn(ctx, item)
}

// storeError marks a record store failure raised while processing an item.
// It ends the workflow instead of being recorded against the item.
type storeError struct {
	err error
}

func (e *storeError) Error() string { return e.err.Error() }

func (e *storeError) Unwrap() error { return e.err }

// storeFailure wraps err and tags it as a store failure.
func storeFailure(err error, format string, args ...any) error {
	return &storeError{err: eris.Wrapf(err, format, args...)}
}

// isStoreFailure reports whether err came from the record store.
func isStoreFailure(err error) bool {
	var se *storeError
	return errors.As(err, &se)
}

// Percent returns floor(min(done, total) / total * 100). An empty total
// counts as complete.
func Percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return min(done, total) * 100 / total
}
