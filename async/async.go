// Package async provides the future primitive used to run deferred validation
// stages and to chain continuations onto them.
package async

import (
	"context"
	"fmt"
)

// Future represents the result of an asynchronous computation.
type Future[T any] struct {
	val  T
	err  error
	done chan struct{}
}

// Await waits for the computation to complete and returns its result. It
// returns ctx.Err() if the context is done first; the computation itself keeps
// running until it finishes.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// IsComplete reports whether the result is available without blocking.
func (f *Future[T]) IsComplete() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Resolved returns a Future that is already complete with v.
func Resolved[T any](v T) *Future[T] {
	f := &Future[T]{val: v, done: make(chan struct{})}
	close(f.done)
	return f
}

// Failed returns a Future that is already complete with err.
func Failed[T any](err error) *Future[T] {
	f := &Future[T]{err: err, done: make(chan struct{})}
	close(f.done)
	return f
}

// Go runs fn on its own goroutine and returns a Future for its result. A panic
// inside fn is recovered and reported as the Future's error.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				var zero T
				f.val, f.err = zero, fmt.Errorf("%w: %v", ErrPanic, r)
			}
		}()

		// Early exit prevents running work for a context that is already canceled.
		select {
		case <-ctx.Done():
			f.err = ctx.Err()
			return
		default:
		}
		f.val, f.err = fn(ctx)
	}()
	return f
}

// Then returns a Future that applies fn to the result of f once it completes.
// An error from f (including a canceled ctx while waiting) skips fn.
func Then[T, U any](ctx context.Context, f *Future[T], fn func(T) (U, error)) *Future[U] {
	return Go(ctx, func(ctx context.Context) (U, error) {
		v, err := f.Await(ctx)
		if err != nil {
			var zero U
			return zero, err
		}
		return fn(v)
	})
}
