package executor

import (
	"context"
	"fmt"
)

// Task is a supervised computation running on its own goroutine. Unlike a
// bare goroutine it hands the caller a handle: the outcome is observed
// through Wait, and cancellation reaches the computation through its
// context, so a timeout can be layered on without restructuring the
// pipeline.
type Task[T any] struct {
	done   chan struct{}
	cancel context.CancelFunc
	result T
	err    error
}

// Go starts fn on a dedicated goroutine. The computation receives a context
// derived from ctx that is cancelled when the task is cancelled or the
// waiter gives up.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Task[T] {
	runCtx, cancel := context.WithCancel(ctx)
	t := &Task[T]{done: make(chan struct{}), cancel: cancel}

	go func() {
		defer close(t.done)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				t.err = fmt.Errorf("panic in isolated execution: %v", r)
			}
		}()
		t.result, t.err = fn(runCtx)
	}()

	return t
}

// Wait blocks until the computation finishes or ctx is cancelled.
// Cancellation of the waiter also cancels the computation's context, so the
// engine stops promptly instead of running on unobserved; the goroutine
// itself is left to drain.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		t.cancel()
		var zero T
		return zero, fmt.Errorf("interrupted while waiting for job: %w", ctx.Err())
	}
}

// Cancel stops the computation. Safe to call more than once.
func (t *Task[T]) Cancel() {
	t.cancel()
}

// Done is closed when the computation has finished.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}
