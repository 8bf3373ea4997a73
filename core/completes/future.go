package completes

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrUnexpectedOutcome = errors.New("unexpected outcome type")

// Completes receives an outcome.
type Completes interface {
	With(outcome any)
}

// Future is a Completes that can be awaited. Only the first outcome counts.
type Future struct {
	mu        sync.Mutex
	done      chan struct{}
	completed bool
	outcome   any
	callbacks []func(outcome any)
}

func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) With(outcome any) {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return
	}
	f.completed = true
	f.outcome = outcome
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(outcome)
	}
}

// AndThen registers fn to run with the outcome. When already completed fn
// runs immediately on the calling goroutine.
func (f *Future) AndThen(fn func(outcome any)) *Future {
	f.mu.Lock()
	if f.completed {
		outcome := f.outcome
		f.mu.Unlock()
		fn(outcome)
		return f
	}
	f.callbacks = append(f.callbacks, fn)
	f.mu.Unlock()
	return f
}

func (f *Future) Done() <-chan struct{} { return f.done }

func (f *Future) IsCompleted() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Outcome returns the outcome and whether the future has completed.
func (f *Future) Outcome() (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outcome, f.completed
}

// Await blocks until the future completes or ctx is done. An outcome that
// is an error is returned as the error.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.done:
	}
	outcome, _ := f.Outcome()
	if err, ok := outcome.(error); ok {
		return nil, err
	}
	return outcome, nil
}

// AwaitAs awaits f and asserts the outcome to T.
func AwaitAs[T any](ctx context.Context, f *Future) (T, error) {
	var zero T
	outcome, err := f.Await(ctx)
	if err != nil {
		return zero, err
	}
	v, ok := outcome.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %T", ErrUnexpectedOutcome, outcome)
	}
	return v, nil
}

var _ Completes = (*Future)(nil)
