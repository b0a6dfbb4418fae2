package solver

import (
	"context"
	"errors"
	"time"
)

var ErrCanceled = errors.New("submitted problem was canceled")

// AsyncResult is a Future whose answer is produced by a background
// goroutine.
type AsyncResult struct {
	done   chan struct{}
	cancel context.CancelFunc
	result SampleSet
	err    error
}

// Go runs fn in the background and returns a Future for its answer. The
// context handed to fn is canceled by Cancel.
func Go(ctx context.Context, fn func(ctx context.Context) (SampleSet, error)) *AsyncResult {
	ctx, cancel := context.WithCancel(ctx)
	a := &AsyncResult{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(a.done)
		defer cancel()
		a.result, a.err = fn(ctx)
		if a.err == nil && ctx.Err() != nil {
			a.err = ErrCanceled
		}
	}()
	return a
}

func (a *AsyncResult) AwaitCompletion(ctx context.Context, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-a.done:
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Done reports whether the answer is in, without waiting.
func (a *AsyncResult) Done() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

func (a *AsyncResult) Result() (SampleSet, error) {
	select {
	case <-a.done:
		return a.result, a.err
	default:
		return SampleSet{}, errors.New("result requested before completion")
	}
}

func (a *AsyncResult) Cancel() {
	a.cancel()
}
