package sdk

import (
	"context"
	"fmt"
	"sync"
)

type (
	// Future represents the result of an asynchronous computation.
	Future[T any] interface {
		// Get blocks until the future is ready or ctx is done. When ctx ends
		// first the zero value and ctx.Err() are returned and the computation
		// keeps running; callers that share state with it must wait on Done
		// before touching that state again.
		// Example:
		//  st, err := f.Get(ctx)
		//  if err != nil {
		//      return err
		//  }
		Get(ctx context.Context) (T, error)

		// Done is closed once the computation has returned.
		Done() <-chan struct{}

		// When true Get is guaranteed to not block
		IsReady() bool
	}

	// ActivityFunc is a unit of work executed behind a Future.
	ActivityFunc[T any] func(ctx context.Context) (T, error)
)

type future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

// ExecuteActivity runs fn on its own goroutine and returns a Future for its
// result. A panic inside fn is converted into an error.
func ExecuteActivity[T any](ctx context.Context, fn ActivityFunc[T]) Future[T] {
	f := &future[T]{done: make(chan struct{})}
	go func() {
		var (
			value T
			err   error
		)
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("activity panicked: %v", r)
			}
			f.settle(value, err)
		}()
		value, err = fn(ctx)
	}()
	return f
}

// Ready returns an already settled Future.
func Ready[T any](value T, err error) Future[T] {
	f := &future[T]{done: make(chan struct{})}
	f.settle(value, err)
	return f
}

func (f *future[T]) settle(value T, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

func (f *future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *future[T]) Done() <-chan struct{} {
	return f.done
}

func (f *future[T]) IsReady() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
