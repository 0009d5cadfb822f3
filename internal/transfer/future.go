package transfer

import (
	"context"
	"sync"
)

// Future holds the result of an asynchronous operation. It resolves exactly
// once, with either a value or an error; later resolutions are ignored.
type Future[T any] struct {
	done   chan struct{}
	once   sync.Once
	cancel context.CancelFunc
	val    T
	err    error
}

// NewFuture returns an unresolved Future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{}), cancel: func() {}}
}

// Go runs fn in a new goroutine and returns a Future for its result. The
// context passed to fn is cancelled by Future.Cancel or once fn returns.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	ctx, cancel := context.WithCancel(ctx)

	f := NewFuture[T]()
	f.cancel = cancel

	go func() {
		defer cancel()

		v, err := fn(ctx)
		f.Resolve(v, err)
	}()

	return f
}

// Resolve records the result. It reports whether this call resolved the
// Future; false means it had already been resolved.
func (f *Future[T]) Resolve(v T, err error) bool {
	resolved := false

	f.once.Do(func() {
		f.val, f.err = v, err
		resolved = true
		close(f.done)
	})

	return resolved
}

// Done is closed when the Future resolves.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the Future resolves or ctx ends. A ctx error does not
// resolve the Future.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Cancel asks the running operation to stop. The operation still resolves
// the Future, usually with a context error.
func (f *Future[T]) Cancel() {
	f.cancel()
}
