package messaging

import "context"

// Future is a single-assignment container for the result of an asynchronous
// operation. Operations that fail after the future has been handed out
// resolve it with an error rather than returning one synchronously.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// resolve must be called exactly once.
func (f *Future[T]) resolve(val T, err error) {
	f.val = val
	f.err = err
	close(f.done)
}

// resolvedFuture returns a future that is already resolved.
func resolvedFuture[T any](val T, err error) *Future[T] {
	f := newFuture[T]()
	f.resolve(val, err)
	return f
}

// goFuture runs fn in its own goroutine and resolves the returned future
// with fn's result.
func goFuture[T any](fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	go func() {
		f.resolve(fn())
	}()
	return f
}

// Get blocks until the future resolves or ctx is done, whichever comes
// first. A ctx expiry does not cancel the underlying operation.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel that is closed once the future has resolved.
func (f *Future[T]) Done() <-chan struct{} { return f.done }
