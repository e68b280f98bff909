package host

import "context"

// Future is a single-assignment, single-receiver result cell, grounded
// on the temporal.temporalFuture/Receiver split the goa-ai runtime uses
// to bridge callback-based SDKs into blocking workflow code. A Signal
// fans a value in from outside a scope; a Future hands a value out to
// whichever single goroutine is awaiting it.
type Future[T any] struct {
	ch chan futureResult[T]
}

type futureResult[T any] struct {
	val T
	err error
}

// NewFuture allocates an unresolved Future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{ch: make(chan futureResult[T], 1)}
}

// Resolve completes the future successfully. Only the first call (of
// Resolve or Reject) has any effect.
func (f *Future[T]) Resolve(val T) {
	select {
	case f.ch <- futureResult[T]{val: val}:
	default:
	}
}

// Reject completes the future with an error. Only the first call (of
// Resolve or Reject) has any effect.
func (f *Future[T]) Reject(err error) {
	select {
	case f.ch <- futureResult[T]{err: err}:
	default:
	}
}

// Await blocks until the future is resolved, rejected, or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case r := <-f.ch:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Resolver performs description as an effect whose result is whatever
// fut is eventually resolved or rejected with, letting a workflow wait
// on an external callback (a webhook handler, a completion queue) the
// same way it waits on any other effect.
func Resolver[T any](c *Ctx, description string, fut *Future[T]) (T, error) {
	v, err := c.Do(description, func(goCtx context.Context) (any, error) {
		return fut.Await(goCtx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, _ := v.(T)
	return typed, nil
}
