// Package future implements a single-assignment result that many goroutines
// can wait on.
//
// A Future is settled exactly once, either with a value or with an error.
// Every waiter observes the same outcome, which is what makes request
// coalescing possible: callers that arrive while a fetch is outstanding are
// handed the fetch's Future instead of issuing a second one.
package future

import (
	"context"
	"sync"
)

// Future is the eventual result of an operation.
type Future[T any] struct {
	done chan struct{}
	once sync.Once

	val T
	err error
}

// New returns an unsettled Future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a Future already settled with v.
func Resolved[T any](v T) *Future[T] {
	f := New[T]()
	f.Resolve(v)
	return f
}

// Failed returns a Future already settled with err.
func Failed[T any](err error) *Future[T] {
	f := New[T]()
	f.Reject(err)
	return f
}

// Resolve settles f with v. Later calls to Resolve or Reject are ignored.
func (f *Future[T]) Resolve(v T) {
	f.once.Do(func() {
		f.val = v
		close(f.done)
	})
}

// Reject settles f with err. Later calls to Resolve or Reject are ignored.
func (f *Future[T]) Reject(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Settle settles f with whichever of v and err applies.
func (f *Future[T]) Settle(v T, err error) {
	if err != nil {
		f.Reject(err)
		return
	}
	f.Resolve(v)
}

// Done is closed once f is settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether f has a result.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Await blocks until f is settled or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then returns a Future settled with fn applied to the value of f. Errors of
// f propagate without calling fn.
func Then[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	out := New[U]()
	go func() {
		<-f.done
		if f.err != nil {
			out.Reject(f.err)
			return
		}
		out.Settle(fn(f.val))
	}()
	return out
}

// Chain is Then for continuations that themselves produce a Future.
func Chain[T, U any](f *Future[T], fn func(T) *Future[U]) *Future[U] {
	out := New[U]()
	go func() {
		<-f.done
		if f.err != nil {
			out.Reject(f.err)
			return
		}
		next := fn(f.val)
		<-next.done
		out.Settle(next.val, next.err)
	}()
	return out
}

// Catch returns a Future that replaces an error of f with the value fn
// produces for it.
func Catch[T any](f *Future[T], fn func(error) T) *Future[T] {
	out := New[T]()
	go func() {
		<-f.done
		if f.err != nil {
			out.Resolve(fn(f.err))
			return
		}
		out.Resolve(f.val)
	}()
	return out
}

// All waits for every future and resolves with their values in order. The
// first error (in slice order) rejects the result, but only after all inputs
// have settled.
func All[T any](fs []*Future[T]) *Future[[]T] {
	out := New[[]T]()
	go func() {
		vals := make([]T, len(fs))
		var firstErr error
		for i, f := range fs {
			<-f.done
			if f.err != nil && firstErr == nil {
				firstErr = f.err
			}
			vals[i] = f.val
		}
		out.Settle(vals, firstErr)
	}()
	return out
}
