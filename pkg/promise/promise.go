// Package promise implements single-assignment deferred values.
//
// A Promise starts pending and settles exactly once, either fulfilled with a value
// or rejected with an error. The first Resolve or Reject wins; later calls are no-ops.
//
// Continuations registered with Then, Catch, Done, Fail, Always or Finally never run
// inside Resolve or Reject. They are queued on the promise's Loop and run there one
// at a time, in registration order, at most once each. Registering a continuation on
// an already settled promise still queues it rather than running it inline.
//
// Go code that simply wants the outcome can block with Await. Await must not be called
// from inside a continuation running on the same Loop as the awaited promise's
// continuations, because that Loop is the one that would settle it.
package promise

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// State is the settlement state of a Promise.
type State int

const (
	StatePending State = iota
	StateFulfilled
	StateRejected
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFulfilled:
		return "fulfilled"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrNilRejection is used when Reject is called with a nil error.
	ErrNilRejection = errors.New("promise rejected with nil error")
	// ErrTypeMismatch is returned when a value is propagated through Then without a
	// continuation and cannot be converted to the derived promise's type.
	ErrTypeMismatch = errors.New("promise value type mismatch")
	// ErrPanic wraps a panic recovered from a continuation.
	ErrPanic = errors.New("promise continuation panicked")
)

// Promise is a deferred value of type T.
type Promise[T any] struct {
	loop *Loop

	mu       sync.Mutex
	state    State
	value    T
	err      error
	handlers []func(T, error)
	done     chan struct{}
}

// New creates a pending promise whose continuations run on the default Loop.
func New[T any]() *Promise[T] {
	return NewOn[T](defaultLoop)
}

// NewOn creates a pending promise whose continuations run on loop.
func NewOn[T any](loop *Loop) *Promise[T] {
	if loop == nil {
		loop = defaultLoop
	}
	return &Promise[T]{
		loop: loop,
		done: make(chan struct{}),
	}
}

// Resolved returns a promise already fulfilled with v.
func Resolved[T any](v T) *Promise[T] {
	p := New[T]()
	p.Resolve(v)
	return p
}

// Rejected returns a promise already rejected with err.
func Rejected[T any](err error) *Promise[T] {
	p := New[T]()
	p.Reject(err)
	return p
}

// Go runs fn on a new goroutine and settles the returned promise with its outcome.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Promise[T] {
	return GoOn(defaultLoop, ctx, fn)
}

// GoOn is Go with continuations running on loop.
func GoOn[T any](loop *Loop, ctx context.Context, fn func(ctx context.Context) (T, error)) *Promise[T] {
	p := NewOn[T](loop)
	go func() {
		v, err := call(func() (T, error) { return fn(ctx) })
		p.settle(v, err)
	}()
	return p
}

// Is reports whether v is a promise of any type.
func Is(v any) bool {
	_, ok := v.(Settler)
	return ok
}

// Loop returns the Loop continuations of p run on.
func (p *Promise[T]) Loop() *Loop {
	return p.loop
}

// Resolve fulfills p with v. It reports whether this call settled p.
func (p *Promise[T]) Resolve(v T) bool {
	return p.settle(v, nil)
}

// Reject rejects p with err. It reports whether this call settled p.
func (p *Promise[T]) Reject(err error) bool {
	if err == nil {
		err = ErrNilRejection
	}
	var zero T
	return p.settle(zero, err)
}

func (p *Promise[T]) settle(v T, err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StatePending {
		return false
	}

	if err != nil {
		p.state = StateRejected
		p.err = err
	} else {
		p.state = StateFulfilled
		p.value = v
	}
	close(p.done)

	// Queue while holding the lock so a handler registered concurrently after
	// settlement cannot overtake one registered before it.
	for _, h := range p.handlers {
		p.enqueue(h, p.value, p.err)
	}
	p.handlers = nil

	return true
}

func (p *Promise[T]) enqueue(h func(T, error), v T, err error) {
	p.loop.Enqueue(func() { h(v, err) })
}

// subscribe registers h to run on the loop once p settles.
func (p *Promise[T]) subscribe(h func(T, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StatePending {
		p.handlers = append(p.handlers, h)
		return
	}
	p.enqueue(h, p.value, p.err)
}

// State returns the current state of p.
func (p *Promise[T]) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Await blocks until p settles or ctx is done.
func (p *Promise[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-p.done:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.err
}

// Wait blocks until p settles or ctx is done and returns the rejection error, if any.
func (p *Promise[T]) Wait(ctx context.Context) error {
	_, err := p.Await(ctx)
	return err
}

// Done registers fn to run when p is fulfilled and returns p.
func (p *Promise[T]) Done(fn func(T)) *Promise[T] {
	p.subscribe(func(v T, err error) {
		if err == nil {
			fn(v)
		}
	})
	return p
}

// Fail registers fn to run when p is rejected and returns p.
func (p *Promise[T]) Fail(fn func(error)) *Promise[T] {
	p.subscribe(func(_ T, err error) {
		if err != nil {
			fn(err)
		}
	})
	return p
}

// Always registers fn to run when p settles either way and returns p.
func (p *Promise[T]) Always(fn func(T, error)) *Promise[T] {
	p.subscribe(fn)
	return p
}

// Finally returns a promise that settles like p after fn has run.
func (p *Promise[T]) Finally(fn func()) *Promise[T] {
	next := NewOn[T](p.loop)
	p.subscribe(func(v T, err error) {
		if _, perr := call(func() (struct{}, error) { fn(); return struct{}{}, nil }); perr != nil {
			next.Reject(perr)
			return
		}
		next.settle(v, err)
	})
	return next
}

// Catch returns a promise fulfilled with p's value, or with the result of fn when p
// is rejected.
func (p *Promise[T]) Catch(fn func(error) (T, error)) *Promise[T] {
	return Then(p, nil, fn)
}

// Then returns a promise settled with the result of the continuation matching p's
// outcome. A nil continuation propagates the value or error unchanged.
func (p *Promise[T]) Then(onFulfilled func(T) (T, error), onRejected func(error) (T, error)) *Promise[T] {
	return Then(p, onFulfilled, onRejected)
}

// Then derives a promise of type U from p.
//
// If onFulfilled is nil the fulfilled value is propagated when it is assignable to U,
// otherwise the derived promise is rejected with ErrTypeMismatch. If onRejected is nil
// the rejection propagates unchanged.
func Then[T, U any](p *Promise[T], onFulfilled func(T) (U, error), onRejected func(error) (U, error)) *Promise[U] {
	next := NewOn[U](p.loop)
	p.subscribe(func(v T, err error) {
		if err != nil {
			if onRejected == nil {
				next.Reject(err)
				return
			}
			next.settle(call(func() (U, error) { return onRejected(err) }))
			return
		}

		if onFulfilled == nil {
			u, cerr := convert[T, U](v)
			next.settle(u, cerr)
			return
		}
		next.settle(call(func() (U, error) { return onFulfilled(v) }))
	})
	return next
}

// ThenPromise is Then for continuations that return another promise. The derived
// promise adopts the outcome of the returned one. A nil returned promise fulfills
// the derived promise with the zero value.
func ThenPromise[T, U any](p *Promise[T], onFulfilled func(T) *Promise[U], onRejected func(error) *Promise[U]) *Promise[U] {
	next := NewOn[U](p.loop)
	adopt := func(fn func() *Promise[U]) {
		inner, err := call(func() (*Promise[U], error) { return fn(), nil })
		if err != nil {
			next.Reject(err)
			return
		}
		if inner == nil {
			var zero U
			next.Resolve(zero)
			return
		}
		inner.subscribe(func(u U, err error) { next.settle(u, err) })
	}

	p.subscribe(func(v T, err error) {
		if err != nil {
			if onRejected == nil {
				next.Reject(err)
				return
			}
			adopt(func() *Promise[U] { return onRejected(err) })
			return
		}

		if onFulfilled == nil {
			u, cerr := convert[T, U](v)
			next.settle(u, cerr)
			return
		}
		adopt(func() *Promise[U] { return onFulfilled(v) })
	})
	return next
}

func convert[T, U any](v T) (U, error) {
	var zero U
	a := any(v)
	if a == nil {
		return zero, nil
	}
	u, ok := a.(U)
	if !ok {
		return zero, fmt.Errorf("%w: %T is not %T", ErrTypeMismatch, v, zero)
	}
	return u, nil
}

func call[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn()
}
