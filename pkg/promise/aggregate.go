package promise

import (
	"context"
	"sync"
)

// Settler is implemented by every *Promise[T] regardless of T.
// It lets heterogeneous promises be combined by When.
type Settler interface {
	State() State
	Wait(ctx context.Context) error
	Loop() *Loop

	subscribeAny(h func(any, error))
}

func (p *Promise[T]) subscribeAny(h func(any, error)) {
	p.subscribe(func(v T, err error) { h(v, err) })
}

// All returns a promise fulfilled with the values of ps in order once every one of
// them is fulfilled. It is rejected with the first rejection observed; rejections or
// fulfilments arriving after that do not affect it.
func All[T any](ps ...*Promise[T]) *Promise[[]T] {
	next := NewOn[[]T](firstLoop(ps))
	if len(ps) == 0 {
		next.Resolve([]T{})
		return next
	}

	var (
		mu        sync.Mutex
		values    = make([]T, len(ps))
		remaining = len(ps)
	)
	for i, p := range ps {
		p.subscribe(func(v T, err error) {
			if err != nil {
				next.Reject(err)
				return
			}
			mu.Lock()
			values[i] = v
			remaining--
			last := remaining == 0
			mu.Unlock()
			if last {
				next.Resolve(values)
			}
		})
	}
	return next
}

// When is All for promises of different types. The values are returned as []any
// in argument order; use Spread to receive them as separate arguments.
func When(ps ...Settler) *Promise[[]any] {
	var loop *Loop
	if len(ps) > 0 {
		loop = ps[0].Loop()
	}
	next := NewOn[[]any](loop)
	if len(ps) == 0 {
		next.Resolve([]any{})
		return next
	}

	var (
		mu        sync.Mutex
		values    = make([]any, len(ps))
		remaining = len(ps)
	)
	for i, p := range ps {
		p.subscribeAny(func(v any, err error) {
			if err != nil {
				next.Reject(err)
				return
			}
			mu.Lock()
			values[i] = v
			remaining--
			last := remaining == 0
			mu.Unlock()
			if last {
				next.Resolve(values)
			}
		})
	}
	return next
}

// Spread calls fn with the values of p as separate arguments once p is fulfilled.
func Spread(p *Promise[[]any], fn func(args ...any) error) *Promise[struct{}] {
	return Then(p, func(values []any) (struct{}, error) {
		return struct{}{}, fn(values...)
	}, nil)
}

// Race returns a promise settled like whichever of ps settles first.
// With no inputs the returned promise stays pending forever.
func Race[T any](ps ...*Promise[T]) *Promise[T] {
	next := NewOn[T](firstLoop(ps))
	for _, p := range ps {
		p.subscribe(func(v T, err error) { next.settle(v, err) })
	}
	return next
}

func firstLoop[T any](ps []*Promise[T]) *Loop {
	if len(ps) == 0 {
		return defaultLoop
	}
	return ps[0].loop
}
