package promise

import (
	"sync"
)

// Loop runs queued callbacks one at a time, in the order they were queued.
//
// A Loop owns at most one goroutine, started when work is queued on an idle
// loop and stopped as soon as the queue drains, so an idle Loop costs nothing.
// Callbacks on the same Loop never run concurrently with each other.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	running bool
	idle    *sync.Cond
}

// NewLoop creates an idle Loop.
func NewLoop() *Loop {
	l := &Loop{}
	l.idle = sync.NewCond(&l.mu)
	return l
}

var defaultLoop = NewLoop()

// DefaultLoop returns the process-wide Loop used by New, Resolved, Rejected and Go.
func DefaultLoop() *Loop {
	return defaultLoop
}

// Enqueue schedules fn to run after every callback already queued on l.
func (l *Loop) Enqueue(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()

	go l.drain()
}

// Drain blocks until the queue is empty and no callback is running.
// It must not be called from inside a callback running on l.
func (l *Loop) Drain() {
	l.mu.Lock()
	for l.running {
		l.idle.Wait()
	}
	l.mu.Unlock()
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.running = false
			l.idle.Broadcast()
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
	}
}
