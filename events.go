package leanstore

import (
	"strings"
	"sync"
)

// Event names fired by objects. Attribute changes also fire "change:<key>".
const (
	EventChange  = "change"
	EventSave    = "save"
	EventFetch   = "fetch"
	EventDestroy = "destroy"
	EventError   = "error"
)

// ChangeEvent returns the name of the event fired when key changes.
func ChangeEvent(key string) string { return EventChange + ":" + key }

// Listener receives an event. For change events args holds the new value and
// for error events the error.
type Listener func(o *Object, args ...any)

type listener struct {
	id      uint64
	fn      Listener
	removed bool
}

// events is an observer list per event name. Listeners fire in registration order.
type events struct {
	mu     sync.Mutex
	nextID uint64
	byName map[string][]*listener
}

func (e *events) on(names string, fn Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.byName == nil {
		e.byName = make(map[string][]*listener)
	}
	var added []*listener
	for _, name := range strings.Fields(names) {
		e.nextID++
		l := &listener{id: e.nextID, fn: fn}
		e.byName[name] = append(e.byName[name], l)
		added = append(added, l)
	}
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for _, l := range added {
			e.removeLocked(l)
		}
	}
}

func (e *events) removeLocked(target *listener) {
	for name, ls := range e.byName {
		for i, l := range ls {
			if l == target {
				l.removed = true
				e.byName[name] = append(ls[:i:i], ls[i+1:]...)
				return
			}
		}
	}
}

// off removes every listener of the named events, or of all events when names is empty.
func (e *events) off(names string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if names == "" {
		for _, ls := range e.byName {
			for _, l := range ls {
				l.removed = true
			}
		}
		e.byName = nil
		return
	}
	for _, name := range strings.Fields(names) {
		for _, l := range e.byName[name] {
			l.removed = true
		}
		delete(e.byName, name)
	}
}

// trigger calls the listeners of name registered at call time. A listener
// removed while the event is firing is not called afterwards.
func (e *events) trigger(o *Object, name string, args ...any) {
	e.mu.Lock()
	snapshot := append([]*listener(nil), e.byName[name]...)
	e.mu.Unlock()

	for _, l := range snapshot {
		e.mu.Lock()
		removed := l.removed
		e.mu.Unlock()
		if !removed {
			l.fn(o, args...)
		}
	}
}

// On registers fn for the space separated event names and returns a function
// removing it.
func (o *Object) On(names string, fn Listener) (off func()) {
	return o.events.on(names, fn)
}

// Off removes every listener of the space separated event names, or all
// listeners when names is empty.
func (o *Object) Off(names string) {
	o.events.off(names)
}

// Trigger fires the space separated event names.
func (o *Object) Trigger(names string, args ...any) {
	for _, name := range strings.Fields(names) {
		o.events.trigger(o, name, args...)
	}
}
