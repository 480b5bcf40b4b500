// Package reactive provides explicit observer/subject primitives. Derived
// values declare the sources they read at construction so invalidation never
// depends on implicit tracking.
package reactive

import (
	"sort"
	"sync"
)

// Source is anything that can announce a change.
type Source interface {
	Subscribe(fn func()) (unsubscribe func())
}

// Subject is a list of change listeners.
type Subject struct {
	mu   sync.Mutex
	next int
	subs map[int]func()
}

// Subscribe registers fn and returns a function that removes it.
func (s *Subject) Subscribe(fn func()) func() {
	s.mu.Lock()
	if s.subs == nil {
		s.subs = make(map[int]func())
	}
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Notify calls every listener in subscription order. Listeners run outside
// the lock and may subscribe or unsubscribe.
func (s *Subject) Notify() {
	s.mu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Len returns the number of listeners.
func (s *Subject) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Value is a mutable cell that notifies on Set.
type Value[T any] struct {
	Subject
	mu sync.RWMutex
	v  T
}

// NewValue returns a cell holding v.
func NewValue[T any](v T) *Value[T] {
	return &Value[T]{v: v}
}

// Get returns the current value.
func (c *Value[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v
}

// Set stores v and notifies listeners.
func (c *Value[T]) Set(v T) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
	c.Notify()
}

// Computed caches the result of a pure function of its declared sources.
// It recomputes lazily on the first Get after any source changes.
type Computed[T any] struct {
	subject Subject

	mu        sync.Mutex
	compute   func() T
	value     T
	dirty     bool
	gen       uint64
	computing int
	unsubs    []func()
}

// NewComputed builds a computed value over deps.
func NewComputed[T any](compute func() T, deps ...Source) *Computed[T] {
	c := &Computed[T]{compute: compute, dirty: true}
	for _, d := range deps {
		c.unsubs = append(c.unsubs, d.Subscribe(c.invalidate))
	}
	return c
}

// DependOn adds a source after construction. Used by two-phase wiring.
func (c *Computed[T]) DependOn(src Source) {
	unsub := src.Subscribe(c.invalidate)
	c.mu.Lock()
	c.unsubs = append(c.unsubs, unsub)
	c.mu.Unlock()
	c.invalidate()
}

// Get returns the cached value, recomputing it if a source changed.
func (c *Computed[T]) Get() T {
	c.mu.Lock()
	if !c.dirty {
		v := c.value
		c.mu.Unlock()
		return v
	}
	gen := c.gen
	c.computing++
	c.mu.Unlock()

	v := c.compute()

	c.mu.Lock()
	c.computing--
	if c.gen == gen {
		c.value = v
		c.dirty = false
	}
	c.mu.Unlock()
	return v
}

// Subscribe registers a listener fired when the value becomes stale.
func (c *Computed[T]) Subscribe(fn func()) func() {
	return c.subject.Subscribe(fn)
}

// Close detaches from every source.
func (c *Computed[T]) Close() {
	c.mu.Lock()
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
}

// invalidate only propagates on the clean to dirty edge, which is what
// keeps mutually dependent values from notifying each other forever.
func (c *Computed[T]) invalidate() {
	c.mu.Lock()
	c.gen++
	propagate := !c.dirty || c.computing > 0
	c.dirty = true
	c.mu.Unlock()
	if propagate {
		c.subject.Notify()
	}
}

var (
	_ Source = (*Subject)(nil)
	_ Source = (*Value[int])(nil)
	_ Source = (*Computed[int])(nil)
)
