package query

import "sync"

// Map memoizes values by parameter so repeated lookups return the same
// instance.
type Map[K comparable, V any] struct {
	mu     sync.Mutex
	create func(K) V
	items  map[K]V
}

// NewMap returns a Map that builds missing entries with create.
func NewMap[K comparable, V any](create func(K) V) *Map[K, V] {
	return &Map[K, V]{create: create, items: make(map[K]V)}
}

// Get returns the value for k, creating it on first use.
func (m *Map[K, V]) Get(k K) V {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.items[k]; ok {
		return v
	}
	v := m.create(k)
	m.items[k] = v
	return v
}

// Peek returns the value for k without creating it.
func (m *Map[K, V]) Peek(k K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[k]
	return v, ok
}

// Len returns the number of memoized values.
func (m *Map[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Range calls fn for every value until fn returns false.
func (m *Map[K, V]) Range(fn func(K, V) bool) {
	m.mu.Lock()
	items := make(map[K]V, len(m.items))
	for k, v := range m.items {
		items[k] = v
	}
	m.mu.Unlock()
	for k, v := range items {
		if !fn(k, v) {
			return
		}
	}
}
