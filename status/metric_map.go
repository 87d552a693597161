package status

import (
	"sort"
	"sync"
)

// MetricMap is a named set of metrics of type T
// Registration takes the mutex once; callers keep the returned pointer and update it lock-free
type MetricMap[T any] struct {
	mu    sync.RWMutex
	items map[string]*T
}

// NewMetricMap creates an empty MetricMap
func NewMetricMap[T any]() *MetricMap[T] {
	return &MetricMap[T]{items: make(map[string]*T)}
}

// Get returns the metric for name, registering it on first use
func (m *MetricMap[T]) Get(name string) *T {
	m.mu.RLock()
	ptr, ok := m.items[name]
	m.mu.RUnlock()
	if ok {
		return ptr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ptr, ok := m.items[name]; ok {
		return ptr
	}
	ptr = new(T)
	m.items[name] = ptr
	return ptr
}

// Lookup returns the metric for name without registering it
func (m *MetricMap[T]) Lookup(name string) (*T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ptr, ok := m.items[name]
	return ptr, ok
}

// Each visits metrics in name order
func (m *MetricMap[T]) Each(fn func(name string, ptr *T)) {
	m.mu.RLock()
	names := make([]string, 0, len(m.items))
	for k := range m.items {
		names = append(names, k)
	}
	m.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		if ptr, ok := m.Lookup(name); ok {
			fn(name, ptr)
		}
	}
}

// Len returns the number of registered metrics
func (m *MetricMap[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
