// Package hashmap implements the generic, mutex-protected map used
// throughout the kernel core (spec.md §3 "Hashmap", §9 "Generic
// container"). The original kernel instantiates a hand-rolled open-chained
// hashmap for numeric and string keys; Go's built-in map together with
// generics already is that data structure, so this package's only job is
// the mutex-protection and the explicit-construction discipline the
// original's hashmapCreateNumeric/hashmapCreateString split required
// (kept here as a single generic constructor over any comparable key).
package hashmap

import "sync"

// Map is a concurrency-safe map from any comparable key to any value.
type Map[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

// New creates a Map with capacity as a size hint, mirroring
// hashmapCreateNumeric(n)/hashmapCreateString(n).
func New[K comparable, V any](capacity int) *Map[K, V] {
	return &Map[K, V]{m: make(map[K]V, capacity)}
}

func (h *Map[K, V]) Put(key K, value V) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.m[key] = value
}

// Get returns the stored value and whether it was present, mirroring
// hashmapGet(map, key, fallback) without requiring a fallback argument.
func (h *Map[K, V]) Get(key K) (V, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.m[key]
	return v, ok
}

func (h *Map[K, V]) Remove(key K) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.m, key)
}

func (h *Map[K, V]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.m)
}

// GetOrCreate returns the existing value for key, or calls create and
// stores its result if absent. Used by the "get or create" pattern seen
// throughout the IPC layer (_messageQueuesGetOrCreate, _messageTopicsGetOrCreate).
func (h *Map[K, V]) GetOrCreate(key K, create func() V) V {
	h.mu.Lock()
	defer h.mu.Unlock()
	if v, ok := h.m[key]; ok {
		return v
	}
	v := create()
	h.m[key] = v
	return v
}

// Range calls fn for every entry. fn must not call back into the map.
func (h *Map[K, V]) Range(fn func(K, V)) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for k, v := range h.m {
		fn(k, v)
	}
}
