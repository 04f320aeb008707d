// Package sharded provides a string-keyed map split into independently locked
// shards, so unrelated keys never contend on the same mutex.
package sharded

import (
	"sync"
)

type mapShard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// Map is a concurrent map from string keys to V.
type Map[V any] struct {
	shards []*mapShard[V]
}

// NewMap creates a Map with numShards shards. numShards must be a power of two.
func NewMap[V any](numShards int) *Map[V] {
	if !isPowerOfTwo(numShards) {
		panic("num shards must be a power of 2")
	}
	m := &Map[V]{shards: make([]*mapShard[V], numShards)}
	for i := range numShards {
		m.shards[i] = &mapShard[V]{items: make(map[string]V)}
	}
	return m
}

func (m *Map[V]) shard(key string) *mapShard[V] {
	return m.shards[shardIndex(key, len(m.shards))]
}

// Store sets the value for key.
func (m *Map[V]) Store(key string, value V) {
	s := m.shard(key)
	s.mu.Lock()
	s.items[key] = value
	s.mu.Unlock()
}

// Load returns the value stored for key and whether it was present.
func (m *Map[V]) Load(key string) (value V, ok bool) {
	s := m.shard(key)
	s.mu.RLock()
	value, ok = s.items[key]
	s.mu.RUnlock()
	return value, ok
}

// Has reports whether key is present.
func (m *Map[V]) Has(key string) bool {
	_, ok := m.Load(key)
	return ok
}

// Delete removes key.
func (m *Map[V]) Delete(key string) {
	s := m.shard(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// Update runs fn with the current value for key while holding the shard's
// write lock. fn returns the new value and whether to keep it; returning
// keep=false deletes the key.
func (m *Map[V]) Update(key string, fn func(current V, exists bool) (next V, keep bool)) {
	s := m.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.items[key]
	next, keep := fn(current, exists)
	if keep {
		s.items[key] = next
	} else {
		delete(s.items, key)
	}
}

// Move removes oldKey and stores value under newKey as one step. Both shards
// are locked in index order so concurrent moves cannot deadlock.
func (m *Map[V]) Move(oldKey, newKey string, value V) {
	i, j := shardIndex(oldKey, len(m.shards)), shardIndex(newKey, len(m.shards))
	if i == j {
		s := m.shards[i]
		s.mu.Lock()
		delete(s.items, oldKey)
		s.items[newKey] = value
		s.mu.Unlock()
		return
	}

	first, second := m.shards[min(i, j)], m.shards[max(i, j)]
	first.mu.Lock()
	second.mu.Lock()
	delete(m.shards[i].items, oldKey)
	m.shards[j].items[newKey] = value
	second.mu.Unlock()
	first.mu.Unlock()
}

// Count returns the total number of entries.
func (m *Map[V]) Count() int {
	count := 0
	for _, s := range m.shards {
		s.mu.RLock()
		count += len(s.items)
		s.mu.RUnlock()
	}
	return count
}

// Keys returns a snapshot of all keys in no particular order.
func (m *Map[V]) Keys() []string {
	keys := make([]string, 0, m.Count())
	for _, s := range m.shards {
		s.mu.RLock()
		for k := range s.items {
			keys = append(keys, k)
		}
		s.mu.RUnlock()
	}
	return keys
}

// DeleteFunc removes every entry for which fn returns true and reports how
// many were removed. Shards are visited one at a time.
func (m *Map[V]) DeleteFunc(fn func(key string, value V) bool) int {
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for k, v := range s.items {
			if fn(k, v) {
				delete(s.items, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}
