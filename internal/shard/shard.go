// Package shard provides string-keyed maps and locks split across a fixed
// number of shards so unrelated keys never contend on the same mutex.
package shard

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const DefaultShards = 64

func index(key string, n int) int {
	return int(xxhash.Sum64String(key) % uint64(n))
}

type mapShard[V any] struct {
	mu sync.RWMutex
	m  map[string]V
}

// Map is a concurrent map keyed by string.
type Map[V any] struct {
	shards []*mapShard[V]
}

func NewMap[V any](n int) *Map[V] {
	if n <= 0 {
		n = DefaultShards
	}
	sm := &Map[V]{shards: make([]*mapShard[V], n)}
	for i := range sm.shards {
		sm.shards[i] = &mapShard[V]{m: make(map[string]V)}
	}
	return sm
}

func (sm *Map[V]) shard(key string) *mapShard[V] {
	return sm.shards[index(key, len(sm.shards))]
}

func (sm *Map[V]) Get(key string) (V, bool) {
	s := sm.shard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

// Swap stores v and returns the previous value, if any.
func (sm *Map[V]) Swap(key string, v V) (V, bool) {
	s := sm.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.m[key]
	s.m[key] = v
	return old, ok
}

func (sm *Map[V]) Delete(key string) {
	s := sm.shard(key)
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
}

// CompareAndDelete removes key only while eq reports that the stored value is
// still the one the caller expects.
func (sm *Map[V]) CompareAndDelete(key string, eq func(V) bool) bool {
	s := sm.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.m[key]; ok && eq(v) {
		delete(s.m, key)
		return true
	}
	return false
}

func (sm *Map[V]) Len() int {
	n := 0
	for _, s := range sm.shards {
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}

// Range calls fn for every entry. fn must not modify the map. Iteration stops
// when fn returns false.
func (sm *Map[V]) Range(fn func(key string, v V) bool) {
	for _, s := range sm.shards {
		s.mu.RLock()
		for k, v := range s.m {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Locker hands out one mutex per key hash. Two keys may share a mutex, which
// only costs throughput; the same key always maps to the same mutex.
type Locker struct {
	mus []sync.Mutex
}

func NewLocker(n int) *Locker {
	if n <= 0 {
		n = DefaultShards
	}
	return &Locker{mus: make([]sync.Mutex, n)}
}

// Lock locks the mutex for key and returns its unlock function.
func (l *Locker) Lock(key string) func() {
	mu := &l.mus[index(key, len(l.mus))]
	mu.Lock()
	return mu.Unlock
}
