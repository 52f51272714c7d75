// Package cache provides a size-bounded, concurrency-safe LRU keyed by string.
package cache

import (
	"sync"

	"github.com/golang/groupcache/lru"
)

// DefaultEntries bounds an LRU created with a non-positive size.
const DefaultEntries = 64

// LRU holds at most a fixed number of values, evicting the least recently used.
type LRU[V any] struct {
	mu sync.Mutex
	c  *lru.Cache
}

// NewLRU creates an LRU holding up to size entries.
func NewLRU[V any](size int) *LRU[V] {
	if size <= 0 {
		size = DefaultEntries
	}
	return &LRU[V]{c: lru.New(size)}
}

// Get returns the value under key and marks it recently used.
func (l *LRU[V]) Get(key string) (V, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.c.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

// Add stores v under key, evicting the oldest entry when full.
func (l *LRU[V]) Add(key string, v V) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Add(key, v)
}

// Remove drops key if present.
func (l *LRU[V]) Remove(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Remove(key)
}

// Len reports the number of cached entries.
func (l *LRU[V]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.c.Len()
}
