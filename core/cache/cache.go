// Package cache provides LRU caching for resolved database pages.
package cache

import (
	"container/list"
	"sync"

	"github.com/FocuswithJustin/sqlsalvage/core/sqlite/format"
)

// Cache is a generic LRU cache interface.
type Cache[K comparable, V any] interface {
	// Get retrieves a value and marks it most recently used.
	Get(key K) (V, bool)

	// Put stores a value, evicting the least recently used entry when full.
	Put(key K, value V)

	// Remove removes a value from the cache.
	Remove(key K)

	// Clear removes all entries from the cache.
	Clear()

	// Len returns the number of entries in the cache.
	Len() int

	// Stats returns cache statistics.
	Stats() Stats
}

// Stats contains cache statistics.
type Stats struct {
	Hits       int64
	Misses     int64
	Evictions  int64
	Size       int
	MaxSize    int
	TotalBytes int64
}

// Config contains cache configuration options.
type Config[K comparable, V any] struct {
	// MaxSize is the maximum number of entries (0 = unlimited).
	MaxSize int

	// OnEvict is called when an entry leaves the cache by eviction or removal.
	OnEvict func(key K, value V)
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// lruCache is a thread-safe LRU cache implementation.
type lruCache[K comparable, V any] struct {
	mu        sync.Mutex
	config    Config[K, V]
	entries   map[K]*list.Element
	evictList *list.List
	stats     Stats
}

// NewLRUCache creates a new LRU cache with the given configuration.
func NewLRUCache[K comparable, V any](config Config[K, V]) Cache[K, V] {
	if config.MaxSize < 0 {
		config.MaxSize = 0
	}
	return &lruCache[K, V]{
		config:    config,
		entries:   make(map[K]*list.Element),
		evictList: list.New(),
	}
}

func (c *lruCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}
	c.evictList.MoveToFront(ent)
	c.stats.Hits++
	return ent.Value.(*entry[K, V]).value, true
}

func (c *lruCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.entries[key]; ok {
		c.evictList.MoveToFront(ent)
		ent.Value.(*entry[K, V]).value = value
		return
	}

	c.entries[key] = c.evictList.PushFront(&entry[K, V]{key: key, value: value})

	if c.config.MaxSize > 0 && c.evictList.Len() > c.config.MaxSize {
		if oldest := c.evictList.Back(); oldest != nil {
			c.removeElement(oldest)
			c.stats.Evictions++
		}
	}
}

func (c *lruCache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.entries[key]; ok {
		c.removeElement(ent)
	}
}

func (c *lruCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*list.Element)
	c.evictList.Init()
}

func (c *lruCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

func (c *lruCache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Size = c.evictList.Len()
	s.MaxSize = c.config.MaxSize
	return s
}

func (c *lruCache[K, V]) removeElement(ent *list.Element) {
	c.evictList.Remove(ent)
	e := ent.Value.(*entry[K, V])
	delete(c.entries, e.key)

	if c.config.OnEvict != nil {
		c.config.OnEvict(e.key, e.value)
	}
}

// PageCache holds copies of resolved page images keyed by page number.
// Buffers are copied on the way in and on the way out, so callers may
// modify what they receive.
type PageCache struct {
	mu    sync.Mutex
	bytes int64
	cache Cache[format.Pgno, []byte]
}

// NewPageCache creates a page cache holding at most maxPages pages.
func NewPageCache(maxPages int) *PageCache {
	pc := &PageCache{}
	pc.cache = NewLRUCache(Config[format.Pgno, []byte]{
		MaxSize: maxPages,
		OnEvict: func(_ format.Pgno, data []byte) {
			// Runs inside Put and Remove, which hold pc.mu.
			pc.bytes -= int64(len(data))
		},
	})
	return pc
}

// Get returns a copy of the cached page.
func (c *PageCache) Get(pgno format.Pgno) ([]byte, bool) {
	data, ok := c.cache.Get(pgno)
	if !ok {
		return nil, false
	}
	return clone(data), true
}

// Put stores a copy of data for pgno.
func (c *PageCache) Put(pgno format.Pgno, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Remove(pgno)
	c.cache.Put(pgno, clone(data))
	c.bytes += int64(len(data))
}

// Remove drops pgno from the cache.
func (c *PageCache) Remove(pgno format.Pgno) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(pgno)
}

// Clear drops every cached page.
func (c *PageCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Clear()
	c.bytes = 0
}

// Len returns the number of cached pages.
func (c *PageCache) Len() int {
	return c.cache.Len()
}

// Stats returns cache statistics including the bytes held.
func (c *PageCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.cache.Stats()
	s.TotalBytes = c.bytes
	return s
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
