// Package namecache memoizes resolved entity names for the life of a process.
package namecache

import (
	"context"
	"sync"
	"sync/atomic"
)

// Cache maps an entity key (kind/id) to its resolved display name.
type Cache interface {
	// Get returns the cached name for key.
	Get(ctx context.Context, key string) (string, bool)

	// Put records name for key, evicting the oldest entry when full.
	// Re-putting an existing key updates it in place.
	Put(ctx context.Context, key, name string)

	// Forget drops key so the next lookup goes upstream again.
	Forget(ctx context.Context, key string)

	Size() int64
}

// entry is one element of the insertion-ordered list.
type entry struct {
	key        string
	name       string
	prev, next *entry
}

func (e *entry) reset() {
	e.key, e.name = "", ""
	e.prev, e.next = nil, nil
}

// inMemoryCache keeps names in a map plus an insertion-ordered list.
// Bounded mode (maxSize > 0) evicts from the tail; unbounded mode never evicts.
type inMemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	head    *entry // newest
	tail    *entry // oldest
	maxSize int
	size    atomic.Int64
	pool    sync.Pool
}

// NewInMemory creates an in-memory cache.
func NewInMemory(opts ...Option) Cache {
	c := &inMemoryCache{
		maxSize: 10_000,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.entries = make(map[string]*entry)
	c.pool = sync.Pool{New: func() any { return &entry{} }}
	return c
}

func (c *inMemoryCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	return e.name, true
}

func (c *inMemoryCache) Put(_ context.Context, key, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.name = name
		return
	}
	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	e := c.pool.Get().(*entry)
	e.key, e.name = key, name
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
	c.entries[key] = e
	c.size.Add(1)
}

func (c *inMemoryCache) Forget(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.unlink(e)
	}
}

// evictOldest must be called with c.mu held.
func (c *inMemoryCache) evictOldest() {
	if c.tail != nil {
		c.unlink(c.tail)
	}
}

// unlink must be called with c.mu held.
func (c *inMemoryCache) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	delete(c.entries, e.key)
	e.reset()
	c.pool.Put(e)
	c.size.Add(-1)
}

func (c *inMemoryCache) Size() int64 {
	return c.size.Load()
}
