// Package cache provides a reference-counted LRU cache.
//
// Every entry carries a charge, and entries are evicted in least recently
// used order while the total charge exceeds the capacity. Eviction and Erase
// only remove an entry from future lookups: a caller holding a Handle keeps
// the value alive, and the entry's deleter runs when the last Handle is
// released.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// Deleter is called exactly once for each inserted value after it has left
// the cache and all of its handles have been released. It runs without the
// cache lock held.
type Deleter[K comparable, V any] func(key K, value V)

type entry[K comparable, V any] struct {
	key     K
	value   V
	charge  int64
	deleter Deleter[K, V]
	refs    int
	elem    *list.Element
}

// Stats is a snapshot of cache activity
type Stats struct {
	Hits      uint64
	Misses    uint64
	Inserts   uint64
	Evictions uint64
}

// LRU is a concurrent LRU cache mapping K to V
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int64
	usage    int64
	table    map[K]*entry[K, V]
	lru      *list.List // front is most recently used

	lastID    atomic.Uint64
	hits      atomic.Uint64
	misses    atomic.Uint64
	inserts   atomic.Uint64
	evictions atomic.Uint64
}

// New creates a cache holding at most capacity total charge
func New[K comparable, V any](capacity int64) *LRU[K, V] {
	return &LRU[K, V]{
		capacity: capacity,
		table:    make(map[K]*entry[K, V]),
		lru:      list.New(),
	}
}

// Handle pins one cache entry. Release must be called exactly once; later
// calls are ignored.
type Handle[K comparable, V any] struct {
	c        *LRU[K, V]
	e        *entry[K, V]
	released atomic.Bool
}

// Key returns the key the handle was obtained for
func (h *Handle[K, V]) Key() K {
	return h.e.key
}

// Value returns the pinned value. It must not be used after Release.
func (h *Handle[K, V]) Value() V {
	return h.e.value
}

// Release drops this handle's reference
func (h *Handle[K, V]) Release() {
	if h.released.CompareAndSwap(false, true) {
		h.c.release(h.e)
	}
}

// Insert adds value under key and returns a handle pinning it. An existing
// entry for key is replaced; it is destroyed once its own handles are released.
// The new entry may itself be evicted immediately if its charge exceeds the
// capacity, but the returned handle stays valid.
func (c *LRU[K, V]) Insert(key K, value V, charge int64, deleter Deleter[K, V]) *Handle[K, V] {
	e := &entry[K, V]{
		key:     key,
		value:   value,
		charge:  charge,
		deleter: deleter,
		refs:    2, // one for the cache, one for the returned handle
	}

	var dead []*entry[K, V]

	c.mu.Lock()
	e.elem = c.lru.PushFront(e)
	c.usage += charge
	if old, ok := c.table[key]; ok {
		if c.remove(old) {
			dead = append(dead, old)
		}
	}
	c.table[key] = e

	for c.usage > c.capacity && c.lru.Len() > 0 {
		oldest := c.lru.Back().Value.(*entry[K, V])
		delete(c.table, oldest.key)
		if c.remove(oldest) {
			dead = append(dead, oldest)
		}
		c.evictions.Add(1)
	}
	c.mu.Unlock()

	c.inserts.Add(1)
	destroy(dead)
	return &Handle[K, V]{c: c, e: e}
}

// Lookup returns a handle for key, or nil if it is not cached
func (c *LRU[K, V]) Lookup(key K) *Handle[K, V] {
	c.mu.Lock()
	e, ok := c.table[key]
	if ok {
		e.refs++
		c.lru.MoveToFront(e.elem)
	}
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return nil
	}
	c.hits.Add(1)
	return &Handle[K, V]{c: c, e: e}
}

// Erase removes key from the cache. Outstanding handles remain valid.
func (c *LRU[K, V]) Erase(key K) {
	var dead []*entry[K, V]

	c.mu.Lock()
	if e, ok := c.table[key]; ok {
		delete(c.table, key)
		if c.remove(e) {
			dead = append(dead, e)
		}
	}
	c.mu.Unlock()

	destroy(dead)
}

// Prune removes every entry that no caller currently holds
func (c *LRU[K, V]) Prune() {
	var dead []*entry[K, V]

	c.mu.Lock()
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		e := el.Value.(*entry[K, V])
		if e.refs == 1 {
			delete(c.table, e.key)
			c.remove(e)
			dead = append(dead, e)
		}
		el = prev
	}
	c.mu.Unlock()

	destroy(dead)
}

// Clear removes every entry. Pinned entries are destroyed on release.
func (c *LRU[K, V]) Clear() {
	var dead []*entry[K, V]

	c.mu.Lock()
	for el := c.lru.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*entry[K, V])
		delete(c.table, e.key)
		if c.remove(e) {
			dead = append(dead, e)
		}
		el = next
	}
	c.mu.Unlock()

	destroy(dead)
}

// NewID returns a fresh identifier. Clients sharing one cache use it to
// partition their key space.
func (c *LRU[K, V]) NewID() uint64 {
	return c.lastID.Add(1)
}

// Len returns the number of entries available to Lookup
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.table)
}

// TotalCharge returns the combined charge of cached entries
func (c *LRU[K, V]) TotalCharge() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// Capacity returns the configured capacity
func (c *LRU[K, V]) Capacity() int64 {
	return c.capacity
}

// Stats returns the hit, miss, insert and eviction counters
func (c *LRU[K, V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Inserts:   c.inserts.Load(),
		Evictions: c.evictions.Load(),
	}
}

// remove detaches e from the LRU list and drops the cache's reference.
// The caller must hold c.mu and must already have removed e from c.table.
// It reports whether e is now unreferenced.
func (c *LRU[K, V]) remove(e *entry[K, V]) bool {
	c.lru.Remove(e.elem)
	c.usage -= e.charge
	e.refs--
	return e.refs == 0
}

func (c *LRU[K, V]) release(e *entry[K, V]) {
	c.mu.Lock()
	e.refs--
	last := e.refs == 0
	c.mu.Unlock()

	if last {
		destroy([]*entry[K, V]{e})
	}
}

func destroy[K comparable, V any](dead []*entry[K, V]) {
	for _, e := range dead {
		if e.deleter != nil {
			e.deleter(e.key, e.value)
		}
	}
}
