package cache

import (
	"sync"
	"time"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultTTL      = 5 * time.Minute
	DefaultCapacity = 100
)

// Options configures a Cache. Size returns the weight of a value; nil means
// every entry weighs 1.
type Options[V any] struct {
	TTL      time.Duration
	Capacity int
	Size     func(V) int
	Now      func() time.Time
}

type entry[V any] struct {
	value      V
	insertedAt time.Time
	size       int
	seq        uint64
}

// Stats is a point-in-time view of cache bookkeeping.
type Stats struct {
	Entries   int
	Size      int
	Capacity  int
	Hits      int64
	Misses    int64
	Evictions int64
}

// Cache is a bounded key/value store with lazy TTL expiry and oldest-first
// eviction by insertion time. Safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	items    map[K]*entry[V]
	total    int
	ttl      time.Duration
	capacity int
	sizeOf   func(V) int
	now      func() time.Time
	seq      uint64
	stats    Stats
}

func New[K comparable, V any](opts Options[V]) *Cache[K, V] {
	c := &Cache[K, V]{
		items:    make(map[K]*entry[V]),
		ttl:      opts.TTL,
		capacity: opts.Capacity,
		sizeOf:   opts.Size,
		now:      opts.Now,
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.capacity <= 0 {
		c.capacity = DefaultCapacity
	}
	if c.sizeOf == nil {
		c.sizeOf = func(V) int { return 1 }
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Get returns the value for key. Entries older than the TTL are evicted and
// reported as absent.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}
	if c.expired(e) {
		c.remove(key, e)
		c.stats.Evictions++
		c.stats.Misses++
		return zero, false
	}
	c.stats.Hits++
	return e.value, true
}

// InsertedAt reports when a live entry was stored.
func (c *Cache[K, V]) InsertedAt(key K) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok || c.expired(e) {
		return time.Time{}, false
	}
	return e.insertedAt, true
}

// Set stores value under key, evicting the oldest entries until it fits.
// A value larger than the whole capacity is not stored.
func (c *Cache[K, V]) Set(key K, value V) {
	size := c.sizeOf(value)
	if size < 0 {
		size = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.items[key]; ok {
		c.remove(key, old)
	}
	if size > c.capacity {
		return
	}
	for len(c.items) > 0 && c.total+size > c.capacity {
		c.evictOldest()
	}
	c.seq++
	c.items[key] = &entry[V]{value: value, insertedAt: c.now(), size: size, seq: c.seq}
	c.total += size
}

func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		c.remove(key, e)
	}
}

func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*entry[V])
	c.total = 0
}

func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Size is the tracked total weight, expired-but-unread entries included.
func (c *Cache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.items)
	s.Size = c.total
	s.Capacity = c.capacity
	return s
}

// must be called with lock held
func (c *Cache[K, V]) expired(e *entry[V]) bool {
	return c.now().Sub(e.insertedAt) > c.ttl
}

// must be called with lock held
func (c *Cache[K, V]) remove(key K, e *entry[V]) {
	delete(c.items, key)
	c.total -= e.size
}

// evictOldest drops the entry inserted first (lock held). Insertion order is
// tracked by seq so entries stamped with the same time still have an order.
func (c *Cache[K, V]) evictOldest() {
	var (
		oldestKey K
		oldest    *entry[V]
	)
	for k, e := range c.items {
		if oldest == nil || e.seq < oldest.seq {
			oldestKey, oldest = k, e
		}
	}
	if oldest != nil {
		c.remove(oldestKey, oldest)
		c.stats.Evictions++
	}
}
