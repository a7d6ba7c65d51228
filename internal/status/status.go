// Package status provides a keyed cache of externally mutated status values.
// Reads are lazily defaulted; every write bumps a per-key version counter and
// notifies subscribers, which lets a view layer re-derive its output without
// framework-driven auto-tracking.
package status

import "sync"

// Cache is a concurrency-safe key-value status cache. The zero value is not
// usable; construct with NewCache.
type Cache[T any] struct {
	mu       sync.RWMutex
	items    map[string]T
	versions map[string]uint64
	subs     map[int]chan string
	nextSub  int
}

func NewCache[T any]() *Cache[T] {
	return &Cache[T]{
		items:    make(map[string]T),
		versions: make(map[string]uint64),
		subs:     make(map[int]chan string),
	}
}

// Get returns the value stored under key, lazily storing def on first read so
// subsequent readers observe the same default instance semantics.
func (c *Cache[T]) Get(key string, def T) T {
	c.mu.RLock()
	v, ok := c.items[key]
	c.mu.RUnlock()
	if ok {
		return v
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok = c.items[key]; ok {
		return v
	}
	c.items[key] = def
	return def
}

// Set stores value under key, bumps the key's version and notifies
// subscribers. Notification happens under the lock: cancel closes channels
// under the same lock, so a send can never hit a closed channel, and the
// sends are non-blocking so the lock is never held waiting on a receiver.
func (c *Cache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
	c.versions[key]++
	for _, ch := range c.subs {
		select {
		case ch <- key:
		default: // subscriber lagging; it will re-read on its next cycle
		}
	}
}

// Update applies fn to the current value under key (or def when absent) and
// stores the result.
func (c *Cache[T]) Update(key string, def T, fn func(T) T) {
	c.mu.RLock()
	cur, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		cur = def
	}
	c.Set(key, fn(cur))
}

// Delete removes key. The version survives so observers can tell a deleted
// key from a never-written one.
func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.versions[key]++
	c.mu.Unlock()
}

// Version returns the write counter for key; zero means never written.
func (c *Cache[T]) Version(key string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.versions[key]
}

// Subscribe returns a channel receiving keys as they change and a cancel
// function. Notifications are best-effort: a slow receiver may miss keys and
// should treat any receive as a hint to re-read.
func (c *Cache[T]) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 16)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()
	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}
