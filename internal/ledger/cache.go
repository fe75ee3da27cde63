// ABOUTME: Thread-safe TTL cache fronting the webhook attempt table
// ABOUTME: A fast in-memory duplicate check; the database row stays authoritative

package ledger

import (
	"container/list"
	"sync"
	"time"
)

// cacheEntry stores the timestamp and list element for a cached key.
type cacheEntry struct {
	timestamp time.Time
	element   *list.Element
}

// seenCache is a TTL-based, size-limited record of recently admitted
// external ids. It spares the database an insert attempt for hot duplicates;
// a miss here proves nothing, the unique constraint does.
// Uses a doubly-linked list to maintain insertion order for O(1) eviction.
type seenCache struct {
	mu      sync.Mutex
	seen    map[string]*cacheEntry
	order   *list.List // keys in insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// newSeenCache creates a cache with the specified TTL and maximum size.
// A background goroutine periodically cleans up expired entries.
func newSeenCache(ttl time.Duration, maxSize int) *seenCache {
	c := &seenCache{
		seen:    make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// checkAndMark atomically checks if a key has been seen and marks it if not.
// Returns true if the key was already seen (duplicate), false if it's new
// and now marked.
func (c *seenCache) checkAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.seen[key]
	if ok && time.Since(entry.timestamp) < c.ttl {
		return true
	}

	now := time.Now()
	if entry, exists := c.seen[key]; exists {
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return false
	}

	if len(c.seen) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.seen[key] = &cacheEntry{
		timestamp: now,
		element:   elem,
	}
	return false
}

// forget removes a key, allowing a retried delivery to reach the database
// after a failed insert.
func (c *seenCache) forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.seen[key]
	if !ok {
		return
	}
	c.order.Remove(entry.element)
	delete(c.seen, key)
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *seenCache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.seen, key)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (c *seenCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired entries from the cache.
func (c *seenCache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.seen {
		if now.Sub(entry.timestamp) > c.ttl {
			c.order.Remove(entry.element)
			delete(c.seen, key)
		}
	}
}

// close stops the background cleanup goroutine. Safe to call multiple times.
func (c *seenCache) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
