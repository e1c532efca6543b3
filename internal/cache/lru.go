package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/freewebtopdf/redirector/internal/domain"
)

// node represents a node in the doubly-linked list
type node struct {
	key       string
	value     domain.RedirectRule
	expiresAt time.Time
	prev      *node
	next      *node
}

// LRUCache implements CacheManager in process with LRU eviction and per-entry expiry
type LRUCache struct {
	maxSize    int
	size       int
	defaultTTL time.Duration
	now        func() time.Time

	// Doubly-linked list for LRU ordering
	head *node
	tail *node

	cache map[string]*node
	mutex sync.Mutex

	hits          int64
	misses        int64
	expired       int64
	invalidations int64
}

// NewLRUCache creates a new LRU cache with the specified maximum size and default TTL
func NewLRUCache(maxSize int, defaultTTL time.Duration) *LRUCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}

	head := &node{}
	tail := &node{}
	head.next = tail
	tail.prev = head

	return &LRUCache{
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		now:        time.Now,
		head:       head,
		tail:       tail,
		cache:      make(map[string]*node),
	}
}

// Lookup returns a copy of the rule cached for url, treating expired entries as misses
func (c *LRUCache) Lookup(_ context.Context, url string, siteID uint64) (*domain.RedirectRule, bool) {
	key := Fingerprint(url, siteID)

	c.mutex.Lock()
	defer c.mutex.Unlock()

	found, exists := c.cache[key]
	if !exists {
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	if !c.now().Before(found.expiresAt) {
		c.removeNode(found)
		delete(c.cache, key)
		c.size--
		atomic.AddInt64(&c.expired, 1)
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	c.moveToFront(found)
	atomic.AddInt64(&c.hits, 1)

	rule := found.value
	return &rule, true
}

// Store caches a snapshot of rule for url; ttl <= 0 uses the default TTL
func (c *LRUCache) Store(_ context.Context, url string, siteID uint64, rule *domain.RedirectRule, ttl time.Duration) {
	if rule == nil {
		return
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	key := Fingerprint(url, siteID)
	expiresAt := c.now().Add(ttl)

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if existing, exists := c.cache[key]; exists {
		existing.value = *rule
		existing.expiresAt = expiresAt
		c.moveToFront(existing)
		return
	}

	newNode := &node{
		key:       key,
		value:     *rule,
		expiresAt: expiresAt,
	}
	c.addToFront(newNode)
	c.cache[key] = newNode
	c.size++

	if c.size > c.maxSize {
		c.evictLRU()
	}
}

// InvalidateAll drops every entry. Counters are kept.
func (c *LRUCache) InvalidateAll(_ context.Context) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.head.next = c.tail
	c.tail.prev = c.head
	c.cache = make(map[string]*node)
	c.size = 0

	atomic.AddInt64(&c.invalidations, 1)
}

// Stats returns current cache statistics
func (c *LRUCache) Stats() domain.CacheStats {
	c.mutex.Lock()
	size := c.size
	c.mutex.Unlock()

	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	total := hits + misses

	var hitRatio float64
	if total > 0 {
		hitRatio = float64(hits) / float64(total)
	}

	return domain.CacheStats{
		Hits:     hits,
		Misses:   misses,
		Size:     size,
		MaxSize:  c.maxSize,
		HitRatio: hitRatio,
		Driver:   "memory",
	}
}

// HealthCheck performs a health check on the cache
func (c *LRUCache) HealthCheck(_ context.Context) domain.HealthStatus {
	stats := c.Stats()

	status := domain.HealthStatusHealthy
	message := "Cache is operating normally"
	details := map[string]any{
		"size":          stats.Size,
		"max_size":      stats.MaxSize,
		"hit_ratio":     stats.HitRatio,
		"hits":          stats.Hits,
		"misses":        stats.Misses,
		"expired":       atomic.LoadInt64(&c.expired),
		"invalidations": atomic.LoadInt64(&c.invalidations),
		"default_ttl":   c.defaultTTL.String(),
	}

	if stats.Size >= int(float64(stats.MaxSize)*0.9) {
		status = domain.HealthStatusDegraded
		message = "Cache is near capacity"
		details["warning"] = "Cache utilization above 90%"
	}

	return domain.HealthStatus{
		Status:    status,
		Message:   message,
		Details:   details,
		Timestamp: time.Now(),
	}
}

// moveToFront moves a node to the front of the list (most recently used)
func (c *LRUCache) moveToFront(n *node) {
	c.removeNode(n)
	c.addToFront(n)
}

func (c *LRUCache) addToFront(n *node) {
	n.prev = c.head
	n.next = c.head.next
	c.head.next.prev = n
	c.head.next = n
}

func (c *LRUCache) removeNode(n *node) {
	n.prev.next = n.next
	n.next.prev = n.prev
}

// evictLRU removes the least recently used item from the cache
func (c *LRUCache) evictLRU() {
	if c.tail.prev == c.head {
		return
	}

	lru := c.tail.prev
	c.removeNode(lru)
	delete(c.cache, lru.key)
	c.size--
}
