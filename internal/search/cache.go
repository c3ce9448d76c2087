package search

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache defaults.
const (
	DefaultCacheSize = 500
	DefaultCacheTTL  = 300 * time.Second
)

// Cache is a TTL'd LRU over full result lists. Any ingestion invalidates
// the whole cache: correctness over hit rate.
type Cache struct {
	mu     sync.Mutex
	lru    *expirable.LRU[string, []*Result]
	hits   int64
	misses int64
}

// NewCache creates a cache with the given capacity and TTL.
// Non-positive values fall back to the defaults.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		lru: expirable.NewLRU[string, []*Result](size, nil, ttl),
	}
}

// Key builds the stable cache key over the request shape.
func Key(query string, k int, filter map[string]string, mode Mode) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")

	keys := make([]string, 0, len(filter))
	for fk := range filter {
		keys = append(keys, fk)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(normalized)
	fmt.Fprintf(&b, "\x00%d\x00%s", k, mode)
	for _, fk := range keys {
		fmt.Fprintf(&b, "\x00%s=%s", fk, filter[fk])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached results for key, if present and fresh.
func (c *Cache) Get(key string) ([]*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	results, ok := c.lru.Get(key)
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return results, ok
}

// Set stores results for key.
func (c *Cache) Set(key string, results []*Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, results)
}

// InvalidateAll drops every entry. Called on any successful upsert or
// delete.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Stats returns hit and miss counters.
func (c *Cache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
