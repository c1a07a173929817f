package search

import (
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheEntry is one cached fused result list.
type cacheEntry struct {
	results  []FusedResult
	paths    []string
	storedAt time.Time
}

// Cache is a bounded LRU of fused result lists keyed by CacheKey. It is
// safe for concurrent use; two queries racing on the same miss may both
// compute and store, and the last write wins.
//
// Besides InvalidateAll, entries can be dropped selectively by the source
// paths their results reference. Every invalidation advances a generation
// counter; PutAt refuses results computed under an older generation, so a
// search that raced an invalidation cannot repopulate stale data.
type Cache struct {
	entries *lru.Cache[string, *cacheEntry]

	// mu guards byPath and generation and serializes every mutation of
	// entries, so onEvict always runs with mu held.
	mu         sync.Mutex
	byPath     map[string]map[string]struct{}
	generation uint64

	hits   atomic.Uint64
	misses atomic.Uint64
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// NewCache creates a cache holding at most capacity result lists.
func NewCache(capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultConfig().CacheCapacity
	}
	c := &Cache{byPath: make(map[string]map[string]struct{})}

	entries, err := lru.NewWithEvict[string, *cacheEntry](capacity, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.entries = entries
	return c, nil
}

// Get returns a copy of the cached results for key.
func (c *Cache) Get(key string) ([]FusedResult, bool) {
	e, ok := c.entries.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return cloneResults(e.results), true
}

// Generation returns the current invalidation generation.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Put stores a copy of results under key.
func (c *Cache) Put(key string, results []FusedResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(key, results)
}

// PutAt stores results only if no invalidation happened since generation
// gen was read. It reports whether the results were stored.
func (c *Cache) PutAt(gen uint64, key string, results []FusedResult) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return false
	}
	c.store(key, results)
	return true
}

// store must be called with mu held.
func (c *Cache) store(key string, results []FusedResult) {
	e := &cacheEntry{
		results:  cloneResults(results),
		paths:    distinctPaths(results),
		storedAt: time.Now(),
	}

	// Replacing a key does not fire onEvict, so unindex the old entry first.
	if old, ok := c.entries.Peek(key); ok {
		c.unindex(key, old)
	}
	for _, p := range e.paths {
		keys, ok := c.byPath[p]
		if !ok {
			keys = make(map[string]struct{})
			c.byPath[p] = keys
		}
		keys[key] = struct{}{}
	}
	c.entries.Add(key, e)
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.entries.Purge()
	c.byPath = make(map[string]map[string]struct{})
}

// InvalidatePaths drops every entry whose results reference one of paths
// and returns how many entries were dropped.
func (c *Cache) InvalidatePaths(paths ...string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	victims := make(map[string]struct{})
	for _, p := range paths {
		for key := range c.byPath[p] {
			victims[key] = struct{}{}
		}
	}

	removed := 0
	for key := range victims {
		if c.entries.Remove(key) {
			removed++
		}
	}
	return removed
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Stats returns the current counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Entries: c.entries.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}

// onEvict unindexes an entry leaving the LRU by capacity or removal.
// Every mutation of entries happens under mu, so mu is already held here.
func (c *Cache) onEvict(key string, e *cacheEntry) {
	c.unindex(key, e)
}

func (c *Cache) unindex(key string, e *cacheEntry) {
	for _, p := range e.paths {
		if keys, ok := c.byPath[p]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(c.byPath, p)
			}
		}
	}
}

func cloneResults(results []FusedResult) []FusedResult {
	out := make([]FusedResult, len(results))
	for i, r := range results {
		r.MatchTypes = append([]MatchType(nil), r.MatchTypes...)
		if r.Window != nil {
			w := *r.Window
			r.Window = &w
		}
		out[i] = r
	}
	return out
}

func distinctPaths(results []FusedResult) []string {
	seen := make(map[string]bool, len(results))
	paths := make([]string, 0, len(results))
	for _, r := range results {
		if !seen[r.Path] {
			seen[r.Path] = true
			paths = append(paths, r.Path)
		}
	}
	return paths
}
