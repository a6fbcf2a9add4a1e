package registry

import "sync"

// lookupCache is the bounded path-lookup cache. Both hits and
// explicit no-match results are cached. Eviction is insertion-order:
// when the bound is exceeded the oldest-inserted entries are pruned
// back to the configured maximum.
//
// Every invalidation bumps a generation counter. A put carries the
// generation its result was computed under and is discarded when an
// invalidation ran in between, so a result computed against a
// since-mutated endpoint set can never resurrect a stale entry.
type lookupCache struct {
	mu      sync.Mutex
	max     int
	entries map[string]*Match // nil value = cached no-match
	order   []string
	gen     uint64

	hits   uint64
	misses uint64
}

func newLookupCache(max int) *lookupCache {
	if max <= 0 {
		max = 1024
	}
	return &lookupCache{
		max:     max,
		entries: make(map[string]*Match),
	}
}

func (c *lookupCache) get(key string) (*Match, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	match, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return match, ok
}

// generation returns the current invalidation epoch. Snapshot it
// before computing a result destined for put.
func (c *lookupCache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *lookupCache) put(key string, match *Match, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = match

	for len(c.entries) > c.max && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// invalidate drops entries whose cached path satisfies the predicate.
// The path is the part of the key after the method prefix.
func (c *lookupCache) invalidate(pred func(path string) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	for key := range c.entries {
		if pred(pathOfKey(key)) {
			delete(c.entries, key)
		}
	}
	c.compactOrder()
}

func (c *lookupCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries = make(map[string]*Match)
	c.order = nil
}

func (c *lookupCache) stats() (hits, misses uint64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, len(c.entries)
}

// compactOrder drops order entries whose key is gone.
func (c *lookupCache) compactOrder() {
	kept := c.order[:0]
	for _, key := range c.order {
		if _, ok := c.entries[key]; ok {
			kept = append(kept, key)
		}
	}
	c.order = kept
}

func cacheKey(method, path string) string {
	return method + " " + path
}

func pathOfKey(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == ' ' {
			return key[i+1:]
		}
	}
	return key
}
