package scanner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/routeforge/routeforge/ports"
)

// Cache memoizes scan results keyed by (root, config fingerprint)
// with a TTL. Repeat scans within the TTL window bypass the
// filesystem walk entirely.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   ports.Clock
	entries map[string]cacheEntry

	hits   uint64
	misses uint64
}

type cacheEntry struct {
	root      string
	routes    []Route
	expiresAt time.Time
}

// NewCache creates a scan cache. A nil clock uses the system clock.
func NewCache(ttl time.Duration, clock ports.Clock) *Cache {
	if clock == nil {
		clock = systemClock{}
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]cacheEntry),
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func cacheKey(root string, fingerprint uint64) string {
	return fmt.Sprintf("%s\x00%x", root, fingerprint)
}

// Get returns cached routes if present and fresh.
func (c *Cache) Get(root string, fingerprint uint64) ([]Route, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[cacheKey(root, fingerprint)]
	if !ok || c.clock.Now().After(entry.expiresAt) {
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.routes, true
}

// Put stores scan results.
func (c *Cache) Put(root string, fingerprint uint64, routes []Route) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey(root, fingerprint)] = cacheEntry{
		root:      root,
		routes:    routes,
		expiresAt: c.clock.Now().Add(c.ttl),
	}
}

// InvalidateRoot drops every cached scan whose root falls under the
// given prefix.
func (c *Cache) InvalidateRoot(rootPrefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if strings.HasPrefix(entry.root, rootPrefix) {
			delete(c.entries, key)
		}
	}
}

// Stats returns hit and miss counts.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// CachedScanner wraps a Scanner with a Cache.
type CachedScanner struct {
	scanner *Scanner
	cache   *Cache
}

// NewCached creates a caching scanner.
func NewCached(s *Scanner, cache *Cache) *CachedScanner {
	return &CachedScanner{scanner: s, cache: cache}
}

// Scan returns cached routes within the TTL window, scanning
// otherwise.
func (cs *CachedScanner) Scan(ctx context.Context) ([]Route, error) {
	root := cs.scanner.cfg.Root
	fp := cs.scanner.cfg.Fingerprint()

	if routes, ok := cs.cache.Get(root, fp); ok {
		return routes, nil
	}

	routes, err := cs.scanner.Scan(ctx)
	if err != nil {
		return nil, err
	}
	cs.cache.Put(root, fp, routes)
	return routes, nil
}

// Invalidate drops cached scans for the scanner's root.
func (cs *CachedScanner) Invalidate() {
	cs.cache.InvalidateRoot(cs.scanner.cfg.Root)
}
