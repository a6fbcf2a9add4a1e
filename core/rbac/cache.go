package rbac

import (
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/routeforge/routeforge/ports"
)

const shardCount = 32

// decisionCache memoizes access decisions per (endpoint, user) pair.
// It is sharded to keep lock contention off the request path; entries
// expire by TTL and are dropped lazily on read.
type decisionCache struct {
	ttl    time.Duration
	clock  ports.Clock
	shards [shardCount]cacheShard
}

type cacheShard struct {
	mu      sync.RWMutex
	entries map[string]cachedDecision
}

type cachedDecision struct {
	result  Result
	expires time.Time
}

func newDecisionCache(ttl time.Duration, clock ports.Clock) *decisionCache {
	c := &decisionCache{ttl: ttl, clock: clock}
	for i := range c.shards {
		c.shards[i].entries = make(map[string]cachedDecision)
	}
	return c
}

func (c *decisionCache) shard(key string) *cacheShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &c.shards[h.Sum32()%shardCount]
}

func (c *decisionCache) get(key string) (Result, bool) {
	s := c.shard(key)

	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return Result{}, false
	}
	if c.clock.Now().After(entry.expires) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return Result{}, false
	}
	return entry.result, true
}

func (c *decisionCache) put(key string, result Result) {
	s := c.shard(key)
	s.mu.Lock()
	s.entries[key] = cachedDecision{result: result, expires: c.clock.Now().Add(c.ttl)}
	s.mu.Unlock()
}

// invalidate drops entries whose key satisfies the predicate, across
// all shards.
func (c *decisionCache) invalidate(pred func(key string) bool) {
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for key := range s.entries {
			if pred(key) {
				delete(s.entries, key)
			}
		}
		s.mu.Unlock()
	}
}

func (c *decisionCache) clear() {
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		s.entries = make(map[string]cachedDecision)
		s.mu.Unlock()
	}
}

func (c *decisionCache) len() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// decisionKey builds the cache key. The ownership resource id is part
// of the key when present so decisions about different resource
// instances never collide.
func decisionKey(endpointID, userID, resourceID string) string {
	key := endpointID + "|" + userID
	if resourceID != "" {
		key += "|" + resourceID
	}
	return key
}

func keyEndpoint(key string) string {
	if i := strings.IndexByte(key, '|'); i >= 0 {
		return key[:i]
	}
	return key
}

func keyUser(key string) string {
	parts := strings.SplitN(key, "|", 3)
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}
