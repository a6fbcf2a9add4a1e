// Package registry is the central endpoint store: keyed by id,
// indexed by compiled path matcher, with a bounded lookup cache, an
// event bus for change notifications, and best-match lookup by
// method and path.
//
// The matcher and endpoint maps are the only genuinely shared
// mutable state in the pipeline; they are guarded by a single
// RWMutex since registration is rare relative to lookups.
package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/routeforge/routeforge/core/events"
	"github.com/routeforge/routeforge/core/matcher"
	"github.com/routeforge/routeforge/domain/endpoint"
	"github.com/routeforge/routeforge/ports"
)

// Config controls registry behavior.
type Config struct {
	// CacheSize bounds the lookup cache entry count.
	CacheSize int `yaml:"cache_size"`

	// StrictTrailingSlash disables trailing-slash normalization:
	// "/users" and "/users/" become distinct paths.
	StrictTrailingSlash bool `yaml:"strict_trailing_slash"`
}

// Match is a successful path lookup.
type Match struct {
	Endpoint *endpoint.Endpoint
	Params   map[string]string
	Score    int
}

// AccessDecision is the registry's access-check result. With an RBAC
// engine configured the engine's richer result is converted into this
// shape; without one a minimal default policy applies.
type AccessDecision struct {
	Allowed  bool
	Decision string
	Reason   string
}

// AccessChecker evaluates access for a resolved endpoint. The RBAC
// engine implements this; the registry falls back to a minimal
// default when none is configured.
type AccessChecker interface {
	Check(ctx context.Context, ep *endpoint.Endpoint, user *ports.User, params map[string]string) AccessDecision
}

// Metrics receives lookup observations. Optional.
type Metrics interface {
	ObserveLookup(method string, matched, cacheHit bool, duration time.Duration)
}

type entry struct {
	ep    *endpoint.Endpoint
	m     *matcher.Matcher
	order uint64
}

// Registry is the endpoint store.
type Registry struct {
	mu       sync.RWMutex
	cfg      Config
	entries  map[string]*entry   // by endpoint id
	byMethod map[string][]*entry // lookup scan lists, registration order
	orderSeq uint64

	cache   *lookupCache
	bus     *events.Bus
	checker AccessChecker
	metrics Metrics
	logger  zerolog.Logger
}

// New creates a registry.
func New(cfg Config, logger zerolog.Logger) *Registry {
	return &Registry{
		cfg:      cfg,
		entries:  make(map[string]*entry),
		byMethod: make(map[string][]*entry),
		cache:    newLookupCache(cfg.CacheSize),
		bus:      events.NewBus(logger),
		logger:   logger,
	}
}

// SetAccessChecker installs the RBAC engine.
func (r *Registry) SetAccessChecker(c AccessChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checker = c
}

// SetMetrics installs a lookup metrics sink.
func (r *Registry) SetMetrics(m Metrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = m
}

// Events returns the registry's event bus.
func (r *Registry) Events() *events.Bus { return r.bus }

// Register stores an endpoint and its compiled matcher. Re-registering
// an existing id replaces the prior entry atomically. Cached lookups
// that could plausibly match the new pattern are invalidated; the
// overlap check is intentionally conservative, over-invalidating
// rather than risking a stale hit.
func (r *Registry) Register(ep *endpoint.Endpoint) error {
	m, err := matcher.Compile(ep.Path)
	if err != nil {
		return err
	}

	r.mu.Lock()
	replaced := r.insertLocked(ep, m)
	r.mu.Unlock()

	r.invalidateOverlapping(m.StaticPrefix())

	eventType := events.TypeRegistered
	if replaced {
		eventType = events.TypeUpdated
	}
	r.bus.Publish(events.Event{Type: eventType, EndpointID: ep.ID, Payload: ep})
	r.logger.Debug().Str("id", ep.ID).Str("method", ep.Method).Str("path", ep.Path).Msg("endpoint registered")
	return nil
}

// RegisterBatch stores endpoints in bulk. The whole lookup cache is
// cleared instead of per-entry invalidation; batch registration
// happens on initial load and full rescans where most of the cache
// would be invalidated anyway.
func (r *Registry) RegisterBatch(eps []*endpoint.Endpoint) error {
	compiled := make([]*matcher.Matcher, len(eps))
	for i, ep := range eps {
		m, err := matcher.Compile(ep.Path)
		if err != nil {
			return err
		}
		compiled[i] = m
	}

	ids := make([]string, len(eps))
	r.mu.Lock()
	for i, ep := range eps {
		r.insertLocked(ep, compiled[i])
		ids[i] = ep.ID
	}
	r.mu.Unlock()

	r.cache.clear()
	r.bus.Publish(events.Event{Type: events.TypeBatchRegistered, EndpointIDs: ids})
	r.logger.Info().Int("count", len(eps)).Msg("endpoints batch registered")
	return nil
}

// Unregister removes an endpoint. Removing an unknown id is a no-op
// returning false.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	old, ok := r.entries[id]
	if ok {
		r.removeLocked(old)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	r.invalidateOverlapping(old.m.StaticPrefix())
	r.bus.Publish(events.Event{Type: events.TypeUnregistered, EndpointID: id, Payload: old.ep})
	return true
}

// Update replaces an endpoint. If the path changed the old matcher is
// removed entirely, so the former path no longer matches.
func (r *Registry) Update(ep *endpoint.Endpoint) error {
	m, err := matcher.Compile(ep.Path)
	if err != nil {
		return err
	}

	r.mu.Lock()
	oldPrefix := ""
	if old, ok := r.entries[ep.ID]; ok {
		oldPrefix = old.m.StaticPrefix()
	}
	r.insertLocked(ep, m)
	r.mu.Unlock()

	r.invalidateOverlapping(oldPrefix)
	r.invalidateOverlapping(m.StaticPrefix())

	r.bus.Publish(events.Event{Type: events.TypeUpdated, EndpointID: ep.ID, Payload: ep})
	return nil
}

// Clear removes every endpoint.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.entries = make(map[string]*entry)
	r.byMethod = make(map[string][]*entry)
	r.mu.Unlock()

	r.cache.clear()
	r.bus.Publish(events.Event{Type: events.TypeCleared})
}

// insertLocked stores an endpoint, replacing any prior entry with the
// same id. Caller holds the write lock.
func (r *Registry) insertLocked(ep *endpoint.Endpoint, m *matcher.Matcher) (replaced bool) {
	if old, ok := r.entries[ep.ID]; ok {
		r.removeLocked(old)
		replaced = true
	}

	r.orderSeq++
	e := &entry{ep: ep, m: m, order: r.orderSeq}
	r.entries[ep.ID] = e
	r.byMethod[ep.Method] = append(r.byMethod[ep.Method], e)
	return replaced
}

// removeLocked deletes an entry from both indexes. Caller holds the
// write lock.
func (r *Registry) removeLocked(e *entry) {
	delete(r.entries, e.ep.ID)

	list := r.byMethod[e.ep.Method]
	for i, candidate := range list {
		if candidate == e {
			r.byMethod[e.ep.Method] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// invalidateOverlapping drops cached lookups whose path overlaps a
// matcher's static prefix in either direction. An empty prefix (the
// pattern starts with a parameter) clears everything.
func (r *Registry) invalidateOverlapping(prefix string) {
	if prefix == "" {
		r.cache.clear()
		return
	}
	r.cache.invalidate(func(path string) bool {
		return strings.HasPrefix(path, prefix) || strings.HasPrefix(prefix, path)
	})
}

// Get returns an endpoint by id.
func (r *Registry) Get(id string) (*endpoint.Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.ep, true
}

// GetByPath finds the best-matching endpoint for a method and path.
// The highest specificity score wins; ties go to the first-registered
// matcher. Results, including explicit no-match, are cached.
func (r *Registry) GetByPath(method, path string) (*Match, bool) {
	start := time.Now()
	method = strings.ToUpper(method)
	path = matcher.NormalizePath(path, r.cfg.StrictTrailingSlash)
	key := cacheKey(method, path)

	if match, ok := r.cache.get(key); ok {
		r.observe(method, match != nil, true, time.Since(start))
		return match, match != nil
	}

	// Snapshot the cache generation before reading the endpoint set;
	// the put below is discarded if any invalidation ran in between.
	gen := r.cache.generation()

	r.mu.RLock()
	var best *Match
	var bestOrder uint64
	for _, e := range r.byMethod[method] {
		res, ok := e.m.Match(path)
		if !ok {
			continue
		}
		if best == nil || res.Score > best.Score || (res.Score == best.Score && e.order < bestOrder) {
			best = &Match{Endpoint: e.ep, Params: res.Params, Score: res.Score}
			bestOrder = e.order
		}
	}
	r.mu.RUnlock()

	r.cache.put(key, best, gen)
	r.observe(method, best != nil, false, time.Since(start))
	return best, best != nil
}

func (r *Registry) observe(method string, matched, cacheHit bool, d time.Duration) {
	r.mu.RLock()
	m := r.metrics
	r.mu.RUnlock()
	if m != nil {
		m.ObserveLookup(method, matched, cacheHit, d)
	}
}

// CheckAccess evaluates access for a registered endpoint. Unknown ids
// yield an explicit denied decision, never an error. Without an RBAC
// engine the minimal default applies: allow unless the endpoint
// requires authentication and the caller is unauthenticated.
func (r *Registry) CheckAccess(ctx context.Context, endpointID string, user *ports.User, params map[string]string) AccessDecision {
	ep, ok := r.Get(endpointID)
	if !ok {
		return AccessDecision{Allowed: false, Decision: "deny", Reason: "endpoint not found"}
	}

	r.mu.RLock()
	checker := r.checker
	r.mu.RUnlock()

	if checker != nil {
		return checker.Check(ctx, ep, user, params)
	}

	if ep.Access.RequiresAuth && (user == nil || !user.Authenticated) {
		return AccessDecision{Allowed: false, Decision: "requires_auth", Reason: "authentication required"}
	}
	return AccessDecision{Allowed: true, Decision: "allow", Reason: "default policy"}
}

// List returns all endpoints sorted by path then method.
func (r *Registry) List() []*endpoint.Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*endpoint.Endpoint, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.ep)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// ByTag returns endpoints carrying a tag.
func (r *Registry) ByTag(tag string) []*endpoint.Endpoint {
	return r.filter(func(ep *endpoint.Endpoint) bool {
		for _, t := range ep.Tags {
			if t == tag {
				return true
			}
		}
		return false
	})
}

// ByResource returns endpoints for a resource.
func (r *Registry) ByResource(resource string) []*endpoint.Endpoint {
	return r.filter(func(ep *endpoint.Endpoint) bool {
		return ep.Resource == resource
	})
}

func (r *Registry) filter(pred func(*endpoint.Endpoint) bool) []*endpoint.Endpoint {
	var out []*endpoint.Endpoint
	for _, ep := range r.List() {
		if pred(ep) {
			out = append(out, ep)
		}
	}
	return out
}

// Len returns the endpoint count.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Stats summarizes registry state.
type Stats struct {
	Endpoints   int            `json:"endpoints"`
	ByMethod    map[string]int `json:"byMethod"`
	ByTag       map[string]int `json:"byTag"`
	CacheHits   uint64         `json:"cacheHits"`
	CacheMisses uint64         `json:"cacheMisses"`
	CacheSize   int            `json:"cacheSize"`
	Listeners   int            `json:"listeners"`
}

// Stats returns current statistics.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	s := Stats{
		Endpoints: len(r.entries),
		ByMethod:  make(map[string]int),
		ByTag:     make(map[string]int),
	}
	for method, list := range r.byMethod {
		s.ByMethod[method] = len(list)
	}
	for _, e := range r.entries {
		for _, tag := range e.ep.Tags {
			s.ByTag[tag]++
		}
	}
	r.mu.RUnlock()

	s.CacheHits, s.CacheMisses, s.CacheSize = r.cache.stats()
	s.Listeners = r.bus.ListenerCount()
	return s
}
