package registry

import (
	"github.com/routeforge/routeforge/core/events"
	"github.com/routeforge/routeforge/core/matcher"
	"github.com/routeforge/routeforge/domain/endpoint"
)

// Diff is the delta between the registry's current contents and a
// desired endpoint set, computed for hot reload.
type Diff struct {
	Added   []*endpoint.Endpoint
	Updated []*endpoint.Endpoint
	Removed []string
}

// Empty reports whether the diff carries no changes.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}

// ComputeDiff compares the registry against a desired endpoint set.
// Endpoints are matched by id; an existing endpoint counts as updated
// only when its comparable fields differ.
func (r *Registry) ComputeDiff(desired []*endpoint.Endpoint) Diff {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var d Diff
	seen := make(map[string]bool, len(desired))

	for _, ep := range desired {
		seen[ep.ID] = true
		existing, ok := r.entries[ep.ID]
		switch {
		case !ok:
			d.Added = append(d.Added, ep)
		case !existing.ep.Equal(ep):
			d.Updated = append(d.Updated, ep)
		}
	}

	for id := range r.entries {
		if !seen[id] {
			d.Removed = append(d.Removed, id)
		}
	}

	return d
}

// ApplyDiff applies a diff atomically: all mutations happen under one
// write lock, so a concurrent lookup sees either the old set or the
// new set, never a mix. Events are emitted after the lock is released.
func (r *Registry) ApplyDiff(d Diff) error {
	if d.Empty() {
		return nil
	}

	type pending struct {
		ep *endpoint.Endpoint
		m  *matcher.Matcher
	}

	// Compile outside the lock so a bad pattern cannot leave the
	// registry half-mutated.
	compile := func(eps []*endpoint.Endpoint) ([]pending, error) {
		out := make([]pending, len(eps))
		for i, ep := range eps {
			m, err := matcher.Compile(ep.Path)
			if err != nil {
				return nil, err
			}
			out[i] = pending{ep: ep, m: m}
		}
		return out, nil
	}

	added, err := compile(d.Added)
	if err != nil {
		return err
	}
	updated, err := compile(d.Updated)
	if err != nil {
		return err
	}

	r.mu.Lock()
	for _, id := range d.Removed {
		if e, ok := r.entries[id]; ok {
			r.removeLocked(e)
		}
	}
	for _, p := range added {
		r.insertLocked(p.ep, p.m)
	}
	for _, p := range updated {
		r.insertLocked(p.ep, p.m)
	}
	r.mu.Unlock()

	r.cache.clear()

	for _, id := range d.Removed {
		r.bus.Publish(events.Event{Type: events.TypeUnregistered, EndpointID: id})
	}
	for _, p := range added {
		r.bus.Publish(events.Event{Type: events.TypeRegistered, EndpointID: p.ep.ID, Payload: p.ep})
	}
	for _, p := range updated {
		r.bus.Publish(events.Event{Type: events.TypeUpdated, EndpointID: p.ep.ID, Payload: p.ep})
	}

	r.logger.Info().
		Int("added", len(d.Added)).
		Int("updated", len(d.Updated)).
		Int("removed", len(d.Removed)).
		Msg("registry diff applied")
	return nil
}

// Reconcile computes and applies the diff against a desired set.
func (r *Registry) Reconcile(desired []*endpoint.Endpoint) (Diff, error) {
	d := r.ComputeDiff(desired)
	if err := r.ApplyDiff(d); err != nil {
		return Diff{}, err
	}
	return d, nil
}
