// Package audit records access-control decisions for later review.
// Stores are append-only; the memory store is a bounded ring for
// tests and small deployments, the sqlite store persists.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is one access decision: who asked, what the endpoint
// demanded, and the full outcome.
type Record struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	EndpointID string    `json:"endpointId"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	UserID     string    `json:"userId,omitempty"`

	// Roles are the caller's roles at evaluation time.
	Roles []string `json:"roles,omitempty"`

	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
	Allowed  bool   `json:"allowed"`

	// RequiredPermissions is the permission set the check demanded,
	// explicit or derived. Missing* name the unmet requirements on a
	// denial.
	RequiredPermissions []string `json:"requiredPermissions,omitempty"`
	MissingRoles        []string `json:"missingRoles,omitempty"`
	MissingPermissions  []string `json:"missingPermissions,omitempty"`

	CacheHit bool          `json:"cacheHit"`
	Duration time.Duration `json:"duration"`
}

// Fill assigns an id and timestamp when unset.
func (r *Record) Fill() {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
}

// Store is an append-only audit sink.
type Store interface {
	Append(ctx context.Context, rec Record) error
}

// Query selects records from a queryable store.
type Query struct {
	EndpointID string
	UserID     string
	Since      time.Time
	Limit      int
}

// MemoryStore is a bounded in-memory ring of recent records.
type MemoryStore struct {
	mu      sync.RWMutex
	max     int
	records []Record
	next    int
	full    bool
}

// NewMemoryStore creates a ring holding at most max records.
func NewMemoryStore(max int) *MemoryStore {
	if max <= 0 {
		max = 1000
	}
	return &MemoryStore{max: max, records: make([]Record, max)}
}

// Append stores a record, evicting the oldest when full.
func (s *MemoryStore) Append(_ context.Context, rec Record) error {
	rec.Fill()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[s.next] = rec
	s.next = (s.next + 1) % s.max
	if s.next == 0 {
		s.full = true
	}
	return nil
}

// List returns matching records, newest first.
func (s *MemoryStore) List(_ context.Context, q Query) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := s.next
	if s.full {
		count = s.max
	}

	var out []Record
	for i := 0; i < count; i++ {
		// Walk backwards from the most recently written slot.
		idx := (s.next - 1 - i + s.max) % s.max
		rec := s.records[idx]

		if q.EndpointID != "" && rec.EndpointID != q.EndpointID {
			continue
		}
		if q.UserID != "" && rec.UserID != q.UserID {
			continue
		}
		if !q.Since.IsZero() && rec.Timestamp.Before(q.Since) {
			continue
		}

		out = append(out, rec)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.full {
		return s.max
	}
	return s.next
}
