package endpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrHandlerNotFound is returned when a handler cannot be resolved
// for an endpoint's file path and export name.
var ErrHandlerNotFound = errors.New("handler not found")

// HandlerState tracks the lifecycle of a lazily-bound handler.
type HandlerState int

const (
	// HandlerPending means resolution has not been attempted yet.
	HandlerPending HandlerState = iota

	// HandlerResolved means the handler function is available.
	HandlerResolved

	// HandlerFailed means resolution was attempted and failed.
	// The failure is remembered and returned on every invocation.
	HandlerFailed
)

// LoadFunc resolves a handler from a source file and export name.
type LoadFunc func(ctx context.Context, filePath, export string) (HandlerFunc, error)

// HandlerRef is a lazily-bound handler reference. Resolution happens
// on first invocation, never at generation time, so a missing handler
// only surfaces when the endpoint is actually called. The pending,
// resolved, and failed states are explicit so callers can distinguish
// "not yet resolved" from "resolution failed".
type HandlerRef struct {
	mu sync.Mutex

	filePath string
	export   string
	load     LoadFunc

	state HandlerState
	fn    HandlerFunc
	err   error
}

// NewHandlerRef creates a pending handler reference.
func NewHandlerRef(filePath, export string, load LoadFunc) *HandlerRef {
	return &HandlerRef{filePath: filePath, export: export, load: load}
}

// ResolvedHandlerRef creates an already-resolved reference, used when
// the handler function is known up front (tests, embedded handlers).
func ResolvedHandlerRef(fn HandlerFunc) *HandlerRef {
	return &HandlerRef{state: HandlerResolved, fn: fn}
}

// FilePath returns the source file the handler binds to.
func (h *HandlerRef) FilePath() string { return h.filePath }

// Export returns the export name the handler binds to.
func (h *HandlerRef) Export() string { return h.export }

// State returns the current resolution state.
func (h *HandlerRef) State() HandlerState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Resolve returns the handler function, resolving it on first call.
// The outcome is memoized: a successful resolution is reused, and a
// failed one is returned as the same error on every subsequent call.
func (h *HandlerRef) Resolve(ctx context.Context) (HandlerFunc, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case HandlerResolved:
		return h.fn, nil
	case HandlerFailed:
		return nil, h.err
	}

	if h.load == nil {
		h.state = HandlerFailed
		h.err = fmt.Errorf("%w: no loader for %s#%s", ErrHandlerNotFound, h.filePath, h.export)
		return nil, h.err
	}

	fn, err := h.load(ctx, h.filePath, h.export)
	if err != nil {
		h.state = HandlerFailed
		h.err = fmt.Errorf("resolve %s#%s: %w", h.filePath, h.export, err)
		return nil, h.err
	}
	if fn == nil {
		h.state = HandlerFailed
		h.err = fmt.Errorf("%w: %s#%s", ErrHandlerNotFound, h.filePath, h.export)
		return nil, h.err
	}

	h.state = HandlerResolved
	h.fn = fn
	return fn, nil
}

// Invoke resolves the handler and calls it with the endpoint's
// middleware chain applied in ascending priority order.
func (e *Endpoint) Invoke(ctx context.Context, req *Request) (*Response, error) {
	if e.Handler == nil {
		return nil, fmt.Errorf("%w: endpoint %s has no handler", ErrHandlerNotFound, e.ID)
	}

	fn, err := e.Handler.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	for i := len(e.Middleware) - 1; i >= 0; i-- {
		if e.Middleware[i].Func != nil {
			fn = e.Middleware[i].Func(fn)
		}
	}

	return fn(ctx, req)
}
