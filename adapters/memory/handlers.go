// Package memory provides in-memory adapter implementations: the
// handler and middleware registries code wires up at startup, and
// map-backed permission, role, and ownership checkers.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/routeforge/routeforge/domain/endpoint"
	"github.com/routeforge/routeforge/ports"
)

// HandlerRegistry maps route files to their per-method handler
// functions. Applications register handlers under the route file path
// the scanner reports; the generator's lazy handler references call
// ResolveHandler on first invocation.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]endpoint.HandlerFunc
}

// NewHandlerRegistry creates an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]endpoint.HandlerFunc)}
}

func handlerKey(filePath, export string) string {
	return filePath + "#" + export
}

// Register binds a handler to a route file and HTTP method export.
func (r *HandlerRegistry) Register(filePath, export string, fn endpoint.HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[handlerKey(filePath, export)] = fn
}

// ResolveHandler implements ports.HandlerResolver.
func (r *HandlerRegistry) ResolveHandler(_ context.Context, filePath, export string) (endpoint.HandlerFunc, error) {
	r.mu.RLock()
	fn, ok := r.handlers[handlerKey(filePath, export)]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%s %s: %w", export, filePath, endpoint.ErrHandlerNotFound)
	}
	return fn, nil
}

// Len returns the number of registered handlers.
func (r *HandlerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// MiddlewareRegistry maps middleware marker files to their ordered
// middleware chains.
type MiddlewareRegistry struct {
	mu     sync.RWMutex
	chains map[string][]ports.NamedMiddleware
}

// NewMiddlewareRegistry creates an empty registry.
func NewMiddlewareRegistry() *MiddlewareRegistry {
	return &MiddlewareRegistry{chains: make(map[string][]ports.NamedMiddleware)}
}

// Register appends a named middleware to a marker file's chain.
// Registration order is declaration order.
func (r *MiddlewareRegistry) Register(markerPath, name string, mw endpoint.Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains[markerPath] = append(r.chains[markerPath], ports.NamedMiddleware{Name: name, Func: mw})
}

// ResolveMiddleware implements ports.MiddlewareResolver. An unknown
// marker path resolves to an empty chain, not an error; the marker
// file's presence drives resolution, registration is optional.
func (r *MiddlewareRegistry) ResolveMiddleware(_ context.Context, markerPath string) ([]ports.NamedMiddleware, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ports.NamedMiddleware(nil), r.chains[markerPath]...), nil
}

var (
	_ ports.HandlerResolver    = (*HandlerRegistry)(nil)
	_ ports.MiddlewareResolver = (*MiddlewareRegistry)(nil)
)
