// Package endpoint defines the generated endpoint value type, the
// unit of registration in the registry, and the lazily-bound handler
// reference.
package endpoint

import (
	"context"
	"net/http"
	"net/url"
)

// HandlerFunc is the resolved handler for one endpoint.
type HandlerFunc func(ctx context.Context, req *Request) (*Response, error)

// Middleware wraps a handler with cross-cutting behavior.
type Middleware func(next HandlerFunc) HandlerFunc

// Request carries the matched request data into a handler.
type Request struct {
	Method string
	Path   string

	// Params are the extracted path parameters.
	Params map[string]string

	Query  url.Values
	Header http.Header
	Body   []byte

	// UserID is the authenticated caller, empty for anonymous requests.
	UserID string
}

// Response is the handler result.
type Response struct {
	Status int
	Header http.Header
	Body   any
}

// ParamLocation distinguishes path and query parameters.
type ParamLocation string

const (
	InPath  ParamLocation = "path"
	InQuery ParamLocation = "query"
)

// Param describes one path or query parameter.
type Param struct {
	Name        string        `json:"name" yaml:"name"`
	In          ParamLocation `json:"in" yaml:"in"`
	Required    bool          `json:"required" yaml:"required"`
	Type        string        `json:"type,omitempty" yaml:"type"`
	Description string        `json:"description,omitempty" yaml:"description"`
}

// Schema is a JSON-schema-like structure resolved from a schema
// marker file. The shape is opaque to the core pipeline; it flows
// through to the OpenAPI document unchanged.
type Schema map[string]any

// MiddlewareSpec is one resolved middleware with its declaration-order
// priority (ascending; lower runs first).
type MiddlewareSpec struct {
	Name     string
	Priority int
	Func     Middleware
}
