package endpoint

import (
	"reflect"
	"strings"

	"github.com/routeforge/routeforge/domain/access"
)

// Endpoint is one generated REST endpoint, the unit of registration.
// Endpoints are immutable once generated; a rescan produces new
// values rather than mutating registered ones.
type Endpoint struct {
	// ID is derived deterministically from method+path and is unique
	// within a registry.
	ID string `json:"id"`

	Method string `json:"method"`
	Path   string `json:"path"`

	// Summary and Description are display metadata from the
	// per-method template table.
	Summary     string `json:"summary,omitempty"`
	Description string `json:"description,omitempty"`

	// Resource is the endpoint's primary resource name.
	Resource string `json:"resource,omitempty"`

	// OperationID names the operation in the OpenAPI document.
	OperationID string `json:"operationId,omitempty"`

	Access access.Computed `json:"access"`

	// Handler is the lazily-bound handler reference.
	Handler *HandlerRef `json:"-"`

	PathParams  []Param `json:"pathParams,omitempty"`
	QueryParams []Param `json:"queryParams,omitempty"`

	RequestSchema  Schema `json:"requestSchema,omitempty"`
	ResponseSchema Schema `json:"responseSchema,omitempty"`

	Middleware []MiddlewareSpec `json:"-"`

	Tags []string `json:"tags,omitempty"`

	// FilePath is the source file the endpoint was generated from.
	FilePath string `json:"filePath,omitempty"`
}

// ID derives the deterministic endpoint identifier for a method and
// path: lower(method) + "_" + sanitized(path).
func ID(method, path string) string {
	return strings.ToLower(method) + "_" + sanitizePath(path)
}

// sanitizePath flattens a path pattern into an identifier-safe form:
// "/api/users/:id" becomes "api_users_id".
func sanitizePath(path string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range path {
		switch {
		case r == '/' || r == '-' || r == '.':
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		case r == ':' || r == '?' || r == '*' || r == '{' || r == '}':
			// Parameter markers do not contribute characters.
		default:
			b.WriteRune(r)
			lastUnderscore = false
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// Equal reports whether two endpoints are equivalent for hot-reload
// diffing. Handler references and middleware functions are excluded;
// they are rebound on every generation pass.
func (e *Endpoint) Equal(other *Endpoint) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.ID == other.ID &&
		e.Method == other.Method &&
		e.Path == other.Path &&
		e.Summary == other.Summary &&
		e.Description == other.Description &&
		e.Resource == other.Resource &&
		e.OperationID == other.OperationID &&
		e.FilePath == other.FilePath &&
		reflect.DeepEqual(e.Access, other.Access) &&
		reflect.DeepEqual(e.PathParams, other.PathParams) &&
		reflect.DeepEqual(e.QueryParams, other.QueryParams) &&
		reflect.DeepEqual(e.RequestSchema, other.RequestSchema) &&
		reflect.DeepEqual(e.ResponseSchema, other.ResponseSchema) &&
		reflect.DeepEqual(e.Tags, other.Tags) &&
		len(e.Middleware) == len(other.Middleware)
}
