// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"

	"github.com/routeforge/routeforge/domain/access"
	"github.com/routeforge/routeforge/domain/endpoint"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// Hasher abstracts key hashing for the identity adapters.
type Hasher interface {
	// Hash generates a hash from plaintext.
	Hash(plaintext string) ([]byte, error)
	// Compare checks if plaintext matches hash.
	Compare(hash []byte, plaintext string) bool
}

// -----------------------------------------------------------------------------
// Resolver Ports
// -----------------------------------------------------------------------------

// HandlerResolver resolves a handler function from a route source
// file and the export name for one HTTP method. Resolution failures
// surface only when the endpoint is invoked, never at generation time.
type HandlerResolver interface {
	ResolveHandler(ctx context.Context, filePath, export string) (endpoint.HandlerFunc, error)
}

// MethodSchemas holds the resolved schemas for one HTTP method.
type MethodSchemas struct {
	Request     endpoint.Schema
	Response    endpoint.Schema
	QueryParams []endpoint.Param
}

// SchemaResolver resolves a schema marker file into per-method
// request/response schemas and query parameter descriptors.
type SchemaResolver interface {
	ResolveSchemas(ctx context.Context, schemaFilePath string) (map[string]MethodSchemas, error)
}

// NamedMiddleware is one middleware produced by a resolver, in
// declaration order.
type NamedMiddleware struct {
	Name string
	Func endpoint.Middleware
}

// MiddlewareResolver resolves a middleware marker file into an
// ordered list of middleware functions.
type MiddlewareResolver interface {
	ResolveMiddleware(ctx context.Context, middlewareFilePath string) ([]NamedMiddleware, error)
}

// AccessResolver resolves an access-override marker file into a
// partial access requirement.
type AccessResolver interface {
	ResolveAccess(ctx context.Context, accessFilePath string) (access.Override, error)
}

// -----------------------------------------------------------------------------
// Identity Ports
// -----------------------------------------------------------------------------

// User is the caller identity evaluated by the RBAC engine.
type User struct {
	ID            string
	Roles         []string
	Authenticated bool

	// Claims carries extra identity attributes for checkers.
	Claims map[string]any
}

// HasRole reports whether the user carries a role locally. Checkers
// may consult external systems instead; this is the in-memory view.
func (u *User) HasRole(role string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// PermissionChecker answers whether a user holds a permission.
// A returned error is treated as a failed check, never as fatal.
type PermissionChecker interface {
	HasPermission(ctx context.Context, user *User, permission string, extra map[string]any) (bool, error)
}

// RoleChecker answers whether a user holds a role.
type RoleChecker interface {
	HasRole(ctx context.Context, user *User, role string) (bool, error)
}

// OwnershipChecker answers whether a user owns a resource instance.
type OwnershipChecker interface {
	Owns(ctx context.Context, user *User, resourceType, resourceID, ownerField string) (bool, error)
}

// -----------------------------------------------------------------------------
// Function adapters
// -----------------------------------------------------------------------------

// HandlerResolverFunc adapts a function to HandlerResolver.
type HandlerResolverFunc func(ctx context.Context, filePath, export string) (endpoint.HandlerFunc, error)

func (f HandlerResolverFunc) ResolveHandler(ctx context.Context, filePath, export string) (endpoint.HandlerFunc, error) {
	return f(ctx, filePath, export)
}

// PermissionCheckerFunc adapts a function to PermissionChecker.
type PermissionCheckerFunc func(ctx context.Context, user *User, permission string, extra map[string]any) (bool, error)

func (f PermissionCheckerFunc) HasPermission(ctx context.Context, user *User, permission string, extra map[string]any) (bool, error) {
	return f(ctx, user, permission, extra)
}

// RoleCheckerFunc adapts a function to RoleChecker.
type RoleCheckerFunc func(ctx context.Context, user *User, role string) (bool, error)

func (f RoleCheckerFunc) HasRole(ctx context.Context, user *User, role string) (bool, error) {
	return f(ctx, user, role)
}

// OwnershipCheckerFunc adapts a function to OwnershipChecker.
type OwnershipCheckerFunc func(ctx context.Context, user *User, resourceType, resourceID, ownerField string) (bool, error)

func (f OwnershipCheckerFunc) Owns(ctx context.Context, user *User, resourceType, resourceID, ownerField string) (bool, error) {
	return f(ctx, user, resourceType, resourceID, ownerField)
}
