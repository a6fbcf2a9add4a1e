// Package generator turns scanned routes into fully-specified
// endpoints: identifier, display metadata, computed access, parameter
// descriptors, and lazily-bound handler references.
package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/routeforge/routeforge/core/scanner"
	"github.com/routeforge/routeforge/domain/access"
	"github.com/routeforge/routeforge/domain/endpoint"
	"github.com/routeforge/routeforge/domain/segment"
	"github.com/routeforge/routeforge/ports"
)

// Resolvers are the injected callbacks used during generation.
// Handler resolution is lazy and may be nil-tolerant; the schema,
// middleware, and access resolvers run eagerly because they shape
// the generated endpoint.
type Resolvers struct {
	Handler    ports.HandlerResolver
	Schema     ports.SchemaResolver
	Middleware ports.MiddlewareResolver
	Access     ports.AccessResolver
}

// Generator produces endpoints from scanned routes.
type Generator struct {
	resolvers Resolvers
	logger    zerolog.Logger
}

// New creates a generator.
func New(resolvers Resolvers, logger zerolog.Logger) *Generator {
	return &Generator{resolvers: resolvers, logger: logger}
}

// Generate produces one endpoint per (route, method) pair. Schema,
// middleware, and access-override resolution failures fail generation
// immediately; handler resolution is deferred until invocation.
func (g *Generator) Generate(ctx context.Context, routes []scanner.Route) ([]*endpoint.Endpoint, error) {
	var endpoints []*endpoint.Endpoint

	for i := range routes {
		eps, err := g.generateRoute(ctx, &routes[i])
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", routes[i].URLPath, err)
		}
		endpoints = append(endpoints, eps...)
	}

	return endpoints, nil
}

func (g *Generator) generateRoute(ctx context.Context, route *scanner.Route) ([]*endpoint.Endpoint, error) {
	baseAccess := access.Compute(route.GroupModifiers)

	var override access.Override
	if route.HasAccessOverride && g.resolvers.Access != nil {
		o, err := g.resolvers.Access.ResolveAccess(ctx, route.AccessPath)
		if err != nil {
			return nil, fmt.Errorf("resolve access override %s: %w", route.AccessPath, err)
		}
		if o.Source == "" {
			o.Source = route.AccessPath
		}
		override = o
	}

	var schemas map[string]ports.MethodSchemas
	if route.HasSchema && g.resolvers.Schema != nil {
		resolved, err := g.resolvers.Schema.ResolveSchemas(ctx, route.SchemaPath)
		if err != nil {
			return nil, fmt.Errorf("resolve schemas %s: %w", route.SchemaPath, err)
		}
		schemas = resolved
	}

	var middleware []endpoint.MiddlewareSpec
	if route.HasMiddleware && g.resolvers.Middleware != nil {
		resolved, err := g.resolvers.Middleware.ResolveMiddleware(ctx, route.MiddlewarePath)
		if err != nil {
			return nil, fmt.Errorf("resolve middleware %s: %w", route.MiddlewarePath, err)
		}
		// Priority is declaration order, ascending.
		for i, mw := range resolved {
			middleware = append(middleware, endpoint.MiddlewareSpec{
				Name:     mw.Name,
				Priority: i,
				Func:     mw.Func,
			})
		}
	}

	pathParams := paramSpecs(route)

	endpoints := make([]*endpoint.Endpoint, 0, len(route.Methods))
	for _, method := range route.Methods {
		method = strings.ToUpper(method)

		ep := &endpoint.Endpoint{
			ID:         endpoint.ID(method, route.URLPath),
			Method:     method,
			Path:       route.URLPath,
			Resource:   route.Resource,
			Access:     g.computeAccess(route, baseAccess, override),
			PathParams: pathParams,
			Middleware: middleware,
			FilePath:   route.FilePath,
		}
		ep.OperationID = ep.ID
		ep.Summary, ep.Description = describe(route, method)
		if route.Resource != "" {
			ep.Tags = []string{route.Resource}
		}

		if ms, ok := schemas[method]; ok {
			ep.RequestSchema = ms.Request
			ep.ResponseSchema = ms.Response
			ep.QueryParams = ms.QueryParams
		}

		ep.Handler = endpoint.NewHandlerRef(route.FilePath, method, g.loadFunc())
		endpoints = append(endpoints, ep)

		g.logger.Debug().
			Str("id", ep.ID).
			Str("method", method).
			Str("path", ep.Path).
			Msg("endpoint generated")
	}

	return endpoints, nil
}

// computeAccess merges the override over the folded group modifiers
// and fills ownership defaults from the route shape.
func (g *Generator) computeAccess(route *scanner.Route, base access.Computed, override access.Override) access.Computed {
	merged := access.Merge(base, override)

	if merged.Ownership != nil {
		own := *merged.Ownership
		if own.ResourceType == "" {
			own.ResourceType = route.Resource
		}
		if own.ParamName == "" && len(route.ParamNames) > 0 {
			own.ParamName = route.ParamNames[len(route.ParamNames)-1]
		}
		merged.Ownership = &own
	}

	return merged
}

// loadFunc bridges the injected handler resolver into the lazy
// handler reference. A nil resolver yields a reference that fails
// with handler-not-found on first invocation.
func (g *Generator) loadFunc() endpoint.LoadFunc {
	if g.resolvers.Handler == nil {
		return nil
	}
	return func(ctx context.Context, filePath, export string) (endpoint.HandlerFunc, error) {
		return g.resolvers.Handler.ResolveHandler(ctx, filePath, export)
	}
}

// paramSpecs builds path parameter descriptors from the route's
// segments.
func paramSpecs(route *scanner.Route) []endpoint.Param {
	var specs []endpoint.Param
	for _, seg := range route.Segments {
		if !seg.IsParam() {
			continue
		}
		spec := endpoint.Param{
			Name:     seg.ParamName,
			In:       endpoint.InPath,
			Required: !seg.Optional && seg.Type != segment.TypeCatchAll,
			Type:     "string",
		}
		if seg.Type == segment.TypeCatchAll {
			spec.Description = "Remaining path segments"
		}
		specs = append(specs, spec)
	}
	return specs
}

// describe applies the per-method display template table.
func describe(route *scanner.Route, method string) (summary, description string) {
	singular := singularize(route.Resource)
	plural := pluralize(singular)

	if route.FileType == scanner.FileAction {
		action := title(route.ActionName)
		return fmt.Sprintf("%s %s", action, plural),
			fmt.Sprintf("Executes the %s action on %s.", route.ActionName, plural)
	}

	isResource := route.FileType == scanner.FileResource

	switch method {
	case "GET", "HEAD":
		if isResource {
			return "Get " + singular, fmt.Sprintf("Returns a single %s by id.", singular)
		}
		return "List " + plural, fmt.Sprintf("Returns a list of %s.", plural)
	case "POST":
		return "Create " + singular, fmt.Sprintf("Creates a new %s.", singular)
	case "PUT", "PATCH":
		return "Update " + singular, fmt.Sprintf("Updates an existing %s.", singular)
	case "DELETE":
		return "Delete " + singular, fmt.Sprintf("Deletes a %s.", singular)
	default:
		return fmt.Sprintf("%s %s", method, route.URLPath), ""
	}
}
