// Package scanner discovers routes from a directory tree following
// the file naming convention: bracket syntax for dynamic segments,
// parentheses for access groups, and underscore-prefixed names for
// marker files and private entries.
//
// Scanning is two-pass: marker files (_schema, _middleware, _access)
// are collected first, then routes are emitted consulting the marker
// index. The ordering dependency is a hard barrier; route emission
// never starts before marker collection completes.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/routeforge/routeforge/domain/segment"
)

// FileType classifies a route file.
type FileType string

const (
	// FileCollection is an index file or a static-named file: the
	// route addresses a collection of resources.
	FileCollection FileType = "collection"

	// FileResource is a single-dynamic-segment file: the route
	// addresses one resource instance.
	FileResource FileType = "resource"

	// FileAction is a file whose base name is in the action
	// vocabulary, with the vocabulary's HTTP method set.
	FileAction FileType = "action"
)

// Route is one scanned route with derived metadata. Routes are
// immutable; a rescan produces a new list rather than mutating.
type Route struct {
	// FilePath is the route source file, relative to the scan root.
	FilePath string

	// URLPath is the generated URL pattern, e.g. "/api/users/:id".
	URLPath string

	// Segments are the parsed path components, including group and
	// private segments that do not contribute to the URL.
	Segments []segment.Parsed

	// Methods are the HTTP methods the route supports.
	Methods []string

	// FileType is the route classification.
	FileType FileType

	// ActionName is set for action routes, e.g. "search".
	ActionName string

	// ParamNames are the path parameter names in order.
	ParamNames []string

	// Resource is the route's primary resource name.
	Resource string

	// ParentResources are ancestor resource names, outermost first.
	ParentResources []string

	// GroupModifiers are the access modifiers from group segments,
	// outermost first.
	GroupModifiers []segment.GroupModifier

	// Marker file associations for the route's directory.
	HasSchema         bool
	HasMiddleware     bool
	HasAccessOverride bool
	SchemaPath        string
	MiddlewarePath    string
	AccessPath        string

	// Depth is the number of URL path segments.
	Depth int
}

// markerSet records marker file locations for one directory.
type markerSet struct {
	schema     string
	middleware string
	access     string
}

// Scanner walks a root directory and emits scanned routes.
type Scanner struct {
	cfg    Config
	logger zerolog.Logger
}

// New creates a scanner for a root directory.
func New(cfg Config, logger zerolog.Logger) *Scanner {
	cfg.applyDefaults()
	return &Scanner{cfg: cfg, logger: logger}
}

// Scan walks the tree and returns routes in deterministic order:
// ascending nesting depth first, then lexicographic URL path. The
// context bounds wall-clock scan time; an expired context aborts the
// scan with the context's error.
func (s *Scanner) Scan(ctx context.Context) ([]Route, error) {
	markers, err := s.collectMarkers(ctx)
	if err != nil {
		return nil, err
	}

	routes, err := s.emitRoutes(ctx, markers)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(routes, func(i, j int) bool {
		if routes[i].Depth != routes[j].Depth {
			return routes[i].Depth < routes[j].Depth
		}
		return routes[i].URLPath < routes[j].URLPath
	})

	return routes, nil
}

// collectMarkers is pass 1: it records schema/middleware/access
// marker files keyed by directory. Private directories are walked
// too; marker files are honored everywhere.
func (s *Scanner) collectMarkers(ctx context.Context) (map[string]markerSet, error) {
	markers := make(map[string]markerSet)

	err := filepath.WalkDir(s.cfg.Root, func(p string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("path", p).Msg("scan: unreadable entry, skipping")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		// Markers are matched by base name regardless of extension;
		// schema and access files are typically YAML while handler
		// files use the configured extensions.
		base := baseName(p)
		rel, relErr := filepath.Rel(s.cfg.Root, filepath.Dir(p))
		if relErr != nil {
			return nil
		}
		dir := filepath.ToSlash(rel)

		ms := markers[dir]
		switch base {
		case s.cfg.SchemaMarker:
			ms.schema = s.relPath(p)
		case s.cfg.MiddlewareMarker:
			ms.middleware = s.relPath(p)
		case s.cfg.AccessMarker:
			ms.access = s.relPath(p)
		default:
			return nil
		}
		markers[dir] = ms
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect markers: %w", err)
	}

	return markers, nil
}

// emitRoutes is pass 2: the recursive walk building routes from the
// marker index produced by pass 1.
func (s *Scanner) emitRoutes(ctx context.Context, markers map[string]markerSet) ([]Route, error) {
	var routes []Route

	err := filepath.WalkDir(s.cfg.Root, func(p string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("path", p).Msg("scan: unreadable entry, skipping")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if p != s.cfg.Root && strings.HasPrefix(d.Name(), segment.PrivatePrefix) {
				return fs.SkipDir
			}
			return nil
		}

		if !s.cfg.matchesExtension(p) || s.ignored(p) {
			return nil
		}

		base := baseName(p)
		if base == s.cfg.SchemaMarker || base == s.cfg.MiddlewareMarker || base == s.cfg.AccessMarker {
			return nil
		}
		if strings.HasPrefix(base, segment.PrivatePrefix) {
			return nil
		}

		route, ok := s.buildRoute(p, base, markers)
		if ok {
			routes = append(routes, route)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("emit routes: %w", err)
	}

	return routes, nil
}

// buildRoute assembles one route from a file path.
func (s *Scanner) buildRoute(p, base string, markers map[string]markerSet) (Route, bool) {
	relDir, err := filepath.Rel(s.cfg.Root, filepath.Dir(p))
	if err != nil {
		s.logger.Warn().Err(err).Str("path", p).Msg("scan: cannot relativize, skipping")
		return Route{}, false
	}
	dir := filepath.ToSlash(relDir)

	var segs []segment.Parsed
	if dir != "." {
		for _, comp := range strings.Split(dir, "/") {
			segs = append(segs, segment.Parse(comp))
		}
	}

	route := Route{FilePath: s.relPath(p)}

	fileSeg := segment.Parse(base)
	switch {
	case base == s.cfg.IndexName:
		route.FileType = FileCollection
		route.Methods = append([]string(nil), s.cfg.CollectionMethods...)

	case fileSeg.IsParam():
		route.FileType = FileResource
		route.Methods = append([]string(nil), s.cfg.ResourceMethods...)
		segs = append(segs, fileSeg)

	default:
		if methods, ok := s.cfg.Actions[strings.ToLower(base)]; ok {
			route.FileType = FileAction
			route.ActionName = strings.ToLower(base)
			route.Methods = append([]string(nil), methods...)
		} else {
			route.FileType = FileCollection
			route.Methods = append([]string(nil), s.cfg.CollectionMethods...)
		}
		segs = append(segs, fileSeg)
	}

	route.Segments = segs

	var tokens []string
	for _, seg := range segs {
		if token := seg.PathToken(); token != "" {
			tokens = append(tokens, token)
		}
		if seg.IsParam() {
			route.ParamNames = append(route.ParamNames, seg.ParamName)
		}
		if seg.Type == segment.TypeGroup && seg.Modifier != nil {
			route.GroupModifiers = append(route.GroupModifiers, *seg.Modifier)
		}
	}

	route.URLPath = "/" + strings.Join(tokens, "/")
	route.Depth = len(tokens)
	route.Resource, route.ParentResources = resourceLineage(segs)

	if ms, ok := markers[dir]; ok {
		route.HasSchema = ms.schema != ""
		route.SchemaPath = ms.schema
		route.HasMiddleware = ms.middleware != ""
		route.MiddlewarePath = ms.middleware
		route.HasAccessOverride = ms.access != ""
		route.AccessPath = ms.access
	}

	return route, true
}

// resourceLineage derives the primary resource and its ancestors
// from parsed segments. A static segment immediately followed by a
// parameter is a resource; the final static segment is the primary
// resource when no parameter follows it.
func resourceLineage(segs []segment.Parsed) (primary string, parents []string) {
	var resources []string
	lastStatic := ""
	lastIsResource := false

	for i, seg := range segs {
		if seg.Type != segment.TypeStatic {
			continue
		}
		lastStatic = seg.Name
		lastIsResource = i+1 < len(segs) && segs[i+1].IsParam()
		if lastIsResource {
			resources = append(resources, seg.Name)
		}
	}
	if lastStatic != "" && !lastIsResource {
		resources = append(resources, lastStatic)
	}

	if len(resources) == 0 {
		return "", nil
	}
	return resources[len(resources)-1], resources[:len(resources)-1]
}

// ignored checks the configured ignore globs against the base name
// and the root-relative path.
func (s *Scanner) ignored(p string) bool {
	rel := s.relPath(p)
	base := filepath.Base(p)
	for _, glob := range s.cfg.IgnoreGlobs {
		if ok, _ := path.Match(glob, base); ok {
			return true
		}
		if ok, _ := path.Match(glob, rel); ok {
			return true
		}
	}
	return false
}

func (s *Scanner) relPath(p string) string {
	rel, err := filepath.Rel(s.cfg.Root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

// baseName strips the directory and extension from a file path.
func baseName(p string) string {
	base := filepath.Base(p)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
