package scanner_test

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/routeforge/routeforge/core/scanner"
)

// writeTree creates empty files under root, creating directories as
// needed. Paths use forward slashes.
func writeTree(t *testing.T, root string, paths ...string) {
	t.Helper()
	for _, p := range paths {
		full := filepath.Join(root, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte("package routes\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func scanRoot(t *testing.T, root string, cfg scanner.Config) []scanner.Route {
	t.Helper()
	cfg.Root = root
	s := scanner.New(cfg, zerolog.Nop())
	routes, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	return routes
}

func urlPaths(routes []scanner.Route) []string {
	out := make([]string, len(routes))
	for i, r := range routes {
		out[i] = r.URLPath
	}
	return out
}

func TestScan_BasicConvention(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"api/users/index.go",
		"api/users/[id].go",
		"api/users/search.go",
		"api/posts/[id]/comments/index.go",
	)

	routes := scanRoot(t, root, scanner.Config{})

	got := urlPaths(routes)
	want := []string{
		"/api/users",
		"/api/users/:id",
		"/api/users/search",
		"/api/posts/:id/comments",
	}
	sort.Strings(got)
	sort.Strings(want)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("paths = %v, want %v", got, want)
	}
}

func TestScan_Classification(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"users/index.go",
		"users/[id].go",
		"users/search.go",
		"users/export.go",
		"users/profile.go",
	)

	routes := scanRoot(t, root, scanner.Config{})
	byPath := make(map[string]scanner.Route)
	for _, r := range routes {
		byPath[r.URLPath] = r
	}

	if r := byPath["/users"]; r.FileType != scanner.FileCollection {
		t.Errorf("/users type = %q", r.FileType)
	}
	if r := byPath["/users/:id"]; r.FileType != scanner.FileResource {
		t.Errorf("/users/:id type = %q", r.FileType)
	}
	if r := byPath["/users/search"]; r.FileType != scanner.FileAction || r.ActionName != "search" {
		t.Errorf("/users/search = %+v", r)
	}
	if got := byPath["/users/search"].Methods; !reflect.DeepEqual(got, []string{"GET"}) {
		t.Errorf("search methods = %v", got)
	}
	// Unknown static name defaults to collection.
	if r := byPath["/users/profile"]; r.FileType != scanner.FileCollection {
		t.Errorf("/users/profile type = %q", r.FileType)
	}
	if got := byPath["/users/:id"].Methods; !reflect.DeepEqual(got, []string{"GET", "PUT", "PATCH", "DELETE"}) {
		t.Errorf("resource methods = %v", got)
	}
}

func TestScan_GroupsAndParams(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"(admin)/api/orgs/[orgId]/teams/[teamId].go",
	)

	routes := scanRoot(t, root, scanner.Config{})
	if len(routes) != 1 {
		t.Fatalf("routes = %d, want 1", len(routes))
	}
	r := routes[0]

	if r.URLPath != "/api/orgs/:orgId/teams/:teamId" {
		t.Errorf("url = %q", r.URLPath)
	}
	if !reflect.DeepEqual(r.ParamNames, []string{"orgId", "teamId"}) {
		t.Errorf("params = %v", r.ParamNames)
	}
	if len(r.GroupModifiers) != 1 || r.GroupModifiers[0].Name != "admin" {
		t.Errorf("modifiers = %+v", r.GroupModifiers)
	}
	if r.Resource != "teams" {
		t.Errorf("resource = %q", r.Resource)
	}
	if !reflect.DeepEqual(r.ParentResources, []string{"orgs"}) {
		t.Errorf("parents = %v", r.ParentResources)
	}
	if r.Depth != 5 {
		t.Errorf("depth = %d, want 5 (group does not count)", r.Depth)
	}
}

func TestScan_MarkersBeforeRoutes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"users/index.go",
		"users/_schema.yaml",
		"users/_middleware.go",
		"users/_access.yaml",
		"posts/index.go",
	)

	routes := scanRoot(t, root, scanner.Config{})
	byPath := make(map[string]scanner.Route)
	for _, r := range routes {
		byPath[r.URLPath] = r
	}

	u := byPath["/users"]
	if !u.HasSchema || u.SchemaPath != "users/_schema.yaml" {
		t.Errorf("schema = %v %q", u.HasSchema, u.SchemaPath)
	}
	if !u.HasMiddleware || u.MiddlewarePath != "users/_middleware.go" {
		t.Errorf("middleware = %v %q", u.HasMiddleware, u.MiddlewarePath)
	}
	if !u.HasAccessOverride || u.AccessPath != "users/_access.yaml" {
		t.Errorf("access = %v %q", u.HasAccessOverride, u.AccessPath)
	}

	p := byPath["/posts"]
	if p.HasSchema || p.HasMiddleware || p.HasAccessOverride {
		t.Errorf("posts should have no markers: %+v", p)
	}

	// Marker files never become routes.
	for _, r := range routes {
		if filepath.Base(r.FilePath) == "_schema.yaml" || filepath.Base(r.FilePath) == "_middleware.go" {
			t.Errorf("marker emitted as route: %q", r.FilePath)
		}
	}
}

func TestScan_PrivateEntriesSkipped(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"users/index.go",
		"users/_helpers.go",
		"_internal/secrets/index.go",
	)

	routes := scanRoot(t, root, scanner.Config{})
	got := urlPaths(routes)
	if !reflect.DeepEqual(got, []string{"/users"}) {
		t.Errorf("paths = %v, want [/users]", got)
	}
}

func TestScan_IgnoreGlobsAndExtensions(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"users/index.go",
		"users/index_test.go",
		"users/notes.txt",
	)

	routes := scanRoot(t, root, scanner.Config{IgnoreGlobs: []string{"*_test.go"}})
	got := urlPaths(routes)
	if !reflect.DeepEqual(got, []string{"/users"}) {
		t.Errorf("paths = %v, want [/users]", got)
	}
}

func TestScan_DeterministicOrdering(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"api/users/[id].go",
		"api/users/index.go",
		"api/index.go",
		"api/files/[...path].go",
		"api/archive/index.go",
	)

	routes := scanRoot(t, root, scanner.Config{})
	got := urlPaths(routes)
	want := []string{
		"/api",
		"/api/archive",
		"/api/users",
		"/api/files/*path",
		"/api/users/:id",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v (depth asc, then lexicographic)", got, want)
	}

	// A second scan yields the same ordering.
	again := scanRoot(t, root, scanner.Config{})
	if !reflect.DeepEqual(urlPaths(again), got) {
		t.Error("ordering not deterministic across scans")
	}
}

func TestScan_CatchAllAndOptional(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"files/[...path].go",
		"posts/[year]/[[month]]/index.go",
	)

	routes := scanRoot(t, root, scanner.Config{})
	got := urlPaths(routes)
	sort.Strings(got)
	want := []string{"/files/*path", "/posts/:year/:month?"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("paths = %v, want %v", got, want)
	}
}

func TestScan_DeadlineRespected(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "users/index.go")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := scanner.New(scanner.Config{Root: root}, zerolog.Nop())
	if _, err := s.Scan(ctx); err == nil {
		t.Error("expected error from canceled context")
	}
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestCachedScanner(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "users/index.go")

	clock := &fakeClock{now: time.Unix(1000, 0)}
	cache := scanner.NewCache(10*time.Second, clock)
	cs := scanner.NewCached(scanner.New(scanner.Config{Root: root}, zerolog.Nop()), cache)

	first, err := cs.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	// New file within the TTL window: cache serves the stale scan.
	writeTree(t, root, "posts/index.go")
	second, _ := cs.Scan(context.Background())
	if len(second) != len(first) {
		t.Errorf("cache should bypass the walk within TTL")
	}

	// Past the TTL the walk runs again.
	clock.now = clock.now.Add(11 * time.Second)
	third, _ := cs.Scan(context.Background())
	if len(third) != 2 {
		t.Errorf("expected fresh scan after TTL, got %d routes", len(third))
	}

	// Explicit invalidation by root prefix.
	writeTree(t, root, "tags/index.go")
	cs.Invalidate()
	fourth, _ := cs.Scan(context.Background())
	if len(fourth) != 3 {
		t.Errorf("expected fresh scan after invalidation, got %d routes", len(fourth))
	}

	hits, misses := cache.Stats()
	if hits == 0 || misses == 0 {
		t.Errorf("stats: hits=%d misses=%d", hits, misses)
	}
}

func TestConfig_FingerprintChangesWithConfig(t *testing.T) {
	a := scanner.Config{Root: "/r", Extensions: []string{".go"}}
	b := scanner.Config{Root: "/r", Extensions: []string{".go", ".ts"}}
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("different configs should have different fingerprints")
	}
	c := scanner.Config{Root: "/r", Extensions: []string{".go"}}
	if a.Fingerprint() != c.Fingerprint() {
		t.Error("identical configs should have identical fingerprints")
	}
}
