package web_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/routeforge/routeforge/adapters/auth"
	"github.com/routeforge/routeforge/adapters/hasher"
	"github.com/routeforge/routeforge/config"
	"github.com/routeforge/routeforge/core/exporter"
	"github.com/routeforge/routeforge/core/openapi"
	"github.com/routeforge/routeforge/core/rbac"
	"github.com/routeforge/routeforge/core/registry"
	"github.com/routeforge/routeforge/domain/access"
	"github.com/routeforge/routeforge/domain/endpoint"
	"github.com/routeforge/routeforge/web"
)

func testEndpoint(method, path string, ac access.Computed, fn endpoint.HandlerFunc) *endpoint.Endpoint {
	if fn == nil {
		fn = func(ctx context.Context, req *endpoint.Request) (*endpoint.Response, error) {
			return &endpoint.Response{Status: 200, Body: map[string]string{"ok": "true"}}, nil
		}
	}
	return &endpoint.Endpoint{
		ID:      endpoint.ID(method, path),
		Method:  method,
		Path:    path,
		Access:  ac,
		Handler: endpoint.ResolvedHandlerRef(fn),
	}
}

type fixture struct {
	handler *web.Handler
	tokens  *auth.TokenService
	server  *httptest.Server
}

func newFixture(t *testing.T, eps ...*endpoint.Endpoint) *fixture {
	t.Helper()

	reg := registry.New(registry.Config{CacheSize: 64}, zerolog.Nop())
	for _, ep := range eps {
		if err := reg.Register(ep); err != nil {
			t.Fatalf("register %s: %v", ep.ID, err)
		}
	}

	tokens := auth.NewTokenService("test-secret", time.Hour)
	engine := rbac.New(rbac.Config{}, rbac.Checkers{}, zerolog.Nop())

	h := web.NewHandler(web.Deps{
		Registry: reg,
		Access:   engine,
		Tokens:   tokens,
		Hasher:   hasher.Fake{},
		Auth: config.AuthConfig{
			APIKeyHeader: "X-API-Key",
			APIKeys: []config.APIKeyConfig{
				{ID: "svc-reporting", KeyHash: "reporting-key", Roles: []string{"admin"}},
			},
		},
		OpenAPI: openapi.NewGenerator(openapi.Info{Title: "Test API", Version: "0.1.0"}),
		Logger:  zerolog.Nop(),
	})

	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return &fixture{handler: h, tokens: tokens, server: srv}
}

func (f *fixture) request(t *testing.T, method, path string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, f.server.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		body = nil
	}
	return resp, body
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestDispatch_PublicEndpoint(t *testing.T) {
	f := newFixture(t, testEndpoint("GET", "/api/ping", access.Computed{IsPublic: true}, nil))

	resp, body := f.request(t, "GET", "/api/ping", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["ok"] != "true" {
		t.Errorf("body = %v", body)
	}
}

func TestDispatch_NotFound(t *testing.T) {
	f := newFixture(t)

	resp, body := f.request(t, "GET", "/api/nothing", nil)
	if resp.StatusCode != 404 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if errorCode(body) != "not_found" {
		t.Errorf("code = %q", errorCode(body))
	}
}

func TestDispatch_RequiresAuth(t *testing.T) {
	f := newFixture(t, testEndpoint("GET", "/api/users", access.Computed{RequiresAuth: true}, nil))

	resp, body := f.request(t, "GET", "/api/users", nil)
	if resp.StatusCode != 401 {
		t.Fatalf("anonymous status = %d", resp.StatusCode)
	}
	if errorCode(body) != "requires_auth" {
		t.Errorf("code = %q", errorCode(body))
	}

	token, _, err := f.tokens.GenerateToken("u1", "u1@example.com", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, _ = f.request(t, "GET", "/api/users", map[string]string{"Authorization": "Bearer " + token})
	if resp.StatusCode != 200 {
		t.Errorf("authenticated status = %d", resp.StatusCode)
	}
}

func TestDispatch_AnonymousDeniedOnRestrictedEndpoint(t *testing.T) {
	// Not public, no explicit requirements: still needs a caller.
	f := newFixture(t, testEndpoint("GET", "/api/notes", access.Computed{}, nil))

	resp, body := f.request(t, "GET", "/api/notes", nil)
	if resp.StatusCode != 403 {
		t.Fatalf("anonymous status = %d", resp.StatusCode)
	}
	if errorCode(body) != "deny" {
		t.Errorf("code = %q", errorCode(body))
	}

	token, _, err := f.tokens.GenerateToken("u1", "", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, _ = f.request(t, "GET", "/api/notes", map[string]string{"Authorization": "Bearer " + token})
	if resp.StatusCode != 200 {
		t.Errorf("authenticated status = %d", resp.StatusCode)
	}
}

func TestDispatch_InvalidTokenIsAnonymous(t *testing.T) {
	f := newFixture(t, testEndpoint("GET", "/api/users", access.Computed{RequiresAuth: true}, nil))

	resp, _ := f.request(t, "GET", "/api/users", map[string]string{"Authorization": "Bearer garbage"})
	if resp.StatusCode != 401 {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestDispatch_RoleDenied(t *testing.T) {
	f := newFixture(t, testEndpoint("GET", "/api/admin/settings", access.Computed{
		RequiresAuth:  true,
		RequiredRoles: []string{"admin"},
		RoleStrategy:  access.StrategyAny,
	}, nil))

	token, _, err := f.tokens.GenerateToken("u1", "", []string{"viewer"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, body := f.request(t, "GET", "/api/admin/settings", map[string]string{"Authorization": "Bearer " + token})
	if resp.StatusCode != 403 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	e, _ := body["error"].(map[string]any)
	if missing, _ := e["missingRoles"].([]any); len(missing) != 1 || missing[0] != "admin" {
		t.Errorf("missingRoles = %v", e["missingRoles"])
	}

	admin, _, err := f.tokens.GenerateToken("u2", "", []string{"admin"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, _ = f.request(t, "GET", "/api/admin/settings", map[string]string{"Authorization": "Bearer " + admin})
	if resp.StatusCode != 200 {
		t.Errorf("admin status = %d", resp.StatusCode)
	}
}

func TestDispatch_APIKey(t *testing.T) {
	f := newFixture(t, testEndpoint("GET", "/api/admin/settings", access.Computed{
		RequiresAuth:  true,
		RequiredRoles: []string{"admin"},
		RoleStrategy:  access.StrategyAny,
	}, nil))

	resp, _ := f.request(t, "GET", "/api/admin/settings", map[string]string{"X-API-Key": "reporting-key"})
	if resp.StatusCode != 200 {
		t.Errorf("valid key status = %d", resp.StatusCode)
	}

	resp, _ = f.request(t, "GET", "/api/admin/settings", map[string]string{"X-API-Key": "wrong"})
	if resp.StatusCode != 401 {
		t.Errorf("invalid key status = %d", resp.StatusCode)
	}
}

func TestDispatch_PathParams(t *testing.T) {
	f := newFixture(t, testEndpoint("GET", "/api/users/:id", access.Computed{IsPublic: true},
		func(ctx context.Context, req *endpoint.Request) (*endpoint.Response, error) {
			return &endpoint.Response{Status: 200, Body: map[string]string{"id": req.Params["id"]}}, nil
		}))

	resp, body := f.request(t, "GET", "/api/users/42", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["id"] != "42" {
		t.Errorf("id = %v", body["id"])
	}
}

func TestDispatch_HandlerError(t *testing.T) {
	f := newFixture(t, testEndpoint("GET", "/api/broken", access.Computed{IsPublic: true},
		func(ctx context.Context, req *endpoint.Request) (*endpoint.Response, error) {
			return nil, errors.New("boom")
		}))

	resp, body := f.request(t, "GET", "/api/broken", nil)
	if resp.StatusCode != 500 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if errorCode(body) != "handler_error" {
		t.Errorf("code = %q", errorCode(body))
	}
}

func TestDispatch_UnresolvedHandler(t *testing.T) {
	ep := &endpoint.Endpoint{
		ID:      endpoint.ID("GET", "/api/pending"),
		Method:  "GET",
		Path:    "/api/pending",
		Access:  access.Computed{IsPublic: true},
		Handler: endpoint.NewHandlerRef("api/pending/index.go", "list", nil),
	}
	f := newFixture(t, ep)

	resp, body := f.request(t, "GET", "/api/pending", nil)
	if resp.StatusCode != 501 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if errorCode(body) != "not_implemented" {
		t.Errorf("code = %q", errorCode(body))
	}
}

func TestDispatch_NilBodyUsesStatusOnly(t *testing.T) {
	f := newFixture(t, testEndpoint("DELETE", "/api/users/:id", access.Computed{IsPublic: true},
		func(ctx context.Context, req *endpoint.Request) (*endpoint.Response, error) {
			return &endpoint.Response{Status: 204}, nil
		}))

	resp, _ := f.request(t, "DELETE", "/api/users/7", nil)
	if resp.StatusCode != 204 {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestSystem_Health(t *testing.T) {
	f := newFixture(t, testEndpoint("GET", "/api/ping", access.Computed{}, nil))

	resp, body := f.request(t, "GET", "/healthz", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["status"] != "ok" || body["endpoints"] != float64(1) {
		t.Errorf("body = %v", body)
	}
}

func TestSystem_Stats(t *testing.T) {
	f := newFixture(t,
		testEndpoint("GET", "/api/a", access.Computed{}, nil),
		testEndpoint("POST", "/api/a", access.Computed{}, nil),
	)

	resp, body := f.request(t, "GET", "/registry/stats", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["endpoints"] != float64(2) {
		t.Errorf("endpoints = %v", body["endpoints"])
	}
}

func TestSystem_OpenAPI(t *testing.T) {
	f := newFixture(t, testEndpoint("GET", "/api/users/:id", access.Computed{RequiresAuth: true}, nil))

	resp, body := f.request(t, "GET", "/openapi.json", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["openapi"] != "3.0.3" {
		t.Errorf("openapi = %v", body["openapi"])
	}
	paths, _ := body["paths"].(map[string]any)
	if _, ok := paths["/api/users/{id}"]; !ok {
		t.Errorf("paths = %v", paths)
	}
}

func TestSystem_Metrics(t *testing.T) {
	reg := registry.New(registry.Config{}, zerolog.Nop())
	if err := reg.Register(testEndpoint("GET", "/api/ping", access.Computed{}, nil)); err != nil {
		t.Fatal(err)
	}

	metrics := exporter.NewPrometheusExporter(exporter.PrometheusConfig{})
	h := web.NewHandler(web.Deps{
		Registry:    reg,
		Metrics:     metrics,
		MetricsPath: "/metrics",
		Logger:      zerolog.Nop(),
	})
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	if resp, err := http.Get(srv.URL + "/api/ping"); err != nil || resp.StatusCode != 200 {
		t.Fatalf("dispatch: %v %v", err, resp)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}

	scraped, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(scraped), "routeforge_lookups_total") {
		t.Errorf("scrape missing lookup counter:\n%s", scraped)
	}
}
