package markers_test

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/routeforge/routeforge/adapters/markers"
	"github.com/routeforge/routeforge/domain/access"
)

func writeMarker(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveSchemas(t *testing.T) {
	root := t.TempDir()
	writeMarker(t, root, "api/users/_schema.yaml", `
get:
  response:
    type: array
  query_params:
    - name: limit
      type: integer
    - name: q
      required: true
post:
  request:
    type: object
  response:
    type: object
`)

	r := markers.NewYAMLResolver(root)
	schemas, err := r.ResolveSchemas(context.Background(), "api/users/_schema.yaml")
	if err != nil {
		t.Fatalf("ResolveSchemas: %v", err)
	}

	get, ok := schemas["GET"]
	if !ok {
		t.Fatalf("schemas = %v, want GET", schemas)
	}
	if get.Response["type"] != "array" {
		t.Errorf("GET response = %v", get.Response)
	}
	if len(get.QueryParams) != 2 {
		t.Fatalf("query params = %+v", get.QueryParams)
	}
	if get.QueryParams[0].Name != "limit" || get.QueryParams[0].Type != "integer" {
		t.Errorf("param[0] = %+v", get.QueryParams[0])
	}
	if get.QueryParams[1].Type != "string" || !get.QueryParams[1].Required {
		t.Errorf("param[1] = %+v", get.QueryParams[1])
	}

	post := schemas["POST"]
	if post.Request["type"] != "object" {
		t.Errorf("POST request = %v", post.Request)
	}
}

func TestResolveSchemas_Missing(t *testing.T) {
	r := markers.NewYAMLResolver(t.TempDir())
	if _, err := r.ResolveSchemas(context.Background(), "api/_schema.yaml"); err == nil {
		t.Error("missing marker must error")
	}
}

func TestResolveAccess(t *testing.T) {
	root := t.TempDir()
	writeMarker(t, root, "api/admin/_access.yaml", `
requires_auth: true
roles: [admin, operator]
role_strategy: all
ownership:
  resource_type: reports
  param_name: reportId
`)

	r := markers.NewYAMLResolver(root)
	o, err := r.ResolveAccess(context.Background(), "api/admin/_access.yaml")
	if err != nil {
		t.Fatalf("ResolveAccess: %v", err)
	}

	if o.RequiresAuth == nil || !*o.RequiresAuth {
		t.Error("requires_auth not set")
	}
	if !reflect.DeepEqual(o.RequiredRoles, []string{"admin", "operator"}) {
		t.Errorf("roles = %v", o.RequiredRoles)
	}
	if o.RoleStrategy == nil || *o.RoleStrategy != access.StrategyAll {
		t.Errorf("role strategy = %v", o.RoleStrategy)
	}
	if o.Ownership == nil || o.Ownership.ResourceType != "reports" || o.Ownership.ParamName != "reportId" {
		t.Errorf("ownership = %+v", o.Ownership)
	}
	if o.Source != "api/admin/_access.yaml" {
		t.Errorf("source = %q", o.Source)
	}

	// Unset fields stay nil so the merge leaves them alone.
	if o.IsPublic != nil || o.RequiredPermissions != nil || o.Scope != nil {
		t.Errorf("unexpected set fields: %+v", o)
	}
}

func TestResolveAccess_PartialPublic(t *testing.T) {
	root := t.TempDir()
	writeMarker(t, root, "api/docs/_access.yaml", "public: true\n")

	r := markers.NewYAMLResolver(root)
	o, err := r.ResolveAccess(context.Background(), "api/docs/_access.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if o.IsPublic == nil || !*o.IsPublic {
		t.Errorf("override = %+v", o)
	}

	merged := access.Merge(access.Computed{RequiresAuth: true, RequiredRoles: []string{"admin"}}, o)
	if !merged.IsPublic || merged.RequiresAuth {
		t.Errorf("merged = %+v", merged)
	}
	// Roles survive the partial override.
	if !reflect.DeepEqual(merged.RequiredRoles, []string{"admin"}) {
		t.Errorf("roles = %v", merged.RequiredRoles)
	}
}
