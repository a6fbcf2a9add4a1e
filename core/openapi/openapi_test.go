package openapi

import (
	"encoding/json"
	"testing"

	"github.com/routeforge/routeforge/domain/access"
	"github.com/routeforge/routeforge/domain/endpoint"
)

func listUsers() *endpoint.Endpoint {
	return &endpoint.Endpoint{
		ID:          "get_api_users",
		OperationID: "get_api_users",
		Method:      "GET",
		Path:        "/api/users",
		Summary:     "List users",
		Tags:        []string{"users"},
		Access:      access.Computed{IsPublic: true},
	}
}

func getUser() *endpoint.Endpoint {
	return &endpoint.Endpoint{
		ID:          "get_api_users_id",
		OperationID: "get_api_users_id",
		Method:      "GET",
		Path:        "/api/users/:id",
		Summary:     "Get user",
		Tags:        []string{"users"},
		Access:      access.Computed{RequiresAuth: true},
		PathParams: []endpoint.Param{
			{Name: "id", In: endpoint.InPath, Required: true, Type: "string"},
		},
	}
}

func createUser() *endpoint.Endpoint {
	return &endpoint.Endpoint{
		ID:            "post_api_users",
		OperationID:   "post_api_users",
		Method:        "POST",
		Path:          "/api/users",
		Access:        access.Computed{RequiresAuth: true},
		RequestSchema: endpoint.Schema{"type": "object"},
	}
}

func TestGenerate_PathTemplating(t *testing.T) {
	spec := NewGenerator(Info{Title: "Test API"}).Generate([]*endpoint.Endpoint{getUser()})

	item, ok := spec.Paths["/api/users/{id}"]
	if !ok {
		t.Fatalf("paths = %v, want /api/users/{id}", spec.Paths)
	}
	if item.Get == nil || item.Get.OperationID != "get_api_users_id" {
		t.Errorf("get operation = %+v", item.Get)
	}
	if len(item.Get.Parameters) != 1 || item.Get.Parameters[0].Name != "id" || item.Get.Parameters[0].In != "path" {
		t.Errorf("parameters = %+v", item.Get.Parameters)
	}
}

func TestGenerate_MethodsShareOnePathItem(t *testing.T) {
	spec := NewGenerator(Info{}).Generate([]*endpoint.Endpoint{listUsers(), createUser()})

	if len(spec.Paths) != 1 {
		t.Fatalf("paths = %d, want 1", len(spec.Paths))
	}
	item := spec.Paths["/api/users"]
	if item.Get == nil || item.Post == nil {
		t.Errorf("path item = %+v", item)
	}
	if item.Post.RequestBody == nil {
		t.Error("POST should carry a request body")
	}
	if _, ok := item.Post.Responses["201"]; !ok {
		t.Errorf("POST responses = %v, want 201", item.Post.Responses)
	}
}

func TestGenerate_SecurityFollowsAccess(t *testing.T) {
	spec := NewGenerator(Info{}).Generate([]*endpoint.Endpoint{listUsers(), getUser()})

	open := spec.Paths["/api/users"].Get
	if len(open.Security) != 0 {
		t.Errorf("public endpoint security = %v", open.Security)
	}
	if _, ok := open.Responses["401"]; ok {
		t.Error("public endpoint should not document 401")
	}

	guarded := spec.Paths["/api/users/{id}"].Get
	if len(guarded.Security) != 1 {
		t.Errorf("guarded endpoint security = %v", guarded.Security)
	}
	if _, ok := guarded.Responses["401"]; !ok {
		t.Error("guarded endpoint should document 401")
	}

	if _, ok := spec.Components.SecuritySchemes[bearerScheme]; !ok {
		t.Error("bearer scheme missing from components")
	}
}

func TestGenerate_Tags(t *testing.T) {
	spec := NewGenerator(Info{}).Generate([]*endpoint.Endpoint{getUser(), listUsers()})
	if len(spec.Tags) != 1 || spec.Tags[0].Name != "users" {
		t.Errorf("tags = %+v", spec.Tags)
	}
}

func TestGenerateJSON(t *testing.T) {
	data, err := NewGenerator(Info{Title: "Test API", Version: "2.0.0"}).GenerateJSON([]*endpoint.Endpoint{listUsers()})
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["openapi"] != "3.0.3" {
		t.Errorf("openapi = %v", decoded["openapi"])
	}
	info := decoded["info"].(map[string]any)
	if info["title"] != "Test API" || info["version"] != "2.0.0" {
		t.Errorf("info = %v", info)
	}
}

func TestOpenAPIPath(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"/api/users", "/api/users"},
		{"/api/users/:id", "/api/users/{id}"},
		{"/api/users/:id?", "/api/users/{id}"},
		{"/api/files/*path", "/api/files/{path}"},
	}
	for _, tt := range tests {
		if got := openAPIPath(tt.pattern); got != tt.want {
			t.Errorf("openAPIPath(%q) = %q, want %q", tt.pattern, got, tt.want)
		}
	}
}
