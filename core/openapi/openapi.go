// Package openapi generates OpenAPI 3.0 documents from registered
// endpoints. Paths, parameters, request bodies, and security
// requirements all come from the endpoint metadata the generator
// produced; nothing here re-derives conventions.
package openapi

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/routeforge/routeforge/domain/endpoint"
)

// Spec represents an OpenAPI 3.0 specification.
type Spec struct {
	OpenAPI    string              `json:"openapi"`
	Info       Info                `json:"info"`
	Servers    []Server            `json:"servers,omitempty"`
	Paths      map[string]PathItem `json:"paths"`
	Components Components          `json:"components"`
	Tags       []Tag               `json:"tags,omitempty"`
}

// Info provides API metadata.
type Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

// Server represents a server URL.
type Server struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// PathItem contains operations for a path.
type PathItem struct {
	Get    *Operation `json:"get,omitempty"`
	Post   *Operation `json:"post,omitempty"`
	Put    *Operation `json:"put,omitempty"`
	Patch  *Operation `json:"patch,omitempty"`
	Delete *Operation `json:"delete,omitempty"`
	Head   *Operation `json:"head,omitempty"`
}

// Operation represents an API operation.
type Operation struct {
	Tags        []string              `json:"tags,omitempty"`
	Summary     string                `json:"summary,omitempty"`
	Description string                `json:"description,omitempty"`
	OperationID string                `json:"operationId,omitempty"`
	Parameters  []Parameter           `json:"parameters,omitempty"`
	RequestBody *RequestBody          `json:"requestBody,omitempty"`
	Responses   map[string]Response   `json:"responses"`
	Security    []SecurityRequirement `json:"security,omitempty"`
}

// Parameter represents an API parameter.
type Parameter struct {
	Name        string          `json:"name"`
	In          string          `json:"in"` // path, query
	Description string          `json:"description,omitempty"`
	Required    bool            `json:"required,omitempty"`
	Schema      endpoint.Schema `json:"schema,omitempty"`
}

// RequestBody represents a request body.
type RequestBody struct {
	Description string               `json:"description,omitempty"`
	Required    bool                 `json:"required,omitempty"`
	Content     map[string]MediaType `json:"content"`
}

// Response represents an API response.
type Response struct {
	Description string               `json:"description"`
	Content     map[string]MediaType `json:"content,omitempty"`
}

// MediaType represents a media type.
type MediaType struct {
	Schema endpoint.Schema `json:"schema,omitempty"`
}

// Components holds reusable spec objects.
type Components struct {
	SecuritySchemes map[string]SecurityScheme `json:"securitySchemes,omitempty"`
}

// SecurityScheme describes an authentication scheme.
type SecurityScheme struct {
	Type         string `json:"type"`
	Scheme       string `json:"scheme,omitempty"`
	BearerFormat string `json:"bearerFormat,omitempty"`
	In           string `json:"in,omitempty"`
	Name         string `json:"name,omitempty"`
}

// SecurityRequirement maps scheme name to required scopes.
type SecurityRequirement map[string][]string

// Tag groups operations.
type Tag struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

const (
	bearerScheme = "bearerAuth"
	contentJSON  = "application/json"
)

// Generator builds OpenAPI documents.
type Generator struct {
	info    Info
	servers []Server
}

// NewGenerator creates a generator with document metadata.
func NewGenerator(info Info, servers ...Server) *Generator {
	if info.Title == "" {
		info.Title = "API"
	}
	if info.Version == "" {
		info.Version = "1.0.0"
	}
	return &Generator{info: info, servers: servers}
}

// Generate builds the document from an endpoint list.
func (g *Generator) Generate(endpoints []*endpoint.Endpoint) *Spec {
	spec := &Spec{
		OpenAPI: "3.0.3",
		Info:    g.info,
		Servers: g.servers,
		Paths:   make(map[string]PathItem),
	}

	needsAuth := false
	tagSet := make(map[string]bool)

	for _, ep := range endpoints {
		path := openAPIPath(ep.Path)
		item := spec.Paths[path]

		op := g.operation(ep)
		if len(op.Security) > 0 {
			needsAuth = true
		}
		for _, tag := range ep.Tags {
			tagSet[tag] = true
		}

		switch ep.Method {
		case "GET":
			item.Get = op
		case "POST":
			item.Post = op
		case "PUT":
			item.Put = op
		case "PATCH":
			item.Patch = op
		case "DELETE":
			item.Delete = op
		case "HEAD":
			item.Head = op
		default:
			continue
		}
		spec.Paths[path] = item
	}

	if needsAuth {
		spec.Components.SecuritySchemes = map[string]SecurityScheme{
			bearerScheme: {Type: "http", Scheme: "bearer", BearerFormat: "JWT"},
		}
	}

	tags := make([]string, 0, len(tagSet))
	for tag := range tagSet {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		spec.Tags = append(spec.Tags, Tag{Name: tag})
	}

	return spec
}

// GenerateJSON builds the document and marshals it.
func (g *Generator) GenerateJSON(endpoints []*endpoint.Endpoint) ([]byte, error) {
	data, err := json.MarshalIndent(g.Generate(endpoints), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal openapi spec: %w", err)
	}
	return data, nil
}

func (g *Generator) operation(ep *endpoint.Endpoint) *Operation {
	op := &Operation{
		Tags:        ep.Tags,
		Summary:     ep.Summary,
		Description: ep.Description,
		OperationID: ep.OperationID,
		Responses:   g.responses(ep),
	}

	for _, p := range ep.PathParams {
		op.Parameters = append(op.Parameters, paramOf(p, "path"))
	}
	for _, p := range ep.QueryParams {
		op.Parameters = append(op.Parameters, paramOf(p, "query"))
	}

	if ep.RequestSchema != nil && bodyMethod(ep.Method) {
		op.RequestBody = &RequestBody{
			Required: true,
			Content:  map[string]MediaType{contentJSON: {Schema: ep.RequestSchema}},
		}
	}

	if ep.Access.RequiresAuth {
		op.Security = []SecurityRequirement{{bearerScheme: {}}}
	}

	return op
}

func (g *Generator) responses(ep *endpoint.Endpoint) map[string]Response {
	responses := make(map[string]Response)

	success := "200"
	description := "Successful response"
	if ep.Method == "POST" {
		success = "201"
		description = "Created"
	}
	if ep.Method == "DELETE" {
		success = "204"
		description = "Deleted"
	}

	resp := Response{Description: description}
	if ep.ResponseSchema != nil {
		resp.Content = map[string]MediaType{contentJSON: {Schema: ep.ResponseSchema}}
	}
	responses[success] = resp

	responses["400"] = Response{Description: "Bad request"}
	if ep.Access.RequiresAuth {
		responses["401"] = Response{Description: "Unauthorized"}
		responses["403"] = Response{Description: "Forbidden"}
	}
	responses["404"] = Response{Description: "Not found"}

	return responses
}

func paramOf(p endpoint.Param, in string) Parameter {
	typ := p.Type
	if typ == "" {
		typ = "string"
	}
	return Parameter{
		Name:        p.Name,
		In:          in,
		Description: p.Description,
		Required:    in == "path" && p.Required,
		Schema:      endpoint.Schema{"type": typ},
	}
}

func bodyMethod(method string) bool {
	switch method {
	case "POST", "PUT", "PATCH":
		return true
	}
	return false
}

// openAPIPath converts ":param" and "*param" pattern segments into
// the "{param}" form OpenAPI uses. A catch-all becomes a single
// templated segment since OpenAPI has no wildcard syntax.
func openAPIPath(pattern string) string {
	segs := strings.Split(pattern, "/")
	for i, seg := range segs {
		switch {
		case strings.HasPrefix(seg, ":"):
			name := strings.TrimSuffix(strings.TrimPrefix(seg, ":"), "?")
			segs[i] = "{" + name + "}"
		case strings.HasPrefix(seg, "*"):
			segs[i] = "{" + strings.TrimPrefix(seg, "*") + "}"
		}
	}
	return strings.Join(segs, "/")
}
