// Package markers resolves scanner marker files: YAML schema markers
// into per-method request/response schemas, and YAML access markers
// into partial access overrides.
package markers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/routeforge/routeforge/domain/access"
	"github.com/routeforge/routeforge/domain/endpoint"
	"github.com/routeforge/routeforge/ports"
)

// YAMLResolver reads marker files relative to the scan root.
type YAMLResolver struct {
	root string
}

// NewYAMLResolver creates a resolver rooted at the scanned directory.
func NewYAMLResolver(root string) *YAMLResolver {
	return &YAMLResolver{root: root}
}

// methodSchema is the YAML shape for one method in a schema marker.
type methodSchema struct {
	Request     endpoint.Schema `yaml:"request"`
	Response    endpoint.Schema `yaml:"response"`
	QueryParams []queryParam    `yaml:"query_params"`
}

type queryParam struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Required    bool   `yaml:"required"`
	Description string `yaml:"description"`
}

// ResolveSchemas implements ports.SchemaResolver. The marker maps
// lowercase HTTP methods to request/response schemas and query
// parameter descriptors.
func (r *YAMLResolver) ResolveSchemas(_ context.Context, markerPath string) (map[string]ports.MethodSchemas, error) {
	data, err := os.ReadFile(filepath.Join(r.root, markerPath))
	if err != nil {
		return nil, fmt.Errorf("read schema marker %s: %w", markerPath, err)
	}

	var raw map[string]methodSchema
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse schema marker %s: %w", markerPath, err)
	}

	out := make(map[string]ports.MethodSchemas, len(raw))
	for method, ms := range raw {
		resolved := ports.MethodSchemas{
			Request:  ms.Request,
			Response: ms.Response,
		}
		for _, qp := range ms.QueryParams {
			typ := qp.Type
			if typ == "" {
				typ = "string"
			}
			resolved.QueryParams = append(resolved.QueryParams, endpoint.Param{
				Name:        qp.Name,
				In:          endpoint.InQuery,
				Required:    qp.Required,
				Type:        typ,
				Description: qp.Description,
			})
		}
		out[strings.ToUpper(method)] = resolved
	}
	return out, nil
}

// ResolveAccess implements ports.AccessResolver. The marker is a
// partial override; absent keys leave the computed access untouched.
func (r *YAMLResolver) ResolveAccess(_ context.Context, markerPath string) (access.Override, error) {
	data, err := os.ReadFile(filepath.Join(r.root, markerPath))
	if err != nil {
		return access.Override{}, fmt.Errorf("read access marker %s: %w", markerPath, err)
	}

	var o access.Override
	if err := yaml.Unmarshal(data, &o); err != nil {
		return access.Override{}, fmt.Errorf("parse access marker %s: %w", markerPath, err)
	}
	o.Source = markerPath
	return o, nil
}

var (
	_ ports.SchemaResolver = (*YAMLResolver)(nil)
	_ ports.AccessResolver = (*YAMLResolver)(nil)
)
