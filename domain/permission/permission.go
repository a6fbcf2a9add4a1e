// Package permission derives permission requirements from endpoint
// paths and HTTP methods. Permissions are "resource:action" strings;
// nested paths additionally require read access on each ancestor
// resource. This package has NO dependencies on I/O.
package permission

import (
	"fmt"
	"strings"
)

// Source identifies where a derived permission came from.
type Source string

const (
	SourcePath     Source = "path"     // derived from the URL path
	SourceMethod   Source = "method"   // derived from the HTTP method table
	SourceRule     Source = "rule"     // produced by a custom derivation rule
	SourceOverride Source = "override" // explicit permission list on the endpoint
)

// Derived is one permission requirement with its provenance.
type Derived struct {
	// Permission is the "resource:action" string.
	Permission string `json:"permission"`

	// Resource and Action are the decomposed parts.
	Resource string `json:"resource"`
	Action   string `json:"action"`

	// Scope optionally narrows the permission, e.g. "team".
	Scope string `json:"scope,omitempty"`

	// Source records how the permission was derived.
	Source Source `json:"source"`

	// Confidence expresses how certain the derivation is, in [0,1].
	Confidence float64 `json:"confidence"`
}

// methodActions maps HTTP methods to CRUD actions.
var methodActions = map[string]string{
	"GET":    "read",
	"HEAD":   "read",
	"POST":   "create",
	"PUT":    "update",
	"PATCH":  "update",
	"DELETE": "delete",
}

// ActionForMethod returns the CRUD action for an HTTP method.
// Unknown methods map to "access".
func ActionForMethod(method string) string {
	if a, ok := methodActions[strings.ToUpper(method)]; ok {
		return a
	}
	return "access"
}

// Derive computes the permission set for a path and method.
// The primary permission is "resource:action" for the last resource
// segment; every ancestor resource contributes a "resource:read"
// requirement, primary first. A resource segment is a static segment
// immediately followed by a path parameter, or the final static
// segment of the path.
func Derive(path, method string, scope string) []Derived {
	resources := Resources(path)
	if len(resources) == 0 {
		return nil
	}

	action := ActionForMethod(method)
	primary := resources[len(resources)-1]

	out := make([]Derived, 0, len(resources))
	out = append(out, Derived{
		Permission: primary + ":" + action,
		Resource:   primary,
		Action:     action,
		Scope:      scope,
		Source:     SourcePath,
		Confidence: 0.9,
	})

	// Ancestors, nearest first, require read access.
	for i := len(resources) - 2; i >= 0; i-- {
		out = append(out, Derived{
			Permission: resources[i] + ":read",
			Resource:   resources[i],
			Action:     "read",
			Scope:      scope,
			Source:     SourcePath,
			Confidence: 0.7,
		})
	}

	return out
}

// Resources extracts resource names from a path pattern, outermost
// first. "/api/orgs/:orgId/teams/:teamId" yields ["orgs", "teams"];
// "/api/users" yields ["users"].
func Resources(path string) []string {
	segs := splitPath(path)

	var resources []string
	lastStatic := ""
	lastStaticIsResource := false

	for i, seg := range segs {
		if isParamSegment(seg) {
			continue
		}
		lastStatic = seg
		lastStaticIsResource = i+1 < len(segs) && isParamSegment(segs[i+1])
		if lastStaticIsResource {
			resources = append(resources, seg)
		}
	}

	// A trailing static segment that owns no parameter is still the
	// primary resource: /api/users, /api/users/search.
	if lastStatic != "" && !lastStaticIsResource {
		resources = append(resources, lastStatic)
	}

	return resources
}

func splitPath(path string) []string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

func isParamSegment(seg string) bool {
	return strings.HasPrefix(seg, ":") || strings.HasPrefix(seg, "*") ||
		(strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}"))
}

// Template produces permissions by placeholder substitution.
// It is an explicit struct rather than string interpolation so the
// resolution contract stays visible.
type Template struct {
	// Resource is the resource part; "{resource}" substitutes the
	// resource derived from the matched path.
	Resource string `yaml:"resource"`

	// Action is the action part; "{action}" substitutes the action
	// derived from the HTTP method.
	Action string `yaml:"action"`

	// Scope optionally narrows the produced permission.
	Scope string `yaml:"scope"`
}

// Resolve substitutes placeholders and returns the permission.
func (t Template) Resolve(resource, action string) Derived {
	r := strings.ReplaceAll(t.Resource, "{resource}", resource)
	a := strings.ReplaceAll(t.Action, "{action}", action)
	if r == "" {
		r = resource
	}
	if a == "" {
		a = action
	}
	return Derived{
		Permission: r + ":" + a,
		Resource:   r,
		Action:     a,
		Scope:      t.Scope,
		Source:     SourceRule,
		Confidence: 1.0,
	}
}

// Validate checks the template for unresolvable placeholders.
func (t Template) Validate() error {
	for _, part := range []string{t.Resource, t.Action} {
		stripped := strings.ReplaceAll(part, "{resource}", "")
		stripped = strings.ReplaceAll(stripped, "{action}", "")
		if strings.ContainsAny(stripped, "{}") {
			return fmt.Errorf("unknown placeholder in template part %q", part)
		}
	}
	return nil
}
