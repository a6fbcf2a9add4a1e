package scanner

import (
	"fmt"
	"hash/fnv"
	"path/filepath"
	"sort"
	"strings"
)

// Config controls the scan.
type Config struct {
	// Root is the directory tree to scan.
	Root string `yaml:"root"`

	// Extensions are the route file extensions, e.g. [".go"].
	Extensions []string `yaml:"extensions"`

	// IgnoreGlobs are path.Match patterns applied to base names and
	// root-relative paths; matching files are skipped.
	IgnoreGlobs []string `yaml:"ignore"`

	// IndexName is the base name of collection index files.
	IndexName string `yaml:"index_name"`

	// Marker file base names (extension-independent).
	SchemaMarker     string `yaml:"schema_marker"`
	MiddlewareMarker string `yaml:"middleware_marker"`
	AccessMarker     string `yaml:"access_marker"`

	// Actions is the action vocabulary: base name to HTTP methods.
	Actions map[string][]string `yaml:"actions"`

	// CollectionMethods apply to index and static-named files.
	CollectionMethods []string `yaml:"collection_methods"`

	// ResourceMethods apply to single-dynamic-segment files.
	ResourceMethods []string `yaml:"resource_methods"`
}

// defaultActions is the built-in action vocabulary.
func defaultActions() map[string][]string {
	return map[string][]string{
		"search":   {"GET"},
		"count":    {"GET"},
		"export":   {"GET"},
		"stats":    {"GET"},
		"download": {"GET"},
		"create":   {"POST"},
		"import":   {"POST"},
		"upload":   {"POST"},
		"bulk":     {"POST"},
		"login":    {"POST"},
		"logout":   {"POST"},
		"register": {"POST"},
		"refresh":  {"POST"},
		"verify":   {"POST"},
		"update":   {"PUT", "PATCH"},
		"remove":   {"DELETE"},
	}
}

func (c *Config) applyDefaults() {
	if len(c.Extensions) == 0 {
		c.Extensions = []string{".go"}
	}
	if c.IndexName == "" {
		c.IndexName = "index"
	}
	if c.SchemaMarker == "" {
		c.SchemaMarker = "_schema"
	}
	if c.MiddlewareMarker == "" {
		c.MiddlewareMarker = "_middleware"
	}
	if c.AccessMarker == "" {
		c.AccessMarker = "_access"
	}
	if c.Actions == nil {
		c.Actions = defaultActions()
	}
	if len(c.CollectionMethods) == 0 {
		c.CollectionMethods = []string{"GET", "POST"}
	}
	if len(c.ResourceMethods) == 0 {
		c.ResourceMethods = []string{"GET", "PUT", "PATCH", "DELETE"}
	}
}

func (c *Config) matchesExtension(p string) bool {
	ext := filepath.Ext(p)
	for _, e := range c.Extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// Fingerprint returns a stable hash of the configuration, used as
// part of the scan cache key so a config change invalidates cached
// results.
func (c *Config) Fingerprint() uint64 {
	h := fnv.New64a()

	write := func(parts ...string) {
		for _, p := range parts {
			h.Write([]byte(p))
			h.Write([]byte{0})
		}
	}

	write(c.Root, c.IndexName, c.SchemaMarker, c.MiddlewareMarker, c.AccessMarker)
	write(c.Extensions...)
	write(c.IgnoreGlobs...)
	write(c.CollectionMethods...)
	write(c.ResourceMethods...)

	actions := make([]string, 0, len(c.Actions))
	for name, methods := range c.Actions {
		actions = append(actions, fmt.Sprintf("%s=%s", name, strings.Join(methods, ",")))
	}
	sort.Strings(actions)
	write(actions...)

	return h.Sum64()
}
