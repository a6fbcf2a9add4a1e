// Package segment provides pure parsing of route path segments.
// Directory and file names use bracket syntax for parameters,
// parentheses for access groups, and an underscore prefix for
// private entries. This package has NO dependencies on I/O.
package segment

import "strings"

// Type classifies a parsed path segment.
type Type string

const (
	TypeStatic   Type = "static"   // users
	TypeDynamic  Type = "dynamic"  // [id]
	TypeOptional Type = "optional" // [[id]]
	TypeCatchAll Type = "catchAll" // [...slug] or [[...slug]]
	TypeGroup    Type = "group"    // (admin)
	TypePrivate  Type = "private"  // _internal
)

// ModifierType classifies an access group modifier.
type ModifierType string

const (
	ModifierPublic     ModifierType = "public"
	ModifierAuth       ModifierType = "auth"
	ModifierRole       ModifierType = "role"
	ModifierPermission ModifierType = "permission"
	ModifierScope      ModifierType = "scope"
	ModifierCustom     ModifierType = "custom"
)

// GroupModifier is an access-control annotation derived from a
// parenthesized segment. It never contributes to the URL path.
type GroupModifier struct {
	// Name is the raw group name, e.g. "admin" for "(admin)".
	Name string

	// Type is the modifier kind.
	Type ModifierType

	// Value carries the role name, permission, scope, or raw custom value.
	Value string
}

// Parsed is the typed form of one raw path segment.
// Immutable, produced once per raw segment string.
type Parsed struct {
	// Raw is the original segment text.
	Raw string

	// Type is the segment classification.
	Type Type

	// Name is the literal name for static segments, empty for private.
	Name string

	// ParamName is the parameter name for dynamic/optional/catch-all segments.
	ParamName string

	// Optional is set for optional and optional catch-all segments.
	Optional bool

	// Modifier is set only for group segments.
	Modifier *GroupModifier
}

// PrivatePrefix marks private (ignored) files and directories.
const PrivatePrefix = "_"

// Parse converts one raw path segment into its typed form.
// Parse is total: it never fails, unrecognized patterns degrade to static.
// Rules are checked in priority order: private, group, catch-all,
// optional, dynamic, static.
func Parse(name string) Parsed {
	if strings.HasPrefix(name, PrivatePrefix) {
		return Parsed{Raw: name, Type: TypePrivate}
	}

	if inner, ok := unwrap(name, "(", ")"); ok {
		mod := ParseGroupModifier(inner)
		return Parsed{Raw: name, Type: TypeGroup, Name: inner, Modifier: &mod}
	}

	// Optional catch-all: [[...slug]]
	if inner, ok := unwrap(name, "[[...", "]]"); ok && validParam(inner) {
		return Parsed{Raw: name, Type: TypeCatchAll, ParamName: inner, Optional: true}
	}

	// Catch-all: [...slug]
	if inner, ok := unwrap(name, "[...", "]"); ok && validParam(inner) {
		return Parsed{Raw: name, Type: TypeCatchAll, ParamName: inner}
	}

	// Optional: [[id]]
	if inner, ok := unwrap(name, "[[", "]]"); ok && validParam(inner) {
		return Parsed{Raw: name, Type: TypeOptional, ParamName: inner, Optional: true}
	}

	// Dynamic: [id]
	if inner, ok := unwrap(name, "[", "]"); ok && validParam(inner) {
		return Parsed{Raw: name, Type: TypeDynamic, ParamName: inner}
	}

	return Parsed{Raw: name, Type: TypeStatic, Name: name}
}

// unwrap strips a prefix/suffix pair, requiring non-empty inner text.
func unwrap(s, prefix, suffix string) (string, bool) {
	if !strings.HasPrefix(s, prefix) || !strings.HasSuffix(s, suffix) {
		return "", false
	}
	inner := s[len(prefix) : len(s)-len(suffix)]
	if inner == "" {
		return "", false
	}
	return inner, true
}

// validParam reports whether a parameter name contains no bracket or
// parenthesis characters. Malformed names degrade the segment to static.
func validParam(name string) bool {
	return !strings.ContainsAny(name, "[]()")
}

// wellKnownGroups maps recognized group names to modifiers.
var wellKnownGroups = map[string]GroupModifier{
	"public":        {Type: ModifierPublic},
	"anonymous":     {Type: ModifierPublic},
	"auth":          {Type: ModifierAuth},
	"authenticated": {Type: ModifierAuth},
	"protected":     {Type: ModifierAuth},
	"admin":         {Type: ModifierRole, Value: "admin"},
	"superadmin":    {Type: ModifierRole, Value: "superadmin"},
	"moderator":     {Type: ModifierRole, Value: "moderator"},
	"owner":         {Type: ModifierCustom, Value: "owner"},
	"team":          {Type: ModifierScope, Value: "team"},
	"org":           {Type: ModifierScope, Value: "org"},
}

// ParseGroupModifier converts a group name into an access modifier.
// Explicit "role:", "perm:" and "scope:" prefixes take precedence,
// then the well-known group table, then a custom modifier carrying
// the raw name.
func ParseGroupModifier(name string) GroupModifier {
	if value, ok := strings.CutPrefix(name, "role:"); ok && value != "" {
		return GroupModifier{Name: name, Type: ModifierRole, Value: value}
	}
	if value, ok := strings.CutPrefix(name, "perm:"); ok && value != "" {
		return GroupModifier{Name: name, Type: ModifierPermission, Value: value}
	}
	if value, ok := strings.CutPrefix(name, "scope:"); ok && value != "" {
		return GroupModifier{Name: name, Type: ModifierScope, Value: value}
	}

	if mod, ok := wellKnownGroups[strings.ToLower(name)]; ok {
		mod.Name = name
		return mod
	}

	return GroupModifier{Name: name, Type: ModifierCustom, Value: name}
}

// PathToken renders the segment as a URL path token using the
// matcher's notation (":name", ":name?", "*name"). Group and private
// segments render as the empty string since they never contribute to
// the URL.
func (p Parsed) PathToken() string {
	switch p.Type {
	case TypeStatic:
		return p.Name
	case TypeDynamic:
		return ":" + p.ParamName
	case TypeOptional:
		return ":" + p.ParamName + "?"
	case TypeCatchAll:
		return "*" + p.ParamName
	default:
		return ""
	}
}

// IsParam reports whether the segment binds a path parameter.
func (p Parsed) IsParam() bool {
	switch p.Type {
	case TypeDynamic, TypeOptional, TypeCatchAll:
		return true
	}
	return false
}
