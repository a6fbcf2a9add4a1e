// Package matcher compiles URL path patterns into matchers with
// parameter extraction and specificity scoring.
//
// Pattern syntax: static segments match literally, ":name" matches
// one required segment, ":name?" matches an optional segment, and
// "*name" is a catch-all matching the remainder of the path
// including slashes.
package matcher

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Matcher is the compiled form of one path pattern.
type Matcher struct {
	pattern string
	re      *regexp.Regexp

	paramNames []string

	// staticPrefix is built only from segments before the first
	// dynamic or catch-all segment and is used as an O(1) pre-filter
	// before regex evaluation. Static segments after a dynamic one
	// are intentionally not part of the prefix; the regex always
	// decides correctness, the prefix only improves selectivity.
	staticPrefix string

	staticCount  int
	dynamicCount int
	segmentCount int
	hasCatchAll  bool
}

// Result is a successful match.
type Result struct {
	// Params are the URL-decoded captured parameters.
	Params map[string]string

	// Score ranks the match: 10 per static segment plus 1 per
	// dynamic segment. Higher scores are more specific.
	Score int
}

// Compile builds a matcher for a path pattern.
func Compile(pattern string) (*Matcher, error) {
	if pattern == "" || pattern[0] != '/' {
		return nil, fmt.Errorf("pattern %q: must start with /", pattern)
	}

	m := &Matcher{pattern: pattern}

	var re strings.Builder
	re.WriteString("^")

	var prefix strings.Builder
	prefixOpen := true

	segs := splitSegments(pattern)
	m.segmentCount = len(segs)

	for _, seg := range segs {
		switch {
		case strings.HasPrefix(seg, "*"):
			name := strings.TrimPrefix(seg, "*")
			if name == "" {
				name = "wildcard"
			}
			m.paramNames = append(m.paramNames, name)
			m.hasCatchAll = true
			re.WriteString(`(?:/(.*))?`)
			prefixOpen = false

		case strings.HasPrefix(seg, ":") && strings.HasSuffix(seg, "?"):
			name := strings.TrimSuffix(strings.TrimPrefix(seg, ":"), "?")
			if name == "" {
				return nil, fmt.Errorf("pattern %q: empty optional parameter", pattern)
			}
			m.paramNames = append(m.paramNames, name)
			m.dynamicCount++
			re.WriteString(`(?:/([^/]+))?`)
			prefixOpen = false

		case strings.HasPrefix(seg, ":"):
			name := strings.TrimPrefix(seg, ":")
			if name == "" {
				return nil, fmt.Errorf("pattern %q: empty parameter", pattern)
			}
			m.paramNames = append(m.paramNames, name)
			m.dynamicCount++
			re.WriteString(`/([^/]+)`)
			prefixOpen = false

		default:
			m.staticCount++
			re.WriteString("/" + regexp.QuoteMeta(seg))
			if prefixOpen {
				prefix.WriteString("/" + seg)
			}
		}
	}

	if m.segmentCount == 0 {
		// Root pattern "/".
		re.WriteString("/")
	}
	re.WriteString("$")

	compiled, err := regexp.Compile(re.String())
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", pattern, err)
	}

	m.re = compiled
	m.staticPrefix = prefix.String()
	return m, nil
}

// MustCompile is Compile that panics on error, for static patterns.
func MustCompile(pattern string) *Matcher {
	m, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

// Pattern returns the original pattern.
func (m *Matcher) Pattern() string { return m.pattern }

// ParamNames returns the parameter names in pattern order.
func (m *Matcher) ParamNames() []string { return m.paramNames }

// StaticPrefix returns the pre-filter prefix.
func (m *Matcher) StaticPrefix() string { return m.staticPrefix }

// SegmentCount returns the number of pattern segments.
func (m *Matcher) SegmentCount() int { return m.segmentCount }

// Score returns the matcher's specificity score.
func (m *Matcher) Score() int { return 10*m.staticCount + m.dynamicCount }

// HasCatchAll reports whether the pattern ends in a catch-all.
func (m *Matcher) HasCatchAll() bool { return m.hasCatchAll }

// Match tests a path against the compiled pattern. The path should
// already be trailing-slash normalized (see NormalizePath). Absent
// optional parameters are omitted from the parameter map.
func (m *Matcher) Match(path string) (*Result, bool) {
	if path == "" {
		path = "/"
	}

	if m.staticPrefix != "" && !strings.HasPrefix(path, m.staticPrefix) {
		return nil, false
	}

	groups := m.re.FindStringSubmatch(path)
	if groups == nil {
		return nil, false
	}

	params := make(map[string]string, len(m.paramNames))
	for i, name := range m.paramNames {
		if i+1 >= len(groups) {
			break
		}
		raw := groups[i+1]
		if raw == "" {
			continue
		}
		if decoded, err := url.PathUnescape(raw); err == nil {
			params[name] = decoded
		} else {
			params[name] = raw
		}
	}

	return &Result{Params: params, Score: m.Score()}, true
}

// NormalizePath applies trailing-slash normalization. In non-strict
// mode "/api/users/" and "/api/users" are the same path; the root
// path is always "/".
func NormalizePath(path string, strict bool) string {
	if path == "" {
		return "/"
	}
	if !strict && len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}

func splitSegments(pattern string) []string {
	var segs []string
	for _, s := range strings.Split(pattern, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}
