package permission

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Rule is a custom permission-derivation rule. Rules match endpoint
// paths by glob or regex pattern and produce a templated permission.
type Rule struct {
	// Name identifies the rule in diagnostics.
	Name string `yaml:"name"`

	// Pattern matches endpoint path patterns. Glob patterns use "*"
	// for one segment and "**" for any suffix; a pattern both starting
	// and ending with a slash ("/.../") is always treated as a regular
	// expression, with the wrapping slashes stripped.
	Pattern string `yaml:"pattern"`

	// Methods limits the rule to specific HTTP methods; empty means all.
	Methods []string `yaml:"methods"`

	// Template produces the rule's permission.
	Template Template `yaml:"template"`

	// Priority orders rule application, highest first.
	Priority int `yaml:"priority"`

	// Override discards all algorithmically-derived permissions in
	// favor of this rule's permission when the rule matches.
	Override bool `yaml:"override"`
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// Ruleset holds compiled rules sorted by priority.
type Ruleset struct {
	rules []compiledRule
}

// NewRuleset compiles rules and orders them by descending priority.
// Rules with equal priority keep their declaration order.
func NewRuleset(rules []Rule) (*Ruleset, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if err := r.Template.Validate(); err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		re, err := compileRulePattern(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		compiled = append(compiled, compiledRule{Rule: r, re: re})
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Priority > compiled[j].Priority
	})

	return &Ruleset{rules: compiled}, nil
}

// compileRulePattern converts a glob or "/regex/" pattern to a regexp.
// The wrapper alone decides: endpoint path patterns never end with a
// slash, so "/.../" is unambiguous.
func compileRulePattern(pattern string) (*regexp.Regexp, error) {
	if len(pattern) > 1 && strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") {
		return regexp.Compile(pattern[1 : len(pattern)-1])
	}

	// Glob: escape, then expand ** (any suffix) and * (one segment).
	quoted := regexp.QuoteMeta(pattern)
	quoted = strings.ReplaceAll(quoted, `\*\*`, ".*")
	quoted = strings.ReplaceAll(quoted, `\*`, "[^/]+")
	return regexp.Compile("^" + quoted + "$")
}

// Apply runs the ruleset against derived permissions for a path and
// method. Matching rules append their permission; a matching rule
// with Override=true replaces the derived set entirely (the highest
// priority override wins).
func (rs *Ruleset) Apply(path, method string, derived []Derived) []Derived {
	if rs == nil || len(rs.rules) == 0 {
		return derived
	}

	resources := Resources(path)
	resource := ""
	if len(resources) > 0 {
		resource = resources[len(resources)-1]
	}
	action := ActionForMethod(method)

	out := derived
	for _, r := range rs.rules {
		if !r.matchesMethod(method) || !r.re.MatchString(path) {
			continue
		}
		perm := r.Template.Resolve(resource, action)
		if r.Override {
			return []Derived{perm}
		}
		out = appendDerived(out, perm)
	}
	return out
}

// Len returns the number of compiled rules.
func (rs *Ruleset) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

func (r compiledRule) matchesMethod(method string) bool {
	if len(r.Methods) == 0 {
		return true
	}
	for _, m := range r.Methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

func appendDerived(list []Derived, d Derived) []Derived {
	for _, existing := range list {
		if existing.Permission == d.Permission && existing.Scope == d.Scope {
			return list
		}
	}
	return append(list, d)
}
