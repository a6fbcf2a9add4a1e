// Package rbac evaluates access-control decisions for endpoints:
// public short-circuit, authentication, role and permission checks
// with any/all strategies, derived-permission fallback, and ownership
// verification, with a TTL decision cache and audit trail.
package rbac

import (
	"time"

	"github.com/routeforge/routeforge/ports"
)

// Decision classifies an access-check outcome.
type Decision string

const (
	DecisionAllow              Decision = "allow"
	DecisionDeny               Decision = "deny"
	DecisionRequiresAuth       Decision = "requires_auth"
	DecisionRequiresRole       Decision = "requires_role"
	DecisionRequiresPermission Decision = "requires_permission"
)

// Result is the outcome of one access check.
type Result struct {
	Allowed  bool     `json:"allowed"`
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason,omitempty"`

	// MissingRoles and MissingPermissions name the unmet requirements
	// on a denial, for error responses and debugging.
	MissingRoles       []string `json:"missingRoles,omitempty"`
	MissingPermissions []string `json:"missingPermissions,omitempty"`

	EvaluationTime time.Duration `json:"evaluationTime"`
	CacheHit       bool          `json:"cacheHit"`
}

// Checkers are the injected verification backends. Nil checkers fall
// back to the user's in-memory claims where possible; a check that
// cannot be verified fails closed.
type Checkers struct {
	Permission ports.PermissionChecker
	Role       ports.RoleChecker
	Ownership  ports.OwnershipChecker
}

// Config controls engine behavior.
type Config struct {
	// SuperAdminRoles bypass all checks. Defaults to ["superadmin"].
	SuperAdminRoles []string `yaml:"super_admin_roles"`

	// CacheTTL bounds decision cache staleness. Zero disables caching.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// DerivePermissions enables path-derived permission checks for
	// endpoints without explicit permission requirements.
	DerivePermissions bool `yaml:"derive_permissions"`

	// DefaultScope qualifies derived permissions, e.g. "api".
	DefaultScope string `yaml:"default_scope"`
}

func (c Config) withDefaults() Config {
	if c.SuperAdminRoles == nil {
		c.SuperAdminRoles = []string{"superadmin"}
	}
	return c
}

func allow(reason string) Result {
	return Result{Allowed: true, Decision: DecisionAllow, Reason: reason}
}

func deny(decision Decision, reason string) Result {
	return Result{Allowed: false, Decision: decision, Reason: reason}
}
