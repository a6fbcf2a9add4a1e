// Package access provides computed access requirements for endpoints.
// Requirements are derived by folding a route's group modifiers in
// order, then merging an explicit override field-by-field on top.
// This package has NO dependencies on I/O.
package access

import (
	"github.com/routeforge/routeforge/domain/segment"
)

// Strategy selects how multiple role or permission requirements combine.
type Strategy string

const (
	StrategyAny Strategy = "any" // at least one must hold
	StrategyAll Strategy = "all" // every one must hold
)

// OwnershipRequirement configures the ownership check for an endpoint.
type OwnershipRequirement struct {
	// ResourceType names the owned resource, e.g. "users".
	ResourceType string `yaml:"resource_type" json:"resourceType"`

	// ParamName is the path parameter holding the resource id.
	// Defaults to the route's last path parameter when empty.
	ParamName string `yaml:"param_name" json:"paramName,omitempty"`

	// OwnerField is the field on the resource identifying its owner.
	OwnerField string `yaml:"owner_field" json:"ownerField,omitempty"`
}

// Computed is the fully-resolved access requirement for one endpoint.
type Computed struct {
	IsPublic            bool                  `json:"isPublic"`
	RequiresAuth        bool                  `json:"requiresAuth"`
	RequiredRoles       []string              `json:"requiredRoles,omitempty"`
	RequiredPermissions []string              `json:"requiredPermissions,omitempty"`
	RoleStrategy        Strategy              `json:"roleStrategy"`
	PermissionStrategy  Strategy              `json:"permissionStrategy"`
	Scope               string                `json:"scope,omitempty"`
	Ownership           *OwnershipRequirement `json:"ownership,omitempty"`

	// InheritedFrom lists the group names that contributed requirements,
	// outermost first.
	InheritedFrom []string `json:"inheritedFrom,omitempty"`

	// Overrides lists the override sources applied on top, in order.
	Overrides []string `json:"overrides,omitempty"`
}

// Default returns the baseline requirement: not public, no explicit
// role or permission requirements, with "any" combination strategies.
// A non-public endpoint is still reachable only by an identified
// caller.
func Default() Computed {
	return Computed{
		RequiresAuth:       false,
		RoleStrategy:       StrategyAny,
		PermissionStrategy: StrategyAny,
	}
}

// Compute folds ordered group modifiers (outermost first) into a
// requirement. Later modifiers refine earlier ones; an inner (public)
// under an outer (admin) yields a public endpoint that still records
// the admin role requirement lineage.
func Compute(modifiers []segment.GroupModifier) Computed {
	c := Default()

	for _, mod := range modifiers {
		c.InheritedFrom = append(c.InheritedFrom, mod.Name)

		switch mod.Type {
		case segment.ModifierPublic:
			c.IsPublic = true
			c.RequiresAuth = false
		case segment.ModifierAuth:
			c.RequiresAuth = true
			c.IsPublic = false
		case segment.ModifierRole:
			c.RequiresAuth = true
			c.IsPublic = false
			c.RequiredRoles = appendUnique(c.RequiredRoles, mod.Value)
		case segment.ModifierPermission:
			c.RequiresAuth = true
			c.IsPublic = false
			c.RequiredPermissions = appendUnique(c.RequiredPermissions, mod.Value)
		case segment.ModifierScope:
			c.RequiresAuth = true
			c.IsPublic = false
			c.Scope = mod.Value
		case segment.ModifierCustom:
			if mod.Value == "owner" {
				c.RequiresAuth = true
				c.IsPublic = false
				c.Ownership = &OwnershipRequirement{}
			}
		}
	}

	return c.normalized()
}

// normalized enforces the invariant that a public endpoint never
// requires authentication.
func (c Computed) normalized() Computed {
	if c.IsPublic {
		c.RequiresAuth = false
	}
	if c.RoleStrategy == "" {
		c.RoleStrategy = StrategyAny
	}
	if c.PermissionStrategy == "" {
		c.PermissionStrategy = StrategyAny
	}
	return c
}

// Override is a partial access requirement from an explicit override
// file. Nil pointer or nil slice fields are "unset" and leave the
// computed value untouched; set fields always win field-by-field.
type Override struct {
	IsPublic            *bool                 `yaml:"public" json:"isPublic,omitempty"`
	RequiresAuth        *bool                 `yaml:"requires_auth" json:"requiresAuth,omitempty"`
	RequiredRoles       []string              `yaml:"roles" json:"requiredRoles,omitempty"`
	RequiredPermissions []string              `yaml:"permissions" json:"requiredPermissions,omitempty"`
	RoleStrategy        *Strategy             `yaml:"role_strategy" json:"roleStrategy,omitempty"`
	PermissionStrategy  *Strategy             `yaml:"permission_strategy" json:"permissionStrategy,omitempty"`
	Scope               *string               `yaml:"scope" json:"scope,omitempty"`
	Ownership           *OwnershipRequirement `yaml:"ownership" json:"ownership,omitempty"`

	// Source names where the override came from, typically the marker
	// file path. Recorded in Computed.Overrides.
	Source string `yaml:"-" json:"source,omitempty"`
}

// IsZero reports whether the override sets no fields.
func (o Override) IsZero() bool {
	return o.IsPublic == nil && o.RequiresAuth == nil &&
		o.RequiredRoles == nil && o.RequiredPermissions == nil &&
		o.RoleStrategy == nil && o.PermissionStrategy == nil &&
		o.Scope == nil && o.Ownership == nil
}

// Merge applies an override on top of a computed requirement.
// The merge is an explicit field-by-field copy: set override fields
// replace the computed value, unset fields keep it. The public/auth
// invariant is re-established afterwards, so an override that only
// sets public=true also clears requiresAuth.
func Merge(base Computed, o Override) Computed {
	out := base

	if o.IsPublic != nil {
		out.IsPublic = *o.IsPublic
		if *o.IsPublic {
			out.RequiresAuth = false
		}
	}
	if o.RequiresAuth != nil {
		out.RequiresAuth = *o.RequiresAuth
		if *o.RequiresAuth {
			out.IsPublic = false
		}
	}
	if o.RequiredRoles != nil {
		out.RequiredRoles = append([]string(nil), o.RequiredRoles...)
	}
	if o.RequiredPermissions != nil {
		out.RequiredPermissions = append([]string(nil), o.RequiredPermissions...)
	}
	if o.RoleStrategy != nil {
		out.RoleStrategy = *o.RoleStrategy
	}
	if o.PermissionStrategy != nil {
		out.PermissionStrategy = *o.PermissionStrategy
	}
	if o.Scope != nil {
		out.Scope = *o.Scope
	}
	if o.Ownership != nil {
		cp := *o.Ownership
		out.Ownership = &cp
	}

	if !o.IsZero() {
		source := o.Source
		if source == "" {
			source = "override"
		}
		out.Overrides = append(append([]string(nil), base.Overrides...), source)
	}

	return out.normalized()
}

func appendUnique(list []string, value string) []string {
	if value == "" {
		return list
	}
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
