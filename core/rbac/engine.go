package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/routeforge/routeforge/core/audit"
	"github.com/routeforge/routeforge/core/events"
	"github.com/routeforge/routeforge/domain/access"
	"github.com/routeforge/routeforge/domain/endpoint"
	"github.com/routeforge/routeforge/domain/permission"
	"github.com/routeforge/routeforge/ports"
)

// Engine evaluates access decisions. Checks are ordered so the cheap
// short-circuits (public, unauthenticated, super admin) never touch
// the cache or the external checkers.
type Engine struct {
	cfg      Config
	checkers Checkers
	cache    *decisionCache
	rules    *permission.Ruleset
	store    audit.Store
	clock    ports.Clock
	logger   zerolog.Logger
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// New creates an engine. The decision cache is active only when
// Config.CacheTTL is positive.
func New(cfg Config, checkers Checkers, logger zerolog.Logger) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:      cfg,
		checkers: checkers,
		clock:    systemClock{},
		logger:   logger,
	}
	if cfg.CacheTTL > 0 {
		e.cache = newDecisionCache(cfg.CacheTTL, e.clock)
	}
	return e
}

// UseClock swaps the time source, rebuilding the decision cache.
func (e *Engine) UseClock(clock ports.Clock) {
	e.clock = clock
	if e.cfg.CacheTTL > 0 {
		e.cache = newDecisionCache(e.cfg.CacheTTL, clock)
	}
}

// UseAudit installs the audit sink.
func (e *Engine) UseAudit(store audit.Store) { e.store = store }

// UseRules installs custom permission-derivation rules.
func (e *Engine) UseRules(rs *permission.Ruleset) { e.rules = rs }

// CheckAccess evaluates whether a user may invoke an endpoint. It
// never returns an error: a checker failure is a failed check and the
// decision falls closed.
func (e *Engine) CheckAccess(ctx context.Context, ep *endpoint.Endpoint, user *ports.User, params map[string]string) Result {
	start := time.Now()

	result, cached, audited := e.evaluate(ctx, ep, user, params)
	result.EvaluationTime = time.Since(start)
	result.CacheHit = cached

	if audited && !cached {
		e.record(ctx, ep, user, result)
	}

	e.logger.Debug().
		Str("endpoint", ep.ID).
		Str("decision", string(result.Decision)).
		Bool("cached", cached).
		Dur("took", result.EvaluationTime).
		Msg("access check")

	return result
}

// evaluate runs the decision flow. The audited return is false for
// the public short-circuit, which would otherwise dominate the trail.
func (e *Engine) evaluate(ctx context.Context, ep *endpoint.Endpoint, user *ports.User, params map[string]string) (result Result, cached, audited bool) {
	ac := ep.Access

	if ac.IsPublic {
		return allow("public endpoint"), false, false
	}

	authenticated := user != nil && user.Authenticated
	if ac.RequiresAuth && !authenticated {
		return deny(DecisionRequiresAuth, "authentication required"), false, true
	}

	// Only public endpoints are reachable without a caller identity.
	if user == nil {
		return deny(DecisionDeny, "no caller identity"), false, true
	}

	if !authenticated && hasRequirements(ac) {
		return deny(DecisionDeny, "anonymous access to restricted endpoint"), false, true
	}

	if e.isSuperAdmin(user) {
		return allow("super admin"), false, true
	}

	key := ""
	if e.cache != nil {
		key = decisionKey(ep.ID, user.ID, ownershipResourceID(ac, params))
		if res, ok := e.cache.get(key); ok {
			return res, true, true
		}
	}

	result = e.evaluateChecks(ctx, ep, user, params)

	if e.cache != nil && key != "" {
		e.cache.put(key, result)
	}
	return result, false, true
}

// evaluateChecks runs the role, permission, scope, and ownership
// checks in order, failing on the first unmet requirement.
func (e *Engine) evaluateChecks(ctx context.Context, ep *endpoint.Endpoint, user *ports.User, params map[string]string) Result {
	ac := ep.Access

	if missing := e.missingRoles(ctx, user, ac); missing != nil {
		res := deny(DecisionRequiresRole, fmt.Sprintf("missing required role (%s strategy)", ac.RoleStrategy))
		res.MissingRoles = missing
		return res
	}

	if missing := e.missingPermissions(ctx, ep, user, ac); missing != nil {
		res := deny(DecisionRequiresPermission, fmt.Sprintf("missing required permission (%s strategy)", ac.PermissionStrategy))
		res.MissingPermissions = missing
		return res
	}

	if ac.Scope != "" && !userHasScope(user, ac.Scope) {
		return deny(DecisionDeny, "missing scope "+ac.Scope)
	}

	if ac.Ownership != nil {
		if res, ok := e.checkOwnership(ctx, user, ac, params); !ok {
			return res
		}
	}

	return allow("all checks passed")
}

// missingRoles returns nil when the role requirement is satisfied.
func (e *Engine) missingRoles(ctx context.Context, user *ports.User, ac access.Computed) []string {
	if len(ac.RequiredRoles) == 0 {
		return nil
	}

	var missing []string
	held := 0
	for _, role := range ac.RequiredRoles {
		if e.userHasRole(ctx, user, role) {
			held++
		} else {
			missing = append(missing, role)
		}
	}

	if ac.RoleStrategy == access.StrategyAll {
		if len(missing) == 0 {
			return nil
		}
		return missing
	}
	if held > 0 {
		return nil
	}
	return missing
}

func (e *Engine) userHasRole(ctx context.Context, user *ports.User, role string) bool {
	if e.checkers.Role != nil {
		ok, err := e.checkers.Role.HasRole(ctx, user, role)
		if err != nil {
			e.logger.Warn().Err(err).Str("role", role).Msg("role check failed")
			return false
		}
		return ok
	}
	return user.HasRole(role)
}

// missingPermissions returns nil when the permission requirement is
// satisfied. With no explicit requirement and derivation enabled, the
// path-derived permissions apply instead, combined under the same
// any/all strategy; derived permissions are checked only when a
// permission checker is configured, since the user object carries no
// permission claims.
func (e *Engine) missingPermissions(ctx context.Context, ep *endpoint.Endpoint, user *ports.User, ac access.Computed) []string {
	required := ac.RequiredPermissions
	derived := false

	if len(required) == 0 && e.cfg.DerivePermissions && user != nil && user.Authenticated {
		for _, d := range e.derivePermissions(ep) {
			required = append(required, d.Permission)
		}
		derived = true
	}
	if len(required) == 0 {
		return nil
	}

	if e.checkers.Permission == nil {
		if derived {
			return nil
		}
		// An explicit requirement with no checker fails closed.
		return required
	}

	var missing []string
	held := 0
	for _, perm := range required {
		ok, err := e.checkers.Permission.HasPermission(ctx, user, perm, user.Claims)
		if err != nil {
			e.logger.Warn().Err(err).Str("permission", perm).Msg("permission check failed")
			ok = false
		}
		if ok {
			held++
		} else {
			missing = append(missing, perm)
		}
	}

	if ac.PermissionStrategy == access.StrategyAll {
		if len(missing) == 0 {
			return nil
		}
		return missing
	}
	if held > 0 {
		return nil
	}
	return missing
}

// requiredPermissions reports what a check demanded of the caller:
// the endpoint's explicit list when present, otherwise the derived
// set for eligible callers.
func (e *Engine) requiredPermissions(ep *endpoint.Endpoint, user *ports.User) []string {
	if len(ep.Access.RequiredPermissions) > 0 {
		return ep.Access.RequiredPermissions
	}
	if !e.cfg.DerivePermissions || user == nil || !user.Authenticated {
		return nil
	}
	var out []string
	for _, d := range e.derivePermissions(ep) {
		out = append(out, d.Permission)
	}
	return out
}

func (e *Engine) derivePermissions(ep *endpoint.Endpoint) []permission.Derived {
	scope := ep.Access.Scope
	if scope == "" {
		scope = e.cfg.DefaultScope
	}
	derived := permission.Derive(ep.Path, ep.Method, scope)
	if e.rules != nil {
		derived = e.rules.Apply(ep.Path, ep.Method, derived)
	}
	return derived
}

func (e *Engine) checkOwnership(ctx context.Context, user *ports.User, ac access.Computed, params map[string]string) (Result, bool) {
	own := ac.Ownership

	resourceID := ""
	if params != nil {
		resourceID = params[own.ParamName]
	}
	if resourceID == "" {
		return deny(DecisionDeny, "ownership check requires parameter "+own.ParamName), false
	}

	if e.checkers.Ownership == nil {
		return deny(DecisionDeny, "no ownership checker configured"), false
	}

	ok, err := e.checkers.Ownership.Owns(ctx, user, own.ResourceType, resourceID, own.OwnerField)
	if err != nil {
		e.logger.Warn().Err(err).Str("resource", own.ResourceType).Msg("ownership check failed")
		ok = false
	}
	if !ok {
		return deny(DecisionDeny, fmt.Sprintf("not the owner of %s %s", own.ResourceType, resourceID)), false
	}
	return Result{}, true
}

func (e *Engine) isSuperAdmin(user *ports.User) bool {
	for _, role := range e.cfg.SuperAdminRoles {
		if user.HasRole(role) {
			return true
		}
	}
	return false
}

func hasRequirements(ac access.Computed) bool {
	return len(ac.RequiredRoles) > 0 || len(ac.RequiredPermissions) > 0 ||
		ac.Scope != "" || ac.Ownership != nil
}

func ownershipResourceID(ac access.Computed, params map[string]string) string {
	if ac.Ownership == nil || params == nil {
		return ""
	}
	return params[ac.Ownership.ParamName]
}

// userHasScope checks the user's scope claims. Both a single string
// claim and a string list are accepted.
func userHasScope(user *ports.User, scope string) bool {
	if user == nil {
		return false
	}
	claim, ok := user.Claims["scopes"]
	if !ok {
		claim, ok = user.Claims["scope"]
	}
	if !ok {
		return false
	}

	switch v := claim.(type) {
	case string:
		return v == scope
	case []string:
		for _, s := range v {
			if s == scope {
				return true
			}
		}
	case []any:
		for _, s := range v {
			if str, ok := s.(string); ok && str == scope {
				return true
			}
		}
	}
	return false
}

func (e *Engine) record(ctx context.Context, ep *endpoint.Endpoint, user *ports.User, result Result) {
	if e.store == nil {
		return
	}

	rec := audit.Record{
		EndpointID:          ep.ID,
		Method:              ep.Method,
		Path:                ep.Path,
		Decision:            string(result.Decision),
		Reason:              result.Reason,
		Allowed:             result.Allowed,
		RequiredPermissions: e.requiredPermissions(ep, user),
		MissingRoles:        result.MissingRoles,
		MissingPermissions:  result.MissingPermissions,
		CacheHit:            result.CacheHit,
		Duration:            result.EvaluationTime,
	}
	if user != nil {
		rec.UserID = user.ID
		rec.Roles = user.Roles
	}

	if err := e.store.Append(ctx, rec); err != nil {
		e.logger.Warn().Err(err).Str("endpoint", ep.ID).Msg("audit append failed")
	}
}

// InvalidateEndpoint drops cached decisions for one endpoint.
func (e *Engine) InvalidateEndpoint(endpointID string) {
	if e.cache == nil {
		return
	}
	e.cache.invalidate(func(key string) bool {
		return keyEndpoint(key) == endpointID
	})
}

// InvalidateUser drops cached decisions for one user, e.g. after a
// role change.
func (e *Engine) InvalidateUser(userID string) {
	if e.cache == nil {
		return
	}
	e.cache.invalidate(func(key string) bool {
		return keyUser(key) == userID
	})
}

// InvalidateAll clears the decision cache.
func (e *Engine) InvalidateAll() {
	if e.cache != nil {
		e.cache.clear()
	}
}

// CachedDecisions returns the decision cache entry count.
func (e *Engine) CachedDecisions() int {
	if e.cache == nil {
		return 0
	}
	return e.cache.len()
}

// WatchRegistry invalidates cached decisions when endpoints change.
// Returns the unsubscribe function.
func (e *Engine) WatchRegistry(bus *events.Bus) func() {
	return bus.Subscribe(func(ev events.Event) {
		switch ev.Type {
		case events.TypeRegistered, events.TypeUpdated, events.TypeUnregistered:
			e.InvalidateEndpoint(ev.EndpointID)
		case events.TypeBatchRegistered, events.TypeCleared:
			e.InvalidateAll()
		}
	})
}
