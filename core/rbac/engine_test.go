package rbac_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/routeforge/routeforge/core/audit"
	"github.com/routeforge/routeforge/core/rbac"
	"github.com/routeforge/routeforge/domain/access"
	"github.com/routeforge/routeforge/domain/endpoint"
	"github.com/routeforge/routeforge/ports"
)

func testEndpoint(ac access.Computed) *endpoint.Endpoint {
	return &endpoint.Endpoint{
		ID:     "get_api_users_id",
		Method: "GET",
		Path:   "/api/users/:id",
		Access: ac,
	}
}

func authUser(roles ...string) *ports.User {
	return &ports.User{ID: "u1", Roles: roles, Authenticated: true}
}

func newEngine(cfg rbac.Config, checkers rbac.Checkers) *rbac.Engine {
	return rbac.New(cfg, checkers, zerolog.Nop())
}

func TestCheckAccess_PublicShortCircuit(t *testing.T) {
	e := newEngine(rbac.Config{}, rbac.Checkers{})
	ep := testEndpoint(access.Computed{IsPublic: true})

	res := e.CheckAccess(context.Background(), ep, nil, nil)
	if !res.Allowed || res.Decision != rbac.DecisionAllow {
		t.Errorf("result = %+v", res)
	}
}

func TestCheckAccess_RequiresAuth(t *testing.T) {
	e := newEngine(rbac.Config{}, rbac.Checkers{})
	ep := testEndpoint(access.Computed{RequiresAuth: true})

	res := e.CheckAccess(context.Background(), ep, nil, nil)
	if res.Allowed || res.Decision != rbac.DecisionRequiresAuth {
		t.Errorf("nil user: %+v", res)
	}

	res = e.CheckAccess(context.Background(), ep, &ports.User{ID: "u1"}, nil)
	if res.Allowed || res.Decision != rbac.DecisionRequiresAuth {
		t.Errorf("unauthenticated user: %+v", res)
	}

	res = e.CheckAccess(context.Background(), ep, authUser(), nil)
	if !res.Allowed {
		t.Errorf("authenticated user: %+v", res)
	}
}

func TestCheckAccess_NoCallerDenied(t *testing.T) {
	e := newEngine(rbac.Config{}, rbac.Checkers{})

	// Not public, no explicit requirements: still unreachable without
	// a caller identity.
	ep := testEndpoint(access.Default())

	res := e.CheckAccess(context.Background(), ep, nil, nil)
	if res.Allowed || res.Decision != rbac.DecisionDeny {
		t.Errorf("nil caller: %+v", res)
	}

	if res := e.CheckAccess(context.Background(), ep, authUser(), nil); !res.Allowed {
		t.Errorf("authenticated caller: %+v", res)
	}
}

func TestCheckAccess_SuperAdminBypass(t *testing.T) {
	e := newEngine(rbac.Config{}, rbac.Checkers{})
	ep := testEndpoint(access.Computed{
		RequiresAuth:  true,
		RequiredRoles: []string{"editor", "reviewer"},
		RoleStrategy:  access.StrategyAll,
	})

	res := e.CheckAccess(context.Background(), ep, authUser("superadmin"), nil)
	if !res.Allowed {
		t.Errorf("super admin denied: %+v", res)
	}
}

func TestCheckAccess_RoleStrategies(t *testing.T) {
	tests := []struct {
		name     string
		strategy access.Strategy
		roles    []string
		want     bool
		missing  []string
	}{
		{"any with one held", access.StrategyAny, []string{"editor"}, true, nil},
		{"any with none held", access.StrategyAny, []string{"viewer"}, false, []string{"editor", "admin"}},
		{"all with all held", access.StrategyAll, []string{"editor", "admin"}, true, nil},
		{"all with one missing", access.StrategyAll, []string{"editor"}, false, []string{"admin"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(rbac.Config{}, rbac.Checkers{})
			ep := testEndpoint(access.Computed{
				RequiresAuth:  true,
				RequiredRoles: []string{"editor", "admin"},
				RoleStrategy:  tt.strategy,
			})

			res := e.CheckAccess(context.Background(), ep, authUser(tt.roles...), nil)
			if res.Allowed != tt.want {
				t.Fatalf("allowed = %v, want %v (%+v)", res.Allowed, tt.want, res)
			}
			if !tt.want {
				if res.Decision != rbac.DecisionRequiresRole {
					t.Errorf("decision = %v", res.Decision)
				}
				if len(res.MissingRoles) != len(tt.missing) {
					t.Errorf("missing = %v, want %v", res.MissingRoles, tt.missing)
				}
			}
		})
	}
}

func grantPermissions(perms ...string) ports.PermissionCheckerFunc {
	return func(ctx context.Context, user *ports.User, perm string, extra map[string]any) (bool, error) {
		for _, p := range perms {
			if p == perm {
				return true, nil
			}
		}
		return false, nil
	}
}

func TestCheckAccess_ExplicitPermissions(t *testing.T) {
	ep := testEndpoint(access.Computed{
		RequiresAuth:        true,
		RequiredPermissions: []string{"users:write"},
		PermissionStrategy:  access.StrategyAny,
	})

	e := newEngine(rbac.Config{}, rbac.Checkers{Permission: grantPermissions("users:write")})
	if res := e.CheckAccess(context.Background(), ep, authUser(), nil); !res.Allowed {
		t.Errorf("granted permission denied: %+v", res)
	}

	e = newEngine(rbac.Config{}, rbac.Checkers{Permission: grantPermissions("users:read")})
	res := e.CheckAccess(context.Background(), ep, authUser(), nil)
	if res.Allowed || res.Decision != rbac.DecisionRequiresPermission {
		t.Errorf("ungranted permission allowed: %+v", res)
	}
	if len(res.MissingPermissions) != 1 || res.MissingPermissions[0] != "users:write" {
		t.Errorf("missing = %v", res.MissingPermissions)
	}
}

func TestCheckAccess_ExplicitPermissionWithoutCheckerFailsClosed(t *testing.T) {
	ep := testEndpoint(access.Computed{
		RequiresAuth:        true,
		RequiredPermissions: []string{"users:write"},
	})

	e := newEngine(rbac.Config{}, rbac.Checkers{})
	res := e.CheckAccess(context.Background(), ep, authUser(), nil)
	if res.Allowed {
		t.Errorf("unverifiable permission allowed: %+v", res)
	}
}

func TestCheckAccess_DerivedPermissions(t *testing.T) {
	ep := testEndpoint(access.Computed{RequiresAuth: true})
	cfg := rbac.Config{DerivePermissions: true}

	// GET /api/users/:id derives users:read as the primary permission.
	e := newEngine(cfg, rbac.Checkers{Permission: grantPermissions("users:read")})
	if res := e.CheckAccess(context.Background(), ep, authUser(), nil); !res.Allowed {
		t.Errorf("derived permission denied: %+v", res)
	}

	e = newEngine(cfg, rbac.Checkers{Permission: grantPermissions("other:read")})
	res := e.CheckAccess(context.Background(), ep, authUser(), nil)
	if res.Allowed || res.Decision != rbac.DecisionRequiresPermission {
		t.Errorf("underived permission allowed: %+v", res)
	}
}

func TestCheckAccess_DerivedPermissionsHonorStrategy(t *testing.T) {
	// GET /api/orgs/:orgId/teams/:teamId derives teams:read plus
	// orgs:read; under the "all" strategy the ancestor read alone must
	// not suffice.
	ep := &endpoint.Endpoint{
		ID:     "get_api_orgs_orgid_teams_teamid",
		Method: "GET",
		Path:   "/api/orgs/:orgId/teams/:teamId",
		Access: access.Computed{
			RequiresAuth:       true,
			PermissionStrategy: access.StrategyAll,
		},
	}
	cfg := rbac.Config{DerivePermissions: true}

	e := newEngine(cfg, rbac.Checkers{Permission: grantPermissions("orgs:read")})
	res := e.CheckAccess(context.Background(), ep, authUser(), nil)
	if res.Allowed || res.Decision != rbac.DecisionRequiresPermission {
		t.Fatalf("ancestor read alone: %+v", res)
	}
	if !reflect.DeepEqual(res.MissingPermissions, []string{"teams:read"}) {
		t.Errorf("missing = %v", res.MissingPermissions)
	}

	e = newEngine(cfg, rbac.Checkers{Permission: grantPermissions("teams:read", "orgs:read")})
	if res := e.CheckAccess(context.Background(), ep, authUser(), nil); !res.Allowed {
		t.Errorf("full permission set denied: %+v", res)
	}
}

func TestCheckAccess_CheckerErrorFailsClosed(t *testing.T) {
	failing := ports.PermissionCheckerFunc(func(ctx context.Context, user *ports.User, perm string, extra map[string]any) (bool, error) {
		return true, errors.New("backend down")
	})
	ep := testEndpoint(access.Computed{
		RequiresAuth:        true,
		RequiredPermissions: []string{"users:read"},
	})

	e := newEngine(rbac.Config{}, rbac.Checkers{Permission: failing})
	if res := e.CheckAccess(context.Background(), ep, authUser(), nil); res.Allowed {
		t.Errorf("checker error must deny: %+v", res)
	}
}

func TestCheckAccess_Ownership(t *testing.T) {
	owns := ports.OwnershipCheckerFunc(func(ctx context.Context, user *ports.User, resourceType, resourceID, ownerField string) (bool, error) {
		return resourceID == "42" && user.ID == "u1", nil
	})
	ep := testEndpoint(access.Computed{
		RequiresAuth: true,
		Ownership:    &access.OwnershipRequirement{ResourceType: "users", ParamName: "id"},
	})

	e := newEngine(rbac.Config{}, rbac.Checkers{Ownership: owns})
	ctx := context.Background()

	if res := e.CheckAccess(ctx, ep, authUser(), map[string]string{"id": "42"}); !res.Allowed {
		t.Errorf("owner denied: %+v", res)
	}
	if res := e.CheckAccess(ctx, ep, authUser(), map[string]string{"id": "7"}); res.Allowed {
		t.Errorf("non-owner allowed: %+v", res)
	}
	if res := e.CheckAccess(ctx, ep, authUser(), nil); res.Allowed {
		t.Errorf("missing param allowed: %+v", res)
	}
}

func TestCheckAccess_Scope(t *testing.T) {
	ep := testEndpoint(access.Computed{RequiresAuth: true, Scope: "team"})
	e := newEngine(rbac.Config{}, rbac.Checkers{})
	ctx := context.Background()

	user := authUser()
	user.Claims = map[string]any{"scopes": []string{"team", "billing"}}
	if res := e.CheckAccess(ctx, ep, user, nil); !res.Allowed {
		t.Errorf("in-scope user denied: %+v", res)
	}

	user.Claims = map[string]any{"scopes": []string{"billing"}}
	if res := e.CheckAccess(ctx, ep, user, nil); res.Allowed {
		t.Errorf("out-of-scope user allowed: %+v", res)
	}
}

type countingRoleChecker struct{ calls int }

func (c *countingRoleChecker) HasRole(ctx context.Context, user *ports.User, role string) (bool, error) {
	c.calls++
	return user.HasRole(role), nil
}

func TestCheckAccess_DecisionCache(t *testing.T) {
	checker := &countingRoleChecker{}
	e := newEngine(rbac.Config{CacheTTL: time.Minute}, rbac.Checkers{Role: checker})
	ep := testEndpoint(access.Computed{
		RequiresAuth:  true,
		RequiredRoles: []string{"editor"},
		RoleStrategy:  access.StrategyAny,
	})
	ctx := context.Background()
	user := authUser("editor")

	first := e.CheckAccess(ctx, ep, user, nil)
	if !first.Allowed || first.CacheHit {
		t.Fatalf("first check: %+v", first)
	}

	second := e.CheckAccess(ctx, ep, user, nil)
	if !second.Allowed || !second.CacheHit {
		t.Fatalf("second check: %+v", second)
	}
	if checker.calls != 1 {
		t.Errorf("checker calls = %d, want 1", checker.calls)
	}

	e.InvalidateUser(user.ID)
	third := e.CheckAccess(ctx, ep, user, nil)
	if third.CacheHit {
		t.Errorf("invalidated entry still cached: %+v", third)
	}
	if checker.calls != 2 {
		t.Errorf("checker calls = %d, want 2", checker.calls)
	}
}

func TestCheckAccess_InvalidateEndpoint(t *testing.T) {
	e := newEngine(rbac.Config{CacheTTL: time.Minute}, rbac.Checkers{})
	ep := testEndpoint(access.Computed{RequiresAuth: true, RequiredRoles: []string{"editor"}})
	ctx := context.Background()
	user := authUser("editor")

	e.CheckAccess(ctx, ep, user, nil)
	if e.CachedDecisions() != 1 {
		t.Fatalf("cached = %d, want 1", e.CachedDecisions())
	}

	e.InvalidateEndpoint(ep.ID)
	if e.CachedDecisions() != 0 {
		t.Errorf("cached = %d after invalidation, want 0", e.CachedDecisions())
	}
}

func TestCheckAccess_AuditTrail(t *testing.T) {
	store := audit.NewMemoryStore(10)
	e := newEngine(rbac.Config{}, rbac.Checkers{})
	e.UseAudit(store)
	ctx := context.Background()

	guarded := testEndpoint(access.Computed{RequiresAuth: true})
	e.CheckAccess(ctx, guarded, nil, nil)
	e.CheckAccess(ctx, guarded, authUser(), nil)

	// Public short-circuits are not audited.
	e.CheckAccess(ctx, testEndpoint(access.Computed{IsPublic: true}), nil, nil)

	recs, err := store.List(ctx, audit.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	if recs[1].Decision != string(rbac.DecisionRequiresAuth) || recs[1].Allowed {
		t.Errorf("first record = %+v", recs[1])
	}
	if recs[0].Decision != string(rbac.DecisionAllow) || !recs[0].Allowed {
		t.Errorf("second record = %+v", recs[0])
	}
}

func TestCheckAccess_AuditRecordDetail(t *testing.T) {
	store := audit.NewMemoryStore(10)
	e := newEngine(rbac.Config{}, rbac.Checkers{})
	e.UseAudit(store)
	ctx := context.Background()

	ep := testEndpoint(access.Computed{
		RequiresAuth:        true,
		RequiredRoles:       []string{"admin"},
		RequiredPermissions: []string{"users:read"},
	})
	e.CheckAccess(ctx, ep, authUser("viewer"), nil)

	recs, err := store.List(ctx, audit.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}

	rec := recs[0]
	if rec.UserID != "u1" || !reflect.DeepEqual(rec.Roles, []string{"viewer"}) {
		t.Errorf("caller = %q roles = %v", rec.UserID, rec.Roles)
	}
	if !reflect.DeepEqual(rec.RequiredPermissions, []string{"users:read"}) {
		t.Errorf("required permissions = %v", rec.RequiredPermissions)
	}
	if !reflect.DeepEqual(rec.MissingRoles, []string{"admin"}) {
		t.Errorf("missing roles = %v", rec.MissingRoles)
	}
}
