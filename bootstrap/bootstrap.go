// Package bootstrap wires all dependencies and starts the
// application: scanner, generator, registry, access engine, audit
// trail, metrics, and the HTTP server.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/routeforge/routeforge/adapters/auth"
	"github.com/routeforge/routeforge/adapters/clock"
	"github.com/routeforge/routeforge/adapters/hasher"
	"github.com/routeforge/routeforge/adapters/markers"
	"github.com/routeforge/routeforge/adapters/memory"
	"github.com/routeforge/routeforge/config"
	"github.com/routeforge/routeforge/core/audit"
	"github.com/routeforge/routeforge/core/exporter"
	"github.com/routeforge/routeforge/core/generator"
	"github.com/routeforge/routeforge/core/openapi"
	"github.com/routeforge/routeforge/core/rbac"
	"github.com/routeforge/routeforge/core/registry"
	"github.com/routeforge/routeforge/core/scanner"
	"github.com/routeforge/routeforge/domain/permission"
	"github.com/routeforge/routeforge/ports"
	"github.com/routeforge/routeforge/web"
)

// Options customize application wiring. Zero value means in-memory
// defaults everywhere.
type Options struct {
	// Checkers back role, permission, and ownership verification.
	// Nil checkers fall back to the caller's token claims.
	Checkers rbac.Checkers

	// Handlers resolves endpoint handler references. Defaults to an
	// in-memory registry exposed as App.Handlers.
	Handlers ports.HandlerResolver

	// Middleware resolves middleware marker files. Defaults to an
	// in-memory registry exposed as App.Middleware.
	Middleware ports.MiddlewareResolver
}

// App represents the running application.
type App struct {
	Logger   zerolog.Logger
	Config   *config.Config
	Holder   *config.Holder
	Registry *registry.Registry
	Access   *rbac.Engine
	Metrics  *exporter.PrometheusExporter
	Audit    audit.Store

	// Handlers and Middleware are the in-memory default registries,
	// nil when Options supplied custom resolvers.
	Handlers   *memory.HandlerRegistry
	Middleware *memory.MiddlewareRegistry

	HTTPServer *http.Server

	scanner   *scanner.CachedScanner
	generator *generator.Generator
	watcher   *scanner.Watcher

	auditDB     *sql.DB
	auditCloser interface{ Close() error }
	unsubscribe func()
}

// New creates and initializes the application from a loaded config.
func New(cfg *config.Config) (*App, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithHotReload creates the application with config file watching
// and SIGHUP reload.
func NewWithHotReload(path string) (*App, error) {
	holder, err := config.NewHolder(path, setupLogger(nil))
	if err != nil {
		return nil, err
	}

	a, err := NewWithOptions(holder.Get(), Options{})
	if err != nil {
		holder.Stop()
		return nil, err
	}
	a.Holder = holder

	holder.OnChange(func(cfg *config.Config) {
		a.applyConfig(cfg)
	})
	if err := holder.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("config file watch unavailable")
	}
	holder.WatchSignals()

	return a, nil
}

// NewWithOptions creates the application with custom backends.
func NewWithOptions(cfg *config.Config, opts Options) (*App, error) {
	logger := setupLogger(cfg)

	a := &App{
		Logger: logger,
		Config: cfg,
	}

	logger.Info().Str("scan_root", cfg.Scan.Root).Msg("initializing routeforge")

	if cfg.Metrics.Enabled {
		a.Metrics = exporter.NewPrometheusExporter(exporter.PrometheusConfig{})
		logger.Info().Str("path", cfg.Metrics.Path).Msg("prometheus metrics enabled")
	}

	if err := a.initAudit(); err != nil {
		return nil, fmt.Errorf("init audit: %w", err)
	}

	a.Registry = registry.New(cfg.Registry, logger)

	if err := a.initAccess(opts.Checkers); err != nil {
		a.closeAudit()
		return nil, fmt.Errorf("init access engine: %w", err)
	}

	a.initPipeline(opts)
	a.initHTTPServer()

	return a, nil
}

func (a *App) initAudit() error {
	switch a.Config.Audit.Mode {
	case "memory":
		a.Audit = audit.NewMemoryStore(a.Config.Audit.MaxRecords)
		a.Logger.Info().Int("max_records", a.Config.Audit.MaxRecords).Msg("in-memory audit trail enabled")

	case "sqlite":
		db, err := sql.Open("sqlite3", a.Config.Audit.DSN)
		if err != nil {
			return fmt.Errorf("open audit database: %w", err)
		}
		store, err := audit.NewSQLiteStore(db, audit.SQLiteConfig{})
		if err != nil {
			db.Close()
			return fmt.Errorf("create audit store: %w", err)
		}
		a.auditDB = db
		a.auditCloser = store
		a.Audit = store
		a.Logger.Info().Str("dsn", a.Config.Audit.DSN).Msg("sqlite audit trail enabled")
	}

	return nil
}

func (a *App) initAccess(checkers rbac.Checkers) error {
	if !a.Config.RBAC.Enabled {
		a.Logger.Info().Msg("access engine disabled, default policy applies")
		return nil
	}

	engine := rbac.New(rbac.Config{
		SuperAdminRoles:   a.Config.RBAC.SuperAdminRoles,
		CacheTTL:          a.Config.RBAC.CacheTTL,
		DerivePermissions: a.Config.RBAC.DerivePermissions,
		DefaultScope:      a.Config.RBAC.DefaultScope,
	}, checkers, a.Logger)
	engine.UseClock(clock.System{})

	if rules := a.Config.RBAC.PermissionRules(); len(rules) > 0 {
		rs, err := permission.NewRuleset(rules)
		if err != nil {
			return fmt.Errorf("compile permission rules: %w", err)
		}
		engine.UseRules(rs)
	}
	if a.Audit != nil {
		engine.UseAudit(a.Audit)
	}

	a.unsubscribe = engine.WatchRegistry(a.Registry.Events())
	a.Access = engine
	return nil
}

func (a *App) initPipeline(opts Options) {
	cfg := a.Config

	base := scanner.New(cfg.Scan.Config, a.Logger)
	cache := scanner.NewCache(cfg.Scan.CacheTTL, clock.System{})
	a.scanner = scanner.NewCached(base, cache)

	resolvers := generator.Resolvers{
		Handler:    opts.Handlers,
		Middleware: opts.Middleware,
	}
	if resolvers.Handler == nil {
		a.Handlers = memory.NewHandlerRegistry()
		resolvers.Handler = a.Handlers
	}
	if resolvers.Middleware == nil {
		a.Middleware = memory.NewMiddlewareRegistry()
		resolvers.Middleware = a.Middleware
	}

	yamlMarkers := markers.NewYAMLResolver(cfg.Scan.Root)
	resolvers.Schema = yamlMarkers
	resolvers.Access = yamlMarkers

	a.generator = generator.New(resolvers, a.Logger)
}

func (a *App) initHTTPServer() {
	cfg := a.Config

	deps := web.Deps{
		Registry:    a.Registry,
		Access:      a.Access,
		Hasher:      hasher.NewBcrypt(0),
		Auth:        cfg.Auth,
		Metrics:     a.Metrics,
		MetricsPath: cfg.Metrics.Path,
		Logger:      a.Logger,
	}
	if cfg.Auth.JWTSecret != "" {
		deps.Tokens = auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
	} else {
		secret := auth.GenerateSecret()
		deps.Tokens = auth.NewTokenService(secret, cfg.Auth.TokenExpiry)
		a.Logger.Warn().Msg("no jwt secret configured, using random per-process secret")
	}
	if cfg.OpenAPI.Enabled {
		deps.OpenAPI = openapi.NewGenerator(openapi.Info{
			Title:   cfg.OpenAPI.Title,
			Version: cfg.OpenAPI.Version,
		})
	}

	handler := web.NewHandler(deps)
	a.HTTPServer = web.NewServer(cfg.Server, handler)
	a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("http server configured")
}

// Rescan walks the route tree, regenerates endpoints, and reconciles
// the registry. Safe to call concurrently with request serving.
func (a *App) Rescan(ctx context.Context) error {
	start := time.Now()

	routes, err := a.scanner.Scan(ctx)
	if err != nil {
		a.observeScan(err, time.Since(start))
		return fmt.Errorf("scan: %w", err)
	}

	endpoints, err := a.generator.Generate(ctx, routes)
	if err != nil {
		a.observeScan(err, time.Since(start))
		return fmt.Errorf("generate: %w", err)
	}

	diff, err := a.Registry.Reconcile(endpoints)
	if err != nil {
		a.observeScan(err, time.Since(start))
		return fmt.Errorf("reconcile: %w", err)
	}

	a.observeScan(nil, time.Since(start))
	if a.Metrics != nil {
		a.Metrics.SetEndpointCount(a.Registry.Len())
	}

	a.Logger.Info().
		Int("routes", len(routes)).
		Int("endpoints", len(endpoints)).
		Int("added", len(diff.Added)).
		Int("updated", len(diff.Updated)).
		Int("removed", len(diff.Removed)).
		Dur("duration", time.Since(start)).
		Msg("rescan complete")
	return nil
}

func (a *App) observeScan(err error, d time.Duration) {
	if a.Metrics != nil {
		a.Metrics.ObserveScan(err, d)
	}
}

// applyConfig reacts to a config reload: swaps the scan pipeline and
// the access engine's rules, then rescans.
func (a *App) applyConfig(cfg *config.Config) {
	a.Config = cfg

	base := scanner.New(cfg.Scan.Config, a.Logger)
	cache := scanner.NewCache(cfg.Scan.CacheTTL, clock.System{})
	a.scanner = scanner.NewCached(base, cache)

	if a.Access != nil {
		if rules := cfg.RBAC.PermissionRules(); len(rules) > 0 {
			if rs, err := permission.NewRuleset(rules); err == nil {
				a.Access.UseRules(rs)
			} else {
				a.Logger.Error().Err(err).Msg("permission rules rejected, keeping old ruleset")
			}
		}
		a.Access.InvalidateAll()
	}

	if err := a.Rescan(context.Background()); err != nil {
		a.Logger.Error().Err(err).Msg("rescan after config reload failed")
	}
}

// Run performs the initial scan, starts watching when configured, and
// serves until interrupted.
func (a *App) Run() error {
	ctx := context.Background()

	if err := a.Rescan(ctx); err != nil {
		return err
	}

	if a.Config.Scan.Watch {
		w, err := scanner.NewWatcher(a.Config.Scan.Root, a.Config.Scan.Debounce, func() {
			a.scanner.Invalidate()
			if err := a.Rescan(context.Background()); err != nil {
				a.Logger.Error().Err(err).Msg("hot reload rescan failed")
			}
		}, a.Logger)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("route tree watch unavailable")
		} else {
			a.watcher = w
			a.Logger.Info().Str("root", a.Config.Scan.Root).Msg("watching route tree for changes")
		}
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.Holder != nil {
		a.Holder.Stop()
	}
	if a.unsubscribe != nil {
		a.unsubscribe()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	a.closeAudit()

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func (a *App) closeAudit() {
	if a.auditCloser != nil {
		if err := a.auditCloser.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("audit store close error")
		}
	}
	if a.auditDB != nil {
		if err := a.auditDB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("audit database close error")
		}
	}
}

func setupLogger(cfg *config.Config) zerolog.Logger {
	levelStr := "info"
	format := "json"
	if cfg != nil {
		levelStr = cfg.Logging.Level
		format = cfg.Logging.Format
	}

	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
