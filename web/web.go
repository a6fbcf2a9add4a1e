// Package web serves the generated endpoints over HTTP: identity
// extraction, registry lookup, access evaluation, handler invocation,
// plus the system endpoints (health, OpenAPI document, registry
// stats, metrics).
package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/routeforge/routeforge/adapters/auth"
	"github.com/routeforge/routeforge/config"
	"github.com/routeforge/routeforge/core/exporter"
	"github.com/routeforge/routeforge/core/openapi"
	"github.com/routeforge/routeforge/core/rbac"
	"github.com/routeforge/routeforge/core/registry"
	"github.com/routeforge/routeforge/ports"
)

// Deps contains dependencies for the HTTP handler.
type Deps struct {
	Registry *registry.Registry

	// Access is the RBAC engine. Nil means the registry's default
	// policy applies (authentication only).
	Access *rbac.Engine

	// Tokens validates bearer tokens. Nil disables JWT identity.
	Tokens *auth.TokenService

	// Hasher verifies configured API keys against their stored hashes.
	Hasher ports.Hasher

	// Auth carries the API key header name and the static key list.
	Auth config.AuthConfig

	// Metrics serves the Prometheus scrape endpoint when set.
	Metrics     *exporter.PrometheusExporter
	MetricsPath string

	// OpenAPI generates the /openapi.json document when set.
	OpenAPI *openapi.Generator

	Logger zerolog.Logger
}

// Handler routes incoming requests to registered endpoints.
type Handler struct {
	deps Deps
}

// NewHandler creates the HTTP handler and wires the access engine
// into the registry.
func NewHandler(deps Deps) *Handler {
	h := &Handler{deps: deps}
	if deps.Access != nil {
		deps.Registry.SetAccessChecker(&engineChecker{engine: deps.Access, metrics: deps.Metrics})
	}
	if deps.Metrics != nil {
		deps.Registry.SetMetrics(deps.Metrics)
	}
	return h
}

// Router builds the chi router: system endpoints first, every other
// request falls through to the registry dispatch.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)
	r.Use(h.identify)

	r.Get("/healthz", h.handleHealth)
	r.Get("/registry/stats", h.handleStats)

	if h.deps.OpenAPI != nil {
		r.Get("/openapi.json", h.handleOpenAPI)
	}
	if h.deps.Metrics != nil {
		path := h.deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, h.deps.Metrics.Handler())
	}

	r.NotFound(h.dispatch)
	r.MethodNotAllowed(h.dispatch)

	return r
}

// NewServer builds an http.Server around the handler using the
// configured address and timeouts.
func NewServer(cfg config.ServerConfig, h *Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      h.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"endpoints": h.deps.Registry.Len(),
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Registry.Stats())
}

func (h *Handler) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	data, err := h.deps.OpenAPI.GenerateJSON(h.deps.Registry.List())
	if err != nil {
		h.deps.Logger.Error().Err(err).Msg("openapi generation failed")
		writeError(w, http.StatusInternalServerError, "openapi_error", "Failed to generate OpenAPI document")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.deps.Logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}
