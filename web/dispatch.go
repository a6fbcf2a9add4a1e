package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/routeforge/routeforge/core/exporter"
	"github.com/routeforge/routeforge/core/rbac"
	"github.com/routeforge/routeforge/core/registry"
	"github.com/routeforge/routeforge/domain/endpoint"
	"github.com/routeforge/routeforge/ports"
)

// maxBodyBytes bounds request body reads.
const maxBodyBytes = 10 << 20

// errorBody is the JSON error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code               string   `json:"code"`
	Message            string   `json:"message"`
	MissingRoles       []string `json:"missingRoles,omitempty"`
	MissingPermissions []string `json:"missingPermissions,omitempty"`
}

// dispatch is the catch-all pipeline: lookup, access check, invoke.
func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	match, ok := h.deps.Registry.GetByPath(r.Method, r.URL.Path)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "No endpoint matches this path")
		return
	}
	ep := match.Endpoint
	user := UserFromContext(ctx)

	result := h.checkAccess(ctx, ep, user, match.Params)
	if !result.Allowed {
		status := http.StatusForbidden
		if result.Decision == rbac.DecisionRequiresAuth {
			status = http.StatusUnauthorized
		}
		writeJSON(w, status, errorBody{Error: errorDetail{
			Code:               string(result.Decision),
			Message:            result.Reason,
			MissingRoles:       result.MissingRoles,
			MissingPermissions: result.MissingPermissions,
		}})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Failed to read request body")
		return
	}

	req := &endpoint.Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Params: match.Params,
		Query:  r.URL.Query(),
		Header: r.Header,
		Body:   body,
	}
	if user != nil {
		req.UserID = user.ID
	}

	resp, err := ep.Invoke(ctx, req)
	if err != nil {
		h.deps.Logger.Error().Err(err).Str("endpoint", ep.ID).Msg("handler invocation failed")
		if errors.Is(err, endpoint.ErrHandlerNotFound) {
			writeError(w, http.StatusNotImplemented, "not_implemented", "Endpoint handler is not available")
			return
		}
		writeError(w, http.StatusInternalServerError, "handler_error", "Endpoint handler failed")
		return
	}

	writeResponse(w, resp)
}

// checkAccess prefers the RBAC engine's full result; without one the
// registry's default policy applies.
func (h *Handler) checkAccess(ctx context.Context, ep *endpoint.Endpoint, user *ports.User, params map[string]string) rbac.Result {
	if h.deps.Access != nil {
		result := h.deps.Access.CheckAccess(ctx, ep, user, params)
		if h.deps.Metrics != nil {
			h.deps.Metrics.ObserveDecision(string(result.Decision), result.CacheHit, result.EvaluationTime)
		}
		return result
	}

	d := h.deps.Registry.CheckAccess(ctx, ep.ID, user, params)
	return rbac.Result{
		Allowed:  d.Allowed,
		Decision: rbac.Decision(d.Decision),
		Reason:   d.Reason,
	}
}

// engineChecker adapts the RBAC engine to the registry's access
// checker interface.
type engineChecker struct {
	engine  *rbac.Engine
	metrics *exporter.PrometheusExporter
}

func (c *engineChecker) Check(ctx context.Context, ep *endpoint.Endpoint, user *ports.User, params map[string]string) registry.AccessDecision {
	result := c.engine.CheckAccess(ctx, ep, user, params)
	if c.metrics != nil {
		c.metrics.ObserveDecision(string(result.Decision), result.CacheHit, result.EvaluationTime)
	}
	return registry.AccessDecision{
		Allowed:  result.Allowed,
		Decision: string(result.Decision),
		Reason:   result.Reason,
	}
}

func writeResponse(w http.ResponseWriter, resp *endpoint.Response) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}

	if resp.Body == nil {
		w.WriteHeader(status)
		return
	}

	writeJSON(w, status, resp.Body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}
