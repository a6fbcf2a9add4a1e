package web

import (
	"context"
	"net/http"
	"strings"

	"github.com/routeforge/routeforge/ports"
)

type contextKey string

const userKey contextKey = "routeforge.user"

// UserFromContext returns the caller identity attached by the
// identity middleware, nil for anonymous requests.
func UserFromContext(ctx context.Context) *ports.User {
	u, _ := ctx.Value(userKey).(*ports.User)
	return u
}

// WithUser attaches a caller identity to the context. Exposed for
// tests and embedding servers with their own authentication.
func WithUser(ctx context.Context, u *ports.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// identify resolves the caller identity from a bearer token or a
// configured API key. Invalid credentials leave the request
// anonymous; access evaluation decides whether anonymous is enough.
func (h *Handler) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := h.resolveUser(r); user != nil {
			r = r.WithContext(WithUser(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) resolveUser(r *http.Request) *ports.User {
	if h.deps.Tokens != nil {
		if token := bearerToken(r); token != "" {
			user, err := h.deps.Tokens.Authenticate(token)
			if err == nil {
				return user
			}
			h.deps.Logger.Debug().Err(err).Msg("bearer token rejected")
		}
	}

	header := h.deps.Auth.APIKeyHeader
	if header == "" {
		header = "X-API-Key"
	}
	if key := r.Header.Get(header); key != "" && h.deps.Hasher != nil {
		if user := h.matchAPIKey(key); user != nil {
			return user
		}
		h.deps.Logger.Debug().Msg("api key rejected")
	}

	return nil
}

func (h *Handler) matchAPIKey(key string) *ports.User {
	for _, k := range h.deps.Auth.APIKeys {
		if h.deps.Hasher.Compare([]byte(k.KeyHash), key) {
			return &ports.User{
				ID:            k.ID,
				Roles:         k.Roles,
				Authenticated: true,
				Claims: map[string]any{
					"auth_method": "api_key",
					"scopes":      k.Scopes,
				},
			}
		}
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
