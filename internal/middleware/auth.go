package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Strob0t/eventcast/internal/domain/user"
	"github.com/Strob0t/eventcast/internal/logger"
	"github.com/Strob0t/eventcast/internal/port/authn"
)

type principalCtxKey struct{}

// Credential extracts the client credential from r: the named cookie first,
// then an Authorization Bearer header, then for WebSocket upgrades the
// ?token= query parameter (browsers cannot set headers on upgrades).
func Credential(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("token")
	}
	return ""
}

// Auth resolves the request credential with a before any handler runs.
// Rejected credentials get 401; a failing lookup gets 503.
func Auth(a authn.Authenticator, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred := Credential(r, cookieName)
			if cred == "" {
				writeStatus(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			p, err := a.Authenticate(r.Context(), cred)
			if err != nil {
				if errors.Is(err, authn.ErrUnauthenticated) {
					slog.Debug("authentication rejected", append(logger.Attrs(r.Context()), "error", err)...)
					writeStatus(w, http.StatusUnauthorized, "unauthorized")
					return
				}
				slog.Warn("authentication lookup failed", append(logger.Attrs(r.Context()), "error", err)...)
				writeStatus(w, http.StatusServiceUnavailable, "unavailable")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *user.Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFromContext returns the authenticated principal, or nil.
func PrincipalFromContext(ctx context.Context) *user.Principal {
	p, _ := ctx.Value(principalCtxKey{}).(*user.Principal)
	return p
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"status":"` + status + `"}`))
}
