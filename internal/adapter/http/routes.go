package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	ecotel "github.com/Strob0t/eventcast/internal/adapter/otel"
	"github.com/Strob0t/eventcast/internal/config"
	"github.com/Strob0t/eventcast/internal/middleware"
	"github.com/Strob0t/eventcast/internal/port/authn"
)

// Router holds everything NewRouter mounts.
type Router struct {
	Config        config.Server
	Service       string // span and log service name
	Handlers      *Handlers
	Authenticator authn.Authenticator
	SSE           http.Handler
	WebSocket     http.Handler
	Limiter       *middleware.ConnectLimiter // nil disables connect throttling
}

// NewRouter builds the chi router. Stream routes are not subject to the
// request timeout.
func NewRouter(rt Router) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger)
	r.Use(chimw.Recoverer)
	r.Use(ecotel.HTTPMiddleware(rt.Service))
	r.Use(CORS(rt.Config.CORSOrigin))
	r.NotFound(NotFound)

	r.With(chimw.Timeout(requestTimeout(rt.Config))).Get("/health", rt.Handlers.Health)

	r.Group(func(r chi.Router) {
		if rt.Limiter != nil {
			r.Use(rt.Limiter.Handler)
		}
		r.Use(middleware.Auth(rt.Authenticator, rt.Config.CookieName))

		r.Get(rt.Config.StreamPath, rt.SSE.ServeHTTP)
		if rt.WebSocket != nil {
			r.Get("/ws", rt.WebSocket.ServeHTTP)
		}
	})

	return r
}

func requestTimeout(cfg config.Server) time.Duration {
	if cfg.WriteTimeout > 0 {
		return cfg.WriteTimeout
	}
	return 30 * time.Second
}
