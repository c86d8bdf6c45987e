package httpapi

import (
	"net"
	"net/http"

	"github.com/MrEthical07/phoneauth"
	"github.com/MrEthical07/phoneauth/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// sessionPrefix holds the routes that take a refresh token. The refresh
// cookie path is set to it.
const sessionPrefix = "/auth/session"

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	if h.logging {
		r.Use(chiMiddleware.Logger)
	}
	r.Use(chiMiddleware.Recoverer)
	r.Use(requestMetadata)

	r.Get("/healthz", h.Healthz)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", h.Signup)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(h.svc))
			r.Get("/me", h.Me)
			r.Post("/logout-all", h.LogoutAll)
			r.Post("/password", h.ChangePassword)
		})
	})

	r.Route(sessionPrefix, func(r chi.Router) {
		r.Post("/refresh", h.Refresh)
		r.Post("/logout", h.Logout)
		r.With(middleware.RequireRefreshSession(h.svc)).Get("/", h.Sessions)
	})

	return r
}

// requestMetadata copies the client address and user agent into the request
// context for session records and audit events.
func requestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := phoneauth.WithClientIP(r.Context(), ip)
		ctx = phoneauth.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
