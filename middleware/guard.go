package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/phoneauth"
)

// Cookie names shared with httpapi.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"

	RefreshHeader = "X-Refresh-Token"
)

// Validator is the part of [phoneauth.Engine] the guards depend on.
type Validator interface {
	ValidateAccess(ctx context.Context, token string) (*phoneauth.Claims, error)
	ValidateRefresh(ctx context.Context, token string) (*phoneauth.Claims, error)
}

type claimsContextKey struct{}

// ClaimsFromContext returns the claims attached by a guard.
func ClaimsFromContext(ctx context.Context) (*phoneauth.Claims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*phoneauth.Claims)
	return c, ok && c != nil
}

// UserIDFromContext returns the authenticated user id.
func UserIDFromContext(ctx context.Context) (string, bool) {
	c, ok := ClaimsFromContext(ctx)
	if !ok || c.UID == "" {
		return "", false
	}
	return c.UID, true
}

func withClaims(ctx context.Context, c *phoneauth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, c)
}

func guard(extract func(*http.Request) string, validate func(context.Context, string) (*phoneauth.Claims, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extract(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			claims, err := validate(r.Context(), token)
			if err != nil {
				status, msg := rejection(err)
				writeError(w, status, msg)
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

func rejection(err error) (int, string) {
	switch {
	case errors.Is(err, phoneauth.ErrServer), errors.Is(err, phoneauth.ErrEngineNotReady):
		return http.StatusServiceUnavailable, "service unavailable"
	case errors.Is(err, phoneauth.ErrTokenExpired):
		return http.StatusUnauthorized, "token expired"
	default:
		return http.StatusUnauthorized, "invalid token"
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
