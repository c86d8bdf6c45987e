package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/phoneauth"
)

// RequireRefreshSession admits requests whose refresh token verifies and whose
// session is still active in the store. The session is not consumed.
func RequireRefreshSession(v Validator) func(http.Handler) http.Handler {
	return guard(RefreshToken, func(ctx context.Context, token string) (*phoneauth.Claims, error) {
		if v == nil {
			return nil, phoneauth.ErrEngineNotReady
		}
		return v.ValidateRefresh(ctx, token)
	})
}

// RefreshToken extracts the refresh token from the refresh_token cookie or
// the X-Refresh-Token header.
func RefreshToken(r *http.Request) string {
	if token := cookieValue(r, RefreshCookie); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get(RefreshHeader))
}
