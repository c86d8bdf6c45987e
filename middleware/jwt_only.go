package middleware

import (
	"context"
	"net/http"

	"github.com/MrEthical07/phoneauth"
)

// Guard admits requests that carry a valid access token, from the
// Authorization header or else the access_token cookie. No store is consulted.
func Guard(v Validator) func(http.Handler) http.Handler {
	return guard(AccessToken, func(ctx context.Context, token string) (*phoneauth.Claims, error) {
		if v == nil {
			return nil, phoneauth.ErrEngineNotReady
		}
		return v.ValidateAccess(ctx, token)
	})
}

// AccessToken extracts the access token from r.
func AccessToken(r *http.Request) string {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return cookieValue(r, AccessCookie)
}
