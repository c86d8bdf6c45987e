package httpapi

import (
	"net/http"
	"time"

	"github.com/MrEthical07/phoneauth/middleware"
)

// refresh_token is only sent to the session routes.
const (
	accessCookiePath  = "/"
	refreshCookiePath = sessionPrefix
)

// CookieConfig controls the attributes of the token cookies.
type CookieConfig struct {
	// Secure sets the Secure flag and switches SameSite from Lax to Strict.
	Secure bool
	Domain string
}

func (c CookieConfig) sameSite() http.SameSite {
	if c.Secure {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}

func (c CookieConfig) cookie(name, value, path string, maxAge time.Duration) *http.Cookie {
	seconds := int(maxAge / time.Second)
	if value == "" {
		seconds = -1
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   c.Domain,
		MaxAge:   seconds,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.sameSite(),
	}
}

func (c CookieConfig) setTokens(w http.ResponseWriter, access, refresh string, accessTTL, refreshTTL time.Duration) {
	http.SetCookie(w, c.cookie(middleware.AccessCookie, access, accessCookiePath, accessTTL))
	http.SetCookie(w, c.cookie(middleware.RefreshCookie, refresh, refreshCookiePath, refreshTTL))
}

func (c CookieConfig) clearTokens(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(middleware.AccessCookie, "", accessCookiePath, 0))
	http.SetCookie(w, c.cookie(middleware.RefreshCookie, "", refreshCookiePath, 0))
}
