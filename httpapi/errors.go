package httpapi

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/phoneauth"
)

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps the engine's error kinds onto status codes. On login
// an unknown phone and a wrong password get the same 401. Apart from expiry,
// every 401 carries the same message whatever the rejection cause.
func writeEngineError(w http.ResponseWriter, err error, login bool) {
	status, msg := statusFor(err, login)
	writeError(w, status, msg)
}

func statusFor(err error, login bool) (int, string) {
	switch {
	case login && (errors.Is(err, phoneauth.ErrNotFound) || errors.Is(err, phoneauth.ErrUnauthorized)):
		return http.StatusUnauthorized, "not authorized"
	case errors.Is(err, phoneauth.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, phoneauth.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, phoneauth.ErrRateLimited):
		return http.StatusTooManyRequests, "too many requests"
	case errors.Is(err, phoneauth.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, phoneauth.ErrTokenExpired):
		return http.StatusUnauthorized, "token expired"
	case errors.Is(err, phoneauth.ErrUnauthorized):
		return http.StatusUnauthorized, "not authorized"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
