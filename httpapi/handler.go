package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/phoneauth"
	"github.com/MrEthical07/phoneauth/credential"
	"github.com/MrEthical07/phoneauth/middleware"
	"github.com/go-playground/validator/v10"
)

// Service is the engine surface the handlers call. *phoneauth.Engine
// implements it.
type Service interface {
	middleware.Validator

	Signup(ctx context.Context, req phoneauth.SignupRequest) (phoneauth.TokenPair, error)
	Login(ctx context.Context, id credential.Identity, password string) (phoneauth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (phoneauth.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID string) error
	Me(ctx context.Context, userID string) (credential.PublicUser, error)
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	ListSessions(ctx context.Context, userID string) ([]phoneauth.SessionInfo, error)
	Ping(ctx context.Context) (time.Duration, error)
	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}

// Options configures a [Handler].
type Options struct {
	Cookies CookieConfig
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// RequestLogging enables chi's request logger.
	RequestLogging bool
}

// Handler holds the HTTP endpoints bound to one engine.
type Handler struct {
	svc      Service
	cookies  CookieConfig
	metrics  http.Handler
	validate *validator.Validate
	logging  bool
}

func NewHandler(svc Service, opts Options) *Handler {
	return &Handler{
		svc:      svc,
		cookies:  opts.Cookies,
		metrics:  opts.Metrics,
		validate: newValidator(),
		logging:  opts.RequestLogging,
	}
}

type authResponse struct {
	AccessToken     string                 `json:"accessToken"`
	AccessExpiresAt time.Time              `json:"accessExpiresAt"`
	RefreshToken    string                 `json:"refreshToken"`
	User            *credential.PublicUser `json:"user,omitempty"`
}

func (h *Handler) issue(w http.ResponseWriter, status int, pair phoneauth.TokenPair) {
	h.cookies.setTokens(w, pair.AccessToken, pair.RefreshToken, h.svc.AccessTTL(), h.svc.RefreshTTL())
	writeJSON(w, status, authResponse{
		AccessToken:     pair.AccessToken,
		AccessExpiresAt: pair.AccessExpiresAt,
		RefreshToken:    pair.RefreshToken,
		User:            pair.User,
	})
}

// bind decodes and validates the body, writing the 400 itself on failure.
func (h *Handler) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "validation failed",
			"details": validationDetails(err),
		})
		return false
	}
	return true
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !h.bind(w, r, &req) {
		return
	}

	in := phoneauth.SignupRequest{
		CountryCode: req.CountryCode,
		PhoneNumber: req.PhoneNumber,
		Password:    req.Password,
		Name:        req.Name,
		Email:       req.Email,
		InviteCode:  req.InviteCode,
	}
	if req.Preferences != nil {
		prefs := credential.DefaultPreferences()
		if req.Preferences.Language != "" {
			prefs.Language = req.Preferences.Language
		}
		if req.Preferences.Currency != "" {
			prefs.Currency = req.Preferences.Currency
		}
		if req.Preferences.Timezone != "" {
			prefs.Timezone = req.Preferences.Timezone
		}
		if req.Preferences.Notifications != nil {
			prefs.Notifications = *req.Preferences.Notifications
		}
		in.Preferences = &prefs
	}

	pair, err := h.svc.Signup(r.Context(), in)
	if err != nil {
		writeEngineError(w, err, false)
		return
	}
	h.issue(w, http.StatusCreated, pair)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.bind(w, r, &req) {
		return
	}

	id := credential.Identity{CountryCode: req.CountryCode, PhoneNumber: req.PhoneNumber}
	pair, err := h.svc.Login(r.Context(), id, req.Password)
	if err != nil {
		writeEngineError(w, err, true)
		return
	}
	h.issue(w, http.StatusOK, pair)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := middleware.RefreshToken(r)
	if token == "" && r.ContentLength != 0 {
		var body refreshRequest
		if err := decodeJSON(w, r, &body); err != nil && !errors.Is(err, errEmptyBody) {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		token = body.RefreshToken
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, "refresh token required")
		return
	}

	pair, err := h.svc.Refresh(r.Context(), token)
	if err != nil {
		if errors.Is(err, phoneauth.ErrUnauthorized) {
			h.cookies.clearTokens(w)
		}
		writeEngineError(w, err, false)
		return
	}
	h.issue(w, http.StatusOK, pair)
}

// Logout always clears the cookies. Only a store outage is reported.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.RefreshToken(r)
	if token == "" && r.ContentLength > 0 {
		var body refreshRequest
		_ = decodeJSON(w, r, &body)
		token = body.RefreshToken
	}

	h.cookies.clearTokens(w)
	if token != "" {
		if err := h.svc.Logout(r.Context(), token); err != nil {
			writeEngineError(w, err, false)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserIDFromContext(r.Context())
	if err := h.svc.LogoutAll(r.Context(), uid); err != nil {
		writeEngineError(w, err, false)
		return
	}
	h.cookies.clearTokens(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserIDFromContext(r.Context())
	user, err := h.svc.Me(r.Context(), uid)
	if err != nil {
		writeEngineError(w, err, false)
		return
	}
	writeJSON(w, http.StatusOK, map[string]credential.PublicUser{"user": user})
}

type sessionView struct {
	SessionID   string    `json:"sessionId"`
	Current     bool      `json:"current"`
	Active      bool      `json:"active"`
	ExpiresAt   time.Time `json:"expiresAt"`
	CreatedByIP string    `json:"createdByIp,omitempty"`
	UserAgent   string    `json:"userAgent,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Sessions lists the caller's sessions. It sits behind the refresh-session
// guard, so the presented refresh token must still be live.
func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	rows, err := h.svc.ListSessions(r.Context(), claims.UID)
	if err != nil {
		writeEngineError(w, err, false)
		return
	}

	out := make([]sessionView, 0, len(rows))
	for _, s := range rows {
		out = append(out, sessionView{
			SessionID:   s.SessionID,
			Current:     s.SessionID == claims.SID,
			Active:      s.Active,
			ExpiresAt:   s.ExpiresAt,
			CreatedByIP: s.CreatedByIP,
			UserAgent:   s.UserAgent,
			CreatedAt:   s.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string][]sessionView{"sessions": out})
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !h.bind(w, r, &req) {
		return
	}
	uid, _ := middleware.UserIDFromContext(r.Context())
	if err := h.svc.ChangePassword(r.Context(), uid, req.OldPassword, req.NewPassword); err != nil {
		writeEngineError(w, err, false)
		return
	}
	h.cookies.clearTokens(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	latency, err := h.svc.Ping(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"redisLatencyMs": float64(latency.Microseconds()) / 1000,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
