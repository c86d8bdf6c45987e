package phoneauth

import (
	"context"
	"errors"
	"strconv"
)

const (
	auditEventSignupSuccess          = "signup_success"
	auditEventSignupFailure          = "signup_failure"
	auditEventSignupDuplicate        = "signup_duplicate"
	auditEventLoginSuccess           = "login_success"
	auditEventLoginFailure           = "login_failure"
	auditEventLoginRateLimited       = "login_rate_limited"
	auditEventRefreshSuccess         = "refresh_success"
	auditEventRefreshInvalid         = "refresh_invalid"
	auditEventRefreshRateLimited     = "refresh_rate_limited"
	auditEventRefreshReuseDetected   = "refresh_reuse_detected"
	auditEventLogoutSession          = "logout_session"
	auditEventLogoutAll              = "logout_all"
	auditEventPasswordChangeSuccess  = "password_change_success"
	auditEventPasswordChangeFailure  = "password_change_failure"
	auditEventProvisionalUserCreated = "provisional_user_created"
)

// AuditErrorCode is the stable error label stored on audit events.
type AuditErrorCode string

const (
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrSessionNotActive   AuditErrorCode = "session_not_active"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrInviteInvalid      AuditErrorCode = "invite_invalid"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrInvalidInput       AuditErrorCode = "invalid_input"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

// auditEntry is what an operation knows about its outcome. A nil err marks
// the event successful.
type auditEntry struct {
	event     string
	userID    string
	sessionID string
	err       error
	meta      map[string]string
}

func (e *Engine) record(ctx context.Context, entry auditEntry) {
	if e == nil || e.audit == nil {
		return
	}
	event := AuditEvent{
		EventType: entry.event,
		UserID:    entry.userID,
		SessionID: entry.sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   entry.err == nil,
		Error:     string(auditErrorCode(entry.err)),
		Metadata:  entry.meta,
	}
	// Queue even when the operation context is already past its deadline.
	e.audit.Emit(context.WithoutCancel(ctx), event)
}

func revokedMetadata(n int) map[string]string {
	return map[string]string{"revoked": strconv.Itoa(n)}
}

// auditErrorCodes is checked in order; reasons come before the kinds that
// wrap them.
var auditErrorCodes = []struct {
	target error
	code   AuditErrorCode
}{
	{ErrInvalidCredentials, auditErrInvalidCredentials},
	{ErrUserNotFound, auditErrUserNotFound},
	{ErrRateLimited, auditErrRateLimited},
	{ErrRefreshReuse, auditErrRefreshReuse},
	{ErrTokenExpired, auditErrTokenExpired},
	{ErrTokenInvalid, auditErrInvalidToken},
	{ErrSessionNotActive, auditErrSessionNotActive},
	{ErrPasswordPolicy, auditErrPasswordPolicy},
	{ErrInviteInvalid, auditErrInviteInvalid},
	{ErrAccountExists, auditErrDuplicate},
	{ErrInvalidInput, auditErrInvalidInput},
	{ErrUnauthorized, auditErrUnauthorized},
	{ErrServer, auditErrUnavailable},
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}
	for _, c := range auditErrorCodes {
		if errors.Is(err, c.target) {
			return c.code
		}
	}
	return auditErrInternal
}
