package phoneauth

import "errors"

// Error kinds. Every error returned by an Engine operation matches exactly one
// of these through errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrServer       = errors.New("server error")
	ErrRateLimited  = errors.New("rate limited")
	ErrInvalidInput = errors.New("invalid input")
)

// Reasons refine a kind and also match through errors.Is.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountExists      = errors.New("account already exists")
	ErrInvalidIdentity    = errors.New("invalid phone identity")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrSessionNotActive   = errors.New("session not active")
	ErrRefreshReuse       = errors.New("refresh token reuse detected")
	ErrInviteInvalid      = errors.New("invalid invite code")
	ErrPasswordPolicy     = errors.New("password policy violation")
	ErrEngineNotReady     = errors.New("engine not initialized")
)

// Error is the concrete error returned by the engine. The underlying store or
// crypto failure is kept for logs through Cause and is not
// reachable with errors.Is or errors.As.
type Error struct {
	Kind   error
	Reason error
	cause  error
}

func newError(kind, reason, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, cause: cause}
}

func (e *Error) Error() string {
	if e.Reason != nil {
		return e.Reason.Error()
	}
	if e.Kind != nil {
		return e.Kind.Error()
	}
	return "phoneauth: unknown error"
}

func (e *Error) Is(target error) bool {
	return target != nil && (target == e.Kind || target == e.Reason)
}

// Cause returns the internal failure behind the error, if any.
func (e *Error) Cause() error {
	return e.cause
}
