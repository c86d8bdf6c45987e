package flows

import (
	"time"

	"github.com/MrEthical07/phoneauth/credential"
	"github.com/MrEthical07/phoneauth/jwt"
)

// Failure classifies why a flow stopped.
type Failure int

const (
	FailureNone Failure = iota
	FailureNotReady
	FailureInvalidInput
	FailurePasswordPolicy
	FailureUserNotFound
	FailureInvalidCredentials
	FailureAccountExists
	FailureInviteInvalid
	FailureTokenExpired
	FailureTokenInvalid
	FailureSessionNotActive
	FailureRefreshReuse
	FailureRateLimited
	FailureBackend
)

func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureNotReady:
		return "not_ready"
	case FailureInvalidInput:
		return "invalid_input"
	case FailurePasswordPolicy:
		return "password_policy"
	case FailureUserNotFound:
		return "user_not_found"
	case FailureInvalidCredentials:
		return "invalid_credentials"
	case FailureAccountExists:
		return "account_exists"
	case FailureInviteInvalid:
		return "invite_invalid"
	case FailureTokenExpired:
		return "token_expired"
	case FailureTokenInvalid:
		return "token_invalid"
	case FailureSessionNotActive:
		return "session_not_active"
	case FailureRefreshReuse:
		return "refresh_reuse"
	case FailureRateLimited:
		return "rate_limited"
	case FailureBackend:
		return "backend"
	default:
		return "unknown"
	}
}

// Issued is a freshly minted session and its token pair.
type Issued struct {
	SessionID        string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Result is returned by every flow. Err is the underlying cause and is only
// meant for logs.
type Result struct {
	Failure Failure
	Err     error

	UserID    string
	SessionID string
	User      credential.User
	Issued    Issued
	Claims    *jwt.Claims
	// Revoked counts sessions blacklisted as a side effect.
	Revoked int
}

func fail(kind Failure, err error) Result {
	return Result{Failure: kind, Err: err}
}

func (r Result) OK() bool {
	return r.Failure == FailureNone
}
