// Package phoneauth is a phone-number authentication engine with short-lived
// JWT access tokens and single-use rotating refresh tokens backed by Redis
// sessions.
//
// An account is keyed by its (country code, phone number) identity. Signup
// and Login each open one session; Refresh atomically retires the session
// behind the presented refresh token and opens a successor, so a refresh
// token succeeds at most once even under concurrent presentation.
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build]. Users live behind a [credential.Repository]; sessions,
// throttle counters and invite codes live in Redis.
//
// # Errors
//
// Every error returned by an Engine operation is an [*Error] and matches one
// kind (ErrNotFound, ErrUnauthorized, ErrConflict, ErrServer, ErrRateLimited,
// ErrInvalidInput) and usually a reason through errors.Is:
//
//	_, err := engine.Refresh(ctx, token)
//	if errors.Is(err, phoneauth.ErrRefreshReuse) {
//		// token was already used; every session may have been revoked
//	}
//
// Backend failures and operation timeouts are always ErrServer.
package phoneauth
