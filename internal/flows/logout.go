package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/phoneauth/session"
)

// RunLogout blacklists the session behind refreshToken. Tokens that fail
// verification and sessions that are already gone both count as success.
func RunLogout(ctx context.Context, d Deps, refreshToken string) Result {
	if !d.ready() {
		return fail(FailureNotReady, nil)
	}

	claims, failure, err := verifyToken(d.Tokens.VerifyRefresh, refreshToken)
	if failure != FailureNone {
		// Nothing to revoke; the caller still clears its cookies.
		return Result{Err: err}
	}

	if err := d.Sessions.Blacklist(ctx, claims.SID, session.ReasonLogout); err != nil {
		res := fail(FailureBackend, err)
		res.UserID, res.SessionID = claims.UID, claims.SID
		return res
	}
	return Result{UserID: claims.UID, SessionID: claims.SID, Claims: claims}
}

// RunLogoutAll blacklists every session of userID.
func RunLogoutAll(ctx context.Context, d Deps, userID string) Result {
	if !d.ready() {
		return fail(FailureNotReady, nil)
	}
	if userID == "" {
		return fail(FailureInvalidInput, errors.New("user id required"))
	}
	n, err := d.Sessions.BlacklistAllForUser(ctx, userID, session.ReasonRevokeAll)
	if err != nil {
		res := fail(FailureBackend, err)
		res.UserID = userID
		return res
	}
	return Result{UserID: userID, Revoked: n}
}
