package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/phoneauth/session"
)

// RunValidateAccess checks an access token's signature, expiry and kind.
// It never touches a store.
func RunValidateAccess(d Deps, accessToken string) Result {
	if d.Tokens == nil {
		return fail(FailureNotReady, nil)
	}
	claims, failure, err := verifyToken(d.Tokens.VerifyAccess, accessToken)
	if failure != FailureNone {
		return fail(failure, err)
	}
	return Result{UserID: claims.UID, Claims: claims}
}

// RunValidateRefresh verifies a refresh token and requires its session to be
// active and bound to the same user. The session is not consumed.
func RunValidateRefresh(ctx context.Context, d Deps, refreshToken string) Result {
	if d.Tokens == nil || d.Sessions == nil {
		return fail(FailureNotReady, nil)
	}
	claims, failure, err := verifyToken(d.Tokens.VerifyRefresh, refreshToken)
	if failure != FailureNone {
		return fail(failure, err)
	}

	sess, err := d.Sessions.FindActiveByID(ctx, claims.SID)
	if err != nil {
		res := fail(FailureBackend, err)
		switch {
		case errors.Is(err, session.ErrNotFound):
			res.Failure = FailureSessionNotActive
		case errors.Is(err, session.ErrMalformedSession):
			res.Failure = FailureTokenInvalid
		}
		res.UserID, res.SessionID = claims.UID, claims.SID
		return res
	}
	if sess.UserID != claims.UID {
		res := fail(FailureTokenInvalid, session.ErrOwnerMismatch)
		res.UserID, res.SessionID = claims.UID, claims.SID
		return res
	}
	return Result{UserID: claims.UID, SessionID: claims.SID, Claims: claims}
}
