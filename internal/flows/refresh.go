package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/phoneauth/internal/rate"
	"github.com/MrEthical07/phoneauth/jwt"
	"github.com/MrEthical07/phoneauth/session"
)

// RunRefresh rotates a refresh token. The order is fixed: verify the token,
// throttle by sid, consume the old session, then issue and persist the next
// one. Consume is a single atomic step, so of two racing calls with the same
// token exactly one proceeds past it.
func RunRefresh(ctx context.Context, d Deps, refreshToken string) Result {
	if !d.ready() {
		return fail(FailureNotReady, nil)
	}

	claims, failure, err := verifyToken(d.Tokens.VerifyRefresh, refreshToken)
	if failure != FailureNone {
		return fail(failure, err)
	}

	if d.Throttle != nil {
		if err := d.Throttle.CheckRefresh(ctx, claims.SID); err != nil {
			res := fail(FailureBackend, err)
			if errors.Is(err, rate.ErrRateLimited) {
				res.Failure = FailureRateLimited
			}
			res.UserID, res.SessionID = claims.UID, claims.SID
			return res
		}
	}

	if _, err := d.Sessions.Consume(ctx, claims.SID, claims.UID); err != nil {
		res := consumeFailure(ctx, d, claims, err)
		res.UserID, res.SessionID = claims.UID, claims.SID
		return res
	}

	issued, err := issueSession(ctx, d, claims.UID)
	if err != nil {
		return issueFailure(claims.UID, err)
	}
	return Result{
		UserID:    claims.UID,
		SessionID: issued.SessionID,
		Issued:    issued,
		Claims:    claims,
	}
}

func consumeFailure(ctx context.Context, d Deps, claims *jwt.Claims, err error) Result {
	switch {
	case errors.Is(err, session.ErrAlreadyBlacklisted):
		res := fail(FailureRefreshReuse, err)
		if d.ReplayTracking {
			if trackErr := d.Sessions.TrackReplayAnomaly(ctx, claims.SID, d.ReplayTTL); trackErr != nil {
				d.warn("phoneauth: replay tracking failed: %v", trackErr)
			}
		}
		if d.RevokeAllOnReuse {
			n, revokeErr := d.Sessions.BlacklistAllForUser(ctx, claims.UID, session.ReasonRevokeAll)
			if revokeErr != nil {
				d.warn("phoneauth: revoke-all after refresh reuse failed: %v", revokeErr)
			}
			res.Revoked = n
		}
		return res
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrRevoked):
		return fail(FailureSessionNotActive, err)
	case errors.Is(err, session.ErrOwnerMismatch), errors.Is(err, session.ErrMalformedSession):
		return fail(FailureTokenInvalid, err)
	default:
		return fail(FailureBackend, err)
	}
}

func verifyToken(verify func(string) (*jwt.Claims, error), token string) (*jwt.Claims, Failure, error) {
	if token == "" {
		return nil, FailureTokenInvalid, jwt.ErrTokenInvalid
	}
	claims, err := verify(token)
	switch {
	case err == nil:
		return claims, FailureNone, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, FailureTokenExpired, err
	default:
		return nil, FailureTokenInvalid, err
	}
}
