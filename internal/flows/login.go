package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/phoneauth/credential"
	"github.com/MrEthical07/phoneauth/internal/rate"
)

// RunLogin checks the throttle, verifies the password and opens one session.
// Unknown identities and wrong passwords both count toward the throttle.
func RunLogin(ctx context.Context, d Deps, id credential.Identity, password string) Result {
	if !d.ready() {
		return fail(FailureNotReady, nil)
	}
	if err := id.Validate(); err != nil {
		return fail(FailureInvalidInput, err)
	}

	throttleKey := id.String()
	ip := d.clientIP(ctx)

	if d.Throttle != nil {
		if err := d.Throttle.CheckLogin(ctx, throttleKey, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				return fail(FailureRateLimited, err)
			}
			return fail(FailureBackend, err)
		}
	}

	user, err := d.Credentials.FindByPhone(ctx, id)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			recordLoginFailure(ctx, d, throttleKey, ip)
			return fail(FailureUserNotFound, err)
		}
		return fail(FailureBackend, err)
	}

	if !d.Credentials.VerifyPassword(user, password) {
		recordLoginFailure(ctx, d, throttleKey, ip)
		res := fail(FailureInvalidCredentials, nil)
		res.UserID = user.ID
		return res
	}

	if d.Throttle != nil {
		if err := d.Throttle.ResetLogin(ctx, throttleKey, ip); err != nil {
			d.warn("phoneauth: login throttle reset failed: %v", err)
		}
	}

	if d.UpgradeOnLogin {
		upgraded, changed, err := d.Credentials.UpgradeHash(ctx, user, password)
		if err != nil {
			d.warn("phoneauth: password hash upgrade failed: %v", err)
		} else if changed {
			user = upgraded
		}
	}

	if touched, err := d.Credentials.Touch(ctx, user); err != nil {
		d.warn("phoneauth: last-active update failed: %v", err)
	} else {
		user = touched
	}

	issued, err := issueSession(ctx, d, user.ID)
	if err != nil {
		return issueFailure(user.ID, err)
	}
	return Result{
		UserID:    user.ID,
		SessionID: issued.SessionID,
		User:      user,
		Issued:    issued,
	}
}

func recordLoginFailure(ctx context.Context, d Deps, identity, ip string) {
	if d.Throttle == nil {
		return
	}
	if _, err := d.Throttle.FailLogin(ctx, identity, ip); err != nil {
		d.warn("phoneauth: login throttle update failed: %v", err)
	}
}
