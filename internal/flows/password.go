package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/phoneauth/credential"
	"github.com/MrEthical07/phoneauth/session"
)

// RunChangePassword verifies oldPassword, stores the new hash and signs the
// user out everywhere.
func RunChangePassword(ctx context.Context, d Deps, userID, oldPassword, newPassword string) Result {
	if !d.ready() {
		return fail(FailureNotReady, nil)
	}
	if userID == "" {
		return fail(FailureInvalidInput, errors.New("user id required"))
	}
	if newPassword == "" {
		return fail(FailurePasswordPolicy, nil)
	}

	user, err := d.Credentials.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return fail(FailureUserNotFound, err)
		}
		return fail(FailureBackend, err)
	}
	if !d.Credentials.VerifyPassword(user, oldPassword) {
		res := fail(FailureInvalidCredentials, nil)
		res.UserID = userID
		return res
	}

	user, err = d.Credentials.SetPassword(ctx, user, newPassword)
	if err != nil {
		res := fail(FailureBackend, err)
		if errors.Is(err, credential.ErrPasswordPolicy) {
			res.Failure = FailurePasswordPolicy
		}
		res.UserID = userID
		return res
	}

	n, err := d.Sessions.BlacklistAllForUser(ctx, userID, session.ReasonPasswordChange)
	if err != nil {
		res := fail(FailureBackend, err)
		res.UserID = userID
		return res
	}
	return Result{UserID: userID, User: user, Revoked: n}
}

// RunMe loads the user behind an authenticated request.
func RunMe(ctx context.Context, d Deps, userID string) Result {
	if !d.ready() {
		return fail(FailureNotReady, nil)
	}
	if userID == "" {
		return fail(FailureInvalidInput, errors.New("user id required"))
	}
	user, err := d.Credentials.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return fail(FailureUserNotFound, err)
		}
		return fail(FailureBackend, err)
	}
	return Result{UserID: userID, User: user}
}
