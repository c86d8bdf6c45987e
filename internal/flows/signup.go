package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/phoneauth/credential"
	"github.com/MrEthical07/phoneauth/invite"
)

// SignupInput carries a validated identity and the raw signup fields.
type SignupInput struct {
	Identity   credential.Identity
	Password   string
	Profile    credential.Profile
	InviteCode string
}

// RunSignup creates the user, or claims a provisional one first seen through
// an inbound message, and opens its first session.
func RunSignup(ctx context.Context, d Deps, in SignupInput) Result {
	if !d.ready() {
		return fail(FailureNotReady, nil)
	}
	if err := in.Identity.Validate(); err != nil {
		return fail(FailureInvalidInput, err)
	}
	if in.Password == "" {
		return fail(FailurePasswordPolicy, nil)
	}

	if d.RequireInvite {
		if d.Invites == nil {
			return fail(FailureNotReady, errors.New("invite gate enabled without a verifier"))
		}
		if err := d.Invites.Verify(ctx, in.InviteCode); err != nil {
			if errors.Is(err, invite.ErrInvalidCode) {
				return fail(FailureInviteInvalid, err)
			}
			return fail(FailureBackend, err)
		}
	}

	user, err := d.Credentials.FindByPhone(ctx, in.Identity)
	switch {
	case errors.Is(err, credential.ErrNotFound):
		user, err = d.Credentials.Create(ctx, in.Identity, in.Password, in.Profile)
	case err != nil:
		return fail(FailureBackend, err)
	case user.Provisional():
		user, err = d.Credentials.Claim(ctx, user, in.Password, in.Profile)
	default:
		return fail(FailureAccountExists, nil)
	}
	if err != nil {
		return signupFailure(err)
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

func signupFailure(err error) Result {
	switch {
	case errors.Is(err, credential.ErrConflict):
		return fail(FailureAccountExists, err)
	case errors.Is(err, credential.ErrPasswordPolicy):
		return fail(FailurePasswordPolicy, err)
	case errors.Is(err, credential.ErrInvalidUser), errors.Is(err, credential.ErrInvalidIdentity):
		return fail(FailureInvalidInput, err)
	default:
		return fail(FailureBackend, err)
	}
}
