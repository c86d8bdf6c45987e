package flows

import (
	"context"
	"fmt"

	"github.com/MrEthical07/phoneauth/session"
)

// issueSession mints a fresh sid, signs both tokens and persists the session
// row. The row expires with the refresh token.
func issueSession(ctx context.Context, d Deps, userID string) (Issued, error) {
	sid, err := d.NewSessionID()
	if err != nil {
		return Issued{}, fmt.Errorf("session id: %w", err)
	}

	refresh, refreshExp, err := d.Tokens.IssueRefresh(userID, sid)
	if err != nil {
		return Issued{}, fmt.Errorf("issue refresh: %w", err)
	}
	access, accessExp, err := d.Tokens.IssueAccess(userID)
	if err != nil {
		return Issued{}, fmt.Errorf("issue access: %w", err)
	}

	err = d.Sessions.Create(ctx, session.Session{
		SID:         sid,
		UserID:      userID,
		Status:      session.StatusActive,
		ExpiresAt:   refreshExp,
		CreatedByIP: d.clientIP(ctx),
		UserAgent:   d.userAgent(ctx),
	})
	if err != nil {
		return Issued{}, err
	}

	return Issued{
		SessionID:        sid,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func issueFailure(userID string, err error) Result {
	res := fail(FailureBackend, err)
	res.UserID = userID
	return res
}
