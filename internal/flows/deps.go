package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/phoneauth/credential"
	"github.com/MrEthical07/phoneauth/invite"
	"github.com/MrEthical07/phoneauth/jwt"
	"github.com/MrEthical07/phoneauth/session"
)

// Credentials is the credential store as seen by the flows.
type Credentials interface {
	FindByPhone(ctx context.Context, id credential.Identity) (credential.User, error)
	FindByID(ctx context.Context, id string) (credential.User, error)
	Create(ctx context.Context, id credential.Identity, rawPassword string, profile credential.Profile) (credential.User, error)
	Claim(ctx context.Context, u credential.User, rawPassword string, profile credential.Profile) (credential.User, error)
	SetPassword(ctx context.Context, u credential.User, rawPassword string) (credential.User, error)
	VerifyPassword(u credential.User, rawPassword string) bool
	UpgradeHash(ctx context.Context, u credential.User, rawPassword string) (credential.User, bool, error)
	Touch(ctx context.Context, u credential.User) (credential.User, error)
}

// Tokens signs and verifies access and refresh tokens.
type Tokens interface {
	IssueAccess(userID string) (string, time.Time, error)
	IssueRefresh(userID, sid string) (string, time.Time, error)
	VerifyAccess(token string) (*jwt.Claims, error)
	VerifyRefresh(token string) (*jwt.Claims, error)
}

// Sessions is the session store.
type Sessions interface {
	Create(ctx context.Context, sess session.Session) error
	FindActiveByID(ctx context.Context, sid string) (session.Session, error)
	Consume(ctx context.Context, sid, userID string) (session.Session, error)
	Blacklist(ctx context.Context, sid string, reason session.RevokeReason) error
	BlacklistAllForUser(ctx context.Context, userID string, reason session.RevokeReason) (int, error)
	TrackReplayAnomaly(ctx context.Context, sid string, ttl time.Duration) error
}

// Throttle limits login failures and refresh calls.
type Throttle interface {
	CheckLogin(ctx context.Context, identity, ip string) error
	FailLogin(ctx context.Context, identity, ip string) (int64, error)
	ResetLogin(ctx context.Context, identity, ip string) error
	CheckRefresh(ctx context.Context, sid string) error
}

// Deps is built once by the engine.
type Deps struct {
	Credentials Credentials
	Tokens      Tokens
	Sessions    Sessions
	// Throttle and Invites are optional.
	Throttle Throttle
	Invites  invite.Verifier

	RequireInvite    bool
	UpgradeOnLogin   bool
	RevokeAllOnReuse bool
	ReplayTracking   bool
	ReplayTTL        time.Duration

	NewSessionID func() (string, error)
	ClientIP     func(context.Context) string
	UserAgent    func(context.Context) string
	Warn         func(format string, args ...any)
}

func (d Deps) ready() bool {
	return d.Credentials != nil && d.Tokens != nil && d.Sessions != nil && d.NewSessionID != nil
}

func (d Deps) clientIP(ctx context.Context) string {
	if d.ClientIP == nil {
		return ""
	}
	return d.ClientIP(ctx)
}

func (d Deps) userAgent(ctx context.Context) string {
	if d.UserAgent == nil {
		return ""
	}
	return d.UserAgent(ctx)
}

func (d Deps) warn(format string, args ...any) {
	if d.Warn != nil {
		d.Warn(format, args...)
	}
}
