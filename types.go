package phoneauth

import (
	"time"

	"github.com/MrEthical07/phoneauth/credential"
	"github.com/MrEthical07/phoneauth/jwt"
	"github.com/MrEthical07/phoneauth/session"
)

// TokenPair is returned by Signup, Login and Refresh. The refresh token is
// single-use: a successful Refresh consumes it.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time

	UserID    string
	SessionID string
	// User is set by Signup and Login.
	User *credential.PublicUser
}

// SignupRequest is the input for [Engine.Signup]. Preferences default to the
// service defaults when nil.
type SignupRequest struct {
	CountryCode string
	PhoneNumber string
	Password    string
	Name        string
	Email       string
	Preferences *credential.Preferences
	InviteCode  string
}

// Claims is the verified payload of an access or refresh token.
type Claims = jwt.Claims

// SessionInfo is the list view of one session.
type SessionInfo struct {
	SessionID   string
	Active      bool
	ExpiresAt   time.Time
	CreatedByIP string
	UserAgent   string
	CreatedAt   time.Time
}

func sessionInfo(s session.Session, now time.Time) SessionInfo {
	return SessionInfo{
		SessionID:   s.SID,
		Active:      s.ActiveAt(now),
		ExpiresAt:   s.ExpiresAt,
		CreatedByIP: s.CreatedByIP,
		UserAgent:   s.UserAgent,
		CreatedAt:   s.CreatedAt,
	}
}

// SecurityReport is a read-only summary of the engine's security posture.
type SecurityReport struct {
	ProductionMode        bool
	SigningAlgorithm      string
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	PasswordAlgorithm     string
	BcryptCost            int
	LoginThrottleActive   bool
	RefreshThrottleActive bool
	RevokeAllOnReuse      bool
	ReplayTracking        bool
	InviteRequired        bool
	AuditEnabled          bool
	OperationTimeout      time.Duration
}
