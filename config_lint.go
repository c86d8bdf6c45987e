package phoneauth

import (
	"fmt"
	"strings"
	"time"
)

// LintSeverity ranks a configuration warning.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// LintWarning is a setting that is valid but probably not what a production
// deployment wants.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

type LintWarnings []LintWarning

func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// BySeverity returns the warnings at or above min.
func (ws LintWarnings) BySeverity(min LintSeverity) LintWarnings {
	var out LintWarnings
	for _, w := range ws {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError folds the warnings at or above min into one error, or returns nil.
func (ws LintWarnings) AsError(min LintSeverity) error {
	hits := ws.BySeverity(min)
	if len(hits) == 0 {
		return nil
	}
	parts := make([]string, 0, len(hits))
	for _, w := range hits {
		parts = append(parts, fmt.Sprintf("[%s] %s: %s", w.Severity, w.Code, w.Message))
	}
	return fmt.Errorf("phoneauth: config lint: %s", strings.Join(parts, "; "))
}

// Lint inspects a config that already passes Validate.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if c.JWT.Leeway > 60*time.Second {
		add("leeway_large", LintWarn, "JWT leeway above 60s widens the window for expired tokens")
	}
	if c.JWT.AccessTTL > 15*time.Minute {
		add("access_ttl_long", LintWarn, "access tokens cannot be revoked before they expire")
	}
	if c.JWT.RefreshTTL > 30*24*time.Hour {
		add("refresh_ttl_long", LintWarn, "refresh TTL above 30 days")
	}
	if c.JWT.SigningMethod == SigningHS256 {
		add("signing_hs256", LintInfo, "hs256 shares one secret between signer and verifiers")
	}
	if !c.Security.EnableLoginThrottle && !c.Security.EnableRefreshThrottle {
		add("rate_limits_disabled", LintHigh, "login and refresh throttles are both disabled")
	} else if !c.Security.EnableLoginThrottle {
		add("login_throttle_disabled", LintHigh, "password guessing is unthrottled")
	}
	if !c.Security.RevokeAllOnReuse {
		add("reuse_revoke_all_disabled", LintInfo, "a replayed refresh token only fails; sibling sessions stay active")
	}
	if c.Security.RevokeAllOnReuse && !c.Security.EnableReplayTracking {
		add("reuse_without_tracking", LintInfo, "reuse revocations are not recorded")
	}
	if c.Password.Algorithm == PasswordBcrypt && c.Password.BcryptCost < 10 {
		add("bcrypt_cost_low", LintWarn, "bcrypt cost below 10")
	}
	if c.Password.Algorithm == PasswordArgon2id && c.Password.Memory < 64*1024 {
		add("argon2_memory_low", LintWarn, "argon2id memory below 64 MB")
	}
	if c.Session.ReapInterval == 0 {
		add("reaper_disabled", LintInfo, "expired session index entries are only removed by TTL")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "refresh reuse and login failures are not audited")
	}
	if c.OperationTimeout > 30*time.Second {
		add("operation_timeout_long", LintWarn, "slow backends hold requests for more than 30s")
	}

	return ws
}
