package phoneauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Config is read once by [Builder.Build] and deep-copied into the engine.
type Config struct {
	JWT      JWTConfig
	Session  SessionConfig
	Password PasswordConfig
	Security SecurityConfig
	Invite   InviteConfig
	Audit    AuditConfig
	Metrics  MetricsConfig

	// OperationTimeout bounds every engine call; expiry surfaces as ErrServer.
	OperationTimeout time.Duration
}

/*
====================================
JWT CONFIG
====================================
*/

type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // SigningHS256 (default) or SigningEd25519
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
}

const (
	SigningHS256   = "hs256"
	SigningEd25519 = "ed25519"
)

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	RedisPrefix string
	// ReapInterval drives Engine.RunReaper. Zero disables background reaping.
	ReapInterval time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the hasher. The argon2id fields are ignored for bcrypt.
type PasswordConfig struct {
	Algorithm  string // "bcrypt" (default) or "argon2id"
	BcryptCost int

	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MinPasswordBytes int
	MaxPasswordBytes int
	UpgradeOnLogin   bool
}

const (
	PasswordBcrypt   = "bcrypt"
	PasswordArgon2id = "argon2id"
)

/*
====================================
SECURITY CONFIG
====================================
*/

type SecurityConfig struct {
	ProductionMode bool

	EnableLoginThrottle   bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration

	EnableRefreshThrottle   bool
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration

	// RevokeAllOnReuse blacklists every session of a user when one of its
	// consumed refresh tokens is presented again.
	RevokeAllOnReuse     bool
	EnableReplayTracking bool
	ReplayTrackingTTL    time.Duration
}

// InviteConfig gates signup on a live invite code.
type InviteConfig struct {
	Required    bool
	RedisPrefix string
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the settings the service runs with when nothing is
// overridden. Signing keys are left empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: SigningHS256,
			MaxFutureIAT:  time.Minute,
		},
		Session: SessionConfig{
			RedisPrefix:  "ps",
			ReapInterval: 10 * time.Minute,
		},
		Password: PasswordConfig{
			Algorithm:      PasswordBcrypt,
			BcryptCost:     10,
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Security: SecurityConfig{
			ProductionMode:          false,
			EnableLoginThrottle:     true,
			MaxLoginAttempts:        5,
			LoginCooldownDuration:   15 * time.Minute,
			EnableRefreshThrottle:   true,
			MaxRefreshAttempts:      20,
			RefreshCooldownDuration: 1 * time.Minute,
			RevokeAllOnReuse:        false,
			EnableReplayTracking:    true,
			ReplayTrackingTTL:       24 * time.Hour,
		},
		Invite: InviteConfig{
			Required:    false,
			RedisPrefix: "invite:",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		OperationTimeout: 5 * time.Second,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

const (
	minHS256KeyBytes = 32
	maxLeeway        = 2 * time.Minute
)

// Validate reports the first setting the engine cannot run with.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be longer than AccessTTL")
	}
	switch c.JWT.SigningMethod {
	case SigningHS256:
		if len(c.JWT.PrivateKey) < minHS256KeyBytes {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	case SigningEd25519:
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > maxLeeway {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if c.JWT.MaxFutureIAT < 0 {
		return errors.New("JWT MaxFutureIAT must be >= 0")
	}
	if c.JWT.Issuer != "" && strings.TrimSpace(c.JWT.Issuer) == "" {
		return errors.New("JWT Issuer must not be blank")
	}
	if c.JWT.Audience != "" && strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Audience must not be blank")
	}

	// Session
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if strings.ContainsAny(c.Session.RedisPrefix, " \t\r\n") {
		return errors.New("Session RedisPrefix must not contain whitespace")
	}
	if c.Session.ReapInterval < 0 {
		return errors.New("Session ReapInterval must be >= 0")
	}

	// Password
	switch c.Password.Algorithm {
	case PasswordBcrypt:
		if c.Password.BcryptCost < bcrypt.MinCost || c.Password.BcryptCost > bcrypt.MaxCost {
			return errors.New("Password BcryptCost must be between 4 and 31")
		}
	case PasswordArgon2id:
		// Cost floors are owned by the argon2 hasher itself.
		if _, err := newHasher(c.Password); err != nil {
			return fmt.Errorf("Password: %w", err)
		}
	default:
		return errors.New("Password Algorithm must be 'bcrypt' or 'argon2id'")
	}
	if c.Password.MinPasswordBytes < 0 || c.Password.MaxPasswordBytes < 0 {
		return errors.New("Password byte bounds must be >= 0")
	}
	if c.Password.MaxPasswordBytes > 0 && c.Password.MinPasswordBytes > c.Password.MaxPasswordBytes {
		return errors.New("Password MinPasswordBytes must be <= MaxPasswordBytes")
	}

	// Security
	if c.Security.EnableLoginThrottle {
		if c.Security.MaxLoginAttempts <= 0 {
			return errors.New("MaxLoginAttempts must be > 0 when login throttle is enabled")
		}
		if c.Security.LoginCooldownDuration <= 0 {
			return errors.New("LoginCooldownDuration must be > 0 when login throttle is enabled")
		}
	}
	if c.Security.EnableRefreshThrottle {
		if c.Security.MaxRefreshAttempts <= 0 {
			return errors.New("MaxRefreshAttempts must be > 0 when refresh throttle is enabled")
		}
		if c.Security.RefreshCooldownDuration <= 0 {
			return errors.New("RefreshCooldownDuration must be > 0 when refresh throttle is enabled")
		}
	}
	if c.Security.EnableReplayTracking && c.Security.ReplayTrackingTTL <= 0 {
		return errors.New("ReplayTrackingTTL must be > 0 when replay tracking is enabled")
	}

	// Invite
	if c.Invite.Required && strings.TrimSpace(c.Invite.RedisPrefix) == "" {
		return errors.New("Invite RedisPrefix must not be empty when invites are required")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.OperationTimeout <= 0 {
		return errors.New("OperationTimeout must be > 0")
	}

	if c.Security.ProductionMode {
		if c.JWT.AccessTTL > 15*time.Minute {
			return errors.New("ProductionMode requires JWT AccessTTL <= 15m")
		}
		if c.JWT.RefreshTTL > 30*24*time.Hour {
			return errors.New("ProductionMode requires JWT RefreshTTL <= 30d")
		}
		if c.Password.Algorithm == PasswordBcrypt && c.Password.BcryptCost < bcrypt.DefaultCost {
			return errors.New("ProductionMode requires Password BcryptCost >= 10")
		}
		if c.Password.Algorithm == PasswordArgon2id && c.Password.Memory < 64*1024 {
			return errors.New("ProductionMode requires Password Memory >= 65536 KB")
		}
		if !c.Security.EnableLoginThrottle {
			return errors.New("ProductionMode requires the login throttle")
		}
	}

	return nil
}
