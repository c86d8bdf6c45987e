package phoneauth

import (
	"errors"
	"log"
	"time"

	"github.com/MrEthical07/phoneauth/credential"
	"github.com/MrEthical07/phoneauth/internal"
	internalaudit "github.com/MrEthical07/phoneauth/internal/audit"
	"github.com/MrEthical07/phoneauth/internal/flows"
	"github.com/MrEthical07/phoneauth/internal/rate"
	"github.com/MrEthical07/phoneauth/invite"
	"github.com/MrEthical07/phoneauth/jwt"
	"github.com/MrEthical07/phoneauth/password"
	"github.com/MrEthical07/phoneauth/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users     credential.Repository
	invites   invite.Verifier
	auditSink AuditSink
	now       func() time.Time

	built bool
}

func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The value is deep-copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing sessions, throttles and invite lookups.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserRepository sets the persistence behind the credential store.
func (b *Builder) WithUserRepository(repo credential.Repository) *Builder {
	b.users = repo
	return b
}

// WithInviteVerifier overrides the Redis invite verifier used when
// Config.Invite.Required is set.
func (b *Builder) WithInviteVerifier(v invite.Verifier) *Builder {
	b.invites = v
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock replaces time.Now for token issuance, session expiry and user
// timestamps. Tests use it to move time without sleeping.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires every component. A missing
// signing key or backend is reported here, not on first use.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil {
		return nil, errors.New("user repository required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	hasher, err := newHasher(cfg.Password)
	if err != nil {
		return nil, err
	}

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		MaxFutureIAT:  cfg.JWT.MaxFutureIAT,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	// -------- STORES --------
	sessions := session.NewStore(b.redis, cfg.Session.RedisPrefix).WithClock(now)
	credentials := credential.NewStore(b.users, hasher).WithClock(now)

	limits := rate.Config{Prefix: cfg.Session.RedisPrefix}
	if cfg.Security.EnableLoginThrottle {
		limits.MaxLoginAttempts = cfg.Security.MaxLoginAttempts
		limits.LoginCooldownDuration = cfg.Security.LoginCooldownDuration
	}
	if cfg.Security.EnableRefreshThrottle {
		limits.MaxRefreshAttempts = cfg.Security.MaxRefreshAttempts
		limits.RefreshCooldownDuration = cfg.Security.RefreshCooldownDuration
	}
	limiter := rate.New(b.redis, limits)

	invites := b.invites
	if invites == nil && cfg.Invite.Required {
		invites = invite.NewRedisVerifier(b.redis, cfg.Invite.RedisPrefix)
	}

	engine := &Engine{
		config:      cloneConfig(cfg),
		credentials: credentials,
		sessions:    sessions,
		tokens:      jm,
		limiter:     limiter,
		invites:     invites,
		now:         now,
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	engine.deps = flows.Deps{
		Credentials:      credentials,
		Tokens:           jm,
		Sessions:         sessions,
		Throttle:         limiter,
		Invites:          invites,
		RequireInvite:    cfg.Invite.Required,
		UpgradeOnLogin:   cfg.Password.UpgradeOnLogin,
		RevokeAllOnReuse: cfg.Security.RevokeAllOnReuse,
		ReplayTracking:   cfg.Security.EnableReplayTracking,
		ReplayTTL:        cfg.Security.ReplayTrackingTTL,
		NewSessionID:     newSessionID,
		ClientIP:         clientIPFromContext,
		UserAgent:        userAgentFromContext,
		Warn:             log.Printf,
	}

	b.built = true

	return engine, nil
}

func newHasher(cfg PasswordConfig) (password.Hasher, error) {
	switch cfg.Algorithm {
	case PasswordArgon2id:
		return password.NewArgon2(password.Config{
			Memory:           cfg.Memory,
			Time:             cfg.Time,
			Parallelism:      cfg.Parallelism,
			SaltLength:       cfg.SaltLength,
			KeyLength:        cfg.KeyLength,
			MinPasswordBytes: cfg.MinPasswordBytes,
			MaxPasswordBytes: cfg.MaxPasswordBytes,
		})
	default:
		return password.NewBcrypt(password.BcryptConfig{
			Cost:             cfg.BcryptCost,
			MinPasswordBytes: cfg.MinPasswordBytes,
			MaxPasswordBytes: cfg.MaxPasswordBytes,
		}), nil
	}
}

func newSessionID() (string, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return "", err
	}
	return sid.String(), nil
}
