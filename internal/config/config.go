// Package config loads process configuration for the phoneauth commands from
// the environment and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/phoneauth"
	"github.com/spf13/viper"
)

// Config is the flat environment view. ToEngineConfig turns it into a
// [phoneauth.Config].
type Config struct {
	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	// DatabaseURL is the Postgres DSN. Empty selects the in-memory user store.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	JWTSigningMethod string `mapstructure:"JWT_SIGNING_METHOD"`
	// JWTSecret is the HMAC secret for hs256.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTPrivateKey and JWTPublicKey hold a PEM ed25519 key or a path to one.
	JWTPrivateKey string        `mapstructure:"JWT_PRIVATE_KEY"`
	JWTPublicKey  string        `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer     string        `mapstructure:"JWT_ISSUER"`
	JWTAudience   string        `mapstructure:"JWT_AUDIENCE"`
	JWTAccessTTL  time.Duration `mapstructure:"JWT_ACCESS_TTL"`
	JWTRefreshTTL time.Duration `mapstructure:"JWT_REFRESH_TTL"`

	BcryptCost int `mapstructure:"BCRYPT_COST"`

	CookieSecure bool   `mapstructure:"COOKIE_SECURE"`
	CookieDomain string `mapstructure:"COOKIE_DOMAIN"`

	SessionRedisPrefix string        `mapstructure:"SESSION_REDIS_PREFIX"`
	ReapInterval       time.Duration `mapstructure:"REAP_INTERVAL"`

	LoginMaxAttempts   int           `mapstructure:"LOGIN_MAX_ATTEMPTS"`
	LoginCooldown      time.Duration `mapstructure:"LOGIN_COOLDOWN"`
	RefreshMaxAttempts int           `mapstructure:"REFRESH_MAX_ATTEMPTS"`
	RefreshCooldown    time.Duration `mapstructure:"REFRESH_COOLDOWN"`

	RequireInvite  bool `mapstructure:"REQUIRE_INVITE"`
	AuditEnabled   bool `mapstructure:"AUDIT_ENABLED"`
	MetricsEnabled bool `mapstructure:"METRICS_ENABLED"`
	// OTLPEndpoint enables the OTLP gRPC metric exporter when set.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	OperationTimeout time.Duration `mapstructure:"OPERATION_TIMEOUT"`
	// Env is the application environment; "production" turns on the engine's
	// production checks.
	Env string `mapstructure:"APP_ENV"`
}

var defaults = map[string]any{
	"HTTP_ADDR":                   ":8080",
	"REDIS_ADDR":                  "localhost:6379",
	"REDIS_PASSWORD":              "",
	"REDIS_DB":                    0,
	"DATABASE_URL":                "",
	"JWT_SIGNING_METHOD":          "hs256",
	"JWT_SECRET":                  "",
	"JWT_PRIVATE_KEY":             "",
	"JWT_PUBLIC_KEY":              "",
	"JWT_ISSUER":                  "phoneauth",
	"JWT_AUDIENCE":                "",
	"JWT_ACCESS_TTL":              "15m",
	"JWT_REFRESH_TTL":             "168h",
	"BCRYPT_COST":                 10,
	"COOKIE_SECURE":               false,
	"COOKIE_DOMAIN":               "",
	"SESSION_REDIS_PREFIX":        "ps",
	"REAP_INTERVAL":               "10m",
	"LOGIN_MAX_ATTEMPTS":          5,
	"LOGIN_COOLDOWN":              "15m",
	"REFRESH_MAX_ATTEMPTS":        20,
	"REFRESH_COOLDOWN":            "1m",
	"REQUIRE_INVITE":              false,
	"AUDIT_ENABLED":               true,
	"METRICS_ENABLED":             true,
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"OPERATION_TIMEOUT":           "5s",
	"APP_ENV":                     "",
}

// Load reads .env (if present), then the environment. Environment variables
// override .env. A missing signing key is an error.
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		_ = v.ReadInConfig() // missing file is fine
	}

	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DatabaseURL reads only DATABASE_URL, for commands that need no signing key.
func DatabaseURL() string {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()
	v.AutomaticEnv()
	return v.GetString("DATABASE_URL")
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.RedisAddr == "" {
		return errors.New("config: REDIS_ADDR must be set")
	}
	switch strings.ToLower(c.JWTSigningMethod) {
	case "hs256":
		if c.JWTSecret == "" {
			return errors.New("config: JWT_SECRET must be set for hs256")
		}
	case "ed25519":
		if c.JWTPrivateKey == "" {
			return errors.New("config: JWT_PRIVATE_KEY must be set for ed25519")
		}
	default:
		return fmt.Errorf("config: unsupported JWT_SIGNING_METHOD %q", c.JWTSigningMethod)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	return nil
}

// Production reports whether APP_ENV selects production.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// ToEngineConfig maps the environment onto the engine defaults. Key material
// given as a file path is read here.
func (c *Config) ToEngineConfig() (phoneauth.Config, error) {
	out := phoneauth.DefaultConfig()

	out.JWT.SigningMethod = strings.ToLower(c.JWTSigningMethod)
	out.JWT.Issuer = c.JWTIssuer
	out.JWT.Audience = c.JWTAudience
	out.JWT.AccessTTL = c.JWTAccessTTL
	out.JWT.RefreshTTL = c.JWTRefreshTTL
	if out.JWT.SigningMethod == phoneauth.SigningHS256 {
		out.JWT.PrivateKey = []byte(c.JWTSecret)
	} else {
		priv, err := keyMaterial(c.JWTPrivateKey)
		if err != nil {
			return phoneauth.Config{}, fmt.Errorf("config: JWT_PRIVATE_KEY: %w", err)
		}
		pub, err := keyMaterial(c.JWTPublicKey)
		if err != nil {
			return phoneauth.Config{}, fmt.Errorf("config: JWT_PUBLIC_KEY: %w", err)
		}
		out.JWT.PrivateKey, out.JWT.PublicKey = priv, pub
	}

	out.Password.BcryptCost = c.BcryptCost

	out.Session.RedisPrefix = c.SessionRedisPrefix
	out.Session.ReapInterval = c.ReapInterval

	out.Security.ProductionMode = c.Production()
	out.Security.EnableLoginThrottle = c.LoginMaxAttempts > 0
	out.Security.MaxLoginAttempts = c.LoginMaxAttempts
	out.Security.LoginCooldownDuration = c.LoginCooldown
	out.Security.EnableRefreshThrottle = c.RefreshMaxAttempts > 0
	out.Security.MaxRefreshAttempts = c.RefreshMaxAttempts
	out.Security.RefreshCooldownDuration = c.RefreshCooldown

	out.Invite.Required = c.RequireInvite
	out.Audit.Enabled = c.AuditEnabled
	out.Metrics.Enabled = c.MetricsEnabled
	out.Metrics.EnableLatencyHistograms = c.MetricsEnabled
	out.OperationTimeout = c.OperationTimeout

	if err := out.Validate(); err != nil {
		return phoneauth.Config{}, fmt.Errorf("config: %w", err)
	}
	return out, nil
}

func keyMaterial(v string) ([]byte, error) {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasPrefix(v, "-----BEGIN") {
		return []byte(v), nil
	}
	return os.ReadFile(v)
}
