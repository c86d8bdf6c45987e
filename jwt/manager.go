package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

const minHMACKeyBytes = 32

var (
	// ErrTokenExpired is returned when a token is well-formed and correctly signed but past exp.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers bad signatures, malformed payloads, wrong kind, issuer or audience.
	ErrTokenInvalid = errors.New("invalid token")
)

// Config is read once by NewManager. Keys are copied and never mutated afterwards.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	// PrivateKey is the HMAC secret for hs256, or an ed25519 private key (raw or PEM).
	PrivateKey []byte
	// PublicKey is optional for ed25519; it is derived from PrivateKey when empty.
	PublicKey    []byte
	Issuer       string
	Audience     string
	Leeway       time.Duration
	MaxFutureIAT time.Duration

	// Now overrides the clock used for issuance and verification.
	Now func() time.Time
}

// Claims is the payload shared by both token kinds. SID is empty on access tokens.
type Claims struct {
	UID  string `json:"uid"`
	SID  string `json:"sid,omitempty"`
	Kind Kind   `json:"typ"`
	jwt.RegisteredClaims
}

// Manager issues and verifies tokens. It is safe for concurrent use.
type Manager struct {
	config    Config
	method    jwt.SigningMethod
	signKey   interface{}
	verifyKey interface{}
	now       func() time.Time
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("jwt: AccessTTL must be > 0")
	}
	if cfg.RefreshTTL <= 0 {
		return nil, errors.New("jwt: RefreshTTL must be > 0")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("jwt: RefreshTTL must be >= AccessTTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwt: invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("jwt: invalid MaxFutureIAT configuration")
	}
	if len(cfg.PrivateKey) == 0 {
		return nil, errors.New("jwt: signing key required")
	}

	m := &Manager{config: cfg, now: cfg.Now}
	if m.now == nil {
		m.now = time.Now
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < minHMACKeyBytes {
			return nil, fmt.Errorf("jwt: hs256 secret must be at least %d bytes", minHMACKeyBytes)
		}
		key := append([]byte(nil), cfg.PrivateKey...)
		m.method = jwt.SigningMethodHS256
		m.signKey = key
		m.verifyKey = key
	case MethodEd25519:
		priv, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		pub, ok := priv.Public().(ed25519.PublicKey)
		if !ok {
			return nil, errors.New("jwt: invalid ed25519 private key")
		}
		if len(cfg.PublicKey) > 0 {
			configured, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			if !configured.Equal(pub) {
				return nil, errors.New("jwt: ed25519 public key does not match private key")
			}
		}
		m.method = jwt.SigningMethodEdDSA
		m.signKey = priv
		m.verifyKey = pub
	default:
		return nil, errors.New("jwt: unsupported signing method")
	}

	return m, nil
}

// AccessTTL reports the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL reports the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// IssueAccess signs a short-lived token for userID.
func (m *Manager) IssueAccess(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("jwt: user id required")
	}
	return m.issue(Claims{UID: userID, Kind: KindAccess}, m.config.AccessTTL)
}

// IssueRefresh signs a long-lived token naming session sid. The caller owns sid uniqueness.
func (m *Manager) IssueRefresh(userID, sid string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("jwt: user id required")
	}
	if sid == "" {
		return "", time.Time{}, errors.New("jwt: session id required")
	}
	claims := Claims{UID: userID, SID: sid, Kind: KindRefresh}
	claims.ID = sid
	return m.issue(claims, m.config.RefreshTTL)
}

func (m *Manager) issue(claims Claims, ttl time.Duration) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(ttl)

	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(exp)
	claims.Issuer = m.config.Issuer
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	signed, err := jwt.NewWithClaims(m.method, claims).SignedString(m.signKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt: sign: %w", err)
	}
	// NumericDate truncates to seconds; report what the client will see.
	return signed, claims.ExpiresAt.Time, nil
}

// Verify checks signature, expiry, issuer and audience of either token kind.
func (m *Manager) Verify(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.verifyKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UID == "" {
		return nil, ErrTokenInvalid
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(m.now().Add(m.config.MaxFutureIAT)) {
		return nil, ErrTokenInvalid
	}

	switch claims.Kind {
	case KindAccess:
		if claims.SID != "" {
			return nil, ErrTokenInvalid
		}
	case KindRefresh:
		if claims.SID == "" {
			return nil, ErrTokenInvalid
		}
	default:
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// VerifyAccess is Verify restricted to access tokens.
func (m *Manager) VerifyAccess(tokenStr string) (*Claims, error) {
	return m.verifyKind(tokenStr, KindAccess)
}

// VerifyRefresh is Verify restricted to refresh tokens.
func (m *Manager) VerifyRefresh(tokenStr string) (*Claims, error) {
	return m.verifyKind(tokenStr, KindRefresh)
}

func (m *Manager) verifyKind(tokenStr string, kind Kind) (*Claims, error) {
	claims, err := m.Verify(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.Kind != kind {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(append([]byte(nil), key...)), nil
	}
	if len(key) == ed25519.SeedSize {
		return ed25519.NewKeyFromSeed(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwt: invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(append([]byte(nil), key...)), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("jwt: invalid ed25519 public key type")
	}
	return edKey, nil
}
