// Package invite verifies onboarding invite codes. Codes are issued elsewhere;
// this package only checks that a presented code is well formed and live.
package invite

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	// CodeLength is the length of every issued code.
	CodeLength = 7
	// Alphabet excludes look-alike characters (0, O, 1, I).
	Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789abcdefghijklmnopqrstuvwxyz"
	// DefaultKeyPrefix namespaces invite keys in Redis.
	DefaultKeyPrefix = "invite:"
)

var (
	// ErrInvalidCode is returned for malformed, unknown, or expired codes.
	ErrInvalidCode = errors.New("invalid invite code")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("invite store unavailable")
)

// Verifier checks a presented invite code.
type Verifier interface {
	Verify(ctx context.Context, code string) error
}

// WellFormed reports whether code has the issued length and alphabet.
func WellFormed(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}

// RedisVerifier treats a code as live while the key <prefix><code> exists.
// Expiry is left to the key's TTL set by the issuer.
type RedisVerifier struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisVerifier(rdb redis.UniversalClient, prefix string) *RedisVerifier {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisVerifier{redis: rdb, prefix: prefix}
}

func (v *RedisVerifier) Verify(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if !WellFormed(code) {
		return ErrInvalidCode
	}
	n, err := v.redis.Exists(ctx, v.prefix+code).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 0 {
		return ErrInvalidCode
	}
	return nil
}

// VerifierFunc adapts a function to [Verifier].
type VerifierFunc func(ctx context.Context, code string) error

func (f VerifierFunc) Verify(ctx context.Context, code string) error {
	return f(ctx, code)
}
