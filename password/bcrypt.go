package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost matches the salt rounds the service has always used.
const DefaultBcryptCost = 10

// BcryptConfig configures [NewBcrypt].
type BcryptConfig struct {
	Cost             int
	MinPasswordBytes int
	MaxPasswordBytes int
}

// Bcrypt hashes with golang.org/x/crypto/bcrypt at a fixed cost.
type Bcrypt struct {
	cost   int
	bounds bounds
}

// NewBcrypt returns a bcrypt [Hasher]. A zero cost selects [DefaultBcryptCost];
// costs outside bcrypt's supported range are clamped.
func NewBcrypt(cfg BcryptConfig) *Bcrypt {
	cost := cfg.Cost
	if cost <= 0 {
		cost = DefaultBcryptCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}

	// bcrypt silently truncates past 72 bytes.
	limit := cfg.MaxPasswordBytes
	if limit <= 0 || limit > 72 {
		limit = 72
	}

	return &Bcrypt{
		cost:   cost,
		bounds: newBounds(cfg.MinPasswordBytes, limit),
	}
}

// Cost reports the configured work factor.
func (b *Bcrypt) Cost() int {
	return b.cost
}

func (b *Bcrypt) Hash(password string) (string, error) {
	if err := b.bounds.checkHash(password); err != nil {
		return "", err
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(out), nil
}

func (b *Bcrypt) Verify(password, encodedHash string) (bool, error) {
	if err := b.bounds.checkVerify(password); err != nil {
		return false, err
	}
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
}

func (b *Bcrypt) NeedsUpgrade(encodedHash string) (bool, error) {
	cost, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	return cost < b.cost, nil
}
