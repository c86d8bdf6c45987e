package password

import "errors"

const (
	// DefaultMinPasswordBytes is applied when a config leaves MinPasswordBytes unset.
	DefaultMinPasswordBytes = 4
	// DefaultMaxPasswordBytes bounds the work an attacker can force per hash.
	DefaultMaxPasswordBytes = 1024
)

var (
	// ErrPasswordTooShort is returned by Hash when the input is below the configured minimum.
	ErrPasswordTooShort = errors.New("password too short")
	// ErrPasswordTooLong is returned by Hash and Verify when the input exceeds the configured maximum.
	ErrPasswordTooLong = errors.New("password too long")
	// ErrMalformedHash is returned when a stored hash cannot be parsed.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Hasher is a randomized, slow, one-way password function.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

type bounds struct {
	min int
	max int
}

func newBounds(lo, hi int) bounds {
	if lo <= 0 {
		lo = DefaultMinPasswordBytes
	}
	if hi <= 0 {
		hi = DefaultMaxPasswordBytes
	}
	return bounds{min: lo, max: hi}
}

func (b bounds) checkHash(password string) error {
	// Raw bytes as provided; no Unicode normalization.
	if len(password) < b.min {
		return ErrPasswordTooShort
	}
	if len(password) > b.max {
		return ErrPasswordTooLong
	}
	return nil
}

func (b bounds) checkVerify(password string) error {
	if len(password) > b.max {
		return ErrPasswordTooLong
	}
	return nil
}
