package password

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHashAndVerify(t *testing.T) {
	hasher := NewBcrypt(BcryptConfig{Cost: bcrypt.MinCost})

	hash, err := hasher.Hash("ab12")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if hash == "ab12" || !strings.HasPrefix(hash, "$2a$") {
		t.Fatalf("unexpected bcrypt hash: %q", hash)
	}

	ok, err := hasher.Verify("ab12", hash)
	if err != nil || !ok {
		t.Fatalf("Verify ok=%v err=%v", ok, err)
	}
	ok, err = hasher.Verify("ab13", hash)
	if err != nil || ok {
		t.Fatalf("expected mismatch without error, got ok=%v err=%v", ok, err)
	}
}

func TestBcryptSaltsEveryHash(t *testing.T) {
	hasher := NewBcrypt(BcryptConfig{Cost: bcrypt.MinCost})
	a, err := hasher.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	b, err := hasher.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct hashes for identical input")
	}
}

func TestBcryptCostClamped(t *testing.T) {
	if got := NewBcrypt(BcryptConfig{}).Cost(); got != DefaultBcryptCost {
		t.Fatalf("expected default cost %d, got %d", DefaultBcryptCost, got)
	}
	if got := NewBcrypt(BcryptConfig{Cost: 2}).Cost(); got != bcrypt.MinCost {
		t.Fatalf("expected min cost, got %d", got)
	}
	if got := NewBcrypt(BcryptConfig{Cost: 99}).Cost(); got != bcrypt.MaxCost {
		t.Fatalf("expected max cost, got %d", got)
	}
}

func TestBcryptNeedsUpgrade(t *testing.T) {
	weak := NewBcrypt(BcryptConfig{Cost: bcrypt.MinCost})
	strong := NewBcrypt(BcryptConfig{Cost: bcrypt.MinCost + 1})

	hash, err := weak.Hash("upgrade-me")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if up, err := strong.NeedsUpgrade(hash); err != nil || !up {
		t.Fatalf("expected upgrade, got up=%v err=%v", up, err)
	}
	if up, err := weak.NeedsUpgrade(hash); err != nil || up {
		t.Fatalf("expected no upgrade, got up=%v err=%v", up, err)
	}
}

func TestBcryptBounds(t *testing.T) {
	hasher := NewBcrypt(BcryptConfig{Cost: bcrypt.MinCost})
	if _, err := hasher.Hash("abc"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	if _, err := hasher.Hash(strings.Repeat("x", 73)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
	if _, err := hasher.Verify("whatever", "not-a-bcrypt-hash"); !errors.Is(err, ErrMalformedHash) {
		t.Fatalf("expected ErrMalformedHash, got %v", err)
	}
}
