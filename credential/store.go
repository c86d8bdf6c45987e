package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/phoneauth/password"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrConflict is returned when the identity is already registered, or when
	// claiming a user that already has a password.
	ErrConflict = errors.New("user already exists")
	// ErrPasswordPolicy is returned when the hasher rejects a password.
	ErrPasswordPolicy = errors.New("password rejected by policy")
)

// Repository persists users. Implementations report absent rows as
// [ErrNotFound] and duplicate identities as [ErrConflict]; every other failure
// is returned wrapped and must not be reported as ErrNotFound.
type Repository interface {
	FindByIdentity(ctx context.Context, id Identity) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	Insert(ctx context.Context, u User) error
	Update(ctx context.Context, u User) error
	// ClaimProvisional writes u only if the stored row has no password hash.
	ClaimProvisional(ctx context.Context, u User) error
	TouchLastActive(ctx context.Context, id string, at time.Time) error
}

// Store is the credential store used by the engine.
type Store struct {
	repo   Repository
	hasher password.Hasher
	now    func() time.Time
	newID  func() string
}

// NewStore builds a Store over repo, hashing with hasher.
func NewStore(repo Repository, hasher password.Hasher) *Store {
	return &Store{
		repo:   repo,
		hasher: hasher,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// WithClock replaces the clock used for timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Store) FindByPhone(ctx context.Context, id Identity) (User, error) {
	return s.repo.FindByIdentity(ctx, id)
}

func (s *Store) FindByID(ctx context.Context, id string) (User, error) {
	if id == "" {
		return User{}, ErrNotFound
	}
	return s.repo.FindByID(ctx, id)
}

// Create hashes rawPassword and persists a new active user.
func (s *Store) Create(ctx context.Context, id Identity, rawPassword string, profile Profile) (User, error) {
	hash, err := s.hash(rawPassword)
	if err != nil {
		return User{}, err
	}
	u, err := s.newUser(id, profile)
	if err != nil {
		return User{}, err
	}
	u.PasswordHash = hash
	if err := s.repo.Insert(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// CreateProvisional persists a user with no password, as seen on first
// contact from an unknown number. Such users cannot log in until claimed.
func (s *Store) CreateProvisional(ctx context.Context, id Identity, profile Profile) (User, error) {
	u, err := s.newUser(id, profile)
	if err != nil {
		return User{}, err
	}
	if err := s.repo.Insert(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Claim sets the password and profile of a provisional user.
func (s *Store) Claim(ctx context.Context, u User, rawPassword string, profile Profile) (User, error) {
	if !u.Provisional() {
		return User{}, ErrConflict
	}
	hash, err := s.hash(rawPassword)
	if err != nil {
		return User{}, err
	}

	profile = profile.normalized()
	if profile.Name != "" {
		u.Name = profile.Name
	}
	if profile.Email != "" {
		u.Email = profile.Email
	}
	if profile.Preferences != nil {
		u.Preferences = *profile.Preferences
	}
	u.PasswordHash = hash
	u.IsActive = true
	u.UpdatedAt = s.now().UTC()
	if err := s.repo.ClaimProvisional(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// SetPassword re-hashes and persists the user's password.
func (s *Store) SetPassword(ctx context.Context, u User, rawPassword string) (User, error) {
	hash, err := s.hash(rawPassword)
	if err != nil {
		return User{}, err
	}
	u.PasswordHash = hash
	u.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// VerifyPassword compares rawPassword to the stored hash in constant time.
// Provisional users never verify.
func (s *Store) VerifyPassword(u User, rawPassword string) bool {
	if u.Provisional() {
		return false
	}
	ok, err := s.hasher.Verify(rawPassword, u.PasswordHash)
	return err == nil && ok
}

// UpgradeHash re-hashes rawPassword when the stored hash was produced with
// weaker parameters than the configured hasher. Call only after a successful
// [Store.VerifyPassword].
func (s *Store) UpgradeHash(ctx context.Context, u User, rawPassword string) (User, bool, error) {
	stale, err := s.hasher.NeedsUpgrade(u.PasswordHash)
	if err != nil || !stale {
		return u, false, nil
	}
	u, err = s.SetPassword(ctx, u, rawPassword)
	if err != nil {
		return u, false, err
	}
	return u, true, nil
}

// Touch records activity on the user.
func (s *Store) Touch(ctx context.Context, u User) (User, error) {
	now := s.now().UTC()
	if err := s.repo.TouchLastActive(ctx, u.ID, now); err != nil {
		return u, err
	}
	u.LastActive = now
	return u, nil
}

func (s *Store) hash(rawPassword string) (string, error) {
	hash, err := s.hasher.Hash(rawPassword)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) || errors.Is(err, password.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
		}
		return "", fmt.Errorf("credential: hash password: %w", err)
	}
	return hash, nil
}

func (s *Store) newUser(id Identity, profile Profile) (User, error) {
	if err := id.Validate(); err != nil {
		return User{}, err
	}
	profile = profile.normalized()
	prefs := DefaultPreferences()
	if profile.Preferences != nil {
		prefs = *profile.Preferences
	}
	now := s.now().UTC()
	return NewUser(User{
		ID:          s.newID(),
		Identity:    id,
		Name:        profile.Name,
		Email:       profile.Email,
		IsActive:    true,
		LastActive:  now,
		Preferences: prefs,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}
