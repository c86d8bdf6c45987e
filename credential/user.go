package credential

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidIdentity is returned when a country code or phone number is malformed.
	ErrInvalidIdentity = errors.New("invalid phone identity")
	// ErrInvalidUser is returned when a user record is missing required fields.
	ErrInvalidUser = errors.New("invalid user record")
)

// Identity is the composite unique key of a user.
type Identity struct {
	CountryCode string
	PhoneNumber string
}

// NewIdentity trims and validates a phone identity. The country code is a "+"
// followed by 1 to 4 digits; the number is 4 to 15 digits.
func NewIdentity(countryCode, phoneNumber string) (Identity, error) {
	id := Identity{
		CountryCode: strings.TrimSpace(countryCode),
		PhoneNumber: strings.TrimSpace(phoneNumber),
	}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Validate checks an already-normalized identity.
func (i Identity) Validate() error {
	cc := i.CountryCode
	if len(cc) < 2 || len(cc) > 5 || cc[0] != '+' || !allDigits(cc[1:]) {
		return fmt.Errorf("%w: country code %q", ErrInvalidIdentity, cc)
	}
	if n := len(i.PhoneNumber); n < 4 || n > 15 || !allDigits(i.PhoneNumber) {
		return fmt.Errorf("%w: phone number", ErrInvalidIdentity)
	}
	return nil
}

func (i Identity) String() string {
	return i.CountryCode + i.PhoneNumber
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Preferences are per-user display settings.
type Preferences struct {
	Language      string `json:"language"`
	Currency      string `json:"currency"`
	Timezone      string `json:"timezone"`
	Notifications bool   `json:"notifications"`
}

// DefaultPreferences returns the preferences assigned to new users.
func DefaultPreferences() Preferences {
	return Preferences{
		Language:      "en",
		Currency:      "₹",
		Timezone:      "Asia/Kolkata",
		Notifications: true,
	}
}

// Profile carries the optional fields supplied at signup.
type Profile struct {
	Name        string
	Email       string
	Preferences *Preferences
}

func (p Profile) normalized() Profile {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	return p
}

// User is a persisted account. PasswordHash is empty for provisional users.
type User struct {
	ID           string
	Identity     Identity
	Name         string
	Email        string
	PasswordHash string
	IsActive     bool
	LastActive   time.Time
	Preferences  Preferences
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser validates a fully populated record. Adapters decode rows through it.
func NewUser(u User) (User, error) {
	if u.ID == "" {
		return User{}, fmt.Errorf("%w: id required", ErrInvalidUser)
	}
	if err := u.Identity.Validate(); err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidUser, err)
	}
	if u.CreatedAt.IsZero() || u.UpdatedAt.IsZero() {
		return User{}, fmt.Errorf("%w: timestamps required", ErrInvalidUser)
	}
	return u, nil
}

// Provisional reports whether the user was created without a password.
func (u User) Provisional() bool {
	return u.PasswordHash == ""
}

// PublicUser is the externally visible view of a [User].
type PublicUser struct {
	ID          string      `json:"id"`
	CountryCode string      `json:"countryCode"`
	PhoneNumber string      `json:"phoneNumber"`
	Name        string      `json:"name,omitempty"`
	Email       string      `json:"email,omitempty"`
	IsActive    bool        `json:"isActive"`
	LastActive  time.Time   `json:"lastActive"`
	Preferences Preferences `json:"preferences"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Public drops the password hash.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:          u.ID,
		CountryCode: u.Identity.CountryCode,
		PhoneNumber: u.Identity.PhoneNumber,
		Name:        u.Name,
		Email:       u.Email,
		IsActive:    u.IsActive,
		LastActive:  u.LastActive,
		Preferences: u.Preferences,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}
