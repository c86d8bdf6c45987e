package session

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Status is the lifecycle state of a session row.
type Status string

const (
	StatusActive      Status = "active"
	StatusBlacklisted Status = "blacklisted"
)

// RevokeReason records what ended a session. Only ReasonRotated rows count as
// replays when presented again.
type RevokeReason string

const (
	ReasonRotated        RevokeReason = "rotated"
	ReasonLogout         RevokeReason = "logout"
	ReasonRevokeAll      RevokeReason = "revoke_all"
	ReasonPasswordChange RevokeReason = "password_change"
)

// Session is one refresh-token lineage step.
type Session struct {
	SID         string
	UserID      string
	Status      Status
	ExpiresAt   time.Time
	CreatedByIP string
	UserAgent   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	// RevokedReason is empty while the session is active.
	RevokedReason RevokeReason
}

// ActiveAt reports whether the session is usable at now.
func (s Session) ActiveAt(now time.Time) bool {
	return s.Status == StatusActive && s.ExpiresAt.After(now)
}

const (
	fieldSID         = "sid"
	fieldUserID      = "user_id"
	fieldStatus      = "status"
	fieldExpiresAt   = "expires_at"
	fieldCreatedByIP = "created_by_ip"
	fieldUserAgent   = "user_agent"
	fieldCreatedAt   = "created_at"
	fieldUpdatedAt   = "updated_at"
	fieldReason      = "revoked_reason"
)

var requiredFields = []string{fieldSID, fieldUserID, fieldStatus, fieldExpiresAt, fieldCreatedAt, fieldUpdatedAt}

var knownFields = map[string]struct{}{
	fieldSID:         {},
	fieldUserID:      {},
	fieldStatus:      {},
	fieldExpiresAt:   {},
	fieldCreatedByIP: {},
	fieldUserAgent:   {},
	fieldCreatedAt:   {},
	fieldUpdatedAt:   {},
	fieldReason:      {},
}

func (s Session) validate() error {
	if s.SID == "" {
		return errors.New("sid required")
	}
	if s.UserID == "" {
		return errors.New("user id required")
	}
	if s.Status != StatusActive && s.Status != StatusBlacklisted {
		return fmt.Errorf("unknown status %q", s.Status)
	}
	if s.ExpiresAt.IsZero() || s.CreatedAt.IsZero() || s.UpdatedAt.IsZero() {
		return errors.New("timestamps required")
	}
	return nil
}

// args flattens the record in HSET field/value order.
func (s Session) args() []interface{} {
	return []interface{}{
		fieldSID, s.SID,
		fieldUserID, s.UserID,
		fieldStatus, string(s.Status),
		fieldExpiresAt, s.ExpiresAt.UnixMilli(),
		fieldCreatedByIP, s.CreatedByIP,
		fieldUserAgent, s.UserAgent,
		fieldCreatedAt, s.CreatedAt.UnixMilli(),
		fieldUpdatedAt, s.UpdatedAt.UnixMilli(),
	}
}

func decode(fields map[string]string) (Session, error) {
	for name := range fields {
		if _, ok := knownFields[name]; !ok {
			return Session{}, fmt.Errorf("%w: unknown field %q", ErrMalformedSession, name)
		}
	}
	for _, name := range requiredFields {
		if fields[name] == "" {
			return Session{}, fmt.Errorf("%w: missing field %q", ErrMalformedSession, name)
		}
	}

	expiresAt, err := parseMillis(fields[fieldExpiresAt])
	if err != nil {
		return Session{}, err
	}
	createdAt, err := parseMillis(fields[fieldCreatedAt])
	if err != nil {
		return Session{}, err
	}
	updatedAt, err := parseMillis(fields[fieldUpdatedAt])
	if err != nil {
		return Session{}, err
	}

	sess := Session{
		SID:         fields[fieldSID],
		UserID:      fields[fieldUserID],
		Status:      Status(fields[fieldStatus]),
		ExpiresAt:   expiresAt,
		CreatedByIP: fields[fieldCreatedByIP],
		UserAgent:   fields[fieldUserAgent],
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,

		RevokedReason: RevokeReason(fields[fieldReason]),
	}
	if err := sess.validate(); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrMalformedSession, err)
	}
	return sess, nil
}

// decodeFlat decodes the flat field/value array HGETALL yields inside Lua.
func decodeFlat(flat []interface{}) (Session, error) {
	if len(flat)%2 != 0 {
		return Session{}, fmt.Errorf("%w: odd field count", ErrMalformedSession)
	}
	fields := make(map[string]string, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		k, ok1 := flat[i].(string)
		v, ok2 := flat[i+1].(string)
		if !ok1 || !ok2 {
			return Session{}, fmt.Errorf("%w: non-string field", ErrMalformedSession)
		}
		fields[k] = v
	}
	return decode(fields)
}

func parseMillis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q", ErrMalformedSession, v)
	}
	return time.UnixMilli(ms), nil
}
