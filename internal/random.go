package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// SessionID is the random identifier of one refresh-token lineage step.
type SessionID [16]byte

// ErrInvalidSessionID is returned when a string does not decode to a [SessionID].
var ErrInvalidSessionID = errors.New("invalid session id")

func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) Bytes() []byte {
	return s[:]
}

func (s SessionID) String() string {
	// base64url, no padding
	return base64.RawURLEncoding.EncodeToString(s[:])
}

func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.Strict().DecodeString(sessionID)
	if err != nil {
		return sid, ErrInvalidSessionID
	}
	if len(raw) != len(sid) {
		return sid, ErrInvalidSessionID
	}

	copy(sid[:], raw)
	return sid, nil
}
