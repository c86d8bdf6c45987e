package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2Prefix = "$argon2id$"

// Lower bounds accepted both in Config and in stored hashes.
const (
	minArgonMemoryKB = 8 * 1024
	minArgonSaltLen  = 16
	minArgonKeyLen   = 16
)

var b64 = base64.RawStdEncoding

// Config holds argon2id cost parameters. Zero byte bounds select the package defaults.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MinPasswordBytes int
	MaxPasswordBytes int
}

// argonParams is the cost triple encoded in a hash.
type argonParams struct {
	memory  uint32
	time    uint32
	threads uint8
}

func (p argonParams) String() string {
	return fmt.Sprintf("m=%d,t=%d,p=%d", p.memory, p.time, p.threads)
}

// Argon2 is a [Hasher] producing PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Salt and hash are unpadded standard base64, as in the reference encoder.
type Argon2 struct {
	params  argonParams
	saltLen uint32
	keyLen  uint32
	bounds  bounds
}

// NewArgon2 validates cfg and returns an argon2id hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	switch {
	case cfg.Memory < minArgonMemoryKB:
		return nil, fmt.Errorf("argon2: memory must be >= %d KB", minArgonMemoryKB)
	case cfg.Time < 1:
		return nil, errors.New("argon2: time must be >= 1")
	case cfg.Parallelism < 1:
		return nil, errors.New("argon2: parallelism must be >= 1")
	case cfg.SaltLength < minArgonSaltLen:
		return nil, fmt.Errorf("argon2: salt length must be >= %d", minArgonSaltLen)
	case cfg.KeyLength < minArgonKeyLen:
		return nil, fmt.Errorf("argon2: key length must be >= %d", minArgonKeyLen)
	}
	return &Argon2{
		params:  argonParams{memory: cfg.Memory, time: cfg.Time, threads: cfg.Parallelism},
		saltLen: cfg.SaltLength,
		keyLen:  cfg.KeyLength,
		bounds:  newBounds(cfg.MinPasswordBytes, cfg.MaxPasswordBytes),
	}, nil
}

func (a *Argon2) Hash(password string) (string, error) {
	if err := a.bounds.checkHash(password); err != nil {
		return "", err
	}
	salt := make([]byte, a.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2: salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, a.params.time, a.params.memory, a.params.threads, a.keyLen)
	return fmt.Sprintf("%sv=%d$%s$%s$%s", argon2Prefix, argon2.Version, a.params, b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

func (a *Argon2) Verify(password, encodedHash string) (bool, error) {
	if err := a.bounds.checkVerify(password); err != nil {
		return false, err
	}
	h, err := decodeArgon2(encodedHash)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(password), h.salt, h.params.time, h.params.memory, h.params.threads, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(key, h.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash used any weaker cost parameter or
// a different key length than the hasher's current config.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	h, err := decodeArgon2(encodedHash)
	if err != nil {
		return false, err
	}
	weaker := h.params.memory < a.params.memory ||
		h.params.time < a.params.time ||
		h.params.threads < a.params.threads
	return weaker || uint32(len(h.key)) != a.keyLen, nil
}

type argonHash struct {
	params argonParams
	salt   []byte
	key    []byte
}

func decodeArgon2(encoded string) (argonHash, error) {
	malformed := func(msg string) (argonHash, error) {
		return argonHash{}, fmt.Errorf("%w: %s", ErrMalformedHash, msg)
	}

	rest, ok := strings.CutPrefix(encoded, argon2Prefix)
	if !ok {
		return malformed("not an argon2id hash")
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return malformed("wrong number of fields")
	}

	var version int
	if _, err := fmt.Sscanf(fields[0], "v=%d", &version); err != nil || fields[0] != fmt.Sprintf("v=%d", version) {
		return malformed("bad version field")
	}
	if version != argon2.Version {
		return malformed(fmt.Sprintf("unsupported version %d", version))
	}

	var p argonParams
	if _, err := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil || fields[1] != p.String() {
		return malformed("bad parameter field")
	}
	if p.memory < minArgonMemoryKB || p.time < 1 || p.threads < 1 {
		return malformed("parameters below minimum")
	}

	salt, err := decodeB64(fields[2])
	if err != nil || len(salt) < minArgonSaltLen {
		return malformed("bad salt")
	}
	key, err := decodeB64(fields[3])
	if err != nil || len(key) == 0 {
		return malformed("bad key")
	}
	return argonHash{params: p, salt: salt, key: key}, nil
}

// decodeB64 accepts padded and unpadded standard base64.
func decodeB64(s string) ([]byte, error) {
	return b64.DecodeString(strings.TrimRight(s, "="))
}
