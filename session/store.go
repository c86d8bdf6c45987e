package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound means the session is absent, expired, or (for FindActiveByID) blacklisted.
	ErrNotFound = errors.New("session not found")
	// ErrAlreadyBlacklisted is returned by Consume when the session was already rotated.
	ErrAlreadyBlacklisted = errors.New("session already blacklisted")
	// ErrRevoked is returned by Consume when the session was ended by logout,
	// revoke-all, or a password change.
	ErrRevoked = errors.New("session revoked")
	// ErrOwnerMismatch is returned by Consume when the row belongs to a different user.
	ErrOwnerMismatch = errors.New("session owner mismatch")
	// ErrSessionExists is returned by Create when the sid is already taken.
	ErrSessionExists = errors.New("session id already exists")
	// ErrInvalidSession is returned by Create for records that fail validation.
	ErrInvalidSession = errors.New("invalid session record")
	// ErrMalformedSession is returned when a stored row cannot be decoded.
	ErrMalformedSession = errors.New("malformed session record")
	// ErrUnavailable wraps every Redis transport or script failure.
	ErrUnavailable = errors.New("session store unavailable")
)

const (
	consumeStatusNotFound    int64 = 0
	consumeStatusExpired     int64 = 1
	consumeStatusBlacklisted int64 = 2
	consumeStatusConsumed    int64 = 3
	consumeStatusMismatch    int64 = 4
	consumeStatusCorrupt     int64 = 5
	consumeStatusRevoked     int64 = 6
)

const createSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1],
  ARGV[1], ARGV[2], ARGV[3], ARGV[4], ARGV[5], ARGV[6], ARGV[7], ARGV[8],
  ARGV[9], ARGV[10], ARGV[11], ARGV[12], ARGV[13], ARGV[14], ARGV[15], ARGV[16])
redis.call("PEXPIREAT", KEYS[1], ARGV[17])
redis.call("SADD", KEYS[2], ARGV[2])
local want = tonumber(ARGV[17]) - tonumber(ARGV[18])
local ttl = redis.call("PTTL", KEYS[2])
if ttl < want then
  redis.call("PEXPIRE", KEYS[2], want)
end
return 1
`

var createSessionLua = redis.NewScript(createSessionScript)

const consumeSessionScript = `
local row = redis.call("HMGET", KEYS[1], "status", "expires_at", "user_id", "revoked_reason")
if not row[1] then
  return {0}
end
local expires_at = tonumber(row[2])
if not expires_at or not row[3] then
  return {5}
end
if row[3] ~= ARGV[1] then
  return {4}
end
if row[1] ~= "active" then
  if row[4] and row[4] ~= "" and row[4] ~= "rotated" then
    return {6}
  end
  return {2}
end
if expires_at <= tonumber(ARGV[2]) then
  return {1}
end
redis.call("HSET", KEYS[1], "status", "blacklisted", "updated_at", ARGV[2], "revoked_reason", "rotated")
return {3, redis.call("HGETALL", KEYS[1])}
`

var consumeSessionLua = redis.NewScript(consumeSessionScript)

const blacklistSessionScript = `
local status = redis.call("HGET", KEYS[1], "status")
if status == "active" then
  redis.call("HSET", KEYS[1], "status", "blacklisted", "updated_at", ARGV[1], "revoked_reason", ARGV[2])
  return 1
end
return 0
`

var blacklistSessionLua = redis.NewScript(blacklistSessionScript)

// Store is the Redis-backed authority on which refresh sessions are valid.
// It holds no session state in memory.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore creates a [Store]. prefix namespaces every key; an empty prefix selects "ps".
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ps"
	}
	return &Store{
		redis:  rdb,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock replaces the clock used for expiry decisions.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Store) key(sid string) string {
	return s.prefix + ":s:" + sid
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

func (s *Store) replayKey(sid string) string {
	return s.prefix + ":rp:" + sid
}

func nowMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// Create persists a new active session. The sid must be unused.
func (s *Store) Create(ctx context.Context, sess Session) error {
	now := s.now()
	if sess.Status == "" {
		sess.Status = StatusActive
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = sess.CreatedAt
	}
	if err := sess.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if sess.Status != StatusActive {
		return fmt.Errorf("%w: sessions are created active", ErrInvalidSession)
	}
	if !sess.ExpiresAt.After(now) {
		return fmt.Errorf("%w: expiry must be in the future", ErrInvalidSession)
	}

	args := append(sess.args(), sess.ExpiresAt.UnixMilli(), now.UnixMilli())
	created, err := createSessionLua.Run(ctx, s.redis, []string{s.key(sess.SID), s.userKey(sess.UserID)}, args...).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if created == 0 {
		return ErrSessionExists
	}
	return nil
}

// Get returns the row for sid in whatever state it is in.
func (s *Store) Get(ctx context.Context, sid string) (Session, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(sid)).Result()
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return Session{}, ErrNotFound
	}
	return decode(fields)
}

// FindActiveByID returns the session only if it is active and unexpired. Status
// and expiry come from a single HGETALL, so both are read from one snapshot.
func (s *Store) FindActiveByID(ctx context.Context, sid string) (Session, error) {
	sess, err := s.Get(ctx, sid)
	if err != nil {
		return Session{}, err
	}
	if !sess.ActiveAt(s.now()) {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

// Consume atomically blacklists sid if it is active, unexpired, and owned by
// userID, and returns the row as it was consumed. Of two concurrent calls for
// the same sid at most one succeeds; the other gets ErrAlreadyBlacklisted.
// Rows ended for any reason other than rotation report ErrRevoked.
func (s *Store) Consume(ctx context.Context, sid, userID string) (Session, error) {
	result, err := consumeSessionLua.Run(ctx, s.redis, []string{s.key(sid)}, userID, nowMillis(s.now())).Result()
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return Session{}, fmt.Errorf("%w: invalid consume script response", ErrUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return Session{}, fmt.Errorf("%w: invalid consume script status", ErrUnavailable)
	}

	switch code {
	case consumeStatusNotFound, consumeStatusExpired:
		return Session{}, ErrNotFound
	case consumeStatusBlacklisted:
		return Session{}, ErrAlreadyBlacklisted
	case consumeStatusRevoked:
		return Session{}, ErrRevoked
	case consumeStatusMismatch:
		return Session{}, ErrOwnerMismatch
	case consumeStatusCorrupt:
		return Session{}, ErrMalformedSession
	case consumeStatusConsumed:
		if len(parts) < 2 {
			return Session{}, fmt.Errorf("%w: missing consumed session payload", ErrUnavailable)
		}
		flat, ok := parts[1].([]interface{})
		if !ok {
			return Session{}, fmt.Errorf("%w: invalid consumed session payload", ErrUnavailable)
		}
		return decodeFlat(flat)
	default:
		return Session{}, fmt.Errorf("%w: unknown consume script status", ErrUnavailable)
	}
}

// Blacklist marks sid unusable and records reason. Missing and
// already-blacklisted sessions are a no-op.
func (s *Store) Blacklist(ctx context.Context, sid string, reason RevokeReason) error {
	if err := blacklistSessionLua.Run(ctx, s.redis, []string{s.key(sid)}, nowMillis(s.now()), string(reason)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// BlacklistAllForUser blacklists every active session of userID and reports how
// many transitioned. Sessions created concurrently with the call may be missed.
func (s *Store) BlacklistAllForUser(ctx context.Context, userID string, reason RevokeReason) (int, error) {
	sids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(sids) == 0 {
		return 0, nil
	}

	now := nowMillis(s.now())
	pipe := s.redis.Pipeline()
	cmds := make([]*redis.Cmd, len(sids))
	for i, sid := range sids {
		// Full EVAL: EVALSHA cannot fall back to EVAL inside a pipeline.
		cmds[i] = blacklistSessionLua.Eval(ctx, pipe, []string{s.key(sid)}, now, string(reason))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var transitioned int
	for _, cmd := range cmds {
		n, err := cmd.Int64()
		if err != nil {
			return transitioned, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		transitioned += int(n)
	}
	return transitioned, nil
}

// DeleteAllForUser physically removes every session row of userID and its index.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) error {
	userKey := s.userKey(userID)
	sids, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	keys := make([]string, 0, len(sids)+1)
	for _, sid := range sids {
		keys = append(keys, s.key(sid))
	}
	keys = append(keys, userKey)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// ListForUser returns every stored session of userID, active or not.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]Session, error) {
	sids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(sids) == 0 {
		return nil, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(sids))
	for i, sid := range sids {
		cmds[i] = pipe.HGetAll(ctx, s.key(sid))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := make([]Session, 0, len(sids))
	for _, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if len(fields) == 0 {
			continue
		}
		sess, err := decode(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}

// TrackReplayAnomaly counts presentations of an already-consumed sid.
func (s *Store) TrackReplayAnomaly(ctx context.Context, sid string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	key := s.replayKey(sid)
	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := s.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil
}

// ReplayCount returns the replay anomaly counter for sid.
func (s *Store) ReplayCount(ctx context.Context, sid string) (int64, error) {
	n, err := s.redis.Get(ctx, s.replayKey(sid)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}
