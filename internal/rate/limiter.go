package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds throttle budgets. A zero MaxAttempts disables that throttle.
type Config struct {
	Prefix                  string
	MaxLoginAttempts        int
	LoginCooldownDuration   time.Duration
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
}

// Limiter throttles failed logins per identity+IP and refresh calls per sid.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "ps"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *Limiter) loginKey(identity, ip string) string {
	return l.config.Prefix + ":rl:" + identity + "|" + ip
}

func (l *Limiter) refreshKey(sid string) string {
	return l.config.Prefix + ":rr:" + sid
}

// CheckLogin reports ErrRateLimited when the identity+IP pair has already
// spent its failure budget in the current window. It does not count.
func (l *Limiter) CheckLogin(ctx context.Context, identity, ip string) error {
	if l.config.MaxLoginAttempts <= 0 {
		return nil
	}
	count, err := l.LoginAttempts(ctx, identity, ip)
	if err != nil {
		return err
	}
	if count >= l.config.MaxLoginAttempts {
		return ErrRateLimited
	}
	return nil
}

// FailLogin records one failed attempt and returns the count in the window.
func (l *Limiter) FailLogin(ctx context.Context, identity, ip string) (int64, error) {
	if l.config.MaxLoginAttempts <= 0 {
		return 0, nil
	}
	return l.incrementWithTTL(ctx, l.loginKey(identity, ip), l.config.LoginCooldownDuration)
}

// ResetLogin clears the failure counter after a successful login.
func (l *Limiter) ResetLogin(ctx context.Context, identity, ip string) error {
	if err := l.redis.Del(ctx, l.loginKey(identity, ip)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// LoginAttempts returns the failure count for the pair. Missing keys are zero.
func (l *Limiter) LoginAttempts(ctx context.Context, identity, ip string) (int, error) {
	count, err := l.redis.Get(ctx, l.loginKey(identity, ip)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// CheckRefresh counts one refresh attempt for sid and reports ErrRateLimited
// once the window budget is exceeded.
func (l *Limiter) CheckRefresh(ctx context.Context, sid string) error {
	if l.config.MaxRefreshAttempts <= 0 {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, l.refreshKey(sid), l.config.RefreshCooldownDuration)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxRefreshAttempts) {
		return ErrRateLimited
	}
	return nil
}

// fixedWindowLua increments KEYS[1] and starts its TTL on the first hit, so
// a window never outlives its first attempt.
var fixedWindowLua = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	count, err := fixedWindowLua.Run(ctx, l.redis, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return count, nil
}
