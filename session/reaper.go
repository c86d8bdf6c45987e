package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const reapScanCount = 256

// Reap sweeps the per-user index sets. It drops index entries whose row is
// gone (PEXPIREAT already fired) and deletes rows past expiry that have lost
// their TTL. It returns the number of index entries removed.
func (s *Store) Reap(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	pattern := s.prefix + ":u:*"
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, reapScanCount).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		for _, userKey := range keys {
			n, err := s.reapIndex(ctx, userKey)
			removed += n
			if err != nil {
				return removed, err
			}
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (s *Store) reapIndex(ctx context.Context, userKey string) (int, error) {
	sids, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(sids) == 0 {
		return 0, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.SliceCmd, len(sids))
	for i, sid := range sids {
		cmds[i] = pipe.HMGet(ctx, s.key(sid), fieldExpiresAt)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	now := s.now()
	var (
		stale   []interface{}
		expired []string
	)
	for i, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		raw, _ := vals[0].(string)
		if raw == "" {
			stale = append(stale, sids[i])
			continue
		}
		exp, err := parseMillis(raw)
		if err != nil || !exp.After(now) {
			stale = append(stale, sids[i])
			expired = append(expired, s.key(sids[i]))
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(expired) > 0 {
			pipe.Del(ctx, expired...)
		}
		pipe.SRem(ctx, userKey, stale...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return len(stale), nil
}

// Reaper runs [Store.Reap] on a fixed interval.
type Reaper struct {
	store    *Store
	interval time.Duration
}

// NewReaper returns a reaper; a non-positive interval selects one hour.
func NewReaper(store *Store, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Reaper{store: store, interval: interval}
}

// Run blocks until ctx is cancelled. Failed sweeps are logged and retried on the next tick.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.store.Reap(ctx); err != nil && ctx.Err() == nil {
				log.Printf("phoneauth: session reap failed: %v", err)
			}
		}
	}
}
