package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewStore(rdb, "ps"), rdb, mr
}

func testSession(sid, userID string, ttl time.Duration) Session {
	now := time.Now()
	return Session{
		SID:         sid,
		UserID:      userID,
		ExpiresAt:   now.Add(ttl),
		CreatedByIP: "203.0.113.7",
		UserAgent:   "curl/8.0",
	}
}

func TestCreateAndFindActive(t *testing.T) {
	store, _, mr := newSessionStoreTest(t)
	ctx := context.Background()

	in := testSession("sid-1", "u-1", time.Hour)
	if err := store.Create(ctx, in); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.FindActiveByID(ctx, "sid-1")
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if got.SID != "sid-1" || got.UserID != "u-1" || got.Status != StatusActive {
		t.Fatalf("unexpected session: %+v", got)
	}
	if got.CreatedByIP != in.CreatedByIP || got.UserAgent != in.UserAgent {
		t.Fatalf("device fields not preserved: %+v", got)
	}
	if got.ExpiresAt.UnixMilli() != in.ExpiresAt.UnixMilli() {
		t.Fatalf("expiry not preserved: %v vs %v", got.ExpiresAt, in.ExpiresAt)
	}
	if ttl := mr.TTL(store.key("sid-1")); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("expected row TTL within an hour, got %v", ttl)
	}
	if ok, _ := mr.SIsMember(store.userKey("u-1"), "sid-1"); !ok {
		t.Fatal("expected sid in user index")
	}
}

func TestCreateRejectsReusedSIDAndBadRecords(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.Create(ctx, testSession("sid-1", "u-1", time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, testSession("sid-1", "u-2", time.Hour)); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
	if err := store.Create(ctx, testSession("sid-2", "u-1", -time.Minute)); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession for past expiry, got %v", err)
	}
	if err := store.Create(ctx, testSession("", "u-1", time.Hour)); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession for empty sid, got %v", err)
	}
	bl := testSession("sid-3", "u-1", time.Hour)
	bl.Status = StatusBlacklisted
	if err := store.Create(ctx, bl); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession for blacklisted create, got %v", err)
	}
}

func TestFindActiveTreatsExpiredAsMissing(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.Create(ctx, testSession("sid-1", "u-1", time.Minute)); err != nil {
		t.Fatalf("create: %v", err)
	}

	// The row still exists and reads active; only the clock has moved on.
	store.WithClock(func() time.Time { return time.Now().Add(2 * time.Minute) })

	raw, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get raw: %v", err)
	}
	if raw.Status != StatusActive {
		t.Fatalf("expected stored status active, got %s", raw.Status)
	}
	if _, err := store.FindActiveByID(ctx, "sid-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired session to be not found, got %v", err)
	}
	if _, err := store.FindActiveByID(ctx, "never-existed"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected missing session to be not found, got %v", err)
	}
	if _, err := store.Consume(ctx, "sid-1", "u-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected consume of expired session to be not found, got %v", err)
	}
}

func TestBlacklistIsIdempotentAndTerminal(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.Create(ctx, testSession("sid-1", "u-1", time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := store.Blacklist(ctx, "sid-1", ReasonLogout); err != nil {
			t.Fatalf("blacklist #%d: %v", i+1, err)
		}
		got, err := store.Get(ctx, "sid-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status != StatusBlacklisted {
			t.Fatalf("expected blacklisted after call #%d, got %s", i+1, got.Status)
		}
	}
	if err := store.Blacklist(ctx, "missing", ReasonLogout); err != nil {
		t.Fatalf("blacklist missing: %v", err)
	}
	if _, err := store.FindActiveByID(ctx, "sid-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected blacklisted session to be not found, got %v", err)
	}
	if err := store.Create(ctx, testSession("sid-1", "u-1", time.Hour)); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("expected blacklisted sid to stay taken, got %v", err)
	}
}

func TestConsumeSentinels(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if _, err := store.Consume(ctx, "missing", "u-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.Create(ctx, testSession("sid-1", "u-1", time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Consume(ctx, "sid-1", "u-2"); !errors.Is(err, ErrOwnerMismatch) {
		t.Fatalf("expected ErrOwnerMismatch, got %v", err)
	}

	consumed, err := store.Consume(ctx, "sid-1", "u-1")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if consumed.Status != StatusBlacklisted || consumed.UserID != "u-1" {
		t.Fatalf("unexpected consumed session: %+v", consumed)
	}
	if _, err := store.Consume(ctx, "sid-1", "u-1"); !errors.Is(err, ErrAlreadyBlacklisted) {
		t.Fatalf("expected ErrAlreadyBlacklisted, got %v", err)
	}
}

func TestConsumeSeparatesRotatedFromRevoked(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	ctx := context.Background()

	for _, sid := range []string{"rotated", "logged-out", "revoked", "password"} {
		if err := store.Create(ctx, testSession(sid, "u-1", time.Hour)); err != nil {
			t.Fatalf("create %s: %v", sid, err)
		}
	}
	if _, err := store.Consume(ctx, "rotated", "u-1"); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := store.Blacklist(ctx, "logged-out", ReasonLogout); err != nil {
		t.Fatalf("blacklist: %v", err)
	}
	if err := store.Blacklist(ctx, "revoked", ReasonRevokeAll); err != nil {
		t.Fatalf("blacklist: %v", err)
	}
	if err := store.Blacklist(ctx, "password", ReasonPasswordChange); err != nil {
		t.Fatalf("blacklist: %v", err)
	}

	tests := []struct {
		sid    string
		want   error
		reason RevokeReason
	}{
		{"rotated", ErrAlreadyBlacklisted, ReasonRotated},
		{"logged-out", ErrRevoked, ReasonLogout},
		{"revoked", ErrRevoked, ReasonRevokeAll},
		{"password", ErrRevoked, ReasonPasswordChange},
	}
	for _, tc := range tests {
		if _, err := store.Consume(ctx, tc.sid, "u-1"); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.sid, tc.want, err)
		}
		got, err := store.Get(ctx, tc.sid)
		if err != nil {
			t.Fatalf("get %s: %v", tc.sid, err)
		}
		if got.RevokedReason != tc.reason {
			t.Fatalf("%s: expected reason %q, got %q", tc.sid, tc.reason, got.RevokedReason)
		}
	}

	// A repeated blacklist keeps the first reason.
	if err := store.Blacklist(ctx, "rotated", ReasonLogout); err != nil {
		t.Fatalf("blacklist rotated: %v", err)
	}
	if _, err := store.Consume(ctx, "rotated", "u-1"); !errors.Is(err, ErrAlreadyBlacklisted) {
		t.Fatalf("expected rotated row to stay a replay, got %v", err)
	}
}

func TestConsumeConcurrentSingleWinner(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.Create(ctx, testSession("sid-race", "u-1", time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}

	const workers = 32
	start := make(chan struct{})
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := store.Consume(ctx, "sid-race", "u-1")
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	var wins, replays int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyBlacklisted):
			replays++
		default:
			t.Fatalf("unexpected consume error: %v", err)
		}
	}
	if wins != 1 || replays != workers-1 {
		t.Fatalf("expected exactly one winner, got wins=%d replays=%d", wins, replays)
	}
}

func TestBlacklistAllAndDeleteAllForUser(t *testing.T) {
	store, _, mr := newSessionStoreTest(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.Create(ctx, testSession(fmt.Sprintf("sid-%d", i), "u-1", time.Hour)); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := store.Create(ctx, testSession("other", "u-2", time.Hour)); err != nil {
		t.Fatalf("create other: %v", err)
	}
	if err := store.Blacklist(ctx, "sid-0", ReasonLogout); err != nil {
		t.Fatalf("blacklist: %v", err)
	}

	n, err := store.BlacklistAllForUser(ctx, "u-1", ReasonRevokeAll)
	if err != nil {
		t.Fatalf("blacklist all: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 transitions, got %d", n)
	}
	sessions, err := store.ListForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions kept as history, got %d", len(sessions))
	}
	for _, sess := range sessions {
		if sess.Status != StatusBlacklisted {
			t.Fatalf("expected all blacklisted, got %+v", sess)
		}
	}
	if _, err := store.FindActiveByID(ctx, "other"); err != nil {
		t.Fatalf("other user's session must stay active: %v", err)
	}

	if err := store.DeleteAllForUser(ctx, "u-1"); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if mr.Exists(store.key("sid-1")) || mr.Exists(store.userKey("u-1")) {
		t.Fatal("expected rows and index removed")
	}
	if n, err := store.BlacklistAllForUser(ctx, "u-1", ReasonRevokeAll); err != nil || n != 0 {
		t.Fatalf("expected empty blacklist-all, got n=%d err=%v", n, err)
	}
}

func TestReapRemovesDanglingAndTTLlessRows(t *testing.T) {
	store, rdb, mr := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.Create(ctx, testSession("short", "u-1", time.Minute)); err != nil {
		t.Fatalf("create short: %v", err)
	}
	if err := store.Create(ctx, testSession("long", "u-1", time.Hour)); err != nil {
		t.Fatalf("create long: %v", err)
	}
	if err := store.Create(ctx, testSession("persisted", "u-2", time.Minute)); err != nil {
		t.Fatalf("create persisted: %v", err)
	}
	for _, key := range []string{store.key("persisted"), store.userKey("u-2")} {
		if err := rdb.Persist(ctx, key).Err(); err != nil {
			t.Fatalf("persist %s: %v", key, err)
		}
	}

	mr.FastForward(2 * time.Minute)
	store.WithClock(func() time.Time { return time.Now().Add(2 * time.Minute) })

	if mr.Exists(store.key("short")) {
		t.Fatal("expected redis TTL to drop the short session row")
	}

	removed, err := store.Reap(ctx)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 reaped entries, got %d", removed)
	}
	if mr.Exists(store.key("persisted")) {
		t.Fatal("expected expired row without TTL to be deleted")
	}
	if ok, _ := mr.SIsMember(store.userKey("u-1"), "short"); ok {
		t.Fatal("expected dangling sid removed from index")
	}
	if _, err := store.FindActiveByID(ctx, "long"); err != nil {
		t.Fatalf("expected long session untouched: %v", err)
	}
}

func TestReaperStopsOnCancel(t *testing.T) {
	store, _, _ := newSessionStoreTest(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		NewReaper(store, 5*time.Millisecond).Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after cancel")
	}
}

func TestMalformedRowsRejected(t *testing.T) {
	store, rdb, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if err := rdb.HSet(ctx, store.key("bad"), "sid", "bad", "status", "active").Err(); err != nil {
		t.Fatalf("seed missing fields: %v", err)
	}
	if _, err := store.FindActiveByID(ctx, "bad"); !errors.Is(err, ErrMalformedSession) {
		t.Fatalf("expected ErrMalformedSession for missing fields, got %v", err)
	}

	good := testSession("extra", "u-1", time.Hour)
	if err := store.Create(ctx, good); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := rdb.HSet(ctx, store.key("extra"), "role", "admin").Err(); err != nil {
		t.Fatalf("seed unknown field: %v", err)
	}
	if _, err := store.Get(ctx, "extra"); !errors.Is(err, ErrMalformedSession) {
		t.Fatalf("expected ErrMalformedSession for unknown field, got %v", err)
	}

	if err := rdb.HSet(ctx, store.key("weird"), "sid", "weird", "user_id", "u", "status", "paused",
		"expires_at", "1", "created_at", "1", "updated_at", "1").Err(); err != nil {
		t.Fatalf("seed bad status: %v", err)
	}
	if _, err := store.Get(ctx, "weird"); !errors.Is(err, ErrMalformedSession) {
		t.Fatalf("expected ErrMalformedSession for unknown status, got %v", err)
	}
}

func TestRedisOutageIsNotNotFound(t *testing.T) {
	store, _, mr := newSessionStoreTest(t)
	ctx := context.Background()
	mr.Close()

	if _, err := store.FindActiveByID(ctx, "sid-1"); !errors.Is(err, ErrUnavailable) || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := store.Consume(ctx, "sid-1", "u-1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from consume, got %v", err)
	}
	if err := store.Blacklist(ctx, "sid-1", ReasonLogout); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from blacklist, got %v", err)
	}
	if _, err := store.Ping(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from ping, got %v", err)
	}
}

func TestTrackReplayAnomaly(t *testing.T) {
	store, _, mr := newSessionStoreTest(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.TrackReplayAnomaly(ctx, "sid-1", time.Hour); err != nil {
			t.Fatalf("track: %v", err)
		}
	}
	n, err := store.ReplayCount(ctx, "sid-1")
	if err != nil {
		t.Fatalf("replay count: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 replays, got %d", n)
	}
	if ttl := mr.TTL(store.replayKey("sid-1")); ttl <= 0 {
		t.Fatalf("expected replay counter TTL, got %v", ttl)
	}
}
