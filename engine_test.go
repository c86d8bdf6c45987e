package phoneauth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/phoneauth/credential"
	"github.com/MrEthical07/phoneauth/credential/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testEngine struct {
	*Engine
	mr    *miniredis.Miniredis
	rdb   *redis.Client
	users *memory.Repository
}

func newTestEngine(t *testing.T, mutate func(*Config)) *testEngine {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	cfg.Metrics.Enabled = true
	if mutate != nil {
		mutate(&cfg)
	}

	users := memory.New()
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserRepository(users).
		Build()
	if err != nil {
		_ = rdb.Close()
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return &testEngine{Engine: engine, mr: mr, rdb: rdb, users: users}
}

func testCtx() context.Context {
	return WithUserAgent(WithClientIP(context.Background(), "203.0.113.9"), "engine-test")
}

func mustSignup(t *testing.T, e *testEngine, pass string) TokenPair {
	t.Helper()
	pair, err := e.Signup(testCtx(), SignupRequest{
		CountryCode: "+1",
		PhoneNumber: "5551234",
		Password:    pass,
		Name:        "Asha",
	})
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	return pair
}

func phone() credential.Identity {
	return credential.Identity{CountryCode: "+1", PhoneNumber: "5551234"}
}

func (e *testEngine) sessionCount(t *testing.T, userID string) (active, total int) {
	t.Helper()
	list, err := e.ListSessions(context.Background(), userID)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	for _, s := range list {
		if s.Active {
			active++
		}
	}
	return active, len(list)
}

func TestSignupLoginRefreshScenario(t *testing.T) {
	e := newTestEngine(t, nil)

	pair := mustSignup(t, e, "ab12")
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.UserID == "" {
		t.Fatalf("incomplete token pair: %+v", pair)
	}
	if pair.User == nil || pair.User.PhoneNumber != "5551234" {
		t.Fatalf("expected public user in signup result, got %+v", pair.User)
	}
	if active, total := e.sessionCount(t, pair.UserID); active != 1 || total != 1 {
		t.Fatalf("signup should open one session, got active=%d total=%d", active, total)
	}

	login, err := e.Login(testCtx(), phone(), "ab12")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if login.UserID != pair.UserID {
		t.Fatalf("login user mismatch: %q vs %q", login.UserID, pair.UserID)
	}
	if login.SessionID == pair.SessionID {
		t.Fatal("login must open a new session")
	}

	next, err := e.Refresh(testCtx(), login.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if next.UserID != pair.UserID {
		t.Fatalf("refresh changed user: %q", next.UserID)
	}
	if next.User != nil {
		t.Fatal("refresh should not carry the user profile")
	}

	claims, err := e.ValidateAccess(testCtx(), next.AccessToken)
	if err != nil {
		t.Fatalf("validate access failed: %v", err)
	}
	if claims.UID != pair.UserID {
		t.Fatalf("access token bound to %q, want %q", claims.UID, pair.UserID)
	}

	if _, err := e.Refresh(testCtx(), login.RefreshToken); !errors.Is(err, ErrRefreshReuse) || !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected reuse rejection, got %v", err)
	}
}

func TestSignupDuplicateIsConflict(t *testing.T) {
	e := newTestEngine(t, nil)
	mustSignup(t, e, "ab12")

	_, err := e.Signup(testCtx(), SignupRequest{CountryCode: "+1", PhoneNumber: "5551234", Password: "other"})
	if !errors.Is(err, ErrConflict) || !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestSignupRejectsBadIdentity(t *testing.T) {
	e := newTestEngine(t, nil)

	_, err := e.Signup(testCtx(), SignupRequest{CountryCode: "1", PhoneNumber: "55x", Password: "ab12"})
	if !errors.Is(err, ErrInvalidInput) || !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected invalid identity, got %v", err)
	}
}

func TestLoginErrors(t *testing.T) {
	e := newTestEngine(t, nil)

	if _, err := e.Login(testCtx(), phone(), "ab12"); !errors.Is(err, ErrNotFound) || !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown identity should be not found, got %v", err)
	}

	pair := mustSignup(t, e, "ab12")
	if _, err := e.Login(testCtx(), phone(), "wrong"); !errors.Is(err, ErrUnauthorized) || !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password should be unauthorized, got %v", err)
	}
	if active, total := e.sessionCount(t, pair.UserID); active != 1 || total != 1 {
		t.Fatalf("failed login must not open a session, got active=%d total=%d", active, total)
	}

	if _, err := e.Login(testCtx(), phone(), "ab12"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if active, total := e.sessionCount(t, pair.UserID); active != 2 || total != 2 {
		t.Fatalf("login should open exactly one session, got active=%d total=%d", active, total)
	}
}

func TestProvisionalUserCannotLoginUntilClaimed(t *testing.T) {
	e := newTestEngine(t, nil)

	pub, err := e.CreateProvisionalUser(testCtx(), "+1", "5551234", credential.Profile{Name: "Ravi"})
	if err != nil {
		t.Fatalf("create provisional: %v", err)
	}
	if _, err := e.Login(testCtx(), phone(), ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("provisional login should fail, got %v", err)
	}

	pair := mustSignup(t, e, "ab12")
	if pair.UserID != pub.ID {
		t.Fatalf("signup should claim the provisional account %q, got %q", pub.ID, pair.UserID)
	}
	if _, err := e.CreateProvisionalUser(testCtx(), "+1", "5551234", credential.Profile{}); !errors.Is(err, ErrConflict) {
		t.Fatalf("second provisional create should conflict, got %v", err)
	}
}

func TestRefreshBindsToOwner(t *testing.T) {
	e := newTestEngine(t, nil)
	pair := mustSignup(t, e, "ab12")

	claims, err := e.ValidateRefresh(testCtx(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("validate refresh: %v", err)
	}

	// Rebind the stored session to someone else.
	e.mr.HSet("ps:s:"+claims.SID, "user_id", "intruder")

	if _, err := e.Refresh(testCtx(), pair.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected invalid token for owner mismatch, got %v", err)
	}
}

func TestRefreshAfterSessionExpiryIsNotActive(t *testing.T) {
	e := newTestEngine(t, func(c *Config) {
		c.JWT.RefreshTTL = time.Hour
	})
	pair := mustSignup(t, e, "ab12")

	// Redis drops the row while the token is still inside its lifetime.
	e.mr.FastForward(2 * time.Hour)

	if _, err := e.Refresh(testCtx(), pair.RefreshToken); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("expected session not active, got %v", err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	e := newTestEngine(t, nil)
	pair := mustSignup(t, e, "ab12")

	if _, err := e.Refresh(testCtx(), pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("access token must not refresh, got %v", err)
	}
	if _, err := e.ValidateAccess(testCtx(), pair.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("refresh token must not validate as access, got %v", err)
	}
}

func TestRevokeAllOnReuse(t *testing.T) {
	e := newTestEngine(t, func(c *Config) {
		c.Security.RevokeAllOnReuse = true
	})
	first := mustSignup(t, e, "ab12")
	other, err := e.Login(testCtx(), phone(), "ab12")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	rotated, err := e.Refresh(testCtx(), first.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := e.Refresh(testCtx(), first.RefreshToken); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected reuse, got %v", err)
	}

	for _, tok := range []string{rotated.RefreshToken, other.RefreshToken} {
		if _, err := e.ValidateRefresh(testCtx(), tok); !errors.Is(err, ErrSessionNotActive) {
			t.Fatalf("reuse should revoke every session, got %v", err)
		}
	}
	if got := e.MetricsSnapshot().Counters[MetricRefreshReuseDetected]; got != 1 {
		t.Fatalf("reuse metric = %d, want 1", got)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	e := newTestEngine(t, nil)
	pair := mustSignup(t, e, "ab12")

	for i := 0; i < 2; i++ {
		if err := e.Logout(testCtx(), pair.RefreshToken); err != nil {
			t.Fatalf("logout %d: %v", i, err)
		}
	}
	if err := e.Logout(testCtx(), "not-a-token"); err != nil {
		t.Fatalf("garbage logout should succeed, got %v", err)
	}
	if _, err := e.Refresh(testCtx(), pair.RefreshToken); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("logged-out token should be not active, got %v", err)
	}
}

func TestRefreshAfterLogoutIsNotReuse(t *testing.T) {
	e := newTestEngine(t, func(c *Config) {
		c.Security.RevokeAllOnReuse = true
	})
	first := mustSignup(t, e, "ab12")
	other, err := e.Login(testCtx(), phone(), "ab12")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := e.Logout(testCtx(), first.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	_, err = e.Refresh(testCtx(), first.RefreshToken)
	if !errors.Is(err, ErrSessionNotActive) || errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("stale token after logout should be not active, got %v", err)
	}

	if _, err := e.ValidateRefresh(testCtx(), other.RefreshToken); err != nil {
		t.Fatalf("other session must survive a stale logout token: %v", err)
	}
	if active, total := e.sessionCount(t, first.UserID); active != 1 || total != 2 {
		t.Fatalf("expected 1 of 2 sessions active, got %d of %d", active, total)
	}
	if got := e.MetricsSnapshot().Counters[MetricRefreshReuseDetected]; got != 0 {
		t.Fatalf("reuse metric = %d, want 0", got)
	}
}

func TestLogoutAll(t *testing.T) {
	e := newTestEngine(t, nil)
	pair := mustSignup(t, e, "ab12")
	if _, err := e.Login(testCtx(), phone(), "ab12"); err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := e.LogoutAll(testCtx(), pair.UserID); err != nil {
		t.Fatalf("logout all: %v", err)
	}
	if active, total := e.sessionCount(t, pair.UserID); active != 0 || total != 2 {
		t.Fatalf("expected 0 of 2 sessions active, got %d of %d", active, total)
	}
	if got := e.MetricsSnapshot().Counters[MetricSessionInvalidated]; got != 2 {
		t.Fatalf("invalidated metric = %d, want 2", got)
	}
}

func TestChangePassword(t *testing.T) {
	e := newTestEngine(t, nil)
	pair := mustSignup(t, e, "ab12")

	if err := e.ChangePassword(testCtx(), pair.UserID, "nope", "cd34"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong old password, got %v", err)
	}
	if err := e.ChangePassword(testCtx(), pair.UserID, "ab12", "cd34"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := e.ValidateRefresh(testCtx(), pair.RefreshToken); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("password change should revoke sessions, got %v", err)
	}
	if _, err := e.Login(testCtx(), phone(), "ab12"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, err := e.Login(testCtx(), phone(), "cd34"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestMeHidesPasswordHash(t *testing.T) {
	e := newTestEngine(t, nil)
	pair := mustSignup(t, e, "ab12")

	me, err := e.Me(testCtx(), pair.UserID)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if me.ID != pair.UserID || me.Name != "Asha" {
		t.Fatalf("unexpected profile %+v", me)
	}
	if me.Preferences.Language != "en" {
		t.Fatalf("default preferences not applied: %+v", me.Preferences)
	}
	if _, err := e.Me(testCtx(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown user should be not found, got %v", err)
	}
}

func TestLoginThrottle(t *testing.T) {
	e := newTestEngine(t, func(c *Config) {
		c.Security.MaxLoginAttempts = 2
	})
	mustSignup(t, e, "ab12")

	for i := 0; i < 2; i++ {
		if _, err := e.Login(testCtx(), phone(), "bad"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if _, err := e.Login(testCtx(), phone(), "ab12"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit, got %v", err)
	}
}

func TestOperationTimeoutIsServerError(t *testing.T) {
	e := newTestEngine(t, func(c *Config) {
		c.OperationTimeout = time.Nanosecond
	})

	_, err := e.Login(testCtx(), phone(), "ab12")
	if !errors.Is(err, ErrServer) {
		t.Fatalf("expected server error on timeout, got %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("timeout must not read as not found")
	}
}

func TestBackendOutageIsServerError(t *testing.T) {
	e := newTestEngine(t, nil)
	pair := mustSignup(t, e, "ab12")

	e.mr.Close()

	if _, err := e.Refresh(testCtx(), pair.RefreshToken); !errors.Is(err, ErrServer) {
		t.Fatalf("expected server error, got %v", err)
	}
	if _, err := e.Ping(context.Background()); !errors.Is(err, ErrServer) {
		t.Fatalf("ping should fail, got %v", err)
	}
	if got := e.MetricsSnapshot().Counters[MetricBackendError]; got == 0 {
		t.Fatal("backend error metric not recorded")
	}
}

func TestErrorHidesCause(t *testing.T) {
	cause := errors.New("redis: connection refused")
	err := error(newError(ErrServer, nil, cause))

	if errors.Is(err, cause) {
		t.Fatal("cause must not match through errors.Is")
	}
	if strings.Contains(err.Error(), "redis") {
		t.Fatalf("message leaks cause: %q", err.Error())
	}
	var target *Error
	if !errors.As(err, &target) || target.Cause() != cause {
		t.Fatal("cause should be reachable through Cause")
	}
}

func TestBuilderIsSingleUseAndCopiesConfig(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := testConfig()
	b := New().WithConfig(cfg).WithRedis(rdb).WithUserRepository(memory.New())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("second Build should fail")
	}

	pair, err := engine.Signup(context.Background(), SignupRequest{CountryCode: "+1", PhoneNumber: "5551234", Password: "ab12"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	for i := range cfg.JWT.PrivateKey {
		cfg.JWT.PrivateKey[i] = 'x'
	}
	if _, err := engine.ValidateAccess(context.Background(), pair.AccessToken); err != nil {
		t.Fatalf("caller key mutation leaked into engine: %v", err)
	}
}

func TestBuildRequiresBackends(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).WithUserRepository(memory.New()).Build(); err == nil {
		t.Fatal("expected error without redis")
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error without user repository")
	}
}

func TestNilEngine(t *testing.T) {
	var e *Engine
	if _, err := e.Login(context.Background(), phone(), "ab12"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
}
