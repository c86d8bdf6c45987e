package phoneauth

import (
	"context"
	"testing"

	"github.com/MrEthical07/phoneauth/credential/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func BenchmarkValidateAccess(b *testing.B) {
	engine, pair, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.ValidateAccess(context.Background(), pair.AccessToken); err != nil {
			b.Fatalf("validate failed: %v", err)
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	engine, pair, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	refresh := pair.RefreshToken
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		next, err := engine.Refresh(context.Background(), refresh)
		if err != nil {
			b.Fatalf("refresh failed: %v", err)
		}
		refresh = next.RefreshToken
	}
}

func BenchmarkLogin(b *testing.B) {
	engine, _, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pair, err := engine.Login(context.Background(), phone(), "correct-password-123")
		if err != nil {
			b.Fatalf("login failed: %v", err)
		}
		_ = engine.Logout(context.Background(), pair.RefreshToken)
	}
}

func newBenchmarkEngine(tb testing.TB) (*Engine, TokenPair, func()) {
	tb.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		tb.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	cfg.Security.EnableLoginThrottle = false
	cfg.Security.EnableRefreshThrottle = false
	cfg.Session.ReapInterval = 0

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserRepository(memory.New()).
		Build()
	if err != nil {
		tb.Fatalf("Build failed: %v", err)
	}

	pair, err := engine.Signup(context.Background(), SignupRequest{
		CountryCode: "+1",
		PhoneNumber: "5551234",
		Password:    "correct-password-123",
	})
	if err != nil {
		tb.Fatalf("signup failed: %v", err)
	}

	return engine, pair, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}
