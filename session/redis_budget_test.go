package session

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// cmdCounter counts commands sent through a go-redis client.
type cmdCounter struct {
	commands atomic.Int64
}

func (h *cmdCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *cmdCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.commands.Add(1)
		return next(ctx, cmd)
	}
}

func (h *cmdCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.commands.Add(int64(len(cmds)))
		return next(ctx, cmds)
	}
}

func newCountedStore(t *testing.T) (*Store, *cmdCounter) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	// Connection setup commands are not part of any budget.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("warmup ping: %v", err)
	}
	counter := &cmdCounter{}
	rdb.AddHook(counter)
	return NewStore(rdb, "ps"), counter
}

func TestFindActiveRedisBudget(t *testing.T) {
	store, counter := newCountedStore(t)
	ctx := context.Background()
	if err := store.Create(ctx, testSession("sid-budget", "u1", time.Hour)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	counter.commands.Store(0)
	if _, err := store.FindActiveByID(ctx, "sid-budget"); err != nil {
		t.Fatalf("FindActiveByID: %v", err)
	}
	if got := counter.commands.Load(); got != 1 {
		t.Fatalf("FindActiveByID used %d commands, want 1", got)
	}
}

func TestConsumeRedisBudget(t *testing.T) {
	store, counter := newCountedStore(t)
	ctx := context.Background()
	if err := store.Create(ctx, testSession("sid-budget", "u1", time.Hour)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// EVALSHA, then EVAL on a cold script cache.
	counter.commands.Store(0)
	if _, err := store.Consume(ctx, "sid-budget", "u1"); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if got := counter.commands.Load(); got > 2 {
		t.Fatalf("Consume used %d commands, want at most 2", got)
	}

	if err := store.Create(ctx, testSession("sid-budget-2", "u1", time.Hour)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	counter.commands.Store(0)
	if _, err := store.Consume(ctx, "sid-budget-2", "u1"); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if got := counter.commands.Load(); got != 1 {
		t.Fatalf("warm Consume used %d commands, want 1", got)
	}
}
