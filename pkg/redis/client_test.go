package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/feedledger-backend/pkg/config"
)

func TestSetNXOnlyOnce(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	ok, err := client.SetNX(ctx, "fl:lock:stock:starter|global", "owner-1", time.Second)
	if err != nil || !ok {
		t.Fatalf("expected first setnx to succeed, ok=%v err=%v", ok, err)
	}
	ok, err = client.SetNX(ctx, "fl:lock:stock:starter|global", "owner-2", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("second setnx should not acquire the key")
	}
	owner, err := client.Get(ctx, "fl:lock:stock:starter|global")
	if err != nil || owner != "owner-1" {
		t.Fatalf("expected owner-1, got %q err=%v", owner, err)
	}

	if err := client.Del(ctx, "fl:lock:stock:starter|global"); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, "fl:lock:stock:starter|global"); err != redis.Nil {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected ping on empty client to fail")
	}
	if _, err := client.SetNX(context.Background(), "k", "v", time.Second); err == nil {
		t.Fatal("expected setnx on empty client to fail")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on empty client should be a no-op, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("feed_restock", "abc"); got != "fl:idempotency:feed_restock:abc" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.StockLockKey("starter|site:s1"); got != "fl:lock:stock:starter|site:s1" {
		t.Fatalf("unexpected stock lock key %s", got)
	}
	if got := client.CronLockKey("low-stock-scan"); got != "fl:lock:cron:low-stock-scan" {
		t.Fatalf("unexpected cron lock key %s", got)
	}
	if got := client.IdempotencyKey("", "abc"); got != "fl:idempotency:abc" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected missing url and address to fail")
	}
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 7, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.DB != 2 || opts.PoolSize != 7 || opts.DialTimeout != time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestDelIfValueWithoutScripter(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.CronLockKey("cycle:prod")

	if _, err := client.SetNX(ctx, key, "owner-1", time.Minute); err != nil {
		t.Fatalf("setnx: %v", err)
	}
	removed, err := client.DelIfValue(ctx, key, "owner-2")
	if err != nil || removed {
		t.Fatalf("foreign owner must not delete, removed=%v err=%v", removed, err)
	}
	removed, err = client.DelIfValue(ctx, key, "owner-1")
	if err != nil || !removed {
		t.Fatalf("owner should delete, removed=%v err=%v", removed, err)
	}
	removed, err = client.DelIfValue(ctx, key, "owner-1")
	if err != nil || removed {
		t.Fatalf("missing key should be a no-op, removed=%v err=%v", removed, err)
	}
	if _, err := (&Client{}).DelIfValue(ctx, key, "x"); err == nil {
		t.Fatal("expected uninitialized client to fail")
	}
}

type mockCmdable struct {
	data map[string]string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: make(map[string]string)}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestSetOverwrites(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.IdempotencyKey("barn|POST|/api/v1/feed/stock/consume", "k1")

	if ok, _ := client.SetNX(ctx, key, "pending", time.Minute); !ok {
		t.Fatal("expected claim")
	}
	if err := client.Set(ctx, key, "done", time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := client.Get(ctx, key); got != "done" {
		t.Fatalf("expected overwrite, got %q", got)
	}
	if err := (&Client{}).Set(ctx, key, "x", 0); err != errNotInitialized {
		t.Fatalf("expected errNotInitialized, got %v", err)
	}
}
