package kv

import (
	"context"
	"testing"
	"time"
)

func isRedisAvailable() bool {
	store, err := NewRedis(RedisConfig{Addr: "localhost:6379", DB: 15})
	if err != nil {
		return false
	}
	store.Close()
	return true
}

func setupRedisTest(t *testing.T) (*Redis, func()) {
	t.Helper()

	store, err := NewRedis(RedisConfig{
		Addr:   "localhost:6379",
		DB:     15,
		Prefix: "test:kv:",
	})
	if err != nil {
		t.Skip("redis not available:", err)
	}

	cleanup := func() {
		ctx := context.Background()
		it := store.ScanMatch(ctx, "*")
		var keys []string
		for it.Next(ctx) {
			keys = append(keys, it.Key())
		}
		if len(keys) > 0 {
			store.Del(ctx, keys...)
		}
		store.Close()
	}

	return store, cleanup
}

func TestRedis_IncrBy(t *testing.T) {
	if !isRedisAvailable() {
		t.Skip("redis not available")
	}
	store, cleanup := setupRedisTest(t)
	defer cleanup()

	ctx := context.Background()
	got, err := store.IncrBy(ctx, "counter", 3)
	if err != nil {
		t.Fatalf("IncrBy() error = %v", err)
	}
	if got != 3 {
		t.Errorf("IncrBy() = %v, want 3", got)
	}

	got, err = store.IncrBy(ctx, "counter", 2)
	if err != nil {
		t.Fatalf("IncrBy() error = %v", err)
	}
	if got != 5 {
		t.Errorf("IncrBy() = %v, want 5", got)
	}
}

func TestRedis_TTL_ThreeStates(t *testing.T) {
	if !isRedisAvailable() {
		t.Skip("redis not available")
	}
	store, cleanup := setupRedisTest(t)
	defer cleanup()
	ctx := context.Background()

	if ttl, err := store.TTL(ctx, "missing"); err != nil || ttl != Absent {
		t.Fatalf("TTL(missing) = %v, %v, want Absent, nil", ttl, err)
	}

	if _, err := store.IncrBy(ctx, "no-ttl", 1); err != nil {
		t.Fatal(err)
	}
	if ttl, err := store.TTL(ctx, "no-ttl"); err != nil || ttl != NoTTL {
		t.Fatalf("TTL(no-ttl) = %v, %v, want NoTTL, nil", ttl, err)
	}

	if ok, err := store.Expire(ctx, "no-ttl", 30*time.Second); err != nil || !ok {
		t.Fatalf("Expire() = %v, %v, want true, nil", ok, err)
	}
	ttl, err := store.TTL(ctx, "no-ttl")
	if err != nil {
		t.Fatal(err)
	}
	if ttl <= 0 || ttl > 30*time.Second {
		t.Errorf("TTL after Expire = %v, want (0, 30s]", ttl)
	}
}

func TestRedis_Del(t *testing.T) {
	if !isRedisAvailable() {
		t.Skip("redis not available")
	}
	store, cleanup := setupRedisTest(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := store.IncrBy(ctx, "a", 1); err != nil {
		t.Fatal(err)
	}
	n, err := store.Del(ctx, "a", "never-existed")
	if err != nil {
		t.Fatalf("Del() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Del() = %v, want 1", n)
	}
}

func TestRedis_ScanMatch(t *testing.T) {
	if !isRedisAvailable() {
		t.Skip("redis not available")
	}
	store, cleanup := setupRedisTest(t)
	defer cleanup()
	ctx := context.Background()

	for _, k := range []string{"rate_limit:u:1:0", "rate_limit:u:1:1", "rate_limit:u:2:0"} {
		if _, err := store.IncrBy(ctx, k, 1); err != nil {
			t.Fatal(err)
		}
	}

	it := store.ScanMatch(ctx, "rate_limit:u:1:*")
	var got []string
	for it.Next(ctx) {
		got = append(got, it.Key())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("ScanMatch iteration error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ScanMatch matched %d keys, want 2: %v", len(got), got)
	}
}

func TestRedis_Ping(t *testing.T) {
	if !isRedisAvailable() {
		t.Skip("redis not available")
	}
	store, cleanup := setupRedisTest(t)
	defer cleanup()

	latency, err := store.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if latency < 0 {
		t.Errorf("Ping() latency = %v, want >= 0", latency)
	}
}

func TestNewRedis_BadAddr(t *testing.T) {
	_, err := NewRedis(RedisConfig{Addr: "127.0.0.1:1"})
	if err == nil {
		t.Fatal("NewRedis() with unreachable addr: want error, got nil")
	}
}
