package api

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestDeduper(t *testing.T, ttl time.Duration) (*RedisDeduper, *miniredis.Miniredis) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("redis close: %v", cerr)
		}
	})
	return NewRedisDeduper(client, ttl), m
}

func TestRedisDeduperAddRemove(t *testing.T) {
	deduper, m := newTestDeduper(t, time.Minute)
	ctx := context.Background()

	added, err := deduper.Add(ctx, "user", "k1")
	if err != nil || !added {
		t.Fatalf("expected first add to succeed, got %v %v", added, err)
	}
	added, err = deduper.Add(ctx, "user", "k1")
	if err != nil || added {
		t.Fatalf("expected duplicate to be rejected, got %v %v", added, err)
	}
	if ttl := m.TTL(idempotencyKeyPrefix + "user:k1"); ttl != time.Minute {
		t.Fatalf("unexpected ttl: %v", ttl)
	}

	if err := deduper.Remove(ctx, "user", "k1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	added, err = deduper.Add(ctx, "user", "k1")
	if err != nil || !added {
		t.Fatalf("expected key to be reusable after remove, got %v %v", added, err)
	}
}

func TestRedisDeduperKeyNamespacing(t *testing.T) {
	deduper, m := newTestDeduper(t, time.Minute)
	ctx := context.Background()

	if _, err := deduper.Add(ctx, "alice", "k"); err != nil {
		t.Fatalf("add: %v", err)
	}
	added, err := deduper.Add(ctx, "bob", "k")
	if err != nil || !added {
		t.Fatalf("expected keys to be scoped per user, got %v %v", added, err)
	}
	if !m.Exists(idempotencyKeyPrefix + "alice:k") {
		t.Fatalf("expected namespaced key in redis, keys: %v", m.Keys())
	}
}

func TestRedisDeduperExpiry(t *testing.T) {
	deduper, m := newTestDeduper(t, time.Second)
	ctx := context.Background()

	if _, err := deduper.Add(ctx, "user", "k"); err != nil {
		t.Fatalf("add: %v", err)
	}
	m.FastForward(2 * time.Second)
	added, err := deduper.Add(ctx, "user", "k")
	if err != nil || !added {
		t.Fatalf("expected expired key to be re-added, got %v %v", added, err)
	}
}
