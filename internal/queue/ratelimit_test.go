package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestRateLimiterAllow(t *testing.T) {
	_, rdb := newTestRedis(t)

	rl := NewRateLimiter(rdb, 2)
	now := time.Date(2026, 2, 13, 10, 0, 0, 0, time.UTC)

	allowed, used, _, err := rl.Allow(context.Background(), "visitor-a", now)
	if err != nil {
		t.Fatalf("allow#1: %v", err)
	}
	if !allowed || used != 1 {
		t.Fatalf("expected first call allowed with used=1, got allowed=%v used=%d", allowed, used)
	}

	allowed, used, _, err = rl.Allow(context.Background(), "visitor-a", now)
	if err != nil {
		t.Fatalf("allow#2: %v", err)
	}
	if !allowed || used != 2 {
		t.Fatalf("expected second call allowed with used=2, got allowed=%v used=%d", allowed, used)
	}

	allowed, used, resetAt, err := rl.Allow(context.Background(), "visitor-a", now)
	if err != nil {
		t.Fatalf("allow#3: %v", err)
	}
	if allowed || used != 3 {
		t.Fatalf("expected third call denied with used=3, got allowed=%v used=%d", allowed, used)
	}
	if !resetAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected reset time %s", resetAt)
	}

	allowed, _, _, err = rl.Allow(context.Background(), "visitor-b", now)
	if err != nil || !allowed {
		t.Fatalf("other visitor should have its own window, allowed=%v err=%v", allowed, err)
	}
}

func TestDeduplicatorMarkFirst(t *testing.T) {
	mr, rdb := newTestRedis(t)
	d := NewDeduplicator(rdb, time.Minute)
	ctx := context.Background()

	first, err := d.MarkFirst(ctx, "lead:1")
	if err != nil || !first {
		t.Fatalf("expected first mark, got %v err=%v", first, err)
	}
	again, err := d.MarkFirst(ctx, "lead:1")
	if err != nil || again {
		t.Fatalf("expected duplicate, got %v err=%v", again, err)
	}

	mr.FastForward(2 * time.Minute)
	first, err = d.MarkFirst(ctx, "lead:1")
	if err != nil || !first {
		t.Fatalf("expected key to expire, got %v err=%v", first, err)
	}
}
