package ratelimit

import (
	"context"
	"testing"

	"yamdb/internal/pkg/metrics"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRateLimiter_AllowReducesTokens(t *testing.T) {
	metrics.InitMetrics()
	rdb := newMiniRedis(t)
	defer closeRedis(t, rdb)

	limiter := NewRedisRateLimiter(rdb, 10, 2)
	ok, err := limiter.Allow(context.Background(), "1.2.3.4")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !ok {
		t.Fatalf("expected first request to pass")
	}
}

func TestRateLimiter_BurstExhausted(t *testing.T) {
	metrics.InitMetrics()
	rdb := newMiniRedis(t)
	defer closeRedis(t, rdb)

	limiter := NewRedisRateLimiter(rdb, 0.001, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "1.2.3.4")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("expected request %d within burst to pass", i)
		}
	}

	ok, err := limiter.Allow(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("allow over burst: %v", err)
	}
	if ok {
		t.Fatalf("expected request over burst to be rejected")
	}
}

func TestRateLimiter_CallersIsolated(t *testing.T) {
	metrics.InitMetrics()
	rdb := newMiniRedis(t)
	defer closeRedis(t, rdb)

	limiter := NewRedisRateLimiter(rdb, 0.001, 1)
	ctx := context.Background()

	if ok, _ := limiter.Allow(ctx, "1.2.3.4"); !ok {
		t.Fatalf("expected first caller to pass")
	}
	if ok, _ := limiter.Allow(ctx, "1.2.3.4"); ok {
		t.Fatalf("expected first caller to be exhausted")
	}
	if ok, _ := limiter.Allow(ctx, "5.6.7.8"); !ok {
		t.Fatalf("expected second caller to have its own bucket")
	}
}

func TestRateLimiter_UnconfiguredPasses(t *testing.T) {
	metrics.InitMetrics()
	limiter := NewRedisRateLimiter(nil, 0, 0)
	ok, err := limiter.Allow(context.Background(), "1.2.3.4")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !ok {
		t.Fatalf("expected unconfigured limiter to pass")
	}
}

func newMiniRedis(t *testing.T) *redis.Client {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	return redis.NewClient(&redis.Options{Addr: s.Addr()})
}

func closeRedis(t *testing.T, rdb *redis.Client) {
	t.Helper()
	if err := rdb.Close(); err != nil {
		t.Fatalf("close redis: %v", err)
	}
}
