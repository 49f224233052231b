package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestThrottle_Allow(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer s.Close()

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		if err := rdb.Close(); err != nil {
			t.Fatalf("close redis: %v", err)
		}
	})

	th := New(rdb, time.Minute)
	ctx := context.Background()

	ok, err := th.Allow(ctx, "neo@x.io")
	if err != nil {
		t.Fatalf("first allow: %v", err)
	}
	if !ok {
		t.Fatalf("expected first attempt to pass")
	}

	ok, err = th.Allow(ctx, "neo@x.io")
	if err != nil {
		t.Fatalf("second allow: %v", err)
	}
	if ok {
		t.Fatalf("expected second attempt to be throttled")
	}

	// 冷却到期后重新放行
	s.FastForward(time.Minute + time.Second)
	ok, err = th.Allow(ctx, "neo@x.io")
	if err != nil {
		t.Fatalf("third allow: %v", err)
	}
	if !ok {
		t.Fatalf("expected attempt after cooldown to pass")
	}
}

func TestThrottle_Reset(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer s.Close()

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer rdb.Close()

	th := New(rdb, time.Minute)
	ctx := context.Background()

	if _, err := th.Allow(ctx, "neo@x.io"); err != nil {
		t.Fatalf("allow: %v", err)
	}
	if err := th.Reset(ctx, "neo@x.io"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	ok, err := th.Allow(ctx, "neo@x.io")
	if err != nil {
		t.Fatalf("allow after reset: %v", err)
	}
	if !ok {
		t.Fatalf("expected attempt after reset to pass")
	}
}

func TestThrottle_NilClientPasses(t *testing.T) {
	th := New(nil, time.Minute)
	ok, err := th.Allow(context.Background(), "neo@x.io")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !ok {
		t.Fatalf("expected nil-client throttle to pass everything")
	}
}
