package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestLimiter connects to a local Redis instance or skips the test.
func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewLimiter(client)
}

func TestLimiter_AllowWithinLimit(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 3, Window: 5 * time.Second}
	id := fmt.Sprintf("within-%d", time.Now().UnixNano())

	for i := 0; i < rule.Limit; i++ {
		ok, err := l.Allow(ctx, id, rule)
		if err != nil {
			t.Fatalf("Allow() error: %v", err)
		}
		if !ok {
			t.Fatalf("request %d unexpectedly limited", i+1)
		}
	}

	ok, err := l.Allow(ctx, id, rule)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if ok {
		t.Fatal("expected request over the limit to be rejected")
	}
}

func TestLimiter_FailsOpenWithoutRedis(t *testing.T) {
	// Intentionally unreachable address.
	client := redis.NewClient(&redis.Options{Addr: "localhost:1", DialTimeout: 100 * time.Millisecond})
	l := NewLimiter(client)

	ok, err := l.Allow(context.Background(), "anyone", RuleMessage)
	if err == nil {
		t.Fatal("expected redis error")
	}
	if !ok {
		t.Fatal("expected fail-open on redis error")
	}
}
