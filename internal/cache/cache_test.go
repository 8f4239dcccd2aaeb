package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type countingSource struct {
	calls int
	c     redis.UniversalClient
}

func (s *countingSource) Get() redis.UniversalClient {
	s.calls++
	return s.c
}

func deadClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestCacheResolvesClientPerCall(t *testing.T) {
	src := &countingSource{c: deadClient()}
	defer src.c.Close()
	c := NewCache("test", src)

	ctx := context.Background()
	c.Exists(ctx, "a")
	c.Exists(ctx, "a")
	_ = c.MarkExists(ctx, "a")
	_ = c.Remove(ctx, "a")

	if src.calls != 4 {
		t.Fatalf("expected one client lookup per operation, got %d", src.calls)
	}
}

func TestCacheUnreachableRedisIsAMiss(t *testing.T) {
	src := &countingSource{c: deadClient()}
	defer src.c.Close()
	c := NewCache("test", src)

	if c.Exists(context.Background(), "a") {
		t.Fatal("unreachable redis must read as a miss")
	}
	if err := c.MarkExists(context.Background(), "a"); err == nil {
		t.Fatal("expected an error marking against unreachable redis")
	}
}

func TestCacheNilClientIsAMiss(t *testing.T) {
	src := &countingSource{}
	c := NewCache("test", src)

	if c.Exists(context.Background(), "a") {
		t.Fatal("missing client must read as a miss")
	}
	if err := c.MarkExists(context.Background(), "a"); err == nil {
		t.Fatal("expected an error when no client is available")
	}
	if err := c.Remove(context.Background(), "a"); err == nil {
		t.Fatal("expected an error when no client is available")
	}
}
