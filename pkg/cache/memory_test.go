package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got string
	if err := c.Get(ctx, "k", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "v" {
		t.Fatalf("got %q", got)
	}
}

func TestMemoryCacheMiss(t *testing.T) {
	c := NewMemoryCache()
	var got string
	if err := c.Get(context.Background(), "missing", &got); err != ErrCacheMiss {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	if err := c.Set(ctx, "k", "v", time.Nanosecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(time.Millisecond)
	var got string
	if err := c.Get(ctx, "k", &got); err != ErrCacheMiss {
		t.Fatalf("expired key must miss, got %v", err)
	}
}

func TestMemoryCacheJSONRoundTrip(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	in := []string{"BTCUSDT", "ETHUSDT"}
	if err := c.Set(ctx, "set", in, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var out []string
	if err := c.Get(ctx, "set", &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(out) != 2 || out[0] != "BTCUSDT" {
		t.Fatalf("round trip %v", out)
	}
}
