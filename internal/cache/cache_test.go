package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/sgtv/livestatus/internal/live"
)

func TestMemoryCacheStoreLookup(t *testing.T) {
	cache := NewMemory(500 * time.Millisecond)
	ctx := context.Background()

	entry := Entry{
		Status:   live.StatusLive,
		RoomID:   "12345",
		StoredAt: time.Now().UTC(),
	}
	entry.ExpiresAt = entry.StoredAt.Add(500 * time.Millisecond)

	if err := cache.Store(ctx, "handle:foo", entry); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, ok, err := cache.Lookup(ctx, "handle:foo")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if got.Status != live.StatusLive || got.RoomID != "12345" {
		t.Fatalf("unexpected entry: %#v", got)
	}

	size, err := cache.Size(ctx)
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if size != 1 {
		t.Fatalf("expected size 1, got %d", size)
	}

	if err := cache.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemory(10 * time.Millisecond)
	ctx := context.Background()

	entry := Entry{Status: live.StatusOffline, StoredAt: time.Now().UTC()}
	entry.ExpiresAt = entry.StoredAt.Add(10 * time.Millisecond)
	if err := cache.Store(ctx, "handle:bar", entry); err != nil {
		t.Fatalf("store: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	_, ok, err := cache.Lookup(ctx, "handle:bar")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestMemoryCacheDefaultsMissingExpiry(t *testing.T) {
	cache := NewMemory(time.Minute)
	ctx := context.Background()

	if err := cache.Store(ctx, "handle:baz", Entry{Status: live.StatusUnknown}); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, ok, err := cache.Lookup(ctx, "handle:baz")
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	if !got.ExpiresAt.After(got.StoredAt) {
		t.Fatalf("expected fallback expiry after stored-at, got %#v", got)
	}
}

func TestRedisCacheStoreLookup(t *testing.T) {
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer server.Close()

	cache, err := NewRedis(RedisConfig{Address: server.Addr()})
	if err != nil {
		t.Fatalf("new redis: %v", err)
	}
	ctx := context.Background()
	entry := Entry{
		Status:   live.StatusLive,
		RoomID:   "98765",
		StoredAt: time.Now().UTC(),
	}
	entry.ExpiresAt = entry.StoredAt.Add(500 * time.Millisecond)

	if err := cache.Store(ctx, "handle:foo", entry); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, ok, err := cache.Lookup(ctx, "handle:foo")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !ok {
		t.Fatalf("expected redis cache hit")
	}
	if got.Status != live.StatusLive || got.RoomID != "98765" {
		t.Fatalf("unexpected entry: %#v", got)
	}

	server.FastForward(time.Second)
	_, ok, err = cache.Lookup(ctx, "handle:foo")
	if err != nil {
		t.Fatalf("lookup after ttl: %v", err)
	}
	if ok {
		t.Fatalf("expected redis entry to expire")
	}

	if err := cache.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestRedisCacheCorruptEntryIsMiss(t *testing.T) {
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer server.Close()

	cache, err := NewRedis(RedisConfig{Address: server.Addr()})
	if err != nil {
		t.Fatalf("new redis: %v", err)
	}
	defer cache.Close(context.Background())

	if err := server.Set("handle:mangled", "{not json"); err != nil {
		t.Fatalf("seed corrupt value: %v", err)
	}

	_, ok, err := cache.Lookup(context.Background(), "handle:mangled")
	if err != nil {
		t.Fatalf("corrupt entry must not surface an error, got %v", err)
	}
	if ok {
		t.Fatalf("corrupt entry must read as a miss")
	}
}

func TestRedisCacheRejectsMissingExpiry(t *testing.T) {
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer server.Close()

	cache, err := NewRedis(RedisConfig{Address: server.Addr()})
	if err != nil {
		t.Fatalf("new redis: %v", err)
	}
	defer cache.Close(context.Background())

	if err := cache.Store(context.Background(), "handle:noexp", Entry{Status: live.StatusLive}); err == nil {
		t.Fatalf("expected store without expiry to fail")
	}
}
