package main

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/sgtv/livestatus/internal/cache"
	"github.com/sgtv/livestatus/internal/config"
	"github.com/sgtv/livestatus/internal/live"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func startMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	server, err := miniredis.Run()
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skip("miniredis unavailable in sandbox")
		}
		require.NoError(t, err)
	}
	t.Cleanup(server.Close)
	return server
}

func TestBuildStatusCache(t *testing.T) {
	tests := []struct {
		name   string
		cfg    func(t *testing.T) config.ServerCacheConfig
		verify func(t *testing.T, store cache.StatusCache)
	}{
		{
			name: "defaults to memory",
			cfg: func(t *testing.T) config.ServerCacheConfig {
				return config.DefaultConfig().Server.Cache
			},
			verify: func(t *testing.T, store cache.StatusCache) {
				require.NotNil(t, store, "expected cache to be constructed")
			},
		},
		{
			name: "constructs redis cache",
			cfg: func(t *testing.T) config.ServerCacheConfig {
				server := startMiniredis(t)
				cfg := config.DefaultConfig().Server.Cache
				cfg.Backend = "redis"
				cfg.Redis.Address = server.Addr()
				return cfg
			},
			verify: func(t *testing.T, store cache.StatusCache) {
				ctx := context.Background()
				entry := statusEntry()
				require.NoError(t, store.Store(ctx, "live:test", entry))
				_, ok, err := store.Lookup(ctx, "live:test")
				require.NoError(t, err)
				require.True(t, ok, "expected lookup to succeed")
			},
		},
		{
			name: "falls back to memory when redis is unreachable",
			cfg: func(t *testing.T) config.ServerCacheConfig {
				cfg := config.DefaultConfig().Server.Cache
				cfg.Backend = "redis"
				cfg.Redis.Address = "127.0.0.1:1"
				return cfg
			},
			verify: func(t *testing.T, store cache.StatusCache) {
				ctx := context.Background()
				require.NoError(t, store.Store(ctx, "live:test", statusEntry()))
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg(t)
			store := buildStatusCache(newTestLogger(), cfg)
			t.Cleanup(func() {
				require.NoError(t, store.Close(context.Background()))
			})

			tc.verify(t, store)
		})
	}
}

func statusEntry() cache.Entry {
	now := time.Now().UTC()
	return cache.Entry{
		Status:    live.StatusLive,
		RoomID:    "12345",
		StoredAt:  now,
		ExpiresAt: now.Add(time.Minute),
	}
}

func TestBuildLimiter(t *testing.T) {
	t.Run("memory backend admits and counts", func(t *testing.T) {
		cfg := config.DefaultConfig().Server
		cfg.RateLimit.MaxRequests = 2

		limiter := buildLimiter(newTestLogger(), cfg)
		t.Cleanup(func() { require.NoError(t, limiter.Close(context.Background())) })

		ctx := context.Background()
		for i := 0; i < 2; i++ {
			decision, err := limiter.Admit(ctx, "client")
			require.NoError(t, err)
			require.True(t, decision.Allowed)
		}
		decision, err := limiter.Admit(ctx, "client")
		require.NoError(t, err)
		require.False(t, decision.Allowed)
	})

	t.Run("redis backend shares windows", func(t *testing.T) {
		server := startMiniredis(t)
		cfg := config.DefaultConfig().Server
		cfg.RateLimit.Backend = "redis"
		cfg.RateLimit.MaxRequests = 1
		cfg.Cache.Redis.Address = server.Addr()

		limiter := buildLimiter(newTestLogger(), cfg)
		t.Cleanup(func() { require.NoError(t, limiter.Close(context.Background())) })

		ctx := context.Background()
		decision, err := limiter.Admit(ctx, "client")
		require.NoError(t, err)
		require.True(t, decision.Allowed)

		decision, err = limiter.Admit(ctx, "client")
		require.NoError(t, err)
		require.False(t, decision.Allowed)
	})

	t.Run("falls back to memory when redis is unreachable", func(t *testing.T) {
		cfg := config.DefaultConfig().Server
		cfg.RateLimit.Backend = "redis"
		cfg.Cache.Redis.Address = "127.0.0.1:1"

		limiter := buildLimiter(newTestLogger(), cfg)
		t.Cleanup(func() { require.NoError(t, limiter.Close(context.Background())) })

		decision, err := limiter.Admit(context.Background(), "client")
		require.NoError(t, err)
		require.True(t, decision.Allowed)
	})
}

func TestTTLPolicyFromConfig(t *testing.T) {
	policy := ttlPolicy(config.DefaultConfig().Server.Cache.TTL)
	require.NoError(t, policy.Validate())
	require.Equal(t, 15*time.Second, policy.Live.Min)
	require.Equal(t, 75*time.Second, policy.Offline.Max)
}
