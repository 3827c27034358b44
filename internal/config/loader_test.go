package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoader(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T) []string
		wantErr bool
		assert  func(t *testing.T, cfg Config)
	}{
		{
			name: "returns defaults when no overrides",
			setup: func(t *testing.T) []string {
				return nil
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, 8080, cfg.Server.Listen.Port)
				require.Equal(t, "memory", cfg.Server.Cache.Backend)
				require.Equal(t, 15, cfg.Server.Cache.TTL.Live.MinSeconds)
				require.Equal(t, 30, cfg.Server.RateLimit.MaxRequests)
			},
		},
		{
			name: "merges file overrides",
			setup: func(t *testing.T) []string {
				dir := t.TempDir()
				path := filepath.Join(dir, "server.yaml")
				contents := "server:\n  listen:\n    port: 9090\n  upstream:\n    timeoutSeconds: 3\n"
				require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
				return []string{path}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, 9090, cfg.Server.Listen.Port)
				require.Equal(t, 3, cfg.Server.Upstream.TimeoutSeconds)
			},
		},
		{
			name: "prefers env overrides",
			setup: func(t *testing.T) []string {
				dir := t.TempDir()
				path := filepath.Join(dir, "server.yaml")
				require.NoError(t, os.WriteFile(path, []byte("server:\n  listen:\n    port: 9090\n"), 0o600))
				t.Setenv("LIVESTATUS_SERVER__LISTEN__PORT", "9091")
				return []string{path}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, 9091, cfg.Server.Listen.Port)
			},
		},
		{
			name: "maps camel-case env keys",
			setup: func(t *testing.T) []string {
				t.Setenv("LIVESTATUS_SERVER__UPSTREAM__TIMEOUTSECONDS", "7")
				t.Setenv("LIVESTATUS_SERVER__CACHE__TTL__LIVE__MAXSECONDS", "45")
				t.Setenv("LIVESTATUS_SERVER__RATELIMIT__MAXREQUESTS", "5")
				return nil
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, 7, cfg.Server.Upstream.TimeoutSeconds)
				require.Equal(t, 45, cfg.Server.Cache.TTL.Live.MaxSeconds)
				require.Equal(t, 5, cfg.Server.RateLimit.MaxRequests)
			},
		},
		{
			name: "reads detection block",
			setup: func(t *testing.T) []string {
				dir := t.TempDir()
				path := filepath.Join(dir, "server.yaml")
				contents := "server:\n  detection:\n    signalsFile: /etc/livestatus/signals.yaml\n"
				require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
				return []string{path}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, "/etc/livestatus/signals.yaml", cfg.Server.Detection.SignalsFile)
			},
		},
		{
			name: "rejects missing file",
			setup: func(t *testing.T) []string {
				return []string{filepath.Join(t.TempDir(), "absent.yaml")}
			},
			wantErr: true,
		},
		{
			name: "rejects invalid upstream template",
			setup: func(t *testing.T) []string {
				dir := t.TempDir()
				path := filepath.Join(dir, "server.yaml")
				contents := "server:\n  upstream:\n    livePageURL: https://example.com/live\n"
				require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
				return []string{path}
			},
			wantErr: true,
		},
		{
			name: "rejects redis cache without address",
			setup: func(t *testing.T) []string {
				t.Setenv("LIVESTATUS_SERVER__CACHE__BACKEND", "redis")
				return nil
			},
			wantErr: true,
		},
		{
			name: "rejects inverted ttl range",
			setup: func(t *testing.T) []string {
				t.Setenv("LIVESTATUS_SERVER__CACHE__TTL__OFFLINE__MAXSECONDS", "10")
				return nil
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := tt.setup(t)
			loader := NewLoader("LIVESTATUS", files...)
			cfg, err := loader.Load(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.assert != nil {
				tt.assert(t, cfg)
			}
		})
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Listen.Port = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownBackends(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Cache.Backend = "memcached"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Server.RateLimit.Backend = "dynamo"
	require.Error(t, cfg.Validate())
}
