package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader hydrates the runtime configuration while respecting
// env > file > default precedence.
type Loader struct {
	envPrefix string
	files     []string
}

// NewLoader prepares a config hydrator that honors the env-first contract
// before touching files or defaults.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{
		envPrefix: envPrefix,
		files:     files,
	}
}

// Load assembles the effective snapshot and validates it.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	defaultCfg := DefaultConfig()
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(defaultCfg), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range l.files {
		if path == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s not found", path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		canonical := map[string]string{
			"server.upstream.livepageurl":             "server.upstream.livePageURL",
			"server.upstream.timeoutseconds":          "server.upstream.timeoutSeconds",
			"server.upstream.useragent":               "server.upstream.userAgent",
			"server.upstream.proberate":               "server.upstream.probeRate",
			"server.upstream.probeburst":              "server.upstream.probeBurst",
			"server.cache.ttl.live.minseconds":        "server.cache.ttl.live.minSeconds",
			"server.cache.ttl.live.maxseconds":        "server.cache.ttl.live.maxSeconds",
			"server.cache.ttl.offline.minseconds":     "server.cache.ttl.offline.minSeconds",
			"server.cache.ttl.offline.maxseconds":     "server.cache.ttl.offline.maxSeconds",
			"server.cache.ttl.unknown.minseconds":     "server.cache.ttl.unknown.minSeconds",
			"server.cache.ttl.unknown.maxseconds":     "server.cache.ttl.unknown.maxSeconds",
			"server.cache.redis.tls.cafile":           "server.cache.redis.tls.caFile",
			"server.ratelimit.backend":                "server.rateLimit.backend",
			"server.ratelimit.windowseconds":          "server.rateLimit.windowSeconds",
			"server.ratelimit.maxrequests":            "server.rateLimit.maxRequests",
			"server.ratelimit.sweepintervalseconds":   "server.rateLimit.sweepIntervalSeconds",
			"server.detection.signalsfile":            "server.detection.signalsFile",
		}
		transform := func(s string) string {
			// Double underscores signal a nested path
			// (SERVER__LISTEN__PORT -> server.listen.port).
			key := strings.TrimPrefix(s, l.envPrefix+"_")
			key = strings.ReplaceAll(key, "__", ".")
			lower := strings.ToLower(key)
			if mapped, ok := canonical[lower]; ok {
				return mapped
			}
			// Single underscores collapse so LISTEN_PORT becomes listenport
			// when callers skip double underscores for nesting.
			key = strings.ReplaceAll(key, "_", "")
			return strings.ToLower(key)
		}
		if err := k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// structToMap converts DefaultConfig into a map for the koanf confmap provider.
func structToMap(cfg Config) map[string]any {
	return map[string]any{
		"server": map[string]any{
			"listen": map[string]any{
				"address": cfg.Server.Listen.Address,
				"port":    cfg.Server.Listen.Port,
			},
			"logging": map[string]any{
				"level":  cfg.Server.Logging.Level,
				"format": cfg.Server.Logging.Format,
			},
			"upstream": map[string]any{
				"livePageURL":    cfg.Server.Upstream.LivePageURL,
				"timeoutSeconds": cfg.Server.Upstream.TimeoutSeconds,
				"userAgent":      cfg.Server.Upstream.UserAgent,
				"probeRate":      cfg.Server.Upstream.ProbeRate,
				"probeBurst":     cfg.Server.Upstream.ProbeBurst,
			},
			"cache": map[string]any{
				"backend": cfg.Server.Cache.Backend,
				"ttl": map[string]any{
					"live": map[string]any{
						"minSeconds": cfg.Server.Cache.TTL.Live.MinSeconds,
						"maxSeconds": cfg.Server.Cache.TTL.Live.MaxSeconds,
					},
					"offline": map[string]any{
						"minSeconds": cfg.Server.Cache.TTL.Offline.MinSeconds,
						"maxSeconds": cfg.Server.Cache.TTL.Offline.MaxSeconds,
					},
					"unknown": map[string]any{
						"minSeconds": cfg.Server.Cache.TTL.Unknown.MinSeconds,
						"maxSeconds": cfg.Server.Cache.TTL.Unknown.MaxSeconds,
					},
				},
				"redis": map[string]any{
					"address":  cfg.Server.Cache.Redis.Address,
					"username": cfg.Server.Cache.Redis.Username,
					"password": cfg.Server.Cache.Redis.Password,
					"db":       cfg.Server.Cache.Redis.DB,
					"tls": map[string]any{
						"enabled": cfg.Server.Cache.Redis.TLS.Enabled,
						"caFile":  cfg.Server.Cache.Redis.TLS.CAFile,
					},
				},
			},
			"rateLimit": map[string]any{
				"backend":              cfg.Server.RateLimit.Backend,
				"windowSeconds":        cfg.Server.RateLimit.WindowSeconds,
				"maxRequests":          cfg.Server.RateLimit.MaxRequests,
				"sweepIntervalSeconds": cfg.Server.RateLimit.SweepIntervalSeconds,
			},
			"detection": map[string]any{
				"signalsFile": cfg.Server.Detection.SignalsFile,
			},
		},
	}
}
