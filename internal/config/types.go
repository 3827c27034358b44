package config

import (
	"errors"
	"fmt"
	"strings"
)

// Config holds every server-level option once the loader resolves defaults,
// file, and environment.
type Config struct {
	Server ServerConfig `koanf:"server"`
}

// ServerConfig collects the bootstrap knobs for the live-status service.
type ServerConfig struct {
	Listen    ListenConfig      `koanf:"listen"`
	Logging   LoggingConfig     `koanf:"logging"`
	Upstream  UpstreamConfig    `koanf:"upstream"`
	Cache     ServerCacheConfig `koanf:"cache"`
	RateLimit RateLimitConfig   `koanf:"rateLimit"`
	Detection DetectionConfig   `koanf:"detection"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level and format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// UpstreamConfig shapes the prober: where live pages live, how long one
// fetch may take, and how fast outbound fetches are paced.
type UpstreamConfig struct {
	// LivePageURL is a printf-style template with one %s for the handle.
	LivePageURL    string  `koanf:"livePageURL"`
	TimeoutSeconds int     `koanf:"timeoutSeconds"`
	UserAgent      string  `koanf:"userAgent"`
	ProbeRate      float64 `koanf:"probeRate"`
	ProbeBurst     int     `koanf:"probeBurst"`
}

// ServerCacheConfig selects the classification cache backend and its
// status-dependent expiry ranges.
type ServerCacheConfig struct {
	Backend string         `koanf:"backend"`
	TTL     CacheTTLConfig `koanf:"ttl"`
	Redis   RedisConfig    `koanf:"redis"`
}

// CacheTTLConfig holds one jitter range per classification.
type CacheTTLConfig struct {
	Live    TTLRangeConfig `koanf:"live"`
	Offline TTLRangeConfig `koanf:"offline"`
	Unknown TTLRangeConfig `koanf:"unknown"`
}

// TTLRangeConfig bounds a jittered expiry in whole seconds.
type TTLRangeConfig struct {
	MinSeconds int `koanf:"minSeconds"`
	MaxSeconds int `koanf:"maxSeconds"`
}

// RedisConfig carries connection settings shared by the redis cache and the
// redis rate limiter.
type RedisConfig struct {
	Address  string         `koanf:"address"`
	Username string         `koanf:"username"`
	Password string         `koanf:"password"`
	DB       int            `koanf:"db"`
	TLS      RedisTLSConfig `koanf:"tls"`
}

// RedisTLSConfig enables TLS towards redis, optionally pinning a CA bundle.
type RedisTLSConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// RateLimitConfig bounds requests per client identity within a window. The
// redis backend reuses server.cache.redis connection settings.
type RateLimitConfig struct {
	Backend              string `koanf:"backend"`
	WindowSeconds        int    `koanf:"windowSeconds"`
	MaxRequests          int    `koanf:"maxRequests"`
	SweepIntervalSeconds int    `koanf:"sweepIntervalSeconds"`
}

// DetectionConfig points at an optional signals file overriding the built-in
// detection fingerprints.
type DetectionConfig struct {
	SignalsFile string `koanf:"signalsFile"`
}

// Validate enforces invariants that keep the runtime predictable before
// serving traffic.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}
	if c.Server.Listen.Port <= 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: listen.port invalid: %d", c.Server.Listen.Port)
	}
	if strings.Count(c.Server.Upstream.LivePageURL, "%s") != 1 {
		return fmt.Errorf("config: upstream.livePageURL must contain exactly one %%s placeholder: %q", c.Server.Upstream.LivePageURL)
	}
	if c.Server.Upstream.TimeoutSeconds <= 0 {
		return fmt.Errorf("config: upstream.timeoutSeconds invalid: %d", c.Server.Upstream.TimeoutSeconds)
	}
	if c.Server.Upstream.ProbeRate < 0 {
		return fmt.Errorf("config: upstream.probeRate invalid: %v", c.Server.Upstream.ProbeRate)
	}
	if err := c.Server.Cache.TTL.validate(); err != nil {
		return err
	}

	cacheBackend := strings.TrimSpace(strings.ToLower(c.Server.Cache.Backend))
	switch cacheBackend {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(c.Server.Cache.Redis.Address) == "" {
			return errors.New("config: server.cache.redis.address required for redis backend")
		}
	default:
		return fmt.Errorf("config: server.cache.backend unsupported: %s", c.Server.Cache.Backend)
	}

	if c.Server.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("config: rateLimit.windowSeconds invalid: %d", c.Server.RateLimit.WindowSeconds)
	}
	if c.Server.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("config: rateLimit.maxRequests invalid: %d", c.Server.RateLimit.MaxRequests)
	}
	limiterBackend := strings.TrimSpace(strings.ToLower(c.Server.RateLimit.Backend))
	switch limiterBackend {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(c.Server.Cache.Redis.Address) == "" {
			return errors.New("config: server.cache.redis.address required for redis rate limiting")
		}
	default:
		return fmt.Errorf("config: server.rateLimit.backend unsupported: %s", c.Server.RateLimit.Backend)
	}

	return nil
}

func (c CacheTTLConfig) validate() error {
	for _, r := range []struct {
		name string
		rng  TTLRangeConfig
	}{
		{"live", c.Live},
		{"offline", c.Offline},
		{"unknown", c.Unknown},
	} {
		if r.rng.MinSeconds <= 0 {
			return fmt.Errorf("config: cache.ttl.%s.minSeconds must be positive", r.name)
		}
		if r.rng.MaxSeconds < r.rng.MinSeconds {
			return fmt.Errorf("config: cache.ttl.%s.maxSeconds below minSeconds", r.name)
		}
	}
	return nil
}

// DefaultConfig returns the baseline values for a single-instance deployment.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen: ListenConfig{
				Address: "0.0.0.0",
				Port:    8080,
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
			},
			Upstream: UpstreamConfig{
				LivePageURL:    "https://www.tiktok.com/@%s/live",
				TimeoutSeconds: 5,
				ProbeRate:      8,
				ProbeBurst:     4,
			},
			Cache: ServerCacheConfig{
				Backend: "memory",
				TTL: CacheTTLConfig{
					Live:    TTLRangeConfig{MinSeconds: 15, MaxSeconds: 30},
					Offline: TTLRangeConfig{MinSeconds: 45, MaxSeconds: 75},
					Unknown: TTLRangeConfig{MinSeconds: 25, MaxSeconds: 40},
				},
			},
			RateLimit: RateLimitConfig{
				Backend:              "memory",
				WindowSeconds:        60,
				MaxRequests:          30,
				SweepIntervalSeconds: 300,
			},
		},
	}
}
