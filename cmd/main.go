package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sgtv/livestatus/internal/cache"
	"github.com/sgtv/livestatus/internal/classify"
	"github.com/sgtv/livestatus/internal/config"
	"github.com/sgtv/livestatus/internal/logging"
	"github.com/sgtv/livestatus/internal/metrics"
	"github.com/sgtv/livestatus/internal/probe"
	"github.com/sgtv/livestatus/internal/ratelimit"
	"github.com/sgtv/livestatus/internal/resolver"
	"github.com/sgtv/livestatus/internal/server"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to server configuration file")
		envPrefix  = flag.String("env-prefix", "LIVESTATUS", "environment variable prefix")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*envPrefix, *configFile)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Server.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	statusCache := buildStatusCache(logger.With(slog.String("agent", "cache_factory")), cfg.Server.Cache)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := statusCache.Close(shutdownCtx); err != nil {
			logger.Error("cache shutdown failed", slog.Any("error", err))
		}
	}()

	limiter := buildLimiter(logger.With(slog.String("agent", "limiter_factory")), cfg.Server)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := limiter.Close(shutdownCtx); err != nil {
			logger.Error("rate limiter shutdown failed", slog.Any("error", err))
		}
	}()

	prober, err := probe.NewHTTP(probe.Options{
		LivePageURL: cfg.Server.Upstream.LivePageURL,
		Timeout:     time.Duration(cfg.Server.Upstream.TimeoutSeconds) * time.Second,
		UserAgent:   cfg.Server.Upstream.UserAgent,
		Rate:        cfg.Server.Upstream.ProbeRate,
		Burst:       cfg.Server.Upstream.ProbeBurst,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("unable to construct prober", slog.Any("error", err))
		os.Exit(1)
	}

	detector, err := classify.NewDetector(classify.Signals{})
	if err != nil {
		logger.Error("unable to compile detection signals", slog.Any("error", err))
		os.Exit(1)
	}

	if signalsFile := strings.TrimSpace(cfg.Server.Detection.SignalsFile); signalsFile != "" {
		watcher, err := config.WatchSignals(ctx, signalsFile, func(signals classify.Signals) {
			if err := detector.Reload(signals); err != nil {
				logger.Error("detection signals rejected", slog.Any("error", err))
				return
			}
			logger.Info("detection signals reloaded", slog.String("file", signalsFile))
		}, func(err error) {
			if err != nil {
				logger.Error("signals watcher error", slog.Any("error", err))
			}
		})
		if err != nil {
			logger.Error("signals watcher setup failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer watcher.Stop()
	}

	promRegistry := prometheus.NewRegistry()
	metricsRecorder := metrics.NewRecorder(promRegistry)

	res := resolver.New(resolver.Options{
		Cache:    statusCache,
		Prober:   prober,
		Detector: detector,
		TTL:      ttlPolicy(cfg.Server.Cache.TTL),
		Logger:   logger,
		Metrics:  metricsRecorder,
	})

	handler := server.NewHandler(res, limiter, logger, metricsRecorder)
	router := server.NewRouter(handler, metricsRecorder)

	srv, err := server.New(cfg, logger, router)
	if err != nil {
		logger.Error("unable to construct server", slog.Any("error", err))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}

func ttlPolicy(cfg config.CacheTTLConfig) cache.TTLPolicy {
	toRange := func(r config.TTLRangeConfig) cache.TTLRange {
		return cache.TTLRange{
			Min: time.Duration(r.MinSeconds) * time.Second,
			Max: time.Duration(r.MaxSeconds) * time.Second,
		}
	}
	return cache.TTLPolicy{
		Live:    toRange(cfg.Live),
		Offline: toRange(cfg.Offline),
		Unknown: toRange(cfg.Unknown),
	}
}

func redisConfig(cfg config.RedisConfig) cache.RedisConfig {
	return cache.RedisConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
		TLS: cache.RedisTLSConfig{
			Enabled: cfg.TLS.Enabled,
			CAFile:  cfg.TLS.CAFile,
		},
	}
}

func buildStatusCache(logger *slog.Logger, cfg config.ServerCacheConfig) cache.StatusCache {
	fallbackTTL := time.Duration(cfg.TTL.Unknown.MinSeconds) * time.Second
	backend := strings.TrimSpace(strings.ToLower(cfg.Backend))
	switch backend {
	case "", "memory":
		if logger != nil {
			logger.Info("using memory status cache")
		}
		return cache.NewMemory(fallbackTTL)
	case "redis":
		redisCache, err := cache.NewRedis(redisConfig(cfg.Redis))
		if err != nil {
			if logger != nil {
				logger.Error("redis cache initialization failed", slog.Any("error", err))
				logger.Info("falling back to memory cache")
			}
			return cache.NewMemory(fallbackTTL)
		}
		if logger != nil {
			logger.Info("using redis status cache", slog.String("address", cfg.Redis.Address))
		}
		return redisCache
	default:
		if logger != nil {
			logger.Warn("unsupported cache backend, defaulting to memory", slog.String("backend", cfg.Backend))
		}
		return cache.NewMemory(fallbackTTL)
	}
}

func buildLimiter(logger *slog.Logger, cfg config.ServerConfig) ratelimit.Limiter {
	windowSize := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
	sweepInterval := time.Duration(cfg.RateLimit.SweepIntervalSeconds) * time.Second
	backend := strings.TrimSpace(strings.ToLower(cfg.RateLimit.Backend))
	switch backend {
	case "redis":
		// The limiter dials its own client so closing it never tears down the
		// status cache connection.
		client, err := cache.DialRedis(redisConfig(cfg.Cache.Redis))
		if err != nil {
			if logger != nil {
				logger.Error("redis limiter initialization failed", slog.Any("error", err))
				logger.Info("falling back to memory rate limiter")
			}
			return ratelimit.NewMemory(windowSize, cfg.RateLimit.MaxRequests, sweepInterval)
		}
		if logger != nil {
			logger.Info("using redis rate limiter", slog.String("address", cfg.Cache.Redis.Address))
		}
		return ratelimit.NewRedis(client, windowSize, cfg.RateLimit.MaxRequests)
	case "", "memory":
		if logger != nil {
			logger.Info("using memory rate limiter",
				slog.Duration("window", windowSize),
				slog.Int("max_requests", cfg.RateLimit.MaxRequests))
		}
		return ratelimit.NewMemory(windowSize, cfg.RateLimit.MaxRequests, sweepInterval)
	default:
		if logger != nil {
			logger.Warn("unsupported rate limit backend, defaulting to memory", slog.String("backend", cfg.RateLimit.Backend))
		}
		return ratelimit.NewMemory(windowSize, cfg.RateLimit.MaxRequests, sweepInterval)
	}
}
