package ratelimit

import (
	"context"
	"fmt"
	"time"

	valkey "github.com/valkey-io/valkey-go"
)

type redisLimiter struct {
	client      valkey.Client
	windowSize  time.Duration
	maxRequests int
}

// NewRedis returns a limiter whose windows live in a redis-compatible store,
// so every serving instance counts against the same per-client budget. The
// client is typically dialed through cache.DialRedis; this limiter owns it
// and closes it.
func NewRedis(client valkey.Client, windowSize time.Duration, maxRequests int) Limiter {
	if windowSize <= 0 {
		windowSize = time.Minute
	}
	if maxRequests <= 0 {
		maxRequests = 30
	}
	return &redisLimiter{client: client, windowSize: windowSize, maxRequests: maxRequests}
}

func (l *redisLimiter) Admit(ctx context.Context, key string) (Decision, error) {
	redisKey := "ratelimit:" + key

	count, err := l.client.Do(ctx, l.client.B().Incr().Key(redisKey).Build()).AsInt64()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: redis incr: %w", err)
	}
	if count == 1 {
		// First hit opens the window; the key's own TTL is the reset.
		expire := l.client.B().Pexpire().Key(redisKey).Milliseconds(l.windowSize.Milliseconds()).Build()
		if err := l.client.Do(ctx, expire).Error(); err != nil {
			return Decision{}, fmt.Errorf("ratelimit: redis pexpire: %w", err)
		}
	}

	if count > int64(l.maxRequests) {
		retryAfter := l.windowSize
		if ttlMillis, err := l.client.Do(ctx, l.client.B().Pttl().Key(redisKey).Build()).AsInt64(); err == nil && ttlMillis > 0 {
			retryAfter = time.Duration(ttlMillis) * time.Millisecond
		}
		return Decision{Allowed: false, RetryAfter: retryAfter}, nil
	}
	return Decision{Allowed: true, Remaining: l.maxRequests - int(count)}, nil
}

func (l *redisLimiter) Close(context.Context) error {
	l.client.Close()
	return nil
}
