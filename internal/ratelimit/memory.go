package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

type memoryLimiter struct {
	windowSize  time.Duration
	maxRequests int

	mu      sync.Mutex
	windows map[string]*window

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// NewMemory returns a process-local limiter. A janitor sweeps windows that
// expired more than one window ago, so the table stays bounded by the set of
// recently active clients instead of growing for the life of the process.
func NewMemory(windowSize time.Duration, maxRequests int, sweepInterval time.Duration) Limiter {
	if windowSize <= 0 {
		windowSize = time.Minute
	}
	if maxRequests <= 0 {
		maxRequests = 30
	}
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}
	l := &memoryLimiter{
		windowSize:  windowSize,
		maxRequests: maxRequests,
		windows:     make(map[string]*window),
		stopSweep:   make(chan struct{}),
		sweepDone:   make(chan struct{}),
	}
	go l.sweep(sweepInterval)
	return l
}

func (l *memoryLimiter) Admit(_ context.Context, key string) (Decision, error) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[key]
	if w == nil {
		w = &window{resetAt: now.Add(l.windowSize)}
		l.windows[key] = w
	} else if now.After(w.resetAt) {
		// Lazy reset: the first request after expiry opens a fresh window.
		w.count = 0
		w.resetAt = now.Add(l.windowSize)
	}

	w.count++
	if w.count > l.maxRequests {
		return Decision{Allowed: false, RetryAfter: w.resetAt.Sub(now)}, nil
	}
	return Decision{Allowed: true, Remaining: l.maxRequests - w.count}, nil
}

func (l *memoryLimiter) Close(context.Context) error {
	close(l.stopSweep)
	<-l.sweepDone
	return nil
}

func (l *memoryLimiter) sweep(interval time.Duration) {
	defer close(l.sweepDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopSweep:
			return
		case <-ticker.C:
			l.evictStale()
		}
	}
}

func (l *memoryLimiter) evictStale() {
	// Keep windows around for one extra window length so RetryAfter stays
	// accurate for clients that went quiet right after being limited.
	cutoff := time.Now().Add(-l.windowSize)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.windows {
		if w.resetAt.Before(cutoff) {
			delete(l.windows, key)
		}
	}
}
