// Package resolver answers "is this channel live" for a batch of handles by
// consulting the shared cache and probing upstream on a miss. Channels in a
// batch resolve concurrently; one slow or broken probe never holds up or
// aborts its siblings.
package resolver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sgtv/livestatus/internal/cache"
	"github.com/sgtv/livestatus/internal/classify"
	"github.com/sgtv/livestatus/internal/live"
	"github.com/sgtv/livestatus/internal/metrics"
	"github.com/sgtv/livestatus/internal/probe"
)

const (
	cacheKeyPrefix          = "live:"
	defaultWriteBackTimeout = 2 * time.Second
)

// Options configure a Resolver. Cache, Prober, and Detector are required.
type Options struct {
	Cache            cache.StatusCache
	Prober           probe.Prober
	Detector         *classify.Detector
	TTL              cache.TTLPolicy
	WriteBackTimeout time.Duration
	Logger           *slog.Logger
	Metrics          *metrics.Recorder
}

// Resolver coordinates cache lookups, probes, and asynchronous write-backs.
type Resolver struct {
	cache            cache.StatusCache
	prober           probe.Prober
	detector         *classify.Detector
	ttl              cache.TTLPolicy
	writeBackTimeout time.Duration
	logger           *slog.Logger
	metrics          *metrics.Recorder
}

// New builds a resolver from the supplied options.
func New(opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	writeBack := opts.WriteBackTimeout
	if writeBack <= 0 {
		writeBack = defaultWriteBackTimeout
	}
	ttl := opts.TTL
	if ttl.Validate() != nil {
		ttl = cache.DefaultTTLPolicy()
	}
	return &Resolver{
		cache:            opts.Cache,
		prober:           opts.Prober,
		detector:         opts.Detector,
		ttl:              ttl,
		writeBackTimeout: writeBack,
		logger:           logger.With(slog.String("agent", "resolver")),
		metrics:          opts.Metrics,
	}
}

// Resolve returns one entry per distinct requested handle, keyed by the
// handle exactly as requested. Invalid handles come back unknown without
// touching the upstream; duplicates share a single resolution.
func (r *Resolver) Resolve(ctx context.Context, handles []string) map[string]live.Result {
	results := make(map[string]live.Result, len(handles))

	seen := make(map[string]struct{}, len(handles))
	distinct := make([]string, 0, len(handles))
	for _, handle := range handles {
		if _, dup := seen[handle]; dup {
			continue
		}
		seen[handle] = struct{}{}
		if !live.ValidHandle(handle) {
			results[handle] = live.Result{Status: live.StatusUnknown}
			continue
		}
		distinct = append(distinct, handle)
	}

	resolved := make([]live.Result, len(distinct))
	var wg sync.WaitGroup
	for i, handle := range distinct {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resolved[i] = r.resolveOne(ctx, handle)
		}()
	}
	wg.Wait()

	for i, handle := range distinct {
		results[handle] = resolved[i]
	}
	return results
}

func (r *Resolver) resolveOne(ctx context.Context, handle string) live.Result {
	key := cacheKeyPrefix + handle

	lookupStart := time.Now()
	entry, ok, err := r.cache.Lookup(ctx, key)
	switch {
	case err != nil:
		// A broken cache degrades to a probe, never to a failed request.
		r.metrics.ObserveCacheLookup(metrics.CacheLookupError, time.Since(lookupStart))
		r.logger.Warn("cache lookup failed", slog.String("handle", handle), slog.Any("error", err))
	case ok:
		r.metrics.ObserveCacheLookup(metrics.CacheLookupHit, time.Since(lookupStart))
		return entry.Result()
	default:
		r.metrics.ObserveCacheLookup(metrics.CacheLookupMiss, time.Since(lookupStart))
	}

	probeStart := time.Now()
	resp, err := r.prober.Probe(ctx, handle)
	if err != nil {
		// No retry; the next client poll probes again.
		resp = nil
		r.logger.Info("probe failed", slog.String("handle", handle), slog.Any("error", err))
	}
	result := r.detector.Classify(resp)
	r.metrics.ObserveProbe(string(result.Status), time.Since(probeStart))

	r.storeAsync(key, handle, result)
	return result
}

// storeAsync writes the fresh classification back without delaying the
// response. Failures are logged and dropped; the entry is only an
// optimization.
func (r *Resolver) storeAsync(key, handle string, result live.Result) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.writeBackTimeout)
		defer cancel()

		now := time.Now().UTC()
		entry := cache.Entry{
			Status:    result.Status,
			RoomID:    result.RoomID,
			StoredAt:  now,
			ExpiresAt: now.Add(r.ttl.For(result.Status)),
		}
		start := time.Now()
		if err := r.cache.Store(ctx, key, entry); err != nil {
			r.metrics.ObserveCacheStore(metrics.CacheStoreError, time.Since(start))
			r.logger.Warn("cache write-back failed", slog.String("handle", handle), slog.Any("error", err))
			return
		}
		r.metrics.ObserveCacheStore(metrics.CacheStoreStored, time.Since(start))
	}()
}
