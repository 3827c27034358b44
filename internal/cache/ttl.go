package cache

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/sgtv/livestatus/internal/live"
)

// TTLRange bounds the jittered expiry drawn for one status class.
type TTLRange struct {
	Min time.Duration
	Max time.Duration
}

// TTLPolicy maps a classification to its cache lifetime. Live entries expire
// quickly because liveness flips fast and a stale "offline" during a
// broadcast is the costly mistake; offline is comparatively stable; unknown
// sits in between so a blocked upstream is retried soon without being
// hammered.
type TTLPolicy struct {
	Live    TTLRange
	Offline TTLRange
	Unknown TTLRange
}

// DefaultTTLPolicy returns the stock expiry ranges.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Live:    TTLRange{Min: 15 * time.Second, Max: 30 * time.Second},
		Offline: TTLRange{Min: 45 * time.Second, Max: 75 * time.Second},
		Unknown: TTLRange{Min: 25 * time.Second, Max: 40 * time.Second},
	}
}

// Validate rejects inverted or non-positive ranges.
func (p TTLPolicy) Validate() error {
	for _, r := range []struct {
		name string
		rng  TTLRange
	}{
		{"live", p.Live},
		{"offline", p.Offline},
		{"unknown", p.Unknown},
	} {
		if r.rng.Min <= 0 {
			return fmt.Errorf("cache: ttl range %s: min must be positive", r.name)
		}
		if r.rng.Max < r.rng.Min {
			return fmt.Errorf("cache: ttl range %s: max below min", r.name)
		}
	}
	return nil
}

// For draws a jittered TTL for the given status. The jitter spreads expiry
// of entries cached in the same burst so they do not all re-probe at once.
func (p TTLPolicy) For(status live.Status) time.Duration {
	var r TTLRange
	switch status {
	case live.StatusLive:
		r = p.Live
	case live.StatusOffline:
		r = p.Offline
	default:
		r = p.Unknown
	}
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rand.N(r.Max-r.Min)
}
