// Package cache stores per-channel classifications between probes. The
// backend is interface-abstracted so tests run against the in-memory map and
// multi-instance deployments can point every replica at one redis.
package cache

import (
	"context"
	"time"

	"github.com/sgtv/livestatus/internal/live"
)

// Entry is the cached snapshot of one classification. Entries are written
// once by whichever goroutine just probed the channel and never mutated;
// concurrent probes for the same handle may race and the last write wins,
// which is harmless because every entry is a complete snapshot.
type Entry struct {
	Status    live.Status `json:"status"`
	RoomID    string      `json:"roomId,omitempty"`
	StoredAt  time.Time   `json:"storedAt"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// Result converts the entry back into the domain value.
func (e Entry) Result() live.Result {
	return live.Result{Status: e.Status, RoomID: e.RoomID}
}

// StatusCache is the shared classification store. Lookup returns ok=false
// for missing, expired, and unreadable entries alike; corruption is a miss,
// never an error, so the caller simply re-probes.
type StatusCache interface {
	Lookup(ctx context.Context, key string) (Entry, bool, error)
	Store(ctx context.Context, key string, entry Entry) error
	Size(ctx context.Context) (int64, error)
	Close(ctx context.Context) error
}
