// Package ratelimit guards the public endpoint with a per-client admission
// counter over a fixed window. The limiter only decides; it never queues or
// delays. Rejection is the caller's cue to answer 429 with a retry hint.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is how long a rejected client should wait before the
	// window resets. Zero when Allowed.
	RetryAfter time.Duration
}

// Limiter admits or rejects a request for a client identity. The
// increment-and-check must be atomic per key: two racing requests from one
// client must never both slip past the limit.
type Limiter interface {
	Admit(ctx context.Context, key string) (Decision, error)
	Close(ctx context.Context) error
}
