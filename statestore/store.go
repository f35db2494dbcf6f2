// Package statestore holds the small amount of state shared by every auction server process:
// circuit breaker counters and idempotency snapshots. Every operation is a single atomic call
// against the backend.
package statestore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist or has expired.
var ErrNotFound = errors.New("statestore: key not found")

// Store is an atomic key/value store with per key TTLs.
type Store interface {
	// Get returns the value stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set unconditionally stores value at key.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX stores value only if key does not exist. It reports whether the value was written.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// Incr increments the integer at key, creating it with value 1, and refreshes its TTL.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Del removes keys. Missing keys are ignored.
	Del(ctx context.Context, keys ...string) error
}
