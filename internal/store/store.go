// Package store holds the keyed, expiring storage used for ephemeral
// challenge session state.
package store

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is how long an entry lives when the caller doesn't pick a TTL.
const DefaultTTL = 24 * time.Hour

// ErrUnavailable marks a transient backend failure. Callers may retry.
var ErrUnavailable = errors.New("store unavailable")

// Store is a get/set/delete cache with per-entry expiry.
//
// Get reports a missing or expired key as ok=false with a nil error.
// Set with ttl <= 0 uses the store's default TTL. Del ignores missing keys.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}
