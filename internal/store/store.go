// Package store defines the ephemeral keyed store consumed by trail,
// session, territory and cut-event storage.
//
// The contract mirrors the small slice of Redis the engine needs: string
// values, set membership, capped lists, per-key TTL, and prefix scans. TTL
// expiry is a liveness mechanism, never a correctness one; an expired key is
// indistinguishable from one that was never written.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested key is missing or expired.
var ErrNotFound = errors.New("key not found")

// KeyedStore is the ephemeral store seam. Implementations must treat every
// operation as atomic with respect to a single key; cross-key transactions
// are not part of the contract.
type KeyedStore interface {
	// Get returns the string value at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set writes the string value at key. A positive ttl (re)arms expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes keys of any kind. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// Expire re-arms expiry for an existing key. Missing keys are ignored.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// SetAdd inserts members into the set at key, creating it if needed.
	SetAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error
	// SetRemove drops members from the set at key. Missing keys are ignored.
	SetRemove(ctx context.Context, key string, members ...string) error
	// SetMembers returns the set at key; an absent key yields an empty set.
	SetMembers(ctx context.Context, key string) ([]string, error)

	// ListPush prepends value to the list at key and trims it to maxLen
	// entries when maxLen is positive. A positive ttl (re)arms expiry.
	ListPush(ctx context.Context, key, value string, maxLen int, ttl time.Duration) error
	// ListRange returns up to limit entries from the head of the list at
	// key, newest first; an absent key yields an empty slice.
	ListRange(ctx context.Context, key string, limit int) ([]string, error)

	// Keys returns all live keys with the given prefix. Required by the cut
	// detector's active-trail scan.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
