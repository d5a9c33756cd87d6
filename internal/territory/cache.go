// Package territory caches each player's confirmed territory.
//
// The authoritative copy lives in the durable claims ledger; the cache
// mirrors it in the ephemeral store with its own expiry so loop detection
// does not hit the ledger on every trail start.
package territory

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/louisbranch/hexstride/internal/hexgrid"
	"github.com/louisbranch/hexstride/internal/ledger"
	"github.com/louisbranch/hexstride/internal/platform/timeouts"
	"github.com/louisbranch/hexstride/internal/store"
)

// DefaultTTL is how long a cached territory entry lives without refresh.
const DefaultTTL = time.Hour

const keyPrefix = "territory:"

// ErrUserIDEmpty indicates a missing user id.
var ErrUserIDEmpty = errors.New("user id is required")

// Cache reads claimed territory through the ephemeral store, falling back
// to the durable ledger on a miss.
type Cache struct {
	kv     store.KeyedStore
	ledger ledger.ClaimLedger
	ttl    time.Duration
}

// NewCache creates a territory cache. A non-positive ttl uses DefaultTTL.
func NewCache(kv store.KeyedStore, claims ledger.ClaimLedger, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{kv: kv, ledger: claims, ttl: ttl}
}

// Get returns the user's claimed cell set.
//
// Territory is best-effort context for loop detection, not authoritative
// state mutated here: a ledger failure yields an empty set, never an error.
// Only an ephemeral store fault is returned.
func (c *Cache) Get(ctx context.Context, userID string) (hexgrid.CellSet, error) {
	if c == nil || c.kv == nil {
		return nil, errors.New("territory cache is required")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserIDEmpty
	}

	cached, err := c.kv.SetMembers(ctx, keyPrefix+userID)
	if err != nil {
		return nil, err
	}
	if len(cached) > 0 {
		return hexgrid.CellSetFromStrings(cached), nil
	}

	if c.ledger == nil {
		return make(hexgrid.CellSet), nil
	}
	// A stalled ledger degrades to an empty set instead of holding the
	// ingest call open.
	fetchCtx, cancel := context.WithTimeout(ctx, timeouts.LedgerFetch)
	defer cancel()
	cells, err := c.ledger.FetchClaimedCells(fetchCtx, userID)
	if err != nil {
		log.Printf("territory fetch for %s: %v", userID, err)
		return make(hexgrid.CellSet), nil
	}
	if len(cells) == 0 {
		return make(hexgrid.CellSet), nil
	}

	if err := c.kv.SetAdd(ctx, keyPrefix+userID, c.ttl, cells...); err != nil {
		return nil, err
	}
	return hexgrid.CellSetFromStrings(cells), nil
}

// Invalidate drops the cached entry so the next read refetches from the
// ledger. Called after a claim is appended.
func (c *Cache) Invalidate(ctx context.Context, userID string) error {
	if c == nil || c.kv == nil {
		return errors.New("territory cache is required")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrUserIDEmpty
	}
	return c.kv.Delete(ctx, keyPrefix+userID)
}
