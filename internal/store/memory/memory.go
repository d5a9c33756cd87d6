// Package memory provides an in-process KeyedStore with per-key TTL.
//
// It backs tests and single-node deployments; a networked store client
// implementing the same interface can replace it without engine changes.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/hexstride/internal/store"
)

type kind int

const (
	kindString kind = iota
	kindSet
	kindList
)

type entry struct {
	kind      kind
	value     string
	members   map[string]struct{}
	list      []string
	expiresAt time.Time // zero means no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Store is a mutex-guarded in-memory keyed store. Expired entries are
// reclaimed lazily on access.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	clock   func() time.Time
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		entries: make(map[string]*entry),
		clock:   time.Now,
	}
}

// NewWithClock creates a store using the provided clock, for expiry tests.
func NewWithClock(clock func() time.Time) *Store {
	s := New()
	if clock != nil {
		s.clock = clock
	}
	return s
}

// live returns the entry at key if present and unexpired, deleting it when
// the TTL has lapsed. Callers must hold the mutex.
func (s *Store) live(key string) *entry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if e.expired(s.clock()) {
		delete(s.entries, key)
		return nil
	}
	return e
}

func (s *Store) guard(ctx context.Context) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if s == nil {
		return errors.New("store is required")
	}
	return nil
}

// Get returns the string value at key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := s.guard(ctx); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil || e.kind != kindString {
		return "", store.ErrNotFound
	}
	return e.value, nil
}

// Set writes the string value at key with an optional TTL.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.guard(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &entry{kind: kindString, value: value}
	if ttl > 0 {
		e.expiresAt = s.clock().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

// Delete removes keys of any kind.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if err := s.guard(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.entries, key)
	}
	return nil
}

// Expire re-arms expiry for an existing key.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.guard(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		return nil
	}
	if ttl > 0 {
		e.expiresAt = s.clock().Add(ttl)
	} else {
		e.expiresAt = time.Time{}
	}
	return nil
}

// SetAdd inserts members into the set at key.
func (s *Store) SetAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error {
	if err := s.guard(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil || e.kind != kindSet {
		e = &entry{kind: kindSet, members: make(map[string]struct{})}
		s.entries[key] = e
	}
	for _, member := range members {
		e.members[member] = struct{}{}
	}
	if ttl > 0 {
		e.expiresAt = s.clock().Add(ttl)
	}
	return nil
}

// SetRemove drops members from the set at key.
func (s *Store) SetRemove(ctx context.Context, key string, members ...string) error {
	if err := s.guard(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil || e.kind != kindSet {
		return nil
	}
	for _, member := range members {
		delete(e.members, member)
	}
	if len(e.members) == 0 {
		delete(s.entries, key)
	}
	return nil
}

// SetMembers returns the set at key; an absent key yields an empty set.
func (s *Store) SetMembers(ctx context.Context, key string) ([]string, error) {
	if err := s.guard(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil || e.kind != kindSet {
		return nil, nil
	}
	members := make([]string, 0, len(e.members))
	for member := range e.members {
		members = append(members, member)
	}
	return members, nil
}

// ListPush prepends value to the list at key, trimming to maxLen.
func (s *Store) ListPush(ctx context.Context, key, value string, maxLen int, ttl time.Duration) error {
	if err := s.guard(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil || e.kind != kindList {
		e = &entry{kind: kindList}
		s.entries[key] = e
	}
	e.list = append([]string{value}, e.list...)
	if maxLen > 0 && len(e.list) > maxLen {
		e.list = e.list[:maxLen]
	}
	if ttl > 0 {
		e.expiresAt = s.clock().Add(ttl)
	}
	return nil
}

// ListRange returns up to limit entries from the head of the list, newest
// first.
func (s *Store) ListRange(ctx context.Context, key string, limit int) ([]string, error) {
	if err := s.guard(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil || e.kind != kindList {
		return nil, nil
	}
	n := len(e.list)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]string, n)
	copy(out, e.list[:n])
	return out, nil
}

// Keys returns all live keys with the given prefix.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := s.guard(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	var keys []string
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

var _ store.KeyedStore = (*Store)(nil)
