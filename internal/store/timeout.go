package store

import (
	"context"
	"time"
)

// WithTimeout wraps inner so every operation carries its own deadline. A
// stalled store call then fails with context.DeadlineExceeded instead of
// holding the caller for the life of the inbound request.
func WithTimeout(inner KeyedStore, d time.Duration) KeyedStore {
	if inner == nil || d <= 0 {
		return inner
	}
	return &timeoutStore{inner: inner, d: d}
}

type timeoutStore struct {
	inner KeyedStore
	d     time.Duration
}

func (s *timeoutStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.d)
}

func (s *timeoutStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.inner.Get(ctx, key)
}

func (s *timeoutStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.inner.Set(ctx, key, value, ttl)
}

func (s *timeoutStore) Delete(ctx context.Context, keys ...string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.inner.Delete(ctx, keys...)
}

func (s *timeoutStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.inner.Expire(ctx, key, ttl)
}

func (s *timeoutStore) SetAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.inner.SetAdd(ctx, key, ttl, members...)
}

func (s *timeoutStore) SetRemove(ctx context.Context, key string, members ...string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.inner.SetRemove(ctx, key, members...)
}

func (s *timeoutStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.inner.SetMembers(ctx, key)
}

func (s *timeoutStore) ListPush(ctx context.Context, key, value string, maxLen int, ttl time.Duration) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.inner.ListPush(ctx, key, value, maxLen, ttl)
}

func (s *timeoutStore) ListRange(ctx context.Context, key string, limit int) ([]string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.inner.ListRange(ctx, key, limit)
}

func (s *timeoutStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.inner.Keys(ctx, prefix)
}

var _ KeyedStore = (*timeoutStore)(nil)
