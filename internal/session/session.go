// Package session manages play-session state and lifecycle in the ephemeral
// keyed store.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/hexstride/internal/store"
)

// Status describes the lifecycle state of a session. The values double as
// the wire encoding in the keyed store.
type Status string

const (
	// StatusActive indicates the session is currently in play.
	StatusActive Status = "active"
	// StatusPaused indicates the session is suspended but not over.
	StatusPaused Status = "paused"
	// StatusEnded indicates the session has ended.
	StatusEnded Status = "ended"
)

// DefaultTTL is how long a session entry lives without activity.
const DefaultTTL = time.Hour

// KeyPrefix namespaces session entries in the keyed store.
const KeyPrefix = "session:"

var (
	// ErrSessionIDEmpty indicates a missing session id.
	ErrSessionIDEmpty = errors.New("session id is required")
	// ErrUserIDEmpty indicates a missing user id.
	ErrUserIDEmpty = errors.New("user id is required")
)

// Session is per-session metadata. A session is owned exclusively by one
// player while active; at most one trail references it at a time.
type Session struct {
	SessionID        string
	UserID           string
	Locality         string
	Status           Status
	StartedAt        time.Time
	LastActivity     time.Time
	TrailCount       int
	TotalAreaClaimed float64
}

// record is the wire shape of a session in the keyed store.
type record struct {
	UserID           string  `json:"user_id"`
	Locality         string  `json:"locality"`
	Status           string  `json:"status"`
	StartedAt        string  `json:"started_at"`
	LastActivity     string  `json:"last_activity"`
	TrailCount       int     `json:"trail_count"`
	TotalAreaClaimed float64 `json:"total_area_claimed"`
}

// Manager creates, reads, touches and ends sessions.
type Manager struct {
	kv    store.KeyedStore
	ttl   time.Duration
	clock func() time.Time
}

// NewManager creates a session manager. A non-positive ttl uses DefaultTTL.
func NewManager(kv store.KeyedStore, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{kv: kv, ttl: ttl, clock: time.Now}
}

// WithClock replaces the manager's clock, for tests.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	if clock != nil {
		m.clock = clock
	}
	return m
}

// Key returns the store key for a session.
func Key(sessionID string) string {
	return KeyPrefix + sessionID
}

// userSessionsKey tracks the owner's active sessions.
func userSessionsKey(userID string) string {
	return "user:" + userID + ":sessions"
}

// Start creates an active session with zero counters and registers it in
// the owner's active-session set.
func (m *Manager) Start(ctx context.Context, sessionID, userID, locality string) (Session, error) {
	if m == nil || m.kv == nil {
		return Session{}, errors.New("session manager is required")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Session{}, ErrSessionIDEmpty
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Session{}, ErrUserIDEmpty
	}

	now := m.clock().UTC()
	s := Session{
		SessionID:    sessionID,
		UserID:       userID,
		Locality:     strings.TrimSpace(locality),
		Status:       StatusActive,
		StartedAt:    now,
		LastActivity: now,
	}

	if err := m.put(ctx, s); err != nil {
		return Session{}, err
	}
	if err := m.kv.SetAdd(ctx, userSessionsKey(userID), m.ttl, sessionID); err != nil {
		return Session{}, err
	}
	return s, nil
}

// Get loads a session. Absence is store.ErrNotFound, a valid outcome.
func (m *Manager) Get(ctx context.Context, sessionID string) (Session, error) {
	if m == nil || m.kv == nil {
		return Session{}, errors.New("session manager is required")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Session{}, ErrSessionIDEmpty
	}

	raw, err := m.kv.Get(ctx, Key(sessionID))
	if err != nil {
		return Session{}, err
	}
	return decode(sessionID, raw)
}

// Touch refreshes the session's last-activity timestamp and expiry. Called
// on every ingested point. Touching an absent session is store.ErrNotFound.
func (m *Manager) Touch(ctx context.Context, sessionID string) error {
	s, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	s.LastActivity = m.clock().UTC()
	return m.put(ctx, s)
}

// IncrementTrailCount bumps the session's trail counter.
func (m *Manager) IncrementTrailCount(ctx context.Context, sessionID string) error {
	s, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	s.TrailCount++
	return m.put(ctx, s)
}

// AddAreaClaimed accumulates claimed area onto the session's counters.
func (m *Manager) AddAreaClaimed(ctx context.Context, sessionID string, areaM2 float64) error {
	s, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	s.TotalAreaClaimed += areaM2
	return m.put(ctx, s)
}

// End removes the session from the owner's active-session set and deletes
// its entry, so subsequent reads observe NotFound just as they would after
// TTL expiry. End is idempotent; ending an absent session is a no-op.
func (m *Manager) End(ctx context.Context, sessionID string) error {
	s, err := m.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	if err := m.kv.SetRemove(ctx, userSessionsKey(s.UserID), sessionID); err != nil {
		return err
	}
	return m.kv.Delete(ctx, Key(sessionID))
}

// ActiveSessions returns the ids in the owner's active-session set.
func (m *Manager) ActiveSessions(ctx context.Context, userID string) ([]string, error) {
	if m == nil || m.kv == nil {
		return nil, errors.New("session manager is required")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserIDEmpty
	}
	return m.kv.SetMembers(ctx, userSessionsKey(userID))
}

func (m *Manager) put(ctx context.Context, s Session) error {
	rec := record{
		UserID:           s.UserID,
		Locality:         s.Locality,
		Status:           string(s.Status),
		StartedAt:        s.StartedAt.UTC().Format(time.RFC3339Nano),
		LastActivity:     s.LastActivity.UTC().Format(time.RFC3339Nano),
		TrailCount:       s.TrailCount,
		TotalAreaClaimed: s.TotalAreaClaimed,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return m.kv.Set(ctx, Key(s.SessionID), string(raw), m.ttl)
}

func decode(sessionID, raw string) (Session, error) {
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}

	startedAt, err := time.Parse(time.RFC3339Nano, rec.StartedAt)
	if err != nil {
		return Session{}, fmt.Errorf("decode session started_at: %w", err)
	}
	lastActivity, err := time.Parse(time.RFC3339Nano, rec.LastActivity)
	if err != nil {
		return Session{}, fmt.Errorf("decode session last_activity: %w", err)
	}

	status := Status(rec.Status)
	switch status {
	case StatusActive, StatusPaused, StatusEnded:
	default:
		return Session{}, fmt.Errorf("decode session: unknown status %q", rec.Status)
	}

	return Session{
		SessionID:        sessionID,
		UserID:           rec.UserID,
		Locality:         rec.Locality,
		Status:           status,
		StartedAt:        startedAt,
		LastActivity:     lastActivity,
		TrailCount:       rec.TrailCount,
		TotalAreaClaimed: rec.TotalAreaClaimed,
	}, nil
}
