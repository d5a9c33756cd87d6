package trail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/hexstride/internal/hexgrid"
	"github.com/louisbranch/hexstride/internal/store"
)

// DefaultTTL is how long a trail entry lives without a write.
const DefaultTTL = 2 * time.Hour

// KeyPrefix namespaces trail entries in the keyed store.
const KeyPrefix = "trail:"

// record is the wire shape of a trail in the keyed store. Serialization is
// an explicit encode/decode boundary; the store never sees domain types.
type record struct {
	SessionID       string   `json:"session_id"`
	UserID          string   `json:"user_id"`
	Points          []Point  `json:"points"`
	Cells           []string `json:"cells"`
	Status          string   `json:"status"`
	LengthMeters    float64  `json:"length_m"`
	ClaimedSnapshot []string `json:"claimed_snapshot"`
	LastUpdated     string   `json:"last_updated"`
}

// Store persists trails in the ephemeral keyed store with a sliding expiry.
type Store struct {
	kv  store.KeyedStore
	ttl time.Duration
}

// NewStore creates a trail store. A non-positive ttl uses DefaultTTL.
func NewStore(kv store.KeyedStore, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{kv: kv, ttl: ttl}
}

// Key returns the store key for a session's trail.
func Key(sessionID string) string {
	return KeyPrefix + sessionID
}

// Get loads the trail for a session. Absence is store.ErrNotFound.
func (s *Store) Get(ctx context.Context, sessionID string) (Trail, error) {
	if s == nil || s.kv == nil {
		return Trail{}, errors.New("trail store is required")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Trail{}, errors.New("session id is required")
	}

	raw, err := s.kv.Get(ctx, Key(sessionID))
	if err != nil {
		return Trail{}, err
	}
	return decode(raw)
}

// Put writes the trail and refreshes its expiry.
func (s *Store) Put(ctx context.Context, t Trail) error {
	if s == nil || s.kv == nil {
		return errors.New("trail store is required")
	}
	if strings.TrimSpace(t.SessionID) == "" {
		return errors.New("session id is required")
	}

	raw, err := encode(t)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, Key(t.SessionID), raw, s.ttl)
}

// Delete removes the trail entry. Missing entries are not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if s == nil || s.kv == nil {
		return errors.New("trail store is required")
	}
	return s.kv.Delete(ctx, Key(sessionID))
}

// MarkCut flips the trail's status to cut. The victim keeps its points for
// reading until deletion or expiry; the flip is first-writer-wins with no
// rollback.
func (s *Store) MarkCut(ctx context.Context, sessionID string) error {
	t, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	t.Status = StatusCut
	return s.Put(ctx, t)
}

// ActiveOthers returns all active trails except the given session's own.
// The scan is linear in the number of live trails; acceptable at small
// concurrent-player counts.
func (s *Store) ActiveOthers(ctx context.Context, excludeSessionID string) ([]Trail, error) {
	if s == nil || s.kv == nil {
		return nil, errors.New("trail store is required")
	}

	keys, err := s.kv.Keys(ctx, KeyPrefix)
	if err != nil {
		return nil, err
	}

	var trails []Trail
	for _, key := range keys {
		if key == Key(excludeSessionID) {
			continue
		}
		raw, err := s.kv.Get(ctx, key)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Expired between scan and read.
				continue
			}
			return nil, err
		}
		t, err := decode(raw)
		if err != nil {
			return nil, err
		}
		if !t.Active() {
			continue
		}
		trails = append(trails, t)
	}
	return trails, nil
}

func encode(t Trail) (string, error) {
	rec := record{
		SessionID:       t.SessionID,
		UserID:          t.UserID,
		Points:          t.Points,
		Cells:           t.Cells.Strings(),
		Status:          string(t.Status),
		LengthMeters:    t.LengthMeters,
		ClaimedSnapshot: t.ClaimedSnapshot.Strings(),
		LastUpdated:     t.LastUpdated.UTC().Format(time.RFC3339Nano),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode trail: %w", err)
	}
	return string(raw), nil
}

func decode(raw string) (Trail, error) {
	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Trail{}, fmt.Errorf("decode trail: %w", err)
	}

	lastUpdated, err := time.Parse(time.RFC3339Nano, rec.LastUpdated)
	if err != nil {
		return Trail{}, fmt.Errorf("decode trail timestamp: %w", err)
	}

	status := Status(rec.Status)
	switch status {
	case StatusActive, StatusCut, StatusCompleted:
	default:
		return Trail{}, fmt.Errorf("decode trail: unknown status %q", rec.Status)
	}

	return Trail{
		SessionID:       rec.SessionID,
		UserID:          rec.UserID,
		Points:          rec.Points,
		Cells:           hexgrid.CellSetFromStrings(rec.Cells),
		Status:          status,
		LengthMeters:    rec.LengthMeters,
		ClaimedSnapshot: hexgrid.CellSetFromStrings(rec.ClaimedSnapshot),
		LastUpdated:     lastUpdated,
	}, nil
}
