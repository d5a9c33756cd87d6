// Package cutlog records cut events in an append-only, capped log with
// per-user recent-event indexes for notification and audit.
package cutlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/louisbranch/hexstride/internal/hexgrid"
	"github.com/louisbranch/hexstride/internal/store"
)

// streamKey is the global, ordered event log.
const streamKey = "cuts:events"

// streamMaxLen caps the global log; old events fall off the tail.
const streamMaxLen = 1000

// userIndexTTL is how long per-user recent-cut indexes are kept.
const userIndexTTL = 24 * time.Hour

// Event is one cut: the attacker's trail entered a cell occupied by the
// victim's active trail. Immutable once logged.
type Event struct {
	ID         string       `json:"id"`
	AttackerID string       `json:"attacker_id"`
	VictimID   string       `json:"victim_id"`
	SessionID  string       `json:"session_id"`
	Cell       hexgrid.Cell `json:"cell"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// Log appends and reads cut events. Appends from concurrent sessions are
// safe; ordering across sessions follows append order.
type Log struct {
	kv    store.KeyedStore
	clock func() time.Time
}

// NewLog creates a cut event log.
func NewLog(kv store.KeyedStore) *Log {
	return &Log{kv: kv, clock: time.Now}
}

// WithClock replaces the log's clock, for tests.
func (l *Log) WithClock(clock func() time.Time) *Log {
	if clock != nil {
		l.clock = clock
	}
	return l
}

func userIndexKey(userID string) string {
	return "cuts:user:" + userID
}

// Append logs the event, assigning its id and timestamp, and indexes it for
// both the attacker and the victim.
func (l *Log) Append(ctx context.Context, event Event) (Event, error) {
	if l == nil || l.kv == nil {
		return Event{}, errors.New("cut log is required")
	}
	event.AttackerID = strings.TrimSpace(event.AttackerID)
	if event.AttackerID == "" {
		return Event{}, errors.New("attacker id is required")
	}
	event.VictimID = strings.TrimSpace(event.VictimID)
	if event.VictimID == "" {
		return Event{}, errors.New("victim id is required")
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = l.clock().UTC()
	}

	raw, err := json.Marshal(event)
	if err != nil {
		return Event{}, fmt.Errorf("encode cut event: %w", err)
	}

	if err := l.kv.ListPush(ctx, streamKey, string(raw), streamMaxLen, 0); err != nil {
		return Event{}, err
	}
	for _, userID := range []string{event.AttackerID, event.VictimID} {
		if err := l.kv.ListPush(ctx, userIndexKey(userID), event.ID, streamMaxLen, userIndexTTL); err != nil {
			return Event{}, err
		}
	}
	return event, nil
}

// Recent returns up to limit events from the global log, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Event, error) {
	if l == nil || l.kv == nil {
		return nil, errors.New("cut log is required")
	}
	entries, err := l.kv.ListRange(ctx, streamKey, limit)
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(entries))
	for _, raw := range entries {
		var event Event
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			return nil, fmt.Errorf("decode cut event: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}

// RecentForUser returns up to limit events involving the user as attacker
// or victim, newest first. Events older than the global log cap resolve as
// absent and are skipped.
func (l *Log) RecentForUser(ctx context.Context, userID string, limit int) ([]Event, error) {
	if l == nil || l.kv == nil {
		return nil, errors.New("cut log is required")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	ids, err := l.kv.ListRange(ctx, userIndexKey(userID), limit)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	wanted := make(map[string]int, len(ids))
	for i, id := range ids {
		wanted[id] = i
	}

	all, err := l.Recent(ctx, 0)
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(ids))
	for _, event := range all {
		if _, ok := wanted[event.ID]; ok {
			events = append(events, event)
		}
	}
	return events, nil
}
