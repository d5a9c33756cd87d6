package cutlog

import (
	"context"
	"testing"
	"time"

	"github.com/louisbranch/hexstride/internal/store/memory"
)

func TestAppendAssignsIdentityAndTimestamp(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewLog(memory.New()).WithClock(func() time.Time { return now })

	event, err := l.Append(context.Background(), Event{
		AttackerID: "user-a",
		VictimID:   "user-b",
		SessionID:  "session-a",
		Cell:       "9:1:1",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if event.ID == "" {
		t.Fatal("expected assigned id")
	}
	if !event.OccurredAt.Equal(now) {
		t.Fatalf("occurred_at = %v, want %v", event.OccurredAt, now)
	}
}

func TestAppendValidation(t *testing.T) {
	l := NewLog(memory.New())
	ctx := context.Background()

	if _, err := l.Append(ctx, Event{VictimID: "v"}); err == nil {
		t.Fatal("expected error for missing attacker")
	}
	if _, err := l.Append(ctx, Event{AttackerID: "a"}); err == nil {
		t.Fatal("expected error for missing victim")
	}
}

func TestRecentNewestFirst(t *testing.T) {
	l := NewLog(memory.New())
	ctx := context.Background()

	first, err := l.Append(ctx, Event{AttackerID: "a", VictimID: "b", SessionID: "s1", Cell: "9:0:0"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	second, err := l.Append(ctx, Event{AttackerID: "c", VictimID: "d", SessionID: "s2", Cell: "9:1:0"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	events, err := l.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ID != second.ID || events[1].ID != first.ID {
		t.Fatalf("expected newest first, got %v", events)
	}
}

func TestRecentForUserIndexesBothSides(t *testing.T) {
	l := NewLog(memory.New())
	ctx := context.Background()

	event, err := l.Append(ctx, Event{AttackerID: "attacker", VictimID: "victim", SessionID: "s1", Cell: "9:0:0"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := l.Append(ctx, Event{AttackerID: "other", VictimID: "bystander", SessionID: "s2", Cell: "9:5:5"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	for _, userID := range []string{"attacker", "victim"} {
		events, err := l.RecentForUser(ctx, userID, 10)
		if err != nil {
			t.Fatalf("recent for %s: %v", userID, err)
		}
		if len(events) != 1 || events[0].ID != event.ID {
			t.Fatalf("expected the shared event for %s, got %v", userID, events)
		}
	}

	none, err := l.RecentForUser(ctx, "stranger", 10)
	if err != nil {
		t.Fatalf("recent for stranger: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no events, got %v", none)
	}
}
