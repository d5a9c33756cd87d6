package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/louisbranch/hexstride/internal/cutlog"
	"github.com/louisbranch/hexstride/internal/hexgrid"
	"github.com/louisbranch/hexstride/internal/ledger"
	perrors "github.com/louisbranch/hexstride/internal/platform/errors"
	"github.com/louisbranch/hexstride/internal/session"
	"github.com/louisbranch/hexstride/internal/store"
	"github.com/louisbranch/hexstride/internal/store/memory"
	"github.com/louisbranch/hexstride/internal/territory"
	"github.com/louisbranch/hexstride/internal/trail"
)

// fakeLedger serves claimed cells per user without a database.
type fakeLedger struct {
	cells map[string][]string
}

func (f *fakeLedger) FetchClaimedCells(_ context.Context, userID string) ([]string, error) {
	return f.cells[userID], nil
}

func (f *fakeLedger) AppendClaim(_ context.Context, _ ledger.Claim) error {
	return nil
}

type fixture struct {
	engine   *Engine
	grid     *hexgrid.Grid
	trails   *trail.Store
	sessions *session.Manager
	cuts     *cutlog.Log
	kv       store.KeyedStore
	claims   *fakeLedger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	grid, err := hexgrid.New(9)
	if err != nil {
		t.Fatalf("new grid: %v", err)
	}
	kv := memory.New()
	claims := &fakeLedger{cells: map[string][]string{}}
	stores := Stores{
		Trails:    trail.NewStore(kv, time.Hour),
		Sessions:  session.NewManager(kv, time.Hour),
		Territory: territory.NewCache(kv, claims, time.Hour),
		Cuts:      cutlog.NewLog(kv),
		KV:        kv,
	}
	e, err := New(grid, stores, Config{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return &fixture{
		engine:   e,
		grid:     grid,
		trails:   stores.Trails,
		sessions: stores.Sessions,
		cuts:     stores.Cuts,
		kv:       kv,
		claims:   claims,
	}
}

// coordOf returns the center coordinate of a cell, a point guaranteed to
// snap back to it.
func coordOf(t *testing.T, grid *hexgrid.Grid, cell hexgrid.Cell) (float64, float64) {
	t.Helper()
	lat, lng, err := grid.Center(cell)
	if err != nil {
		t.Fatalf("center of %s: %v", cell, err)
	}
	return lat, lng
}

const (
	baseLat = 38.72
	baseLng = -9.14
)

func TestIngestFirstPoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.StartSession(ctx, "session-a", "user-a", "lisbon"); err != nil {
		t.Fatalf("start session: %v", err)
	}

	result, err := f.engine.Ingest(ctx, "session-a", "user-a", baseLat, baseLng, time.Time{})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.CellID == "" {
		t.Fatal("expected a cell id")
	}
	if result.PointCount != 1 {
		t.Fatalf("point count = %d, want 1", result.PointCount)
	}
	if result.LoopClosure != nil || result.CutDetected != nil {
		t.Fatalf("unexpected detection on first point: %+v", result)
	}

	got, err := f.engine.GetTrail(ctx, "session-a")
	if err != nil {
		t.Fatalf("get trail: %v", err)
	}
	if got.UserID != "user-a" || !got.Active() {
		t.Fatalf("unexpected trail: %+v", got)
	}
	if !got.Cells.Has(hexgrid.Cell(result.CellID)) {
		t.Fatalf("trail cells %v missing %s", got.Cells.Strings(), result.CellID)
	}

	s, err := f.engine.GetSession(ctx, "session-a")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if s.TrailCount != 1 {
		t.Fatalf("trail count = %d, want 1", s.TrailCount)
	}
}

func TestIngestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name      string
		sessionID string
		userID    string
		lat, lng  float64
		code      perrors.Code
	}{
		{"empty session", " ", "user-a", baseLat, baseLng, perrors.CodeSessionIDEmpty},
		{"empty user", "session-a", "", baseLat, baseLng, perrors.CodeUserIDEmpty},
		{"latitude high", "session-a", "user-a", 91, baseLng, perrors.CodeLatitudeRange},
		{"longitude low", "session-a", "user-a", baseLat, -181, perrors.CodeLongitudeRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.Ingest(ctx, tc.sessionID, tc.userID, tc.lat, tc.lng, time.Time{})
			if perrors.CodeOf(err) != tc.code {
				t.Fatalf("code = %v, want %v (err %v)", perrors.CodeOf(err), tc.code, err)
			}
		})
	}
}

func TestIngestRejectsInactiveTrail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.Ingest(ctx, "session-a", "user-a", baseLat, baseLng, time.Time{}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if err := f.trails.MarkCut(ctx, "session-a"); err != nil {
		t.Fatalf("mark cut: %v", err)
	}

	_, err := f.engine.Ingest(ctx, "session-a", "user-a", baseLat, baseLng, time.Time{})
	if perrors.CodeOf(err) != perrors.CodeTrailNotActive {
		t.Fatalf("expected trail-not-active, got %v", err)
	}
}

func TestIngestRejectsForeignUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.Ingest(ctx, "session-a", "user-a", baseLat, baseLng, time.Time{}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	_, err := f.engine.Ingest(ctx, "session-a", "user-b", baseLat, baseLng, time.Time{})
	if perrors.CodeOf(err) != perrors.CodeSessionUserClaims {
		t.Fatalf("expected ownership error, got %v", err)
	}
}

func TestCutDetection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Player A walks two adjacent cells.
	center, err := f.grid.Snap(baseLat, baseLng)
	if err != nil {
		t.Fatalf("snap: %v", err)
	}
	ring := f.grid.Neighbors(center)
	if len(ring) != 6 {
		t.Fatalf("expected 6 neighbors, got %d", len(ring))
	}

	aLat1, aLng1 := coordOf(t, f.grid, center)
	aLat2, aLng2 := coordOf(t, f.grid, ring[0])
	if _, err := f.engine.Ingest(ctx, "session-a", "user-a", aLat1, aLng1, time.Time{}); err != nil {
		t.Fatalf("ingest a1: %v", err)
	}
	if _, err := f.engine.Ingest(ctx, "session-a", "user-a", aLat2, aLng2, time.Time{}); err != nil {
		t.Fatalf("ingest a2: %v", err)
	}

	// Player B walks from a distant cell into A's path.
	bLat1, bLng1 := coordOf(t, f.grid, ring[3])
	if _, err := f.engine.Ingest(ctx, "session-b", "user-b", bLat1, bLng1, time.Time{}); err != nil {
		t.Fatalf("ingest b1: %v", err)
	}
	result, err := f.engine.Ingest(ctx, "session-b", "user-b", aLat1, aLng1, time.Time{})
	if err != nil {
		t.Fatalf("ingest b2: %v", err)
	}

	if result.CutDetected == nil {
		t.Fatal("expected a cut")
	}
	if result.CutDetected.VictimID != "user-a" {
		t.Fatalf("victim = %q, want user-a", result.CutDetected.VictimID)
	}
	if len(result.CutDetected.IntersectionCells) == 0 {
		t.Fatal("expected intersection cells")
	}
	if result.CutDetected.Location.Cell != center {
		t.Fatalf("cut location = %s, want %s", result.CutDetected.Location.Cell, center)
	}

	victim, err := f.engine.GetTrail(ctx, "session-a")
	if err != nil {
		t.Fatalf("get victim trail: %v", err)
	}
	if victim.Status != trail.StatusCut {
		t.Fatalf("victim status = %q, want cut", victim.Status)
	}

	// The attacker's own trail stays active.
	attacker, err := f.engine.GetTrail(ctx, "session-b")
	if err != nil {
		t.Fatalf("get attacker trail: %v", err)
	}
	if !attacker.Active() {
		t.Fatalf("attacker status = %q, want active", attacker.Status)
	}

	// Both players see the event.
	for _, userID := range []string{"user-a", "user-b"} {
		events, err := f.engine.RecentCuts(ctx, userID, 10)
		if err != nil {
			t.Fatalf("recent cuts for %s: %v", userID, err)
		}
		if len(events) != 1 || events[0].ID != result.CutDetected.CutID {
			t.Fatalf("unexpected events for %s: %v", userID, events)
		}
	}
}

func TestNoCutBetweenOwnSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.Ingest(ctx, "session-a", "user-a", baseLat, baseLng, time.Time{}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := f.engine.Ingest(ctx, "session-b", "user-a", baseLat+0.01, baseLng, time.Time{}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	result, err := f.engine.Ingest(ctx, "session-b", "user-a", baseLat, baseLng, time.Time{})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.CutDetected != nil {
		t.Fatalf("unexpected cut between one player's sessions: %+v", result.CutDetected)
	}
}

func TestNoCutOnDisjointTrails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.Ingest(ctx, "session-a", "user-a", baseLat, baseLng, time.Time{}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := f.engine.Ingest(ctx, "session-b", "user-b", baseLat+1, baseLng+1, time.Time{}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	result, err := f.engine.Ingest(ctx, "session-b", "user-b", baseLat+1.01, baseLng+1, time.Time{})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.CutDetected != nil {
		t.Fatalf("unexpected cut on disjoint trails: %+v", result.CutDetected)
	}
}

func TestLoopClosureAroundClaimedCell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	center, err := f.grid.Snap(baseLat, baseLng)
	if err != nil {
		t.Fatalf("snap: %v", err)
	}
	ring := f.grid.Neighbors(center)
	if len(ring) != 6 {
		t.Fatalf("expected 6 neighbors, got %d", len(ring))
	}

	// The player already owns the center cell and one ring cell, so the
	// walk around the ring touches owned ground.
	f.claims.cells["user-a"] = []string{string(center), string(ring[0])}

	var last IngestResult
	for _, cell := range ring {
		lat, lng := coordOf(t, f.grid, cell)
		last, err = f.engine.Ingest(ctx, "session-a", "user-a", lat, lng, time.Time{})
		if err != nil {
			t.Fatalf("ingest %s: %v", cell, err)
		}
	}

	if last.LoopClosure == nil {
		t.Fatal("expected a loop closure after walking the ring")
	}
	if last.LoopClosure.AreaM2 <= 0 {
		t.Fatalf("area = %f, want positive", last.LoopClosure.AreaM2)
	}
	enclosed := hexgrid.CellSetFromStrings(last.LoopClosure.Cells)
	if !enclosed.Has(center) {
		t.Fatalf("enclosed %v missing center %s", last.LoopClosure.Cells, center)
	}
}

func TestNoClosureUnderThreePoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	center, err := f.grid.Snap(baseLat, baseLng)
	if err != nil {
		t.Fatalf("snap: %v", err)
	}
	f.claims.cells["user-a"] = []string{string(center)}

	lat, lng := coordOf(t, f.grid, center)
	if _, err := f.engine.Ingest(ctx, "session-a", "user-a", lat, lng, time.Time{}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	result, err := f.engine.Ingest(ctx, "session-a", "user-a", lat, lng, time.Time{})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.LoopClosure != nil {
		t.Fatalf("unexpected closure with two points: %+v", result.LoopClosure)
	}
}

func TestEndSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.StartSession(ctx, "session-a", "user-a", ""); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if _, err := f.engine.Ingest(ctx, "session-a", "user-a", baseLat, baseLng, time.Time{}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if err := f.engine.EndSession(ctx, "session-a"); err != nil {
		t.Fatalf("end session: %v", err)
	}

	// Both reads observe the same absence a TTL expiry would produce.
	if _, err := f.engine.GetTrail(ctx, "session-a"); perrors.CodeOf(err) != perrors.CodeNotFound {
		t.Fatalf("expected not-found trail, got %v", err)
	}
	if _, err := f.engine.GetSession(ctx, "session-a"); perrors.CodeOf(err) != perrors.CodeNotFound {
		t.Fatalf("expected not-found session, got %v", err)
	}
	if _, err := f.kv.Get(ctx, streamKey("session-a")); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted gps stream, got %v", err)
	}

	// Ending twice is a no-op.
	if err := f.engine.EndSession(ctx, "session-a"); err != nil {
		t.Fatalf("second end: %v", err)
	}
}

// stalledReads delegates to the wrapped store but hangs every Get until
// the call's context is done.
type stalledReads struct {
	store.KeyedStore
}

func (s stalledReads) Get(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestIngestFailsFastOnStalledStore(t *testing.T) {
	grid, err := hexgrid.New(9)
	if err != nil {
		t.Fatalf("new grid: %v", err)
	}
	kv := store.WithTimeout(stalledReads{memory.New()}, 25*time.Millisecond)
	claims := &fakeLedger{cells: map[string][]string{}}
	stores := Stores{
		Trails:    trail.NewStore(kv, time.Hour),
		Sessions:  session.NewManager(kv, time.Hour),
		Territory: territory.NewCache(kv, claims, time.Hour),
		Cuts:      cutlog.NewLog(kv),
		KV:        kv,
	}
	e, err := New(grid, stores, Config{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	start := time.Now()
	_, err = e.Ingest(context.Background(), "session-a", "user-a", baseLat, baseLng, time.Time{})
	if perrors.CodeOf(err) != perrors.CodeStoreUnavailable {
		t.Fatalf("expected store-unavailable, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("ingest took %v, expected the per-op deadline to fail it fast", elapsed)
	}
}

func TestIngestRecordsGPSStream(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.Ingest(ctx, "session-a", "user-a", baseLat, baseLng, time.Time{}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	entries, err := f.kv.ListRange(ctx, streamKey("session-a"), 10)
	if err != nil {
		t.Fatalf("list stream: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 stream entry, got %d", len(entries))
	}
}
