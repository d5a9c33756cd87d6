package trail

import (
	"math"
	"testing"
	"time"

	"github.com/louisbranch/hexstride/internal/geo"
	"github.com/louisbranch/hexstride/internal/hexgrid"
)

func testPoint(t *testing.T, g *hexgrid.Grid, lat, lng float64, at time.Time) Point {
	t.Helper()
	cell, err := g.Snap(lat, lng)
	if err != nil {
		t.Fatalf("snap: %v", err)
	}
	return Point{Lat: lat, Lng: lng, Cell: cell, CapturedAt: at, SessionID: "session-1"}
}

func TestNewTrail(t *testing.T) {
	g, err := hexgrid.New(9)
	if err != nil {
		t.Fatalf("new grid: %v", err)
	}
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	first := testPoint(t, g, 37.7749, -122.4194, start)

	tr := New("session-1", "user-1", hexgrid.NewCellSet("9:5:5"), first)

	if tr.Status != StatusActive {
		t.Fatalf("expected active status, got %q", tr.Status)
	}
	if len(tr.Points) != 1 || tr.Points[0].Cell != first.Cell {
		t.Fatalf("unexpected points: %v", tr.Points)
	}
	if len(tr.Cells) != 1 || !tr.Cells.Has(first.Cell) {
		t.Fatalf("unexpected cells: %v", tr.Cells)
	}
	if tr.LengthMeters != 0 {
		t.Fatalf("expected zero length, got %f", tr.LengthMeters)
	}
	if !tr.ClaimedSnapshot.Has("9:5:5") {
		t.Fatal("claimed snapshot lost")
	}
}

func TestAppendMaintainsInvariants(t *testing.T) {
	g, err := hexgrid.New(9)
	if err != nil {
		t.Fatalf("new grid: %v", err)
	}
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tr := New("session-1", "user-1", nil, testPoint(t, g, 0, 0, start))
	var previous float64
	for i := 1; i <= 20; i++ {
		p := testPoint(t, g, 0, float64(i)*0.002, start.Add(time.Duration(i)*time.Second))
		tr.Append(p, 100)

		// cells == {p.cell for p in points} after every append.
		derived := make(hexgrid.CellSet)
		for _, point := range tr.Points {
			derived.Add(point.Cell)
		}
		if len(derived) != len(tr.Cells) {
			t.Fatalf("cells out of sync at %d: %v vs %v", i, tr.Cells, derived)
		}
		for cell := range derived {
			if !tr.Cells.Has(cell) {
				t.Fatalf("missing cell %q", cell)
			}
		}

		// Length matches the pairwise sum and never decreases under the cap.
		coords := make([]geo.Coord, len(tr.Points))
		for j, point := range tr.Points {
			coords[j] = geo.Coord{Lat: point.Lat, Lng: point.Lng}
		}
		if want := geo.PathLength(coords); math.Abs(tr.LengthMeters-want) > 1e-9 {
			t.Fatalf("length = %f, want %f", tr.LengthMeters, want)
		}
		if tr.LengthMeters < previous {
			t.Fatalf("length decreased: %f < %f", tr.LengthMeters, previous)
		}
		previous = tr.LengthMeters
	}
}

func TestAppendCapDropsOldestFirst(t *testing.T) {
	g, err := hexgrid.New(9)
	if err != nil {
		t.Fatalf("new grid: %v", err)
	}
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	const maxPoints = 5

	tr := New("session-1", "user-1", nil, testPoint(t, g, 0, 0, start))
	var last Point
	for i := 1; i <= 9; i++ {
		last = testPoint(t, g, 0, float64(i)*0.002, start.Add(time.Duration(i)*time.Second))
		tr.Append(last, maxPoints)
	}

	if len(tr.Points) != maxPoints {
		t.Fatalf("expected %d points after cap, got %d", maxPoints, len(tr.Points))
	}
	// The most recent point is always retained; the oldest dropped first.
	if got := tr.Points[len(tr.Points)-1]; got.Cell != last.Cell {
		t.Fatalf("most recent point lost: %v", got)
	}
	if tr.Points[0].CapturedAt != start.Add(5*time.Second) {
		t.Fatalf("expected oldest retained point at +5s, got %v", tr.Points[0].CapturedAt)
	}
}
