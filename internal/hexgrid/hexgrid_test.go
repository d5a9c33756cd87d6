package hexgrid

import (
	"math"
	"testing"
)

func mustGrid(t *testing.T, resolution int) *Grid {
	t.Helper()
	g, err := New(resolution)
	if err != nil {
		t.Fatalf("new grid: %v", err)
	}
	return g
}

func TestNewRejectsBadResolution(t *testing.T) {
	if _, err := New(-1); err != ErrResolutionRange {
		t.Fatalf("expected resolution error, got %v", err)
	}
	if _, err := New(MaxResolution + 1); err != ErrResolutionRange {
		t.Fatalf("expected resolution error, got %v", err)
	}
}

func TestSnapValidatesCoordinateRange(t *testing.T) {
	g := mustGrid(t, 9)

	cases := []struct {
		name     string
		lat, lng float64
		want     error
	}{
		{"lat too low", -90.01, 0, ErrLatitudeRange},
		{"lat too high", 90.01, 0, ErrLatitudeRange},
		{"lng too low", 0, -180.01, ErrLongitudeRange},
		{"lng too high", 0, 180.01, ErrLongitudeRange},
		{"lat NaN", math.NaN(), 0, ErrLatitudeRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := g.Snap(tc.lat, tc.lng); err != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestSnapIsDeterministic(t *testing.T) {
	g := mustGrid(t, 9)

	first, err := g.Snap(37.7749, -122.4194)
	if err != nil {
		t.Fatalf("snap: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := g.Snap(37.7749, -122.4194)
		if err != nil {
			t.Fatalf("snap: %v", err)
		}
		if again != first {
			t.Fatalf("snap not deterministic: %q vs %q", again, first)
		}
	}
}

func TestSnapCoLocatesNearbyPoints(t *testing.T) {
	g := mustGrid(t, 9)

	// Points a fraction of a meter from a cell centroid stay in that cell.
	a, err := g.Snap(37.7749, -122.4194)
	if err != nil {
		t.Fatalf("snap a: %v", err)
	}
	lat, lng, err := g.Center(a)
	if err != nil {
		t.Fatalf("center: %v", err)
	}
	b, err := g.Snap(lat+1e-6, lng+1e-6)
	if err != nil {
		t.Fatalf("snap b: %v", err)
	}
	if a != b {
		t.Fatalf("expected co-located cells, got %q and %q", a, b)
	}

	// A kilometer away must land elsewhere.
	far, err := g.Snap(37.784, -122.419)
	if err != nil {
		t.Fatalf("snap far: %v", err)
	}
	if far == a {
		t.Fatal("expected distant point in another cell")
	}
}

func TestResolutionsNeverCollide(t *testing.T) {
	coarse := mustGrid(t, 8)
	fine := mustGrid(t, 9)

	a, err := coarse.Snap(51.5007, -0.1246)
	if err != nil {
		t.Fatalf("snap coarse: %v", err)
	}
	b, err := fine.Snap(51.5007, -0.1246)
	if err != nil {
		t.Fatalf("snap fine: %v", err)
	}
	if a == b {
		t.Fatalf("cells from different resolutions collide: %q", a)
	}
}

func TestNeighborsRing(t *testing.T) {
	g := mustGrid(t, 9)

	cell, err := g.Snap(40.7128, -74.0060)
	if err != nil {
		t.Fatalf("snap: %v", err)
	}

	ring := g.Neighbors(cell)
	if len(ring) != 6 {
		t.Fatalf("expected 6 neighbors, got %d", len(ring))
	}

	seen := NewCellSet(ring...)
	if len(seen) != 6 {
		t.Fatalf("expected distinct neighbors, got %d", len(seen))
	}
	if seen.Has(cell) {
		t.Fatal("cell must not neighbor itself")
	}

	// Adjacency is symmetric on the lattice.
	for _, neighbor := range ring {
		back := NewCellSet(g.Neighbors(neighbor)...)
		if !back.Has(cell) {
			t.Fatalf("neighbor %q does not link back to %q", neighbor, cell)
		}
	}
}

func TestNeighborsMalformedCell(t *testing.T) {
	g := mustGrid(t, 9)
	if ring := g.Neighbors(Cell("bogus")); ring != nil {
		t.Fatalf("expected nil ring for malformed cell, got %v", ring)
	}
	// A cell minted at another resolution is malformed for this grid.
	if ring := g.Neighbors(Cell("8:1:1")); ring != nil {
		t.Fatalf("expected nil ring for foreign resolution, got %v", ring)
	}
}

func TestBoundaryCells(t *testing.T) {
	g := mustGrid(t, 9)

	center, err := g.Snap(48.8566, 2.3522)
	if err != nil {
		t.Fatalf("snap: %v", err)
	}

	// A filled one-ring disk: the center is interior, the ring is boundary.
	disk := NewCellSet(center)
	for _, neighbor := range g.Neighbors(center) {
		disk.Add(neighbor)
	}

	boundary := g.BoundaryCells(disk)
	if boundary.Has(center) {
		t.Fatal("center of a filled disk must not be a boundary cell")
	}
	if len(boundary) != 6 {
		t.Fatalf("expected 6 boundary cells, got %d", len(boundary))
	}

	// A singleton set is its own boundary.
	single := g.BoundaryCells(NewCellSet(center))
	if len(single) != 1 || !single.Has(center) {
		t.Fatalf("expected singleton boundary, got %v", single)
	}
}

func TestAreaM2(t *testing.T) {
	g := mustGrid(t, 9)

	if got := g.AreaM2(NewCellSet()); got != 0 {
		t.Fatalf("expected zero area for empty set, got %f", got)
	}

	one := g.AreaM2(NewCellSet(Cell("9:0:0")))
	if one <= 0 {
		t.Fatalf("expected positive cell area, got %f", one)
	}
	three := g.AreaM2(NewCellSet(Cell("9:0:0"), Cell("9:1:0"), Cell("9:0:1")))
	if math.Abs(three-3*one) > 1e-6 {
		t.Fatalf("expected summation over disjoint cells, got %f vs %f", three, 3*one)
	}

	// One resolution step shrinks cell area sevenfold.
	coarse := mustGrid(t, 8)
	ratio := coarse.AreaM2(NewCellSet(Cell("8:0:0"))) / one
	if math.Abs(ratio-7) > 1e-6 {
		t.Fatalf("expected 7x area ratio between resolutions, got %f", ratio)
	}
}

func TestCenterRoundTrip(t *testing.T) {
	g := mustGrid(t, 9)

	cell, err := g.Snap(35.6762, 139.6503)
	if err != nil {
		t.Fatalf("snap: %v", err)
	}
	lat, lng, err := g.Center(cell)
	if err != nil {
		t.Fatalf("center: %v", err)
	}
	snapped, err := g.Snap(lat, lng)
	if err != nil {
		t.Fatalf("snap center: %v", err)
	}
	if snapped != cell {
		t.Fatalf("cell center snaps to %q, expected %q", snapped, cell)
	}
}
