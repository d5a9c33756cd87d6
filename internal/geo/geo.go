// Package geo provides great-circle distance and the loop-closure heuristic
// used by trail ingestion.
package geo

import (
	"math"

	"github.com/louisbranch/hexstride/internal/hexgrid"
)

// EarthRadiusM is the fixed Earth radius used for distances, in meters.
// No altitude correction is applied.
const EarthRadiusM = 6371000.0

// minEnclosedCells is the smallest candidate region the loop heuristic will
// report. Smaller regions are noise from the one-ring flood.
const minEnclosedCells = 3

// Coord is a bare geographic coordinate.
type Coord struct {
	Lat float64
	Lng float64
}

// Distance returns the haversine great-circle distance between two
// coordinates in meters.
func Distance(a, b Coord) float64 {
	lat1 := a.Lat * math.Pi / 180
	lng1 := a.Lng * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	lng2 := b.Lng * math.Pi / 180

	dLat := lat2 - lat1
	dLng := lng2 - lng1

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusM * math.Asin(math.Sqrt(h))
}

// PathLength returns the sum of pairwise great-circle distances in path
// order. Fewer than two coordinates yield zero.
func PathLength(coords []Coord) float64 {
	if len(coords) < 2 {
		return 0
	}
	var total float64
	for i := 1; i < len(coords); i++ {
		total += Distance(coords[i-1], coords[i])
	}
	return total
}

// DetectLoopClosure returns the candidate region newly enclosed by a trail,
// or nil when no closure is detected.
//
// The check is a deliberate approximation, not exact polygon containment: a
// closure is only considered when the trail covers at least three cells and
// touches ground the player already owns. The candidate region is the union
// of each trail cell's neighbor ring intersected with the trail and claimed
// cells (a one-ring flood), and regions under three cells are discarded.
// The caller applies the minimum-area threshold. An exact flood fill can
// replace this behind the same signature.
func DetectLoopClosure(grid *hexgrid.Grid, trailCells, claimedCells hexgrid.CellSet) hexgrid.CellSet {
	if grid == nil || len(trailCells) < minEnclosedCells {
		return nil
	}
	if !trailCells.Intersects(claimedCells) {
		return nil
	}

	covered := trailCells.Union(claimedCells)
	enclosed := make(hexgrid.CellSet)
	for cell := range trailCells {
		for _, neighbor := range grid.Neighbors(cell) {
			if covered.Has(neighbor) {
				enclosed.Add(neighbor)
			}
		}
	}

	if len(enclosed) < minEnclosedCells {
		return nil
	}
	return enclosed
}
