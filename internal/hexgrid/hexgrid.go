// Package hexgrid maps geographic coordinates onto a fixed-resolution
// hexagonal tiling of the sphere.
//
// Coordinates are projected with the sinusoidal projection (equal-area) and
// snapped to a pointy-top hexagon lattice in projected meters. Cell
// identifiers embed the resolution, so identifiers minted at different
// resolutions never collide. Each resolution step shrinks cell area by a
// factor of seven, mirroring aperture-7 hierarchical tilings.
package hexgrid

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrLatitudeRange indicates a latitude outside [-90, 90].
	ErrLatitudeRange = errors.New("latitude out of range [-90, 90]")
	// ErrLongitudeRange indicates a longitude outside [-180, 180].
	ErrLongitudeRange = errors.New("longitude out of range [-180, 180]")
	// ErrResolutionRange indicates an unsupported grid resolution.
	ErrResolutionRange = errors.New("resolution out of range [0, 15]")
	// ErrMalformedCell indicates a cell identifier that does not parse.
	ErrMalformedCell = errors.New("malformed cell identifier")
)

// EarthRadiusM is the fixed Earth radius used by the projection, in meters.
const EarthRadiusM = 6371000.0

// res0CircumradiusM is the hexagon circumradius at resolution 0. Finer
// resolutions divide the circumradius by sqrt(7) per step, so cell area
// shrinks sevenfold per resolution. At resolution 9 the circumradius is
// roughly 174 m, comparable to the source system's tiling.
const res0CircumradiusM = 1107000.0

// MaxResolution is the finest supported grid resolution.
const MaxResolution = 15

// Cell identifies one hexagon at a specific resolution.
type Cell string

// Grid performs spatial-index operations at a fixed resolution. Grid is
// stateless and safe for concurrent use.
type Grid struct {
	resolution int
	size       float64 // hexagon circumradius in projected meters
}

// New creates a grid at the given resolution.
func New(resolution int) (*Grid, error) {
	if resolution < 0 || resolution > MaxResolution {
		return nil, ErrResolutionRange
	}
	return &Grid{
		resolution: resolution,
		size:       res0CircumradiusM / math.Pow(math.Sqrt(7), float64(resolution)),
	}, nil
}

// Resolution returns the grid resolution.
func (g *Grid) Resolution() int {
	if g == nil {
		return 0
	}
	return g.resolution
}

// Snap maps a coordinate to the cell containing it. Two points snapping to
// the same cell are co-located for trail and claim purposes.
func (g *Grid) Snap(lat, lng float64) (Cell, error) {
	if g == nil {
		return "", errors.New("grid is required")
	}
	if lat < -90 || lat > 90 || math.IsNaN(lat) {
		return "", ErrLatitudeRange
	}
	if lng < -180 || lng > 180 || math.IsNaN(lng) {
		return "", ErrLongitudeRange
	}

	x, y := project(lat, lng)
	q, r := g.pixelToAxial(x, y)
	return g.cell(q, r), nil
}

// Neighbors returns the six cells adjacent to cell at the same resolution.
// The input cell must have been minted by a grid at this resolution.
func (g *Grid) Neighbors(cell Cell) []Cell {
	q, r, err := g.axial(cell)
	if err != nil {
		return nil
	}

	// Axial direction vectors for a pointy-top lattice.
	dirs := [6][2]int64{{1, 0}, {1, -1}, {0, -1}, {-1, 0}, {-1, 1}, {0, 1}}
	ring := make([]Cell, 0, len(dirs))
	for _, d := range dirs {
		ring = append(ring, g.cell(q+d[0], r+d[1]))
	}
	return ring
}

// BoundaryCells returns the cells in the set that have at least one neighbor
// outside the set. The result approximates the outline of the covered region.
func (g *Grid) BoundaryCells(cells CellSet) CellSet {
	boundary := make(CellSet)
	for cell := range cells {
		for _, neighbor := range g.Neighbors(cell) {
			if !cells.Has(neighbor) {
				boundary.Add(cell)
				break
			}
		}
	}
	return boundary
}

// AreaM2 returns the total area of the cell set in square meters. Cells at
// one resolution are disjoint by construction, so summation is exact at that
// resolution.
func (g *Grid) AreaM2(cells CellSet) float64 {
	if g == nil {
		return 0
	}
	return float64(len(cells)) * g.cellAreaM2()
}

// Center returns the geographic coordinate of the cell's centroid.
func (g *Grid) Center(cell Cell) (lat, lng float64, err error) {
	q, r, err := g.axial(cell)
	if err != nil {
		return 0, 0, err
	}
	x, y := g.axialToPixel(q, r)
	return unproject(x, y)
}

// cellAreaM2 is the area of one hexagon at this resolution.
func (g *Grid) cellAreaM2() float64 {
	return 3 * math.Sqrt(3) / 2 * g.size * g.size
}

// cell formats a cell identifier from axial coordinates.
func (g *Grid) cell(q, r int64) Cell {
	return Cell(strconv.Itoa(g.resolution) + ":" + strconv.FormatInt(q, 10) + ":" + strconv.FormatInt(r, 10))
}

// axial parses a cell identifier minted at this grid's resolution.
func (g *Grid) axial(cell Cell) (q, r int64, err error) {
	parts := strings.Split(string(cell), ":")
	if len(parts) != 3 {
		return 0, 0, ErrMalformedCell
	}
	resolution, err := strconv.Atoi(parts[0])
	if err != nil || resolution != g.resolution {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedCell, cell)
	}
	q, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedCell, cell)
	}
	r, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedCell, cell)
	}
	return q, r, nil
}

// project maps a coordinate to sinusoidal x/y in meters.
func project(lat, lng float64) (x, y float64) {
	phi := lat * math.Pi / 180
	lambda := lng * math.Pi / 180
	return EarthRadiusM * lambda * math.Cos(phi), EarthRadiusM * phi
}

// unproject inverts the sinusoidal projection.
func unproject(x, y float64) (lat, lng float64, err error) {
	phi := y / EarthRadiusM
	lat = phi * 180 / math.Pi
	if lat < -90 || lat > 90 {
		return 0, 0, ErrLatitudeRange
	}
	cos := math.Cos(phi)
	if cos == 0 {
		return lat, 0, nil
	}
	lng = x / (EarthRadiusM * cos) * 180 / math.Pi
	if lng < -180 || lng > 180 {
		return 0, 0, ErrLongitudeRange
	}
	return lat, lng, nil
}

// pixelToAxial snaps a projected point to the nearest hexagon center.
func (g *Grid) pixelToAxial(x, y float64) (int64, int64) {
	qf := (math.Sqrt(3)/3*x - y/3) / g.size
	rf := (2.0 / 3 * y) / g.size
	return axialRound(qf, rf)
}

// axialToPixel returns the projected center of a hexagon.
func (g *Grid) axialToPixel(q, r int64) (x, y float64) {
	x = g.size * (math.Sqrt(3)*float64(q) + math.Sqrt(3)/2*float64(r))
	y = g.size * 1.5 * float64(r)
	return x, y
}

// axialRound rounds fractional axial coordinates to the containing hexagon
// using cube-coordinate rounding.
func axialRound(qf, rf float64) (int64, int64) {
	sf := -qf - rf

	q := math.Round(qf)
	r := math.Round(rf)
	s := math.Round(sf)

	dq := math.Abs(q - qf)
	dr := math.Abs(r - rf)
	ds := math.Abs(s - sf)

	switch {
	case dq > dr && dq > ds:
		q = -r - s
	case dr > ds:
		r = -q - s
	}
	return int64(q), int64(r)
}
