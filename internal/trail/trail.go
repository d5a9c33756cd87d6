// Package trail models a session's in-progress path and persists it in the
// ephemeral keyed store.
package trail

import (
	"time"

	"github.com/louisbranch/hexstride/internal/geo"
	"github.com/louisbranch/hexstride/internal/hexgrid"
)

// Status describes the lifecycle state of a trail. The values double as the
// wire encoding in the keyed store.
type Status string

const (
	// StatusActive indicates the trail is accumulating points.
	StatusActive Status = "active"
	// StatusCut indicates another player's trail crossed this one.
	StatusCut Status = "cut"
	// StatusCompleted indicates the trail closed a loop and was retired.
	StatusCompleted Status = "completed"
)

// Point is one GPS fix resolved to a cell. Immutable once created.
type Point struct {
	Lat        float64      `json:"lat"`
	Lng        float64      `json:"lng"`
	Cell       hexgrid.Cell `json:"cell"`
	CapturedAt time.Time    `json:"captured_at"`
	SessionID  string       `json:"session_id"`
}

// Trail is the in-progress path of one play session. A trail is owned
// exclusively by its session for its lifetime.
type Trail struct {
	SessionID string
	UserID    string
	// Points holds the path in insertion order, capped by the ingestion
	// pipeline; the oldest points drop first.
	Points []Point
	// Cells is the set of cells derived from Points; duplicates collapse.
	Cells  hexgrid.CellSet
	Status Status
	// LengthMeters is the cumulative great-circle length over Points.
	LengthMeters float64
	// ClaimedSnapshot is the territory the owner held at trail start. It is
	// cached on the trail, not re-fetched per point.
	ClaimedSnapshot hexgrid.CellSet
	LastUpdated     time.Time
}

// New creates an active trail from its first point.
func New(sessionID, userID string, claimed hexgrid.CellSet, first Point) Trail {
	if claimed == nil {
		claimed = make(hexgrid.CellSet)
	}
	return Trail{
		SessionID:       sessionID,
		UserID:          userID,
		Points:          []Point{first},
		Cells:           hexgrid.NewCellSet(first.Cell),
		Status:          StatusActive,
		LengthMeters:    0,
		ClaimedSnapshot: claimed,
		LastUpdated:     first.CapturedAt,
	}
}

// Append adds a point to the trail, dropping the oldest points beyond
// maxPoints, and recomputes the derived cell set and length so the
// cells == {p.cell for p in points} invariant holds.
func (t *Trail) Append(p Point, maxPoints int) {
	t.Points = append(t.Points, p)
	if maxPoints > 0 && len(t.Points) > maxPoints {
		t.Points = t.Points[len(t.Points)-maxPoints:]
	}

	cells := make(hexgrid.CellSet, len(t.Points))
	coords := make([]geo.Coord, len(t.Points))
	for i, point := range t.Points {
		cells.Add(point.Cell)
		coords[i] = geo.Coord{Lat: point.Lat, Lng: point.Lng}
	}
	t.Cells = cells
	t.LengthMeters = geo.PathLength(coords)
	t.LastUpdated = p.CapturedAt
}

// Active reports whether the trail still accepts points.
func (t Trail) Active() bool {
	return t.Status == StatusActive
}
