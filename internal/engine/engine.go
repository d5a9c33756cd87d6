// Package engine orchestrates trail ingestion: cell snapping, trail state,
// loop-closure detection, cross-player cut detection, and the session
// lifecycle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/hexstride/internal/cutlog"
	"github.com/louisbranch/hexstride/internal/geo"
	"github.com/louisbranch/hexstride/internal/hexgrid"
	perrors "github.com/louisbranch/hexstride/internal/platform/errors"
	"github.com/louisbranch/hexstride/internal/session"
	"github.com/louisbranch/hexstride/internal/store"
	"github.com/louisbranch/hexstride/internal/territory"
	"github.com/louisbranch/hexstride/internal/trail"
)

// Config carries the engine's game tunables.
type Config struct {
	// MaxTrailPoints caps a trail's stored path; the oldest points drop
	// first.
	MaxTrailPoints int
	// MinLoopAreaM2 is the smallest enclosed region accepted as a closure.
	MinLoopAreaM2 float64
	// StreamMaxLen caps the per-session GPS point stream.
	StreamMaxLen int
	// StreamTTL is the expiry of the per-session GPS point stream.
	StreamTTL time.Duration
}

// Defaults matching the source system's configuration.
const (
	DefaultMaxTrailPoints = 10000
	DefaultMinLoopAreaM2  = 100.0
	DefaultStreamMaxLen   = 1000
	DefaultStreamTTL      = 2 * time.Hour
)

// normalize fills zero-valued tunables with defaults.
func (c Config) normalize() Config {
	if c.MaxTrailPoints <= 0 {
		c.MaxTrailPoints = DefaultMaxTrailPoints
	}
	if c.MinLoopAreaM2 <= 0 {
		c.MinLoopAreaM2 = DefaultMinLoopAreaM2
	}
	if c.StreamMaxLen <= 0 {
		c.StreamMaxLen = DefaultStreamMaxLen
	}
	if c.StreamTTL <= 0 {
		c.StreamTTL = DefaultStreamTTL
	}
	return c
}

// LoopClosure is the signal that a trail enclosed new territory. The caller
// persists the claim; the engine only surfaces the candidate region.
type LoopClosure struct {
	Cells  []string `json:"cells"`
	AreaM2 float64  `json:"area_m2"`
}

// CutResult describes a cut emitted during ingestion. The current user is
// the attacker; the other trail's owner is the victim.
type CutResult struct {
	CutID             string      `json:"cut_id"`
	VictimID          string      `json:"victim_id"`
	IntersectionCells []string    `json:"intersection_cells"`
	Location          trail.Point `json:"location"`
}

// IngestResult is the outcome of one ingested point.
type IngestResult struct {
	CellID       string       `json:"cell_id"`
	LengthMeters float64      `json:"length_m"`
	PointCount   int          `json:"point_count"`
	LoopClosure  *LoopClosure `json:"loop_closure,omitempty"`
	CutDetected  *CutResult   `json:"cut_detected,omitempty"`
}

// Stores groups the engine's injected collaborators.
type Stores struct {
	Trails    *trail.Store
	Sessions  *session.Manager
	Territory *territory.Cache
	Cuts      *cutlog.Log
	KV        store.KeyedStore
}

// Engine is the trail ingestion pipeline. All collaborators are injected at
// construction; the engine holds no ambient global state.
type Engine struct {
	grid   *hexgrid.Grid
	stores Stores
	cfg    Config
	locks  *sessionLocks
	tracer trace.Tracer
	clock  func() time.Time
}

// New creates an engine over the given grid and collaborators.
func New(grid *hexgrid.Grid, stores Stores, cfg Config) (*Engine, error) {
	if grid == nil {
		return nil, errors.New("grid is required")
	}
	if stores.Trails == nil || stores.Sessions == nil || stores.Territory == nil || stores.Cuts == nil || stores.KV == nil {
		return nil, errors.New("all engine stores are required")
	}
	return &Engine{
		grid:   grid,
		stores: stores,
		cfg:    cfg.normalize(),
		locks:  newSessionLocks(),
		tracer: otel.Tracer("hexstride/engine"),
		clock:  time.Now,
	}, nil
}

// WithClock replaces the engine's clock, for tests.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	if clock != nil {
		e.clock = clock
	}
	return e
}

// streamKey is the per-session GPS point stream.
func streamKey(sessionID string) string {
	return "gps:" + sessionID + ":stream"
}

// Ingest processes one GPS fix for a session. Points within one session are
// serialized and applied in submission order; a store fault fails the call
// as a unit, while detection faults are swallowed and logged so the point
// itself is still recorded.
func (e *Engine) Ingest(ctx context.Context, sessionID, userID string, lat, lng float64, capturedAt time.Time) (IngestResult, error) {
	if e == nil {
		return IngestResult{}, errors.New("engine is required")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return IngestResult{}, perrors.New(perrors.CodeSessionIDEmpty, "session id is required")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return IngestResult{}, perrors.New(perrors.CodeUserIDEmpty, "user id is required")
	}

	ctx, span := e.tracer.Start(ctx, "engine.Ingest", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("user.id", userID),
	))
	defer span.End()

	cell, err := e.grid.Snap(lat, lng)
	if err != nil {
		switch {
		case errors.Is(err, hexgrid.ErrLatitudeRange):
			return IngestResult{}, perrors.Wrap(perrors.CodeLatitudeRange, "latitude out of range", err)
		case errors.Is(err, hexgrid.ErrLongitudeRange):
			return IngestResult{}, perrors.Wrap(perrors.CodeLongitudeRange, "longitude out of range", err)
		default:
			return IngestResult{}, perrors.Wrap(perrors.CodeInputInvalid, "snap point", err)
		}
	}

	if capturedAt.IsZero() {
		capturedAt = e.clock().UTC()
	}
	point := trail.Point{
		Lat:        lat,
		Lng:        lng,
		Cell:       cell,
		CapturedAt: capturedAt,
		SessionID:  sessionID,
	}

	// One point per session processed to completion before the next.
	unlock := e.locks.lock(sessionID)
	defer unlock()

	current, err := e.stores.Trails.Get(ctx, sessionID)
	switch {
	case err == nil:
		if !current.Active() {
			return IngestResult{}, perrors.New(perrors.CodeTrailNotActive, "trail no longer accepts points")
		}
		if current.UserID != userID {
			return IngestResult{}, perrors.New(perrors.CodeSessionUserClaims, "session is owned by another user")
		}
		current.Append(point, e.cfg.MaxTrailPoints)
	case errors.Is(err, store.ErrNotFound):
		claimed, terr := e.stores.Territory.Get(ctx, userID)
		if terr != nil {
			return IngestResult{}, perrors.Wrap(perrors.CodeStoreUnavailable, "load claimed territory", terr)
		}
		current = trail.New(sessionID, userID, claimed, point)
		if cerr := e.stores.Sessions.IncrementTrailCount(ctx, sessionID); cerr != nil && !errors.Is(cerr, store.ErrNotFound) {
			return IngestResult{}, perrors.Wrap(perrors.CodeStoreUnavailable, "count trail", cerr)
		}
	default:
		return IngestResult{}, perrors.Wrap(perrors.CodeStoreUnavailable, "load trail", err)
	}

	result := IngestResult{
		CellID:       string(cell),
		LengthMeters: current.LengthMeters,
		PointCount:   len(current.Points),
	}

	if len(current.Points) >= 3 {
		result.LoopClosure = e.detectLoop(current)
	}
	result.CutDetected = e.detectCut(ctx, current, point)

	if err := e.stores.Trails.Put(ctx, current); err != nil {
		return IngestResult{}, perrors.Wrap(perrors.CodeStoreUnavailable, "persist trail", err)
	}

	if err := e.stores.Sessions.Touch(ctx, sessionID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return IngestResult{}, perrors.Wrap(perrors.CodeStoreUnavailable, "touch session", err)
	}

	if err := e.appendStream(ctx, point); err != nil {
		// The stream is auxiliary telemetry; the point is already recorded.
		log.Printf("append gps stream for %s: %v", sessionID, err)
	}

	return result, nil
}

// detectLoop runs loop-closure detection. A detection fault never aborts
// ingestion; it yields "no closure this tick".
func (e *Engine) detectLoop(current trail.Trail) (closure *LoopClosure) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("loop detection for %s: %v", current.SessionID, r)
			closure = nil
		}
	}()

	enclosed := geo.DetectLoopClosure(e.grid, current.Cells, current.ClaimedSnapshot)
	if enclosed == nil {
		return nil
	}
	area := e.grid.AreaM2(enclosed)
	if area < e.cfg.MinLoopAreaM2 {
		return nil
	}
	return &LoopClosure{Cells: enclosed.Strings(), AreaM2: area}
}

// detectCut scans other active trails for a cell intersection. The first
// intersecting trail is cut — single cut per tick — and the victim's trail
// flips status. Faults are swallowed: a failed scan means no cut this tick.
func (e *Engine) detectCut(ctx context.Context, current trail.Trail, latest trail.Point) (cut *CutResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("cut detection for %s: %v", current.SessionID, r)
			cut = nil
		}
	}()

	if len(current.Points) < 2 {
		return nil
	}

	others, err := e.stores.Trails.ActiveOthers(ctx, current.SessionID)
	if err != nil {
		log.Printf("cut detection scan for %s: %v", current.SessionID, err)
		return nil
	}

	for _, other := range others {
		// Self-intersection within one player's trails is never a cut.
		if other.UserID == current.UserID {
			continue
		}
		intersection := current.Cells.Intersection(other.Cells)
		if len(intersection) == 0 {
			continue
		}

		event, err := e.stores.Cuts.Append(ctx, cutlog.Event{
			AttackerID: current.UserID,
			VictimID:   other.UserID,
			SessionID:  current.SessionID,
			Cell:       latest.Cell,
		})
		if err != nil {
			log.Printf("record cut event for %s: %v", current.SessionID, err)
			return nil
		}
		if err := e.stores.Trails.MarkCut(ctx, other.SessionID); err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Printf("mark trail cut for %s: %v", other.SessionID, err)
		}

		return &CutResult{
			CutID:             event.ID,
			VictimID:          other.UserID,
			IntersectionCells: intersection.Strings(),
			Location:          latest,
		}
	}
	return nil
}

// appendStream records the point on the capped per-session GPS stream.
func (e *Engine) appendStream(ctx context.Context, point trail.Point) error {
	raw := fmt.Sprintf(`{"lat":%g,"lng":%g,"cell":%q,"captured_at":%q}`,
		point.Lat, point.Lng, point.Cell, point.CapturedAt.UTC().Format(time.RFC3339Nano))
	return e.stores.KV.ListPush(ctx, streamKey(point.SessionID), raw, e.cfg.StreamMaxLen, e.cfg.StreamTTL)
}

// GetTrail returns a session's trail. Absence maps to the NotFound kind.
func (e *Engine) GetTrail(ctx context.Context, sessionID string) (trail.Trail, error) {
	t, err := e.stores.Trails.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return trail.Trail{}, perrors.Wrap(perrors.CodeNotFound, "trail not found", err)
		}
		return trail.Trail{}, perrors.Wrap(perrors.CodeStoreUnavailable, "load trail", err)
	}
	return t, nil
}

// GetSession returns session metadata. Absence maps to the NotFound kind.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (session.Session, error) {
	s, err := e.stores.Sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return session.Session{}, perrors.Wrap(perrors.CodeNotFound, "session not found", err)
		}
		return session.Session{}, perrors.Wrap(perrors.CodeStoreUnavailable, "load session", err)
	}
	return s, nil
}

// StartSession creates an active session.
func (e *Engine) StartSession(ctx context.Context, sessionID, userID, locality string) (session.Session, error) {
	s, err := e.stores.Sessions.Start(ctx, sessionID, userID, locality)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionIDEmpty):
			return session.Session{}, perrors.Wrap(perrors.CodeSessionIDEmpty, "session id is required", err)
		case errors.Is(err, session.ErrUserIDEmpty):
			return session.Session{}, perrors.Wrap(perrors.CodeUserIDEmpty, "user id is required", err)
		default:
			return session.Session{}, perrors.Wrap(perrors.CodeStoreUnavailable, "start session", err)
		}
	}
	return s, nil
}

// TouchSession refreshes the session's activity and expiry.
func (e *Engine) TouchSession(ctx context.Context, sessionID string) error {
	err := e.stores.Sessions.Touch(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return perrors.Wrap(perrors.CodeNotFound, "session not found", err)
		}
		return perrors.Wrap(perrors.CodeStoreUnavailable, "touch session", err)
	}
	return nil
}

// EndSession ends the session and deletes its trail and point stream.
// Idempotent: ending twice, or ending an expired session, is a no-op.
func (e *Engine) EndSession(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return perrors.New(perrors.CodeSessionIDEmpty, "session id is required")
	}

	unlock := e.locks.lock(sessionID)
	defer unlock()

	if err := e.stores.Sessions.End(ctx, sessionID); err != nil {
		return perrors.Wrap(perrors.CodeStoreUnavailable, "end session", err)
	}
	if err := e.stores.Trails.Delete(ctx, sessionID); err != nil {
		return perrors.Wrap(perrors.CodeStoreUnavailable, "delete trail", err)
	}
	if err := e.stores.KV.Delete(ctx, streamKey(sessionID)); err != nil {
		return perrors.Wrap(perrors.CodeStoreUnavailable, "delete gps stream", err)
	}
	return nil
}

// CompleteTrail retires the trail after its loop closure is claimed. A
// completed trail rejects further points until the session starts a new one.
func (e *Engine) CompleteTrail(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return perrors.New(perrors.CodeSessionIDEmpty, "session id is required")
	}

	unlock := e.locks.lock(sessionID)
	defer unlock()

	current, err := e.stores.Trails.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return perrors.Wrap(perrors.CodeNotFound, "trail not found", err)
		}
		return perrors.Wrap(perrors.CodeStoreUnavailable, "load trail", err)
	}
	current.Status = trail.StatusCompleted
	if err := e.stores.Trails.Put(ctx, current); err != nil {
		return perrors.Wrap(perrors.CodeStoreUnavailable, "persist trail", err)
	}
	return nil
}

// RecentCuts returns recent cut events involving the user.
func (e *Engine) RecentCuts(ctx context.Context, userID string, limit int) ([]cutlog.Event, error) {
	events, err := e.stores.Cuts.RecentForUser(ctx, userID, limit)
	if err != nil {
		return nil, perrors.Wrap(perrors.CodeStoreUnavailable, "load cut events", err)
	}
	return events, nil
}
