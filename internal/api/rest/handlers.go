package rest

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/louisbranch/hexstride/internal/engine"
	"github.com/louisbranch/hexstride/internal/ledger"
	"github.com/louisbranch/hexstride/internal/platform/id"

	perrors "github.com/louisbranch/hexstride/internal/platform/errors"
	"github.com/louisbranch/hexstride/internal/session"
	"github.com/louisbranch/hexstride/internal/territory"
	"github.com/louisbranch/hexstride/internal/trail"
)

// defaultCutLimit bounds cut-feed responses when the client omits a limit.
const defaultCutLimit = 20

// Handler serves the JSON API over the engine. Loop closures surfaced by
// ingestion are applied here: the claim is appended to the ledger, the
// territory cache invalidated, and the session's counters updated.
type Handler struct {
	engine    *engine.Engine
	claims    ledger.ClaimLedger
	territory *territory.Cache
	sessions  *session.Manager
}

// NewHandler creates the API handler.
func NewHandler(e *engine.Engine, claims ledger.ClaimLedger, cache *territory.Cache, sessions *session.Manager) (*Handler, error) {
	if e == nil || claims == nil || cache == nil || sessions == nil {
		return nil, errors.New("all handler collaborators are required")
	}
	return &Handler{engine: e, claims: claims, territory: cache, sessions: sessions}, nil
}

var _ Service = (*Handler)(nil)

type startSessionRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Locality  string `json:"locality"`
}

type sessionResponse struct {
	SessionID        string  `json:"session_id"`
	UserID           string  `json:"user_id"`
	Locality         string  `json:"locality,omitempty"`
	Status           string  `json:"status"`
	StartedAt        string  `json:"started_at"`
	LastActivity     string  `json:"last_activity"`
	TrailCount       int     `json:"trail_count"`
	TotalAreaClaimed float64 `json:"total_area_claimed"`
}

func toSessionResponse(s session.Session) sessionResponse {
	return sessionResponse{
		SessionID:        s.SessionID,
		UserID:           s.UserID,
		Locality:         s.Locality,
		Status:           string(s.Status),
		StartedAt:        s.StartedAt.UTC().Format(time.RFC3339Nano),
		LastActivity:     s.LastActivity.UTC().Format(time.RFC3339Nano),
		TrailCount:       s.TrailCount,
		TotalAreaClaimed: s.TotalAreaClaimed,
	}
}

type ingestRequest struct {
	UserID     string  `json:"user_id"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	CapturedAt string  `json:"captured_at"`
}

type trailResponse struct {
	SessionID    string        `json:"session_id"`
	UserID       string        `json:"user_id"`
	Status       string        `json:"status"`
	LengthMeters float64       `json:"length_m"`
	PointCount   int           `json:"point_count"`
	Cells        []string      `json:"cells"`
	Points       []trail.Point `json:"points"`
}

func toTrailResponse(t trail.Trail) trailResponse {
	return trailResponse{
		SessionID:    t.SessionID,
		UserID:       t.UserID,
		Status:       string(t.Status),
		LengthMeters: t.LengthMeters,
		PointCount:   len(t.Points),
		Cells:        t.Cells.Strings(),
		Points:       t.Points,
	}
}

// HandleStartSession creates a session, minting an id when absent.
func (h *Handler) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, perrors.Wrap(perrors.CodeInputInvalid, "decode request body", err))
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		minted, err := id.NewID()
		if err != nil {
			writeError(w, perrors.Wrap(perrors.CodeStoreUnavailable, "mint session id", err))
			return
		}
		sessionID = minted
	}

	s, err := h.engine.StartSession(r.Context(), sessionID, req.UserID, req.Locality)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(s))
}

// HandleIngestPoint processes one GPS fix. A surfaced loop closure is
// claimed before the response is written so the client never observes a
// closure that was lost.
func (h *Handler) HandleIngestPoint(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, perrors.Wrap(perrors.CodeInputInvalid, "decode request body", err))
		return
	}

	var capturedAt time.Time
	if strings.TrimSpace(req.CapturedAt) != "" {
		parsed, err := time.Parse(time.RFC3339Nano, req.CapturedAt)
		if err != nil {
			writeError(w, perrors.Wrap(perrors.CodeInputInvalid, "parse captured_at", err))
			return
		}
		capturedAt = parsed
	}

	result, err := h.engine.Ingest(r.Context(), sessionID, req.UserID, req.Lat, req.Lng, capturedAt)
	if err != nil {
		writeError(w, err)
		return
	}

	if result.LoopClosure != nil {
		if err := h.applyClaim(r, sessionID, req.UserID, result.LoopClosure); err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, result)
}

// applyClaim persists the enclosed region and retires the closing trail.
// The ledger append is the durable step and fails the request; cache
// invalidation and session counters are best-effort behind it.
func (h *Handler) applyClaim(r *http.Request, sessionID, userID string, closure *engine.LoopClosure) error {
	ctx := r.Context()
	claim := ledger.Claim{
		UserID:    strings.TrimSpace(userID),
		SessionID: sessionID,
		AreaM2:    closure.AreaM2,
		Cells:     closure.Cells,
	}
	if err := h.claims.AppendClaim(ctx, claim); err != nil {
		return perrors.Wrap(perrors.CodeStoreUnavailable, "persist claim", err)
	}

	if err := h.engine.CompleteTrail(ctx, sessionID); err != nil {
		log.Printf("complete trail %s: %v", sessionID, err)
	}
	if err := h.territory.Invalidate(ctx, claim.UserID); err != nil {
		log.Printf("invalidate territory for %s: %v", claim.UserID, err)
	}
	if err := h.sessions.AddAreaClaimed(ctx, sessionID, closure.AreaM2); err != nil {
		log.Printf("add claimed area to %s: %v", sessionID, err)
	}
	return nil
}

// HandleEndSession ends a session and clears its ephemeral state.
func (h *Handler) HandleEndSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := h.engine.EndSession(r.Context(), sessionID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetSession returns session metadata.
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	s, err := h.engine.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(s))
}

// HandleGetTrail returns the session's trail.
func (h *Handler) HandleGetTrail(w http.ResponseWriter, r *http.Request, sessionID string) {
	t, err := h.engine.GetTrail(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTrailResponse(t))
}

// HandleUserCuts returns recent cut events involving the user.
func (h *Handler) HandleUserCuts(w http.ResponseWriter, r *http.Request, userID string) {
	limit := defaultCutLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, perrors.New(perrors.CodeInputInvalid, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	events, err := h.engine.RecentCuts(r.Context(), userID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	code := perrors.CodeOf(err)
	message := err.Error()
	var domainErr *perrors.Error
	if errors.As(err, &domainErr) && domainErr.Message != "" {
		message = domainErr.Message
	}
	writeJSON(w, code.HTTPStatus(), map[string]errorBody{"error": {
		Code:    string(code),
		Message: message,
	}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("encode response: %v", err)
	}
}
