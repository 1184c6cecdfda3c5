package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"terrainroute/internal/pathfinding"
	"terrainroute/internal/planner"
	"terrainroute/internal/route"
	"terrainroute/internal/store"
	"terrainroute/internal/terrain"
)

const defaultHistoryLimit = 20

type routeRequest struct {
	Start          terrain.Cell `json:"start"`
	Goal           terrain.Cell `json:"goal"`
	MaskRadius     *float64     `json:"maskRadius"`
	TimeoutMs      *int64       `json:"timeoutMs"`
	DistInfluence  *float64     `json:"distInfluence"`
	SlopeInfluence *float64     `json:"slopeInfluence"`
	WaterInfluence *float64     `json:"waterInfluence"`
	WaterLevel     *float64     `json:"waterLevel"`
	ClampToWater   *bool        `json:"clampToWater"`
	Spacing        *float64     `json:"spacing"`
}

// plannerRequest converts r, rejecting a timeout above maxTimeout. A
// non-positive maxTimeout leaves timeouts unbounded.
func (r routeRequest) plannerRequest(maxTimeout time.Duration) (planner.Request, error) {
	req := planner.Request{
		Start:          r.Start,
		Goal:           r.Goal,
		MaskRadius:     r.MaskRadius,
		DistInfluence:  r.DistInfluence,
		SlopeInfluence: r.SlopeInfluence,
		WaterInfluence: r.WaterInfluence,
		WaterLevel:     r.WaterLevel,
		ClampToWater:   r.ClampToWater,
	}
	if r.TimeoutMs != nil {
		timeout := time.Duration(*r.TimeoutMs) * time.Millisecond
		if maxTimeout > 0 && *r.TimeoutMs > maxTimeout.Milliseconds() {
			return planner.Request{}, fmt.Errorf("%w: timeoutMs %d exceeds the %v limit", errInvalidRequest, *r.TimeoutMs, maxTimeout)
		}
		req.Timeout = &timeout
	}
	return req, nil
}

type routeResponse struct {
	ID          string                 `json:"id,omitempty"`
	Status      pathfinding.Status     `json:"status"`
	Cost        float64                `json:"cost"`
	Expanded    int                    `json:"expanded"`
	Reopened    int                    `json:"reopened"`
	ElapsedMs   float64                `json:"elapsedMs"`
	Fingerprint string                 `json:"fingerprint"`
	Length      float64                `json:"length"`
	Waypoints   []pathfinding.Waypoint `json:"waypoints"`
	Points      []route.Point          `json:"points,omitempty"`
}

type rebuildRequest struct {
	Seed        *int64   `json:"seed"`
	HeightScale *float64 `json:"heightScale"`
	OffsetX     *float64 `json:"offsetX"`
	OffsetZ     *float64 `json:"offsetZ"`
	MaskRadius  *float64 `json:"maskRadius"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.planner.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"fingerprint": snap.Grid.Fingerprint().String(),
		"nodes":       snap.Grid.Len(),
		"builtAt":     snap.BuiltAt.UTC(),
		"metrics":     s.planner.Metrics(),
	})
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		writeError(w, readStatus(err), err)
		return
	}
	resp, err := s.planRoute(r.Context(), body)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// planRoute validates and runs one encoded route request. It backs both
// the HTTP and the websocket endpoint.
func (s *Server) planRoute(ctx context.Context, body []byte) (routeResponse, error) {
	var req routeRequest
	if err := decode(s.schemas.route, body, &req); err != nil {
		return routeResponse{}, err
	}
	plannerReq, err := req.plannerRequest(s.cfg.MaxTimeout.Duration())
	if err != nil {
		return routeResponse{}, err
	}
	result, err := s.planner.FindPath(ctx, plannerReq)
	if err != nil {
		return routeResponse{}, err
	}

	found := result.Route
	_, surface := route.Length(found.Waypoints)
	resp := routeResponse{
		ID:          result.ID,
		Status:      found.Status,
		Cost:        found.Cost,
		Expanded:    found.Expanded,
		Reopened:    found.Reopened,
		ElapsedMs:   float64(found.Elapsed) / float64(time.Millisecond),
		Fingerprint: result.Fingerprint,
		Length:      surface,
		Waypoints:   found.Waypoints,
	}
	if resp.Waypoints == nil {
		resp.Waypoints = []pathfinding.Waypoint{}
	}
	if req.Spacing != nil && found.Status == pathfinding.StatusFound {
		snap := result.Snapshot
		points, err := route.Resample(found.Waypoints, *req.Spacing, snap.Field, snap.Terrain.HeightScale)
		if err != nil {
			return routeResponse{}, err
		}
		if req.ClampToWater == nil || *req.ClampToWater {
			points = route.ClampPoints(points, result.Profile.Cost.WaterLevel)
		}
		resp.Points = points
	}
	return resp, nil
}

func (s *Server) handleRecentRoutes(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, errors.New("route history is disabled"))
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("invalid limit parameter"))
			return
		}
		limit = n
	}
	records, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	counts, err := s.history.Counts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	totals := make(map[string]int, len(counts))
	for status, n := range counts {
		totals[status.String()] = n
	}
	if records == nil {
		records = []store.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"routes": records, "totals": totals})
}

func (s *Server) handleStoredRoute(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, errors.New("route history is disabled"))
		return
	}
	rec, err := s.history.Route(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		writeError(w, readStatus(err), err)
		return
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	var req rebuildRequest
	if err := decode(s.schemas.rebuild, body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	current := s.planner.Snapshot()
	cfg := current.Terrain
	cfg.Octaves = append(cfg.Octaves[:0:0], cfg.Octaves...)
	if req.Seed != nil {
		cfg.Seed = *req.Seed
	}
	if req.HeightScale != nil {
		cfg.HeightScale = *req.HeightScale
	}
	if req.OffsetX != nil {
		cfg.OffsetX = *req.OffsetX
	}
	if req.OffsetZ != nil {
		cfg.OffsetZ = *req.OffsetZ
	}
	radius := s.planner.Profile().MaskRadius
	if req.MaskRadius != nil {
		radius = *req.MaskRadius
	}

	snap, err := s.planner.Rebuild(r.Context(), cfg, radius)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	resp := map[string]any{
		"fingerprint": snap.Grid.Fingerprint().String(),
		"nodes":       snap.Grid.Len(),
		"seed":        snap.Terrain.Seed,
	}
	if snap.Masks != nil {
		resp["maskRadius"] = snap.Masks.Radius()
		resp["maskEntries"] = snap.Masks.Entries()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	reader := io.Reader(r.Body)
	if s.cfg.MaxRequestBytes > 0 {
		reader = http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestBytes)
	}
	return io.ReadAll(reader)
}

func readStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errInvalidRequest),
		errors.Is(err, pathfinding.ErrInvalidCoordinate),
		errors.Is(err, pathfinding.ErrInvalidConfiguration),
		errors.Is(err, route.ErrInvalidSpacing):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
