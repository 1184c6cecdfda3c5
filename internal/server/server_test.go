package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terrainroute/internal/config"
	"terrainroute/internal/planner"
	"terrainroute/internal/store"
)

func newTestServer(t *testing.T, withHistory bool) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Terrain.Width = 16
	cfg.Terrain.Depth = 16
	cfg.Search.SlopeInfluence = 1
	cfg.Search.Timeout = config.Duration(5 * time.Second)
	cfg.Server.MaxRequestBytes = 1024

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := []planner.Option{planner.WithLogger(logger)}
	var history History
	if withHistory {
		st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "routes.db"))
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
		opts = append(opts, planner.WithRecorder(st))
		history = st
	}
	p, err := planner.New(context.Background(), cfg, opts...)
	require.NoError(t, err)

	srv, err := New(cfg.Server, p, history, logger)
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, false)
	rr := do(t, srv.Handler(), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody[map[string]any](t, rr)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, srv.planner.Snapshot().Grid.Fingerprint().String(), body["fingerprint"])
}

func TestRouteFoundAndRecorded(t *testing.T) {
	srv := newTestServer(t, true)
	h := srv.Handler()

	rr := do(t, h, http.MethodPost, "/route", `{"start":{"row":0,"col":0},"goal":{"row":5,"col":6}}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decodeBody[routeResponse](t, rr)
	require.NotEmpty(t, resp.ID)
	if resp.Status.String() == "found" {
		require.NotEmpty(t, resp.Waypoints)
		assert.Equal(t, 0, resp.Waypoints[0].Row)
		assert.Equal(t, 6, resp.Waypoints[len(resp.Waypoints)-1].Col)
	}

	rr = do(t, h, http.MethodGet, "/routes/"+resp.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	rec := decodeBody[store.Record](t, rr)
	assert.Equal(t, resp.ID, rec.ID)
	assert.Equal(t, resp.Status, rec.Status)

	rr = do(t, h, http.MethodGet, "/routes?limit=5", "")
	require.Equal(t, http.StatusOK, rr.Code)
	recent := decodeBody[struct {
		Routes []store.Record  `json:"routes"`
		Totals map[string]int `json:"totals"`
	}](t, rr)
	require.Len(t, recent.Routes, 1)
	assert.Equal(t, 1, recent.Totals[resp.Status.String()])

	rr = do(t, h, http.MethodGet, "/routes/unknown", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = do(t, h, http.MethodGet, "/routes?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouteStartEqualsGoal(t *testing.T) {
	srv := newTestServer(t, false)
	rr := do(t, srv.Handler(), http.MethodPost, "/route", `{"start":{"row":3,"col":4},"goal":{"row":3,"col":4},"clampToWater":false}`)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody[map[string]any](t, rr)
	assert.Equal(t, "found", body["status"])
	assert.Equal(t, 0.0, body["cost"])
	assert.Len(t, body["waypoints"], 1)
	assert.NotContains(t, body, "id")
}

func TestRouteResamplesPoints(t *testing.T) {
	srv := newTestServer(t, false)
	rr := do(t, srv.Handler(), http.MethodPost, "/route",
		`{"start":{"row":0,"col":0},"goal":{"row":0,"col":1},"maskRadius":100,"spacing":0.25}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decodeBody[routeResponse](t, rr)
	require.Equal(t, "found", resp.Status.String())
	require.GreaterOrEqual(t, len(resp.Points), 5)
	last := resp.Points[len(resp.Points)-1]
	assert.Equal(t, 0.0, last.X)
	assert.Equal(t, 1.0, last.Z)
}

func TestRouteRejectsBadRequests(t *testing.T) {
	srv := newTestServer(t, false)
	h := srv.Handler()

	cases := map[string]struct {
		body string
		code int
	}{
		"not json":        {`{`, http.StatusBadRequest},
		"missing goal":    {`{"start":{"row":0,"col":0}}`, http.StatusBadRequest},
		"unknown field":   {`{"start":{"row":0,"col":0},"goal":{"row":1,"col":1},"speed":3}`, http.StatusBadRequest},
		"negative weight": {`{"start":{"row":0,"col":0},"goal":{"row":1,"col":1},"slopeInfluence":-1}`, http.StatusBadRequest},
		"outside grid":    {`{"start":{"row":0,"col":0},"goal":{"row":99,"col":1}}`, http.StatusBadRequest},
		"tiny spacing":    {`{"start":{"row":0,"col":0},"goal":{"row":15,"col":15},"spacing":1e-9}`, http.StatusBadRequest},
		"timeout limit":   {`{"start":{"row":0,"col":0},"goal":{"row":1,"col":1},"timeoutMs":60000}`, http.StatusBadRequest},
		"too large":       {`{"start":{"row":0,"col":0},"goal":{"row":1,"col":1},"pad":"` + strings.Repeat("x", 2048) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/route", tc.body)
			assert.Equal(t, tc.code, rr.Code, rr.Body.String())
			assert.NotEmpty(t, decodeBody[errorResponse](t, rr).Error)
		})
	}

	rr := do(t, h, http.MethodGet, "/route", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestPlannerRequestBoundsTimeout(t *testing.T) {
	ms := int64(1500)
	req, err := routeRequest{TimeoutMs: &ms}.plannerRequest(2 * time.Second)
	require.NoError(t, err)
	require.NotNil(t, req.Timeout)
	assert.Equal(t, 1500*time.Millisecond, *req.Timeout)

	ms = 2001
	_, err = routeRequest{TimeoutMs: &ms}.plannerRequest(2 * time.Second)
	require.ErrorIs(t, err, errInvalidRequest)

	req, err = routeRequest{}.plannerRequest(2 * time.Second)
	require.NoError(t, err)
	assert.Nil(t, req.Timeout)
}

func TestRoutesWithoutHistory(t *testing.T) {
	srv := newTestServer(t, false)
	rr := do(t, srv.Handler(), http.MethodGet, "/routes", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRebuildChangesTerrain(t *testing.T) {
	srv := newTestServer(t, false)
	h := srv.Handler()
	before := srv.planner.Snapshot().Grid.Fingerprint().String()

	rr := do(t, h, http.MethodPost, "/terrain/rebuild", `{"seed":4242,"maskRadius":2}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeBody[map[string]any](t, rr)
	assert.NotEqual(t, before, body["fingerprint"])
	assert.Equal(t, 2.0, body["maskRadius"])
	assert.Equal(t, 4242.0, body["seed"])

	rr = do(t, h, http.MethodPost, "/terrain/rebuild", "")
	require.Equal(t, http.StatusOK, rr.Code)
	// The previous rebuild radius is now the session default.
	assert.Equal(t, 2.0, decodeBody[map[string]any](t, rr)["maskRadius"])

	rr = do(t, h, http.MethodPost, "/terrain/rebuild", `{"seed":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWebsocketRoutes(t *testing.T) {
	srv := newTestServer(t, false)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"start":{"row":1,"col":1},"goal":{"row":1,"col":1}}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"start":{"row":1,"col":1}}`)))

	var first, second wsReply
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))

	assert.Equal(t, 1, first.Seq)
	require.NotNil(t, first.Route)
	assert.Equal(t, "found", first.Route.Status.String())
	assert.Empty(t, first.Error)

	assert.Equal(t, 2, second.Seq)
	assert.Nil(t, second.Route)
	assert.Contains(t, second.Error, "invalid request")
}
