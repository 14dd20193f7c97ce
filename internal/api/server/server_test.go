package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/AccuracyTracker/internal/metrics"
	"github.com/Alias1177/AccuracyTracker/internal/poller"
	"github.com/Alias1177/AccuracyTracker/internal/store"
	"github.com/Alias1177/AccuracyTracker/internal/tracker"
	"github.com/Alias1177/AccuracyTracker/models"
)

type staticSource struct{}

func (staticSource) FetchSnapshot(context.Context, string) (models.Snapshot, error) {
	return models.Snapshot{}, nil
}

func newTestServer(t *testing.T) (*Server, *tracker.Tracker) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	hs := store.NewHistoryStore(store.NewMemoryBackend(), models.DefaultTimeframes, m)
	tr := tracker.New(hs, hs,
		tracker.WithInstruments([]string{"nifty", "banknifty", "sensex"}),
		tracker.WithMetrics(m),
		tracker.WithClock(func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }),
	)
	p := poller.New(staticSource{}, tr, "nifty", time.Minute)
	return New(tr, p, reg), tr
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func snapshotJSON(minute int, price float64, direction string) string {
	return fmt.Sprintf(`{"instrument":"nifty","snapshot_time":%d,"price":%g,`+
		`"forecasts":{"5m":{"direction":%q,"probability":0.6,"confidence":"HIGH"}}}`,
		1709284500+minute*60, price, direction)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestIngestAndAccuracy(t *testing.T) {
	s, _ := newTestServer(t)

	// Rising prices every 5 minutes: each UP forecast is judged correct
	for i := 0; i < 5; i++ {
		rec := do(t, s, http.MethodPost, "/api/snapshots", snapshotJSON(i*5, 100+float64(i), "UP"))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := do(t, s, http.MethodPost, "/api/snapshots", snapshotJSON(20, 200, "UP"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"duplicate":true}`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/accuracy/nifty", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp accuracyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "nifty", resp.Instrument)
	require.Len(t, resp.Timeframes, 3)

	fiveMin := resp.Timeframes[0]
	assert.Equal(t, "5 Min", fiveMin.Label)
	require.NotNil(t, fiveMin.Accuracy)
	assert.Equal(t, "100.0%", *fiveMin.Accuracy)
	assert.Equal(t, 4, fiveMin.Resolved)
	assert.Equal(t, 1, fiveMin.Pending)
	assert.Equal(t, "100.0%", *fiveMin.ByConfidence["HIGH"].Accuracy)

	hour := resp.Timeframes[2]
	assert.Nil(t, hour.Accuracy)
	assert.Equal(t, "Insufficient data (need 3+ scored predictions)", hour.Hint)
}

func TestIngestErrors(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{name: "not json", path: "/api/snapshots", body: `{`, status: http.StatusBadRequest},
		{name: "missing time", path: "/api/snapshots", body: `{"instrument":"nifty","price":1}`, status: http.StatusBadRequest},
		{name: "negative price", path: "/api/snapshots", body: `{"instrument":"nifty","snapshot_time":1709284500,"price":-1}`, status: http.StatusBadRequest},
		{name: "unknown instrument", path: "/api/snapshots", body: `{"instrument":"dax","snapshot_time":1709284500,"price":1}`, status: http.StatusNotFound},
		{name: "instrument from query", path: "/api/snapshots?instrument=sensex", body: `{"snapshot_time":1709284500,"price":72000}`, status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestHistory(t *testing.T) {
	s, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/snapshots", snapshotJSON(0, 100, "DOWN")).Code)

	rec := do(t, s, http.MethodGet, "/api/history/nifty/5m", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var records []models.PredictionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, models.DirectionDown, records[0].Direction)
	assert.Equal(t, models.Timestamp(1709284500000), records[0].SnapshotTime)

	rec = do(t, s, http.MethodGet, "/api/history/nifty/15m", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/history/nifty/soon", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/history/nifty/30m", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/history/dax/5m", "").Code)
}

func TestInstrumentSwitch(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/instrument", "")
	assert.JSONEq(t, `{"instrument":"nifty"}`, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/instrument", `{"instrument":"BankNifty"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"instrument":"banknifty"}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodPost, "/api/instrument", `{"instrument":"dax"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/instrument", `{}`).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/snapshots", snapshotJSON(0, 100, "UP")).Code)

	rec := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `accuracy_tracker_ingests_total{instrument="nifty",result="processed"} 1`)
}
