package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/AccuracyTracker/internal/metrics"
	"github.com/Alias1177/AccuracyTracker/internal/snapshot"
	"github.com/Alias1177/AccuracyTracker/models"
)

func newTestClient(url string, m *metrics.Registry) *Client {
	return NewClient(ClientOptions{
		BaseURL:         url + "/",
		RequestTimeout:  time.Second,
		RequestsPerSec:  100,
		MaxRetries:      1,
		MaxRetryTimeout: time.Second,
		Metrics:         m,
	})
}

func TestFetchSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/index/analyze", r.URL.Path)
		assert.Equal(t, "banknifty", r.URL.Query().Get("index"))
		assert.Equal(t, "5", r.URL.Query().Get("interval"))
		assert.Equal(t, "5", r.URL.Query().Get("days"))

		_, _ = io.WriteString(w, `{"success": true, "data": {
			"index": "BANKNIFTY",
			"last_candle_timestamp": 1709284500,
			"price": 48120.4,
			"mtf_prediction": {
				"5m": {"direction": "DOWN", "probability": 0.58, "confidence": "MEDIUM"},
				"1h": {"direction": "UNKNOWN"},
				"mtf_bias": "BEARISH"
			}
		}}`)
	}))
	defer srv.Close()

	m := metrics.New(prometheus.NewRegistry())
	c := newTestClient(srv.URL, m)

	snap, err := c.FetchSnapshot(context.Background(), "banknifty")
	require.NoError(t, err)

	assert.Equal(t, "banknifty", snap.Instrument)
	assert.Equal(t, models.Timestamp(1709284500000), snap.SnapshotTime)
	assert.Equal(t, 48120.4, snap.Price)
	assert.Equal(t, models.DirectionDown, snap.Forecasts[models.Timeframe5m].Direction)
	assert.Equal(t, models.ForecastAbsent, snap.Forecasts[models.Timeframe1h].Kind)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamFetches.WithLabelValues("banknifty", "ok")))
}

func TestFetchSnapshotSurfacesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"detail": "Upstox token expired"}`)
	}))
	defer srv.Close()

	m := metrics.New(prometheus.NewRegistry())
	c := newTestClient(srv.URL, m)

	_, err := c.FetchSnapshot(context.Background(), "nifty")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Upstox token expired")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamFetches.WithLabelValues("nifty", "error")))
}

func TestFetchSnapshotWithoutData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success": false, "detail": "market closed"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, nil).FetchSnapshot(context.Background(), "nifty")
	assert.True(t, errors.Is(err, ErrNoData))
	assert.Contains(t, err.Error(), "market closed")
}

func TestFetchSnapshotRejectsIncompleteData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data": {"price": 22000}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, nil).FetchSnapshot(context.Background(), "nifty")
	assert.ErrorIs(t, err, snapshot.ErrInvalidPayload)
}
