package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/Alias1177/AccuracyTracker/internal/metrics"
	httpClient "github.com/Alias1177/AccuracyTracker/internal/platform/http"
	"github.com/Alias1177/AccuracyTracker/internal/snapshot"
	"github.com/Alias1177/AccuracyTracker/models"
)

// ErrNoData is returned when the analysis service answers without a data object.
var ErrNoData = errors.New("no analysis data")

// Client reads multi-timeframe forecasts from the index analysis service
type Client struct {
	baseURL    string
	httpClient *httpClient.Client
	metrics    *metrics.Registry
	logger     zerolog.Logger
}

// ClientOptions holds options for creating a new upstream client
type ClientOptions struct {
	BaseURL         string
	RequestTimeout  time.Duration
	RequestsPerSec  int
	MaxRetries      int
	MaxRetryTimeout time.Duration
	Metrics         *metrics.Registry
}

// NewClient creates a new upstream client
func NewClient(options ClientOptions) *Client {
	httpOpts := httpClient.ClientOptions{
		Name:            "upstream",
		Timeout:         options.RequestTimeout,
		RequestsPerSec:  options.RequestsPerSec,
		MaxRetries:      options.MaxRetries,
		MaxRetryTimeout: options.MaxRetryTimeout,
	}

	return &Client{
		baseURL:    strings.TrimRight(options.BaseURL, "/"),
		httpClient: httpClient.NewClient(httpOpts),
		metrics:    options.Metrics,
		logger:     log.With().Str("component", "upstream_client").Logger(),
	}
}

// FetchSnapshot fetches the current analysis of instrument
func (c *Client) FetchSnapshot(ctx context.Context, instrument string) (models.Snapshot, error) {
	snap, err := c.fetch(ctx, instrument)
	c.metrics.UpstreamFetched(instrument, err)
	return snap, err
}

func (c *Client) fetch(ctx context.Context, instrument string) (models.Snapshot, error) {
	params := url.Values{}
	params.Set("index", instrument)
	params.Set("interval", "5")
	params.Set("days", "5")
	endpoint := fmt.Sprintf("%s/api/index/analyze?%s", c.baseURL, params.Encode())

	c.logger.Debug().Str("url", endpoint).Msg("Fetching analysis")

	// Create a new request with context
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.DoRequest(ctx, req)
	if err != nil {
		var statusErr *httpClient.HTTPStatusError
		if errors.As(err, &statusErr) {
			if detail := errorDetail(statusErr.Body); detail != "" {
				return models.Snapshot{}, fmt.Errorf("analysis request failed: %s: %w", detail, err)
			}
		}
		return models.Snapshot{}, fmt.Errorf("analysis request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("reading response body: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return models.Snapshot{}, fmt.Errorf("%w: response is not JSON", snapshot.ErrInvalidPayload)
	}

	data := gjson.GetBytes(body, "data")
	if !data.IsObject() {
		detail := errorDetail(body)
		if detail == "" {
			detail = "empty response"
		}
		c.logger.Warn().Str("instrument", instrument).Str("detail", detail).Msg("Analysis returned no data")
		return models.Snapshot{}, fmt.Errorf("%w: %s", ErrNoData, detail)
	}

	snap, err := snapshot.FromResult(data, instrument)
	if err != nil {
		return models.Snapshot{}, err
	}
	// The request names the instrument; the service echoes it in its own casing
	snap.Instrument = strings.ToLower(strings.TrimSpace(instrument))

	c.logger.Debug().
		Str("instrument", snap.Instrument).
		Int64("snapshot_time", int64(snap.SnapshotTime)).
		Int("forecasts", len(snap.Forecasts)).
		Msg("Fetched analysis")
	return snap, nil
}

func errorDetail(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, key := range []string{"detail", "error", "message"} {
		if v := gjson.GetBytes(body, key); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
