package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/AccuracyTracker/internal/config"
	"github.com/Alias1177/AccuracyTracker/internal/metrics"
	"github.com/Alias1177/AccuracyTracker/internal/store"
	"github.com/Alias1177/AccuracyTracker/internal/tracker"
)

// app holds the components shared by all commands
type app struct {
	cfg      *config.Config
	registry *prometheus.Registry
	metrics  *metrics.Registry
	history  *store.HistoryStore
	async    *store.AsyncPersister
	tracker  *tracker.Tracker
}

// newApp opens the configured store and builds the tracker. Long running
// commands persist through a background writer; one-shot commands write
// synchronously.
func newApp(ctx context.Context, cfg *config.Config, background bool) (*app, error) {
	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	backend, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.StoreBackend, err)
	}
	a.history = store.NewHistoryStore(backend, cfg.Timeframes, a.metrics)

	var persister tracker.Persister = a.history
	if background {
		a.async = store.NewAsyncPersister(a.history)
		persister = a.async
	}

	a.tracker = tracker.New(a.history, persister,
		tracker.WithTimeframes(cfg.Timeframes),
		tracker.WithInstruments(cfg.Instruments),
		tracker.WithMetrics(a.metrics),
	)

	log.Info().
		Str("backend", backend.Name()).
		Strs("instruments", cfg.Instruments).
		Str("active", cfg.Instrument).
		Msg("Tracker ready")
	return a, nil
}

// Close drains queued writes and releases the store
func (a *app) Close() {
	if a.async != nil {
		_ = a.async.Close()
	}
	if err := a.history.Close(); err != nil {
		log.Warn().Err(err).Msg("Closing store failed")
	}
}
