package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/Alias1177/AccuracyTracker/internal/report"
	"github.com/Alias1177/AccuracyTracker/internal/snapshot"
	"github.com/Alias1177/AccuracyTracker/internal/tracker"
	"github.com/Alias1177/AccuracyTracker/models"
)

const maxBodyBytes = 1 << 20

// Tracker is the part of the tracker the API serves
type Tracker interface {
	Ingest(ctx context.Context, snap models.Snapshot) (tracker.IngestResult, error)
	History(ctx context.Context, instrument string) (models.TimeframeHistory, error)
	Timeframes() []models.Timeframe
}

// Switcher changes the instrument polled from upstream
type Switcher interface {
	Active() string
	Switch(ctx context.Context, instrument string) error
}

// Server exposes accuracy, history and ingestion over HTTP.
type Server struct {
	tracker  Tracker
	switcher Switcher
	gatherer prometheus.Gatherer
	router   *mux.Router
	logger   zerolog.Logger
}

// New builds the router. switcher and gatherer may be nil, in which case the
// instrument and metrics endpoints are not registered.
func New(tr Tracker, switcher Switcher, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		tracker:  tr,
		switcher: switcher,
		gatherer: gatherer,
		router:   mux.NewRouter(),
		logger:   log.With().Str("component", "api").Logger(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.logRequests)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/accuracy/{instrument}", s.handleAccuracy).Methods(http.MethodGet)
	api.HandleFunc("/history/{instrument}/{timeframe}", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/snapshots", s.handleIngest).Methods(http.MethodPost)
	if s.switcher != nil {
		api.HandleFunc("/instrument", s.handleGetInstrument).Methods(http.MethodGet)
		api.HandleFunc("/instrument", s.handleSwitchInstrument).Methods(http.MethodPost)
	}

	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("took", time.Since(start)).Msg("Request served")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type confidenceJSON struct {
	Accuracy *string `json:"accuracy"`
	Resolved int     `json:"resolved"`
	Correct  int     `json:"correct"`
}

type timeframeJSON struct {
	Timeframe    models.Timeframe          `json:"timeframe"`
	Label        string                    `json:"label"`
	Accuracy     *string                   `json:"accuracy"`
	Percent      *float64                  `json:"percent"`
	Resolved     int                       `json:"resolved"`
	Correct      int                       `json:"correct"`
	Pending      int                       `json:"pending"`
	Hint         string                    `json:"hint,omitempty"`
	ByConfidence map[string]confidenceJSON `json:"by_confidence,omitempty"`
}

type accuracyResponse struct {
	Instrument string          `json:"instrument"`
	MinSamples int             `json:"min_samples"`
	Timeframes []timeframeJSON `json:"timeframes"`
}

func (s *Server) handleAccuracy(w http.ResponseWriter, r *http.Request) {
	instrument := mux.Vars(r)["instrument"]

	history, err := s.tracker.History(r.Context(), instrument)
	if err != nil {
		s.writeTrackerError(w, err)
		return
	}

	rep := report.Build(instrument, history, s.tracker.Timeframes())
	resp := accuracyResponse{Instrument: rep.Instrument, MinSamples: models.MinSamples}
	for _, tf := range rep.Timeframes {
		item := timeframeJSON{
			Timeframe: tf.Timeframe,
			Label:     tf.Label,
			Resolved:  tf.Stat.Resolved,
			Correct:   tf.Stat.Correct,
			Pending:   tf.Stat.Pending,
		}
		if tf.Stat.Sufficient {
			label, percent := tf.Stat.String(), tf.Stat.Percent
			item.Accuracy, item.Percent = &label, &percent
		} else {
			item.Hint = report.InsufficientHint
		}
		for conf, stat := range tf.Confidence {
			if conf == "" {
				continue
			}
			if item.ByConfidence == nil {
				item.ByConfidence = make(map[string]confidenceJSON)
			}
			cj := confidenceJSON{Resolved: stat.Resolved, Correct: stat.Correct}
			if stat.Sufficient {
				label := stat.String()
				cj.Accuracy = &label
			}
			item.ByConfidence[conf] = cj
		}
		resp.Timeframes = append(resp.Timeframes, item)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	tf, err := models.ParseTimeframe(vars["timeframe"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	history, err := s.tracker.History(r.Context(), vars["instrument"])
	if err != nil {
		s.writeTrackerError(w, err)
		return
	}

	records, ok := history[tf]
	if !ok {
		writeError(w, http.StatusNotFound, "timeframe not tracked")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading body failed")
		return
	}
	if len(body) > maxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "snapshot too large")
		return
	}

	snap, err := snapshot.Parse(body, r.URL.Query().Get("instrument"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.tracker.Ingest(r.Context(), snap)
	if err != nil {
		s.writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetInstrument(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"instrument": s.switcher.Active()})
}

func (s *Server) handleSwitchInstrument(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading body failed")
		return
	}
	instrument := gjson.GetBytes(body, "instrument").String()
	if instrument == "" {
		writeError(w, http.StatusBadRequest, "instrument required")
		return
	}

	if err := s.switcher.Switch(r.Context(), instrument); err != nil {
		s.writeTrackerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"instrument": s.switcher.Active()})
}

func (s *Server) writeTrackerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tracker.ErrUnknownInstrument):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, tracker.ErrInvalidSnapshot):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
