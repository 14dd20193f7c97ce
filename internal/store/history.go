package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/AccuracyTracker/internal/metrics"
	"github.com/Alias1177/AccuracyTracker/models"
)

// ErrCorruptPayload is returned when a stored sequence cannot be decoded.
var ErrCorruptPayload = errors.New("corrupt history payload")

// HistoryStore maps instrument histories onto a Backend, one key per timeframe.
type HistoryStore struct {
	backend    Backend
	timeframes []models.Timeframe
	metrics    *metrics.Registry
	logger     zerolog.Logger
}

// NewHistoryStore creates a store loading the given timeframes. m may be nil.
func NewHistoryStore(backend Backend, timeframes []models.Timeframe, m *metrics.Registry) *HistoryStore {
	return &HistoryStore{
		backend:    backend,
		timeframes: append([]models.Timeframe(nil), timeframes...),
		metrics:    m,
		logger:     log.With().Str("component", "store").Str("backend", backend.Name()).Logger(),
	}
}

// Backend returns the underlying backend
func (s *HistoryStore) Backend() Backend {
	return s.backend
}

// Load reads every timeframe of instrument. A timeframe that is missing,
// unreadable or corrupt comes back empty without affecting the others.
func (s *HistoryStore) Load(ctx context.Context, instrument string) models.TimeframeHistory {
	h := models.NewTimeframeHistory(s.timeframes)
	for _, tf := range s.timeframes {
		key := Key(instrument, tf)
		records, err := s.LoadTimeframe(ctx, key)
		if err != nil {
			if errors.Is(err, ErrCorruptPayload) {
				s.metrics.PayloadCorrupt(s.backend.Name())
			}
			s.logger.Warn().Err(err).Str("key", key).Msg("Discarding stored history")
			continue
		}
		h[tf] = records
	}
	return h
}

// LoadTimeframe reads and repairs one stored sequence.
func (s *HistoryStore) LoadTimeframe(ctx context.Context, key string) ([]models.PredictionRecord, error) {
	payload, ok, err := s.backend.Read(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok || len(bytes.TrimSpace(payload)) == 0 {
		return []models.PredictionRecord{}, nil
	}

	var records []models.PredictionRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptPayload, key, err)
	}

	repaired, dropped := Repair(records)
	if dropped > 0 {
		s.logger.Warn().Str("key", key).Int("dropped", dropped).Msg("Dropped unusable stored records")
	}
	return repaired, nil
}

// Save writes every timeframe of history, keeping the most recent
// models.MaxHistory records of each. Failures of individual keys are joined;
// the remaining keys are still written.
func (s *HistoryStore) Save(ctx context.Context, instrument string, history models.TimeframeHistory) error {
	tfs := make([]models.Timeframe, 0, len(history))
	for tf := range history {
		tfs = append(tfs, tf)
	}
	sort.Slice(tfs, func(i, j int) bool { return tfs[i] < tfs[j] })

	var errs []error
	for _, tf := range tfs {
		payload, err := json.Marshal(models.Truncate(history[tf], models.MaxHistory))
		if err != nil {
			errs = append(errs, fmt.Errorf("encode %s: %w", tf, err))
			continue
		}
		key := Key(instrument, tf)
		if err := s.backend.Write(ctx, key, payload); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Persist saves history on a best-effort basis; failures are logged and counted.
func (s *HistoryStore) Persist(ctx context.Context, instrument string, history models.TimeframeHistory) {
	if err := s.Save(ctx, instrument, history); err != nil {
		s.metrics.PersistFailed(s.backend.Name())
		s.logger.Warn().Err(err).Str("instrument", instrument).Msg("Failed to persist history")
	}
}

// Close releases the backend
func (s *HistoryStore) Close() error {
	return s.backend.Close()
}

// Repair drops records that can never be scored, makes Outcome and Correct
// agree, orders the rest by snapshot time and keeps the most recent ones.
func Repair(records []models.PredictionRecord) ([]models.PredictionRecord, int) {
	out := make([]models.PredictionRecord, 0, len(records))
	for _, r := range records {
		d, ok := models.ParseDirection(string(r.Direction))
		if !ok || !d.Scorable() || r.SnapshotTime.IsZero() || r.Price <= 0 {
			continue
		}
		r.Direction = d

		if r.Outcome == nil {
			r.Correct = nil
		} else if outcome, ok := models.ParseDirection(string(*r.Outcome)); ok && outcome.Scorable() {
			r = r.Resolve(outcome)
		} else {
			r.Outcome, r.Correct = nil, nil
		}
		out = append(out, r)
	}
	dropped := len(records) - len(out)

	sort.SliceStable(out, func(i, j int) bool { return out[i].SnapshotTime < out[j].SnapshotTime })
	return models.Truncate(out, models.MaxHistory), dropped
}
