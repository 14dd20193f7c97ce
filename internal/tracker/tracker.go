package tracker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/AccuracyTracker/internal/metrics"
	"github.com/Alias1177/AccuracyTracker/models"
)

var (
	// ErrInvalidSnapshot is returned for snapshots that cannot be ingested at all.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
	// ErrUnknownInstrument is returned for instruments outside the configured set.
	ErrUnknownInstrument = errors.New("unknown instrument")
)

// Loader reads the persisted history of an instrument. It never fails;
// unreadable data comes back as empty sequences.
type Loader interface {
	Load(ctx context.Context, instrument string) models.TimeframeHistory
}

// Persister stores a history on a best-effort basis.
type Persister interface {
	Persist(ctx context.Context, instrument string, history models.TimeframeHistory)
}

// pendingSource is implemented by persisters that hold writes not yet stored.
type pendingSource interface {
	Pending(instrument string) (models.TimeframeHistory, bool)
}

type instrumentState struct {
	mu      sync.Mutex
	session *Session
}

// Tracker keeps one session per instrument and serializes ingestion per instrument.
type Tracker struct {
	loader      Loader
	persister   Persister
	timeframes  []models.Timeframe
	instruments map[string]bool
	metrics     *metrics.Registry
	now         func() time.Time
	logger      zerolog.Logger

	mu     sync.Mutex
	states map[string]*instrumentState
}

// Option configures a Tracker
type Option func(*Tracker)

// WithTimeframes sets the tracked timeframes. Defaults to models.DefaultTimeframes.
func WithTimeframes(tfs []models.Timeframe) Option {
	return func(t *Tracker) {
		t.timeframes = append([]models.Timeframe(nil), tfs...)
	}
}

// WithInstruments restricts the tracker to the given instruments.
func WithInstruments(instruments []string) Option {
	return func(t *Tracker) {
		t.instruments = make(map[string]bool, len(instruments))
		for _, inst := range instruments {
			t.instruments[normalizeInstrument(inst)] = true
		}
	}
}

func WithMetrics(m *metrics.Registry) Option {
	return func(t *Tracker) { t.metrics = m }
}

// WithClock replaces time.Now for record creation times.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates a Tracker reading from loader and writing through persister.
func New(loader Loader, persister Persister, opts ...Option) *Tracker {
	t := &Tracker{
		loader:     loader,
		persister:  persister,
		timeframes: append([]models.Timeframe(nil), models.DefaultTimeframes...),
		now:        time.Now,
		logger:     log.With().Str("component", "tracker").Logger(),
		states:     make(map[string]*instrumentState),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Timeframes returns the tracked timeframes in their configured order.
func (t *Tracker) Timeframes() []models.Timeframe {
	return append([]models.Timeframe(nil), t.timeframes...)
}

// Ingest applies one snapshot to its instrument's session and persists the result.
// Only a snapshot that cannot be processed at all yields an error; duplicates,
// malformed forecasts and storage failures are absorbed.
func (t *Tracker) Ingest(ctx context.Context, snap models.Snapshot) (IngestResult, error) {
	snap.Instrument = normalizeInstrument(snap.Instrument)
	if err := t.validate(snap); err != nil {
		t.metrics.IngestObserved(snap.Instrument, "rejected")
		return IngestResult{}, err
	}

	st := t.state(snap.Instrument)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session == nil {
		st.session = NewSession(snap.Instrument, t.load(ctx, snap.Instrument))
	}

	logger := t.logger.With().
		Str("instrument", snap.Instrument).
		Int64("snapshot_time", int64(snap.SnapshotTime)).
		Logger()

	result := Ingest(st.session, snap, t.timeframes, t.now())
	if result.Duplicate {
		logger.Debug().Msg("Snapshot already processed, skipping")
		t.metrics.IngestObserved(snap.Instrument, "duplicate")
		return result, nil
	}

	t.persister.Persist(ctx, snap.Instrument, st.session.History.Clone())

	t.metrics.IngestObserved(snap.Instrument, "processed")
	t.observe(snap.Instrument, st.session.History, result)

	for tf, reason := range result.Skipped {
		fc := snap.Forecasts[tf]
		logger.Warn().Str("timeframe", string(tf)).Str("reason", reason).Str("problem", fc.Problem).
			Msg("Forecast not recorded")
	}
	if n := result.TotalResolved(); n > 0 {
		logger.Info().Int("resolved", n).Int("appended", len(result.Appended)).Msg("Predictions resolved")
	} else {
		logger.Debug().Int("appended", len(result.Appended)).Msg("Snapshot ingested")
	}
	return result, nil
}

// SwitchInstrument makes instrument's persisted namespace current again and
// clears its duplicate guard.
func (t *Tracker) SwitchInstrument(ctx context.Context, instrument string) error {
	instrument = normalizeInstrument(instrument)
	if err := t.checkInstrument(instrument); err != nil {
		return err
	}

	st := t.state(instrument)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.session = NewSession(instrument, t.load(ctx, instrument))
	t.logger.Info().Str("instrument", instrument).Msg("Switched instrument")
	return nil
}

// History returns a copy of the instrument's current history.
func (t *Tracker) History(ctx context.Context, instrument string) (models.TimeframeHistory, error) {
	instrument = normalizeInstrument(instrument)
	if err := t.checkInstrument(instrument); err != nil {
		return nil, err
	}

	st := t.state(instrument)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session == nil {
		st.session = NewSession(instrument, t.load(ctx, instrument))
	}
	return st.session.History.Clone(), nil
}

// Accuracy returns the rolling accuracy of every tracked timeframe.
func (t *Tracker) Accuracy(ctx context.Context, instrument string) (map[models.Timeframe]models.AccuracyStat, error) {
	history, err := t.History(ctx, instrument)
	if err != nil {
		return nil, err
	}
	return AccuracyByTimeframe(history, t.timeframes), nil
}

func (t *Tracker) state(instrument string) *instrumentState {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[instrument]
	if !ok {
		st = &instrumentState{}
		t.states[instrument] = st
	}
	return st
}

// load prefers writes still queued in the persister over the stored copy.
func (t *Tracker) load(ctx context.Context, instrument string) models.TimeframeHistory {
	var h models.TimeframeHistory
	if ps, ok := t.persister.(pendingSource); ok {
		if pending, ok := ps.Pending(instrument); ok {
			h = pending.Clone()
		}
	}
	if h == nil {
		h = t.loader.Load(ctx, instrument)
	}
	if h == nil {
		h = models.TimeframeHistory{}
	}
	for _, tf := range t.timeframes {
		if _, ok := h[tf]; !ok {
			h[tf] = []models.PredictionRecord{}
		}
	}
	return h
}

func (t *Tracker) validate(snap models.Snapshot) error {
	if snap.Instrument == "" {
		return fmt.Errorf("%w: missing instrument", ErrInvalidSnapshot)
	}
	if err := t.checkInstrument(snap.Instrument); err != nil {
		return err
	}
	if snap.SnapshotTime.IsZero() {
		return fmt.Errorf("%w: missing snapshot time", ErrInvalidSnapshot)
	}
	if math.IsNaN(snap.Price) || math.IsInf(snap.Price, 0) || snap.Price <= 0 {
		return fmt.Errorf("%w: price %v", ErrInvalidSnapshot, snap.Price)
	}
	return nil
}

func (t *Tracker) checkInstrument(instrument string) error {
	if instrument == "" {
		return fmt.Errorf("%w: empty instrument key", ErrUnknownInstrument)
	}
	if t.instruments != nil && !t.instruments[instrument] {
		return fmt.Errorf("%w: %q", ErrUnknownInstrument, instrument)
	}
	return nil
}

func (t *Tracker) observe(instrument string, history models.TimeframeHistory, result IngestResult) {
	if t.metrics == nil {
		return
	}
	for _, tf := range result.Appended {
		t.metrics.RecordAppended(instrument, string(tf))
	}
	for tf, reason := range result.Skipped {
		t.metrics.ForecastSkipped(instrument, string(tf), reason)
	}
	for _, tf := range t.timeframes {
		n, correct := result.Resolved[tf], result.ResolvedCorrect[tf]
		for i := 0; i < n; i++ {
			t.metrics.RecordResolved(instrument, string(tf), i < correct)
		}
		stat := Accuracy(history[tf])
		t.metrics.SetAccuracy(instrument, string(tf), stat.Percent, stat.Resolved, stat.Sufficient)
	}
}

func normalizeInstrument(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
