package poller

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/AccuracyTracker/internal/tracker"
	"github.com/Alias1177/AccuracyTracker/models"
)

// Ingester is the part of the tracker the poller drives
type Ingester interface {
	Ingest(ctx context.Context, snap models.Snapshot) (tracker.IngestResult, error)
	SwitchInstrument(ctx context.Context, instrument string) error
}

// Poller fetches a snapshot of the active instrument on a fixed interval and
// feeds it to the tracker.
type Poller struct {
	source   models.SnapshotSource
	tracker  Ingester
	interval time.Duration
	logger   zerolog.Logger

	mu     sync.RWMutex
	active string
}

func New(source models.SnapshotSource, tr Ingester, instrument string, interval time.Duration) *Poller {
	return &Poller{
		source:   source,
		tracker:  tr,
		interval: interval,
		active:   instrument,
		logger:   log.With().Str("component", "poller").Logger(),
	}
}

// Active returns the instrument currently polled
func (p *Poller) Active() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

// Switch makes instrument the polled one. Its history is reloaded and its
// duplicate guard cleared.
func (p *Poller) Switch(ctx context.Context, instrument string) error {
	instrument = strings.ToLower(strings.TrimSpace(instrument))
	if err := p.tracker.SwitchInstrument(ctx, instrument); err != nil {
		return err
	}

	p.mu.Lock()
	prev := p.active
	p.active = instrument
	p.mu.Unlock()

	p.logger.Info().Str("from", prev).Str("to", instrument).Msg("Active instrument changed")
	return nil
}

// Poll fetches and ingests one snapshot of the active instrument.
func (p *Poller) Poll(ctx context.Context) (tracker.IngestResult, error) {
	instrument := p.Active()

	snap, err := p.source.FetchSnapshot(ctx, instrument)
	if err != nil {
		return tracker.IngestResult{}, fmt.Errorf("fetch %s: %w", instrument, err)
	}
	if snap.Instrument == "" {
		snap.Instrument = instrument
	}
	return p.tracker.Ingest(ctx, snap)
}

// Run polls immediately and then on every tick until ctx is done.
// Failed polls are logged and retried on the next tick.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().Str("instrument", p.Active()).Dur("interval", p.interval).Msg("Poller started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn().Err(err).Msg("Poll failed")
		}

		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Poller stopped")
			return nil
		case <-ticker.C:
		}
	}
}
