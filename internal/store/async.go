package store

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/AccuracyTracker/models"
)

const writeTimeout = 10 * time.Second

type queuedWrite struct {
	history models.TimeframeHistory
	version uint64
}

// AsyncPersister queues histories and writes them from a background
// goroutine. Only the latest history of an instrument is kept in the queue.
type AsyncPersister struct {
	store  *HistoryStore
	logger zerolog.Logger

	mu      sync.Mutex
	queued  map[string]queuedWrite
	version uint64
	closed  bool

	flushMu   sync.Mutex
	notify    chan struct{}
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewAsyncPersister starts the writer goroutine. Call Close to drain it.
func NewAsyncPersister(store *HistoryStore) *AsyncPersister {
	p := &AsyncPersister{
		store:   store,
		logger:  log.With().Str("component", "async_persister").Logger(),
		queued:  make(map[string]queuedWrite),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go p.run()
	return p
}

// Persist queues history for instrument, replacing any queued write not yet
// started. After Close it writes synchronously.
func (p *AsyncPersister) Persist(ctx context.Context, instrument string, history models.TimeframeHistory) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.store.Persist(ctx, instrument, history)
		return
	}
	p.version++
	p.queued[instrument] = queuedWrite{history: history.Clone(), version: p.version}
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Pending returns the queued history of instrument, if one is waiting.
func (p *AsyncPersister) Pending(instrument string) (models.TimeframeHistory, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.queued[instrument]
	if !ok {
		return nil, false
	}
	return w.history.Clone(), true
}

// Flush writes everything queued so far.
func (p *AsyncPersister) Flush() {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	batch := make(map[string]queuedWrite, len(p.queued))
	for inst, w := range p.queued {
		batch[inst] = w
	}
	p.mu.Unlock()

	for inst, w := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		p.store.Persist(ctx, inst, w.history)
		cancel()

		p.mu.Lock()
		// A newer history queued during the write stays for the next round
		if cur, ok := p.queued[inst]; ok && cur.version == w.version {
			delete(p.queued, inst)
		}
		p.mu.Unlock()
	}
}

// Close stops accepting queued writes and drains the queue.
func (p *AsyncPersister) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		close(p.done)
		<-p.stopped
		p.logger.Debug().Msg("Async persister drained")
	})
	return nil
}

func (p *AsyncPersister) run() {
	defer close(p.stopped)
	for {
		select {
		case <-p.notify:
			p.Flush()
		case <-p.done:
			p.Flush()
			return
		}
	}
}
