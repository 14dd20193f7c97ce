package tracker

import (
	"time"

	"github.com/Alias1177/AccuracyTracker/models"
)

// Reasons a forecast did not produce a record
const (
	SkipMalformed  = "malformed"
	SkipOutOfOrder = "out_of_order"
)

// Session is the state carried between ingest calls for one instrument:
// its history and the snapshot time of the last fully processed snapshot.
type Session struct {
	Instrument string
	History    models.TimeframeHistory

	lastSnapshot models.Timestamp
	processed    bool
}

// NewSession starts a session with no processed snapshot.
func NewSession(instrument string, history models.TimeframeHistory) *Session {
	if history == nil {
		history = models.TimeframeHistory{}
	}
	return &Session{Instrument: instrument, History: history}
}

// LastProcessed returns the snapshot time of the last processed snapshot.
func (s *Session) LastProcessed() (models.Timestamp, bool) {
	return s.lastSnapshot, s.processed
}

// IngestResult summarizes what one ingest call changed.
type IngestResult struct {
	Duplicate       bool                        `json:"duplicate"`
	Resolved        map[models.Timeframe]int    `json:"resolved,omitempty"`
	ResolvedCorrect map[models.Timeframe]int    `json:"resolved_correct,omitempty"`
	Appended        []models.Timeframe          `json:"appended,omitempty"`
	Skipped         map[models.Timeframe]string `json:"skipped,omitempty"`
}

// TotalResolved is the number of records resolved across all timeframes
func (r IngestResult) TotalResolved() int {
	n := 0
	for _, c := range r.Resolved {
		n += c
	}
	return n
}

// Ingest applies snap to sess for the given timeframes.
//
// A snapshot whose time equals the last processed one leaves the session
// untouched. Otherwise pending records are resolved against the snapshot's
// price before any new record is appended, so a record is never judged
// against the snapshot it was made from.
func Ingest(sess *Session, snap models.Snapshot, timeframes []models.Timeframe, now time.Time) IngestResult {
	if sess.processed && sess.lastSnapshot == snap.SnapshotTime {
		return IngestResult{Duplicate: true}
	}

	result := IngestResult{
		Resolved:        make(map[models.Timeframe]int),
		ResolvedCorrect: make(map[models.Timeframe]int),
		Skipped:         make(map[models.Timeframe]string),
	}
	obs := models.Observation{Time: snap.SnapshotTime, Price: snap.Price}

	next := sess.History.Clone()
	for _, tf := range timeframes {
		prev := next[tf]
		records, n := Resolve(prev, tf, obs)
		if n > 0 {
			result.Resolved[tf] = n
			result.ResolvedCorrect[tf] = countNewlyCorrect(prev, records)
		}

		fc, ok := snap.Forecasts[tf]
		switch {
		case !ok || fc.Kind == models.ForecastAbsent:
		case fc.Kind == models.ForecastMalformed:
			result.Skipped[tf] = SkipMalformed
		case len(records) > 0 && snap.SnapshotTime < records[len(records)-1].SnapshotTime:
			result.Skipped[tf] = SkipOutOfOrder
		default:
			records = append(records, models.PredictionRecord{
				CreatedAt:    now.UTC(),
				SnapshotTime: snap.SnapshotTime,
				Price:        snap.Price,
				Direction:    fc.Direction,
				Probability:  fc.Probability,
				Confidence:   fc.Confidence,
			})
			result.Appended = append(result.Appended, tf)
		}

		next[tf] = models.Truncate(records, models.MaxHistory)
	}

	sess.History = next
	sess.lastSnapshot = snap.SnapshotTime
	sess.processed = true
	return result
}

func countNewlyCorrect(before, after []models.PredictionRecord) int {
	n := 0
	for i := range before {
		if before[i].Pending() && !after[i].Pending() && *after[i].Correct {
			n++
		}
	}
	return n
}
