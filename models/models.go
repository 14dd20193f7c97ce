package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	// MaxHistory is the number of records kept per timeframe.
	MaxHistory = 30
	// MinSamples is the number of resolved records required before an
	// accuracy figure is reported.
	MinSamples = 3
)

// Direction is either the claim of a forecast or the realized move of the market
type Direction string

const (
	DirectionUp       Direction = "UP"
	DirectionDown     Direction = "DOWN"
	DirectionSideways Direction = "SIDEWAYS"
	// DirectionUnknown is the placeholder the upstream model emits when it has no opinion.
	DirectionUnknown Direction = "UNKNOWN"
)

// ParseDirection maps a raw upstream value onto a Direction. Matching is case-insensitive.
func ParseDirection(raw string) (Direction, bool) {
	switch d := Direction(strings.ToUpper(strings.TrimSpace(raw))); d {
	case DirectionUp, DirectionDown, DirectionSideways, DirectionUnknown:
		return d, true
	default:
		return "", false
	}
}

// Scorable reports whether the direction can be judged against a price move
func (d Direction) Scorable() bool {
	return d == DirectionUp || d == DirectionDown || d == DirectionSideways
}

// DirectionOf returns the realized direction of a move from reference to price.
func DirectionOf(reference, price float64) Direction {
	switch {
	case price > reference:
		return DirectionUp
	case price < reference:
		return DirectionDown
	default:
		return DirectionSideways
	}
}

// Timeframe identifies a forecast granularity such as "5m" or "1h"
type Timeframe string

const (
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
)

// DefaultTimeframes are the horizons the upstream model publishes.
var DefaultTimeframes = []Timeframe{Timeframe5m, Timeframe15m, Timeframe1h}

// PredictionRecord is one forecast made for one timeframe at one snapshot.
// Outcome and Correct are nil while the record is pending and are set together.
type PredictionRecord struct {
	CreatedAt    time.Time  `json:"time"`
	SnapshotTime Timestamp  `json:"candle_time"`
	Price        float64    `json:"price"`
	Direction    Direction  `json:"direction"`
	Probability  float64    `json:"probability"`
	Confidence   string     `json:"confidence"`
	Outcome      *Direction `json:"outcome"`
	Correct      *bool      `json:"correct"`
}

// Pending reports whether the record still waits for its horizon to elapse
func (r PredictionRecord) Pending() bool {
	return r.Outcome == nil
}

// Resolve returns a copy of the record carrying the realized outcome.
func (r PredictionRecord) Resolve(outcome Direction) PredictionRecord {
	correct := outcome == r.Direction
	r.Outcome = &outcome
	r.Correct = &correct
	return r
}

// TimeframeHistory holds the ordered records of one instrument, per timeframe.
type TimeframeHistory map[Timeframe][]PredictionRecord

// NewTimeframeHistory returns a history with an empty sequence for every timeframe
func NewTimeframeHistory(timeframes []Timeframe) TimeframeHistory {
	h := make(TimeframeHistory, len(timeframes))
	for _, tf := range timeframes {
		h[tf] = []PredictionRecord{}
	}
	return h
}

// Clone copies every sequence so the result can be changed without touching h.
// Outcome pointers are shared; resolved records are never mutated.
func (h TimeframeHistory) Clone() TimeframeHistory {
	out := make(TimeframeHistory, len(h))
	for tf, records := range h {
		cp := make([]PredictionRecord, len(records))
		copy(cp, records)
		out[tf] = cp
	}
	return out
}

// Truncate returns a copy of the most recent limit records, dropping the oldest first.
func Truncate(records []PredictionRecord, limit int) []PredictionRecord {
	if len(records) > limit {
		records = records[len(records)-limit:]
	}
	out := make([]PredictionRecord, len(records))
	copy(out, records)
	return out
}

// Observation is a price seen at a point in time.
type Observation struct {
	Time  Timestamp
	Price float64
}

// ForecastKind tags the shape of a forecast received from upstream
type ForecastKind int

const (
	// ForecastAbsent means no usable forecast: missing entry or the UNKNOWN placeholder.
	ForecastAbsent ForecastKind = iota
	ForecastValid
	ForecastMalformed
)

func (k ForecastKind) String() string {
	switch k {
	case ForecastValid:
		return "valid"
	case ForecastMalformed:
		return "malformed"
	default:
		return "absent"
	}
}

// Forecast is one timeframe's forecast as parsed at the boundary.
type Forecast struct {
	Kind        ForecastKind
	Direction   Direction
	Probability float64
	Confidence  string
	// Problem describes why a forecast is malformed.
	Problem string
}

// Snapshot is one upstream observation of price plus zero or more forecasts.
type Snapshot struct {
	Instrument   string
	SnapshotTime Timestamp
	Price        float64
	Forecasts    map[Timeframe]Forecast
}

// AccuracyStat is the rolling accuracy of one set of records
type AccuracyStat struct {
	Percent    float64 `json:"percent"`
	Resolved   int     `json:"resolved"`
	Correct    int     `json:"correct"`
	Pending    int     `json:"pending"`
	Sufficient bool    `json:"sufficient"`
}

// String renders the statistic the way the dashboard shows it.
func (a AccuracyStat) String() string {
	if !a.Sufficient {
		return "insufficient data"
	}
	return fmt.Sprintf("%.1f%%", a.Percent)
}
