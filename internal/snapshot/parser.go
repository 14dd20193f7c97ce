package snapshot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Alias1177/AccuracyTracker/models"
)

// ErrInvalidPayload is returned for payloads that do not describe a snapshot.
var ErrInvalidPayload = errors.New("invalid snapshot payload")

var (
	timeKeys     = []string{"snapshot_time", "last_candle_timestamp", "timestamp"}
	forecastKeys = []string{"forecasts", "mtf_prediction"}
)

// Parse reads a snapshot from JSON. Payloads wrapped in a "data" envelope
// are unwrapped. fallbackInstrument is used when the payload names none.
//
// Entries of the forecast object whose key is not a timeframe are ignored,
// so summary fields sent next to the forecasts do not matter.
func Parse(payload []byte, fallbackInstrument string) (models.Snapshot, error) {
	if !gjson.ValidBytes(payload) {
		return models.Snapshot{}, fmt.Errorf("%w: not valid JSON", ErrInvalidPayload)
	}
	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return models.Snapshot{}, fmt.Errorf("%w: expected an object", ErrInvalidPayload)
	}
	if data := root.Get("data"); data.IsObject() {
		root = data
	}
	return FromResult(root, fallbackInstrument)
}

// FromResult reads a snapshot from an already parsed object.
func FromResult(obj gjson.Result, fallbackInstrument string) (models.Snapshot, error) {
	snap := models.Snapshot{
		Instrument: strings.ToLower(strings.TrimSpace(obj.Get("instrument").String())),
		Forecasts:  make(map[models.Timeframe]models.Forecast),
	}
	if snap.Instrument == "" {
		snap.Instrument = strings.ToLower(strings.TrimSpace(fallbackInstrument))
	}

	ts, err := parseTime(first(obj, timeKeys))
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: snapshot time: %v", ErrInvalidPayload, err)
	}
	snap.SnapshotTime = ts

	price, err := number(obj.Get("price"))
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: price: %v", ErrInvalidPayload, err)
	}
	snap.Price = price

	if fc := first(obj, forecastKeys); fc.IsObject() {
		fc.ForEach(func(key, value gjson.Result) bool {
			tf, err := models.ParseTimeframe(key.String())
			if err != nil {
				return true
			}
			snap.Forecasts[tf] = ParseForecast(value)
			return true
		})
	}
	return snap, nil
}

// ParseForecast classifies one timeframe's forecast. A missing entry or the
// UNKNOWN placeholder is absent; anything that cannot become a record is malformed.
func ParseForecast(v gjson.Result) models.Forecast {
	if !v.Exists() || v.Type == gjson.Null {
		return models.Forecast{Kind: models.ForecastAbsent}
	}
	if !v.IsObject() {
		return malformed("forecast is not an object")
	}

	rawDir := v.Get("direction")
	if rawDir.Type != gjson.String {
		return malformed("missing direction")
	}
	dir, ok := models.ParseDirection(rawDir.String())
	if !ok {
		return malformed(fmt.Sprintf("unrecognized direction %q", rawDir.String()))
	}
	if dir == models.DirectionUnknown {
		return models.Forecast{Kind: models.ForecastAbsent, Direction: dir}
	}

	fc := models.Forecast{
		Kind:       models.ForecastValid,
		Direction:  dir,
		Confidence: strings.TrimSpace(v.Get("confidence").String()),
	}
	if p := v.Get("probability"); p.Exists() && p.Type != gjson.Null {
		prob, err := number(p)
		if err != nil {
			return malformed("probability is not numeric")
		}
		fc.Probability = prob
	}
	return fc
}

func malformed(problem string) models.Forecast {
	return models.Forecast{Kind: models.ForecastMalformed, Problem: problem}
}

func first(obj gjson.Result, keys []string) gjson.Result {
	for _, k := range keys {
		if v := obj.Get(k); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

func parseTime(v gjson.Result) (models.Timestamp, error) {
	switch v.Type {
	case gjson.Number:
		return models.NormalizeEpoch(v.Float())
	case gjson.String:
		return models.ParseTimestamp(v.String())
	default:
		return 0, errors.New("missing")
	}
}

func number(v gjson.Result) (float64, error) {
	switch v.Type {
	case gjson.Number:
		return v.Float(), nil
	case gjson.String:
		return strconv.ParseFloat(strings.TrimSpace(v.String()), 64)
	default:
		return 0, errors.New("not a number")
	}
}
