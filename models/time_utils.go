package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrUnknownTimeframe is returned for identifiers with no horizon.
var ErrUnknownTimeframe = errors.New("unknown timeframe")

// Epoch values below this are taken as seconds, anything above as milliseconds.
// 1e11 seconds is year 5138; 1e11 milliseconds is March 1973.
const secondsCutoff = 1e11

// maxEpochMillis is 9999-12-31T23:59:59.999Z.
const maxEpochMillis = 253402300799999

// ErrTimestampRange is returned for epoch values that are not finite or
// fall outside years 0001 to 9999.
var ErrTimestampRange = errors.New("timestamp out of range")

// Timestamp is an instant in epoch milliseconds.
type Timestamp int64

// NormalizeEpoch converts an epoch value in seconds or milliseconds to a Timestamp
func NormalizeEpoch(v float64) (Timestamp, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %v", ErrTimestampRange, v)
	}
	if math.Abs(v) < secondsCutoff {
		v *= 1000
	}
	v = math.Round(v)
	if math.Abs(v) > maxEpochMillis {
		return 0, fmt.Errorf("%w: %v", ErrTimestampRange, v)
	}
	return Timestamp(v), nil
}

// FromTime converts t to a Timestamp.
func FromTime(t time.Time) Timestamp {
	return Timestamp(t.UnixMilli())
}

// Time returns the instant as UTC time
func (t Timestamp) Time() time.Time {
	return time.UnixMilli(int64(t)).UTC()
}

// Sub returns the duration t-u.
func (t Timestamp) Sub(u Timestamp) time.Duration {
	return time.Duration(int64(t)-int64(u)) * time.Millisecond
}

func (t Timestamp) IsZero() bool {
	return t == 0
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp accepts epoch seconds or milliseconds written as text, and
// ISO-8601 date-times. Values without a zone are read as UTC.
func ParseTimestamp(raw string) (Timestamp, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("empty timestamp")
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return NormalizeEpoch(v)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return FromTime(t), nil
		}
	}
	return 0, fmt.Errorf("unrecognized timestamp %q", raw)
}

// UnmarshalJSON reads numbers and strings in any of the accepted encodings,
// so payloads written with second or millisecond precision load alike.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*t = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, err := ParseTimestamp(s)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := NormalizeEpoch(v)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

var horizons = map[Timeframe]time.Duration{
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe1h:  time.Hour,
}

// Horizon returns how long after its snapshot a forecast for tf can be judged.
// Unknown identifiers map to zero; configuration rejects them up front.
func Horizon(tf Timeframe) time.Duration {
	if d, ok := horizons[tf]; ok {
		return d
	}
	d, err := timeframeDuration(string(tf))
	if err != nil {
		return 0
	}
	return d
}

// ParseTimeframe validates a timeframe identifier
func ParseTimeframe(raw string) (Timeframe, error) {
	tf := Timeframe(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := horizons[tf]; ok {
		return tf, nil
	}
	if _, err := timeframeDuration(string(tf)); err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownTimeframe, raw)
	}
	return tf, nil
}

func timeframeDuration(id string) (time.Duration, error) {
	i := 0
	for i < len(id) && id[i] >= '0' && id[i] <= '9' {
		i++
	}
	if i == 0 || i == len(id) {
		return 0, ErrUnknownTimeframe
	}
	n, err := strconv.Atoi(id[:i])
	if err != nil || n <= 0 {
		return 0, ErrUnknownTimeframe
	}

	var unit time.Duration
	switch id[i:] {
	case "m", "min":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d", "day":
		unit = 24 * time.Hour
	case "w", "week":
		unit = 7 * 24 * time.Hour
	default:
		return 0, ErrUnknownTimeframe
	}
	if int64(n) > math.MaxInt64/int64(unit) {
		return 0, ErrUnknownTimeframe
	}
	return time.Duration(n) * unit, nil
}
