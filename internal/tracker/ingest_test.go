package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/AccuracyTracker/models"
)

const t0 = models.Timestamp(1709284500000) // 2024-03-01 09:15 UTC

func at(offset time.Duration) models.Timestamp {
	return t0 + models.Timestamp(offset.Milliseconds())
}

func valid(d models.Direction) models.Forecast {
	return models.Forecast{Kind: models.ForecastValid, Direction: d, Probability: 0.64, Confidence: "HIGH"}
}

func forecastsFor(d models.Direction, tfs ...models.Timeframe) map[models.Timeframe]models.Forecast {
	out := make(map[models.Timeframe]models.Forecast, len(tfs))
	for _, tf := range tfs {
		out[tf] = valid(d)
	}
	return out
}

func snap(offset time.Duration, price float64, forecasts map[models.Timeframe]models.Forecast) models.Snapshot {
	return models.Snapshot{Instrument: "nifty", SnapshotTime: at(offset), Price: price, Forecasts: forecasts}
}

func newTestSession() *Session {
	return NewSession("nifty", models.NewTimeframeHistory(models.DefaultTimeframes))
}

var now = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func TestIngestDuplicateSnapshotIsNoop(t *testing.T) {
	sess := newTestSession()

	first := Ingest(sess, snap(0, 100, forecastsFor(models.DirectionUp, models.DefaultTimeframes...)), models.DefaultTimeframes, now)
	require.False(t, first.Duplicate)
	after := sess.History.Clone()

	// Same snapshot time with a different price and forecast
	second := Ingest(sess, snap(0, 140, forecastsFor(models.DirectionDown, models.DefaultTimeframes...)), models.DefaultTimeframes, now)

	assert.True(t, second.Duplicate)
	assert.Equal(t, after, sess.History)
	last, ok := sess.LastProcessed()
	assert.True(t, ok)
	assert.Equal(t, at(0), last)
}

func TestIngestHorizonsAreIndependent(t *testing.T) {
	sess := newTestSession()
	tfs := []models.Timeframe{models.Timeframe5m, models.Timeframe1h}

	Ingest(sess, snap(0, 100, forecastsFor(models.DirectionUp, tfs...)), tfs, now)
	res := Ingest(sess, snap(20*time.Minute, 104, nil), tfs, now)

	assert.Equal(t, map[models.Timeframe]int{models.Timeframe5m: 1}, res.Resolved)
	require.Len(t, sess.History[models.Timeframe5m], 1)
	require.Len(t, sess.History[models.Timeframe1h], 1)
	assert.False(t, sess.History[models.Timeframe5m][0].Pending())
	assert.True(t, sess.History[models.Timeframe1h][0].Pending())
}

func TestIngestKeepsLatestRecords(t *testing.T) {
	sess := newTestSession()
	tfs := []models.Timeframe{models.Timeframe5m}

	const total = models.MaxHistory + 5
	for i := 0; i < total; i++ {
		Ingest(sess, snap(time.Duration(i)*time.Minute, 100+float64(i), forecastsFor(models.DirectionUp, tfs...)), tfs, now)
	}

	records := sess.History[models.Timeframe5m]
	require.Len(t, records, models.MaxHistory)
	assert.Equal(t, at(5*time.Minute), records[0].SnapshotTime)
	assert.Equal(t, at((total-1)*time.Minute), records[len(records)-1].SnapshotTime)

	var resolved, pending int
	for i, r := range records {
		if r.Pending() {
			pending++
		} else {
			resolved++
		}
		if i > 0 {
			assert.LessOrEqual(t, records[i-1].SnapshotTime, r.SnapshotTime)
		}
	}
	assert.Positive(t, resolved)
	assert.Positive(t, pending)
}

func TestIngestNeverResolvesRecordAppendedInSameCall(t *testing.T) {
	instant := models.Timeframe("tick") // no horizon
	require.Zero(t, models.Horizon(instant))
	tfs := []models.Timeframe{instant}
	sess := NewSession("nifty", nil)

	first := Ingest(sess, snap(0, 100, forecastsFor(models.DirectionUp, instant)), tfs, now)
	assert.Empty(t, first.Resolved)
	require.Len(t, sess.History[instant], 1)
	assert.True(t, sess.History[instant][0].Pending())

	second := Ingest(sess, snap(time.Second, 101, forecastsFor(models.DirectionUp, instant)), tfs, now)
	assert.Equal(t, 1, second.Resolved[instant])
	assert.False(t, sess.History[instant][0].Pending())
	assert.True(t, sess.History[instant][1].Pending())
}

func TestIngestScenario(t *testing.T) {
	sess := newTestSession()
	tfs := []models.Timeframe{models.Timeframe5m}

	Ingest(sess, snap(0, 100, forecastsFor(models.DirectionUp, tfs...)), tfs, now)
	records := sess.History[models.Timeframe5m]
	require.Len(t, records, 1)
	assert.True(t, records[0].Pending())
	assert.Equal(t, 100.0, records[0].Price)

	Ingest(sess, snap(4*time.Minute, 110, forecastsFor(models.DirectionUp, tfs...)), tfs, now)
	records = sess.History[models.Timeframe5m]
	require.Len(t, records, 2)
	assert.True(t, records[0].Pending())
	assert.True(t, records[1].Pending())
	assert.Equal(t, 110.0, records[1].Price)

	res := Ingest(sess, snap(6*time.Minute, 120, nil), tfs, now)
	records = sess.History[models.Timeframe5m]
	require.Len(t, records, 2)
	assert.Equal(t, 1, res.Resolved[models.Timeframe5m])
	assert.Equal(t, 1, res.ResolvedCorrect[models.Timeframe5m])
	require.False(t, records[0].Pending())
	assert.Equal(t, models.DirectionUp, *records[0].Outcome)
	assert.True(t, *records[0].Correct)
	assert.True(t, records[1].Pending())
}

func TestIngestSkipsMalformedForecastOnly(t *testing.T) {
	sess := newTestSession()
	tfs := models.DefaultTimeframes

	Ingest(sess, snap(0, 100, forecastsFor(models.DirectionDown, models.Timeframe5m)), tfs, now)

	forecasts := map[models.Timeframe]models.Forecast{
		models.Timeframe5m:  {Kind: models.ForecastMalformed, Problem: "missing direction"},
		models.Timeframe15m: valid(models.DirectionUp),
		models.Timeframe1h:  {Kind: models.ForecastAbsent, Direction: models.DirectionUnknown},
	}
	res := Ingest(sess, snap(10*time.Minute, 95, forecasts), tfs, now)

	assert.Equal(t, map[models.Timeframe]string{models.Timeframe5m: SkipMalformed}, res.Skipped)
	assert.Equal(t, []models.Timeframe{models.Timeframe15m}, res.Appended)
	assert.Equal(t, 1, res.Resolved[models.Timeframe5m])

	require.Len(t, sess.History[models.Timeframe5m], 1)
	assert.True(t, *sess.History[models.Timeframe5m][0].Correct)
	assert.Len(t, sess.History[models.Timeframe15m], 1)
	assert.Empty(t, sess.History[models.Timeframe1h])
}

func TestIngestRejectsOutOfOrderAppend(t *testing.T) {
	sess := newTestSession()
	tfs := []models.Timeframe{models.Timeframe1h}

	Ingest(sess, snap(10*time.Minute, 100, forecastsFor(models.DirectionUp, tfs...)), tfs, now)
	res := Ingest(sess, snap(5*time.Minute, 99, forecastsFor(models.DirectionUp, tfs...)), tfs, now)

	assert.Equal(t, SkipOutOfOrder, res.Skipped[models.Timeframe1h])
	assert.Len(t, sess.History[models.Timeframe1h], 1)

	last, _ := sess.LastProcessed()
	assert.Equal(t, at(5*time.Minute), last)
}

func TestIngestDoesNotAliasPreviousHistory(t *testing.T) {
	sess := newTestSession()
	tfs := []models.Timeframe{models.Timeframe5m}

	Ingest(sess, snap(0, 100, forecastsFor(models.DirectionUp, tfs...)), tfs, now)
	before := sess.History

	Ingest(sess, snap(10*time.Minute, 90, nil), tfs, now)

	assert.True(t, before[models.Timeframe5m][0].Pending())
	assert.False(t, sess.History[models.Timeframe5m][0].Pending())
}

func TestIngestRecordCarriesForecastMetadata(t *testing.T) {
	sess := newTestSession()
	tfs := []models.Timeframe{models.Timeframe15m}

	fc := models.Forecast{Kind: models.ForecastValid, Direction: models.DirectionSideways, Probability: 0.51, Confidence: "LOW"}
	Ingest(sess, snap(0, 22000.5, map[models.Timeframe]models.Forecast{models.Timeframe15m: fc}), tfs, now)

	require.Len(t, sess.History[models.Timeframe15m], 1)
	rec := sess.History[models.Timeframe15m][0]
	assert.Equal(t, now, rec.CreatedAt)
	assert.Equal(t, at(0), rec.SnapshotTime)
	assert.Equal(t, 22000.5, rec.Price)
	assert.Equal(t, models.DirectionSideways, rec.Direction)
	assert.Equal(t, 0.51, rec.Probability)
	assert.Equal(t, "LOW", rec.Confidence)
	assert.Nil(t, rec.Outcome)
	assert.Nil(t, rec.Correct)
}
