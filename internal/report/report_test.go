package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/AccuracyTracker/models"
)

func rec(offset int64, d models.Direction, confidence string) models.PredictionRecord {
	return models.PredictionRecord{
		SnapshotTime: models.Timestamp(1709284500000 + offset*60_000),
		Price:        22000,
		Direction:    d,
		Confidence:   confidence,
	}
}

func TestTimeframeLabel(t *testing.T) {
	assert.Equal(t, "5 Min", TimeframeLabel(models.Timeframe5m))
	assert.Equal(t, "15 Min", TimeframeLabel(models.Timeframe15m))
	assert.Equal(t, "1 Hour", TimeframeLabel(models.Timeframe1h))
	assert.Equal(t, "30m", TimeframeLabel("30m"))
}

func TestAccuracyLine(t *testing.T) {
	assert.Equal(t, "Insufficient data (need 3+ scored predictions)", AccuracyLine(models.AccuracyStat{Resolved: 2}))
	assert.Equal(t, "acc: 66.7% (last 3 predictions)",
		AccuracyLine(models.AccuracyStat{Percent: 66.7, Resolved: 3, Correct: 2, Sufficient: true}))
}

func TestBuildAndText(t *testing.T) {
	h := models.TimeframeHistory{
		models.Timeframe5m: {
			rec(0, models.DirectionUp, "HIGH").Resolve(models.DirectionUp),
			rec(5, models.DirectionUp, "HIGH").Resolve(models.DirectionUp),
			rec(10, models.DirectionDown, "HIGH").Resolve(models.DirectionUp),
			rec(15, models.DirectionUp, "LOW"),
		},
		models.Timeframe1h: {
			rec(0, models.DirectionSideways, "").Resolve(models.DirectionDown),
		},
	}

	r := Build("nifty", h, models.DefaultTimeframes)

	require.Len(t, r.Timeframes, 3)
	assert.Equal(t, "5 Min", r.Timeframes[0].Label)
	assert.Equal(t, 66.7, r.Timeframes[0].Stat.Percent)
	require.NotNil(t, r.Timeframes[0].Latest)
	assert.True(t, r.Timeframes[0].Latest.Pending())
	assert.Nil(t, r.Timeframes[1].Latest)

	text := r.Text()
	assert.Contains(t, text, "Prediction accuracy: NIFTY")
	assert.Contains(t, text, "5 Min: acc: 66.7% (last 3 predictions)")
	assert.Contains(t, text, "  pending: 1")
	assert.Contains(t, text, "  latest: UP (LOW) @ 22000.00, pending")
	assert.Contains(t, text, "  HIGH confidence: 66.7% of 3")
	assert.Contains(t, text, "15 Min: Insufficient data (need 3+ scored predictions)")
	assert.Contains(t, text, "  latest: SIDEWAYS @ 22000.00, wrong, market went DOWN")
}
