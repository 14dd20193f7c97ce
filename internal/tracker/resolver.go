package tracker

import (
	"github.com/Alias1177/AccuracyTracker/models"
)

// Resolve judges every pending record of tf whose horizon has elapsed at obs.
// All eligible records are judged against the same observation. The input is
// left untouched; the returned slice holds the updated records and the count
// of records resolved in this pass.
func Resolve(records []models.PredictionRecord, tf models.Timeframe, obs models.Observation) ([]models.PredictionRecord, int) {
	horizon := models.Horizon(tf)

	out := make([]models.PredictionRecord, len(records))
	copy(out, records)

	resolved := 0
	for i, r := range out {
		if !r.Pending() {
			continue
		}
		if obs.Time.Sub(r.SnapshotTime) < horizon {
			continue
		}
		out[i] = r.Resolve(models.DirectionOf(r.Price, obs.Price))
		resolved++
	}
	return out, resolved
}
