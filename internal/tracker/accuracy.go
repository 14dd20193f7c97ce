package tracker

import (
	"math"
	"sort"

	"github.com/Alias1177/AccuracyTracker/models"
)

// Accuracy computes the share of resolved records that were correct.
// Fewer than models.MinSamples resolved records yield an insufficient stat.
func Accuracy(records []models.PredictionRecord) models.AccuracyStat {
	var stat models.AccuracyStat
	for _, r := range records {
		if r.Pending() {
			stat.Pending++
			continue
		}
		stat.Resolved++
		if r.Correct != nil && *r.Correct {
			stat.Correct++
		}
	}

	if stat.Resolved < models.MinSamples {
		return stat
	}
	stat.Sufficient = true
	stat.Percent = round1(100 * float64(stat.Correct) / float64(stat.Resolved))
	return stat
}

// AccuracyByTimeframe computes Accuracy for each of timeframes.
func AccuracyByTimeframe(history models.TimeframeHistory, timeframes []models.Timeframe) map[models.Timeframe]models.AccuracyStat {
	out := make(map[models.Timeframe]models.AccuracyStat, len(timeframes))
	for _, tf := range timeframes {
		out[tf] = Accuracy(history[tf])
	}
	return out
}

// AccuracyByConfidence groups records by their confidence label
func AccuracyByConfidence(records []models.PredictionRecord) map[string]models.AccuracyStat {
	groups := make(map[string][]models.PredictionRecord)
	for _, r := range records {
		groups[r.Confidence] = append(groups[r.Confidence], r)
	}

	out := make(map[string]models.AccuracyStat, len(groups))
	for label, recs := range groups {
		out[label] = Accuracy(recs)
	}
	return out
}

// ConfidenceLabels returns the labels of stats, highest confidence first.
func ConfidenceLabels(stats map[string]models.AccuracyStat) []string {
	rank := map[string]int{"VERY_HIGH": 0, "HIGH": 1, "MEDIUM": 2, "LOW": 3, "VERY_LOW": 4}

	labels := make([]string, 0, len(stats))
	for label := range stats {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		ri, iok := rank[labels[i]]
		rj, jok := rank[labels[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return labels[i] < labels[j]
		}
	})
	return labels
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
