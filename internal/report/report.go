package report

import (
	"fmt"
	"strings"

	"github.com/Alias1177/AccuracyTracker/internal/tracker"
	"github.com/Alias1177/AccuracyTracker/models"
)

// InsufficientHint is shown in place of an accuracy figure for small samples.
var InsufficientHint = fmt.Sprintf("Insufficient data (need %d+ scored predictions)", models.MinSamples)

var timeframeLabels = map[models.Timeframe]string{
	models.Timeframe5m:  "5 Min",
	models.Timeframe15m: "15 Min",
	models.Timeframe1h:  "1 Hour",
}

// TimeframeLabel returns the display name of tf
func TimeframeLabel(tf models.Timeframe) string {
	if label, ok := timeframeLabels[tf]; ok {
		return label
	}
	return string(tf)
}

// Report is the accuracy summary of one instrument.
type Report struct {
	Instrument string
	Timeframes []TimeframeReport
}

// TimeframeReport is the accuracy summary of one timeframe.
type TimeframeReport struct {
	Timeframe  models.Timeframe
	Label      string
	Stat       models.AccuracyStat
	Confidence map[string]models.AccuracyStat
	// Latest is the most recent record, nil when none exists.
	Latest *models.PredictionRecord
}

// Build summarizes history in the order of tfs.
func Build(instrument string, history models.TimeframeHistory, tfs []models.Timeframe) Report {
	r := Report{Instrument: instrument}
	for _, tf := range tfs {
		records := history[tf]
		tr := TimeframeReport{
			Timeframe:  tf,
			Label:      TimeframeLabel(tf),
			Stat:       tracker.Accuracy(records),
			Confidence: tracker.AccuracyByConfidence(records),
		}
		if n := len(records); n > 0 {
			latest := records[n-1]
			tr.Latest = &latest
		}
		r.Timeframes = append(r.Timeframes, tr)
	}
	return r
}

// AccuracyLine renders one statistic for display.
func AccuracyLine(stat models.AccuracyStat) string {
	if !stat.Sufficient {
		return InsufficientHint
	}
	return fmt.Sprintf("acc: %s (last %d predictions)", stat, stat.Resolved)
}

// Text renders the report as plain text, one block per timeframe.
func (r Report) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Prediction accuracy: %s\n", strings.ToUpper(r.Instrument))

	for _, tf := range r.Timeframes {
		fmt.Fprintf(&b, "\n%s: %s\n", tf.Label, AccuracyLine(tf.Stat))
		if tf.Stat.Pending > 0 {
			fmt.Fprintf(&b, "  pending: %d\n", tf.Stat.Pending)
		}
		if tf.Latest != nil {
			fmt.Fprintf(&b, "  latest: %s", tf.Latest.Direction)
			if tf.Latest.Confidence != "" {
				fmt.Fprintf(&b, " (%s)", tf.Latest.Confidence)
			}
			fmt.Fprintf(&b, " @ %.2f, %s\n", tf.Latest.Price, status(*tf.Latest))
		}
		for _, label := range tracker.ConfidenceLabels(tf.Confidence) {
			stat := tf.Confidence[label]
			if label == "" || !stat.Sufficient {
				continue
			}
			fmt.Fprintf(&b, "  %s confidence: %s of %d\n", label, stat, stat.Resolved)
		}
	}
	return b.String()
}

func status(r models.PredictionRecord) string {
	switch {
	case r.Pending():
		return "pending"
	case *r.Correct:
		return "correct"
	default:
		return fmt.Sprintf("wrong, market went %s", *r.Outcome)
	}
}
