package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the Prometheus collectors of the tracker.
// A nil *Registry is valid and records nothing.
type Registry struct {
	Ingests          *prometheus.CounterVec
	Appends          *prometheus.CounterVec
	Resolutions      *prometheus.CounterVec
	SkippedForecasts *prometheus.CounterVec
	PersistFailures  *prometheus.CounterVec
	CorruptPayloads  *prometheus.CounterVec
	UpstreamFetches  *prometheus.CounterVec
	Accuracy         *prometheus.GaugeVec
	ResolvedSamples  *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg when reg is not nil.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		Ingests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accuracy_tracker_ingests_total",
				Help: "Snapshots handed to the ingester, by result",
			},
			[]string{"instrument", "result"},
		),
		Appends: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accuracy_tracker_predictions_appended_total",
				Help: "Pending prediction records appended",
			},
			[]string{"instrument", "timeframe"},
		),
		Resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accuracy_tracker_predictions_resolved_total",
				Help: "Prediction records resolved, by correctness",
			},
			[]string{"instrument", "timeframe", "outcome"},
		),
		SkippedForecasts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accuracy_tracker_forecasts_skipped_total",
				Help: "Forecasts that did not produce a record, by reason",
			},
			[]string{"instrument", "timeframe", "reason"},
		),
		PersistFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accuracy_tracker_persist_failures_total",
				Help: "History writes that failed",
			},
			[]string{"backend"},
		),
		CorruptPayloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accuracy_tracker_corrupt_payloads_total",
				Help: "Persisted histories discarded because they could not be decoded",
			},
			[]string{"backend"},
		),
		UpstreamFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accuracy_tracker_upstream_fetches_total",
				Help: "Snapshot fetches from the upstream service, by result",
			},
			[]string{"instrument", "result"},
		),
		Accuracy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "accuracy_tracker_accuracy_percent",
				Help: "Rolling accuracy per timeframe; only set once enough samples exist",
			},
			[]string{"instrument", "timeframe"},
		),
		ResolvedSamples: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "accuracy_tracker_resolved_samples",
				Help: "Resolved records currently held per timeframe",
			},
			[]string{"instrument", "timeframe"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			r.Ingests,
			r.Appends,
			r.Resolutions,
			r.SkippedForecasts,
			r.PersistFailures,
			r.CorruptPayloads,
			r.UpstreamFetches,
			r.Accuracy,
			r.ResolvedSamples,
		)
	}
	return r
}

func (r *Registry) IngestObserved(instrument, result string) {
	if r == nil {
		return
	}
	r.Ingests.WithLabelValues(instrument, result).Inc()
}

func (r *Registry) RecordAppended(instrument, timeframe string) {
	if r == nil {
		return
	}
	r.Appends.WithLabelValues(instrument, timeframe).Inc()
}

func (r *Registry) RecordResolved(instrument, timeframe string, correct bool) {
	if r == nil {
		return
	}
	outcome := "incorrect"
	if correct {
		outcome = "correct"
	}
	r.Resolutions.WithLabelValues(instrument, timeframe, outcome).Inc()
}

func (r *Registry) ForecastSkipped(instrument, timeframe, reason string) {
	if r == nil {
		return
	}
	r.SkippedForecasts.WithLabelValues(instrument, timeframe, reason).Inc()
}

func (r *Registry) PersistFailed(backend string) {
	if r == nil {
		return
	}
	r.PersistFailures.WithLabelValues(backend).Inc()
}

func (r *Registry) PayloadCorrupt(backend string) {
	if r == nil {
		return
	}
	r.CorruptPayloads.WithLabelValues(backend).Inc()
}

func (r *Registry) UpstreamFetched(instrument string, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.UpstreamFetches.WithLabelValues(instrument, result).Inc()
}

// SetAccuracy publishes the current accuracy. The percentage gauge is removed
// while the sample is too small so dashboards never show a fabricated rate.
func (r *Registry) SetAccuracy(instrument, timeframe string, percent float64, resolved int, sufficient bool) {
	if r == nil {
		return
	}
	r.ResolvedSamples.WithLabelValues(instrument, timeframe).Set(float64(resolved))
	if !sufficient {
		r.Accuracy.DeleteLabelValues(instrument, timeframe)
		return
	}
	r.Accuracy.WithLabelValues(instrument, timeframe).Set(percent)
}
