package sessionstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hinteval/sessiond/internal/session"
)

var (
	// ReplacesTotal counts session replacements.
	// Labels: provider (memory, postgres), result (success, error)
	ReplacesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sessiond",
			Subsystem: "store",
			Name:      "replaces_total",
			Help:      "Total number of session replacements",
		},
		[]string{"provider", "result"},
	)

	// ClearsTotal counts session wipes.
	// Labels: provider (memory, postgres), result (success, error)
	ClearsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sessiond",
			Subsystem: "store",
			Name:      "clears_total",
			Help:      "Total number of session wipes",
		},
		[]string{"provider", "result"},
	)

	// RowsRemovedTotal tracks rows displaced by replaces and wipes.
	// Labels: kind (questions, answers, hints, metrics, entities, candidates)
	RowsRemovedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sessiond",
			Subsystem: "store",
			Name:      "rows_removed_total",
			Help:      "Total number of rows displaced by replaces and wipes",
		},
		[]string{"kind"},
	)

	// ReplaceInstances tracks how many instances each replacement writes.
	ReplaceInstances = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sessiond",
			Subsystem: "store",
			Name:      "replace_instances",
			Help:      "Number of instances written per session replacement",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// Reachable indicates the last probe outcome (1=reachable, 0=unavailable).
	Reachable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sessiond",
			Subsystem: "store",
			Name:      "reachable",
			Help:      "Whether the last reachability probe succeeded (1=reachable, 0=unavailable)",
		},
		[]string{"provider"},
	)
)

// RecordReplace records the outcome of a session replacement.
func RecordReplace(provider string, prior session.Counts, instances int, err error) {
	if err != nil {
		ReplacesTotal.WithLabelValues(provider, "error").Inc()
		return
	}
	ReplacesTotal.WithLabelValues(provider, "success").Inc()
	ReplaceInstances.Observe(float64(instances))
	recordRemoved(prior)
}

// RecordClear records the outcome of a session wipe.
func RecordClear(provider string, prior session.Counts, err error) {
	if err != nil {
		ClearsTotal.WithLabelValues(provider, "error").Inc()
		return
	}
	ClearsTotal.WithLabelValues(provider, "success").Inc()
	recordRemoved(prior)
}

// RecordPing records the outcome of a reachability probe.
func RecordPing(provider string, err error) {
	if err != nil {
		Reachable.WithLabelValues(provider).Set(0)
		return
	}
	Reachable.WithLabelValues(provider).Set(1)
}

func recordRemoved(prior session.Counts) {
	if prior.IsZero() {
		return
	}
	RowsRemovedTotal.WithLabelValues("questions").Add(float64(prior.Questions))
	RowsRemovedTotal.WithLabelValues("answers").Add(float64(prior.Answers))
	RowsRemovedTotal.WithLabelValues("hints").Add(float64(prior.Hints))
	RowsRemovedTotal.WithLabelValues("metrics").Add(float64(prior.Metrics))
	RowsRemovedTotal.WithLabelValues("entities").Add(float64(prior.Entities))
	RowsRemovedTotal.WithLabelValues("candidates").Add(float64(prior.Candidates))
}
