package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bufferedRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "correlator_buffered_records_total",
			Help: "Records written to the buffer store by side.",
		},
		[]string{"side"},
	)
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "correlator_attempts_total",
			Help: "Correlation attempts by outcome.",
		},
		[]string{"outcome"},
	)
	mergedRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "correlator_merged_records_delivered_total",
			Help: "Merged records accepted by the analytics sink.",
		},
	)
	droppedRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "correlator_dropped_records_total",
			Help: "Buffered records discarded after an attempt, by reason.",
		},
		[]string{"reason"},
	)
	attemptDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "correlator_attempt_duration_seconds",
			Help:    "Duration of correlation attempts that took both sides.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
)
