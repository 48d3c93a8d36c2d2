package analytics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "correlator_analytics_send_total",
			Help: "Analytics submission attempts by status.",
		},
		[]string{"status"},
	)
	sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "correlator_analytics_send_duration_seconds",
			Help:    "Duration of analytics submission requests.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	tokenFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "correlator_analytics_token_fetch_total",
			Help: "Token endpoint calls by status.",
		},
		[]string{"status"},
	)
)
