package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "correlator_broker_deliveries_total",
			Help: "Deliveries handled per queue and settlement (ack, reject, requeue).",
		},
		[]string{"queue", "result"},
	)
	handleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "correlator_broker_handle_duration_seconds",
			Help:    "Time spent processing a delivery before settlement.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"queue"},
	)
	reconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "correlator_broker_reconnects_total",
			Help: "Consumer restarts after the channel or connection dropped.",
		},
		[]string{"queue"},
	)
)
