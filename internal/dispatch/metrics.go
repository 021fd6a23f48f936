package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "singularity_dispatch_total",
		Help: "Outbound control calls by outcome",
	}, []string{"outcome"})

	dispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "singularity_dispatch_duration_seconds",
		Help:    "Duration of outbound control calls",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	dispatchInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "singularity_dispatch_in_flight",
		Help: "Outbound control calls currently waiting for the remote",
	})
)
