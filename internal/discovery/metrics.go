package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomview_discovery_runs_total",
		Help: "Discovery passes by strategy and outcome",
	}, []string{"strategy", "outcome"})

	metricChannelFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomview_discovery_status_failures_total",
		Help: "Channel or input status queries that failed and were treated as inactive",
	}, []string{"strategy"})

	metricDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roomview_discovery_duration_seconds",
		Help:    "Time spent enumerating channels for one system",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
	}, []string{"strategy"})

	metricCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomview_preview_cache_total",
		Help: "Preview cache lookups by layer and result",
	}, []string{"layer", "result"})
)
