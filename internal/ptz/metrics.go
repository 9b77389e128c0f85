package ptz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomview_ptz_commands_total",
		Help: "PTZ commands by method and result",
	}, []string{"method", "result"})

	metricActiveGestures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roomview_ptz_active_gestures",
		Help: "Axes currently being dragged",
	})
)
