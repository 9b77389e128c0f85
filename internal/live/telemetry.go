package live

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/technosupport/roomview/internal/events"
	"github.com/technosupport/roomview/internal/ratelimit"
)

var (
	// Metrics - Low Cardinality Only
	metricEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomview_playback_events_total",
		Help: "Accepted playback telemetry events by type",
	}, []string{"event"})

	metricEventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomview_playback_events_dropped_total",
		Help: "Telemetry events rejected",
	}, []string{"reason"})

	metricLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "roomview_playback_latency_seconds",
		Help:    "Client-reported buffered latency at the time of the event",
		Buckets: []float64{0.25, 0.5, 1, 1.5, 2, 3, 5, 10},
	})

	metricOverBuffer = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomview_playback_over_buffer_total",
		Help: "Buffer samples past the latency policy on a playing video",
	})

	metricPlayersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roomview_playback_players_active",
		Help: "Players that reported ready and have not been destroyed",
	})
)

var (
	ErrInvalidEvent = errors.New("invalid telemetry event")
	ErrRateLimited  = errors.New("telemetry rate limit exceeded")
)

// Allowed Event Types
var allowedEvents = map[string]bool{
	"stream_ready":     true,
	"stream_error":     true,
	"latency_jump":     true,
	"player_destroyed": true,
	"autoplay_blocked": true,
}

// TelemetryEvent is a playback status report from a viewer.
type TelemetryEvent struct {
	ViewerID  string  `json:"viewer_id"`
	SystemID  string  `json:"system_id"`
	ChannelID string  `json:"channel_id,omitempty"`
	EventType string  `json:"event_type"`
	Error     string  `json:"error,omitempty"`
	Latency   float64 `json:"latency,omitempty"`

	// Raw buffer sample; when present the server derives Latency from it.
	BufferedEnd float64 `json:"buffered_end,omitempty"`
	CurrentTime float64 `json:"current_time,omitempty"`
	Paused      bool    `json:"paused,omitempty"`
}

const maxErrorLen = 256

type TelemetryService struct {
	// Policy judges raw buffer samples.
	Policy LatencyPolicy

	limiter   *ratelimit.Limiter
	limit     ratelimit.LimitConfig
	publisher events.Publisher
	logger    *zap.Logger
}

// NewTelemetryService allows perViewer events per 10s window for each viewer.
func NewTelemetryService(limiter *ratelimit.Limiter, perViewer int, publisher events.Publisher, logger *zap.Logger) *TelemetryService {
	if perViewer <= 0 {
		perViewer = 40
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TelemetryService{
		Policy:    DefaultLatencyPolicy(),
		limiter:   limiter,
		limit:     ratelimit.LimitConfig{Rate: perViewer, Window: 10 * time.Second},
		publisher: publisher,
		logger:    logger,
	}
}

func (s *TelemetryService) RecordEvent(ctx context.Context, evt *TelemetryEvent) error {
	// 1. Validate Payload
	if !allowedEvents[evt.EventType] {
		metricEventsDropped.WithLabelValues("invalid_type").Inc()
		return fmt.Errorf("%w: type %q", ErrInvalidEvent, evt.EventType)
	}
	if evt.ViewerID == "" || evt.SystemID == "" {
		metricEventsDropped.WithLabelValues("missing_ids").Inc()
		return fmt.Errorf("%w: viewer_id and system_id are required", ErrInvalidEvent)
	}
	evt.Error = truncate(evt.Error, maxErrorLen)
	overBuffer := false
	if evt.BufferedEnd > 0 {
		c := s.Policy.Check(evt.BufferedEnd, evt.CurrentTime, evt.Paused)
		evt.Latency = c.Latency
		overBuffer = c.Jump
	}

	// 2. Rate Limit; fail open when Redis is unavailable
	if s.limiter != nil {
		key := fmt.Sprintf("live:limit:%s", evt.ViewerID)
		d, err := s.limiter.CheckRateLimit(ctx, ratelimit.ScopeTelemetry, key, s.limit)
		switch {
		case err != nil:
			s.logger.Debug("Telemetry limiter unavailable", zap.Error(err))
		case !d.Allowed:
			metricEventsDropped.WithLabelValues("rate_limit").Inc()
			return ErrRateLimited
		}
	}

	// 3. Metrics
	metricEventsTotal.WithLabelValues(evt.EventType).Inc()
	if evt.Latency > 0 {
		metricLatency.Observe(evt.Latency)
	}
	if overBuffer {
		metricOverBuffer.Inc()
	}
	switch evt.EventType {
	case "stream_ready":
		metricPlayersActive.Inc()
	case "player_destroyed":
		metricPlayersActive.Dec()
	case "stream_error":
		s.logger.Info("Playback error reported",
			zap.String("system", evt.SystemID), zap.String("channel", evt.ChannelID), zap.String("error", evt.Error))
	}

	attrs := map[string]any{
		"event":   evt.EventType,
		"channel": evt.ChannelID,
		"latency": evt.Latency,
	}
	if evt.Error != "" {
		attrs["error"] = evt.Error
	}
	if overBuffer {
		attrs["over_buffer"] = true
	}
	events.Emit(s.publisher, s.logger, events.New(events.TypePlayback, evt.SystemID, "", attrs))
	return nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
