package live

import (
	"math"
	"net/url"
	"strconv"
	"time"
)

// LatencyPolicy says how often the client checks its buffer and when it
// jumps forward to the live edge.
type LatencyPolicy struct {
	IntervalMs int64   `json:"interval_ms"`
	MaxBuffer  float64 `json:"max_buffer_seconds"`
	SeekBack   float64 `json:"seek_back_seconds"`
}

func DefaultLatencyPolicy() LatencyPolicy {
	return LatencyPolicy{IntervalMs: 1000, MaxBuffer: 2.0, SeekBack: 0.5}
}

// LatencyCheck is the outcome of one buffer inspection.
type LatencyCheck struct {
	Latency float64 // seconds, two decimals
	Jump    bool
	SeekTo  float64
}

// Check measures buffered-ahead time. When it exceeds MaxBuffer on a
// playing video the client should seek to bufferedEnd-SeekBack.
func (p LatencyPolicy) Check(bufferedEnd, currentTime float64, paused bool) LatencyCheck {
	buffer := bufferedEnd - currentTime
	res := LatencyCheck{Latency: math.Round(buffer*100) / 100}
	if buffer > p.MaxBuffer && !paused {
		res.Jump = true
		res.SeekTo = bufferedEnd - p.SeekBack
	}
	return res
}

// CacheBust adds a t=<bucket> parameter that changes once per interval so
// preview images refresh without defeating caching within an interval.
func CacheBust(rawURL string, now time.Time, interval time.Duration) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	bucket := now.UnixMilli() / interval.Milliseconds()
	// append rather than re-encode: preview queries must stay byte-identical
	sep := "&"
	if u.RawQuery == "" {
		sep = "?"
	}
	return rawURL + sep + "t=" + strconv.FormatInt(bucket, 10)
}
