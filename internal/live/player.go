package live

import "time"

// PlayerConfig is the media source handed to the MPEG-TS player.
type PlayerConfig struct {
	Type   string `json:"type"`
	IsLive bool   `json:"isLive"`
	URL    string `json:"url"`
}

// PlayerOptions tune the player for low latency. Field names follow the
// player library's option keys.
type PlayerOptions struct {
	EnableWorker                   bool    `json:"enableWorker"`
	EnableStashBuffer              bool    `json:"enableStashBuffer"`
	StashInitialSize               int     `json:"stashInitialSize"`
	LiveBufferLatencyChasing       bool    `json:"liveBufferLatencyChasing"`
	LiveBufferLatencyMaxLatency    float64 `json:"liveBufferLatencyMaxLatency"`
	LiveBufferLatencyMinRemain     float64 `json:"liveBufferLatencyMinRemain"`
	LiveBufferLatencyChaseOnStall  bool    `json:"liveBufferLatencyChaseOnStalled"`
	LiveSyncDurationCount          int     `json:"liveSyncDurationCount"`
	FixAudioTimestampGap           bool    `json:"fixAudioTimestampGap"`
	AutoCleanupSourceBuffer        bool    `json:"autoCleanupSourceBuffer"`
	AutoCleanupMaxBackwardDuration float64 `json:"autoCleanupMaxBackwardDuration"`
	AutoCleanupMinBackwardDuration float64 `json:"autoCleanupMinBackwardDuration"`
}

func DefaultPlayerOptions() PlayerOptions {
	return PlayerOptions{
		EnableWorker:                   true,
		EnableStashBuffer:              false,
		StashInitialSize:               128,
		LiveBufferLatencyChasing:       true,
		LiveBufferLatencyMaxLatency:    1.0,
		LiveBufferLatencyMinRemain:     0.3,
		LiveBufferLatencyChaseOnStall:  true,
		LiveSyncDurationCount:          3,
		FixAudioTimestampGap:           true,
		AutoCleanupSourceBuffer:        true,
		AutoCleanupMaxBackwardDuration: 5,
		AutoCleanupMinBackwardDuration: 3,
	}
}

// StreamDescriptor is everything a client needs to start playback of one
// channel: the source, player tuning and the latency policy to run locally.
type StreamDescriptor struct {
	SystemID         string        `json:"system_id"`
	Module           string        `json:"module"`
	ChannelID        string        `json:"channel_id"`
	Config           PlayerConfig  `json:"config"`
	Options          PlayerOptions `json:"options"`
	Latency          LatencyPolicy `json:"latency_policy"`
	PreviewRefreshMs int64         `json:"preview_refresh_ms"`
}

// NewStreamDescriptor wraps a stream URL with the default low-latency
// player setup.
func NewStreamDescriptor(systemID, module, channelID, streamURL string, policy LatencyPolicy, previewRefresh time.Duration) StreamDescriptor {
	return StreamDescriptor{
		SystemID:  systemID,
		Module:    module,
		ChannelID: channelID,
		Config: PlayerConfig{
			Type:   "mpegts",
			IsLive: true,
			URL:    streamURL,
		},
		Options:          DefaultPlayerOptions(),
		Latency:          policy,
		PreviewRefreshMs: previewRefresh.Milliseconds(),
	}
}
