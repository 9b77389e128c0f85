package discovery

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/technosupport/roomview/internal/data"
	"github.com/technosupport/roomview/internal/placeos"
)

// channelsBinding is the recording device's channel list state variable.
const channelsBinding = "channels"

type channelsStrategy struct {
	binder  placeos.Binder
	domain  string
	keyword string
	timeout time.Duration
	logger  *zap.Logger
}

func newChannelsStrategy(opts Options) *channelsStrategy {
	timeout := opts.WaitTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &channelsStrategy{
		binder:  opts.Binder,
		domain:  opts.Domain,
		keyword: strings.ToLower(opts.Keyword),
		timeout: timeout,
		logger:  opts.Logger,
	}
}

func (s *channelsStrategy) Name() string { return "channels" }

func (s *channelsStrategy) Discover(ctx context.Context, t Target) []data.CameraPreview {
	if s.binder == nil {
		return nil
	}
	raw, err := s.binder.WaitFirst(ctx, t.SystemID, t.Ref, channelsBinding, s.timeout)
	if err != nil {
		s.logger.Info("No channel metadata",
			zap.String("system", t.SystemID), zap.String("module", t.Module.ID), zap.Error(err))
		metricChannelFailures.WithLabelValues(s.Name()).Inc()
		return nil
	}

	var previews []data.CameraPreview
	for _, ch := range parseChannels(raw, s.logger) {
		if !strings.Contains(strings.ToLower(ch.Name), s.keyword) {
			continue
		}
		previews = append(previews, data.CameraPreview{
			Module:    t.Module.ID,
			Label:     ch.Name,
			URL:       PreviewURL(s.domain, t.Address, ch.ID),
			ChannelID: ch.ID,
		})
	}
	return previews
}

// parseChannels decodes the channel list record by record so a single
// malformed entry is skipped instead of discarding the list.
func parseChannels(raw json.RawMessage, logger *zap.Logger) []data.ChannelRecord {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		logger.Debug("Channel list is not an array", zap.Error(err))
		return nil
	}
	out := make([]data.ChannelRecord, 0, len(items))
	for _, item := range items {
		var ch data.ChannelRecord
		if err := json.Unmarshal(item, &ch); err != nil || ch.ID == "" {
			metricChannelFailures.WithLabelValues("channels").Inc()
			continue
		}
		out = append(out, ch)
	}
	return out
}
