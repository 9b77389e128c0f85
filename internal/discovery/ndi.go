package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/technosupport/roomview/internal/data"
	"github.com/technosupport/roomview/internal/placeos"
)

// MaxNDIInputs is the number of input slots on the encoder.
const MaxNDIInputs = 20

type ndiStrategy struct {
	binder  placeos.Binder
	domain  string
	inputs  int
	timeout time.Duration
	logger  *zap.Logger
}

func newNDIStrategy(opts Options) *ndiStrategy {
	inputs := opts.NDIInputs
	if inputs <= 0 || inputs > MaxNDIInputs {
		inputs = MaxNDIInputs
	}
	timeout := opts.StatusTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	return &ndiStrategy{
		binder:  opts.Binder,
		domain:  opts.Domain,
		inputs:  inputs,
		timeout: timeout,
		logger:  opts.Logger,
	}
}

func (s *ndiStrategy) Name() string { return "ndi" }

// Discover checks every input in parallel. Each check has its own timeout and
// a failed check only marks that input inactive.
func (s *ndiStrategy) Discover(ctx context.Context, t Target) []data.CameraPreview {
	if s.binder == nil {
		return nil
	}
	active := make([]bool, s.inputs+1)

	var wg sync.WaitGroup
	for i := 1; i <= s.inputs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			active[i] = s.inputActive(ctx, t, i)
		}(i)
	}
	wg.Wait()

	label := t.Module.DisplayName()
	var previews []data.CameraPreview
	for i := 1; i <= s.inputs; i++ {
		if !active[i] {
			continue
		}
		previews = append(previews, data.CameraPreview{
			Module: t.Module.ID,
			Label:  fmt.Sprintf("%s - NDI%d", label, i),
			URL:    NDIPreviewURL(s.domain, t.Address, i),
			Input:  i,
		})
	}
	return previews
}

func (s *ndiStrategy) inputActive(ctx context.Context, t Target, input int) bool {
	key := fmt.Sprintf("NDI%d_video_status", input)
	raw, err := s.binder.WaitFirst(ctx, t.SystemID, t.Ref, key, s.timeout)
	if err != nil {
		metricChannelFailures.WithLabelValues(s.Name()).Inc()
		s.logger.Debug("NDI status check failed", zap.String("status", key), zap.Error(err))
		return false
	}
	var on bool
	if err := json.Unmarshal(raw, &on); err != nil {
		return false
	}
	return on
}
