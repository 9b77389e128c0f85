package discovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/technosupport/roomview/internal/config"
	"github.com/technosupport/roomview/internal/data"
	"github.com/technosupport/roomview/internal/events"
	"github.com/technosupport/roomview/internal/placeos"
)

// Service turns a system's module list into camera previews.
type Service struct {
	binder    placeos.Binder
	cache     *PreviewCache
	publisher events.Publisher
	logger    *zap.Logger

	mu       sync.RWMutex
	strategy Strategy
	role     string
	domain   string
	scope    string
}

func NewService(cfg config.DiscoveryConfig, binder placeos.Binder, cache *PreviewCache, publisher events.Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	s := &Service{binder: binder, cache: cache, publisher: publisher, logger: logger}
	s.Reconfigure(cfg)
	return s
}

// Reconfigure swaps strategy, role and domain. In-flight passes finish
// with the settings they started with.
func (s *Service) Reconfigure(cfg config.DiscoveryConfig) {
	strategy := NewStrategy(cfg.Strategy, Options{
		Binder:        s.binder,
		Domain:        cfg.ProxyDomain,
		Keyword:       cfg.Keyword,
		WaitTimeout:   cfg.ChannelTimeout,
		NDIInputs:     cfg.NDIInputs,
		StatusTimeout: cfg.NDIStatusTimeout,
		Logger:        s.logger,
	})
	role := cfg.RecordingRole
	if role == "" {
		role = "Recording"
	}

	scope := settingsScope(strategy.Name(), cfg.Keyword, cfg.ProxyDomain, role)

	s.mu.Lock()
	changed := s.strategy != nil && s.scope != scope
	s.strategy, s.role, s.domain, s.scope = strategy, role, cfg.ProxyDomain, scope
	s.mu.Unlock()

	if changed {
		s.cache.Purge()
		s.logger.Info("Discovery reconfigured", zap.String("strategy", strategy.Name()))
	}
}

// settingsScope names one combination of discovery settings. Cache keys
// carry it so entries written under other settings are never read back,
// including ones still live in Redis or written by other instances.
func settingsScope(strategy, keyword, domain, role string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{strategy, keyword, domain, role}, "|")))
	return hex.EncodeToString(sum[:6])
}

func (s *Service) cacheKey(systemID string) (Strategy, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.strategy, s.scope + ":" + systemID
}

func (s *Service) settings() (Strategy, string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.strategy, s.role, s.domain
}

// Domain is the proxy host previews and streams are served from.
func (s *Service) Domain() string {
	_, _, domain := s.settings()
	return domain
}

// SelectRecordingModule returns the first module acting as the recording
// device: its name or custom name equals role, or its id is "<role>_1".
func SelectRecordingModule(modules []data.Module, role string) (*data.Module, bool) {
	role = strings.TrimSpace(role)
	alias := role + "_1"
	for i := range modules {
		m := &modules[i]
		if strings.EqualFold(strings.TrimSpace(m.Name), role) ||
			strings.EqualFold(strings.TrimSpace(m.CustomName), role) ||
			strings.EqualFold(m.ID, alias) {
			return m, true
		}
	}
	return nil, false
}

// ResolveTarget finds the recording device and its address.
func (s *Service) ResolveTarget(systemID string, modules []data.Module) (Target, bool) {
	_, role, _ := s.settings()
	mod, ok := SelectRecordingModule(modules, role)
	if !ok {
		return Target{}, false
	}
	addr := mod.Address()
	if addr == "" {
		return Target{}, false
	}
	return Target{
		SystemID: systemID,
		Module:   *mod,
		Ref:      placeos.ModuleRef{Name: role, Index: 1},
		Address:  addr,
	}, true
}

// GeneratePreviews never fails; every problem degrades to an empty list.
func (s *Service) GeneratePreviews(ctx context.Context, systemID string, modules []data.Module) []data.CameraPreview {
	strategy, key := s.cacheKey(systemID)

	if cached, ok := s.cache.Get(ctx, key); ok {
		return cached
	}

	target, ok := s.ResolveTarget(systemID, modules)
	if !ok {
		metricRuns.WithLabelValues(strategy.Name(), "no_device").Inc()
		s.logger.Debug("No usable recording device", zap.String("system", systemID))
		return []data.CameraPreview{}
	}

	start := time.Now()
	previews := strategy.Discover(ctx, target)
	metricDuration.WithLabelValues(strategy.Name()).Observe(time.Since(start).Seconds())
	if previews == nil {
		previews = []data.CameraPreview{}
	}

	outcome := "ok"
	if len(previews) == 0 {
		outcome = "empty"
	}
	metricRuns.WithLabelValues(strategy.Name(), outcome).Inc()

	// A cancelled request must not poison the cache with an empty result.
	if ctx.Err() == nil {
		s.cache.Put(ctx, key, previews)
	}

	events.Emit(s.publisher, s.logger, events.New(events.TypeDiscoveryComplete, systemID, target.Module.ID, map[string]any{
		"strategy": strategy.Name(),
		"previews": len(previews),
	}))
	return previews
}

// Invalidate forgets the cached previews of a system under the current
// settings, so the next pass rediscovers.
func (s *Service) Invalidate(ctx context.Context, systemID string) {
	_, key := s.cacheKey(systemID)
	s.cache.Invalidate(ctx, key)
}

// StreamURL builds the live stream location for channelID on the system's
// recording device. ok is false when no device resolves.
func (s *Service) StreamURL(systemID string, modules []data.Module, channelID string) (Target, string, bool) {
	target, ok := s.ResolveTarget(systemID, modules)
	if !ok {
		return Target{}, "", false
	}
	return target, StreamURL(s.Domain(), target.Address, channelID), true
}
