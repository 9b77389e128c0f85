package discovery

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/technosupport/roomview/internal/data"
	"github.com/technosupport/roomview/internal/placeos"
)

const DefaultStrategy = "channels"

// Target is a resolved recording device ready to be enumerated.
type Target struct {
	SystemID string
	Module   data.Module
	Ref      placeos.ModuleRef
	Address  string
}

// Strategy enumerates the active channels of a recording device.
// Implementations never fail: an unusable device yields no previews.
type Strategy interface {
	Name() string
	Discover(ctx context.Context, t Target) []data.CameraPreview
}

// Options carries what strategy factories may need.
type Options struct {
	Binder        placeos.Binder
	Domain        string
	Keyword       string
	WaitTimeout   time.Duration
	NDIInputs     int
	StatusTimeout time.Duration
	Logger        *zap.Logger
}

// Factory builds a Strategy.
type Factory func(opts Options) Strategy

// Registry of strategy factories
var Registry = map[string]Factory{}

// Register adds a factory under a strategy name
func Register(name string, f Factory) {
	Registry[strings.ToLower(name)] = f
}

// NewStrategy returns the named strategy. Unknown names fall back to the
// channel-metadata strategy.
func NewStrategy(name string, opts Options) Strategy {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if f, ok := Registry[strings.ToLower(strings.TrimSpace(name))]; ok {
		return f(opts)
	}
	opts.Logger.Warn("Unknown discovery strategy, using default",
		zap.String("strategy", name), zap.String("default", DefaultStrategy))
	return Registry[DefaultStrategy](opts)
}

func init() {
	Register("channels", func(opts Options) Strategy { return newChannelsStrategy(opts) })
	Register("ndi", func(opts Options) Strategy { return newNDIStrategy(opts) })
}
