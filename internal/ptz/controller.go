package ptz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/technosupport/roomview/internal/events"
	"github.com/technosupport/roomview/internal/placeos"
)

var (
	ErrHomeInFlight = errors.New("ptz: home already in progress")
	ErrUnknownAxis  = errors.New("ptz: unknown axis")
)

// Executor invokes camera methods on the platform.
type Executor interface {
	Execute(ctx context.Context, systemID string, ref placeos.ModuleRef, method string, args ...any) (json.RawMessage, error)
}

// Options configures controllers. Zero values take the dashboard defaults.
type Options struct {
	RepeatInterval time.Duration
	MaxRadius      float64
	Deadzone       float64
	CommandTimeout time.Duration
	Clock          Clock
	Publisher      events.Publisher
	Logger         *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.RepeatInterval <= 0 {
		o.RepeatInterval = 100 * time.Millisecond
	}
	if o.MaxRadius <= 0 {
		o.MaxRadius = 80
	}
	if o.Deadzone <= 0 {
		o.Deadzone = 10
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 2 * time.Second
	}
	if o.Clock == nil {
		o.Clock = RealClock{}
	}
	if o.Publisher == nil {
		o.Publisher = events.Nop{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Controller drives one camera's pan/tilt joystick and zoom slider. The
// two axes are independent. Home is one-shot and goes through HomeGuard.
type Controller struct {
	systemID string
	ref      placeos.ModuleRef
	exec     Executor
	opts     Options

	axes map[Kind]*Axis
	once sync.Once
}

func NewController(systemID string, ref placeos.ModuleRef, exec Executor, opts Options) *Controller {
	opts = opts.withDefaults()
	c := &Controller{
		systemID: systemID,
		ref:      ref,
		exec:     exec,
		opts:     opts,
	}
	logger := opts.Logger.With(zap.String("system", systemID), zap.String("module", ref.Slug()))
	cfg := AxisConfig{
		Params:         Params{MaxRadius: opts.MaxRadius, Deadzone: opts.Deadzone},
		RepeatInterval: opts.RepeatInterval,
		CommandTimeout: opts.CommandTimeout,
		Clock:          opts.Clock,
		Logger:         logger,
	}
	c.axes = map[Kind]*Axis{
		PanTilt: NewAxis(PanTilt, cfg, c.sender(PanTilt)),
		Zoom:    NewAxis(Zoom, cfg, c.sender(Zoom)),
	}
	return c
}

// sender executes a command and publishes edge commands and stops.
// Repeats are not published.
func (c *Controller) sender(kind Kind) Sender {
	var last Command
	return func(ctx context.Context, cmd Command) error {
		_, err := c.exec.Execute(ctx, c.systemID, c.ref, cmd.Method, cmd.Args()...)
		if cmd != last || cmd == StopCommand {
			events.Emit(c.opts.Publisher, c.opts.Logger, events.New(events.TypePTZCommand, c.systemID, c.ref.Slug(), map[string]any{
				"axis":    string(kind),
				"command": cmd.String(),
				"ok":      err == nil,
			}))
		}
		last = cmd
		return err
	}
}

func (c *Controller) Axis(kind Kind) (*Axis, error) {
	a, ok := c.axes[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAxis, kind)
	}
	return a, nil
}

// Close releases both axes. Active drags get their stop; no timer survives.
func (c *Controller) Close() {
	c.once.Do(func() {
		var wg sync.WaitGroup
		for _, a := range c.axes {
			wg.Add(1)
			go func(a *Axis) {
				defer wg.Done()
				a.Close()
			}(a)
		}
		wg.Wait()
	})
}

// HomeGuard runs one-shot home commands and rejects a second request for
// the same camera while the first is in flight.
type HomeGuard struct {
	exec      Executor
	publisher events.Publisher
	logger    *zap.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewHomeGuard(exec Executor, publisher events.Publisher, logger *zap.Logger) *HomeGuard {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HomeGuard{exec: exec, publisher: publisher, logger: logger, inflight: make(map[string]struct{})}
}

func (h *HomeGuard) Home(ctx context.Context, systemID string, ref placeos.ModuleRef) error {
	key := systemID + "/" + ref.Slug()

	h.mu.Lock()
	if _, busy := h.inflight[key]; busy {
		h.mu.Unlock()
		return ErrHomeInFlight
	}
	h.inflight[key] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.inflight, key)
		h.mu.Unlock()
	}()

	_, err := h.exec.Execute(ctx, systemID, ref, HomeCommand.Method)
	result := "ok"
	if err != nil {
		result = "error"
		h.logger.Warn("PTZ home failed", zap.String("system", systemID), zap.String("module", ref.Slug()), zap.Error(err))
	}
	metricCommands.WithLabelValues(HomeCommand.Method, result).Inc()
	events.Emit(h.publisher, h.logger, events.New(events.TypePTZHome, systemID, ref.Slug(), map[string]any{"ok": err == nil}))
	return err
}
