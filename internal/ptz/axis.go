package ptz

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sender delivers one command to the camera.
type Sender func(ctx context.Context, cmd Command) error

// queueDepth bounds how long a gesture call can stall behind a camera that
// never answers: once the queue is full an edge command or stop waits for
// the worker, so a caller holds for at most about (queueDepth+1) times
// CommandTimeout. At the 2s default that is 18s; usually one send.
const queueDepth = 8

// dispatch is a queued command; repeat marks timer-driven resends.
type dispatch struct {
	cmd    Command
	repeat bool
}

// Axis runs one gesture state machine with its own repeat timer. Commands
// leave the axis in the order they were decided, through a single worker.
type Axis struct {
	kind     Kind
	params   Params
	interval time.Duration
	timeout  time.Duration
	clock    Clock
	send     Sender
	logger   *zap.Logger

	mu      sync.Mutex
	gesture Gesture
	timer   Timer
	gen     uint64 // bumped whenever the timer is replaced or cancelled
	closed  bool

	queue chan dispatch
	done  chan struct{}
}

// AxisConfig holds the timing and bounds of an axis.
type AxisConfig struct {
	Params         Params
	RepeatInterval time.Duration
	CommandTimeout time.Duration
	Clock          Clock
	Logger         *zap.Logger
}

func NewAxis(kind Kind, cfg AxisConfig, send Sender) *Axis {
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RepeatInterval <= 0 {
		cfg.RepeatInterval = 100 * time.Millisecond
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 2 * time.Second
	}
	a := &Axis{
		kind:     kind,
		params:   cfg.Params,
		interval: cfg.RepeatInterval,
		timeout:  cfg.CommandTimeout,
		clock:    cfg.Clock,
		send:     send,
		logger:   cfg.Logger.With(zap.String("axis", string(kind))),
		gesture:  Gesture{Kind: kind},
		queue:    make(chan dispatch, queueDepth),
		done:     make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Axis) Start(x, y float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	wasDragging := a.gesture.Dragging
	var tr Transition
	a.gesture, tr = a.gesture.Start(x, y, a.params)
	if !wasDragging {
		metricActiveGestures.Inc()
	}
	a.apply(tr)
}

func (a *Axis) Move(x, y float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	var tr Transition
	a.gesture, tr = a.gesture.Move(x, y, a.params)
	a.apply(tr)
}

func (a *Axis) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.release()
}

// State returns a copy of the current gesture.
func (a *Axis) State() Gesture {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gesture
}

// Close releases an active drag (sending its stop), then waits until every
// queued command has been sent.
func (a *Axis) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return
	}
	a.release()
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	<-a.done
}

// release must be called with mu held.
func (a *Axis) release() {
	wasDragging := a.gesture.Dragging
	var tr Transition
	a.gesture, tr = a.gesture.Release()
	if wasDragging {
		metricActiveGestures.Dec()
	}
	a.apply(tr)
}

// apply must be called with mu held.
func (a *Axis) apply(tr Transition) {
	switch tr.Action {
	case Repeat:
		a.cancelTimer()
		a.enqueue(dispatch{cmd: tr.Command})
		gen := a.gen
		cmd := tr.Command
		a.timer = a.clock.Every(a.interval, func() { a.tick(gen, cmd) })
	case Stop:
		a.cancelTimer()
		a.enqueue(dispatch{cmd: tr.Command})
	}
}

func (a *Axis) cancelTimer() {
	a.gen++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// tick resends cmd unless the timer that scheduled it has been replaced.
func (a *Axis) tick(gen uint64, cmd Command) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || gen != a.gen {
		return
	}
	a.enqueue(dispatch{cmd: cmd, repeat: true})
}

// enqueue must be called with mu held. Repeats are dropped when the camera
// is not keeping up; edge commands and stops always wait for room.
func (a *Axis) enqueue(d dispatch) {
	if d.repeat {
		select {
		case a.queue <- d:
		default:
			metricCommands.WithLabelValues(d.cmd.Method, "dropped").Inc()
		}
		return
	}
	a.queue <- d
}

func (a *Axis) run() {
	defer close(a.done)
	for d := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := a.send(ctx, d.cmd)
		cancel()
		if err != nil {
			metricCommands.WithLabelValues(d.cmd.Method, "error").Inc()
			a.logger.Warn("PTZ command failed", zap.String("command", d.cmd.String()), zap.Error(err))
			continue
		}
		metricCommands.WithLabelValues(d.cmd.Method, "ok").Inc()
	}
}
