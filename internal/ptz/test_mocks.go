package ptz

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/technosupport/roomview/internal/placeos"
)

// MockExecutor records camera method calls.
type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, systemID string, ref placeos.ModuleRef, method string, args ...any) (json.RawMessage, error) {
	ret := m.Called(systemID, ref.Slug(), method, args)
	raw, _ := ret.Get(0).(json.RawMessage)
	return raw, ret.Error(1)
}

// ManualClock fires repeat timers only when Tick is called.
type ManualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	clock   *ManualClock
	fn      func()
	stopped bool
}

func (c *ManualClock) Every(_ time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() {
	t.clock.mu.Lock()
	t.stopped = true
	t.clock.mu.Unlock()
}

// Tick fires every running timer once.
func (c *ManualClock) Tick() {
	for _, t := range c.snapshot(false) {
		t.fn()
	}
}

// FireStale fires timers that were already stopped, as a real ticker might
// when its tick races with Stop.
func (c *ManualClock) FireStale() {
	for _, t := range c.snapshot(true) {
		t.fn()
	}
}

// Running counts timers that have not been stopped.
func (c *ManualClock) Running() int {
	return len(c.snapshot(false))
}

func (c *ManualClock) snapshot(stopped bool) []*manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*manualTimer
	for _, t := range c.timers {
		if t.stopped == stopped {
			out = append(out, t)
		}
	}
	return out
}
