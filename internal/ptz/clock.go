package ptz

import (
	"sync"
	"time"
)

// Clock schedules repeating work. Tests substitute a manual clock.
type Clock interface {
	Every(d time.Duration, fn func()) Timer
}

// Timer cancels a repeating schedule. Stop is idempotent.
type Timer interface {
	Stop()
}

// RealClock runs fn on a time.Ticker.
type RealClock struct{}

func (RealClock) Every(d time.Duration, fn func()) Timer {
	t := &tickerTimer{ticker: time.NewTicker(d), quit: make(chan struct{})}
	go func() {
		for {
			select {
			case <-t.quit:
				return
			case <-t.ticker.C:
				fn()
			}
		}
	}()
	return t
}

type tickerTimer struct {
	ticker *time.Ticker
	quit   chan struct{}
	once   sync.Once
}

func (t *tickerTimer) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.quit)
	})
}
