package testutil

import (
	"sync"
	"time"

	"digimenu/internal/schedule"
)

// ManualTicker fires only when Tick is called. Tick blocks until the task
// loop has taken the tick.
type ManualTicker struct {
	ch chan time.Time

	mu      sync.Mutex
	stopped bool
}

func NewManualTicker() *ManualTicker {
	return &ManualTicker{ch: make(chan time.Time)}
}

// Factory plugs the ticker into schedule.WithTicker.
func (m *ManualTicker) Factory() schedule.TickerFactory {
	return func(time.Duration) schedule.Ticker { return m }
}

func (m *ManualTicker) C() <-chan time.Time { return m.ch }

func (m *ManualTicker) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

func (m *ManualTicker) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// Tick delivers one tick, giving up after a second if nobody is listening.
func (m *ManualTicker) Tick() bool {
	select {
	case m.ch <- time.Now():
		return true
	case <-time.After(time.Second):
		return false
	}
}
