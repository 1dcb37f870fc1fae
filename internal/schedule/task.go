// Package schedule runs a function on a fixed interval until it is stopped
// or reports that it is finished.
package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	apperrors "digimenu/internal/errors"
)

type Result int

const (
	Continue Result = iota
	Done
)

// Func is one run of a task. Returning Done stops the task; no run starts
// after that.
type Func func(ctx context.Context) Result

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFactory func(d time.Duration) Ticker

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

type Option func(*Task)

// WithTicker replaces the wall-clock ticker, mainly for tests.
func WithTicker(f TickerFactory) Option {
	return func(t *Task) { t.newTicker = f }
}

// WithImmediateRun makes Start run the function once before the first tick.
func WithImmediateRun() Option {
	return func(t *Task) { t.immediate = true }
}

type Task struct {
	name      string
	interval  time.Duration
	fn        Func
	logger    *zap.Logger
	newTicker TickerFactory
	immediate bool

	busy atomic.Bool

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewTask(name string, interval time.Duration, fn Func, logger *zap.Logger, opts ...Option) *Task {
	t := &Task{
		name:      name,
		interval:  interval,
		fn:        fn,
		logger:    logger.With(zap.String("task", name)),
		newTicker: NewTimeTicker,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start launches the loop. A task can be started only once.
func (t *Task) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return apperrors.NewConflictError("task " + t.name + " already started")
	}
	t.started = true
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})

	ticker := t.newTicker(t.interval)
	go t.loop(ticker)
	t.logger.Debug("task started", zap.Duration("interval", t.interval))
	return nil
}

func (t *Task) loop(ticker Ticker) {
	defer close(t.done)
	defer ticker.Stop()

	if t.immediate {
		t.run()
	}
	for {
		select {
		case <-t.ctx.Done():
			t.logger.Debug("task stopped")
			return
		case <-ticker.C():
			t.run()
		}
	}
}

// Trigger runs the function now on the caller's goroutine. It reports false
// when the run was skipped because another run is in flight or the task is
// not running.
func (t *Task) Trigger() bool {
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()
	if !started {
		return false
	}
	return t.run()
}

func (t *Task) run() bool {
	if !t.busy.CompareAndSwap(false, true) {
		t.logger.Debug("previous run still in flight, skipping")
		return false
	}
	defer t.busy.Store(false)

	if t.ctx.Err() != nil {
		return false
	}
	if t.fn(t.ctx) == Done {
		t.logger.Debug("task finished")
		t.cancel()
	}
	return true
}

// Stop cancels the task and waits for its loop to exit. It must not be
// called from inside the task's own function; return Done there instead.
func (t *Task) Stop() {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return
	}
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	cancel()
	<-done
}

// Done is closed once the loop has exited.
func (t *Task) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done == nil {
		return nil
	}
	return t.done
}

func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started && t.ctx.Err() == nil
}
