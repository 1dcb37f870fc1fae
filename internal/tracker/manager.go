package tracker

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"digimenu/internal/notice"
	"digimenu/internal/schedule"
)

// Manager runs one Poller per open order. Pollers are started on the
// manager's context, not the caller's, so a request ending does not stop
// tracking.
type Manager struct {
	source   OrderSource
	history  History
	notices  notice.Notifier
	interval time.Duration
	logger   *zap.Logger
	opts     []schedule.Option

	mu      sync.Mutex
	base    context.Context
	pollers map[string]*Poller
}

func NewManager(
	source OrderSource,
	history History,
	notices notice.Notifier,
	interval time.Duration,
	logger *zap.Logger,
	opts ...schedule.Option,
) *Manager {
	return &Manager{
		source:   source,
		history:  history,
		notices:  notices,
		interval: interval,
		logger:   logger,
		opts:     opts,
		base:     context.Background(),
		pollers:  make(map[string]*Poller),
	}
}

// Resume binds the manager to ctx and starts tracking every order in
// history that has not been delivered yet.
func (m *Manager) Resume(ctx context.Context) error {
	m.mu.Lock()
	m.base = ctx
	m.mu.Unlock()

	open := m.history.Open()
	for _, e := range open {
		if err := m.Track(ctx, e.OrderNumber); err != nil {
			return err
		}
	}
	m.logger.Info("order tracking resumed", zap.Int("orders", len(open)))
	return nil
}

// Track starts polling orderNumber. Tracking an order that is already being
// polled is a no-op.
func (m *Manager) Track(_ context.Context, orderNumber string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.pollers[orderNumber]; ok && p.Running() {
		return nil
	}

	p := NewPoller(orderNumber, m.source, m.history, m.notices, m.interval, m.logger, m.opts...)
	if err := p.Start(m.base); err != nil {
		return err
	}
	m.pollers[orderNumber] = p
	m.logger.Info("tracking order", zap.String("orderNumber", orderNumber))

	go func() {
		<-p.Done()
		m.mu.Lock()
		if m.pollers[orderNumber] == p {
			delete(m.pollers, orderNumber)
		}
		m.mu.Unlock()
	}()
	return nil
}

func (m *Manager) Untrack(orderNumber string) {
	m.mu.Lock()
	p, ok := m.pollers[orderNumber]
	delete(m.pollers, orderNumber)
	m.mu.Unlock()

	if ok {
		p.Stop()
		m.logger.Info("stopped tracking order", zap.String("orderNumber", orderNumber))
	}
}

func (m *Manager) StopAll() {
	m.mu.Lock()
	pollers := make([]*Poller, 0, len(m.pollers))
	for _, p := range m.pollers {
		pollers = append(pollers, p)
	}
	m.pollers = make(map[string]*Poller)
	m.mu.Unlock()

	for _, p := range pollers {
		p.Stop()
	}
}

// Tracked lists the orders currently being polled.
func (m *Manager) Tracked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.pollers))
	for n, p := range m.pollers {
		if p.Running() {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}
