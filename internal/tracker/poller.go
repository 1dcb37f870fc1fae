// Package tracker follows placed orders on the backend until they are
// delivered and mirrors their status into the local history.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"digimenu/internal/domain"
	"digimenu/internal/notice"
	"digimenu/internal/schedule"
)

type OrderSource interface {
	ListOrders(ctx context.Context) ([]domain.Order, error)
}

type History interface {
	UpdateStatus(ctx context.Context, orderNumber string, status domain.OrderStatus, now time.Time) (bool, error)
	Open() []domain.HistoryEntry
}

// Poller watches a single order. Each run fetches the order collection and
// moves the history entry forward when the backend reports a later status.
// It stops itself once the order is delivered.
type Poller struct {
	orderNumber string
	source      OrderSource
	history     History
	notices     notice.Notifier
	now         func() time.Time
	logger      *zap.Logger
	task        *schedule.Task

	mu   sync.Mutex
	last domain.OrderStatus
}

func NewPoller(
	orderNumber string,
	source OrderSource,
	history History,
	notices notice.Notifier,
	interval time.Duration,
	logger *zap.Logger,
	opts ...schedule.Option,
) *Poller {
	p := &Poller{
		orderNumber: orderNumber,
		source:      source,
		history:     history,
		notices:     notices,
		now:         time.Now,
		logger:      logger.With(zap.String("orderNumber", orderNumber)),
	}
	p.task = schedule.NewTask("order-"+orderNumber, interval, p.Poll, p.logger, opts...)
	return p
}

func (p *Poller) Start(ctx context.Context) error {
	return p.task.Start(ctx)
}

func (p *Poller) Stop() {
	p.task.Stop()
}

func (p *Poller) Done() <-chan struct{} {
	return p.task.Done()
}

func (p *Poller) Running() bool {
	return p.task.Running()
}

// LastStatus is the most advanced status seen so far.
func (p *Poller) LastStatus() domain.OrderStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Poll runs one synchronization step.
func (p *Poller) Poll(ctx context.Context) schedule.Result {
	orders, err := p.source.ListOrders(ctx)
	if ctx.Err() != nil {
		return schedule.Continue
	}
	if err != nil {
		p.logger.Warn("fetching order status", zap.Error(err))
		p.notices.Post(notice.KindWarning, p.orderNumber,
			fmt.Sprintf("Could not refresh order #%s, retrying", p.orderNumber))
		return schedule.Continue
	}

	var found *domain.Order
	for i := range orders {
		if orders[i].OrderNumber == p.orderNumber {
			found = &orders[i]
			break
		}
	}
	if found == nil || !found.Status.Known() {
		return schedule.Continue
	}

	p.mu.Lock()
	advances := p.last.Advances(found.Status)
	p.mu.Unlock()
	if !advances {
		return schedule.Continue
	}

	// last only moves once history holds the status.
	changed, err := p.history.UpdateStatus(ctx, p.orderNumber, found.Status, p.now())
	if err != nil {
		p.logger.Error("updating order history", zap.String("status", string(found.Status)), zap.Error(err))
		return schedule.Continue
	}

	p.mu.Lock()
	p.last = found.Status
	p.mu.Unlock()

	if found.Status.Terminal() {
		p.logger.Info("order delivered, tracking finished")
		p.notices.Post(notice.KindSuccess, p.orderNumber,
			fmt.Sprintf("Order #%s has been delivered", p.orderNumber))
		return schedule.Done
	}
	if changed {
		p.notices.Post(notice.KindInfo, p.orderNumber,
			fmt.Sprintf("Order #%s is now %s", p.orderNumber, found.Status))
	}
	return schedule.Continue
}
