// Package serve is the staff side: a live board of orders and delivery
// confirmation against the serve code printed for the diner.
package serve

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"digimenu/internal/domain"
	apperrors "digimenu/internal/errors"
	"digimenu/internal/notice"
	"digimenu/internal/schedule"
)

type OrderBackend interface {
	ListOrders(ctx context.Context) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, orderNumber, serveCode string, status domain.OrderStatus) error
}

// Pricer fills item names and prices into order lines for display.
type Pricer interface {
	PriceLines(lines []domain.OrderLine) []domain.OrderLine
}

type Audit interface {
	Append(ctx context.Context, entry domain.DeliveredAuditEntry) error
}

// BoardOrder is one row of the staff board.
type BoardOrder struct {
	OrderNumber string             `json:"orderNumber"`
	TableNumber int                `json:"tableNumber"`
	Status      domain.OrderStatus `json:"status"`
	Total       string             `json:"total"`
	Lines       []domain.OrderLine `json:"lines"`
	CreatedAt   time.Time          `json:"createdAt"`
	Input       string             `json:"input"`
}

type Board struct {
	backend OrderBackend
	pricer  Pricer
	audit   Audit
	notices notice.Notifier
	now     func() time.Time
	logger  *zap.Logger
	task    *schedule.Task

	mu        sync.Mutex
	orders    map[string]domain.Order
	order     []string
	inputs    map[string]string
	lastError string
	fetchedAt time.Time
	listeners []func([]BoardOrder)
}

func NewBoard(
	backend OrderBackend,
	pricer Pricer,
	audit Audit,
	notices notice.Notifier,
	interval time.Duration,
	logger *zap.Logger,
	opts ...schedule.Option,
) *Board {
	b := &Board{
		backend: backend,
		pricer:  pricer,
		audit:   audit,
		notices: notices,
		now:     time.Now,
		logger:  logger.With(zap.String("component", "serveBoard")),
		orders:  make(map[string]domain.Order),
		inputs:  make(map[string]string),
	}
	opts = append([]schedule.Option{schedule.WithImmediateRun()}, opts...)
	b.task = schedule.NewTask("serve-board", interval, b.Poll, b.logger, opts...)
	return b
}

// Start begins polling with an immediate first fetch.
func (b *Board) Start(ctx context.Context) error {
	return b.task.Start(ctx)
}

func (b *Board) Stop() {
	b.task.Stop()
}

// Refresh fetches now unless a fetch is already running.
func (b *Board) Refresh() bool {
	return b.task.Trigger()
}

// OnUpdate registers fn to receive the board after every fetch or delivery.
func (b *Board) OnUpdate(fn func([]BoardOrder)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// Poll fetches the order collection and merges it into the board. A status
// already known locally is never replaced by an earlier one.
func (b *Board) Poll(ctx context.Context) schedule.Result {
	orders, err := b.backend.ListOrders(ctx)
	if ctx.Err() != nil {
		return schedule.Continue
	}
	if err != nil {
		b.logger.Warn("fetching orders for board", zap.Error(err))
		b.mu.Lock()
		b.lastError = err.Error()
		b.mu.Unlock()
		return schedule.Continue
	}

	b.mu.Lock()
	next := make(map[string]domain.Order, len(orders))
	seq := make([]string, 0, len(orders))
	for _, o := range orders {
		if prev, ok := b.orders[o.OrderNumber]; ok && prev.Status.Rank() > o.Status.Rank() {
			o.Status = prev.Status
		}
		if _, dup := next[o.OrderNumber]; !dup {
			seq = append(seq, o.OrderNumber)
		}
		next[o.OrderNumber] = o
	}
	b.orders = next
	b.order = seq
	b.lastError = ""
	b.fetchedAt = b.now()
	for n := range b.inputs {
		if _, ok := next[n]; !ok {
			delete(b.inputs, n)
		}
	}
	b.mu.Unlock()

	b.publish()
	return schedule.Continue
}

// Orders returns the board, newest order first. With pendingOnly set,
// delivered orders are left out.
func (b *Board) Orders(pendingOnly bool) []BoardOrder {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rowsLocked(pendingOnly)
}

func (b *Board) LastError() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastError
}

// SetInput keeps the staff's draft serve code for an order.
func (b *Board) SetInput(orderNumber, code string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if code == "" {
		delete(b.inputs, orderNumber)
		return
	}
	b.inputs[orderNumber] = code
}

func (b *Board) Input(orderNumber string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inputs[orderNumber]
}

// Deliver asks the backend to mark orderNumber delivered using the serve
// code the diner presented. The backend decides whether the code matches;
// its refusal is passed on unchanged and nothing changes locally.
func (b *Board) Deliver(ctx context.Context, orderNumber, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return apperrors.NewValidationError("serve code is required",
			apperrors.ValidationDetail{Field: "serveCode", Message: "must not be empty"})
	}

	b.mu.Lock()
	known, ok := b.orders[orderNumber]
	if ok && known.Status.Terminal() {
		b.mu.Unlock()
		return apperrors.NewConflictError(fmt.Sprintf("order #%s is already delivered", orderNumber))
	}
	b.mu.Unlock()

	logger := b.logger.With(zap.String("orderNumber", orderNumber))
	if err := b.backend.UpdateOrderStatus(ctx, orderNumber, code, domain.OrderStatusDelivered); err != nil {
		logger.Warn("delivery rejected", zap.Error(err))
		b.notices.Post(notice.KindError, orderNumber, rejectionMessage(err))
		return err
	}

	now := b.now()
	b.mu.Lock()
	if cur, ok := b.orders[orderNumber]; ok {
		cur.Status = domain.OrderStatusDelivered
		b.orders[orderNumber] = cur
		known = cur
	}
	delete(b.inputs, orderNumber)
	b.mu.Unlock()

	entry := domain.DeliveredAuditEntry{
		OrderNumber: orderNumber,
		ServeCode:   code,
		TableNumber: known.TableNumber,
		Lines:       b.pricer.PriceLines(known.Lines),
		Total:       known.TotalAmount,
		Status:      domain.OrderStatusDelivered,
		DeliveredAt: now,
	}
	if err := b.audit.Append(ctx, entry); err != nil {
		logger.Error("recording delivery", zap.Error(err))
	}

	logger.Info("order delivered")
	b.notices.Post(notice.KindSuccess, orderNumber, fmt.Sprintf("Order #%s marked as delivered", orderNumber))
	b.publish()
	return nil
}

func rejectionMessage(err error) string {
	if ae, ok := apperrors.IsAuthorizationError(err); ok {
		return ae.Message
	}
	if ve, ok := apperrors.IsValidationError(err); ok {
		return ve.Message
	}
	return "Could not update the order, try again"
}

func (b *Board) rowsLocked(pendingOnly bool) []BoardOrder {
	rows := make([]BoardOrder, 0, len(b.order))
	for _, n := range b.order {
		o := b.orders[n]
		if pendingOnly && o.Status.Terminal() {
			continue
		}
		rows = append(rows, BoardOrder{
			OrderNumber: o.OrderNumber,
			TableNumber: o.TableNumber,
			Status:      o.Status,
			Total:       o.TotalAmount.StringFixed(2),
			Lines:       b.pricer.PriceLines(o.Lines),
			CreatedAt:   o.CreatedAt,
			Input:       b.inputs[n],
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	return rows
}

func (b *Board) publish() {
	b.mu.Lock()
	if len(b.listeners) == 0 {
		b.mu.Unlock()
		return
	}
	rows := b.rowsLocked(false)
	listeners := make([]func([]BoardOrder), len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(rows)
	}
}
