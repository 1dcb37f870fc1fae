// Package session drives one diner's checkout: cart snapshot, order
// creation, the payment handshake and its confirmation.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"digimenu/internal/backend"
	"digimenu/internal/domain"
	apperrors "digimenu/internal/errors"
	"digimenu/internal/notice"
)

type State string

const (
	StateIdle            State = "Idle"
	StateSubmitting      State = "Submitting"
	StateAwaitingPayment State = "AwaitingPayment"
	StateConfirmed       State = "Confirmed"
	StateFailed          State = "Failed"
)

// busy reports whether a checkout is in flight and must not be disturbed.
func (s State) busy() bool {
	return s == StateSubmitting || s == StateAwaitingPayment
}

type OrderBackend interface {
	CreateOrder(ctx context.Context, req backend.CreateOrderRequest) (*domain.Order, error)
	CreatePaymentOrder(ctx context.Context, orderNumber string, amountMinor int64) (*domain.PaymentHandshake, error)
	VerifyPayment(ctx context.Context, cb domain.PaymentCallback) error
}

type Cart interface {
	Lines() []domain.CartLine
	Clear(ctx context.Context) error
	Replace(ctx context.Context, lines []domain.CartLine) error
}

type History interface {
	Append(ctx context.Context, entry domain.HistoryEntry) error
}

type Catalog interface {
	Item(id int) (domain.MenuItem, error)
}

// Tracker starts background status polling for a placed order.
type Tracker interface {
	Track(ctx context.Context, orderNumber string) error
}

// View is a point-in-time copy of the controller for display.
type View struct {
	State     State                    `json:"state"`
	Table     int                      `json:"table"`
	Order     *domain.Order            `json:"order,omitempty"`
	Handshake *domain.PaymentHandshake `json:"handshake,omitempty"`
	LastError string                   `json:"lastError,omitempty"`
}

type ReorderResult struct {
	Lines   []domain.CartLine `json:"lines"`
	Skipped []int             `json:"skipped"`
}

type Controller struct {
	backend   OrderBackend
	cart      Cart
	history   History
	catalog   Catalog
	tracker   Tracker
	notices   notice.Notifier
	maxTables int
	now       func() time.Time
	logger    *zap.Logger

	mu        sync.Mutex
	state     State
	table     int
	attempt   uint64
	verifying bool
	order     *domain.Order
	handshake *domain.PaymentHandshake
	lastError string
}

func NewController(
	backend OrderBackend,
	cart Cart,
	history History,
	catalog Catalog,
	tracker Tracker,
	notices notice.Notifier,
	maxTables int,
	logger *zap.Logger,
) *Controller {
	return &Controller{
		backend:   backend,
		cart:      cart,
		history:   history,
		catalog:   catalog,
		tracker:   tracker,
		notices:   notices,
		maxTables: maxTables,
		now:       time.Now,
		logger:    logger,
		state:     StateIdle,
	}
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{State: c.state, Table: c.table, LastError: c.lastError}
	if c.order != nil {
		o := *c.order
		v.Order = &o
	}
	if c.handshake != nil {
		hs := *c.handshake
		v.Handshake = &hs
	}
	return v
}

func (c *Controller) SelectTable(table int) error {
	if table < 1 || table > c.maxTables {
		return apperrors.NewValidationError("invalid table number",
			apperrors.ValidationDetail{Field: "table", Message: fmt.Sprintf("must be between 1 and %d", c.maxTables)})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.busy() {
		return apperrors.NewConflictError("cannot change table during checkout")
	}
	c.table = table
	c.logger.Info("table selected", zap.Int("table", table))
	return nil
}

// Checkout places the cart as an order and opens the payment handshake.
// Nothing is sent when the cart is empty or no table is selected.
func (c *Controller) Checkout(ctx context.Context) (*domain.PaymentHandshake, error) {
	c.mu.Lock()
	if c.state.busy() {
		c.mu.Unlock()
		return nil, apperrors.NewConflictError("a checkout is already in progress")
	}
	table := c.table
	cartLines := c.cart.Lines()

	var details []apperrors.ValidationDetail
	if table == 0 {
		details = append(details, apperrors.ValidationDetail{Field: "table", Message: "select a table first"})
	}
	if len(cartLines) == 0 {
		details = append(details, apperrors.ValidationDetail{Field: "cart", Message: "cart is empty"})
	}
	if len(details) > 0 {
		c.mu.Unlock()
		return nil, apperrors.NewValidationError("cannot check out", details...)
	}

	c.attempt++
	attempt := c.attempt
	c.state = StateSubmitting
	c.order = nil
	c.handshake = nil
	c.lastError = ""
	c.mu.Unlock()

	lines := domain.LinesFromCart(cartLines)
	total := domain.SumLines(lines)
	logger := c.logger.With(zap.Uint64("attempt", attempt), zap.Int("table", table))
	logger.Info("checkout started", zap.Int("lines", len(lines)), zap.String("total", total.String()))

	order, err := c.backend.CreateOrder(ctx, backend.CreateOrderRequest{
		TableNumber:    table,
		Lines:          lines,
		Total:          total,
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		return nil, c.fail(attempt, "Could not place your order", err)
	}
	if !order.TotalAmount.IsZero() && !order.TotalAmount.Equal(total) {
		logger.Warn("backend total differs from cart total",
			zap.String("orderNumber", order.OrderNumber),
			zap.String("backendTotal", order.TotalAmount.String()))
	}

	snapshot := *order
	snapshot.TableNumber = table
	snapshot.Lines = lines
	snapshot.TotalAmount = total
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = c.now()
	}

	hs, err := c.backend.CreatePaymentOrder(ctx, order.OrderNumber, domain.MinorUnits(total))
	if err != nil {
		return nil, c.fail(attempt, "Could not start payment", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if attempt != c.attempt {
		logger.Info("discarding stale checkout result", zap.String("orderNumber", order.OrderNumber))
		return nil, apperrors.NewConflictError("checkout was cancelled")
	}
	c.state = StateAwaitingPayment
	c.order = &snapshot
	c.handshake = hs

	logger.Info("awaiting payment", zap.String("orderNumber", order.OrderNumber), zap.String("providerOrderId", hs.ProviderOrderID))
	out := *hs
	return &out, nil
}

// ConfirmPayment applies the provider's success callback for the pending
// order. Callbacks for any other order or handshake are refused and change
// nothing.
func (c *Controller) ConfirmPayment(ctx context.Context, cb domain.PaymentCallback) error {
	c.mu.Lock()
	if c.state != StateAwaitingPayment {
		c.mu.Unlock()
		return apperrors.NewConflictError("no payment is pending")
	}
	if cb.OrderNumber != c.order.OrderNumber || cb.ProviderOrderID != c.handshake.ProviderOrderID {
		c.mu.Unlock()
		c.logger.Warn("ignoring stale payment callback",
			zap.String("orderNumber", cb.OrderNumber),
			zap.String("providerOrderId", cb.ProviderOrderID))
		return apperrors.NewConflictError("payment callback does not match the pending order")
	}
	if c.verifying {
		c.mu.Unlock()
		return apperrors.NewConflictError("payment is already being verified")
	}
	c.verifying = true
	attempt := c.attempt
	order := *c.order
	c.mu.Unlock()

	logger := c.logger.With(zap.Uint64("attempt", attempt), zap.String("orderNumber", order.OrderNumber))

	err := c.backend.VerifyPayment(ctx, cb)
	c.mu.Lock()
	c.verifying = false
	c.mu.Unlock()
	if err != nil {
		return c.fail(attempt, "Payment could not be verified", err)
	}

	c.mu.Lock()
	if attempt != c.attempt || c.state != StateAwaitingPayment {
		c.mu.Unlock()
		logger.Info("discarding stale payment verification")
		return apperrors.NewConflictError("checkout was cancelled")
	}
	c.state = StateConfirmed
	order.Status = domain.OrderStatusPaid
	c.order = &order
	c.mu.Unlock()

	entry := domain.NewHistoryEntry(order, domain.OrderStatusPaid, c.now())
	if err := c.history.Append(ctx, entry); err != nil {
		logger.Error("recording paid order", zap.Error(err))
		c.notices.Post(notice.KindWarning, order.OrderNumber, "Payment received but the order could not be saved locally")
	}
	if err := c.cart.Clear(ctx); err != nil {
		logger.Error("clearing cart after payment", zap.Error(err))
	}
	if err := c.tracker.Track(ctx, order.OrderNumber); err != nil {
		logger.Warn("starting order tracking", zap.Error(err))
	}

	logger.Info("payment confirmed")
	c.notices.Post(notice.KindSuccess, order.OrderNumber,
		fmt.Sprintf("Payment successful! Order #%s placed", order.OrderNumber))
	return nil
}

// AbandonPayment cancels the checkout in flight, as when the diner closes
// the payment sheet. Late results of the cancelled attempt are discarded.
// Once the provider has reported the payment and verification is running,
// the checkout can no longer be abandoned.
func (c *Controller) AbandonPayment() error {
	c.mu.Lock()
	if !c.state.busy() {
		c.mu.Unlock()
		return apperrors.NewConflictError("no checkout in progress")
	}
	if c.verifying {
		c.mu.Unlock()
		return apperrors.NewConflictError("payment is being verified")
	}
	c.attempt++
	c.state = StateFailed
	c.lastError = "payment cancelled"
	orderNumber := ""
	if c.order != nil {
		orderNumber = c.order.OrderNumber
	}
	c.mu.Unlock()

	c.logger.Info("payment abandoned", zap.String("orderNumber", orderNumber))
	c.notices.Post(notice.KindWarning, orderNumber, "Payment cancelled")
	return nil
}

// Reorder fills the cart with the lines of a past order, priced from the
// current menu. Items no longer on the menu are skipped and reported.
func (c *Controller) Reorder(ctx context.Context, entry domain.HistoryEntry) (*ReorderResult, error) {
	c.mu.Lock()
	busy := c.state.busy()
	c.mu.Unlock()
	if busy {
		return nil, apperrors.NewConflictError("cannot reorder during checkout")
	}

	res := &ReorderResult{Skipped: []int{}}
	for _, l := range entry.Lines {
		item, err := c.catalog.Item(l.ItemID)
		if err != nil {
			res.Skipped = append(res.Skipped, l.ItemID)
			continue
		}
		res.Lines = append(res.Lines, domain.CartLine{
			ItemID:    item.ID,
			Name:      item.Name,
			UnitPrice: item.Price,
			Quantity:  l.Quantity,
		})
	}
	if len(res.Lines) == 0 {
		return nil, apperrors.NewValidationError("none of the items in this order are available")
	}

	if err := c.cart.Replace(ctx, res.Lines); err != nil {
		return nil, err
	}
	if entry.TableNumber >= 1 && entry.TableNumber <= c.maxTables {
		c.mu.Lock()
		if !c.state.busy() {
			c.table = entry.TableNumber
		}
		c.mu.Unlock()
	}

	c.logger.Info("reordered",
		zap.String("orderNumber", entry.OrderNumber),
		zap.Int("lines", len(res.Lines)),
		zap.Ints("skipped", res.Skipped))
	if len(res.Skipped) > 0 {
		c.notices.Post(notice.KindWarning, entry.OrderNumber, "Some items are no longer available and were left out")
	}
	return res, nil
}

// fail moves the attempt to Failed unless it has been superseded, and
// surfaces msg to the diner. The cart is never touched.
func (c *Controller) fail(attempt uint64, msg string, err error) error {
	c.mu.Lock()
	if attempt != c.attempt {
		c.mu.Unlock()
		c.logger.Info("discarding stale failure", zap.Uint64("attempt", attempt), zap.Error(err))
		return apperrors.NewConflictError("checkout was cancelled")
	}
	c.state = StateFailed
	c.lastError = err.Error()
	orderNumber := ""
	if c.order != nil {
		orderNumber = c.order.OrderNumber
	}
	c.mu.Unlock()

	c.logger.Error(msg, zap.Uint64("attempt", attempt), zap.Error(err))
	c.notices.Post(notice.KindError, orderNumber, msg)
	return err
}
