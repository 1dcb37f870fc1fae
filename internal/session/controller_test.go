package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"digimenu/internal/backend"
	"digimenu/internal/cart"
	"digimenu/internal/domain"
	apperrors "digimenu/internal/errors"
	"digimenu/internal/history"
	"digimenu/internal/notice"
	"digimenu/internal/state"
)

type mockOrderBackend struct {
	CreateOrderFunc        func(ctx context.Context, req backend.CreateOrderRequest) (*domain.Order, error)
	CreatePaymentOrderFunc func(ctx context.Context, orderNumber string, amountMinor int64) (*domain.PaymentHandshake, error)
	VerifyPaymentFunc      func(ctx context.Context, cb domain.PaymentCallback) error
}

func (m *mockOrderBackend) CreateOrder(ctx context.Context, req backend.CreateOrderRequest) (*domain.Order, error) {
	return m.CreateOrderFunc(ctx, req)
}

func (m *mockOrderBackend) CreatePaymentOrder(ctx context.Context, orderNumber string, amountMinor int64) (*domain.PaymentHandshake, error) {
	return m.CreatePaymentOrderFunc(ctx, orderNumber, amountMinor)
}

func (m *mockOrderBackend) VerifyPayment(ctx context.Context, cb domain.PaymentCallback) error {
	return m.VerifyPaymentFunc(ctx, cb)
}

type mockCatalog struct {
	ItemFunc func(id int) (domain.MenuItem, error)
}

func (m *mockCatalog) Item(id int) (domain.MenuItem, error) {
	return m.ItemFunc(id)
}

type recordingTracker struct {
	mu      sync.Mutex
	tracked []string
}

func (r *recordingTracker) Track(_ context.Context, orderNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracked = append(r.tracked, orderNumber)
	return nil
}

var (
	itemA = domain.MenuItem{ID: 1, Name: "Item A", Price: decimal.NewFromInt(100)}
	itemB = domain.MenuItem{ID: 2, Name: "Item B", Price: decimal.NewFromInt(50)}
)

type fixture struct {
	ctrl    *Controller
	backend *mockOrderBackend
	cart    *cart.Store
	history *history.Store
	tracker *recordingTracker
	notices *notice.Center

	createCalls int
	verifyCalls int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		cart:    cart.NewStore(state.NewMemoryStore(), zap.NewNop()),
		history: history.NewStore(state.NewMemoryStore(), zap.NewNop()),
		tracker: &recordingTracker{},
		notices: notice.NewCenter(0, zap.NewNop()),
	}
	f.backend = &mockOrderBackend{
		CreateOrderFunc: func(ctx context.Context, req backend.CreateOrderRequest) (*domain.Order, error) {
			f.createCalls++
			return &domain.Order{
				OrderNumber: "1041",
				ServeCode:   "S1041",
				TableNumber: req.TableNumber,
				TotalAmount: req.Total,
				Status:      domain.OrderStatusCreated,
			}, nil
		},
		CreatePaymentOrderFunc: func(ctx context.Context, orderNumber string, amountMinor int64) (*domain.PaymentHandshake, error) {
			return &domain.PaymentHandshake{
				OrderNumber:     orderNumber,
				KeyID:           "rzp_test_key",
				ProviderOrderID: "order_rzp_" + orderNumber,
				AmountMinor:     amountMinor,
				Currency:        "INR",
			}, nil
		},
		VerifyPaymentFunc: func(ctx context.Context, cb domain.PaymentCallback) error {
			f.verifyCalls++
			return nil
		},
	}
	catalog := &mockCatalog{ItemFunc: func(id int) (domain.MenuItem, error) {
		switch id {
		case itemA.ID:
			return itemA, nil
		case itemB.ID:
			return itemB, nil
		}
		return domain.MenuItem{}, apperrors.NewNotFoundError("menu item not found")
	}}
	f.ctrl = NewController(f.backend, f.cart, f.history, catalog, f.tracker, f.notices, 50, zap.NewNop())
	return f
}

func (f *fixture) fillCart(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.cart.Add(ctx, itemA, 2))
	require.NoError(t, f.cart.Add(ctx, itemB, 1))
}

func paidCallback() domain.PaymentCallback {
	return domain.PaymentCallback{
		OrderNumber:       "1041",
		ProviderOrderID:   "order_rzp_1041",
		ProviderPaymentID: "pay_1",
		Signature:         "valid",
	}
}

func TestCheckout_HappyPath(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	require.NoError(t, f.ctrl.SelectTable(5))

	hs, err := f.ctrl.Checkout(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(25000), hs.AmountMinor)
	assert.Equal(t, "1041", hs.OrderNumber)

	v := f.ctrl.View()
	assert.Equal(t, StateAwaitingPayment, v.State)
	assert.True(t, v.Order.TotalAmount.Equal(decimal.NewFromInt(250)))
	assert.Len(t, f.cart.Lines(), 2, "cart stays until payment is confirmed")

	require.NoError(t, f.ctrl.ConfirmPayment(context.Background(), paidCallback()))

	assert.Equal(t, StateConfirmed, f.ctrl.View().State)
	assert.True(t, f.cart.Empty())
	entry, err := f.history.Get("1041")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, entry.Status)
	assert.True(t, entry.Total.Equal(decimal.NewFromInt(250)))
	assert.Equal(t, 5, entry.TableNumber)
	assert.Equal(t, []string{"1041"}, f.tracker.tracked)

	active := f.notices.Active()
	require.NotEmpty(t, active)
	assert.Equal(t, notice.KindSuccess, active[len(active)-1].Kind)
}

func TestCheckout_ValidationSendsNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.Checkout(context.Background())
	ve, ok := apperrors.IsValidationError(err)
	require.True(t, ok)
	assert.Len(t, ve.Details, 2)

	require.NoError(t, f.ctrl.SelectTable(3))
	_, err = f.ctrl.Checkout(context.Background())
	_, ok = apperrors.IsValidationError(err)
	assert.True(t, ok)

	assert.Zero(t, f.createCalls)
	assert.Equal(t, StateIdle, f.ctrl.View().State)
}

func TestSelectTable_Bounds(t *testing.T) {
	f := newFixture(t)

	for _, table := range []int{0, -1, 51} {
		_, ok := apperrors.IsValidationError(f.ctrl.SelectTable(table))
		assert.True(t, ok, "table %d", table)
	}
	require.NoError(t, f.ctrl.SelectTable(50))
	assert.Equal(t, 50, f.ctrl.View().Table)
}

func TestCheckout_RejectedWhileInFlight(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	require.NoError(t, f.ctrl.SelectTable(5))
	_, err := f.ctrl.Checkout(context.Background())
	require.NoError(t, err)

	_, err = f.ctrl.Checkout(context.Background())
	_, ok := apperrors.IsConflictError(err)
	assert.True(t, ok)
	_, ok = apperrors.IsConflictError(f.ctrl.SelectTable(7))
	assert.True(t, ok)
	assert.Equal(t, 1, f.createCalls)
}

func TestCheckout_CreateOrderFailure(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	require.NoError(t, f.ctrl.SelectTable(5))
	f.backend.CreateOrderFunc = func(ctx context.Context, req backend.CreateOrderRequest) (*domain.Order, error) {
		return nil, apperrors.NewTransientError("creating order", errors.New("connection refused"))
	}

	_, err := f.ctrl.Checkout(context.Background())
	_, ok := apperrors.IsTransientError(err)
	assert.True(t, ok)

	v := f.ctrl.View()
	assert.Equal(t, StateFailed, v.State)
	assert.NotEmpty(t, v.LastError)
	assert.Len(t, f.cart.Lines(), 2)
	assert.Empty(t, f.history.List())
	assert.Equal(t, notice.KindError, f.notices.Active()[0].Kind)
}

func TestCheckout_PaymentOrderFailureThenRetry(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	require.NoError(t, f.ctrl.SelectTable(5))
	f.backend.CreatePaymentOrderFunc = func(ctx context.Context, orderNumber string, amountMinor int64) (*domain.PaymentHandshake, error) {
		return nil, apperrors.NewPaymentError("creating payment order", nil)
	}

	_, err := f.ctrl.Checkout(context.Background())
	_, ok := apperrors.IsPaymentError(err)
	require.True(t, ok)
	assert.Equal(t, StateFailed, f.ctrl.View().State)

	f.backend.CreatePaymentOrderFunc = func(ctx context.Context, orderNumber string, amountMinor int64) (*domain.PaymentHandshake, error) {
		return &domain.PaymentHandshake{OrderNumber: orderNumber, ProviderOrderID: "order_rzp_" + orderNumber, AmountMinor: amountMinor}, nil
	}
	_, err = f.ctrl.Checkout(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingPayment, f.ctrl.View().State)
}

func TestConfirmPayment_MismatchedCallbackIsStale(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	require.NoError(t, f.ctrl.SelectTable(5))
	_, err := f.ctrl.Checkout(context.Background())
	require.NoError(t, err)

	cb := paidCallback()
	cb.ProviderOrderID = "order_rzp_other"
	_, ok := apperrors.IsConflictError(f.ctrl.ConfirmPayment(context.Background(), cb))
	assert.True(t, ok)

	cb = paidCallback()
	cb.OrderNumber = "999"
	_, ok = apperrors.IsConflictError(f.ctrl.ConfirmPayment(context.Background(), cb))
	assert.True(t, ok)

	assert.Zero(t, f.verifyCalls)
	assert.Equal(t, StateAwaitingPayment, f.ctrl.View().State)
	assert.Len(t, f.cart.Lines(), 2)
}

func TestConfirmPayment_VerificationFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	require.NoError(t, f.ctrl.SelectTable(5))
	_, err := f.ctrl.Checkout(context.Background())
	require.NoError(t, err)
	f.backend.VerifyPaymentFunc = func(ctx context.Context, cb domain.PaymentCallback) error {
		return apperrors.NewPaymentError("payment not verified", nil)
	}

	err = f.ctrl.ConfirmPayment(context.Background(), paidCallback())
	_, ok := apperrors.IsPaymentError(err)
	assert.True(t, ok)

	assert.Equal(t, StateFailed, f.ctrl.View().State)
	assert.Empty(t, f.history.List())
	assert.Len(t, f.cart.Lines(), 2)
	assert.Empty(t, f.tracker.tracked)
}

func TestConfirmPayment_OnlyOnce(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	require.NoError(t, f.ctrl.SelectTable(5))
	_, err := f.ctrl.Checkout(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.ctrl.ConfirmPayment(context.Background(), paidCallback()))
	_, ok := apperrors.IsConflictError(f.ctrl.ConfirmPayment(context.Background(), paidCallback()))
	assert.True(t, ok)

	assert.Len(t, f.history.List(), 1)
	assert.Equal(t, 1, f.verifyCalls)
}

func TestAbandonPayment_RefusedWhileVerifying(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	require.NoError(t, f.ctrl.SelectTable(5))
	_, err := f.ctrl.Checkout(context.Background())
	require.NoError(t, err)

	var abandonErr, secondConfirmErr error
	f.backend.VerifyPaymentFunc = func(ctx context.Context, cb domain.PaymentCallback) error {
		abandonErr = f.ctrl.AbandonPayment()
		secondConfirmErr = f.ctrl.ConfirmPayment(ctx, cb)
		return nil
	}

	require.NoError(t, f.ctrl.ConfirmPayment(context.Background(), paidCallback()))

	_, ok := apperrors.IsConflictError(abandonErr)
	assert.True(t, ok, "expected ConflictError, got %v", abandonErr)
	_, ok = apperrors.IsConflictError(secondConfirmErr)
	assert.True(t, ok, "expected ConflictError, got %v", secondConfirmErr)

	assert.Equal(t, StateConfirmed, f.ctrl.View().State)
	entry, err := f.history.Get("1041")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, entry.Status)
	assert.Empty(t, f.cart.Lines())
	assert.Equal(t, []string{"1041"}, f.tracker.tracked)
}

func TestAbandonPayment_AllowedAfterFailedVerification(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	require.NoError(t, f.ctrl.SelectTable(5))
	_, err := f.ctrl.Checkout(context.Background())
	require.NoError(t, err)

	f.backend.VerifyPaymentFunc = func(ctx context.Context, cb domain.PaymentCallback) error {
		return apperrors.NewPaymentError("payment not verified", nil)
	}
	assert.Error(t, f.ctrl.ConfirmPayment(context.Background(), paidCallback()))
	assert.Equal(t, StateFailed, f.ctrl.View().State)

	_, ok := apperrors.IsConflictError(f.ctrl.AbandonPayment())
	assert.True(t, ok, "nothing left to abandon once the attempt failed")
	assert.Len(t, f.cart.Lines(), 2)
}

func TestAbandonPayment_DiscardsLateOrder(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	require.NoError(t, f.ctrl.SelectTable(5))
	inner := f.backend.CreateOrderFunc
	f.backend.CreateOrderFunc = func(ctx context.Context, req backend.CreateOrderRequest) (*domain.Order, error) {
		require.NoError(t, f.ctrl.AbandonPayment())
		return inner(ctx, req)
	}

	_, err := f.ctrl.Checkout(context.Background())
	_, ok := apperrors.IsConflictError(err)
	assert.True(t, ok)
	assert.Equal(t, StateFailed, f.ctrl.View().State)
	assert.Nil(t, f.ctrl.View().Handshake)
}

func TestAbandonPayment_NothingInFlight(t *testing.T) {
	f := newFixture(t)
	_, ok := apperrors.IsConflictError(f.ctrl.AbandonPayment())
	assert.True(t, ok)
}

func TestReorder(t *testing.T) {
	f := newFixture(t)
	entry := domain.HistoryEntry{
		OrderNumber: "1040",
		TableNumber: 9,
		Lines: []domain.OrderLine{
			{ItemID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(90)},
			{ItemID: 77, Quantity: 1},
			{ItemID: 2, Quantity: 3},
		},
	}

	res, err := f.ctrl.Reorder(context.Background(), entry)
	require.NoError(t, err)

	assert.Equal(t, []int{77}, res.Skipped)
	lines := f.cart.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, 1, lines[0].ItemID)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.True(t, lines[0].UnitPrice.Equal(itemA.Price))
	assert.Equal(t, 2, lines[1].ItemID)
	assert.Equal(t, 3, lines[1].Quantity)
	assert.Equal(t, 9, f.ctrl.View().Table)
}

func TestReorder_NothingAvailable(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)

	_, err := f.ctrl.Reorder(context.Background(), domain.HistoryEntry{Lines: []domain.OrderLine{{ItemID: 77, Quantity: 1}}})
	_, ok := apperrors.IsValidationError(err)
	assert.True(t, ok)
	assert.Len(t, f.cart.Lines(), 2)
}
