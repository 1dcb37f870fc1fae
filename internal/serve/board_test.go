package serve

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"digimenu/internal/backend"
	"digimenu/internal/domain"
	apperrors "digimenu/internal/errors"
	"digimenu/internal/notice"
	"digimenu/internal/schedule"
	"digimenu/internal/state"
	"digimenu/internal/testutil"
)

type mockOrderBackend struct {
	ListOrdersFunc        func(ctx context.Context) ([]domain.Order, error)
	UpdateOrderStatusFunc func(ctx context.Context, orderNumber, serveCode string, status domain.OrderStatus) error
}

func (m *mockOrderBackend) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return m.ListOrdersFunc(ctx)
}

func (m *mockOrderBackend) UpdateOrderStatus(ctx context.Context, orderNumber, serveCode string, status domain.OrderStatus) error {
	return m.UpdateOrderStatusFunc(ctx, orderNumber, serveCode, status)
}

type menuPricer struct{}

func (menuPricer) PriceLines(lines []domain.OrderLine) []domain.OrderLine {
	out := make([]domain.OrderLine, len(lines))
	for i, l := range lines {
		out[i] = l
		if l.ItemID == 1 {
			out[i].Name = "Item A"
			out[i].UnitPrice = decimal.NewFromInt(100)
		}
	}
	return out
}

type boardFixture struct {
	board   *Board
	fake    *testutil.FakeBackend
	audit   *AuditLog
	notices *notice.Center
}

func newBoardFixture(t *testing.T) *boardFixture {
	t.Helper()
	fake := testutil.NewFakeBackend(t)
	fake.SeedOrder(testutil.FakeOrder{
		OrderNumber: "1042",
		ServeCode:   "7731",
		TableNumber: 4,
		TotalAmount: "200.00",
		Status:      "Paid",
		Items:       []testutil.FakeLineItem{{MenuItem: 1, Quantity: 2}},
	})
	client := backend.NewClient(fake.URL(), time.Second, zap.NewNop())
	audit := NewAuditLog(state.NewMemoryStore(), time.UTC, zap.NewNop())
	notices := notice.NewCenter(0, zap.NewNop())
	board := NewBoard(client, menuPricer{}, audit, notices, time.Second, zap.NewNop())
	return &boardFixture{board: board, fake: fake, audit: audit, notices: notices}
}

func TestBoard_PollShowsPricedLines(t *testing.T) {
	f := newBoardFixture(t)

	require.Equal(t, schedule.Continue, f.board.Poll(context.Background()))

	rows := f.board.Orders(true)
	require.Len(t, rows, 1)
	assert.Equal(t, "1042", rows[0].OrderNumber)
	assert.Equal(t, domain.OrderStatusPaid, rows[0].Status)
	assert.Equal(t, "200.00", rows[0].Total)
	require.Len(t, rows[0].Lines, 1)
	assert.Equal(t, "Item A", rows[0].Lines[0].Name)
	assert.True(t, rows[0].Lines[0].Subtotal().Equal(decimal.NewFromInt(200)))
}

func TestDeliver_WrongServeCodeIsRejected(t *testing.T) {
	f := newBoardFixture(t)
	f.board.Poll(context.Background())
	f.board.SetInput("1042", "0000")

	err := f.board.Deliver(context.Background(), "1042", "0000")

	ae, ok := apperrors.IsAuthorizationError(err)
	require.True(t, ok)
	assert.Equal(t, "Invalid serve code", ae.Message)

	assert.Equal(t, domain.OrderStatusPaid, f.board.Orders(false)[0].Status)
	assert.Equal(t, "0000", f.board.Input("1042"))
	assert.Zero(t, f.audit.Len())
	stored, _ := f.fake.Order("1042")
	assert.Equal(t, "Paid", stored.Status)

	active := f.notices.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "Invalid serve code", active[0].Message)
}

func TestDeliver_MatchingCode(t *testing.T) {
	f := newBoardFixture(t)
	f.board.Poll(context.Background())
	f.board.SetInput("1042", "7731")

	require.NoError(t, f.board.Deliver(context.Background(), "1042", " 7731 "))

	assert.Empty(t, f.board.Orders(true))
	assert.Equal(t, domain.OrderStatusDelivered, f.board.Orders(false)[0].Status)
	assert.Empty(t, f.board.Input("1042"))

	view := f.audit.View(time.Now())
	require.Len(t, view.Entries, 1)
	assert.Equal(t, "1042", view.Entries[0].OrderNumber)
	assert.Equal(t, 4, view.Entries[0].TableNumber)
	assert.Equal(t, "Item A", view.Entries[0].Lines[0].Name)

	_, ok := apperrors.IsConflictError(f.board.Deliver(context.Background(), "1042", "7731"))
	assert.True(t, ok)
	assert.Equal(t, 1, f.fake.Hits("/update-order-status/"))
}

func TestDeliver_EmptyCodeSendsNothing(t *testing.T) {
	f := newBoardFixture(t)

	_, ok := apperrors.IsValidationError(f.board.Deliver(context.Background(), "1042", "  "))
	assert.True(t, ok)
	assert.Zero(t, f.fake.Hits("/update-order-status/"))
}

func TestDeliver_UnknownLocallyStillAsksBackend(t *testing.T) {
	f := newBoardFixture(t)

	require.NoError(t, f.board.Deliver(context.Background(), "1042", "7731"))
	assert.Equal(t, 1, f.fake.Hits("/update-order-status/"))
	assert.Equal(t, 1, f.audit.Len())

	err := f.board.Deliver(context.Background(), "5555", "1")
	_, ok := apperrors.IsAuthorizationError(err)
	assert.True(t, ok)
}

func TestPoll_NeverDowngradesLocalStatus(t *testing.T) {
	status := domain.OrderStatusPaid
	be := &mockOrderBackend{
		ListOrdersFunc: func(ctx context.Context) ([]domain.Order, error) {
			return []domain.Order{{OrderNumber: "1042", ServeCode: "7731", Status: status}}, nil
		},
		UpdateOrderStatusFunc: func(ctx context.Context, orderNumber, serveCode string, s domain.OrderStatus) error {
			return nil
		},
	}
	audit := NewAuditLog(state.NewMemoryStore(), time.UTC, zap.NewNop())
	board := NewBoard(be, menuPricer{}, audit, notice.NewCenter(0, zap.NewNop()), time.Second, zap.NewNop())

	board.Poll(context.Background())
	require.NoError(t, board.Deliver(context.Background(), "1042", "7731"))
	board.Poll(context.Background())

	assert.Equal(t, domain.OrderStatusDelivered, board.Orders(false)[0].Status)
}

func TestPoll_ErrorKeepsLastSnapshot(t *testing.T) {
	var fail atomic.Bool
	be := &mockOrderBackend{
		ListOrdersFunc: func(ctx context.Context) ([]domain.Order, error) {
			if fail.Load() {
				return nil, errors.New("unreachable")
			}
			return []domain.Order{{OrderNumber: "1", Status: domain.OrderStatusCreated}}, nil
		},
	}
	board := NewBoard(be, menuPricer{}, NewAuditLog(state.NewMemoryStore(), nil, zap.NewNop()),
		notice.NewCenter(0, zap.NewNop()), time.Second, zap.NewNop())

	board.Poll(context.Background())
	fail.Store(true)
	assert.Equal(t, schedule.Continue, board.Poll(context.Background()))

	assert.Len(t, board.Orders(false), 1)
	assert.Equal(t, "unreachable", board.LastError())
}

func TestBoard_StartFetchesImmediatelyAndNotifies(t *testing.T) {
	f := newBoardFixture(t)
	ticker := testutil.NewManualTicker()
	f.board = NewBoard(backend.NewClient(f.fake.URL(), time.Second, zap.NewNop()), menuPricer{}, f.audit, f.notices,
		time.Second, zap.NewNop(), schedule.WithTicker(ticker.Factory()))

	updates := make(chan []BoardOrder, 4)
	f.board.OnUpdate(func(rows []BoardOrder) { updates <- rows })

	require.NoError(t, f.board.Start(context.Background()))
	defer f.board.Stop()

	select {
	case rows := <-updates:
		assert.Len(t, rows, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("board did not fetch on start")
	}
	assert.Equal(t, 1, f.fake.Hits("/admin/orders/"))
}
