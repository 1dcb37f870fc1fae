package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"digimenu/internal/auth"
	"digimenu/internal/config"
	"digimenu/internal/domain"
	"digimenu/internal/qrlink"
	"digimenu/internal/state"
	"digimenu/internal/testutil"
)

const testSecret = "test-secret"

func testConfig(backendURL string) *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{Port: 0, CORSOrigins: []string{"http://localhost:5173"}},
		Backend: config.BackendConfig{URL: backendURL, Timeout: 2 * time.Second},
		Polling: config.PollingConfig{OrderInterval: 20 * time.Millisecond, StaffInterval: 20 * time.Millisecond},
		Payee:   config.PayeeConfig{VPA: "7993549539@ybl", Name: "Hotel", Currency: "INR"},
		Session: config.SessionConfig{MaxTables: 50, NoticeTTL: 5 * time.Second, AuditTimezone: "UTC"},
		Staff:   config.StaffConfig{JWTSecret: testSecret, TokenTTL: time.Hour},
	}
}

func startApp(t *testing.T, fake *testutil.FakeBackend) (*App, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	a, err := New(ctx, testConfig(fake.URL()), zap.NewNop(), WithStateStore(state.NewMemoryStore()))
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		a.Close()
		cancel()
	})
	return a, srv
}

func postJSON(t *testing.T, url, token string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(buf))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func seedMenu(fake *testutil.FakeBackend) {
	fake.SetMenu([]testutil.FakeMenuItem{
		{ID: 1, Name: "Item A", Price: "100.00", Category: 1},
		{ID: 2, Name: "Item B", Price: "50.00", Category: 1},
	}, []testutil.FakeCategory{{ID: 1, Name: "Mains"}})
}

func TestApp_OrderToDelivery(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	seedMenu(fake)
	a, srv := startApp(t, fake)

	resp := postJSON(t, srv.URL+"/cart/items", "", map[string]int{"itemId": 1, "quantity": 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = postJSON(t, srv.URL+"/cart/items", "", map[string]int{"itemId": 2, "quantity": 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, a.Cart.Total().Equal(decimal.NewFromInt(250)))

	resp = postJSON(t, srv.URL+"/session/table", "", map[string]int{"table": 5})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/checkout", "", struct{}{})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	view := a.Session.View()
	require.NotNil(t, view.Handshake)
	assert.Equal(t, int64(25000), view.Handshake.AmountMinor)

	resp = postJSON(t, srv.URL+"/payment/confirm", "", map[string]string{
		"orderNumber":       view.Handshake.OrderNumber,
		"providerOrderId":   view.Handshake.ProviderOrderID,
		"providerPaymentId": "pay_1",
		"signature":         "valid",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	entry, err := a.History.Get("1041")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, entry.Status)
	assert.True(t, entry.Total.Equal(decimal.NewFromInt(250)))
	assert.True(t, a.Cart.Empty())
	assert.Contains(t, a.Tracker.Tracked(), "1041")

	require.Eventually(t, func() bool {
		return len(a.Board.Orders(true)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	token, err := auth.GenerateToken(testSecret, "staff-1", time.Hour)
	require.NoError(t, err)

	resp = postJSON(t, srv.URL+"/staff/orders/1041/deliver", token, map[string]string{"serveCode": "WRONG"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	stored, _ := fake.Order("1041")
	assert.Equal(t, "Paid", stored.Status)

	resp = postJSON(t, srv.URL+"/staff/orders/1041/deliver", token, map[string]string{"serveCode": "S1041"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, a.Audit.Len())

	require.Eventually(t, func() bool {
		e, err := a.History.Get("1041")
		return err == nil && e.Status == domain.OrderStatusDelivered && len(a.Tracker.Tracked()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestApp_StaffRoutesNeedToken(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	_, srv := startApp(t, fake)

	resp, err := http.Get(srv.URL + "/staff/orders")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestApp_ScannedSessionIsAdopted(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	fake.SeedOrder(testutil.FakeOrder{OrderNumber: "2001", ServeCode: "S2001", TableNumber: 7, Status: "Paid"})
	a, _ := startApp(t, fake)

	uri, err := a.Linker.EncodeSessionURI(7, "2001", "S2001", decimal.NewFromInt(120))
	require.NoError(t, err)
	res, err := qrlink.Decode(uri)
	require.NoError(t, err)
	require.Equal(t, qrlink.KindSession, res.Kind)

	require.NoError(t, a.Dispatcher.Dispatch(context.Background(), res))
	assert.Equal(t, 7, a.Session.View().Table)
	assert.Contains(t, a.Tracker.Tracked(), "2001")

	link, err := qrlink.Decode("https://example.com/menu")
	require.NoError(t, err)
	assert.NoError(t, a.Dispatcher.Dispatch(context.Background(), link))
}

type mockCamera struct {
	OpenFunc func(ctx context.Context) (qrlink.Stream, error)
}

func (m *mockCamera) Open(ctx context.Context) (qrlink.Stream, error) {
	return m.OpenFunc(ctx)
}

type mockStream struct {
	NextFunc func(ctx context.Context) (qrlink.Frame, error)
}

func (m *mockStream) Next(ctx context.Context) (qrlink.Frame, error) {
	return m.NextFunc(ctx)
}

func (m *mockStream) Close() error { return nil }

type mockDetector struct {
	DetectFunc func(ctx context.Context, frame qrlink.Frame) ([]string, error)
}

func (m *mockDetector) Detect(ctx context.Context, frame qrlink.Frame) ([]string, error) {
	return m.DetectFunc(ctx, frame)
}

func TestApp_CameraScanReachesDispatcher(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	fake.SeedOrder(testutil.FakeOrder{OrderNumber: "2001", ServeCode: "S2001", TableNumber: 7, Status: "Paid"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	uri := "upi://pay?pa=7993549539@ybl&pn=Hotel&cu=INR&am=120.00&tn=Table7&oid=2001&scode=S2001"
	camera := &mockCamera{OpenFunc: func(ctx context.Context) (qrlink.Stream, error) {
		return &mockStream{NextFunc: func(ctx context.Context) (qrlink.Frame, error) {
			return qrlink.Frame{Width: 1, Height: 1}, nil
		}}, nil
	}}
	detector := &mockDetector{DetectFunc: func(ctx context.Context, frame qrlink.Frame) ([]string, error) {
		return []string{uri}, nil
	}}

	a, err := New(ctx, testConfig(fake.URL()), zap.NewNop(),
		WithStateStore(state.NewMemoryStore()), WithCamera(camera, detector))
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		a.Close()
	})
	require.NotNil(t, a.Scan)

	resp := postJSON(t, srv.URL+"/scan/camera", "", struct{}{})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		return a.Session.View().Table == 7 && !a.Scan.Running()
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, a.Tracker.Tracked(), "2001")
}

func TestApp_NoCameraNoCameraRoutes(t *testing.T) {
	fake := testutil.NewFakeBackend(t)
	a, srv := startApp(t, fake)
	assert.Nil(t, a.Scan)

	resp := postJSON(t, srv.URL+"/scan/camera", "", struct{}{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNewStateStore(t *testing.T) {
	cfg := &config.Config{State: config.StateConfig{Driver: config.StateDriverFile, Path: t.TempDir()}}
	st, release, err := NewStateStore(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer release()
	require.NoError(t, st.Save(context.Background(), "k", []byte("v")))

	cfg.State.Driver = "redis"
	_, _, err = NewStateStore(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
