// Package backend is the HTTP client for the ordering backend. It speaks the
// backend's snake_case JSON and hands domain types to the rest of the module.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"digimenu/internal/domain"
	apperrors "digimenu/internal/errors"
)

const (
	pathMenuItems          = "/menu-items/"
	pathCategories         = "/categories/"
	pathOrders             = "/orders/"
	pathAdminOrders        = "/admin/orders/"
	pathUpdateOrderStatus  = "/update-order-status/"
	pathCreatePaymentOrder = "/create-razorpay-order/"
	pathVerifyPayment      = "/verify-payment/"
)

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Message)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// CreateOrderRequest carries the snapshot taken at checkout.
type CreateOrderRequest struct {
	TableNumber    int
	Lines          []domain.OrderLine
	Total          decimal.Decimal
	IdempotencyKey string
}

func (c *Client) ListMenuItems(ctx context.Context) ([]domain.MenuItem, error) {
	var dtos []menuItemDTO
	if err := c.do(ctx, http.MethodGet, pathMenuItems, nil, nil, &dtos); err != nil {
		return nil, c.transient("fetching menu items", err)
	}

	items := make([]domain.MenuItem, len(dtos))
	for i, d := range dtos {
		items[i] = d.toDomain()
	}
	return items, nil
}

func (c *Client) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var dtos []categoryDTO
	if err := c.do(ctx, http.MethodGet, pathCategories, nil, nil, &dtos); err != nil {
		return nil, c.transient("fetching categories", err)
	}

	cats := make([]domain.Category, len(dtos))
	for i, d := range dtos {
		cats[i] = domain.Category{ID: d.ID, Name: d.Name}
	}
	return cats, nil
}

func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.Order, error) {
	items := make([]orderItemDTO, len(req.Lines))
	for i, l := range req.Lines {
		items[i] = orderItemDTO{MenuItem: l.ItemID, Quantity: l.Quantity}
	}
	body := createOrderRequestDTO{
		TableNumber:   req.TableNumber,
		TotalAmount:   req.Total,
		PaymentMethod: "online",
		Items:         items,
	}

	headers := map[string]string{}
	if req.IdempotencyKey != "" {
		headers["Idempotency-Key"] = req.IdempotencyKey
	}

	var resp orderDTO
	if err := c.do(ctx, http.MethodPost, pathOrders, headers, body, &resp); err != nil {
		if se, ok := asClientError(err); ok {
			return nil, apperrors.NewValidationError(se.Message)
		}
		return nil, c.transient("creating order", err)
	}
	if resp.OrderNumber == "" {
		return nil, apperrors.NewInternalError("backend returned no order number", nil)
	}

	order := resp.toDomain()
	if !order.Status.Known() {
		order.Status = domain.OrderStatusCreated
	}
	return &order, nil
}

// ListOrders fetches the whole order collection. The staff board shows it as
// is; diner pollers filter it down to a single order number.
func (c *Client) ListOrders(ctx context.Context) ([]domain.Order, error) {
	var dtos []orderDTO
	if err := c.do(ctx, http.MethodGet, pathAdminOrders, nil, nil, &dtos); err != nil {
		return nil, c.transient("fetching orders", err)
	}

	orders := make([]domain.Order, len(dtos))
	for i, d := range dtos {
		orders[i] = d.toDomain()
	}
	return orders, nil
}

// UpdateOrderStatus requests a status transition. A rejection (wrong serve
// code, unknown order) comes back as an AuthorizationError holding the
// backend's message unchanged.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderNumber, serveCode string, status domain.OrderStatus) error {
	body := updateStatusRequestDTO{
		OrderNumber: orderNumber,
		ServeCode:   serveCode,
		Status:      string(status),
	}

	var resp resultDTO
	if err := c.do(ctx, http.MethodPost, pathUpdateOrderStatus, nil, body, &resp); err != nil {
		if se, ok := asClientError(err); ok {
			return apperrors.NewAuthorizationError(se.Message)
		}
		return c.transient("updating order status", err)
	}
	if !resp.Success {
		msg := resp.errorMessage()
		if msg == "" {
			msg = "status update rejected"
		}
		return apperrors.NewAuthorizationError(msg)
	}
	return nil
}

func (c *Client) CreatePaymentOrder(ctx context.Context, orderNumber string, amountMinor int64) (*domain.PaymentHandshake, error) {
	body := paymentOrderRequestDTO{OrderNumber: orderNumber, Amount: amountMinor}

	var resp paymentOrderResponseDTO
	if err := c.do(ctx, http.MethodPost, pathCreatePaymentOrder, nil, body, &resp); err != nil {
		return nil, apperrors.NewPaymentError("creating payment order", err)
	}
	if resp.RazorpayOrderID == "" || resp.KeyID == "" {
		return nil, apperrors.NewPaymentError("payment handshake incomplete", nil)
	}

	return &domain.PaymentHandshake{
		OrderNumber:     orderNumber,
		KeyID:           resp.KeyID,
		ProviderOrderID: resp.RazorpayOrderID,
		AmountMinor:     resp.Amount,
		Currency:        resp.Currency,
	}, nil
}

// VerifyPayment asks the backend to authenticate a provider callback.
func (c *Client) VerifyPayment(ctx context.Context, cb domain.PaymentCallback) error {
	body := verifyPaymentRequestDTO{
		OrderNumber:       cb.OrderNumber,
		RazorpayOrderID:   cb.ProviderOrderID,
		RazorpayPaymentID: cb.ProviderPaymentID,
		RazorpaySignature: cb.Signature,
	}

	var resp resultDTO
	if err := c.do(ctx, http.MethodPost, pathVerifyPayment, nil, body, &resp); err != nil {
		return apperrors.NewPaymentError("verifying payment", err)
	}
	if !resp.Success {
		return apperrors.NewPaymentError("payment not verified", errors.New(resp.errorMessage()))
	}
	return nil
}

// asClientError reports 4xx answers; 5xx answers stay retryable.
func asClientError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) && se.Code < http.StatusInternalServerError {
		return se, true
	}
	return nil, false
}

func (c *Client) transient(action string, err error) error {
	if _, ok := asClientError(err); ok {
		return apperrors.NewInternalError(action, err)
	}
	return apperrors.NewTransientError(action, err)
}

func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, in, out any) error {
	traceID := uuid.NewString()
	logger := c.logger.With(zap.String("traceId", traceID), zap.String("method", method), zap.String("path", path))

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", traceID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn("backend request failed", zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	logger.Debug("backend response", zap.Int("status", resp.StatusCode), zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var res resultDTO
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &res) == nil && res.errorMessage() != "" {
			msg = res.errorMessage()
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &StatusError{Code: resp.StatusCode, Message: msg}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
