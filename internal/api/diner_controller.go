package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"digimenu/internal/domain"
	apperrors "digimenu/internal/errors"
	"digimenu/internal/history"
	"digimenu/internal/notice"
	"digimenu/internal/qrlink"
	"digimenu/internal/session"
)

type Menu interface {
	Load(ctx context.Context) error
	Items(categoryID int) []domain.MenuItem
	Categories() []domain.Category
	Item(id int) (domain.MenuItem, error)
}

type Cart interface {
	Lines() []domain.CartLine
	Total() decimal.Decimal
	Count() int
	Add(ctx context.Context, item domain.MenuItem, qty int) error
	SetQuantity(ctx context.Context, itemID, qty int) error
	Remove(ctx context.Context, itemID int) error
	Clear(ctx context.Context) error
}

type Session interface {
	View() session.View
	SelectTable(table int) error
	Checkout(ctx context.Context) (*domain.PaymentHandshake, error)
	ConfirmPayment(ctx context.Context, cb domain.PaymentCallback) error
	AbandonPayment() error
	Reorder(ctx context.Context, entry domain.HistoryEntry) (*session.ReorderResult, error)
}

type History interface {
	List() []domain.HistoryEntry
	Get(orderNumber string) (domain.HistoryEntry, error)
}

type Notices interface {
	Active() []notice.Notice
	Dismiss(id string) error
}

type ScanDispatcher interface {
	Dispatch(ctx context.Context, res qrlink.Result) error
}

type SessionEncoder interface {
	EncodeSessionURI(table int, orderNumber, serveCode string, amount decimal.Decimal) (string, error)
}

type DinerController struct {
	responder
	menu     Menu
	cart     Cart
	session  Session
	history  History
	notices  Notices
	scans    ScanDispatcher
	encoder  SessionEncoder
	currency string
	logger   *zap.Logger
}

func NewDinerController(
	menu Menu,
	cart Cart,
	sess Session,
	hist History,
	notices Notices,
	scans ScanDispatcher,
	encoder SessionEncoder,
	currency string,
	logger *zap.Logger,
) *DinerController {
	return &DinerController{
		responder: responder{logger: logger},
		menu:      menu,
		cart:      cart,
		session:   sess,
		history:   hist,
		notices:   notices,
		scans:     scans,
		encoder:   encoder,
		currency:  currency,
		logger:    logger,
	}
}

type menuItemResponse struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	Price       string `json:"price"`
	CategoryID  int    `json:"categoryId"`
}

type categoryResponse struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type menuResponse struct {
	Categories []categoryResponse `json:"categories"`
	Items      []menuItemResponse `json:"items"`
}

type cartResponse struct {
	Lines []domain.CartLine `json:"lines"`
	Count int               `json:"count"`
	Total string            `json:"total"`
}

type addItemRequest struct {
	ItemID   int `json:"itemId"`
	Quantity int `json:"quantity"`
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type selectTableRequest struct {
	Table int `json:"table"`
}

type paymentCallbackRequest struct {
	OrderNumber       string `json:"orderNumber"`
	ProviderOrderID   string `json:"providerOrderId"`
	ProviderPaymentID string `json:"providerPaymentId"`
	Signature         string `json:"signature"`
}

type scanRequest struct {
	Text string `json:"text"`
}

type scanResponse struct {
	Kind    string                 `json:"kind"`
	Link    string                 `json:"link,omitempty"`
	Session *qrlink.SessionPayload `json:"session,omitempty"`
}

func (c *DinerController) begin(r *http.Request) (string, *zap.Logger) {
	traceID := traceIDFrom(r)
	return traceID, c.logger.With(zap.String("traceId", traceID))
}

func (c *DinerController) GetMenu(w http.ResponseWriter, r *http.Request) {
	traceID, logger := c.begin(r)

	categoryID := 0
	if raw := r.URL.Query().Get("category"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id < 0 {
			c.writeValidationError(w, traceID, "invalid category", apperrors.ValidationDetail{
				Field:   "category",
				Message: "category must be a positive integer",
			})
			return
		}
		categoryID = id
	}

	if err := c.menu.Load(r.Context()); err != nil {
		c.handleError(w, traceID, err, logger)
		return
	}

	resp := menuResponse{Categories: []categoryResponse{}, Items: []menuItemResponse{}}
	for _, cat := range c.menu.Categories() {
		resp.Categories = append(resp.Categories, categoryResponse{ID: cat.ID, Name: cat.Name})
	}
	for _, it := range c.menu.Items(categoryID) {
		resp.Items = append(resp.Items, menuItemResponse{
			ID:          it.ID,
			Name:        it.Name,
			Description: it.Description,
			Image:       it.Image,
			Price:       it.Price.StringFixed(2),
			CategoryID:  it.CategoryID,
		})
	}
	c.writeJSON(w, http.StatusOK, resp)
}

func (c *DinerController) GetCart(w http.ResponseWriter, r *http.Request) {
	c.writeCart(w)
}

func (c *DinerController) AddToCart(w http.ResponseWriter, r *http.Request) {
	traceID, logger := c.begin(r)

	var req addItemRequest
	if !c.decode(w, r, traceID, &req, logger) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	item, err := c.menu.Item(req.ItemID)
	if err != nil {
		c.handleError(w, traceID, err, logger)
		return
	}
	if err := c.cart.Add(r.Context(), item, req.Quantity); err != nil {
		c.handleError(w, traceID, err, logger)
		return
	}
	c.writeCart(w)
}

func (c *DinerController) SetCartQuantity(w http.ResponseWriter, r *http.Request) {
	traceID, logger := c.begin(r)

	itemID, ok := c.itemIDParam(w, r, traceID)
	if !ok {
		return
	}
	var req setQuantityRequest
	if !c.decode(w, r, traceID, &req, logger) {
		return
	}
	if err := c.cart.SetQuantity(r.Context(), itemID, req.Quantity); err != nil {
		c.handleError(w, traceID, err, logger)
		return
	}
	c.writeCart(w)
}

func (c *DinerController) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	traceID, logger := c.begin(r)

	itemID, ok := c.itemIDParam(w, r, traceID)
	if !ok {
		return
	}
	if err := c.cart.Remove(r.Context(), itemID); err != nil {
		c.handleError(w, traceID, err, logger)
		return
	}
	c.writeCart(w)
}

func (c *DinerController) ClearCart(w http.ResponseWriter, r *http.Request) {
	traceID, logger := c.begin(r)

	if err := c.cart.Clear(r.Context()); err != nil {
		c.handleError(w, traceID, err, logger)
		return
	}
	c.writeCart(w)
}

func (c *DinerController) GetSession(w http.ResponseWriter, r *http.Request) {
	c.writeJSON(w, http.StatusOK, c.session.View())
}

func (c *DinerController) SelectTable(w http.ResponseWriter, r *http.Request) {
	traceID, logger := c.begin(r)

	var req selectTableRequest
	if !c.decode(w, r, traceID, &req, logger) {
		return
	}
	if err := c.session.SelectTable(req.Table); err != nil {
		c.handleError(w, traceID, err, logger)
		return
	}
	c.writeJSON(w, http.StatusOK, c.session.View())
}

func (c *DinerController) Checkout(w http.ResponseWriter, r *http.Request) {
	traceID, logger := c.begin(r)

	hs, err := c.session.Checkout(r.Context())
	if err != nil {
		c.handleError(w, traceID, err, logger)
		return
	}
	c.writeJSON(w, http.StatusCreated, hs)
}

func (c *DinerController) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	traceID, logger := c.begin(r)

	var req paymentCallbackRequest
	if !c.decode(w, r, traceID, &req, logger) {
		return
	}

	var details []apperrors.ValidationDetail
	if req.OrderNumber == "" {
		details = append(details, apperrors.ValidationDetail{Field: "orderNumber", Message: "orderNumber is required"})
	}
	if req.ProviderOrderID == "" {
		details = append(details, apperrors.ValidationDetail{Field: "providerOrderId", Message: "providerOrderId is required"})
	}
	if req.Signature == "" {
		details = append(details, apperrors.ValidationDetail{Field: "signature", Message: "signature is required"})
	}
	if len(details) > 0 {
		c.writeValidationError(w, traceID, "validation failed", details...)
		return
	}

	err := c.session.ConfirmPayment(r.Context(), domain.PaymentCallback{
		OrderNumber:       req.OrderNumber,
		ProviderOrderID:   req.ProviderOrderID,
		ProviderPaymentID: req.ProviderPaymentID,
		Signature:         req.Signature,
	})
	if err != nil {
		c.handleError(w, traceID, err, logger)
		return
	}
	c.writeJSON(w, http.StatusOK, c.session.View())
}

func (c *DinerController) AbandonPayment(w http.ResponseWriter, r *http.Request) {
	traceID, logger := c.begin(r)

	if err := c.session.AbandonPayment(); err != nil {
		c.handleError(w, traceID, err, logger)
		return
	}
	c.writeJSON(w, http.StatusOK, c.session.View())
}

func (c *DinerController) ListHistory(w http.ResponseWriter, r *http.Request) {
	c.writeJSON(w, http.StatusOK, c.history.List())
}

func (c *DinerController) Reorder(w http.ResponseWriter, r *http.Request) {
	traceID, logger := c.begin(r)

	entry, err := c.history.Get(chi.URLParam(r, "orderNumber"))
	if err != nil {
		c.handleError(w, traceID, err, logger)
		return
	}
	if err := c.menu.Load(r.Context()); err != nil {
		c.handleError(w, traceID, err, logger)
		return
	}
	res, err := c.session.Reorder(r.Context(), entry)
	if err != nil {
		c.handleError(w, traceID, err, logger)
		return
	}
	c.writeJSON(w, http.StatusOK, res)
}

// GetSlip returns a plain-text receipt for a past order.
func (c *DinerController) GetSlip(w http.ResponseWriter, r *http.Request) {
	traceID, logger := c.begin(r)

	entry, err := c.history.Get(chi.URLParam(r, "orderNumber"))
	if err != nil {
		c.handleError(w, traceID, err, logger)
		return
	}

	var buf bytes.Buffer
	if err := history.WriteSlip(&buf, entry, c.currency); err != nil {
		c.handleError(w, traceID, err, logger)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// GetOrderQR renders the session QR for a past order as PNG.
func (c *DinerController) GetOrderQR(w http.ResponseWriter, r *http.Request) {
	traceID, logger := c.begin(r)

	size := 256
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 2048 {
			c.writeValidationError(w, traceID, "invalid size", apperrors.ValidationDetail{
				Field:   "size",
				Message: "size must be between 1 and 2048",
			})
			return
		}
		size = n
	}

	entry, err := c.history.Get(chi.URLParam(r, "orderNumber"))
	if err != nil {
		c.handleError(w, traceID, err, logger)
		return
	}
	uri, err := c.encoder.EncodeSessionURI(entry.TableNumber, entry.OrderNumber, entry.ServeCode, entry.Total)
	if err != nil {
		c.handleError(w, traceID, err, logger)
		return
	}
	png, err := qrlink.RenderPNG(uri, size)
	if err != nil {
		c.handleError(w, traceID, err, logger)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// Scan classifies text read by the view's camera and acts on it.
func (c *DinerController) Scan(w http.ResponseWriter, r *http.Request) {
	traceID, logger := c.begin(r)

	var req scanRequest
	if !c.decode(w, r, traceID, &req, logger) {
		return
	}

	res, err := qrlink.Decode(req.Text)
	if err != nil {
		if errors.Is(err, qrlink.ErrEmptyPayload) || errors.Is(err, qrlink.ErrMalformedSession) {
			c.writeValidationError(w, traceID, "unreadable QR payload", apperrors.ValidationDetail{
				Field:   "text",
				Message: err.Error(),
			})
			return
		}
		c.handleError(w, traceID, err, logger)
		return
	}
	if err := c.scans.Dispatch(r.Context(), res); err != nil {
		c.handleError(w, traceID, err, logger)
		return
	}
	c.writeJSON(w, http.StatusOK, scanResponse{Kind: res.Kind.String(), Link: res.Link, Session: res.Session})
}

func (c *DinerController) ListNotices(w http.ResponseWriter, r *http.Request) {
	c.writeJSON(w, http.StatusOK, c.notices.Active())
}

func (c *DinerController) DismissNotice(w http.ResponseWriter, r *http.Request) {
	traceID, logger := c.begin(r)

	if err := c.notices.Dismiss(chi.URLParam(r, "id")); err != nil {
		c.handleError(w, traceID, err, logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *DinerController) itemIDParam(w http.ResponseWriter, r *http.Request, traceID string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "itemId"))
	if err != nil || id <= 0 {
		c.writeValidationError(w, traceID, "invalid itemId", apperrors.ValidationDetail{
			Field:   "itemId",
			Message: "itemId must be a positive integer",
		})
		return 0, false
	}
	return id, true
}

func (c *DinerController) writeCart(w http.ResponseWriter) {
	lines := c.cart.Lines()
	c.writeJSON(w, http.StatusOK, cartResponse{
		Lines: lines,
		Count: c.cart.Count(),
		Total: c.cart.Total().StringFixed(2),
	})
}
