package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "digimenu/internal/errors"
	"digimenu/internal/serve"
)

type Board interface {
	Orders(pendingOnly bool) []serve.BoardOrder
	LastError() string
	SetInput(orderNumber, code string)
	Deliver(ctx context.Context, orderNumber, code string) error
	Refresh() bool
}

type AuditViewer interface {
	View(day time.Time) serve.AuditView
	Recent() serve.AuditView
}

type StaffController struct {
	responder
	board  Board
	audit  AuditViewer
	loc    *time.Location
	logger *zap.Logger
}

func NewStaffController(board Board, audit AuditViewer, loc *time.Location, logger *zap.Logger) *StaffController {
	if loc == nil {
		loc = time.UTC
	}
	return &StaffController{
		responder: responder{logger: logger},
		board:     board,
		audit:     audit,
		loc:       loc,
		logger:    logger,
	}
}

type boardResponse struct {
	Orders    []serve.BoardOrder `json:"orders"`
	LastError string             `json:"lastError,omitempty"`
}

type serveCodeRequest struct {
	ServeCode string `json:"serveCode"`
}

type refreshResponse struct {
	Started bool `json:"started"`
}

func (c *StaffController) begin(r *http.Request) (string, *zap.Logger) {
	traceID := traceIDFrom(r)
	return traceID, c.logger.With(zap.String("traceId", traceID))
}

func (c *StaffController) ListOrders(w http.ResponseWriter, r *http.Request) {
	pendingOnly := r.URL.Query().Get("pending") != "false"
	c.writeJSON(w, http.StatusOK, boardResponse{
		Orders:    c.board.Orders(pendingOnly),
		LastError: c.board.LastError(),
	})
}

func (c *StaffController) SetInput(w http.ResponseWriter, r *http.Request) {
	traceID, logger := c.begin(r)

	var req serveCodeRequest
	if !c.decode(w, r, traceID, &req, logger) {
		return
	}
	c.board.SetInput(chi.URLParam(r, "orderNumber"), req.ServeCode)
	w.WriteHeader(http.StatusNoContent)
}

func (c *StaffController) Deliver(w http.ResponseWriter, r *http.Request) {
	traceID, logger := c.begin(r)
	orderNumber := chi.URLParam(r, "orderNumber")
	logger = logger.With(zap.String("orderNumber", orderNumber))

	var req serveCodeRequest
	if !c.decode(w, r, traceID, &req, logger) {
		return
	}
	if err := c.board.Deliver(r.Context(), orderNumber, req.ServeCode); err != nil {
		c.handleError(w, traceID, err, logger)
		return
	}
	c.writeJSON(w, http.StatusOK, boardResponse{Orders: c.board.Orders(true)})
}

func (c *StaffController) Refresh(w http.ResponseWriter, r *http.Request) {
	c.writeJSON(w, http.StatusAccepted, refreshResponse{Started: c.board.Refresh()})
}

// GetAudit shows deliveries for ?day=YYYY-MM-DD, or the latest ones across
// all days when no day is given.
func (c *StaffController) GetAudit(w http.ResponseWriter, r *http.Request) {
	traceID, _ := c.begin(r)

	raw := r.URL.Query().Get("day")
	if raw == "" {
		c.writeJSON(w, http.StatusOK, c.audit.Recent())
		return
	}
	day, err := time.ParseInLocation("2006-01-02", raw, c.loc)
	if err != nil {
		c.writeValidationError(w, traceID, "invalid day", apperrors.ValidationDetail{
			Field:   "day",
			Message: "day must be formatted as YYYY-MM-DD",
		})
		return
	}
	c.writeJSON(w, http.StatusOK, c.audit.View(day))
}
