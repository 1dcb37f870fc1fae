package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// HistoryEntry is the diner's cached copy of an order taken at checkout. Only
// Status changes afterwards.
type HistoryEntry struct {
	OrderNumber string          `json:"orderNumber"`
	ServeCode   string          `json:"serveCode"`
	TableNumber int             `json:"tableNumber"`
	Lines       []OrderLine     `json:"lines"`
	Total       decimal.Decimal `json:"total"`
	Status      OrderStatus     `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func NewHistoryEntry(order Order, status OrderStatus, now time.Time) HistoryEntry {
	lines := make([]OrderLine, len(order.Lines))
	copy(lines, order.Lines)
	return HistoryEntry{
		OrderNumber: order.OrderNumber,
		ServeCode:   order.ServeCode,
		TableNumber: order.TableNumber,
		Lines:       lines,
		Total:       order.TotalAmount,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

type DeliveredAuditEntry struct {
	OrderNumber string          `json:"orderNumber"`
	ServeCode   string          `json:"serveCode"`
	TableNumber int             `json:"tableNumber"`
	Lines       []OrderLine     `json:"lines"`
	Total       decimal.Decimal `json:"total"`
	Status      OrderStatus     `json:"status"`
	DeliveredAt time.Time       `json:"deliveredAt"`
}
