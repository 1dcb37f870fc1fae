package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "Created"
	OrderStatusPaid      OrderStatus = "Paid"
	OrderStatusDelivered OrderStatus = "Delivered"
)

// Rank orders statuses along the lifecycle. Unknown statuses rank 0 and never
// replace a known one.
func (s OrderStatus) Rank() int {
	switch s {
	case OrderStatusCreated:
		return 1
	case OrderStatusPaid:
		return 2
	case OrderStatusDelivered:
		return 3
	default:
		return 0
	}
}

func (s OrderStatus) Known() bool {
	return s.Rank() > 0
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered
}

// Advances reports whether moving from s to next goes forward in the lifecycle.
func (s OrderStatus) Advances(next OrderStatus) bool {
	return next.Rank() > s.Rank()
}

type OrderLine struct {
	ItemID    int             `json:"itemId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	OrderNumber string
	ServeCode   string
	TableNumber int
	Lines       []OrderLine
	TotalAmount decimal.Decimal
	Status      OrderStatus
	CreatedAt   time.Time
}

// LinesFromCart snapshots cart lines into order lines.
func LinesFromCart(cart []CartLine) []OrderLine {
	lines := make([]OrderLine, len(cart))
	for i, c := range cart {
		lines[i] = OrderLine{
			ItemID:    c.ItemID,
			Name:      c.Name,
			UnitPrice: c.UnitPrice,
			Quantity:  c.Quantity,
		}
	}
	return lines
}

func SumLines(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}
