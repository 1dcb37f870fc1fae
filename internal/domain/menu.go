package domain

import "github.com/shopspring/decimal"

type MenuItem struct {
	ID          int
	Name        string
	Description string
	Image       string
	Price       decimal.Decimal
	CategoryID  int
}

type Category struct {
	ID   int
	Name string
}

// CartLine is a selected menu item with the price it had when it was first
// added. Later catalog changes do not reprice the line.
type CartLine struct {
	ItemID    int             `json:"itemId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
