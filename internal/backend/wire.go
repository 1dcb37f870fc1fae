package backend

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"

	"digimenu/internal/domain"
)

// flexString accepts both JSON strings and numbers; the backend is not
// consistent about order numbers and serve codes.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexInt accepts 5 and "5"; empty strings and null decode to 0.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(string(s))
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

type menuItemDTO struct {
	ID          int             `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	Price       decimal.Decimal `json:"price"`
	Category    flexInt         `json:"category"`
}

func (d menuItemDTO) toDomain() domain.MenuItem {
	return domain.MenuItem{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Image:       d.Image,
		Price:       d.Price,
		CategoryID:  int(d.Category),
	}
}

type categoryDTO struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type orderItemDTO struct {
	MenuItem int `json:"menu_item"`
	Quantity int `json:"quantity"`
}

type createOrderRequestDTO struct {
	TableNumber   int             `json:"table_number"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentMethod string          `json:"payment_method"`
	Items         []orderItemDTO  `json:"items"`
}

type orderDTO struct {
	OrderNumber flexString      `json:"order_number"`
	ServeCode   flexString      `json:"serve_code"`
	TableNumber flexInt         `json:"table_number"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      string          `json:"status"`
	Items       []orderItemDTO  `json:"items"`
}

func (d orderDTO) toDomain() domain.Order {
	lines := make([]domain.OrderLine, len(d.Items))
	for i, it := range d.Items {
		lines[i] = domain.OrderLine{ItemID: it.MenuItem, Quantity: it.Quantity}
	}
	return domain.Order{
		OrderNumber: string(d.OrderNumber),
		ServeCode:   string(d.ServeCode),
		TableNumber: int(d.TableNumber),
		Lines:       lines,
		TotalAmount: d.TotalAmount,
		Status:      domain.OrderStatus(d.Status),
	}
}

type updateStatusRequestDTO struct {
	OrderNumber string `json:"order_number"`
	ServeCode   string `json:"serve_code"`
	Status      string `json:"status"`
}

type resultDTO struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
	Detail  string `json:"detail"`
}

func (r resultDTO) errorMessage() string {
	switch {
	case r.Error != "":
		return r.Error
	case r.Detail != "":
		return r.Detail
	default:
		return r.Message
	}
}

type paymentOrderRequestDTO struct {
	OrderNumber string `json:"order_number"`
	Amount      int64  `json:"amount"`
}

type paymentOrderResponseDTO struct {
	KeyID           string `json:"key_id"`
	RazorpayOrderID string `json:"razorpay_order_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

type verifyPaymentRequestDTO struct {
	OrderNumber       string `json:"order_number"`
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}
