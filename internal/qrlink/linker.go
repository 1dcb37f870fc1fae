// Package qrlink turns table sessions into scannable payment payloads and
// classifies whatever a camera scan produces.
package qrlink

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "digimenu/internal/errors"
)

var (
	ErrEmptyPayload     = errors.New("qrlink: empty payload")
	ErrMalformedSession = errors.New("qrlink: malformed session payload")
)

const tablePrefix = "Table"

type Payee struct {
	VPA      string
	Name     string
	Currency string
}

type Kind int

const (
	KindLink Kind = iota + 1
	KindSession
)

func (k Kind) String() string {
	switch k {
	case KindLink:
		return "link"
	case KindSession:
		return "session"
	default:
		return "unknown"
	}
}

// SessionPayload is what a session QR carries about the order it was printed
// for.
type SessionPayload struct {
	Table       int
	OrderNumber string
	ServeCode   string
	Amount      decimal.Decimal
	Payee       string
	PayeeName   string
	Currency    string
}

type Result struct {
	Kind    Kind
	Session *SessionPayload
	Link    string
}

type Linker struct {
	payee Payee
}

func NewLinker(payee Payee) *Linker {
	return &Linker{payee: payee}
}

// EncodeSessionURI builds the session payload. Parameters are always written
// in the same order so that equal inputs give byte-equal URIs.
func (l *Linker) EncodeSessionURI(table int, orderNumber, serveCode string, amount decimal.Decimal) (string, error) {
	var details []apperrors.ValidationDetail
	if table < 1 {
		details = append(details, apperrors.ValidationDetail{Field: "table", Message: "must be a positive integer"})
	}
	if orderNumber == "" {
		details = append(details, apperrors.ValidationDetail{Field: "orderNumber", Message: "is required"})
	}
	if serveCode == "" {
		details = append(details, apperrors.ValidationDetail{Field: "serveCode", Message: "is required"})
	}
	if amount.IsNegative() {
		details = append(details, apperrors.ValidationDetail{Field: "amount", Message: "must not be negative"})
	}
	if len(details) > 0 {
		return "", apperrors.NewValidationError("invalid session payload", details...)
	}

	params := [][2]string{
		{"pa", l.payee.VPA},
		{"pn", l.payee.Name},
		{"cu", l.payee.Currency},
		{"am", amount.StringFixed(2)},
		{"tn", tablePrefix + strconv.Itoa(table)},
		{"oid", orderNumber},
		{"scode", serveCode},
	}

	var b strings.Builder
	b.WriteString("upi://pay?")
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p[0])
		b.WriteByte('=')
		b.WriteString(escape(p[1]))
	}
	return b.String(), nil
}

// Decode classifies scanned text. A upi://pay payload with an order id is a
// session and must carry a valid table and serve code; anything else that is
// not empty is a link to hand to the platform.
func Decode(raw string) (Result, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Result{}, ErrEmptyPayload
	}

	u, err := url.Parse(text)
	if err != nil || !strings.EqualFold(u.Scheme, "upi") || !strings.EqualFold(u.Host, "pay") {
		return Result{Kind: KindLink, Link: text}, nil
	}

	q := u.Query()
	orderNumber := q.Get("oid")
	if orderNumber == "" {
		return Result{Kind: KindLink, Link: text}, nil
	}

	table, ok := parseTable(q.Get("tn"))
	if !ok {
		return Result{}, ErrMalformedSession
	}
	serveCode := q.Get("scode")
	if serveCode == "" {
		return Result{}, ErrMalformedSession
	}
	amount := decimal.Zero
	if am := q.Get("am"); am != "" {
		amount, err = decimal.NewFromString(am)
		if err != nil || amount.IsNegative() {
			return Result{}, ErrMalformedSession
		}
	}

	return Result{
		Kind: KindSession,
		Session: &SessionPayload{
			Table:       table,
			OrderNumber: orderNumber,
			ServeCode:   serveCode,
			Amount:      amount,
			Payee:       q.Get("pa"),
			PayeeName:   q.Get("pn"),
			Currency:    q.Get("cu"),
		},
	}, nil
}

func parseTable(tn string) (int, bool) {
	digits, found := strings.CutPrefix(tn, tablePrefix)
	if !found {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(digits))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// escape query-escapes v but keeps '@' readable in payee addresses.
func escape(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "%40", "@")
}
