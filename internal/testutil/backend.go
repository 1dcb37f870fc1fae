package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// FakeOrder is the fake backend's record of an order.
type FakeOrder struct {
	OrderNumber string         `json:"order_number"`
	ServeCode   string         `json:"serve_code"`
	TableNumber int            `json:"table_number"`
	TotalAmount string         `json:"total_amount"`
	Status      string         `json:"status"`
	Items       []FakeLineItem `json:"items"`
}

type FakeLineItem struct {
	MenuItem int `json:"menu_item"`
	Quantity int `json:"quantity"`
}

type FakeMenuItem struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Category int    `json:"category"`
}

type FakeCategory struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// FakeBackend is an in-memory stand-in for the ordering backend, served over
// httptest. Verification succeeds only for the signature "valid".
type FakeBackend struct {
	Server *httptest.Server

	mu              sync.Mutex
	menu            []FakeMenuItem
	categories      []FakeCategory
	orders          []*FakeOrder
	nextOrder       int
	hits            map[string]int
	failListOrders  int
	failCreateOrder bool
	rejectPayment   bool
	listGate        chan struct{}
}

func NewFakeBackend(t *testing.T) *FakeBackend {
	f := &FakeBackend{
		nextOrder: 1041,
		hits:      make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /menu-items/", f.handleMenu)
	mux.HandleFunc("GET /categories/", f.handleCategories)
	mux.HandleFunc("POST /orders/", f.handleCreateOrder)
	mux.HandleFunc("GET /admin/orders/", f.handleListOrders)
	mux.HandleFunc("POST /update-order-status/", f.handleUpdateStatus)
	mux.HandleFunc("POST /create-razorpay-order/", f.handleCreatePayment)
	mux.HandleFunc("POST /verify-payment/", f.handleVerifyPayment)

	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.hits[r.URL.Path]++
		f.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.Server.Close)

	return f
}

func (f *FakeBackend) URL() string {
	return f.Server.URL
}

func (f *FakeBackend) SetMenu(items []FakeMenuItem, cats []FakeCategory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.menu = items
	f.categories = cats
}

// SeedOrder adds an order directly, as if another diner had placed it.
func (f *FakeBackend) SeedOrder(o FakeOrder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := o
	f.orders = append(f.orders, &cp)
}

func (f *FakeBackend) SetStatus(orderNumber, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o := f.find(orderNumber); o != nil {
		o.Status = status
	}
}

func (f *FakeBackend) RemoveOrder(orderNumber string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, o := range f.orders {
		if o.OrderNumber == orderNumber {
			f.orders = append(f.orders[:i], f.orders[i+1:]...)
			return
		}
	}
}

func (f *FakeBackend) Order(orderNumber string) (FakeOrder, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o := f.find(orderNumber); o != nil {
		return *o, true
	}
	return FakeOrder{}, false
}

// Hits returns how many requests reached path.
func (f *FakeBackend) Hits(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

// FailListOrders makes the next n order-list requests answer 503.
func (f *FakeBackend) FailListOrders(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failListOrders = n
}

func (f *FakeBackend) FailCreateOrder(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCreateOrder = fail
}

func (f *FakeBackend) RejectPaymentOrders(reject bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectPayment = reject
}

// GateListOrders blocks order-list requests until the returned func is called.
func (f *FakeBackend) GateListOrders() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.listGate = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.listGate = nil
			f.mu.Unlock()
			close(gate)
		})
	}
}

func (f *FakeBackend) find(orderNumber string) *FakeOrder {
	for _, o := range f.orders {
		if o.OrderNumber == orderNumber {
			return o
		}
	}
	return nil
}

func (f *FakeBackend) handleMenu(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, f.menu)
}

func (f *FakeBackend) handleCategories(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, f.categories)
}

func (f *FakeBackend) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TableNumber int            `json:"table_number"`
		TotalAmount json.Number    `json:"total_amount"`
		Items       []FakeLineItem `json:"items"`
	}
	if err := decodeNumberString(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateOrder {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "database unavailable"})
		return
	}

	number := fmt.Sprintf("%d", f.nextOrder)
	f.nextOrder++
	o := &FakeOrder{
		OrderNumber: number,
		ServeCode:   "S" + number,
		TableNumber: req.TableNumber,
		TotalAmount: req.TotalAmount.String(),
		Status:      "Created",
		Items:       req.Items,
	}
	f.orders = append(f.orders, o)
	writeJSON(w, http.StatusCreated, o)
}

func (f *FakeBackend) handleListOrders(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	gate := f.listGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failListOrders > 0 {
		f.failListOrders--
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "try again"})
		return
	}

	out := make([]FakeOrder, len(f.orders))
	for i, o := range f.orders {
		out[i] = *o
	}
	writeJSON(w, http.StatusOK, out)
}

func (f *FakeBackend) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderNumber string `json:"order_number"`
		ServeCode   string `json:"serve_code"`
		Status      string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.find(req.OrderNumber)
	if o == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Order not found"})
		return
	}
	if o.ServeCode != req.ServeCode {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid serve code"})
		return
	}
	o.Status = req.Status
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (f *FakeBackend) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderNumber string `json:"order_number"`
		Amount      int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectPayment {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "provider unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key_id":            "rzp_test_key",
		"razorpay_order_id": "order_rzp_" + req.OrderNumber,
		"amount":            req.Amount,
		"currency":          "INR",
	})
}

func (f *FakeBackend) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderNumber       string `json:"order_number"`
		RazorpayOrderID   string `json:"razorpay_order_id"`
		RazorpayPaymentID string `json:"razorpay_payment_id"`
		RazorpaySignature string `json:"razorpay_signature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if req.RazorpaySignature != "valid" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "signature mismatch"})
		return
	}
	if o := f.find(req.OrderNumber); o != nil {
		o.Status = "Paid"
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// decodeNumberString decodes a body whose amounts may be quoted decimals.
func decodeNumberString(r *http.Request, v any) error {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return err
	}
	if amt, ok := raw["total_amount"]; ok && len(amt) > 0 && amt[0] == '"' {
		raw["total_amount"] = amt[1 : len(amt)-1]
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
