package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"digimenu/internal/api"
	"digimenu/internal/auth"
	mw "digimenu/internal/middleware"
	"digimenu/internal/notice"
)

type RouterConfig struct {
	CORSOrigins []string
	JWTSecret   string
}

// NewRouter wires the diner routes (open, the device is the diner's) and the
// staff routes (bearer token) onto one chi router.
func NewRouter(cfg RouterConfig, diner *api.DinerController, staff *api.StaffController, hub *notice.Hub, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(mw.RequestLogger(logger))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/menu", diner.GetMenu)

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", diner.GetCart)
		r.Delete("/", diner.ClearCart)
		r.Post("/items", diner.AddToCart)
		r.Put("/items/{itemId}", diner.SetCartQuantity)
		r.Delete("/items/{itemId}", diner.RemoveFromCart)
	})

	r.Get("/session", diner.GetSession)
	r.Post("/session/table", diner.SelectTable)
	r.Post("/checkout", diner.Checkout)
	r.Post("/payment/confirm", diner.ConfirmPayment)
	r.Post("/payment/abandon", diner.AbandonPayment)
	r.Post("/scan", diner.Scan)

	r.Route("/history", func(r chi.Router) {
		r.Get("/", diner.ListHistory)
		r.Get("/{orderNumber}/slip", diner.GetSlip)
		r.Get("/{orderNumber}/qr.png", diner.GetOrderQR)
		r.Post("/{orderNumber}/reorder", diner.Reorder)
	})

	r.Get("/notices", diner.ListNotices)
	r.Delete("/notices/{id}", diner.DismissNotice)

	r.Get("/ws/diner", func(w http.ResponseWriter, r *http.Request) {
		notice.ServeWS(hub, notice.TopicDiner, w, r)
	})

	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))
		r.Use(mw.RequireRole(auth.RoleStaff))

		r.Route("/staff", func(r chi.Router) {
			r.Get("/orders", staff.ListOrders)
			r.Post("/orders/refresh", staff.Refresh)
			r.Put("/orders/{orderNumber}/input", staff.SetInput)
			r.Post("/orders/{orderNumber}/deliver", staff.Deliver)
			r.Get("/audit", staff.GetAudit)
		})

		r.Get("/ws/staff", func(w http.ResponseWriter, r *http.Request) {
			notice.ServeWS(hub, notice.TopicStaff, w, r)
		})
	})

	return r
}
