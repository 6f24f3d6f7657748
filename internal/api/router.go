package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meridianpay/reconciler/internal/ingestion"
	"github.com/meridianpay/reconciler/internal/reconcile"
	"github.com/meridianpay/reconciler/internal/repository"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(
	merchantRepo *repository.MerchantRepo,
	orderRepo *repository.OrderRepo,
	paymentRepo *repository.PaymentRepo,
	reconSvc *reconcile.Service,
	ingestionSvc *ingestion.Service,
) http.Handler {
	h := &Handlers{
		merchantRepo: merchantRepo,
		orderRepo:    orderRepo,
		paymentRepo:  paymentRepo,
		reconSvc:     reconSvc,
		ingestionSvc: ingestionSvc,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))

		// Merchants.
		r.Post("/merchants", h.CreateMerchant)
		r.Get("/merchants", h.ListMerchants)
		r.Get("/merchants/{merchantID}", h.GetMerchant)

		// Orders.
		r.Post("/orders", h.CreateOrder)
		r.Get("/orders", h.ListOrders)
		r.Get("/orders/{merchantOrderID}", h.GetOrder)

		// Payments.
		r.Post("/payments", h.CreatePayment)
		r.Get("/payments", h.ListPayments)
		r.Get("/payments/{merchantOrderID}", h.GetPayment)

		// Reconciliation.
		r.Post("/reconciliation", h.RunReconciliation)
		r.Get("/reconciliation/report", h.GetReconciliationReport)
		r.Get("/discrepancies", h.GetDiscrepancies)

		// Bulk import.
		r.Post("/imports", h.ImportFile)
	})

	return r
}
