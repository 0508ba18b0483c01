/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack, and the route table.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for a browser frontend

ROUTE GROUPS:
  /healthz              Liveness + store ping
  /api/medicines/*      Catalog and stock
  /api/patients/*       Patient registry
  /api/transactions/*   Sales, payment status, receipts
  /api/usage            Administrative consumption
  /api/reports/*        Read-only reports

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DefaultCORSOrigins are used when no origins are configured.
var DefaultCORSOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	if len(corsOrigins) == 0 {
		corsOrigins = DefaultCORSOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After", "Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/medicines", func(r chi.Router) {
			r.Get("/", h.ListMedicines)
			r.Post("/", h.CreateMedicine)
			r.Get("/low-stock", h.LowStock)
			r.Get("/{id}", h.GetMedicine)
			r.Patch("/{id}", h.UpdateMedicine)
			r.Delete("/{id}", h.DeleteMedicine)
			r.Get("/{id}/stock", h.GetMedicineStock)
		})

		r.Route("/patients", func(r chi.Router) {
			r.Get("/", h.ListPatients)
			r.Post("/", h.CreatePatient)
			r.Get("/{id}", h.GetPatient)
			r.Patch("/{id}", h.UpdatePatient)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Post("/", h.CreateTransaction)
			r.Get("/{id}", h.GetTransaction)
			r.Put("/{id}/status", h.UpdatePaymentStatus)
			r.Get("/{id}/receipt", h.GetReceipt)
		})

		r.Route("/usage", func(r chi.Router) {
			r.Get("/", h.ListUsage)
			r.Post("/", h.RecordUsage)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/stock", h.StockReport)
			r.Get("/stock.xlsx", h.ExportStockReport)
			r.Get("/patients", h.PatientReport)
			r.Get("/alerts", h.StockAlerts)
		})
	})

	return r
}
