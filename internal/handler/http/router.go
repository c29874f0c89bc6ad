package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tmksh/fulfillment/internal/service"
	"github.com/tmksh/fulfillment/pkg/health"
	"github.com/tmksh/fulfillment/pkg/middleware"
)

// NewRouter creates a chi router with all fulfillment service routes registered.
func NewRouter(
	svc *service.FulfillmentService,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("fulfillment"))
	r.Use(middleware.Tracing("fulfillment"))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Actor())

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	orderHandler := NewOrderHandler(svc, logger)
	inventoryHandler := NewInventoryHandler(svc, logger)

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/", orderHandler.CreateOrder)
		r.Get("/", orderHandler.ListOrders)
		r.Post("/quote", orderHandler.Quote)
		r.Get("/{id}", orderHandler.GetOrder)
		r.Post("/{id}/confirm", orderHandler.ConfirmOrder)
		r.Post("/{id}/process", orderHandler.StartProcessing)
		r.Post("/{id}/ship", orderHandler.ShipOrder)
		r.Post("/{id}/deliver", orderHandler.MarkDelivered)
		r.Post("/{id}/cancel", orderHandler.CancelOrder)
		r.Post("/{id}/refund", orderHandler.RefundOrder)
	})

	r.Route("/api/v1/inventory", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Get("/reservations", inventoryHandler.ListReservations)
		r.Get("/variants/{id}/availability", inventoryHandler.GetAvailability)
		r.Get("/variants/{id}/movements", inventoryHandler.ListMovements)
		r.Get("/variants/{id}/audit", inventoryHandler.AuditLedger)
		r.Post("/variants/{id}/adjust", inventoryHandler.AdjustStock)
	})

	return r
}
