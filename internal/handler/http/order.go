package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tmksh/fulfillment/internal/domain"
	"github.com/tmksh/fulfillment/internal/repository"
	"github.com/tmksh/fulfillment/internal/service"
	"github.com/tmksh/fulfillment/pkg/httputil"
	"github.com/tmksh/fulfillment/pkg/validator"
)

// OrderHandler handles HTTP requests for order lifecycle endpoints.
type OrderHandler struct {
	service *service.FulfillmentService
	logger  *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(svc *service.FulfillmentService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CreateOrderLineRequest is the JSON request body for an order line.
type CreateOrderLineRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	VariantID string `json:"variant_id" validate:"required,uuid"`
	Name      string `json:"name" validate:"required"`
	SKU       string `json:"sku"`
	UnitPrice int64  `json:"unit_price" validate:"gte=0"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
}

// CreateOrderRequest is the JSON request body for creating an order.
type CreateOrderRequest struct {
	OrganizationID string                   `json:"organization_id" validate:"required,uuid"`
	CustomerID     *string                  `json:"customer_id" validate:"omitempty,uuid"`
	CustomerName   string                   `json:"customer_name"`
	CustomerEmail  string                   `json:"customer_email" validate:"omitempty,email"`
	Lines          []CreateOrderLineRequest `json:"lines" validate:"required,min=1,dive"`
	ShippingAddr   *domain.Address          `json:"shipping_address"`
	Notes          string                   `json:"notes"`
}

// ShipOrderRequest is the JSON request body for shipping an order.
type ShipOrderRequest struct {
	TrackingNumber string `json:"tracking_number"`
}

// CancelOrderRequest is the JSON request body for cancelling an order.
type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

// RefundOrderRequest is the JSON request body for refunding an order.
type RefundOrderRequest struct {
	ReturnStock bool `json:"return_stock"`
}

// QuoteRequest is the JSON request body for pricing a prospective order.
type QuoteRequest struct {
	OrganizationID string                   `json:"organization_id" validate:"required,uuid"`
	Lines          []CreateOrderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// --- Handlers ---

// CreateOrder handles POST /api/v1/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	// Limit request body to 1MB to prevent DoS via large payloads.
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	lines := make([]service.CreateOrderLineInput, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = service.CreateOrderLineInput{
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Name:      l.Name,
			SKU:       l.SKU,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		}
	}

	input := service.CreateOrderInput{
		OrganizationID: req.OrganizationID,
		CustomerID:     req.CustomerID,
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		Lines:          lines,
		ShippingAddr:   req.ShippingAddr,
		Notes:          req.Notes,
	}

	order, err := h.service.CreateOrder(r.Context(), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: order})
}

// ListOrders handles GET /api/v1/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	filter := repository.OrderFilter{
		Page:    1,
		PerPage: 20,
	}

	orgID, ok := httputil.ParseUUID(w, r.URL.Query().Get("organization_id"))
	if !ok {
		return
	}
	filter.OrganizationID = orgID.String()

	if v := r.URL.Query().Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "page must be a valid positive integer"},
			})
			return
		}
		filter.Page = page
	}
	if v := r.URL.Query().Get("per_page"); v != "" {
		perPage, err := strconv.Atoi(v)
		if err != nil || perPage < 1 || perPage > 100 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "per_page must be a valid integer between 1 and 100"},
			})
			return
		}
		filter.PerPage = perPage
	}
	if v := r.URL.Query().Get("customer_id"); v != "" {
		filter.CustomerID = &v
	}
	if v := r.URL.Query().Get("status"); v != "" {
		filter.Status = &v
	}

	orders, total, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.NewPaginatedResponse(orders, total, filter.Page, filter.PerPage))
}

// GetOrder handles GET /api/v1/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// ConfirmOrder handles POST /api/v1/orders/{id}/confirm
func (h *OrderHandler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, h.service.ConfirmOrder)
}

// StartProcessing handles POST /api/v1/orders/{id}/process
func (h *OrderHandler) StartProcessing(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, h.service.StartProcessing)
}

// MarkDelivered handles POST /api/v1/orders/{id}/deliver
func (h *OrderHandler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, h.service.MarkDelivered)
}

func (h *OrderHandler) applyTransition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) (*domain.Order, error)) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	order, err := fn(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// ShipOrder handles POST /api/v1/orders/{id}/ship
func (h *OrderHandler) ShipOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	// Limit request body to 1MB to prevent DoS via large payloads.
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req ShipOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Allow empty body; tracking number is optional.
		req = ShipOrderRequest{}
	}

	order, err := h.service.ShipOrder(r.Context(), id.String(), req.TrackingNumber)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// CancelOrder handles POST /api/v1/orders/{id}/cancel
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	// Limit request body to 1MB to prevent DoS via large payloads.
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Allow empty body for cancel; default reason is empty.
		req = CancelOrderRequest{}
	}

	order, err := h.service.CancelOrder(r.Context(), id.String(), req.Reason)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// RefundOrder handles POST /api/v1/orders/{id}/refund
func (h *OrderHandler) RefundOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	// Limit request body to 1MB to prevent DoS via large payloads.
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	// Refunds restock by default; clients opt out with "return_stock": false.
	req := RefundOrderRequest{ReturnStock: true}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req = RefundOrderRequest{ReturnStock: true}
	}

	order, err := h.service.RefundOrder(r.Context(), id.String(), req.ReturnStock)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// Quote handles POST /api/v1/orders/quote
func (h *OrderHandler) Quote(w http.ResponseWriter, r *http.Request) {
	// Limit request body to 1MB to prevent DoS via large payloads.
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	lines := make([]service.CreateOrderLineInput, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = service.CreateOrderLineInput{
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		}
	}

	pricing, err := h.service.QuotePricing(r.Context(), req.OrganizationID, lines)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: pricing})
}
