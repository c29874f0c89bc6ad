package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tmksh/fulfillment/internal/service"
	"github.com/tmksh/fulfillment/pkg/httputil"
	"github.com/tmksh/fulfillment/pkg/validator"
)

// InventoryHandler handles HTTP requests for stock and ledger endpoints.
type InventoryHandler struct {
	service *service.FulfillmentService
	logger  *slog.Logger
}

// NewInventoryHandler creates a new inventory HTTP handler.
func NewInventoryHandler(svc *service.FulfillmentService, logger *slog.Logger) *InventoryHandler {
	return &InventoryHandler{
		service: svc,
		logger:  logger,
	}
}

// AdjustStockRequest is the JSON request body for a manual stock adjustment.
type AdjustStockRequest struct {
	OrganizationID string `json:"organization_id" validate:"required,uuid"`
	Delta          int    `json:"delta" validate:"required"`
	Reason         string `json:"reason"`
}

// GetAvailability handles GET /api/v1/inventory/variants/{id}/availability
func (h *InventoryHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	availability, err := h.service.GetAvailability(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: availability})
}

// ListReservations handles GET /api/v1/inventory/reservations
func (h *InventoryHandler) ListReservations(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParseUUID(w, r.URL.Query().Get("organization_id"))
	if !ok {
		return
	}

	var variantID *string
	if v := r.URL.Query().Get("variant_id"); v != "" {
		id, ok := httputil.ParseUUID(w, v)
		if !ok {
			return
		}
		s := id.String()
		variantID = &s
	}

	reserved, err := h.service.ListReservations(r.Context(), orgID.String(), variantID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: reserved})
}

// ListMovements handles GET /api/v1/inventory/variants/{id}/movements
func (h *InventoryHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	orgID, ok := httputil.ParseUUID(w, r.URL.Query().Get("organization_id"))
	if !ok {
		return
	}

	entries, err := h.service.ListMovements(r.Context(), orgID.String(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: entries})
}

// AuditLedger handles GET /api/v1/inventory/variants/{id}/audit
func (h *InventoryHandler) AuditLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	orgID, ok := httputil.ParseUUID(w, r.URL.Query().Get("organization_id"))
	if !ok {
		return
	}

	if err := h.service.AuditVariantLedger(r.Context(), orgID.String(), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"status": "consistent"}})
}

// AdjustStock handles POST /api/v1/inventory/variants/{id}/adjust
func (h *InventoryHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	// Limit request body to 1MB to prevent DoS via large payloads.
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req AdjustStockRequest
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

	stock, err := h.service.AdjustStock(r.Context(), req.OrganizationID, id.String(), req.Delta, req.Reason)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: stock})
}
