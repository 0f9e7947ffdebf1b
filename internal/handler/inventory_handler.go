package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"solestore-payments/internal/usecase"
)

type InventoryHandler struct {
	inventoryUC *usecase.InventoryUsecase
	logger      *zap.Logger
}

func NewInventoryHandler(inventoryUC *usecase.InventoryUsecase, logger *zap.Logger) *InventoryHandler {
	return &InventoryHandler{
		inventoryUC: inventoryUC,
		logger:      logger,
	}
}

type reserveRequest struct {
	Quantity  int    `json:"quantity"`
	SessionID string `json:"session_id"`
}

type releaseRequest struct {
	SessionID string `json:"session_id"`
}

// Availability reports purchasable stock for one variant. Unknown
// variants read as zero so storefront pages degrade to "out of stock"
// instead of erroring.
func (h *InventoryHandler) Availability(w http.ResponseWriter, r *http.Request) {
	variantID := chi.URLParam(r, "variant_id")

	available, err := h.inventoryUC.CheckAvailability(r.Context(), variantID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"variant_id": variantID,
		"available":  available,
	})
}

// Reserve holds stock for a session while the customer checks out. A
// repeat call for the same (variant, session) adjusts the existing hold
// and refreshes its expiry rather than stacking a second one.
func (h *InventoryHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	variantID := chi.URLParam(r, "variant_id")

	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ok, err := h.inventoryUC.Reserve(r.Context(), variantID, req.Quantity, req.SessionID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if !ok {
		respondJSON(w, http.StatusConflict, map[string]interface{}{
			"reserved": false,
			"reason":   "insufficient stock",
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"reserved": true})
}

// Release returns a session's hold to the pool, e.g. when the customer
// empties their cart. Releasing nothing is not an error.
func (h *InventoryHandler) Release(w http.ResponseWriter, r *http.Request) {
	variantID := chi.URLParam(r, "variant_id")

	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.inventoryUC.Release(r.Context(), variantID, req.SessionID); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"released": true})
}
