package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"solestore-payments/internal/usecase"
)

type PaymentHandler struct {
	paymentUC *usecase.PaymentUsecase
	logger    *zap.Logger
}

func NewPaymentHandler(paymentUC *usecase.PaymentUsecase, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		paymentUC: paymentUC,
		logger:    logger,
	}
}

// Checkout starts a payment: reserves stock, creates the order and pushes
// the STK prompt. The response only confirms the prompt was sent; clients
// poll GET /orders/{order_number} or subscribe over websocket for the
// outcome.
func (h *PaymentHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req usecase.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.paymentUC.InitiateCheckout(r.Context(), req)
	if err != nil {
		h.logger.Warn("checkout failed",
			zap.String("session_id", req.SessionID),
			zap.Error(err))
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, resp)
}

// OrderStatus is the polling endpoint for the checkout page.
func (h *PaymentHandler) OrderStatus(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "order_number")

	order, err := h.paymentUC.OrderStatus(r.Context(), orderNumber)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

// Diagnostics reports gateway credential presence and token cache health.
func (h *PaymentHandler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.paymentUC.Diagnostics())
}

// Stats aggregates the payment audit trail by event type.
func (h *PaymentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.paymentUC.Stats(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
