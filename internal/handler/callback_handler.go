package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"solestore-payments/internal/usecase"
)

const (
	// callbackProcessTimeout bounds the background reconciliation of one
	// callback; the gateway has already been acknowledged by then.
	callbackProcessTimeout = 30 * time.Second

	// maxCallbackBytes caps the inbound payload. Real STK callbacks are
	// under 1 KiB; anything near this limit is not the gateway.
	maxCallbackBytes = 64 << 10
)

type CallbackHandler struct {
	callbackUC *usecase.CallbackUsecase
	logger     *zap.Logger
}

func NewCallbackHandler(callbackUC *usecase.CallbackUsecase, logger *zap.Logger) *CallbackHandler {
	return &CallbackHandler{
		callbackUC: callbackUC,
		logger:     logger,
	}
}

// HandleSTKCallback receives the asynchronous payment result from the
// gateway. It always acknowledges with 200 no matter what the payload
// contains; anything else makes the gateway retry-storm the endpoint.
// Reconciliation runs in the background off the request goroutine.
func (h *CallbackHandler) HandleSTKCallback(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("received STK callback",
		zap.String("remote_addr", r.RemoteAddr))

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBytes))
	if err != nil {
		h.logger.Error("failed to read callback payload", zap.Error(err))
		h.sendCallbackResponse(w, 1, "Failed to read payload")
		return
	}

	// Detached context: the request context dies when we return, the
	// reconciliation must not.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), callbackProcessTimeout)
		defer cancel()

		if err := h.callbackUC.ProcessCallback(ctx, payload); err != nil {
			h.logger.Error("failed to process STK callback", zap.Error(err))
		}
	}()

	h.sendCallbackResponse(w, 0, "Success")
}

// sendCallbackResponse writes the acknowledgement shape the gateway
// expects: an integer ResultCode and a description, always under 200.
func (h *CallbackHandler) sendCallbackResponse(w http.ResponseWriter, resultCode int, resultDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := map[string]interface{}{
		"ResultCode": resultCode,
		"ResultDesc": resultDesc,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode callback response", zap.Error(err))
	}
}
