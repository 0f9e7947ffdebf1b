package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"solestore-payments/internal/domain"
	"solestore-payments/internal/repository"
	"solestore-payments/internal/usecase"
)

func seedInitiatedOrder(t *testing.T, store *repository.Memory) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.CreateVariant(ctx, &domain.ProductVariant{
		ID: "v1", SKU: "SKU-v1", TotalStock: 10,
	}))
	ok, err := store.Reserve(ctx, "v1", 1, "sess-a")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.CreateOrder(ctx, &domain.Order{
		ID:          "ord-1",
		OrderNumber: "SOLE-20260831-ABCD1234",
		SessionID:   "sess-a",
		Status:      domain.OrderPending,
		TotalAmount: 125000,
		PhoneNumber: "254712345678",
		Items: []domain.OrderItem{{
			ID: "item-1", OrderID: "ord-1", VariantID: "v1",
			Quantity: 1, UnitPrice: 125000,
		}},
	}))
	require.NoError(t, store.SetPaymentInitiated(ctx, "ord-1", "mreq-1", "ws_CO_123"))
}

func TestHandleSTKCallbackAcknowledges(t *testing.T) {
	store := repository.NewMemory()
	uc := usecase.NewCallbackUsecase(store, nil, zap.NewNop())
	h := NewCallbackHandler(uc, zap.NewNop())
	seedInitiatedOrder(t, store)

	payload := `{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "mreq-1",
				"CheckoutRequestID": "ws_CO_123",
				"ResultCode": 0,
				"ResultDesc": "ok",
				"CallbackMetadata": {
					"Item": [{"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"}]
				}
			}
		}
	}`

	req := httptest.NewRequest("POST", "/api/v1/callbacks/mpesa/stk", bytes.NewBufferString(payload))
	rec := httptest.NewRecorder()
	h.HandleSTKCallback(rec, req)

	require.Equal(t, 200, rec.Code)

	var ack map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	// Integer result code, per the gateway's acknowledgement contract.
	assert.Equal(t, float64(0), ack["ResultCode"])

	// Processing happens off the request goroutine.
	require.Eventually(t, func() bool {
		order, err := store.GetOrder(context.Background(), "ord-1")
		return err == nil && order.Status == domain.OrderPaid
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandleSTKCallbackAcknowledgesGarbage(t *testing.T) {
	store := repository.NewMemory()
	uc := usecase.NewCallbackUsecase(store, nil, zap.NewNop())
	h := NewCallbackHandler(uc, zap.NewNop())

	req := httptest.NewRequest("POST", "/api/v1/callbacks/mpesa/stk", bytes.NewBufferString("<not json>"))
	rec := httptest.NewRecorder()
	h.HandleSTKCallback(rec, req)

	// Even undecodable payloads get a 200; anything else triggers gateway
	// retries.
	require.Equal(t, 200, rec.Code)

	require.Eventually(t, func() bool {
		stats, err := store.PaymentEventStats(context.Background())
		return err == nil && stats[domain.EventCallbackBadShape] == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandleSTKCallbackOversizedPayload(t *testing.T) {
	store := repository.NewMemory()
	uc := usecase.NewCallbackUsecase(store, nil, zap.NewNop())
	h := NewCallbackHandler(uc, zap.NewNop())

	// Well past the read cap; the body is rejected without buffering it.
	oversized := bytes.Repeat([]byte("a"), maxCallbackBytes+1)

	req := httptest.NewRequest("POST", "/api/v1/callbacks/mpesa/stk", bytes.NewReader(oversized))
	rec := httptest.NewRecorder()
	h.HandleSTKCallback(rec, req)

	require.Equal(t, 200, rec.Code)

	var ack map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ack))
	assert.Equal(t, float64(1), ack["ResultCode"])

	// Nothing reached the reconciler.
	stats, err := store.PaymentEventStats(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stats)
}
