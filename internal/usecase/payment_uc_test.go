package usecase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"solestore-payments/config"
	"solestore-payments/internal/domain"
	"solestore-payments/internal/provider/mpesa"
	"solestore-payments/internal/repository"
)

// fakeGateway serves both Daraja endpoints with canned responses.
func fakeGateway(t *testing.T, push http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "test-token",
			"expires_in":   "3599",
		})
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", push)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func acceptPush(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(mpesa.STKPushResponse{
		MerchantRequestID:   "mreq-1",
		CheckoutRequestID:   "ws_CO_123",
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
		CustomerMessage:     "Success. Request accepted for processing",
	})
}

func newPaymentUsecase(t *testing.T, store *repository.Memory, gatewayURL string) *PaymentUsecase {
	t.Helper()
	client := mpesa.NewClient(config.MpesaConfig{
		Environment:    "sandbox",
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		ShortCode:      "174379",
		Passkey:        "passkey",
		CallbackURL:    "https://example.com/api/v1/callbacks/mpesa/stk",
		BaseURL:        gatewayURL,
	}, zap.NewNop())
	return NewPaymentUsecase(store, client, zap.NewNop())
}

func seedVariant(t *testing.T, store *repository.Memory, id string, total int) {
	t.Helper()
	require.NoError(t, store.CreateVariant(context.Background(), &domain.ProductVariant{
		ID:         id,
		SKU:        "SKU-" + id,
		TotalStock: total,
	}))
}

func checkoutRequest() CheckoutRequest {
	return CheckoutRequest{
		SessionID:   "sess-a",
		PhoneNumber: "0712 345 678",
		Items: []CheckoutItem{
			{VariantID: "v1", Quantity: 2, UnitPrice: 500000},
		},
	}
}

func TestInitiateCheckout(t *testing.T) {
	srv := fakeGateway(t, acceptPush)
	store := repository.NewMemory()
	seedVariant(t, store, "v1", 10)
	uc := newPaymentUsecase(t, store, srv.URL)

	resp, err := uc.InitiateCheckout(context.Background(), checkoutRequest())
	require.NoError(t, err)

	assert.Equal(t, "ws_CO_123", resp.CheckoutRequestID)
	assert.NotEmpty(t, resp.OrderID)
	assert.Regexp(t, `^SOLE-\d{8}-[0-9A-F]{8}$`, resp.OrderNumber)

	// The order is matchable by the gateway's correlation id before the
	// response was even returned.
	order, err := store.GetOrderByCheckoutID(context.Background(), "ws_CO_123")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPaymentPending, order.Status)
	assert.Equal(t, "254712345678", order.PhoneNumber)
	assert.Equal(t, int64(1000000), order.TotalAmount)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 2, order.Items[0].Quantity)

	// Stock is held for the session.
	variant, err := store.GetVariant(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, 2, variant.ReservedStock)

	stats, err := store.PaymentEventStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats[domain.EventPaymentInitiated])
}

func TestInitiateCheckoutValidation(t *testing.T) {
	srv := fakeGateway(t, acceptPush)
	store := repository.NewMemory()
	seedVariant(t, store, "v1", 10)
	uc := newPaymentUsecase(t, store, srv.URL)

	tests := []struct {
		name      string
		mutate    func(*CheckoutRequest)
		wantField string
	}{
		{
			name:      "missing session",
			mutate:    func(r *CheckoutRequest) { r.SessionID = "" },
			wantField: "session_id",
		},
		{
			name:      "no items",
			mutate:    func(r *CheckoutRequest) { r.Items = nil },
			wantField: "items",
		},
		{
			name:      "bad phone",
			mutate:    func(r *CheckoutRequest) { r.PhoneNumber = "12345" },
			wantField: "phone_number",
		},
		{
			name:      "zero quantity",
			mutate:    func(r *CheckoutRequest) { r.Items[0].Quantity = 0 },
			wantField: "items",
		},
		{
			name:      "zero price",
			mutate:    func(r *CheckoutRequest) { r.Items[0].UnitPrice = 0 },
			wantField: "items",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := checkoutRequest()
			tt.mutate(&req)

			_, err := uc.InitiateCheckout(context.Background(), req)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestInitiateCheckoutInsufficientStock(t *testing.T) {
	srv := fakeGateway(t, acceptPush)
	store := repository.NewMemory()
	seedVariant(t, store, "v1", 1)
	uc := newPaymentUsecase(t, store, srv.URL)

	_, err := uc.InitiateCheckout(context.Background(), checkoutRequest())
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestInitiateCheckoutGatewayFailure(t *testing.T) {
	srv := fakeGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"errorCode":"500.001.1001","errorMessage":"Spike limit"}`))
	})
	store := repository.NewMemory()
	seedVariant(t, store, "v1", 10)
	uc := newPaymentUsecase(t, store, srv.URL)

	_, err := uc.InitiateCheckout(context.Background(), checkoutRequest())
	var initErr *domain.InitiationError
	require.ErrorAs(t, err, &initErr)
	assert.True(t, initErr.Retryable)

	// The failed attempt is on the audit trail and the order never reached
	// PAYMENT_PENDING.
	stats, err := store.PaymentEventStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats[domain.EventInitiationFailed])

	events := store.Events()
	require.NotEmpty(t, events)
	order, err := store.GetOrder(context.Background(), events[0].OrderRef)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, order.Status)

	// The hold survives: the client may retry the push for the same cart.
	variant, err := store.GetVariant(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, 2, variant.ReservedStock)
}

func TestOrderStatus(t *testing.T) {
	srv := fakeGateway(t, acceptPush)
	store := repository.NewMemory()
	seedVariant(t, store, "v1", 10)
	uc := newPaymentUsecase(t, store, srv.URL)

	resp, err := uc.InitiateCheckout(context.Background(), checkoutRequest())
	require.NoError(t, err)

	order, err := uc.OrderStatus(context.Background(), resp.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, resp.OrderID, order.ID)

	_, err = uc.OrderStatus(context.Background(), "SOLE-00000000-NOPE")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestDiagnostics(t *testing.T) {
	srv := fakeGateway(t, acceptPush)
	uc := newPaymentUsecase(t, repository.NewMemory(), srv.URL)

	diag := uc.Diagnostics()
	assert.Equal(t, "sandbox", diag.Environment)
	assert.True(t, diag.HasCredentials)
	assert.False(t, diag.Token.HasToken)
}
