package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() PaymentRequest {
	return PaymentRequest{
		PhoneNumber:      "254712345678",
		Amount:           150000,
		OrderID:          "ord-1",
		AccountReference: "SOLE-20260831-ABCD1234",
		TransactionDesc:  "Payment for order",
	}
}

func TestPaymentRequestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validRequest().Validate())
	})

	tests := []struct {
		name      string
		mutate    func(*PaymentRequest)
		wantField string
	}{
		{
			name:      "missing phone",
			mutate:    func(r *PaymentRequest) { r.PhoneNumber = "" },
			wantField: "phone_number",
		},
		{
			name:      "unnormalized phone",
			mutate:    func(r *PaymentRequest) { r.PhoneNumber = "0712345678" },
			wantField: "phone_number",
		},
		{
			name:      "zero amount",
			mutate:    func(r *PaymentRequest) { r.Amount = 0 },
			wantField: "amount",
		},
		{
			name:      "below minimum",
			mutate:    func(r *PaymentRequest) { r.Amount = MinPaymentAmount - 1 },
			wantField: "amount",
		},
		{
			name:      "missing order id",
			mutate:    func(r *PaymentRequest) { r.OrderID = "" },
			wantField: "order_id",
		},
		{
			name:      "missing account reference",
			mutate:    func(r *PaymentRequest) { r.AccountReference = "" },
			wantField: "account_reference",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			err := req.Validate()
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestOrderStatusAwaitingPayment(t *testing.T) {
	assert.True(t, OrderPending.AwaitingPayment())
	assert.True(t, OrderPaymentPending.AwaitingPayment())
	assert.False(t, OrderPaid.AwaitingPayment())
	assert.False(t, OrderFailed.AwaitingPayment())
	assert.False(t, OrderCancelled.AwaitingPayment())
}
