package domain

import (
	"encoding/json"
	"time"
)

type OrderStatus string

const (
	OrderPending        OrderStatus = "PENDING"
	OrderPaymentPending OrderStatus = "PAYMENT_PENDING"
	OrderPaid           OrderStatus = "PAID"
	OrderProcessing     OrderStatus = "PROCESSING"
	OrderCompleted      OrderStatus = "COMPLETED"
	OrderCancelled      OrderStatus = "CANCELLED"
	OrderFailed         OrderStatus = "FAILED"
)

// AwaitingPayment reports whether the callback reconciler may still move
// this order to PAID or FAILED. Any other status means the payment outcome
// has already been applied and a further callback is a duplicate.
func (s OrderStatus) AwaitingPayment() bool {
	return s == OrderPending || s == OrderPaymentPending
}

// Order is a checkout attempt. The MpesaCheckoutID is the only key by
// which the gateway's asynchronous callback can be matched, so it must be
// persisted before the initiation response returns to the client.
type Order struct {
	ID                 string      `json:"id"`
	OrderNumber        string      `json:"order_number"`
	SessionID          string      `json:"session_id"`
	Status             OrderStatus `json:"status"`
	TotalAmount        int64       `json:"total_amount"`
	PhoneNumber        string      `json:"phone_number"`
	CustomerEmail      *string     `json:"customer_email,omitempty"`
	MpesaCheckoutID    *string     `json:"mpesa_checkout_id,omitempty"`
	MpesaMerchantReq   *string     `json:"mpesa_merchant_req,omitempty"`
	MpesaReceiptNumber *string     `json:"mpesa_receipt_number,omitempty"`
	PaidAt             *time.Time  `json:"paid_at,omitempty"`
	Items              []OrderItem `json:"items"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

type OrderItem struct {
	ID         string `json:"id"`
	OrderID    string `json:"order_id"`
	VariantID  string `json:"variant_id"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
	TotalPrice int64  `json:"total_price"`
}

// Payment event types recorded in the append-only audit trail.
const (
	EventPaymentInitiated = "payment_initiated"
	EventInitiationFailed = "payment_initiation_failed"
	EventCallbackReceived = "callback_received"
	EventCallbackUnknown  = "callback_received_unknown"
	EventCallbackBadShape = "callback_malformed"
	EventCallbackRepeat   = "callback_duplicate"
	EventPaymentCompleted = "payment_completed"
	EventPaymentFailed    = "payment_failed"
)

// PaymentEvent is a write-only audit record. OrderRef holds the order id
// when known, otherwise the raw checkout request id (unknown callbacks).
type PaymentEvent struct {
	ID         string          `json:"id"`
	OrderRef   string          `json:"order_ref"`
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ResultCode int             `json:"result_code"`
	ResultDesc string          `json:"result_desc"`
	CreatedAt  time.Time       `json:"created_at"`
}
