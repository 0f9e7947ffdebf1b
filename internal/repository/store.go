package repository

import (
	"context"
	"time"

	"solestore-payments/internal/domain"
)

// Store is the single write path for orders, variants, reservations and the
// audit trail. Every mutation is transactional at row granularity; no other
// code may touch variant or reservation state directly.
type Store interface {
	// Orders.
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	GetOrderByCheckoutID(ctx context.Context, checkoutID string) (*domain.Order, error)

	// SetPaymentInitiated persists the gateway correlation ids and moves the
	// order to PAYMENT_PENDING. Must complete before the initiation response
	// is returned to the client.
	SetPaymentInitiated(ctx context.Context, orderID, merchantRequestID, checkoutRequestID string) error

	// FinalizePaid applies a successful payment in one transaction: order to
	// PAID with receipt and paid-at, reserved stock converted to sold for
	// every line item, and the session's holds closed. Returns false when
	// the order already left the awaiting-payment states, so exactly one
	// caller observes the transition even under concurrent deliveries.
	FinalizePaid(ctx context.Context, order *domain.Order, receiptNumber string, paidAt time.Time) (bool, error)

	// FinalizeFailed applies a failed payment in one transaction: order to
	// FAILED and the session's stock holds released back to the pool.
	// Returns false when the order was already settled.
	FinalizeFailed(ctx context.Context, order *domain.Order) (bool, error)

	// Inventory ledger.
	CreateVariant(ctx context.Context, variant *domain.ProductVariant) error
	GetVariant(ctx context.Context, id string) (*domain.ProductVariant, error)
	ActiveReservation(ctx context.Context, variantID, sessionID string) (*domain.StockReservation, error)
	Reserve(ctx context.Context, variantID string, quantity int, sessionID string) (bool, error)
	Release(ctx context.Context, variantID, sessionID string) error
	ConfirmSale(ctx context.Context, variantID string, quantity int) error
	SweepExpired(ctx context.Context, now time.Time) (int, error)

	// Audit trail, append-only.
	AppendPaymentEvent(ctx context.Context, event *domain.PaymentEvent) error
	PaymentEventStats(ctx context.Context) (map[string]int, error)
}
