package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"solestore-payments/internal/domain"
	"solestore-payments/internal/provider/mpesa"
	"solestore-payments/internal/repository"
)

// ErrInsufficientStock is returned when a checkout line cannot be covered
// by available stock. Callers surface it as "out of stock", not a failure.
var ErrInsufficientStock = fmt.Errorf("insufficient stock")

type CheckoutItem struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type CheckoutRequest struct {
	SessionID     string         `json:"session_id"`
	PhoneNumber   string         `json:"phone_number"`
	CustomerEmail string         `json:"customer_email,omitempty"`
	Items         []CheckoutItem `json:"items"`
}

type CheckoutResponse struct {
	OrderID           string `json:"order_id"`
	OrderNumber       string `json:"order_number"`
	CheckoutRequestID string `json:"checkout_request_id"`
	MerchantRequestID string `json:"merchant_request_id"`
	CustomerMessage   string `json:"customer_message"`
}

// PaymentUsecase composes the token cache, the STK push initiator and the
// order store into the checkout flow.
type PaymentUsecase struct {
	store  repository.Store
	mpesa  *mpesa.Client
	logger *zap.Logger
}

func NewPaymentUsecase(store repository.Store, mpesaClient *mpesa.Client, logger *zap.Logger) *PaymentUsecase {
	return &PaymentUsecase{
		store:  store,
		mpesa:  mpesaClient,
		logger: logger,
	}
}

// InitiateCheckout creates the order, makes sure the session holds the
// stock it is paying for, and pushes the payment prompt to the customer's
// phone. The gateway correlation ids are persisted on the order before
// this returns; without them the asynchronous callback could never be
// matched. The synchronous response never carries the payment outcome.
func (uc *PaymentUsecase) InitiateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	if req.SessionID == "" {
		return nil, &domain.ValidationError{Field: "session_id", Reason: "required"}
	}
	if len(req.Items) == 0 {
		return nil, &domain.ValidationError{Field: "items", Reason: "at least one item is required"}
	}

	phone := domain.NormalizePhone(req.PhoneNumber)
	if !domain.ValidPhone(phone) {
		return nil, &domain.ValidationError{Field: "phone_number", Reason: "must be a Kenyan number in 254XXXXXXXXX format"}
	}

	now := time.Now()
	order := &domain.Order{
		ID:          uuid.NewString(),
		OrderNumber: newOrderNumber(now),
		SessionID:   req.SessionID,
		Status:      domain.OrderPending,
		PhoneNumber: phone,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.CustomerEmail != "" {
		order.CustomerEmail = &req.CustomerEmail
	}

	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &domain.ValidationError{Field: "items", Reason: "quantity must be greater than 0"}
		}
		if item.UnitPrice <= 0 {
			return nil, &domain.ValidationError{Field: "items", Reason: "unit price must be greater than 0"}
		}
		order.Items = append(order.Items, domain.OrderItem{
			ID:         uuid.NewString(),
			OrderID:    order.ID,
			VariantID:  item.VariantID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			TotalPrice: int64(item.Quantity) * item.UnitPrice,
		})
		order.TotalAmount += int64(item.Quantity) * item.UnitPrice
	}

	// The cart usually holds reservations already; reserve here covers
	// direct checkouts and refreshes the 30-minute window either way.
	for _, item := range req.Items {
		ok, err := uc.store.Reserve(ctx, item.VariantID, item.Quantity, req.SessionID)
		if err != nil {
			return nil, &domain.InventoryError{Op: "reserve", Err: err}
		}
		if !ok {
			return nil, fmt.Errorf("%w: variant %s", ErrInsufficientStock, item.VariantID)
		}
	}

	if err := uc.store.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}

	paymentReq := domain.PaymentRequest{
		PhoneNumber:      phone,
		Amount:           order.TotalAmount,
		OrderID:          order.ID,
		AccountReference: order.OrderNumber,
		TransactionDesc:  "Payment for order " + order.OrderNumber,
	}

	resp, err := uc.mpesa.InitiateSTKPush(ctx, paymentReq)
	if err != nil {
		uc.recordEvent(ctx, order.ID, domain.EventInitiationFailed, nil, 0, err.Error())
		return nil, err
	}

	// This persist must succeed before we answer the client; the checkout
	// request id is the only key the callback reconciler can match on.
	if err := uc.store.SetPaymentInitiated(ctx, order.ID, resp.MerchantRequestID, resp.CheckoutRequestID); err != nil {
		return nil, fmt.Errorf("persisting gateway correlation ids: %w", err)
	}

	payload, _ := json.Marshal(resp)
	uc.recordEvent(ctx, order.ID, domain.EventPaymentInitiated, payload, 0, resp.ResponseDescription)

	uc.logger.Info("checkout initiated",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("checkout_request_id", resp.CheckoutRequestID),
		zap.Int64("total_amount", order.TotalAmount))

	return &CheckoutResponse{
		OrderID:           order.ID,
		OrderNumber:       order.OrderNumber,
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		CustomerMessage:   resp.CustomerMessage,
	}, nil
}

// OrderStatus serves the polling endpoint the checkout page uses while it
// waits for the callback to land.
func (uc *PaymentUsecase) OrderStatus(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return uc.store.GetOrderByNumber(ctx, orderNumber)
}

// Diagnostics is the facade's operational read-out: token cache health and
// configuration presence, nothing secret.
type Diagnostics struct {
	Environment    string            `json:"environment"`
	HasCredentials bool              `json:"has_credentials"`
	Token          mpesa.TokenStatus `json:"token"`
}

func (uc *PaymentUsecase) Diagnostics() Diagnostics {
	return Diagnostics{
		Environment:    uc.mpesa.Environment(),
		HasCredentials: uc.mpesa.HasCredentials(),
		Token:          uc.mpesa.TokenStatus(),
	}
}

// Stats aggregates the audit trail by event type.
func (uc *PaymentUsecase) Stats(ctx context.Context) (map[string]int, error) {
	return uc.store.PaymentEventStats(ctx)
}

func (uc *PaymentUsecase) recordEvent(ctx context.Context, orderRef, eventType string, payload json.RawMessage, code int, desc string) {
	err := uc.store.AppendPaymentEvent(ctx, &domain.PaymentEvent{
		OrderRef:   orderRef,
		EventType:  eventType,
		Payload:    payload,
		ResultCode: code,
		ResultDesc: desc,
	})
	if err != nil {
		// Audit logging is best-effort; never block the payment flow on it.
		uc.logger.Warn("failed to append payment event",
			zap.String("order_ref", orderRef),
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

// newOrderNumber builds a human-readable order reference, unique enough
// for reconciliation and short enough for an M-Pesa account reference.
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(uuid.NewString()[:8])
	return fmt.Sprintf("SOLE-%s-%s", now.Format("20060102"), suffix)
}
