package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"solestore-payments/internal/domain"
)

// Memory is an in-process Store used by tests and local development.
// A single mutex stands in for the database's row locks; semantics match
// the postgres implementation exactly.
type Memory struct {
	mu           sync.Mutex
	orders       map[string]*domain.Order
	variants     map[string]*domain.ProductVariant
	reservations map[string]*domain.StockReservation
	events       []*domain.PaymentEvent
}

var _ Store = (*Memory)(nil)
var _ Store = (*Postgres)(nil)

func NewMemory() *Memory {
	return &Memory{
		orders:       make(map[string]*domain.Order),
		variants:     make(map[string]*domain.ProductVariant),
		reservations: make(map[string]*domain.StockReservation),
	}
}

// ---- Orders ----

func (s *Memory) CreateOrder(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneOrder(order)
	s.orders[order.ID] = cp
	return nil
}

func (s *Memory) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (s *Memory) GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.orders {
		if order.OrderNumber == orderNumber {
			return cloneOrder(order), nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (s *Memory) GetOrderByCheckoutID(ctx context.Context, checkoutID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.orders {
		if order.MpesaCheckoutID != nil && *order.MpesaCheckoutID == checkoutID {
			return cloneOrder(order), nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (s *Memory) SetPaymentInitiated(ctx context.Context, orderID, merchantRequestID, checkoutRequestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	order.MpesaMerchantReq = &merchantRequestID
	order.MpesaCheckoutID = &checkoutRequestID
	order.Status = domain.OrderPaymentPending
	order.UpdatedAt = time.Now()
	return nil
}

func (s *Memory) FinalizePaid(ctx context.Context, order *domain.Order, receiptNumber string, paidAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[order.ID]
	if !ok {
		return false, domain.ErrOrderNotFound
	}
	if !stored.Status.AwaitingPayment() {
		return false, nil
	}

	now := time.Now()
	stored.Status = domain.OrderPaid
	stored.MpesaReceiptNumber = &receiptNumber
	stored.PaidAt = &paidAt
	stored.UpdatedAt = now

	for _, item := range stored.Items {
		variant, ok := s.variants[item.VariantID]
		if !ok {
			return false, domain.ErrVariantNotFound
		}
		variant.ConfirmSale(item.Quantity)
		variant.UpdatedAt = now
		if res := s.activeReservation(item.VariantID, stored.SessionID); res != nil {
			res.Status = domain.ReservationReleased
			res.UpdatedAt = now
		}
	}
	return true, nil
}

func (s *Memory) FinalizeFailed(ctx context.Context, order *domain.Order) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[order.ID]
	if !ok {
		return false, domain.ErrOrderNotFound
	}
	if !stored.Status.AwaitingPayment() {
		return false, nil
	}

	now := time.Now()
	stored.Status = domain.OrderFailed
	stored.UpdatedAt = now

	for _, item := range stored.Items {
		res := s.activeReservation(item.VariantID, stored.SessionID)
		if res == nil {
			continue
		}
		variant, ok := s.variants[item.VariantID]
		if !ok {
			return false, domain.ErrVariantNotFound
		}
		variant.Release(res, now)
		variant.UpdatedAt = now
	}
	return true, nil
}

// ---- Inventory ledger ----

func (s *Memory) CreateVariant(ctx context.Context, variant *domain.ProductVariant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *variant
	s.variants[variant.ID] = &cp
	return nil
}

func (s *Memory) GetVariant(ctx context.Context, id string) (*domain.ProductVariant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	variant, ok := s.variants[id]
	if !ok {
		return nil, domain.ErrVariantNotFound
	}
	cp := *variant
	return &cp, nil
}

func (s *Memory) ActiveReservation(ctx context.Context, variantID, sessionID string) (*domain.StockReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.activeReservation(variantID, sessionID)
	if res == nil {
		return nil, nil
	}
	cp := *res
	return &cp, nil
}

func (s *Memory) Reserve(ctx context.Context, variantID string, quantity int, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	variant, ok := s.variants[variantID]
	if !ok {
		return false, domain.ErrVariantNotFound
	}
	prior := s.activeReservation(variantID, sessionID)

	now := time.Now()
	if !variant.Reserve(prior, quantity, now) {
		return false, nil
	}
	variant.UpdatedAt = now

	if prior == nil {
		res := &domain.StockReservation{
			ID:        uuid.NewString(),
			VariantID: variantID,
			SessionID: sessionID,
			Quantity:  quantity,
			Status:    domain.ReservationActive,
			ExpiresAt: now.Add(domain.ReservationTTL),
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.reservations[res.ID] = res
	}
	return true, nil
}

func (s *Memory) Release(ctx context.Context, variantID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.activeReservation(variantID, sessionID)
	if res == nil {
		return nil
	}
	variant, ok := s.variants[variantID]
	if !ok {
		return domain.ErrVariantNotFound
	}

	now := time.Now()
	variant.Release(res, now)
	variant.UpdatedAt = now
	return nil
}

func (s *Memory) ConfirmSale(ctx context.Context, variantID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	variant, ok := s.variants[variantID]
	if !ok {
		return domain.ErrVariantNotFound
	}
	variant.ConfirmSale(quantity)
	variant.UpdatedAt = time.Now()
	return nil
}

func (s *Memory) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	swept := 0
	for _, res := range s.reservations {
		if res.Status != domain.ReservationActive || !res.ExpiresAt.Before(now) {
			continue
		}
		variant, ok := s.variants[res.VariantID]
		if !ok {
			continue
		}
		variant.Expire(res, now)
		variant.UpdatedAt = now
		swept++
	}
	return swept, nil
}

// ---- Audit trail ----

func (s *Memory) AppendPaymentEvent(ctx context.Context, event *domain.PaymentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *event
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.events = append(s.events, &cp)
	return nil
}

func (s *Memory) PaymentEventStats(ctx context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[string]int)
	for _, ev := range s.events {
		stats[ev.EventType]++
	}
	return stats, nil
}

// Events returns a snapshot of the audit trail; test helper.
func (s *Memory) Events() []domain.PaymentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.PaymentEvent, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, *ev)
	}
	return out
}

func (s *Memory) activeReservation(variantID, sessionID string) *domain.StockReservation {
	for _, res := range s.reservations {
		if res.VariantID == variantID && res.SessionID == sessionID &&
			res.Status == domain.ReservationActive {
			return res
		}
	}
	return nil
}

func cloneOrder(order *domain.Order) *domain.Order {
	cp := *order
	cp.Items = append([]domain.OrderItem(nil), order.Items...)
	return &cp
}
