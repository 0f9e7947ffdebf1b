package domain

import "time"

type ReservationStatus string

const (
	ReservationActive   ReservationStatus = "ACTIVE"
	ReservationReleased ReservationStatus = "RELEASED"
	ReservationExpired  ReservationStatus = "EXPIRED"
)

// ReservationTTL is how long a stock hold survives without being confirmed
// or released before the sweeper reclaims it.
const ReservationTTL = 30 * time.Minute

// ProductVariant is a single stock-keeping unit. Invariant:
// 0 <= reserved + sold <= total at all times; mutated only through the
// ledger operations below, which the store runs under a row lock.
type ProductVariant struct {
	ID            string    `json:"id"`
	SKU           string    `json:"sku"`
	TotalStock    int       `json:"total_stock"`
	ReservedStock int       `json:"reserved_stock"`
	SoldStock     int       `json:"sold_stock"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Available returns the sellable quantity, never negative.
func (v *ProductVariant) Available() int {
	available := v.TotalStock - v.ReservedStock - v.SoldStock
	if available < 0 {
		return 0
	}
	return available
}

// StockReservation is a time-bounded hold on variant stock, one active row
// per (variant, session) pair. RELEASED and EXPIRED are terminal.
type StockReservation struct {
	ID        string            `json:"id"`
	VariantID string            `json:"variant_id"`
	SessionID string            `json:"session_id"`
	Quantity  int               `json:"quantity"`
	Status    ReservationStatus `json:"status"`
	ExpiresAt time.Time         `json:"expires_at"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Reserve places or refreshes a hold of qty on v for the session owning
// prior (nil when the session holds nothing). The variant's reserved count
// moves by the delta against the prior hold, so a repeat reserve for the
// same session never stacks. Returns false without side effects when
// available stock cannot cover qty.
func (v *ProductVariant) Reserve(prior *StockReservation, qty int, now time.Time) bool {
	if qty <= 0 || v.Available() < qty {
		return false
	}

	prev := 0
	if prior != nil && prior.Status == ReservationActive {
		prev = prior.Quantity
	}

	v.ReservedStock += qty - prev
	if prior != nil && prior.Status == ReservationActive {
		prior.Quantity = qty
		prior.ExpiresAt = now.Add(ReservationTTL)
		prior.UpdatedAt = now
	}
	return true
}

// Release returns res's quantity to the available pool and marks it
// RELEASED. Callers must only pass an ACTIVE reservation.
func (v *ProductVariant) Release(res *StockReservation, now time.Time) {
	v.ReservedStock -= res.Quantity
	res.Status = ReservationReleased
	res.UpdatedAt = now
}

// Expire is Release for the background sweep: same arithmetic, terminal
// EXPIRED status.
func (v *ProductVariant) Expire(res *StockReservation, now time.Time) {
	v.ReservedStock -= res.Quantity
	res.Status = ReservationExpired
	res.UpdatedAt = now
}

// ConfirmSale converts qty of reserved stock into sold stock after a
// successful payment. Availability is not checked; the reservation already
// guaranteed it.
func (v *ProductVariant) ConfirmSale(qty int) {
	v.ReservedStock -= qty
	v.SoldStock += qty
}
