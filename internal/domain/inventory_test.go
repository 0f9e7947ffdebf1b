package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVariant(total, reserved, sold int) *ProductVariant {
	return &ProductVariant{
		ID:            "var-1",
		SKU:           "AIR-ZOOM-42",
		TotalStock:    total,
		ReservedStock: reserved,
		SoldStock:     sold,
	}
}

func TestAvailable(t *testing.T) {
	assert.Equal(t, 10, newVariant(10, 0, 0).Available())
	assert.Equal(t, 3, newVariant(10, 5, 2).Available())
	assert.Equal(t, 0, newVariant(10, 8, 2).Available())
	// Clamped, never negative even if the row got into a bad state.
	assert.Equal(t, 0, newVariant(10, 9, 2).Available())
}

func TestReserve(t *testing.T) {
	now := time.Now()

	t.Run("fresh hold moves reserved count", func(t *testing.T) {
		v := newVariant(10, 0, 0)
		require.True(t, v.Reserve(nil, 3, now))
		assert.Equal(t, 3, v.ReservedStock)
		assert.Equal(t, 7, v.Available())
	})

	t.Run("insufficient stock leaves variant untouched", func(t *testing.T) {
		v := newVariant(10, 8, 0)
		require.False(t, v.Reserve(nil, 3, now))
		assert.Equal(t, 8, v.ReservedStock)
	})

	t.Run("zero and negative quantities rejected", func(t *testing.T) {
		v := newVariant(10, 0, 0)
		assert.False(t, v.Reserve(nil, 0, now))
		assert.False(t, v.Reserve(nil, -1, now))
	})

	t.Run("repeat reserve adjusts by delta, not stacking", func(t *testing.T) {
		v := newVariant(10, 0, 0)
		prior := &StockReservation{Quantity: 0, Status: ReservationActive}
		require.True(t, v.Reserve(prior, 3, now))
		assert.Equal(t, 3, v.ReservedStock)
		assert.Equal(t, 3, prior.Quantity)

		later := now.Add(time.Minute)
		require.True(t, v.Reserve(prior, 5, later))
		assert.Equal(t, 5, v.ReservedStock)
		assert.Equal(t, 5, prior.Quantity)
		assert.Equal(t, later.Add(ReservationTTL), prior.ExpiresAt)

		// Shrinking works too.
		require.True(t, v.Reserve(prior, 2, later))
		assert.Equal(t, 2, v.ReservedStock)
	})

	t.Run("reserve refreshes the expiry window", func(t *testing.T) {
		v := newVariant(10, 2, 0)
		prior := &StockReservation{
			Quantity:  2,
			Status:    ReservationActive,
			ExpiresAt: now.Add(time.Minute),
		}
		later := now.Add(10 * time.Minute)
		require.True(t, v.Reserve(prior, 2, later))
		assert.Equal(t, later.Add(ReservationTTL), prior.ExpiresAt)
	})
}

func TestReleaseAndExpire(t *testing.T) {
	now := time.Now()

	v := newVariant(10, 5, 0)
	res := &StockReservation{Quantity: 3, Status: ReservationActive}
	v.Release(res, now)
	assert.Equal(t, 2, v.ReservedStock)
	assert.Equal(t, ReservationReleased, res.Status)

	res2 := &StockReservation{Quantity: 2, Status: ReservationActive}
	v.Expire(res2, now)
	assert.Equal(t, 0, v.ReservedStock)
	assert.Equal(t, ReservationExpired, res2.Status)
}

func TestConfirmSale(t *testing.T) {
	v := newVariant(10, 3, 2)
	v.ConfirmSale(3)
	assert.Equal(t, 0, v.ReservedStock)
	assert.Equal(t, 5, v.SoldStock)
	assert.Equal(t, 5, v.Available())
	// The books still balance: reserved + sold <= total.
	assert.LessOrEqual(t, v.ReservedStock+v.SoldStock, v.TotalStock)
}
