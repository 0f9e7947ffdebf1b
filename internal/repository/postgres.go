package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"solestore-payments/internal/domain"
)

// Postgres implements Store on a pgx connection pool. Row locks
// (SELECT ... FOR UPDATE) linearize all mutations of one variant; rows of
// different variants never contend.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ---- Orders ----

func (s *Postgres) CreateOrder(ctx context.Context, order *domain.Order) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO orders (
				id, order_number, session_id, status, total_amount,
				phone_number, customer_email, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
		`,
			order.ID, order.OrderNumber, order.SessionID, order.Status,
			order.TotalAmount, order.PhoneNumber, order.CustomerEmail,
			order.CreatedAt,
		)
		if err != nil {
			return err
		}

		for i := range order.Items {
			item := &order.Items[i]
			if _, err := tx.Exec(ctx, `
				INSERT INTO order_items (id, order_id, variant_id, quantity, unit_price, total_price)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, item.ID, item.OrderID, item.VariantID, item.Quantity, item.UnitPrice, item.TotalPrice); err != nil {
				return err
			}
		}
		return nil
	})
}

const orderColumns = `
	id, order_number, session_id, status, total_amount, phone_number,
	customer_email, mpesa_checkout_id, mpesa_merchant_req,
	mpesa_receipt_number, paid_at, created_at, updated_at`

func (s *Postgres) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.getOrder(ctx, `SELECT`+orderColumns+` FROM orders WHERE id=$1`, id)
}

func (s *Postgres) GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return s.getOrder(ctx, `SELECT`+orderColumns+` FROM orders WHERE order_number=$1`, orderNumber)
}

func (s *Postgres) GetOrderByCheckoutID(ctx context.Context, checkoutID string) (*domain.Order, error) {
	return s.getOrder(ctx, `SELECT`+orderColumns+` FROM orders WHERE mpesa_checkout_id=$1`, checkoutID)
}

func (s *Postgres) getOrder(ctx context.Context, query, arg string) (*domain.Order, error) {
	row := s.pool.QueryRow(ctx, query, arg)

	var order domain.Order
	var customerEmail, checkoutID, merchantReq, receipt sql.NullString
	var paidAt sql.NullTime

	err := row.Scan(
		&order.ID, &order.OrderNumber, &order.SessionID, &order.Status,
		&order.TotalAmount, &order.PhoneNumber, &customerEmail,
		&checkoutID, &merchantReq, &receipt, &paidAt,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}

	if customerEmail.Valid {
		order.CustomerEmail = &customerEmail.String
	}
	if checkoutID.Valid {
		order.MpesaCheckoutID = &checkoutID.String
	}
	if merchantReq.Valid {
		order.MpesaMerchantReq = &merchantReq.String
	}
	if receipt.Valid {
		order.MpesaReceiptNumber = &receipt.String
	}
	if paidAt.Valid {
		order.PaidAt = &paidAt.Time
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, variant_id, quantity, unit_price, total_price
		FROM order_items WHERE order_id=$1 ORDER BY id
	`, order.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.VariantID,
			&item.Quantity, &item.UnitPrice, &item.TotalPrice); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}
	return &order, rows.Err()
}

func (s *Postgres) SetPaymentInitiated(ctx context.Context, orderID, merchantRequestID, checkoutRequestID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET mpesa_merchant_req=$2, mpesa_checkout_id=$3,
		    status=$4, updated_at=now()
		WHERE id=$1
	`, orderID, merchantRequestID, checkoutRequestID, domain.OrderPaymentPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (s *Postgres) FinalizePaid(ctx context.Context, order *domain.Order, receiptNumber string, paidAt time.Time) (bool, error) {
	applied := false
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE orders
			SET status=$2, mpesa_receipt_number=$3, paid_at=$4, updated_at=now()
			WHERE id=$1 AND status IN ($5,$6)
		`, order.ID, domain.OrderPaid, receiptNumber, paidAt,
			domain.OrderPending, domain.OrderPaymentPending)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			// Already finalized by an earlier delivery of this callback.
			return nil
		}
		applied = true

		now := time.Now()
		for _, item := range order.Items {
			variant, err := s.lockVariant(ctx, tx, item.VariantID)
			if err != nil {
				return err
			}
			variant.ConfirmSale(item.Quantity)
			if err := s.updateVariant(ctx, tx, variant, now); err != nil {
				return err
			}
			// The hold is consumed; close it so the sweeper leaves it alone.
			if _, err := tx.Exec(ctx, `
				UPDATE stock_reservations SET status=$3, updated_at=$4
				WHERE variant_id=$1 AND session_id=$2 AND status=$5
			`, item.VariantID, order.SessionID, domain.ReservationReleased,
				now, domain.ReservationActive); err != nil {
				return err
			}
		}
		return nil
	})
	return applied, err
}

func (s *Postgres) FinalizeFailed(ctx context.Context, order *domain.Order) (bool, error) {
	applied := false
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE orders SET status=$2, updated_at=now()
			WHERE id=$1 AND status IN ($3,$4)
		`, order.ID, domain.OrderFailed,
			domain.OrderPending, domain.OrderPaymentPending)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		applied = true

		now := time.Now()
		for _, item := range order.Items {
			variant, err := s.lockVariant(ctx, tx, item.VariantID)
			if err != nil {
				return err
			}
			res, err := s.lockActiveReservation(ctx, tx, item.VariantID, order.SessionID)
			if err != nil {
				return err
			}
			if res == nil {
				continue
			}
			variant.Release(res, now)
			if err := s.updateVariant(ctx, tx, variant, now); err != nil {
				return err
			}
			if err := s.updateReservation(ctx, tx, res); err != nil {
				return err
			}
		}
		return nil
	})
	return applied, err
}

// ---- Inventory ledger ----

func (s *Postgres) CreateVariant(ctx context.Context, variant *domain.ProductVariant) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO product_variants (id, sku, total_stock, reserved_stock, sold_stock, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),now())
	`, variant.ID, variant.SKU, variant.TotalStock, variant.ReservedStock, variant.SoldStock)
	return err
}

func (s *Postgres) GetVariant(ctx context.Context, id string) (*domain.ProductVariant, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, sku, total_stock, reserved_stock, sold_stock, created_at, updated_at
		FROM product_variants WHERE id=$1
	`, id)
	var v domain.ProductVariant
	err := row.Scan(&v.ID, &v.SKU, &v.TotalStock, &v.ReservedStock, &v.SoldStock, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrVariantNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (s *Postgres) ActiveReservation(ctx context.Context, variantID, sessionID string) (*domain.StockReservation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, variant_id, session_id, quantity, status, expires_at, created_at, updated_at
		FROM stock_reservations
		WHERE variant_id=$1 AND session_id=$2 AND status=$3
	`, variantID, sessionID, domain.ReservationActive)

	var res domain.StockReservation
	err := row.Scan(&res.ID, &res.VariantID, &res.SessionID, &res.Quantity,
		&res.Status, &res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *Postgres) Reserve(ctx context.Context, variantID string, quantity int, sessionID string) (bool, error) {
	var reserved bool
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		variant, err := s.lockVariant(ctx, tx, variantID)
		if err != nil {
			return err
		}
		prior, err := s.lockActiveReservation(ctx, tx, variantID, sessionID)
		if err != nil {
			return err
		}

		now := time.Now()
		if !variant.Reserve(prior, quantity, now) {
			return nil
		}

		if prior != nil {
			if err := s.updateReservation(ctx, tx, prior); err != nil {
				return err
			}
		} else {
			_, err := tx.Exec(ctx, `
				INSERT INTO stock_reservations (id, variant_id, session_id, quantity, status, expires_at, created_at, updated_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
			`, uuid.NewString(), variantID, sessionID, quantity,
				domain.ReservationActive, now.Add(domain.ReservationTTL), now)
			if err != nil {
				return err
			}
		}

		if err := s.updateVariant(ctx, tx, variant, now); err != nil {
			return err
		}
		reserved = true
		return nil
	})
	return reserved, err
}

func (s *Postgres) Release(ctx context.Context, variantID, sessionID string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		variant, err := s.lockVariant(ctx, tx, variantID)
		if err != nil {
			return err
		}
		res, err := s.lockActiveReservation(ctx, tx, variantID, sessionID)
		if err != nil {
			return err
		}
		if res == nil {
			return nil
		}

		now := time.Now()
		variant.Release(res, now)
		if err := s.updateVariant(ctx, tx, variant, now); err != nil {
			return err
		}
		return s.updateReservation(ctx, tx, res)
	})
}

func (s *Postgres) ConfirmSale(ctx context.Context, variantID string, quantity int) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		variant, err := s.lockVariant(ctx, tx, variantID)
		if err != nil {
			return err
		}
		variant.ConfirmSale(quantity)
		return s.updateVariant(ctx, tx, variant, time.Now())
	})
}

func (s *Postgres) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, variant_id, quantity FROM stock_reservations
		WHERE status=$1 AND expires_at < $2
	`, domain.ReservationActive, now)
	if err != nil {
		return 0, err
	}

	type expired struct {
		id        string
		variantID string
		quantity  int
	}
	var stale []expired
	for rows.Next() {
		var e expired
		if err := rows.Scan(&e.id, &e.variantID, &e.quantity); err != nil {
			rows.Close()
			return 0, err
		}
		stale = append(stale, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	swept := 0
	for _, e := range stale {
		err := s.withTx(ctx, func(tx pgx.Tx) error {
			variant, err := s.lockVariant(ctx, tx, e.variantID)
			if err != nil {
				return err
			}
			// Re-check under the lock; a release or a concurrent sweep may
			// have already closed this hold.
			tag, err := tx.Exec(ctx, `
				UPDATE stock_reservations SET status=$2, updated_at=$3
				WHERE id=$1 AND status=$4
			`, e.id, domain.ReservationExpired, now, domain.ReservationActive)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return nil
			}

			variant.ReservedStock -= e.quantity
			if err := s.updateVariant(ctx, tx, variant, now); err != nil {
				return err
			}
			swept++
			return nil
		})
		if err != nil {
			return swept, err
		}
	}
	return swept, nil
}

// ---- Audit trail ----

func (s *Postgres) AppendPaymentEvent(ctx context.Context, event *domain.PaymentEvent) error {
	id := event.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payment_events (id, order_ref, event_type, payload, result_code, result_desc, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, id, event.OrderRef, event.EventType, event.Payload, event.ResultCode, event.ResultDesc)
	return err
}

func (s *Postgres) PaymentEventStats(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_type, COUNT(*) FROM payment_events GROUP BY event_type
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var eventType string
		var count int
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, err
		}
		stats[eventType] = count
	}
	return stats, rows.Err()
}

// ---- row helpers ----

func (s *Postgres) lockVariant(ctx context.Context, tx pgx.Tx, variantID string) (*domain.ProductVariant, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, sku, total_stock, reserved_stock, sold_stock, created_at, updated_at
		FROM product_variants WHERE id=$1 FOR UPDATE
	`, variantID)
	var v domain.ProductVariant
	err := row.Scan(&v.ID, &v.SKU, &v.TotalStock, &v.ReservedStock, &v.SoldStock, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrVariantNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (s *Postgres) lockActiveReservation(ctx context.Context, tx pgx.Tx, variantID, sessionID string) (*domain.StockReservation, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, variant_id, session_id, quantity, status, expires_at, created_at, updated_at
		FROM stock_reservations
		WHERE variant_id=$1 AND session_id=$2 AND status=$3
		FOR UPDATE
	`, variantID, sessionID, domain.ReservationActive)

	var res domain.StockReservation
	err := row.Scan(&res.ID, &res.VariantID, &res.SessionID, &res.Quantity,
		&res.Status, &res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *Postgres) updateVariant(ctx context.Context, tx pgx.Tx, v *domain.ProductVariant, now time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE product_variants SET reserved_stock=$2, sold_stock=$3, updated_at=$4 WHERE id=$1
	`, v.ID, v.ReservedStock, v.SoldStock, now)
	return err
}

func (s *Postgres) updateReservation(ctx context.Context, tx pgx.Tx, res *domain.StockReservation) error {
	_, err := tx.Exec(ctx, `
		UPDATE stock_reservations SET quantity=$2, status=$3, expires_at=$4, updated_at=$5 WHERE id=$1
	`, res.ID, res.Quantity, res.Status, res.ExpiresAt, res.UpdatedAt)
	return err
}
