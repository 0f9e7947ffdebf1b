package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"solestore-payments/internal/domain"
	"solestore-payments/internal/repository"
)

// InventoryUsecase is the reservation ledger's public face. Store failures
// come back as InventoryError; an unfillable reserve is a normal false
// result, not an error.
type InventoryUsecase struct {
	store  repository.Store
	logger *zap.Logger
}

func NewInventoryUsecase(store repository.Store, logger *zap.Logger) *InventoryUsecase {
	return &InventoryUsecase{store: store, logger: logger}
}

// CheckAvailability returns the sellable quantity for a variant. An unknown
// variant reads as zero stock.
func (uc *InventoryUsecase) CheckAvailability(ctx context.Context, variantID string) (int, error) {
	variant, err := uc.store.GetVariant(ctx, variantID)
	if err != nil {
		if err == domain.ErrVariantNotFound {
			return 0, nil
		}
		return 0, &domain.InventoryError{Op: "check availability", Err: err}
	}
	return variant.Available(), nil
}

// Reserve places a 30-minute hold of quantity on the variant for the given
// cart session. Idempotent per (variant, session): a repeat call updates
// the existing hold by the delta instead of stacking.
func (uc *InventoryUsecase) Reserve(ctx context.Context, variantID string, quantity int, sessionID string) (bool, error) {
	if quantity <= 0 {
		return false, &domain.ValidationError{Field: "quantity", Reason: "must be greater than 0"}
	}
	if sessionID == "" {
		return false, &domain.ValidationError{Field: "session_id", Reason: "required"}
	}

	ok, err := uc.store.Reserve(ctx, variantID, quantity, sessionID)
	if err != nil {
		if err == domain.ErrVariantNotFound {
			return false, nil
		}
		return false, &domain.InventoryError{Op: "reserve", Err: err}
	}
	if ok {
		uc.logger.Debug("stock reserved",
			zap.String("variant_id", variantID),
			zap.String("session_id", sessionID),
			zap.Int("quantity", quantity))
	}
	return ok, nil
}

// Release returns a session's hold on a variant to the pool. A no-op when
// no active hold exists.
func (uc *InventoryUsecase) Release(ctx context.Context, variantID, sessionID string) error {
	if err := uc.store.Release(ctx, variantID, sessionID); err != nil {
		return &domain.InventoryError{Op: "release", Err: err}
	}
	return nil
}

// ConfirmSale converts reserved stock to sold after a confirmed payment.
func (uc *InventoryUsecase) ConfirmSale(ctx context.Context, variantID string, quantity int) error {
	if err := uc.store.ConfirmSale(ctx, variantID, quantity); err != nil {
		return &domain.InventoryError{Op: "confirm sale", Err: err}
	}
	return nil
}

// SweepExpired reclaims all holds whose expiry has passed. Safe to run
// concurrently with reserve/release/confirm; each hold is reclaimed at
// most once.
func (uc *InventoryUsecase) SweepExpired(ctx context.Context) (int, error) {
	swept, err := uc.store.SweepExpired(ctx, time.Now())
	if err != nil {
		return swept, &domain.InventoryError{Op: "sweep", Err: err}
	}
	if swept > 0 {
		uc.logger.Info("expired reservations swept", zap.Int("count", swept))
	}
	return swept, nil
}
