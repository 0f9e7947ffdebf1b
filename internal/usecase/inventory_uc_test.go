package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"solestore-payments/internal/domain"
	"solestore-payments/internal/repository"
)

func TestCheckAvailability(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	uc := NewInventoryUsecase(store, zap.NewNop())

	seedVariant(t, store, "v1", 10)

	available, err := uc.CheckAvailability(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 10, available)

	// Unknown variants read as sold out, not as an error.
	available, err = uc.CheckAvailability(ctx, "ghost")
	require.NoError(t, err)
	assert.Zero(t, available)
}

func TestInventoryReserve(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	uc := NewInventoryUsecase(store, zap.NewNop())
	seedVariant(t, store, "v1", 5)

	ok, err := uc.Reserve(ctx, "v1", 3, "sess-a")
	require.NoError(t, err)
	assert.True(t, ok)

	// Not enough left for another 3.
	ok, err = uc.Reserve(ctx, "v1", 3, "sess-b")
	require.NoError(t, err)
	assert.False(t, ok)

	// Unknown variant declines instead of erroring.
	ok, err = uc.Reserve(ctx, "ghost", 1, "sess-a")
	require.NoError(t, err)
	assert.False(t, ok)

	// Shape errors are still errors.
	_, err = uc.Reserve(ctx, "v1", 0, "sess-a")
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = uc.Reserve(ctx, "v1", 1, "")
	assert.ErrorAs(t, err, &verr)
}

func TestInventoryReleaseAndSweep(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	uc := NewInventoryUsecase(store, zap.NewNop())
	seedVariant(t, store, "v1", 5)

	ok, err := uc.Reserve(ctx, "v1", 3, "sess-a")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, uc.Release(ctx, "v1", "sess-a"))

	available, err := uc.CheckAvailability(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 5, available)

	// Nothing is stale right after a fresh reserve.
	_, err = uc.Reserve(ctx, "v1", 2, "sess-b")
	require.NoError(t, err)
	swept, err := uc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, swept)
}
