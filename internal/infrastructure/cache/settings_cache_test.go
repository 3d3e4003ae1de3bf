package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodledger/internal/core/apperror"
	"foodledger/internal/core/id"
	"foodledger/internal/core/types"
	"foodledger/internal/domain/inventory"
)

type countingCatalog struct {
	calls    int
	settings map[id.ID]inventory.ProductSettings
}

func (c *countingCatalog) Settings(_ context.Context, _ string, productID id.ID) (inventory.ProductSettings, error) {
	c.calls++
	ps, ok := c.settings[productID]
	if !ok {
		return inventory.ProductSettings{}, apperror.NewNotFound("product", productID.String())
	}
	return ps, nil
}

func newTestCache(t *testing.T) (*SettingsCache, *countingCatalog, id.ID, *time.Time) {
	t.Helper()
	productID := id.New()
	next := &countingCatalog{settings: map[id.ID]inventory.ProductSettings{
		productID: {ProductID: productID, Thresholds: inventory.Thresholds{MinimumStock: types.Quantity(50_000)}},
	}}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewSettingsCache(next, nil, time.Minute)
	c.now = func() time.Time { return now }
	return c, next, productID, &now
}

func TestSettingsCache_HitsAfterFirstLoad(t *testing.T) {
	c, next, productID, _ := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ps, err := c.Settings(ctx, "tenant-1", productID)
		require.NoError(t, err)
		assert.Equal(t, types.Quantity(50_000), ps.Thresholds.MinimumStock)
	}
	assert.Equal(t, 1, next.calls)

	// Tenants do not share entries.
	_, err := c.Settings(ctx, "tenant-2", productID)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestSettingsCache_Expires(t *testing.T) {
	c, next, productID, now := newTestCache(t)
	ctx := context.Background()

	_, err := c.Settings(ctx, "tenant-1", productID)
	require.NoError(t, err)
	*now = now.Add(2 * time.Minute)
	_, err = c.Settings(ctx, "tenant-1", productID)
	require.NoError(t, err)

	assert.Equal(t, 2, next.calls)
}

func TestSettingsCache_NotFoundIsNotCached(t *testing.T) {
	c, next, _, _ := newTestCache(t)
	missing := id.New()

	for i := 0; i < 2; i++ {
		_, err := c.Settings(context.Background(), "tenant-1", missing)
		assert.True(t, apperror.IsNotFound(err))
	}
	assert.Equal(t, 2, next.calls)
}

func TestSettingsCache_HandleNotification(t *testing.T) {
	c, next, productID, _ := newTestCache(t)
	ctx := context.Background()
	_, _ = c.Settings(ctx, "tenant-1", productID)

	c.handleNotification("tenant-2:" + productID.String())
	_, _ = c.Settings(ctx, "tenant-1", productID)
	assert.Equal(t, 1, next.calls, "other tenant's notification keeps the entry")

	c.handleNotification("tenant-1:" + productID.String())
	_, _ = c.Settings(ctx, "tenant-1", productID)
	assert.Equal(t, 2, next.calls)

	c.handleNotification("")
	_, _ = c.Settings(ctx, "tenant-1", productID)
	assert.Equal(t, 3, next.calls)
}

func TestSettingsCache_StartWithoutPoolIsNoop(t *testing.T) {
	c, _, _, _ := newTestCache(t)
	c.Start(context.Background())
	c.Stop()
	assert.False(t, c.started)
}
