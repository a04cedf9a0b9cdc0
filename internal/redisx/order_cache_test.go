package redisx

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real server when ORDERS_TEST_REDIS_ADDR is set.
func testClient(t *testing.T) *OrderCache {
	t.Helper()
	addr := os.Getenv("ORDERS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ORDERS_TEST_REDIS_ADDR not set")
	}
	rdb := New(addr)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, Ping(context.Background(), rdb))
	return &OrderCache{RDB: rdb, TTL: time.Minute}
}

func TestOrderCacheRoundTrip(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	id := uuid.NewString()

	_, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	o := orders.Order{ID: id, BuyerID: "B1", SellerID: "S1", Status: orders.StatusShipped, Total: decimal.RequireFromString("25.00")}
	require.NoError(t, c.Set(ctx, o))

	got, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, orders.StatusShipped, got.Status)
	assert.True(t, got.Total.Equal(o.Total))
}

func TestOrderCacheFillDoesNotReplace(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	id := uuid.NewString()

	stale := orders.Order{ID: id, BuyerID: "B1", SellerID: "S1", Status: orders.StatusPending}
	require.NoError(t, c.Fill(ctx, stale))
	got, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, orders.StatusPending, got.Status)

	fresh := stale
	fresh.Status = orders.StatusShipped
	require.NoError(t, c.Set(ctx, fresh))
	require.NoError(t, c.Fill(ctx, stale))

	got, ok, err = c.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, orders.StatusShipped, got.Status)
}

func TestDedupFirstSeen(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	d := &Dedup{RDB: c.RDB, Service: "payments-test", TTL: time.Minute}
	id := uuid.NewString()

	first, err := d.FirstSeen(ctx, id)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := d.FirstSeen(ctx, id)
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, d.Forget(ctx, id))
	first, err = d.FirstSeen(ctx, id)
	require.NoError(t, err)
	assert.True(t, first)
}
