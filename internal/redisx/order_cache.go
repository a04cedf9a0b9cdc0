package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/marketplace-orders/internal/orders"
	"github.com/redis/go-redis/v9"
)

// OrderCache keeps order snapshots for reads. Writes go through Set after
// every committed change, so the TTL only bounds how long a missed update can
// linger. Read-path write-backs use Fill, which never replaces an entry.
type OrderCache struct {
	RDB *redis.Client
	TTL time.Duration
}

func (c *OrderCache) Get(ctx context.Context, orderID string) (orders.Order, bool, error) {
	b, err := c.RDB.Get(ctx, fmt.Sprintf(KeyOrder, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return orders.Order{}, false, nil
	}
	if err != nil {
		return orders.Order{}, false, err
	}
	var o orders.Order
	if err := json.Unmarshal(b, &o); err != nil {
		return orders.Order{}, false, fmt.Errorf("decode cached order %s: %w", orderID, err)
	}
	return o, true, nil
}

func (c *OrderCache) Set(ctx context.Context, o orders.Order) error {
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return c.RDB.Set(ctx, fmt.Sprintf(KeyOrder, o.ID), b, c.ttl()).Err()
}

func (c *OrderCache) Fill(ctx context.Context, o orders.Order) error {
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return c.RDB.SetNX(ctx, fmt.Sprintf(KeyOrder, o.ID), b, c.ttl()).Err()
}

func (c *OrderCache) ttl() time.Duration {
	if c.TTL <= 0 {
		return TTLOrderCache
	}
	return c.TTL
}
